package gemini

import (
	"context"
	"testing"

	"skill-radar/internal/common"
	"skill-radar/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestParseAIResponse(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expectError bool
		expected    *aiResponse
	}{
		{
			name:  "标准 JSON 响应",
			input: `{"summary": "Anthropic 官方技能合集", "risk_note": "未发现风险"}`,
			expected: &aiResponse{
				Summary:  "Anthropic 官方技能合集",
				RiskNote: "未发现风险",
			},
		},
		{
			name: "JSON 混在多余文本里",
			input: `模型先客套了一句
			{
				"summary": "带清理脚本的技能包",
				"risk_note": "scripts/cleanup.sh 会递归删除目录,使用前务必确认路径"
			}
			然后又补了一句`,
			expected: &aiResponse{
				Summary:  "带清理脚本的技能包",
				RiskNote: "scripts/cleanup.sh 会递归删除目录,使用前务必确认路径",
			},
		},
		{
			name:        "非法 JSON",
			input:       `{"summary": 缺了引号}`,
			expectError: true,
		},
		{
			name:        "没有 JSON 内容",
			input:       `这次模型只返回了普通文本`,
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseAIResponse(tt.input)

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, result)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.expected.Summary, result.Summary)
				assert.Equal(t, tt.expected.RiskNote, result.RiskNote)
			}
		})
	}
}

func TestFormatCandidates(t *testing.T) {
	repos := []*domain.Repo{
		{
			FullName:    "anthropics/skills",
			Stars:       500,
			Category:    domain.CategorySkillCollection,
			Signals:     []string{"has-scripts", "spec-compliant"},
			Description: "Official skills",
			AISummary:   "官方维护的技能合集",
		},
		{
			FullName:    "acme/cleaner",
			Stars:       3,
			Category:    domain.CategorySkill,
			Signals:     []string{"rm-rf"},
			Description: "Disk cleanup skill",
		},
	}

	out := formatCandidates(repos)

	// AI 简介优先于原始描述
	assert.Contains(t, out, "- anthropics/skills (⭐500, 分类: skill-collection, 信号: has-scripts/spec-compliant): 官方维护的技能合集")
	// 没有 AI 简介时退回描述
	assert.Contains(t, out, "- acme/cleaner (⭐3, 分类: skill, 信号: rm-rf): Disk cleanup skill")
}

func TestSemanticSearchValidation(t *testing.T) {
	g := &GeminiAppraiser{}
	repos := []*domain.Repo{{FullName: "anthropics/skills"}}

	tests := []struct {
		name  string
		repos []*domain.Repo
		query string
	}{
		{name: "空查询", repos: repos, query: ""},
		{name: "全空白查询", repos: repos, query: "   "},
		{name: "没有候选仓库", repos: nil, query: "找个能处理 PDF 的技能"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// 参数校验在调用模型之前完成,零值实例不会触发网络请求
			answer, err := g.SemanticSearch(context.Background(), tt.repos, tt.query)
			assert.Error(t, err)
			assert.True(t, common.IsCode(err, common.ErrCodeInvalidInput))
			assert.Empty(t, answer)
		})
	}
}
