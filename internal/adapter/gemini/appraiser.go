package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"skill-radar/internal/common"
	"skill-radar/internal/domain"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

type GeminiAppraiser struct {
	client *genai.Client
	// Appraise 用的模型,强制 JSON 输出
	model *genai.GenerativeModel
	// SemanticSearch 用的模型,输出自然语言回答
	chatModel *genai.GenerativeModel
}

// 定义一个内部结构体来接收 AI 返回的 JSON
type aiResponse struct {
	Summary  string `json:"summary"`
	RiskNote string `json:"risk_note"`
}

func NewGeminiAppraiser(ctx context.Context, apiKey string) (*GeminiAppraiser, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	model := client.GenerativeModel("gemini-2.5-flash-lite")
	// 强制要求返回 JSON,降低解析错误的概率
	model.ResponseMIMEType = "application/json"

	return &GeminiAppraiser{
		client:    client,
		model:     model,
		chatModel: client.GenerativeModel("gemini-2.5-flash-lite"),
	}, nil
}

// Appraise 为已打标的仓库补充 AI 简介和风险点评。
// 失败时把 repo 原样还给调用方,启发式标签不受影响
func (g *GeminiAppraiser) Appraise(ctx context.Context, repo *domain.Repo) (*domain.Repo, error) {
	prompt := fmt.Sprintf(`
你是一个熟悉 Agent Skills 生态、擅长脚本安全审计的技术专家。请分析以下 GitHub 仓库:

仓库名称: %s
仓库地址: %s
仓库描述: %s
主分类: %s
信号标签: %s
SKILL.md 数量: %d

请严格按照 JSON 格式返回分析结果,包含以下字段:
1. summary: 一句话的中文简介,说明这个仓库到底提供了什么。
2. risk_note: 中文风险点评。若信号里有 rm-rf 或 env-stealer,解释该风险对使用者意味着什么;否则说明未发现风险。

请直接返回 JSON,不要包含 Markdown 格式标记。
`, repo.FullName, repo.URL, repo.Description, repo.Category, strings.Join(repo.Signals, ", "), len(repo.SkillPaths))

	resp, err := g.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		// 即使 AI 挂了,也要返回 repo,调用方继续用启发式结论
		return repo, common.WrapError(common.ErrCodeAIProcessing, "AI 调用失败", err)
	}

	raw, err := textPart(resp)
	if err != nil {
		return repo, err
	}

	res, err := parseAIResponse(raw)
	if err != nil {
		return repo, err
	}

	repo.AISummary = res.Summary
	repo.AIRiskNote = res.RiskNote
	return repo, nil
}

// SemanticSearch 把归档仓库清单塞进上下文,让 AI 直接回答自然语言提问
func (g *GeminiAppraiser) SemanticSearch(ctx context.Context, repos []*domain.Repo, userQuery string) (string, error) {
	if strings.TrimSpace(userQuery) == "" {
		return "", common.NewError(common.ErrCodeInvalidInput, "查询内容不能为空")
	}
	if len(repos) == 0 {
		return "", common.NewError(common.ErrCodeInvalidInput, "没有可供检索的归档仓库")
	}

	prompt := fmt.Sprintf(`
你是一个熟悉 Agent Skills 生态的技术顾问。以下是已归档的仓库清单:

%s
用户的问题: %s

请只基于以上清单用中文回答:
1. 推荐最匹配的仓库 (给出 full_name),并说明推荐理由。
2. 推荐的仓库若带有 rm-rf 或 env-stealer 信号,必须明确提醒风险。
3. 清单里没有合适的仓库时直接说明没有找到,不要编造。
`, formatCandidates(repos), userQuery)

	resp, err := g.chatModel.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", common.WrapError(common.ErrCodeAIProcessing, "AI 调用失败", err)
	}

	return textPart(resp)
}

// formatCandidates 把仓库列表压成逐行清单,优先用 AI 简介,缺失时退回原始描述
func formatCandidates(repos []*domain.Repo) string {
	var sb strings.Builder
	for _, repo := range repos {
		desc := repo.AISummary
		if desc == "" {
			desc = repo.Description
		}
		fmt.Fprintf(&sb, "- %s (⭐%d, 分类: %s, 信号: %s): %s\n",
			repo.FullName, repo.Stars, repo.Category, strings.Join(repo.Signals, "/"), desc)
	}
	return sb.String()
}

// textPart 取第一个候选的首个文本片段
func textPart(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", common.NewError(common.ErrCodeAIProcessing, "AI 返回内容为空")
	}

	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", common.NewError(common.ErrCodeAIProcessing, "AI 返回格式错误")
	}
	return string(text), nil
}

// parseAIResponse 智能寻找 JSON 的起止位置再解析。
// 即使 AI 返回 "```json { ... } ```",也能精准抠出中间的 { ... }
func parseAIResponse(raw string) (*aiResponse, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		// 找不到花括号,说明 AI 没返回 JSON
		return nil, fmt.Errorf("无法提取 JSON, AI 原文: %s", raw)
	}

	cleanJSON := raw[start : end+1]

	var res aiResponse
	if err := json.Unmarshal([]byte(cleanJSON), &res); err != nil {
		return nil, fmt.Errorf("JSON 解析失败: %s | 原文: %s", err, cleanJSON)
	}
	return &res, nil
}
