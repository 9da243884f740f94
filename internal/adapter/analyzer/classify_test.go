package analyzer

import (
	"testing"

	"skill-radar/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		repo       *domain.Repo
		skillCount int
		expected   string
	}{
		{
			name:       "多个 SKILL.md 是合集",
			repo:       &domain.Repo{},
			skillCount: 3,
			expected:   domain.CategorySkillCollection,
		},
		{
			name:       "单个 SKILL.md 是技能",
			repo:       &domain.Repo{Description: "whatever"},
			skillCount: 1,
			expected:   domain.CategorySkill,
		},
		{
			name:       "描述含 marketplace 回退为管理器",
			repo:       &domain.Repo{Description: "A skill marketplace for agents"},
			skillCount: 0,
			expected:   domain.CategorySkillManager,
		},
		{
			name:       "主题含 registry 也参与回退",
			repo:       &domain.Repo{Topics: []string{"registry"}},
			skillCount: 0,
			expected:   domain.CategorySkillManager,
		},
		{
			name:       "描述含 mcp 回退为集成",
			repo:       &domain.Repo{Description: "MCP bridge for editors"},
			skillCount: 0,
			expected:   domain.CategorySkillIntegration,
		},
		{
			name:       "描述含 awesome 回退为清单",
			repo:       &domain.Repo{Description: "Awesome tools you should know"},
			skillCount: 0,
			expected:   domain.CategoryAwesomeList,
		},
		{
			name:       "描述含 sdk 回退为框架",
			repo:       &domain.Repo{Description: "Official SDK"},
			skillCount: 0,
			expected:   domain.CategoryFramework,
		},
		{
			name:       "描述含 demo 回退为示例",
			repo:       &domain.Repo{Description: "Quick demo"},
			skillCount: 0,
			expected:   domain.CategoryExample,
		},
		{
			name:       "毫无线索归入 other",
			repo:       &domain.Repo{Description: "Personal dotfiles", Name: "dotfiles"},
			skillCount: 0,
			expected:   domain.CategoryOther,
		},
		{
			name:       "回退按顺序取第一个命中",
			repo:       &domain.Repo{Description: "Awesome marketplace of things"},
			skillCount: 0,
			expected:   domain.CategorySkillManager,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classify(tt.repo, tt.skillCount))
		})
	}
}

func TestIsMisleading(t *testing.T) {
	// 基准:四个条件全部成立
	base := func() *domain.Repo {
		return &domain.Repo{
			Description: "Fast web scraper",
			Topics:      []string{"scraping", "crawler"},
			Language:    "Go",
		}
	}

	tests := []struct {
		name       string
		mutate     func(*domain.Repo)
		skillCount int
		expected   bool
	}{
		{
			name:       "四个条件全成立",
			mutate:     func(r *domain.Repo) {},
			skillCount: 0,
			expected:   true,
		},
		{
			name:       "存在 SKILL.md 就不算",
			mutate:     func(r *domain.Repo) {},
			skillCount: 1,
			expected:   false,
		},
		{
			name:       "描述含相关关键词就不算",
			mutate:     func(r *domain.Repo) { r.Description = "Web scraper for Claude" },
			skillCount: 0,
			expected:   false,
		},
		{
			name:       "主题含相关词就不算",
			mutate:     func(r *domain.Repo) { r.Topics = []string{"agent-tools"} },
			skillCount: 0,
			expected:   false,
		},
		{
			name:       "语言在常见实现语言内就不算",
			mutate:     func(r *domain.Repo) { r.Language = "Python" },
			skillCount: 0,
			expected:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := base()
			tt.mutate(repo)
			assert.Equal(t, tt.expected, isMisleading(repo, tt.skillCount))
		})
	}
}

func TestFindSkillFiles(t *testing.T) {
	paths := []string{
		"SKILL.md",
		"pdf/SKILL.md",
		"notes/MYSKILL.md",
		"skill.md",
		"docs/skill-guide.md",
	}

	found := findSkillFiles(paths)

	// 只认文件名恰好是 SKILL.md 的,大小写敏感
	assert.Equal(t, []string{"SKILL.md", "pdf/SKILL.md"}, found)
}

func TestFindScriptFiles(t *testing.T) {
	paths := []string{
		"scripts/run.sh",
		"scripts/deep/helper.bash",
		"tools/scripts/extract.py",
		"scripts/README.md",
		"myscripts/evil.sh",
		"main.py",
	}

	found := findScriptFiles(paths)

	assert.Equal(t, []string{"scripts/run.sh", "scripts/deep/helper.bash", "tools/scripts/extract.py"}, found)
}

func TestHasDir(t *testing.T) {
	paths := []string{"references/guide.md", "src/main.go"}

	assert.True(t, hasDir(paths, "references"))
	assert.False(t, hasDir(paths, "scripts"))
	assert.True(t, hasDir([]string{"skill/references/a.md"}, "references"))
}

func TestHasLicenseFile(t *testing.T) {
	tests := []struct {
		name     string
		paths    []string
		expected bool
	}{
		{"大写 LICENSE", []string{"LICENSE", "README.md"}, true},
		{"license.md", []string{"license.md"}, true},
		{"LICENSE.txt", []string{"LICENSE.txt"}, true},
		{"子目录里的不算", []string{"docs/LICENSE"}, false},
		{"其他后缀不算", []string{"LICENSE.rst"}, false},
		{"没有许可证", []string{"README.md"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, hasLicenseFile(tt.paths))
		})
	}
}
