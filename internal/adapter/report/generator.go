package report

import (
	"fmt"
	"sort"
	"strings"

	"skill-radar/internal/adapter/filter"
	"skill-radar/internal/domain"
)

// Generator 实现了 port.Reporter 接口,把标注好的数据集渲染成 awesome-list 文档
// 相同输入永远产出字节一致的文本,写盘是调用方的事
type Generator struct{}

// NewGenerator 创建新的报告生成器实例
func NewGenerator() *Generator {
	return &Generator{}
}

var categoryHeadings = map[string]string{
	domain.CategorySkillCollection:  "## 📦 Skill Collections",
	domain.CategorySkill:            "## 🎯 Individual Skills",
	domain.CategorySkillManager:     "## 🛠️ Skill Managers & Registries",
	domain.CategorySkillIntegration: "## 🔌 Integrations & Tooling",
	domain.CategoryAwesomeList:      "## 📋 Other Awesome Lists",
	domain.CategoryFramework:        "## 🏗️ Frameworks & SDKs",
	domain.CategoryExample:          "## 💡 Examples & Demos",
	domain.CategoryOther:            "## 🔍 Other",
}

var categoryDescriptions = map[string]string{
	domain.CategorySkillCollection:  "Repositories containing multiple Agent Skills.",
	domain.CategorySkill:            "Repositories containing a single Agent Skill.",
	domain.CategorySkillManager:     "Tools to discover, install, and manage Agent Skills.",
	domain.CategorySkillIntegration: "Products and tools that integrate or serve Agent Skills.",
	domain.CategoryAwesomeList:      "Other curated lists about Agent Skills or related topics.",
	domain.CategoryFramework:        "Agent frameworks and SDKs with Agent Skills support.",
	domain.CategoryExample:          "Demos, tutorials, and sample projects.",
	domain.CategoryOther:            "Repositories tagged `agent-skills` with other content.",
}

var signalIcons = map[string]string{
	domain.SignalSpecCompliant:        "✅",
	domain.SignalSpecErrors:           "❌",
	domain.SignalMultiAgent:           "🌐",
	domain.SignalHasScripts:           "📜",
	domain.SignalHasReferences:        "📚",
	domain.SignalMisleading:           "⚠️",
	domain.SignalEnvStealer:           "🚨",
	domain.SignalEnvStealerUnverified: "❓",
	domain.SignalRmRf:                 "💥",
	domain.SignalRmRfUnverified:       "❓",
	domain.SignalArchived:             "🗄️",
	domain.SignalStale:                "💤",
	domain.SignalNoLicense:            "🔓",
}

// legendRows 图例行,顺序固定;摘要里的信号计数也按这个顺序输出
var legendRows = []struct {
	label   string
	meaning string
}{
	{domain.SignalSpecCompliant, "SKILL.md passes agentskills.io validation"},
	{domain.SignalSpecErrors, "SKILL.md fails agentskills.io validation"},
	{domain.SignalMultiAgent, "Works across multiple agent products"},
	{domain.SignalHasScripts, "Contains a `scripts/` directory"},
	{domain.SignalHasReferences, "Contains a `references/` directory"},
	{domain.SignalMisleading, "Topic tag used for SEO — not actually an Agent Skill"},
	{domain.SignalEnvStealer, "Scripts or actions exfiltrate environment variables"},
	{domain.SignalEnvStealerUnverified, "Sends environment values over the network — review required"},
	{domain.SignalRmRf, "Destructive `rm -rf` without safeguards"},
	{domain.SignalRmRfUnverified, "`rm -rf` on a variable path — verify before use"},
	{domain.SignalArchived, "Repository is archived"},
	{domain.SignalStale, "No commits in 6+ months"},
	{domain.SignalNoLicense, "No LICENSE file found"},
}

// advisorySignals 条目行里排在正面信号之后的警示类标签
var advisorySignals = map[string]bool{
	domain.SignalMisleading:           true,
	domain.SignalEnvStealer:           true,
	domain.SignalEnvStealerUnverified: true,
	domain.SignalRmRf:                 true,
	domain.SignalRmRfUnverified:       true,
	domain.SignalArchived:             true,
	domain.SignalStale:                true,
	domain.SignalNoLicense:            true,
	domain.SignalSpecErrors:           true,
}

// Render 生成完整的 README 文本
// 对残缺输入同样产出文档:未知分类落入 other,缺失字段按空值渲染
func (g *Generator) Render(dataset *domain.Dataset) string {
	if dataset == nil {
		dataset = &domain.Dataset{}
	}

	tag := dataset.Tag
	repos := dataset.Repos

	byCategory := make(map[string][]*domain.Repo, len(domain.CategoryOrder))
	for _, repo := range repos {
		cat := repo.Category
		if _, ok := categoryHeadings[cat]; !ok {
			cat = domain.CategoryOther
		}
		byCategory[cat] = append(byCategory[cat], repo)
	}
	for cat, members := range byCategory {
		byCategory[cat] = filter.SortByStars(members)
	}

	total := dataset.Total
	if total == 0 {
		total = len(repos)
	}
	updated := "unknown"
	if !dataset.AnalyzedAt.IsZero() {
		updated = dataset.AnalyzedAt.UTC().Format("2006-01-02")
	}

	lines := []string{
		fmt.Sprintf("# Awesome Agent Skills · `%s`", tag),
		"",
		fmt.Sprintf("> A curated and automatically labeled list of GitHub repositories tagged [`%s`](https://github.com/topics/%s).", tag, tag),
		"> Powered by the [agentskills.io](https://agentskills.io) open specification.",
		"",
		"[![Awesome](https://awesome.re/badge.svg)](https://awesome.re)",
		"",
		fmt.Sprintf("*Auto-generated · %d repositories analyzed · Last updated: `%s`*", total, updated),
		"",
	}

	lines = append(lines, summarySection(byCategory, repos, total)...)
	lines = append(lines, legendSection()...)

	for _, cat := range domain.CategoryOrder {
		members := byCategory[cat]
		if len(members) == 0 {
			continue
		}

		lines = append(lines,
			categoryHeadings[cat],
			"",
			fmt.Sprintf("*%s*", categoryDescriptions[cat]),
			"",
		)
		for _, repo := range members {
			lines = append(lines, formatRepoEntry(repo))
		}
		lines = append(lines, "")
	}

	lines = append(lines,
		"---",
		"",
		"## Contributing",
		"",
		fmt.Sprintf("This list is auto-generated from the GitHub topic [`%s`](https://github.com/topics/%s).", tag, tag),
		fmt.Sprintf("To add your repository, add the `%s` topic to it on GitHub.", tag),
		"",
		"To suggest a label correction or report a false positive, open an issue.",
		"",
		"## License",
		"",
		"[CC0 1.0](LICENSE)",
	)

	return strings.Join(lines, "\n") + "\n"
}

// summarySection 分类计数和信号计数两张表
func summarySection(byCategory map[string][]*domain.Repo, repos []*domain.Repo, total int) []string {
	lines := []string{
		"## Summary",
		"",
		"| Category | Count |",
		"|----------|-------|",
	}
	for _, cat := range domain.CategoryOrder {
		lines = append(lines, fmt.Sprintf("| `%s` | %d |", cat, len(byCategory[cat])))
	}
	lines = append(lines, fmt.Sprintf("| Total | %d |", total), "")

	signalCounts := make(map[string]int)
	for _, repo := range repos {
		for _, s := range repo.Signals {
			signalCounts[s]++
		}
	}

	lines = append(lines,
		"| Signal | Count |",
		"|--------|-------|",
	)
	for _, row := range legendRows {
		if n := signalCounts[row.label]; n > 0 {
			lines = append(lines, fmt.Sprintf("| `%s` %s | %d |", row.label, signalIcons[row.label], n))
		}
	}
	return append(lines, "")
}

// legendSection 完整的标签图例,覆盖分析器会产出的全部标签
func legendSection() []string {
	lines := []string{
		"## Label Legend",
		"",
		"| Label | Meaning |",
		"|-------|---------|",
	}
	for _, row := range legendRows {
		lines = append(lines, fmt.Sprintf("| `%s` %s | %s |", row.label, signalIcons[row.label], row.meaning))
	}
	return append(lines, "")
}

// formatRepoEntry 单行条目:名称、链接、描述、star、语言、信号
func formatRepoEntry(repo *domain.Repo) string {
	url := repo.URL
	if url == "" {
		url = "https://github.com/" + repo.FullName
	}

	line := fmt.Sprintf("- **[%s](%s)** — %s", repo.FullName, url, repo.Description)
	line += fmt.Sprintf(" ⭐ %d", repo.Stars)
	if repo.Language != "" {
		line += fmt.Sprintf(" `%s`", repo.Language)
	}

	var positive, advisory []string
	for _, s := range repo.Signals {
		if advisorySignals[s] {
			advisory = append(advisory, s)
		} else {
			positive = append(positive, s)
		}
	}
	if len(positive) > 0 {
		line += " " + formatSignals(positive)
	}
	if len(advisory) > 0 {
		line += " " + formatSignals(advisory)
	}

	return line
}

// formatSignals 按字典序输出 `label` icon 徽标
func formatSignals(signals []string) string {
	sorted := make([]string, len(signals))
	copy(sorted, signals)
	sort.Strings(sorted)

	parts := make([]string, 0, len(sorted))
	for _, s := range sorted {
		if icon := signalIcons[s]; icon != "" {
			parts = append(parts, fmt.Sprintf("`%s` %s", s, icon))
		} else {
			parts = append(parts, fmt.Sprintf("`%s`", s))
		}
	}
	return strings.Join(parts, " ")
}
