package analyzer

import (
	"path"
	"sort"
	"strings"
	"time"

	"skill-radar/internal/domain"
)

const (
	maxSkillFiles  = 5   // 每个仓库最多解析的 SKILL.md 数量
	maxScriptFiles = 10  // 每个仓库最多扫描的脚本数量
	staleAfterDays = 180 // 超过这个天数没更新视为停滞
)

var (
	// skillKeywords 描述中出现任意一个即视为与 Agent Skills 相关 (小写比较)
	skillKeywords = []string{
		"skill", "agent", "claude", "llm", "ai agent", "coding agent",
		"skill.md", "agentskills", "assistant", "copilot",
	}

	// relevantTopics 主题串中出现任意一个即视为相关
	relevantTopics = []string{"skill", "agent", "claude", "llm"}

	// skillLanguages Agent Skills 生态的常见实现语言
	skillLanguages = map[string]bool{
		"Python":     true,
		"Shell":      true,
		"TypeScript": true,
		"JavaScript": true,
	}

	// multiAgentTopics 表明仓库面向多个智能体生态的主题标签 (精确匹配)
	multiAgentTopics = map[string]bool{
		"multi-agent": true,
		"claude-code": true,
		"copilot":     true,
		"gemini-cli":  true,
		"codex":       true,
	}

	// licenseNames 根目录下视为许可证文件的文件名 (小写比较)
	licenseNames = map[string]bool{
		"license":     true,
		"license.txt": true,
		"license.md":  true,
	}
)

// findSkillFiles 找出文件树中所有文件名恰好是 SKILL.md 的路径
func findSkillFiles(paths []string) []string {
	var found []string
	for _, p := range paths {
		if path.Base(p) == "SKILL.md" {
			found = append(found, p)
		}
	}
	return found
}

// findScriptFiles 找出 scripts 目录下可执行扫描的脚本文件
func findScriptFiles(paths []string) []string {
	var found []string
	for _, p := range paths {
		if !strings.HasPrefix(p, "scripts/") && !strings.Contains(p, "/scripts/") {
			continue
		}
		if strings.HasSuffix(p, ".py") || strings.HasSuffix(p, ".sh") || strings.HasSuffix(p, ".bash") {
			found = append(found, p)
		}
	}
	return found
}

// hasDir 判断文件树中是否存在指定目录
func hasDir(paths []string, dir string) bool {
	prefix := dir + "/"
	marker := "/" + dir + "/"
	for _, p := range paths {
		if strings.HasPrefix(p, prefix) || strings.Contains(p, marker) {
			return true
		}
	}
	return false
}

// hasLicenseFile 根目录下是否有许可证文件
func hasLicenseFile(paths []string) bool {
	for _, p := range paths {
		if licenseNames[strings.ToLower(p)] {
			return true
		}
	}
	return false
}

// classify 决定主分类:有 SKILL.md 看数量,没有就按元数据关键词逐级回退
func classify(repo *domain.Repo, skillCount int) string {
	if skillCount > 1 {
		return domain.CategorySkillCollection
	}
	if skillCount == 1 {
		return domain.CategorySkill
	}

	text := strings.ToLower(repo.Description + " " + repo.Name + " " + strings.Join(repo.Topics, " "))
	switch {
	case containsAny(text, "marketplace", "package manager", "registry", "paks", "skillport"):
		return domain.CategorySkillManager
	case containsAny(text, "integrate", "integration", "mcp", "extension", "cli", "server"):
		return domain.CategorySkillIntegration
	case containsAny(text, "awesome", "curated", "collection", "list"):
		return domain.CategoryAwesomeList
	case containsAny(text, "framework", "sdk", "library"):
		return domain.CategoryFramework
	case containsAny(text, "example", "demo", "tutorial", "sample"):
		return domain.CategoryExample
	default:
		return domain.CategoryOther
	}
}

func containsAny(text string, keywords ...string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// isMisleading 判断主题标签是否挂错了仓库
// 四个条件必须同时成立:没有任何 SKILL.md、描述不含相关关键词、
// 主题不含相关词、主语言不在常见实现语言内;少一个都不算
func isMisleading(repo *domain.Repo, skillCount int) bool {
	if skillCount > 0 {
		return false
	}

	desc := strings.ToLower(repo.Description)
	for _, kw := range skillKeywords {
		if strings.Contains(desc, kw) {
			return false
		}
	}

	topicsText := strings.ToLower(strings.Join(repo.Topics, " "))
	for _, kw := range relevantTopics {
		if strings.Contains(topicsText, kw) {
			return false
		}
	}

	return !skillLanguages[repo.Language]
}

// buildSignals 汇总信号标签并按字典序排序,保证同一仓库两次分析输出一致
func (a *RepoAnalyzer) buildSignals(repo *domain.Repo, paths, skillPaths, riskLabels []string) []string {
	set := make(map[string]struct{})
	for _, label := range riskLabels {
		set[label] = struct{}{}
	}

	if len(skillPaths) > 0 {
		if len(repo.ValidationErrors) > 0 {
			set[domain.SignalSpecErrors] = struct{}{}
		} else {
			set[domain.SignalSpecCompliant] = struct{}{}
		}
	}
	if hasDir(paths, "scripts") {
		set[domain.SignalHasScripts] = struct{}{}
	}
	if hasDir(paths, "references") {
		set[domain.SignalHasReferences] = struct{}{}
	}
	if repo.Archived {
		set[domain.SignalArchived] = struct{}{}
	}
	if a.isStale(repo) {
		set[domain.SignalStale] = struct{}{}
	}
	if !hasLicenseFile(paths) {
		set[domain.SignalNoLicense] = struct{}{}
	}
	for _, topic := range repo.Topics {
		if multiAgentTopics[topic] {
			set[domain.SignalMultiAgent] = struct{}{}
			break
		}
	}
	if isMisleading(repo, len(skillPaths)) {
		set[domain.SignalMisleading] = struct{}{}
	}

	signals := make([]string, 0, len(set))
	for label := range set {
		signals = append(signals, label)
	}
	sort.Strings(signals)
	return signals
}

// isStale 超过六个月没有任何更新
func (a *RepoAnalyzer) isStale(repo *domain.Repo) bool {
	if repo.UpdatedAt.IsZero() {
		return false
	}
	return a.nowFunc().Sub(repo.UpdatedAt) > staleAfterDays*24*time.Hour
}
