package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"skill-radar/internal/adapter/analyzer"
	"skill-radar/internal/adapter/github"
	"skill-radar/internal/domain"
	"skill-radar/internal/rules"
)

// 单个仓库的深挖工具,用来排查分类错判和规则误报
func main() {
	repoArg := flag.String("repo", "", "要深挖的仓库,形如 owner/name")
	rulesPath := flag.String("rules", "", "检测规则 YAML,留空用内置规则")
	flag.Parse()

	owner, name, ok := strings.Cut(*repoArg, "/")
	if !ok || owner == "" || name == "" {
		log.Fatal("❌ 用法: debug -repo owner/name")
	}

	githubToken := os.Getenv("GITHUB_TOKEN")
	ctx := context.Background()

	// 初始化组件
	fetcher := github.NewFetcher(githubToken)
	ruleSet := loadRuleSet(*rulesPath)
	repoAnalyzer := analyzer.NewRepoAnalyzer(fetcher, ruleSet)

	fmt.Printf("🔍 调试模式:深挖 %s/%s\n", owner, name)

	// 1. 仓库元数据
	fmt.Println("📥 正在拉取仓库元数据...")
	repo, err := fetcher.GetRepo(ctx, owner, name)
	if err != nil {
		log.Fatalf("❌ 拉取仓库失败: %v", err)
	}
	fmt.Printf("✅ %s | ⭐ %d | %s | 默认分支 %s\n",
		repo.FullName, repo.Stars, orDash(repo.Language), repo.DefaultBranch)
	if repo.Archived {
		fmt.Println("  ⚠️ 仓库已归档")
	}
	if repo.License == "" {
		fmt.Println("  ⚠️ 未声明 License")
	}

	// 2. 文件树
	fmt.Println("🌲 正在读取文件树...")
	tree, err := fetcher.GetFileTree(ctx, owner, name, repo.DefaultBranch)
	if err != nil {
		log.Fatalf("❌ 读取文件树失败: %v", err)
	}
	fmt.Printf("✅ 共 %d 个文件\n", len(tree))

	// 3. 完整分析流程
	fmt.Println("🧠 开始深度分析...")
	analyzed, err := repoAnalyzer.AnalyzeRepos(ctx, []*domain.Repo{repo})
	if err != nil {
		log.Printf("⚠️ 分析中断: %v", err)
	}
	if len(analyzed) == 0 {
		fmt.Println("❌ 分析没有产出结果")
		return
	}

	result := analyzed[0]
	labels := result.Labels()
	fmt.Printf("  分类: %s\n", labels.Category)
	fmt.Printf("  信号: %s\n", orDash(strings.Join(labels.Signals, ", ")))
	fmt.Printf("  技能文件 (%d 个):\n", len(result.SkillPaths))
	for _, p := range result.SkillPaths {
		fmt.Printf("    - %s\n", p)
	}
	for _, e := range result.ValidationErrors {
		fmt.Printf("  ⚠️ 校验: %s\n", e)
	}
	if result.IsRisky() {
		fmt.Println("  🚨 带有已证实的危险信号")
	}

	// 4. 逐条展示规则命中,定位是哪条规则在哪个脚本上触发的
	dumpRuleMatches(ctx, fetcher, ruleSet, result, tree)
}

// dumpRuleMatches 对每个脚本文件单独跑一遍规则表并打印命中明细
func dumpRuleMatches(ctx context.Context, fetcher *github.Fetcher, ruleSet *rules.Set, repo *domain.Repo, tree []string) {
	scripts := scriptPaths(tree)
	if len(scripts) == 0 {
		fmt.Println("📝 没有可扫描的脚本文件")
		return
	}
	if len(scripts) > 20 {
		fmt.Printf("✂️ 脚本太多,只看前 20 个 (共 %d 个)\n", len(scripts))
		scripts = scripts[:20]
	}

	fmt.Printf("🧪 逐个脚本跑规则 (%d 条规则):\n", ruleSet.Len())
	for _, p := range scripts {
		content, err := fetcher.GetFileContent(ctx, repo.Owner, repo.Name, p)
		if err != nil {
			fmt.Printf("  ⚠️ 跳过 %s: %v\n", p, err)
			continue
		}

		matches := ruleSet.Matches(content)
		if len(matches) == 0 {
			fmt.Printf("  ✓ %s 干净\n", p)
			continue
		}
		for _, rule := range matches {
			fmt.Printf("  🚨 %s 命中规则 %q (%s)\n", p, rule.Name, rule.Label())
		}
	}
}

// scriptPaths 和分析器用同一套口径挑出脚本文件
func scriptPaths(tree []string) []string {
	var found []string
	for _, p := range tree {
		if !strings.HasPrefix(p, "scripts/") && !strings.Contains(p, "/scripts/") {
			continue
		}
		if strings.HasSuffix(p, ".py") || strings.HasSuffix(p, ".sh") || strings.HasSuffix(p, ".bash") {
			found = append(found, p)
		}
	}
	return found
}

func loadRuleSet(path string) *rules.Set {
	if path == "" {
		return rules.Default()
	}
	set, err := rules.LoadFile(path)
	if err != nil {
		log.Fatalf("❌ 加载检测规则失败: %v", err)
	}
	return set
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
