package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"skill-radar/internal/adapter/analyzer"
	"skill-radar/internal/adapter/feishu"
	"skill-radar/internal/adapter/gemini"
	"skill-radar/internal/adapter/github"
	"skill-radar/internal/adapter/report"
	"skill-radar/internal/adapter/repository"
	"skill-radar/internal/port"
	"skill-radar/internal/proxy"
	"skill-radar/internal/rules"
	"skill-radar/internal/service"
)

func main() {
	// 1. 命令行参数
	mode := flag.String("mode", "run", "运行模式: run (扫描) / search (问答) / render (离线渲染) / proxy-create / proxy-verify / proxy-update")
	topic := flag.String("topic", "agent-skills", "要巡视的 GitHub topic")
	minStars := flag.Int("min-stars", 0, "最低 star 数 (在搜索查询里过滤)")
	maxRepos := flag.Int("max", 200, "最多抓取的仓库数")
	limit := flag.Int("limit", 0, "只分析搜索结果的前 N 个,0 表示全部")
	output := flag.String("output", "README.md", "报告输出路径")
	labeled := flag.String("labeled", "", "标注数据集 JSON 路径 (run 模式落盘, render 模式读取)")
	query := flag.String("q", "", "自然语言提问 (仅 search 模式)")
	skillURL := flag.String("url", "", "远端技能链接 (仅 proxy-create 模式)")
	proxyDir := flag.String("proxy", "", "代理目录 (proxy-create 的输出父目录,默认 ./skills; proxy-verify/proxy-update 的代理路径)")
	dryRun := flag.Bool("dry-run", false, "proxy-update 只预览不写盘")
	rulesPath := flag.String("rules", "", "检测规则 YAML,留空用内置规则")
	concurrency := flag.Int("concurrency", 3, "分析并发数")
	timeout := flag.Duration("timeout", 10*time.Minute, "单轮执行的超时时间")
	cronSpec := flag.String("cron", "", "cron 表达式,留空只执行一次 (仅 run 模式)")
	flag.Parse()

	// 2. 环境变量,.env 是可选的
	if err := godotenv.Load(); err == nil {
		fmt.Println("🧩 已加载 .env 配置")
	}

	githubToken := os.Getenv("GITHUB_TOKEN")
	if githubToken == "" {
		log.Println("⚠️ 未设置 GITHUB_TOKEN,匿名访问 GitHub API 很快会被限流")
	}

	// 3. 按模式分流
	switch *mode {
	case "run":
		svc := buildRadarService(githubToken, *rulesPath)
		opts := service.ScanOptions{
			Topic:       *topic,
			MinStars:    *minStars,
			MaxRepos:    *maxRepos,
			Limit:       *limit,
			OutputPath:  *output,
			LabeledPath: *labeled,
			Concurrency: *concurrency,
		}
		if *cronSpec != "" {
			runScheduled(svc, opts, *cronSpec, *timeout)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		if err := svc.ExecuteScanCycle(ctx, opts); err != nil {
			log.Fatalf("❌ 扫描失败: %v", err)
		}

	case "search":
		runSearch(buildRadarService(githubToken, *rulesPath), *query, *timeout)

	case "render":
		runRender(*labeled, *output)

	case "proxy-create":
		runProxyCreate(github.NewFetcher(githubToken), *skillURL, *proxyDir, *timeout)

	case "proxy-verify":
		runProxyVerify(github.NewFetcher(githubToken), *proxyDir, *timeout)

	case "proxy-update":
		runProxyUpdate(github.NewFetcher(githubToken), *proxyDir, *dryRun, *timeout)

	default:
		fmt.Println("❌ 未知模式,支持 run / search / render / proxy-create / proxy-verify / proxy-update")
		os.Exit(2)
	}
}

// buildRadarService 装配完整的扫描服务。
// 数据库、Gemini、飞书都是可选依赖,对应环境变量没配就留空
func buildRadarService(githubToken, rulesPath string) *service.RadarService {
	fetcher := github.NewFetcher(githubToken)
	repoAnalyzer := analyzer.NewRepoAnalyzer(fetcher, loadRules(rulesPath))
	reporter := report.NewGenerator()

	var repoStore port.Repository
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		store, err := repository.NewPostgresRepo(dsn)
		if err != nil {
			log.Fatalf("❌ DB 初始化失败: %v", err)
		}
		repoStore = store
	} else {
		log.Println("⚠️ 未设置 DATABASE_DSN,跳过归档与告警")
	}

	var appraiser port.Appraiser
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		a, err := gemini.NewGeminiAppraiser(context.Background(), key)
		if err != nil {
			log.Fatalf("❌ AI 初始化失败: %v", err)
		}
		appraiser = a
	} else {
		log.Println("⚠️ 未设置 GEMINI_API_KEY,跳过 AI 点评")
	}

	var notifier port.Notifier
	if webhook := os.Getenv("FEISHU_WEBHOOK"); webhook != "" {
		notifier = feishu.NewNotifier(webhook)
	}

	return service.NewRadarService(fetcher, repoAnalyzer, reporter, repoStore, appraiser, notifier)
}

func loadRules(path string) *rules.Set {
	if path == "" {
		return rules.Default()
	}
	set, err := rules.LoadFile(path)
	if err != nil {
		log.Fatalf("❌ 加载检测规则失败: %v", err)
	}
	fmt.Printf("🧪 已加载自定义检测规则: %s (%d 条)\n", path, set.Len())
	return set
}

// runScheduled 按 cron 表达式周期执行扫描,启动时先跑一轮
func runScheduled(svc *service.RadarService, opts service.ScanOptions, cronSpec string, timeout time.Duration) {
	executeScanCycle(svc, opts, timeout)

	c := cron.New()
	if _, err := c.AddFunc(cronSpec, func() {
		executeScanCycle(svc, opts, timeout)
	}); err != nil {
		log.Fatalf("❌ cron 表达式非法: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("⏰ 定时模式已启动: %q\n", cronSpec)
	fmt.Println("按下 Ctrl+C 可以优雅停止程序")
	c.Start()

	<-sigChan
	fmt.Println("\n👋 收到停止信号,等待进行中的扫描收尾...")
	<-c.Stop().Done()
	fmt.Println("👋 定时任务已停止")
}

// executeScanCycle 定时模式下单轮失败只记日志,守护进程继续活着
func executeScanCycle(svc *service.RadarService, opts service.ScanOptions, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := svc.ExecuteScanCycle(ctx, opts); err != nil {
		log.Printf("❌ 本轮扫描失败: %v", err)
	}
}

// --- 问答模式 ---
func runSearch(svc *service.RadarService, query string, timeout time.Duration) {
	if query == "" {
		fmt.Println("⚠️ 请输入你的问题,用大白话就行。")
		fmt.Println("例如: -q '找一个能处理 PDF 的技能' 或 -q '有没有危险的清盘脚本'")
		return
	}

	fmt.Println("🤖 正在读取归档,并进行 AI 语义分析...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	answer, err := svc.ExecuteSearch(ctx, query)
	if err != nil {
		log.Fatalf("❌ 检索失败: %v", err)
	}

	fmt.Println("\n================ [ 智能检索结果 ] ================")
	fmt.Println(answer)
	fmt.Println("==================================================")
}

// --- 离线渲染模式 ---
func runRender(labeledPath, outputPath string) {
	if labeledPath == "" {
		log.Fatal("❌ render 模式需要 -labeled 指定标注数据集")
	}

	// 离线渲染只依赖报告生成器,不碰网络和数据库
	svc := service.NewRadarService(nil, nil, report.NewGenerator(), nil, nil, nil)
	if err := svc.RenderFromSnapshot(labeledPath, outputPath); err != nil {
		log.Fatalf("❌ 渲染失败: %v", err)
	}
}

// --- 代理模式 ---
func newProxyManager(fetcher *github.Fetcher) *proxy.Manager {
	mgr := proxy.NewManager(fetcher, fetcher)
	mgr.SetCreatedBy(os.Getenv("USER"))
	return mgr
}

func runProxyCreate(fetcher *github.Fetcher, skillURL, outDir string, timeout time.Duration) {
	if skillURL == "" {
		log.Fatal("❌ proxy-create 模式需要 -url 指定远端技能链接")
	}
	if outDir == "" {
		outDir = "./skills"
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := newProxyManager(fetcher).Create(ctx, skillURL, outDir)
	if err != nil {
		log.Fatalf("❌ 创建代理失败: %v", err)
	}

	out, _ := json.Marshal(result)
	fmt.Println(string(out))
}

func runProxyVerify(fetcher *github.Fetcher, proxyDir string, timeout time.Duration) {
	if proxyDir == "" {
		log.Fatal("❌ proxy-verify 模式需要 -proxy 指定代理目录")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := newProxyManager(fetcher).Verify(ctx, proxyDir)
	if err != nil {
		log.Fatalf("❌ 校验失败: %v", err)
	}
	fmt.Printf("✓ 代理完好: %s\n", filepath.Base(proxyDir))
	if result.UpstreamMoved {
		fmt.Println("  提示: 上游已有新提交,审查变更后可执行 -mode=proxy-update")
	}
}

func runProxyUpdate(fetcher *github.Fetcher, proxyDir string, dryRun bool, timeout time.Duration) {
	if proxyDir == "" {
		log.Fatal("❌ proxy-update 模式需要 -proxy 指定代理目录")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result, err := newProxyManager(fetcher).Update(ctx, proxyDir, dryRun)
	if err != nil {
		log.Fatalf("❌ 升级失败: %v", err)
	}
	if result.Updated {
		fmt.Printf("✓ 代理已升级到 %s\n", result.NewCommit)
	}
}
