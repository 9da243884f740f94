package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"skill-radar/internal/common"
	"skill-radar/internal/domain"
	"skill-radar/internal/port"
)

// RadarService 串起一轮完整的扫描: 搜索 → 分析 → 报告 → 归档 → 告警
type RadarService struct {
	scouter   port.Scouter
	analyzer  port.Analyzer
	reporter  port.Reporter
	repoStore port.Repository // 可为 nil,未配置数据库时跳过归档与告警
	appraiser port.Appraiser  // 可为 nil,未配置 API Key 时跳过 AI 点评
	notifier  port.Notifier   // 可为 nil,未配置 Webhook 时跳过告警
}

// NewRadarService 创建扫描服务。repoStore、appraiser、notifier 都允许传 nil
func NewRadarService(
	scouter port.Scouter,
	analyzer port.Analyzer,
	reporter port.Reporter,
	repoStore port.Repository,
	appraiser port.Appraiser,
	notifier port.Notifier,
) *RadarService {
	return &RadarService{
		scouter:   scouter,
		analyzer:  analyzer,
		reporter:  reporter,
		repoStore: repoStore,
		appraiser: appraiser,
		notifier:  notifier,
	}
}

// ScanOptions 一轮扫描的全部参数
type ScanOptions struct {
	Topic       string
	MinStars    int
	MaxRepos    int
	Limit       int    // 只分析搜索结果的前 N 个,0 表示全部
	OutputPath  string // 报告落盘路径
	LabeledPath string // 标注数据集 JSON 路径,空则不落盘
	Concurrency int
}

// ExecuteScanCycle 执行一轮扫描。
// 搜索失败直接向上抛;之后的阶段各自消化错误,保证报告总能产出
func (s *RadarService) ExecuteScanCycle(ctx context.Context, opts ScanOptions) error {
	s.analyzer.SetMaxGoroutines(opts.Concurrency)

	fmt.Printf("🚀 [扫描模式] 开始巡视 topic '%s' 下的技能仓库...\n", opts.Topic)

	// 1. 搜索
	fmt.Printf("📥 正在搜索仓库 (最低 %d star, 最多 %d 个)...\n", opts.MinStars, opts.MaxRepos)
	repos, err := s.scouter.ScoutTopic(ctx, opts.Topic, opts.MinStars, opts.MaxRepos)
	if err != nil {
		return common.WrapError(common.ErrCodeFetch, "搜索仓库失败", err)
	}
	fmt.Printf("✅ 搜索到 %d 个仓库\n", len(repos))

	if opts.Limit > 0 && opts.Limit < len(repos) {
		fmt.Printf("✂️ 按 -limit 只分析前 %d 个\n", opts.Limit)
		repos = repos[:opts.Limit]
	}

	// 2. 深度分析。单个仓库的失败在分析器内部消化,这里拿到的就是成功的部分
	fmt.Println("🧠 开始深度分析...")
	analyzed, err := s.analyzer.AnalyzeRepos(ctx, repos)
	if err != nil {
		log.Printf("⚠️ 分析阶段中断: %v", err)
	}
	fmt.Printf("✅ 完成 %d 个仓库的分析\n", len(analyzed))

	// 3. 可选的 AI 点评。失败只记日志,标签保持启发式结论
	if s.appraiser != nil {
		fmt.Println("🤖 开始 AI 点评...")
		appraised := 0
		for _, repo := range analyzed {
			if _, err := s.appraiser.Appraise(ctx, repo); err != nil {
				log.Printf("⚠️ AI 点评 %s 失败: %v", repo.FullName, err)
				continue
			}
			appraised++
		}
		fmt.Printf("✅ 完成 %d 个仓库的 AI 点评\n", appraised)
	}

	dataset := &domain.Dataset{
		Tag:        opts.Topic,
		AnalyzedAt: time.Now().UTC(),
		Total:      len(analyzed),
		Repos:      analyzed,
	}

	// 4. 渲染报告。搜索成功后报告必须产出,写盘失败是本轮唯一剩余的硬错误
	fmt.Println("📝 正在渲染报告...")
	report := s.reporter.Render(dataset)
	if err := os.WriteFile(opts.OutputPath, []byte(report), 0o644); err != nil {
		return common.WrapError(common.ErrCodeInternal, "写入报告失败", err)
	}
	fmt.Printf("✅ 报告已写入 %s\n", opts.OutputPath)

	if opts.LabeledPath != "" {
		if err := writeLabeled(opts.LabeledPath, dataset); err != nil {
			log.Printf("❌ 写入标注数据集失败: %v", err)
		} else {
			fmt.Printf("✅ 标注数据集已写入 %s\n", opts.LabeledPath)
		}
	}

	// 5. 归档与告警
	if s.repoStore == nil {
		log.Printf("⚠️ 未配置数据库,跳过归档与告警")
		fmt.Printf("🎉 本轮扫描完成,共收录 %d 个仓库\n", len(analyzed))
		return nil
	}

	fmt.Println("💾 开始归档...")
	saved := 0
	for _, repo := range analyzed {
		select {
		case <-ctx.Done():
			fmt.Println("⏰ 执行时间过长,提前结束归档阶段")
			return nil
		default:
		}

		if err := s.repoStore.Save(ctx, repo); err != nil {
			log.Printf("❌ 归档 %s 失败: %v", repo.FullName, err)
			continue
		}
		saved++
	}
	fmt.Printf("✅ 已归档 %d 个仓库\n", saved)

	s.notifyRisky(ctx)

	fmt.Printf("🎉 本轮扫描完成,共收录 %d 个仓库\n", len(analyzed))
	return nil
}

// notifyRisky 对尚未告警过的危险仓库逐个推送,推送成功才标记,失败下轮重试
func (s *RadarService) notifyRisky(ctx context.Context) {
	if s.notifier == nil {
		log.Printf("⚠️ 未配置通知通道,跳过危险仓库告警")
		return
	}

	risky, err := s.repoStore.GetUnnotifiedRisky(ctx)
	if err != nil {
		log.Printf("❌ 查询待告警仓库失败: %v", err)
		return
	}
	if len(risky) == 0 {
		return
	}

	fmt.Printf("🚨 发现 %d 个待告警的危险仓库\n", len(risky))
	for _, repo := range risky {
		select {
		case <-ctx.Done():
			fmt.Println("⏰ 执行时间过长,提前结束告警阶段")
			return
		default:
		}

		if err := s.notifier.Notify(ctx, repo); err != nil {
			log.Printf("❌ 推送 %s 告警失败: %v", repo.FullName, err)
			continue
		}
		if err := s.repoStore.MarkAsNotified(ctx, repo.FullName); err != nil {
			log.Printf("⚠️ 标记 %s 已告警失败: %v", repo.FullName, err)
			continue
		}
		fmt.Printf("📲 已告警: %s\n", repo.FullName)

		// 连续推送之间稍作间隔,避免触发机器人限流
		time.Sleep(500 * time.Millisecond)
	}
}

// ExecuteSearch 基于归档数据回答自然语言提问
func (s *RadarService) ExecuteSearch(ctx context.Context, query string) (string, error) {
	if s.repoStore == nil {
		return "", common.NewError(common.ErrCodeInvalidInput, "检索需要配置数据库 (DATABASE_DSN)")
	}
	if s.appraiser == nil {
		return "", common.NewError(common.ErrCodeInvalidInput, "检索需要配置 Gemini (GEMINI_API_KEY)")
	}

	candidates, err := s.repoStore.GetAllCandidates(ctx)
	if err != nil {
		return "", common.WrapError(common.ErrCodeDatabase, "读取归档仓库失败", err)
	}
	return s.appraiser.SemanticSearch(ctx, candidates, query)
}

// RenderFromSnapshot 从已落盘的标注数据集重新渲染报告,不发任何网络请求
func (s *RadarService) RenderFromSnapshot(labeledPath, outputPath string) error {
	data, err := os.ReadFile(labeledPath)
	if err != nil {
		return common.WrapError(common.ErrCodeNotFound, "读取标注数据集失败", err)
	}

	var dataset domain.Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return common.WrapError(common.ErrCodeValidation, "标注数据集格式非法", err)
	}

	report := s.reporter.Render(&dataset)
	if err := os.WriteFile(outputPath, []byte(report), 0o644); err != nil {
		return common.WrapError(common.ErrCodeInternal, "写入报告失败", err)
	}
	fmt.Printf("✅ 报告已从 %s 重新生成: %s\n", labeledPath, outputPath)
	return nil
}

func writeLabeled(path string, dataset *domain.Dataset) error {
	data, err := json.MarshalIndent(dataset, "", "  ")
	if err != nil {
		return common.WrapError(common.ErrCodeInternal, "序列化标注数据集失败", err)
	}
	return os.WriteFile(path, data, 0o644)
}
