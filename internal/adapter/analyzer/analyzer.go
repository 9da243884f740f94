package analyzer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"skill-radar/internal/adapter/filter"
	"skill-radar/internal/common"
	"skill-radar/internal/domain"
	"skill-radar/internal/port"
	"skill-radar/internal/rules"
	"skill-radar/internal/skillmd"
)

// RepoAnalyzer 实现了 port.Analyzer 接口
type RepoAnalyzer struct {
	trees         port.TreeReader
	ruleSet       *rules.Set
	maxGoroutines int // 最大并发数
	nowFunc       func() time.Time
}

// NewRepoAnalyzer 创建新的分析器实例
func NewRepoAnalyzer(trees port.TreeReader, ruleSet *rules.Set) *RepoAnalyzer {
	return &RepoAnalyzer{
		trees:         trees,
		ruleSet:       ruleSet,
		maxGoroutines: 3,        // 默认并发数为3
		nowFunc:       time.Now, // 便于测试注入当前时间
	}
}

// SetMaxGoroutines 设置最大并发数
func (a *RepoAnalyzer) SetMaxGoroutines(max int) {
	if max > 0 {
		a.maxGoroutines = max
	}
}

// analyzeRepoWorker 工作协程,处理单个仓库的分析
func (a *RepoAnalyzer) analyzeRepoWorker(
	ctx context.Context,
	jobs <-chan *domain.Repo,
	results chan<- *domain.Repo,
	errs chan<- error,
	wg *sync.WaitGroup,
	workerID int,
) {
	defer wg.Done()

	for repo := range jobs {
		fmt.Printf("   [Worker-%d] 正在分析 %s...\n", workerID, repo.FullName)

		// 为每个仓库设置超时时间(30秒)
		repoCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		analyzed, err := a.analyzeOne(repoCtx, repo)
		cancel() // 立即释放资源

		if err != nil {
			// 单个仓库失败只记录,不进结果集,也不中断批处理
			fmt.Printf("   [Worker-%d] ❌ %s 分析失败: %v\n", workerID, repo.FullName, err)
			errs <- err
			continue
		}

		fmt.Printf("   [Worker-%d] ✅ %s → %s %v\n", workerID, repo.FullName, analyzed.Category, analyzed.Signals)
		results <- analyzed
	}
}

// AnalyzeRepos 并发为每个仓库打标签
// 失败的仓库被静默剔除,上下文取消时只保留已完成的结果
func (a *RepoAnalyzer) AnalyzeRepos(ctx context.Context, repos []*domain.Repo) ([]*domain.Repo, error) {
	fmt.Printf("🔬 开始仓库分析,共 %d 个项目,最大并发数: %d\n", len(repos), a.maxGoroutines)

	// 创建channel用于传递jobs和results
	jobs := make(chan *domain.Repo, len(repos))
	results := make(chan *domain.Repo, len(repos))
	errs := make(chan error, len(repos))

	// 启动workers
	var wg sync.WaitGroup
	for i := 0; i < a.maxGoroutines; i++ {
		wg.Add(1)
		go a.analyzeRepoWorker(ctx, jobs, results, errs, &wg, i+1)
	}

	// 发送jobs
	for _, repo := range repos {
		jobs <- repo
	}
	close(jobs)

	// 等待所有workers完成
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// 所有任务完成
	case <-ctx.Done():
		// 上下文取消后工作协程会在各自的仓库上快速失败,等它们退出再收尾
		fmt.Println("⏰ 分析因超时或取消而中断,只保留已完成的仓库")
		<-done
	}

	// 关闭channels
	close(results)
	close(errs)

	// 收集结果。worker 按完成顺序吐出,重新排成 star 降序保证下游确定性
	analyzed := make([]*domain.Repo, 0, len(repos))
	for repo := range results {
		analyzed = append(analyzed, repo)
	}
	analyzed = filter.SortByStars(analyzed)

	// 打印错误信息 (如果有)
	if len(errs) > 0 {
		fmt.Printf("⚠️  共有 %d 个仓库分析失败,已从结果中剔除:\n", len(errs))
		for err := range errs {
			fmt.Printf("   错误: %v\n", err)
		}
	}

	fmt.Printf("✅ 仓库分析完成,成功 %d 个\n", len(analyzed))

	if ctx.Err() != nil {
		return analyzed, ctx.Err()
	}
	return analyzed, nil
}

// analyzeOne 对单个仓库执行完整的分析流程:
// 拉文件树 → 校验 SKILL.md → 扫描脚本 → 定主分类 → 汇总信号
func (a *RepoAnalyzer) analyzeOne(ctx context.Context, repo *domain.Repo) (*domain.Repo, error) {
	paths, err := a.trees.GetFileTree(ctx, repo.Owner, repo.Name, repo.DefaultBranch)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeAnalysis, fmt.Sprintf("获取 %s 文件树失败", repo.FullName), err)
	}

	repo.FileCount = len(paths)
	repo.AnalyzedAt = a.nowFunc()

	skillPaths := findSkillFiles(paths)
	repo.SkillPaths = skillPaths

	// 一个文件都扫不到时只定主分类,不输出任何信号
	if len(paths) == 0 {
		repo.Category = classify(repo, 0)
		repo.Signals = nil
		repo.ValidationErrors = nil
		return repo, nil
	}

	repo.ValidationErrors = a.validateSkillFiles(ctx, repo, skillPaths)
	riskLabels := a.scanScripts(ctx, repo, findScriptFiles(paths))

	repo.Category = classify(repo, len(skillPaths))
	repo.Signals = a.buildSignals(repo, paths, skillPaths, riskLabels)
	return repo, nil
}

// validateSkillFiles 逐个解析 SKILL.md 并收集校验错误
// 单个文件拉取失败直接跳过,用读到的部分继续分析
func (a *RepoAnalyzer) validateSkillFiles(ctx context.Context, repo *domain.Repo, skillPaths []string) []string {
	limit := len(skillPaths)
	if limit > maxSkillFiles {
		limit = maxSkillFiles
	}

	var errs []string
	for _, p := range skillPaths[:limit] {
		content, err := a.trees.GetFileContent(ctx, repo.Owner, repo.Name, p)
		if err != nil {
			fmt.Printf("   ⚠️ 跳过 %s 的 %s: %v\n", repo.FullName, p, err)
			continue
		}

		skill, err := skillmd.Parse([]byte(content))
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid frontmatter", p))
			continue
		}
		for _, msg := range skill.Validate() {
			errs = append(errs, fmt.Sprintf("%s: %s", p, msg))
		}
	}
	return errs
}

// scanScripts 扫描脚本内容产生风险标签,跨文件合并后做确认级别归一
func (a *RepoAnalyzer) scanScripts(ctx context.Context, repo *domain.Repo, scriptPaths []string) []string {
	limit := len(scriptPaths)
	if limit > maxScriptFiles {
		limit = maxScriptFiles
	}

	seen := make(map[string]struct{})
	for _, p := range scriptPaths[:limit] {
		content, err := a.trees.GetFileContent(ctx, repo.Owner, repo.Name, p)
		if err != nil {
			fmt.Printf("   ⚠️ 跳过 %s 的 %s: %v\n", repo.FullName, p, err)
			continue
		}
		for _, label := range a.ruleSet.Scan(content) {
			seen[label] = struct{}{}
		}
	}

	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	return rules.Reconcile(labels)
}
