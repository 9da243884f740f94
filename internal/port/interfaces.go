package port

import (
	"context"

	"skill-radar/internal/domain"
)

// Scouter (侦察兵): 按主题标签从数据源搜索仓库
type Scouter interface {
	// ScoutTopic 搜索带指定 topic 的仓库。minStars 在查询层过滤,
	// 结果按 star 降序排列,最多 maxRepos 条
	ScoutTopic(ctx context.Context, topic string, minStars, maxRepos int) ([]*domain.Repo, error)
}

// TreeReader (勘探员): 读取仓库文件树与文件内容
type TreeReader interface {
	// GetFileTree 返回指定分支上全部 blob 的路径;
	// 分支不存在或仓库为空时返回空切片而不是错误
	GetFileTree(ctx context.Context, owner, name, branch string) ([]string, error)

	// GetFileContent 返回单个文件的文本内容
	GetFileContent(ctx context.Context, owner, name, path string) (string, error)
}

// Analyzer (分析员): 并发为一批仓库打标签
type Analyzer interface {
	AnalyzeRepos(ctx context.Context, repos []*domain.Repo) ([]*domain.Repo, error)

	// SetMaxGoroutines 设置并发 worker 数
	SetMaxGoroutines(n int)
}

// Appraiser (鉴定师): 调用 LLM (Gemini) 做可选的增强点评
type Appraiser interface {
	// 输入打好标签的仓库,补充 AI 简介与风险点评
	Appraise(ctx context.Context, repo *domain.Repo) (*domain.Repo, error)

	// SemanticSearch 基于归档数据回答自然语言提问
	SemanticSearch(ctx context.Context, repos []*domain.Repo, userQuery string) (string, error)
}

// Reporter (书记员): 把打好标签的数据集渲染成报告文本
type Reporter interface {
	Render(dataset *domain.Dataset) string
}

// Notifier (信使): 推送告警到手机 (飞书/钉钉)
type Notifier interface {
	// 推送单个危险仓库的告警
	Notify(ctx context.Context, repo *domain.Repo) error
}

// Repository (仓库管理员): 负责归档存储和查询
type Repository interface {
	// 保存或更新仓库记录 (按 full_name 幂等)
	Save(ctx context.Context, repo *domain.Repo) error

	// 判断是否已经归档过
	Exists(ctx context.Context, fullName string) (bool, error)

	// Search 对归档做关键词查询
	// MVP 阶段:SQL 的 LIKE 查询
	// 进阶阶段:Vector 向量搜索
	Search(ctx context.Context, query string) ([]*domain.Repo, error)

	// GetAllCandidates 返回全部归档记录 (问答查询的语料)
	GetAllCandidates(ctx context.Context) ([]*domain.Repo, error)

	// GetUnnotifiedRisky 返回命中危险信号且尚未推送过的仓库
	GetUnnotifiedRisky(ctx context.Context) ([]*domain.Repo, error)

	// MarkAsNotified 标记已推送,防止重复告警
	MarkAsNotified(ctx context.Context, fullName string) error
}

// CommitResolver (校对员): 把分支或引用解析成提交 SHA,代理固定版本用
type CommitResolver interface {
	ResolveCommit(ctx context.Context, owner, name, ref string) (string, error)
}

// RawFetcher (取件员): 拉取 raw.githubusercontent.com 上的文件原文
type RawFetcher interface {
	FetchRaw(ctx context.Context, url string) (string, error)
}
