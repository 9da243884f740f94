package domain

import "time"

// 主分类:每个仓库有且仅有一个
const (
	CategorySkillCollection  = "skill-collection"
	CategorySkill            = "skill"
	CategorySkillManager     = "skill-manager"
	CategorySkillIntegration = "skill-integration"
	CategoryAwesomeList      = "awesome-list"
	CategoryFramework        = "framework"
	CategoryExample          = "example"
	CategoryOther            = "other"
)

// CategoryOrder 报告中分类的固定展示顺序 (从对读者最有用到最不相关)
var CategoryOrder = []string{
	CategorySkillCollection,
	CategorySkill,
	CategorySkillManager,
	CategorySkillIntegration,
	CategoryAwesomeList,
	CategoryFramework,
	CategoryExample,
	CategoryOther,
}

// 信号标签:可叠加;同一风险类型的 confirmed 与 unverified 互斥
const (
	SignalSpecCompliant        = "spec-compliant"
	SignalSpecErrors           = "spec-errors"
	SignalHasScripts           = "has-scripts"
	SignalHasReferences        = "has-references"
	SignalMultiAgent           = "multi-agent"
	SignalMisleading           = "misleading"
	SignalRmRf                 = "rm-rf"
	SignalRmRfUnverified       = "rm-rf?"
	SignalEnvStealer           = "env-stealer"
	SignalEnvStealerUnverified = "env-stealer?"
	SignalArchived             = "archived"
	SignalStale                = "stale"
	SignalNoLicense            = "no-license"
)

// Repo 代表一个被主题扫描命中的仓库,以及分析产出的标签结论
type Repo struct {
	// 基础信息 (来自 GitHub Search API)
	FullName      string    `json:"full_name" gorm:"primaryKey"` // 例如 "anthropics/skills"
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	URL           string    `json:"url"`
	Description   string    `json:"description"`
	Stars         int       `json:"stars"`
	Forks         int       `json:"forks"`
	Language      string    `json:"language"`
	Topics        []string  `json:"topics" gorm:"serializer:json"`
	Archived      bool      `json:"archived"`
	License       string    `json:"license"` // SPDX 标识,未声明则为空
	DefaultBranch string    `json:"default_branch"`
	// 这两个时间来自 GitHub (创建时间和最近一次 push),
	// 不是数据库行的时间戳,入库时禁止 gorm 自动覆盖
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime:false"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime:false"`

	// --- 分析结论 (Analyzer 填充) ---

	// 主分类:CategoryOrder 中的一个
	Category string `json:"category"`

	// 信号标签:去重后按字典序排列
	Signals []string `json:"signals" gorm:"serializer:json"`

	// 文件树中发现的 SKILL.md 路径
	SkillPaths []string `json:"skill_paths" gorm:"serializer:json"`

	// frontmatter 校验错误 (人类可读)
	ValidationErrors []string `json:"validation_errors" gorm:"serializer:json"`

	// 文件树中的 blob 总数
	FileCount int `json:"file_count"`

	AnalyzedAt time.Time `json:"analyzed_at"`

	// --- AI 增强维度 (可选,Appraiser 填充) ---

	// AI 一句话简介:这个仓库到底是干嘛的
	AISummary string `json:"ai_summary"`

	// AI 风险点评:针对危险信号的详细说明 (用于告警卡片)
	AIRiskNote string `json:"ai_risk_note" gorm:"type:text"`

	// 是否已推送过告警
	AlreadyNotified bool `json:"already_notified"`
}

// HasSignal 判断仓库是否带有指定的信号标签
func (r *Repo) HasSignal(name string) bool {
	for _, s := range r.Signals {
		if s == name {
			return true
		}
	}
	return false
}

// IsRisky 判断是否命中已确认的危险信号 (告警依据;unverified 不触发)
func (r *Repo) IsRisky() bool {
	return r.HasSignal(SignalRmRf) || r.HasSignal(SignalEnvStealer)
}

// LabelSet 一次分析对单个仓库产出的标签集合
type LabelSet struct {
	Category string
	Signals  []string
}

// Labels 取出分析阶段附加到仓库上的标签集合
func (r *Repo) Labels() LabelSet {
	return LabelSet{Category: r.Category, Signals: r.Signals}
}

// Dataset 一轮扫描的完整快照,落盘后可离线重新渲染报告
type Dataset struct {
	Tag        string    `json:"tag"`
	AnalyzedAt time.Time `json:"analyzed_at"`
	Total      int       `json:"total"`
	Repos      []*Repo   `json:"repos"`
}
