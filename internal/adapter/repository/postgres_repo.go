package repository

import (
	"context"
	"fmt"

	"skill-radar/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresRepo 实现 port.Repository,归档每一轮扫描的分析结论
type PostgresRepo struct {
	db *gorm.DB
}

// NewPostgresRepo 初始化数据库连接并自动迁移表结构
func NewPostgresRepo(dsn string) (*PostgresRepo, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	// 自动迁移,repos 表结构跟随 domain.Repo 演进
	if err := db.AutoMigrate(&domain.Repo{}); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %w", err)
	}

	return &PostgresRepo{db: db}, nil
}

// Save 保存或更新仓库 (按 full_name 幂等,重复扫描覆盖上一轮结论)
func (r *PostgresRepo) Save(ctx context.Context, repo *domain.Repo) error {
	return r.db.WithContext(ctx).Save(repo).Error
}

// Exists 检查仓库是否已归档
func (r *PostgresRepo) Exists(ctx context.Context, fullName string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Repo{}).
		Where("full_name = ?", fullName).
		Count(&count).Error
	return count > 0, err
}

// MarkAsNotified 标记已推送,防止同一仓库重复告警
func (r *PostgresRepo) MarkAsNotified(ctx context.Context, fullName string) error {
	return r.db.WithContext(ctx).Model(&domain.Repo{}).
		Where("full_name = ?", fullName).
		Update("already_notified", true).Error
}

// Search 关键词模糊查询
// MVP 简单粗暴:LIKE 扫名字、描述和 AI 点评,star 多的排前面
func (r *PostgresRepo) Search(ctx context.Context, query string) ([]*domain.Repo, error) {
	var repos []*domain.Repo
	likeQuery := "%" + query + "%"
	err := r.db.WithContext(ctx).
		Where("full_name LIKE ? OR description LIKE ? OR ai_summary LIKE ? OR ai_risk_note LIKE ?",
			likeQuery, likeQuery, likeQuery, likeQuery).
		Order("stars DESC").
		Limit(10).
		Find(&repos).Error

	return repos, err
}

// GetAllCandidates 取最近分析过的归档记录,供 AI 问答当语料
func (r *PostgresRepo) GetAllCandidates(ctx context.Context) ([]*domain.Repo, error) {
	var repos []*domain.Repo
	// 上限 100 个,防止 Token 爆炸
	err := r.db.WithContext(ctx).
		Order("analyzed_at desc").
		Limit(100).
		Find(&repos).Error
	return repos, err
}

// GetUnnotifiedRisky 取命中确认级危险信号且尚未推送的仓库。
// 信号列存的是序列化 JSON,风险判断放在内存里做,SQL 只负责缩小候选集
func (r *PostgresRepo) GetUnnotifiedRisky(ctx context.Context) ([]*domain.Repo, error) {
	var repos []*domain.Repo
	err := r.db.WithContext(ctx).
		Where("already_notified = ?", false).
		Order("stars DESC").
		Find(&repos).Error
	if err != nil {
		return nil, err
	}

	risky := make([]*domain.Repo, 0, len(repos))
	for _, repo := range repos {
		if repo.IsRisky() {
			risky = append(risky, repo)
		}
	}
	return risky, nil
}
