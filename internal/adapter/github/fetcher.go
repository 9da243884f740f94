package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"skill-radar/internal/adapter/filter"
	"skill-radar/internal/common"
	"skill-radar/internal/domain"

	"github.com/google/go-github/v53/github"
	"golang.org/x/oauth2"
)

// Fetcher 实现 port.Scouter / port.TreeReader / port.CommitResolver / port.RawFetcher
type Fetcher struct {
	client *github.Client
	http   *http.Client // raw.githubusercontent.com 走普通 HTTP,不经 API 客户端
}

// NewFetcher 初始化 GitHub 客户端
// token: GitHub Personal Access Token (空字符串则匿名访问,限制 60次/小时)
func NewFetcher(token string) *Fetcher {
	var client *github.Client

	if token == "" {
		client = github.NewClient(nil)
	} else {
		ctx := context.Background()
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc := oauth2.NewClient(ctx, ts)
		client = github.NewClient(tc)
	}

	return &Fetcher{
		client: client,
		http:   &http.Client{Timeout: 20 * time.Second},
	}
}

// NewFetcherWithClient 用调用方自己构造的 HTTP 客户端初始化 (自定义超时、代理等)
func NewFetcherWithClient(hc *http.Client) *Fetcher {
	return &Fetcher{
		client: github.NewClient(hc),
		http:   hc,
	}
}

// ScoutTopic 按主题搜索仓库
// star 门槛直接拼进查询条件,在数据源侧过滤,避免抓回来再扔掉
func (f *Fetcher) ScoutTopic(ctx context.Context, topic string, minStars, maxRepos int) ([]*domain.Repo, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, common.NewError(common.ErrCodeInvalidInput, "topic 不能为空")
	}
	if maxRepos <= 0 {
		return nil, common.NewError(common.ErrCodeInvalidInput, "maxRepos 必须大于 0")
	}
	if minStars < 0 {
		return nil, common.NewError(common.ErrCodeInvalidInput, "minStars 不能为负数")
	}

	query := fmt.Sprintf("topic:%s", topic)
	if minStars > 0 {
		query += fmt.Sprintf(" stars:>=%d", minStars)
	}

	perPage := 100
	if maxRepos < perPage {
		perPage = maxRepos
	}
	opts := &github.SearchOptions{
		Sort:  "stars",
		Order: "desc",
		ListOptions: github.ListOptions{
			PerPage: perPage,
		},
	}

	var repos []*domain.Repo
	for {
		result, resp, err := f.client.Search.Repositories(ctx, query, opts)
		if err != nil {
			return nil, mapAPIError(err)
		}

		for _, item := range result.Repositories {
			repos = append(repos, convertRepo(item))
		}

		if len(repos) >= maxRepos || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	// 跨页结果可能有重复,统一去重、排序、截断后再交给下游
	return filter.Normalize(repos, maxRepos), nil
}

// GetRepo 获取单个仓库的元数据 (调试模式用)
func (f *Fetcher) GetRepo(ctx context.Context, owner, name string) (*domain.Repo, error) {
	item, resp, err := f.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		if isMissing(resp) {
			return nil, common.NewError(common.ErrCodeNotFound, fmt.Sprintf("仓库 %s/%s 不存在", owner, name))
		}
		return nil, mapAPIError(err)
	}
	return convertRepo(item), nil
}

// convertRepo 把 GitHub 的数据结构转换为 Domain 实体 (DTO 转换)
func convertRepo(item *github.Repository) *domain.Repo {
	branch := item.GetDefaultBranch()
	if branch == "" {
		branch = "main"
	}

	return &domain.Repo{
		FullName:      item.GetFullName(),
		Owner:         item.GetOwner().GetLogin(),
		Name:          item.GetName(),
		URL:           item.GetHTMLURL(),
		Description:   item.GetDescription(),
		Stars:         item.GetStargazersCount(),
		Forks:         item.GetForksCount(),
		Language:      item.GetLanguage(),
		Topics:        item.Topics,
		Archived:      item.GetArchived(),
		License:       item.GetLicense().GetSPDXID(),
		DefaultBranch: branch,
		CreatedAt:     item.GetCreatedAt().Time,
		UpdatedAt:     item.GetUpdatedAt().Time,
	}
}

// mapAPIError 区分配额耗尽与普通失败;限流错误携带重试提示
func mapAPIError(err error) error {
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		retryAfter := time.Until(rle.Rate.Reset.Time)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &common.RateLimitError{Message: "GitHub 搜索配额耗尽", RetryAfter: retryAfter, Err: err}
	}

	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		var retryAfter time.Duration
		if abuse.RetryAfter != nil {
			retryAfter = *abuse.RetryAfter
		}
		return &common.RateLimitError{Message: "GitHub 触发二级限流", RetryAfter: retryAfter, Err: err}
	}

	return common.WrapError(common.ErrCodeFetch, "GitHub API 调用失败", err)
}

// isMissing 404/409:仓库或分支不存在、空仓库
func isMissing(resp *github.Response) bool {
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusConflict
}

// retryable 网络类错误可重试;限流、资源不存在、参数错误不重试
func retryable(err error) bool {
	if common.IsRateLimit(err) {
		return false
	}
	var rle *github.RateLimitError
	if errors.As(err, &rle) {
		return false
	}
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &abuse) {
		return false
	}
	if common.IsCode(err, common.ErrCodeNotFound) || common.IsCode(err, common.ErrCodeInvalidInput) {
		return false
	}
	return true
}
