package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"skill-radar/internal/common"
)

// GetFileTree 递归拉取仓库完整文件树,只保留 blob 条目的路径
// 404/409 (仓库或分支不存在、空仓库) 返回空切片而不是错误:零文件也是合法的分析输入
func (f *Fetcher) GetFileTree(ctx context.Context, owner, name, branch string) ([]string, error) {
	var paths []string
	err := common.Do(ctx, func() error {
		tree, resp, err := f.client.Git.GetTree(ctx, owner, name, branch, true)
		if err != nil {
			if isMissing(resp) {
				paths = nil
				return nil
			}
			return common.WrapError(common.ErrCodeFetch, fmt.Sprintf("获取 %s/%s 文件树失败", owner, name), err)
		}

		paths = paths[:0]
		for _, entry := range tree.Entries {
			if entry.GetType() == "blob" {
				paths = append(paths, entry.GetPath())
			}
		}
		return nil
	}, common.WithMaxRetries(2), common.WithInitialDelay(200*time.Millisecond), common.WithRetryIf(retryable))
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// GetFileContent 读取仓库内单个文件并解码
func (f *Fetcher) GetFileContent(ctx context.Context, owner, name, path string) (string, error) {
	var content string
	err := common.Do(ctx, func() error {
		file, _, resp, err := f.client.Repositories.GetContents(ctx, owner, name, path, nil)
		if err != nil {
			if isMissing(resp) {
				return common.NewError(common.ErrCodeNotFound, fmt.Sprintf("%s/%s 中不存在 %s", owner, name, path))
			}
			return common.WrapError(common.ErrCodeFetch, fmt.Sprintf("读取 %s/%s 的 %s 失败", owner, name, path), err)
		}
		if file == nil {
			return common.NewError(common.ErrCodeNotFound, fmt.Sprintf("%s 是目录而非文件", path))
		}

		decoded, err := file.GetContent()
		if err != nil {
			return common.WrapError(common.ErrCodeFetch, fmt.Sprintf("解码 %s 内容失败", path), err)
		}
		content = decoded
		return nil
	}, common.WithMaxRetries(2), common.WithInitialDelay(200*time.Millisecond), common.WithRetryIf(retryable))
	if err != nil {
		return "", err
	}
	return content, nil
}

// ResolveCommit 把分支名或引用解析为提交 SHA (代理固定版本用)
func (f *Fetcher) ResolveCommit(ctx context.Context, owner, name, ref string) (string, error) {
	var sha string
	err := common.Do(ctx, func() error {
		got, resp, err := f.client.Repositories.GetCommitSHA1(ctx, owner, name, ref, "")
		if err != nil {
			if isMissing(resp) {
				return common.NewError(common.ErrCodeNotFound, fmt.Sprintf("%s/%s 不存在引用 %s", owner, name, ref))
			}
			return common.WrapError(common.ErrCodeFetch, fmt.Sprintf("解析 %s/%s@%s 失败", owner, name, ref), err)
		}
		sha = got
		return nil
	}, common.WithMaxRetries(2), common.WithInitialDelay(200*time.Millisecond), common.WithRetryIf(retryable))
	if err != nil {
		return "", err
	}
	return sha, nil
}

// FetchRaw 直接下载 raw.githubusercontent.com 上的文件内容
func (f *Fetcher) FetchRaw(ctx context.Context, url string) (string, error) {
	var content string
	err := common.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return common.WrapError(common.ErrCodeInvalidInput, "构造请求失败", err)
		}

		resp, err := f.http.Do(req)
		if err != nil {
			return common.WrapError(common.ErrCodeFetch, fmt.Sprintf("下载 %s 失败", url), err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return common.NewError(common.ErrCodeNotFound, fmt.Sprintf("远端文件不存在: %s", url))
		}
		if resp.StatusCode != http.StatusOK {
			return common.NewError(common.ErrCodeFetch, fmt.Sprintf("下载 %s 返回状态码 %d", url, resp.StatusCode))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return common.WrapError(common.ErrCodeFetch, fmt.Sprintf("读取 %s 响应失败", url), err)
		}
		content = string(body)
		return nil
	}, common.WithMaxRetries(2), common.WithInitialDelay(200*time.Millisecond), common.WithRetryIf(retryable))
	if err != nil {
		return "", err
	}
	return content, nil
}
