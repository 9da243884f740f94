package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"skill-radar/internal/common"

	"github.com/google/go-github/v53/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetFileTree(t *testing.T) {
	t.Run("成功列出 blob 路径", func(t *testing.T) {
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/repos/anthropics/skills/git/trees/main", r.URL.Path)
			assert.Equal(t, "1", r.URL.Query().Get("recursive"))

			tree := &github.Tree{
				SHA: github.String("abc123"),
				Entries: []*github.TreeEntry{
					{Path: github.String("SKILL.md"), Type: github.String("blob")},
					{Path: github.String("scripts"), Type: github.String("tree")},
					{Path: github.String("scripts/run.sh"), Type: github.String("blob")},
					{Path: github.String("references/guide.md"), Type: github.String("blob")},
				},
			}
			json.NewEncoder(w).Encode(tree)
		})
		defer server.Close()

		paths, err := fetcher.GetFileTree(context.Background(), "anthropics", "skills", "main")

		require.NoError(t, err)
		assert.Equal(t, []string{"SKILL.md", "scripts/run.sh", "references/guide.md"}, paths)
	})

	t.Run("空仓库返回空切片", func(t *testing.T) {
		hits := 0
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"message":"Git Repository is empty."}`)
		})
		defer server.Close()

		paths, err := fetcher.GetFileTree(context.Background(), "acme", "empty", "main")

		require.NoError(t, err)
		assert.Empty(t, paths)
		assert.Equal(t, 1, hits)
	})

	t.Run("分支不存在返回空切片", func(t *testing.T) {
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		})
		defer server.Close()

		paths, err := fetcher.GetFileTree(context.Background(), "acme", "repo", "gone-branch")

		require.NoError(t, err)
		assert.Empty(t, paths)
	})

	t.Run("服务端错误耗尽重试后报错", func(t *testing.T) {
		hits := 0
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"message":"boom"}`)
		})
		defer server.Close()

		paths, err := fetcher.GetFileTree(context.Background(), "acme", "repo", "main")

		assert.Nil(t, paths)
		require.Error(t, err)
		assert.True(t, common.IsCode(err, common.ErrCodeFetch))
		assert.Equal(t, 3, hits, "瞬时错误应重试")
	})
}

func TestGetFileContent(t *testing.T) {
	t.Run("成功读取并解码", func(t *testing.T) {
		content := "---\nname: pdf-tools\ndescription: 处理 PDF 的技能\n---\n\n# PDF Tools\n"
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/repos/anthropics/skills/contents/pdf/SKILL.md", r.URL.Path)

			encoded := base64.StdEncoding.EncodeToString([]byte(content))
			fmt.Fprintf(w, `{"type":"file","name":"SKILL.md","path":"pdf/SKILL.md","encoding":"base64","content":%q}`, encoded)
		})
		defer server.Close()

		got, err := fetcher.GetFileContent(context.Background(), "anthropics", "skills", "pdf/SKILL.md")

		require.NoError(t, err)
		assert.Equal(t, content, got)
	})

	t.Run("文件不存在不重试", func(t *testing.T) {
		hits := 0
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		})
		defer server.Close()

		got, err := fetcher.GetFileContent(context.Background(), "acme", "repo", "missing.md")

		assert.Empty(t, got)
		assert.True(t, common.IsCode(err, common.ErrCodeNotFound))
		assert.Equal(t, 1, hits)
	})

	t.Run("路径指向目录", func(t *testing.T) {
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[{"type":"file","name":"SKILL.md","path":"pdf/SKILL.md"}]`)
		})
		defer server.Close()

		got, err := fetcher.GetFileContent(context.Background(), "acme", "repo", "pdf")

		assert.Empty(t, got)
		assert.True(t, common.IsCode(err, common.ErrCodeNotFound))
	})
}

func TestResolveCommit(t *testing.T) {
	t.Run("解析分支为提交 SHA", func(t *testing.T) {
		sha := "0a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b"
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/repos/anthropics/skills/commits/main", r.URL.Path)
			fmt.Fprint(w, sha)
		})
		defer server.Close()

		got, err := fetcher.ResolveCommit(context.Background(), "anthropics", "skills", "main")

		require.NoError(t, err)
		assert.Equal(t, sha, got)
	})

	t.Run("引用不存在", func(t *testing.T) {
		hits := 0
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"message":"Not Found"}`)
		})
		defer server.Close()

		got, err := fetcher.ResolveCommit(context.Background(), "acme", "repo", "no-such-ref")

		assert.Empty(t, got)
		assert.True(t, common.IsCode(err, common.ErrCodeNotFound))
		assert.Equal(t, 1, hits)
	})
}

func TestFetchRaw(t *testing.T) {
	t.Run("成功下载文件内容", func(t *testing.T) {
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/anthropics/skills/main/SKILL.md", r.URL.Path)
			fmt.Fprint(w, "---\nname: skills\n---\n")
		})
		defer server.Close()

		got, err := fetcher.FetchRaw(context.Background(), server.URL+"/anthropics/skills/main/SKILL.md")

		require.NoError(t, err)
		assert.Equal(t, "---\nname: skills\n---\n", got)
	})

	t.Run("远端文件不存在不重试", func(t *testing.T) {
		hits := 0
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusNotFound)
		})
		defer server.Close()

		got, err := fetcher.FetchRaw(context.Background(), server.URL+"/gone")

		assert.Empty(t, got)
		assert.True(t, common.IsCode(err, common.ErrCodeNotFound))
		assert.Equal(t, 1, hits)
	})

	t.Run("服务端错误耗尽重试后报错", func(t *testing.T) {
		hits := 0
		server, fetcher := setupMockGitHubServer(t, func(w http.ResponseWriter, r *http.Request) {
			hits++
			w.WriteHeader(http.StatusBadGateway)
		})
		defer server.Close()

		got, err := fetcher.FetchRaw(context.Background(), server.URL+"/flaky")

		assert.Empty(t, got)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
		assert.Equal(t, 3, hits)
	})
}
