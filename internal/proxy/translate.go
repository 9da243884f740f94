package proxy

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"skill-radar/internal/common"
)

// Source 远端技能的定位信息,TranslateURL 的产物
type Source struct {
	RawURL string // raw.githubusercontent.com 直链
	Owner  string
	Repo   string
	Branch string
	Path   string // 仓库内 SKILL.md 的相对路径
}

var refsHeadsPattern = regexp.MustCompile(`/refs/heads/([^/]+)/`)

// TranslateURL 把任意形态的 GitHub 技能链接翻译成 raw 直链。
// 接受六种形式:
//
//	https://github.com/owner/repo
//	https://github.com/owner/repo/tree/branch
//	https://github.com/owner/repo/tree/branch/path/to/skill
//	https://github.com/owner/repo/blob/branch/path/to/SKILL.md
//	https://raw.githubusercontent.com/owner/repo/branch/path/to/SKILL.md
//	https://raw.githubusercontent.com/owner/repo/refs/heads/branch/path/SKILL.md
//
// 不带路径时默认根目录的 SKILL.md,目录路径自动补上 /SKILL.md
func TranslateURL(input string) (*Source, error) {
	u := strings.TrimRight(strings.TrimSpace(input), "/")
	if u == "" {
		return nil, common.NewError(common.ErrCodeInvalidInput, "URL 不能为空")
	}

	if strings.Contains(u, "raw.githubusercontent.com") {
		return translateRawURL(u)
	}

	if !strings.Contains(u, "github.com") {
		return nil, common.NewError(common.ErrCodeInvalidInput,
			"不支持的 URL,只接受 github.com 或 raw.githubusercontent.com")
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeInvalidInput, "URL 解析失败", err)
	}

	parts := splitPath(parsed.Path)
	if len(parts) < 2 {
		return nil, common.NewError(common.ErrCodeInvalidInput,
			fmt.Sprintf("URL 缺少 owner/repo: %s", input))
	}

	src := &Source{Owner: parts[0], Repo: parts[1]}

	switch {
	case len(parts) <= 2:
		src.Branch = "main"
		src.Path = "SKILL.md"

	case parts[2] == "tree":
		if len(parts) < 4 {
			return nil, common.NewError(common.ErrCodeInvalidInput,
				fmt.Sprintf("tree 链接缺少分支名: %s", input))
		}
		src.Branch = parts[3]
		if len(parts) > 4 {
			src.Path = ensureSkillPath(strings.Join(parts[4:], "/"))
		} else {
			src.Path = "SKILL.md"
		}

	case parts[2] == "blob":
		if len(parts) < 5 {
			return nil, common.NewError(common.ErrCodeInvalidInput,
				fmt.Sprintf("blob 链接缺少分支或文件路径: %s", input))
		}
		src.Branch = parts[3]
		src.Path = ensureSkillPath(strings.Join(parts[4:], "/"))

	default:
		// 形如 github.com/owner/repo/branch,第三段按分支名处理
		src.Branch = parts[2]
		src.Path = "SKILL.md"
	}

	src.RawURL = rawURL(src.Owner, src.Repo, src.Branch, src.Path)
	return src, nil
}

// translateRawURL 处理已经是 raw 直链的输入,顺带把 /refs/heads/ 形式归一化
func translateRawURL(u string) (*Source, error) {
	normalized := refsHeadsPattern.ReplaceAllString(u, "/$1/")

	parsed, err := url.Parse(normalized)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeInvalidInput, "URL 解析失败", err)
	}

	parts := splitPath(parsed.Path)
	if len(parts) < 3 {
		return nil, common.NewError(common.ErrCodeInvalidInput,
			fmt.Sprintf("raw 链接缺少 owner/repo/branch: %s", u))
	}

	src := &Source{Owner: parts[0], Repo: parts[1], Branch: parts[2]}
	if len(parts) > 3 {
		src.Path = ensureSkillPath(strings.Join(parts[3:], "/"))
	} else {
		src.Path = "SKILL.md"
	}

	src.RawURL = rawURL(src.Owner, src.Repo, src.Branch, src.Path)
	return src, nil
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

// ensureSkillPath 目录路径补上 SKILL.md 文件名
func ensureSkillPath(p string) string {
	if strings.HasSuffix(p, "SKILL.md") {
		return p
	}
	return strings.TrimRight(p, "/") + "/SKILL.md"
}

func rawURL(owner, repo, ref, path string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", owner, repo, ref, path)
}
