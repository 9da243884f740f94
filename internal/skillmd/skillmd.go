package skillmd

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/parser"

	"skill-radar/internal/common"
)

// Skill 一个解析后的 SKILL.md:frontmatter 字段加正文
type Skill struct {
	Name        string
	Description string
	License     string
	Metadata    map[string]string // frontmatter 中 metadata: 下的自定义键值
	Body        string            // frontmatter 之后的正文
}

// Parse 解析 SKILL.md 内容。frontmatter 缺失、未闭合或 YAML 非法都返回错误,
// 调用方将其记为校验失败而不是中断分析。
func Parse(content []byte) (*Skill, error) {
	md := goldmark.New(
		goldmark.WithExtensions(meta.Meta),
	)

	var buf bytes.Buffer
	pctx := parser.NewContext()

	if err := md.Convert(content, &buf, parser.WithContext(pctx)); err != nil {
		return nil, common.WrapError(common.ErrCodeValidation, "SKILL.md 解析失败", err)
	}

	fields := meta.Get(pctx)
	if fields == nil {
		return nil, common.NewError(common.ErrCodeValidation, "SKILL.md 缺少 frontmatter 或 YAML 非法")
	}

	skill := &Skill{
		Name:        metaString(fields, "name"),
		Description: metaString(fields, "description"),
		License:     metaString(fields, "license"),
		Metadata:    metaMap(fields, "metadata"),
		Body:        extractBody(string(content)),
	}
	return skill, nil
}

// 名称模式:小写字母数字,中间可用连字符,不能以连字符开头或结尾
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*[a-z0-9]$|^[a-z0-9]$`)

// Validate 按 agentskills.io 规范校验 frontmatter 字段,返回人类可读的错误列表。
// 空列表表示通过。
func (s *Skill) Validate() []string {
	var errs []string

	switch {
	case s.Name == "":
		errs = append(errs, "missing name")
	case !namePattern.MatchString(s.Name):
		errs = append(errs, fmt.Sprintf("invalid name: %q", s.Name))
	case strings.Contains(s.Name, "--"):
		errs = append(errs, fmt.Sprintf("consecutive hyphens in name: %q", s.Name))
	case len(s.Name) > 64:
		errs = append(errs, "name exceeds 64 chars")
	}

	if s.Description == "" {
		errs = append(errs, "missing description")
	} else if utf8.RuneCountInString(s.Description) > 1024 {
		errs = append(errs, "description exceeds 1024 chars")
	}

	return errs
}

// Summary 返回正文中第一段非标题、非表格、非代码栅栏的文字,用作一句话简介
func (s *Skill) Summary() string {
	for _, line := range strings.Split(s.Body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "|") || strings.HasPrefix(line, "```") {
			continue
		}
		return line
	}
	return ""
}

// SplitFrontmatter 把 SKILL.md 拆成 frontmatter 原文 (不含分隔线) 与正文。
// 需要对 frontmatter 做类型化解码的调用方 (如 proxy 元数据) 用它配合 yaml.v3。
func SplitFrontmatter(content string) (frontmatter, body string, err error) {
	if !strings.HasPrefix(content, "---") {
		return "", "", common.NewError(common.ErrCodeValidation, "SKILL.md 缺少 frontmatter")
	}

	lines := strings.Split(content, "\n")
	end := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			end = i
			break
		}
	}
	if end == -1 {
		return "", "", common.NewError(common.ErrCodeValidation, "SKILL.md frontmatter 未闭合")
	}

	frontmatter = strings.Join(lines[1:end], "\n")
	body = strings.TrimLeft(strings.Join(lines[end+1:], "\n"), "\n")
	return frontmatter, body, nil
}

// extractBody 去掉 frontmatter 返回正文;没有合法 frontmatter 时原样返回
func extractBody(content string) string {
	_, body, err := SplitFrontmatter(content)
	if err != nil {
		return content
	}
	return body
}

func metaString(fields map[string]interface{}, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func metaMap(fields map[string]interface{}, key string) map[string]string {
	raw, ok := fields[key].(map[interface{}]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		ks, ok := k.(string)
		if !ok || v == nil {
			continue
		}
		out[ks] = fmt.Sprintf("%v", v)
	}
	return out
}
