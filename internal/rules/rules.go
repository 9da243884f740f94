package rules

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"skill-radar/internal/common"
)

// 置信度两级
const (
	TierConfirmed  = "confirmed"
	TierUnverified = "unverified"
)

// Rule 一条安全检测规则:模式命中即发射对应标签
type Rule struct {
	Name    string `yaml:"name"`    // 规则名,用于日志与调试
	Risk    string `yaml:"risk"`    // 风险类型,如 rm-rf、env-stealer
	Tier    string `yaml:"tier"`    // confirmed 或 unverified
	Pattern string `yaml:"pattern"` // RE2 正则
}

// Label 返回规则命中时发射的信号标签
func (r Rule) Label() string {
	if r.Tier == TierUnverified {
		return r.Risk + "?"
	}
	return r.Risk
}

type compiled struct {
	Rule
	re *regexp.Regexp
}

// Set 编译后的只读规则表,可在多个 goroutine 间共享
type Set struct {
	rules []compiled
}

//go:embed rules.yaml
var defaultYAML []byte

// Default 返回内置规则表
func Default() *Set {
	set, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return set
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// Parse 解析并编译规则表
func Parse(data []byte) (*Set, error) {
	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, common.WrapError(common.ErrCodeInvalidInput, "规则表解析失败", err)
	}
	if len(rf.Rules) == 0 {
		return nil, common.NewError(common.ErrCodeInvalidInput, "规则表为空")
	}

	set := &Set{rules: make([]compiled, 0, len(rf.Rules))}
	for _, r := range rf.Rules {
		if r.Risk == "" {
			return nil, common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("规则 %q 缺少 risk", r.Name))
		}
		if r.Tier != TierConfirmed && r.Tier != TierUnverified {
			return nil, common.NewError(common.ErrCodeInvalidInput, fmt.Sprintf("规则 %q 的 tier 非法: %q", r.Name, r.Tier))
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, common.WrapError(common.ErrCodeInvalidInput, fmt.Sprintf("规则 %q 的正则编译失败", r.Name), err)
		}
		set.rules = append(set.rules, compiled{Rule: r, re: re})
	}
	return set, nil
}

// LoadFile 从外部文件加载规则表 (供 -rules 覆盖内置表)
func LoadFile(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, common.WrapError(common.ErrCodeInvalidInput, "规则文件读取失败", err)
	}
	return Parse(data)
}

// Len 返回规则条数
func (s *Set) Len() int { return len(s.rules) }

// Scan 对一段脚本内容运行全部规则,返回命中的标签。
// 只做匹配不做压制;压制由 Reconcile 统一处理。
func (s *Set) Scan(content string) []string {
	seen := make(map[string]bool)
	var labels []string
	for _, c := range s.rules {
		if c.re.MatchString(content) {
			label := c.Label()
			if !seen[label] {
				seen[label] = true
				labels = append(labels, label)
			}
		}
	}
	sort.Strings(labels)
	return labels
}

// Matches 返回命中的规则本身,调试模式用
func (s *Set) Matches(content string) []Rule {
	var hit []Rule
	for _, c := range s.rules {
		if c.re.MatchString(content) {
			hit = append(hit, c.Rule)
		}
	}
	return hit
}

// Reconcile 压制处理:同一风险类型的 confirmed 与 unverified 标签同时存在时,
// 仅保留 confirmed。返回结果去重并按字典序排列。
func Reconcile(labels []string) []string {
	present := make(map[string]bool, len(labels))
	for _, l := range labels {
		present[l] = true
	}
	out := make([]string, 0, len(present))
	for l := range present {
		if strings.HasSuffix(l, "?") && present[strings.TrimSuffix(l, "?")] {
			continue
		}
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
