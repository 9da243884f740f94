package filter

import (
	"sort"

	"skill-radar/internal/domain"
)

// Dedup 按 full_name 去重,保留首次出现的条目
// 跨页搜索偶尔会返回重复仓库,入库前必须去掉
func Dedup(repos []*domain.Repo) []*domain.Repo {
	seen := make(map[string]struct{}, len(repos))
	var out []*domain.Repo

	for _, repo := range repos {
		if _, ok := seen[repo.FullName]; ok {
			continue
		}
		seen[repo.FullName] = struct{}{}
		out = append(out, repo)
	}

	return out
}

// SortByStars 按 star 降序排序,同 star 按 full_name 升序
// 返回新切片,不改动入参;相同输入永远产出相同顺序
func SortByStars(repos []*domain.Repo) []*domain.Repo {
	sorted := make([]*domain.Repo, len(repos))
	copy(sorted, repos)

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Stars != sorted[j].Stars {
			return sorted[i].Stars > sorted[j].Stars
		}
		return sorted[i].FullName < sorted[j].FullName
	})

	return sorted
}

// Truncate 截断到前 max 条;max <= 0 表示不限制
func Truncate(repos []*domain.Repo, max int) []*domain.Repo {
	if max <= 0 || len(repos) <= max {
		return repos
	}
	return repos[:max]
}

// Normalize 对搜索结果做标准化:去重、排序、截断
func Normalize(repos []*domain.Repo, max int) []*domain.Repo {
	return Truncate(SortByStars(Dedup(repos)), max)
}
