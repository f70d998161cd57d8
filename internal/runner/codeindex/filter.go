package codeindex

import (
	"path"
	"strings"
)

// defaultExcludes keeps generated and third-party trees out of the index.
var defaultExcludes = []string{
	"vendor/**", "testdata/**", ".git/**", "node_modules/**", "**/*_test.go",
}

// PathFilter accepts or rejects slash-separated paths relative to the scan
// root. Excludes win over includes; with no includes everything not excluded
// is accepted.
type PathFilter struct {
	includes []string
	excludes []string
}

func NewPathFilter(includes, excludes []string) *PathFilter {
	ex := append([]string{}, defaultExcludes...)
	for _, e := range excludes {
		if strings.TrimSpace(e) != "" {
			ex = append(ex, e)
		}
	}
	var in []string
	for _, i := range includes {
		if strings.TrimSpace(i) != "" {
			in = append(in, i)
		}
	}
	return &PathFilter{includes: in, excludes: ex}
}

func (f *PathFilter) Accept(rel string) bool {
	rel = path.Clean(strings.ReplaceAll(rel, "\\", "/"))
	for _, e := range f.excludes {
		if matchGlob(e, rel) {
			return false
		}
	}
	if len(f.includes) == 0 {
		return true
	}
	for _, i := range f.includes {
		if matchGlob(i, rel) {
			return true
		}
	}
	return false
}

// matchGlob matches a slash-separated glob where "**" spans any number of
// path segments and the other wildcards follow path.Match rules per segment.
func matchGlob(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchSegments(pat, segs []string) bool {
	if len(pat) == 0 {
		return len(segs) == 0
	}
	if pat[0] == "**" {
		// ** may consume zero or more segments
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pat[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pat[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], segs[1:])
}
