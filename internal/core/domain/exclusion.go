package domain

import (
	"path"
	"path/filepath"
	"strings"
)

// MandatoryExclusions are part of every ExclusionSet. Dependency trees and
// earlier archives would otherwise make snapshots unbounded or self-referential.
var MandatoryExclusions = []string{
	"node_modules",
	"vendor",
	".git",
	"*" + ArchiveExtension,
	OperatorArchivePrefix + "*",
	PreRestoreArchivePrefix + "*",
}

// ExclusionSet is an ordered list of patterns tested against slash-separated
// paths relative to a source root.
//
// A pattern without a slash matches any single path component ("node_modules"
// excludes every node_modules directory). A pattern with a slash is anchored
// at the root and matches the path or any of its ancestors ("storage/logs"
// excludes the directory and everything below it). Both forms accept
// path.Match globs.
type ExclusionSet struct {
	patterns []string
}

func NewExclusionSet(patterns ...string) ExclusionSet {
	var set ExclusionSet
	return set.Add(MandatoryExclusions...).Add(patterns...)
}

// Add returns a copy of the set extended with patterns. Duplicates are dropped.
func (e ExclusionSet) Add(patterns ...string) ExclusionSet {
	out := ExclusionSet{patterns: append([]string(nil), e.patterns...)}
	seen := make(map[string]bool, len(out.patterns))
	for _, p := range out.patterns {
		seen[p] = true
	}
	for _, p := range patterns {
		p = normalizePattern(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out.patterns = append(out.patterns, p)
	}
	return out
}

func (e ExclusionSet) Patterns() []string {
	return append([]string(nil), e.patterns...)
}

// Matches reports whether rel, or any directory above it, is excluded.
func (e ExclusionSet) Matches(rel string) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}
	parts := strings.Split(rel, "/")

	for _, pattern := range e.patterns {
		if strings.Contains(pattern, "/") {
			for i := range parts {
				if ok, _ := path.Match(pattern, strings.Join(parts[:i+1], "/")); ok {
					return true
				}
			}
			continue
		}
		for _, part := range parts {
			if ok, _ := path.Match(pattern, part); ok {
				return true
			}
		}
	}
	return false
}

func normalizePattern(p string) string {
	p = strings.TrimSpace(filepath.ToSlash(p))
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	p = strings.TrimSuffix(p, "/*")
	p = strings.TrimSuffix(p, "/")
	return p
}
