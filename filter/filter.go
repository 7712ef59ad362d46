// Package filter applies regex allow/block lists to raw messages before they
// are decoded and indexed. Include and exclude modes are mutually exclusive.
package filter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Options captures the filtering configuration.
type Options struct {
	IncludeHeader []string
	IncludeBody   []string
	ExcludeHeader []string
	ExcludeBody   []string
}

// Active reports whether any pattern is configured.
func (o Options) Active() bool {
	return len(o.IncludeHeader)+len(o.IncludeBody)+len(o.ExcludeHeader)+len(o.ExcludeBody) > 0
}

type rule struct {
	pattern string
	re      *regexp.Regexp
	hits    int
}

// Filter holds compiled patterns and per-pattern hit counts.
type Filter struct {
	include bool

	mu     sync.Mutex
	header []*rule
	body   []*rule
}

// New compiles the configured patterns. Include and exclude patterns cannot
// be combined.
func New(opts Options) (*Filter, error) {
	includeActive := len(opts.IncludeHeader) > 0 || len(opts.IncludeBody) > 0
	excludeActive := len(opts.ExcludeHeader) > 0 || len(opts.ExcludeBody) > 0
	if includeActive && excludeActive {
		return nil, fmt.Errorf("include and exclude filters are mutually exclusive")
	}

	f := &Filter{include: includeActive}
	headerPatterns, bodyPatterns := opts.ExcludeHeader, opts.ExcludeBody
	if includeActive {
		headerPatterns, bodyPatterns = opts.IncludeHeader, opts.IncludeBody
	}

	var err error
	if f.header, err = compile(headerPatterns); err != nil {
		return nil, fmt.Errorf("header pattern: %w", err)
	}
	if f.body, err = compile(bodyPatterns); err != nil {
		return nil, fmt.Errorf("body pattern: %w", err)
	}
	return f, nil
}

// Allows reports whether a message with the given raw header and body passes
// the filter. With no patterns configured every message passes.
func (f *Filter) Allows(header, body []byte) bool {
	if len(f.header) == 0 && len(f.body) == 0 {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	matched := matchAny(f.header, header) || matchAny(f.body, body)
	if f.include {
		return matched
	}
	return !matched
}

// Hits returns the number of matches per configured pattern.
func (f *Filter) Hits() map[string]int {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make(map[string]int, len(f.header)+len(f.body))
	for _, r := range f.header {
		out[r.pattern] += r.hits
	}
	for _, r := range f.body {
		out[r.pattern] += r.hits
	}
	return out
}

// SplitRawMessage splits a raw message into header and body at the first
// blank line.
func SplitRawMessage(raw []byte) (header, body []byte) {
	if len(raw) == 0 {
		return nil, nil
	}
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}
	return raw, nil
}

func compile(patterns []string) ([]*rule, error) {
	rules := make([]*rule, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", pattern, err)
		}
		rules = append(rules, &rule{pattern: pattern, re: re})
	}
	return rules, nil
}

func matchAny(rules []*rule, text []byte) bool {
	matched := false
	for _, r := range rules {
		if r.re.Match(text) {
			r.hits++
			matched = true
		}
	}
	return matched
}
