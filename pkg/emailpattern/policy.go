package emailpattern

import "strings"

// SplitPatterns splits a newline separated pattern list, trimming whitespace and
// dropping blank lines while preserving order.
func SplitPatterns(list string) []string {
	var patterns []string
	for _, line := range strings.Split(list, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// Policy decides whether an email address may self-register. Prohibited patterns
// take precedence over allowed ones and an address matching no allowed pattern is
// denied.
type Policy struct {
	allowed    []*Pattern
	prohibited []*Pattern
}

// NewPolicy compiles the allowed and prohibited pattern lists.
func NewPolicy(allowed, prohibited string) Policy {
	return Policy{
		allowed:    compileAll(SplitPatterns(allowed)),
		prohibited: compileAll(SplitPatterns(prohibited)),
	}
}

func compileAll(globs []string) []*Pattern {
	compiled := make([]*Pattern, 0, len(globs))
	for _, glob := range globs {
		compiled = append(compiled, Compile(glob))
	}
	return compiled
}

// Allows reports whether the candidate address passes the policy.
func (p Policy) Allows(candidate string) bool {
	candidate = strings.ToLower(candidate)

	for _, pattern := range p.prohibited {
		if pattern.Match(candidate) {
			return false
		}
	}
	for _, pattern := range p.allowed {
		if pattern.Match(candidate) {
			return true
		}
	}
	return false
}

// IsAllowed evaluates a candidate against raw allow/deny pattern lists.
func IsAllowed(candidate, allowed, prohibited string) bool {
	return NewPolicy(allowed, prohibited).Allows(candidate)
}
