// Package rules implements the ordered include/exclude rule engine that
// decides whether a local path participates in sync.
package rules

import (
	"fmt"
	"path/filepath"
	"regexp"

	"github.com/quasiyoke/rammingen/internal/pathutil"
)

// Kind is the finite tag distinguishing the rule variants. Rules are a
// closed set so evaluation stays branch-predictable and a rule list is
// trivially serializable to and from config.
type Kind int

const (
	// KindNameEquals matches when the final path segment equals Value.
	KindNameEquals Kind = iota
	// KindNameMatches matches when the final path segment matches the
	// compiled Regex.
	KindNameMatches
	// KindPathEquals matches when the full local path equals Value.
	KindPathEquals
	// KindPathMatches matches when the full local path matches the
	// compiled Regex.
	KindPathMatches
)

// Rule is one exclusion predicate. Exactly one of Value or Regex is set,
// depending on Kind.
type Rule struct {
	Kind  Kind
	Value string         // for KindNameEquals, KindPathEquals
	Regex *regexp.Regexp // for KindNameMatches, KindPathMatches
}

// NameEquals builds a Rule matching a literal final path segment.
func NameEquals(name string) Rule { return Rule{Kind: KindNameEquals, Value: name} }

// PathEquals builds a Rule matching a literal absolute local path.
func PathEquals(path string) Rule { return Rule{Kind: KindPathEquals, Value: path} }

// NameMatches compiles pattern and builds a Rule matching it against the
// final path segment.
func NameMatches(pattern string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("rules: compiling NameMatches %q: %w", pattern, err)
	}

	return Rule{Kind: KindNameMatches, Regex: re}, nil
}

// PathMatches compiles pattern and builds a Rule matching it against the
// full absolute local path.
func PathMatches(pattern string) (Rule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("rules: compiling PathMatches %q: %w", pattern, err)
	}

	return Rule{Kind: KindPathMatches, Regex: re}, nil
}

// matches reports whether r excludes path.
func (r Rule) matches(path pathutil.SanitizedLocalPath) bool {
	switch r.Kind {
	case KindNameEquals:
		return filepath.Base(path.String()) == r.Value
	case KindNameMatches:
		return r.Regex.MatchString(filepath.Base(path.String()))
	case KindPathEquals:
		return path.String() == r.Value
	case KindPathMatches:
		return r.Regex.MatchString(path.String())
	default:
		return false
	}
}

// Rules composes an ordered list of rule lists — global rules evaluated
// first, then per-mount rules. It is a pure, deterministic function of
// its inputs.
type Rules struct {
	lists [][]Rule
}

// New builds a Rules context from ordered rule lists (global first, then
// mount-specific). Passing zero lists is valid and excludes nothing.
func New(lists ...[]Rule) *Rules {
	return &Rules{lists: lists}
}

// IsExcluded reports whether any rule in any list matches path. A nil
// *Rules (a MountPoint built without any Rules) excludes nothing.
func (r *Rules) IsExcluded(path pathutil.SanitizedLocalPath) bool {
	if r == nil {
		return false
	}

	for _, list := range r.lists {
		for _, rule := range list {
			if rule.matches(path) {
				return true
			}
		}
	}

	return false
}
