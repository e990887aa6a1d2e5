package riakcache

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// Matcher selects keys for DeleteMatched. *regexp.Regexp satisfies it.
// A nil Matcher, or one holding a nil pointer or func, matches nothing.
type Matcher interface {
	MatchString(key string) bool
}

// MatchFunc adapts a plain function to Matcher.
type MatchFunc func(key string) bool

func (f MatchFunc) MatchString(key string) bool { return f(key) }

// Regexp compiles expr. Note that an unanchored expression matches anywhere
// in the key.
func Regexp(expr string) (Matcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	return re, nil
}

// Glob compiles a shell-style pattern ("views/*", "session:{1,2}?").
// With separators, '*' does not cross them.
func Glob(pattern string, separators ...rune) (Matcher, error) {
	g, err := glob.Compile(pattern, separators...)
	if err != nil {
		return nil, err
	}
	return MatchFunc(g.Match), nil
}

// Prefix matches keys starting with p.
func Prefix(p string) Matcher {
	return MatchFunc(func(k string) bool { return strings.HasPrefix(k, p) })
}

// isNil reports a nil Matcher, including a typed nil such as
// (*regexp.Regexp)(nil), which would panic on MatchString.
func isNil(m Matcher) bool {
	if m == nil {
		return true
	}
	switch v := reflect.ValueOf(m); v.Kind() {
	case reflect.Pointer, reflect.Func, reflect.Map, reflect.Interface:
		return v.IsNil()
	}
	return false
}
