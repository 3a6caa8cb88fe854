package util

import (
	"fmt"
	"regexp"
)

// InvariantError reports an internal wiring bug. It is raised with panic and is never
// turned into a ParseError.
type InvariantError struct {
	Msg string
}

func (e *InvariantError) Error() string {
	return "Assertion error: " + e.Msg
}

// Failf panics with an InvariantError.
func Failf(format string, args ...any) {
	panic(&InvariantError{Msg: fmt.Sprintf(format, args...)})
}

// Assertf panics with an InvariantError when cond is false.
func Assertf(cond bool, format string, args ...any) {
	if !cond {
		Failf(format, args...)
	}
}

var unusableInterpolationRegexps = []*regexp.Regexp{
	regexp.MustCompile(`@`),              // control flow reserved symbol
	regexp.MustCompile(`^\s*$`),          // empty
	regexp.MustCompile(`[<>]`),           // html tag
	regexp.MustCompile(`^[{}]$`),         // i18n expansion
	regexp.MustCompile(`(?i)&(#|[a-z])`), // character reference
	regexp.MustCompile(`^//`),            // comment
}

// AssertInterpolationSymbols checks a configured [start, end] interpolation pair.
func AssertInterpolationSymbols(identifier string, value []string) error {
	if value == nil {
		return nil
	}
	if len(value) != 2 {
		return fmt.Errorf("expected '%s' to be an array, [start, end]", identifier)
	}
	start, end := value[0], value[1]
	for _, re := range unusableInterpolationRegexps {
		if re.MatchString(start) || re.MatchString(end) {
			return fmt.Errorf("['%s', '%s'] contains unusable interpolation symbol", start, end)
		}
	}
	return nil
}
