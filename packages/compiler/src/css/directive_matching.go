package css

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Submatch indices of selectorRegexp.
const (
	selectorNot        = 1
	selectorTag        = 2
	selectorPrefix     = 3
	selectorAttribute  = 4
	selectorValueDQ    = 5
	selectorValueSQ    = 6
	selectorValueBare  = 7
	selectorNotEnd     = 8
	selectorSeparator  = 9
	selectorGroupCount = 10
)

// RE2 has no backreferences, so each quote style gets its own value group.
var selectorRegexp = regexp.MustCompile(
	`(\:not\()|` +
		`(([\.\#]?)[-\w]+)|` +
		`(?:\[([-.\w*\\$]+)(?:=(?:"([^"]*)"|'([^']*)'|([^\]\s"']+)))?\])|` +
		`(\))|` +
		`(\s*,\s*)`,
)

var (
	ErrNestedNot       = errors.New("nesting :not in a selector is not allowed")
	ErrMultipleInNot   = errors.New("multiple selectors in :not are not supported")
	ErrUnescapedDollar = errors.New(`unescaped "$" is not supported, please escape with "\$"`)
)

// CssSelector is one compound selector: an element name, classes, attributes and
// :not() parts. It also describes a template element when matching. Attrs holds
// name/value pairs flattened.
type CssSelector struct {
	Element      string
	ClassNames   []string
	Attrs        []string
	NotSelectors []*CssSelector
}

func NewCssSelector() *CssSelector {
	return &CssSelector{}
}

// ParseCssSelector parses a comma separated selector list.
func ParseCssSelector(selector string) ([]*CssSelector, error) {
	var results []*CssSelector
	addResult := func(s *CssSelector) {
		if len(s.NotSelectors) > 0 && s.Element == "" && len(s.ClassNames) == 0 && len(s.Attrs) == 0 {
			s.Element = "*"
		}
		results = append(results, s)
	}

	cssSelector := NewCssSelector()
	current := cssSelector
	inNot := false
	for _, match := range selectorRegexp.FindAllStringSubmatch(selector, -1) {
		if len(match) < selectorGroupCount {
			continue
		}
		if match[selectorNot] != "" {
			if inNot {
				return nil, ErrNestedNot
			}
			inNot = true
			current = NewCssSelector()
			cssSelector.NotSelectors = append(cssSelector.NotSelectors, current)
		}
		if tag := match[selectorTag]; tag != "" {
			switch match[selectorPrefix] {
			case "#":
				current.AddAttribute("id", tag[1:])
			case ".":
				current.AddClassName(tag[1:])
			default:
				current.SetElement(tag)
			}
		}
		if attr := match[selectorAttribute]; attr != "" {
			name, err := unescapeAttribute(attr)
			if err != nil {
				return nil, fmt.Errorf("attribute selector %q: %w", attr, err)
			}
			value := match[selectorValueDQ] + match[selectorValueSQ] + match[selectorValueBare]
			current.AddAttribute(name, value)
		}
		if match[selectorNotEnd] != "" {
			inNot = false
			current = cssSelector
		}
		if match[selectorSeparator] != "" {
			if inNot {
				return nil, ErrMultipleInNot
			}
			addResult(cssSelector)
			cssSelector = NewCssSelector()
			current = cssSelector
		}
	}
	addResult(cssSelector)
	return results, nil
}

func unescapeAttribute(attr string) (string, error) {
	var sb strings.Builder
	escaping := false
	for i := 0; i < len(attr); i++ {
		ch := attr[i]
		if ch == '\\' {
			escaping = true
			continue
		}
		if ch == '$' && !escaping {
			return "", ErrUnescapedDollar
		}
		escaping = false
		sb.WriteByte(ch)
	}
	return sb.String(), nil
}

func escapeAttribute(attr string) string {
	return strings.ReplaceAll(strings.ReplaceAll(attr, `\`, `\\`), "$", `\$`)
}

func (cs *CssSelector) IsElementSelector() bool {
	return cs.Element != "" && len(cs.ClassNames) == 0 && len(cs.Attrs) == 0 && len(cs.NotSelectors) == 0
}

func (cs *CssSelector) SetElement(element string) {
	cs.Element = element
}

// AddAttribute records an attribute. Values compare case-insensitively.
func (cs *CssSelector) AddAttribute(name, value string) {
	cs.Attrs = append(cs.Attrs, name, strings.ToLower(value))
}

func (cs *CssSelector) AddClassName(name string) {
	cs.ClassNames = append(cs.ClassNames, strings.ToLower(name))
}

// GetAttrs returns the attributes with the classes folded into a "class" pair.
func (cs *CssSelector) GetAttrs() []string {
	var result []string
	if len(cs.ClassNames) > 0 {
		result = append(result, "class", strings.Join(cs.ClassNames, " "))
	}
	return append(result, cs.Attrs...)
}

func (cs *CssSelector) String() string {
	var sb strings.Builder
	sb.WriteString(cs.Element)
	for _, klass := range cs.ClassNames {
		sb.WriteString("." + klass)
	}
	for i := 0; i+1 < len(cs.Attrs); i += 2 {
		name, value := escapeAttribute(cs.Attrs[i]), cs.Attrs[i+1]
		if value != "" {
			fmt.Fprintf(&sb, "[%s=%s]", name, value)
		} else {
			fmt.Fprintf(&sb, "[%s]", name)
		}
	}
	for _, not := range cs.NotSelectors {
		fmt.Fprintf(&sb, ":not(%s)", not)
	}
	return sb.String()
}

// SelectorMatcher indexes selectors by element, class and attribute so that matching a
// node only touches the selectors that could apply to it.
type SelectorMatcher[T any] struct {
	elementMap          map[string][]*selectorContext[T]
	elementPartialMap   map[string]*SelectorMatcher[T]
	classMap            map[string][]*selectorContext[T]
	classPartialMap     map[string]*SelectorMatcher[T]
	attrValueMap        map[string]map[string][]*selectorContext[T]
	attrValuePartialMap map[string]map[string]*SelectorMatcher[T]
	listContexts        []*selectorListContext
	// seq is shared with nested matchers and numbers selectables in insertion order.
	seq                 *int
}

func NewSelectorMatcher[T any]() *SelectorMatcher[T] {
	return newSelectorMatcher[T](new(int))
}

func newSelectorMatcher[T any](seq *int) *SelectorMatcher[T] {
	return &SelectorMatcher[T]{
		elementMap:          map[string][]*selectorContext[T]{},
		elementPartialMap:   map[string]*SelectorMatcher[T]{},
		classMap:            map[string][]*selectorContext[T]{},
		classPartialMap:     map[string]*SelectorMatcher[T]{},
		attrValueMap:        map[string]map[string][]*selectorContext[T]{},
		attrValuePartialMap: map[string]map[string]*SelectorMatcher[T]{},
		seq:                 seq,
	}
}

// AddSelectables registers a selector list. A list matches a node at most once.
func (sm *SelectorMatcher[T]) AddSelectables(cssSelectors []*CssSelector, value T) {
	var listContext *selectorListContext
	if len(cssSelectors) > 1 {
		listContext = &selectorListContext{}
		sm.listContexts = append(sm.listContexts, listContext)
	}
	*sm.seq++
	for _, s := range cssSelectors {
		sm.addSelectable(s, &selectorContext[T]{
			selector:    s,
			value:       value,
			listContext: listContext,
			seq:         *sm.seq,
		})
	}
}

func (sm *SelectorMatcher[T]) addSelectable(s *CssSelector, selectable *selectorContext[T]) {
	matcher := sm
	if s.Element != "" {
		if len(s.Attrs) == 0 && len(s.ClassNames) == 0 {
			matcher.elementMap[s.Element] = append(matcher.elementMap[s.Element], selectable)
			return
		}
		matcher = matcher.partial(matcher.elementPartialMap, s.Element)
	}

	for i, className := range s.ClassNames {
		if len(s.Attrs) == 0 && i == len(s.ClassNames)-1 {
			matcher.classMap[className] = append(matcher.classMap[className], selectable)
			return
		}
		matcher = matcher.partial(matcher.classPartialMap, className)
	}

	for i := 0; i+1 < len(s.Attrs); i += 2 {
		name, value := s.Attrs[i], s.Attrs[i+1]
		if i == len(s.Attrs)-2 {
			values := matcher.attrValueMap[name]
			if values == nil {
				values = map[string][]*selectorContext[T]{}
				matcher.attrValueMap[name] = values
			}
			values[value] = append(values[value], selectable)
			return
		}
		partials := matcher.attrValuePartialMap[name]
		if partials == nil {
			partials = map[string]*SelectorMatcher[T]{}
			matcher.attrValuePartialMap[name] = partials
		}
		matcher = matcher.partial(partials, value)
	}
}

func (sm *SelectorMatcher[T]) partial(m map[string]*SelectorMatcher[T], name string) *SelectorMatcher[T] {
	matcher, ok := m[name]
	if !ok {
		matcher = newSelectorMatcher[T](sm.seq)
		m[name] = matcher
	}
	return matcher
}

// Match calls fn for every registered selector matching the node described by s and
// reports whether any matched. fn may be nil.
func (sm *SelectorMatcher[T]) Match(s *CssSelector, fn func(*CssSelector, T)) bool {
	return sm.match(s, func(c *selectorContext[T]) {
		if fn != nil {
			fn(c.selector, c.value)
		}
	})
}

// MatchAll returns the values of all matching selectors in registration order.
func (sm *SelectorMatcher[T]) MatchAll(s *CssSelector) []T {
	var matched []*selectorContext[T]
	sm.match(s, func(c *selectorContext[T]) { matched = append(matched, c) })
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].seq < matched[j].seq })
	values := make([]T, len(matched))
	for i, c := range matched {
		values[i] = c.value
	}
	return values
}

func (sm *SelectorMatcher[T]) match(s *CssSelector, fn func(*selectorContext[T])) bool {
	for _, lc := range sm.listContexts {
		lc.alreadyMatched = false
	}

	result := matchTerminal(sm.elementMap, s.Element, s, fn)
	result = matchPartial(sm.elementPartialMap, s.Element, s, fn) || result

	for _, className := range s.ClassNames {
		result = matchTerminal(sm.classMap, className, s, fn) || result
		result = matchPartial(sm.classPartialMap, className, s, fn) || result
	}

	for i := 0; i+1 < len(s.Attrs); i += 2 {
		name, value := s.Attrs[i], s.Attrs[i+1]
		if values, ok := sm.attrValueMap[name]; ok {
			if value != "" {
				result = matchTerminal(values, "", s, fn) || result
			}
			result = matchTerminal(values, value, s, fn) || result
		}
		if partials, ok := sm.attrValuePartialMap[name]; ok {
			if value != "" {
				result = matchPartial(partials, "", s, fn) || result
			}
			result = matchPartial(partials, value, s, fn) || result
		}
	}
	return result
}

func matchTerminal[T any](m map[string][]*selectorContext[T], name string, s *CssSelector, fn func(*selectorContext[T])) bool {
	selectables := append(m[name][:len(m[name]):len(m[name])], m["*"]...)
	result := false
	for _, selectable := range selectables {
		if selectable.finalize(s, fn) {
			result = true
		}
	}
	return result
}

func matchPartial[T any](m map[string]*SelectorMatcher[T], name string, s *CssSelector, fn func(*selectorContext[T])) bool {
	nested, ok := m[name]
	if !ok {
		return false
	}
	return nested.match(s, fn)
}

type selectorListContext struct {
	alreadyMatched bool
}

type selectorContext[T any] struct {
	selector    *CssSelector
	value       T
	listContext *selectorListContext
	seq         int
}

// finalize checks the :not() parts and reports the match unless another selector of the
// same list already did.
func (c *selectorContext[T]) finalize(s *CssSelector, fn func(*selectorContext[T])) bool {
	result := true
	if len(c.selector.NotSelectors) > 0 && (c.listContext == nil || !c.listContext.alreadyMatched) {
		notMatcher := NewSelectorMatcher[struct{}]()
		notMatcher.AddSelectables(c.selector.NotSelectors, struct{}{})
		result = !notMatcher.Match(s, nil)
	}
	if result && (c.listContext == nil || !c.listContext.alreadyMatched) {
		if c.listContext != nil {
			c.listContext.alreadyMatched = true
		}
		fn(c)
	}
	return result
}
