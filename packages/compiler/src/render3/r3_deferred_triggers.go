package render3

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"fortio.org/safecast"

	"ngc-bind/packages/compiler/src/core"
	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/template_parser"
	"ngc-bind/packages/compiler/src/util"
)

// DeferredTrigger is one trigger of an @defer block. The implementations are the
// *...DeferredTrigger types below.
type DeferredTrigger interface {
	Node
	Spans() *TriggerSpans
	deferredTrigger()
}

// TriggerSpans locate a trigger. PrefetchSpan, WhenOrOnSourceSpan and HydrateSpan are
// only set on the first trigger of a parameter.
type TriggerSpans struct {
	NameSpan           *util.ParseSourceSpan
	Span               *util.ParseSourceSpan
	PrefetchSpan       *util.ParseSourceSpan
	WhenOrOnSourceSpan *util.ParseSourceSpan
	HydrateSpan        *util.ParseSourceSpan
}

func (s *TriggerSpans) SourceSpan() *util.ParseSourceSpan { return s.Span }
func (s *TriggerSpans) Spans() *TriggerSpans              { return s }
func (*TriggerSpans) r3Node()                             {}
func (*TriggerSpans) deferredTrigger()                    {}

// BoundDeferredTrigger is `when <expr>`.
type BoundDeferredTrigger struct {
	TriggerSpans
	Value expression_parser.AST
}

type NeverDeferredTrigger struct{ TriggerSpans }

type IdleDeferredTrigger struct{ TriggerSpans }

type ImmediateDeferredTrigger struct{ TriggerSpans }

type TimerDeferredTrigger struct {
	TriggerSpans
	// Delay is in milliseconds.
	Delay int
}

// HoverDeferredTrigger has a nil Reference when it targets the placeholder's root element.
type HoverDeferredTrigger struct {
	TriggerSpans
	Reference *string
}

type InteractionDeferredTrigger struct {
	TriggerSpans
	Reference *string
}

type ViewportDeferredTrigger struct {
	TriggerSpans
	Reference *string
	Options   *expression_parser.LiteralMap
}

// DeferredBlockTriggers holds at most one trigger of each kind.
type DeferredBlockTriggers struct {
	When        *BoundDeferredTrigger
	Idle        *IdleDeferredTrigger
	Immediate   *ImmediateDeferredTrigger
	Hover       *HoverDeferredTrigger
	Timer       *TimerDeferredTrigger
	Interaction *InteractionDeferredTrigger
	Viewport    *ViewportDeferredTrigger
	Never       *NeverDeferredTrigger
}

// All returns the set triggers in a fixed order.
func (t *DeferredBlockTriggers) All() []DeferredTrigger {
	var out []DeferredTrigger
	if t.When != nil {
		out = append(out, t.When)
	}
	if t.Idle != nil {
		out = append(out, t.Idle)
	}
	if t.Immediate != nil {
		out = append(out, t.Immediate)
	}
	if t.Hover != nil {
		out = append(out, t.Hover)
	}
	if t.Timer != nil {
		out = append(out, t.Timer)
	}
	if t.Interaction != nil {
		out = append(out, t.Interaction)
	}
	if t.Viewport != nil {
		out = append(out, t.Viewport)
	}
	if t.Never != nil {
		out = append(out, t.Never)
	}
	return out
}

// OnTriggerType names the `on` triggers.
type OnTriggerType string

const (
	OnTriggerTypeIdle        OnTriggerType = "idle"
	OnTriggerTypeTimer       OnTriggerType = "timer"
	OnTriggerTypeInteraction OnTriggerType = "interaction"
	OnTriggerTypeImmediate   OnTriggerType = "immediate"
	OnTriggerTypeHover       OnTriggerType = "hover"
	OnTriggerTypeViewport    OnTriggerType = "viewport"
	OnTriggerTypeNever       OnTriggerType = "never"
)

var timePattern = regexp.MustCompile(`^\d+\.?\d*(ms|s)?$`)

// Openers that start a nesting level inside trigger parameters, mapped to their closers.
var commaDelimitedSyntax = map[rune]rune{
	core.CharLBRACE:   core.CharRBRACE,
	core.CharLBRACKET: core.CharRBRACKET,
	core.CharLPAREN:   core.CharRPAREN,
}

// triggerError is reported at the span of the token that caused it.
type triggerError string

func (e triggerError) Error() string { return string(e) }

func triggerErrorf(format string, args ...any) error {
	return triggerError(fmt.Sprintf(format, args...))
}

// parsedParameter is one top-level parameter of an `on` trigger. Start is relative to the
// beginning of the trigger list.
type parsedParameter struct {
	expression string
	start      int
}

// ParseNeverTrigger parses `hydrate never`.
func ParseNeverTrigger(param *ml_parser.BlockParameter, triggers *DeferredBlockTriggers, errs *[]*util.ParseError) {
	span := param.Span
	neverIndex := strings.Index(param.Expression, "never")
	if neverIndex == -1 {
		*errs = append(*errs, util.NewParseError(span, `Could not find "never" keyword in expression`))
		return
	}
	trigger := &NeverDeferredTrigger{TriggerSpans{
		NameSpan:     subSpan(span, neverIndex, len("never")),
		Span:         span,
		PrefetchSpan: keywordPrefixSpan(param.Expression, span, "prefetch"),
		HydrateSpan:  keywordPrefixSpan(param.Expression, span, "hydrate"),
	}}
	trackTrigger(OnTriggerTypeNever, triggers, errs, trigger)
}

// ParseWhenTrigger parses `[prefetch|hydrate] when <expr>`.
func ParseWhenTrigger(param *ml_parser.BlockParameter, bindingParser *template_parser.BindingParser, triggers *DeferredBlockTriggers, errs *[]*util.ParseError) {
	span := param.Span
	whenIndex := strings.Index(param.Expression, "when")
	if whenIndex == -1 {
		*errs = append(*errs, util.NewParseError(span, `Could not find "when" keyword in expression`))
		return
	}
	start := getTriggerParametersStart(param.Expression, whenIndex+1)
	if start == -1 {
		start = len(param.Expression)
	}
	parsed := bindingParser.ParseBinding(param.Expression[start:], false, span, span.Start.Offset+start)
	trigger := &BoundDeferredTrigger{
		TriggerSpans: TriggerSpans{
			Span:               span,
			PrefetchSpan:       keywordPrefixSpan(param.Expression, span, "prefetch"),
			WhenOrOnSourceSpan: subSpan(span, whenIndex, len("when")),
			HydrateSpan:        keywordPrefixSpan(param.Expression, span, "hydrate"),
		},
		Value: parsed,
	}
	trackTrigger("when", triggers, errs, trigger)
}

// ParseOnTrigger parses `[prefetch|hydrate] on a, b(x), ...`. placeholder is the block's
// @placeholder, used to validate reference triggers without parameters.
func ParseOnTrigger(
	param *ml_parser.BlockParameter,
	bindingParser *template_parser.BindingParser,
	triggers *DeferredBlockTriggers,
	errs *[]*util.ParseError,
	placeholder *DeferredBlockPlaceholder,
) {
	span := param.Span
	onIndex := strings.Index(param.Expression, "on")
	if onIndex == -1 {
		*errs = append(*errs, util.NewParseError(span, `Could not find "on" keyword in expression`))
		return
	}
	start := getTriggerParametersStart(param.Expression, onIndex+1)
	if start == -1 {
		start = len(param.Expression)
	}
	isHydrate := strings.HasPrefix(param.Expression, "hydrate")
	p := &onTriggerParser{
		expression:    param.Expression,
		bindingParser: bindingParser,
		start:         start,
		span:          span,
		triggers:      triggers,
		errs:          errs,
		placeholder:   placeholder,
		isHydrate:     isHydrate,
		prefetchSpan:  keywordPrefixSpan(param.Expression, span, "prefetch"),
		onSourceSpan:  subSpan(span, onIndex, len("on")),
		hydrateSpan:   keywordPrefixSpan(param.Expression, span, "hydrate"),
		tokens:        expression_parser.NewLexer().Tokenize(param.Expression[start:]),
	}
	p.parse()
}

func keywordPrefixSpan(expression string, span *util.ParseSourceSpan, keyword string) *util.ParseSourceSpan {
	if !strings.HasPrefix(expression, keyword) {
		return nil
	}
	return subSpan(span, 0, len(keyword))
}

func subSpan(span *util.ParseSourceSpan, offset, length int) *util.ParseSourceSpan {
	start := span.Start.MoveBy(offset)
	return util.NewParseSourceSpan(start, start.MoveBy(length), nil, nil)
}

type onTriggerParser struct {
	expression    string
	bindingParser *template_parser.BindingParser
	// start is where the trigger list begins inside expression.
	start        int
	span         *util.ParseSourceSpan
	triggers     *DeferredBlockTriggers
	errs         *[]*util.ParseError
	placeholder  *DeferredBlockPlaceholder
	isHydrate    bool
	prefetchSpan *util.ParseSourceSpan
	onSourceSpan *util.ParseSourceSpan
	hydrateSpan  *util.ParseSourceSpan
	index        int
	tokens       []*expression_parser.Token
}

func (p *onTriggerParser) parse() {
	for len(p.tokens) > 0 && p.index < len(p.tokens) {
		tok := p.token()
		if !tok.IsIdentifier() {
			p.unexpectedToken(tok)
			break
		}

		switch {
		case p.isFollowedByOrLast(core.CharCOMMA):
			// No parameters.
			p.consumeTrigger(tok, nil)
			p.advance()
		case p.isFollowedByOrLast(core.CharLPAREN):
			p.advance()
			before := len(*p.errs)
			params := p.consumeParameters()
			if len(*p.errs) != before {
				return
			}
			p.consumeTrigger(tok, params)
			p.advance()
		case p.index < len(p.tokens)-1:
			p.unexpectedToken(p.tokens[p.index+1])
		}
		p.advance()
	}
}

func (p *onTriggerParser) advance() { p.index++ }

func (p *onTriggerParser) token() *expression_parser.Token {
	return p.tokens[min(p.index, len(p.tokens)-1)]
}

func (p *onTriggerParser) isFollowedByOrLast(ch rune) bool {
	if p.index == len(p.tokens)-1 {
		return true
	}
	return p.tokens[p.index+1].IsCharacter(ch)
}

func (p *onTriggerParser) consumeTrigger(identifier *expression_parser.Token, params []parsedParameter) {
	nameStart := p.span.Start.MoveBy(p.start + identifier.Index - p.tokens[0].Index)
	nameSpan := util.NewParseSourceSpan(nameStart, nameStart.MoveBy(len(identifier.StrValue)), nil, nil)
	end := nameStart.MoveBy(p.token().End - identifier.Index)

	// The keyword spans belong to the first trigger of the list.
	spans := TriggerSpans{NameSpan: nameSpan}
	if identifier.Index == 0 {
		spans.Span = util.NewParseSourceSpan(p.span.Start, end, nil, nil)
		spans.PrefetchSpan = p.prefetchSpan
		spans.WhenOrOnSourceSpan = p.onSourceSpan
		spans.HydrateSpan = p.hydrateSpan
	} else {
		spans.Span = util.NewParseSourceSpan(nameStart, end, nil, nil)
	}

	name := OnTriggerType(identifier.StrValue)
	var (
		trigger DeferredTrigger
		err     error
	)
	switch name {
	case OnTriggerTypeIdle:
		if len(params) > 0 {
			err = triggerErrorf(`"%s" trigger cannot have parameters`, name)
			break
		}
		trigger = &IdleDeferredTrigger{spans}
	case OnTriggerTypeImmediate:
		if len(params) > 0 {
			err = triggerErrorf(`"%s" trigger cannot have parameters`, name)
			break
		}
		trigger = &ImmediateDeferredTrigger{spans}
	case OnTriggerTypeTimer:
		trigger, err = createTimerTrigger(params, spans)
	case OnTriggerTypeHover:
		var ref *string
		if ref, err = p.referenceParameter(name, params); err == nil {
			trigger = &HoverDeferredTrigger{TriggerSpans: spans, Reference: ref}
		}
	case OnTriggerTypeInteraction:
		var ref *string
		if ref, err = p.referenceParameter(name, params); err == nil {
			trigger = &InteractionDeferredTrigger{TriggerSpans: spans, Reference: ref}
		}
	case OnTriggerTypeViewport:
		trigger, err = p.createViewportTrigger(params, spans)
	default:
		err = triggerErrorf(`Unrecognized trigger type "%s"`, name)
	}

	if err != nil {
		p.error(identifier, err.Error())
		return
	}
	trackTrigger(name, p.triggers, p.errs, trigger)
}

// consumeParameters reads `( ... )` starting at the current `(`. Commas nested inside
// braces, brackets or parens do not split parameters.
func (p *onTriggerParser) consumeParameters() []parsedParameter {
	var params []parsedParameter
	if !p.token().IsCharacter(core.CharLPAREN) {
		p.unexpectedToken(p.token())
		return params
	}
	p.advance()

	var stack []rune
	var current []*expression_parser.Token
	for p.index < len(p.tokens) {
		tok := p.token()

		if tok.IsCharacter(core.CharRPAREN) && len(stack) == 0 {
			if len(current) > 0 {
				params = append(params, p.parameterOf(current))
			}
			break
		}

		if tok.Type == expression_parser.TokenTypeCharacter {
			if closer, ok := commaDelimitedSyntax[rune(tok.NumValue)]; ok {
				stack = append(stack, closer)
			}
		}
		if len(stack) > 0 && tok.IsCharacter(stack[len(stack)-1]) {
			stack = stack[:len(stack)-1]
		}

		if len(stack) == 0 && tok.IsCharacter(core.CharCOMMA) && len(current) > 0 {
			params = append(params, p.parameterOf(current))
			current = nil
			p.advance()
			continue
		}

		current = append(current, tok)
		p.advance()
	}

	if !p.token().IsCharacter(core.CharRPAREN) || len(stack) > 0 {
		p.error(p.token(), "Unexpected end of expression")
	}
	if p.index < len(p.tokens)-1 && !p.tokens[p.index+1].IsCharacter(core.CharCOMMA) {
		p.unexpectedToken(p.tokens[p.index+1])
	}
	return params
}

func (p *onTriggerParser) parameterOf(tokens []*expression_parser.Token) parsedParameter {
	first, last := tokens[0], tokens[len(tokens)-1]
	return parsedParameter{
		expression: p.expression[p.start+first.Index : p.start+last.End],
		start:      first.Index,
	}
}

func (p *onTriggerParser) error(tok *expression_parser.Token, message string) {
	start := p.span.Start.MoveBy(p.start + tok.Index)
	*p.errs = append(*p.errs, util.NewParseError(
		util.NewParseSourceSpan(start, start.MoveBy(tok.End-tok.Index), nil, nil),
		message,
	))
}

func (p *onTriggerParser) unexpectedToken(tok *expression_parser.Token) {
	p.error(tok, fmt.Sprintf(`Unexpected token "%s"`, tok))
}

// referenceParameter validates a hover/interaction/viewport parameter list and returns the
// referenced name, or nil when the trigger targets the placeholder.
func (p *onTriggerParser) referenceParameter(name OnTriggerType, params []parsedParameter) (*string, error) {
	if p.isHydrate {
		if name == OnTriggerTypeViewport {
			if len(params) > 1 {
				return nil, triggerErrorf(`Hydration trigger "%s" cannot have more than one parameter`, name)
			}
		} else if len(params) > 0 {
			return nil, triggerErrorf(`Hydration trigger "%s" cannot have parameters`, name)
		}
		return nil, nil
	}
	switch len(params) {
	case 0:
		if !hasSingleRootElement(p.placeholder) {
			return nil, triggerErrorf(`"%s" trigger with no parameters can only be placed on an @defer that has a @placeholder block with a single root element.`, name)
		}
		return nil, nil
	case 1:
		ref := params[0].expression
		return &ref, nil
	}
	return nil, triggerErrorf(`"%s" trigger can only have zero or one parameters`, name)
}

func hasSingleRootElement(placeholder *DeferredBlockPlaceholder) bool {
	if placeholder == nil {
		return false
	}
	var root Node
	for _, child := range placeholder.Children {
		if _, ok := child.(*Comment); ok {
			continue
		}
		if root != nil {
			return false
		}
		root = child
	}
	_, ok := root.(*Element)
	return ok
}

func createTimerTrigger(params []parsedParameter, spans TriggerSpans) (DeferredTrigger, error) {
	if len(params) != 1 {
		return nil, triggerErrorf(`"%s" trigger must have exactly one parameter`, OnTriggerTypeTimer)
	}
	delay, ok := ParseDeferredTime(params[0].expression)
	if !ok {
		return nil, triggerErrorf(`Could not parse time value of trigger "%s"`, OnTriggerTypeTimer)
	}
	return &TimerDeferredTrigger{TriggerSpans: spans, Delay: delay}, nil
}

// createViewportTrigger accepts `viewport`, `viewport(ref)` and
// `viewport({trigger: ref, rootMargin: '10px'})`.
func (p *onTriggerParser) createViewportTrigger(params []parsedParameter, spans TriggerSpans) (DeferredTrigger, error) {
	if len(params) == 0 || !strings.HasPrefix(params[0].expression, "{") {
		ref, err := p.referenceParameter(OnTriggerTypeViewport, params)
		if err != nil {
			return nil, err
		}
		if p.isHydrate && len(params) == 1 {
			return nil, triggerErrorf(`"viewport" hydration trigger cannot have a "trigger"`)
		}
		return &ViewportDeferredTrigger{TriggerSpans: spans, Reference: ref}, nil
	}
	if len(params) > 1 {
		return nil, triggerErrorf(`"%s" trigger can only have zero or one parameters`, OnTriggerTypeViewport)
	}

	parsed := p.bindingParser.ParseBinding(
		params[0].expression,
		false,
		spans.Span,
		p.span.Start.Offset+p.start+params[0].start,
	)
	literalMap, ok := parsed.AST.(*expression_parser.LiteralMap)
	if !ok {
		return nil, triggerErrorf(`Options parameter of the "viewport" trigger must be an object literal`)
	}

	var ref *string
	options := literalMap
	for i, key := range literalMap.Keys {
		switch key.Key {
		case "root":
			return nil, triggerErrorf(`The "root" option is not supported in the options parameter of the "viewport" trigger`)
		case "trigger":
			read, isRead := literalMap.Values[i].(*expression_parser.PropertyRead)
			if !isRead {
				return nil, triggerErrorf(`"trigger" option of the "viewport" trigger must be an identifier`)
			}
			if _, implicit := read.Receiver.(*expression_parser.ImplicitReceiver); !implicit {
				return nil, triggerErrorf(`"trigger" option of the "viewport" trigger must be an identifier`)
			}
			name := read.Name
			ref = &name
			keys := append(append([]expression_parser.LiteralMapKey{}, literalMap.Keys[:i]...), literalMap.Keys[i+1:]...)
			values := append(append([]expression_parser.AST{}, literalMap.Values[:i]...), literalMap.Values[i+1:]...)
			options = expression_parser.NewLiteralMap(literalMap.Span(), literalMap.SourceSpan(), keys, values)
		}
	}

	if p.isHydrate && ref != nil {
		return nil, triggerErrorf(`"viewport" hydration trigger cannot have a "trigger"`)
	}
	if !p.isHydrate && ref == nil && !hasSingleRootElement(p.placeholder) {
		return nil, triggerErrorf(`"%s" trigger with no parameters can only be placed on an @defer that has a @placeholder block with a single root element.`, OnTriggerTypeViewport)
	}
	if dynamic := findDynamicNode(options); dynamic != nil {
		return nil, triggerErrorf(`Options of the "viewport" trigger must be an object literal containing only literal values, but "%s" was found`, nodeKindName(dynamic))
	}
	return &ViewportDeferredTrigger{TriggerSpans: spans, Reference: ref, Options: options}, nil
}

// findDynamicNode returns the first node that is not a literal.
func findDynamicNode(ast expression_parser.AST) expression_parser.AST {
	var found expression_parser.AST
	expression_parser.Walk(ast, func(n expression_parser.AST) bool {
		if found != nil {
			return false
		}
		switch n.(type) {
		case *expression_parser.ASTWithSource, *expression_parser.LiteralPrimitive,
			*expression_parser.LiteralArray, *expression_parser.LiteralMap:
			return true
		}
		found = n
		return false
	})
	return found
}

func nodeKindName(ast expression_parser.AST) string {
	name := fmt.Sprintf("%T", ast)
	return name[strings.LastIndex(name, ".")+1:]
}

func trackTrigger(name OnTriggerType, all *DeferredBlockTriggers, errs *[]*util.ParseError, trigger DeferredTrigger) {
	duplicate := false
	switch t := trigger.(type) {
	case *BoundDeferredTrigger:
		duplicate = all.When != nil
		if !duplicate {
			all.When = t
		}
	case *IdleDeferredTrigger:
		duplicate = all.Idle != nil
		if !duplicate {
			all.Idle = t
		}
	case *ImmediateDeferredTrigger:
		duplicate = all.Immediate != nil
		if !duplicate {
			all.Immediate = t
		}
	case *HoverDeferredTrigger:
		duplicate = all.Hover != nil
		if !duplicate {
			all.Hover = t
		}
	case *TimerDeferredTrigger:
		duplicate = all.Timer != nil
		if !duplicate {
			all.Timer = t
		}
	case *InteractionDeferredTrigger:
		duplicate = all.Interaction != nil
		if !duplicate {
			all.Interaction = t
		}
	case *ViewportDeferredTrigger:
		duplicate = all.Viewport != nil
		if !duplicate {
			all.Viewport = t
		}
	case *NeverDeferredTrigger:
		duplicate = all.Never != nil
		if !duplicate {
			all.Never = t
		}
	default:
		util.Failf("unexpected trigger %T", trigger)
	}
	if duplicate {
		*errs = append(*errs, util.NewParseError(trigger.SourceSpan(), fmt.Sprintf(`Duplicate "%s" trigger is not allowed`, name)))
	}
}

// getTriggerParametersStart returns the index of the first character after the
// whitespace that follows startPosition, or -1.
func getTriggerParametersStart(value string, startPosition int) int {
	foundSeparator := false
	for i := startPosition; i < len(value); i++ {
		if core.IsWhitespace(rune(value[i])) {
			foundSeparator = true
		} else if foundSeparator {
			return i
		}
	}
	return -1
}

// ParseDeferredTime converts `<number>(ms|s)?` to whole milliseconds.
func ParseDeferredTime(value string) (int, bool) {
	match := timePattern.FindStringSubmatch(value)
	if match == nil {
		return 0, false
	}
	number := strings.TrimSuffix(strings.TrimSuffix(match[0], "ms"), "s")
	f, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, false
	}
	if match[1] == "s" {
		f *= 1000
	}
	ms, err := safecast.Truncate[int](f)
	if err != nil {
		return 0, false
	}
	return ms, true
}
