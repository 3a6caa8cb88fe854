package template_parser

import (
	"fmt"
	"strings"

	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/util"
)

const (
	propertyPartsSeparator   = "."
	attributePrefix          = "attr"
	animatePrefix            = "animate"
	classPrefix              = "class"
	stylePrefix              = "style"
	templateAttrPrefix       = "*"
	legacyAnimatePropPrefix  = "animate-"
	implicitTemplateVariable = "$implicit"
)

// MatchableAttr is a name/value pair offered to the directive matcher.
type MatchableAttr [2]string

// BindingParser turns attribute values into parsed bindings. Diagnostics accumulate in
// Errors in the order they are found.
type BindingParser struct {
	exprParser    *expression_parser.Parser
	interpolation ml_parser.InterpolationConfig
	Errors        []*util.ParseError
}

func NewBindingParser(exprParser *expression_parser.Parser, ic ml_parser.InterpolationConfig) *BindingParser {
	return &BindingParser{exprParser: exprParser, interpolation: ic}
}

func (bp *BindingParser) InterpolationConfig() ml_parser.InterpolationConfig {
	return bp.interpolation
}

// ParseInterpolation returns nil when value has no interpolation.
func (bp *BindingParser) ParseInterpolation(value string, sourceSpan *util.ParseSourceSpan) *expression_parser.ASTWithSource {
	ast := bp.exprParser.ParseInterpolation(value, sourceSpan, sourceSpan.FullStart.Offset, bp.interpolation)
	if ast != nil {
		bp.Errors = append(bp.Errors, ast.Errors...)
	}
	return ast
}

// ParseInterpolationExpression parses an ICU switch value.
func (bp *BindingParser) ParseInterpolationExpression(expression string, sourceSpan *util.ParseSourceSpan) *expression_parser.ASTWithSource {
	ast := bp.exprParser.ParseInterpolationExpression(expression, sourceSpan, sourceSpan.Start.Offset)
	bp.Errors = append(bp.Errors, ast.Errors...)
	return ast
}

// ParseInlineTemplateBinding parses a `*key="microsyntax"` attribute into properties and
// variables of the synthetic template.
func (bp *BindingParser) ParseInlineTemplateBinding(
	tplKey, tplValue string,
	sourceSpan *util.ParseSourceSpan,
	absoluteValueOffset int,
	targetMatchableAttrs *[]MatchableAttr,
	targetProps *[]*ParsedProperty,
	targetVars *[]*ParsedVariable,
) {
	absoluteKeyOffset := sourceSpan.Start.Offset + len(templateAttrPrefix)
	result := bp.exprParser.ParseTemplateBindings(tplKey, tplValue, sourceSpan, absoluteKeyOffset, absoluteValueOffset)
	bp.Errors = append(bp.Errors, result.Errors...)
	for _, warning := range result.Warnings {
		bp.Errors = append(bp.Errors, util.NewParseWarning(sourceSpan, warning))
	}

	for _, binding := range result.TemplateBindings {
		// bindingSpan covers one binding inside the attribute.
		bindingSpan := moveParseSourceSpan(sourceSpan, binding.SourceSpan())
		switch b := binding.(type) {
		case *expression_parser.VariableBinding:
			keySpan := moveParseSourceSpan(sourceSpan, b.Key.Span)
			value := implicitTemplateVariable
			var valueSpan *util.ParseSourceSpan
			if b.Value != nil {
				value = b.Value.Source
				valueSpan = moveParseSourceSpan(sourceSpan, b.Value.Span)
			}
			*targetVars = append(*targetVars, &ParsedVariable{
				Name:       b.Key.Source,
				Value:      value,
				SourceSpan: bindingSpan,
				KeySpan:    keySpan,
				ValueSpan:  valueSpan,
			})
		case *expression_parser.ExpressionBinding:
			keySpan := moveParseSourceSpan(sourceSpan, b.Key.Span)
			if b.Value != nil {
				valueSpan := moveParseSourceSpan(sourceSpan, b.Value.SourceSpan())
				bp.parsePropertyAst(b.Key.Source, b.Value, false, bindingSpan, keySpan, valueSpan, targetMatchableAttrs, targetProps)
			} else {
				*targetMatchableAttrs = append(*targetMatchableAttrs, MatchableAttr{b.Key.Source, ""})
				bp.ParseLiteralAttr(b.Key.Source, nil, keySpan, absoluteValueOffset, nil, targetMatchableAttrs, targetProps, keySpan)
			}
		}
	}
}

// ParseLiteralAttr records a plain attribute. A nil value means the attribute had none.
func (bp *BindingParser) ParseLiteralAttr(
	name string,
	value *string,
	sourceSpan *util.ParseSourceSpan,
	absoluteOffset int,
	valueSpan *util.ParseSourceSpan,
	targetMatchableAttrs *[]MatchableAttr,
	targetProps *[]*ParsedProperty,
	keySpan *util.ParseSourceSpan,
) {
	if isLegacyAnimationLabel(name) {
		name = name[1:]
		keySpan = trimSpanStart(keySpan, 1)
		if value != nil {
			bp.reportError(`Assigning animation triggers via @prop="exp" attributes with an expression is invalid. `+
				`Use property bindings (e.g. [@prop]="exp") or use an attribute without a value (e.g. @prop) instead.`, sourceSpan)
		}
		bp.parseLegacyAnimation(name, value, sourceSpan, absoluteOffset, keySpan, valueSpan, targetMatchableAttrs, targetProps)
		return
	}
	str := ""
	if value != nil {
		str = *value
	}
	*targetProps = append(*targetProps, &ParsedProperty{
		Name:       name,
		Expression: bp.exprParser.WrapLiteralPrimitive(str, getLocation(sourceSpan), absoluteOffset),
		Type:       ParsedPropertyTypeLiteralAttr,
		SourceSpan: sourceSpan,
		KeySpan:    keySpan,
		ValueSpan:  valueSpan,
	})
}

// ParsePropertyBinding parses `[name]="expression"`. isTwoWay marks the property half of
// `[(name)]`.
func (bp *BindingParser) ParsePropertyBinding(
	name, expression string,
	isHost, isTwoWay bool,
	sourceSpan *util.ParseSourceSpan,
	absoluteOffset int,
	valueSpan *util.ParseSourceSpan,
	targetMatchableAttrs *[]MatchableAttr,
	targetProps *[]*ParsedProperty,
	keySpan *util.ParseSourceSpan,
) {
	if name == "" {
		bp.reportError("Property name is missing in binding", sourceSpan)
	}

	isLegacyAnimationProp := false
	switch {
	case strings.HasPrefix(name, legacyAnimatePropPrefix):
		isLegacyAnimationProp = true
		name = name[len(legacyAnimatePropPrefix):]
		keySpan = trimSpanStart(keySpan, len(legacyAnimatePropPrefix))
	case isLegacyAnimationLabel(name):
		isLegacyAnimationProp = true
		name = name[1:]
		keySpan = trimSpanStart(keySpan, 1)
	}

	exprSpan := valueSpan
	if exprSpan == nil {
		exprSpan = sourceSpan
	}
	switch {
	case isLegacyAnimationProp:
		bp.parseLegacyAnimation(name, &expression, sourceSpan, absoluteOffset, keySpan, valueSpan, targetMatchableAttrs, targetProps)
	case strings.HasPrefix(name, animatePrefix+propertyPartsSeparator):
		ast := bp.ParseBinding(expression, isHost, exprSpan, absoluteOffset)
		*targetMatchableAttrs = append(*targetMatchableAttrs, MatchableAttr{name, sourceOf(ast)})
		*targetProps = append(*targetProps, &ParsedProperty{
			Name: name, Expression: ast, Type: ParsedPropertyTypeAnimation,
			SourceSpan: sourceSpan, KeySpan: keySpan, ValueSpan: valueSpan,
		})
	default:
		ast := bp.ParseBinding(expression, isHost, exprSpan, absoluteOffset)
		bp.parsePropertyAst(name, ast, isTwoWay, sourceSpan, keySpan, valueSpan, targetMatchableAttrs, targetProps)
	}
}

// ParsePropertyInterpolation binds an attribute whose literal value interpolates. It
// reports false when the value has no interpolation.
func (bp *BindingParser) ParsePropertyInterpolation(
	name, value string,
	sourceSpan, valueSpan *util.ParseSourceSpan,
	targetMatchableAttrs *[]MatchableAttr,
	targetProps *[]*ParsedProperty,
	keySpan *util.ParseSourceSpan,
) bool {
	span := valueSpan
	if span == nil {
		span = sourceSpan
	}
	expr := bp.ParseInterpolation(value, span)
	if expr == nil {
		return false
	}
	bp.parsePropertyAst(name, expr, false, sourceSpan, keySpan, valueSpan, targetMatchableAttrs, targetProps)
	return true
}

func (bp *BindingParser) parsePropertyAst(
	name string,
	ast *expression_parser.ASTWithSource,
	isTwoWay bool,
	sourceSpan, keySpan, valueSpan *util.ParseSourceSpan,
	targetMatchableAttrs *[]MatchableAttr,
	targetProps *[]*ParsedProperty,
) {
	*targetMatchableAttrs = append(*targetMatchableAttrs, MatchableAttr{name, sourceOf(ast)})
	typ := ParsedPropertyTypeDefault
	if isTwoWay {
		typ = ParsedPropertyTypeTwoWay
	}
	*targetProps = append(*targetProps, &ParsedProperty{
		Name: name, Expression: ast, Type: typ,
		SourceSpan: sourceSpan, KeySpan: keySpan, ValueSpan: valueSpan,
	})
}

func (bp *BindingParser) parseLegacyAnimation(
	name string,
	expression *string,
	sourceSpan *util.ParseSourceSpan,
	absoluteOffset int,
	keySpan, valueSpan *util.ParseSourceSpan,
	targetMatchableAttrs *[]MatchableAttr,
	targetProps *[]*ParsedProperty,
) {
	if name == "" {
		bp.reportError("Animation trigger is missing", sourceSpan)
	}
	// A trigger without an expression is valid; the void and * states apply.
	value := "undefined"
	if expression != nil {
		value = *expression
	}
	exprSpan := valueSpan
	if exprSpan == nil {
		exprSpan = sourceSpan
	}
	ast := bp.ParseBinding(value, false, exprSpan, absoluteOffset)
	*targetMatchableAttrs = append(*targetMatchableAttrs, MatchableAttr{name, sourceOf(ast)})
	*targetProps = append(*targetProps, &ParsedProperty{
		Name: name, Expression: ast, Type: ParsedPropertyTypeLegacyAnimation,
		SourceSpan: sourceSpan, KeySpan: keySpan, ValueSpan: valueSpan,
	})
}

func (bp *BindingParser) ParseBinding(value string, isHost bool, sourceSpan *util.ParseSourceSpan, absoluteOffset int) *expression_parser.ASTWithSource {
	var ast *expression_parser.ASTWithSource
	if isHost {
		ast = bp.exprParser.ParseSimpleBinding(value, sourceSpan, absoluteOffset, bp.interpolation)
	} else {
		ast = bp.exprParser.ParseBinding(value, sourceSpan, absoluteOffset, bp.interpolation)
	}
	bp.Errors = append(bp.Errors, ast.Errors...)
	return ast
}

// CreateBoundElementProperty resolves the attr., class., style. and animate. prefixes.
func (bp *BindingParser) CreateBoundElementProperty(prop *ParsedProperty) *BoundElementProperty {
	bound := &BoundElementProperty{
		Name:       prop.Name,
		Type:       BindingTypeProperty,
		Value:      prop.Expression,
		SourceSpan: prop.SourceSpan,
		KeySpan:    prop.KeySpan,
		ValueSpan:  prop.ValueSpan,
	}
	if prop.IsLegacyAnimation() {
		bound.Type = BindingTypeLegacyAnimation
		return bound
	}

	parts := strings.Split(prop.Name, propertyPartsSeparator)
	if len(parts) > 1 {
		switch parts[0] {
		case attributePrefix:
			name := strings.Join(parts[1:], propertyPartsSeparator)
			if i := strings.IndexByte(name, ':'); i > -1 {
				name = ml_parser.MergeNsAndName(name[:i], name[i+1:])
			}
			bound.Name, bound.Type = name, BindingTypeAttribute
			return bound
		case classPrefix:
			bound.Name, bound.Type = parts[1], BindingTypeClass
			return bound
		case stylePrefix:
			if len(parts) > 2 {
				bound.Unit = parts[2]
			}
			bound.Name, bound.Type = parts[1], BindingTypeStyle
			return bound
		case animatePrefix:
			bound.Type = BindingTypeAnimation
			return bound
		}
	}
	if prop.Type == ParsedPropertyTypeTwoWay {
		bound.Type = BindingTypeTwoWay
	}
	return bound
}

// ParseEvent parses `(name)="handler"`. isAssignmentEvent marks the `nameChange` half of
// `[(name)]`, whose handler must be assignable.
func (bp *BindingParser) ParseEvent(
	name, expression string,
	isAssignmentEvent bool,
	sourceSpan, handlerSpan *util.ParseSourceSpan,
	targetMatchableAttrs *[]MatchableAttr,
	targetEvents *[]*ParsedEvent,
	keySpan *util.ParseSourceSpan,
) {
	if name == "" {
		bp.reportError("Event name is missing in binding", sourceSpan)
	}
	if isLegacyAnimationLabel(name) {
		name = name[1:]
		keySpan = trimSpanStart(keySpan, 1)
		bp.parseLegacyAnimationEvent(name, expression, sourceSpan, handlerSpan, targetEvents, keySpan)
		return
	}
	bp.parseRegularEvent(name, expression, isAssignmentEvent, sourceSpan, handlerSpan, targetMatchableAttrs, targetEvents, keySpan)
}

// parseEventListenerName splits `target:event`.
func parseEventListenerName(rawName string) (eventName, target string) {
	if i := strings.IndexByte(rawName, ':'); i > -1 {
		return strings.TrimSpace(rawName[i+1:]), strings.TrimSpace(rawName[:i])
	}
	return rawName, ""
}

// parseLegacyAnimationEventName splits `trigger.phase`.
func parseLegacyAnimationEventName(rawName string) (eventName, phase string) {
	if i := strings.IndexByte(rawName, '.'); i > -1 {
		return strings.TrimSpace(rawName[:i]), strings.ToLower(strings.TrimSpace(rawName[i+1:]))
	}
	return rawName, ""
}

func (bp *BindingParser) parseLegacyAnimationEvent(
	name, expression string,
	sourceSpan, handlerSpan *util.ParseSourceSpan,
	targetEvents *[]*ParsedEvent,
	keySpan *util.ParseSourceSpan,
) {
	eventName, phase := parseLegacyAnimationEventName(name)
	ast := bp.parseAction(expression, handlerSpan)
	*targetEvents = append(*targetEvents, &ParsedEvent{
		Name: eventName, TargetOrPhase: phase, Type: ParsedEventTypeLegacyAnimation, Handler: ast,
		SourceSpan: sourceSpan, HandlerSpan: handlerSpan, KeySpan: keySpan,
	})

	if eventName == "" {
		bp.reportError("Animation event name is missing in binding", sourceSpan)
	}
	switch phase {
	case "start", "done":
	case "":
		bp.reportError(fmt.Sprintf("The animation trigger output event (@%s) is missing its phase value name (start or done are currently supported)", eventName), sourceSpan)
	default:
		bp.reportError(fmt.Sprintf(`The provided animation output phase value "%s" for "@%s" is not supported (use start or done)`, phase, eventName), sourceSpan)
	}
}

func (bp *BindingParser) parseRegularEvent(
	name, expression string,
	isAssignmentEvent bool,
	sourceSpan, handlerSpan *util.ParseSourceSpan,
	targetMatchableAttrs *[]MatchableAttr,
	targetEvents *[]*ParsedEvent,
	keySpan *util.ParseSourceSpan,
) {
	eventName, target := parseEventListenerName(name)
	prevErrorCount := len(bp.Errors)
	ast := bp.parseAction(expression, handlerSpan)
	isValid := len(bp.Errors) == prevErrorCount
	*targetMatchableAttrs = append(*targetMatchableAttrs, MatchableAttr{name, sourceOf(ast)})

	// Other parse errors already explain a broken two-way handler.
	if isAssignmentEvent && isValid && !isAllowedAssignmentEvent(ast.AST) {
		bp.reportError("Unsupported expression in a two-way binding", sourceSpan)
	}

	typ := ParsedEventTypeRegular
	switch {
	case strings.HasPrefix(name, animatePrefix+propertyPartsSeparator):
		typ = ParsedEventTypeAnimation
	case isAssignmentEvent:
		typ = ParsedEventTypeTwoWay
	}
	*targetEvents = append(*targetEvents, &ParsedEvent{
		Name: eventName, TargetOrPhase: target, Type: typ, Handler: ast,
		SourceSpan: sourceSpan, HandlerSpan: handlerSpan, KeySpan: keySpan,
	})
}

func (bp *BindingParser) parseAction(value string, sourceSpan *util.ParseSourceSpan) *expression_parser.ASTWithSource {
	absoluteOffset := 0
	if sourceSpan != nil {
		absoluteOffset = sourceSpan.Start.Offset
	}
	ast := bp.exprParser.ParseAction(value, sourceSpan, absoluteOffset, bp.interpolation)
	bp.Errors = append(bp.Errors, ast.Errors...)
	if _, empty := ast.AST.(*expression_parser.EmptyExpr); empty {
		bp.reportError("Empty expressions are not allowed", sourceSpan)
		return bp.exprParser.WrapLiteralPrimitive("ERROR", getLocation(sourceSpan), absoluteOffset)
	}
	return ast
}

func (bp *BindingParser) reportError(message string, sourceSpan *util.ParseSourceSpan) {
	bp.Errors = append(bp.Errors, util.NewParseError(sourceSpan, message))
}

// isAllowedAssignmentEvent reports whether ast can be written by the event side of a
// two-way binding: a property or keyed read without safe navigation, optionally wrapped
// in `!` or `$any()`.
func isAllowedAssignmentEvent(ast expression_parser.AST) bool {
	switch n := ast.(type) {
	case *expression_parser.ASTWithSource:
		return isAllowedAssignmentEvent(n.AST)
	case *expression_parser.NonNullAssert:
		return isAllowedAssignmentEvent(n.Expression)
	case *expression_parser.Call:
		if read, ok := n.Receiver.(*expression_parser.PropertyRead); ok && len(n.Args) == 1 && read.Name == "$any" {
			if _, implicit := read.Receiver.(*expression_parser.ImplicitReceiver); implicit {
				return isAllowedAssignmentEvent(n.Args[0])
			}
		}
	case *expression_parser.PropertyRead, *expression_parser.KeyedRead:
		return !hasRecursiveSafeReceiver(n)
	}
	return false
}

func hasRecursiveSafeReceiver(ast expression_parser.AST) bool {
	switch n := ast.(type) {
	case *expression_parser.SafePropertyRead, *expression_parser.SafeKeyedRead:
		return true
	case *expression_parser.ParenthesizedExpression:
		return hasRecursiveSafeReceiver(n.Expression)
	case *expression_parser.PropertyRead:
		return hasRecursiveSafeReceiver(n.Receiver)
	case *expression_parser.KeyedRead:
		return hasRecursiveSafeReceiver(n.Receiver)
	case *expression_parser.Call:
		return hasRecursiveSafeReceiver(n.Receiver)
	}
	return false
}

func isLegacyAnimationLabel(name string) bool {
	return strings.HasPrefix(name, "@")
}

func sourceOf(ast *expression_parser.ASTWithSource) string {
	if ast.Source == nil {
		return ""
	}
	return *ast.Source
}

func getLocation(span *util.ParseSourceSpan) string {
	if span == nil || span.Start == nil {
		return "(unknown)"
	}
	return span.Start.String()
}

// trimSpanStart drops n bytes from the front of span.
func trimSpanStart(span *util.ParseSourceSpan, n int) *util.ParseSourceSpan {
	if span == nil {
		return nil
	}
	return moveParseSourceSpan(span, expression_parser.AbsoluteSourceSpan{
		Start: span.Start.Offset + n,
		End:   span.End.Offset,
	})
}

// moveParseSourceSpan narrows sourceSpan to an absolute range inside it.
func moveParseSourceSpan(sourceSpan *util.ParseSourceSpan, absoluteSpan expression_parser.AbsoluteSourceSpan) *util.ParseSourceSpan {
	startDiff := absoluteSpan.Start - sourceSpan.Start.Offset
	endDiff := absoluteSpan.End - sourceSpan.End.Offset
	return util.NewParseSourceSpan(
		sourceSpan.Start.MoveBy(startDiff),
		sourceSpan.End.MoveBy(endDiff),
		sourceSpan.FullStart.MoveBy(startDiff),
		sourceSpan.Details,
	)
}
