package expression_parser

import (
	"fmt"
	"strings"

	"ngc-bind/packages/compiler/src/core"
	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/util"
)

// InterpolationPiece is a slice of an interpolated string. Start and End are offsets in
// the full input.
type InterpolationPiece struct {
	Text  string
	Start int
	End   int
}

type SplitInterpolation struct {
	Strings     []InterpolationPiece
	Expressions []InterpolationPiece
	// Offsets holds the input offset of each expression's first character.
	Offsets []int
}

type TemplateBindingParseResult struct {
	TemplateBindings []TemplateBinding
	Warnings         []string
	Errors           []*util.ParseError
}

type parseFlags int

const (
	parseFlagsNone parseFlags = 0
	// parseFlagsAction allows assignments and chains, as in event handlers.
	parseFlagsAction parseFlags = 1 << 0
)

type parseContextFlags int

const (
	contextNone parseContextFlags = 0
	// contextWritable is set while the parser is reading something that may be assigned.
	contextWritable parseContextFlags = 1
)

func getLocation(span *util.ParseSourceSpan) string {
	if span != nil && span.Start != nil {
		return span.Start.String()
	}
	return "(unknown)"
}

// Parser parses binding expressions. It holds no per-parse state.
type Parser struct {
	lexer *Lexer
}

func NewParser(lexer *Lexer) *Parser {
	return &Parser{lexer: lexer}
}

// ParseAction parses an event handler. Chains and assignments are allowed.
func (p *Parser) ParseAction(input string, span *util.ParseSourceSpan, absoluteOffset int, ic ml_parser.InterpolationConfig) *ASTWithSource {
	var errs []*util.ParseError
	p.checkNoInterpolation(&errs, input, span, ic)
	stripped, _ := stripComments(input)
	ast := newParseAST(input, span, absoluteOffset, p.lexer.Tokenize(stripped), parseFlagsAction, &errs, 0).parseChain()
	return NewASTWithSource(ast, &input, getLocation(span), absoluteOffset, errs)
}

// ParseBinding parses a property binding value.
func (p *Parser) ParseBinding(input string, span *util.ParseSourceSpan, absoluteOffset int, ic ml_parser.InterpolationConfig) *ASTWithSource {
	var errs []*util.ParseError
	ast := p.parseBindingAST(input, span, absoluteOffset, ic, &errs)
	return NewASTWithSource(ast, &input, getLocation(span), absoluteOffset, errs)
}

// ParseSimpleBinding is ParseBinding for host bindings, where pipes are not allowed.
func (p *Parser) ParseSimpleBinding(input string, span *util.ParseSourceSpan, absoluteOffset int, ic ml_parser.InterpolationConfig) *ASTWithSource {
	var errs []*util.ParseError
	ast := p.parseBindingAST(input, span, absoluteOffset, ic, &errs)
	hasPipe := false
	Walk(ast, func(n AST) bool {
		if _, ok := n.(*BindingPipe); ok {
			hasPipe = true
		}
		return !hasPipe
	})
	if hasPipe {
		errs = append(errs, getParseError("Host binding expression cannot contain pipes", input, "", span))
	}
	return NewASTWithSource(ast, &input, getLocation(span), absoluteOffset, errs)
}

func (p *Parser) parseBindingAST(input string, span *util.ParseSourceSpan, absoluteOffset int, ic ml_parser.InterpolationConfig, errs *[]*util.ParseError) AST {
	p.checkNoInterpolation(errs, input, span, ic)
	stripped, _ := stripComments(input)
	return newParseAST(input, span, absoluteOffset, p.lexer.Tokenize(stripped), parseFlagsNone, errs, 0).parseChain()
}

// ParseTemplateBindings parses the microsyntax of a `*key="value"` attribute, e.g.
// `*ngFor="let item of items; index as i; trackBy: fn"`. The first binding is always for
// templateKey itself.
func (p *Parser) ParseTemplateBindings(templateKey, templateValue string, span *util.ParseSourceSpan, absoluteKeyOffset, absoluteValueOffset int) *TemplateBindingParseResult {
	var errs []*util.ParseError
	parser := newParseAST(templateValue, span, absoluteValueOffset, p.lexer.Tokenize(templateValue), parseFlagsNone, &errs, 0)
	return parser.parseTemplateBindings(&TemplateBindingIdentifier{
		Source: templateKey,
		Span:   AbsoluteSourceSpan{Start: absoluteKeyOffset, End: absoluteKeyOffset + len(templateKey)},
	})
}

// ParseInterpolation parses text containing interpolations. It returns nil when input
// has none.
func (p *Parser) ParseInterpolation(input string, span *util.ParseSourceSpan, absoluteOffset int, ic ml_parser.InterpolationConfig) *ASTWithSource {
	var errs []*util.ParseError
	split := p.SplitInterpolation(input, span, &errs, ic)
	if len(split.Expressions) == 0 {
		return nil
	}

	var exprs []AST
	for i, piece := range split.Expressions {
		stripped, hasComments := stripComments(piece.Text)
		tokens := p.lexer.Tokenize(stripped)
		if hasComments && strings.TrimSpace(stripped) == "" && len(tokens) == 0 {
			errs = append(errs, getParseError("Interpolation expression cannot only contain a comment",
				input, fmt.Sprintf("at column %d in", piece.Start), span))
			continue
		}
		exprs = append(exprs, newParseAST(piece.Text, span, absoluteOffset, tokens, parseFlagsNone, &errs, split.Offsets[i]).parseChain())
	}

	strs := make([]string, len(split.Strings))
	for i, s := range split.Strings {
		strs[i] = s.Text
	}
	return p.createInterpolationAST(strs, exprs, input, getLocation(span), absoluteOffset, errs)
}

// ParseInterpolationExpression wraps a single expression, such as an ICU switch value, as
// an interpolation with empty surrounding strings.
func (p *Parser) ParseInterpolationExpression(expression string, span *util.ParseSourceSpan, absoluteOffset int) *ASTWithSource {
	var errs []*util.ParseError
	stripped, _ := stripComments(expression)
	ast := newParseAST(expression, span, absoluteOffset, p.lexer.Tokenize(stripped), parseFlagsNone, &errs, 0).parseChain()
	return p.createInterpolationAST([]string{"", ""}, []AST{ast}, expression, getLocation(span), absoluteOffset, errs)
}

// WrapLiteralPrimitive turns a plain attribute value into a string literal binding.
func (p *Parser) WrapLiteralPrimitive(input string, location string, absoluteOffset int) *ASTWithSource {
	span := ParseSpan{0, len(input)}
	lit := &LiteralPrimitive{spans: mkSpans(span, span.ToAbsolute(absoluteOffset)), Value: input}
	return NewASTWithSource(lit, &input, location, absoluteOffset, nil)
}

func (p *Parser) createInterpolationAST(strs []string, exprs []AST, input, location string, absoluteOffset int, errs []*util.ParseError) *ASTWithSource {
	span := ParseSpan{0, len(input)}
	interp := &Interpolation{spans: mkSpans(span, span.ToAbsolute(absoluteOffset)), Strings: strs, Expressions: exprs}
	return NewASTWithSource(interp, &input, location, absoluteOffset, errs)
}

func (p *Parser) checkNoInterpolation(errs *[]*util.ParseError, input string, span *util.ParseSourceSpan, ic ml_parser.InterpolationConfig) {
	start := -1
	end := -1
	forEachUnquotedChar(input, 0, func(i int) bool {
		if start == -1 {
			if strings.HasPrefix(input[i:], ic.Start) {
				start = i
			}
			return true
		}
		end = getInterpolationEndIndex(input, ic.End, i)
		return end == -1
	})
	if start > -1 && end > -1 {
		*errs = append(*errs, getParseError(
			fmt.Sprintf("Got interpolation (%s%s) where expression was expected", ic.Start, ic.End),
			input, fmt.Sprintf("at column %d in", start), span))
	}
}

// SplitInterpolation cuts input into literal strings and expression sources. An
// unterminated interpolation is kept as literal text.
func (p *Parser) SplitInterpolation(input string, span *util.ParseSourceSpan, errs *[]*util.ParseError, ic ml_parser.InterpolationConfig) *SplitInterpolation {
	var (
		strs, exprs []InterpolationPiece
		offsets     []int
	)
	i := 0
	atInterpolation := false
	extendLastString := false
	for i < len(input) {
		if !atInterpolation {
			start := i
			if idx := strings.Index(input[i:], ic.Start); idx == -1 {
				i = len(input)
			} else {
				i += idx
			}
			strs = append(strs, InterpolationPiece{Text: input[start:i], Start: start, End: i})
			atInterpolation = true
			continue
		}

		fullStart := i
		exprStart := fullStart + len(ic.Start)
		exprEnd := getInterpolationEndIndex(input, ic.End, exprStart)
		if exprEnd == -1 {
			atInterpolation = false
			extendLastString = true
			break
		}
		fullEnd := exprEnd + len(ic.End)
		text := input[exprStart:exprEnd]
		if strings.TrimSpace(text) == "" {
			*errs = append(*errs, getParseError("Blank expressions are not allowed in interpolated strings",
				input, fmt.Sprintf("at column %d in", i), span))
		}
		exprs = append(exprs, InterpolationPiece{Text: text, Start: fullStart, End: fullEnd})
		offsets = append(offsets, exprStart)
		i = fullEnd
		atInterpolation = false
	}
	if !atInterpolation {
		if extendLastString && len(strs) > 0 {
			last := &strs[len(strs)-1]
			last.Text += input[i:]
			last.End = len(input)
		} else {
			strs = append(strs, InterpolationPiece{Text: input[i:], Start: i, End: len(input)})
		}
	}
	return &SplitInterpolation{Strings: strs, Expressions: exprs, Offsets: offsets}
}

func stripComments(input string) (string, bool) {
	if i := commentStart(input); i >= 0 {
		return input[:i], true
	}
	return input, false
}

func commentStart(input string) int {
	var outerQuote rune
	for i := 0; i < len(input)-1; i++ {
		ch, next := rune(input[i]), rune(input[i+1])
		if ch == core.CharSLASH && next == core.CharSLASH && outerQuote == 0 {
			return i
		}
		if outerQuote == ch {
			outerQuote = 0
		} else if outerQuote == 0 && core.IsQuote(ch) {
			outerQuote = ch
		}
	}
	return -1
}

func getInterpolationEndIndex(input, end string, start int) int {
	result := -1
	forEachUnquotedChar(input, start, func(i int) bool {
		if strings.HasPrefix(input[i:], end) {
			result = i
			return false
		}
		// Past a comment only the end marker matters.
		if strings.HasPrefix(input[i:], "//") {
			if idx := strings.Index(input[i:], end); idx != -1 {
				result = i + idx
			}
			return false
		}
		return true
	})
	return result
}

// forEachUnquotedChar calls fn for each byte index outside quotes until fn returns false.
func forEachUnquotedChar(input string, start int, fn func(int) bool) {
	var currentQuote rune
	escapeCount := 0
	for i := start; i < len(input); i++ {
		ch := rune(input[i])
		if core.IsQuote(ch) && (currentQuote == 0 || currentQuote == ch) && escapeCount%2 == 0 {
			if currentQuote == 0 {
				currentQuote = ch
			} else {
				currentQuote = 0
			}
		} else if currentQuote == 0 {
			if !fn(i) {
				return
			}
		}
		if ch == core.CharBACKSLASH {
			escapeCount++
		} else {
			escapeCount = 0
		}
	}
}

func getParseError(message, input, locationText string, span *util.ParseSourceSpan) *util.ParseError {
	if locationText != "" {
		locationText = " " + locationText + " "
	}
	return util.NewParseError(span, fmt.Sprintf("Parser Error: %s%s[%s] in %s", message, locationText, input, getLocation(span)))
}

// parseAST is the recursive-descent parser over one token list.
type parseAST struct {
	input             string
	parseSourceSpan   *util.ParseSourceSpan
	absoluteOffset    int
	tokens            []*Token
	flags             parseFlags
	errors            *[]*util.ParseError
	offset            int
	index             int
	rparensExpected   int
	rbracketsExpected int
	rbracesExpected   int
	context           parseContextFlags
}

func newParseAST(input string, span *util.ParseSourceSpan, absoluteOffset int, tokens []*Token, flags parseFlags, errs *[]*util.ParseError, offset int) *parseAST {
	return &parseAST{
		input:           input,
		parseSourceSpan: span,
		absoluteOffset:  absoluteOffset,
		tokens:          tokens,
		flags:           flags,
		errors:          errs,
		offset:          offset,
	}
}

func (p *parseAST) peek(offset int) *Token {
	if i := p.index + offset; i >= 0 && i < len(p.tokens) {
		return p.tokens[i]
	}
	return eofToken
}

func (p *parseAST) next() *Token { return p.peek(0) }
func (p *parseAST) atEOF() bool  { return p.index >= len(p.tokens) }
func (p *parseAST) advance()     { p.index++ }

func (p *parseAST) inputIndex() int {
	if p.atEOF() {
		return p.currentEndIndex()
	}
	return p.next().Index + p.offset
}

func (p *parseAST) currentEndIndex() int {
	if p.index > 0 {
		return p.peek(-1).End + p.offset
	}
	if len(p.tokens) == 0 {
		return len(p.input) + p.offset
	}
	return p.next().Index + p.offset
}

func (p *parseAST) currentAbsoluteOffset() int {
	return p.absoluteOffset + p.inputIndex()
}

// span covers start up to the end of the last consumed token, or artificialEnd when that
// is larger.
func (p *parseAST) span(start int, artificialEnd ...int) ParseSpan {
	end := p.currentEndIndex()
	if len(artificialEnd) > 0 && artificialEnd[0] > end {
		end = artificialEnd[0]
	}
	if start > end {
		start, end = end, start
	}
	return ParseSpan{start, end}
}

func (p *parseAST) spans(start int, artificialEnd ...int) spans {
	span := p.span(start, artificialEnd...)
	return mkSpans(span, span.ToAbsolute(p.absoluteOffset))
}

func (p *parseAST) sourceSpan(start int) AbsoluteSourceSpan {
	return p.span(start).ToAbsolute(p.absoluteOffset)
}

func (p *parseAST) withContext(ctx parseContextFlags, fn func() AST) AST {
	p.context |= ctx
	defer func() { p.context ^= ctx }()
	return fn()
}

func (p *parseAST) consumeOptionalCharacter(ch rune) bool {
	if p.next().IsCharacter(ch) {
		p.advance()
		return true
	}
	return false
}

func (p *parseAST) consumeOptionalOperator(op string) bool {
	if p.next().IsOperator(op) {
		p.advance()
		return true
	}
	return false
}

func (p *parseAST) expectCharacter(ch rune) {
	if !p.consumeOptionalCharacter(ch) {
		p.error(fmt.Sprintf("Missing expected %c", ch))
	}
}

func (p *parseAST) isAssignmentOperator(t *Token) bool {
	return t.Type == TokenTypeOperator && IsAssignmentOperation(t.StrValue)
}

func (p *parseAST) prettyPrintToken(t *Token) string {
	if t == eofToken {
		return "end of input"
	}
	return "token " + t.String()
}

func (p *parseAST) expectIdentifierOrKeyword() (string, bool) {
	n := p.next()
	if !n.IsIdentifier() && !n.IsKeyword() {
		if n.IsPrivateIdentifier() {
			p.reportPrivateIdentifier(n, "expected identifier or keyword")
		} else {
			p.error(fmt.Sprintf("Unexpected %s, expected identifier or keyword", p.prettyPrintToken(n)))
		}
		return "", false
	}
	p.advance()
	return n.String(), true
}

func (p *parseAST) expectIdentifierOrKeywordOrString() string {
	n := p.next()
	if !n.IsIdentifier() && !n.IsKeyword() && !n.IsString() {
		if n.IsPrivateIdentifier() {
			p.reportPrivateIdentifier(n, "expected identifier, keyword or string")
		} else {
			p.error(fmt.Sprintf("Unexpected %s, expected identifier, keyword, or string", p.prettyPrintToken(n)))
		}
		return ""
	}
	p.advance()
	return n.String()
}

func (p *parseAST) parseChain() AST {
	var exprs []AST
	start := p.inputIndex()
	for p.index < len(p.tokens) {
		exprs = append(exprs, p.parsePipe())

		if p.consumeOptionalCharacter(core.CharSEMICOLON) {
			if p.flags&parseFlagsAction == 0 {
				p.error("Binding expression cannot contain chained expression")
			}
			for p.consumeOptionalCharacter(core.CharSEMICOLON) {
			}
		} else if p.index < len(p.tokens) {
			errorIndex := p.index
			p.error(fmt.Sprintf("Unexpected token '%s'", p.next()))
			if p.index == errorIndex {
				break
			}
		}
	}
	switch len(exprs) {
	case 0:
		start, end := p.offset, p.offset+len(p.input)
		return &EmptyExpr{p.spans(start, end)}
	case 1:
		return exprs[0]
	}
	return &Chain{spans: p.spans(start), Expressions: exprs}
}

func (p *parseAST) parsePipe() AST {
	start := p.inputIndex()
	result := p.parseExpression()
	if !p.consumeOptionalOperator("|") {
		return result
	}
	if p.flags&parseFlagsAction != 0 {
		p.error("Cannot have a pipe in an action expression")
	}
	for {
		nameStart := p.inputIndex()
		name, ok := p.expectIdentifierOrKeyword()
		var (
			nameSpan AbsoluteSourceSpan
			fullEnd  = -1
		)
		if ok {
			nameSpan = p.sourceSpan(nameStart)
		} else {
			// An empty pipe name sits after any whitespace following the bar, so the pipe
			// span reaches the next token or the end of input.
			if idx := p.next().Index; idx != -1 {
				fullEnd = idx + p.offset
			} else {
				fullEnd = len(p.input) + p.offset
			}
			nameSpan = ParseSpan{fullEnd, fullEnd}.ToAbsolute(p.absoluteOffset)
		}

		var args []AST
		for p.consumeOptionalCharacter(core.CharCOLON) {
			args = append(args, p.parseExpression())
		}
		var s spans
		if fullEnd >= 0 {
			s = p.spans(start, fullEnd)
		} else {
			s = p.spans(start)
		}
		result = &BindingPipe{spans: s, Exp: result, Name: name, Args: args, NameSpan: nameSpan}
		if !p.consumeOptionalOperator("|") {
			return result
		}
	}
}

func (p *parseAST) parseExpression() AST {
	return p.parseConditional()
}

func (p *parseAST) parseConditional() AST {
	start := p.inputIndex()
	result := p.parseLogicalOr()
	if !p.consumeOptionalOperator("?") {
		return result
	}
	yes := p.parsePipe()
	var no AST
	if !p.consumeOptionalCharacter(core.CharCOLON) {
		end := p.inputIndex()
		expression := p.input[start-p.offset : end-p.offset]
		p.error(fmt.Sprintf("Conditional expression %s requires all 3 expressions", expression))
		no = &EmptyExpr{p.spans(start)}
	} else {
		no = p.parsePipe()
	}
	return &Conditional{spans: p.spans(start), Condition: result, TrueExp: yes, FalseExp: no}
}

// parseBinaryLevel parses left-associative operators of one precedence level.
func (p *parseAST) parseBinaryLevel(operand func() AST, ops ...string) AST {
	start := p.inputIndex()
	result := operand()
	for {
		n := p.next()
		if n.Type != TokenTypeOperator && !n.IsKeywordValue("in") {
			return result
		}
		matched := ""
		for _, op := range ops {
			if n.StrValue == op {
				matched = op
				break
			}
		}
		if matched == "" {
			return result
		}
		p.advance()
		right := operand()
		result = &Binary{spans: p.spans(start), Operation: matched, Left: result, Right: right}
	}
}

func (p *parseAST) parseLogicalOr() AST {
	return p.parseBinaryLevel(p.parseLogicalAnd, "||")
}

func (p *parseAST) parseLogicalAnd() AST {
	return p.parseBinaryLevel(p.parseNullishCoalescing, "&&")
}

func (p *parseAST) parseNullishCoalescing() AST {
	return p.parseBinaryLevel(p.parseEquality, "??")
}

func (p *parseAST) parseEquality() AST {
	return p.parseBinaryLevel(p.parseRelational, "==", "===", "!=", "!==")
}

func (p *parseAST) parseRelational() AST {
	return p.parseBinaryLevel(p.parseAdditive, "<", ">", "<=", ">=", "in")
}

func (p *parseAST) parseAdditive() AST {
	return p.parseBinaryLevel(p.parseMultiplicative, "+", "-")
}

func (p *parseAST) parseMultiplicative() AST {
	return p.parseBinaryLevel(p.parseExponentiation, "*", "%", "/")
}

func (p *parseAST) parseExponentiation() AST {
	start := p.inputIndex()
	result := p.parsePrefix()
	for p.next().IsOperator("**") {
		switch result.(type) {
		case *Unary, *PrefixNot, *TypeofExpression, *VoidExpression:
			p.error("Unary operator used immediately before exponentiation expression. " +
				"Parenthesis must be used to disambiguate operator precedence")
		}
		p.advance()
		right := p.parseExponentiation()
		result = &Binary{spans: p.spans(start), Operation: "**", Left: result, Right: right}
	}
	return result
}

func (p *parseAST) parsePrefix() AST {
	n := p.next()
	start := p.inputIndex()
	switch {
	case n.IsOperator("+"), n.IsOperator("-"):
		p.advance()
		expr := p.parsePrefix()
		return &Unary{spans: p.spans(start), Operator: n.StrValue, Expr: expr}
	case n.IsOperator("!"):
		p.advance()
		expr := p.parsePrefix()
		return &PrefixNot{spans: p.spans(start), Expression: expr}
	case n.IsKeywordValue("typeof"):
		p.advance()
		expr := p.parsePrefix()
		return &TypeofExpression{spans: p.spans(start), Expression: expr}
	case n.IsKeywordValue("void"):
		p.advance()
		expr := p.parsePrefix()
		return &VoidExpression{spans: p.spans(start), Expression: expr}
	}
	return p.parseCallChain()
}

func (p *parseAST) parseCallChain() AST {
	start := p.inputIndex()
	result := p.parsePrimary()
	for {
		switch {
		case p.consumeOptionalCharacter(core.CharPERIOD):
			result = p.parseAccessMember(result, start, false)
		case p.consumeOptionalOperator("?."):
			switch {
			case p.consumeOptionalCharacter(core.CharLPAREN):
				result = p.parseCall(result, start, true)
			case p.consumeOptionalCharacter(core.CharLBRACKET):
				result = p.parseKeyedReadOrWrite(result, start, true)
			default:
				result = p.parseAccessMember(result, start, true)
			}
		case p.consumeOptionalCharacter(core.CharLBRACKET):
			result = p.parseKeyedReadOrWrite(result, start, false)
		case p.consumeOptionalCharacter(core.CharLPAREN):
			result = p.parseCall(result, start, false)
		case p.consumeOptionalOperator("!"):
			result = &NonNullAssert{spans: p.spans(start), Expression: result}
		case p.next().IsTemplateLiteralEnd(), p.next().IsTemplateLiteralPart():
			tmpl := p.parseTemplateLiteral()
			result = &TaggedTemplateLiteral{spans: p.spans(start), Tag: result, Template: tmpl}
		default:
			return result
		}
	}
}

func (p *parseAST) parsePrimary() AST {
	start := p.inputIndex()
	n := p.next()
	switch {
	case p.consumeOptionalCharacter(core.CharLPAREN):
		p.rparensExpected++
		result := p.parsePipe()
		if !p.consumeOptionalCharacter(core.CharRPAREN) {
			p.error("Missing closing parentheses")
			// error() skips up to the next closing paren; take it to recover.
			p.consumeOptionalCharacter(core.CharRPAREN)
		}
		p.rparensExpected--
		return &ParenthesizedExpression{spans: p.spans(start), Expression: result}
	case n.IsKeywordValue("null"):
		p.advance()
		return &LiteralPrimitive{spans: p.spans(start), Value: nil}
	case n.IsKeywordValue("undefined"):
		p.advance()
		return &LiteralPrimitive{spans: p.spans(start), Value: UndefinedValue}
	case n.IsKeywordValue("true"):
		p.advance()
		return &LiteralPrimitive{spans: p.spans(start), Value: true}
	case n.IsKeywordValue("false"):
		p.advance()
		return &LiteralPrimitive{spans: p.spans(start), Value: false}
	case n.IsKeywordValue("this"):
		p.advance()
		return &ThisReceiver{p.spans(start)}
	case p.consumeOptionalCharacter(core.CharLBRACKET):
		p.rbracketsExpected++
		elements := p.parseExpressionList(core.CharRBRACKET)
		p.rbracketsExpected--
		p.expectCharacter(core.CharRBRACKET)
		return &LiteralArray{spans: p.spans(start), Expressions: elements}
	case n.IsCharacter(core.CharLBRACE):
		return p.parseLiteralMap()
	case n.IsIdentifier():
		return p.parseAccessMember(&ImplicitReceiver{p.spans(start)}, start, false)
	case n.IsNumber():
		p.advance()
		return &LiteralPrimitive{spans: p.spans(start), Value: n.NumValue}
	case n.IsTemplateLiteralEnd(), n.IsTemplateLiteralPart():
		return p.parseTemplateLiteral()
	case n.IsString():
		p.advance()
		return &LiteralPrimitive{spans: p.spans(start), Value: n.StrValue}
	case n.IsPrivateIdentifier():
		p.reportPrivateIdentifier(n, "")
		return &EmptyExpr{p.spans(start)}
	case p.index >= len(p.tokens):
		p.error("Unexpected end of expression: " + p.input)
		return &EmptyExpr{p.spans(start)}
	default:
		p.error(fmt.Sprintf("Unexpected token %s", n))
		return &EmptyExpr{p.spans(start)}
	}
}

func (p *parseAST) parseExpressionList(terminator rune) []AST {
	var result []AST
	for !p.next().IsCharacter(terminator) {
		result = append(result, p.parsePipe())
		if !p.consumeOptionalCharacter(core.CharCOMMA) {
			break
		}
	}
	return result
}

func (p *parseAST) parseLiteralMap() AST {
	var (
		keys   []LiteralMapKey
		values []AST
	)
	start := p.inputIndex()
	p.expectCharacter(core.CharLBRACE)
	if !p.consumeOptionalCharacter(core.CharRBRACE) {
		p.rbracesExpected++
		for {
			keyStart := p.inputIndex()
			quoted := p.next().IsString()
			key := LiteralMapKey{Key: p.expectIdentifierOrKeywordOrString(), Quoted: quoted}

			switch {
			case quoted:
				// Quoted keys cannot use the shorthand form.
				p.expectCharacter(core.CharCOLON)
				values = append(values, p.parsePipe())
			case p.consumeOptionalCharacter(core.CharCOLON):
				values = append(values, p.parsePipe())
			default:
				key.IsShorthandInitialized = true
				s := p.spans(keyStart)
				values = append(values, &PropertyRead{
					spans:    s,
					NameSpan: s.sourceSpan,
					Receiver: &ImplicitReceiver{s},
					Name:     key.Key,
				})
			}
			keys = append(keys, key)
			if !p.consumeOptionalCharacter(core.CharCOMMA) || p.next().IsCharacter(core.CharRBRACE) {
				break
			}
		}
		p.rbracesExpected--
		p.expectCharacter(core.CharRBRACE)
	}
	return &LiteralMap{spans: p.spans(start), Keys: keys, Values: values}
}

func (p *parseAST) parseAccessMember(receiver AST, start int, isSafe bool) AST {
	nameStart := p.inputIndex()
	var id string
	p.withContext(contextWritable, func() AST {
		id, _ = p.expectIdentifierOrKeyword()
		if id == "" {
			p.error("Expected identifier for property access", receiver.Span().End)
		}
		return nil
	})
	nameSpan := p.sourceSpan(nameStart)

	if isSafe {
		if p.isAssignmentOperator(p.next()) {
			p.advance()
			p.error("The '?.' operator cannot be used in the assignment")
			return &EmptyExpr{p.spans(start)}
		}
		return &SafePropertyRead{spans: p.spans(start), NameSpan: nameSpan, Receiver: receiver, Name: id}
	}

	if p.isAssignmentOperator(p.next()) {
		op := p.next().StrValue
		if p.flags&parseFlagsAction == 0 {
			p.advance()
			p.error("Bindings cannot contain assignments")
			return &EmptyExpr{p.spans(start)}
		}
		target := &PropertyRead{spans: p.spans(start), NameSpan: nameSpan, Receiver: receiver, Name: id}
		p.advance()
		value := p.parseConditional()
		return &Binary{spans: p.spans(start), Operation: op, Left: target, Right: value}
	}
	return &PropertyRead{spans: p.spans(start), NameSpan: nameSpan, Receiver: receiver, Name: id}
}

func (p *parseAST) parseCall(receiver AST, start int, isSafe bool) AST {
	argumentStart := p.inputIndex()
	p.rparensExpected++
	var args []AST
	if !p.next().IsCharacter(core.CharRPAREN) {
		for {
			args = append(args, p.parsePipe())
			if !p.consumeOptionalCharacter(core.CharCOMMA) {
				break
			}
		}
	}
	argumentSpan := p.span(argumentStart, p.inputIndex()).ToAbsolute(p.absoluteOffset)
	p.expectCharacter(core.CharRPAREN)
	p.rparensExpected--
	if isSafe {
		return &SafeCall{spans: p.spans(start), Receiver: receiver, Args: args, ArgumentSpan: argumentSpan}
	}
	return &Call{spans: p.spans(start), Receiver: receiver, Args: args, ArgumentSpan: argumentSpan}
}

func (p *parseAST) parseKeyedReadOrWrite(receiver AST, start int, isSafe bool) AST {
	return p.withContext(contextWritable, func() AST {
		p.rbracketsExpected++
		key := p.parsePipe()
		if _, ok := key.(*EmptyExpr); ok {
			p.error("Key access cannot be empty")
		}
		p.rbracketsExpected--
		p.expectCharacter(core.CharRBRACKET)

		if p.isAssignmentOperator(p.next()) {
			op := p.next().StrValue
			if isSafe {
				p.advance()
				p.error("The '?.' operator cannot be used in the assignment")
				return &EmptyExpr{p.spans(start)}
			}
			target := &KeyedRead{spans: p.spans(start), Receiver: receiver, Key: key}
			p.advance()
			value := p.parseConditional()
			return &Binary{spans: p.spans(start), Operation: op, Left: target, Right: value}
		}
		if isSafe {
			return &SafeKeyedRead{spans: p.spans(start), Receiver: receiver, Key: key}
		}
		return &KeyedRead{spans: p.spans(start), Receiver: receiver, Key: key}
	})
}

func (p *parseAST) parseTemplateLiteral() *TemplateLiteral {
	var (
		elements []*TemplateLiteralElement
		exprs    []AST
	)
	start := p.inputIndex()
	for p.next() != eofToken {
		tok := p.next()
		switch {
		case tok.IsTemplateLiteralPart(), tok.IsTemplateLiteralEnd():
			partStart := p.inputIndex()
			p.advance()
			elements = append(elements, &TemplateLiteralElement{spans: p.spans(partStart), Text: tok.StrValue})
			if tok.IsTemplateLiteralEnd() {
				return &TemplateLiteral{spans: p.spans(start), Elements: elements, Expressions: exprs}
			}
		case tok.IsTemplateLiteralInterpolationStart():
			p.advance()
			p.rbracesExpected++
			expr := p.parsePipe()
			if _, ok := expr.(*EmptyExpr); ok {
				p.error("Template literal interpolation cannot be empty")
			} else {
				exprs = append(exprs, expr)
			}
			p.rbracesExpected--
		default:
			p.advance()
		}
	}
	return &TemplateLiteral{spans: p.spans(start), Elements: elements, Expressions: exprs}
}

func (p *parseAST) expectTemplateBindingKey() *TemplateBindingIdentifier {
	var result strings.Builder
	start := p.currentAbsoluteOffset()
	for {
		result.WriteString(p.expectIdentifierOrKeywordOrString())
		if !p.consumeOptionalOperator("-") {
			break
		}
		result.WriteByte('-')
	}
	key := result.String()
	return &TemplateBindingIdentifier{Source: key, Span: AbsoluteSourceSpan{Start: start, End: start + len(key)}}
}

func (p *parseAST) parseTemplateBindings(templateKey *TemplateBindingIdentifier) *TemplateBindingParseResult {
	bindings := p.parseDirectiveKeywordBindings(templateKey)
	for p.index < len(p.tokens) {
		if letBinding := p.parseLetBinding(); letBinding != nil {
			bindings = append(bindings, letBinding)
		} else {
			// Either `value as key` or `keyword expression`. Both start with a key.
			key := p.expectTemplateBindingKey()
			if asBinding := p.parseAsBinding(key); asBinding != nil {
				bindings = append(bindings, asBinding)
			} else {
				// A keyword such as `of` becomes `ngForOf` for the `ngFor` template key.
				if key.Source != "" {
					key.Source = templateKey.Source + strings.ToUpper(key.Source[:1]) + key.Source[1:]
				}
				bindings = append(bindings, p.parseDirectiveKeywordBindings(key)...)
			}
		}
		p.consumeStatementTerminator()
	}
	return &TemplateBindingParseResult{TemplateBindings: bindings, Errors: *p.errors}
}

func (p *parseAST) parseDirectiveKeywordBindings(key *TemplateBindingIdentifier) []TemplateBinding {
	p.consumeOptionalCharacter(core.CharCOLON) // trackBy: fn
	value := p.getDirectiveBoundTarget()
	spanEnd := p.currentAbsoluteOffset()
	// `*ngIf="cond as x"`: the key of this binding is the value of the next one.
	asBinding := p.parseAsBinding(key)
	if asBinding == nil {
		p.consumeStatementTerminator()
		spanEnd = p.currentAbsoluteOffset()
	}
	bindings := []TemplateBinding{&ExpressionBinding{
		Span:  AbsoluteSourceSpan{Start: key.Span.Start, End: spanEnd},
		Key:   key,
		Value: value,
	}}
	if asBinding != nil {
		bindings = append(bindings, asBinding)
	}
	return bindings
}

func (p *parseAST) getDirectiveBoundTarget() *ASTWithSource {
	if p.next() == eofToken || p.next().IsKeywordValue("as") || p.next().IsKeywordValue("let") {
		return nil
	}
	ast := p.parsePipe()
	span := ast.Span()
	value := p.input[span.Start-p.offset : span.End-p.offset]
	return NewASTWithSource(ast, &value, getLocation(p.parseSourceSpan), p.absoluteOffset+span.Start, *p.errors)
}

func (p *parseAST) parseAsBinding(value *TemplateBindingIdentifier) TemplateBinding {
	if !p.next().IsKeywordValue("as") {
		return nil
	}
	p.advance()
	key := p.expectTemplateBindingKey()
	p.consumeStatementTerminator()
	return &VariableBinding{
		Span:  AbsoluteSourceSpan{Start: value.Span.Start, End: p.currentAbsoluteOffset()},
		Key:   key,
		Value: value,
	}
}

func (p *parseAST) parseLetBinding() TemplateBinding {
	if !p.next().IsKeywordValue("let") {
		return nil
	}
	spanStart := p.currentAbsoluteOffset()
	p.advance()
	key := p.expectTemplateBindingKey()
	var value *TemplateBindingIdentifier
	if p.consumeOptionalOperator("=") {
		value = p.expectTemplateBindingKey()
	}
	p.consumeStatementTerminator()
	return &VariableBinding{
		Span:  AbsoluteSourceSpan{Start: spanStart, End: p.currentAbsoluteOffset()},
		Key:   key,
		Value: value,
	}
}

func (p *parseAST) consumeStatementTerminator() {
	if !p.consumeOptionalCharacter(core.CharSEMICOLON) {
		p.consumeOptionalCharacter(core.CharCOMMA)
	}
}

// error records a diagnostic and skips to a point where parsing can resume. index is a
// token index and defaults to the current token.
func (p *parseAST) error(message string, index ...int) {
	idx := p.index
	if len(index) > 0 {
		idx = index[0]
	}
	*p.errors = append(*p.errors, getParseError(message, p.input, p.errorLocationText(idx), p.parseSourceSpan))
	p.skip()
}

func (p *parseAST) errorLocationText(index int) string {
	if index >= 0 && index < len(p.tokens) {
		return fmt.Sprintf("at column %d in", p.tokens[index].Index+1)
	}
	return "at the end of the expression"
}

func (p *parseAST) reportPrivateIdentifier(t *Token, extra string) {
	msg := "Private identifiers are not supported. Unexpected private identifier: " + t.String()
	if extra != "" {
		msg += ", " + extra
	}
	p.error(msg)
}

// skip advances to the next token that can end the current construct: a semicolon, a pipe,
// an awaited closing delimiter, or an assignment in a writable context.
func (p *parseAST) skip() {
	for n := p.next(); p.index < len(p.tokens) &&
		!n.IsCharacter(core.CharSEMICOLON) &&
		!n.IsOperator("|") &&
		(p.rparensExpected <= 0 || !n.IsCharacter(core.CharRPAREN)) &&
		(p.rbracesExpected <= 0 || !n.IsCharacter(core.CharRBRACE)) &&
		(p.rbracketsExpected <= 0 || !n.IsCharacter(core.CharRBRACKET)) &&
		(p.context&contextWritable == 0 || !p.isAssignmentOperator(n)); n = p.next() {
		if n.IsError() {
			*p.errors = append(*p.errors, getParseError(n.String(), p.input, p.errorLocationText(p.index), p.parseSourceSpan))
		}
		p.advance()
	}
}
