package ml_parser

import (
	"fmt"
	"strings"

	"ngc-bind/packages/compiler/src/util"
)

// DefaultMaxExpansionDepth bounds the nesting of ICU expansions inside expansion cases.
const DefaultMaxExpansionDepth = 64

// TreeError is a tree-building diagnostic. ElementName is empty when the error is not
// owned by an element or block.
type TreeError struct {
	*util.ParseError
	ElementName string
}

func NewTreeError(elementName string, span *util.ParseSourceSpan, msg string) *TreeError {
	return &TreeError{ParseError: util.NewParseError(span, msg), ElementName: elementName}
}

// ParseTreeResult holds the generic tree and all lexer and tree-building diagnostics.
type ParseTreeResult struct {
	RootNodes []Node
	Errors    []*util.ParseError
}

type TreeBuilderOptions struct {
	// MaxExpansionDepth defaults to DefaultMaxExpansionDepth when zero.
	MaxExpansionDepth int
}

// TreeBuilder turns a token stream into a generic node tree. A builder is single use.
type TreeBuilder struct {
	tokens         []*Token
	index          int
	peek           *Token
	containerStack []Node
	rootNodes      []Node
	errors         []*TreeError
	getTagDef      TagDefinitionResolver
	depth          int
	maxDepth       int
}

// NewTreeBuilder panics if tokens is not terminated by an EOF token.
func NewTreeBuilder(tokens []*Token, getTagDefinition TagDefinitionResolver, opts TreeBuilderOptions) *TreeBuilder {
	util.Assertf(len(tokens) > 0 && tokens[len(tokens)-1].Type == TokenTypeEOF,
		"token stream must end with EOF")
	maxDepth := opts.MaxExpansionDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxExpansionDepth
	}
	tb := &TreeBuilder{
		tokens:    tokens,
		index:     -1,
		getTagDef: getTagDefinition,
		maxDepth:  maxDepth,
	}
	tb.advance()
	return tb
}

// BuildTree runs a TreeBuilder over tokens.
func BuildTree(tokens []*Token, getTagDefinition TagDefinitionResolver, opts TreeBuilderOptions) ([]Node, []*TreeError) {
	tb := NewTreeBuilder(tokens, getTagDefinition, opts)
	tb.Build()
	return tb.RootNodes(), tb.Errors()
}

func (tb *TreeBuilder) RootNodes() []Node    { return tb.rootNodes }
func (tb *TreeBuilder) Errors() []*TreeError { return tb.errors }

func (tb *TreeBuilder) Build() {
	for tb.peek.Type != TokenTypeEOF {
		switch tb.peek.Type {
		case TokenTypeTAG_OPEN_START, TokenTypeINCOMPLETE_TAG_OPEN:
			tb.consumeStartTag(tb.advance())
		case TokenTypeTAG_CLOSE:
			tb.closeVoidElement()
			tb.consumeEndTag(tb.advance())
		case TokenTypeCDATA_START:
			tb.closeVoidElement()
			tb.consumeCdata(tb.advance())
		case TokenTypeCOMMENT_START:
			tb.closeVoidElement()
			tb.consumeComment(tb.advance())
		case TokenTypeTEXT, TokenTypeRAW_TEXT, TokenTypeESCAPABLE_RAW_TEXT,
			TokenTypeINTERPOLATION, TokenTypeENCODED_ENTITY:
			tb.closeVoidElement()
			tb.consumeText(tb.advance())
		case TokenTypeEXPANSION_FORM_START:
			tb.closeVoidElement()
			tb.consumeExpansion(tb.advance())
		case TokenTypeBLOCK_OPEN_START:
			tb.closeVoidElement()
			tb.consumeBlockOpen(tb.advance())
		case TokenTypeBLOCK_CLOSE:
			tb.closeVoidElement()
			tb.consumeBlockClose(tb.advance())
		case TokenTypeINCOMPLETE_BLOCK_OPEN:
			tb.closeVoidElement()
			tb.consumeIncompleteBlock(tb.advance())
		case TokenTypeLET_START:
			tb.closeVoidElement()
			tb.consumeLet(tb.advance())
		case TokenTypeINCOMPLETE_LET:
			tb.closeVoidElement()
			tb.consumeIncompleteLet(tb.advance())
		default:
			// Doc types and stray tokens carry nothing the tree keeps.
			tb.advance()
		}
	}
	tb.closeVoidElement()

	// Elements still open at EOF are closed implicitly. Blocks are not.
	for _, container := range tb.containerStack {
		if block, ok := container.(*Block); ok {
			tb.errors = append(tb.errors, NewTreeError(block.Name, block.Span,
				fmt.Sprintf("Unclosed block %q", block.Name)))
		}
	}
	tb.containerStack = nil
}

func (tb *TreeBuilder) advance() *Token {
	prev := tb.peek
	if tb.index < len(tb.tokens)-1 {
		tb.index++
	}
	tb.peek = tb.tokens[tb.index]
	return prev
}

func (tb *TreeBuilder) advanceIf(tokenType TokenType) *Token {
	if tb.peek.Type == tokenType {
		return tb.advance()
	}
	return nil
}

func (tb *TreeBuilder) consumeCdata(start *Token) {
	text := tb.advanceIf(TokenTypeRAW_TEXT)
	end := tb.advanceIf(TokenTypeCDATA_END)
	last := start
	value := ""
	var tokens InterpolatedTokens
	if text != nil {
		value = text.Part(0)
		tokens = InterpolatedTokens{text}
		last = text
	}
	if end != nil {
		last = end
	}
	span := util.NewParseSourceSpan(start.SourceSpan.Start, last.SourceSpan.End, start.SourceSpan.FullStart, nil)
	tb.addToParent(&Text{Value: value, Tokens: tokens, Span: span})
}

func (tb *TreeBuilder) consumeComment(start *Token) {
	text := tb.advanceIf(TokenTypeRAW_TEXT)
	end := tb.advanceIf(TokenTypeCOMMENT_END)
	value := ""
	if text != nil {
		value = strings.TrimSpace(text.Part(0))
	}
	span := start.SourceSpan
	if end != nil {
		span = util.NewParseSourceSpan(start.SourceSpan.Start, end.SourceSpan.End, start.SourceSpan.FullStart, nil)
	}
	tb.addToParent(&Comment{Value: value, Span: span})
}

func (tb *TreeBuilder) consumeExpansion(start *Token) {
	switchValue := tb.advance()
	typ := tb.advance()
	var cases []*ExpansionCase

	for tb.peek.Type == TokenTypeEXPANSION_CASE_VALUE {
		expCase := tb.parseExpansionCase()
		if expCase == nil {
			return
		}
		cases = append(cases, expCase)
	}

	if tb.peek.Type != TokenTypeEXPANSION_FORM_END {
		tb.errors = append(tb.errors, NewTreeError("", tb.peek.SourceSpan, "Invalid ICU message. Missing '}'."))
		return
	}
	span := util.NewParseSourceSpan(start.SourceSpan.Start, tb.peek.SourceSpan.End, start.SourceSpan.FullStart, nil)
	tb.addToParent(&Expansion{
		SwitchValue:           switchValue.Part(0),
		Type:                  typ.Part(0),
		Cases:                 cases,
		Span:                  span,
		SwitchValueSourceSpan: switchValue.SourceSpan,
	})
	tb.advance()
}

func (tb *TreeBuilder) parseExpansionCase() *ExpansionCase {
	value := tb.advance()

	if tb.peek.Type != TokenTypeEXPANSION_CASE_EXP_START {
		tb.errors = append(tb.errors, NewTreeError("", tb.peek.SourceSpan, "Invalid ICU message. Missing '{'."))
		return nil
	}
	start := tb.advance()

	exp := tb.collectExpansionExpTokens(start)
	if exp == nil {
		return nil
	}
	end := tb.advance()
	exp = append(exp, NewToken(TokenTypeEOF, nil, end.SourceSpan))

	if tb.depth+1 > tb.maxDepth {
		util.Failf("ICU expansion nesting exceeds %d levels", tb.maxDepth)
	}
	caseBuilder := NewTreeBuilder(exp, tb.getTagDef, TreeBuilderOptions{MaxExpansionDepth: tb.maxDepth})
	caseBuilder.depth = tb.depth + 1
	caseBuilder.Build()
	if len(caseBuilder.errors) > 0 {
		tb.errors = append(tb.errors, caseBuilder.errors...)
		return nil
	}

	return &ExpansionCase{
		Value:           value.Part(0),
		Expression:      caseBuilder.rootNodes,
		Span:            util.NewParseSourceSpan(value.SourceSpan.Start, end.SourceSpan.End, value.SourceSpan.FullStart, nil),
		ValueSourceSpan: value.SourceSpan,
		ExpSourceSpan:   util.NewParseSourceSpan(start.SourceSpan.Start, end.SourceSpan.End, start.SourceSpan.FullStart, nil),
	}
}

// collectExpansionExpTokens gathers the tokens of one case body. The closing
// EXPANSION_CASE_EXP_END is left as the next token.
func (tb *TreeBuilder) collectExpansionExpTokens(start *Token) []*Token {
	exp := []*Token{}
	stack := []TokenType{TokenTypeEXPANSION_CASE_EXP_START}
	missingBrace := func() []*Token {
		tb.errors = append(tb.errors, NewTreeError("", start.SourceSpan, "Invalid ICU message. Missing '}'."))
		return nil
	}

	for {
		switch tb.peek.Type {
		case TokenTypeEXPANSION_FORM_START, TokenTypeEXPANSION_CASE_EXP_START:
			stack = append(stack, tb.peek.Type)
		case TokenTypeEXPANSION_CASE_EXP_END:
			if !lastOnStack(stack, TokenTypeEXPANSION_CASE_EXP_START) {
				return missingBrace()
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return exp
			}
		case TokenTypeEXPANSION_FORM_END:
			if !lastOnStack(stack, TokenTypeEXPANSION_FORM_START) {
				return missingBrace()
			}
			stack = stack[:len(stack)-1]
		case TokenTypeEOF:
			return missingBrace()
		}
		exp = append(exp, tb.advance())
	}
}

func lastOnStack(stack []TokenType, tokenType TokenType) bool {
	return len(stack) > 0 && stack[len(stack)-1] == tokenType
}

func (tb *TreeBuilder) consumeText(token *Token) {
	startSpan := token.SourceSpan
	tokens := InterpolatedTokens{token}
	text := tb.tokenText(token)

	if token.Type != TokenTypeINTERPOLATION && strings.HasPrefix(text, "\n") {
		if parent, ok := tb.getContainer().(*Element); ok && len(parent.Children) == 0 &&
			tb.getTagDef(parent.Name).IgnoreFirstLf() {
			text = text[1:]
			tokens[0] = NewToken(token.Type, []string{text}, token.SourceSpan)
		}
	}

	for tb.peek.Type == TokenTypeINTERPOLATION || tb.peek.Type == TokenTypeTEXT ||
		tb.peek.Type == TokenTypeENCODED_ENTITY {
		token = tb.advance()
		tokens = append(tokens, token)
		text += tb.tokenText(token)
	}

	if text != "" {
		end := token.SourceSpan
		tb.addToParent(&Text{
			Value:  text,
			Tokens: tokens,
			Span:   util.NewParseSourceSpan(startSpan.Start, end.End, startSpan.FullStart, startSpan.Details),
		})
	}
}

func (tb *TreeBuilder) tokenText(token *Token) string {
	switch token.Type {
	case TokenTypeINTERPOLATION, TokenTypeATTR_VALUE_INTERPOLATION:
		return decodeEntitiesInInterpolation(strings.Join(token.Parts, ""))
	case TokenTypeENCODED_ENTITY:
		return token.Part(0)
	default:
		return strings.Join(token.Parts, "")
	}
}

func (tb *TreeBuilder) closeVoidElement() {
	if el, ok := tb.getContainer().(*Element); ok && tb.getTagDef(el.Name).IsVoid() {
		tb.containerStack = tb.containerStack[:len(tb.containerStack)-1]
	}
}

func (tb *TreeBuilder) consumeStartTag(startTag *Token) {
	var attrs []*Attribute
	for tb.peek.Type == TokenTypeATTR_NAME {
		attrs = append(attrs, tb.consumeAttr(tb.advance()))
	}
	fullName := tb.getElementFullName(startTag.Part(0), startTag.Part(1), tb.getClosestElementLikeParent())
	tagDef := tb.getTagDef(fullName)

	selfClosing := false
	switch tb.peek.Type {
	case TokenTypeTAG_OPEN_END_VOID:
		tb.advance()
		selfClosing = true
		if !(tagDef.CanSelfClose() || GetNsPrefix(fullName) != "" || tagDef.IsVoid()) {
			tb.errors = append(tb.errors, NewTreeError(fullName, startTag.SourceSpan,
				fmt.Sprintf("Only void, custom and foreign elements can be self closed %q", startTag.Part(1))))
		}
	case TokenTypeTAG_OPEN_END:
		tb.advance()
	}

	end := tb.peek.SourceSpan.FullStart
	span := util.NewParseSourceSpan(startTag.SourceSpan.Start, end, startTag.SourceSpan.FullStart, nil)
	startSpan := util.NewParseSourceSpan(startTag.SourceSpan.Start, end, startTag.SourceSpan.FullStart, nil)
	el := &Element{
		Name:            fullName,
		Attrs:           attrs,
		IsSelfClosing:   selfClosing,
		Span:            span,
		StartSourceSpan: startSpan,
		IsVoid:          tagDef.IsVoid(),
	}
	parent, isElement := tb.getContainer().(*Element)
	tb.pushContainer(el, isElement && tb.getTagDef(parent.Name).IsClosedByChild(el.Name))

	switch {
	case selfClosing:
		tb.popContainer(fullName, false, span)
	case startTag.Type == TokenTypeINCOMPLETE_TAG_OPEN:
		tb.popContainer(fullName, false, nil)
		tb.errors = append(tb.errors, NewTreeError(fullName, span,
			fmt.Sprintf("Opening tag %q not terminated.", fullName)))
	case el.IsVoid:
		tb.containerStack = tb.containerStack[:len(tb.containerStack)-1]
	}
}

func (tb *TreeBuilder) consumeAttr(attrName *Token) *Attribute {
	fullName := MergeNsAndName(attrName.Part(0), attrName.Part(1))
	attrEnd := attrName.SourceSpan.End

	if quote := tb.advanceIf(TokenTypeATTR_QUOTE); quote != nil {
		attrEnd = quote.SourceSpan.End
	}

	var (
		value       strings.Builder
		valueTokens InterpolatedTokens
		valueSpan   *util.ParseSourceSpan
	)
	if tb.peek.Type == TokenTypeATTR_VALUE_TEXT {
		valueStart := tb.peek.SourceSpan
		valueEnd := valueStart.End
		for tb.peek.Type == TokenTypeATTR_VALUE_TEXT ||
			tb.peek.Type == TokenTypeATTR_VALUE_INTERPOLATION ||
			tb.peek.Type == TokenTypeENCODED_ENTITY {
			valueToken := tb.advance()
			valueTokens = append(valueTokens, valueToken)
			value.WriteString(tb.tokenText(valueToken))
			valueEnd = valueToken.SourceSpan.End
		}
		valueSpan = util.NewParseSourceSpan(valueStart.Start, valueEnd, valueStart.FullStart, nil)
		attrEnd = valueEnd
	}

	if quote := tb.advanceIf(TokenTypeATTR_QUOTE); quote != nil {
		attrEnd = quote.SourceSpan.End
	}

	return &Attribute{
		Name:        fullName,
		Value:       value.String(),
		Span:        util.NewParseSourceSpan(attrName.SourceSpan.Start, attrEnd, attrName.SourceSpan.FullStart, nil),
		KeySpan:     attrName.SourceSpan,
		ValueSpan:   valueSpan,
		ValueTokens: valueTokens,
	}
}

func (tb *TreeBuilder) consumeEndTag(endTag *Token) {
	fullName := tb.getElementFullName(endTag.Part(0), endTag.Part(1), tb.getClosestElementLikeParent())

	if tb.getTagDef(fullName).IsVoid() {
		tb.errors = append(tb.errors, NewTreeError(fullName, endTag.SourceSpan,
			fmt.Sprintf("Void elements do not have end tags %q", endTag.Part(1))))
		return
	}
	if !tb.popContainer(fullName, false, endTag.SourceSpan) {
		tb.errors = append(tb.errors, NewTreeError(fullName, endTag.SourceSpan, fmt.Sprintf(
			"Unexpected closing tag %q. It may happen when the tag has already been closed by another tag. "+
				"For more info see https://www.w3.org/TR/html5/syntax.html#closing-elements-that-have-implied-end-tags",
			fullName)))
	}
}

func (tb *TreeBuilder) consumeBlockParameters() []*BlockParameter {
	var params []*BlockParameter
	for tb.peek.Type == TokenTypeBLOCK_PARAMETER {
		p := tb.advance()
		params = append(params, &BlockParameter{Expression: p.Part(0), Span: p.SourceSpan})
	}
	return params
}

func (tb *TreeBuilder) consumeBlockOpen(token *Token) {
	params := tb.consumeBlockParameters()
	tb.advanceIf(TokenTypeBLOCK_OPEN_END)

	end := tb.peek.SourceSpan.FullStart
	span := util.NewParseSourceSpan(token.SourceSpan.Start, end, token.SourceSpan.FullStart, nil)
	startSpan := util.NewParseSourceSpan(token.SourceSpan.Start, end, token.SourceSpan.FullStart, nil)
	tb.pushContainer(&Block{
		Name:            token.Part(0),
		Parameters:      params,
		Span:            span,
		NameSpan:        token.SourceSpan,
		StartSourceSpan: startSpan,
	}, false)
}

func (tb *TreeBuilder) consumeBlockClose(token *Token) {
	if !tb.popContainer("", true, token.SourceSpan) {
		tb.errors = append(tb.errors, NewTreeError("", token.SourceSpan,
			`Unexpected closing block. The block may have been closed earlier. `+
				`If you meant to write the } character, you should use the "&#125;" HTML entity instead.`))
	}
}

func (tb *TreeBuilder) consumeIncompleteBlock(token *Token) {
	params := tb.consumeBlockParameters()

	end := tb.peek.SourceSpan.FullStart
	span := util.NewParseSourceSpan(token.SourceSpan.Start, end, token.SourceSpan.FullStart, nil)
	startSpan := util.NewParseSourceSpan(token.SourceSpan.Start, end, token.SourceSpan.FullStart, nil)
	name := token.Part(0)
	tb.pushContainer(&Block{
		Name:            name,
		Parameters:      params,
		Span:            span,
		NameSpan:        token.SourceSpan,
		StartSourceSpan: startSpan,
	}, false)
	tb.popContainer("", true, nil)
	tb.errors = append(tb.errors, NewTreeError(name, span, fmt.Sprintf(
		`Incomplete block %q. If you meant to write the @ character, you should use the "&#64;" HTML entity instead.`, name)))
}

func (tb *TreeBuilder) consumeLet(start *Token) {
	name := start.Part(0)
	if tb.peek.Type != TokenTypeLET_VALUE {
		tb.errors = append(tb.errors, NewTreeError(name, start.SourceSpan,
			fmt.Sprintf("Invalid @let declaration %q. Declaration must have a value.", name)))
		return
	}
	value := tb.advance()
	if tb.peek.Type != TokenTypeLET_END {
		tb.errors = append(tb.errors, NewTreeError(name, start.SourceSpan,
			fmt.Sprintf("Unterminated @let declaration %q. Declaration must be terminated with a semicolon.", name)))
		return
	}
	end := tb.advance()

	span := util.NewParseSourceSpan(start.SourceSpan.Start, end.SourceSpan.FullStart, start.SourceSpan.FullStart, nil)
	nameOffset := strings.LastIndex(start.SourceSpan.String(), name)
	nameSpan := util.NewParseSourceSpan(start.SourceSpan.Start.MoveBy(nameOffset), start.SourceSpan.End, nil, nil)
	tb.addToParent(&LetDeclaration{
		Name:      name,
		Value:     value.Part(0),
		Span:      span,
		NameSpan:  nameSpan,
		ValueSpan: value.SourceSpan,
	})
}

func (tb *TreeBuilder) consumeIncompleteLet(token *Token) {
	name := token.Part(0)
	nameString := ""
	if name != "" {
		nameString = fmt.Sprintf(" %q", name)
		nameOffset := strings.LastIndex(token.SourceSpan.String(), name)
		nameSpan := util.NewParseSourceSpan(token.SourceSpan.Start.MoveBy(nameOffset), token.SourceSpan.End, nil, nil)
		valueSpan := util.NewParseSourceSpan(token.SourceSpan.End, token.SourceSpan.End, nil, nil)
		tb.addToParent(&LetDeclaration{Name: name, Span: token.SourceSpan, NameSpan: nameSpan, ValueSpan: valueSpan})
	}
	tb.errors = append(tb.errors, NewTreeError(name, token.SourceSpan, fmt.Sprintf(
		"Incomplete @let declaration%s. @let declarations must be written as `@let <name> = <value>;`", nameString)))
}

func (tb *TreeBuilder) getContainer() Node {
	if len(tb.containerStack) == 0 {
		return nil
	}
	return tb.containerStack[len(tb.containerStack)-1]
}

func (tb *TreeBuilder) getClosestElementLikeParent() *Element {
	for i := len(tb.containerStack) - 1; i >= 0; i-- {
		if el, ok := tb.containerStack[i].(*Element); ok {
			return el
		}
	}
	return nil
}

func (tb *TreeBuilder) addToParent(node Node) {
	switch parent := tb.getContainer().(type) {
	case nil:
		tb.rootNodes = append(tb.rootNodes, node)
	case *Element:
		parent.Children = append(parent.Children, node)
	case *Block:
		parent.Children = append(parent.Children, node)
	default:
		util.Failf("unexpected container %T", parent)
	}
}

func (tb *TreeBuilder) pushContainer(node Node, isClosedByChild bool) {
	if isClosedByChild {
		tb.containerStack = tb.containerStack[:len(tb.containerStack)-1]
	}
	tb.addToParent(node)
	tb.containerStack = append(tb.containerStack, node)
}

// popContainer closes the innermost container matching the request and implicitly
// closes everything opened after it. Element closes stop at a block boundary. It reports
// false, leaving the stack untouched, when nothing matches.
func (tb *TreeBuilder) popContainer(name string, wantBlock bool, endSpan *util.ParseSourceSpan) bool {
	for i := len(tb.containerStack) - 1; i >= 0; i-- {
		switch node := tb.containerStack[i].(type) {
		case *Element:
			if wantBlock || node.Name != name {
				continue
			}
			node.EndSourceSpan = endSpan
			if endSpan != nil {
				node.Span = util.NewParseSourceSpan(node.Span.Start, endSpan.End, node.Span.FullStart, node.Span.Details)
			}
		case *Block:
			if !wantBlock {
				return false
			}
			node.EndSourceSpan = endSpan
			if endSpan != nil {
				node.Span = util.NewParseSourceSpan(node.Span.Start, endSpan.End, node.Span.FullStart, node.Span.Details)
			}
		}
		tb.containerStack = tb.containerStack[:i]
		return true
	}
	return false
}

func (tb *TreeBuilder) getElementFullName(prefix, localName string, parent *Element) string {
	if prefix == "" {
		prefix = tb.getTagDef(localName).ImplicitNamespacePrefix()
		if prefix == "" && parent != nil {
			_, parentLocal := SplitNsName(parent.Name)
			if !tb.getTagDef(parentLocal).PreventNamespaceInheritance() {
				prefix = GetNsPrefix(parent.Name)
			}
		}
	}
	return MergeNsAndName(prefix, localName)
}
