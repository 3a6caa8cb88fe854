package ml_parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"ngc-bind/packages/compiler/src/core"
	"ngc-bind/packages/compiler/src/util"
)

// InterpolationConfig holds the markers around an interpolated expression.
type InterpolationConfig struct {
	Start string
	End   string
}

var DefaultInterpolationConfig = InterpolationConfig{Start: "{{", End: "}}"}

type TokenizeOptions struct {
	TokenizeExpansionForms bool
	TokenizeBlocks         bool
	TokenizeLet            bool
	Interpolation          InterpolationConfig
	// LeadingTriviaChars are excluded from the start of token spans. FullStart keeps them.
	LeadingTriviaChars []rune
}

func DefaultTokenizeOptions() TokenizeOptions {
	return TokenizeOptions{
		TokenizeBlocks: true,
		TokenizeLet:    true,
		Interpolation:  DefaultInterpolationConfig,
	}
}

// Tokenize splits a template into tokens. The stream always ends with an EOF token.
func Tokenize(source, url string, getTagDefinition TagDefinitionResolver, opts TokenizeOptions) *TokenizeResult {
	file := util.NewParseSourceFile(source, url)
	t := newTokenizer(file, getTagDefinition, opts)
	t.tokenize()
	return &TokenizeResult{Tokens: mergeTextTokens(t.tokens), Errors: t.errors}
}

type cursorState struct {
	peek   rune
	offset int
	line   int
	column int
}

type cursor struct {
	file  *util.ParseSourceFile
	input string
	state cursorState
}

// cursorError is raised when the cursor is advanced past the end of the input.
type cursorError struct {
	msg    string
	cursor *cursor
}

func newCursor(file *util.ParseSourceFile) *cursor {
	c := &cursor{file: file, input: file.Content}
	c.updatePeek()
	return c
}

func (c *cursor) clone() *cursor {
	cp := *c
	return &cp
}

func (c *cursor) peek() rune { return c.state.peek }

func (c *cursor) diff(other *cursor) int { return c.state.offset - other.state.offset }

func (c *cursor) advance() {
	if c.state.offset >= len(c.input) {
		panic(&cursorError{msg: `Unexpected character "EOF"`, cursor: c.clone()})
	}
	ch, size := utf8.DecodeRuneInString(c.input[c.state.offset:])
	if ch == core.CharLF {
		c.state.line++
		c.state.column = 0
	} else if !core.IsNewLine(ch) {
		c.state.column += size
	}
	c.state.offset += size
	c.updatePeek()
}

func (c *cursor) updatePeek() {
	if c.state.offset >= len(c.input) {
		c.state.peek = core.CharEOF
		return
	}
	c.state.peek, _ = utf8.DecodeRuneInString(c.input[c.state.offset:])
}

func (c *cursor) getChars(start *cursor) string {
	return c.input[start.state.offset:c.state.offset]
}

func (c *cursor) location() *util.ParseLocation {
	return util.NewParseLocation(c.file, c.state.offset, c.state.line, c.state.column)
}

func (c *cursor) getSpan(start *cursor, leadingTrivia []rune) *util.ParseSourceSpan {
	if start == nil {
		start = c
	}
	fullStart := start
	if len(leadingTrivia) > 0 {
		for c.diff(start) > 0 && containsRune(leadingTrivia, start.peek()) {
			if start == fullStart {
				start = start.clone()
			}
			start.advance()
		}
	}
	return util.NewParseSourceSpan(start.location(), c.location(), fullStart.location(), nil)
}

func containsRune(rs []rune, r rune) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

// lexerError aborts the construct being lexed. It is recovered by tryConsume.
type lexerError struct {
	err *util.ParseError
}

type tokenizer struct {
	file               *util.ParseSourceFile
	getTagDef          TagDefinitionResolver
	opts               TokenizeOptions
	cursor             *cursor
	tokenStart         *cursor
	tokenType          TokenType
	expansionCaseStack []TokenType
	inInterpolation    bool
	tokens             []*Token
	errors             []*util.ParseError
}

func newTokenizer(file *util.ParseSourceFile, getTagDefinition TagDefinitionResolver, opts TokenizeOptions) *tokenizer {
	if opts.Interpolation.Start == "" || opts.Interpolation.End == "" {
		opts.Interpolation = DefaultInterpolationConfig
	}
	return &tokenizer{
		file:      file,
		getTagDef: getTagDefinition,
		opts:      opts,
		cursor:    newCursor(file),
	}
}

func (t *tokenizer) tokenize() {
	for t.cursor.peek() != core.CharEOF {
		start := t.cursor.clone()
		if !t.tryConsume(func() { t.consumeNext(start) }) && t.cursor.diff(start) == 0 {
			// Nothing was consumed; skip the character so lexing always progresses.
			t.beginToken(TokenTypeTEXT, start)
			t.cursor.advance()
			t.endToken([]string{t.cursor.getChars(start)}, nil)
		}
	}
	t.beginToken(TokenTypeEOF, nil)
	t.endToken(nil, nil)
}

func (t *tokenizer) consumeNext(start *cursor) {
	switch {
	case t.attemptChar(core.CharLT):
		switch {
		case t.attemptChar(core.CharBANG):
			switch {
			case t.attemptStr("[CDATA["):
				t.consumeCdata(start)
			case t.attemptStr("--"):
				t.consumeComment(start)
			case t.attemptStrCaseInsensitive("doctype"):
				t.consumeDocType(start)
			default:
				t.consumeBogusComment(start)
			}
		case t.attemptChar(core.CharSLASH):
			t.consumeTagClose(start)
		default:
			t.consumeTagOpen(start)
		}
	case t.opts.TokenizeLet && t.cursor.peek() == core.CharAT && !t.inInterpolation && t.attemptStr("@let"):
		t.consumeLetDeclaration(start)
	case t.opts.TokenizeBlocks && t.isBlockStart():
		t.consumeBlockStart(start)
	case t.opts.TokenizeBlocks && !t.inInterpolation && !t.isInExpansionCase() && !t.isInExpansionForm() &&
		t.attemptChar(core.CharRBRACE):
		t.beginToken(TokenTypeBLOCK_CLOSE, start)
		t.endToken(nil, nil)
	case t.opts.TokenizeExpansionForms && t.tokenizeExpansionForm():
	default:
		t.consumeWithInterpolation(TokenTypeTEXT, TokenTypeINTERPOLATION, t.isTextEnd, t.isTagStart)
	}
}

// tryConsume runs fn and records the diagnostic if it aborts with a lexer error. It
// reports whether fn completed.
func (t *tokenizer) tryConsume(fn func()) (ok bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch e := r.(type) {
		case *lexerError:
			t.errors = append(t.errors, e.err)
		case *cursorError:
			t.errors = append(t.errors, t.createError(e.msg, t.cursor.getSpan(e.cursor, nil)).err)
		default:
			panic(r)
		}
		ok = false
	}()
	fn()
	return true
}

func (t *tokenizer) createError(msg string, span *util.ParseSourceSpan) *lexerError {
	if t.isInExpansionForm() {
		msg += ` (Do you have an unescaped "{" in your template? Use "{{ '{' }}") to escape it.)`
	}
	t.tokenStart = nil
	return &lexerError{err: util.NewParseError(span, msg)}
}

func unexpectedCharacterErrorMsg(ch rune) string {
	if ch == core.CharEOF {
		return `Unexpected character "EOF"`
	}
	return fmt.Sprintf(`Unexpected character "%s"`, string(ch))
}

func (t *tokenizer) beginToken(tokenType TokenType, start *cursor) {
	if start == nil {
		start = t.cursor.clone()
	}
	t.tokenStart = start
	t.tokenType = tokenType
}

func (t *tokenizer) endToken(parts []string, end *cursor) *Token {
	util.Assertf(t.tokenStart != nil, "attempted to end a token that was never started")
	if end == nil {
		end = t.cursor
	}
	token := NewToken(t.tokenType, parts, end.getSpan(t.tokenStart, t.opts.LeadingTriviaChars))
	t.tokens = append(t.tokens, token)
	t.tokenStart = nil
	return token
}

func (t *tokenizer) attemptChar(ch rune) bool {
	if t.cursor.peek() == ch {
		t.cursor.advance()
		return true
	}
	return false
}

func (t *tokenizer) attemptCharCaseInsensitive(ch rune) bool {
	if strings.EqualFold(string(t.cursor.peek()), string(ch)) {
		t.cursor.advance()
		return true
	}
	return false
}

func (t *tokenizer) requireChar(ch rune) {
	location := t.cursor.clone()
	if !t.attemptChar(ch) {
		panic(t.createError(unexpectedCharacterErrorMsg(t.cursor.peek()), t.cursor.getSpan(location, nil)))
	}
}

func (t *tokenizer) attemptStr(s string) bool {
	if !strings.HasPrefix(t.cursor.input[t.cursor.state.offset:], s) {
		return false
	}
	for range s {
		t.cursor.advance()
	}
	return true
}

func (t *tokenizer) attemptStrCaseInsensitive(s string) bool {
	initial := t.cursor.clone()
	for _, ch := range s {
		if !t.attemptCharCaseInsensitive(ch) {
			t.cursor = initial
			return false
		}
	}
	return true
}

func (t *tokenizer) requireStr(s string) {
	location := t.cursor.clone()
	if !t.attemptStr(s) {
		panic(t.createError(unexpectedCharacterErrorMsg(t.cursor.peek()), t.cursor.getSpan(location, nil)))
	}
}

// attemptUntilFn advances until predicate matches the next character or input ends.
func (t *tokenizer) attemptUntilFn(predicate func(rune) bool) {
	for !predicate(t.cursor.peek()) && t.cursor.peek() != core.CharEOF {
		t.cursor.advance()
	}
}

func (t *tokenizer) requireUntilFn(predicate func(rune) bool, minLen int) {
	start := t.cursor.clone()
	t.attemptUntilFn(predicate)
	if t.cursor.diff(start) < minLen {
		panic(t.createError(unexpectedCharacterErrorMsg(t.cursor.peek()), t.cursor.getSpan(start, nil)))
	}
}

func (t *tokenizer) attemptUntilChar(ch rune) {
	for t.cursor.peek() != ch {
		t.cursor.advance()
	}
}

func (t *tokenizer) readChar() string {
	ch := string(t.cursor.peek())
	t.cursor.advance()
	return ch
}

func processCarriageReturns(content string) string {
	return strings.ReplaceAll(strings.ReplaceAll(content, "\r\n", "\n"), "\r", "\n")
}

func (t *tokenizer) consumeEntity(textTokenType TokenType) {
	t.beginToken(TokenTypeENCODED_ENTITY, nil)
	start := t.cursor.clone()
	t.cursor.advance()
	if t.attemptChar(core.CharHASH) {
		isHex := t.attemptChar('x') || t.attemptChar('X')
		codeStart := t.cursor.clone()
		t.attemptUntilFn(isDigitEntityEnd)
		if t.cursor.peek() != core.CharSEMICOLON {
			t.cursor.advance()
			kind := "decimal"
			if isHex {
				kind = "hexadecimal"
			}
			panic(t.createError(fmt.Sprintf(
				`Unable to parse entity "%s" - %s character reference entities must end with ";"`,
				t.cursor.getChars(start), kind), t.cursor.getSpan(nil, nil)))
		}
		digits := t.cursor.getChars(codeStart)
		t.cursor.advance()
		base := 10
		if isHex {
			base = 16
		}
		code, err := strconv.ParseInt(digits, base, 32)
		if err != nil || !utf8.ValidRune(rune(code)) {
			panic(t.createError(unknownEntityErrorMsg(t.cursor.getChars(start)), t.cursor.getSpan(nil, nil)))
		}
		t.endToken([]string{string(rune(code)), t.cursor.getChars(start)}, nil)
		return
	}

	nameStart := t.cursor.clone()
	t.attemptUntilFn(isNamedEntityEnd)
	if t.cursor.peek() != core.CharSEMICOLON {
		// Not an entity; the '&' is plain text.
		t.beginToken(textTokenType, start)
		t.cursor = nameStart
		t.endToken([]string{"&"}, nil)
		return
	}
	name := t.cursor.getChars(nameStart)
	t.cursor.advance()
	decoded, ok := DecodeEntity("&" + name + ";")
	if !ok {
		panic(t.createError(unknownEntityErrorMsg(name), t.cursor.getSpan(start, nil)))
	}
	t.endToken([]string{decoded, "&" + name + ";"}, nil)
}

func unknownEntityErrorMsg(entity string) string {
	return fmt.Sprintf(`Unknown entity "%s" - use the "&#<decimal>;" or  "&#x<hex>;" syntax`, entity)
}

func (t *tokenizer) consumeRawText(consumeEntities bool, endMarker func() bool) {
	textType := TokenTypeRAW_TEXT
	if consumeEntities {
		textType = TokenTypeESCAPABLE_RAW_TEXT
	}
	t.beginToken(textType, nil)
	var parts strings.Builder
	for {
		markerStart := t.cursor.clone()
		found := endMarker()
		t.cursor = markerStart
		if found {
			break
		}
		if consumeEntities && t.cursor.peek() == core.CharAMPERSAND {
			t.endToken([]string{processCarriageReturns(parts.String())}, nil)
			parts.Reset()
			t.consumeEntity(textType)
			t.beginToken(textType, nil)
		} else {
			parts.WriteString(t.readChar())
		}
	}
	t.endToken([]string{processCarriageReturns(parts.String())}, nil)
}

func (t *tokenizer) consumeComment(start *cursor) {
	t.beginToken(TokenTypeCOMMENT_START, start)
	t.endToken(nil, nil)
	t.consumeRawText(false, func() bool { return t.attemptStr("-->") })
	t.beginToken(TokenTypeCOMMENT_END, nil)
	t.requireStr("-->")
	t.endToken(nil, nil)
}

func (t *tokenizer) consumeBogusComment(start *cursor) {
	t.beginToken(TokenTypeCOMMENT_START, start)
	t.endToken(nil, nil)
	t.consumeRawText(false, func() bool { return t.cursor.peek() == core.CharGT })
	t.beginToken(TokenTypeCOMMENT_END, nil)
	t.cursor.advance()
	t.endToken(nil, nil)
}

func (t *tokenizer) consumeCdata(start *cursor) {
	t.beginToken(TokenTypeCDATA_START, start)
	t.endToken(nil, nil)
	t.consumeRawText(false, func() bool { return t.attemptStr("]]>") })
	t.beginToken(TokenTypeCDATA_END, nil)
	t.requireStr("]]>")
	t.endToken(nil, nil)
}

func (t *tokenizer) consumeDocType(start *cursor) {
	t.beginToken(TokenTypeDOC_TYPE, start)
	contentStart := t.cursor.clone()
	t.attemptUntilChar(core.CharGT)
	content := t.cursor.getChars(contentStart)
	t.cursor.advance()
	t.endToken([]string{content}, nil)
}

func (t *tokenizer) consumePrefixAndName(endPredicate func(rune) bool) []string {
	nameOrPrefixStart := t.cursor.clone()
	prefix := ""
	for t.cursor.peek() != core.CharCOLON && !isPrefixEnd(t.cursor.peek()) {
		t.cursor.advance()
	}
	nameStart := nameOrPrefixStart
	if t.cursor.peek() == core.CharCOLON {
		prefix = t.cursor.getChars(nameOrPrefixStart)
		t.cursor.advance()
		nameStart = t.cursor.clone()
	}
	minLen := 0
	if prefix != "" {
		minLen = 1
	}
	t.requireUntilFn(endPredicate, minLen)
	return []string{prefix, t.cursor.getChars(nameStart)}
}

func (t *tokenizer) consumeTagOpen(start *cursor) {
	var openToken *Token
	ok := t.tryConsumeSilently(func() {
		if !core.IsAsciiLetter(t.cursor.peek()) {
			panic(t.createError(unexpectedCharacterErrorMsg(t.cursor.peek()), t.cursor.getSpan(start, nil)))
		}
		t.beginToken(TokenTypeTAG_OPEN_START, start)
		openToken = t.endToken(t.consumePrefixAndName(isNameEnd), nil)
		t.attemptUntilFn(isNotWhitespace)
		for p := t.cursor.peek(); p != core.CharSLASH && p != core.CharGT && p != core.CharLT && p != core.CharEOF; p = t.cursor.peek() {
			t.consumeAttributeName()
			t.attemptUntilFn(isNotWhitespace)
			if t.attemptChar(core.CharEQ) {
				t.attemptUntilFn(isNotWhitespace)
				t.consumeAttributeValue()
			}
			t.attemptUntilFn(isNotWhitespace)
		}
		t.consumeTagOpenEnd()
	})
	if !ok {
		if openToken != nil {
			// The opening tag could not be closed, so it is incomplete.
			openToken.Type = TokenTypeINCOMPLETE_TAG_OPEN
		} else {
			// An invalid start tag is plain text. Adjacent text tokens are merged later.
			t.beginToken(TokenTypeTEXT, start)
			t.endToken([]string{"<"}, nil)
		}
		return
	}

	prefix, tagName := openToken.Part(0), openToken.Part(1)
	switch t.getTagDef(tagName).GetContentType(prefix) {
	case TagContentTypeRAW_TEXT:
		t.consumeRawTextWithTagClose(prefix, tagName, false)
	case TagContentTypeESCAPABLE_RAW_TEXT:
		t.consumeRawTextWithTagClose(prefix, tagName, true)
	}
}

// tryConsumeSilently is tryConsume without recording the diagnostic; the caller turns the
// failure into a token instead.
func (t *tokenizer) tryConsumeSilently(fn func()) (ok bool) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch r.(type) {
		case *lexerError, *cursorError:
			t.tokenStart = nil
			ok = false
		default:
			panic(r)
		}
	}()
	fn()
	return true
}

func (t *tokenizer) consumeRawTextWithTagClose(prefix, tagName string, consumeEntities bool) {
	closeName := tagName
	if prefix != "" {
		closeName = prefix + ":" + tagName
	}
	t.consumeRawText(consumeEntities, func() bool {
		if !t.attemptChar(core.CharLT) || !t.attemptChar(core.CharSLASH) {
			return false
		}
		t.attemptUntilFn(isNotWhitespace)
		if !t.attemptStrCaseInsensitive(closeName) {
			return false
		}
		t.attemptUntilFn(isNotWhitespace)
		return t.attemptChar(core.CharGT)
	})
	t.beginToken(TokenTypeTAG_CLOSE, nil)
	t.requireUntilFn(func(ch rune) bool { return ch == core.CharGT }, 3)
	t.cursor.advance()
	t.endToken([]string{prefix, tagName}, nil)
}

func (t *tokenizer) consumeAttributeName() {
	if p := t.cursor.peek(); p == core.CharSQ || p == core.CharDQ {
		panic(t.createError(unexpectedCharacterErrorMsg(p), t.cursor.getSpan(nil, nil)))
	}
	t.beginToken(TokenTypeATTR_NAME, nil)
	t.endToken(t.consumePrefixAndName(isNameEnd), nil)
}

func (t *tokenizer) consumeAttributeValue() {
	if p := t.cursor.peek(); p == core.CharSQ || p == core.CharDQ {
		t.consumeQuote(p)
		atQuote := func() bool { return t.cursor.peek() == p }
		t.consumeWithInterpolation(TokenTypeATTR_VALUE_TEXT, TokenTypeATTR_VALUE_INTERPOLATION, atQuote, atQuote)
		t.consumeQuote(p)
		return
	}
	atNameEnd := func() bool { return isNameEnd(t.cursor.peek()) }
	t.consumeWithInterpolation(TokenTypeATTR_VALUE_TEXT, TokenTypeATTR_VALUE_INTERPOLATION, atNameEnd, atNameEnd)
}

func (t *tokenizer) consumeQuote(quote rune) {
	t.beginToken(TokenTypeATTR_QUOTE, nil)
	t.requireChar(quote)
	t.endToken([]string{string(quote)}, nil)
}

func (t *tokenizer) consumeTagOpenEnd() {
	tokenType := TokenTypeTAG_OPEN_END
	if t.attemptChar(core.CharSLASH) {
		tokenType = TokenTypeTAG_OPEN_END_VOID
	}
	t.beginToken(tokenType, nil)
	t.requireChar(core.CharGT)
	t.endToken(nil, nil)
}

func (t *tokenizer) consumeTagClose(start *cursor) {
	t.beginToken(TokenTypeTAG_CLOSE, start)
	t.attemptUntilFn(isNotWhitespace)
	parts := t.consumePrefixAndName(isNameEnd)
	t.attemptUntilFn(isNotWhitespace)
	t.requireChar(core.CharGT)
	t.endToken(parts, nil)
}

func (t *tokenizer) consumeWithInterpolation(textType, interpolationType TokenType, isEnd, interpolationEnd func() bool) {
	t.beginToken(textType, nil)
	var parts strings.Builder
	for !isEnd() {
		current := t.cursor.clone()
		switch {
		case t.attemptStr(t.opts.Interpolation.Start):
			t.endToken([]string{processCarriageReturns(parts.String())}, current)
			parts.Reset()
			t.consumeInterpolation(interpolationType, current, interpolationEnd)
			t.beginToken(textType, nil)
		case t.cursor.peek() == core.CharAMPERSAND:
			t.endToken([]string{processCarriageReturns(parts.String())}, nil)
			parts.Reset()
			t.consumeEntity(textType)
			t.beginToken(textType, nil)
		default:
			parts.WriteString(t.readChar())
		}
	}
	// An interpolation may have started without ending inside this text.
	t.inInterpolation = false
	t.endToken([]string{processCarriageReturns(parts.String())}, nil)
}

func (t *tokenizer) consumeInterpolation(tokenType TokenType, start *cursor, prematureEnd func() bool) {
	parts := []string{t.opts.Interpolation.Start}
	t.beginToken(tokenType, start)
	t.inInterpolation = true

	expressionStart := t.cursor.clone()
	var inQuote rune = -1
	inComment := false
	for t.cursor.peek() != core.CharEOF && (prematureEnd == nil || !prematureEnd()) {
		current := t.cursor.clone()
		if t.isTagStart() {
			// A tag inside an interpolation ends it before the '<'.
			t.cursor = current
			parts = append(parts, processCarriageReturns(current.getChars(expressionStart)))
			t.endToken(parts, nil)
			t.inInterpolation = false
			return
		}
		if inQuote == -1 {
			if t.attemptStr(t.opts.Interpolation.End) {
				parts = append(parts, processCarriageReturns(current.getChars(expressionStart)), t.opts.Interpolation.End)
				t.endToken(parts, nil)
				t.inInterpolation = false
				return
			}
			if t.attemptStr("//") {
				inComment = true
			}
		}
		ch := t.cursor.peek()
		t.cursor.advance()
		switch {
		case ch == core.CharBACKSLASH:
			t.cursor.advance()
		case ch == inQuote:
			inQuote = -1
		case !inComment && inQuote == -1 && core.IsQuote(ch):
			inQuote = ch
		}
	}
	parts = append(parts, processCarriageReturns(t.cursor.getChars(expressionStart)))
	t.endToken(parts, nil)
	t.inInterpolation = false
}

func (t *tokenizer) isTextEnd() bool {
	if t.isTagStart() || t.cursor.peek() == core.CharEOF {
		return true
	}
	if t.opts.TokenizeExpansionForms && !t.inInterpolation {
		if t.isExpansionFormStart() {
			return true
		}
		if t.cursor.peek() == core.CharRBRACE && t.isInExpansionCase() {
			return true
		}
	}
	if t.opts.TokenizeBlocks && !t.inInterpolation && !t.isInExpansion() &&
		(t.isBlockStart() || t.isLetStart() || t.cursor.peek() == core.CharRBRACE) {
		return true
	}
	return false
}

func (t *tokenizer) isTagStart() bool {
	if t.cursor.peek() != core.CharLT {
		return false
	}
	tmp := t.cursor.clone()
	tmp.advance()
	ch := tmp.peek()
	return core.IsAsciiLetter(ch) || ch == core.CharSLASH || ch == core.CharBANG
}

func (t *tokenizer) isBlockStart() bool {
	if !t.opts.TokenizeBlocks || t.cursor.peek() != core.CharAT {
		return false
	}
	tmp := t.cursor.clone()
	tmp.advance()
	return isBlockNameChar(tmp.peek())
}

func (t *tokenizer) isLetStart() bool {
	return t.opts.TokenizeLet && strings.HasPrefix(t.cursor.input[t.cursor.state.offset:], "@let")
}

func (t *tokenizer) consumeLetDeclaration(start *cursor) {
	t.beginToken(TokenTypeLET_START, start)
	if !core.IsWhitespace(t.cursor.peek()) {
		token := t.endToken([]string{""}, nil)
		token.Type = TokenTypeINCOMPLETE_LET
		return
	}
	t.attemptUntilFn(isNotWhitespace)
	startToken := t.endToken([]string{t.letDeclarationName()}, nil)

	t.attemptUntilFn(isNotWhitespace)
	if !t.attemptChar(core.CharEQ) {
		startToken.Type = TokenTypeINCOMPLETE_LET
		return
	}
	t.attemptUntilFn(func(ch rune) bool { return isNotWhitespace(ch) && !core.IsNewLine(ch) })
	t.consumeLetDeclarationValue()

	if t.cursor.peek() == core.CharSEMICOLON {
		t.beginToken(TokenTypeLET_END, nil)
		t.endToken(nil, nil)
		t.cursor.advance()
		return
	}
	startToken.Type = TokenTypeINCOMPLETE_LET
	startToken.SourceSpan = t.cursor.getSpan(start, nil)
}

func (t *tokenizer) letDeclarationName() string {
	nameStart := t.cursor.clone()
	allowDigit := false
	t.attemptUntilFn(func(ch rune) bool {
		if core.IsAsciiLetter(ch) || ch == core.CharDollar || ch == core.CharUnderscore || (allowDigit && core.IsDigit(ch)) {
			allowDigit = true
			return false
		}
		return true
	})
	return strings.TrimSpace(t.cursor.getChars(nameStart))
}

func (t *tokenizer) consumeLetDeclarationValue() {
	start := t.cursor.clone()
	t.beginToken(TokenTypeLET_VALUE, start)
	for t.cursor.peek() != core.CharEOF {
		ch := t.cursor.peek()
		if ch == core.CharSEMICOLON {
			break
		}
		if core.IsQuote(ch) {
			t.cursor.advance()
			t.attemptUntilFn(func(inner rune) bool {
				if inner == core.CharBACKSLASH {
					t.cursor.advance()
					return false
				}
				return inner == ch
			})
		}
		t.cursor.advance()
	}
	t.endToken([]string{t.cursor.getChars(start)}, nil)
}

func (t *tokenizer) consumeBlockStart(start *cursor) {
	t.requireChar(core.CharAT)
	t.beginToken(TokenTypeBLOCK_OPEN_START, start)
	startToken := t.endToken([]string{t.blockName()}, nil)

	if t.cursor.peek() == core.CharLPAREN {
		t.cursor.advance()
		t.consumeBlockParameters()
		t.attemptUntilFn(isNotWhitespace)
		if !t.attemptChar(core.CharRPAREN) {
			startToken.Type = TokenTypeINCOMPLETE_BLOCK_OPEN
			return
		}
		t.attemptUntilFn(isNotWhitespace)
	}

	if t.attemptChar(core.CharLBRACE) {
		t.beginToken(TokenTypeBLOCK_OPEN_END, nil)
		t.endToken(nil, nil)
		return
	}
	startToken.Type = TokenTypeINCOMPLETE_BLOCK_OPEN
}

// blockName reads names such as "if" or "else if"; inner spaces are allowed once the
// name has started.
func (t *tokenizer) blockName() string {
	spacesAllowed := false
	nameStart := t.cursor.clone()
	t.attemptUntilFn(func(ch rune) bool {
		if core.IsWhitespace(ch) {
			return !spacesAllowed
		}
		if isBlockNameChar(ch) {
			spacesAllowed = true
			return false
		}
		return true
	})
	return strings.TrimSpace(t.cursor.getChars(nameStart))
}

func (t *tokenizer) consumeBlockParameters() {
	t.attemptUntilFn(isBlockParameterChar)
	for t.cursor.peek() != core.CharRPAREN && t.cursor.peek() != core.CharEOF {
		t.beginToken(TokenTypeBLOCK_PARAMETER, nil)
		start := t.cursor.clone()
		var inQuote rune = -1
		openParens := 0
	param:
		for (t.cursor.peek() != core.CharSEMICOLON && t.cursor.peek() != core.CharEOF) || inQuote != -1 {
			ch := t.cursor.peek()
			switch {
			case ch == core.CharBACKSLASH:
				t.cursor.advance()
			case ch == inQuote:
				inQuote = -1
			case inQuote == -1 && core.IsQuote(ch):
				inQuote = ch
			case ch == core.CharLPAREN && inQuote == -1:
				openParens++
			case ch == core.CharRPAREN && inQuote == -1:
				if openParens == 0 {
					break param
				}
				openParens--
			}
			t.cursor.advance()
		}
		t.endToken([]string{t.cursor.getChars(start)}, nil)
		t.attemptUntilFn(isBlockParameterChar)
	}
}

func (t *tokenizer) tokenizeExpansionForm() bool {
	if t.isExpansionFormStart() {
		t.consumeExpansionFormStart()
		return true
	}
	if t.cursor.peek() != core.CharRBRACE && t.isInExpansionForm() {
		t.consumeExpansionCaseStart()
		return true
	}
	if t.cursor.peek() == core.CharRBRACE {
		if t.isInExpansionCase() {
			t.consumeExpansionCaseEnd()
			return true
		}
		if t.isInExpansionForm() {
			t.consumeExpansionFormEnd()
			return true
		}
	}
	return false
}

func (t *tokenizer) isExpansionFormStart() bool {
	if t.cursor.peek() != core.CharLBRACE {
		return false
	}
	return !strings.HasPrefix(t.cursor.input[t.cursor.state.offset:], t.opts.Interpolation.Start)
}

func (t *tokenizer) consumeExpansionFormStart() {
	t.beginToken(TokenTypeEXPANSION_FORM_START, nil)
	t.requireChar(core.CharLBRACE)
	t.endToken(nil, nil)
	t.expansionCaseStack = append(t.expansionCaseStack, TokenTypeEXPANSION_FORM_START)

	t.beginToken(TokenTypeRAW_TEXT, nil)
	condition := t.readUntil(core.CharCOMMA)
	t.endToken([]string{processCarriageReturns(condition)}, nil)
	t.requireChar(core.CharCOMMA)
	t.attemptUntilFn(isNotWhitespace)

	t.beginToken(TokenTypeRAW_TEXT, nil)
	typ := t.readUntil(core.CharCOMMA)
	t.endToken([]string{typ}, nil)
	t.requireChar(core.CharCOMMA)
	t.attemptUntilFn(isNotWhitespace)
}

func (t *tokenizer) consumeExpansionCaseStart() {
	t.beginToken(TokenTypeEXPANSION_CASE_VALUE, nil)
	value := strings.TrimSpace(t.readUntil(core.CharLBRACE))
	t.endToken([]string{value}, nil)
	t.attemptUntilFn(isNotWhitespace)

	t.beginToken(TokenTypeEXPANSION_CASE_EXP_START, nil)
	t.requireChar(core.CharLBRACE)
	t.endToken(nil, nil)
	t.attemptUntilFn(isNotWhitespace)
	t.expansionCaseStack = append(t.expansionCaseStack, TokenTypeEXPANSION_CASE_EXP_START)
}

func (t *tokenizer) consumeExpansionCaseEnd() {
	t.beginToken(TokenTypeEXPANSION_CASE_EXP_END, nil)
	t.requireChar(core.CharRBRACE)
	t.endToken(nil, nil)
	t.attemptUntilFn(isNotWhitespace)
	t.expansionCaseStack = t.expansionCaseStack[:len(t.expansionCaseStack)-1]
}

func (t *tokenizer) consumeExpansionFormEnd() {
	t.beginToken(TokenTypeEXPANSION_FORM_END, nil)
	t.requireChar(core.CharRBRACE)
	t.endToken(nil, nil)
	t.expansionCaseStack = t.expansionCaseStack[:len(t.expansionCaseStack)-1]
}

func (t *tokenizer) readUntil(ch rune) string {
	start := t.cursor.clone()
	t.attemptUntilChar(ch)
	return t.cursor.getChars(start)
}

func (t *tokenizer) isInExpansion() bool {
	return t.isInExpansionCase() || t.isInExpansionForm()
}

func (t *tokenizer) isInExpansionCase() bool {
	n := len(t.expansionCaseStack)
	return n > 0 && t.expansionCaseStack[n-1] == TokenTypeEXPANSION_CASE_EXP_START
}

func (t *tokenizer) isInExpansionForm() bool {
	n := len(t.expansionCaseStack)
	return n > 0 && t.expansionCaseStack[n-1] == TokenTypeEXPANSION_FORM_START
}

func isNotWhitespace(ch rune) bool {
	return !core.IsWhitespace(ch) || ch == core.CharEOF
}

func isNameEnd(ch rune) bool {
	return core.IsWhitespace(ch) || ch == core.CharGT || ch == core.CharLT || ch == core.CharSLASH ||
		ch == core.CharSQ || ch == core.CharDQ || ch == core.CharEQ || ch == core.CharEOF
}

func isPrefixEnd(ch rune) bool {
	return !core.IsAsciiLetter(ch) && !core.IsDigit(ch)
}

func isDigitEntityEnd(ch rune) bool {
	return ch == core.CharSEMICOLON || ch == core.CharEOF || !core.IsAsciiHexDigit(ch)
}

func isNamedEntityEnd(ch rune) bool {
	return ch == core.CharSEMICOLON || ch == core.CharEOF || !(core.IsAsciiLetter(ch) || core.IsDigit(ch))
}

func isBlockNameChar(ch rune) bool {
	return core.IsAsciiLetter(ch) || core.IsDigit(ch) || ch == core.CharUnderscore
}

func isBlockParameterChar(ch rune) bool {
	return ch != core.CharSEMICOLON && isNotWhitespace(ch)
}

// mergeTextTokens joins adjacent TEXT (and ATTR_VALUE_TEXT) tokens produced by recovery.
func mergeTextTokens(src []*Token) []*Token {
	dst := make([]*Token, 0, len(src))
	for _, token := range src {
		if n := len(dst); n > 0 {
			last := dst[n-1]
			if (last.Type == TokenTypeTEXT && token.Type == TokenTypeTEXT) ||
				(last.Type == TokenTypeATTR_VALUE_TEXT && token.Type == TokenTypeATTR_VALUE_TEXT) {
				last.Parts[0] += token.Part(0)
				last.SourceSpan = util.NewParseSourceSpan(last.SourceSpan.Start, token.SourceSpan.End,
					last.SourceSpan.FullStart, last.SourceSpan.Details)
				continue
			}
		}
		dst = append(dst, token)
	}
	return dst
}
