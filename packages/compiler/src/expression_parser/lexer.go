package expression_parser

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"ngc-bind/packages/compiler/src/core"
)

type TokenType int

const (
	TokenTypeCharacter TokenType = iota
	TokenTypeIdentifier
	TokenTypePrivateIdentifier
	TokenTypeKeyword
	TokenTypeString
	TokenTypeOperator
	TokenTypeNumber
	TokenTypeError
)

// StringTokenKind tells plain strings apart from template literal pieces.
type StringTokenKind int

const (
	StringTokenKindPlain StringTokenKind = iota
	StringTokenKindTemplateLiteralPart
	StringTokenKindTemplateLiteralEnd
)

var keywords = map[string]bool{
	"var": true, "let": true, "as": true, "null": true, "undefined": true, "true": true,
	"false": true, "if": true, "else": true, "this": true, "typeof": true, "void": true, "in": true,
}

// Token is one expression token. Index and End are byte offsets into the scanned input.
type Token struct {
	Index      int
	End        int
	Type       TokenType
	NumValue   float64
	StrValue   string
	StringKind StringTokenKind
}

func (t *Token) IsCharacter(ch rune) bool {
	return t.Type == TokenTypeCharacter && rune(t.NumValue) == ch
}

func (t *Token) IsNumber() bool            { return t.Type == TokenTypeNumber }
func (t *Token) IsString() bool            { return t.Type == TokenTypeString }
func (t *Token) IsIdentifier() bool        { return t.Type == TokenTypeIdentifier }
func (t *Token) IsPrivateIdentifier() bool { return t.Type == TokenTypePrivateIdentifier }
func (t *Token) IsKeyword() bool           { return t.Type == TokenTypeKeyword }
func (t *Token) IsError() bool             { return t.Type == TokenTypeError }

func (t *Token) IsOperator(op string) bool {
	return t.Type == TokenTypeOperator && t.StrValue == op
}

// IsKeywordValue reports whether t is the given keyword.
func (t *Token) IsKeywordValue(kw string) bool {
	return t.Type == TokenTypeKeyword && t.StrValue == kw
}

func (t *Token) IsTemplateLiteralPart() bool {
	return t.IsString() && t.StringKind == StringTokenKindTemplateLiteralPart
}

func (t *Token) IsTemplateLiteralEnd() bool {
	return t.IsString() && t.StringKind == StringTokenKindTemplateLiteralEnd
}

func (t *Token) IsTemplateLiteralInterpolationStart() bool {
	return t.IsOperator("${")
}

func (t *Token) String() string {
	if t.Type == TokenTypeNumber {
		return strconv.FormatFloat(t.NumValue, 'f', -1, 64)
	}
	return t.StrValue
}

// eofToken is returned by the parser cursor past the last token.
var eofToken = &Token{Index: -1, End: -1, Type: TokenTypeCharacter}

// Lexer splits expression source into tokens. It is stateless and safe for concurrent use.
type Lexer struct{}

func NewLexer() *Lexer {
	return &Lexer{}
}

// Tokenize scans text. Lexical problems become TokenTypeError tokens in the stream.
func (l *Lexer) Tokenize(text string) []*Token {
	s := &scanner{input: text, index: -1}
	s.advance()
	return s.scan()
}

type braceKind int

const (
	braceExpression braceKind = iota
	braceInterpolation
)

type scanner struct {
	input      string
	peek       rune
	index      int
	width      int
	tokens     []*Token
	braceStack []braceKind
}

func (s *scanner) advance() {
	if s.index < 0 {
		s.index = 0
	} else {
		s.index += s.width
	}
	if s.index >= len(s.input) {
		s.index = len(s.input)
		s.peek, s.width = core.CharEOF, 0
		return
	}
	s.peek, s.width = utf8.DecodeRuneInString(s.input[s.index:])
}

func (s *scanner) scan() []*Token {
	for tok := s.scanToken(); tok != nil; tok = s.scanToken() {
		s.tokens = append(s.tokens, tok)
	}
	return s.tokens
}

func (s *scanner) scanToken() *Token {
	for s.index < len(s.input) && (s.peek <= core.CharSPACE || s.peek == core.CharNBSP) {
		s.advance()
	}
	if s.index >= len(s.input) {
		return nil
	}

	peek, start := s.peek, s.index
	if core.IsIdentifierStart(peek) {
		return s.scanIdentifier()
	}
	if core.IsDigit(peek) {
		return s.scanNumber(start)
	}

	switch peek {
	case core.CharPERIOD:
		s.advance()
		if core.IsDigit(s.peek) {
			return s.scanNumber(start)
		}
		return newCharacterToken(start, s.index, core.CharPERIOD)
	case core.CharLPAREN, core.CharRPAREN, core.CharLBRACKET, core.CharRBRACKET,
		core.CharCOMMA, core.CharCOLON, core.CharSEMICOLON:
		s.advance()
		return newCharacterToken(start, s.index, peek)
	case core.CharLBRACE:
		s.braceStack = append(s.braceStack, braceExpression)
		s.advance()
		return newCharacterToken(start, s.index, peek)
	case core.CharRBRACE:
		return s.scanCloseBrace(start)
	case core.CharSQ, core.CharDQ:
		return s.scanString()
	case core.CharBT:
		s.advance()
		return s.scanTemplateLiteralPart(start)
	case core.CharHASH:
		return s.scanPrivateIdentifier()
	case core.CharPLUS, core.CharMINUS, core.CharSLASH, core.CharPERCENT:
		return s.scanComplexOperator(start, string(peek), core.CharEQ, "=", 0)
	case core.CharCARET:
		s.advance()
		return newOperatorToken(start, s.index, "^")
	case core.CharSTAR:
		return s.scanStar(start)
	case core.CharQUESTION:
		return s.scanQuestion(start)
	case core.CharLT, core.CharGT:
		return s.scanComplexOperator(start, string(peek), core.CharEQ, "=", 0)
	case core.CharBANG, core.CharEQ:
		return s.scanComplexOperator(start, string(peek), core.CharEQ, "=", core.CharEQ)
	case core.CharAMPERSAND:
		return s.scanComplexOperator(start, "&", core.CharAMPERSAND, "&", core.CharEQ)
	case core.CharBAR:
		return s.scanComplexOperator(start, "|", core.CharBAR, "|", core.CharEQ)
	}

	s.advance()
	return s.error(fmt.Sprintf("Unexpected character [%s]", string(peek)), 0)
}

func (s *scanner) scanCloseBrace(start int) *Token {
	s.advance()
	if n := len(s.braceStack); n > 0 {
		kind := s.braceStack[n-1]
		s.braceStack = s.braceStack[:n-1]
		if kind == braceInterpolation {
			s.tokens = append(s.tokens, newCharacterToken(start, s.index, core.CharRBRACE))
			return s.scanTemplateLiteralPart(s.index)
		}
	}
	return newCharacterToken(start, s.index, core.CharRBRACE)
}

// scanComplexOperator reads one, then optionally two, then optionally three.
func (s *scanner) scanComplexOperator(start int, one string, twoCode rune, two string, threeCode rune) *Token {
	s.advance()
	str := one
	if s.peek == twoCode {
		s.advance()
		str += two
	}
	if threeCode != 0 && s.peek == threeCode {
		s.advance()
		str += string(threeCode)
	}
	return newOperatorToken(start, s.index, str)
}

func (s *scanner) scanIdentifier() *Token {
	start := s.index
	s.advance()
	for core.IsIdentifierPart(s.peek) {
		s.advance()
	}
	str := s.input[start:s.index]
	if keywords[str] {
		return &Token{Index: start, End: s.index, Type: TokenTypeKeyword, StrValue: str}
	}
	return &Token{Index: start, End: s.index, Type: TokenTypeIdentifier, StrValue: str}
}

func (s *scanner) scanPrivateIdentifier() *Token {
	start := s.index
	s.advance()
	if !core.IsIdentifierStart(s.peek) {
		return s.error("Invalid character [#]", -1)
	}
	for core.IsIdentifierPart(s.peek) {
		s.advance()
	}
	return &Token{Index: start, End: s.index, Type: TokenTypePrivateIdentifier, StrValue: s.input[start:s.index]}
}

func (s *scanner) scanNumber(start int) *Token {
	simple := s.index == start
	hasSeparators := false
	s.advance()
	for {
		switch {
		case core.IsDigit(s.peek):
		case s.peek == core.CharUnderscore:
			// Separators must sit between two digits.
			if s.index == 0 || s.index+1 >= len(s.input) ||
				!core.IsDigit(rune(s.input[s.index-1])) || !core.IsDigit(rune(s.input[s.index+1])) {
				return s.error("Invalid numeric separator", 0)
			}
			hasSeparators = true
		case s.peek == core.CharPERIOD:
			simple = false
		case s.peek == 'e' || s.peek == 'E':
			s.advance()
			if s.peek == core.CharMINUS || s.peek == core.CharPLUS {
				s.advance()
			}
			if !core.IsDigit(s.peek) {
				return s.error("Invalid exponent", -1)
			}
			simple = false
		default:
			str := s.input[start:s.index]
			if hasSeparators {
				str = strings.ReplaceAll(str, "_", "")
			}
			var value float64
			if simple {
				n, _ := strconv.ParseInt(str, 10, 64)
				value = float64(n)
			} else {
				value, _ = strconv.ParseFloat(str, 64)
			}
			return &Token{Index: start, End: s.index, Type: TokenTypeNumber, NumValue: value}
		}
		s.advance()
	}
}

func (s *scanner) scanString() *Token {
	start := s.index
	quote := s.peek
	s.advance()

	var buf strings.Builder
	marker := s.index
	for s.peek != quote {
		switch s.peek {
		case core.CharBACKSLASH:
			buf.WriteString(s.input[marker:s.index])
			if errTok := s.scanStringBackslash(&buf); errTok != nil {
				return errTok
			}
			marker = s.index
		case core.CharEOF:
			return s.error("Unterminated quote", 0)
		default:
			s.advance()
		}
	}
	buf.WriteString(s.input[marker:s.index])
	s.advance()
	return &Token{Index: start, End: s.index, Type: TokenTypeString, StrValue: buf.String()}
}

func (s *scanner) scanQuestion(start int) *Token {
	s.advance()
	op := "?"
	switch s.peek {
	case core.CharQUESTION:
		op += "?"
		s.advance()
		if s.peek == core.CharEQ {
			op += "="
			s.advance()
		}
	case core.CharPERIOD:
		op += "."
		s.advance()
	}
	return newOperatorToken(start, s.index, op)
}

func (s *scanner) scanStar(start int) *Token {
	s.advance()
	op := "*"
	if s.peek == core.CharSTAR {
		op += "*"
		s.advance()
	}
	if s.peek == core.CharEQ {
		op += "="
		s.advance()
	}
	return newOperatorToken(start, s.index, op)
}

func (s *scanner) scanTemplateLiteralPart(start int) *Token {
	var buf strings.Builder
	marker := s.index
	for s.peek != core.CharBT {
		switch s.peek {
		case core.CharBACKSLASH:
			buf.WriteString(s.input[marker:s.index])
			if errTok := s.scanStringBackslash(&buf); errTok != nil {
				return errTok
			}
			marker = s.index
		case core.CharDollar:
			dollar := s.index
			s.advance()
			if s.peek == core.CharLBRACE {
				s.braceStack = append(s.braceStack, braceInterpolation)
				buf.WriteString(s.input[marker:dollar])
				s.tokens = append(s.tokens, &Token{
					Index: start, End: dollar, Type: TokenTypeString,
					StrValue: buf.String(), StringKind: StringTokenKindTemplateLiteralPart,
				})
				s.advance()
				return newOperatorToken(dollar, s.index, "${")
			}
		case core.CharEOF:
			return s.error("Unterminated template literal", 0)
		default:
			s.advance()
		}
	}
	buf.WriteString(s.input[marker:s.index])
	s.advance()
	return &Token{
		Index: start, End: s.index, Type: TokenTypeString,
		StrValue: buf.String(), StringKind: StringTokenKindTemplateLiteralEnd,
	}
}

func (s *scanner) scanStringBackslash(buf *strings.Builder) *Token {
	s.advance()
	if s.peek == 'u' {
		if s.index+5 > len(s.input) {
			return s.error("Invalid unicode escape", 0)
		}
		hex := s.input[s.index+1 : s.index+5]
		code, err := strconv.ParseUint(hex, 16, 32)
		if err != nil {
			return s.error(fmt.Sprintf(`Invalid unicode escape [\u%s]`, hex), 0)
		}
		buf.WriteRune(rune(code))
		for i := 0; i < 5; i++ {
			s.advance()
		}
		return nil
	}
	buf.WriteRune(unescape(s.peek))
	s.advance()
	return nil
}

func (s *scanner) error(message string, offset int) *Token {
	position := s.index + offset
	return &Token{
		Index: position, End: s.index, Type: TokenTypeError,
		StrValue: fmt.Sprintf("Lexer Error: %s at column %d in expression [%s]", message, position, s.input),
	}
}

func unescape(ch rune) rune {
	switch ch {
	case 'n':
		return core.CharLF
	case 'f':
		return core.CharFF
	case 'r':
		return core.CharCR
	case 't':
		return core.CharTAB
	case 'v':
		return core.CharVTAB
	default:
		return ch
	}
}

func newCharacterToken(index, end int, ch rune) *Token {
	return &Token{Index: index, End: end, Type: TokenTypeCharacter, NumValue: float64(ch), StrValue: string(ch)}
}

func newOperatorToken(index, end int, op string) *Token {
	return &Token{Index: index, End: end, Type: TokenTypeOperator, StrValue: op}
}
