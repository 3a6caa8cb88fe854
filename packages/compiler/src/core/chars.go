package core

// Character codes shared by the markup and expression lexers.
const (
	CharEOF        rune = 0
	CharTAB        rune = '\t'
	CharLF         rune = '\n'
	CharVTAB       rune = '\v'
	CharFF         rune = '\f'
	CharCR         rune = '\r'
	CharSPACE      rune = ' '
	CharBANG       rune = '!'
	CharDQ         rune = '"'
	CharHASH       rune = '#'
	CharDollar     rune = '$'
	CharPERCENT    rune = '%'
	CharAMPERSAND  rune = '&'
	CharSQ         rune = '\''
	CharLPAREN     rune = '('
	CharRPAREN     rune = ')'
	CharSTAR       rune = '*'
	CharPLUS       rune = '+'
	CharCOMMA      rune = ','
	CharMINUS      rune = '-'
	CharPERIOD     rune = '.'
	CharSLASH      rune = '/'
	CharCOLON      rune = ':'
	CharSEMICOLON  rune = ';'
	CharLT         rune = '<'
	CharEQ         rune = '='
	CharGT         rune = '>'
	CharQUESTION   rune = '?'
	CharAT         rune = '@'
	CharLBRACKET   rune = '['
	CharBACKSLASH  rune = '\\'
	CharRBRACKET   rune = ']'
	CharCARET      rune = '^'
	CharUnderscore rune = '_'
	CharBT         rune = '`'
	CharLBRACE     rune = '{'
	CharBAR        rune = '|'
	CharRBRACE     rune = '}'
	CharTILDA      rune = '~'
	CharNBSP       rune = '\u00a0'
)

func IsWhitespace(ch rune) bool {
	return (ch >= CharTAB && ch <= CharSPACE) || ch == CharNBSP
}

func IsDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

func IsAsciiLetter(ch rune) bool {
	return ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z')
}

func IsAsciiHexDigit(ch rune) bool {
	return ('a' <= ch && ch <= 'f') || ('A' <= ch && ch <= 'F') || IsDigit(ch)
}

func IsNewLine(ch rune) bool {
	return ch == CharLF || ch == CharCR
}

func IsQuote(ch rune) bool {
	return ch == CharSQ || ch == CharDQ || ch == CharBT
}

// IsIdentifierStart reports whether ch may begin an expression identifier.
func IsIdentifierStart(ch rune) bool {
	return IsAsciiLetter(ch) || ch == CharUnderscore || ch == CharDollar
}

// IsIdentifierPart reports whether ch may continue an expression identifier.
func IsIdentifierPart(ch rune) bool {
	return IsIdentifierStart(ch) || IsDigit(ch)
}
