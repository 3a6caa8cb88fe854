package ml_parser

import (
	"fmt"

	"ngc-bind/packages/compiler/src/util"
)

type TokenType int

const (
	TokenTypeTAG_OPEN_START TokenType = iota
	TokenTypeTAG_OPEN_END
	TokenTypeTAG_OPEN_END_VOID
	TokenTypeTAG_CLOSE
	TokenTypeINCOMPLETE_TAG_OPEN
	TokenTypeTEXT
	TokenTypeESCAPABLE_RAW_TEXT
	TokenTypeRAW_TEXT
	TokenTypeINTERPOLATION
	TokenTypeENCODED_ENTITY
	TokenTypeCOMMENT_START
	TokenTypeCOMMENT_END
	TokenTypeCDATA_START
	TokenTypeCDATA_END
	TokenTypeATTR_NAME
	TokenTypeATTR_QUOTE
	TokenTypeATTR_VALUE_TEXT
	TokenTypeATTR_VALUE_INTERPOLATION
	TokenTypeDOC_TYPE
	TokenTypeEXPANSION_FORM_START
	TokenTypeEXPANSION_CASE_VALUE
	TokenTypeEXPANSION_CASE_EXP_START
	TokenTypeEXPANSION_CASE_EXP_END
	TokenTypeEXPANSION_FORM_END
	TokenTypeBLOCK_OPEN_START
	TokenTypeBLOCK_OPEN_END
	TokenTypeBLOCK_CLOSE
	TokenTypeBLOCK_PARAMETER
	TokenTypeINCOMPLETE_BLOCK_OPEN
	TokenTypeLET_START
	TokenTypeLET_VALUE
	TokenTypeLET_END
	TokenTypeINCOMPLETE_LET
	TokenTypeEOF
)

var tokenTypeNames = [...]string{
	"TAG_OPEN_START", "TAG_OPEN_END", "TAG_OPEN_END_VOID", "TAG_CLOSE", "INCOMPLETE_TAG_OPEN",
	"TEXT", "ESCAPABLE_RAW_TEXT", "RAW_TEXT", "INTERPOLATION", "ENCODED_ENTITY",
	"COMMENT_START", "COMMENT_END", "CDATA_START", "CDATA_END",
	"ATTR_NAME", "ATTR_QUOTE", "ATTR_VALUE_TEXT", "ATTR_VALUE_INTERPOLATION", "DOC_TYPE",
	"EXPANSION_FORM_START", "EXPANSION_CASE_VALUE", "EXPANSION_CASE_EXP_START",
	"EXPANSION_CASE_EXP_END", "EXPANSION_FORM_END",
	"BLOCK_OPEN_START", "BLOCK_OPEN_END", "BLOCK_CLOSE", "BLOCK_PARAMETER", "INCOMPLETE_BLOCK_OPEN",
	"LET_START", "LET_VALUE", "LET_END", "INCOMPLETE_LET", "EOF",
}

func (t TokenType) String() string {
	if int(t) < len(tokenTypeNames) {
		return tokenTypeNames[t]
	}
	return fmt.Sprintf("TokenType(%d)", int(t))
}

// Token is one unit of the lexer output. The meaning of Parts depends on Type:
//
//	TAG_OPEN_START, INCOMPLETE_TAG_OPEN, TAG_CLOSE, ATTR_NAME: [prefix, name]
//	TEXT, RAW_TEXT, ESCAPABLE_RAW_TEXT, ATTR_VALUE_TEXT, COMMENT body, CDATA body: [text]
//	INTERPOLATION, ATTR_VALUE_INTERPOLATION: [startMarker, expression, endMarker?]
//	ENCODED_ENTITY: [decoded, encoded]
//	BLOCK_OPEN_START, INCOMPLETE_BLOCK_OPEN, LET_START, INCOMPLETE_LET: [name]
//	BLOCK_PARAMETER, LET_VALUE, EXPANSION_CASE_VALUE: [text]
type Token struct {
	Type       TokenType
	Parts      []string
	SourceSpan *util.ParseSourceSpan
}

func NewToken(tokenType TokenType, parts []string, span *util.ParseSourceSpan) *Token {
	if parts == nil {
		parts = []string{}
	}
	return &Token{Type: tokenType, Parts: parts, SourceSpan: span}
}

func (t *Token) String() string {
	return fmt.Sprintf("%s%q", t.Type, t.Parts)
}

// Part returns Parts[i], or "" when the token carries fewer parts.
func (t *Token) Part(i int) string {
	if i < len(t.Parts) {
		return t.Parts[i]
	}
	return ""
}

// InterpolatedTokens are the raw tokens of a text run or attribute value. They keep
// the literal/interpolation boundaries that the decoded value string loses.
type InterpolatedTokens []*Token

// HasInterpolation reports whether any of the tokens is an interpolation.
func (ts InterpolatedTokens) HasInterpolation() bool {
	for _, t := range ts {
		if t.Type == TokenTypeINTERPOLATION || t.Type == TokenTypeATTR_VALUE_INTERPOLATION {
			return true
		}
	}
	return false
}

// TokenizeResult is the lexer output.
type TokenizeResult struct {
	Tokens []*Token
	Errors []*util.ParseError
}
