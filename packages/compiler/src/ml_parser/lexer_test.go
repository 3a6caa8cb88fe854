package ml_parser_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"ngc-bind/packages/compiler/src/ml_parser"
)

func tokenize(source string, opts ml_parser.TokenizeOptions) *ml_parser.TokenizeResult {
	return ml_parser.Tokenize(source, "someUrl", ml_parser.GetHtmlTagDefinition, opts)
}

func checkTokens(t *testing.T, source string, opts ml_parser.TokenizeOptions, expected []interface{}) {
	t.Helper()
	result := tokenize(source, opts)
	if len(result.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if diff := cmp.Diff(expected, humanizeTokens(result.Tokens)); diff != "" {
		t.Errorf("tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestTokenize(t *testing.T) {
	defaults := ml_parser.DefaultTokenizeOptions()

	t.Run("tags and attributes", func(t *testing.T) {
		t.Run("should tokenize an element with a quoted attribute", func(t *testing.T) {
			checkTokens(t, `<a b="c">d</a>`, defaults, []interface{}{
				[]interface{}{ml_parser.TokenTypeTAG_OPEN_START, "", "a"},
				[]interface{}{ml_parser.TokenTypeATTR_NAME, "", "b"},
				[]interface{}{ml_parser.TokenTypeATTR_QUOTE, `"`},
				[]interface{}{ml_parser.TokenTypeATTR_VALUE_TEXT, "c"},
				[]interface{}{ml_parser.TokenTypeATTR_QUOTE, `"`},
				[]interface{}{ml_parser.TokenTypeTAG_OPEN_END},
				[]interface{}{ml_parser.TokenTypeTEXT, "d"},
				[]interface{}{ml_parser.TokenTypeTAG_CLOSE, "", "a"},
				[]interface{}{ml_parser.TokenTypeEOF},
			})
		})

		t.Run("should tokenize interpolated attribute values", func(t *testing.T) {
			checkTokens(t, `<a b="{{c}}">`, defaults, []interface{}{
				[]interface{}{ml_parser.TokenTypeTAG_OPEN_START, "", "a"},
				[]interface{}{ml_parser.TokenTypeATTR_NAME, "", "b"},
				[]interface{}{ml_parser.TokenTypeATTR_QUOTE, `"`},
				[]interface{}{ml_parser.TokenTypeATTR_VALUE_TEXT, ""},
				[]interface{}{ml_parser.TokenTypeATTR_VALUE_INTERPOLATION, "{{", "c", "}}"},
				[]interface{}{ml_parser.TokenTypeATTR_VALUE_TEXT, ""},
				[]interface{}{ml_parser.TokenTypeATTR_QUOTE, `"`},
				[]interface{}{ml_parser.TokenTypeTAG_OPEN_END},
				[]interface{}{ml_parser.TokenTypeEOF},
			})
		})

		t.Run("should mark an unterminated opening tag as incomplete", func(t *testing.T) {
			checkTokens(t, "<div", defaults, []interface{}{
				[]interface{}{ml_parser.TokenTypeINCOMPLETE_TAG_OPEN, "", "div"},
				[]interface{}{ml_parser.TokenTypeEOF},
			})
		})

		t.Run("should treat a lone less-than sign as text", func(t *testing.T) {
			checkTokens(t, "a < b", defaults, []interface{}{
				[]interface{}{ml_parser.TokenTypeTEXT, "a < b"},
				[]interface{}{ml_parser.TokenTypeEOF},
			})
		})
	})

	t.Run("blocks", func(t *testing.T) {
		t.Run("should tokenize a block with parameters", func(t *testing.T) {
			checkTokens(t, "@if (a; as b) {}", defaults, []interface{}{
				[]interface{}{ml_parser.TokenTypeBLOCK_OPEN_START, "if"},
				[]interface{}{ml_parser.TokenTypeBLOCK_PARAMETER, "a"},
				[]interface{}{ml_parser.TokenTypeBLOCK_PARAMETER, "as b"},
				[]interface{}{ml_parser.TokenTypeBLOCK_OPEN_END},
				[]interface{}{ml_parser.TokenTypeBLOCK_CLOSE},
				[]interface{}{ml_parser.TokenTypeEOF},
			})
		})

		t.Run("should allow spaces inside block names", func(t *testing.T) {
			checkTokens(t, "@else if (a) {}", defaults, []interface{}{
				[]interface{}{ml_parser.TokenTypeBLOCK_OPEN_START, "else if"},
				[]interface{}{ml_parser.TokenTypeBLOCK_PARAMETER, "a"},
				[]interface{}{ml_parser.TokenTypeBLOCK_OPEN_END},
				[]interface{}{ml_parser.TokenTypeBLOCK_CLOSE},
				[]interface{}{ml_parser.TokenTypeEOF},
			})
		})

		t.Run("should keep nested parentheses in parameters", func(t *testing.T) {
			checkTokens(t, "@defer (on timer(10ms)) {}", defaults, []interface{}{
				[]interface{}{ml_parser.TokenTypeBLOCK_OPEN_START, "defer"},
				[]interface{}{ml_parser.TokenTypeBLOCK_PARAMETER, "on timer(10ms)"},
				[]interface{}{ml_parser.TokenTypeBLOCK_OPEN_END},
				[]interface{}{ml_parser.TokenTypeBLOCK_CLOSE},
				[]interface{}{ml_parser.TokenTypeEOF},
			})
		})

		t.Run("should not tokenize blocks when disabled", func(t *testing.T) {
			opts := defaults
			opts.TokenizeBlocks = false
			checkTokens(t, "@if {}", opts, []interface{}{
				[]interface{}{ml_parser.TokenTypeTEXT, "@if {}"},
				[]interface{}{ml_parser.TokenTypeEOF},
			})
		})
	})

	t.Run("let declarations", func(t *testing.T) {
		t.Run("should tokenize a let declaration", func(t *testing.T) {
			checkTokens(t, "@let foo = 'a;b';", defaults, []interface{}{
				[]interface{}{ml_parser.TokenTypeLET_START, "foo"},
				[]interface{}{ml_parser.TokenTypeLET_VALUE, "'a;b'"},
				[]interface{}{ml_parser.TokenTypeLET_END},
				[]interface{}{ml_parser.TokenTypeEOF},
			})
		})

		t.Run("should mark a let declaration without a value as incomplete", func(t *testing.T) {
			checkTokens(t, "@let foo", defaults, []interface{}{
				[]interface{}{ml_parser.TokenTypeINCOMPLETE_LET, "foo"},
				[]interface{}{ml_parser.TokenTypeEOF},
			})
		})
	})

	t.Run("expansion forms", func(t *testing.T) {
		t.Run("should tokenize an ICU message", func(t *testing.T) {
			opts := defaults
			opts.TokenizeExpansionForms = true
			checkTokens(t, "{n, plural, =0 {a} other {b}}", opts, []interface{}{
				[]interface{}{ml_parser.TokenTypeEXPANSION_FORM_START},
				[]interface{}{ml_parser.TokenTypeRAW_TEXT, "n"},
				[]interface{}{ml_parser.TokenTypeRAW_TEXT, "plural"},
				[]interface{}{ml_parser.TokenTypeEXPANSION_CASE_VALUE, "=0"},
				[]interface{}{ml_parser.TokenTypeEXPANSION_CASE_EXP_START},
				[]interface{}{ml_parser.TokenTypeTEXT, "a"},
				[]interface{}{ml_parser.TokenTypeEXPANSION_CASE_EXP_END},
				[]interface{}{ml_parser.TokenTypeEXPANSION_CASE_VALUE, "other"},
				[]interface{}{ml_parser.TokenTypeEXPANSION_CASE_EXP_START},
				[]interface{}{ml_parser.TokenTypeTEXT, "b"},
				[]interface{}{ml_parser.TokenTypeEXPANSION_CASE_EXP_END},
				[]interface{}{ml_parser.TokenTypeEXPANSION_FORM_END},
				[]interface{}{ml_parser.TokenTypeEOF},
			})
		})
	})

	t.Run("errors", func(t *testing.T) {
		t.Run("should report unterminated hexadecimal entities", func(t *testing.T) {
			result := tokenize("&#xZ;", defaults)
			if diff := cmp.Diff([]interface{}{
				[]interface{}{`Unable to parse entity "&#xZ" - hexadecimal character reference entities must end with ";"`, "0:4"},
			}, humanizeErrors(result.Errors)); diff != "" {
				t.Errorf("errors mismatch (-want +got):\n%s", diff)
			}
		})

		t.Run("should report names that only extend a legacy entity", func(t *testing.T) {
			result := tokenize("&notanentity;", defaults)
			if diff := cmp.Diff([]interface{}{
				[]interface{}{`Unknown entity "notanentity" - use the "&#<decimal>;" or  "&#x<hex>;" syntax`, "0:0"},
			}, humanizeErrors(result.Errors)); diff != "" {
				t.Errorf("errors mismatch (-want +got):\n%s", diff)
			}
		})

		t.Run("should track line and column across newlines", func(t *testing.T) {
			result := tokenize("a\nb", defaults)
			last := result.Tokens[len(result.Tokens)-1]
			if got := humanizeLineCol(last.SourceSpan.Start); got != "1:1" {
				t.Errorf("EOF location = %s, want 1:1", got)
			}
		})
	})
}
