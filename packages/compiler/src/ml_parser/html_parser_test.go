package ml_parser_test

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/util"
)

func parse(source string) *ml_parser.ParseTreeResult {
	return ml_parser.NewHtmlParser().Parse(source, "TestComp", ml_parser.DefaultParseOptions())
}

func parseWithExpansions(source string, maxDepth int) *ml_parser.ParseTreeResult {
	opts := ml_parser.DefaultParseOptions()
	opts.Tokenize.TokenizeExpansionForms = true
	opts.TreeBuilder.MaxExpansionDepth = maxDepth
	return ml_parser.NewHtmlParser().Parse(source, "TestComp", opts)
}

func checkDom(t *testing.T, result *ml_parser.ParseTreeResult, expected []interface{}) {
	t.Helper()
	if diff := cmp.Diff(expected, humanizeDom(result)); diff != "" {
		t.Errorf("humanizeDom() mismatch (-want +got):\n%s", diff)
	}
}

func checkErrors(t *testing.T, result *ml_parser.ParseTreeResult, expected []interface{}) {
	t.Helper()
	if diff := cmp.Diff(expected, humanizeErrors(result.Errors)); diff != "" {
		t.Errorf("humanizeErrors() mismatch (-want +got):\n%s", diff)
	}
}

func TestHtmlParser_Parse(t *testing.T) {
	t.Run("text nodes", func(t *testing.T) {
		t.Run("should parse root level text nodes", func(t *testing.T) {
			checkDom(t, parse("a"), []interface{}{
				[]interface{}{"Text", "a", 0},
			})
		})

		t.Run("should parse text nodes inside regular elements", func(t *testing.T) {
			checkDom(t, parse("<div>a</div>"), []interface{}{
				[]interface{}{"Element", "div", 0},
				[]interface{}{"Text", "a", 1},
			})
		})

		t.Run("should parse CDATA", func(t *testing.T) {
			checkDom(t, parse("<![CDATA[text]]>"), []interface{}{
				[]interface{}{"Text", "text", 0},
			})
		})

		t.Run("should decode entities", func(t *testing.T) {
			checkDom(t, parse("<div>&amp;&#65;&#x42;</div>"), []interface{}{
				[]interface{}{"Element", "div", 0},
				[]interface{}{"Text", "&AB", 1},
			})
		})

		t.Run("should decode entities inside interpolations", func(t *testing.T) {
			checkDom(t, parse("{{ a &amp;&amp; b }}"), []interface{}{
				[]interface{}{"Text", "{{ a && b }}", 0},
			})
		})

		t.Run("should keep interpolation tokens", func(t *testing.T) {
			result := parse("a{{b}}c")
			text := result.RootNodes[0].(*ml_parser.Text)
			if !text.Tokens.HasInterpolation() {
				t.Fatalf("expected interpolation tokens, got %v", text.Tokens)
			}
			if diff := cmp.Diff([]interface{}{
				[]interface{}{ml_parser.TokenTypeTEXT, "a"},
				[]interface{}{ml_parser.TokenTypeINTERPOLATION, "{{", "b", "}}"},
				[]interface{}{ml_parser.TokenTypeTEXT, "c"},
			}, humanizeTokens(text.Tokens)); diff != "" {
				t.Errorf("tokens mismatch (-want +got):\n%s", diff)
			}
		})

		t.Run("should ignore LF immediately after pre", func(t *testing.T) {
			checkDom(t, parse("<pre>\nhello</pre>"), []interface{}{
				[]interface{}{"Element", "pre", 0},
				[]interface{}{"Text", "hello", 1},
			})
		})

		t.Run("should normalize line endings in text", func(t *testing.T) {
			checkDom(t, parse("<div>a\r\nb</div>"), []interface{}{
				[]interface{}{"Element", "div", 0},
				[]interface{}{"Text", "a\nb", 1},
			})
		})
	})

	t.Run("elements", func(t *testing.T) {
		t.Run("should parse nested elements without errors", func(t *testing.T) {
			result := parse("<div><span></span></div>")
			checkDom(t, result, []interface{}{
				[]interface{}{"Element", "div", 0},
				[]interface{}{"Element", "span", 1},
			})
		})

		t.Run("should support void elements", func(t *testing.T) {
			result := parse("<input><div></div>")
			checkDom(t, result, []interface{}{
				[]interface{}{"Element", "input", 0},
				[]interface{}{"Element", "div", 0},
			})
			if !result.RootNodes[0].(*ml_parser.Element).IsVoid {
				t.Errorf("expected input to be void")
			}
		})

		t.Run("should close elements by their children", func(t *testing.T) {
			checkDom(t, parse("<p>a<div></div>"), []interface{}{
				[]interface{}{"Element", "p", 0},
				[]interface{}{"Text", "a", 1},
				[]interface{}{"Element", "div", 0},
			})
		})

		t.Run("should support self closing void and custom elements", func(t *testing.T) {
			checkDom(t, parse("<br/><my-cmp/>"), []interface{}{
				[]interface{}{"Element", "br", 0},
				[]interface{}{"Element", "my-cmp", 0},
			})
		})

		t.Run("should propagate the svg namespace", func(t *testing.T) {
			checkDom(t, parse("<svg><circle></circle></svg>"), []interface{}{
				[]interface{}{"Element", ":svg:svg", 0},
				[]interface{}{"Element", ":svg:circle", 1},
			})
		})

		t.Run("should stop namespace inheritance at foreignObject", func(t *testing.T) {
			checkDom(t, parse("<svg><foreignObject><div></div></foreignObject></svg>"), []interface{}{
				[]interface{}{"Element", ":svg:svg", 0},
				[]interface{}{"Element", ":svg:foreignObject", 1},
				[]interface{}{"Element", "div", 2},
			})
		})

		t.Run("should implicitly close inner elements on an outer close tag", func(t *testing.T) {
			result := parse("<div><span></div>")
			checkDom(t, result, []interface{}{
				[]interface{}{"Element", "div", 0},
				[]interface{}{"Element", "span", 1},
			})
			div := result.RootNodes[0].(*ml_parser.Element)
			span := div.Children[0].(*ml_parser.Element)
			if span.EndSourceSpan != nil {
				t.Errorf("expected span to have no end span, got %q", span.EndSourceSpan.String())
			}
			if div.EndSourceSpan == nil || div.EndSourceSpan.String() != "</div>" {
				t.Errorf("expected div end span to be </div>, got %v", div.EndSourceSpan)
			}
		})

		t.Run("should close elements still open at the end of input", func(t *testing.T) {
			result := parse("<div><span>a")
			checkDom(t, result, []interface{}{
				[]interface{}{"Element", "div", 0},
				[]interface{}{"Element", "span", 1},
				[]interface{}{"Text", "a", 2},
			})
		})
	})

	t.Run("attributes", func(t *testing.T) {
		t.Run("should parse attributes with and without values", func(t *testing.T) {
			result := parse(`<div a="b" c></div>`)
			checkDom(t, result, []interface{}{
				[]interface{}{"Element", "div", 0},
				[]interface{}{"Attribute", "a", "b"},
				[]interface{}{"Attribute", "c", ""},
			})
			attrs := result.RootNodes[0].(*ml_parser.Element).Attrs
			if attrs[0].ValueSpan == nil || attrs[0].ValueSpan.String() != "b" {
				t.Errorf("expected value span b, got %v", attrs[0].ValueSpan)
			}
			if attrs[1].ValueSpan != nil {
				t.Errorf("expected no value span for a valueless attribute")
			}
		})

		t.Run("should parse interpolated attribute values", func(t *testing.T) {
			result := parse(`<div title="{{a}}"></div>`)
			checkDom(t, result, []interface{}{
				[]interface{}{"Element", "div", 0},
				[]interface{}{"Attribute", "title", "{{a}}"},
			})
			if !result.RootNodes[0].(*ml_parser.Element).Attrs[0].ValueTokens.HasInterpolation() {
				t.Errorf("expected interpolation in attribute value tokens")
			}
		})

		t.Run("should decode entities in attribute values", func(t *testing.T) {
			checkDom(t, parse(`<div title="a&amp;b"></div>`), []interface{}{
				[]interface{}{"Element", "div", 0},
				[]interface{}{"Attribute", "title", "a&b"},
			})
		})
	})

	t.Run("comments", func(t *testing.T) {
		t.Run("should keep comments", func(t *testing.T) {
			checkDom(t, parse("<div><!-- hi --></div>"), []interface{}{
				[]interface{}{"Element", "div", 0},
				[]interface{}{"Comment", "hi", 1},
			})
		})
	})

	t.Run("blocks", func(t *testing.T) {
		t.Run("should parse a block with parameters", func(t *testing.T) {
			checkDom(t, parse("@if (a; as b) {hello}"), []interface{}{
				[]interface{}{"Block", "if", 0},
				[]interface{}{"BlockParameter", "a"},
				[]interface{}{"BlockParameter", "as b"},
				[]interface{}{"Text", "hello", 1},
			})
		})

		t.Run("should parse nested blocks and elements", func(t *testing.T) {
			checkDom(t, parse("@if (a) {<div>@for (x of y; track x) {{{x}}}</div>} @else {b}"), []interface{}{
				[]interface{}{"Block", "if", 0},
				[]interface{}{"BlockParameter", "a"},
				[]interface{}{"Element", "div", 1},
				[]interface{}{"Block", "for", 2},
				[]interface{}{"BlockParameter", "x of y"},
				[]interface{}{"BlockParameter", "track x"},
				[]interface{}{"Text", "{{x}}", 3},
				[]interface{}{"Text", " ", 0},
				[]interface{}{"Block", "else", 0},
				[]interface{}{"Text", "b", 1},
			})
		})

		t.Run("should parse a block without parameters", func(t *testing.T) {
			checkDom(t, parse("@defer {a}"), []interface{}{
				[]interface{}{"Block", "defer", 0},
				[]interface{}{"Text", "a", 1},
			})
		})

		t.Run("should close elements left open inside a block", func(t *testing.T) {
			result := parse("@if (a) {<span>}")
			checkDom(t, result, []interface{}{
				[]interface{}{"Block", "if", 0},
				[]interface{}{"BlockParameter", "a"},
				[]interface{}{"Element", "span", 1},
			})
			block := result.RootNodes[0].(*ml_parser.Block)
			if block.EndSourceSpan == nil {
				t.Errorf("expected the block to be closed explicitly")
			}
		})
	})

	t.Run("let declarations", func(t *testing.T) {
		t.Run("should parse a let declaration", func(t *testing.T) {
			result := parse("@let x = 1 + 2;")
			checkDom(t, result, []interface{}{
				[]interface{}{"LetDeclaration", "x", "1 + 2"},
			})
			decl := result.RootNodes[0].(*ml_parser.LetDeclaration)
			if got := decl.NameSpan.String(); got != "x" {
				t.Errorf("NameSpan = %q, want %q", got, "x")
			}
		})
	})

	t.Run("expansion forms", func(t *testing.T) {
		t.Run("should parse an ICU message", func(t *testing.T) {
			checkDom(t, parseWithExpansions("{count, plural, =0 {none} other {many}}", 0), []interface{}{
				[]interface{}{"Expansion", "count", "plural", 0},
				[]interface{}{"ExpansionCase", "=0", 1},
				[]interface{}{"Text", "none", 2},
				[]interface{}{"ExpansionCase", "other", 1},
				[]interface{}{"Text", "many", 2},
			})
		})

		t.Run("should parse nested ICU messages", func(t *testing.T) {
			checkDom(t, parseWithExpansions("{a, select, x { {b, select, y {t}}}}", 0), []interface{}{
				[]interface{}{"Expansion", "a", "select", 0},
				[]interface{}{"ExpansionCase", "x", 1},
				[]interface{}{"Expansion", "b", "select", 2},
				[]interface{}{"ExpansionCase", "y", 3},
				[]interface{}{"Text", "t", 4},
			})
		})

		t.Run("should fail when nesting exceeds the depth limit", func(t *testing.T) {
			source := "{a, select, x { {b, select, y { {c, select, z {t}}}}}}"
			if result := parseWithExpansions(source, 3); len(result.Errors) != 0 {
				t.Fatalf("unexpected errors at depth 3: %v", result.Errors)
			}

			defer func() {
				r := recover()
				err, ok := r.(error)
				var invariant *util.InvariantError
				if !ok || !errors.As(err, &invariant) {
					t.Fatalf("expected an invariant failure, got %v", r)
				}
			}()
			parseWithExpansions(source, 2)
		})
	})
}

func TestHtmlParser_Errors(t *testing.T) {
	t.Run("should report an unexpected closing tag once", func(t *testing.T) {
		result := parse("<div></span></div>")
		checkErrors(t, result, []interface{}{
			[]interface{}{`Unexpected closing tag "span". It may happen when the tag has already been closed by another tag. For more info see https://www.w3.org/TR/html5/syntax.html#closing-elements-that-have-implied-end-tags`, "0:5"},
		})
		if result.RootNodes[0].(*ml_parser.Element).EndSourceSpan == nil {
			t.Errorf("expected div to be closed by its own tag")
		}
	})

	t.Run("should not close across a block boundary", func(t *testing.T) {
		result := parse("<div>@if (a) {</div>}</div>")
		if len(result.Errors) != 1 {
			t.Fatalf("expected 1 error, got %d: %v", len(result.Errors), result.Errors)
		}
		div := result.RootNodes[0].(*ml_parser.Element)
		if div.EndSourceSpan == nil || div.EndSourceSpan.Start.Offset != 21 {
			t.Errorf("expected div to be closed by the last tag, got %v", div.EndSourceSpan)
		}
	})

	t.Run("should report void end tags", func(t *testing.T) {
		checkErrors(t, parse("<input></input>"), []interface{}{
			[]interface{}{`Void elements do not have end tags "input"`, "0:7"},
		})
	})

	t.Run("should report self closing html elements", func(t *testing.T) {
		checkErrors(t, parse("<div/>"), []interface{}{
			[]interface{}{`Only void, custom and foreign elements can be self closed "div"`, "0:0"},
		})
	})

	t.Run("should report an incomplete opening tag and keep its attributes", func(t *testing.T) {
		result := parse(`<div class="a" <span></span>`)
		checkErrors(t, result, []interface{}{
			[]interface{}{`Opening tag "div" not terminated.`, "0:0"},
		})
		if diff := cmp.Diff([]interface{}{
			[]interface{}{"Element", "div", 0},
			[]interface{}{"Attribute", "class", "a"},
			[]interface{}{"Element", "span", 0},
		}, humanizeNodes(result.RootNodes)); diff != "" {
			t.Errorf("humanizeNodes() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should report an unexpected closing block", func(t *testing.T) {
		checkErrors(t, parse("a}"), []interface{}{
			[]interface{}{`Unexpected closing block. The block may have been closed earlier. If you meant to write the } character, you should use the "&#125;" HTML entity instead.`, "0:1"},
		})
	})

	t.Run("should report an unclosed block", func(t *testing.T) {
		checkErrors(t, parse("@if (a) {hello"), []interface{}{
			[]interface{}{`Unclosed block "if"`, "0:0"},
		})
	})

	t.Run("should report an incomplete block", func(t *testing.T) {
		result := parse("@if")
		checkErrors(t, result, []interface{}{
			[]interface{}{`Incomplete block "if". If you meant to write the @ character, you should use the "&#64;" HTML entity instead.`, "0:0"},
		})
		if diff := cmp.Diff([]interface{}{
			[]interface{}{"Block", "if", 0},
		}, humanizeNodes(result.RootNodes)); diff != "" {
			t.Errorf("humanizeNodes() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should report an unterminated let declaration", func(t *testing.T) {
		result := parse("@let x = 1")
		if len(result.Errors) != 1 {
			t.Fatalf("expected 1 error, got %v", result.Errors)
		}
	})

	t.Run("should report unknown entities", func(t *testing.T) {
		checkErrors(t, parse("&nosuchentity;"), []interface{}{
			[]interface{}{`Unknown entity "nosuchentity" - use the "&#<decimal>;" or  "&#x<hex>;" syntax`, "0:0"},
		})
	})

	t.Run("should not decode entities that only share a prefix with a known name", func(t *testing.T) {
		checkErrors(t, parse("<div>&notanentity;</div>"), []interface{}{
			[]interface{}{`Unknown entity "notanentity" - use the "&#<decimal>;" or  "&#x<hex>;" syntax`, "0:5"},
		})
		checkErrors(t, parse("&ampfoo;"), []interface{}{
			[]interface{}{`Unknown entity "ampfoo" - use the "&#<decimal>;" or  "&#x<hex>;" syntax`, "0:0"},
		})
	})

	t.Run("should keep prefix-colliding entities in interpolations", func(t *testing.T) {
		checkDom(t, parse("{{ a &notanentity; b }}"), []interface{}{
			[]interface{}{"Text", "{{ a &notanentity; b }}", 0},
		})
	})

	t.Run("should report ICU cases without a body", func(t *testing.T) {
		result := parseWithExpansions("{a, select, x}", 0)
		if len(result.Errors) == 0 {
			t.Fatalf("expected errors for a malformed ICU message")
		}
	})
}

func TestDecodeEntity(t *testing.T) {
	cases := []struct {
		name    string
		encoded string
		want    string
		wantOK  bool
	}{
		{"should decode a named entity", "&amp;", "&", true},
		{"should decode a semicolon", "&semi;", ";", true},
		{"should decode a decimal reference", "&#65;", "A", true},
		{"should decode a hexadecimal reference", "&#x42;", "B", true},
		{"should reject an unknown name", "&nosuchentity;", "&nosuchentity;", false},
		{"should reject a name that extends a legacy entity", "&notanentity;", "&notanentity;", false},
		{"should reject a name that extends amp", "&ampfoo;", "&ampfoo;", false},
		{"should reject input without a semicolon", "&amp", "&amp", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := ml_parser.DecodeEntity(c.encoded)
			if got != c.want || ok != c.wantOK {
				t.Errorf("DecodeEntity(%q) = %q, %v, want %q, %v", c.encoded, got, ok, c.want, c.wantOK)
			}
		})
	}
}
