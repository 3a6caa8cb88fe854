package ml_parser_test

import (
	"fmt"

	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/util"
)

// humanizeDom flattens a parse result into one row per node. It fails loudly when the
// parse produced errors so tests never compare a half-built tree by accident.
func humanizeDom(result *ml_parser.ParseTreeResult) []interface{} {
	if len(result.Errors) > 0 {
		msgs := make([]string, len(result.Errors))
		for i, e := range result.Errors {
			msgs[i] = e.Error()
		}
		panic(fmt.Sprintf("unexpected parse errors: %v", msgs))
	}
	return humanizeNodes(result.RootNodes)
}

func humanizeNodes(nodes []ml_parser.Node) []interface{} {
	h := &humanizer{}
	h.visitAll(nodes)
	return h.result
}

type humanizer struct {
	result []interface{}
	depth  int
}

func (h *humanizer) visitAll(nodes []ml_parser.Node) {
	for _, node := range nodes {
		h.visit(node)
	}
}

func (h *humanizer) visit(node ml_parser.Node) {
	switch n := node.(type) {
	case *ml_parser.Element:
		h.result = append(h.result, []interface{}{"Element", n.Name, h.depth})
		for _, attr := range n.Attrs {
			h.visit(attr)
		}
		h.depth++
		h.visitAll(n.Children)
		h.depth--
	case *ml_parser.Attribute:
		h.result = append(h.result, []interface{}{"Attribute", n.Name, n.Value})
	case *ml_parser.Text:
		h.result = append(h.result, []interface{}{"Text", n.Value, h.depth})
	case *ml_parser.Comment:
		h.result = append(h.result, []interface{}{"Comment", n.Value, h.depth})
	case *ml_parser.Expansion:
		h.result = append(h.result, []interface{}{"Expansion", n.SwitchValue, n.Type, h.depth})
		h.depth++
		for _, c := range n.Cases {
			h.visit(c)
		}
		h.depth--
	case *ml_parser.ExpansionCase:
		h.result = append(h.result, []interface{}{"ExpansionCase", n.Value, h.depth})
		h.depth++
		h.visitAll(n.Expression)
		h.depth--
	case *ml_parser.Block:
		h.result = append(h.result, []interface{}{"Block", n.Name, h.depth})
		for _, p := range n.Parameters {
			h.visit(p)
		}
		h.depth++
		h.visitAll(n.Children)
		h.depth--
	case *ml_parser.BlockParameter:
		h.result = append(h.result, []interface{}{"BlockParameter", n.Expression})
	case *ml_parser.LetDeclaration:
		h.result = append(h.result, []interface{}{"LetDeclaration", n.Name, n.Value})
	default:
		panic(fmt.Sprintf("unexpected node %T", node))
	}
}

// humanizeErrors returns [message, "line:col"] rows.
func humanizeErrors(errs []*util.ParseError) []interface{} {
	result := []interface{}{}
	for _, e := range errs {
		result = append(result, []interface{}{e.Msg, humanizeLineCol(e.Span.Start)})
	}
	return result
}

func humanizeLineCol(loc *util.ParseLocation) string {
	return fmt.Sprintf("%d:%d", loc.Line, loc.Col)
}

// humanizeTokens returns [type, parts...] rows for a token stream.
func humanizeTokens(tokens []*ml_parser.Token) []interface{} {
	result := []interface{}{}
	for _, tok := range tokens {
		row := []interface{}{tok.Type}
		for _, p := range tok.Parts {
			row = append(row, p)
		}
		result = append(result, row)
	}
	return result
}
