package ml_parser

import (
	"regexp"

	"ngc-bind/packages/compiler/src/util"
)

// PreserveWsAttrName opts an element's subtree out of whitespace removal. The attribute
// itself is removed.
const PreserveWsAttrName = "ngPreserveWhitespaces"

var skipWsTrimTags = map[string]bool{
	"pre":      true,
	"template": true,
	"textarea": true,
	"script":   true,
	"style":    true,
}

const wsChars = ` \f\n\r\t\v\x{1680}\x{180e}\x{2000}-\x{200a}\x{2028}\x{2029}\x{202f}\x{205f}\x{3000}\x{feff}`

var (
	noWsRegexp      = regexp.MustCompile(`[^` + wsChars + `]`)
	wsReplaceRegexp = regexp.MustCompile(`[` + wsChars + `]{2,}`)
)

func HasPreserveWhitespacesAttr(attrs []*Attribute) bool {
	for _, attr := range attrs {
		if attr.Name == PreserveWsAttrName {
			return true
		}
	}
	return false
}

// RemoveWhitespaces drops whitespace-only text nodes and collapses whitespace runs in the
// remaining text. Text next to an ICU expansion is kept so the expansion's spacing
// survives. The input tree is not modified.
func RemoveWhitespaces(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for i, node := range nodes {
		switch n := node.(type) {
		case *Element:
			el := *n
			if skipWsTrimTags[n.Name] || HasPreserveWhitespacesAttr(n.Attrs) {
				el.Attrs = withoutPreserveAttr(n.Attrs)
			} else {
				el.Children = RemoveWhitespaces(n.Children)
			}
			out = append(out, &el)
		case *Text:
			expansionSibling := (i > 0 && isExpansion(nodes[i-1])) ||
				(i+1 < len(nodes) && isExpansion(nodes[i+1]))
			if !noWsRegexp.MatchString(n.Value) && !expansionSibling {
				continue
			}
			text := *n
			text.Value = wsReplaceRegexp.ReplaceAllString(n.Value, " ")
			text.Tokens = make(InterpolatedTokens, len(n.Tokens))
			for j, tok := range n.Tokens {
				if tok.Type == TokenTypeTEXT {
					tok = NewToken(TokenTypeTEXT, []string{wsReplaceRegexp.ReplaceAllString(tok.Parts[0], " ")}, tok.SourceSpan)
				}
				text.Tokens[j] = tok
			}
			out = append(out, &text)
		case *Expansion:
			exp := *n
			exp.Cases = make([]*ExpansionCase, len(n.Cases))
			for j, c := range n.Cases {
				cc := *c
				cc.Expression = RemoveWhitespaces(c.Expression)
				exp.Cases[j] = &cc
			}
			out = append(out, &exp)
		case *Block:
			block := *n
			block.Children = RemoveWhitespaces(n.Children)
			out = append(out, &block)
		case *Comment, *LetDeclaration:
			out = append(out, node)
		default:
			util.Failf("unexpected node %T in whitespace removal", node)
		}
	}
	return out
}

func withoutPreserveAttr(attrs []*Attribute) []*Attribute {
	out := make([]*Attribute, 0, len(attrs))
	for _, attr := range attrs {
		if attr.Name != PreserveWsAttrName {
			out = append(out, attr)
		}
	}
	return out
}

func isExpansion(n Node) bool {
	_, ok := n.(*Expansion)
	return ok
}
