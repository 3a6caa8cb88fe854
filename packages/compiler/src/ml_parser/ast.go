package ml_parser

import "ngc-bind/packages/compiler/src/util"

// Node is a generic markup node. The set of implementations is closed: *Element, *Text,
// *Comment, *Expansion, *ExpansionCase, *Attribute, *Block, *BlockParameter and
// *LetDeclaration.
type Node interface {
	SourceSpan() *util.ParseSourceSpan
	htmlNode()
}

// I18nMeta is opaque to this package; the i18n extraction pass fills it.
type I18nMeta any

type Text struct {
	Value  string
	Tokens InterpolatedTokens
	Span   *util.ParseSourceSpan
	I18n   I18nMeta
}

type Comment struct {
	Value string
	Span  *util.ParseSourceSpan
}

type Expansion struct {
	SwitchValue           string
	Type                  string
	Cases                 []*ExpansionCase
	Span                  *util.ParseSourceSpan
	SwitchValueSourceSpan *util.ParseSourceSpan
	I18n                  I18nMeta
}

type ExpansionCase struct {
	Value           string
	Expression      []Node
	Span            *util.ParseSourceSpan
	ValueSourceSpan *util.ParseSourceSpan
	ExpSourceSpan   *util.ParseSourceSpan
}

type Attribute struct {
	Name        string
	Value       string
	Span        *util.ParseSourceSpan
	KeySpan     *util.ParseSourceSpan
	ValueSpan   *util.ParseSourceSpan
	ValueTokens InterpolatedTokens
	I18n        I18nMeta
}

type Element struct {
	Name            string
	Attrs           []*Attribute
	Children        []Node
	IsSelfClosing   bool
	Span            *util.ParseSourceSpan
	StartSourceSpan *util.ParseSourceSpan
	// EndSourceSpan is nil when the element was closed implicitly.
	EndSourceSpan *util.ParseSourceSpan
	IsVoid        bool
	I18n          I18nMeta
}

type Block struct {
	Name            string
	Parameters      []*BlockParameter
	Children        []Node
	Span            *util.ParseSourceSpan
	NameSpan        *util.ParseSourceSpan
	StartSourceSpan *util.ParseSourceSpan
	EndSourceSpan   *util.ParseSourceSpan
	I18n            I18nMeta
}

type BlockParameter struct {
	Expression string
	Span       *util.ParseSourceSpan
}

// LetDeclaration is `@let name = value;`.
type LetDeclaration struct {
	Name      string
	Value     string
	Span      *util.ParseSourceSpan
	NameSpan  *util.ParseSourceSpan
	ValueSpan *util.ParseSourceSpan
}

func (n *Text) SourceSpan() *util.ParseSourceSpan           { return n.Span }
func (n *Comment) SourceSpan() *util.ParseSourceSpan        { return n.Span }
func (n *Expansion) SourceSpan() *util.ParseSourceSpan      { return n.Span }
func (n *ExpansionCase) SourceSpan() *util.ParseSourceSpan  { return n.Span }
func (n *Attribute) SourceSpan() *util.ParseSourceSpan      { return n.Span }
func (n *Element) SourceSpan() *util.ParseSourceSpan        { return n.Span }
func (n *Block) SourceSpan() *util.ParseSourceSpan          { return n.Span }
func (n *BlockParameter) SourceSpan() *util.ParseSourceSpan { return n.Span }
func (n *LetDeclaration) SourceSpan() *util.ParseSourceSpan { return n.Span }

func (*Text) htmlNode()           {}
func (*Comment) htmlNode()        {}
func (*Expansion) htmlNode()      {}
func (*ExpansionCase) htmlNode()  {}
func (*Attribute) htmlNode()      {}
func (*Element) htmlNode()        {}
func (*Block) htmlNode()          {}
func (*BlockParameter) htmlNode() {}
func (*LetDeclaration) htmlNode() {}

// Walk calls fn for every node in pre-order. Returning false from fn skips the node's
// children.
func Walk(nodes []Node, fn func(Node) bool) {
	for _, node := range nodes {
		if !fn(node) {
			continue
		}
		switch n := node.(type) {
		case *Element:
			for _, attr := range n.Attrs {
				fn(attr)
			}
			Walk(n.Children, fn)
		case *Block:
			for _, p := range n.Parameters {
				fn(p)
			}
			Walk(n.Children, fn)
		case *Expansion:
			for _, c := range n.Cases {
				if fn(c) {
					Walk(c.Expression, fn)
				}
			}
		case *ExpansionCase:
			Walk(n.Expression, fn)
		case *Text, *Comment, *Attribute, *BlockParameter, *LetDeclaration:
		default:
			util.Failf("unexpected node %T", node)
		}
	}
}
