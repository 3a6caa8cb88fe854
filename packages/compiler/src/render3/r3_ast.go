package render3

import (
	"maps"
	"slices"

	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/template_parser"
	"ngc-bind/packages/compiler/src/util"
)

// I18nMeta is carried for the i18n passes and never inspected here.
type I18nMeta any

// Node is a semantic template node. The implementations in this package form a closed
// set; switches over Node fail loudly on anything else.
type Node interface {
	SourceSpan() *util.ParseSourceSpan
	r3Node()
}

type Comment struct {
	Value string
	Span  *util.ParseSourceSpan
}

type Text struct {
	Value string
	Span  *util.ParseSourceSpan
}

// BoundText is text with interpolations. Value is an *ASTWithSource wrapping an
// *Interpolation.
type BoundText struct {
	Value expression_parser.AST
	Span  *util.ParseSourceSpan
	I18n  I18nMeta
}

// TextAttribute is a static attribute. It never binds; a directive can still read it.
type TextAttribute struct {
	Name      string
	Value     string
	Span      *util.ParseSourceSpan
	KeySpan   *util.ParseSourceSpan
	ValueSpan *util.ParseSourceSpan
	I18n      I18nMeta
}

type BoundAttribute struct {
	Name      string
	Type      template_parser.BindingType
	Value     expression_parser.AST
	Unit      string
	Span      *util.ParseSourceSpan
	KeySpan   *util.ParseSourceSpan
	ValueSpan *util.ParseSourceSpan
	I18n      I18nMeta
}

func BoundAttributeFromProperty(prop *template_parser.BoundElementProperty, i18n I18nMeta) *BoundAttribute {
	return &BoundAttribute{
		Name:      prop.Name,
		Type:      prop.Type,
		Value:     prop.Value,
		Unit:      prop.Unit,
		Span:      prop.SourceSpan,
		KeySpan:   prop.KeySpan,
		ValueSpan: prop.ValueSpan,
		I18n:      i18n,
	}
}

type BoundEvent struct {
	Name    string
	Type    template_parser.ParsedEventType
	Handler expression_parser.AST
	// Target is set for `(window:resize)` style events, Phase for legacy animation events.
	Target      string
	Phase       string
	Span        *util.ParseSourceSpan
	HandlerSpan *util.ParseSourceSpan
	KeySpan     *util.ParseSourceSpan
}

func BoundEventFromParsedEvent(event *template_parser.ParsedEvent) *BoundEvent {
	e := &BoundEvent{
		Name:        event.Name,
		Type:        event.Type,
		Handler:     event.Handler,
		Span:        event.SourceSpan,
		HandlerSpan: event.HandlerSpan,
		KeySpan:     event.KeySpan,
	}
	if event.Type == template_parser.ParsedEventTypeLegacyAnimation {
		e.Phase = event.TargetOrPhase
	} else {
		e.Target = event.TargetOrPhase
	}
	return e
}

type Element struct {
	Name            string
	Attributes      []*TextAttribute
	Inputs          []*BoundAttribute
	Outputs         []*BoundEvent
	Children        []Node
	References      []*Reference
	IsSelfClosing   bool
	Span            *util.ParseSourceSpan
	StartSourceSpan *util.ParseSourceSpan
	EndSourceSpan   *util.ParseSourceSpan
	IsVoid          bool
	I18n            I18nMeta
}

// TemplateAttr is a *TextAttribute or *BoundAttribute hoisted from a structural
// attribute (`*ngIf="x"`).
type TemplateAttr interface {
	Node
	templateAttr()
}

func (*TextAttribute) templateAttr()  {}
func (*BoundAttribute) templateAttr() {}

// Template is an `<ng-template>` or the wrapper created for a structural attribute. For a
// wrapper, TagName is the inner element's name.
type Template struct {
	TagName         string
	Attributes      []*TextAttribute
	Inputs          []*BoundAttribute
	Outputs         []*BoundEvent
	TemplateAttrs   []TemplateAttr
	Children        []Node
	References      []*Reference
	Variables       []*Variable
	IsSelfClosing   bool
	Span            *util.ParseSourceSpan
	StartSourceSpan *util.ParseSourceSpan
	EndSourceSpan   *util.ParseSourceSpan
	I18n            I18nMeta
}

type Content struct {
	Selector        string
	Attributes      []*TextAttribute
	Children        []Node
	IsSelfClosing   bool
	Span            *util.ParseSourceSpan
	StartSourceSpan *util.ParseSourceSpan
	EndSourceSpan   *util.ParseSourceSpan
	I18n            I18nMeta
}

type Variable struct {
	Name      string
	Value     string
	Span      *util.ParseSourceSpan
	KeySpan   *util.ParseSourceSpan
	ValueSpan *util.ParseSourceSpan
}

// Reference is `#name` or `#name="exportAs"`.
type Reference struct {
	Name      string
	Value     string
	Span      *util.ParseSourceSpan
	KeySpan   *util.ParseSourceSpan
	ValueSpan *util.ParseSourceSpan
}

// Icu is an ICU message. Placeholders hold *Text or *BoundText.
type Icu struct {
	Vars         map[string]*BoundText
	Placeholders map[string]Node
	Span         *util.ParseSourceSpan
	I18n         I18nMeta
}

// BlockNode holds the spans shared by every `@block`.
type BlockNode struct {
	NameSpan        *util.ParseSourceSpan
	Span            *util.ParseSourceSpan
	StartSourceSpan *util.ParseSourceSpan
	EndSourceSpan   *util.ParseSourceSpan
}

func (b *BlockNode) SourceSpan() *util.ParseSourceSpan { return b.Span }

type DeferredBlockPlaceholder struct {
	BlockNode
	Children []Node
	// MinimumTime is in milliseconds, nil when absent.
	MinimumTime *int
	I18n        I18nMeta
}

type DeferredBlockLoading struct {
	BlockNode
	Children    []Node
	AfterTime   *int
	MinimumTime *int
	I18n        I18nMeta
}

type DeferredBlockError struct {
	BlockNode
	Children []Node
	I18n     I18nMeta
}

type DeferredBlock struct {
	BlockNode
	Children         []Node
	Triggers         DeferredBlockTriggers
	PrefetchTriggers DeferredBlockTriggers
	HydrateTriggers  DeferredBlockTriggers
	Placeholder      *DeferredBlockPlaceholder
	Loading          *DeferredBlockLoading
	Error            *DeferredBlockError
	MainBlockSpan    *util.ParseSourceSpan
	I18n             I18nMeta
}

type SwitchBlock struct {
	BlockNode
	Expression expression_parser.AST
	Cases      []*SwitchBlockCase
	// UnknownBlocks are kept for language tooling.
	UnknownBlocks []*UnknownBlock
}

// SwitchBlockCase is `@case (expr)` or, with a nil Expression, `@default`.
type SwitchBlockCase struct {
	BlockNode
	Expression expression_parser.AST
	Children   []Node
	I18n       I18nMeta
}

type ForLoopBlock struct {
	BlockNode
	Item             *Variable
	Expression       *expression_parser.ASTWithSource
	TrackBy          *expression_parser.ASTWithSource
	TrackKeywordSpan *util.ParseSourceSpan
	ContextVariables []*Variable
	Children         []Node
	Empty            *ForLoopBlockEmpty
	MainBlockSpan    *util.ParseSourceSpan
	I18n             I18nMeta
}

type ForLoopBlockEmpty struct {
	BlockNode
	Children []Node
	I18n     I18nMeta
}

type IfBlock struct {
	BlockNode
	Branches []*IfBlockBranch
}

// IfBlockBranch has a nil Expression for `@else`.
type IfBlockBranch struct {
	BlockNode
	Expression      expression_parser.AST
	Children        []Node
	ExpressionAlias *Variable
	I18n            I18nMeta
}

type UnknownBlock struct {
	Name     string
	Span     *util.ParseSourceSpan
	NameSpan *util.ParseSourceSpan
}

// LetDeclaration is `@let name = value;`.
type LetDeclaration struct {
	Name      string
	Value     expression_parser.AST
	Span      *util.ParseSourceSpan
	NameSpan  *util.ParseSourceSpan
	ValueSpan *util.ParseSourceSpan
}

func (n *Comment) SourceSpan() *util.ParseSourceSpan        { return n.Span }
func (n *Text) SourceSpan() *util.ParseSourceSpan           { return n.Span }
func (n *BoundText) SourceSpan() *util.ParseSourceSpan      { return n.Span }
func (n *TextAttribute) SourceSpan() *util.ParseSourceSpan  { return n.Span }
func (n *BoundAttribute) SourceSpan() *util.ParseSourceSpan { return n.Span }
func (n *BoundEvent) SourceSpan() *util.ParseSourceSpan     { return n.Span }
func (n *Element) SourceSpan() *util.ParseSourceSpan        { return n.Span }
func (n *Template) SourceSpan() *util.ParseSourceSpan       { return n.Span }
func (n *Content) SourceSpan() *util.ParseSourceSpan        { return n.Span }
func (n *Variable) SourceSpan() *util.ParseSourceSpan       { return n.Span }
func (n *Reference) SourceSpan() *util.ParseSourceSpan      { return n.Span }
func (n *Icu) SourceSpan() *util.ParseSourceSpan            { return n.Span }
func (n *UnknownBlock) SourceSpan() *util.ParseSourceSpan   { return n.Span }
func (n *LetDeclaration) SourceSpan() *util.ParseSourceSpan { return n.Span }

func (*Comment) r3Node()                  {}
func (*Text) r3Node()                     {}
func (*BoundText) r3Node()                {}
func (*TextAttribute) r3Node()            {}
func (*BoundAttribute) r3Node()           {}
func (*BoundEvent) r3Node()               {}
func (*Element) r3Node()                  {}
func (*Template) r3Node()                 {}
func (*Content) r3Node()                  {}
func (*Variable) r3Node()                 {}
func (*Reference) r3Node()                {}
func (*Icu) r3Node()                      {}
func (*DeferredBlockPlaceholder) r3Node() {}
func (*DeferredBlockLoading) r3Node()     {}
func (*DeferredBlockError) r3Node()       {}
func (*DeferredBlock) r3Node()            {}
func (*SwitchBlock) r3Node()              {}
func (*SwitchBlockCase) r3Node()          {}
func (*ForLoopBlock) r3Node()             {}
func (*ForLoopBlockEmpty) r3Node()        {}
func (*IfBlock) r3Node()                  {}
func (*IfBlockBranch) r3Node()            {}
func (*UnknownBlock) r3Node()             {}
func (*LetDeclaration) r3Node()           {}

// ScopedNode is a node that opens a lexical scope of its own.
type ScopedNode interface {
	Node
	scopedNode()
}

func (*Template) scopedNode()                 {}
func (*Content) scopedNode()                  {}
func (*IfBlockBranch) scopedNode()            {}
func (*ForLoopBlock) scopedNode()             {}
func (*ForLoopBlockEmpty) scopedNode()        {}
func (*SwitchBlockCase) scopedNode()          {}
func (*DeferredBlock) scopedNode()            {}
func (*DeferredBlockPlaceholder) scopedNode() {}
func (*DeferredBlockLoading) scopedNode()     {}
func (*DeferredBlockError) scopedNode()       {}

// TemplateEntity is a name declared inside a template: *Reference, *Variable or
// *LetDeclaration.
type TemplateEntity interface {
	Node
	EntityName() string
	templateEntity()
}

func (r *Reference) EntityName() string      { return r.Name }
func (v *Variable) EntityName() string       { return v.Name }
func (d *LetDeclaration) EntityName() string { return d.Name }
func (*Reference) templateEntity()           {}
func (*Variable) templateEntity()            {}
func (*LetDeclaration) templateEntity()      {}

// DirectiveOwner is a node directives are matched against: *Element or *Template.
type DirectiveOwner interface {
	Node
	directiveOwner()
}

func (*Element) directiveOwner()  {}
func (*Template) directiveOwner() {}

// Children returns the nodes directly under n in traversal order: attributes and
// bindings first, then children, then references and variables. A deferred block lists
// its triggers before its children and its connected blocks last.
func Children(n Node) []Node {
	switch n := n.(type) {
	case *Comment, *Text, *BoundText, *TextAttribute, *BoundAttribute, *BoundEvent,
		*Variable, *Reference, *UnknownBlock, *LetDeclaration:
		return nil
	case *Element:
		out := make([]Node, 0, len(n.Attributes)+len(n.Inputs)+len(n.Outputs)+len(n.Children)+len(n.References))
		out = appendNodes(out, n.Attributes)
		out = appendNodes(out, n.Inputs)
		out = appendNodes(out, n.Outputs)
		out = append(out, n.Children...)
		return appendNodes(out, n.References)
	case *Template:
		var out []Node
		out = appendNodes(out, n.Attributes)
		out = appendNodes(out, n.Inputs)
		out = appendNodes(out, n.Outputs)
		out = append(out, n.Children...)
		out = appendNodes(out, n.References)
		return appendNodes(out, n.Variables)
	case *Content:
		out := appendNodes(nil, n.Attributes)
		return append(out, n.Children...)
	case *Icu:
		var out []Node
		for _, key := range sortedKeys(n.Vars) {
			out = append(out, n.Vars[key])
		}
		for _, key := range sortedKeys(n.Placeholders) {
			out = append(out, n.Placeholders[key])
		}
		return out
	case *DeferredBlock:
		var out []Node
		for _, t := range n.Triggers.All() {
			out = append(out, t)
		}
		for _, t := range n.PrefetchTriggers.All() {
			out = append(out, t)
		}
		for _, t := range n.HydrateTriggers.All() {
			out = append(out, t)
		}
		out = append(out, n.Children...)
		if n.Placeholder != nil {
			out = append(out, n.Placeholder)
		}
		if n.Loading != nil {
			out = append(out, n.Loading)
		}
		if n.Error != nil {
			out = append(out, n.Error)
		}
		return out
	case *DeferredBlockPlaceholder:
		return n.Children
	case *DeferredBlockLoading:
		return n.Children
	case *DeferredBlockError:
		return n.Children
	case *SwitchBlock:
		return appendNodes(nil, n.Cases)
	case *SwitchBlockCase:
		return n.Children
	case *ForLoopBlock:
		out := []Node{n.Item}
		out = appendNodes(out, n.ContextVariables)
		out = append(out, n.Children...)
		if n.Empty != nil {
			out = append(out, n.Empty)
		}
		return out
	case *ForLoopBlockEmpty:
		return n.Children
	case *IfBlock:
		return appendNodes(nil, n.Branches)
	case *IfBlockBranch:
		var out []Node
		if n.ExpressionAlias != nil {
			out = append(out, n.ExpressionAlias)
		}
		return append(out, n.Children...)
	case DeferredTrigger:
		return nil
	default:
		util.Failf("unexpected template node %T", n)
		return nil
	}
}

// Walk visits nodes and their descendants in pre-order. Returning false from fn skips the
// children of the node just visited.
func Walk(nodes []Node, fn func(Node) bool) {
	for _, n := range nodes {
		if fn(n) {
			Walk(Children(n), fn)
		}
	}
}

func appendNodes[T Node](out []Node, nodes []T) []Node {
	for _, n := range nodes {
		out = append(out, n)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
