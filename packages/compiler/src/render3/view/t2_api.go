package view

import (
	"ngc-bind/packages/compiler/src/css"
	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/render3"
)

// ScopedNode is a node with a Scope of its own: Template, Content, IfBlockBranch,
// ForLoopBlock, ForLoopBlockEmpty, SwitchBlockCase, DeferredBlock and its sub-blocks.
type ScopedNode = render3.ScopedNode

// TemplateEntity is a Reference, Variable or LetDeclaration.
type TemplateEntity = render3.TemplateEntity

// DirectiveOwner is an Element or Template.
type DirectiveOwner = render3.DirectiveOwner

// ReferenceTarget is what a reference or a binding resolves to: a directive matched on
// Node, or Node itself when Directive is nil.
type ReferenceTarget struct {
	Directive DirectiveMeta
	Node      DirectiveOwner
}

// Target is the unit of binding.
type Target struct {
	Template []render3.Node
}

// InputOutputPropertySet reports whether a directive claims a property name.
type InputOutputPropertySet interface {
	HasBindingPropertyName(propertyName string) bool
}

// DirectiveMeta is the part of a directive's metadata needed to match it against
// template nodes. The binder never interprets it beyond that.
type DirectiveMeta interface {
	// Name is used for debugging and output only.
	Name() string
	// Selector is empty for directives without one.
	Selector() string
	IsComponent() bool
	Inputs() InputOutputPropertySet
	Outputs() InputOutputPropertySet
	// ExportAs lists the names a reference can use to target the directive.
	ExportAs() []string
	IsStructural() bool
}

// DirectiveMatcher finds the directives whose selectors match a node.
type DirectiveMatcher = css.SelectorMatcher[DirectiveMeta]

type TargetBinder interface {
	Bind(target *Target) BoundTarget
}

// BoundTarget is the result of binding a Target. It is read-only.
type BoundTarget interface {
	Target() *Target

	// GetDirectivesOfNode returns the directives matched on node, nil if none.
	GetDirectivesOfNode(node DirectiveOwner) []DirectiveMeta

	GetReferenceTarget(ref *render3.Reference) (ReferenceTarget, bool)

	// GetConsumerOfBinding returns the directive or node that claims a *BoundAttribute,
	// *BoundEvent or *TextAttribute.
	GetConsumerOfBinding(binding render3.Node) (ReferenceTarget, bool)

	// GetExpressionTarget returns the entity a property read on the implicit receiver
	// refers to, or nil when the name belongs to the component.
	GetExpressionTarget(expr expression_parser.AST) TemplateEntity

	// GetDefinitionNodeOfSymbol returns the scoped node that declares symbol, nil for
	// entities declared at the top level.
	GetDefinitionNodeOfSymbol(symbol TemplateEntity) ScopedNode

	// GetNestingLevel is 1 for top-level scoped nodes and grows with depth.
	GetNestingLevel(node ScopedNode) int

	// GetEntitiesInScope returns the entities visible in node, or at the top level when
	// node is nil. Outer entities come first, each scope in declaration order.
	GetEntitiesInScope(node ScopedNode) []TemplateEntity

	// GetUsedDirectives includes directives matched inside @defer blocks.
	GetUsedDirectives() []DirectiveMeta
	// GetEagerlyUsedDirectives excludes directives matched inside @defer blocks.
	GetEagerlyUsedDirectives() []DirectiveMeta

	GetUsedPipes() []string
	GetEagerlyUsedPipes() []string

	GetDeferBlocks() []*render3.DeferredBlock

	// GetDeferredTriggerTarget returns the element a hover, interaction or viewport
	// trigger of block listens on, nil when it cannot be resolved.
	GetDeferredTriggerTarget(block *render3.DeferredBlock, trigger render3.DeferredTrigger) *render3.Element

	// IsDeferred reports whether element sits inside an @defer block.
	IsDeferred(element *render3.Element) bool
}
