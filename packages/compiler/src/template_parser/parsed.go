package template_parser

import (
	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/util"
)

type ParsedPropertyType int

const (
	ParsedPropertyTypeDefault ParsedPropertyType = iota
	ParsedPropertyTypeLiteralAttr
	ParsedPropertyTypeLegacyAnimation
	ParsedPropertyTypeTwoWay
	ParsedPropertyTypeAnimation
)

// ParsedProperty is a property binding before it is attached to an element.
type ParsedProperty struct {
	Name       string
	Expression *expression_parser.ASTWithSource
	Type       ParsedPropertyType
	SourceSpan *util.ParseSourceSpan
	KeySpan    *util.ParseSourceSpan
	ValueSpan  *util.ParseSourceSpan
}

func (p *ParsedProperty) IsLiteral() bool { return p.Type == ParsedPropertyTypeLiteralAttr }

func (p *ParsedProperty) IsLegacyAnimation() bool {
	return p.Type == ParsedPropertyTypeLegacyAnimation
}

type ParsedEventType int

const (
	ParsedEventTypeRegular ParsedEventType = iota
	ParsedEventTypeLegacyAnimation
	ParsedEventTypeTwoWay
	ParsedEventTypeAnimation
)

type ParsedEvent struct {
	Name string
	// TargetOrPhase is the `window` in `(window:resize)` or the `done` in `(@a.done)`.
	TargetOrPhase string
	Type          ParsedEventType
	Handler       *expression_parser.ASTWithSource
	SourceSpan    *util.ParseSourceSpan
	HandlerSpan   *util.ParseSourceSpan
	KeySpan       *util.ParseSourceSpan
}

// ParsedVariable is a template variable from `let-x="y"` or microsyntax.
type ParsedVariable struct {
	Name       string
	Value      string
	SourceSpan *util.ParseSourceSpan
	KeySpan    *util.ParseSourceSpan
	ValueSpan  *util.ParseSourceSpan
}

type BindingType int

const (
	BindingTypeProperty BindingType = iota
	BindingTypeAttribute
	BindingTypeClass
	BindingTypeStyle
	BindingTypeLegacyAnimation
	BindingTypeTwoWay
	BindingTypeAnimation
)

func (t BindingType) String() string {
	switch t {
	case BindingTypeAttribute:
		return "attribute"
	case BindingTypeClass:
		return "class"
	case BindingTypeStyle:
		return "style"
	case BindingTypeLegacyAnimation:
		return "legacy-animation"
	case BindingTypeTwoWay:
		return "two-way"
	case BindingTypeAnimation:
		return "animation"
	}
	return "property"
}

// BoundElementProperty is a ParsedProperty with its prefix (attr., class., style.)
// resolved into a binding type.
type BoundElementProperty struct {
	Name       string
	Type       BindingType
	Value      *expression_parser.ASTWithSource
	Unit       string
	SourceSpan *util.ParseSourceSpan
	KeySpan    *util.ParseSourceSpan
	ValueSpan  *util.ParseSourceSpan
}
