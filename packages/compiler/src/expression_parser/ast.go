package expression_parser

import (
	"ngc-bind/packages/compiler/src/util"
)

// ParseSpan is a span relative to the start of the parsed expression text.
type ParseSpan struct {
	Start int
	End   int
}

func (s ParseSpan) ToAbsolute(absoluteOffset int) AbsoluteSourceSpan {
	return AbsoluteSourceSpan{Start: absoluteOffset + s.Start, End: absoluteOffset + s.End}
}

// AbsoluteSourceSpan is a byte range in the template file.
type AbsoluteSourceSpan struct {
	Start int
	End   int
}

// AST is an expression node. The implementations are the pointer types in this file and
// the set is closed.
type AST interface {
	Span() ParseSpan
	SourceSpan() AbsoluteSourceSpan
	exprNode()
}

type spans struct {
	span       ParseSpan
	sourceSpan AbsoluteSourceSpan
}

func (s *spans) Span() ParseSpan                { return s.span }
func (s *spans) SourceSpan() AbsoluteSourceSpan { return s.sourceSpan }
func (*spans) exprNode()                        {}

func mkSpans(span ParseSpan, sourceSpan AbsoluteSourceSpan) spans {
	return spans{span: span, sourceSpan: sourceSpan}
}

type EmptyExpr struct{ spans }

// ImplicitReceiver is the component context an unqualified name is read from.
type ImplicitReceiver struct{ spans }

// ThisReceiver is an explicit `this`. The binder never resolves template names on it.
type ThisReceiver struct{ spans }

type Chain struct {
	spans
	Expressions []AST
}

type Conditional struct {
	spans
	Condition AST
	TrueExp   AST
	FalseExp  AST
}

type PropertyRead struct {
	spans
	NameSpan AbsoluteSourceSpan
	Receiver AST
	Name     string
}

type SafePropertyRead struct {
	spans
	NameSpan AbsoluteSourceSpan
	Receiver AST
	Name     string
}

type KeyedRead struct {
	spans
	Receiver AST
	Key      AST
}

type SafeKeyedRead struct {
	spans
	Receiver AST
	Key      AST
}

type BindingPipe struct {
	spans
	Exp      AST
	Name     string
	Args     []AST
	NameSpan AbsoluteSourceSpan
}

// LiteralPrimitive holds nil, a bool, a float64 or a string. Undefined is UndefinedValue.
type LiteralPrimitive struct {
	spans
	Value any
}

type undefinedValue struct{}

// UndefinedValue marks the `undefined` literal, which nil (null) cannot represent.
var UndefinedValue = undefinedValue{}

type LiteralArray struct {
	spans
	Expressions []AST
}

type LiteralMapKey struct {
	Key                    string
	Quoted                 bool
	IsShorthandInitialized bool
}

type LiteralMap struct {
	spans
	Keys   []LiteralMapKey
	Values []AST
}

// NewLiteralMap builds a map literal outside the parser, e.g. after dropping a key.
func NewLiteralMap(span ParseSpan, sourceSpan AbsoluteSourceSpan, keys []LiteralMapKey, values []AST) *LiteralMap {
	return &LiteralMap{spans: mkSpans(span, sourceSpan), Keys: keys, Values: values}
}

// Interpolation has one more string than expressions.
type Interpolation struct {
	spans
	Strings     []string
	Expressions []AST
}

type Binary struct {
	spans
	Operation string
	Left      AST
	Right     AST
}

// IsAssignment reports whether the binary is `=` or a compound assignment.
func (b *Binary) IsAssignment() bool {
	return IsAssignmentOperation(b.Operation)
}

func IsAssignmentOperation(op string) bool {
	switch op {
	case "=", "+=", "-=", "*=", "/=", "%=", "**=", "&&=", "||=", "??=":
		return true
	}
	return false
}

// Unary is a prefix + or -.
type Unary struct {
	spans
	Operator string
	Expr     AST
}

type PrefixNot struct {
	spans
	Expression AST
}

type TypeofExpression struct {
	spans
	Expression AST
}

type VoidExpression struct {
	spans
	Expression AST
}

type NonNullAssert struct {
	spans
	Expression AST
}

type Call struct {
	spans
	Receiver     AST
	Args         []AST
	ArgumentSpan AbsoluteSourceSpan
}

type SafeCall struct {
	spans
	Receiver     AST
	Args         []AST
	ArgumentSpan AbsoluteSourceSpan
}

type TemplateLiteral struct {
	spans
	Elements    []*TemplateLiteralElement
	Expressions []AST
}

type TemplateLiteralElement struct {
	spans
	Text string
}

type TaggedTemplateLiteral struct {
	spans
	Tag      AST
	Template *TemplateLiteral
}

type ParenthesizedExpression struct {
	spans
	Expression AST
}

// ASTWithSource is the root of every parsed binding. Source is nil for synthesized ASTs.
type ASTWithSource struct {
	spans
	AST            AST
	Source         *string
	Location       string
	AbsoluteOffset int
	Errors         []*util.ParseError
}

func NewASTWithSource(ast AST, source *string, location string, absoluteOffset int, errors []*util.ParseError) *ASTWithSource {
	n := 0
	if source != nil {
		n = len(*source)
	}
	span := ParseSpan{0, n}
	return &ASTWithSource{
		spans:          mkSpans(span, span.ToAbsolute(absoluteOffset)),
		AST:            ast,
		Source:         source,
		Location:       location,
		AbsoluteOffset: absoluteOffset,
		Errors:         errors,
	}
}

func (a *ASTWithSource) String() string {
	if a.Source != nil {
		return *a.Source + " in " + a.Location
	}
	return "null in " + a.Location
}

// Children returns the direct sub-expressions of ast in source order.
func Children(ast AST) []AST {
	switch n := ast.(type) {
	case *EmptyExpr, *ImplicitReceiver, *ThisReceiver, *LiteralPrimitive, *TemplateLiteralElement:
		return nil
	case *Chain:
		return n.Expressions
	case *Conditional:
		return []AST{n.Condition, n.TrueExp, n.FalseExp}
	case *PropertyRead:
		return []AST{n.Receiver}
	case *SafePropertyRead:
		return []AST{n.Receiver}
	case *KeyedRead:
		return []AST{n.Receiver, n.Key}
	case *SafeKeyedRead:
		return []AST{n.Receiver, n.Key}
	case *BindingPipe:
		return append([]AST{n.Exp}, n.Args...)
	case *LiteralArray:
		return n.Expressions
	case *LiteralMap:
		return n.Values
	case *Interpolation:
		return n.Expressions
	case *Binary:
		return []AST{n.Left, n.Right}
	case *Unary:
		return []AST{n.Expr}
	case *PrefixNot:
		return []AST{n.Expression}
	case *TypeofExpression:
		return []AST{n.Expression}
	case *VoidExpression:
		return []AST{n.Expression}
	case *NonNullAssert:
		return []AST{n.Expression}
	case *Call:
		return append([]AST{n.Receiver}, n.Args...)
	case *SafeCall:
		return append([]AST{n.Receiver}, n.Args...)
	case *TemplateLiteral:
		children := make([]AST, 0, len(n.Elements)+len(n.Expressions))
		for i, el := range n.Elements {
			children = append(children, el)
			if i < len(n.Expressions) {
				children = append(children, n.Expressions[i])
			}
		}
		return children
	case *TaggedTemplateLiteral:
		return []AST{n.Tag, n.Template}
	case *ParenthesizedExpression:
		return []AST{n.Expression}
	case *ASTWithSource:
		return []AST{n.AST}
	default:
		util.Failf("unexpected expression node %T", ast)
		return nil
	}
}

// Walk visits ast and its descendants in pre-order. Returning false from fn skips the
// children of the node just visited.
func Walk(ast AST, fn func(AST) bool) {
	if ast == nil || !fn(ast) {
		return
	}
	for _, child := range Children(ast) {
		Walk(child, fn)
	}
}

// TemplateBindingIdentifier is a key or variable name in microsyntax.
type TemplateBindingIdentifier struct {
	Source string
	Span   AbsoluteSourceSpan
}

// TemplateBinding is either *VariableBinding or *ExpressionBinding.
type TemplateBinding interface {
	SourceSpan() AbsoluteSourceSpan
	templateBinding()
}

// VariableBinding is `let key = value` or `value as key`. Value is nil for `let key`.
type VariableBinding struct {
	Span  AbsoluteSourceSpan
	Key   *TemplateBindingIdentifier
	Value *TemplateBindingIdentifier
}

// ExpressionBinding is `key expression`. Value is nil when the key has no expression.
type ExpressionBinding struct {
	Span  AbsoluteSourceSpan
	Key   *TemplateBindingIdentifier
	Value *ASTWithSource
}

func (b *VariableBinding) SourceSpan() AbsoluteSourceSpan   { return b.Span }
func (b *ExpressionBinding) SourceSpan() AbsoluteSourceSpan { return b.Span }
func (*VariableBinding) templateBinding()                   {}
func (*ExpressionBinding) templateBinding()                 {}
