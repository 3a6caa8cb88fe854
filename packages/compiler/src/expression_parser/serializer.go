package expression_parser

import (
	"strconv"
	"strings"

	"ngc-bind/packages/compiler/src/util"
)

// Serialize prints ast back as normalized source. Whitespace and quoting are canonical, so
// two expressions that parse the same serialize the same.
func Serialize(ast AST) string {
	var sb strings.Builder
	serialize(&sb, ast)
	return sb.String()
}

func serialize(sb *strings.Builder, ast AST) {
	switch n := ast.(type) {
	case *ASTWithSource:
		serialize(sb, n.AST)
	case *EmptyExpr, *ImplicitReceiver:
	case *ThisReceiver:
		sb.WriteString("this")
	case *Chain:
		serializeList(sb, n.Expressions, "; ")
	case *Conditional:
		serialize(sb, n.Condition)
		sb.WriteString(" ? ")
		serialize(sb, n.TrueExp)
		sb.WriteString(" : ")
		serialize(sb, n.FalseExp)
	case *PropertyRead:
		if _, implicit := n.Receiver.(*ImplicitReceiver); !implicit {
			serialize(sb, n.Receiver)
			sb.WriteByte('.')
		}
		sb.WriteString(n.Name)
	case *SafePropertyRead:
		serialize(sb, n.Receiver)
		sb.WriteString("?.")
		sb.WriteString(n.Name)
	case *KeyedRead:
		serialize(sb, n.Receiver)
		sb.WriteByte('[')
		serialize(sb, n.Key)
		sb.WriteByte(']')
	case *SafeKeyedRead:
		serialize(sb, n.Receiver)
		sb.WriteString("?.[")
		serialize(sb, n.Key)
		sb.WriteByte(']')
	case *BindingPipe:
		serialize(sb, n.Exp)
		sb.WriteString(" | ")
		sb.WriteString(n.Name)
		for _, arg := range n.Args {
			sb.WriteByte(':')
			serialize(sb, arg)
		}
	case *LiteralPrimitive:
		sb.WriteString(serializePrimitive(n.Value))
	case *LiteralArray:
		sb.WriteByte('[')
		serializeList(sb, n.Expressions, ", ")
		sb.WriteByte(']')
	case *LiteralMap:
		sb.WriteByte('{')
		for i, key := range n.Keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			if key.Quoted {
				sb.WriteString(quote(key.Key))
			} else {
				sb.WriteString(key.Key)
			}
			sb.WriteString(": ")
			serialize(sb, n.Values[i])
		}
		sb.WriteByte('}')
	case *Interpolation:
		for i, s := range n.Strings {
			sb.WriteString(s)
			if i < len(n.Expressions) {
				sb.WriteString("{{ ")
				serialize(sb, n.Expressions[i])
				sb.WriteString(" }}")
			}
		}
	case *Binary:
		serialize(sb, n.Left)
		sb.WriteString(" " + n.Operation + " ")
		serialize(sb, n.Right)
	case *Unary:
		sb.WriteString(n.Operator)
		serialize(sb, n.Expr)
	case *PrefixNot:
		sb.WriteByte('!')
		serialize(sb, n.Expression)
	case *TypeofExpression:
		sb.WriteString("typeof ")
		serialize(sb, n.Expression)
	case *VoidExpression:
		sb.WriteString("void ")
		serialize(sb, n.Expression)
	case *NonNullAssert:
		serialize(sb, n.Expression)
		sb.WriteByte('!')
	case *Call:
		serialize(sb, n.Receiver)
		sb.WriteByte('(')
		serializeList(sb, n.Args, ", ")
		sb.WriteByte(')')
	case *SafeCall:
		serialize(sb, n.Receiver)
		sb.WriteString("?.(")
		serializeList(sb, n.Args, ", ")
		sb.WriteByte(')')
	case *TemplateLiteral:
		sb.WriteByte('`')
		for i, el := range n.Elements {
			sb.WriteString(el.Text)
			if i < len(n.Expressions) {
				sb.WriteString("${")
				serialize(sb, n.Expressions[i])
				sb.WriteByte('}')
			}
		}
		sb.WriteByte('`')
	case *TemplateLiteralElement:
		sb.WriteString(n.Text)
	case *TaggedTemplateLiteral:
		serialize(sb, n.Tag)
		serialize(sb, n.Template)
	case *ParenthesizedExpression:
		sb.WriteByte('(')
		serialize(sb, n.Expression)
		sb.WriteByte(')')
	default:
		util.Failf("cannot serialize expression node %T", ast)
	}
}

func serializeList(sb *strings.Builder, asts []AST, sep string) {
	for i, ast := range asts {
		if i > 0 {
			sb.WriteString(sep)
		}
		serialize(sb, ast)
	}
}

func serializePrimitive(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case undefinedValue:
		return "undefined"
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return quote(v)
	}
	util.Failf("unsupported literal value %T", v)
	return ""
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}
