package view_test

import (
	"fmt"
	"maps"
	"slices"

	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/render3"
	"ngc-bind/packages/compiler/src/render3/view"
	"ngc-bind/packages/compiler/src/util"
)

// parseR3 runs the full front end with whitespace removal, the way templates are
// compiled. It panics on errors unless ignoreErrors is set.
func parseR3(input string, ignoreErrors bool, opts ...view.ParseTemplateOption) *view.ParsedTemplate {
	parsed := view.ParseTemplate(input, "path:://to/template", opts...)
	if len(parsed.Errors) > 0 && !ignoreErrors {
		panic(fmt.Sprintf("unexpected errors: %v", humanizeErrors(parsed.Errors)))
	}
	return parsed
}

func expectFromHtml(html string, ignoreErrors bool) [][]interface{} {
	return humanizeNodes(parseR3(html, ignoreErrors).Nodes)
}

func humanizeErrors(errs []*util.ParseError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Msg
	}
	return out
}

func unparse(ast expression_parser.AST) string {
	if ast == nil {
		return ""
	}
	return expression_parser.Serialize(ast)
}

// humanizeNodes flattens a semantic tree into one row per node.
func humanizeNodes(nodes []render3.Node) [][]interface{} {
	h := &r3Humanizer{}
	h.visitAll(nodes)
	return h.result
}

type r3Humanizer struct {
	result [][]interface{}
}

func (h *r3Humanizer) visitAll(nodes []render3.Node) {
	for _, n := range nodes {
		h.visit(n)
	}
}

func visitEach[T render3.Node](h *r3Humanizer, nodes []T) {
	for _, n := range nodes {
		h.visit(n)
	}
}

func (h *r3Humanizer) add(row ...interface{}) {
	h.result = append(h.result, row)
}

func (h *r3Humanizer) visit(node render3.Node) {
	switch n := node.(type) {
	case *render3.Element:
		if n.IsSelfClosing {
			h.add("Element", n.Name, "#selfClosing")
		} else {
			h.add("Element", n.Name)
		}
		visitEach(h, n.Attributes)
		visitEach(h, n.Inputs)
		visitEach(h, n.Outputs)
		visitEach(h, n.References)
		h.visitAll(n.Children)
	case *render3.Template:
		if n.IsSelfClosing {
			h.add("Template", "#selfClosing")
		} else {
			h.add("Template")
		}
		visitEach(h, n.Attributes)
		visitEach(h, n.Inputs)
		visitEach(h, n.Outputs)
		visitEach(h, n.TemplateAttrs)
		visitEach(h, n.References)
		visitEach(h, n.Variables)
		h.visitAll(n.Children)
	case *render3.Content:
		h.add("Content", n.Selector)
		visitEach(h, n.Attributes)
		h.visitAll(n.Children)
	case *render3.Variable:
		h.add("Variable", n.Name, n.Value)
	case *render3.Reference:
		h.add("Reference", n.Name, n.Value)
	case *render3.TextAttribute:
		h.add("TextAttribute", n.Name, n.Value)
	case *render3.BoundAttribute:
		h.add("BoundAttribute", n.Type, n.Name, unparse(n.Value))
	case *render3.BoundEvent:
		h.add("BoundEvent", n.Type, n.Name, n.Target, unparse(n.Handler))
	case *render3.Text:
		h.add("Text", n.Value)
	case *render3.BoundText:
		h.add("BoundText", unparse(n.Value))
	case *render3.Icu:
		h.add("Icu")
		for _, key := range slices.Sorted(maps.Keys(n.Vars)) {
			h.add("Icu:Var", key, unparse(n.Vars[key].Value))
		}
		for _, key := range slices.Sorted(maps.Keys(n.Placeholders)) {
			switch ph := n.Placeholders[key].(type) {
			case *render3.BoundText:
				h.add("Icu:Placeholder", key, unparse(ph.Value))
			case *render3.Text:
				h.add("Icu:Placeholder", key, ph.Value)
			}
		}
	case *render3.DeferredBlock:
		h.add("DeferredBlock")
		h.visitTriggers(&n.Triggers, "")
		h.visitTriggers(&n.PrefetchTriggers, "prefetch")
		h.visitTriggers(&n.HydrateTriggers, "hydrate")
		h.visitAll(n.Children)
		if n.Placeholder != nil {
			h.visit(n.Placeholder)
		}
		if n.Loading != nil {
			h.visit(n.Loading)
		}
		if n.Error != nil {
			h.visit(n.Error)
		}
	case *render3.DeferredBlockPlaceholder:
		if n.MinimumTime != nil {
			h.add("DeferredBlockPlaceholder", fmt.Sprintf("minimum %dms", *n.MinimumTime))
		} else {
			h.add("DeferredBlockPlaceholder")
		}
		h.visitAll(n.Children)
	case *render3.DeferredBlockLoading:
		row := []interface{}{"DeferredBlockLoading"}
		if n.AfterTime != nil {
			row = append(row, fmt.Sprintf("after %dms", *n.AfterTime))
		}
		if n.MinimumTime != nil {
			row = append(row, fmt.Sprintf("minimum %dms", *n.MinimumTime))
		}
		h.add(row...)
		h.visitAll(n.Children)
	case *render3.DeferredBlockError:
		h.add("DeferredBlockError")
		h.visitAll(n.Children)
	case *render3.SwitchBlock:
		h.add("SwitchBlock", unparse(n.Expression))
		visitEach(h, n.Cases)
	case *render3.SwitchBlockCase:
		if n.Expression == nil {
			h.add("SwitchBlockCase", nil)
		} else {
			h.add("SwitchBlockCase", unparse(n.Expression))
		}
		h.visitAll(n.Children)
	case *render3.ForLoopBlock:
		h.add("ForLoopBlock", unparseSource(n.Expression), unparseSource(n.TrackBy))
		h.visit(n.Item)
		visitEach(h, n.ContextVariables)
		h.visitAll(n.Children)
		if n.Empty != nil {
			h.visit(n.Empty)
		}
	case *render3.ForLoopBlockEmpty:
		h.add("ForLoopBlockEmpty")
		h.visitAll(n.Children)
	case *render3.IfBlock:
		h.add("IfBlock")
		visitEach(h, n.Branches)
	case *render3.IfBlockBranch:
		if n.Expression == nil {
			h.add("IfBlockBranch", nil)
		} else {
			h.add("IfBlockBranch", unparse(n.Expression))
		}
		if n.ExpressionAlias != nil {
			h.visit(n.ExpressionAlias)
		}
		h.visitAll(n.Children)
	case *render3.UnknownBlock:
		h.add("UnknownBlock", n.Name)
	case *render3.LetDeclaration:
		h.add("LetDeclaration", n.Name, unparse(n.Value))
	case *render3.Comment:
		h.add("Comment", n.Value)
	default:
		panic(fmt.Sprintf("unexpected node %T", node))
	}
}

func (h *r3Humanizer) visitTriggers(triggers *render3.DeferredBlockTriggers, prefix string) {
	for _, trigger := range triggers.All() {
		var row []interface{}
		switch tr := trigger.(type) {
		case *render3.BoundDeferredTrigger:
			row = []interface{}{"BoundDeferredTrigger", unparse(tr.Value)}
		case *render3.IdleDeferredTrigger:
			row = []interface{}{"IdleDeferredTrigger"}
		case *render3.ImmediateDeferredTrigger:
			row = []interface{}{"ImmediateDeferredTrigger"}
		case *render3.NeverDeferredTrigger:
			row = []interface{}{"NeverDeferredTrigger"}
		case *render3.TimerDeferredTrigger:
			row = []interface{}{"TimerDeferredTrigger", tr.Delay}
		case *render3.HoverDeferredTrigger:
			row = []interface{}{"HoverDeferredTrigger", derefOrNil(tr.Reference)}
		case *render3.InteractionDeferredTrigger:
			row = []interface{}{"InteractionDeferredTrigger", derefOrNil(tr.Reference)}
		case *render3.ViewportDeferredTrigger:
			row = []interface{}{"ViewportDeferredTrigger", derefOrNil(tr.Reference)}
			if tr.Options != nil {
				row = append(row, unparse(tr.Options))
			}
		default:
			panic(fmt.Sprintf("unexpected trigger %T", trigger))
		}
		if prefix != "" {
			row[0] = prefix + ":" + row[0].(string)
		}
		h.result = append(h.result, row)
	}
}

func unparseSource(ast *expression_parser.ASTWithSource) string {
	if ast == nil {
		return ""
	}
	return expression_parser.Serialize(ast)
}

func derefOrNil(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}
