package main

import (
	"fmt"
	"io"
	"strings"

	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/render3"
	"ngc-bind/packages/compiler/src/render3/view"
	"ngc-bind/packages/compiler/src/util"
)

// treePrinter writes one indented line per node.
type treePrinter struct {
	w     io.Writer
	depth int
}

func (p *treePrinter) line(format string, args ...any) {
	fmt.Fprintf(p.w, "%s%s\n", strings.Repeat("  ", p.depth), fmt.Sprintf(format, args...))
}

func (p *treePrinter) nested(fn func()) {
	p.depth++
	fn()
	p.depth--
}

func printHtmlTree(w io.Writer, nodes []ml_parser.Node) {
	p := &treePrinter{w: w}
	p.html(nodes)
}

func (p *treePrinter) html(nodes []ml_parser.Node) {
	for _, node := range nodes {
		switch n := node.(type) {
		case *ml_parser.Element:
			p.line("Element %s%s", n.Name, flag(n.IsSelfClosing, " (self-closing)"))
			p.nested(func() {
				for _, a := range n.Attrs {
					p.line("Attribute %s=%q", a.Name, a.Value)
				}
				p.html(n.Children)
			})
		case *ml_parser.Text:
			p.line("Text %q", n.Value)
		case *ml_parser.Comment:
			p.line("Comment %q", n.Value)
		case *ml_parser.Expansion:
			p.line("Expansion %s, %s", n.SwitchValue, n.Type)
			p.nested(func() {
				for _, c := range n.Cases {
					p.line("Case %s", c.Value)
					p.nested(func() { p.html(c.Expression) })
				}
			})
		case *ml_parser.Block:
			params := make([]string, len(n.Parameters))
			for i, param := range n.Parameters {
				params[i] = param.Expression
			}
			p.line("Block @%s (%s)", n.Name, strings.Join(params, "; "))
			p.nested(func() { p.html(n.Children) })
		case *ml_parser.LetDeclaration:
			p.line("Let %s = %s", n.Name, n.Value)
		default:
			util.Failf("unexpected markup node %T", node)
		}
	}
}

func printR3Tree(w io.Writer, nodes []render3.Node) {
	p := &treePrinter{w: w}
	p.r3(nodes)
}

func (p *treePrinter) r3(nodes []render3.Node) {
	for _, node := range nodes {
		p.r3Node(node)
	}
}

func (p *treePrinter) r3Node(node render3.Node) {
	switch n := node.(type) {
	case *render3.Element:
		p.line("Element %s", n.Name)
		p.nested(func() {
			p.attrs(n.Attributes, n.Inputs, n.Outputs)
			p.refs(n.References)
			p.r3(n.Children)
		})
	case *render3.Template:
		p.line("Template %s", n.TagName)
		p.nested(func() {
			p.attrs(n.Attributes, n.Inputs, n.Outputs)
			for _, a := range n.TemplateAttrs {
				p.r3Node(a)
			}
			p.refs(n.References)
			for _, v := range n.Variables {
				p.r3Node(v)
			}
			p.r3(n.Children)
		})
	case *render3.Content:
		p.line("Content %q", n.Selector)
		p.nested(func() { p.r3(n.Children) })
	case *render3.Text:
		p.line("Text %q", n.Value)
	case *render3.BoundText:
		p.line("BoundText %s", unparse(n.Value))
	case *render3.Comment:
		p.line("Comment %q", n.Value)
	case *render3.TextAttribute:
		p.line("TextAttribute %s=%q", n.Name, n.Value)
	case *render3.BoundAttribute:
		p.line("BoundAttribute %s %s = %s", n.Type, n.Name, unparse(n.Value))
	case *render3.BoundEvent:
		target := ""
		if n.Target != "" {
			target = n.Target + ":"
		}
		p.line("BoundEvent (%s%s) = %s", target, n.Name, unparse(n.Handler))
	case *render3.Reference:
		p.line("Reference #%s=%q", n.Name, n.Value)
	case *render3.Variable:
		p.line("Variable %s=%q", n.Name, n.Value)
	case *render3.Icu:
		p.line("Icu")
		p.nested(func() { p.r3(render3.Children(n)) })
	case *render3.IfBlock:
		p.line("@if")
		p.nested(func() {
			for _, b := range n.Branches {
				p.r3Node(b)
			}
		})
	case *render3.IfBlockBranch:
		if n.Expression == nil {
			p.line("@else")
		} else {
			p.line("branch (%s)", unparse(n.Expression))
		}
		p.nested(func() { p.r3(render3.Children(n)) })
	case *render3.ForLoopBlock:
		p.line("@for (%s of %s; track %s)", n.Item.Name, unparseSource(n.Expression), unparseSource(n.TrackBy))
		p.nested(func() {
			for _, v := range n.ContextVariables {
				p.r3Node(v)
			}
			p.r3(n.Children)
			if n.Empty != nil {
				p.r3Node(n.Empty)
			}
		})
	case *render3.ForLoopBlockEmpty:
		p.line("@empty")
		p.nested(func() { p.r3(n.Children) })
	case *render3.SwitchBlock:
		p.line("@switch (%s)", unparse(n.Expression))
		p.nested(func() {
			for _, c := range n.Cases {
				p.r3Node(c)
			}
		})
	case *render3.SwitchBlockCase:
		if n.Expression == nil {
			p.line("@default")
		} else {
			p.line("@case (%s)", unparse(n.Expression))
		}
		p.nested(func() { p.r3(n.Children) })
	case *render3.DeferredBlock:
		p.line("@defer")
		p.nested(func() {
			p.triggers("on", &n.Triggers)
			p.triggers("prefetch", &n.PrefetchTriggers)
			p.triggers("hydrate", &n.HydrateTriggers)
			p.r3(n.Children)
			if n.Placeholder != nil {
				p.r3Node(n.Placeholder)
			}
			if n.Loading != nil {
				p.r3Node(n.Loading)
			}
			if n.Error != nil {
				p.r3Node(n.Error)
			}
		})
	case *render3.DeferredBlockPlaceholder:
		p.line("@placeholder%s", millis("minimum", n.MinimumTime))
		p.nested(func() { p.r3(n.Children) })
	case *render3.DeferredBlockLoading:
		p.line("@loading%s%s", millis("after", n.AfterTime), millis("minimum", n.MinimumTime))
		p.nested(func() { p.r3(n.Children) })
	case *render3.DeferredBlockError:
		p.line("@error")
		p.nested(func() { p.r3(n.Children) })
	case *render3.UnknownBlock:
		p.line("@%s (unknown)", n.Name)
	case *render3.LetDeclaration:
		p.line("@let %s = %s", n.Name, unparse(n.Value))
	default:
		util.Failf("unexpected template node %T", node)
	}
}

func (p *treePrinter) attrs(attrs []*render3.TextAttribute, inputs []*render3.BoundAttribute, outputs []*render3.BoundEvent) {
	for _, a := range attrs {
		p.r3Node(a)
	}
	for _, in := range inputs {
		p.r3Node(in)
	}
	for _, out := range outputs {
		p.r3Node(out)
	}
}

func (p *treePrinter) refs(refs []*render3.Reference) {
	for _, r := range refs {
		p.r3Node(r)
	}
}

func (p *treePrinter) triggers(kind string, triggers *render3.DeferredBlockTriggers) {
	for _, t := range triggers.All() {
		p.line("%s %s", kind, describeTrigger(t))
	}
}

func describeTrigger(trigger render3.DeferredTrigger) string {
	ref := func(r *string) string {
		if r == nil {
			return ""
		}
		return "(" + *r + ")"
	}
	switch t := trigger.(type) {
	case *render3.BoundDeferredTrigger:
		return "when " + unparse(t.Value)
	case *render3.IdleDeferredTrigger:
		return "idle"
	case *render3.ImmediateDeferredTrigger:
		return "immediate"
	case *render3.NeverDeferredTrigger:
		return "never"
	case *render3.TimerDeferredTrigger:
		return fmt.Sprintf("timer(%dms)", t.Delay)
	case *render3.HoverDeferredTrigger:
		return "hover" + ref(t.Reference)
	case *render3.InteractionDeferredTrigger:
		return "interaction" + ref(t.Reference)
	case *render3.ViewportDeferredTrigger:
		return "viewport" + ref(t.Reference)
	default:
		util.Failf("unexpected trigger %T", trigger)
		return ""
	}
}

// printBindings reports what the binder resolved, in template order.
func printBindings(w io.Writer, source string, nodes []render3.Node, bound view.BoundTarget) {
	p := &treePrinter{w: w}
	pos := func(span *util.ParseSourceSpan) string {
		if span == nil || span.Start == nil {
			return "?"
		}
		return fmt.Sprintf("%d:%d", span.Start.Line+1, span.Start.Col+1)
	}

	p.line("directives:")
	p.nested(func() {
		render3.Walk(nodes, func(n render3.Node) bool {
			owner, ok := n.(render3.DirectiveOwner)
			if !ok {
				return true
			}
			if dirs := bound.GetDirectivesOfNode(owner); len(dirs) > 0 {
				names := make([]string, len(dirs))
				for i, d := range dirs {
					names[i] = d.Name()
				}
				p.line("%s at %s: %s", ownerName(owner), pos(owner.SourceSpan()), strings.Join(names, ", "))
			}
			return true
		})
	})

	p.line("references:")
	p.nested(func() {
		render3.Walk(nodes, func(n render3.Node) bool {
			ref, ok := n.(*render3.Reference)
			if !ok {
				return true
			}
			target, ok := bound.GetReferenceTarget(ref)
			switch {
			case !ok:
				p.line("#%s at %s: unresolved", ref.Name, pos(ref.Span))
			case target.Directive != nil:
				p.line("#%s at %s: %s on %s", ref.Name, pos(ref.Span), target.Directive.Name(), ownerName(target.Node))
			default:
				p.line("#%s at %s: %s", ref.Name, pos(ref.Span), ownerName(target.Node))
			}
			return true
		})
	})

	p.line("expression targets:")
	p.nested(func() {
		forEachExpression(nodes, func(ast expression_parser.AST) {
			expression_parser.Walk(ast, func(e expression_parser.AST) bool {
				read, ok := e.(*expression_parser.PropertyRead)
				if !ok {
					return true
				}
				if entity := bound.GetExpressionTarget(read); entity != nil {
					p.line("%s at %s: %s", read.Name, offsetPos(source, read.SourceSpan().Start), describeEntity(entity))
				}
				return true
			})
		})
	})

	p.line("pipes: %s (eager: %s)", listOrNone(bound.GetUsedPipes()), listOrNone(bound.GetEagerlyUsedPipes()))

	blocks := bound.GetDeferBlocks()
	p.line("defer blocks: %d", len(blocks))
	p.nested(func() {
		for _, block := range blocks {
			p.line("@defer at %s", pos(block.Span))
			p.nested(func() {
				for _, group := range []*render3.DeferredBlockTriggers{&block.Triggers, &block.PrefetchTriggers, &block.HydrateTriggers} {
					for _, t := range group.All() {
						switch t.(type) {
						case *render3.HoverDeferredTrigger, *render3.InteractionDeferredTrigger, *render3.ViewportDeferredTrigger:
						default:
							continue
						}
						if el := bound.GetDeferredTriggerTarget(block, t); el != nil {
							p.line("%s -> <%s> at %s", describeTrigger(t), el.Name, pos(el.Span))
						} else {
							p.line("%s -> no target", describeTrigger(t))
						}
					}
				}
			})
		}
	})
}

// forEachExpression calls fn with every expression a template binds, in template order.
func forEachExpression(nodes []render3.Node, fn func(expression_parser.AST)) {
	visit := func(ast expression_parser.AST) {
		if ast != nil {
			fn(ast)
		}
	}
	render3.Walk(nodes, func(node render3.Node) bool {
		switch n := node.(type) {
		case *render3.BoundAttribute:
			visit(n.Value)
		case *render3.BoundEvent:
			visit(n.Handler)
		case *render3.BoundText:
			visit(n.Value)
		case *render3.Template:
			for _, a := range n.TemplateAttrs {
				if b, ok := a.(*render3.BoundAttribute); ok {
					visit(b.Value)
				}
			}
		case *render3.IfBlockBranch:
			visit(n.Expression)
		case *render3.ForLoopBlock:
			if n.Expression != nil {
				fn(n.Expression)
			}
			if n.TrackBy != nil {
				fn(n.TrackBy)
			}
		case *render3.SwitchBlock:
			visit(n.Expression)
		case *render3.SwitchBlockCase:
			visit(n.Expression)
		case *render3.LetDeclaration:
			visit(n.Value)
		case *render3.BoundDeferredTrigger:
			visit(n.Value)
		}
		return true
	})
}

func describeEntity(entity view.TemplateEntity) string {
	switch e := entity.(type) {
	case *render3.Reference:
		return "reference #" + e.Name
	case *render3.Variable:
		return "variable " + e.Name
	case *render3.LetDeclaration:
		return "@let " + e.Name
	default:
		util.Failf("unexpected template entity %T", entity)
		return ""
	}
}

func ownerName(owner render3.DirectiveOwner) string {
	switch o := owner.(type) {
	case *render3.Element:
		return "<" + o.Name + ">"
	case *render3.Template:
		if o.TagName != "" {
			return "<ng-template> on <" + o.TagName + ">"
		}
		return "<ng-template>"
	default:
		util.Failf("unexpected directive owner %T", owner)
		return ""
	}
}

func offsetPos(source string, offset int) string {
	if offset < 0 || offset > len(source) {
		return "?"
	}
	line := strings.Count(source[:offset], "\n") + 1
	col := offset - strings.LastIndexByte(source[:offset], '\n')
	return fmt.Sprintf("%d:%d", line, col)
}

func unparse(ast expression_parser.AST) string {
	if ast == nil {
		return ""
	}
	return expression_parser.Serialize(ast)
}

func unparseSource(ast *expression_parser.ASTWithSource) string {
	if ast == nil {
		return ""
	}
	return expression_parser.Serialize(ast)
}

func millis(label string, ms *int) string {
	if ms == nil {
		return ""
	}
	return fmt.Sprintf(" %s %dms", label, *ms)
}

func flag(on bool, s string) string {
	if on {
		return s
	}
	return ""
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}
