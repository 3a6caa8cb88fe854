package view_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ngc-bind/packages/compiler/src/css"
	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/render3"
	"ngc-bind/packages/compiler/src/render3/view"
	"ngc-bind/packages/compiler/src/util"
)

// identityInputMapping is an InputOutputPropertySet which only uses an identity mapping.
type identityInputMapping map[string]bool

func newIdentityInputMapping(names ...string) identityInputMapping {
	m := identityInputMapping{}
	for _, name := range names {
		m[name] = true
	}
	return m
}

func (m identityInputMapping) HasBindingPropertyName(propertyName string) bool {
	return m[propertyName]
}

type testDirectiveMeta struct {
	name         string
	selector     string
	exportAs     []string
	inputs       identityInputMapping
	outputs      identityInputMapping
	isComponent  bool
	isStructural bool
}

func (d *testDirectiveMeta) Name() string                         { return d.name }
func (d *testDirectiveMeta) Selector() string                     { return d.selector }
func (d *testDirectiveMeta) IsComponent() bool                    { return d.isComponent }
func (d *testDirectiveMeta) Inputs() view.InputOutputPropertySet  { return d.inputs }
func (d *testDirectiveMeta) Outputs() view.InputOutputPropertySet { return d.outputs }
func (d *testDirectiveMeta) ExportAs() []string                   { return d.exportAs }
func (d *testDirectiveMeta) IsStructural() bool                   { return d.isStructural }

func addDirective(t *testing.T, matcher *view.DirectiveMatcher, dir *testDirectiveMeta) {
	t.Helper()
	selectors, err := css.ParseCssSelector(dir.selector)
	if err != nil {
		t.Fatalf("ParseCssSelector(%q): %v", dir.selector, err)
	}
	matcher.AddSelectables(selectors, view.DirectiveMeta(dir))
}

func makeSelectorMatcher(t *testing.T) *view.DirectiveMatcher {
	t.Helper()
	matcher := css.NewSelectorMatcher[view.DirectiveMeta]()
	addDirective(t, matcher, &testDirectiveMeta{
		name:         "NgFor",
		selector:     "[ngFor][ngForOf]",
		inputs:       newIdentityInputMapping("ngForOf"),
		isStructural: true,
	})
	addDirective(t, matcher, &testDirectiveMeta{name: "Dir", selector: "[dir]", exportAs: []string{"dir"}})
	addDirective(t, matcher, &testDirectiveMeta{
		name:     "HasOutput",
		selector: "[hasOutput]",
		outputs:  newIdentityInputMapping("outputBinding"),
	})
	addDirective(t, matcher, &testDirectiveMeta{
		name:     "HasInput",
		selector: "[hasInput]",
		inputs:   newIdentityInputMapping("inputBinding"),
	})
	addDirective(t, matcher, &testDirectiveMeta{
		name:     "SameSelectorAsInput",
		selector: "[sameSelectorAsInput]",
		inputs:   newIdentityInputMapping("sameSelectorAsInput"),
	})
	addDirective(t, matcher, &testDirectiveMeta{name: "Comp", selector: "comp", isComponent: true})
	for _, dir := range []string{"a", "b", "c", "d", "e", "f", "loading", "error", "placeholder"} {
		addDirective(t, matcher, &testDirectiveMeta{
			name:         "Dir" + strings.ToUpper(dir[:1]) + dir[1:],
			selector:     "[" + dir + "]",
			isStructural: true,
		})
	}
	return matcher
}

func bindTemplate(t *testing.T, template string, matcher *view.DirectiveMatcher) ([]render3.Node, view.BoundTarget) {
	t.Helper()
	parsed := parseR3(template, false)
	return parsed.Nodes, view.NewR3TargetBinder(matcher).Bind(&view.Target{Template: parsed.Nodes})
}

func directiveNames(dirs []view.DirectiveMeta) []string {
	names := make([]string, len(dirs))
	for i, d := range dirs {
		names[i] = d.Name()
	}
	return names
}

func entityNames(entities []view.TemplateEntity) []string {
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = e.EntityName()
	}
	return names
}

// findNode returns the first node in template order that satisfies pred.
func findNode[T render3.Node](t *testing.T, nodes []render3.Node, pred func(T) bool) T {
	t.Helper()
	var found T
	var ok bool
	render3.Walk(nodes, func(n render3.Node) bool {
		if ok {
			return false
		}
		if candidate, isT := n.(T); isT && (pred == nil || pred(candidate)) {
			found, ok = candidate, true
		}
		return !ok
	})
	if !ok {
		t.Fatalf("no %T found", found)
	}
	return found
}

func findElement(t *testing.T, nodes []render3.Node, name string) *render3.Element {
	t.Helper()
	return findNode(t, nodes, func(el *render3.Element) bool { return el.Name == name })
}

// findRead returns the first read of name on the implicit receiver.
func findRead(t *testing.T, nodes []render3.Node, name string) expression_parser.AST {
	t.Helper()
	var found expression_parser.AST
	visit := func(ast expression_parser.AST) {
		expression_parser.Walk(ast, func(n expression_parser.AST) bool {
			if found != nil {
				return false
			}
			if read, ok := n.(*expression_parser.PropertyRead); ok && read.Name == name {
				if _, implicit := read.Receiver.(*expression_parser.ImplicitReceiver); implicit {
					found = read
				}
			}
			return found == nil
		})
	}
	render3.Walk(nodes, func(n render3.Node) bool {
		switch n := n.(type) {
		case *render3.BoundText:
			visit(n.Value)
		case *render3.BoundAttribute:
			visit(n.Value)
		case *render3.BoundEvent:
			visit(n.Handler)
		case *render3.LetDeclaration:
			visit(n.Value)
		case *render3.IfBlockBranch:
			visit(n.Expression)
		}
		return found == nil
	})
	if found == nil {
		t.Fatalf("no read of %q found", name)
	}
	return found
}

func TestT2Binding(t *testing.T) {
	t.Run("should bind a simple template", func(t *testing.T) {
		nodes, res := bindTemplate(t, `<div *ngFor="let item of items">{{item.name}}</div>`, nil)

		itemTarget := res.GetExpressionTarget(findRead(t, nodes, "item"))
		variable, ok := itemTarget.(*render3.Variable)
		if !ok {
			t.Fatalf("item target = %T, want *render3.Variable", itemTarget)
		}
		if variable.Value != "$implicit" {
			t.Errorf("item value = %q, want $implicit", variable.Value)
		}
		itemTemplate := res.GetDefinitionNodeOfSymbol(variable)
		if itemTemplate == nil {
			t.Fatal("item has no definition node")
		}
		if got := res.GetNestingLevel(itemTemplate); got != 1 {
			t.Errorf("nesting level = %d, want 1", got)
		}
	})

	t.Run("should leave component reads unresolved", func(t *testing.T) {
		nodes, res := bindTemplate(t, `<div [title]="name"></div>{{this.item}}`, nil)
		if target := res.GetExpressionTarget(findRead(t, nodes, "name")); target != nil {
			t.Errorf("name target = %v, want nil", target)
		}
	})

	t.Run("should match directives when binding a simple template", func(t *testing.T) {
		nodes, res := bindTemplate(t, `<div *ngFor="let item of items">{{item.name}}</div>`, makeSelectorMatcher(t))
		tmpl := nodes[0].(*render3.Template)
		if diff := cmp.Diff([]string{"NgFor"}, directiveNames(res.GetDirectivesOfNode(tmpl))); diff != "" {
			t.Errorf("directives mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should match directives on namespaced elements", func(t *testing.T) {
		matcher := css.NewSelectorMatcher[view.DirectiveMeta]()
		addDirective(t, matcher, &testDirectiveMeta{name: "Dir", selector: "text[dir]"})
		nodes, res := bindTemplate(t, `<svg><text dir>SVG</text></svg>`, matcher)

		text := findElement(t, nodes, ":svg:text")
		if diff := cmp.Diff([]string{"Dir"}, directiveNames(res.GetDirectivesOfNode(text))); diff != "" {
			t.Errorf("directives mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should not match directives intended for an element on a microsyntax template", func(t *testing.T) {
		nodes, res := bindTemplate(t, `<div *ngFor="let item of items" dir></div>`, makeSelectorMatcher(t))
		tmpl := nodes[0].(*render3.Template)
		if diff := cmp.Diff([]string{"NgFor"}, directiveNames(res.GetDirectivesOfNode(tmpl))); diff != "" {
			t.Errorf("template directives mismatch (-want +got):\n%s", diff)
		}
		el := tmpl.Children[0].(*render3.Element)
		if diff := cmp.Diff([]string{"Dir"}, directiveNames(res.GetDirectivesOfNode(el))); diff != "" {
			t.Errorf("element directives mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should match ng-template by element name", func(t *testing.T) {
		matcher := css.NewSelectorMatcher[view.DirectiveMeta]()
		addDirective(t, matcher, &testDirectiveMeta{name: "TplDir", selector: "ng-template[tpl]"})
		nodes, res := bindTemplate(t, `<ng-template tpl></ng-template>`, matcher)
		if diff := cmp.Diff([]string{"TplDir"}, directiveNames(res.GetDirectivesOfNode(nodes[0].(*render3.Template)))); diff != "" {
			t.Errorf("directives mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should report nil for nodes without directives", func(t *testing.T) {
		nodes, res := bindTemplate(t, `<span></span>`, makeSelectorMatcher(t))
		if got := res.GetDirectivesOfNode(nodes[0].(*render3.Element)); got != nil {
			t.Errorf("directives = %v, want nil", directiveNames(got))
		}
	})

	t.Run("should match class selectors", func(t *testing.T) {
		matcher := css.NewSelectorMatcher[view.DirectiveMeta]()
		addDirective(t, matcher, &testDirectiveMeta{name: "Fancy", selector: ".fancy"})
		nodes, res := bindTemplate(t, `<div class="plain  fancy"></div>`, matcher)
		if diff := cmp.Diff([]string{"Fancy"}, directiveNames(res.GetDirectivesOfNode(nodes[0].(*render3.Element)))); diff != "" {
			t.Errorf("directives mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should bind directives deterministically", func(t *testing.T) {
		template := `<div a b c d e f dir hasInput hasOutput></div>`
		matcher := makeSelectorMatcher(t)
		var runs [][]string
		for range 2 {
			nodes, res := bindTemplate(t, template, matcher)
			runs = append(runs, directiveNames(res.GetDirectivesOfNode(nodes[0].(*render3.Element))))
		}
		want := []string{"Dir", "HasOutput", "HasInput", "DirA", "DirB", "DirC", "DirD", "DirE", "DirF"}
		for i, got := range runs {
			if diff := cmp.Diff(want, got); diff != "" {
				t.Errorf("run %d directives mismatch (-want +got):\n%s", i, diff)
			}
		}
	})

	t.Run("references", func(t *testing.T) {
		t.Run("should resolve a plain reference to its element", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<div #ref></div>`, makeSelectorMatcher(t))
			el := nodes[0].(*render3.Element)
			target, ok := res.GetReferenceTarget(el.References[0])
			if !ok {
				t.Fatal("reference not resolved")
			}
			if target.Directive != nil || target.Node != el {
				t.Errorf("target = %+v, want the element itself", target)
			}
		})

		t.Run("should resolve references and triggers without a matcher", func(t *testing.T) {
			parsed := parseR3(`<div #myRef></div>@defer (on interaction(myRef)) {x} @placeholder {<span></span>}`, false)
			res := view.NewR3TargetBinder(nil).Bind(&view.Target{Template: parsed.Nodes})
			el := findElement(t, parsed.Nodes, "div")
			target, ok := res.GetReferenceTarget(el.References[0])
			if !ok || target.Node != el || target.Directive != nil {
				t.Errorf("target = %+v, ok = %v, want the div", target, ok)
			}
			block := findNode[*render3.DeferredBlock](t, parsed.Nodes, nil)
			if got := res.GetDeferredTriggerTarget(block, block.Triggers.Interaction); got != el {
				t.Errorf("interaction target = %v, want the div", got)
			}
			if got := res.GetUsedDirectives(); len(got) != 0 {
				t.Errorf("used directives = %v, want none", directiveNames(got))
			}
		})

		t.Run("should resolve a plain reference to the component", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<comp #ref></comp>`, makeSelectorMatcher(t))
			el := nodes[0].(*render3.Element)
			target, ok := res.GetReferenceTarget(el.References[0])
			if !ok || target.Directive == nil || target.Directive.Name() != "Comp" {
				t.Errorf("target = %+v, want Comp", target)
			}
		})

		t.Run("should resolve a named reference through exportAs", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<div dir #ref="dir"></div>`, makeSelectorMatcher(t))
			el := nodes[0].(*render3.Element)
			target, ok := res.GetReferenceTarget(el.References[0])
			if !ok || target.Directive == nil || target.Directive.Name() != "Dir" {
				t.Errorf("target = %+v, want Dir", target)
			}
			if target.Node != el {
				t.Errorf("target node = %v, want the element", target.Node)
			}
		})

		t.Run("should leave unknown exportAs names unresolved", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<div #ref="unknown"></div>`, makeSelectorMatcher(t))
			el := nodes[0].(*render3.Element)
			if target, ok := res.GetReferenceTarget(el.References[0]); ok {
				t.Errorf("target = %+v, want unresolved", target)
			}
		})

		t.Run("should resolve reads of a reference", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<input #name>{{name.value}}`, nil)
			ref := nodes[0].(*render3.Element).References[0]
			if got := res.GetExpressionTarget(findRead(t, nodes, "name")); got != ref {
				t.Errorf("target = %v, want the reference", got)
			}
			if got := res.GetDefinitionNodeOfSymbol(ref); got != nil {
				t.Errorf("definition node = %T, want nil at the top level", got)
			}
		})

		t.Run("should declare template references in the outer scope", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<ng-template #tpl></ng-template>{{tpl}}`, nil)
			ref := nodes[0].(*render3.Template).References[0]
			if got := res.GetExpressionTarget(findRead(t, nodes, "tpl")); got != ref {
				t.Errorf("target = %v, want the template reference", got)
			}
		})
	})

	t.Run("@let declarations", func(t *testing.T) {
		t.Run("should get @let declarations when resolving entities at the root", func(t *testing.T) {
			_, res := bindTemplate(t, `
        @let one = 1;
        @let two = 2;
        @let sum = one + two;
      `, nil)
			if diff := cmp.Diff([]string{"one", "two", "sum"}, entityNames(res.GetEntitiesInScope(nil))); diff != "" {
				t.Errorf("entities mismatch (-want +got):\n%s", diff)
			}
		})

		t.Run("should scope @let declarations to their current view", func(t *testing.T) {
			nodes, res := bindTemplate(t, `
        @let one = 1;

        @if (true) {
          @let two = 2;
        }

        @if (true) {
          @let three = 3;
        }
      `, nil)
			if diff := cmp.Diff([]string{"one"}, entityNames(res.GetEntitiesInScope(nil))); diff != "" {
				t.Errorf("root entities mismatch (-want +got):\n%s", diff)
			}
			var ifs []*render3.IfBlock
			for _, n := range nodes {
				if block, ok := n.(*render3.IfBlock); ok {
					ifs = append(ifs, block)
				}
			}
			if len(ifs) != 2 {
				t.Fatalf("got %d @if blocks, want 2", len(ifs))
			}
			if diff := cmp.Diff([]string{"one", "two"}, entityNames(res.GetEntitiesInScope(ifs[0].Branches[0]))); diff != "" {
				t.Errorf("first branch entities mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"one", "three"}, entityNames(res.GetEntitiesInScope(ifs[1].Branches[0]))); diff != "" {
				t.Errorf("second branch entities mismatch (-want +got):\n%s", diff)
			}
		})

		t.Run("should resolve expressions to an @let declaration", func(t *testing.T) {
			nodes, res := bindTemplate(t, `
        @let value = 1;
        {{value}}
      `, nil)
			target := res.GetExpressionTarget(findRead(t, nodes, "value"))
			decl, ok := target.(*render3.LetDeclaration)
			if !ok || decl.Name != "value" {
				t.Errorf("target = %v, want @let value", target)
			}
		})

		t.Run("should let inner declarations shadow outer ones", func(t *testing.T) {
			nodes, res := bindTemplate(t, `
        @let a = 1;
        @let b = 2;
        @if (true) {
          @let a = 3;
          {{a}}
        }
      `, nil)
			branch := findNode[*render3.IfBlockBranch](t, nodes, nil)
			entities := res.GetEntitiesInScope(branch)
			if diff := cmp.Diff([]string{"a", "b"}, entityNames(entities)); diff != "" {
				t.Errorf("entities mismatch (-want +got):\n%s", diff)
			}
			inner := entities[0]
			if res.GetDefinitionNodeOfSymbol(inner) != view.ScopedNode(branch) {
				t.Errorf("shadowing @let should be defined by the branch")
			}
			if got := res.GetExpressionTarget(findRead(t, nodes, "a")); got != inner {
				t.Errorf("read of a resolved to %v, want the inner declaration", got)
			}
		})
	})

	t.Run("control flow", func(t *testing.T) {
		t.Run("should expose @for context variables and aliases", func(t *testing.T) {
			nodes, res := bindTemplate(t, `@for (item of items; track $index; let i = $index) {{{i}}}`, nil)
			loop := findNode[*render3.ForLoopBlock](t, nodes, nil)
			want := []string{"item", "$index", "$first", "$last", "$even", "$odd", "$count", "i"}
			if diff := cmp.Diff(want, entityNames(res.GetEntitiesInScope(loop))); diff != "" {
				t.Errorf("entities mismatch (-want +got):\n%s", diff)
			}
			target := res.GetExpressionTarget(findRead(t, nodes, "i"))
			if v, ok := target.(*render3.Variable); !ok || v.Value != "$index" {
				t.Errorf("i target = %v, want alias of $index", target)
			}
			if got := res.GetDefinitionNodeOfSymbol(target); got != view.ScopedNode(loop) {
				t.Errorf("definition node = %T, want the loop", got)
			}
		})

		t.Run("should resolve the @if alias in its branch", func(t *testing.T) {
			nodes, res := bindTemplate(t, `@if (user; as u) {{{u.name}}}`, nil)
			branch := findNode[*render3.IfBlockBranch](t, nodes, nil)
			if got := res.GetExpressionTarget(findRead(t, nodes, "u")); got != branch.ExpressionAlias {
				t.Errorf("u target = %v, want the alias", got)
			}
			if target := res.GetExpressionTarget(findRead(t, nodes, "user")); target != nil {
				t.Errorf("user target = %v, want nil", target)
			}
		})

		t.Run("should compute nesting levels", func(t *testing.T) {
			nodes, res := bindTemplate(t, `@if (a) {<ng-template>@for (x of xs; track x) {{{x}}}</ng-template>}`, nil)
			branch := findNode[*render3.IfBlockBranch](t, nodes, nil)
			tmpl := findNode[*render3.Template](t, nodes, nil)
			loop := findNode[*render3.ForLoopBlock](t, nodes, nil)
			got := []int{res.GetNestingLevel(branch), res.GetNestingLevel(tmpl), res.GetNestingLevel(loop)}
			if diff := cmp.Diff([]int{1, 2, 3}, got); diff != "" {
				t.Errorf("nesting levels mismatch (-want +got):\n%s", diff)
			}
		})
	})

	t.Run("matching inputs to consuming directives", func(t *testing.T) {
		t.Run("should work for bound attributes", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<div hasInput [inputBinding]="myValue"></div>`, makeSelectorMatcher(t))
			el := nodes[0].(*render3.Element)
			consumer, ok := res.GetConsumerOfBinding(el.Inputs[0])
			if !ok || consumer.Directive == nil || consumer.Directive.Name() != "HasInput" {
				t.Errorf("consumer = %+v, want HasInput", consumer)
			}
		})

		t.Run("should work for text attributes on elements", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<div hasInput inputBinding="text"></div>`, makeSelectorMatcher(t))
			el := nodes[0].(*render3.Element)
			attr := findNode(t, nodes, func(a *render3.TextAttribute) bool { return a.Name == "inputBinding" })
			consumer, ok := res.GetConsumerOfBinding(attr)
			if !ok || consumer.Directive == nil || consumer.Directive.Name() != "HasInput" {
				t.Errorf("consumer = %+v, want HasInput", consumer)
			}
			if consumer.Node != el {
				t.Errorf("consumer node = %v, want the element", consumer.Node)
			}
		})

		t.Run("should bind to the element when no directive claims the input", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<div [title]="x"></div>`, makeSelectorMatcher(t))
			el := nodes[0].(*render3.Element)
			consumer, ok := res.GetConsumerOfBinding(el.Inputs[0])
			if !ok {
				t.Fatal("binding has no consumer")
			}
			if consumer.Directive != nil || consumer.Node != el {
				t.Errorf("consumer = %+v, want the element", consumer)
			}
		})

		t.Run("should match a directive whose selector is also its input", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<div [sameSelectorAsInput]="x"></div>`, makeSelectorMatcher(t))
			el := nodes[0].(*render3.Element)
			consumer, ok := res.GetConsumerOfBinding(el.Inputs[0])
			if !ok || consumer.Directive == nil || consumer.Directive.Name() != "SameSelectorAsInput" {
				t.Errorf("consumer = %+v, want SameSelectorAsInput", consumer)
			}
		})

		t.Run("should work for microsyntax template attributes", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<div *ngFor="let item of items"></div>`, makeSelectorMatcher(t))
			tmpl := nodes[0].(*render3.Template)
			var ngForOf *render3.BoundAttribute
			for _, attr := range tmpl.TemplateAttrs {
				if bound, ok := attr.(*render3.BoundAttribute); ok && bound.Name == "ngForOf" {
					ngForOf = bound
				}
			}
			if ngForOf == nil {
				t.Fatal("ngForOf template attribute not found")
			}
			consumer, ok := res.GetConsumerOfBinding(ngForOf)
			if !ok || consumer.Directive == nil || consumer.Directive.Name() != "NgFor" {
				t.Errorf("consumer = %+v, want NgFor", consumer)
			}
		})
	})

	t.Run("matching outputs to consuming directives", func(t *testing.T) {
		t.Run("should work for bound events", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<div hasOutput (outputBinding)="myHandler($event)"></div>`, makeSelectorMatcher(t))
			el := nodes[0].(*render3.Element)
			consumer, ok := res.GetConsumerOfBinding(el.Outputs[0])
			if !ok || consumer.Directive == nil || consumer.Directive.Name() != "HasOutput" {
				t.Errorf("consumer = %+v, want HasOutput", consumer)
			}
		})

		t.Run("should not match inputs to outputs", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<div hasInput (inputBinding)="h()"></div>`, makeSelectorMatcher(t))
			el := nodes[0].(*render3.Element)
			consumer, ok := res.GetConsumerOfBinding(el.Outputs[0])
			if !ok || consumer.Directive != nil {
				t.Errorf("consumer = %+v, want the element", consumer)
			}
		})
	})

	t.Run("pipes and directives used", func(t *testing.T) {
		template := `
      <div dir [title]="a | eager"></div>
      @defer {
        <comp [x]="b | lazy"></comp>
        {{c | eager}}
      } @placeholder {
        <div a>{{d | shown}}</div>
      }
    `

		t.Run("should split eager and deferred pipes", func(t *testing.T) {
			_, res := bindTemplate(t, template, makeSelectorMatcher(t))
			if diff := cmp.Diff([]string{"eager", "lazy", "shown"}, res.GetUsedPipes()); diff != "" {
				t.Errorf("used pipes mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"eager", "shown"}, res.GetEagerlyUsedPipes()); diff != "" {
				t.Errorf("eager pipes mismatch (-want +got):\n%s", diff)
			}
		})

		t.Run("should split eager and deferred directives", func(t *testing.T) {
			_, res := bindTemplate(t, template, makeSelectorMatcher(t))
			if diff := cmp.Diff([]string{"Dir", "Comp", "DirA"}, directiveNames(res.GetUsedDirectives())); diff != "" {
				t.Errorf("used directives mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"Dir", "DirA"}, directiveNames(res.GetEagerlyUsedDirectives())); diff != "" {
				t.Errorf("eager directives mismatch (-want +got):\n%s", diff)
			}
		})

		t.Run("should report each directive once", func(t *testing.T) {
			_, res := bindTemplate(t, `<div dir></div><span dir></span>`, makeSelectorMatcher(t))
			if diff := cmp.Diff([]string{"Dir"}, directiveNames(res.GetUsedDirectives())); diff != "" {
				t.Errorf("used directives mismatch (-want +got):\n%s", diff)
			}
		})
	})

	t.Run("deferred blocks", func(t *testing.T) {
		t.Run("should list defer blocks in template order", func(t *testing.T) {
			_, res := bindTemplate(t, `@defer {a} @defer {b}`, nil)
			if got := len(res.GetDeferBlocks()); got != 2 {
				t.Errorf("got %d defer blocks, want 2", got)
			}
		})

		t.Run("should report deferred elements", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<p></p>@defer {<main><b></b></main>} @placeholder {<span></span>}`, nil)
			for name, want := range map[string]bool{"p": false, "main": true, "b": true, "span": false} {
				if got := res.IsDeferred(findElement(t, nodes, name)); got != want {
					t.Errorf("IsDeferred(<%s>) = %v, want %v", name, got, want)
				}
			}
		})

		t.Run("should resolve a trigger reference outside the block", func(t *testing.T) {
			nodes, res := bindTemplate(t, `<button #trigger></button>@defer (on hover(trigger), timer(500ms)) {content}`, nil)
			block := findNode[*render3.DeferredBlock](t, nodes, nil)
			if got := res.GetDeferredTriggerTarget(block, block.Triggers.Hover); got != findElement(t, nodes, "button") {
				t.Errorf("hover target = %v, want the button", got)
			}
			if got := res.GetDeferredTriggerTarget(block, block.Triggers.Timer); got != nil {
				t.Errorf("timer target = %v, want nil", got)
			}
		})

		t.Run("should resolve a trigger reference in the placeholder", func(t *testing.T) {
			nodes, res := bindTemplate(t, `@defer (on interaction(myRef)) {content} @placeholder {<div><button #myRef></button></div>}`, nil)
			block := findNode[*render3.DeferredBlock](t, nodes, nil)
			if got := res.GetDeferredTriggerTarget(block, block.Triggers.Interaction); got != findElement(t, nodes, "button") {
				t.Errorf("interaction target = %v, want the button", got)
			}
		})

		t.Run("should not resolve a trigger reference inside the block", func(t *testing.T) {
			nodes, res := bindTemplate(t, `@defer (on viewport(inner)) {<div #inner></div>}`, nil)
			block := findNode[*render3.DeferredBlock](t, nodes, nil)
			if got := res.GetDeferredTriggerTarget(block, block.Triggers.Viewport); got != nil {
				t.Errorf("viewport target = %v, want nil", got)
			}
		})

		t.Run("should use the single placeholder root as the implicit target", func(t *testing.T) {
			nodes, res := bindTemplate(t, `@defer (on hover) {content} @placeholder {<!-- note --><img>}`, nil)
			block := findNode[*render3.DeferredBlock](t, nodes, nil)
			if got := res.GetDeferredTriggerTarget(block, block.Triggers.Hover); got != findElement(t, nodes, "img") {
				t.Errorf("hover target = %v, want the img", got)
			}
		})

		t.Run("should not pick an implicit target among several roots", func(t *testing.T) {
			nodes, res := bindTemplate(t, `@defer (on hover) {content} @placeholder {<img><img>}`, nil)
			block := findNode[*render3.DeferredBlock](t, nodes, nil)
			if got := res.GetDeferredTriggerTarget(block, block.Triggers.Hover); got != nil {
				t.Errorf("hover target = %v, want nil", got)
			}
		})
	})

	t.Run("should panic on an empty target", func(t *testing.T) {
		defer func() {
			r := recover()
			if _, ok := r.(*util.InvariantError); !ok {
				t.Errorf("recovered %v, want *util.InvariantError", r)
			}
		}()
		view.NewR3TargetBinder(nil).Bind(&view.Target{})
	})
}

func TestScope(t *testing.T) {
	nodes := parseR3(`@let outer = 1; <ng-template let-inner="x">{{inner}}</ng-template>`, false).Nodes
	root := view.NewScope().Apply(nodes)
	tmpl := findNode[*render3.Template](t, nodes, nil)
	child := root.GetChildScope(tmpl)

	if child.Parent() != root {
		t.Error("child scope should point to its parent")
	}
	if child.RootNode() != view.ScopedNode(tmpl) {
		t.Errorf("child root = %T, want the template", child.RootNode())
	}
	if got := child.Lookup("outer"); got == nil || got.EntityName() != "outer" {
		t.Errorf("Lookup(outer) = %v, want the @let from the parent", got)
	}
	if got := root.Lookup("inner"); got != nil {
		t.Errorf("root Lookup(inner) = %v, want nil", got)
	}
	if got := child.Lookup("missing"); got != nil {
		t.Errorf("Lookup(missing) = %v, want nil", got)
	}
}

func TestFindMatchingDirectivesAndPipes(t *testing.T) {
	template := `
      <div [title]="abc | uppercase"></div>
      @defer {
        <my-defer-cmp [label]="abc | lowercase" />
      } @placeholder {}
    `

	t.Run("should match directives and detect pipes in eager and deferrable parts of a template", func(t *testing.T) {
		got, err := view.FindMatchingDirectivesAndPipes(template, []string{"[title]", "my-defer-cmp", "not-matching"})
		if err != nil {
			t.Fatalf("FindMatchingDirectivesAndPipes: %v", err)
		}
		want := &view.MatchingDirectivesAndPipes{
			Directives: view.DeferSplit{Regular: []string{"[title]"}, DeferCandidates: []string{"my-defer-cmp"}},
			Pipes:      view.DeferSplit{Regular: []string{"uppercase"}, DeferCandidates: []string{"lowercase"}},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("result mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should return empty directive list if no selectors are provided", func(t *testing.T) {
		got, err := view.FindMatchingDirectivesAndPipes(template, nil)
		if err != nil {
			t.Fatalf("FindMatchingDirectivesAndPipes: %v", err)
		}
		if diff := cmp.Diff(view.DeferSplit{Regular: []string{}, DeferCandidates: []string{}}, got.Directives); diff != "" {
			t.Errorf("directives mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("should reject invalid selectors", func(t *testing.T) {
		if _, err := view.FindMatchingDirectivesAndPipes(template, []string{":not(:not(a))"}); err == nil {
			t.Error("expected an error for an invalid selector")
		}
	})
}
