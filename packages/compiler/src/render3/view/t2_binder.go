package view

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"ngc-bind/packages/compiler/src/css"
	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/render3"
	"ngc-bind/packages/compiler/src/util"
)

// R3TargetBinder binds templates against an optional directive matcher. A nil matcher
// matches no directives; references still resolve to their host nodes.
type R3TargetBinder struct {
	matcher *DirectiveMatcher
	logger  *slog.Logger
}

func NewR3TargetBinder(matcher *DirectiveMatcher) *R3TargetBinder {
	return &R3TargetBinder{matcher: matcher, logger: slog.Default()}
}

// WithLogger returns a copy of the binder that logs to logger.
func (b *R3TargetBinder) WithLogger(logger *slog.Logger) *R3TargetBinder {
	cp := *b
	cp.logger = logger
	return &cp
}

// Bind runs the scope, directive and expression passes over target. It panics when
// target has no template.
func (b *R3TargetBinder) Bind(target *Target) BoundTarget {
	if target == nil || target.Template == nil {
		util.Failf("Empty bound targets are not supported")
	}

	scope := NewScope().Apply(target.Template)
	entities := extractScopedNodeEntities(scope)

	matcher := b.matcher
	if matcher == nil {
		matcher = css.NewSelectorMatcher[DirectiveMeta]()
	}
	directives := DirectiveBinderApply(target.Template, matcher)
	bindings := TemplateBinderApplyWithScope(target.Template, scope)

	bound := &R3BoundTarget{
		target:             target,
		directives:         directives,
		bindings:           bindings,
		scopedNodeEntities: entities,
	}
	b.logger.Debug("bound template",
		"nodes", len(target.Template),
		"directives", len(bound.GetUsedDirectives()),
		"pipes", len(bindings.UsedPipes),
		"deferBlocks", len(bindings.DeferBlocks))
	return bound
}

// Scope is the set of names visible at one level of a template. The root scope has a nil
// RootNode. Child scopes are keyed by the node that opens them.
type Scope struct {
	NamedEntities   map[string]TemplateEntity
	ElementsInScope map[*render3.Element]bool
	ChildScopes     map[ScopedNode]*Scope

	parent   *Scope
	rootNode ScopedNode
	deferred bool
	// names and order list NamedEntities and ChildScopes keys in declaration order.
	names []string
	order []ScopedNode
}

func NewScope() *Scope {
	return newScope(nil, nil)
}

func newScope(parent *Scope, rootNode ScopedNode) *Scope {
	_, isDefer := rootNode.(*render3.DeferredBlock)
	return &Scope{
		NamedEntities:   map[string]TemplateEntity{},
		ElementsInScope: map[*render3.Element]bool{},
		ChildScopes:     map[ScopedNode]*Scope{},
		parent:          parent,
		rootNode:        rootNode,
		deferred:        (parent != nil && parent.deferred) || isDefer,
	}
}

// Apply declares the entities of nodes into s and builds its child scopes.
func (s *Scope) Apply(nodes []render3.Node) *Scope {
	s.visitAll(nodes)
	return s
}

func (s *Scope) Parent() *Scope { return s.parent }

func (s *Scope) RootNode() ScopedNode { return s.rootNode }

// IsDeferred reports whether the scope is an @defer block or nested in one. Placeholder,
// loading and error blocks are not deferred.
func (s *Scope) IsDeferred() bool { return s.deferred }

// Lookup finds name in s or its ancestors and returns nil when no scope declares it.
func (s *Scope) Lookup(name string) TemplateEntity {
	for sc := s; sc != nil; sc = sc.parent {
		if entity, ok := sc.NamedEntities[name]; ok {
			return entity
		}
	}
	return nil
}

// GetChildScope panics when node does not open a scope under s.
func (s *Scope) GetChildScope(node ScopedNode) *Scope {
	child, ok := s.ChildScopes[node]
	if !ok {
		util.Failf("child scope for %T not found", node)
	}
	return child
}

func (s *Scope) visitAll(nodes []render3.Node) {
	for _, n := range nodes {
		s.visit(n)
	}
}

func (s *Scope) visit(node render3.Node) {
	switch n := node.(type) {
	case *render3.Element:
		for _, ref := range n.References {
			s.declare(ref)
		}
		s.visitAll(n.Children)
		s.ElementsInScope[n] = true
	case *render3.Template:
		// References on a template are visible next to it, its variables only inside.
		for _, ref := range n.References {
			s.declare(ref)
		}
		s.ingestScopedNode(n)
	case *render3.DeferredBlock:
		s.ingestScopedNode(n)
		if n.Placeholder != nil {
			s.visit(n.Placeholder)
		}
		if n.Loading != nil {
			s.visit(n.Loading)
		}
		if n.Error != nil {
			s.visit(n.Error)
		}
	case *render3.ForLoopBlock:
		s.ingestScopedNode(n)
		if n.Empty != nil {
			s.visit(n.Empty)
		}
	case *render3.DeferredBlockPlaceholder, *render3.DeferredBlockLoading, *render3.DeferredBlockError,
		*render3.ForLoopBlockEmpty, *render3.SwitchBlockCase, *render3.IfBlockBranch, *render3.Content:
		s.ingestScopedNode(node.(ScopedNode))
	case *render3.SwitchBlock:
		for _, c := range n.Cases {
			s.visit(c)
		}
	case *render3.IfBlock:
		for _, branch := range n.Branches {
			s.visit(branch)
		}
	case *render3.LetDeclaration:
		s.declare(n)
	case *render3.Variable:
		s.declare(n)
	case *render3.Reference:
		s.declare(n)
	case *render3.Comment, *render3.Text, *render3.BoundText, *render3.Icu, *render3.UnknownBlock,
		*render3.TextAttribute, *render3.BoundAttribute, *render3.BoundEvent:
	default:
		util.Failf("unexpected node %T in scope", node)
	}
}

// ingest declares the entities a scoped node introduces and visits its children.
func (s *Scope) ingest(node ScopedNode) {
	switch n := node.(type) {
	case *render3.Template:
		for _, v := range n.Variables {
			s.declare(v)
		}
	case *render3.IfBlockBranch:
		if n.ExpressionAlias != nil {
			s.declare(n.ExpressionAlias)
		}
	case *render3.ForLoopBlock:
		s.declare(n.Item)
		for _, v := range n.ContextVariables {
			s.declare(v)
		}
	}
	s.visitAll(scopedChildren(node))
}

func (s *Scope) ingestScopedNode(node ScopedNode) {
	child := newScope(s, node)
	child.ingest(node)
	s.ChildScopes[node] = child
	s.order = append(s.order, node)
}

// declare keeps the first entity of a given name.
func (s *Scope) declare(entity TemplateEntity) {
	name := entity.EntityName()
	if _, ok := s.NamedEntities[name]; !ok {
		s.NamedEntities[name] = entity
		s.names = append(s.names, name)
	}
}

// scopedChildren returns the body of a scoped node. Connected blocks are not part of it.
func scopedChildren(node ScopedNode) []render3.Node {
	switch n := node.(type) {
	case *render3.Template:
		return n.Children
	case *render3.Content:
		return n.Children
	case *render3.IfBlockBranch:
		return n.Children
	case *render3.ForLoopBlock:
		return n.Children
	case *render3.ForLoopBlockEmpty:
		return n.Children
	case *render3.SwitchBlockCase:
		return n.Children
	case *render3.DeferredBlock:
		return n.Children
	case *render3.DeferredBlockPlaceholder:
		return n.Children
	case *render3.DeferredBlockLoading:
		return n.Children
	case *render3.DeferredBlockError:
		return n.Children
	default:
		util.Failf("unexpected scoped node %T", node)
		return nil
	}
}

// DirectiveBindings is the output of the directive pass. Owners lists the nodes of
// Directives in template order.
type DirectiveBindings struct {
	Directives      map[DirectiveOwner][]DirectiveMeta
	Owners          []DirectiveOwner
	EagerDirectives []DirectiveMeta
	// Bindings maps *BoundAttribute, *BoundEvent and *TextAttribute to their consumer.
	Bindings   map[render3.Node]ReferenceTarget
	References map[*render3.Reference]ReferenceTarget
}

func newDirectiveBindings() *DirectiveBindings {
	return &DirectiveBindings{
		Directives: map[DirectiveOwner][]DirectiveMeta{},
		Bindings:   map[render3.Node]ReferenceTarget{},
		References: map[*render3.Reference]ReferenceTarget{},
	}
}

type directiveBinder struct {
	matcher        *DirectiveMatcher
	out            *DirectiveBindings
	isInDeferBlock bool
}

// DirectiveBinderApply matches directives against every element and template in
// nodes, then resolves references and binding consumers against the matches.
func DirectiveBinderApply(nodes []render3.Node, matcher *DirectiveMatcher) *DirectiveBindings {
	b := &directiveBinder{matcher: matcher, out: newDirectiveBindings()}
	b.visitAll(nodes)
	return b.out
}

func (b *directiveBinder) visitAll(nodes []render3.Node) {
	for _, n := range nodes {
		b.visit(n)
	}
}

func (b *directiveBinder) visit(node render3.Node) {
	switch n := node.(type) {
	case *render3.Element:
		b.visitElementOrTemplate(n)
	case *render3.Template:
		b.visitElementOrTemplate(n)
	case *render3.DeferredBlock:
		wasInDeferBlock := b.isInDeferBlock
		b.isInDeferBlock = true
		b.visitAll(n.Children)
		b.isInDeferBlock = wasInDeferBlock
		if n.Placeholder != nil {
			b.visit(n.Placeholder)
		}
		if n.Loading != nil {
			b.visit(n.Loading)
		}
		if n.Error != nil {
			b.visit(n.Error)
		}
	case *render3.ForLoopBlock:
		b.visitAll(n.Children)
		if n.Empty != nil {
			b.visit(n.Empty)
		}
	case *render3.DeferredBlockPlaceholder, *render3.DeferredBlockLoading, *render3.DeferredBlockError,
		*render3.ForLoopBlockEmpty, *render3.SwitchBlockCase, *render3.IfBlockBranch, *render3.Content:
		b.visitAll(scopedChildren(node.(ScopedNode)))
	case *render3.SwitchBlock:
		for _, c := range n.Cases {
			b.visit(c)
		}
	case *render3.IfBlock:
		for _, branch := range n.Branches {
			b.visit(branch)
		}
	case *render3.Comment, *render3.Text, *render3.BoundText, *render3.Icu, *render3.UnknownBlock,
		*render3.LetDeclaration, *render3.Variable, *render3.Reference,
		*render3.TextAttribute, *render3.BoundAttribute, *render3.BoundEvent:
	default:
		util.Failf("unexpected node %T in directive binder", node)
	}
}

func (b *directiveBinder) visitElementOrTemplate(node DirectiveOwner) {
	var directives []DirectiveMeta
	for _, dir := range b.matcher.MatchAll(CreateCssSelectorFromNode(node)) {
		// A directive with several matching selectors is listed once.
		if !slices.Contains(directives, dir) {
			directives = append(directives, dir)
		}
	}
	if len(directives) > 0 {
		b.out.Directives[node] = directives
		b.out.Owners = append(b.out.Owners, node)
		if !b.isInDeferBlock {
			b.out.EagerDirectives = append(b.out.EagerDirectives, directives...)
		}
	}

	var (
		references []*render3.Reference
		inputs     []*render3.BoundAttribute
		attributes []*render3.TextAttribute
		outputs    []*render3.BoundEvent
		children   []render3.Node
	)
	switch n := node.(type) {
	case *render3.Element:
		references, inputs, attributes, outputs, children = n.References, n.Inputs, n.Attributes, n.Outputs, n.Children
	case *render3.Template:
		references, inputs, attributes, outputs, children = n.References, n.Inputs, n.Attributes, n.Outputs, n.Children
	default:
		util.Failf("unexpected directive owner %T", node)
	}

	for _, ref := range references {
		var target DirectiveMeta
		if strings.TrimSpace(ref.Value) == "" {
			target = findDirective(directives, DirectiveMeta.IsComponent)
		} else {
			target = findDirective(directives, func(dir DirectiveMeta) bool {
				return slices.Contains(dir.ExportAs(), ref.Value)
			})
			if target == nil {
				continue
			}
		}
		b.out.References[ref] = ReferenceTarget{Directive: target, Node: node}
	}

	setBinding := func(binding render3.Node, name string, output bool) {
		target := findDirective(directives, func(dir DirectiveMeta) bool {
			if output {
				return dir.Outputs().HasBindingPropertyName(name)
			}
			return dir.Inputs().HasBindingPropertyName(name)
		})
		b.out.Bindings[binding] = ReferenceTarget{Directive: target, Node: node}
	}
	for _, input := range inputs {
		setBinding(input, input.Name, false)
	}
	for _, attr := range attributes {
		setBinding(attr, attr.Name, false)
	}
	if tmpl, ok := node.(*render3.Template); ok {
		for _, attr := range tmpl.TemplateAttrs {
			switch a := attr.(type) {
			case *render3.TextAttribute:
				setBinding(a, a.Name, false)
			case *render3.BoundAttribute:
				setBinding(a, a.Name, false)
			default:
				util.Failf("unexpected template attribute %T", attr)
			}
		}
	}
	for _, output := range outputs {
		setBinding(output, output.Name, true)
	}

	b.visitAll(children)
}

func findDirective(directives []DirectiveMeta, pred func(DirectiveMeta) bool) DirectiveMeta {
	for _, dir := range directives {
		if pred(dir) {
			return dir
		}
	}
	return nil
}

// TemplateBindings is the output of the expression pass.
type TemplateBindings struct {
	// Expressions maps property reads on the implicit receiver to the entity they name.
	Expressions map[expression_parser.AST]TemplateEntity
	// Symbols maps each entity declared below the top level to its scoped node.
	Symbols      map[TemplateEntity]ScopedNode
	NestingLevel map[ScopedNode]int
	UsedPipes    map[string]bool
	EagerPipes   map[string]bool
	// DeferBlocks is in template order. DeferScopes holds the scope each one opens.
	DeferBlocks []*render3.DeferredBlock
	DeferScopes map[*render3.DeferredBlock]*Scope
}

type templateBinder struct {
	scope    *Scope
	rootNode ScopedNode
	level    int
	out      *TemplateBindings
}

// TemplateBinderApplyWithScope resolves the expressions of nodes against scope, which
// must come from NewScope().Apply over the same nodes.
func TemplateBinderApplyWithScope(nodes []render3.Node, scope *Scope) *TemplateBindings {
	out := &TemplateBindings{
		Expressions:  map[expression_parser.AST]TemplateEntity{},
		Symbols:      map[TemplateEntity]ScopedNode{},
		NestingLevel: map[ScopedNode]int{},
		UsedPipes:    map[string]bool{},
		EagerPipes:   map[string]bool{},
		DeferScopes:  map[*render3.DeferredBlock]*Scope{},
	}
	b := &templateBinder{scope: scope, out: out}
	b.visitAll(nodes)
	return out
}

func (b *templateBinder) visitAll(nodes []render3.Node) {
	for _, n := range nodes {
		b.visit(n)
	}
}

func (b *templateBinder) visit(node render3.Node) {
	switch n := node.(type) {
	case *render3.Element:
		b.visitAttributes(n.Inputs, n.Outputs)
		b.visitAll(n.Children)
		for _, ref := range n.References {
			b.visit(ref)
		}
	case *render3.Template:
		b.visitAttributes(n.Inputs, n.Outputs)
		for _, attr := range n.TemplateAttrs {
			if bound, ok := attr.(*render3.BoundAttribute); ok {
				b.visitExpression(bound.Value)
			}
		}
		for _, ref := range n.References {
			b.visit(ref)
		}
		b.ingestScopedNode(n)
	case *render3.Variable:
		b.declareSymbol(n)
	case *render3.Reference:
		b.declareSymbol(n)
	case *render3.LetDeclaration:
		b.visitExpression(n.Value)
		b.declareSymbol(n)
	case *render3.BoundAttribute:
		b.visitExpression(n.Value)
	case *render3.BoundEvent:
		b.visitExpression(n.Handler)
	case *render3.BoundText:
		b.visitExpression(n.Value)
	case *render3.Icu:
		for _, key := range slices.Sorted(maps.Keys(n.Vars)) {
			b.visit(n.Vars[key])
		}
		for _, key := range slices.Sorted(maps.Keys(n.Placeholders)) {
			b.visit(n.Placeholders[key])
		}
	case *render3.DeferredBlock:
		b.ingestScopedNode(n)
		for _, triggers := range []*render3.DeferredBlockTriggers{&n.Triggers, &n.PrefetchTriggers, &n.HydrateTriggers} {
			if triggers.When != nil {
				b.visitExpression(triggers.When.Value)
			}
		}
		if n.Placeholder != nil {
			b.visit(n.Placeholder)
		}
		if n.Loading != nil {
			b.visit(n.Loading)
		}
		if n.Error != nil {
			b.visit(n.Error)
		}
	case *render3.DeferredBlockPlaceholder, *render3.DeferredBlockLoading, *render3.DeferredBlockError,
		*render3.ForLoopBlockEmpty, *render3.Content:
		b.ingestScopedNode(node.(ScopedNode))
	case *render3.SwitchBlock:
		b.visitExpression(n.Expression)
		for _, c := range n.Cases {
			b.visit(c)
		}
	case *render3.SwitchBlockCase:
		b.visitExpression(n.Expression)
		b.ingestScopedNode(n)
	case *render3.ForLoopBlock:
		if n.Expression != nil {
			b.visitExpression(n.Expression)
		}
		b.ingestScopedNode(n)
		if n.Empty != nil {
			b.visit(n.Empty)
		}
	case *render3.IfBlock:
		for _, branch := range n.Branches {
			b.visit(branch)
		}
	case *render3.IfBlockBranch:
		b.visitExpression(n.Expression)
		b.ingestScopedNode(n)
	case *render3.Comment, *render3.Text, *render3.TextAttribute, *render3.UnknownBlock:
	default:
		util.Failf("unexpected node %T in template binder", node)
	}
}

func (b *templateBinder) visitAttributes(inputs []*render3.BoundAttribute, outputs []*render3.BoundEvent) {
	for _, input := range inputs {
		b.visitExpression(input.Value)
	}
	for _, output := range outputs {
		b.visitExpression(output.Handler)
	}
}

func (b *templateBinder) ingestScopedNode(node ScopedNode) {
	child := &templateBinder{
		scope:    b.scope.GetChildScope(node),
		rootNode: node,
		level:    b.level + 1,
		out:      b.out,
	}
	child.ingest(node)
}

func (b *templateBinder) ingest(node ScopedNode) {
	switch n := node.(type) {
	case *render3.Template:
		for _, v := range n.Variables {
			b.visit(v)
		}
	case *render3.IfBlockBranch:
		if n.ExpressionAlias != nil {
			b.visit(n.ExpressionAlias)
		}
	case *render3.ForLoopBlock:
		b.visit(n.Item)
		for _, v := range n.ContextVariables {
			b.visit(v)
		}
		if n.TrackBy != nil {
			b.visitExpression(n.TrackBy)
		}
	case *render3.DeferredBlock:
		util.Assertf(b.scope.RootNode() == node, "resolved incorrect scope for deferred block")
		b.out.DeferBlocks = append(b.out.DeferBlocks, n)
		b.out.DeferScopes[n] = b.scope
	}
	b.visitAll(scopedChildren(node))
	b.out.NestingLevel[node] = b.level
}

func (b *templateBinder) declareSymbol(entity TemplateEntity) {
	if b.rootNode != nil {
		b.out.Symbols[entity] = b.rootNode
	}
}

func (b *templateBinder) visitExpression(ast expression_parser.AST) {
	expression_parser.Walk(ast, func(node expression_parser.AST) bool {
		switch n := node.(type) {
		case *expression_parser.PropertyRead:
			b.maybeMap(n, n.Receiver, n.Name)
		case *expression_parser.SafePropertyRead:
			b.maybeMap(n, n.Receiver, n.Name)
		case *expression_parser.BindingPipe:
			b.out.UsedPipes[n.Name] = true
			if !b.scope.IsDeferred() {
				b.out.EagerPipes[n.Name] = true
			}
		}
		return true
	})
}

// maybeMap records what a read on the implicit receiver refers to. Reads of `this.x`
// always target the component.
func (b *templateBinder) maybeMap(ast, receiver expression_parser.AST, name string) {
	if _, ok := receiver.(*expression_parser.ImplicitReceiver); !ok {
		return
	}
	if target := b.scope.Lookup(name); target != nil {
		b.out.Expressions[ast] = target
	}
}

// R3BoundTarget implements BoundTarget.
type R3BoundTarget struct {
	target             *Target
	directives         *DirectiveBindings
	bindings           *TemplateBindings
	scopedNodeEntities map[ScopedNode][]TemplateEntity
}

var _ BoundTarget = (*R3BoundTarget)(nil)

func (t *R3BoundTarget) Target() *Target { return t.target }

func (t *R3BoundTarget) GetEntitiesInScope(node ScopedNode) []TemplateEntity {
	return slices.Clone(t.scopedNodeEntities[node])
}

func (t *R3BoundTarget) GetDirectivesOfNode(node DirectiveOwner) []DirectiveMeta {
	return slices.Clone(t.directives.Directives[node])
}

func (t *R3BoundTarget) GetReferenceTarget(ref *render3.Reference) (ReferenceTarget, bool) {
	target, ok := t.directives.References[ref]
	return target, ok
}

func (t *R3BoundTarget) GetConsumerOfBinding(binding render3.Node) (ReferenceTarget, bool) {
	target, ok := t.directives.Bindings[binding]
	return target, ok
}

func (t *R3BoundTarget) GetExpressionTarget(expr expression_parser.AST) TemplateEntity {
	return t.bindings.Expressions[expr]
}

func (t *R3BoundTarget) GetDefinitionNodeOfSymbol(symbol TemplateEntity) ScopedNode {
	return t.bindings.Symbols[symbol]
}

func (t *R3BoundTarget) GetNestingLevel(node ScopedNode) int {
	return t.bindings.NestingLevel[node]
}

func (t *R3BoundTarget) GetUsedDirectives() []DirectiveMeta {
	var out []DirectiveMeta
	for _, owner := range t.directives.Owners {
		for _, dir := range t.directives.Directives[owner] {
			if !slices.Contains(out, dir) {
				out = append(out, dir)
			}
		}
	}
	return out
}

func (t *R3BoundTarget) GetEagerlyUsedDirectives() []DirectiveMeta {
	var out []DirectiveMeta
	for _, dir := range t.directives.EagerDirectives {
		if !slices.Contains(out, dir) {
			out = append(out, dir)
		}
	}
	return out
}

func (t *R3BoundTarget) GetUsedPipes() []string {
	return slices.Sorted(maps.Keys(t.bindings.UsedPipes))
}

func (t *R3BoundTarget) GetEagerlyUsedPipes() []string {
	return slices.Sorted(maps.Keys(t.bindings.EagerPipes))
}

func (t *R3BoundTarget) GetDeferBlocks() []*render3.DeferredBlock {
	return slices.Clone(t.bindings.DeferBlocks)
}

func (t *R3BoundTarget) GetDeferredTriggerTarget(block *render3.DeferredBlock, trigger render3.DeferredTrigger) *render3.Element {
	var name *string
	switch tr := trigger.(type) {
	case *render3.HoverDeferredTrigger:
		name = tr.Reference
	case *render3.InteractionDeferredTrigger:
		name = tr.Reference
	case *render3.ViewportDeferredTrigger:
		name = tr.Reference
	default:
		return nil
	}

	if name == nil {
		// The only element at the root of the placeholder is the implicit target.
		if block.Placeholder == nil {
			return nil
		}
		var target *render3.Element
		for _, child := range block.Placeholder.Children {
			if _, ok := child.(*render3.Comment); ok {
				continue
			}
			if target != nil {
				return nil
			}
			if el, ok := child.(*render3.Element); ok {
				target = el
			}
		}
		return target
	}

	// References declared inside the deferred block are not visible to its triggers.
	if ref, ok := t.findEntityInScope(block, *name).(*render3.Reference); ok &&
		t.GetDefinitionNodeOfSymbol(ref) != block {
		if target, ok := t.GetReferenceTarget(ref); ok {
			return referenceTargetToElement(target)
		}
	}
	if block.Placeholder != nil {
		if ref, ok := t.findEntityInScope(block.Placeholder, *name).(*render3.Reference); ok {
			if target, ok := t.GetReferenceTarget(ref); ok {
				return referenceTargetToElement(target)
			}
		}
	}
	return nil
}

func (t *R3BoundTarget) IsDeferred(element *render3.Element) bool {
	for _, block := range t.bindings.DeferBlocks {
		scope, ok := t.bindings.DeferScopes[block]
		if !ok {
			continue
		}
		stack := []*Scope{scope}
		for len(stack) > 0 {
			current := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if current.ElementsInScope[element] {
				return true
			}
			for _, node := range current.order {
				stack = append(stack, current.ChildScopes[node])
			}
		}
	}
	return false
}

func (t *R3BoundTarget) findEntityInScope(node ScopedNode, name string) TemplateEntity {
	for _, entity := range t.scopedNodeEntities[node] {
		if entity.EntityName() == name {
			return entity
		}
	}
	return nil
}

// referenceTargetToElement returns the host element of target. Templates have none.
func referenceTargetToElement(target ReferenceTarget) *render3.Element {
	el, _ := target.Node.(*render3.Element)
	return el
}

// extractScopedNodeEntities lists, for every scope, the entities visible in it. Outer
// entities come first. An inner declaration shadows an outer one in place. The root
// scope is keyed by nil.
func extractScopedNodeEntities(root *Scope) map[ScopedNode][]TemplateEntity {
	visible := map[*Scope][]TemplateEntity{}
	var collect func(s *Scope) []TemplateEntity
	collect = func(s *Scope) []TemplateEntity {
		if entities, ok := visible[s]; ok {
			return entities
		}
		var entities []TemplateEntity
		if s.parent != nil {
			entities = slices.Clone(collect(s.parent))
		}
		for _, name := range s.names {
			entity := s.NamedEntities[name]
			i := slices.IndexFunc(entities, func(e TemplateEntity) bool { return e.EntityName() == name })
			if i >= 0 {
				entities[i] = entity
			} else {
				entities = append(entities, entity)
			}
		}
		visible[s] = entities
		return entities
	}

	out := map[ScopedNode][]TemplateEntity{}
	stack := []*Scope{root}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, node := range s.order {
			stack = append(stack, s.ChildScopes[node])
		}
		out[s.rootNode] = collect(s)
	}
	return out
}

// MatchingDirectivesAndPipes splits what a template uses into what it needs eagerly
// and what only appears inside @defer blocks.
type MatchingDirectivesAndPipes struct {
	Directives DeferSplit
	Pipes      DeferSplit
}

type DeferSplit struct {
	Regular         []string
	DeferCandidates []string
}

// selectorOnlyDirective stands in for a directive known only by its selector.
type selectorOnlyDirective struct {
	selector string
}

type noBindings struct{}

func (noBindings) HasBindingPropertyName(string) bool { return false }

func (d *selectorOnlyDirective) Name() string                    { return d.selector }
func (d *selectorOnlyDirective) Selector() string                { return d.selector }
func (d *selectorOnlyDirective) IsComponent() bool               { return false }
func (d *selectorOnlyDirective) Inputs() InputOutputPropertySet  { return noBindings{} }
func (d *selectorOnlyDirective) Outputs() InputOutputPropertySet { return noBindings{} }
func (d *selectorOnlyDirective) ExportAs() []string              { return nil }
func (d *selectorOnlyDirective) IsStructural() bool              { return false }

// FindMatchingDirectivesAndPipes parses template and reports which of directiveSelectors
// and which pipes it uses, by selector and pipe name.
func FindMatchingDirectivesAndPipes(template string, directiveSelectors []string) (*MatchingDirectivesAndPipes, error) {
	matcher := css.NewSelectorMatcher[DirectiveMeta]()
	for _, selector := range directiveSelectors {
		parsed, err := css.ParseCssSelector(selector)
		if err != nil {
			return nil, fmt.Errorf("directive selector %q: %w", selector, err)
		}
		matcher.AddSelectables(parsed, &selectorOnlyDirective{selector: selector})
	}

	parsed := ParseTemplate(template, "")
	bound := NewR3TargetBinder(matcher).Bind(&Target{Template: parsed.Nodes})

	eagerDirectives := selectorsOf(bound.GetEagerlyUsedDirectives())
	eagerPipes := bound.GetEagerlyUsedPipes()
	return &MatchingDirectivesAndPipes{
		Directives: DeferSplit{
			Regular:         eagerDirectives,
			DeferCandidates: difference(selectorsOf(bound.GetUsedDirectives()), eagerDirectives),
		},
		Pipes: DeferSplit{
			Regular:         eagerPipes,
			DeferCandidates: difference(bound.GetUsedPipes(), eagerPipes),
		},
	}, nil
}

func selectorsOf(directives []DirectiveMeta) []string {
	out := make([]string, 0, len(directives))
	for _, dir := range directives {
		out = append(out, dir.Selector())
	}
	return out
}

func difference(all, exclude []string) []string {
	out := []string{}
	for _, s := range all {
		if !slices.Contains(exclude, s) {
			out = append(out, s)
		}
	}
	return out
}
