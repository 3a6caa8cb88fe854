package view

import (
	"fmt"
	"regexp"
	"strings"

	"ngc-bind/packages/compiler/src/css"
	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/render3"
	"ngc-bind/packages/compiler/src/template_parser"
	"ngc-bind/packages/compiler/src/util"
)

// bindNamePattern groups: 1 bind-, 2 let-, 3 ref- or #, 4 on-, 5 bindon-, 6 @, 7 identifier.
var bindNamePattern = regexp.MustCompile(`^(?:(bind-)|(let-)|(ref-|#)|(on-)|(bindon-)|(@))(.*)$`)

const (
	kwBindIdx = iota + 1
	kwLetIdx
	kwRefIdx
	kwOnIdx
	kwBindonIdx
	kwAtIdx
	identKwIdx
)

type bindingDelims struct{ start, end string }

var (
	bananaBoxDelims = bindingDelims{"[(", ")]"}
	propertyDelims  = bindingDelims{"[", "]"}
	eventDelims     = bindingDelims{"(", ")"}
)

const (
	templateAttrPrefix = "*"
	icuVarPrefix       = "VAR_"
	icuInterpolationPh = "INTERPOLATION"
)

type Render3ParseOptions struct {
	CollectCommentNodes bool
}

// Render3ParseResult is the output of HtmlAstToR3Ast. Errors holds the binding parser's
// diagnostics followed by the transformer's own.
type Render3ParseResult struct {
	Nodes              []render3.Node
	Errors             []*util.ParseError
	StyleUrls          []string
	Styles             []string
	NgContentSelectors []string
	// CommentNodes is only filled when CollectCommentNodes is set.
	CommentNodes []*render3.Comment
}

// HtmlAstToR3Ast converts a generic markup tree into semantic template nodes.
func HtmlAstToR3Ast(
	htmlNodes []ml_parser.Node,
	bindingParser *template_parser.BindingParser,
	options Render3ParseOptions,
) *Render3ParseResult {
	t := &htmlAstToIvyAst{
		bindingParser:  bindingParser,
		options:        options,
		processedNodes: make(map[ml_parser.Node]bool),
	}
	nodes := t.visitAll(htmlNodes)

	errs := make([]*util.ParseError, 0, len(bindingParser.Errors)+len(t.errors))
	errs = append(errs, bindingParser.Errors...)
	errs = append(errs, t.errors...)

	result := &Render3ParseResult{
		Nodes:              nodes,
		Errors:             errs,
		StyleUrls:          t.styleUrls,
		Styles:             t.styles,
		NgContentSelectors: t.ngContentSelectors,
	}
	if options.CollectCommentNodes {
		result.CommentNodes = t.commentNodes
	}
	return result
}

type htmlAstToIvyAst struct {
	bindingParser      *template_parser.BindingParser
	options            Render3ParseOptions
	errors             []*util.ParseError
	styles             []string
	styleUrls          []string
	ngContentSelectors []string
	commentNodes       []*render3.Comment
	// processedNodes are siblings already consumed as connected blocks.
	processedNodes map[ml_parser.Node]bool
}

func (t *htmlAstToIvyAst) reportError(message string, span *util.ParseSourceSpan) {
	t.errors = append(t.errors, util.NewParseError(span, message))
}

// visitAll converts one sibling list. It is also handed to the block builders as their
// render3.NodeConverter.
func (t *htmlAstToIvyAst) visitAll(nodes []ml_parser.Node) []render3.Node {
	out := make([]render3.Node, 0, len(nodes))
	for i, node := range nodes {
		if t.processedNodes[node] {
			continue
		}
		if n := t.visit(node, nodes, i); n != nil {
			out = append(out, n)
		}
	}
	return out
}

func (t *htmlAstToIvyAst) visit(node ml_parser.Node, siblings []ml_parser.Node, index int) render3.Node {
	switch n := node.(type) {
	case *ml_parser.Element:
		return t.visitElement(n)
	case *ml_parser.Text:
		return t.visitText(n)
	case *ml_parser.Comment:
		if t.options.CollectCommentNodes {
			t.commentNodes = append(t.commentNodes, &render3.Comment{Value: n.Value, Span: n.Span})
		}
		return nil
	case *ml_parser.Expansion:
		return t.visitExpansion(n)
	case *ml_parser.Block:
		return t.visitBlock(n, siblings, index)
	case *ml_parser.LetDeclaration:
		return t.visitLetDeclaration(n)
	default:
		util.Failf("unexpected child node %T", node)
		return nil
	}
}

func (t *htmlAstToIvyAst) visitElement(element *ml_parser.Element) render3.Node {
	preparsed := template_parser.PreparseElement(element)
	switch preparsed.Type {
	case template_parser.PreparsedElementTypeScript:
		return nil
	case template_parser.PreparsedElementTypeStyle:
		if contents, ok := textContents(element); ok {
			t.styles = append(t.styles, contents)
		}
		return nil
	case template_parser.PreparsedElementTypeStylesheet:
		if css.IsStyleUrlResolvable(preparsed.HrefAttr) {
			t.styleUrls = append(t.styleUrls, preparsed.HrefAttr)
			return nil
		}
	}

	isTemplateElement := ml_parser.IsNgTemplate(element.Name)
	attrs := t.prepareAttributes(element.Attrs, isTemplateElement)

	var children []render3.Node
	if preparsed.NonBindable {
		children = visitAllNonBindable(element.Children)
	} else {
		children = t.visitAll(element.Children)
	}

	var parsed render3.Node
	switch {
	case preparsed.Type == template_parser.PreparsedElementTypeNgContent:
		textAttrs := make([]*render3.TextAttribute, len(element.Attrs))
		for i, attr := range element.Attrs {
			textAttrs[i] = textAttributeOf(attr)
		}
		parsed = &render3.Content{
			Selector:        preparsed.SelectAttr,
			Attributes:      textAttrs,
			Children:        children,
			IsSelfClosing:   element.IsSelfClosing,
			Span:            element.Span,
			StartSourceSpan: element.StartSourceSpan,
			EndSourceSpan:   element.EndSourceSpan,
			I18n:            element.I18n,
		}
		t.ngContentSelectors = append(t.ngContentSelectors, preparsed.SelectAttr)
	case isTemplateElement:
		_, bound := t.categorizePropertyAttributes(attrs.parsedProperties, attrs.i18nMeta)
		parsed = &render3.Template{
			TagName:         element.Name,
			Attributes:      attrs.attributes,
			Inputs:          bound,
			Outputs:         attrs.boundEvents,
			Children:        children,
			References:      attrs.references,
			Variables:       attrs.variables,
			IsSelfClosing:   element.IsSelfClosing,
			Span:            element.Span,
			StartSourceSpan: element.StartSourceSpan,
			EndSourceSpan:   element.EndSourceSpan,
			I18n:            element.I18n,
		}
	default:
		_, bound := t.categorizePropertyAttributes(attrs.parsedProperties, attrs.i18nMeta)
		parsed = &render3.Element{
			Name:            element.Name,
			Attributes:      attrs.attributes,
			Inputs:          bound,
			Outputs:         attrs.boundEvents,
			Children:        children,
			References:      attrs.references,
			IsSelfClosing:   element.IsSelfClosing,
			Span:            element.Span,
			StartSourceSpan: element.StartSourceSpan,
			EndSourceSpan:   element.EndSourceSpan,
			IsVoid:          element.IsVoid,
			I18n:            element.I18n,
		}
	}

	if attrs.hasInlineTemplate {
		parsed = t.wrapInTemplate(parsed, attrs.templateProperties, attrs.templateVariables, attrs.i18nMeta)
	}
	return parsed
}

// preparedAttributes is an element's attribute list sorted by role.
type preparedAttributes struct {
	attributes         []*render3.TextAttribute
	boundEvents        []*render3.BoundEvent
	references         []*render3.Reference
	variables          []*render3.Variable
	templateVariables  []*render3.Variable
	hasInlineTemplate  bool
	parsedProperties   []*template_parser.ParsedProperty
	templateProperties []*template_parser.ParsedProperty
	i18nMeta           map[string]render3.I18nMeta
}

func (t *htmlAstToIvyAst) prepareAttributes(attrs []*ml_parser.Attribute, isTemplateElement bool) *preparedAttributes {
	p := &preparedAttributes{i18nMeta: make(map[string]render3.I18nMeta)}
	for _, attr := range attrs {
		if attr.I18n != nil {
			p.i18nMeta[attr.Name] = attr.I18n
		}
		normalizedName := normalizeAttributeName(attr.Name)
		hasBinding, isTemplateBinding := false, false

		if strings.HasPrefix(normalizedName, templateAttrPrefix) {
			if p.hasInlineTemplate {
				t.reportError("Can't have multiple template bindings on one element. Use only one attribute prefixed with *", attr.Span)
			}
			isTemplateBinding = true
			p.hasInlineTemplate = true
			templateKey := normalizedName[len(templateAttrPrefix):]
			absoluteValueOffset := attr.Span.FullStart.Offset + len(attr.Name)
			if attr.ValueSpan != nil {
				absoluteValueOffset = attr.ValueSpan.FullStart.Offset
			}
			var (
				matchable []template_parser.MatchableAttr
				vars      []*template_parser.ParsedVariable
			)
			t.bindingParser.ParseInlineTemplateBinding(templateKey, attr.Value, attr.Span, absoluteValueOffset, &matchable, &p.templateProperties, &vars)
			for _, v := range vars {
				p.templateVariables = append(p.templateVariables, &render3.Variable{
					Name: v.Name, Value: v.Value, Span: v.SourceSpan, KeySpan: v.KeySpan, ValueSpan: v.ValueSpan,
				})
			}
		} else {
			hasBinding = t.parseAttribute(isTemplateElement, attr, p)
		}

		if !hasBinding && !isTemplateBinding {
			p.attributes = append(p.attributes, textAttributeOf(attr))
		}
	}
	return p
}

// parseAttribute reports whether attr was consumed as a binding, variable or reference.
func (t *htmlAstToIvyAst) parseAttribute(isTemplateElement bool, attr *ml_parser.Attribute, p *preparedAttributes) bool {
	name := normalizeAttributeName(attr.Name)
	value := attr.Value
	srcSpan := attr.Span
	absoluteOffset := srcSpan.FullStart.Offset
	if attr.ValueSpan != nil {
		absoluteOffset = attr.ValueSpan.FullStart.Offset
	}
	handlerSpan := attr.ValueSpan
	if handlerSpan == nil {
		handlerSpan = srcSpan
	}
	// The key span skips both the binding prefix and a stripped `data-`.
	createKeySpan := func(prefix, identifier string) *util.ParseSourceSpan {
		adjustment := len(attr.Name) - len(name)
		start := srcSpan.Start.MoveBy(len(prefix) + adjustment)
		return util.NewParseSourceSpan(start, start.MoveBy(len(identifier)), start, &identifier)
	}
	var matchable []template_parser.MatchableAttr

	if parts := bindNamePattern.FindStringSubmatch(name); parts != nil {
		identifier := parts[identKwIdx]
		switch {
		case parts[kwBindIdx] != "":
			keySpan := createKeySpan(parts[kwBindIdx], identifier)
			t.bindingParser.ParsePropertyBinding(identifier, value, false, false, srcSpan, absoluteOffset, attr.ValueSpan, &matchable, &p.parsedProperties, keySpan)
		case parts[kwLetIdx] != "":
			if isTemplateElement {
				keySpan := createKeySpan(parts[kwLetIdx], identifier)
				t.parseVariable(identifier, value, srcSpan, keySpan, attr.ValueSpan, &p.variables)
			} else {
				t.reportError(`"let-" is only supported on ng-template elements.`, srcSpan)
			}
		case parts[kwRefIdx] != "":
			keySpan := createKeySpan(parts[kwRefIdx], identifier)
			t.parseReference(identifier, value, srcSpan, keySpan, attr.ValueSpan, &p.references)
		case parts[kwOnIdx] != "":
			keySpan := createKeySpan(parts[kwOnIdx], identifier)
			var events []*template_parser.ParsedEvent
			t.bindingParser.ParseEvent(identifier, value, false, srcSpan, handlerSpan, &matchable, &events, keySpan)
			p.boundEvents = appendEvents(p.boundEvents, events)
		case parts[kwBindonIdx] != "":
			keySpan := createKeySpan(parts[kwBindonIdx], identifier)
			t.bindingParser.ParsePropertyBinding(identifier, value, false, true, srcSpan, absoluteOffset, attr.ValueSpan, &matchable, &p.parsedProperties, keySpan)
			t.parseAssignmentEvent(identifier, value, srcSpan, handlerSpan, keySpan, p)
		case parts[kwAtIdx] != "":
			keySpan := createKeySpan("", name)
			t.bindingParser.ParseLiteralAttr(name, &value, srcSpan, absoluteOffset, attr.ValueSpan, &matchable, &p.parsedProperties, keySpan)
		}
		return true
	}

	var delims *bindingDelims
	switch {
	case strings.HasPrefix(name, bananaBoxDelims.start):
		delims = &bananaBoxDelims
	case strings.HasPrefix(name, propertyDelims.start):
		delims = &propertyDelims
	case strings.HasPrefix(name, eventDelims.start):
		delims = &eventDelims
	}
	if delims != nil && strings.HasSuffix(name, delims.end) && len(name) > len(delims.start)+len(delims.end) {
		identifier := name[len(delims.start) : len(name)-len(delims.end)]
		keySpan := createKeySpan(delims.start, identifier)
		switch *delims {
		case bananaBoxDelims:
			t.bindingParser.ParsePropertyBinding(identifier, value, false, true, srcSpan, absoluteOffset, attr.ValueSpan, &matchable, &p.parsedProperties, keySpan)
			t.parseAssignmentEvent(identifier, value, srcSpan, handlerSpan, keySpan, p)
		case propertyDelims:
			t.bindingParser.ParsePropertyBinding(identifier, value, false, false, srcSpan, absoluteOffset, attr.ValueSpan, &matchable, &p.parsedProperties, keySpan)
		default:
			var events []*template_parser.ParsedEvent
			t.bindingParser.ParseEvent(identifier, value, false, srcSpan, handlerSpan, &matchable, &events, keySpan)
			p.boundEvents = appendEvents(p.boundEvents, events)
		}
		return true
	}

	keySpan := createKeySpan("", name)
	return t.bindingParser.ParsePropertyInterpolation(name, value, srcSpan, attr.ValueSpan, &matchable, &p.parsedProperties, keySpan)
}

// parseAssignmentEvent adds the `nameChange` half of a two-way binding.
func (t *htmlAstToIvyAst) parseAssignmentEvent(name, expression string, sourceSpan, handlerSpan, keySpan *util.ParseSourceSpan, p *preparedAttributes) {
	var (
		matchable []template_parser.MatchableAttr
		events    []*template_parser.ParsedEvent
	)
	t.bindingParser.ParseEvent(name+"Change", expression, true, sourceSpan, handlerSpan, &matchable, &events, keySpan)
	p.boundEvents = appendEvents(p.boundEvents, events)
}

func (t *htmlAstToIvyAst) parseVariable(identifier, value string, sourceSpan, keySpan, valueSpan *util.ParseSourceSpan, variables *[]*render3.Variable) {
	switch {
	case strings.Contains(identifier, "-"):
		t.reportError(`"-" is not allowed in variable names`, sourceSpan)
	case identifier == "":
		t.reportError("Variable does not have a name", sourceSpan)
	}
	*variables = append(*variables, &render3.Variable{
		Name: identifier, Value: value, Span: sourceSpan, KeySpan: keySpan, ValueSpan: valueSpan,
	})
}

// parseReference keeps the first of several references with the same name.
func (t *htmlAstToIvyAst) parseReference(identifier, value string, sourceSpan, keySpan, valueSpan *util.ParseSourceSpan, references *[]*render3.Reference) {
	switch {
	case strings.Contains(identifier, "-"):
		t.reportError(`"-" is not allowed in reference names`, sourceSpan)
	case identifier == "":
		t.reportError("Reference does not have a name", sourceSpan)
	default:
		for _, ref := range *references {
			if ref.Name == identifier {
				t.reportError(fmt.Sprintf(`Reference "#%s" is defined more than once`, identifier), sourceSpan)
				return
			}
		}
	}
	*references = append(*references, &render3.Reference{
		Name: identifier, Value: value, Span: sourceSpan, KeySpan: keySpan, ValueSpan: valueSpan,
	})
}

func (t *htmlAstToIvyAst) categorizePropertyAttributes(
	props []*template_parser.ParsedProperty,
	i18nMeta map[string]render3.I18nMeta,
) (literal []*render3.TextAttribute, bound []*render3.BoundAttribute) {
	for _, prop := range props {
		i18n := i18nMeta[prop.Name]
		if prop.IsLiteral() {
			value := ""
			if prop.Expression != nil && prop.Expression.Source != nil {
				value = *prop.Expression.Source
			}
			literal = append(literal, &render3.TextAttribute{
				Name: prop.Name, Value: value, Span: prop.SourceSpan, KeySpan: prop.KeySpan, ValueSpan: prop.ValueSpan, I18n: i18n,
			})
			continue
		}
		bound = append(bound, render3.BoundAttributeFromProperty(t.bindingParser.CreateBoundElementProperty(prop), i18n))
	}
	return literal, bound
}

// wrapInTemplate creates the template for a structural attribute. The wrapped element's
// attributes, inputs and outputs are copied onto the template so directives can match
// them there; i18n metadata stays on the wrapped node.
func (t *htmlAstToIvyAst) wrapInTemplate(
	node render3.Node,
	templateProperties []*template_parser.ParsedProperty,
	templateVariables []*render3.Variable,
	i18nMeta map[string]render3.I18nMeta,
) *render3.Template {
	literal, bound := t.categorizePropertyAttributes(templateProperties, i18nMeta)
	templateAttrs := make([]render3.TemplateAttr, 0, len(literal)+len(bound))
	for _, attr := range literal {
		templateAttrs = append(templateAttrs, attr)
	}
	for _, attr := range bound {
		templateAttrs = append(templateAttrs, attr)
	}

	tpl := &render3.Template{
		TemplateAttrs: templateAttrs,
		Children:      []render3.Node{node},
		Variables:     templateVariables,
	}
	switch n := node.(type) {
	case *render3.Element:
		tpl.TagName = n.Name
		tpl.Attributes, tpl.Inputs, tpl.Outputs = n.Attributes, n.Inputs, n.Outputs
		tpl.Span, tpl.StartSourceSpan, tpl.EndSourceSpan = n.Span, n.StartSourceSpan, n.EndSourceSpan
	case *render3.Template:
		tpl.Span, tpl.StartSourceSpan, tpl.EndSourceSpan = n.Span, n.StartSourceSpan, n.EndSourceSpan
	case *render3.Content:
		tpl.TagName = "ng-content"
		tpl.Span, tpl.StartSourceSpan, tpl.EndSourceSpan = n.Span, n.StartSourceSpan, n.EndSourceSpan
	default:
		util.Failf("cannot wrap %T in a template", node)
	}
	return tpl
}

func (t *htmlAstToIvyAst) visitText(text *ml_parser.Text) render3.Node {
	if !text.Tokens.HasInterpolation() {
		return &render3.Text{Value: text.Value, Span: text.Span}
	}
	return t.visitTextWithInterpolation(text.Value, text.Span, text.I18n)
}

func (t *htmlAstToIvyAst) visitTextWithInterpolation(value string, span *util.ParseSourceSpan, i18n render3.I18nMeta) render3.Node {
	if expr := t.bindingParser.ParseInterpolation(value, span); expr != nil {
		return &render3.BoundText{Value: expr, Span: span, I18n: i18n}
	}
	return &render3.Text{Value: value, Span: span}
}

// visitExpansion builds an Icu. Vars are the switch values of this ICU and any nested
// one, keyed VAR_<TYPE> with a numeric suffix on repeats. Placeholders are the
// interpolations found in the case bodies.
func (t *htmlAstToIvyAst) visitExpansion(expansion *ml_parser.Expansion) render3.Node {
	icu := &render3.Icu{
		Vars:         make(map[string]*render3.BoundText),
		Placeholders: make(map[string]render3.Node),
		Span:         expansion.Span,
		I18n:         expansion.I18n,
	}
	reg := &placeholderRegistry{seen: make(map[string]int), byText: make(map[string]string)}
	t.collectIcuParts(expansion, icu, reg)
	return icu
}

func (t *htmlAstToIvyAst) collectIcuParts(expansion *ml_parser.Expansion, icu *render3.Icu, reg *placeholderRegistry) {
	name := reg.unique(icuVarPrefix + strings.TrimSpace(expansion.Type))
	ast := t.bindingParser.ParseInterpolationExpression(expansion.SwitchValue, expansion.SwitchValueSourceSpan)
	icu.Vars[name] = &render3.BoundText{Value: ast, Span: expansion.SwitchValueSourceSpan}

	var collect func(nodes []ml_parser.Node)
	collect = func(nodes []ml_parser.Node) {
		for _, node := range nodes {
			switch n := node.(type) {
			case *ml_parser.Text:
				for _, tok := range n.Tokens {
					if tok.Type != ml_parser.TokenTypeINTERPOLATION {
						continue
					}
					text := strings.Join(tok.Parts, "")
					ph, fresh := reg.forText(icuInterpolationPh, text)
					if fresh {
						icu.Placeholders[ph] = t.visitTextWithInterpolation(text, tok.SourceSpan, nil)
					}
				}
			case *ml_parser.Element:
				collect(n.Children)
			case *ml_parser.Block:
				collect(n.Children)
			case *ml_parser.Expansion:
				t.collectIcuParts(n, icu, reg)
			case *ml_parser.Comment, *ml_parser.LetDeclaration:
			default:
				util.Failf("unexpected node %T in ICU case", node)
			}
		}
	}
	for _, c := range expansion.Cases {
		collect(c.Expression)
	}
}

// placeholderRegistry hands out unique placeholder names within one ICU message.
type placeholderRegistry struct {
	seen   map[string]int
	byText map[string]string
}

func (r *placeholderRegistry) unique(name string) string {
	name = strings.ToUpper(nonWordPattern.ReplaceAllString(name, "_"))
	n, ok := r.seen[name]
	r.seen[name] = n + 1
	if !ok {
		return name
	}
	return fmt.Sprintf("%s_%d", name, n)
}

// forText reuses the placeholder already assigned to the same text.
func (r *placeholderRegistry) forText(name, text string) (string, bool) {
	if ph, ok := r.byText[text]; ok {
		return ph, false
	}
	ph := r.unique(name)
	r.byText[text] = ph
	return ph, true
}

var nonWordPattern = regexp.MustCompile(`[^A-Za-z0-9_]`)

func (t *htmlAstToIvyAst) visitBlock(block *ml_parser.Block, siblings []ml_parser.Node, index int) render3.Node {
	var (
		node render3.Node
		errs []*util.ParseError
	)
	convert := render3.NodeConverter(t.visitAll)

	switch block.Name {
	case "defer":
		res := render3.CreateDeferredBlock(block, t.findConnectedBlocks(index, siblings, render3.IsConnectedDeferLoopBlock), convert, t.bindingParser)
		node, errs = res.Node, res.Errors
	case "switch":
		res := render3.CreateSwitchBlock(block, convert, t.bindingParser)
		node, errs = res.Node, res.Errors
	case "for":
		res := render3.CreateForLoop(block, t.findConnectedBlocks(index, siblings, render3.IsConnectedForLoopBlock), convert, t.bindingParser)
		if res.Node != nil {
			node = res.Node
		}
		errs = res.Errors
	case "if":
		res := render3.CreateIfBlock(block, t.findConnectedBlocks(index, siblings, render3.IsConnectedIfLoopBlock), convert, t.bindingParser)
		node, errs = res.Node, res.Errors
	default:
		var msg string
		switch {
		case render3.IsConnectedDeferLoopBlock(block.Name):
			msg = fmt.Sprintf("@%s block can only be used after an @defer block.", block.Name)
		case render3.IsConnectedForLoopBlock(block.Name):
			msg = fmt.Sprintf("@%s block can only be used after an @for block.", block.Name)
		case render3.IsConnectedIfLoopBlock(block.Name):
			msg = fmt.Sprintf("@%s block can only be used after an @if or @else if block.", block.Name)
		default:
			msg = fmt.Sprintf("Unrecognized block @%s.", block.Name)
		}
		t.processedNodes[block] = true
		node = &render3.UnknownBlock{Name: block.Name, Span: block.Span, NameSpan: block.NameSpan}
		errs = []*util.ParseError{util.NewParseError(block.Span, msg)}
	}

	t.errors = append(t.errors, errs...)
	return node
}

// findConnectedBlocks collects the blocks following siblings[primaryIndex] that belong
// to it. Comments and whitespace text between them are skipped and the text is dropped.
func (t *htmlAstToIvyAst) findConnectedBlocks(primaryIndex int, siblings []ml_parser.Node, isConnected func(string) bool) []*ml_parser.Block {
	var related []*ml_parser.Block
	for _, node := range siblings[primaryIndex+1:] {
		switch n := node.(type) {
		case *ml_parser.Comment:
			continue
		case *ml_parser.Text:
			if strings.TrimSpace(n.Value) == "" {
				t.processedNodes[n] = true
				continue
			}
		case *ml_parser.Block:
			if isConnected(n.Name) {
				related = append(related, n)
				t.processedNodes[n] = true
				continue
			}
		}
		break
	}
	return related
}

func (t *htmlAstToIvyAst) visitLetDeclaration(decl *ml_parser.LetDeclaration) render3.Node {
	value := t.bindingParser.ParseBinding(decl.Value, false, decl.ValueSpan, decl.ValueSpan.Start.Offset)
	if _, empty := value.AST.(*expression_parser.EmptyExpr); empty && len(value.Errors) == 0 {
		t.reportError("@let declaration value cannot be empty", decl.ValueSpan)
	}
	return &render3.LetDeclaration{
		Name:      decl.Name,
		Value:     value,
		Span:      decl.Span,
		NameSpan:  decl.NameSpan,
		ValueSpan: decl.ValueSpan,
	}
}

// visitAllNonBindable converts the contents of an ngNonBindable element: no bindings,
// and blocks degrade to their literal text.
func visitAllNonBindable(nodes []ml_parser.Node) []render3.Node {
	var out []render3.Node
	for _, node := range nodes {
		switch n := node.(type) {
		case *ml_parser.Element:
			switch template_parser.PreparseElement(n).Type {
			case template_parser.PreparsedElementTypeScript,
				template_parser.PreparsedElementTypeStyle,
				template_parser.PreparsedElementTypeStylesheet:
				continue
			}
			attrs := make([]*render3.TextAttribute, len(n.Attrs))
			for i, attr := range n.Attrs {
				attrs[i] = textAttributeOf(attr)
			}
			out = append(out, &render3.Element{
				Name:            n.Name,
				Attributes:      attrs,
				Children:        visitAllNonBindable(n.Children),
				IsSelfClosing:   n.IsSelfClosing,
				Span:            n.Span,
				StartSourceSpan: n.StartSourceSpan,
				EndSourceSpan:   n.EndSourceSpan,
				IsVoid:          n.IsVoid,
			})
		case *ml_parser.Text:
			out = append(out, &render3.Text{Value: n.Value, Span: n.Span})
		case *ml_parser.Block:
			out = append(out, &render3.Text{Value: n.StartSourceSpan.String(), Span: n.StartSourceSpan})
			out = append(out, visitAllNonBindable(n.Children)...)
			if n.EndSourceSpan != nil {
				out = append(out, &render3.Text{Value: n.EndSourceSpan.String(), Span: n.EndSourceSpan})
			}
		case *ml_parser.LetDeclaration:
			out = append(out, &render3.Text{Value: fmt.Sprintf("@let %s = %s;", n.Name, n.Value), Span: n.Span})
		case *ml_parser.Comment, *ml_parser.Expansion:
		default:
			util.Failf("unexpected child node %T", node)
		}
	}
	return out
}

func textAttributeOf(attr *ml_parser.Attribute) *render3.TextAttribute {
	return &render3.TextAttribute{
		Name:      attr.Name,
		Value:     attr.Value,
		Span:      attr.Span,
		KeySpan:   attr.KeySpan,
		ValueSpan: attr.ValueSpan,
		I18n:      attr.I18n,
	}
}

func appendEvents(dst []*render3.BoundEvent, events []*template_parser.ParsedEvent) []*render3.BoundEvent {
	for _, e := range events {
		dst = append(dst, render3.BoundEventFromParsedEvent(e))
	}
	return dst
}

// normalizeAttributeName strips the `data-` prefix.
func normalizeAttributeName(name string) string {
	if len(name) >= 5 && strings.EqualFold(name[:5], "data-") {
		return name[5:]
	}
	return name
}

// textContents returns the text of an element whose only child is a text node.
func textContents(el *ml_parser.Element) (string, bool) {
	if len(el.Children) != 1 {
		return "", false
	}
	text, ok := el.Children[0].(*ml_parser.Text)
	if !ok {
		return "", false
	}
	return text.Value, true
}
