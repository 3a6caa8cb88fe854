package render3

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"ngc-bind/packages/compiler/src/core"
	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/template_parser"
	"ngc-bind/packages/compiler/src/util"
)

var (
	forLoopExpressionPattern = regexp.MustCompile(`^\s*([0-9A-Za-z_$]*)\s+of\s+([\S\s]*)`)
	forLoopTrackPattern      = regexp.MustCompile(`^track\s+([\S\s]*)`)
	forLoopLetPattern        = regexp.MustCompile(`^let\s+([\S\s]*)`)
	conditionalAliasPattern  = regexp.MustCompile(`^(as\s+)(.*)`)
	elseIfPattern            = regexp.MustCompile(`^else[^\S\r\n]+if`)
	identifierPattern        = regexp.MustCompile(`(?i)^[$A-Z_][0-9A-Z_$]*$`)
	surroundingSpacePattern  = regexp.MustCompile(`(\s*)(\S+)(\s*)`)
)

// forLoopContextVariables are the implicit @for variables, in declaration order.
var forLoopContextVariables = []string{"$index", "$first", "$last", "$even", "$odd", "$count"}

func isForLoopContextVariable(name string) bool {
	return slices.Contains(forLoopContextVariables, name)
}

func IsConnectedForLoopBlock(name string) bool {
	return name == "empty"
}

func IsConnectedIfLoopBlock(name string) bool {
	return name == "else" || elseIfPattern.MatchString(name)
}

type CreateIfBlockResult struct {
	Node   *IfBlock
	Errors []*util.ParseError
}

// CreateIfBlock builds an @if block with its @else if and @else branches.
func CreateIfBlock(
	ast *ml_parser.Block,
	connectedBlocks []*ml_parser.Block,
	convert NodeConverter,
	bindingParser *template_parser.BindingParser,
) CreateIfBlockResult {
	errs := validateIfConnectedBlocks(connectedBlocks)
	var branches []*IfBlockBranch

	if params := parseConditionalBlockParameters(ast, &errs, bindingParser); params != nil {
		branches = append(branches, &IfBlockBranch{
			BlockNode:       blockNodeOf(ast),
			Expression:      params.expression,
			Children:        convert(ast.Children),
			ExpressionAlias: params.alias,
			I18n:            ast.I18n,
		})
	}

	for _, block := range connectedBlocks {
		switch {
		case elseIfPattern.MatchString(block.Name):
			if params := parseConditionalBlockParameters(block, &errs, bindingParser); params != nil {
				branches = append(branches, &IfBlockBranch{
					BlockNode:       blockNodeOf(block),
					Expression:      params.expression,
					Children:        convert(block.Children),
					ExpressionAlias: params.alias,
					I18n:            block.I18n,
				})
			}
		case block.Name == "else":
			branches = append(branches, &IfBlockBranch{
				BlockNode: blockNodeOf(block),
				Children:  convert(block.Children),
				I18n:      block.I18n,
			})
		}
	}

	node := &IfBlock{BlockNode: blockNodeOf(ast), Branches: branches}
	if len(branches) > 0 {
		first, last := branches[0], branches[len(branches)-1]
		node.Span = util.NewParseSourceSpan(first.StartSourceSpan.Start, last.Span.End, nil, nil)
		node.EndSourceSpan = last.EndSourceSpan
	}
	return CreateIfBlockResult{Node: node, Errors: errs}
}

type CreateForLoopResult struct {
	// Node is nil when the loop parameters could not be parsed.
	Node   *ForLoopBlock
	Errors []*util.ParseError
}

// CreateForLoop builds a @for block and its optional @empty block.
func CreateForLoop(
	ast *ml_parser.Block,
	connectedBlocks []*ml_parser.Block,
	convert NodeConverter,
	bindingParser *template_parser.BindingParser,
) CreateForLoopResult {
	var errs []*util.ParseError
	params := parseForLoopParameters(ast, &errs, bindingParser)

	var empty *ForLoopBlockEmpty
	for _, block := range connectedBlocks {
		switch {
		case block.Name != "empty":
			errs = append(errs, util.NewParseError(block.Span, fmt.Sprintf(`Unrecognized @for loop block "%s"`, block.Name)))
		case empty != nil:
			errs = append(errs, util.NewParseError(block.Span, "@for loop can only have one @empty block"))
		case len(block.Parameters) > 0:
			errs = append(errs, util.NewParseError(block.Span, "@empty block cannot have parameters"))
		default:
			empty = &ForLoopBlockEmpty{
				BlockNode: blockNodeOf(block),
				Children:  convert(block.Children),
				I18n:      block.I18n,
			}
		}
	}

	if params == nil {
		return CreateForLoopResult{Errors: errs}
	}
	if params.trackBy == nil {
		errs = append(errs, util.NewParseError(ast.StartSourceSpan, `@for loop must have a "track" expression`))
		return CreateForLoopResult{Errors: errs}
	}

	endSpan := ast.EndSourceSpan
	if empty != nil {
		endSpan = empty.EndSourceSpan
	}
	end := ast.Span.End
	if endSpan != nil {
		end = endSpan.End
	}
	if hasPipe(params.trackBy.expression) {
		errs = append(errs, util.NewParseError(params.trackBy.keywordSpan, "Cannot use pipes in track expressions"))
	}
	node := &ForLoopBlock{
		BlockNode: BlockNode{
			NameSpan:        ast.NameSpan,
			Span:            util.NewParseSourceSpan(ast.Span.Start, end, nil, nil),
			StartSourceSpan: ast.StartSourceSpan,
			EndSourceSpan:   endSpan,
		},
		Item:             params.item,
		Expression:       params.expression,
		TrackBy:          params.trackBy.expression,
		TrackKeywordSpan: params.trackBy.keywordSpan,
		ContextVariables: params.context,
		Children:         convert(ast.Children),
		Empty:            empty,
		MainBlockSpan:    ast.Span,
		I18n:             ast.I18n,
	}
	return CreateForLoopResult{Node: node, Errors: errs}
}

type CreateSwitchBlockResult struct {
	Node   *SwitchBlock
	Errors []*util.ParseError
}

// CreateSwitchBlock builds a @switch block. @default is moved after the @case blocks.
func CreateSwitchBlock(
	ast *ml_parser.Block,
	convert NodeConverter,
	bindingParser *template_parser.BindingParser,
) CreateSwitchBlockResult {
	errs := validateSwitchBlock(ast)

	var primary expression_parser.AST
	if len(ast.Parameters) > 0 {
		primary = parseBlockParameterToBinding(ast.Parameters[0], bindingParser, "").AST
	} else {
		primary = bindingParser.ParseBinding("", false, ast.Span, 0).AST
	}

	var (
		cases       []*SwitchBlockCase
		unknown     []*UnknownBlock
		defaultCase *SwitchBlockCase
	)
	for _, child := range ast.Children {
		block, ok := child.(*ml_parser.Block)
		if !ok {
			continue
		}
		if (block.Name != "case" || len(block.Parameters) == 0) && block.Name != "default" {
			unknown = append(unknown, &UnknownBlock{Name: block.Name, Span: block.Span, NameSpan: block.NameSpan})
			continue
		}

		c := &SwitchBlockCase{
			BlockNode: blockNodeOf(block),
			Children:  convert(block.Children),
			I18n:      block.I18n,
		}
		if block.Name == "case" {
			c.Expression = parseBlockParameterToBinding(block.Parameters[0], bindingParser, "").AST
			cases = append(cases, c)
		} else {
			defaultCase = c
		}
	}
	if defaultCase != nil {
		cases = append(cases, defaultCase)
	}

	return CreateSwitchBlockResult{
		Node: &SwitchBlock{
			BlockNode:     blockNodeOf(ast),
			Expression:    primary,
			Cases:         cases,
			UnknownBlocks: unknown,
		},
		Errors: errs,
	}
}

type forLoopParameters struct {
	item       *Variable
	trackBy    *trackByExpression
	expression *expression_parser.ASTWithSource
	context    []*Variable
}

type trackByExpression struct {
	expression  *expression_parser.ASTWithSource
	keywordSpan *util.ParseSourceSpan
}

type conditionalParameters struct {
	expression expression_parser.AST
	alias      *Variable
}

func parseForLoopParameters(block *ml_parser.Block, errs *[]*util.ParseError, bindingParser *template_parser.BindingParser) *forLoopParameters {
	if len(block.Parameters) == 0 {
		*errs = append(*errs, util.NewParseError(block.StartSourceSpan, "@for loop does not have an expression"))
		return nil
	}

	expressionParam, secondary := block.Parameters[0], block.Parameters[1:]
	expression, ok := stripOptionalParentheses(expressionParam, errs)
	if !ok {
		return nil
	}
	match := forLoopExpressionPattern.FindStringSubmatch(expression)
	if match == nil || strings.TrimSpace(match[2]) == "" {
		*errs = append(*errs, util.NewParseError(expressionParam.Span,
			`Cannot parse expression. @for loop expression must match the pattern "<identifier> of <expression>"`))
		return nil
	}

	itemName, rawExpression := match[1], match[2]
	if isForLoopContextVariable(itemName) {
		*errs = append(*errs, util.NewParseError(expressionParam.Span,
			"@for loop item name cannot be one of "+strings.Join(forLoopContextVariables, ", ")+"."))
	}

	// The item name may be preceded by the stripped parenthesis.
	nameStart := strings.Index(expressionParam.Expression, itemName)
	itemSpan := subSpan(expressionParam.Span, max(nameStart, 0), len(itemName))
	result := &forLoopParameters{
		item:       &Variable{Name: itemName, Value: "$implicit", Span: itemSpan, KeySpan: itemSpan},
		expression: parseBlockParameterToBinding(expressionParam, bindingParser, rawExpression),
	}

	// Every context variable exists under its own name, at an empty span after the
	// block start. `let` aliases are added after them.
	afterStart := util.NewParseSourceSpan(block.StartSourceSpan.End, block.StartSourceSpan.End, nil, nil)
	for _, name := range forLoopContextVariables {
		result.context = append(result.context, &Variable{Name: name, Value: name, Span: afterStart, KeySpan: afterStart})
	}

	for _, param := range secondary {
		if letMatch := forLoopLetPattern.FindStringSubmatch(param.Expression); letMatch != nil {
			variablesSpan := util.NewParseSourceSpan(
				param.Span.Start.MoveBy(len(letMatch[0])-len(letMatch[1])),
				param.Span.End,
				nil, nil,
			)
			parseLetParameter(param.Span, letMatch[1], variablesSpan, itemName, &result.context, errs)
			continue
		}

		if trackMatch := forLoopTrackPattern.FindStringSubmatch(param.Expression); trackMatch != nil {
			if result.trackBy != nil {
				*errs = append(*errs, util.NewParseError(param.Span, `@for loop can only have one "track" expression`))
				continue
			}
			expr := parseBlockParameterToBinding(param, bindingParser, trackMatch[1])
			if _, empty := expr.AST.(*expression_parser.EmptyExpr); empty {
				*errs = append(*errs, util.NewParseError(block.StartSourceSpan, `@for loop must have a "track" expression`))
			}
			result.trackBy = &trackByExpression{expression: expr, keywordSpan: subSpan(param.Span, 0, len("track"))}
			continue
		}

		*errs = append(*errs, util.NewParseError(param.Span, fmt.Sprintf(`Unrecognized @for loop parameter "%s"`, param.Expression)))
	}
	return result
}

func hasPipe(ast expression_parser.AST) bool {
	found := false
	expression_parser.Walk(ast, func(n expression_parser.AST) bool {
		if _, ok := n.(*expression_parser.BindingPipe); ok {
			found = true
		}
		return !found
	})
	return found
}

// parseLetParameter parses `a = $index, b = $count` into aliases of context variables.
func parseLetParameter(
	sourceSpan *util.ParseSourceSpan,
	expression string,
	span *util.ParseSourceSpan,
	loopItemName string,
	context *[]*Variable,
	errs *[]*util.ParseError,
) {
	start := span.Start
	for _, part := range strings.Split(expression, ",") {
		kv := strings.Split(part, "=")
		var name, variableName string
		if len(kv) == 2 {
			name, variableName = strings.TrimSpace(kv[0]), strings.TrimSpace(kv[1])
		}

		switch {
		case name == "" || variableName == "":
			*errs = append(*errs, util.NewParseError(sourceSpan,
				`Invalid @for loop "let" parameter. Parameter should match the pattern "<name> = <variable name>"`))
		case !isForLoopContextVariable(variableName):
			*errs = append(*errs, util.NewParseError(sourceSpan, fmt.Sprintf(
				`Unknown "let" parameter variable "%s". The allowed variables are: %s`,
				variableName, strings.Join(forLoopContextVariables, ", "))))
		case name == loopItemName:
			*errs = append(*errs, util.NewParseError(sourceSpan, fmt.Sprintf(
				`Invalid @for loop "let" parameter. Variable cannot be called "%s"`, loopItemName)))
		case slices.ContainsFunc(*context, func(v *Variable) bool { return v.Name == name }):
			*errs = append(*errs, util.NewParseError(sourceSpan, fmt.Sprintf(`Duplicate "let" parameter variable "%s"`, variableName)))
		default:
			keyMatch := surroundingSpacePattern.FindStringSubmatch(kv[0])
			keySpan := util.NewParseSourceSpan(
				start.MoveBy(len(keyMatch[1])),
				start.MoveBy(len(keyMatch[1])+len(keyMatch[2])),
				nil, nil,
			)
			valueMatch := surroundingSpacePattern.FindStringSubmatch(kv[1])
			valueStart := len(kv[0]) + 1 + len(valueMatch[1])
			valueSpan := util.NewParseSourceSpan(
				start.MoveBy(valueStart),
				start.MoveBy(valueStart+len(valueMatch[2])),
				nil, nil,
			)
			*context = append(*context, &Variable{
				Name:      name,
				Value:     variableName,
				Span:      util.NewParseSourceSpan(keySpan.Start, valueSpan.End, nil, nil),
				KeySpan:   keySpan,
				ValueSpan: valueSpan,
			})
		}
		// Skip the part and its comma.
		start = start.MoveBy(len(part) + 1)
	}
}

func validateIfConnectedBlocks(connectedBlocks []*ml_parser.Block) []*util.ParseError {
	var errs []*util.ParseError
	hasElse := false
	for i, block := range connectedBlocks {
		switch {
		case block.Name == "else":
			switch {
			case hasElse:
				errs = append(errs, util.NewParseError(block.StartSourceSpan, "Conditional can only have one @else block"))
			case i < len(connectedBlocks)-1:
				errs = append(errs, util.NewParseError(block.StartSourceSpan, "@else block must be last inside the conditional"))
			case len(block.Parameters) > 0:
				errs = append(errs, util.NewParseError(block.StartSourceSpan, "@else block cannot have parameters"))
			}
			hasElse = true
		case !elseIfPattern.MatchString(block.Name):
			errs = append(errs, util.NewParseError(block.StartSourceSpan, "Unrecognized conditional block @"+block.Name))
		}
	}
	return errs
}

func validateSwitchBlock(ast *ml_parser.Block) []*util.ParseError {
	var errs []*util.ParseError
	if len(ast.Parameters) != 1 {
		return append(errs, util.NewParseError(ast.StartSourceSpan, "@switch block must have exactly one parameter"))
	}

	hasDefault := false
	for _, child := range ast.Children {
		switch n := child.(type) {
		case *ml_parser.Comment:
			continue
		case *ml_parser.Text:
			if strings.TrimSpace(n.Value) == "" {
				continue
			}
		}

		block, ok := child.(*ml_parser.Block)
		if !ok || (block.Name != "case" && block.Name != "default") {
			errs = append(errs, util.NewParseError(child.SourceSpan(), "@switch block can only contain @case and @default blocks"))
			continue
		}
		if block.Name == "default" {
			switch {
			case hasDefault:
				errs = append(errs, util.NewParseError(block.StartSourceSpan, "@switch block can only have one @default block"))
			case len(block.Parameters) > 0:
				errs = append(errs, util.NewParseError(block.StartSourceSpan, "@default block cannot have parameters"))
			}
			hasDefault = true
		} else if len(block.Parameters) != 1 {
			errs = append(errs, util.NewParseError(block.StartSourceSpan, "@case block must have exactly one parameter"))
		}
	}
	return errs
}

// parseBlockParameterToBinding parses part of a block parameter, or all of it when part
// is empty, keeping the source offsets of the part.
func parseBlockParameterToBinding(
	param *ml_parser.BlockParameter,
	bindingParser *template_parser.BindingParser,
	part string,
) *expression_parser.ASTWithSource {
	start, end := 0, len(param.Expression)
	if part != "" {
		start = max(strings.LastIndex(param.Expression, part), 0)
		end = start + len(part)
	}
	return bindingParser.ParseBinding(param.Expression[start:end], false, param.Span, param.Span.Start.Offset+start)
}

func parseConditionalBlockParameters(
	block *ml_parser.Block,
	errs *[]*util.ParseError,
	bindingParser *template_parser.BindingParser,
) *conditionalParameters {
	if len(block.Parameters) == 0 {
		*errs = append(*errs, util.NewParseError(block.StartSourceSpan, "Conditional block does not have an expression"))
		return nil
	}

	result := &conditionalParameters{
		expression: parseBlockParameterToBinding(block.Parameters[0], bindingParser, "").AST,
	}
	for _, param := range block.Parameters[1:] {
		aliasMatch := conditionalAliasPattern.FindStringSubmatch(param.Expression)
		switch {
		case aliasMatch == nil:
			*errs = append(*errs, util.NewParseError(param.Span, fmt.Sprintf(`Unrecognized conditional parameter "%s"`, param.Expression)))
		case block.Name != "if" && !elseIfPattern.MatchString(block.Name):
			*errs = append(*errs, util.NewParseError(param.Span, `"as" expression is only allowed on @if and @else if blocks`))
		case result.alias != nil:
			*errs = append(*errs, util.NewParseError(param.Span, `Conditional can only have one "as" expression`))
		default:
			name := strings.TrimSpace(aliasMatch[2])
			if !identifierPattern.MatchString(name) {
				*errs = append(*errs, util.NewParseError(param.Span, `"as" expression must be a valid JavaScript identifier`))
				continue
			}
			span := subSpan(param.Span, len(aliasMatch[1]), len(name))
			result.alias = &Variable{Name: name, Value: name, Span: span, KeySpan: span}
		}
	}
	return result
}

// stripOptionalParentheses removes balanced parentheses wrapping the whole parameter.
func stripOptionalParentheses(param *ml_parser.BlockParameter, errs *[]*util.ParseError) (string, bool) {
	expression := param.Expression
	openParens, start, end := 0, 0, len(expression)

	for i := 0; i < len(expression); i++ {
		ch := rune(expression[i])
		if ch == core.CharLPAREN {
			start = i + 1
			openParens++
		} else if !core.IsWhitespace(ch) {
			break
		}
	}
	if openParens == 0 {
		return expression, true
	}

	for i := len(expression) - 1; i >= 0; i-- {
		ch := rune(expression[i])
		if ch == core.CharRPAREN {
			end = i
			openParens--
			if openParens == 0 {
				break
			}
		} else if !core.IsWhitespace(ch) {
			break
		}
	}
	if openParens != 0 {
		*errs = append(*errs, util.NewParseError(param.Span, "Unclosed parentheses in expression"))
		return "", false
	}
	return expression[start:end], true
}
