package render3

import (
	"fmt"
	"regexp"

	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/template_parser"
	"ngc-bind/packages/compiler/src/util"
)

var (
	prefetchWhenPattern     = regexp.MustCompile(`^prefetch\s+when\s`)
	prefetchOnPattern       = regexp.MustCompile(`^prefetch\s+on\s`)
	hydrateWhenPattern      = regexp.MustCompile(`^hydrate\s+when\s`)
	hydrateOnPattern        = regexp.MustCompile(`^hydrate\s+on\s`)
	hydrateNeverPattern     = regexp.MustCompile(`^hydrate\s+never(\s*)$`)
	minimumParameterPattern = regexp.MustCompile(`^minimum\s`)
	afterParameterPattern   = regexp.MustCompile(`^after\s`)
	whenParameterPattern    = regexp.MustCompile(`^when\s`)
	onParameterPattern      = regexp.MustCompile(`^on\s`)
)

// NodeConverter turns generic children into semantic nodes. The transformer passes
// itself in so blocks can convert their bodies.
type NodeConverter func(nodes []ml_parser.Node) []Node

func IsConnectedDeferLoopBlock(name string) bool {
	return name == "placeholder" || name == "loading" || name == "error"
}

type CreateDeferredBlockResult struct {
	Node   *DeferredBlock
	Errors []*util.ParseError
}

// CreateDeferredBlock builds an @defer block and its connected @placeholder, @loading and
// @error blocks. Connected blocks are converted before the triggers are parsed so that
// reference triggers can be validated against the placeholder.
func CreateDeferredBlock(
	ast *ml_parser.Block,
	connectedBlocks []*ml_parser.Block,
	convert NodeConverter,
	bindingParser *template_parser.BindingParser,
) CreateDeferredBlockResult {
	var errs []*util.ParseError
	placeholder, loading, errorBlock := parseConnectedBlocks(connectedBlocks, &errs, convert)
	triggers, prefetchTriggers, hydrateTriggers := parsePrimaryTriggers(ast, bindingParser, &errs, placeholder)

	// The main span covers the connected blocks too.
	lastEnd := ast.EndSourceSpan
	endOfLast := ast.Span.End
	if len(connectedBlocks) > 0 {
		last := connectedBlocks[len(connectedBlocks)-1]
		lastEnd = last.EndSourceSpan
		endOfLast = last.Span.End
	}

	node := &DeferredBlock{
		BlockNode: BlockNode{
			NameSpan:        ast.NameSpan,
			Span:            util.NewParseSourceSpan(ast.Span.Start, endOfLast, nil, nil),
			StartSourceSpan: ast.StartSourceSpan,
			EndSourceSpan:   lastEnd,
		},
		Children:         convert(ast.Children),
		Triggers:         triggers,
		PrefetchTriggers: prefetchTriggers,
		HydrateTriggers:  hydrateTriggers,
		Placeholder:      placeholder,
		Loading:          loading,
		Error:            errorBlock,
		MainBlockSpan:    ast.Span,
		I18n:             ast.I18n,
	}
	return CreateDeferredBlockResult{Node: node, Errors: errs}
}

func parseConnectedBlocks(
	connectedBlocks []*ml_parser.Block,
	errs *[]*util.ParseError,
	convert NodeConverter,
) (*DeferredBlockPlaceholder, *DeferredBlockLoading, *DeferredBlockError) {
	var (
		placeholder *DeferredBlockPlaceholder
		loading     *DeferredBlockLoading
		errorBlock  *DeferredBlockError
	)
	for _, block := range connectedBlocks {
		var err error
		switch block.Name {
		case "placeholder":
			if placeholder != nil {
				err = fmt.Errorf("@defer block can only have one @placeholder block")
				break
			}
			placeholder, err = parsePlaceholderBlock(block, convert)
		case "loading":
			if loading != nil {
				err = fmt.Errorf("@defer block can only have one @loading block")
				break
			}
			loading, err = parseLoadingBlock(block, convert)
		case "error":
			if errorBlock != nil {
				err = fmt.Errorf("@defer block can only have one @error block")
				break
			}
			errorBlock, err = parseErrorBlock(block, convert)
		default:
			err = fmt.Errorf(`Unrecognized block "@%s"`, block.Name)
		}
		if err != nil {
			*errs = append(*errs, util.NewParseError(block.StartSourceSpan, err.Error()))
		}
	}
	return placeholder, loading, errorBlock
}

func blockNodeOf(ast *ml_parser.Block) BlockNode {
	return BlockNode{
		NameSpan:        ast.NameSpan,
		Span:            ast.Span,
		StartSourceSpan: ast.StartSourceSpan,
		EndSourceSpan:   ast.EndSourceSpan,
	}
}

// parseTimeParameter reads the time value after a `minimum` or `after` keyword.
func parseTimeParameter(blockName, paramName, expression string, current *int) (*int, error) {
	if current != nil {
		return nil, fmt.Errorf(`@%s block can only have one "%s" parameter`, blockName, paramName)
	}
	start := getTriggerParametersStart(expression, 0)
	if start == -1 {
		return nil, fmt.Errorf(`Could not parse time value of parameter "%s"`, paramName)
	}
	ms, ok := ParseDeferredTime(expression[start:])
	if !ok {
		return nil, fmt.Errorf(`Could not parse time value of parameter "%s"`, paramName)
	}
	return &ms, nil
}

func parsePlaceholderBlock(ast *ml_parser.Block, convert NodeConverter) (*DeferredBlockPlaceholder, error) {
	var minimumTime *int
	for _, param := range ast.Parameters {
		if !minimumParameterPattern.MatchString(param.Expression) {
			return nil, fmt.Errorf(`Unrecognized parameter in @placeholder block: "%s"`, param.Expression)
		}
		var err error
		if minimumTime, err = parseTimeParameter("placeholder", "minimum", param.Expression, minimumTime); err != nil {
			return nil, err
		}
	}
	return &DeferredBlockPlaceholder{
		BlockNode:   blockNodeOf(ast),
		Children:    convert(ast.Children),
		MinimumTime: minimumTime,
		I18n:        ast.I18n,
	}, nil
}

func parseLoadingBlock(ast *ml_parser.Block, convert NodeConverter) (*DeferredBlockLoading, error) {
	var afterTime, minimumTime *int
	for _, param := range ast.Parameters {
		var err error
		switch {
		case afterParameterPattern.MatchString(param.Expression):
			afterTime, err = parseTimeParameter("loading", "after", param.Expression, afterTime)
		case minimumParameterPattern.MatchString(param.Expression):
			minimumTime, err = parseTimeParameter("loading", "minimum", param.Expression, minimumTime)
		default:
			err = fmt.Errorf(`Unrecognized parameter in @loading block: "%s"`, param.Expression)
		}
		if err != nil {
			return nil, err
		}
	}
	return &DeferredBlockLoading{
		BlockNode:   blockNodeOf(ast),
		Children:    convert(ast.Children),
		AfterTime:   afterTime,
		MinimumTime: minimumTime,
		I18n:        ast.I18n,
	}, nil
}

func parseErrorBlock(ast *ml_parser.Block, convert NodeConverter) (*DeferredBlockError, error) {
	if len(ast.Parameters) > 0 {
		return nil, fmt.Errorf("@error block cannot have parameters")
	}
	return &DeferredBlockError{
		BlockNode: blockNodeOf(ast),
		Children:  convert(ast.Children),
		I18n:      ast.I18n,
	}, nil
}

func parsePrimaryTriggers(
	ast *ml_parser.Block,
	bindingParser *template_parser.BindingParser,
	errs *[]*util.ParseError,
	placeholder *DeferredBlockPlaceholder,
) (triggers, prefetchTriggers, hydrateTriggers DeferredBlockTriggers) {
	for _, param := range ast.Parameters {
		// Leading whitespace is not part of the parameter, so each starts with a keyword.
		expr := param.Expression
		switch {
		case whenParameterPattern.MatchString(expr):
			ParseWhenTrigger(param, bindingParser, &triggers, errs)
		case onParameterPattern.MatchString(expr):
			ParseOnTrigger(param, bindingParser, &triggers, errs, placeholder)
		case prefetchWhenPattern.MatchString(expr):
			ParseWhenTrigger(param, bindingParser, &prefetchTriggers, errs)
		case prefetchOnPattern.MatchString(expr):
			ParseOnTrigger(param, bindingParser, &prefetchTriggers, errs, placeholder)
		case hydrateWhenPattern.MatchString(expr):
			ParseWhenTrigger(param, bindingParser, &hydrateTriggers, errs)
		case hydrateOnPattern.MatchString(expr):
			ParseOnTrigger(param, bindingParser, &hydrateTriggers, errs, placeholder)
		case hydrateNeverPattern.MatchString(expr):
			ParseNeverTrigger(param, &hydrateTriggers, errs)
		default:
			*errs = append(*errs, util.NewParseError(param.Span, "Unrecognized trigger"))
		}
	}

	if hydrateTriggers.Never != nil && len(hydrateTriggers.All()) > 1 {
		*errs = append(*errs, util.NewParseError(
			ast.StartSourceSpan,
			"Cannot specify additional `hydrate` triggers if `hydrate never` is present",
		))
	}
	return triggers, prefetchTriggers, hydrateTriggers
}
