package view

import (
	"log/slog"

	"ngc-bind/packages/compiler/src/expression_parser"
	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/render3"
	"ngc-bind/packages/compiler/src/template_parser"
	"ngc-bind/packages/compiler/src/util"
)

// leadingTriviaChars are left out of the start of token spans.
var leadingTriviaChars = []rune{' ', '\n', '\r', '\t'}

type parseTemplateConfig struct {
	preserveWhitespaces    bool
	collectCommentNodes    bool
	tokenizeExpansionForms bool
	maxExpansionDepth      int
	interpolation          ml_parser.InterpolationConfig
	logger                 *slog.Logger
}

// ParseTemplateOption modifies how ParseTemplate parses a template.
type ParseTemplateOption func(*parseTemplateConfig)

// WithPreserveWhitespaces keeps whitespace-only text nodes.
func WithPreserveWhitespaces(preserve bool) ParseTemplateOption {
	return func(c *parseTemplateConfig) { c.preserveWhitespaces = preserve }
}

// WithCollectCommentNodes fills ParsedTemplate.CommentNodes.
func WithCollectCommentNodes(collect bool) ParseTemplateOption {
	return func(c *parseTemplateConfig) { c.collectCommentNodes = collect }
}

// WithTokenizeExpansionForms controls ICU tokenization. It is on by default.
func WithTokenizeExpansionForms(tokenize bool) ParseTemplateOption {
	return func(c *parseTemplateConfig) { c.tokenizeExpansionForms = tokenize }
}

func WithMaxExpansionDepth(depth int) ParseTemplateOption {
	return func(c *parseTemplateConfig) { c.maxExpansionDepth = depth }
}

func WithInterpolation(ic ml_parser.InterpolationConfig) ParseTemplateOption {
	return func(c *parseTemplateConfig) { c.interpolation = ic }
}

func WithLogger(logger *slog.Logger) ParseTemplateOption {
	return func(c *parseTemplateConfig) { c.logger = logger }
}

// ParsedTemplate is the semantic tree of a template plus what the transform collected.
type ParsedTemplate struct {
	// Errors holds the lexer and tree-building diagnostics followed by the transform
	// diagnostics.
	Errors             []*util.ParseError
	Nodes              []render3.Node
	StyleUrls          []string
	Styles             []string
	NgContentSelectors []string
	// CommentNodes is only set with WithCollectCommentNodes.
	CommentNodes []*render3.Comment
}

// ParseTemplate parses a template into render3 nodes. It always returns a tree, even
// when there are errors.
func ParseTemplate(template, templateURL string, opts ...ParseTemplateOption) *ParsedTemplate {
	cfg := parseTemplateConfig{
		tokenizeExpansionForms: true,
		maxExpansionDepth:      ml_parser.DefaultMaxExpansionDepth,
		interpolation:          ml_parser.DefaultInterpolationConfig,
		logger:                 slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	tokenizeOpts := ml_parser.DefaultTokenizeOptions()
	tokenizeOpts.TokenizeExpansionForms = cfg.tokenizeExpansionForms
	tokenizeOpts.Interpolation = cfg.interpolation
	tokenizeOpts.LeadingTriviaChars = leadingTriviaChars

	parseResult := ml_parser.NewHtmlParser().Parse(template, templateURL, ml_parser.ParseOptions{
		Tokenize:    tokenizeOpts,
		TreeBuilder: ml_parser.TreeBuilderOptions{MaxExpansionDepth: cfg.maxExpansionDepth},
	})

	rootNodes := parseResult.RootNodes
	if !cfg.preserveWhitespaces {
		rootNodes = ml_parser.RemoveWhitespaces(rootNodes)
	}

	r3 := HtmlAstToR3Ast(rootNodes, MakeBindingParser(cfg.interpolation), Render3ParseOptions{
		CollectCommentNodes: cfg.collectCommentNodes,
	})

	errs := make([]*util.ParseError, 0, len(parseResult.Errors)+len(r3.Errors))
	errs = append(errs, parseResult.Errors...)
	errs = append(errs, r3.Errors...)

	nodes := r3.Nodes
	if nodes == nil {
		nodes = []render3.Node{}
	}
	parsed := &ParsedTemplate{
		Errors:             errs,
		Nodes:              nodes,
		StyleUrls:          r3.StyleUrls,
		Styles:             r3.Styles,
		NgContentSelectors: r3.NgContentSelectors,
	}
	if cfg.collectCommentNodes {
		parsed.CommentNodes = r3.CommentNodes
	}

	cfg.logger.Debug("parsed template",
		"url", templateURL,
		"nodes", len(parsed.Nodes),
		"errors", len(parsed.Errors))
	return parsed
}

// MakeBindingParser constructs a BindingParser over a fresh expression parser.
func MakeBindingParser(ic ml_parser.InterpolationConfig) *template_parser.BindingParser {
	parser := expression_parser.NewParser(expression_parser.NewLexer())
	return template_parser.NewBindingParser(parser, ic)
}
