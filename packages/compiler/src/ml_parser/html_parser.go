package ml_parser

import "ngc-bind/packages/compiler/src/util"

type ParseOptions struct {
	Tokenize    TokenizeOptions
	TreeBuilder TreeBuilderOptions
}

func DefaultParseOptions() ParseOptions {
	return ParseOptions{Tokenize: DefaultTokenizeOptions()}
}

// HtmlParser lexes and builds HTML templates.
type HtmlParser struct {
	getTagDef TagDefinitionResolver
}

func NewHtmlParser() *HtmlParser {
	return &HtmlParser{getTagDef: GetHtmlTagDefinition}
}

// Parse returns the lexer errors followed by the tree-building errors.
func (p *HtmlParser) Parse(source, url string, opts ParseOptions) *ParseTreeResult {
	tokenized := Tokenize(source, url, p.getTagDef, opts.Tokenize)
	rootNodes, treeErrors := BuildTree(tokenized.Tokens, p.getTagDef, opts.TreeBuilder)

	errs := make([]*util.ParseError, 0, len(tokenized.Errors)+len(treeErrors))
	errs = append(errs, tokenized.Errors...)
	for _, e := range treeErrors {
		errs = append(errs, e.ParseError)
	}
	return &ParseTreeResult{RootNodes: rootNodes, Errors: errs}
}
