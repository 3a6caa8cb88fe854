package ml_parser

import (
	"strings"
	"sync"
)

// HtmlTagDefinition is the TagDefinition of one HTML element name.
type HtmlTagDefinition struct {
	closedByChildren            map[string]bool
	contentType                 TagContentType
	contentTypeByPrefix         map[string]TagContentType
	closedByParent              bool
	implicitNamespacePrefix     string
	isVoid                      bool
	ignoreFirstLf               bool
	canSelfClose                bool
	preventNamespaceInheritance bool
}

type tagOptions struct {
	closedByChildren            []string
	closedByParent              bool
	implicitNamespacePrefix     string
	contentType                 TagContentType
	contentTypeByPrefix         map[string]TagContentType
	isVoid                      bool
	ignoreFirstLf               bool
	preventNamespaceInheritance bool
	// nil means "void elements only".
	canSelfClose *bool
}

func newHtmlTagDefinition(opts tagOptions) *HtmlTagDefinition {
	def := &HtmlTagDefinition{
		closedByChildren:            make(map[string]bool, len(opts.closedByChildren)),
		contentType:                 opts.contentType,
		contentTypeByPrefix:         opts.contentTypeByPrefix,
		closedByParent:              opts.closedByParent || opts.isVoid,
		implicitNamespacePrefix:     opts.implicitNamespacePrefix,
		isVoid:                      opts.isVoid,
		ignoreFirstLf:               opts.ignoreFirstLf,
		canSelfClose:                opts.isVoid,
		preventNamespaceInheritance: opts.preventNamespaceInheritance,
	}
	if opts.canSelfClose != nil {
		def.canSelfClose = *opts.canSelfClose
	}
	for _, name := range opts.closedByChildren {
		def.closedByChildren[name] = true
	}
	return def
}

func (h *HtmlTagDefinition) ClosedByParent() bool              { return h.closedByParent }
func (h *HtmlTagDefinition) ImplicitNamespacePrefix() string   { return h.implicitNamespacePrefix }
func (h *HtmlTagDefinition) IsVoid() bool                      { return h.isVoid }
func (h *HtmlTagDefinition) IgnoreFirstLf() bool               { return h.ignoreFirstLf }
func (h *HtmlTagDefinition) CanSelfClose() bool                { return h.canSelfClose }
func (h *HtmlTagDefinition) PreventNamespaceInheritance() bool { return h.preventNamespaceInheritance }

func (h *HtmlTagDefinition) IsClosedByChild(name string) bool {
	return h.isVoid || h.closedByChildren[strings.ToLower(name)]
}

func (h *HtmlTagDefinition) GetContentType(prefix string) TagContentType {
	if ct, ok := h.contentTypeByPrefix[prefix]; ok && prefix != "" {
		return ct
	}
	return h.contentType
}

var (
	tagDefinitionsOnce   sync.Once
	defaultTagDefinition *HtmlTagDefinition
	tagDefinitions       map[string]*HtmlTagDefinition
)

// GetHtmlTagDefinition is the TagDefinitionResolver for HTML templates. Unknown names
// (custom elements) may self close.
func GetHtmlTagDefinition(tagName string) TagDefinition {
	tagDefinitionsOnce.Do(initHtmlTagDefinitions)
	if def, ok := tagDefinitions[tagName]; ok {
		return def
	}
	if def, ok := tagDefinitions[strings.ToLower(tagName)]; ok {
		return def
	}
	return defaultTagDefinition
}

func initHtmlTagDefinitions() {
	yes, no := true, false
	defaultTagDefinition = newHtmlTagDefinition(tagOptions{canSelfClose: &yes})

	table := map[string]tagOptions{
		"p": {
			closedByChildren: []string{
				"address", "article", "aside", "blockquote", "div", "dl", "fieldset",
				"footer", "form", "h1", "h2", "h3", "h4", "h5", "h6", "header",
				"hgroup", "hr", "main", "nav", "ol", "p", "pre", "section", "table", "ul",
			},
			closedByParent: true,
		},
		"thead":         {closedByChildren: []string{"tbody", "tfoot"}},
		"tbody":         {closedByChildren: []string{"tbody", "tfoot"}, closedByParent: true},
		"tfoot":         {closedByChildren: []string{"tbody"}, closedByParent: true},
		"tr":            {closedByChildren: []string{"tr"}, closedByParent: true},
		"td":            {closedByChildren: []string{"td", "th"}, closedByParent: true},
		"th":            {closedByChildren: []string{"td", "th"}, closedByParent: true},
		"svg":           {implicitNamespacePrefix: "svg"},
		"foreignObject": {implicitNamespacePrefix: "svg", preventNamespaceInheritance: true},
		"math":          {implicitNamespacePrefix: "math"},
		"li":            {closedByChildren: []string{"li"}, closedByParent: true},
		"dt":            {closedByChildren: []string{"dt", "dd"}},
		"dd":            {closedByChildren: []string{"dt", "dd"}, closedByParent: true},
		"rb":            {closedByChildren: []string{"rb", "rt", "rtc", "rp"}, closedByParent: true},
		"rt":            {closedByChildren: []string{"rb", "rt", "rtc", "rp"}, closedByParent: true},
		"rtc":           {closedByChildren: []string{"rb", "rtc", "rp"}, closedByParent: true},
		"rp":            {closedByChildren: []string{"rb", "rt", "rtc", "rp"}, closedByParent: true},
		"optgroup":      {closedByChildren: []string{"optgroup"}, closedByParent: true},
		"option":        {closedByChildren: []string{"option", "optgroup"}, closedByParent: true},
		"pre":           {ignoreFirstLf: true},
		"listing":       {ignoreFirstLf: true},
		"style":         {contentType: TagContentTypeRAW_TEXT},
		"script":        {contentType: TagContentTypeRAW_TEXT},
		"title": {
			contentType:         TagContentTypeESCAPABLE_RAW_TEXT,
			contentTypeByPrefix: map[string]TagContentType{"svg": TagContentTypePARSABLE_DATA},
		},
		"textarea": {contentType: TagContentTypeESCAPABLE_RAW_TEXT, ignoreFirstLf: true},
	}
	for _, name := range []string{"base", "meta", "area", "embed", "link", "img", "input", "param", "hr", "br", "source", "track", "wbr", "col"} {
		table[name] = tagOptions{isVoid: true}
	}

	tagDefinitions = make(map[string]*HtmlTagDefinition, len(table)+len(knownHtmlElements))
	for name, opts := range table {
		tagDefinitions[name] = newHtmlTagDefinition(opts)
	}
	// Known HTML elements must not self close; unknown names are custom elements.
	for _, name := range knownHtmlElements {
		if _, ok := tagDefinitions[name]; !ok {
			tagDefinitions[name] = newHtmlTagDefinition(tagOptions{canSelfClose: &no})
		}
	}
}

var knownHtmlElements = []string{
	"a", "abbr", "address", "article", "aside", "audio", "b", "bdi", "bdo", "blockquote",
	"body", "button", "canvas", "caption", "cite", "code", "colgroup", "data", "datalist",
	"del", "details", "dfn", "dialog", "div", "dl", "em", "fieldset", "figcaption",
	"figure", "footer", "form", "h1", "h2", "h3", "h4", "h5", "h6", "head", "header",
	"hgroup", "html", "i", "iframe", "ins", "kbd", "label", "legend", "main", "map", "mark",
	"menu", "meter", "nav", "noscript", "object", "ol", "output", "picture", "progress",
	"q", "s", "samp", "section", "select", "small", "span", "strong", "sub", "summary",
	"sup", "table", "template", "time", "u", "ul", "var", "video",
}
