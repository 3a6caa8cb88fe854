package template_parser

import (
	"strings"

	"ngc-bind/packages/compiler/src/ml_parser"
)

const (
	ngContentSelectAttr = "select"
	linkElement         = "link"
	linkStyleRelAttr    = "rel"
	linkStyleHrefAttr   = "href"
	linkStyleRelValue   = "stylesheet"
	styleElement        = "style"
	scriptElement       = "script"
	ngNonBindableAttr   = "ngNonBindable"
	ngProjectAsAttr     = "ngProjectAs"
)

type PreparsedElementType int

const (
	PreparsedElementTypeOther PreparsedElementType = iota
	PreparsedElementTypeNgContent
	PreparsedElementTypeStyle
	PreparsedElementTypeStylesheet
	PreparsedElementTypeScript
)

// PreparsedElement classifies an element before its attributes are bound.
// SelectAttr is the ng-content projection selector, "*" by default.
type PreparsedElement struct {
	Type        PreparsedElementType
	SelectAttr  string
	HrefAttr    string
	NonBindable bool
	ProjectAs   string
}

func PreparseElement(el *ml_parser.Element) *PreparsedElement {
	var selectAttr, hrefAttr, relAttr string
	p := &PreparsedElement{}
	for _, attr := range el.Attrs {
		name := strings.ToLower(attr.Name)
		switch name {
		case ngContentSelectAttr:
			selectAttr = attr.Value
		case linkStyleHrefAttr:
			hrefAttr = attr.Value
		case linkStyleRelAttr:
			relAttr = attr.Value
		}
		if name == strings.ToLower(ngNonBindableAttr) {
			p.NonBindable = true
		}
		if attr.Name == ngProjectAsAttr && attr.Value != "" {
			p.ProjectAs = attr.Value
		}
	}
	p.SelectAttr = normalizeNgContentSelect(selectAttr)
	p.HrefAttr = hrefAttr

	_, nodeName := ml_parser.SplitNsName(el.Name)
	nodeName = strings.ToLower(nodeName)
	switch {
	case ml_parser.IsNgContent(nodeName):
		p.Type = PreparsedElementTypeNgContent
	case nodeName == styleElement:
		p.Type = PreparsedElementTypeStyle
	case nodeName == scriptElement:
		p.Type = PreparsedElementTypeScript
	case nodeName == linkElement && relAttr == linkStyleRelValue:
		p.Type = PreparsedElementTypeStylesheet
	}
	return p
}

func normalizeNgContentSelect(selectAttr string) string {
	if selectAttr == "" {
		return "*"
	}
	return selectAttr
}
