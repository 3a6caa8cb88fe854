package view

import (
	"strings"

	"ngc-bind/packages/compiler/src/css"
	"ngc-bind/packages/compiler/src/ml_parser"
	"ngc-bind/packages/compiler/src/render3"
	"ngc-bind/packages/compiler/src/template_parser"
	"ngc-bind/packages/compiler/src/util"
)

// IsI18nAttribute checks if an attribute name is an i18n attribute
func IsI18nAttribute(name string) bool {
	return name == "i18n" || strings.HasPrefix(name, "i18n-")
}

// CreateCssSelectorFromNode describes an element or template the way selectors see it.
// Templates always match as ng-template.
func CreateCssSelectorFromNode(node DirectiveOwner) *css.CssSelector {
	elementName := "ng-template"
	if el, ok := node.(*render3.Element); ok {
		elementName = el.Name
	}

	cssSelector := css.NewCssSelector()
	_, elementNameNoNs := ml_parser.SplitNsName(elementName)
	cssSelector.SetElement(elementNameNoNs)

	for _, attr := range GetAttrsForDirectiveMatching(node) {
		name, value := attr[0], attr[1]
		_, nameNoNs := ml_parser.SplitNsName(name)
		cssSelector.AddAttribute(nameNoNs, value)
		if strings.ToLower(name) == "class" {
			for _, className := range strings.Fields(value) {
				cssSelector.AddClassName(className)
			}
		}
	}
	return cssSelector
}

// GetAttrsForDirectiveMatching returns name/value pairs in first-seen order. A later
// attribute of the same name replaces the value but keeps the position.
//
// Structural templates created from `*attr` only expose their template attributes, so
// directives on the host element are not matched twice.
func GetAttrsForDirectiveMatching(node DirectiveOwner) []template_parser.MatchableAttr {
	var attrs orderedAttrs
	switch n := node.(type) {
	case *render3.Template:
		if n.TagName != "ng-template" {
			for _, attr := range n.TemplateAttrs {
				switch a := attr.(type) {
				case *render3.TextAttribute:
					attrs.set(a.Name, "")
				case *render3.BoundAttribute:
					attrs.set(a.Name, "")
				default:
					util.Failf("unexpected template attribute %T", attr)
				}
			}
			return attrs.pairs
		}
		attrs.addBindings(n.Attributes, n.Inputs, n.Outputs)
	case *render3.Element:
		attrs.addBindings(n.Attributes, n.Inputs, n.Outputs)
	default:
		util.Failf("unexpected directive owner %T", node)
	}
	return attrs.pairs
}

type orderedAttrs struct {
	pairs []template_parser.MatchableAttr
}

func (o *orderedAttrs) set(name, value string) {
	for i := range o.pairs {
		if o.pairs[i][0] == name {
			o.pairs[i][1] = value
			return
		}
	}
	o.pairs = append(o.pairs, template_parser.MatchableAttr{name, value})
}

func (o *orderedAttrs) addBindings(attributes []*render3.TextAttribute, inputs []*render3.BoundAttribute, outputs []*render3.BoundEvent) {
	for _, a := range attributes {
		if !IsI18nAttribute(a.Name) {
			o.set(a.Name, a.Value)
		}
	}
	for _, i := range inputs {
		if i.Type == template_parser.BindingTypeProperty || i.Type == template_parser.BindingTypeTwoWay {
			o.set(i.Name, "")
		}
	}
	for _, out := range outputs {
		o.set(out.Name, "")
	}
}
