package metadata

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"ngc-bind/packages/compiler/src/render3/view"
)

// Directive is one database entry. It implements view.DirectiveMeta.
type Directive struct {
	name        string
	selector    string
	isComponent bool
	structural  bool
	inputs      PropertyMap
	outputs     PropertyMap
	exportAs    []string
}

var _ view.DirectiveMeta = (*Directive)(nil)

func (d *Directive) Name() string                         { return d.name }
func (d *Directive) Selector() string                     { return d.selector }
func (d *Directive) IsComponent() bool                    { return d.isComponent }
func (d *Directive) IsStructural() bool                   { return d.structural }
func (d *Directive) ExportAs() []string                   { return d.exportAs }
func (d *Directive) Inputs() view.InputOutputPropertySet  { return d.inputs }
func (d *Directive) Outputs() view.InputOutputPropertySet { return d.outputs }

// Property maps a class property to the name templates bind to.
type Property struct {
	ClassPropertyName   string
	BindingPropertyName string
}

// PropertyMap is a directive's inputs or outputs. In YAML it is either a list of names,
// where the class property and binding name agree, or a map from class property to
// binding name.
type PropertyMap []Property

// HasBindingPropertyName reports whether a template can bind to name.
func (m PropertyMap) HasBindingPropertyName(name string) bool {
	for _, p := range m {
		if p.BindingPropertyName == name {
			return true
		}
	}
	return false
}

// UnmarshalYAML keeps map entries in document order.
func (m *PropertyMap) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := value.Decode(&names); err != nil {
			return err
		}
		out := make(PropertyMap, len(names))
		for i, n := range names {
			out[i] = Property{ClassPropertyName: n, BindingPropertyName: n}
		}
		*m = out
	case yaml.MappingNode:
		out := make(PropertyMap, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			var prop, binding string
			if err := value.Content[i].Decode(&prop); err != nil {
				return err
			}
			if err := value.Content[i+1].Decode(&binding); err != nil {
				return err
			}
			if binding == "" {
				binding = prop
			}
			out = append(out, Property{ClassPropertyName: prop, BindingPropertyName: binding})
		}
		*m = out
	default:
		return fmt.Errorf("line %d: expected a list or a map of properties", value.Line)
	}
	return nil
}
