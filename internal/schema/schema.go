// Package schema holds the declarative property tables the workflow host turns
// into configuration forms. Nothing here has behaviour beyond lookups.
package schema

// PropertyType is the form control a property renders as
type PropertyType string

const (
	TypeString       PropertyType = "string"
	TypeNumber       PropertyType = "number"
	TypeBoolean      PropertyType = "boolean"
	TypeOptions      PropertyType = "options"
	TypeMultiOptions PropertyType = "multiOptions"
	TypeCollection   PropertyType = "collection"
	TypeNotice       PropertyType = "notice"
)

// Option is one selectable value of an options property, or one member of a collection
type Option struct {
	Name        string `json:"name"`
	Value       any    `json:"value,omitempty"`
	Description string `json:"description,omitempty"`
	Action      string `json:"action,omitempty"`
}

// DisplayOptions shows or hides a property depending on other property values
type DisplayOptions struct {
	Show map[string][]string `json:"show,omitempty"`
	Hide map[string][]string `json:"hide,omitempty"`
}

// Property describes a single configurable field
type Property struct {
	DisplayName      string          `json:"displayName"`
	Name             string          `json:"name"`
	Type             PropertyType    `json:"type"`
	Default          any             `json:"default"`
	Description      string          `json:"description,omitempty"`
	Placeholder      string          `json:"placeholder,omitempty"`
	Hint             string          `json:"hint,omitempty"`
	Required         bool            `json:"required,omitempty"`
	Password         bool            `json:"password,omitempty"`
	NoDataExpression bool            `json:"noDataExpression,omitempty"`
	Options          []Option        `json:"options,omitempty"`
	Collection       []Property      `json:"collection,omitempty"`
	DisplayOptions   *DisplayOptions `json:"displayOptions,omitempty"`
}

// Find returns the property with the given name, searching collections too
func Find(props []Property, name string) (Property, bool) {
	for _, p := range props {
		if p.Name == name {
			return p, true
		}
		if found, ok := Find(p.Collection, name); ok {
			return found, true
		}
	}
	return Property{}, false
}

// OptionValues lists the values of an options or multiOptions property
func (p Property) OptionValues() []string {
	values := make([]string, 0, len(p.Options))
	for _, o := range p.Options {
		if s, ok := o.Value.(string); ok {
			values = append(values, s)
		}
	}
	return values
}

// Visible reports whether p is displayed given the current selector values
func (p Property) Visible(values map[string]string) bool {
	if p.DisplayOptions == nil {
		return true
	}
	for field, allowed := range p.DisplayOptions.Show {
		if !contains(allowed, values[field]) {
			return false
		}
	}
	for field, hidden := range p.DisplayOptions.Hide {
		if contains(hidden, values[field]) {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
