// Package fields holds the catalog of metadata fields the analyzer can
// extract and the values produced for them.
package fields

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Shape is the value shape of a field.
type Shape string

const (
	Scalar Shape = "scalar"
	List   Shape = "list"
)

// ListSeparator joins list values when a flat string is needed (CSV, search content).
const ListSeparator = "; "

// Descriptor describes one extractable field.
type Descriptor struct {
	Name        string `json:"name" mapstructure:"name"`
	Label       string `json:"label" mapstructure:"label"`
	Instruction string `json:"instruction" mapstructure:"instruction"`
	Shape       Shape  `json:"shape" mapstructure:"shape"`
}

// Empty returns the empty value for the descriptor's shape.
func (d Descriptor) Empty() Value {
	if d.Shape == List {
		return Value{Shape: List, Items: []string{}}
	}
	return Value{Shape: Scalar}
}

// Catalog is the canonical, ordered field set. Its order is the order used
// for prompts, results and exports.
type Catalog []Descriptor

// DefaultCatalog returns the built-in field set.
func DefaultCatalog() Catalog {
	return Catalog{
		{Name: "title", Label: "Title", Shape: Scalar, Instruction: "A concise, descriptive title for the image"},
		{Name: "tags", Label: "Tags", Shape: List, Instruction: "Relevant tags/keywords for the image, 5-10 items"},
		{Name: "shortDescription", Label: "Short Description", Shape: Scalar, Instruction: "A brief 1-2 sentence description of the image"},
		{Name: "longDescription", Label: "Long Description", Shape: Scalar, Instruction: "A detailed 3-5 sentence description of the image"},
		{Name: "generatedPrompt", Label: "Generated Prompt", Shape: Scalar, Instruction: "A reverse-engineered AI image generation prompt that could recreate this image"},
		{Name: "colors", Label: "Colors", Shape: List, Instruction: "Dominant colors in the image as descriptive names"},
		{Name: "mood", Label: "Mood", Shape: Scalar, Instruction: "The overall mood or atmosphere of the image"},
		{Name: "style", Label: "Style", Shape: Scalar, Instruction: "The artistic style or genre of the image"},
		{Name: "subject", Label: "Subject", Shape: Scalar, Instruction: "The main subject or focus of the image"},
		{Name: "dimensions", Label: "Dimensions", Shape: Scalar, Instruction: "Description of image composition and framing"},
	}
}

// Validate checks that the catalog is usable.
func (c Catalog) Validate() error {
	if len(c) == 0 {
		return fmt.Errorf("field catalog is empty")
	}
	seen := make(map[string]bool, len(c))
	for i, d := range c {
		if strings.TrimSpace(d.Name) == "" {
			return fmt.Errorf("field %d has no name", i)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate field %q", d.Name)
		}
		seen[d.Name] = true
		if d.Shape != Scalar && d.Shape != List {
			return fmt.Errorf("field %q has unknown shape %q", d.Name, d.Shape)
		}
	}
	return nil
}

// Lookup finds a descriptor by name.
func (c Catalog) Lookup(name string) (Descriptor, bool) {
	for _, d := range c {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Names returns all field names in canonical order.
func (c Catalog) Names() []string {
	names := make([]string, len(c))
	for i, d := range c {
		names[i] = d.Name
	}
	return names
}

// Filter returns the descriptors whose names are in enabled, in canonical
// order regardless of the order of enabled.
func (c Catalog) Filter(enabled []string) Catalog {
	set := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		set[name] = true
	}
	out := make(Catalog, 0, len(enabled))
	for _, d := range c {
		if set[d.Name] {
			out = append(out, d)
		}
	}
	return out
}

// Value is a field value: a string for scalar fields, an ordered list of
// strings for list fields.
type Value struct {
	Shape Shape
	Text  string
	Items []string
}

// Text builds a scalar value.
func Text(s string) Value {
	return Value{Shape: Scalar, Text: s}
}

// Items builds a list value.
func Items(items ...string) Value {
	if items == nil {
		items = []string{}
	}
	return Value{Shape: List, Items: items}
}

// IsEmpty reports whether the value carries no content.
func (v Value) IsEmpty() bool {
	if v.Shape == List {
		return len(v.Items) == 0
	}
	return v.Text == ""
}

// Join flattens the value to a string, joining list items with sep.
func (v Value) Join(sep string) string {
	if v.Shape == List {
		return strings.Join(v.Items, sep)
	}
	return v.Text
}

// String flattens with the default list separator.
func (v Value) String() string {
	return v.Join(ListSeparator)
}

// Interface returns the value as a plain string or []string.
func (v Value) Interface() interface{} {
	if v.Shape == List {
		if v.Items == nil {
			return []string{}
		}
		return v.Items
	}
	return v.Text
}

// MarshalJSON renders scalars as strings and lists as arrays (never null).
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON accepts either a string or an array of strings.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch t := raw.(type) {
	case []interface{}:
		*v = Items(toStrings(t)...)
	case nil:
		*v = Text("")
	default:
		*v = Text(stringify(t))
	}
	return nil
}

// Result maps field names to values. A normalized Result holds every field
// of its catalog.
type Result map[string]Value

// Get returns the value for name, or an empty scalar when absent.
func (r Result) Get(name string) Value {
	if v, ok := r[name]; ok {
		return v
	}
	return Value{Shape: Scalar}
}

// Clone returns a deep copy.
func (r Result) Clone() Result {
	if r == nil {
		return nil
	}
	out := make(Result, len(r))
	for k, v := range r {
		if v.Items != nil {
			v.Items = append([]string(nil), v.Items...)
		}
		out[k] = v
	}
	return out
}

// Normalize restricts raw model output to the active fields. Every field of
// the catalog is present in the result; fields that are inactive, missing or
// null get the empty value for their shape.
func Normalize(catalog Catalog, active []string, raw map[string]interface{}) Result {
	enabled := make(map[string]bool, len(active))
	for _, name := range active {
		enabled[name] = true
	}

	result := make(Result, len(catalog))
	for _, d := range catalog {
		v, ok := raw[d.Name]
		if !enabled[d.Name] || !ok || v == nil {
			result[d.Name] = d.Empty()
			continue
		}
		result[d.Name] = coerce(d, v)
	}
	return result
}

func coerce(d Descriptor, v interface{}) Value {
	if d.Shape == List {
		switch t := v.(type) {
		case []interface{}:
			return Items(toStrings(t)...)
		case []string:
			return Items(append([]string(nil), t...)...)
		case string:
			return Items(splitList(t)...)
		default:
			return Items(stringify(t))
		}
	}

	switch t := v.(type) {
	case []interface{}:
		return Text(strings.Join(toStrings(t), ", "))
	case []string:
		return Text(strings.Join(t, ", "))
	default:
		return Text(strings.TrimSpace(stringify(t)))
	}
}

func toStrings(in []interface{}) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		if item == nil {
			continue
		}
		s := strings.TrimSpace(stringify(item))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprint(t)
	}
}
