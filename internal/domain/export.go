package domain

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Export renders items as the pretty-printed document the owner copies out.
// The transient flag never appears in the output.
func Export(items []Item) ([]byte, error) {
	doc := make([]Item, 0, len(items))
	for _, it := range items {
		doc = append(doc, it.Persistable())
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal export: %w", err)
	}
	return data, nil
}

// ExportSchema describes the export document: an array of items.
func ExportSchema() *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true}
	item := r.Reflect(&Item{})
	item.Version = ""

	return &jsonschema.Schema{
		Version:     jsonschema.Version,
		Title:       "Showcase export",
		Description: "Items of the showcase in display order",
		Type:        "array",
		Items:       item,
	}
}
