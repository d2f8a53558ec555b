package models

import (
	"sort"

	"github.com/google/uuid"
)

// PropertyKey is a tenant-wide metadata key definition.
type PropertyKey struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Property is one metadata name/value pair attached to a model.
type Property struct {
	ID      uint64    `json:"id"`
	KeyID   uint64    `json:"metadataKeyId"`
	ModelID uuid.UUID `json:"modelId"`
	Name    string    `json:"name"`
	Value   string    `json:"value"`
}

// PropertyMap converts a property listing to a name -> value map.
func PropertyMap(props []Property) map[string]string {
	if len(props) == 0 {
		return nil
	}
	out := make(map[string]string, len(props))
	for _, p := range props {
		out[p.Name] = p.Value
	}
	return out
}

// SortedKeys returns the map's keys in lexicographic order, for stable
// column layout in reports.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
