package domain

import (
	"encoding/json"
	"sort"
)

// JSONObject is a free-form JSON object. It also accepts a JSON string that
// itself encodes an object, which is how older content rows stored values.
// Anything that is not an object decodes to an empty map.
type JSONObject map[string]any

// UnmarshalJSON implements json.Unmarshaler.
func (o *JSONObject) UnmarshalJSON(data []byte) error {
	*o = JSONObject{}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil
	}
	if s, ok := v.(string); ok {
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil
		}
	}
	if m, ok := v.(map[string]any); ok {
		*o = m
	}
	return nil
}

// Keys returns the object's keys in sorted order.
func (o JSONObject) Keys() []string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
