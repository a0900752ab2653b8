package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// decodeObject decodes a JSON object keeping numbers as their source text.
// Marshaling the result again gives the canonical form: keys sorted, no
// insignificant whitespace, numbers unchanged.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	if fields == nil {
		return nil, fmt.Errorf("decode record: not an object")
	}
	return fields, nil
}
