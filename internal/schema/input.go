package schema

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
)

// RawInput maps field names to values exactly as the client sent them.
// Values are strings for form posts and strings, json.Number, bool or nil for
// JSON bodies.
type RawInput map[string]any

// FromForm builds a RawInput from form values. For repeated keys the last
// value wins.
func FromForm(values url.Values) RawInput {
	in := make(RawInput, len(values))
	for k, vs := range values {
		if len(vs) == 0 {
			continue
		}
		in[k] = vs[len(vs)-1]
	}
	return in
}

// FromJSON decodes a single JSON object into a RawInput. Numbers are kept as
// json.Number so no precision is lost before validation.
func FromJSON(r io.Reader) (RawInput, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("decode JSON body: %w", err)
	}
	if obj == nil {
		return nil, fmt.Errorf("decode JSON body: expected an object")
	}
	if dec.More() {
		return nil, fmt.Errorf("decode JSON body: unexpected data after object")
	}
	return RawInput(obj), nil
}
