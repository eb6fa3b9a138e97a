package privacy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotAnObject is returned when a payload decodes to something other than
// a JSON object.
var ErrNotAnObject = errors.New("record payload is not a JSON object")

// DecodeRecord parses a JSON object into a Record. Numbers keep their literal
// text so numeric masking sees exactly what was sent.
func DecodeRecord(data []byte) (Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode record: trailing data after object")
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrNotAnObject
	}
	return Record(obj), nil
}

// Encode renders the record as compact JSON.
func (r Record) Encode() ([]byte, error) {
	return json.Marshal(map[string]any(r))
}
