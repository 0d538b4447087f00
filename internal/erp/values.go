package erp

import (
	"bytes"
	"encoding/json"
)

var jsonFalse = []byte("false")

func isUnset(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) == 0 || bytes.Equal(b, jsonFalse) || bytes.Equal(b, []byte("null"))
}

// Many2One is a relational reference. The ERP encodes it as [id, "name"]
// and as false when unset.
type Many2One struct {
	ID   int64  `json:"id"`
	Name string `json:"name,omitempty"`
}

// Valid reports whether the reference is set.
func (m Many2One) Valid() bool { return m.ID > 0 }

// UnmarshalJSON accepts [id, name], a bare id, or false.
func (m *Many2One) UnmarshalJSON(b []byte) error {
	*m = Many2One{}
	if isUnset(b) {
		return nil
	}

	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err == nil {
		if len(pair) == 0 {
			return nil
		}
		if err := json.Unmarshal(pair[0], &m.ID); err != nil {
			return err
		}
		if len(pair) > 1 {
			var name Text
			if err := json.Unmarshal(pair[1], &name); err == nil {
				m.Name = string(name)
			}
		}
		return nil
	}

	return json.Unmarshal(b, &m.ID)
}

// Text is a char field; the ERP sends false instead of an empty string.
type Text string

// UnmarshalJSON accepts a string or false.
func (t *Text) UnmarshalJSON(b []byte) error {
	if isUnset(b) {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*t = Text(s)
	return nil
}

// String returns the plain string.
func (t Text) String() string { return string(t) }

// IDs returns the ids of refs, skipping unset ones.
func IDs(refs ...Many2One) []int64 {
	out := make([]int64, 0, len(refs))
	for _, r := range refs {
		if r.Valid() {
			out = append(out, r.ID)
		}
	}
	return out
}

// Unique returns ids without duplicates or non-positive values, preserving order.
func Unique(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, v := range ids {
		if v <= 0 {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
