package order

import (
	"bytes"
	"encoding/json"

	"stockflow/internal/core/apperror"
)

// idKeys are the object fields known to carry the created order id.
var idKeys = []string{"id", "order_id", "orderID"}

// shape is one known encoding of the create_from_ui answer.
type shape struct {
	name   string
	decode func(raw json.RawMessage) (int64, bool)
}

var shapes = []shape{
	{"number", decodeNumber},
	{"array", decodeArray},
	{"object", decodeObject},
}

// DecodeOrderID extracts the created order id from a create_from_ui answer.
// Accepted shapes, tried in order: a bare id; an array whose first element is
// an id or an object with an id-like field; an object with an id-like field.
// Anything else fails with UNRECOGNIZED_RESPONSE_SHAPE.
func DecodeOrderID(raw json.RawMessage) (int64, error) {
	for _, s := range shapes {
		if id, ok := s.decode(raw); ok {
			return id, nil
		}
	}
	return 0, apperror.NewUnrecognizedResponseShape("pos.order.create_from_ui", raw)
}

func decodeNumber(raw json.RawMessage) (int64, bool) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err != nil {
		return 0, false
	}
	id, err := n.Int64()
	return id, err == nil && id > 0
}

func decodeArray(raw json.RawMessage) (int64, bool) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return 0, false
	}
	if id, ok := decodeNumber(items[0]); ok {
		return id, true
	}
	return decodeObject(items[0])
}

func decodeObject(raw json.RawMessage) (int64, bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return 0, false
	}
	for _, k := range idKeys {
		if v, ok := obj[k]; ok {
			if id, ok := decodeNumber(v); ok {
				return id, true
			}
		}
	}
	return 0, false
}
