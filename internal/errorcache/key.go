package errorcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// operationEscaper percent-encodes the separator inside operation names so
// the first ':' of a key always ends the operation segment. Names without
// '%' or ':' pass through unchanged.
var operationEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// DeriveKey builds the cache key for an operation and its variables.
//
// Variables are serialized canonically: object keys are sorted at every depth
// and numbers keep their literal form, so two variable sets holding the same
// pairs in a different order produce the same key. Nil and empty variables
// both produce "<operation>:". Any ':' or '%' in the operation is
// percent-encoded, so ("a:b", nil) and ("a", ...) never share a key.
func DeriveKey(operation string, variables map[string]any) (string, error) {
	operation = operationEscaper.Replace(operation)
	if len(variables) == 0 {
		return operation + ":", nil
	}

	canonical, err := canonicalJSON(variables)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnserializableVariables, err)
	}

	return operation + ":" + canonical, nil
}

// canonicalJSON round-trips v through a generic representation. encoding/json
// writes map keys in sorted order, and decoding into interface{} turns structs
// into maps, so the second encoding is independent of field declaration and
// insertion order.
func canonicalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return "", err
	}

	out, err := json.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
