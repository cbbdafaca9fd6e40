package sync

import (
	"reflect"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// The attribute bag is the open-ended structure on a ticket for mapped fields
// with no dedicated column. Values are scalars, lists, or nested containers.

// setBagPath writes a value at a dotted path, creating intermediate
// containers as needed. An existing scalar in the middle of the path is
// replaced by a container.
func setBagPath(bag map[string]interface{}, path string, value interface{}) {
	parts := strings.Split(path, ".")
	current := bag
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// getBagPath reads the value at a dotted path
func getBagPath(bag map[string]interface{}, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = bag
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// copyBag deep-copies a bag so change detection can compare against the
// pre-mapping snapshot
func copyBag(bag map[string]interface{}) map[string]interface{} {
	if bag == nil {
		return nil
	}
	out := make(map[string]interface{}, len(bag))
	for k, v := range bag {
		out[k] = copyBagValue(v)
	}
	return out
}

func copyBagValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return copyBag(val)
	case primitive.M:
		return copyBag(map[string]interface{}(val))
	case primitive.A:
		return copyBagValue([]interface{}(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = copyBagValue(item)
		}
		return out
	default:
		return v
	}
}

// bagEqual compares two bags after canonicalizing list and numeric
// representations, so values decoded from storage compare equal to values
// freshly produced by the mapper.
func bagEqual(a, b map[string]interface{}) bool {
	return reflect.DeepEqual(canonValue(a), canonValue(b))
}

func canonValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		if len(val) == 0 {
			return map[string]interface{}{}
		}
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = canonValue(item)
		}
		return out
	case primitive.M:
		return canonValue(map[string]interface{}(val))
	case primitive.A:
		return canonValue([]interface{}(val))
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = canonValue(item)
		}
		return out
	case []string:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case float32:
		return float64(val)
	default:
		return v
	}
}
