package tileflat

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// Attributes is the namespaced attribute bag carried by an entity. Values are
// normalized when set, so readers only ever see float64, string, bool,
// map[string]any or []any.
//
// The zero value is an empty bag ready to use.
type Attributes struct {
	ns map[string]map[string]any
}

// Get returns the raw normalized value stored under ns/key.
func (a Attributes) Get(ns, key string) (any, bool) {
	m, ok := a.ns[ns]
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	return v, ok
}

// Number returns the value under ns/key if it is numeric.
func (a Attributes) Number(ns, key string) (float64, bool) {
	v, ok := a.Get(ns, key)
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// String returns the value under ns/key if it is a string.
func (a Attributes) String(ns, key string) (string, bool) {
	v, ok := a.Get(ns, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Bool returns the value under ns/key if it is a boolean.
func (a Attributes) Bool(ns, key string) (bool, bool) {
	v, ok := a.Get(ns, key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Object returns the value under ns/key if it is an object. The returned map
// is shared with the bag and MUST NOT be mutated.
func (a Attributes) Object(ns, key string) (map[string]any, bool) {
	v, ok := a.Get(ns, key)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Namespace returns every key/value in ns. The returned map MUST NOT be
// mutated.
func (a Attributes) Namespace(ns string) (map[string]any, bool) {
	m, ok := a.ns[ns]
	return m, ok
}

// Has reports whether ns/key is present.
func (a Attributes) Has(ns, key string) bool {
	_, ok := a.Get(ns, key)
	return ok
}

// Set stores value under ns/key. Numbers are widened to float64 and structs
// are converted to their JSON object form. A nil value deletes the key.
func (a *Attributes) Set(ns, key string, value any) error {
	if value == nil {
		a.Delete(ns, key)
		return nil
	}
	v, err := normalizeValue(value)
	if err != nil {
		return fmt.Errorf("tileflat: set %s.%s: %w", ns, key, err)
	}
	if a.ns == nil {
		a.ns = make(map[string]map[string]any)
	}
	m := a.ns[ns]
	if m == nil {
		m = make(map[string]any)
		a.ns[ns] = m
	}
	m[key] = v
	return nil
}

// Delete removes ns/key. Empty namespaces are dropped.
func (a *Attributes) Delete(ns, key string) {
	m, ok := a.ns[ns]
	if !ok {
		return
	}
	delete(m, key)
	if len(m) == 0 {
		delete(a.ns, ns)
	}
}

// DeleteNamespace removes every key in ns.
func (a *Attributes) DeleteNamespace(ns string) {
	delete(a.ns, ns)
}

// Namespaces returns the namespace names in sorted order.
func (a Attributes) Namespaces() []string {
	names := make([]string, 0, len(a.ns))
	for name := range a.ns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of keys across all namespaces.
func (a Attributes) Len() int {
	n := 0
	for _, m := range a.ns {
		n += len(m)
	}
	return n
}

// Clone returns a deep copy.
func (a Attributes) Clone() Attributes {
	if a.ns == nil {
		return Attributes{}
	}
	out := make(map[string]map[string]any, len(a.ns))
	for name, m := range a.ns {
		out[name] = cloneValue(m).(map[string]any)
	}
	return Attributes{ns: out}
}

// Equal reports whether a and b hold the same keys and values.
func (a Attributes) Equal(b Attributes) bool {
	if a.Len() != b.Len() {
		return false
	}
	if a.Len() == 0 {
		return true
	}
	return reflect.DeepEqual(a.ns, b.ns)
}

// MarshalJSON encodes the bag as {"namespace": {"key": value}}.
func (a Attributes) MarshalJSON() ([]byte, error) {
	if a.ns == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(a.ns)
}

// UnmarshalJSON decodes the {"namespace": {"key": value}} form.
func (a *Attributes) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("tileflat: decode attributes: %w", err)
	}
	a.ns = nil
	for name, m := range raw {
		for key, v := range m {
			if err := a.Set(name, key, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// normalizeValue converts v into one of the canonical attribute shapes.
func normalizeValue(v any) (any, error) {
	switch t := v.(type) {
	case float64, string, bool:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return f, nil
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			if e == nil {
				continue
			}
			n, err := normalizeValue(e)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = n
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(t))
		for i, e := range t {
			if e == nil {
				out = append(out, nil)
				continue
			}
			n, err := normalizeValue(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out = append(out, n)
		}
		return out, nil
	}

	// Anything else goes through its JSON form.
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("unsupported value %T: %w", v, err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	if generic == nil {
		return nil, fmt.Errorf("unsupported value %T", v)
	}
	return normalizeValue(generic)
}

// cloneValue deep-copies a normalized value.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return t
	}
}
