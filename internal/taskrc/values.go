package taskrc

import "sort"

// Values is an insertion-ordered mapping of config keys to values.
// Keys are unique; setting an existing key keeps its original position.
type Values struct {
	keys []string
	m    map[string]string
}

// NewValues returns an empty Values.
func NewValues() *Values {
	return &Values{m: make(map[string]string)}
}

// Get returns the value for key and whether it was present.
func (v *Values) Get(key string) (string, bool) {
	val, ok := v.m[key]
	return val, ok
}

// Set stores value under key.
func (v *Values) Set(key, value string) {
	if _, ok := v.m[key]; !ok {
		v.keys = append(v.keys, key)
	}
	v.m[key] = value
}

// Keys returns keys in insertion order.
func (v *Values) Keys() []string {
	out := make([]string, len(v.keys))
	copy(out, v.keys)
	return out
}

// Len returns the number of keys.
func (v *Values) Len() int {
	return len(v.keys)
}

// Map returns a copy of the values as a plain map.
func (v *Values) Map() map[string]string {
	out := make(map[string]string, len(v.m))
	for k, val := range v.m {
		out[k] = val
	}
	return out
}

// Merge overlays other onto v. Keys in other win.
func (v *Values) Merge(other *Values) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		v.Set(k, other.m[k])
	}
}

// Clone returns a deep copy.
func (v *Values) Clone() *Values {
	out := NewValues()
	out.Merge(v)
	return out
}

// sortedKeys returns the keys of m in lexical order.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
