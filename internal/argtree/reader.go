package argtree

// Reader consumes keys from a mapping without modifying it. Whatever was
// never taken is reported by Residual.
type Reader struct {
	prefix string
	m      *Mapping
	taken  map[string]bool
	nested []*Reader
}

// Read starts consuming m.
func Read(m *Mapping) *Reader {
	return &Reader{m: m, taken: make(map[string]bool)}
}

// Take returns the value under key and marks it consumed. A key holding the
// null literal counts as absent.
func (r *Reader) Take(key string) (Value, bool) {
	r.taken[key] = true
	v, ok := r.m.Get(key)
	if !ok || IsNone(v) {
		return nil, false
	}
	return v, true
}

// Sub consumes key and returns a reader over its mapping value, so that
// residual keys inside it are reported with a dotted prefix. ok is false when
// the key is absent; a present non-mapping value is returned as raw.
func (r *Reader) Sub(key string) (sub *Reader, raw Value, ok bool) {
	v, ok := r.Take(key)
	if !ok {
		return nil, nil, false
	}
	m, isMap := v.(*Mapping)
	if !isMap {
		return nil, v, true
	}
	sub = &Reader{prefix: r.prefix + key + ".", m: m, taken: make(map[string]bool)}
	r.nested = append(r.nested, sub)
	return sub, v, true
}

// Residual lists the keys that were never taken, in insertion order.
func (r *Reader) Residual() []string {
	var out []string
	for _, k := range r.m.Keys() {
		if !r.taken[k] {
			out = append(out, r.prefix+k)
		}
	}
	for _, n := range r.nested {
		out = append(out, n.Residual()...)
	}
	return out
}
