package http11

// Header stores a request's or response's headers inline, avoiding a map
// allocation for the common case. MaxHeaders (32) names/values live in
// fixed-size arrays; anything beyond that — or a single value wider than
// MaxHeaderValue — spills into a lazily-allocated overflow map. Inline
// header names are matched case-insensitively per RFC 7230 §3.2; overflow
// entries are keyed by their exact name bytes, so Get, Has, Set and Del
// find an overflow entry only under the spelling it was stored with.
// Both Add and Set reject any name or value carrying a bare CR or LF: an
// unfiltered value there is the core of HTTP response splitting (a
// crafted Set-Cookie or Location value that injects a second header or
// starts a new response entirely).
type Header struct {
	names  [MaxHeaders][MaxHeaderName]byte
	values [MaxHeaders][MaxHeaderValue]byte

	nameLens  [MaxHeaders]uint8
	valueLens [MaxHeaders]uint8

	count uint8

	// overflow holds headers that don't fit the inline arrays above —
	// more than MaxHeaders distinct names, or a value over MaxHeaderValue
	// bytes (still capped at 8KB total). nil until first needed.
	overflow map[string]string
}

// containsCRLF reports whether b contains a bare CR or LF byte.
func containsCRLF(b []byte) bool {
	for _, c := range b {
		if c == '\r' || c == '\n' {
			return true
		}
	}
	return false
}

// find returns the inline-storage index of name, or -1 if it isn't
// stored inline (it may still be in overflow).
func (h *Header) find(name []byte) int {
	for i := uint8(0); i < h.count; i++ {
		if h.nameLens[i] == uint8(len(name)) &&
			bytesEqualCaseInsensitive(h.names[i][:h.nameLens[i]], name) {
			return int(i)
		}
	}
	return -1
}

// removeInline deletes the inline entry at idx, shifting later entries
// down to keep storage contiguous.
func (h *Header) removeInline(idx int) {
	i := uint8(idx)
	if i < h.count-1 {
		copy(h.names[i:], h.names[i+1:])
		copy(h.values[i:], h.values[i+1:])
		copy(h.nameLens[i:], h.nameLens[i+1:])
		copy(h.valueLens[i:], h.valueLens[i+1:])
	}
	h.count--
}

// Add appends a header without checking for an existing value under the
// same name (unlike Set, which replaces). Both name and value are copied
// into Header's own storage, so the caller's slices can be reused
// immediately afterward.
//
// Returns ErrHeaderTooLarge if name exceeds MaxHeaderName or value
// exceeds the 8KB overflow ceiling, and ErrInvalidHeader if either
// contains a raw CR or LF byte (see the containsCRLF doc above).
func (h *Header) Add(name, value []byte) error {
	if len(name) > MaxHeaderName || len(value) > 8192 {
		return ErrHeaderTooLarge
	}
	if containsCRLF(value) || containsCRLF(name) {
		return ErrInvalidHeader
	}

	if h.count < MaxHeaders && len(value) <= MaxHeaderValue {
		idx := h.count
		copy(h.names[idx][:], name)
		copy(h.values[idx][:], value)
		h.nameLens[idx] = uint8(len(name))
		h.valueLens[idx] = uint8(len(value))
		h.count++
		return nil
	}

	if h.overflow == nil {
		h.overflow = make(map[string]string, 8)
	}
	h.overflow[string(name)] = string(value)
	return nil
}

// Get returns the value stored for name (case-insensitive for inline
// entries, exact for overflow entries), or nil if absent. The returned slice aliases Header's internal storage for
// inline entries and is only valid until the next Add/Set/Reset.
func (h *Header) Get(name []byte) []byte {
	if idx := h.find(name); idx >= 0 {
		return h.values[idx][:h.valueLens[idx]]
	}
	if h.overflow != nil {
		if val, ok := h.overflow[string(name)]; ok {
			return []byte(val)
		}
	}
	return nil
}

// GetString is Get, returning a string. Prefer Get in hot paths — this
// allocates to convert.
func (h *Header) GetString(name []byte) string {
	val := h.Get(name)
	if val == nil {
		return ""
	}
	return string(val)
}

// Has reports whether name is present (case-insensitive for inline
// entries, exact for overflow entries).
func (h *Header) Has(name []byte) bool {
	if h.find(name) >= 0 {
		return true
	}
	if h.overflow != nil {
		_, ok := h.overflow[string(name)]
		return ok
	}
	return false
}

// Set replaces any existing value for name, or adds it if absent. A
// value that previously fit inline but no longer does (grown past
// MaxHeaderValue) is relocated to overflow rather than truncated.
func (h *Header) Set(name, value []byte) error {
	if len(name) > MaxHeaderName || len(value) > 8192 {
		return ErrHeaderTooLarge
	}
	if containsCRLF(value) || containsCRLF(name) {
		return ErrInvalidHeader
	}

	if idx := h.find(name); idx >= 0 {
		if len(value) <= MaxHeaderValue {
			copy(h.values[idx][:], value)
			h.valueLens[idx] = uint8(len(value))
			return nil
		}
		nameStr := string(h.names[idx][:h.nameLens[idx]])
		h.removeInline(idx)
		if h.overflow == nil {
			h.overflow = make(map[string]string, 8)
		}
		h.overflow[nameStr] = string(value)
		return nil
	}

	if h.overflow != nil {
		nameStr := string(name)
		if _, ok := h.overflow[nameStr]; ok {
			h.overflow[nameStr] = string(value)
			return nil
		}
	}

	return h.Add(name, value)
}

// Del removes name (case-insensitive for inline entries, exact for
// overflow entries) if present; a no-op otherwise.
func (h *Header) Del(name []byte) {
	if idx := h.find(name); idx >= 0 {
		h.removeInline(idx)
		return
	}
	if h.overflow != nil {
		delete(h.overflow, string(name))
	}
}

// Len returns the total header count across inline and overflow storage.
func (h *Header) Len() int {
	total := int(h.count)
	if h.overflow != nil {
		total += len(h.overflow)
	}
	return total
}

// Reset clears Header for reuse from a pool. The overflow map, if any,
// is dropped rather than cleared in place so the GC can reclaim it.
func (h *Header) Reset() {
	h.count = 0
	h.overflow = nil
}

// VisitAll calls visitor for every stored header, inline entries first,
// then overflow (in unspecified map order). Iteration stops early if
// visitor returns false.
func (h *Header) VisitAll(visitor func(name, value []byte) bool) {
	for i := uint8(0); i < h.count; i++ {
		if !visitor(h.names[i][:h.nameLens[i]], h.values[i][:h.valueLens[i]]) {
			return
		}
	}
	if h.overflow != nil {
		for name, value := range h.overflow {
			if !visitor([]byte(name), []byte(value)) {
				return
			}
		}
	}
}

// bytesEqualCaseInsensitive compares a and b ASCII-case-insensitively,
// as RFC 7230 §3.2 requires for header field names.
func bytesEqualCaseInsensitive(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		if toLower(a[i]) != toLower(b[i]) {
			return false
		}
	}
	return true
}

// toLower lowercases an ASCII uppercase byte; anything else passes through.
func toLower(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + 32
	}
	return b
}
