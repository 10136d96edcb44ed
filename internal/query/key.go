package query

import "strings"

// Key identifies a cacheable resource or collection, e.g. {"events", "42"}.
type Key []string

// keySep never appears in ids produced by the backend.
const keySep = "\x1f"

// String returns a stable map key for k.
func (k Key) String() string {
	return strings.Join(k, keySep)
}

// Display renders k for logs and error messages.
func (k Key) Display() string {
	return strings.Join(k, "/")
}

// HasPrefix reports whether the leading elements of k equal prefix.
// Every key has the empty prefix.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports whether k and other name the same entry.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

// Clone returns a copy that does not alias k.
func (k Key) Clone() Key {
	return append(Key(nil), k...)
}
