package xid

import (
	"strings"

	"github.com/google/uuid"
)

// New returns a prefixed random identifier such as "sale-3f2c…". Used for
// idempotency keys and request ids; never for records the backend owns.
func New(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// Valid reports whether s looks like a key New could have produced.
func Valid(s string) bool {
	idx := strings.LastIndexByte(s, '-')
	raw := s[idx+1:]
	if len(raw) != 32 {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil
}
