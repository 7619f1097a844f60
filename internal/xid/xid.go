package xid

import "github.com/google/uuid"

// New returns a prefixed random identifier, e.g. "sale-1b4e28ba-...".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
