// Package ids centralizes identifier generation so every component derives
// UUIDs and ephemeral handles the same way.
package ids

import (
	"github.com/google/uuid"
	"github.com/rs/xid"
)

// New returns a fresh random UUID string, used for every persisted entity
// (projects, sessions, memories, skills, markers, instance metadata).
func New() string {
	return uuid.New().String()
}

// NewRingHandle returns a compact sortable ID for entries that never reach
// disk, such as slots in the ephemeral backend's ring buffer. xid is cheaper
// to generate per message than a full UUID and its lexical sort order
// matches insertion order, which is convenient for ring-buffer bookkeeping.
func NewRingHandle() string {
	return xid.New().String()
}
