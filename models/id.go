package models

import "github.com/google/uuid"

// NewID returns the identity for a server-created object. Host-supplied
// identities (element ids, tag ids) are opaque strings and are never
// generated here.
func NewID() string {
	return uuid.NewString()
}
