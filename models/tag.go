package models

import "github.com/aukilabs/teiwaz/geometry"

// Tag is the current state of a placed annotation tag, as reported by the
// host for revalidation.
type Tag struct {
	ID        string
	ElementID string

	// Anchor is the reference point on the tagged element. Head is where the
	// tag's visible rectangle is centered.
	Anchor geometry.Point
	Head   geometry.Point

	// Bounds is the measured rectangle of the tag as rendered.
	Bounds geometry.Rect

	HasLeader bool
}

// Displacement is the current head-to-anchor distance. Batch revalidation
// processes the most displaced tags first.
func (t Tag) Displacement() float64 {
	return t.Head.DistanceTo(t.Anchor)
}
