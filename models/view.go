package models

import (
	"github.com/aukilabs/teiwaz/geometry"
	"github.com/google/uuid"
)

// View is the 2D projection a placement run operates in. A run, its
// detector, and every rectangle inside it are valid only for this view's
// basis; none of them may be reused across views.
type View struct {
	UUID  string
	Basis geometry.Basis
}

func NewView(basis geometry.Basis) *View {
	return &View{
		UUID:  uuid.NewString(),
		Basis: basis,
	}
}
