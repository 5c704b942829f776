package models

import (
	"testing"

	"github.com/aukilabs/teiwaz/geometry"
	"github.com/stretchr/testify/require"
)

func TestTagDisplacement(t *testing.T) {
	tag := Tag{
		Anchor: geometry.NewPoint(0, 0),
		Head:   geometry.NewPoint(3, 4),
	}
	require.Equal(t, 5.0, tag.Displacement())

	tag.Head = tag.Anchor
	require.Equal(t, 0.0, tag.Displacement())
}
