package placement

import (
	"testing"

	"github.com/aukilabs/teiwaz/featureflag"
	"github.com/aukilabs/teiwaz/geometry"
	"github.com/aukilabs/teiwaz/models"
	"github.com/stretchr/testify/require"
)

func newTestRevalidator(obstacles obstacleList, flags ...string) *Revalidator {
	return &Revalidator{
		Provider:        obstacles,
		Config:          testConfig(),
		MinLeaderLength: 0.25,
		Flags:           featureflag.New(flags),
	}
}

func slabTag(id string, anchor, head geometry.Point) models.Tag {
	return models.Tag{
		ID:        id,
		ElementID: "element-" + id,
		Anchor:    anchor,
		Head:      head,
		Bounds:    geometry.RectFromCenter(head, 1, 0.5),
		HasLeader: true,
	}
}

func TestRevalidateProcessesFarthestFirst(t *testing.T) {
	// A slab along the x axis blocks every tag head. The three tags have
	// displacements 10, 6 and 2 and must be corrected in that order.
	slab := models.Obstacle{ID: "slab", Bounds: geometry.NewRect(0, 30, -1, 1)}

	tags := []models.Tag{
		slabTag("near", geometry.NewPoint(5, 0), geometry.NewPoint(7, 0)),
		slabTag("far", geometry.NewPoint(5, 0), geometry.NewPoint(15, 0)),
		slabTag("mid", geometry.NewPoint(5, 0), geometry.NewPoint(11, 0)),
	}

	obstacles := obstacleList{slab}
	for _, tag := range tags {
		obstacles = append(obstacles, models.Obstacle{ID: tag.ID, Bounds: tag.Bounds})
	}

	proposals := newTestRevalidator(obstacles).Run(tags)
	require.Len(t, proposals, 3)
	require.Equal(t, "far", proposals[0].TagID)
	require.Equal(t, "mid", proposals[1].TagID)
	require.Equal(t, "near", proposals[2].TagID)

	for _, p := range proposals {
		require.False(t, p.Fallback)
		require.True(t, p.HasLeader)
		// corrected heads escape the slab
		require.Equal(t, 0.0, geometry.RectFromCenter(p.Head, 1, 0.5).OverlapArea(slab.Bounds))
	}
}

func TestRevalidateSkipsNonCollidingTags(t *testing.T) {
	slab := models.Obstacle{ID: "slab", Bounds: geometry.NewRect(0, 30, -1, 1)}

	blocked := slabTag("blocked", geometry.NewPoint(5, -3), geometry.NewPoint(10, 0))
	clear := slabTag("clear", geometry.NewPoint(5, -5), geometry.NewPoint(10, -5))

	obstacles := obstacleList{
		slab,
		{ID: blocked.ID, Bounds: blocked.Bounds},
		{ID: clear.ID, Bounds: clear.Bounds},
	}

	proposals := newTestRevalidator(obstacles).Run([]models.Tag{blocked, clear})
	require.Len(t, proposals, 1)
	require.Equal(t, "blocked", proposals[0].TagID)
}

func TestRevalidateMovedTagsNotReinserted(t *testing.T) {
	// Two identical tags over the slab. Equal displacement ties break on
	// ascending id, and since the first tag's corrected rectangle is not
	// inserted back as an obstacle, the second tag lands on the exact same
	// spot.
	slab := models.Obstacle{ID: "slab", Bounds: geometry.NewRect(0, 30, -1, 1)}

	a := slabTag("a", geometry.NewPoint(10, -3), geometry.NewPoint(10, 0))
	b := slabTag("b", geometry.NewPoint(10, -3), geometry.NewPoint(10, 0))

	obstacles := obstacleList{
		slab,
		{ID: a.ID, Bounds: a.Bounds},
		{ID: b.ID, Bounds: b.Bounds},
	}

	proposals := newTestRevalidator(obstacles).Run([]models.Tag{b, a})
	require.Len(t, proposals, 2)
	require.Equal(t, "a", proposals[0].TagID)
	require.Equal(t, "b", proposals[1].TagID)
	require.Equal(t, proposals[0].Head, proposals[1].Head)
}

func TestRevalidateFallback(t *testing.T) {
	everything := obstacleList{
		{ID: "everything", Bounds: geometry.NewRect(-100, 100, -100, 100)},
	}

	tag := slabTag("trapped", geometry.NewPoint(0, 0), geometry.NewPoint(10, 1))

	t.Run("fully blocked tag gets a least-overlap proposal", func(t *testing.T) {
		proposals := newTestRevalidator(everything).Run([]models.Tag{tag})
		require.Len(t, proposals, 1)
		require.True(t, proposals[0].Fallback)
		require.Greater(t, proposals[0].ResidualOverlap, 0.0)
	})

	t.Run("disabled fallback drops the tag instead", func(t *testing.T) {
		r := newTestRevalidator(everything, string(featureflag.FlagDisableLeastOverlapFallback))
		require.Empty(t, r.Run([]models.Tag{tag}))
	})
}

func TestRevalidateDegenerateBasis(t *testing.T) {
	// Every search against a degenerate basis is a no-op, so revalidation
	// must not surface any proposal, not even a fallback one.
	slab := models.Obstacle{ID: "slab", Bounds: geometry.NewRect(0, 30, -1, 1)}

	tag := slabTag("a", geometry.NewPoint(10, -3), geometry.NewPoint(10, 0))

	r := newTestRevalidator(obstacleList{
		slab,
		{ID: tag.ID, Bounds: tag.Bounds},
	})
	r.Config.Basis.Right = geometry.Vec3{}

	require.Empty(t, r.Run([]models.Tag{tag}))
}

func TestRevalidateSuppressesInsignificantChanges(t *testing.T) {
	// The tag's measured rectangle hangs below its head into the slab, so
	// the tag is processed, but the same-size rectangle centered at the head
	// is free: the corrective search returns the head unchanged and the
	// zero-delta proposal must be suppressed.
	slab := models.Obstacle{ID: "slab", Bounds: geometry.NewRect(0, 30, -1, 1)}

	tag := models.Tag{
		ID:        "a",
		Anchor:    geometry.NewPoint(10, -3),
		Head:      geometry.NewPoint(10, 1.6),
		Bounds:    geometry.NewRect(9.5, 10.5, 0.8, 1.3),
		HasLeader: true,
	}

	obstacles := obstacleList{
		slab,
		{ID: tag.ID, Bounds: tag.Bounds},
	}

	t.Run("zero delta with unchanged leader is suppressed", func(t *testing.T) {
		require.Empty(t, newTestRevalidator(obstacles).Run([]models.Tag{tag}))
	})

	t.Run("a leader flip is significant regardless of the delta", func(t *testing.T) {
		flipped := tag
		flipped.HasLeader = false

		proposals := newTestRevalidator(obstacles).Run([]models.Tag{flipped})
		require.Len(t, proposals, 1)
		require.Equal(t, flipped.Head, proposals[0].Head)
		require.True(t, proposals[0].HasLeader)
	})
}

func TestRevalidateLeaderDerivation(t *testing.T) {
	slab := models.Obstacle{ID: "slab", Bounds: geometry.NewRect(0, 30, -1, 1)}

	tag := slabTag("a", geometry.NewPoint(10, -3), geometry.NewPoint(10, 0))
	tag.HasLeader = false

	obstacles := obstacleList{
		slab,
		{ID: tag.ID, Bounds: tag.Bounds},
	}

	proposals := newTestRevalidator(obstacles).Run([]models.Tag{tag})
	require.Len(t, proposals, 1)

	p := proposals[0]
	require.True(t, p.HasLeader)
	require.Greater(t, tag.Anchor.DistanceTo(p.Head), 0.25)
}
