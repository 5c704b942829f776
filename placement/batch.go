package placement

import (
	"sort"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/teiwaz/featureflag"
	"github.com/aukilabs/teiwaz/geometry"
	"github.com/aukilabs/teiwaz/models"
)

// SignificanceTolerance is the position delta below which a revalidation
// proposal is suppressed (0.5 mm in model units). A leader-presence change
// is significant regardless of the delta.
const SignificanceTolerance = 0.5 * geometry.FeetPerMillimeter

// Proposal is a displacement proposal for one revalidated tag.
type Proposal struct {
	TagID     string
	Head      geometry.Point
	HasLeader bool

	// Fallback reports that no collision-free position existed and the head
	// is the least-overlap candidate, with ResidualOverlap the remaining
	// overlap area.
	Fallback        bool
	ResidualOverlap float64
}

// Revalidator re-validates a set of already-placed tags in one batch pass.
//
// Tags are processed farthest-displaced first: a tag already pushed far
// from its anchor needs the most aggressive correction, and resolving it
// first keeps it from displacing closer tags that would otherwise have to
// move out of its way. Each tag gets a fresh detector whose snapshot
// excludes the tag's own identity and every tag already moved in this pass.
type Revalidator struct {
	// Provider yields the obstacle snapshot each per-tag detector is built
	// from.
	Provider models.ObstacleProvider

	Config Config

	// Head offsets beyond this distance get a leader line. Also the minimum
	// distance from the anchor for corrected positions.
	MinLeaderLength float64

	Flags featureflag.FeatureFlag
}

// Run processes the tags and returns the significant displacement
// proposals in processing order.
func (r *Revalidator) Run(tags []models.Tag) []Proposal {
	// A degenerate basis makes every search a no-op, so there is nothing to
	// propose for any tag.
	if r.Config.Basis.IsDegenerate() {
		return nil
	}

	sorted := make([]models.Tag, len(tags))
	copy(sorted, tags)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := sorted[i].Displacement(), sorted[j].Displacement()
		if di != dj {
			return di > dj
		}
		return sorted[i].ID < sorted[j].ID
	})

	moved := make(map[string]struct{})
	var proposals []Proposal

	for _, tag := range sorted {
		instrumentRevalidatedTag()

		excluded := make(map[string]struct{}, len(moved)+1)
		for id := range moved {
			excluded[id] = struct{}{}
		}
		excluded[tag.ID] = struct{}{}

		detector := NewDetector(r.Config)
		detector.CollectObstacles(r.Provider, excluded)

		// Tags with no conflict at their current position are left
		// untouched, even if their ideal position under current settings
		// differs.
		if !detector.HasCollisionWithActualBounds(tag.Bounds) {
			continue
		}

		proposal := Proposal{TagID: tag.ID}

		head, found := detector.FindValidPositionWithActualSize(tag.Anchor, tag.Head, tag.Bounds, r.MinLeaderLength)
		if !found {
			if r.Flags.IsSet(featureflag.FlagDisableLeastOverlapFallback) {
				continue
			}

			r0, rMax := searchRadiusBounds(tag.Displacement(), r.MinLeaderLength)
			var residual float64
			head, residual = detector.SelectLeastOverlapCandidate(tag.Anchor, tag.Bounds.Width(), tag.Bounds.Height(), r0, rMax)

			proposal.Fallback = true
			proposal.ResidualOverlap = residual

			logs.WithTag("tag_id", tag.ID).
				WithTag("element_id", tag.ElementID).
				WithTag("residual_overlap", residual).
				Warn("no collision-free position found, proposing least-overlap candidate")
		}

		proposal.Head = head
		proposal.HasLeader = tag.Anchor.DistanceTo(head) > r.MinLeaderLength

		if head.DistanceTo(tag.Head) <= SignificanceTolerance &&
			proposal.HasLeader == tag.HasLeader {
			continue
		}

		proposals = append(proposals, proposal)
		instrumentProposal()

		// Later tags see this tag only through the identity exclusion. Its
		// post-move rectangle is intentionally not inserted as an obstacle,
		// so the pass converges under repetition rather than in one shot.
		moved[tag.ID] = struct{}{}
	}

	return proposals
}
