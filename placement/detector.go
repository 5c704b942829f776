package placement

import (
	"math"

	"github.com/aukilabs/teiwaz/geometry"
	"github.com/aukilabs/teiwaz/models"
	"github.com/aukilabs/teiwaz/spatial"
)

const (
	// Number of angularly even samples per search ring.
	angularSamples = 16

	// Minimum search radius. Avoids a zero-radius degenerate ring when the
	// intended position sits on the anchor.
	searchRadiusFloor = 0.5

	// The sweep covers at least this span, and at least three times the
	// initial radius.
	minSearchSpan      = 5.0
	radiusGrowthFactor = 3.0
)

// Config parameterizes a Detector for one placement run. All lengths are in
// the model's internal unit; unit conversion is the caller's responsibility.
type Config struct {
	// Minimum clearance between a tag and any obstacle. Negative values are
	// clamped to zero.
	Gap float64

	// Conservative tag footprint used before a tag physically exists.
	EstimatedWidth  float64
	EstimatedHeight float64

	// The view basis. A degenerate basis turns every search into a no-op.
	Basis geometry.Basis

	// Broad-phase cell size. Zero or negative selects the default.
	CellSize float64
}

// Detector finds collision-free tag positions in one view. It owns an
// existing-obstacle index populated once per run and a new-tag index that
// grows as tags are confirmed placed. An instance is created for one
// placement operation or one batch pass, used, and discarded; it must never
// be shared across views or concurrent operations.
type Detector struct {
	gap             float64
	estimatedWidth  float64
	estimatedHeight float64
	basis           geometry.Basis
	step            float64

	existing *spatial.GridIndex
	placed   *spatial.GridIndex
}

func NewDetector(cfg Config) *Detector {
	gap := cfg.Gap
	if gap < 0 {
		gap = 0
	}

	return &Detector{
		gap:             gap,
		estimatedWidth:  cfg.EstimatedWidth,
		estimatedHeight: cfg.EstimatedHeight,
		basis:           cfg.Basis,
		step:            cfg.Basis.SearchStep(),
		existing:        spatial.NewGridIndex(cfg.CellSize),
		placed:          spatial.NewGridIndex(cfg.CellSize),
	}
}

// CollectObstacles populates the existing-obstacle index from a snapshot,
// skipping obstacles whose identity is excluded. It is called once per run;
// the index is never mutated afterward.
func (d *Detector) CollectObstacles(provider models.ObstacleProvider, excludedIDs map[string]struct{}) {
	d.existing.Clear()

	for _, o := range provider.VisibleObstacles() {
		if _, ok := excludedIDs[o.ID]; ok {
			continue
		}
		d.existing.Insert(&o)
	}
}

// AddNewTag registers a confirmed tag rectangle so later placements in the
// same run treat it as an obstacle.
func (d *Detector) AddNewTag(bounds geometry.Rect) {
	d.placed.Insert(&models.Obstacle{
		ID:     models.NewID(),
		Bounds: bounds,
	})
}

// HasCollision reports whether a tag with the conservative estimated
// footprint centered at p would collide with any obstacle or placed tag.
func (d *Detector) HasCollision(p geometry.Point) bool {
	rect := geometry.RectFromCenter(p, d.estimatedWidth, d.estimatedHeight)
	return d.collides(rect)
}

// HasCollisionWithActualBounds runs the exact overlap test of a measured
// rectangle against both indices.
func (d *Detector) HasCollisionWithActualBounds(bounds geometry.Rect) bool {
	return d.collides(bounds)
}

func (d *Detector) collides(rect geometry.Rect) bool {
	// Both rectangles are inflated by gap in the exact test, so the
	// broad-phase query range has to reach 2*gap beyond the rectangle to
	// stay a superset.
	query := rect.Inflate(2 * d.gap)

	for _, o := range d.existing.Query(query) {
		if rect.Overlaps(o.Bounds, d.gap) {
			return true
		}
	}
	for _, o := range d.placed.Query(query) {
		if rect.Overlaps(o.Bounds, d.gap) {
			return true
		}
	}
	return false
}

// FindValidPosition returns a collision-free position for a tag with the
// conservative estimated footprint. The intended position is returned
// unchanged when it is already free; otherwise concentric rings around the
// anchor are sampled and the free candidate closest to the intended
// position wins. When the whole sweep fails, the unmodified intended
// position is returned with found=false.
func (d *Detector) FindValidPosition(anchor, intended geometry.Point) (geometry.Point, bool) {
	if d.basis.IsDegenerate() {
		instrumentSearch(outcomeDegenerate)
		return intended, false
	}

	if !d.HasCollision(intended) {
		instrumentSearch(outcomeFastPath)
		return intended, true
	}

	pos, found := d.search(anchor, intended, d.estimatedWidth, d.estimatedHeight, searchRadiusFloor)
	if !found {
		instrumentSearch(outcomeNotFound)
		return intended, false
	}

	instrumentSearch(outcomeMoved)
	return pos, true
}

// FindValidPositionWithActualSize is the corrective second pass run after
// the tag physically exists and its true footprint is known. The sweep is
// identical to FindValidPosition but candidate rectangles use the measured
// size and the minimum radius is floored at minDistanceFromAnchor.
func (d *Detector) FindValidPositionWithActualSize(anchor, intended geometry.Point, actual geometry.Rect, minDistanceFromAnchor float64) (geometry.Point, bool) {
	if d.basis.IsDegenerate() {
		instrumentSearch(outcomeDegenerate)
		return intended, false
	}

	width, height := actual.Width(), actual.Height()

	if !d.collides(geometry.RectFromCenter(intended, width, height)) {
		instrumentSearch(outcomeFastPath)
		return intended, true
	}

	minRadius := math.Max(searchRadiusFloor, minDistanceFromAnchor)
	pos, found := d.search(anchor, intended, width, height, minRadius)
	if !found {
		instrumentSearch(outcomeNotFound)
		return intended, false
	}

	instrumentSearch(outcomeMoved)
	return pos, true
}

func (d *Detector) search(anchor, intended geometry.Point, width, height, minRadius float64) (geometry.Point, bool) {
	d0 := anchor.DistanceTo(intended)
	r0, rMax := searchRadiusBounds(d0, minRadius)

	var best geometry.Point
	bestDist := math.Inf(1)
	found := false

	for radius := r0; radius <= rMax; radius += d.step {
		for k := 0; k < angularSamples; k++ {
			candidate := ringSample(anchor, radius, k)
			instrumentCandidateSampled()

			if d.collides(geometry.RectFromCenter(candidate, width, height)) {
				continue
			}

			// Distance is measured against the original intended position,
			// not the anchor, to preserve the caller's offset intent.
			if dist := candidate.DistanceTo(intended); dist < bestDist {
				best = candidate
				bestDist = dist
				found = true
			}
		}

		// Every candidate on a ring of radius r is at least |r - d0| from
		// the intended position, so once that lower bound clears the best
		// distance by two step widths no later ring can win.
		if found && radius-d0 > bestDist+2*d.step {
			break
		}
	}

	return best, found
}

// SelectLeastOverlapCandidate is the fallback used when the primary search
// fully fails. It repeats the ring sweep between minRadius and maxRadius
// and returns the candidate with the smallest total overlap area against
// both indices, plus that residual area. It always returns a position and
// is deterministic for identical inputs.
func (d *Detector) SelectLeastOverlapCandidate(anchor geometry.Point, width, height, minRadius, maxRadius float64) (geometry.Point, float64) {
	if d.basis.IsDegenerate() {
		return anchor, 0
	}

	if minRadius < searchRadiusFloor {
		minRadius = searchRadiusFloor
	}
	if maxRadius < minRadius {
		maxRadius = minRadius
	}

	var best geometry.Point
	bestArea := math.Inf(1)

	for radius := minRadius; radius <= maxRadius; radius += d.step {
		for k := 0; k < angularSamples; k++ {
			candidate := ringSample(anchor, radius, k)
			instrumentCandidateSampled()

			area := d.totalOverlapArea(geometry.RectFromCenter(candidate, width, height))
			if area < bestArea {
				best = candidate
				bestArea = area
			}

			if bestArea == 0 {
				instrumentFallback(0)
				return best, 0
			}
		}
	}

	instrumentFallback(bestArea)
	return best, bestArea
}

func (d *Detector) totalOverlapArea(rect geometry.Rect) float64 {
	var total float64
	for _, o := range d.existing.Query(rect) {
		total += rect.OverlapArea(o.Bounds)
	}
	for _, o := range d.placed.Query(rect) {
		total += rect.OverlapArea(o.Bounds)
	}
	return total
}

func ringSample(anchor geometry.Point, radius float64, k int) geometry.Point {
	theta := 2 * math.Pi * float64(k) / angularSamples
	return geometry.Point{
		X: anchor.X + radius*math.Cos(theta),
		Y: anchor.Y + radius*math.Sin(theta),
	}
}

// FallbackRadiusBounds returns the ring sweep range the least-overlap
// fallback should cover after a failed search toward intended.
func FallbackRadiusBounds(anchor, intended geometry.Point, minRadius float64) (r0, rMax float64) {
	return searchRadiusBounds(anchor.DistanceTo(intended), minRadius)
}

// searchRadiusBounds returns the ring sweep range for an intended position
// d0 away from the anchor.
func searchRadiusBounds(d0, minRadius float64) (r0, rMax float64) {
	r0 = math.Max(d0, math.Max(minRadius, searchRadiusFloor))
	rMax = math.Max(minSearchSpan, radiusGrowthFactor*r0)
	return r0, rMax
}
