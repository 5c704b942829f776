package spatial

// Uniform Grid Index
//
// A uniformly sub-divided grid used as the broad phase for collision
// queries. The particularities are:
//  - the grid has a cell size that defines how large a cell is, fixed at
//    construction. An obstacle whose bounding box spans multiple cells is
//    referenced from every covered cell.
//  - cells are keyed by floor(coord / cellSize), so the grid is unbounded
//    and needs no origin or growth logic.
//  - a range query unions the buckets of the covered cell range and is a
//    superset of the true intersecting set. Callers must still run the
//    exact overlap test.

import (
	"math"
	"sort"

	"github.com/aukilabs/teiwaz/geometry"
	"github.com/aukilabs/teiwaz/models"
)

// DefaultCellSize is used when a grid is constructed with a degenerate cell
// size.
const DefaultCellSize = 5.0

type cellKey struct {
	x int
	y int
}

type gridEntry struct {
	seq      int
	obstacle *models.Obstacle
}

// GridIndex is a uniform-grid broad-phase index over obstacle rectangles.
type GridIndex struct {
	cellSize float64
	nextSeq  int
	buckets  map[cellKey][]gridEntry
}

func NewGridIndex(cellSize float64) *GridIndex {
	if cellSize <= 0 {
		cellSize = DefaultCellSize
	}
	return &GridIndex{
		cellSize: cellSize,
		buckets:  make(map[cellKey][]gridEntry),
	}
}

func (g *GridIndex) CellSize() float64 {
	return g.cellSize
}

// Count is the number of inserted obstacles.
func (g *GridIndex) Count() int {
	return g.nextSeq
}

func (g *GridIndex) cellRange(r geometry.Rect) (minX, maxX, minY, maxY int) {
	minX = int(math.Floor(r.MinX / g.cellSize))
	maxX = int(math.Floor(r.MaxX / g.cellSize))
	minY = int(math.Floor(r.MinY / g.cellSize))
	maxY = int(math.Floor(r.MaxY / g.cellSize))
	return minX, maxX, minY, maxY
}

// Insert references the obstacle from every cell covered by its bounding
// box, inclusive on both ends.
func (g *GridIndex) Insert(o *models.Obstacle) {
	entry := gridEntry{
		seq:      g.nextSeq,
		obstacle: o,
	}
	g.nextSeq++

	minX, maxX, minY, maxY := g.cellRange(o.Bounds)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			key := cellKey{x: x, y: y}
			g.buckets[key] = append(g.buckets[key], entry)
		}
	}
}

// Query returns every obstacle referenced from the cell range covered by r,
// deduplicated by identity. The result is ordered by insertion so that
// repeated runs over identical input are reproducible.
func (g *GridIndex) Query(r geometry.Rect) []*models.Obstacle {
	minX, maxX, minY, maxY := g.cellRange(r)

	seen := make(map[int]*models.Obstacle)
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			for _, entry := range g.buckets[cellKey{x: x, y: y}] {
				seen[entry.seq] = entry.obstacle
			}
		}
	}

	seqs := make([]int, 0, len(seen))
	for seq := range seen {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	obstacles := make([]*models.Obstacle, len(seqs))
	for i, seq := range seqs {
		obstacles[i] = seen[seq]
	}
	return obstacles
}

// QueryRadius queries the bounding square of side 2*radius around center.
func (g *GridIndex) QueryRadius(center geometry.Point, radius float64) []*models.Obstacle {
	return g.Query(geometry.NewRect(
		center.X-radius,
		center.X+radius,
		center.Y-radius,
		center.Y+radius,
	))
}

// Clear drops all buckets. Used only when rebuilding an index from scratch.
func (g *GridIndex) Clear() {
	g.buckets = make(map[cellKey][]gridEntry)
	g.nextSeq = 0
}
