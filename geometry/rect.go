package geometry

// Rect is an axis-aligned rectangle in view-plane coordinates. Min
// coordinates never exceed max coordinates.
type Rect struct {
	MinX float64
	MaxX float64
	MinY float64
	MaxY float64
}

// NewRect returns a rectangle with the given bounds, swapping coordinates
// when they are passed inverted.
func NewRect(minX, maxX, minY, maxY float64) Rect {
	if minX > maxX {
		minX, maxX = maxX, minX
	}
	if minY > maxY {
		minY, maxY = maxY, minY
	}
	return Rect{MinX: minX, MaxX: maxX, MinY: minY, MaxY: maxY}
}

// RectFromCenter returns the rectangle of the given size centered at c.
func RectFromCenter(c Point, width, height float64) Rect {
	return NewRect(c.X-width/2, c.X+width/2, c.Y-height/2, c.Y+height/2)
}

func (r Rect) Width() float64 {
	return r.MaxX - r.MinX
}

func (r Rect) Height() float64 {
	return r.MaxY - r.MinY
}

func (r Rect) Center() Point {
	return Point{
		X: (r.MinX + r.MaxX) / 2,
		Y: (r.MinY + r.MaxY) / 2,
	}
}

// Inflate grows the rectangle by d on every side.
func (r Rect) Inflate(d float64) Rect {
	return NewRect(r.MinX-d, r.MaxX+d, r.MinY-d, r.MaxY+d)
}

// Overlaps reports whether the two rectangles, each inflated by gap on every
// side, intersect. The gap models a minimum clearance buffer rather than
// literal touching. Callers clamp gap to >= 0.
func (r Rect) Overlaps(o Rect, gap float64) bool {
	if o.MaxX+gap < r.MinX-gap {
		return false
	}
	if o.MinX-gap > r.MaxX+gap {
		return false
	}
	if o.MaxY+gap < r.MinY-gap {
		return false
	}
	if o.MinY-gap > r.MaxY+gap {
		return false
	}
	return true
}

// ContainsPoint reports whether p lies within the rectangle inflated by gap.
// The point itself is not inflated.
func (r Rect) ContainsPoint(p Point, gap float64) bool {
	return p.X >= r.MinX-gap && p.X <= r.MaxX+gap &&
		p.Y >= r.MinY-gap && p.Y <= r.MaxY+gap
}

// OverlapArea is the exact area of the intersection of the two rectangles,
// without gap inflation. Zero when they do not intersect.
func (r Rect) OverlapArea(o Rect) float64 {
	w := min(r.MaxX, o.MaxX) - max(r.MinX, o.MinX)
	if w <= 0 {
		return 0
	}
	h := min(r.MaxY, o.MaxY) - max(r.MinY, o.MinY)
	if h <= 0 {
		return 0
	}
	return w * h
}
