package geometry

import (
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/lineintersection"
	"github.com/twpayne/go-geom/xy/lineintersector"
	"github.com/twpayne/go-geom/xy/orientation"
)

// Repair failures.
var (
	ErrRepairEmpty     = eris.New("geometry: repaired ring is empty")
	ErrRepairMultiPart = eris.New("geometry: repaired ring splits into several parts")
	ErrRepairOverlap   = eris.New("geometry: ring has overlapping collinear edges")
	ErrRepairBudget    = eris.New("geometry: too many self-intersections to repair")
)

const maxRepairSplits = 10000

var intersector = lineintersector.RobustLineIntersector{}

type segment struct {
	index      int
	start, end geom.Coord
	minX, maxX float64
	minY, maxY float64
}

func newSegment(index int, start, end geom.Coord) segment {
	return segment{
		index: index,
		start: start,
		end:   end,
		minX:  math.Min(start[0], end[0]),
		maxX:  math.Max(start[0], end[0]),
		minY:  math.Min(start[1], end[1]),
		maxY:  math.Max(start[1], end[1]),
	}
}

// ringSegments returns the edges of an open ring, including the closing edge,
// sorted by their minimum x for sweeping.
func ringSegments(ring []geom.Coord) []segment {
	n := len(ring)
	segs := make([]segment, n)
	for i := range ring {
		segs[i] = newSegment(i, ring[i], ring[(i+1)%n])
	}
	sort.Slice(segs, func(a, b int) bool { return segs[a].minX < segs[b].minX })
	return segs
}

func adjacent(i, j, n int) bool {
	d := j - i
	if d < 0 {
		d = -d
	}
	return d == 1 || d == n-1
}

// sweepPairs calls fn for every pair of segments whose envelopes overlap.
// Iteration stops when fn returns false.
func sweepPairs(segs []segment, fn func(a, b segment) bool) {
	for x := range segs {
		sa := segs[x]
		for y := x + 1; y < len(segs) && segs[y].minX <= sa.maxX; y++ {
			sb := segs[y]
			if sb.maxY < sa.minY || sb.minY > sa.maxY {
				continue
			}
			if !fn(sa, sb) {
				return
			}
		}
	}
}

type crossing struct {
	first, second int
	point         geom.Coord
	collinear     bool
}

// findCrossing returns an intersection between two edges of an open ring
// other than the vertex shared by neighbouring edges.
func findCrossing(ring []geom.Coord) (crossing, bool) {
	n := len(ring)
	var found crossing
	ok := false
	sweepPairs(ringSegments(ring), func(a, b segment) bool {
		res := lineintersector.LineIntersectsLine(intersector, a.start, a.end, b.start, b.end)
		if !res.HasIntersection() {
			return true
		}
		collinear := res.Type() == lineintersection.CollinearIntersection
		i, j := a.index, b.index
		if i > j {
			i, j = j, i
		}
		if adjacent(i, j, n) && !collinear {
			return true
		}
		p := res.Intersection()[0]
		found = crossing{first: i, second: j, point: geom.Coord{p[0], p[1]}, collinear: collinear}
		ok = true
		return false
	})
	return found, ok
}

// CheckSimple reports whether the ring is a valid simple polygon boundary.
// When it is not, the returned reason names the problem and its location.
func CheckSimple(ring []geom.Coord) (string, bool) {
	open := Dedupe(ring)
	if len(open) < 3 {
		at := geom.Coord{0, 0}
		if len(open) > 0 {
			at = open[0]
		}
		return fmt.Sprintf("Too few points in geometry component[%g %g]", at[0], at[1]), false
	}
	if c, crosses := findCrossing(open); crosses {
		return fmt.Sprintf("Self-intersection[%g %g]", c.point[0], c.point[1]), false
	}
	return "", true
}

// removeSpikes drops vertices where the boundary doubles back on itself
// along a straight line, then removes consecutive duplicates.
func removeSpikes(ring []geom.Coord) []geom.Coord {
	ring = Dedupe(ring)
	for changed := true; changed && len(ring) >= 3; {
		changed = false
		n := len(ring)
		for i := 0; i < n; i++ {
			prev, cur, next := ring[(i+n-1)%n], ring[i], ring[(i+1)%n]
			if xy.OrientationIndex(prev, cur, next) != orientation.Collinear {
				continue
			}
			if (cur[0]-prev[0])*(next[0]-cur[0])+(cur[1]-prev[1])*(next[1]-cur[1]) >= 0 {
				continue
			}
			trimmed := make([]geom.Coord, 0, n-1)
			trimmed = append(trimmed, ring[:i]...)
			trimmed = append(trimmed, ring[i+1:]...)
			ring = Dedupe(trimmed)
			changed = true
			break
		}
	}
	return ring
}

// splitLoops cuts the ring at its self-intersections until every remaining
// loop is simple. Loops that collapse to fewer than three vertices are dropped.
func splitLoops(ring []geom.Coord, budget *int) ([][]geom.Coord, error) {
	ring = removeSpikes(ring)
	if len(ring) < 3 {
		return nil, nil
	}
	c, ok := findCrossing(ring)
	if !ok {
		return [][]geom.Coord{ring}, nil
	}
	if c.collinear {
		return nil, ErrRepairOverlap
	}
	*budget--
	if *budget < 0 {
		return nil, ErrRepairBudget
	}

	i, j := c.first, c.second
	inner := make([]geom.Coord, 0, j-i+1)
	inner = append(inner, c.point)
	inner = append(inner, ring[i+1:j+1]...)

	outer := make([]geom.Coord, 0, len(ring)-(j-i)+1)
	outer = append(outer, ring[:i+1]...)
	outer = append(outer, c.point)
	outer = append(outer, ring[j+1:]...)

	var loops [][]geom.Coord
	for _, part := range [][]geom.Coord{inner, outer} {
		sub, err := splitLoops(part, budget)
		if err != nil {
			return nil, err
		}
		loops = append(loops, sub...)
	}
	return loops, nil
}

// Repair re-nodes a self-intersecting ring at its crossings and keeps the
// loops winding in the same direction as the whole ring, the equivalent of
// a zero-width buffer. It succeeds only when exactly one loop with positive
// area remains; the result is an open ring.
func Repair(ring []geom.Coord) ([]geom.Coord, error) {
	total := SignedArea(ring)
	if total == 0 {
		return nil, ErrRepairEmpty
	}

	budget := maxRepairSplits
	loops, err := splitLoops(ring, &budget)
	if err != nil {
		return nil, err
	}

	var kept [][]geom.Coord
	for _, loop := range loops {
		a := SignedArea(loop)
		if a != 0 && (a > 0) == (total > 0) {
			kept = append(kept, loop)
		}
	}

	switch len(kept) {
	case 0:
		return nil, ErrRepairEmpty
	case 1:
		return kept[0], nil
	default:
		return nil, ErrRepairMultiPart
	}
}
