package geometry

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/lineintersector"
	"github.com/twpayne/go-geom/xy/orientation"
)

// DefaultQuadrantSegments is the number of chords approximating a quarter circle.
const DefaultQuadrantSegments = 16

// ErrDegenerateRing is returned when a ring has fewer than three distinct vertices.
var ErrDegenerateRing = eris.New("geometry: ring has fewer than three distinct vertices")

type generatorKind int

const (
	fromEdge generatorKind = iota
	fromArc
	fromConnector
)

// generator is the part of the input ring an offset segment was derived from.
type generator struct {
	kind generatorKind
	a, b geom.Coord
}

type offsetPoint struct {
	c geom.Coord
	// gen describes the segment leaving c.
	gen generator
}

type piece struct {
	start, end geom.Coord
	gen        generator
}

// Buffer grows the ring outward by dist planar units with round joins.
// The raw offset curve is noded at its self-intersections and only the pieces
// lying at the full buffer distance from the ring are kept, so concave
// corners and narrow gaps resolve the way a true buffer does. Holes are
// dropped. The result is an open counter-clockwise ring.
func Buffer(ring []geom.Coord, dist float64, quadSegs int) ([]geom.Coord, error) {
	base := removeSpikes(ring)
	if len(base) < 3 {
		return nil, ErrDegenerateRing
	}
	if SignedArea(base) < 0 {
		base = reversed(base)
	}
	if dist <= 0 {
		return base, nil
	}
	if quadSegs < 1 {
		quadSegs = DefaultQuadrantSegments
	}

	curve := offsetCurve(base, dist, quadSegs)
	baseFlat := flatCoords(base)
	var boundary []piece
	for _, p := range nodeCurve(curve) {
		if onBufferBoundary(p, base, baseFlat, dist) {
			boundary = append(boundary, p)
		}
	}

	var best []geom.Coord
	bestArea := 0.0
	for _, r := range chainPieces(boundary) {
		if a := SignedArea(r); a > bestArea {
			best, bestArea = r, a
		}
	}
	if best == nil || !containsAll(best, base) {
		return hullOf(curve), nil
	}
	return best, nil
}

func reversed(ring []geom.Coord) []geom.Coord {
	out := make([]geom.Coord, len(ring))
	for i, c := range ring {
		out[len(ring)-1-i] = c
	}
	return out
}

func unitNormal(a, b geom.Coord) (float64, float64) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	l := math.Hypot(dx, dy)
	return dy / l, -dx / l
}

// offsetCurve traces the raw offset of a counter-clockwise ring: each edge
// shifted outward, convex corners joined by arcs and reflex corners by a
// straight connector.
func offsetCurve(base []geom.Coord, dist float64, quadSegs int) []offsetPoint {
	n := len(base)
	var out []offsetPoint
	push := func(c geom.Coord, g generator) {
		if k := len(out); k > 0 && sameXY(out[k-1].c, c) {
			out[k-1].gen = g
			return
		}
		out = append(out, offsetPoint{c: c, gen: g})
	}

	for i := 0; i < n; i++ {
		prev, cur, next := base[(i+n-1)%n], base[i], base[(i+1)%n]
		n1x, n1y := unitNormal(prev, cur)
		n2x, n2y := unitNormal(cur, next)
		start := geom.Coord{cur[0] + dist*n1x, cur[1] + dist*n1y}
		end := geom.Coord{cur[0] + dist*n2x, cur[1] + dist*n2y}
		edge := generator{kind: fromEdge, a: cur, b: next}

		turn := xy.OrientationIndex(prev, cur, next)
		dot := (cur[0]-prev[0])*(next[0]-cur[0]) + (cur[1]-prev[1])*(next[1]-cur[1])
		switch {
		case turn == orientation.CounterClockwise || (turn == orientation.Collinear && dot < 0):
			arc := generator{kind: fromArc, a: cur}
			a1 := math.Atan2(n1y, n1x)
			sweep := math.Atan2(n2y, n2x) - a1
			for sweep <= 0 {
				sweep += 2 * math.Pi
			}
			segs := int(math.Ceil(sweep/(math.Pi/2)*float64(quadSegs) - 1e-9))
			push(start, arc)
			for k := 1; k < segs; k++ {
				ang := a1 + sweep*float64(k)/float64(segs)
				push(geom.Coord{cur[0] + dist*math.Cos(ang), cur[1] + dist*math.Sin(ang)}, arc)
			}
			push(end, edge)
		case turn == orientation.Clockwise:
			push(start, generator{kind: fromConnector, a: cur})
			push(end, edge)
		default:
			push(start, edge)
		}
	}
	if len(out) > 1 && sameXY(out[0].c, out[len(out)-1].c) {
		out = out[:len(out)-1]
	}
	return out
}

// nodeCurve splits every segment of the closed offset curve at its
// intersections with non-neighbouring segments.
func nodeCurve(curve []offsetPoint) []piece {
	m := len(curve)
	segs := make([]segment, m)
	for k := range curve {
		segs[k] = newSegment(k, curve[k].c, curve[(k+1)%m].c)
	}
	sorted := make([]segment, m)
	copy(sorted, segs)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].minX < sorted[b].minX })

	splits := make([][]geom.Coord, m)
	sweepPairs(sorted, func(a, b segment) bool {
		if adjacent(a.index, b.index, m) {
			return true
		}
		res := lineintersector.LineIntersectsLine(intersector, a.start, a.end, b.start, b.end)
		if !res.HasIntersection() {
			return true
		}
		for _, p := range res.Intersection() {
			node := geom.Coord{p[0], p[1]}
			splits[a.index] = append(splits[a.index], node)
			splits[b.index] = append(splits[b.index], node)
		}
		return true
	})

	pieces := make([]piece, 0, m)
	for k, s := range segs {
		pts := splitSegment(s.start, s.end, splits[k])
		for t := 0; t+1 < len(pts); t++ {
			pieces = append(pieces, piece{start: pts[t], end: pts[t+1], gen: curve[k].gen})
		}
	}
	return pieces
}

// splitSegment orders the split nodes along the segment and returns the
// resulting vertex chain, endpoints included.
func splitSegment(start, end geom.Coord, nodes []geom.Coord) []geom.Coord {
	if len(nodes) == 0 {
		return []geom.Coord{start, end}
	}
	dx, dy := end[0]-start[0], end[1]-start[1]
	lenSq := dx*dx + dy*dy
	param := func(c geom.Coord) float64 {
		if lenSq == 0 {
			return 0
		}
		return ((c[0]-start[0])*dx + (c[1]-start[1])*dy) / lenSq
	}
	sort.SliceStable(nodes, func(i, j int) bool { return param(nodes[i]) < param(nodes[j]) })

	out := []geom.Coord{start}
	for _, c := range nodes {
		if sameXY(c, out[len(out)-1]) || sameXY(c, end) {
			continue
		}
		out = append(out, c)
	}
	return append(out, end)
}

// onBufferBoundary reports whether a noded piece of the offset curve lies on
// the outline of the buffer, i.e. no part of the ring is closer to it than
// the piece's own generator.
func onBufferBoundary(p piece, base []geom.Coord, baseFlat []float64, dist float64) bool {
	if p.gen.kind == fromConnector {
		return false
	}
	mid := geom.Coord{(p.start[0] + p.end[0]) / 2, (p.start[1] + p.end[1]) / 2}
	if xy.IsPointInRing(geom.XY, mid, baseFlat) {
		return false
	}
	own := dist
	if p.gen.kind == fromArc {
		own = xy.Distance(mid, p.gen.a)
	}
	tolerance := own * 1e-9
	n := len(base)
	for i := 0; i < n; i++ {
		if xy.DistanceFromPointToLine(mid, base[i], base[(i+1)%n]) < own-tolerance {
			return false
		}
	}
	return true
}

// chainPieces links boundary pieces end to start into closed open-form rings.
// Chains that cannot be closed are discarded.
func chainPieces(pieces []piece) [][]geom.Coord {
	byStart := make(map[[2]float64][]int, len(pieces))
	for i, p := range pieces {
		k := [2]float64{p.start[0], p.start[1]}
		byStart[k] = append(byStart[k], i)
	}
	used := make([]bool, len(pieces))
	next := func(at geom.Coord) int {
		for _, idx := range byStart[[2]float64{at[0], at[1]}] {
			if !used[idx] {
				return idx
			}
		}
		return -1
	}

	var rings [][]geom.Coord
	for i := range pieces {
		if used[i] {
			continue
		}
		used[i] = true
		origin := pieces[i].start
		ring := []geom.Coord{origin}
		at := pieces[i].end
		closed := false
		for steps := 0; steps <= len(pieces); steps++ {
			if sameXY(at, origin) {
				closed = true
				break
			}
			idx := next(at)
			if idx < 0 {
				break
			}
			used[idx] = true
			ring = append(ring, at)
			at = pieces[idx].end
		}
		if closed && len(ring) >= 3 {
			rings = append(rings, ring)
		}
	}
	return rings
}

func containsAll(outer, inner []geom.Coord) bool {
	flat := flatCoords(outer)
	for _, c := range inner {
		if !xy.IsPointInRing(geom.XY, c, flat) {
			return false
		}
	}
	return true
}

// hullOf returns the convex hull of the offset curve, which always encloses
// the buffer.
func hullOf(curve []offsetPoint) []geom.Coord {
	flat := make([]float64, 0, 2*len(curve))
	for _, p := range curve {
		flat = append(flat, p.c[0], p.c[1])
	}
	hull, ok := xy.ConvexHullFlat(geom.XY, flat).(*geom.Polygon)
	if !ok || hull.NumLinearRings() == 0 {
		out := make([]geom.Coord, len(curve))
		for i, p := range curve {
			out[i] = p.c
		}
		return out
	}
	ring := openRing(hull.LinearRing(0).Coords())
	if SignedArea(ring) < 0 {
		ring = reversed(ring)
	}
	return ring
}
