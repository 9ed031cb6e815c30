package choro

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"golang.org/x/image/font/basicfont"
)

// faceKind distinguishes the three face types of an extruded ring.
type faceKind int

const (
	faceBase faceKind = iota
	faceSide
	faceTop
)

// face is one screen-space polygon of an extruded region with its painter
// depth (mean of vertex depths).
type face struct {
	region int32
	kind   faceKind
	poly   []screenPoint
	depth  float64
}

// buildRegionFaces projects every ring of every region at ground level and
// at its extrusion height and assembles the painter face list: a base cap,
// a top cap, and one side quad per ring edge. Rings with fewer than three
// distinct vertices, or with any vertex that fails to project to a finite
// screen position, are dropped without affecting their siblings.
func buildRegionFaces(regions []Region, variant string, elev func(*Region) float64, proj Projector) []face {
	faces := make([]face, 0, len(regions)*4)

	for i := range regions {
		height := elev(&regions[i])
		for _, ring := range regions[i].RingsFor(variant) {
			pts := openRing(ring)
			if len(pts) < 3 {
				continue
			}

			ground := make([]screenPoint, len(pts))
			top := make([]screenPoint, len(pts))
			groundD := make([]float64, len(pts))
			topD := make([]float64, len(pts))
			ok := true
			for j, p := range pts {
				gx, gy, gd := proj.Project(p[0], p[1], 0)
				tx, ty, td := proj.Project(p[0], p[1], height)
				if !finite(gx) || !finite(gy) || !finite(gd) ||
					!finite(tx) || !finite(ty) || !finite(td) {
					ok = false
					break
				}
				ground[j] = screenPoint{X: gx, Y: gy}
				top[j] = screenPoint{X: tx, Y: ty}
				groundD[j] = gd
				topD[j] = td
			}
			if !ok {
				continue
			}

			faces = append(faces, face{
				region: int32(i),
				kind:   faceBase,
				poly:   ground,
				depth:  mean(groundD),
			})
			if height > 0 {
				for j := range pts {
					k := (j + 1) % len(pts)
					faces = append(faces, face{
						region: int32(i),
						kind:   faceSide,
						poly:   []screenPoint{ground[j], ground[k], top[k], top[j]},
						depth:  (groundD[j] + groundD[k] + topD[k] + topD[j]) / 4,
					})
				}
			}
			faces = append(faces, face{
				region: int32(i),
				kind:   faceTop,
				poly:   top,
				depth:  mean(topD),
			})
		}
	}
	return faces
}

func mean(vs []float64) float64 {
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// openRing strips a closing duplicate vertex so face edges are not
// degenerate.
func openRing(ring orb.Ring) []orb.Point {
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		return ring[:len(ring)-1]
	}
	return ring
}

// labelRect is a label candidate during collision resolution: a rectangle
// footprint centered on the anchor.
type labelRect struct {
	key  string
	text string
	x, y float64
	w, h float64
}

// LabelEngine places one occlusion-aware label per visible region and
// spreads overlapping labels apart. It is a pure function of its inputs;
// every call recomputes the full label set.
type LabelEngine struct {
	Downsample int     // raster reduction factor
	MaxPasses  int     // collision relaxation passes
	Damping    float64 // fraction of the overlap resolved per pass
	Margin     float64 // viewport clamp margin, px
	PadX       float64 // rectangle padding around text, px
	PadY       float64
}

// NewLabelEngine returns an engine with the stock tuning.
func NewLabelEngine() *LabelEngine {
	return &LabelEngine{
		Downsample: 4,
		MaxPasses:  50,
		Damping:    0.5,
		Margin:     4,
		PadX:       6,
		PadY:       4,
	}
}

// Place computes the label set for the current camera. Faces of all
// regions are painted farthest-first into a downsampled id raster; each
// region's largest visible patch anchors its label; rectangle footprints
// then relax apart until no overlap exceeds a pixel.
func (e *LabelEngine) Place(regions []Region, metric Metric, style *StyleSession, proj Projector, width, height float64) []Label {
	if len(regions) == 0 || width <= 0 || height <= 0 {
		return []Label{}
	}

	variant := style.table.Variant(style.Mode())
	elevFor := func(r *Region) float64 { return style.ElevationFor(r.Value(metric)) }

	faces := buildRegionFaces(regions, variant, elevFor, proj)
	if len(faces) == 0 {
		return []Label{}
	}

	// Painter order: farthest first so nearer faces overwrite.
	sort.SliceStable(faces, func(i, j int) bool { return faces[i].depth > faces[j].depth })

	raster := newIDRaster(int(width), int(height), e.Downsample)
	for _, f := range faces {
		raster.fillPolygon(f.poly, f.region)
	}

	clusters := raster.largestClusters()
	rects := make([]labelRect, 0, len(clusters))
	for i := range regions {
		cl, ok := clusters[int32(i)]
		if !ok || cl.size == 0 {
			continue
		}
		cx, cy := cl.centroid(e.Downsample)
		text := labelText(&regions[i], metric)
		w, h := e.textFootprint(text)
		rects = append(rects, labelRect{
			key:  regions[i].Key,
			text: text,
			x:    cx,
			y:    cy,
			w:    w,
			h:    h,
		})
	}

	e.resolveCollisions(rects, width, height)

	labels := make([]Label, len(rects))
	for i, r := range rects {
		labels[i] = Label{RegionKey: r.key, X: r.x, Y: r.y, Text: r.text}
	}
	return labels
}

// textFootprint sizes a label rectangle from its line count and longest
// line, using the renderer's fixed 7x13 glyph cell.
func (e *LabelEngine) textFootprint(text string) (w, h float64) {
	lines := strings.Split(text, "\n")
	longest := 0
	for _, line := range lines {
		if len(line) > longest {
			longest = len(line)
		}
	}
	fw := float64(basicfont.Face7x13.Advance)
	fh := float64(basicfont.Face7x13.Height)
	return float64(longest)*fw + 2*e.PadX, float64(len(lines))*fh + 2*e.PadY
}

// resolveCollisions pushes overlapping label pairs apart along the axis
// with the smaller overlap, a damped fraction per pass, clamping into the
// viewport after every pass and stopping once the worst remaining overlap
// is sub-pixel.
func (e *LabelEngine) resolveCollisions(rects []labelRect, width, height float64) {
	for pass := 0; pass < e.MaxPasses; pass++ {
		worst := 0.0
		for i := 0; i < len(rects); i++ {
			for j := i + 1; j < len(rects); j++ {
				a, b := &rects[i], &rects[j]
				dx := b.x - a.x
				dy := b.y - a.y
				overlapX := (a.w+b.w)/2 - math.Abs(dx)
				overlapY := (a.h+b.h)/2 - math.Abs(dy)
				if overlapX <= 0 || overlapY <= 0 {
					continue
				}

				if overlapX < overlapY {
					if overlapX > worst {
						worst = overlapX
					}
					shift := overlapX * e.Damping / 2
					if dx < 0 {
						shift = -shift
					}
					a.x -= shift
					b.x += shift
				} else {
					if overlapY > worst {
						worst = overlapY
					}
					shift := overlapY * e.Damping / 2
					if dy < 0 {
						shift = -shift
					}
					a.y -= shift
					b.y += shift
				}
			}
		}

		for i := range rects {
			r := &rects[i]
			r.x = clampCenter(r.x, r.w/2+e.Margin, width-r.w/2-e.Margin)
			r.y = clampCenter(r.y, r.h/2+e.Margin, height-r.h/2-e.Margin)
		}

		if worst < 1 {
			break
		}
	}
}

// clampCenter clamps with a midpoint fallback when the rectangle is wider
// than the clamp range.
func clampCenter(v, lo, hi float64) float64 {
	if lo > hi {
		return (lo + hi) / 2
	}
	return clamp(v, lo, hi)
}

// labelText builds the display text: name line plus formatted metric line.
func labelText(r *Region, metric Metric) string {
	name := r.Name
	if name == "" {
		name = r.Key
	}
	return name + "\n" + formatMetric(metric, r.Value(metric))
}

// formatMetric renders a metric value the way the info panel shows it.
func formatMetric(m Metric, v float64) string {
	switch m {
	case MetricPaidPerSqft:
		return fmt.Sprintf("$%.2f/sqft", v)
	case MetricPaidPerCapita:
		return "$" + thousands(int64(math.Round(v))) + "/cap"
	default:
		return "$" + thousands(int64(math.Round(v)))
	}
}

// thousands formats an integer with comma separators.
func thousands(n int64) string {
	neg := n < 0
	if neg {
		n = -n
	}
	s := fmt.Sprintf("%d", n)
	if len(s) > 3 {
		var b strings.Builder
		lead := len(s) % 3
		if lead > 0 {
			b.WriteString(s[:lead])
		}
		for i := lead; i < len(s); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(s[i : i+3])
		}
		s = b.String()
	}
	if neg {
		return "-" + s
	}
	return s
}
