package choro

import (
	"math"
	"sort"
)

// screenPoint is a projected vertex in viewport pixels.
type screenPoint struct {
	X float64
	Y float64
}

// idRaster is a downsampled integer-labeled buffer used to approximate
// occlusion without a depth buffer. Faces are painted farthest-first with
// their owning region's id; whatever id a pixel holds at the end is the
// frontmost visible region there.
type idRaster struct {
	w, h  int
	scale int
	ids   []int32 // -1 = empty
}

// newIDRaster sizes a raster for a full-resolution viewport, reduced by
// the downsample factor.
func newIDRaster(fullW, fullH, scale int) *idRaster {
	if scale < 1 {
		scale = 1
	}
	w := (fullW + scale - 1) / scale
	h := (fullH + scale - 1) / scale
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	ids := make([]int32, w*h)
	for i := range ids {
		ids[i] = -1
	}
	return &idRaster{w: w, h: h, scale: scale, ids: ids}
}

func (r *idRaster) at(x, y int) int32 {
	return r.ids[y*r.w+x]
}

// fillPolygon paints a polygon given in full-resolution screen coordinates
// with the region id, using even-odd scanline filling at raster
// resolution. Inner rings passed as separate polygons therefore punch
// holes only if painted with a different id; region faces are convex-ish
// caps and quads, so even-odd per face is enough.
func (r *idRaster) fillPolygon(poly []screenPoint, id int32) {
	if len(poly) < 3 {
		return
	}

	s := float64(r.scale)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range poly {
		py := p.Y / s
		if py < minY {
			minY = py
		}
		if py > maxY {
			maxY = py
		}
	}

	y0 := int(math.Floor(minY))
	y1 := int(math.Ceil(maxY))
	if y0 < 0 {
		y0 = 0
	}
	if y1 > r.h-1 {
		y1 = r.h - 1
	}

	xs := make([]float64, 0, 8)
	for y := y0; y <= y1; y++ {
		yc := float64(y) + 0.5
		xs = xs[:0]
		for i := 0; i < len(poly); i++ {
			p1 := poly[i]
			p2 := poly[(i+1)%len(poly)]
			y1f, y2f := p1.Y/s, p2.Y/s
			if (y1f <= yc) == (y2f <= yc) {
				continue
			}
			t := (yc - y1f) / (y2f - y1f)
			xs = append(xs, (p1.X+t*(p2.X-p1.X))/s)
		}
		if len(xs) < 2 {
			continue
		}
		sort.Float64s(xs)

		for k := 0; k+1 < len(xs); k += 2 {
			x0 := int(math.Ceil(xs[k] - 0.5))
			x1 := int(math.Ceil(xs[k+1]-0.5)) - 1
			if x0 < 0 {
				x0 = 0
			}
			if x1 > r.w-1 {
				x1 = r.w - 1
			}
			row := y * r.w
			for x := x0; x <= x1; x++ {
				r.ids[row+x] = id
			}
		}
	}
}

// cluster accumulates one 4-connected component of a single region id.
type cluster struct {
	size int
	sumX int64
	sumY int64
}

// centroid returns the component's pixel centroid scaled back to full
// resolution (pixel centers).
func (c cluster) centroid(scale int) (float64, float64) {
	s := float64(scale)
	cx := (float64(c.sumX)/float64(c.size) + 0.5) * s
	cy := (float64(c.sumY)/float64(c.size) + 0.5) * s
	return cx, cy
}

// largestClusters runs one flood-fill labeling pass over the raster and
// returns, for every region id present, its largest 4-connected component.
// A region split by taller neighbors keeps only its biggest visible patch,
// which is where its label belongs.
func (r *idRaster) largestClusters() map[int32]cluster {
	visited := make([]bool, len(r.ids))
	best := make(map[int32]cluster)
	queue := make([]int, 0, 256)

	for start, id := range r.ids {
		if id < 0 || visited[start] {
			continue
		}

		cur := cluster{}
		queue = append(queue[:0], start)
		visited[start] = true
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]

			cur.size++
			cur.sumX += int64(idx % r.w)
			cur.sumY += int64(idx / r.w)

			x, y := idx%r.w, idx/r.w
			if x > 0 && !visited[idx-1] && r.ids[idx-1] == id {
				visited[idx-1] = true
				queue = append(queue, idx-1)
			}
			if x < r.w-1 && !visited[idx+1] && r.ids[idx+1] == id {
				visited[idx+1] = true
				queue = append(queue, idx+1)
			}
			if y > 0 && !visited[idx-r.w] && r.ids[idx-r.w] == id {
				visited[idx-r.w] = true
				queue = append(queue, idx-r.w)
			}
			if y < r.h-1 && !visited[idx+r.w] && r.ids[idx+r.w] == id {
				visited[idx+r.w] = true
				queue = append(queue, idx+r.w)
			}
		}

		if cur.size > best[id].size {
			best[id] = cur
		}
	}
	return best
}
