package choro

import (
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"sort"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Frame background and label chrome.
var (
	frameBackground = color.NRGBA{240, 240, 240, 255}
	labelBacking    = color.NRGBA{255, 255, 255, 200}
	labelInk        = color.NRGBA{20, 20, 20, 255}
)

// Side and base faces are darkened multiples of the top color so the
// extrusion reads as depth without lighting.
const (
	sideShade = 0.72
	baseShade = 0.55
)

// RenderFrame draws the extruded choropleth as the camera sees it: every
// face of every region painter-sorted and filled, then the label set on
// top. The same face pipeline feeds label placement, so what this image
// shows is exactly what the occlusion raster saw.
func RenderFrame(regions []Region, in RenderInput) *image.RGBA {
	w, h := in.Width, in.Height
	if w <= 0 {
		w = 1280
	}
	if h <= 0 {
		h = 800
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{frameBackground.R, frameBackground.G, frameBackground.B, 255})
		}
	}

	fills := make([]color.NRGBA, len(in.Styles))
	elevByKey := make(map[string]float64, len(in.Styles))
	for i, st := range in.Styles {
		c, ok := ParseHexColor(st.FillColor)
		if !ok {
			c = color.NRGBA{128, 128, 128, 255}
		}
		fills[i] = c
		elevByKey[st.Key] = st.Elevation
	}

	cam := NewCamera(in.View, float64(w), float64(h))
	faces := buildRegionFaces(regions, in.Variant, func(r *Region) float64 {
		return elevByKey[r.Key]
	}, cam)

	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].depth > faces[j].depth
	})

	for _, f := range faces {
		if int(f.region) >= len(fills) {
			continue
		}
		c := fills[f.region]
		switch f.kind {
		case faceSide:
			c = shade(c, sideShade)
		case faceBase:
			c = shade(c, baseShade)
		}
		fillScreenPolygon(img, f.poly, c)
	}

	for _, l := range in.Labels {
		drawLabel(img, l)
	}
	return img
}

// shade scales a color's channels toward black.
func shade(c color.NRGBA, f float64) color.NRGBA {
	return color.NRGBA{
		R: uint8(float64(c.R) * f),
		G: uint8(float64(c.G) * f),
		B: uint8(float64(c.B) * f),
		A: c.A,
	}
}

// fillScreenPolygon rasterizes one polygon with even-odd scanlines at
// full resolution.
func fillScreenPolygon(img *image.RGBA, poly []screenPoint, c color.NRGBA) {
	if len(poly) < 3 {
		return
	}
	bounds := img.Bounds()

	minY, maxY := poly[0].Y, poly[0].Y
	for _, p := range poly[1:] {
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}
	y0 := int(math.Max(0, math.Floor(minY)))
	y1 := int(math.Min(float64(bounds.Max.Y-1), math.Ceil(maxY)))

	rgba := color.RGBA{c.R, c.G, c.B, 255}
	var xs []float64
	for y := y0; y <= y1; y++ {
		yc := float64(y) + 0.5
		xs = xs[:0]
		for i := range poly {
			p1 := poly[i]
			p2 := poly[(i+1)%len(poly)]
			if (p1.Y <= yc) != (p2.Y <= yc) {
				t := (yc - p1.Y) / (p2.Y - p1.Y)
				xs = append(xs, p1.X+t*(p2.X-p1.X))
			}
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
			if x1 >= bounds.Max.X {
				x1 = bounds.Max.X - 1
			}
			for x := x0; x <= x1; x++ {
				img.SetRGBA(x, y, rgba)
			}
		}
	}
}

// drawLabel renders one label: translucent backing box, then the text
// lines centered on the anchor.
func drawLabel(img *image.RGBA, l Label) {
	lines := strings.Split(l.Text, "\n")
	face := basicfont.Face7x13

	longest := 0
	for _, line := range lines {
		if len(line) > longest {
			longest = len(line)
		}
	}
	boxW := longest*face.Advance + 12
	boxH := len(lines)*face.Height + 8

	x0 := int(l.X) - boxW/2
	y0 := int(l.Y) - boxH/2
	for y := y0; y < y0+boxH; y++ {
		for x := x0; x < x0+boxW; x++ {
			blendPixel(img, x, y, labelBacking)
		}
	}

	for i, line := range lines {
		lx := int(l.X) - len(line)*face.Advance/2
		ly := y0 + 4 + i*face.Height + face.Ascent
		drawText(img, lx, ly, line, labelInk)
	}
}

// blendPixel source-over-blends c onto an opaque background pixel.
func blendPixel(img *image.RGBA, x, y int, c color.NRGBA) {
	bounds := img.Bounds()
	if x < bounds.Min.X || x >= bounds.Max.X || y < bounds.Min.Y || y >= bounds.Max.Y {
		return
	}
	bg := img.RGBAAt(x, y)
	a := float64(c.A) / 255.0
	img.SetRGBA(x, y, color.RGBA{
		R: uint8(float64(c.R)*a + float64(bg.R)*(1-a)),
		G: uint8(float64(c.G)*a + float64(bg.G)*(1-a)),
		B: uint8(float64(c.B)*a + float64(bg.B)*(1-a)),
		A: 255,
	})
}

// drawText renders one line of text at the given baseline position.
func drawText(img *image.RGBA, x, y int, text string, c color.NRGBA) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// SavePNG writes an image to disk.
func SavePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	return png.Encode(f, img)
}
