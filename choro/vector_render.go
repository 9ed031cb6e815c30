package choro

import (
	"image/color"
	"image/png"
	"io"
	"sort"
	"strings"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"
)

// canvasRenderer is the subset both the svg and rasterizer backends
// implement.
type canvasRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// VectorFrame renders the extruded choropleth through a vector backend:
// resolution-independent SVG, or PNG via the canvas rasterizer. Canvas
// units are screen pixels.
type VectorFrame struct {
	Regions    []Region
	Input      RenderInput
	Resolution canvas.Resolution
}

func NewVectorFrame(regions []Region, in RenderInput) *VectorFrame {
	return &VectorFrame{
		Regions:    regions,
		Input:      in,
		Resolution: canvas.DPMM(1.0), // 1 canvas unit = 1 pixel
	}
}

// RenderSVG writes the frame as an SVG document.
func (v *VectorFrame) RenderSVG(w io.Writer) error {
	width := float64(v.Input.Width)
	height := float64(v.Input.Height)

	svgRenderer := svg.New(w, width, height, nil)
	v.renderToCanvas(svgRenderer, width, height)
	return svgRenderer.Close()
}

// RenderPNG rasterizes the frame and writes it as PNG.
func (v *VectorFrame) RenderPNG(w io.Writer) error {
	width := float64(v.Input.Width)
	height := float64(v.Input.Height)

	rast := rasterizer.New(width, height, v.Resolution, canvas.DefaultColorSpace)
	v.renderToCanvas(rast, width, height)
	return png.Encode(w, rast)
}

func (v *VectorFrame) renderToCanvas(renderer canvasRenderer, width, height float64) {
	bgStyle := canvas.DefaultStyle
	bgStyle.Fill = canvas.Paint{Color: canvas.White}
	renderer.RenderPath(canvas.Rectangle(width, height), bgStyle, canvas.Identity)

	fills := make([]color.NRGBA, len(v.Input.Styles))
	elevByKey := make(map[string]float64, len(v.Input.Styles))
	for i, st := range v.Input.Styles {
		c, ok := ParseHexColor(st.FillColor)
		if !ok {
			c = color.NRGBA{128, 128, 128, 255}
		}
		fills[i] = c
		elevByKey[st.Key] = st.Elevation
	}

	cam := NewCamera(v.Input.View, width, height)
	faces := buildRegionFaces(v.Regions, v.Input.Variant, func(r *Region) float64 {
		return elevByKey[r.Key]
	}, cam)

	sort.SliceStable(faces, func(i, j int) bool {
		return faces[i].depth > faces[j].depth
	})

	// Canvas y points up; screen y points down.
	toCanvas := func(p screenPoint) (float64, float64) {
		return p.X, height - p.Y
	}

	for _, f := range faces {
		if int(f.region) >= len(fills) {
			continue
		}
		fill := fills[f.region]
		switch f.kind {
		case faceSide:
			fill = shade(fill, sideShade)
		case faceBase:
			fill = shade(fill, baseShade)
		}

		style := canvas.DefaultStyle
		style.Fill = canvas.Paint{Color: nrgbaToRGBA(fill)}
		style.Stroke = canvas.Paint{Color: canvas.Transparent}
		if f.kind == faceTop {
			style.Stroke = canvas.Paint{Color: nrgbaToRGBA(shade(fill, 0.6))}
			style.StrokeWidth = 0.75
		}

		cp := &canvas.Path{}
		for i, pt := range f.poly {
			cx, cy := toCanvas(pt)
			if i == 0 {
				cp.MoveTo(cx, cy)
			} else {
				cp.LineTo(cx, cy)
			}
		}
		cp.Close()
		renderer.RenderPath(cp, style, canvas.Identity)
	}

	// Text needs a loaded font family in tdewolff/canvas; labels render
	// as backing boxes with anchor dots instead.
	v.renderLabelMarkers(renderer, height)
}

func (v *VectorFrame) renderLabelMarkers(renderer canvasRenderer, height float64) {
	face := 7.0 // glyph advance used for footprint sizing

	boxStyle := canvas.DefaultStyle
	boxStyle.Fill = canvas.Paint{Color: color.RGBA{255, 255, 255, 200}}
	boxStyle.Stroke = canvas.Paint{Color: color.RGBA{20, 20, 20, 255}}
	boxStyle.StrokeWidth = 0.5

	dotStyle := canvas.DefaultStyle
	dotStyle.Fill = canvas.Paint{Color: color.RGBA{20, 20, 20, 255}}
	dotStyle.Stroke = canvas.Paint{Color: canvas.Transparent}

	for _, l := range v.Input.Labels {
		lines := strings.Split(l.Text, "\n")
		longest := 0
		for _, line := range lines {
			if len(line) > longest {
				longest = len(line)
			}
		}
		boxW := float64(longest)*face + 12
		boxH := float64(len(lines))*13 + 8

		box := canvas.Rectangle(boxW, boxH)
		box = box.Translate(l.X-boxW/2, (height-l.Y)-boxH/2)
		renderer.RenderPath(box, boxStyle, canvas.Identity)

		dot := canvas.Circle(1.5)
		dot = dot.Translate(l.X, height-l.Y)
		renderer.RenderPath(dot, dotStyle, canvas.Identity)
	}
}

// nrgbaToRGBA premultiplies alpha; the canvas paint type expects
// premultiplied color.
func nrgbaToRGBA(c color.NRGBA) color.RGBA {
	if c.A == 0 {
		return color.RGBA{0, 0, 0, 0}
	}
	if c.A == 255 {
		return color.RGBA{c.R, c.G, c.B, 255}
	}
	alpha32 := uint32(c.A)
	return color.RGBA{
		R: uint8((uint32(c.R) * alpha32) / 255),
		G: uint8((uint32(c.G) * alpha32) / 255),
		B: uint8((uint32(c.B) * alpha32) / 255),
		A: c.A,
	}
}
