package choro

import (
	"bytes"
	"image/color"
	"image/png"
	"strings"
	"testing"
)

func vectorInput() ([]Region, RenderInput) {
	regions := []Region{paidRegion("11101-1", 12000, geoSquare(-74.055, 40.714, 0.02))}
	in := RenderInput{
		View:   ViewState{Lat: 40.714, Lon: -74.055, Zoom: 13},
		Styles: []FeatureStyle{{Key: "11101-1", FillColor: "#cc3322"}},
		Width:  800,
		Height: 600,
	}
	return regions, in
}

func TestRenderSVG(t *testing.T) {
	regions, in := vectorInput()
	frame := NewVectorFrame(regions, in)

	var buf bytes.Buffer
	if err := frame.RenderSVG(&buf); err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<svg") {
		t.Error("output missing <svg element")
	}
	if !strings.Contains(out, "</svg>") {
		t.Error("output missing closing tag")
	}
	if !strings.Contains(out, "<path") {
		t.Error("output has no path elements")
	}
}

func TestRenderSVG_LabelMarkers(t *testing.T) {
	regions, in := vectorInput()

	var plain bytes.Buffer
	if err := NewVectorFrame(regions, in).RenderSVG(&plain); err != nil {
		t.Fatalf("RenderSVG: %v", err)
	}

	in.Labels = []Label{{RegionKey: "11101-1", X: 400, Y: 300, Text: "11101-1\n$12,000"}}
	var labeled bytes.Buffer
	if err := NewVectorFrame(regions, in).RenderSVG(&labeled); err != nil {
		t.Fatalf("RenderSVG with labels: %v", err)
	}

	plainPaths := strings.Count(plain.String(), "<path")
	labeledPaths := strings.Count(labeled.String(), "<path")
	if labeledPaths <= plainPaths {
		t.Errorf("labeled frame has %d paths, plain has %d; want marker paths added", labeledPaths, plainPaths)
	}
}

func TestRenderPNG(t *testing.T) {
	regions, in := vectorInput()
	frame := NewVectorFrame(regions, in)

	var buf bytes.Buffer
	if err := frame.RenderPNG(&buf); err != nil {
		t.Fatalf("RenderPNG: %v", err)
	}

	img, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := img.Bounds(); got.Dx() != 800 || got.Dy() != 600 {
		t.Errorf("bounds = %v, want 800x600", got)
	}

	// The fill is red-dominant, so the painted region pulls green down
	// from the white background.
	found := false
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !found; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			_, g, _, _ := img.At(x, y).RGBA()
			if g < 0xc000 {
				found = true
				break
			}
		}
	}
	if !found {
		t.Error("rasterized frame is blank")
	}
}

func TestNRGBAToRGBA(t *testing.T) {
	tests := []struct {
		name string
		in   color.NRGBA
		want color.RGBA
	}{
		{"opaque", color.NRGBA{200, 100, 50, 255}, color.RGBA{200, 100, 50, 255}},
		{"transparent", color.NRGBA{200, 100, 50, 0}, color.RGBA{0, 0, 0, 0}},
		{"half", color.NRGBA{200, 100, 50, 128}, color.RGBA{100, 50, 25, 128}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := nrgbaToRGBA(tt.in); got != tt.want {
				t.Errorf("nrgbaToRGBA(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
