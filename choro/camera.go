package choro

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// Projector turns a geographic position plus elevation into screen
// coordinates and a depth. The label engine and snapshot renderers depend
// only on this interface; Camera is the built-in implementation.
type Projector interface {
	// Project returns viewport pixels (x right, y down) and a depth that
	// grows with distance from the eye. Positions outside the view frustum
	// come back non-finite.
	Project(lng, lat, elevMeters float64) (x, y, depth float64)
}

// earthCircumference is 2*pi*R for the WGS84/web-mercator sphere, meters.
const earthCircumference = 2 * math.Pi * 6378137

// Camera is a web-mercator perspective camera. World space is the mercator
// plane scaled to worldSize = 512*2^zoom pixels with y growing south;
// elevation becomes world pixels through the meters-per-pixel factor at the
// center latitude. The camera sits 1.5 viewport heights from the center
// along the pitched view axis, which pins the center-plane scale to one
// world pixel per screen pixel.
type Camera struct {
	view   ViewState
	width  float64
	height float64

	worldSize      float64
	centerX        float64
	centerY        float64
	pixelsPerMeter float64

	sinB, cosB float64 // bearing
	sinP, cosP float64 // pitch

	dist  float64 // camera to center, px
	focal float64 // cot(fovY/2)
	near  float64
	far   float64
}

// NewCamera builds a camera for a view state and viewport size in pixels.
func NewCamera(view ViewState, width, height float64) *Camera {
	view = clampView(view)
	c := &Camera{
		view:      view,
		width:     width,
		height:    height,
		worldSize: 512 * math.Pow(2, view.Zoom),
	}

	c.centerX, c.centerY = c.worldPoint(view.Lon, view.Lat)
	c.pixelsPerMeter = c.worldSize / (earthCircumference * math.Cos(view.Lat*math.Pi/180))

	bearingRad := view.Bearing * math.Pi / 180
	pitchRad := view.Pitch * math.Pi / 180
	c.sinB, c.cosB = math.Sin(bearingRad), math.Cos(bearingRad)
	c.sinP, c.cosP = math.Sin(pitchRad), math.Cos(pitchRad)

	// fovY = 2*atan(1/3) (~36.9 deg), so the eye sits 1.5 viewport heights
	// out and focal length is exactly 3 half-heights.
	c.focal = 3
	c.dist = c.focal * height / 2
	c.near = height / 50
	c.far = c.dist * 50
	return c
}

// View returns the camera's view state.
func (c *Camera) View() ViewState {
	return c.view
}

// worldPoint maps lng/lat onto the scaled mercator plane.
func (c *Camera) worldPoint(lng, lat float64) (float64, float64) {
	merc := project.WGS84.ToMercator(orb.Point{lng, lat})
	mx := merc[0]/earthCircumference + 0.5
	my := 0.5 - merc[1]/earthCircumference
	return mx * c.worldSize, my * c.worldSize
}

// Project implements Projector.
func (c *Camera) Project(lng, lat, elevMeters float64) (x, y, depth float64) {
	wx, wy := c.worldPoint(lng, lat)
	px := wx - c.centerX
	py := wy - c.centerY
	pz := elevMeters * c.pixelsPerMeter

	// Bearing: rotate the world so that heading Bearing points up-screen.
	rx := px*c.cosB + py*c.sinB
	ry := -px*c.sinB + py*c.cosB

	// Pitch: eye basis for a camera orbited Pitch degrees off vertical,
	// south of the center, looking back at it.
	ex := rx
	ey := ry*c.cosP - pz*c.sinP
	depth = c.dist - ry*c.sinP - pz*c.cosP

	if depth < c.near || depth > c.far || !finite(depth) {
		return math.NaN(), math.NaN(), math.NaN()
	}

	halfH := c.height / 2
	x = c.width/2 + c.focal*ex/depth*halfH
	y = halfH + c.focal*ey/depth*halfH
	if !finite(x) || !finite(y) {
		return math.NaN(), math.NaN(), math.NaN()
	}
	return x, y, depth
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
