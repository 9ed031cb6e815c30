package main

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/parcelview/parcelview/choro"
)

// lotFeature builds one lot-level GeoJSON feature with a square footprint.
func lotFeature(block, lot, qual, addr string, paid float64, lon, lat float64) string {
	h := 0.01
	key := ""
	if qual != "" {
		key = fmt.Sprintf(`, "qual": %q`, qual)
	}
	return fmt.Sprintf(`{
		"type": "Feature",
		"properties": {"block": %q, "lot": %q%s, "hadd": %q, "paid": %v, "billed": %v},
		"geometry": {"type": "Polygon", "coordinates": [[
			[%v, %v], [%v, %v], [%v, %v], [%v, %v], [%v, %v]
		]]}
	}`, block, lot, key, addr, paid, paid*1.05,
		lon-h, lat-h, lon+h, lat-h, lon+h, lat+h, lon-h, lat+h, lon-h, lat-h)
}

// writeCollection writes a feature collection to dir and returns its path.
func writeCollection(t *testing.T, dir, name string, features ...string) string {
	t.Helper()
	body := `{"type": "FeatureCollection", "features": [`
	for i, f := range features {
		if i > 0 {
			body += ","
		}
		body += f
	}
	body += `]}`

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	return path
}

// ---------------------------------------------------------------------------
// mode resolution
// ---------------------------------------------------------------------------

func TestModeArg(t *testing.T) {
	config := choro.DefaultConfig()
	config.Viewport.DefaultMode = "block:paid_per_capita"

	tests := []struct {
		name   string
		mode   string
		level  string
		metric string
		want   string
	}{
		{"no flags", "", "", "", ""},
		{"mode wins", "ward:paid", "block", "billed", "ward:paid"},
		{"level merges with configured metric", "", "ward", "", "ward:paid_per_capita"},
		{"metric merges with configured level", "", "", "paid", "block:paid"},
		{"level and metric", "", "lot", "billed", "lot:billed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := NewApp()
			app.Config = config
			app.ModeArg = tt.mode
			app.LevelArg = tt.level
			app.MetricArg = tt.metric
			if got := app.modeArg(); got != tt.want {
				t.Errorf("modeArg() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModeArg_NoConfig(t *testing.T) {
	app := NewApp()
	app.LevelArg = "ward"
	if got := app.modeArg(); got != "ward:paid" {
		t.Errorf("modeArg() = %q, want %q", got, "ward:paid")
	}
}

// ---------------------------------------------------------------------------
// region loading
// ---------------------------------------------------------------------------

func TestLoadRegions(t *testing.T) {
	dir := t.TempDir()
	lotPath := writeCollection(t, dir, "lots.geojson",
		lotFeature("11101", "1", "", "100 Test St", 12000, -74.055, 40.714),
		lotFeature("11101", "2", "", "102 Test St", 25000, -74.045, 40.714),
	)

	config := choro.DefaultConfig()
	config.Data.Sources = map[string]string{"lot": lotPath}

	app := NewApp()
	app.loadRegions(config, choro.LevelLot)

	regions := app.regionsFor(choro.LevelLot)
	if len(regions) != 2 {
		t.Fatalf("loaded %d lot regions, want 2", len(regions))
	}
	if regions[0].Key != "11101-1" {
		t.Errorf("first key = %q, want %q", regions[0].Key, "11101-1")
	}
	if regions[0].Values[choro.MetricPaid] != 12000 {
		t.Errorf("paid = %v, want 12000", regions[0].Values[choro.MetricPaid])
	}
}

func TestLoadRegions_KeepsPreviousOnError(t *testing.T) {
	dir := t.TempDir()
	lotPath := writeCollection(t, dir, "lots.geojson",
		lotFeature("11101", "1", "", "100 Test St", 12000, -74.055, 40.714),
	)

	config := choro.DefaultConfig()
	config.Data.Sources = map[string]string{"lot": lotPath}

	app := NewApp()
	app.loadRegions(config, choro.LevelLot)
	if got := len(app.regionsFor(choro.LevelLot)); got != 1 {
		t.Fatalf("initial load: %d regions, want 1", got)
	}

	config.Data.Sources["lot"] = filepath.Join(dir, "missing.geojson")
	app.loadRegions(config, choro.LevelLot)

	if got := len(app.regionsFor(choro.LevelLot)); got != 1 {
		t.Errorf("after failed reload: %d regions, want previous 1 kept", got)
	}
}

func TestLoadRegions_AttachesUnitVariant(t *testing.T) {
	dir := t.TempDir()
	lotPath := writeCollection(t, dir, "lots.geojson",
		lotFeature("11101", "1", "", "100 Test St", 12000, -74.055, 40.714),
	)
	unitPath := writeCollection(t, dir, "units.geojson",
		lotFeature("11101", "1", "C0101", "100 Test St 101", 6000, -74.056, 40.7145),
		lotFeature("11101", "1", "C0102", "100 Test St 102", 6000, -74.054, 40.7135),
	)

	config := choro.DefaultConfig()
	config.Data.Sources = map[string]string{"lot": lotPath, "unit": unitPath}

	app := NewApp()
	app.loadRegions(config, choro.LevelUnit, choro.LevelLot)

	lots := app.regionsFor(choro.LevelLot)
	if len(lots) != 1 {
		t.Fatalf("loaded %d lot regions, want 1", len(lots))
	}
	variant := lots[0].Variants["units"]
	if len(variant) != 2 {
		t.Errorf("lot has %d unit rings, want 2", len(variant))
	}

	units := app.regionsFor(choro.LevelUnit)
	if len(units) != 2 {
		t.Errorf("loaded %d unit regions, want 2", len(units))
	}
	if units[0].Key != "11101-1-C0101" {
		t.Errorf("unit key = %q, want %q", units[0].Key, "11101-1-C0101")
	}
}

func TestRegionCounts(t *testing.T) {
	app := populatedApp()
	counts := app.regionCounts()
	if counts["lot"] != 3 {
		t.Errorf("counts[lot] = %d, want 3", counts["lot"])
	}
	if _, ok := counts["ward"]; ok {
		t.Error("counts should not include unloaded levels")
	}
}

// ---------------------------------------------------------------------------
// frame stepping
// ---------------------------------------------------------------------------

func TestStepFrame(t *testing.T) {
	app := NewApp()
	app.Tracker = choro.NewSessionTracker(choro.NewMemoryStore(), nil, choro.SessionDefaults{
		Width:  800,
		Height: 600,
		TTL:    time.Minute,
	})
	app.regions[choro.LevelLot] = testRegions()

	sess, created := app.Tracker.Ensure("frame-test")
	if !created {
		t.Fatal("expected a fresh session")
	}

	zoom := 13.0
	sess.QueueAbsolute(choro.ViewPartial{Zoom: &zoom})

	now := time.Now()
	app.stepFrame(now)

	if labels := sess.Labels(); len(labels) == 0 {
		t.Error("expected labels after a view change")
	}
	view, _ := sess.View()
	if view.Zoom != 13 {
		t.Errorf("zoom = %v, want 13 after stepFrame", view.Zoom)
	}

	// An untouched session expires once the TTL elapses.
	app.stepFrame(now.Add(2 * time.Minute))
	if app.Tracker.Count() != 0 {
		t.Errorf("sessions after sweep = %d, want 0", app.Tracker.Count())
	}
}

func TestStepFrame_NoChangeSkipsLabels(t *testing.T) {
	app := NewApp()
	app.Tracker = choro.NewSessionTracker(choro.NewMemoryStore(), nil, choro.SessionDefaults{
		Width:  800,
		Height: 600,
	})
	app.regions[choro.LevelLot] = testRegions()

	app.Tracker.Ensure("idle-test")
	app.stepFrame(time.Now()) // first step publishes the initial state

	before := testutil.ToFloat64(choro.LabelRecomputesTotal)
	app.stepFrame(time.Now())
	after := testutil.ToFloat64(choro.LabelRecomputesTotal)

	if after != before {
		t.Errorf("idle step recomputed labels %v times, want 0", after-before)
	}
}
