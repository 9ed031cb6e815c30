package choro

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/simplify"
)

// Dataset file naming follows the upstream tax pipeline: per-year lot and
// unit collections, plus static census-block and ward geometry.
func DatasetPath(dataDir string, level Level, year int) string {
	switch level {
	case LevelUnit:
		return filepath.Join(dataDir, fmt.Sprintf("taxes-%d-units.geojson", year))
	case LevelBlock:
		return filepath.Join(dataDir, "blocks.geojson")
	case LevelWard:
		return filepath.Join(dataDir, "wards.geojson")
	default:
		return filepath.Join(dataDir, fmt.Sprintf("taxes-%d.geojson", year))
	}
}

const (
	// defaultFetchTimeout bounds remote collection fetches.
	defaultFetchTimeout = 30 * time.Second

	// maxCollectionBytes caps a collection read at 100 MB.
	maxCollectionBytes = 100 << 20
)

// LoadOption configures collection loading.
type LoadOption func(*loadConfig)

type loadConfig struct {
	timeout  time.Duration
	client   *http.Client
	simplify float64 // Douglas-Peucker tolerance in degrees; 0 disables
}

func defaultLoadConfig() loadConfig {
	return loadConfig{timeout: defaultFetchTimeout}
}

// WithFetchTimeout sets the HTTP timeout for URL sources.
func WithFetchTimeout(d time.Duration) LoadOption {
	return func(c *loadConfig) {
		c.timeout = d
	}
}

// WithHTTPClient overrides the HTTP client (useful for testing).
func WithHTTPClient(client *http.Client) LoadOption {
	return func(c *loadConfig) {
		c.client = client
	}
}

// WithSimplify enables ring simplification at the given tolerance in
// degrees. Parcel outlines carry survey-grade vertex counts the raster
// never resolves; a tolerance around 1e-5 degrees (~1 m) halves them.
func WithSimplify(toleranceDeg float64) LoadOption {
	return func(c *loadConfig) {
		c.simplify = toleranceDeg
	}
}

// LoadDataset reads one feature collection from a file path or http(s)
// URL, transparently decompressing gzip, and converts it into regions for
// the aggregation level. The second return is the number of degenerate
// rings dropped during conversion.
func LoadDataset(source string, level Level, opts ...LoadOption) ([]Region, int, error) {
	cfg := defaultLoadConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	data, err := readCollection(source, cfg)
	if err != nil {
		return nil, 0, err
	}
	return ParseRegions(data, level, cfg.simplify)
}

func readCollection(source string, cfg loadConfig) ([]byte, error) {
	var raw []byte
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		client := cfg.client
		if client == nil {
			client = &http.Client{Timeout: cfg.timeout}
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
		if err != nil {
			return nil, fmt.Errorf("building request for %s: %w", source, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", source, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetching %s: status %d", source, resp.StatusCode)
		}
		raw, err = io.ReadAll(io.LimitReader(resp.Body, maxCollectionBytes))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", source, err)
		}
	} else {
		var err error
		raw, err = os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", source, err)
		}
	}

	// Gzip sniff: collections ship either plain or compressed.
	if len(raw) >= 2 && raw[0] == 0x1f && raw[1] == 0x8b {
		zr, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", source, err)
		}
		defer zr.Close()
		raw, err = io.ReadAll(io.LimitReader(zr, maxCollectionBytes))
		if err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", source, err)
		}
	}
	return raw, nil
}

// ParseRegions converts raw GeoJSON into regions for a level. Features
// without usable polygon geometry are skipped; degenerate rings (fewer
// than three distinct vertices) are dropped individually and counted.
func ParseRegions(data []byte, level Level, simplifyTol float64) ([]Region, int, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing feature collection: %w", err)
	}

	regions := make([]Region, 0, len(fc.Features))
	dropped := 0
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			dropped++
			continue
		}

		geom := f.Geometry
		if simplifyTol > 0 {
			geom = simplify.DouglasPeucker(simplifyTol).Simplify(geom.Clone())
		}

		rings, d := polygonRings(geom)
		dropped += d
		if len(rings) == 0 {
			continue
		}

		key, name, values := extractProperties(f.Properties, level)
		if key == "" {
			dropped++
			continue
		}
		regions = append(regions, Region{
			Key:    key,
			Name:   name,
			Rings:  rings,
			Values: values,
		})
	}
	return regions, dropped, nil
}

// polygonRings flattens polygon geometry to rings, dropping degenerate
// ones. The second return counts drops.
func polygonRings(geom orb.Geometry) ([]orb.Ring, int) {
	var rings []orb.Ring
	dropped := 0

	collect := func(p orb.Polygon) {
		for _, r := range p {
			if len(openRing(r)) < 3 {
				dropped++
				continue
			}
			rings = append(rings, r)
		}
	}

	switch g := geom.(type) {
	case orb.Polygon:
		collect(g)
	case orb.MultiPolygon:
		for _, p := range g {
			collect(p)
		}
	default:
		dropped++
	}
	return rings, dropped
}

// extractProperties pulls identity, display name, and metric values out of
// a feature's properties for the given level.
func extractProperties(props geojson.Properties, level Level) (key, name string, values map[Metric]float64) {
	values = make(map[Metric]float64)

	switch level {
	case LevelBlock:
		key = propString(props, "GEOID")
		name = key
		paid := props.MustFloat64("paid", 0)
		values[MetricPaid] = paid
		perCap := props.MustFloat64("paid_per_capita", 0)
		if perCap == 0 {
			if pop := props.MustFloat64("POP100", 0); pop > 0 {
				perCap = paid / pop
			}
		}
		values[MetricPaidPerCapita] = perCap

	case LevelWard:
		ward := propString(props, "ward")
		key = ward
		if ward != "" {
			name = "Ward " + ward
		}
		values[MetricPaid] = props.MustFloat64("paid", 0)

	default: // lot and unit share the parcel property layout
		key = blqKey(propString(props, "block"), propString(props, "lot"), propString(props, "qual"))
		name = propString(props, "hadd")
		values[MetricPaid] = props.MustFloat64("paid", 0)
		values[MetricBilled] = props.MustFloat64("billed", 0)
		values[MetricPaidPerSqft] = props.MustFloat64("paid_per_sqft", 0)
	}
	return key, name, values
}

// blqKey joins block-lot-qualifier and strips trailing dashes, matching
// the upstream join key ("12345-1" for a plain lot, "12345-1-C0101" for a
// condo unit).
func blqKey(block, lot, qual string) string {
	return strings.TrimRight(block+"-"+lot+"-"+qual, "-")
}

// propString reads a property that may arrive as a string or a number.
func propString(props geojson.Properties, key string) string {
	switch v := props[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// AttachVariant groups source regions under their parent's key prefix and
// attaches their rings as a named geometry variant. Condo-unit footprints
// attach to their dissolved lot this way: "12345-1-C0101" groups under
// "12345-1".
func AttachVariant(regions []Region, name string, source []Region) {
	grouped := make(map[string][]orb.Ring)
	for i := range source {
		parent := lotPrefix(source[i].Key)
		grouped[parent] = append(grouped[parent], source[i].Rings...)
	}

	for i := range regions {
		rings, ok := grouped[regions[i].Key]
		if !ok {
			continue
		}
		if regions[i].Variants == nil {
			regions[i].Variants = make(map[string][]orb.Ring)
		}
		regions[i].Variants[name] = rings
	}
}

// lotPrefix reduces a blq key to its block-lot prefix.
func lotPrefix(key string) string {
	parts := strings.Split(key, "-")
	if len(parts) <= 2 {
		return key
	}
	return strings.Join(parts[:2], "-")
}

// RegionSummary is the /regions.json row: identity plus metric values and
// a planar centroid for search/fly-to.
type RegionSummary struct {
	Key      string             `json:"key"`
	Name     string             `json:"name"`
	Values   map[Metric]float64 `json:"values"`
	Centroid orb.Point          `json:"centroid"`
}

// Summarize computes region summaries. The centroid is area-weighted over
// the region's rings.
func Summarize(regions []Region) []RegionSummary {
	out := make([]RegionSummary, 0, len(regions))
	for i := range regions {
		poly := make(orb.Polygon, 0, len(regions[i].Rings))
		for _, r := range regions[i].Rings {
			poly = append(poly, r)
		}
		centroid, _ := planar.CentroidArea(poly)
		out = append(out, RegionSummary{
			Key:      regions[i].Key,
			Name:     regions[i].Name,
			Values:   regions[i].Values,
			Centroid: centroid,
		})
	}
	return out
}
