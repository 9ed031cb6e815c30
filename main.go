package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions carries the parsed CLI flags.
type AppOptions struct {
	ConfigFile string
	DataDir    string
	Year       int
	Port       int
	RenderOut  string
	SVGOut     string
	StateArg   string
	ModeArg    string
	LevelArg   string
	MetricArg  string
	Width      int
	Height     int
	Serve      bool
	Inspect    bool
	Verbose    bool
}

// runner is the command surface main dispatches to.
type runner interface {
	ApplyOptions(AppOptions)
	RunInspect()
	RunRender()
	RunService()
}

func run(args []string, out io.Writer, app runner) error {
	fs := flag.NewFlagSet("parcelview", flag.ContinueOnError)
	fs.SetOutput(out)

	configFile := fs.String("config", "config.yaml", "Path to configuration file")
	dataDir := fs.String("data", "", "Data directory override (GeoJSON feature collections)")
	year := fs.Int("year", 0, "Tax year override")
	port := fs.Int("port", 0, "HTTP port override")
	serve := fs.Bool("serve", false, "Run the HTTP + MQTT service")
	renderOut := fs.String("render", "", "Render one PNG frame to this path and exit")
	svgOut := fs.String("svg", "", "Render one SVG frame to this path and exit")
	stateArg := fs.String("state", "", "Encoded camera state for offline renders")
	modeArg := fs.String("mode", "", "Display mode as level:metric (e.g. lot:paid)")
	levelArg := fs.String("level", "", "Display level (unit, lot, block, ward)")
	metricArg := fs.String("metric", "", "Display metric (paid, billed, paid_per_sqft, paid_per_capita)")
	width := fs.Int("width", 0, "Viewport width override in pixels")
	height := fs.Int("height", 0, "Viewport height override in pixels")
	inspect := fs.Bool("inspect", false, "Parse the configured datasets, print summaries, and exit")
	verbose := fs.Bool("verbose", false, "Log per-frame detail")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "parcelview version: %s\n", Version)

	app.ApplyOptions(AppOptions{
		ConfigFile: *configFile,
		DataDir:    *dataDir,
		Year:       *year,
		Port:       *port,
		RenderOut:  *renderOut,
		SVGOut:     *svgOut,
		StateArg:   *stateArg,
		ModeArg:    *modeArg,
		LevelArg:   *levelArg,
		MetricArg:  *metricArg,
		Width:      *width,
		Height:     *height,
		Serve:      *serve,
		Inspect:    *inspect,
		Verbose:    *verbose,
	})

	switch {
	case *inspect:
		app.RunInspect()
	case *renderOut != "" || *svgOut != "":
		app.RunRender()
	case *serve:
		app.RunService()
	default:
		fmt.Fprintln(out, "Use -serve to run the HTTP + MQTT service")
		fmt.Fprintln(out, "Use -render out.png [-state \"40.7178 -74.0431 12.0 45 0\"] [-mode lot:paid] for a single frame")
		fmt.Fprintln(out, "Use -svg out.svg for a vector frame")
		fmt.Fprintln(out, "Use -inspect to summarize the configured datasets")
		fmt.Fprintln(out, "\nConfiguration:")
		fmt.Fprintln(out, "  config.yaml - HTTP/MQTT settings, datasets, modes")
		fmt.Fprintln(out, "  .parcelview-state.json - persisted camera state")
	}
	return nil
}

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			log.Printf("Warning: failed to load .env: %v", err)
		}
	}

	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("parcelview: %v", err)
	}
}
