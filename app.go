package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/parcelview/parcelview/choro"
)

// App encapsulates the service state and dependencies
type App struct {
	Config    *choro.Config
	Store     choro.Store
	Tracker   *choro.SessionTracker
	Engine    *choro.LabelEngine
	Publisher *choro.Publisher
	MQTT      *choro.MQTTService

	mu      sync.RWMutex
	regions map[choro.Level][]choro.Region
	started time.Time
	stop    chan struct{}

	// CLI flags (effectively dependencies)
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
	Verbose    bool
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Engine:  choro.NewLabelEngine(),
		regions: make(map[choro.Level][]choro.Region),
		started: time.Now(),
		stop:    make(chan struct{}),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.DataDir = opts.DataDir
	a.Year = opts.Year
	a.Port = opts.Port
	a.RenderOut = opts.RenderOut
	a.SVGOut = opts.SVGOut
	a.StateArg = opts.StateArg
	a.ModeArg = opts.ModeArg
	a.LevelArg = opts.LevelArg
	a.MetricArg = opts.MetricArg
	a.Width = opts.Width
	a.Height = opts.Height
	a.Serve = opts.Serve
	a.Verbose = opts.Verbose
}

func (a *App) debugf(format string, args ...any) {
	if a.Verbose {
		log.Printf(format, args...)
	}
}

// resolveConfig loads the config file when present, falls back to
// defaults otherwise, and layers the CLI overrides on top. Fatal only
// when the result is unusable.
func (a *App) resolveConfig() *choro.Config {
	var config *choro.Config
	if _, err := os.Stat(a.ConfigFile); err == nil {
		loaded, err := choro.LoadConfig(a.ConfigFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		config = loaded
		log.Printf("Loaded config from %s", a.ConfigFile)
	} else {
		config = choro.DefaultConfig()
		log.Printf("Config file %s not found, using defaults", a.ConfigFile)
	}
	a.Config = config

	if a.DataDir != "" {
		config.Data.Dir = a.DataDir
	}
	if a.Year != 0 {
		config.Data.Year = a.Year
	}
	if a.Port != 0 {
		config.HTTP.Port = a.Port
	}
	if a.Width != 0 {
		config.Viewport.Width = a.Width
	}
	if a.Height != 0 {
		config.Viewport.Height = a.Height
	}
	if mode := a.modeArg(); mode != "" {
		config.Viewport.DefaultMode = mode
	}

	if err := config.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	return config
}

// modeArg resolves the display mode from the CLI: -mode wins, otherwise
// -level/-metric fill in around the configured default.
func (a *App) modeArg() string {
	if a.ModeArg != "" {
		return a.ModeArg
	}
	if a.LevelArg == "" && a.MetricArg == "" {
		return ""
	}
	level, metric := "lot", "paid"
	if a.Config != nil && a.Config.Viewport.DefaultMode != "" {
		if k, err := choro.ParseModeKey(a.Config.Viewport.DefaultMode); err == nil {
			level, metric = string(k.Level), string(k.Metric)
		}
	}
	if a.LevelArg != "" {
		level = a.LevelArg
	}
	if a.MetricArg != "" {
		metric = a.MetricArg
	}
	return level + ":" + metric
}

var allLevels = []choro.Level{choro.LevelUnit, choro.LevelLot, choro.LevelBlock, choro.LevelWard}

// loadRegions loads the named levels' feature collections. A level that
// fails to load is logged and its previously loaded regions stay in
// place. Unit footprints attach to lots as the "units" geometry variant.
func (a *App) loadRegions(config *choro.Config, levels ...choro.Level) {
	var opts []choro.LoadOption
	if config.Data.Simplify > 0 {
		opts = append(opts, choro.WithSimplify(config.Data.Simplify))
	}

	loaded := make(map[choro.Level][]choro.Region)
	for _, level := range levels {
		source := config.DatasetSource(level)
		regions, dropped, err := choro.LoadDataset(source, level, opts...)
		if err != nil {
			a.mu.RLock()
			prev := len(a.regions[level])
			a.mu.RUnlock()
			log.Printf("Warning: failed to load %s regions from %s: %v (keeping %d previously loaded)",
				level, source, err, prev)
			continue
		}
		if dropped > 0 {
			a.debugf("[DATA] %s: dropped %d degenerate ring(s)", level, dropped)
		}
		log.Printf("[DATA] loaded %d %s regions from %s", len(regions), level, source)
		loaded[level] = regions
	}

	lots, haveLots := loaded[choro.LevelLot]
	units, haveUnits := loaded[choro.LevelUnit]
	if haveLots && haveUnits {
		choro.AttachVariant(lots, "units", units)
	}

	a.mu.Lock()
	for level, regions := range loaded {
		a.regions[level] = regions
	}
	a.mu.Unlock()
}

func (a *App) regionsFor(level choro.Level) []choro.Region {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.regions[level]
}

func (a *App) regionCounts() map[string]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	counts := make(map[string]int, len(a.regions))
	for level, regions := range a.regions {
		counts[string(level)] = len(regions)
	}
	return counts
}

// RunInspect loads every configured dataset and prints a summary per
// level.
func (a *App) RunInspect() {
	config := a.resolveConfig()
	a.loadRegions(config, allLevels...)

	for _, level := range allLevels {
		regions := a.regionsFor(level)
		fmt.Printf("=== %s (%d) ===\n", level, config.Data.Year)
		fmt.Printf("Source: %s\n", config.DatasetSource(level))
		if len(regions) == 0 {
			fmt.Printf("No regions loaded\n\n")
			continue
		}

		summaries := choro.Summarize(regions)
		totals := make(map[choro.Metric]float64)
		for _, s := range summaries {
			for m, v := range s.Values {
				totals[m] += v
			}
		}
		fmt.Printf("Regions: %d\n", len(summaries))
		for _, m := range []choro.Metric{choro.MetricPaid, choro.MetricBilled, choro.MetricPaidPerSqft, choro.MetricPaidPerCapita} {
			if total, ok := totals[m]; ok {
				fmt.Printf("  %s: total %.2f\n", m, total)
			}
		}

		sort.Slice(summaries, func(i, j int) bool {
			return summaries[i].Values[choro.MetricPaid] > summaries[j].Values[choro.MetricPaid]
		})
		top := summaries
		if len(top) > 5 {
			top = top[:5]
		}
		fmt.Printf("Top by paid:\n")
		for _, s := range top {
			name := s.Name
			if name == "" {
				name = s.Key
			}
			fmt.Printf("  %-30s %12.2f\n", name, s.Values[choro.MetricPaid])
		}
		fmt.Println()
	}
}

// RunRender renders one frame to disk and exits: a PNG when -render is
// set, an SVG when -svg is set, or both.
func (a *App) RunRender() {
	config := a.resolveConfig()

	mode := choro.ModeKey{Level: choro.LevelLot, Metric: choro.MetricPaid}
	if config.Viewport.DefaultMode != "" {
		k, err := choro.ParseModeKey(config.Viewport.DefaultMode)
		if err != nil {
			log.Fatalf("Invalid mode %q: %v", config.Viewport.DefaultMode, err)
		}
		mode = k
	}

	levels := []choro.Level{mode.Level}
	if mode.Level == choro.LevelLot {
		levels = append(levels, choro.LevelUnit)
	}
	a.loadRegions(config, levels...)
	regions := a.regionsFor(mode.Level)
	if len(regions) == 0 {
		log.Fatalf("No %s regions loaded from %s", mode.Level, config.DatasetSource(mode.Level))
	}

	store, err := choro.OpenFileStore(config.StateFile)
	if err != nil {
		log.Printf("Warning: failed to open state file %s: %v", config.StateFile, err)
		a.Store = choro.NewMemoryStore()
	} else {
		a.Store = store
	}

	tracker := choro.NewSessionTracker(a.Store, config.ModeTable(), config.SessionDefaults())
	sess, _ := tracker.Ensure("render")
	if a.StateArg != "" {
		sess.QueueEncoded(a.StateArg)
	}
	sess.QueueMode(mode)
	sess.Step(time.Now())
	sess.PlaceLabels(a.Engine, regions)
	in := sess.RenderState(regions)

	if a.RenderOut != "" {
		img := choro.RenderFrame(regions, in)
		if err := choro.SavePNG(a.RenderOut, img); err != nil {
			log.Fatalf("Error rendering PNG: %v", err)
		}
		fmt.Printf("Created: %s\n", a.RenderOut)
	}

	if a.SVGOut != "" {
		f, err := os.Create(a.SVGOut)
		if err != nil {
			log.Fatalf("Error creating %s: %v", a.SVGOut, err)
		}
		frame := choro.NewVectorFrame(regions, in)
		renderErr := frame.RenderSVG(f)
		if closeErr := f.Close(); renderErr == nil {
			renderErr = closeErr
		}
		if renderErr != nil {
			log.Fatalf("Error rendering SVG: %v", renderErr)
		}
		fmt.Printf("Created: %s\n", a.SVGOut)
	}
}

// RunService starts the combined MQTT and HTTP service with the frame
// loop that advances every session.
func (a *App) RunService() {
	fmt.Println("Starting parcelview service...")

	config := a.resolveConfig()
	a.loadRegions(config, allLevels...)

	store, err := choro.OpenFileStore(config.StateFile)
	if err != nil {
		log.Printf("Warning: failed to open state file %s: %v (camera state will not persist)", config.StateFile, err)
		a.Store = choro.NewMemoryStore()
	} else {
		a.Store = store
		log.Printf("[STORE] state file %s", config.StateFile)
	}

	a.Tracker = choro.NewSessionTracker(a.Store, config.ModeTable(), config.SessionDefaults())

	svc, err := choro.InitMQTT(config.MQTT, a.Tracker)
	if err != nil {
		log.Fatalf("Failed to initialize MQTT: %v", err)
	}
	if svc != nil {
		a.MQTT = svc
		a.Publisher = choro.NewPublisher(svc.Client(), svc.Prefix())
	}

	handler := newHTTPServer(a)
	go func() {
		addr := fmt.Sprintf("0.0.0.0:%d", config.HTTP.Port)
		log.Printf("[HTTP] Starting server on %s", addr)
		if err := http.ListenAndServe(addr, handler); err != nil {
			log.Fatalf("[HTTP] Server error: %v", err)
		}
	}()

	go a.frameLoop()

	a.printServiceInfo(config)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Println("\nShutting down service...")
	close(a.stop)
	if a.MQTT != nil {
		a.MQTT.Disconnect()
	}
	fmt.Println("Service stopped")
}

func (a *App) printServiceInfo(config *choro.Config) {
	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MQTT != nil {
		prefix := a.MQTT.Prefix()
		fmt.Println("\nMQTT:")
		fmt.Printf("  Subscribed: %s/input/touch, %s/input/keys, %s/overlay\n", prefix, prefix, prefix)
		fmt.Printf("  Publishing: %s/view/{session}, %s/labels/{session}\n", prefix, prefix)
	}

	fmt.Printf("\nHTTP endpoints (port %d):\n", config.HTTP.Port)
	fmt.Println("  GET  /health       - Health check")
	fmt.Println("  GET  /view         - Camera state (POST to move)")
	fmt.Println("  GET  /labels.json  - Placed labels")
	fmt.Println("  GET  /style.json   - Per-region fill and elevation")
	fmt.Println("  POST /mode         - Switch display mode")
	fmt.Println("  POST /style        - Style overrides")
	fmt.Println("  GET  /frame.png    - Raster snapshot")
	fmt.Println("  GET  /frame.svg    - Vector snapshot")
	fmt.Println("  GET  /regions.json - Region summaries")
	fmt.Println("  GET  /metrics      - Prometheus metrics")

	fmt.Println("\nPress Ctrl+C to stop")
}

// frameLoop is the single writer for all session state: it drains each
// session's inbox, advances motion, recomputes labels when the camera or
// style changed, publishes, and sweeps idle sessions.
func (a *App) frameLoop() {
	ticker := time.NewTicker(time.Second / 30)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case now := <-ticker.C:
			a.stepFrame(now)
		}
	}
}

func (a *App) stepFrame(now time.Time) {
	start := time.Now()
	connected := a.MQTT != nil && a.MQTT.IsConnected()

	for _, sess := range a.Tracker.Sessions() {
		res := sess.Step(now)
		if !res.ViewChanged && !res.StyleChanged {
			continue
		}

		regions := a.regionsFor(res.Mode.Level)
		labelStart := time.Now()
		labels := sess.PlaceLabels(a.Engine, regions)
		choro.LabelRecomputesTotal.Inc()
		choro.LabelRecomputeDurationMs.Observe(float64(time.Since(labelStart).Microseconds()) / 1000)
		choro.LabelsPlaced.Observe(float64(len(labels)))
		a.debugf("[LABELS] session %s: %d labels in %v", sess.ID, len(labels), time.Since(labelStart))

		if connected && a.Publisher != nil {
			if res.ViewChanged {
				if err := a.Publisher.PublishView(sess.ID, res.View); err != nil {
					log.Printf("[MQTT] Warning: %v", err)
				}
			}
			if err := a.Publisher.PublishLabels(sess.ID, labels); err != nil {
				log.Printf("[MQTT] Warning: %v", err)
			}
		}
	}

	for _, id := range a.Tracker.Sweep(now) {
		if a.Publisher != nil {
			if err := a.Publisher.ClearSession(id); err != nil {
				log.Printf("[MQTT] Warning: %v", err)
			}
		}
	}

	choro.SessionsActive.Set(float64(a.Tracker.Count()))
	choro.FramesTotal.Inc()
	choro.FrameDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000)
}
