package main

import (
	"encoding/json"
	"fmt"
	"image/png"
	"log"
	"net/http"
	"time"

	"github.com/parcelview/parcelview/choro"
)

// newHTTPServer creates an HTTP server with all endpoints
func newHTTPServer(app *App) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := struct {
			Status    string         `json:"status"`
			Timestamp time.Time      `json:"timestamp"`
			UptimeSec int64          `json:"uptimeSec"`
			Sessions  int            `json:"sessions"`
			Regions   map[string]int `json:"regions"`
			MQTT      bool           `json:"mqtt"`
		}{
			Status:    "ok",
			Timestamp: time.Now(),
			UptimeSec: int64(time.Since(app.started).Seconds()),
			Sessions:  app.Tracker.Count(),
			Regions:   app.regionCounts(),
			MQTT:      app.MQTT != nil && app.MQTT.IsConnected(),
		}
		writeJSON(w, status)
	})

	// Camera state: GET reads, POST queues an absolute move
	mux.HandleFunc("/view", func(w http.ResponseWriter, r *http.Request) {
		sess, _ := app.Tracker.Ensure(r.URL.Query().Get("session"))

		switch r.Method {
		case http.MethodGet:
			view, encoded := sess.View()
			writeJSON(w, struct {
				Session string          `json:"session"`
				View    choro.ViewState `json:"view"`
				Encoded string          `json:"encoded"`
			}{sess.ID, view, encoded})

		case http.MethodPost:
			if encoded := r.URL.Query().Get("state"); encoded != "" {
				sess.QueueEncoded(encoded)
				writeQueued(w, sess.ID)
				return
			}
			var partial choro.ViewPartial
			if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
				http.Error(w, "bad view body: "+err.Error(), http.StatusBadRequest)
				return
			}
			if partial.Lat == nil && partial.Lon == nil && partial.Zoom == nil &&
				partial.Pitch == nil && partial.Bearing == nil {
				http.Error(w, "empty view update", http.StatusBadRequest)
				return
			}
			sess.QueueAbsolute(partial)
			writeQueued(w, sess.ID)

		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Placed labels for the session's current camera and mode
	mux.HandleFunc("/labels.json", func(w http.ResponseWriter, r *http.Request) {
		sess, _ := app.Tracker.Ensure(r.URL.Query().Get("session"))
		labels := sess.Labels()
		if len(labels) == 0 {
			labels = sess.PlaceLabels(app.Engine, app.regionsFor(sess.Mode().Level))
		}
		writeJSON(w, struct {
			Session string        `json:"session"`
			Labels  []choro.Label `json:"labels"`
		}{sess.ID, labels})
	})

	// Per-region fill color and elevation for the active mode
	mux.HandleFunc("/style.json", func(w http.ResponseWriter, r *http.Request) {
		sess, _ := app.Tracker.Ensure(r.URL.Query().Get("session"))
		regions := app.regionsFor(sess.Mode().Level)
		writeJSON(w, struct {
			Session  string               `json:"session"`
			Style    choro.StyleInfo      `json:"style"`
			Features []choro.FeatureStyle `json:"features"`
		}{sess.ID, sess.StyleInfo(), sess.FeatureStyles(regions)})
	})

	// Display mode switch
	mux.HandleFunc("/mode", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sess, _ := app.Tracker.Ensure(r.URL.Query().Get("session"))

		arg := r.URL.Query().Get("mode")
		if arg == "" {
			var body struct {
				Mode string `json:"mode"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, "bad mode body: "+err.Error(), http.StatusBadRequest)
				return
			}
			arg = body.Mode
		}
		key, err := choro.ParseModeKey(arg)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		sess.QueueMode(key)
		writeJSON(w, struct {
			Session string `json:"session"`
			Mode    string `json:"mode"`
			Queued  bool   `json:"queued"`
		}{sess.ID, key.String(), true})
	})

	// Style overrides: max, ceiling, scale, stops
	mux.HandleFunc("/style", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sess, _ := app.Tracker.Ensure(r.URL.Query().Get("session"))
		var update choro.StyleUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, "bad style body: "+err.Error(), http.StatusBadRequest)
			return
		}
		sess.QueueStyle(update)
		writeQueued(w, sess.ID)
	})

	// Raster snapshot
	mux.HandleFunc("/frame.png", func(w http.ResponseWriter, r *http.Request) {
		sess, regions, in := app.snapshot(r)
		if len(regions) == 0 {
			http.Error(w, "no regions loaded", http.StatusServiceUnavailable)
			return
		}
		img := choro.RenderFrame(regions, in)
		w.Header().Set("Content-Type", "image/png")
		if err := png.Encode(w, img); err != nil {
			log.Printf("Error encoding frame PNG for %s: %v", sess.ID, err)
		}
	})

	// Vector snapshot
	mux.HandleFunc("/frame.svg", func(w http.ResponseWriter, r *http.Request) {
		sess, regions, in := app.snapshot(r)
		if len(regions) == 0 {
			http.Error(w, "no regions loaded", http.StatusServiceUnavailable)
			return
		}
		frame := choro.NewVectorFrame(regions, in)
		w.Header().Set("Content-Type", "image/svg+xml")
		if err := frame.RenderSVG(w); err != nil {
			log.Printf("Error encoding frame SVG for %s: %v", sess.ID, err)
		}
	})

	// Region summaries per level
	mux.HandleFunc("/regions.json", func(w http.ResponseWriter, r *http.Request) {
		level := choro.Level(r.URL.Query().Get("level"))
		if level == "" {
			level = choro.LevelLot
		}
		switch level {
		case choro.LevelUnit, choro.LevelLot, choro.LevelBlock, choro.LevelWard:
		default:
			http.Error(w, fmt.Sprintf("unknown level %q", level), http.StatusBadRequest)
			return
		}
		summaries := choro.Summarize(app.regionsFor(level))
		writeJSON(w, struct {
			Level   string                `json:"level"`
			Count   int                   `json:"count"`
			Regions []choro.RegionSummary `json:"regions"`
		}{string(level), len(summaries), summaries})
	})

	mux.Handle("/metrics", choro.MetricsHandler())

	// Default route serves an HTML page embedding the rendered frame
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>parcelview</title>
<style>
*{margin:0;padding:0;box-sizing:border-box}
html,body{width:100%;height:100%;overflow:hidden;background:#f0f0f0}
img{display:block;width:100vw;height:100vh;object-fit:contain}
</style>
</head>
<body>
<img src="/frame.png?session=default" alt="Tax Map">
</body>
</html>`)
	})

	// Wrap mux with logging middleware
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[HTTP] %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		choro.HTTPRequestsTotal.WithLabelValues(r.URL.Path).Inc()
		w.Header().Set("Cache-Control", "no-cache")
		mux.ServeHTTP(w, r)
	})
}

// snapshot resolves the request's session and copies everything the
// renderers need, filling labels first if none are placed yet.
func (a *App) snapshot(r *http.Request) (*choro.Session, []choro.Region, choro.RenderInput) {
	sess, _ := a.Tracker.Ensure(r.URL.Query().Get("session"))
	regions := a.regionsFor(sess.Mode().Level)
	if len(sess.Labels()) == 0 && len(regions) > 0 {
		sess.PlaceLabels(a.Engine, regions)
	}
	return sess, regions, sess.RenderState(regions)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func writeQueued(w http.ResponseWriter, sessionID string) {
	writeJSON(w, struct {
		Session string `json:"session"`
		Queued  bool   `json:"queued"`
	}{sessionID, true})
}
