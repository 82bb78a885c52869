// Package httpapi implements the HTTP surface of §6: /config, /canvas,
// /layers/<n>, and static client assets, all routed through gorilla/mux so
// /layers/{n} gets path-parameter extraction. Every route honors the same
// method rule: GET/HEAD run the handler, OPTIONS replies 200 with an Allow
// header, anything else replies 405 — regardless of path, per §6's table.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kanreisa/reichat-server/internal/room"
	"github.com/kanreisa/reichat-server/internal/version"
)

// RoomSource is the capability the HTTP surface needs from the Engine.
type RoomSource interface {
	RoomConfig() room.Config
	Canvas() *room.Canvas
}

// New builds the *mux.Router serving §6's table. clientDir may be empty,
// which disables the catch-all static asset route (GET/HEAD on any other
// path then falls straight to 404).
func New(src RoomSource, clientDir string) *mux.Router {
	r := mux.NewRouter()
	r.Use(commonHeaders)

	r.Handle("/config", methodGate(configHandler(src)))
	r.Handle("/canvas", methodGate(canvasHandler(src)))
	r.Handle("/layers/{n}", methodGate(layerHandler(src)))

	var fallback http.Handler
	if clientDir != "" {
		fallback = http.FileServer(http.Dir(clientDir))
	} else {
		fallback = http.HandlerFunc(notFound)
	}
	r.PathPrefix("/").Handler(methodGate(fallback.ServeHTTP))

	return r
}

func commonHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cache-Control", "no-cache")
		h.Set("Pragma", "no-cache")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Server", "reichat-server/"+version.Server)
		h.Set("Accept-Ranges", "none")
		next.ServeHTTP(w, r)
	})
}

// methodGate applies §6's universal method rule ahead of handler: GET/HEAD
// run it, OPTIONS replies 200 with Allow, anything else is 405.
func methodGate(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead:
			handler(w, r)
		case http.MethodOptions:
			optionsHandler(w, r)
		default:
			methodNotAllowed(w, r)
		}
	}
}

func configHandler(src RoomSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(src.RoomConfig())
	}
}

func canvasHandler(src RoomSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		canvas := src.Canvas()
		enc, err := room.EncodeRGBA(canvas.Flatten(), canvas.Width, canvas.Height)
		if err != nil {
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(enc)
	}
}

func layerHandler(src RoomSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := strconv.Atoi(mux.Vars(r)["n"])
		if err != nil {
			notFound(w, r)
			return
		}
		canvas := src.Canvas()
		if n < 0 || n >= canvas.LayerCount() {
			notFound(w, r)
			return
		}
		enc, err := canvas.EncodeLayer(n)
		if err != nil {
			http.Error(w, "encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(enc)
	}
}

func optionsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "HEAD, GET, OPTIONS")
	w.WriteHeader(http.StatusOK)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func notFound(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}
