// Package api implements the REST API Server for Holvi.
//
// Routes:
//   GET    /api/v1/store              — Entry count (values are never listed)
//   GET    /api/v1/store/{key}        — Single entry (when reads are exposed)
//   PUT    /api/v1/store/{key}        — Set or append one entry
//   DELETE /api/v1/store/{key}        — Delete one entry
//   POST   /api/v1/worklet/select-url — Run the fixed select-url operation
//   POST   /api/v1/worklet/run        — Run a named operation
//   GET    /api/v1/worklet/candidates — The ordered candidate URL list
//   GET    /api/v1/worklet/invocations— Recent run history
//   GET    /api/v1/worklet/beacons    — Recorded beacon hits
//   GET    /api/v1/status             — Service health
//   GET    /api/v1/events             — WebSocket live stream
//   GET    /collect                   — Beacon sink for selected URLs
//
// Framework: standard library net/http with method patterns.
package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gg-glitch-88/holvi/internal/bus"
	"github.com/gg-glitch-88/holvi/internal/store"
	"github.com/gg-glitch-88/holvi/internal/worklet"
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Server holds handler dependencies.
type Server struct {
	db          *store.DB
	runner      *worklet.Runner
	bus         *bus.Bus
	exposeReads bool
	log         *zap.Logger
}

// NewRouter wires all routes and returns a http.Handler.
func NewRouter(
	db *store.DB,
	runner *worklet.Runner,
	b *bus.Bus,
	exposeReads bool,
	log *zap.Logger,
) http.Handler {
	s := &Server{db: db, runner: runner, bus: b, exposeReads: exposeReads, log: log}

	mux := http.NewServeMux()

	// Store
	mux.HandleFunc("GET /api/v1/store", s.storeSummary)
	mux.HandleFunc("GET /api/v1/store/{key}", s.getEntry)
	mux.HandleFunc("PUT /api/v1/store/{key}", s.putEntry)
	mux.HandleFunc("DELETE /api/v1/store/{key}", s.deleteEntry)

	// Worklet
	mux.HandleFunc("POST /api/v1/worklet/select-url", s.selectURL)
	mux.HandleFunc("POST /api/v1/worklet/run", s.runOperation)
	mux.HandleFunc("GET /api/v1/worklet/candidates", s.candidates)
	mux.HandleFunc("GET /api/v1/worklet/invocations", s.invocations)
	mux.HandleFunc("GET /api/v1/worklet/beacons", s.beacons)

	// Status / health
	mux.HandleFunc("GET /api/v1/status", s.status)

	// WebSocket event stream
	mux.HandleFunc("GET /api/v1/events", s.eventStream)

	// Beacon sink
	mux.HandleFunc("GET /collect", s.collect)

	return withLogging(log, mux)
}

// ── Store ─────────────────────────────────────────────────────────────────

func (s *Server) storeSummary(w http.ResponseWriter, r *http.Request) {
	n, err := s.db.Count(r.Context())
	if err != nil {
		s.log.Error("api: count entries", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": n})
}

func (s *Server) getEntry(w http.ResponseWriter, r *http.Request) {
	if !s.exposeReads {
		http.Error(w, "entry reads are not exposed", http.StatusForbidden)
		return
	}
	key := r.PathValue("key")
	value, ok, err := s.db.Get(r.Context(), key)
	if err != nil {
		s.log.Error("api: get entry", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "entry not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key, "value": value})
}

type putEntryRequest struct {
	Value string `json:"value"`
}

func (s *Server) putEntry(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if strings.TrimSpace(key) == "" {
		http.Error(w, "key must not be empty", http.StatusBadRequest)
		return
	}
	var req putEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	var err error
	if r.URL.Query().Get("append") == "1" {
		err = s.db.Append(r.Context(), key, req.Value)
	} else {
		err = s.db.Set(r.Context(), key, req.Value)
	}
	if err != nil {
		s.log.Error("api: put entry", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.bus.PublishEntrySet(map[string]interface{}{"key": key})
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key, "status": "stored"})
}

func (s *Server) deleteEntry(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if err := s.db.Delete(r.Context(), key); err != nil {
		s.log.Error("api: delete entry", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.bus.PublishEntryDeleted(map[string]interface{}{"key": key})
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": key, "status": "deleted"})
}

// ── Worklet ───────────────────────────────────────────────────────────────

func (s *Server) selectURL(w http.ResponseWriter, r *http.Request) {
	res, err := s.runner.Run(r.Context(), worklet.Request{Operation: worklet.OpSelectURL})
	if err != nil {
		s.log.Error("api: select-url", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !res.Matched {
		// Absence signal: no body, not an error.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invocation": res.Invocation,
		"url":        res.URL,
	})
}

func (s *Server) runOperation(w http.ResponseWriter, r *http.Request) {
	var req worklet.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.CharIndex < 0 {
		http.Error(w, "char_index must not be negative", http.StatusBadRequest)
		return
	}
	res, err := s.runner.Run(r.Context(), req)
	if err != nil {
		if errors.Is(err, worklet.ErrUnknownOperation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.log.Error("api: run operation", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) candidates(w http.ResponseWriter, r *http.Request) {
	cands := worklet.Candidates(s.runner.Base())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"candidates": cands,
		"count":      len(cands),
	})
}

func (s *Server) invocations(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50, 1, 500)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	invs, err := s.db.RecentInvocations(r.Context(), limit)
	if err != nil {
		s.log.Error("api: list invocations", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"invocations": invs,
		"count":       len(invs),
	})
}

// beacons lists recorded collect hits, newest first. ?i= narrows to
// one character position.
func (s *Server) beacons(w http.ResponseWriter, r *http.Request) {
	var (
		bs  []*store.Beacon
		err error
	)
	if r.URL.Query().Get("i") != "" {
		var charIndex int
		charIndex, err = queryInt(r, "i", 0, 0, 1<<20)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		bs, err = s.db.BeaconsForIndex(r.Context(), charIndex)
	} else {
		var limit int
		limit, err = queryInt(r, "limit", 50, 1, 500)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		bs, err = s.db.RecentBeacons(r.Context(), limit)
	}
	if err != nil {
		s.log.Error("api: list beacons", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"beacons": bs,
		"count":   len(bs),
	})
}

// ── Beacon sink ───────────────────────────────────────────────────────────

// collect is the receiving end of a selected URL. It records the hit
// and acknowledges with an uncacheable 204 so the caller learns nothing.
func (s *Server) collect(w http.ResponseWriter, r *http.Request) {
	char := r.URL.Query().Get("char")
	if char == "" || len(char) > 1 {
		http.Error(w, "char must be a single character", http.StatusBadRequest)
		return
	}
	charIndex, err := queryInt(r, "i", 0, 0, 1<<20)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b := &store.Beacon{
		Char:       char,
		CharIndex:  charIndex,
		RemoteAddr: r.RemoteAddr,
		ReceivedAt: time.Now().UTC(),
	}
	if _, err := s.db.InsertBeacon(r.Context(), b); err != nil {
		s.log.Error("api: record beacon", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	s.bus.PublishBeacon(map[string]interface{}{
		"char":       char,
		"char_index": charIndex,
	})
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusNoContent)
}

// ── Status ────────────────────────────────────────────────────────────────

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	n, err := s.db.Count(r.Context())
	if err != nil {
		s.log.Error("api: status", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"time":        time.Now().UTC().Format(time.RFC3339),
		"entries":     n,
		"subscribers": s.bus.Len(),
	})
}

// ── WebSocket event stream ────────────────────────────────────────────────

func (s *Server) eventStream(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("api: ws upgrade", zap.Error(err))
		return
	}
	defer conn.Close()

	ch, unsub := s.bus.Subscribe()
	defer unsub()

	ping := time.NewTicker(20 * time.Second)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				s.log.Debug("api: ws write", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// ── Middleware ────────────────────────────────────────────────────────────

func withLogging(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rw, r)
		log.Debug("api",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.code),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type responseWriter struct {
	http.ResponseWriter
	code int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.code = code
	rw.ResponseWriter.WriteHeader(code)
}

// Hijack delegates to the wrapped writer so WebSocket upgrades work
// behind the logging middleware.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("api: underlying ResponseWriter does not support hijacking")
	}
	return h.Hijack()
}

// ── helpers ───────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func queryInt(r *http.Request, key string, def, min, max int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%s must be %d–%d", key, min, max)
	}
	return n, nil
}
