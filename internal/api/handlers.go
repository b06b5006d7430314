package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"perpsignals/internal/indicator"
	"perpsignals/internal/scoring"
	"perpsignals/internal/strategy"
)

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/health", s.wrap(s.handleHealth))
	s.mux.HandleFunc("/api/v1/symbols", s.wrap(s.handleSymbols))
	s.mux.HandleFunc("/api/v1/signals/latest", s.wrap(s.handleLatestSignal))
	s.mux.HandleFunc("/api/v1/signals/recent", s.wrap(s.handleRecentSignals))
	s.mux.HandleFunc("/api/v1/snapshot", s.wrap(s.handleSnapshot))
	s.mux.HandleFunc("/api/v1/strategies", s.wrap(s.handleStrategies))
	s.mux.HandleFunc("/api/v1/strategies/", s.wrap(s.handleStrategyByName))
	s.mux.HandleFunc("/ws/signals", s.handleWS)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// requireTOTP gates mutating endpoints behind a TOTP code in the
// X-TOTP-Code header. With no secret configured, mutations are
// disabled entirely.
func (s *Server) requireTOTP(w http.ResponseWriter, r *http.Request) bool {
	if s.deps.TOTPSecret == "" {
		writeError(w, http.StatusForbidden, "mutations disabled: no TOTP secret configured")
		return false
	}
	code := r.Header.Get("X-TOTP-Code")
	if code == "" || !totp.Validate(code, s.deps.TOTPSecret) {
		writeError(w, http.StatusUnauthorized, "invalid TOTP code")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"uptime_s":   int64(time.Since(s.start).Seconds()),
		"ws_clients": s.hub.ClientCount(),
		"symbols":    len(s.deps.Symbols),
	})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": s.deps.Symbols,
		"count":   len(s.deps.Symbols),
	})
}

func (s *Server) handleLatestSignal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	sig, err := s.deps.Signals.LatestSignal(r.Context(), symbol)
	if err != nil {
		writeError(w, http.StatusBadGateway, "signal lookup failed: "+err.Error())
		return
	}
	if sig == nil {
		writeError(w, http.StatusNotFound, "no signal for "+symbol)
		return
	}
	writeJSON(w, http.StatusOK, sig)
}

func (s *Server) handleRecentSignals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	count := 50
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			count = n
		}
	}
	sigs, err := s.deps.Signals.RecentSignals(r.Context(), symbol, int64(count))
	if err != nil {
		writeError(w, http.StatusBadGateway, "signal lookup failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"count":   len(sigs),
		"signals": sigs,
	})
}

// snapshotResponse is the wire view of one symbol's indicator state.
type snapshotResponse struct {
	Symbol      string              `json:"symbol"`
	Price       float64             `json:"price"`
	TS          time.Time           `json:"ts"`
	Indicators  *indicator.Snapshot `json:"indicators"`
	Unavailable []indicator.ID      `json:"unavailable,omitempty"`
	Category    scoring.Result      `json:"category"`
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	view, ok := s.deps.Snapshots.Snapshot(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot for "+symbol)
		return
	}
	writeJSON(w, http.StatusOK, snapshotResponse{
		Symbol:      view.Symbol,
		Price:       view.Price,
		TS:          view.TS,
		Indicators:  view.Snap,
		Unavailable: view.Snap.Unavailable(),
		Category:    view.Category,
	})
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"strategies": s.deps.Strategies.Strategies(),
		})
	case http.MethodPost:
		if !s.requireTOTP(w, r) {
			return
		}
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "read body: "+err.Error())
			return
		}
		st, err := s.deps.Strategies.UpsertStrategy(r.Context(), raw)
		if err != nil {
			if errors.Is(err, strategy.ErrInvalidConfig) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, st)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleStrategyByName(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/strategies/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		for _, st := range s.deps.Strategies.Strategies() {
			if st.Name == name {
				writeJSON(w, http.StatusOK, st)
				return
			}
		}
		writeError(w, http.StatusNotFound, "no strategy named "+name)
	case http.MethodDelete:
		if !s.requireTOTP(w, r) {
			return
		}
		if err := s.deps.Strategies.RemoveStrategy(r.Context(), name); err != nil {
			if errors.Is(err, strategy.ErrNotFound) {
				writeError(w, http.StatusNotFound, err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
