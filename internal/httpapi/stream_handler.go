package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	hubpkg "mbobook/internal/hub"
)

// keepAliveInterval is the SSE comment heartbeat cadence.
const keepAliveInterval = 15 * time.Second

// handleStream serves /api/mbo/stream/json[/{rate}]: a live SSE feed of
// (MboMsg, MarketEffect) pairs, optionally paced to {rate} messages/sec.
// Each gap flagged by the Hub surfaces as a ": lagged N" comment line ahead
// of the next delivered event; the stream ends with a final empty event if
// the Hub closes its side (end of feed or shutdown).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream_unsupported", "response writer does not support flushing")
		return
	}

	var pace time.Duration
	if rateParam := chi.URLParam(r, "rate"); rateParam != "" {
		rate, err := strconv.ParseFloat(rateParam, 64)
		if err != nil || rate <= 0 {
			writeError(w, http.StatusBadRequest, "bad_request", "rate must be a positive number")
			return
		}
		pace = time.Duration(float64(time.Second) / rate)
	}

	sub, err := s.hub.Subscribe(r.Context())
	if err != nil {
		if err == hubpkg.ErrTooManySubscribers {
			writeError(w, http.StatusServiceUnavailable, "too_many_subscribers", err.Error())
			return
		}
		writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	var ticker *time.Ticker
	var tick <-chan time.Time
	if pace > 0 {
		ticker = time.NewTicker(pace)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case item, ok := <-sub.Items:
			if !ok {
				fmt.Fprint(w, "data: \n\n")
				flusher.Flush()
				return
			}
			if item.Lagged > 0 {
				fmt.Fprintf(w, ": lagged %d\n\n", item.Lagged)
				flusher.Flush()
			}
			if item.Terminal {
				fmt.Fprint(w, "data: \n\n")
				flusher.Flush()
				return
			}
			if pace > 0 {
				select {
				case <-tick:
				case <-r.Context().Done():
					return
				}
			}
			payload, err := json.Marshal(item.Envelope)
			if err != nil {
				s.log.Warn().Err(err).Msg("failed to marshal stream envelope")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
