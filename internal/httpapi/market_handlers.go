package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"mbobook/internal/common"
	"mbobook/internal/market"
)

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, status int, errMsg, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errMsg, Detail: detail})
}

type bboResponse struct {
	Symbol    uint32        `json:"symbol"`
	Timestamp int64         `json:"timestamp"`
	BestBid   *market.Level `json:"best_bid"`
	BestOffer *market.Level `json:"best_offer"`
}

func (s *Server) handleBBO(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("instrument")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "missing instrument query parameter")
		return
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "instrument must be a non-negative integer")
		return
	}

	instrument := common.InstrumentID(id)
	bbo := s.market.AggregateBBO(instrument)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(bboResponse{
		Symbol:    uint32(instrument),
		Timestamp: time.Now().UnixNano(),
		BestBid:   bbo.BestBid,
		BestOffer: bbo.BestOffer,
	})
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	snap := s.market.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snap)
}
