package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.state.Snapshot())
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.ctl.Devices())
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.ctl.Refresh(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

type sendRequest struct {
	Key  string `json:"key"`
	Code string `json:"code"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Key == "" || req.Code == "" {
		respondError(w, http.StatusBadRequest, "key and code are required")
		return
	}

	if err := s.ctl.Send(r.Context(), chi.URLParam(r, "name"), req.Key, req.Code); err != nil {
		respondOpError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}

type receiveRequest struct {
	TimeoutSeconds int `json:"timeout_seconds"`
}

// handleReceive accepts an empty body for the default timeout.
func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.TimeoutSeconds < 0 {
		respondError(w, http.StatusBadRequest, "timeout_seconds must be >= 0")
		return
	}

	timeout := time.Duration(req.TimeoutSeconds) * time.Second
	code, err := s.ctl.Receive(r.Context(), chi.URLParam(r, "name"), timeout)
	if err != nil {
		respondOpError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"code": code})
}

type commandRequest struct {
	Topic string `json:"topic"`
	Value string `json:"value"`
}

// handleCommand accepts the same topic/value pairs a broker would deliver
// on "<prefix>/<name>/set".
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" || req.Value == "" {
		respondError(w, http.StatusBadRequest, "topic and value are required")
		return
	}

	if err := s.ctl.OnCommand(r.Context(), req.Topic, req.Value); err != nil {
		respondOpError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"result": "ok"})
}
