package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bike-arcade-controller/controller"
	"bike-arcade-controller/input"
	"bike-arcade-controller/types"
)

const (
	defaultSimonLength = 4
	defaultSimonSpeed  = 500 * time.Millisecond
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Status())
}

func (s *Server) reconnectHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	opened, err := s.ctrl.Rescan(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"opened":  opened,
		"devices": s.ctrl.Status().Devices,
	})
}

func (s *Server) ledHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Role int  `json:"role"`
		On   bool `json:"on"`
		All  bool `json:"all"`
	}
	if !decode(w, r, &req) {
		return
	}

	if req.All {
		writeJSON(w, http.StatusOK, map[string]int{"sent": s.ctrl.SetAllLeds(req.On)})
		return
	}

	role := types.Role(req.Role)
	if !role.IsButton() {
		writeError(w, http.StatusBadRequest, fmt.Errorf("role %d is not a button", req.Role))
		return
	}
	if !s.ctrl.SetLed(role, req.On) {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("%s: %w", role, controller.ErrNoDevice))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"role": role, "on": req.On})
}

func (s *Server) patternHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req controller.PatternRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := s.ctrl.RunPattern(r.Context(), req)
	switch {
	case errors.Is(err, controller.ErrUnknownPattern):
		writeError(w, http.StatusBadRequest, err)
		return
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusConflict, fmt.Errorf("pattern %s was interrupted", req.Name))
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pattern": req.Name, "result": result})
}

// simonHandler plays a Simon-says round and copies the sequence to the clipboard, so an
// operator can paste it into whatever checks the player's answer.
func (s *Server) simonHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Length int `json:"length"`
		Speed  int `json:"speed"`
	}
	if !decode(w, r, &req) {
		return
	}
	length, speed := req.Length, time.Duration(req.Speed)*time.Millisecond
	if length <= 0 {
		length = defaultSimonLength
	}
	if speed <= 0 {
		speed = defaultSimonSpeed
	}

	seq, err := s.ctrl.SimonSaysPattern(r.Context(), length, speed)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}

	text := sequenceString(seq)
	copied := true
	if err := s.copy(text); err != nil {
		copied = false
		s.log.WithError(err).Warn("clipboard unavailable")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sequence": seq,
		"text":     text,
		"copied":   copied,
	})
}

func sequenceString(seq []types.Role) string {
	parts := make([]string, len(seq))
	for i, role := range seq {
		parts[i] = strconv.Itoa(int(role))
	}
	return strings.Join(parts, "-")
}

func (s *Server) cadenceResetHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	err := s.ctrl.ResetCadenceCounter()
	if err != nil && !errors.Is(err, controller.ErrNoDevice) {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{
		"reset":  true,
		"sensor": err == nil,
	})
}

func (s *Server) cadenceSimulateHandler(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var req struct {
		Count int64 `json:"count"`
		RPM   int64 `json:"rpm"`
	}
	if !decode(w, r, &req) {
		return
	}

	sample, err := s.ctrl.SimulateCadence(req.Count, req.RPM)
	if errors.Is(err, input.ErrInvalidSample) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}
