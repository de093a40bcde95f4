package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/thermistor-controller/internal/config"
	"github.com/thatsimonsguy/thermistor-controller/internal/temperature"
)

// Loop is the part of the sampling service the API exposes.
type Loop interface {
	temperature.TemperatureSource
	temperature.SetpointSink
	Snapshot() temperature.Snapshot
}

type Server struct {
	loop   Loop
	config *config.Config
}

type TemperatureResponse struct {
	Temperature float64 `json:"temperature_f"`
}

type SetpointResponse struct {
	Setpoint float64 `json:"setpoint"`
}

type SetpointRequest struct {
	Setpoint *float64 `json:"setpoint"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(loop Loop, cfg *config.Config) *Server {
	return &Server{
		loop:   loop,
		config: cfg,
	}
}

// Handler returns the API routes wrapped in CORS handling.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/temperature", s.handleTemperature)
	mux.HandleFunc("/api/setpoint", s.handleSetpoint)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		mux.ServeHTTP(w, r)
	})
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	log.Info().Str("address", addr).Msg("Starting REST API server")

	return http.ListenAndServe(addr, s.Handler())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.loop.Snapshot())
}

func (s *Server) handleTemperature(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, TemperatureResponse{Temperature: s.loop.CurrentTemperature()})
}

func (s *Server) handleSetpoint(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, SetpointResponse{Setpoint: s.loop.Setpoint()})
	case http.MethodPut:
		s.setSetpoint(w, r)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) setSetpoint(w http.ResponseWriter, r *http.Request) {
	var req SetpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Setpoint == nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	setpoint := *req.Setpoint
	if setpoint < s.config.SetpointMinF || setpoint > s.config.SetpointMaxF {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid setpoint. Must be between %.1f°F and %.1f°F", s.config.SetpointMinF, s.config.SetpointMaxF))
		return
	}

	if err := s.loop.SetSetpoint(setpoint); err != nil {
		if errors.Is(err, temperature.ErrInvalidSetpoint) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Float64("setpoint", setpoint).Msg("Failed to update setpoint")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	log.Info().Float64("setpoint", setpoint).Msg("Setpoint updated via API")
	s.writeJSON(w, http.StatusOK, SetpointResponse{Setpoint: setpoint})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}
