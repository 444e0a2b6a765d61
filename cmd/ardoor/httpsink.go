package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// StatusReport is what GET /stats returns.
type StatusReport struct {
	RunID         string          `json:"run_id"`
	Controller    ControllerStats `json:"controller"`
	LastFrameSeq  uint64          `json:"last_frame_seq"`
	LastFrameTime *time.Time      `json:"last_frame_time,omitempty"`
}

type modeResponse struct {
	PassThrough bool `json:"pass_through"`
}

// HTTPSink serves the latest frame and lets remote clients toggle the pipeline mode.
type HTTPSink struct {
	name    string
	addr    string
	runID   string
	ctrl    *PipelineController
	store   *FrameStore
	errChan chan error
}

var _ Node = &HTTPSink{}

func NewHTTPSink(name string, addr string, runID string, ctrl *PipelineController, store *FrameStore) *HTTPSink {
	return &HTTPSink{
		name:    name,
		addr:    addr,
		runID:   runID,
		ctrl:    ctrl,
		store:   store,
		errChan: make(chan error, 1),
	}
}

func (s *HTTPSink) Name() string {
	return s.name
}

func (s *HTTPSink) Err() <-chan error {
	return s.errChan
}

func (s *HTTPSink) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.HandleFunc("/frame.jpg", s.handleFrame).Methods("GET")
	r.HandleFunc("/stats", s.handleStats).Methods("GET")
	r.HandleFunc("/mode", s.handleMode).Methods("GET")
	r.HandleFunc("/mode/toggle", s.handleToggle).Methods("POST")
	return r
}

func (s *HTTPSink) Run(ctx context.Context) {
	logger := logger.WithField("node", s.name).WithField("run", s.runID)

	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("HTTP sink shutdown failed.")
		}
	}()

	go func() {
		logger.Infof("HTTP sink listening on %s", s.addr)

		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			s.errChan <- context.Canceled
			return
		}

		s.errChan <- errors.Wrapf(err, "HTTP sink on '%s' failed", s.addr)
	}()
}

func (s *HTTPSink) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if _, err := fmt.Fprintln(w, "OK"); err != nil {
		logger.WithError(err).Debug("Failed to write health response.")
	}
}

func (s *HTTPSink) handleFrame(w http.ResponseWriter, _ *http.Request) {
	jpeg, seq, ok := s.store.Latest()
	if !ok {
		http.Error(w, "no frame yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", strconv.FormatUint(seq, 10))
	if _, err := w.Write(jpeg); err != nil {
		logger.WithError(err).Debug("Failed to write frame response.")
	}
}

func (s *HTTPSink) handleStats(w http.ResponseWriter, _ *http.Request) {
	report := StatusReport{
		RunID:      s.runID,
		Controller: s.ctrl.Stats(),
	}

	if _, seq, ok := s.store.Latest(); ok {
		at := s.store.UpdatedAt()
		report.LastFrameSeq = seq
		report.LastFrameTime = &at
	}

	writeJSON(w, report)
}

func (s *HTTPSink) handleMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, modeResponse{PassThrough: s.ctrl.PassThrough()})
}

func (s *HTTPSink) handleToggle(w http.ResponseWriter, _ *http.Request) {
	passThrough := s.ctrl.TogglePassThrough()
	logger.WithField("run", s.runID).Infof("Pass-through toggled over HTTP: %v", passThrough)

	writeJSON(w, modeResponse{PassThrough: passThrough})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithError(err).Debug("Failed to write JSON response.")
	}
}
