package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/pion/logging"

	ilogging "github.com/video-system/go-media-access/internal/logging"
	"github.com/video-system/go-media-access/pkg/deviceid"
	"github.com/video-system/go-media-access/pkg/media"
	"github.com/video-system/go-media-access/pkg/mediastream"
	"github.com/video-system/go-media-access/pkg/permission"
)

// MediaManager is the part of the media stream manager the API drives
type MediaManager interface {
	Status() (mediastream.Status, error)
	GenerateStream(requester mediastream.Requester, processID, viewID int, rc *deviceid.ResourceContext,
		pageRequestID int, opts media.StreamOptions, origin string) (string, error)
	OpenDevice(requester mediastream.Requester, processID, viewID int, rc *deviceid.ResourceContext,
		pageRequestID int, deviceID string, t media.MediaType, origin string) (string, error)
	EnumerateDevices(requester mediastream.Requester, processID, viewID int, rc *deviceid.ResourceContext,
		pageRequestID int, t media.MediaType, origin string) (string, error)
	MakeMediaAccessRequest(processID, viewID, pageRequestID int, opts media.StreamOptions,
		origin string, cb mediastream.AccessCallback) (string, error)
	CancelRequest(label string) error
	CancelAllRequests(processID int) (int, error)
	StopStreamDevice(processID, viewID int, deviceID string) (bool, error)
	StopDevice(t media.MediaType, sessionID int) error
}

// ServerConfig holds API server configuration
type ServerConfig struct {
	Host    string
	Port    int
	Manager MediaManager

	// Authority backs the permission endpoints. Nil disables them.
	Authority *permission.Authority

	// WaitTimeout bounds how long a request waits for its result on top of
	// the client's own deadline.
	WaitTimeout time.Duration
}

// Server is the HTTP API server
type Server struct {
	cfg    ServerConfig
	router *mux.Router
	server *http.Server
	log    logging.LeveledLogger
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig) *Server {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 30 * time.Second
	}
	s := &Server{
		cfg: cfg,
		log: ilogging.NewLogger("api"),
	}
	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: s.router,
	}

	return s
}

func (s *Server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")

	// Device requests
	router.HandleFunc("/api/v1/devices", s.handleEnumerate).Methods("GET")
	router.HandleFunc("/api/v1/devices/open", s.handleOpenDevice).Methods("POST")
	router.HandleFunc("/api/v1/devices/stop", s.handleStopDevice).Methods("POST")
	router.HandleFunc("/api/v1/streams", s.handleGenerateStream).Methods("POST")
	router.HandleFunc("/api/v1/access", s.handleAccess).Methods("POST")

	// Teardown
	router.HandleFunc("/api/v1/requests/{label}", s.handleCancel).Methods("DELETE")
	router.HandleFunc("/api/v1/clients/{process}", s.handleCancelClient).Methods("DELETE")

	// Permissions
	router.HandleFunc("/api/v1/permissions", s.handlePermissions).Methods("GET")
	router.HandleFunc("/api/v1/permissions/revoke", s.handleRevoke).Methods("POST")

	return router
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server
func (s *Server) Start() error {
	s.log.Infof("API server starting on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Stop stops the API server
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Warnf("API server shutdown: %v", err)
	}
}

// clientRequest identifies the calling view
type clientRequest struct {
	ProcessID     int    `json:"process_id"`
	ViewID        int    `json:"view_id"`
	PageRequestID int    `json:"page_request_id"`
	Origin        string `json:"origin"`
}

type streamRequest struct {
	clientRequest
	media.StreamOptions
}

type openRequest struct {
	clientRequest
	Type     media.MediaType `json:"type"`
	DeviceID string          `json:"device_id"`
}

type stopRequest struct {
	ProcessID int             `json:"process_id"`
	ViewID    int             `json:"view_id"`
	DeviceID  string          `json:"device_id,omitempty"`
	Type      media.MediaType `json:"type,omitempty"`
	SessionID int             `json:"session_id,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "go-media-access",
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.cfg.Manager.Status()
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleEnumerate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := media.ParseMediaType(q.Get("type"))
	if err != nil || t == media.NoService {
		writeError(w, http.StatusBadRequest, "type must be audio or video")
		return
	}
	processID, _ := strconv.Atoi(q.Get("process"))
	viewID, _ := strconv.Atoi(q.Get("view"))

	waiter := newWaiter()
	label, err := s.cfg.Manager.EnumerateDevices(waiter, processID, viewID, nil, 0, t, q.Get("origin"))
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	// Enumeration requests keep reporting changes until cancelled
	defer s.cfg.Manager.CancelRequest(label)

	res, ok := s.wait(r.Context(), waiter)
	if !ok {
		writeError(w, http.StatusGatewayTimeout, "timed out waiting for device list")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label":   label,
		"type":    t,
		"devices": nonNil(res.devices),
	})
}

func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	waiter := newWaiter()
	label, err := s.cfg.Manager.GenerateStream(waiter, req.ProcessID, req.ViewID, nil,
		req.PageRequestID, req.StreamOptions, req.Origin)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	res, ok := s.wait(r.Context(), waiter)
	if !ok {
		s.cfg.Manager.CancelRequest(label)
		writeError(w, http.StatusGatewayTimeout, "timed out waiting for permission")
		return
	}
	if res.failed {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"label": label,
			"error": "stream generation failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label": label,
		"audio": nonNil(res.audio),
		"video": nonNil(res.video),
	})
}

func (s *Server) handleOpenDevice(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	waiter := newWaiter()
	label, err := s.cfg.Manager.OpenDevice(waiter, req.ProcessID, req.ViewID, nil,
		req.PageRequestID, req.DeviceID, req.Type, req.Origin)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	res, ok := s.wait(r.Context(), waiter)
	if !ok {
		s.cfg.Manager.CancelRequest(label)
		writeError(w, http.StatusGatewayTimeout, "timed out waiting for device")
		return
	}
	if res.failed {
		writeJSON(w, http.StatusForbidden, map[string]interface{}{
			"label": label,
			"error": "open device failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"label":  label,
		"device": res.device,
	})
}

func (s *Server) handleAccess(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results := make(chan []media.Device, 1)
	cb := func(devices []media.Device, surface permission.Surface) {
		// Nothing is started from an access check
		if releaser, ok := surface.(permission.Releaser); ok {
			releaser.Release()
		}
		results <- devices
	}

	label, err := s.cfg.Manager.MakeMediaAccessRequest(req.ProcessID, req.ViewID, req.PageRequestID,
		req.StreamOptions, req.Origin, cb)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.WaitTimeout)
	defer cancel()

	select {
	case devices := <-results:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"label":   label,
			"allowed": len(devices) > 0,
			"devices": nonNil(devices),
		})
	case <-ctx.Done():
		s.cfg.Manager.CancelRequest(label)
		writeError(w, http.StatusGatewayTimeout, "timed out waiting for permission")
	}
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	label := mux.Vars(r)["label"]
	if err := s.cfg.Manager.CancelRequest(label); err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "label": label})
}

func (s *Server) handleCancelClient(w http.ResponseWriter, r *http.Request) {
	processID, err := strconv.Atoi(mux.Vars(r)["process"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid process id")
		return
	}

	n, err := s.cfg.Manager.CancelAllRequests(processID)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "cancelled": n})
}

func (s *Server) handleStopDevice(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.DeviceID != "" {
		stopped, err := s.cfg.Manager.StopStreamDevice(req.ProcessID, req.ViewID, req.DeviceID)
		if err != nil {
			s.writeManagerError(w, err)
			return
		}
		if !stopped {
			writeError(w, http.StatusNotFound, "no stream uses that device")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	if req.Type == media.NoService || req.SessionID == 0 {
		writeError(w, http.StatusBadRequest, "device_id or type and session_id required")
		return
	}
	if err := s.cfg.Manager.StopDevice(req.Type, req.SessionID); err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePermissions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Authority == nil {
		writeError(w, http.StatusNotImplemented, "permission policy not enabled")
		return
	}

	decisions := make(map[string]permission.Decision)
	for _, origin := range s.cfg.Authority.Origins() {
		decisions[origin] = s.cfg.Authority.Decide(origin)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"decisions": decisions,
		"running":   s.cfg.Authority.Running(),
	})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Authority == nil {
		writeError(w, http.StatusNotImplemented, "permission policy not enabled")
		return
	}

	var req struct {
		Origin string `json:"origin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !media.ValidOrigin(req.Origin) {
		writeError(w, http.StatusBadRequest, "invalid origin")
		return
	}

	stopped := s.cfg.Authority.Revoke(req.Origin)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"origin":  req.Origin,
		"stopped": stopped,
	})
}

func (s *Server) wait(ctx context.Context, w *waiter) (outcome, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WaitTimeout)
	defer cancel()

	select {
	case res := <-w.results:
		return res, true
	case <-ctx.Done():
		return outcome{}, false
	}
}

func (s *Server) writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mediastream.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mediastream.ErrInvalidMediaType):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, mediastream.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.log.Errorf("manager error: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func nonNil[T any](list []T) []T {
	if list == nil {
		return []T{}
	}
	return list
}
