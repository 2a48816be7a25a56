package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/audiolibrelab/notecapture/internal/audio"
	"github.com/audiolibrelab/notecapture/internal/service"
	"github.com/audiolibrelab/notecapture/internal/store"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
)

// Server represents the web server for controlling NoteCapture
type Server struct {
	service  service.Service
	port     int
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// StatusResponse represents the JSON response for the status endpoint
type StatusResponse struct {
	Status  string                  `json:"status"`
	Message string                  `json:"message,omitempty"`
	State   service.RecordingStatus `json:"state"`
	Session *store.Session          `json:"session,omitempty"`
}

func New(svc service.Service, port int) *Server {
	s := &Server{
		service: svc,
		port:    port,
		mux:     http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}

	s.mux.HandleFunc("/", s.handleIndex)
	s.mux.HandleFunc("/sessions", s.handleSessions)
	s.mux.HandleFunc("/sessions/status", s.handleSessionStatus)
	s.mux.HandleFunc("/sessions/delete", s.handleDeleteSession)
	s.mux.HandleFunc("/start", s.handleStartRecording)
	s.mux.HandleFunc("/pause", s.handlePauseRecording)
	s.mux.HandleFunc("/resume", s.handleResumeRecording)
	s.mux.HandleFunc("/stop", s.handleStopRecording)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/api/audio", s.handleAudioInfo)
	s.mux.HandleFunc("/ws", s.handleEvents)
	return s
}

// Handler exposes the routes for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	slog.Info("Starting NoteCapture Web Server",
		"port", s.port,
		"local_url", fmt.Sprintf("http://%s:%d", getLocalIP(), s.port),
		"localhost_url", fmt.Sprintf("http://localhost:%d", s.port))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	slog.Info("Shutting down web server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleIndex serves a minimal page listing the API
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Write([]byte(indexHTML))
}

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>NoteCapture</title>
</head>
<body>
    <h1>NoteCapture</h1>
    <h2>API Endpoints:</h2>
    <ul>
        <li>POST /sessions - Create a session (title, course)</li>
        <li>GET /sessions - List sessions</li>
        <li>POST /start, /pause, /resume, /stop - Control recording (session)</li>
        <li>GET /status?session=ID - Recording status</li>
        <li>GET /api/audio?session=ID - Recorded audio details</li>
        <li>GET /ws - Live level and transcript events</li>
    </ul>
</body>
</html>`

// handleSessions lists sessions (GET) or creates one (POST)
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		sessions, err := s.service.ListSessions()
		if err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to list sessions: %v", err), "operation", "list_sessions")
			return
		}
		s.sendJSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"sessions": sessions,
		})

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", "create_session")
			return
		}
		title := r.FormValue("title")
		course := r.FormValue("course")
		if title == "" {
			s.sendErrorResponse(w, http.StatusBadRequest, "Session title is required", "operation", "create_session")
			return
		}

		sess, err := s.service.CreateSession(title, course)
		if err != nil {
			s.sendErrorResponse(w, http.StatusInternalServerError,
				fmt.Sprintf("Failed to create session: %v", err), "operation", "create_session")
			return
		}
		s.sendJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"message": "Session created",
			"session": sess,
		})

	default:
		s.sendMethodNotAllowed(w)
	}
}

// handleSessionStatus changes the stored status of a session
func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.requirePostSession(w, r, "update_status")
	if !ok {
		return
	}
	status := r.FormValue("status")

	if err := s.service.UpdateSessionStatus(sessionID, status); err != nil {
		s.sendErrorResponse(w, statusCodeFor(err),
			fmt.Sprintf("Failed to update status: %v", err),
			"session_id", sessionID, "status", status, "operation", "update_status")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Status updated",
	})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.requirePostSession(w, r, "delete_session")
	if !ok {
		return
	}
	if err := s.service.DeleteSession(sessionID); err != nil {
		s.sendErrorResponse(w, statusCodeFor(err),
			fmt.Sprintf("Failed to delete session: %v", err),
			"session_id", sessionID, "operation", "delete_session")
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Session deleted",
	})
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	s.handleControl(w, r, "start_recording", "Recording started", s.service.StartRecording)
}

func (s *Server) handlePauseRecording(w http.ResponseWriter, r *http.Request) {
	s.handleControl(w, r, "pause_recording", "Recording paused", s.service.PauseRecording)
}

func (s *Server) handleResumeRecording(w http.ResponseWriter, r *http.Request) {
	s.handleControl(w, r, "resume_recording", "Recording resumed", s.service.ResumeRecording)
}

// handleStopRecording stops a session and returns its completed record
func (s *Server) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := s.requirePostSession(w, r, "stop_recording")
	if !ok {
		return
	}

	sess, err := s.service.StopRecording(sessionID)
	if err != nil {
		s.sendErrorResponse(w, statusCodeFor(err),
			fmt.Sprintf("Failed to stop recording: %v", err),
			"session_id", sessionID, "operation", "stop_recording")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Recording stopped",
		"session": sess,
	})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request, operation, message string, fn func(string) error) {
	sessionID, ok := s.requirePostSession(w, r, operation)
	if !ok {
		return
	}

	slog.Debug("Control request received", "operation", operation, "session_id", sessionID)
	if err := fn(sessionID); err != nil {
		s.sendErrorResponse(w, statusCodeFor(err),
			fmt.Sprintf("Failed to %s: %v", humanize(operation), err),
			"session_id", sessionID, "operation", operation)
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": message,
		"state":   s.service.GetRecordingStatus(sessionID),
	})
}

// handleStatus returns the live state and stored record of a session
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendMethodNotAllowed(w)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Session is required", "operation", "status")
		return
	}

	state := s.service.GetRecordingStatus(sessionID)
	response := StatusResponse{
		Status:  string(state.Status),
		Message: generateStatusMessage(state),
		State:   state,
	}
	if sess, err := s.service.GetSession(sessionID); err == nil {
		response.Session = sess
	}

	s.sendJSON(w, http.StatusOK, response)
}

func (s *Server) handleAudioInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.sendMethodNotAllowed(w)
		return
	}

	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Session is required", "operation", "audio_info")
		return
	}

	info, err := s.service.GetAudioInfo(sessionID)
	if err != nil {
		s.sendErrorResponse(w, statusCodeFor(err),
			fmt.Sprintf("Failed to read audio: %v", err),
			"session_id", sessionID, "operation", "audio_info")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"path":        info.Path,
		"format":      info.Format,
		"frames":      info.Frames,
		"duration_ms": info.Duration.Milliseconds(),
		"size_bytes":  info.SizeBytes,
	})
}

// handleEvents upgrades to a websocket and streams events until the client
// goes away. An optional ?session= filter restricts the stream.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("session")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ch, unsubscribe := s.service.Subscribe()
	defer unsubscribe()

	// reader goroutine: notices client close and answers control frames
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	slog.Debug("Websocket client connected", "remote", r.RemoteAddr, "session_filter", filter)
	for {
		select {
		case <-closed:
			slog.Debug("Websocket client disconnected", "remote", r.RemoteAddr)
			return
		case <-r.Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if filter != "" && ev.SessionID != filter {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				slog.Debug("Websocket write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) requirePostSession(w http.ResponseWriter, r *http.Request, operation string) (string, bool) {
	if r.Method != http.MethodPost {
		s.sendMethodNotAllowed(w)
		return "", false
	}
	if err := r.ParseForm(); err != nil {
		s.sendErrorResponse(w, http.StatusBadRequest, "Failed to parse form", "operation", operation)
		return "", false
	}
	sessionID := r.FormValue("session")
	if sessionID == "" {
		s.sendErrorResponse(w, http.StatusBadRequest, "Session is required", "operation", operation)
		return "", false
	}
	return sessionID, true
}

// statusCodeFor maps domain errors onto HTTP status codes
func statusCodeFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, audio.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidStatus):
		return http.StatusBadRequest
	case errors.Is(err, audio.ErrAlreadyRecording),
		errors.Is(err, audio.ErrNotRecording),
		errors.Is(err, audio.ErrNotPaused),
		errors.Is(err, audio.ErrAlreadyPaused):
		return http.StatusConflict
	case errors.Is(err, audio.ErrNoInputDevice), errors.Is(err, audio.ErrNoSuitableConfig):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func humanize(operation string) string {
	b := []byte(operation)
	for i, c := range b {
		if c == '_' {
			b[i] = ' '
		}
	}
	return string(b)
}

func generateStatusMessage(state service.RecordingStatus) string {
	switch state.Status {
	case audio.StatusRecording:
		return "Recording in progress"
	case audio.StatusPaused:
		return "Recording paused"
	default:
		if state.LastError != "" {
			return state.LastError
		}
		return "Not recording"
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("Failed to encode response", "error", err)
	}
}

func (s *Server) sendMethodNotAllowed(w http.ResponseWriter) {
	s.sendJSON(w, http.StatusMethodNotAllowed, map[string]interface{}{
		"success": false,
		"error":   "Method not allowed",
	})
}

// sendErrorResponse sends a JSON error response and logs the error with context
func (s *Server) sendErrorResponse(w http.ResponseWriter, statusCode int, errorMsg string, logContext ...interface{}) {
	logFields := []interface{}{"error_message", errorMsg, "status_code", statusCode}
	if len(logContext) > 0 {
		logFields = append(logFields, logContext...)
	}
	slog.Error("Sending error response to client", logFields...)

	s.sendJSON(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   errorMsg,
	})
}

func getLocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String()
}
