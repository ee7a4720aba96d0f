package ipcam

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/cors"
	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

var ipv4Pattern = regexp.MustCompile(`^(\d{1,3}\.){3}\d{1,3}$`)

// ServerConfig collaborators shared by every session
type ServerConfig struct {
	Settings StreamSettings
	// Open builds a fresh camera source per connection
	Open      OpenSourceFunc
	Detector  Detector
	Annotator *Annotator
	Encoder   FrameEncoder
	Metrics   *Metrics
	Log       *log.Entry
}

// Server accepts websocket clients and runs one relay per client
type Server struct {
	cfg      ServerConfig
	upgrader websocket.Upgrader
	log      *log.Entry

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	closing  bool
	sessions sync.WaitGroup
}

// NewServer builds a server; call ListenAndServe or mount Handler
func NewServer(cfg ServerConfig) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:    cfg,
		log:    moduleLogger(cfg.Log, "server"),
		ctx:    ctx,
		cancel: cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// Handler routes: "/" websocket stream, "/api/validate", "/metrics", "/healthz"
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/validate", s.handleValidate).Methods(http.MethodPost)
	router.Handle("/metrics", s.cfg.Metrics.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	router.HandleFunc("/", s.handleStream)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"authorization", "x-client-info", "apikey", "content-type"},
		AllowCredentials: true,
	})
	return c.Handler(router)
}

// ListenAndServe serves until ctx is cancelled, then shuts down
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.cfg.Settings.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.log.Infof("Starting WebSocket server on %s", addr)

	select {
	case err := <-errCh:
		s.Shutdown(context.Background())
		return errors.Wrapf(err, "Can't serve on %s", addr)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.WithError(err).Warn("HTTP shutdown incomplete")
	}
	return s.Shutdown(shutdownCtx)
}

// Shutdown cancels live sessions and waits for their relays to release the cameras
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "sessions still running")
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.sessions.Add(1)
	s.mu.Unlock()
	defer s.sessions.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("Upgrade failed")
		return
	}

	sess := newSession(conn, s.cfg.Settings.WriteTimeout(), s.cfg.Log)
	defer sess.Close()
	s.cfg.Metrics.sessionOpened()
	defer s.cfg.Metrics.sessionClosed()
	sess.log.WithField("remote", r.RemoteAddr).Info("Client connected")

	ctx, cancel := context.WithCancelCause(s.ctx)
	defer cancel(nil)
	go sess.watch(cancel)

	relay := &Relay{
		Open:      s.cfg.Open,
		Detector:  s.cfg.Detector,
		Annotator: s.cfg.Annotator,
		Sink:      &SocketSink{Encoder: s.cfg.Encoder, Out: sess},
		Width:     s.cfg.Settings.Width,
		Height:    s.cfg.Settings.Height,
		Interval:  s.cfg.Settings.Interval(),
		Metrics:   s.cfg.Metrics,
		Log:       sess.log,
	}
	err = relay.Run(ctx)
	sess.log.WithField("graceful", IsGracefulStop(err)).Info("Client session ended")
}

type validateRequest struct {
	IPAddress string `json:"ipAddress"`
}

type validateResponse struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	IPAddress    string `json:"ipAddress"`
	Instructions string `json:"instructions"`
	WsPort       int    `json:"wsPort"`
	WsProtocol   string `json:"wsProtocol"`
	SecurityNote string `json:"securityNote"`
}

// handleValidate checks a camera address and tells the client how to reach the stream
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}
	if req.IPAddress == "" || !ipv4Pattern.MatchString(req.IPAddress) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid IP address format"})
		return
	}

	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
	}
	wsProtocol := "ws"
	securityNote := ""
	if scheme == "https" {
		wsProtocol = "wss"
		securityNote = "Note: Your app is running in a secure context (HTTPS). For WebSocket connections to work properly, your WebSocket server must use secure WebSockets (wss://) or be accessed through a secure proxy."
	}

	writeJSON(w, http.StatusOK, validateResponse{
		Success:      true,
		Message:      "IP address validated",
		IPAddress:    req.IPAddress,
		Instructions: fmt.Sprintf("To start the object detection WebSocket server, run:\nipcam %s", req.IPAddress),
		WsPort:       s.cfg.Settings.Port,
		WsProtocol:   wsProtocol,
		SecurityNote: securityNote,
	})
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.Settings.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.Settings.AllowedOrigins
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins() {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
