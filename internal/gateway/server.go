package gateway

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/lhdbsbz/hookrelay/internal/config"
	"github.com/lhdbsbz/hookrelay/internal/relay"
	"github.com/lhdbsbz/hookrelay/internal/upload"
	"github.com/lhdbsbz/hookrelay/internal/webhook"
)

//go:embed web/index.html web/static/*
var webFS embed.FS

// Server is the hookrelay gateway: browser-facing WebSocket channel, upload endpoint and
// static retrieval of stored files.
type Server struct {
	Conns *ConnManager

	cfg        atomic.Pointer[config.Config]
	relayer    atomic.Pointer[webhook.Gateway]
	classifier atomic.Pointer[upload.Classifier]
	store      *upload.Store
	upgrader   websocket.Upgrader
	log        *slog.Logger
	httpSrv    *http.Server
	startAt    time.Time
}

func NewServer(cfg *config.Config, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		Conns:   NewConnManager(),
		store:   upload.NewStore(cfg.Uploads.Dir, cfg.Uploads.PublicPrefix),
		log:     log,
		startAt: time.Now(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  16 * 1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     s.checkOrigin,
	}
	if err := s.Reload(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload swaps in a webhook gateway and classifier built from cfg. Turns already in
// flight finish against the previous gateway. Port and upload directory are fixed
// for the life of the server.
func (s *Server) Reload(cfg *config.Config) error {
	gw, err := webhook.New(cfg.Webhook)
	if err != nil {
		return fmt.Errorf("webhook gateway: %w", err)
	}
	if old := s.cfg.Load(); old != nil {
		if old.Gateway.Port != cfg.Gateway.Port || old.Uploads.Dir != cfg.Uploads.Dir {
			s.log.Warn("port and upload directory changes take effect after restart")
		}
	}
	s.cfg.Store(cfg)
	s.relayer.Store(gw)
	s.classifier.Store(upload.NewClassifier(cfg.Uploads))
	s.log.Info("webhook configured", "url", gw.Endpoint(), "agent", cfg.Webhook.AgentLabel)
	return nil
}

// Config returns the active configuration.
func (s *Server) Config() *config.Config { return s.cfg.Load() }

func (s *Server) relay(ctx context.Context, env webhook.Envelope) (*webhook.Reply, error) {
	return s.relayer.Load().Relay(ctx, env)
}

// Handler builds the HTTP handler: gin routes wrapped in CORS.
func (s *Server) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	cfg := s.cfg.Load()
	engine.GET("/health", s.ginHealth)
	engine.GET("/ws", s.ginWebSocket)
	s.registerAPIRoutes(engine)
	engine.Static(s.store.Prefix(), s.store.Root())

	webRoot, _ := fs.Sub(webFS, "web")
	staticFS, _ := fs.Sub(webFS, "web/static")
	engine.StaticFS("/static", http.FS(staticFS))
	engine.GET("/", s.ginWebIndex(webRoot))

	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.Gateway.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	})(engine)
}

// Start begins listening for connections and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	port := s.cfg.Load().Gateway.Port
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info("hookrelay gateway starting", "port", port)
	s.log.Info("chat UI", "url", fmt.Sprintf("http://localhost:%d/", port))

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Conns.CloseAll("server shutting down")
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ginWebIndex(webRoot fs.FS) gin.HandlerFunc {
	return func(c *gin.Context) {
		data, err := fs.ReadFile(webRoot, "index.html")
		if err != nil {
			c.Status(http.StatusNotFound)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", data)
	}
}

func (s *Server) ginHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"uptime":  time.Since(s.startAt).Round(time.Second).String(),
		"clients": s.Conns.Count(),
	})
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	allowed := s.cfg.Load().Gateway.AllowedOrigins
	return origin == "" || slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}

func (s *Server) ginWebSocket(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	conn := NewConn(ws)
	s.Conns.Add(conn)
	defer s.Conns.Remove(conn.ID)

	s.log.Info("connection established", "id", conn.ID, "remote", c.ClientIP())
	if err := conn.Emit(relay.EventConnect, relay.ConnectPayload{ConnID: conn.ID}); err != nil {
		s.log.Warn("connect event failed", "id", conn.ID, "error", err)
		return
	}

	sess := relay.NewSession(conn.ID, relay.RelayFunc(s.relay), conn, s.log)
	queue := make(chan relay.Inbound, s.cfg.Load().Gateway.QueueSize)

	// Webhook calls outlive the connection; only their results are dropped.
	go sess.Run(context.WithoutCancel(c.Request.Context()), queue)

	defer func() {
		sess.Close()
		close(queue)
	}()

	for {
		in, err := ReadInbound(ws)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("connection lost", "id", conn.ID, "error", err)
			} else {
				s.log.Info("connection closed", "id", conn.ID)
			}
			return
		}
		queue <- in
	}
}
