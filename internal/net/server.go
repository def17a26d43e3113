package net

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/weiqigo/server/internal/protocol"
)

// Server terminates HTTP, upgrades /ws connections into Sessions, and hands
// them to the hub. Command handling happens inside each session's readLoop.
type Server struct {
	httpSrv  *http.Server
	hub      *Hub
	registry *protocol.Registry
	upgrader websocket.Upgrader

	outSize   int
	cmdPerSec int
	onClose   func(*Session)

	log *zap.Logger
}

func NewServer(bindAddr string, hub *Hub, reg *protocol.Registry, outSize, cmdPerSec int, onClose func(*Session), log *zap.Logger) *Server {
	s := &Server{
		hub:      hub,
		registry: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Game clients connect from arbitrary origins; identity is
			// per-game, not per-origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		outSize:   outSize,
		cmdPerSec: cmdPerSec,
		onClose:   onClose,
		log:       log,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/ws", s.serveWS)

	s.httpSrv = &http.Server{
		Addr:              bindAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info("伺服器開始監聽", zap.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains the HTTP server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket 升級失敗", zap.Error(err))
		return
	}

	sess := NewSession(conn, s.outSize, s.cmdPerSec, s.registry, s.onClose, s.log)
	s.hub.Track(sess)
	sess.Start()

	s.log.Info("玩家連線",
		zap.String("session", sess.ID),
		zap.String("ip", sess.IP),
	)
}
