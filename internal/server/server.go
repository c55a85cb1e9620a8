package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ultrapreps/hypehub/internal/config"
	"github.com/ultrapreps/hypehub/internal/hub"
)

// Server exposes the websocket handshake endpoint plus health and
// metrics. All real-time traffic is handed to the hub after upgrade.
type Server struct {
	echo     *echo.Echo
	config   *config.Config
	hub      *hub.Hub
	upgrader websocket.Upgrader
	limits   *ConnectionLimits
}

func NewServer(cfg *config.Config, h *hub.Hub) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	srv := &Server{
		echo:   e,
		config: cfg,
		hub:    h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     NewCheckOrigin(cfg.AppURL, cfg.IsDevelopment()),
		},
		limits: NewConnectionLimits(int64(cfg.MaxConnections), cfg.MaxConnectionsPerIP, cfg.ConnectionRate, cfg.ConnectionBurst),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
