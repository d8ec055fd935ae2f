// Package server exposes the search engine and tool dispatcher over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hrygo/guidesearch/internal/profile"
	"github.com/hrygo/guidesearch/metrics"
	"github.com/hrygo/guidesearch/tooldispatch"
)

type Server struct {
	Profile *profile.Profile

	echoServer *echo.Echo
}

func NewServer(profile *profile.Profile, engine SearchEngine, dispatcher *tooldispatch.Dispatcher, exporter *metrics.Exporter) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		Profile:    profile,
		echoServer: e,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": profile.Version,
		})
	})
	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}

	apiV1 := &apiV1Service{engine: engine, dispatcher: dispatcher}
	apiV1.register(e.Group("/api/v1"))

	return s
}

// Start begins serving in the background. Errors other than a clean
// shutdown are logged.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.echoServer.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start server", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	slog.Info("guidesearch stopped properly")
}
