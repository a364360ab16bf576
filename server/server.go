package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/hrygo/journalrecap/ai/metrics"
	"github.com/hrygo/journalrecap/ai/recap"
	"github.com/hrygo/journalrecap/internal/profile"
	"github.com/hrygo/journalrecap/plugin/markdown"
	"github.com/hrygo/journalrecap/plugin/webhook"
	apiv1 "github.com/hrygo/journalrecap/server/router/api/v1"
	"github.com/hrygo/journalrecap/server/service/settings"
	"github.com/hrygo/journalrecap/server/service/summarize"
	"github.com/hrygo/journalrecap/store"
)

type Server struct {
	Profile *profile.Profile
	Store   *store.Store
	Metrics *metrics.PrometheusExporter

	echoServer       *echo.Echo
	summarizeService *summarize.Service
}

// NewServer wires the services behind an echo instance. Routes are ready to serve
// through Handler before Start is called.
func NewServer(_ context.Context, profile *profile.Profile, store *store.Store) (*Server, error) {
	s := &Server{
		Profile: profile,
		Store:   store,
		Metrics: metrics.NewPrometheusExporter(metrics.DefaultConfig()),
	}

	echoServer := echo.New()
	echoServer.Debug = profile.IsDev()
	echoServer.HideBanner = true
	echoServer.HidePort = true
	echoServer.Use(middleware.Recover())
	s.echoServer = echoServer

	var vault *markdown.Vault
	if profile.Vault != "" {
		v, err := markdown.NewVault(profile.Vault, markdown.NewFileStore())
		if err != nil {
			return nil, errors.Wrap(err, "failed to open vault")
		}
		vault = v
	}

	orchestrator := recap.NewOrchestrator(recap.WithObserver(s.Metrics))
	var summarizeOpts []summarize.Option
	if profile.WebhookURL != "" {
		client := webhook.NewClient(time.Duration(profile.WebhookTimeout) * time.Second)
		summarizeOpts = append(summarizeOpts, summarize.WithWebhook(profile.WebhookURL, client))
	}
	summarizeService := summarize.NewService(store, orchestrator, summarizeOpts...)
	s.summarizeService = summarizeService
	settingsService := settings.NewService(store)

	echoServer.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	echoServer.GET("/metrics", echo.WrapHandler(s.Metrics))

	apiV1Service, err := apiv1.NewAPIV1Service(profile, vault, summarizeService, settingsService)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create API service")
	}
	apiV1Service.RegisterRoutes(echoServer)

	return s, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.echoServer
}

// Start listens on the profile address and serves in the background.
func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	s.echoServer.Listener = listener

	go func() {
		if err := s.echoServer.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	// Shutdown echo server.
	if err := s.echoServer.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	// Let webhook deliveries finish.
	s.summarizeService.Wait()

	// Close database connection.
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close database", "error", err)
	}

	slog.Info("journalrecap stopped properly")
}
