package v1

import (
	"math"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/hrygo/journalrecap/internal/profile"
	"github.com/hrygo/journalrecap/plugin/markdown"
	"github.com/hrygo/journalrecap/server/auth"
	"github.com/hrygo/journalrecap/server/service/settings"
	"github.com/hrygo/journalrecap/server/service/summarize"
)

const apiPrefix = "/api/v1"

type APIV1Service struct {
	// Domain Services
	SummarizeService *summarize.Service
	SettingsService  *settings.Service

	// Shared Infra
	Profile *profile.Profile
	Vault   *markdown.Vault

	authenticator *auth.Authenticator
	// limiter is nil when summarize calls are not rate limited.
	limiter *rate.Limiter
}

func NewAPIV1Service(instanceProfile *profile.Profile, vault *markdown.Vault, summarizeService *summarize.Service, settingsService *settings.Service) (*APIV1Service, error) {
	authenticator, err := auth.NewAuthenticator(instanceProfile.Secret)
	if err != nil {
		return nil, err
	}
	service := &APIV1Service{
		SummarizeService: summarizeService,
		SettingsService:  settingsService,
		Profile:          instanceProfile,
		Vault:            vault,
		authenticator:    authenticator,
	}
	// An empty allow-list would make the CORS middleware fall back to "*".
	if len(instanceProfile.CORSOrigins) == 0 {
		instanceProfile.CORSOrigins = []string{profile.DefaultCORSOrigin}
	}
	if instanceProfile.RateLimit > 0 {
		burst := int(math.Ceil(instanceProfile.RateLimit))
		service.limiter = rate.NewLimiter(rate.Limit(instanceProfile.RateLimit), burst)
	}
	return service, nil
}

// RegisterRoutes registers the REST endpoints with the given Echo instance.
func (s *APIV1Service) RegisterRoutes(echoServer *echo.Echo) {
	// Editor plugins call from their own origin (e.g. app://obsidian.md). CORS is
	// registered on the instance so preflights of unrouted methods are answered too.
	echoServer.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Request().URL.Path, apiPrefix+"/")
		},
		AllowOrigins: s.Profile.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))
	apiGroup := echoServer.Group(apiPrefix,
		s.rejectForeignOrigin,
		middleware.RequestIDWithConfig(middleware.RequestIDConfig{
			Generator: uuid.NewString,
		}),
		s.authenticate,
	)

	apiGroup.POST("/recaps", s.CreateRecap, s.rateLimit)
	apiGroup.GET("/recaps", s.ListRecaps)
	apiGroup.GET("/recaps/feed.atom", s.GetRecapFeed)
	apiGroup.GET("/recaps/:uid", s.GetRecap)

	apiGroup.GET("/settings", s.GetSettings)
	apiGroup.PATCH("/settings", s.UpdateSettings)
	apiGroup.POST("/settings/test", s.TestSettings)
	apiGroup.POST("/settings/reset/:field", s.ResetSettings)
}

// rejectForeignOrigin refuses browser requests from origins outside the allow-list.
// The CORS middleware only withholds headers, so simple requests would still run.
func (s *APIV1Service) rejectForeignOrigin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		origin := c.Request().Header.Get(echo.HeaderOrigin)
		if origin != "" && !slices.Contains(s.Profile.CORSOrigins, origin) {
			return echo.NewHTTPError(http.StatusForbidden, "origin not allowed")
		}
		return next(c)
	}
}

// authenticate requires a valid bearer access token on every API route.
func (s *APIV1Service) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, err := s.authenticator.Authenticate(c.Request().Header.Get(echo.HeaderAuthorization)); err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required").SetInternal(err)
		}
		return next(c)
	}
}

// rateLimit rejects summarize calls above the configured rate with 429.
func (s *APIV1Service) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.limiter != nil && !s.limiter.Allow() {
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many summarize requests, try again later")
		}
		return next(c)
	}
}
