// Package api implements the v1 management HTTP surface: alert rule CRUD,
// alert lifecycle actions, channel and escalation policy management,
// delivery history, and a server-sent change event stream.
package api

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alertwarden/alertwarden/internal/alerting"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/errors"
	"github.com/alertwarden/alertwarden/internal/logger"
)

const (
	// teamHeader scopes every request to one team. Requests without it
	// fall back to the default team.
	teamHeader  = "X-Team-ID"
	defaultTeam = "default"

	apiKeyHeader = "X-API-Key"

	defaultPageLimit = 50
	maxPageLimit     = 200
)

// Controller registers and serves the v1 API routes.
type Controller struct {
	Group *echo.Group

	rules         *alerting.RuleService
	lifecycle     *alerting.LifecycleService
	channels      repository.ChannelRepository
	notifications repository.NotificationRepository
	feed          *alerting.ChangeFeed
	apiKey        string
	log           logger.Logger
}

// Options carries the dependencies for a Controller.
type Options struct {
	Rules         *alerting.RuleService
	Lifecycle     *alerting.LifecycleService
	Channels      repository.ChannelRepository
	Notifications repository.NotificationRepository
	Feed          *alerting.ChangeFeed
	// APIKey, when non-empty, is required on mutating requests via the
	// X-API-Key header.
	APIKey string
	Logger logger.Logger
}

// New builds the controller and registers all routes on the echo instance.
func New(e *echo.Echo, opts Options) *Controller {
	c := &Controller{
		Group:         e.Group("/api/v1"),
		rules:         opts.Rules,
		lifecycle:     opts.Lifecycle,
		channels:      opts.Channels,
		notifications: opts.Notifications,
		feed:          opts.Feed,
		apiKey:        opts.APIKey,
		log:           opts.Logger.With(logger.String("component", "api")),
	}

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	c.Group.GET("/health", c.GetHealth)
	c.Group.GET("/schema", c.GetSchema)

	c.initRuleRoutes()
	c.initAlertRoutes()
	c.initChannelRoutes()
	c.initNotificationRoutes()
	return c
}

// GetHealth reports service liveness.
func (c *Controller) GetHealth(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// GetSchema returns the rule vocabulary for management clients.
func (c *Controller) GetSchema(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, alerting.GetSchema())
}

// authMiddleware enforces the configured API key on mutating routes.
func (c *Controller) authMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if c.apiKey == "" {
			return next(ctx)
		}
		key := ctx.Request().Header.Get(apiKeyHeader)
		if subtle.ConstantTimeCompare([]byte(key), []byte(c.apiKey)) != 1 {
			return ctx.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid or missing API key"})
		}
		return next(ctx)
	}
}

// teamID extracts the request's team scope.
func teamID(ctx echo.Context) string {
	if team := ctx.Request().Header.Get(teamHeader); team != "" {
		return team
	}
	if team := ctx.QueryParam("team_id"); team != "" {
		return team
	}
	return defaultTeam
}

// kindStatus maps a service error kind to an HTTP status.
func kindStatus(err error) int {
	switch errors.KindOf(err) {
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	case errors.KindConflict, errors.KindInvalidState:
		return http.StatusConflict
	case errors.KindForbidden:
		return http.StatusForbidden
	case errors.KindRateLimited:
		return http.StatusTooManyRequests
	case errors.KindSourceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// serviceError renders a service error. Client errors carry the service
// message; internal errors are logged and masked with a generic message.
func (c *Controller) serviceError(ctx echo.Context, err error, internalMsg string) error {
	status := kindStatus(err)
	if status == http.StatusInternalServerError {
		c.log.Error(internalMsg, logger.Error(err))
		return ctx.JSON(status, map[string]string{"error": internalMsg})
	}
	return ctx.JSON(status, map[string]string{"error": err.Error()})
}

// parseUintParam parses a uint route parameter.
func parseUintParam(ctx echo.Context, name string) (uint, error) {
	v, err := strconv.ParseUint(ctx.Param(name), 10, 64)
	if err != nil {
		return 0, err
	}
	return uint(v), nil
}

// parsePagination reads limit and offset query parameters with bounds.
func parsePagination(ctx echo.Context) (limit, offset int) {
	limit = defaultPageLimit
	if limitParam := ctx.QueryParam("limit"); limitParam != "" {
		if v, err := strconv.Atoi(limitParam); err == nil && v > 0 {
			limit = min(v, maxPageLimit)
		}
	}
	if offsetParam := ctx.QueryParam("offset"); offsetParam != "" {
		if v, err := strconv.Atoi(offsetParam); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
