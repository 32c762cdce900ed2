package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/alertwarden/alertwarden/internal/alerting"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/logger"
)

// SSE connection configuration.
const (
	// maxSSEConnectionDuration bounds a single stream so abandoned
	// connections do not pile up.
	maxSSEConnectionDuration = 30 * time.Minute
	heartbeatInterval        = 30 * time.Second

	// eventChannelBuffer is the per-client event buffer. Events beyond it
	// are dropped for that client rather than blocking the feed.
	eventChannelBuffer = 64

	sseRateLimitWindow = 1 * time.Minute
	sseRateLimitRate   = 10
	sseRateLimitBurst  = 15
)

// initNotificationRoutes registers delivery history and the change stream.
func (c *Controller) initNotificationRoutes() {
	c.Group.GET("/notifications", c.ListNotifications)

	rateLimiterConfig := middleware.RateLimiterConfig{
		Skipper: middleware.DefaultSkipper,
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(
			middleware.RateLimiterMemoryStoreConfig{
				Rate:      sseRateLimitRate,
				Burst:     sseRateLimitBurst,
				ExpiresIn: sseRateLimitWindow,
			},
		),
		IdentifierExtractor: func(ctx echo.Context) (string, error) {
			return ctx.RealIP(), nil
		},
		ErrorHandler: func(ctx echo.Context, err error) error {
			return ctx.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many stream connection attempts, please wait before trying again",
			})
		},
	}
	c.Group.GET("/stream", c.StreamChanges, middleware.RateLimiterWithConfig(rateLimiterConfig))
}

// ListNotifications returns paginated delivery attempt history.
func (c *Controller) ListNotifications(ctx echo.Context) error {
	filter := repository.NotificationFilter{
		TeamID: teamID(ctx),
		Status: ctx.QueryParam("status"),
	}
	filter.Limit, filter.Offset = parsePagination(ctx)

	if alertIDParam := ctx.QueryParam("alert_id"); alertIDParam != "" {
		v, err := strconv.ParseUint(alertIDParam, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid alert_id"})
		}
		filter.AlertID = uint(v)
	}
	if channelIDParam := ctx.QueryParam("channel_id"); channelIDParam != "" {
		v, err := strconv.ParseUint(channelIDParam, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid channel_id"})
		}
		filter.ChannelID = uint(v)
	}

	items, total, err := c.notifications.List(ctx.Request().Context(), filter)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to list notifications")
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"notifications": items,
		"total":         total,
		"limit":         filter.Limit,
		"offset":        filter.Offset,
	})
}

// StreamChanges serves the team's change events over SSE. Clients receive
// rule and alert state changes as they are published, plus periodic
// heartbeats.
func (c *Controller) StreamChanges(ctx echo.Context) error {
	team := teamID(ctx)
	clientID := uuid.New().String()

	setSSEHeaders(ctx)

	events := make(chan *alerting.ChangeEvent, eventChannelBuffer)
	subID := c.feed.Subscribe(func(event *alerting.ChangeEvent) {
		if event.TeamID != team {
			return
		}
		select {
		case events <- event:
		default:
			// Slow client, drop rather than block the feed.
		}
	})
	defer c.feed.Unsubscribe(subID)

	if err := c.sendSSEMessage(ctx, "connected", map[string]string{
		"clientId": clientID,
		"message":  "Connected to change stream",
	}); err != nil {
		return err
	}

	c.log.Info("change stream client connected",
		logger.String("clientId", clientID),
		logger.String("team_id", team))
	defer c.log.Info("change stream client disconnected",
		logger.String("clientId", clientID))

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	deadline := time.NewTimer(maxSSEConnectionDuration)
	defer deadline.Stop()

	reqCtx := ctx.Request().Context()
	for {
		select {
		case event := <-events:
			if err := c.sendSSEMessage(ctx, event.Type, event); err != nil {
				return err
			}
		case <-heartbeat.C:
			if err := c.sendSSEMessage(ctx, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			}); err != nil {
				return err
			}
		case <-deadline.C:
			return nil
		case <-reqCtx.Done():
			return nil
		}
	}
}

func setSSEHeaders(ctx echo.Context) {
	h := ctx.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func (c *Controller) sendSSEMessage(ctx echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(ctx.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	ctx.Response().Flush()
	return nil
}
