package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
)

// alertActionFunc is the shared signature of lifecycle transitions invoked
// through the API.
type alertActionFunc func(ctx context.Context, teamID string, alertID uint, actor string) (*entities.Alert, error)

// initAlertRoutes registers alert lifecycle endpoints.
func (c *Controller) initAlertRoutes() {
	alerts := c.Group.Group("/alerts")

	alerts.GET("", c.ListAlerts)
	alerts.GET("/statistics", c.GetStatistics)
	alerts.GET("/:id", c.GetAlert)

	protected := alerts.Group("", c.authMiddleware)
	protected.POST("/:id/acknowledge", c.AcknowledgeAlert)
	protected.POST("/:id/resolve", c.ResolveAlert)
}

// ListAlerts returns the team's alerts, filtered and paginated.
func (c *Controller) ListAlerts(ctx echo.Context) error {
	filter := repository.AlertFilter{}
	filter.Limit, filter.Offset = parsePagination(ctx)

	if statusParam := ctx.QueryParam("status"); statusParam != "" {
		filter.Statuses = splitCSV(statusParam)
	}
	if severityParam := ctx.QueryParam("severity"); severityParam != "" {
		filter.Severities = splitCSV(severityParam)
	}
	if ruleIDParam := ctx.QueryParam("rule_id"); ruleIDParam != "" {
		v, err := strconv.ParseUint(ruleIDParam, 10, 64)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule_id"})
		}
		filter.RuleID = uint(v)
	}
	if fromParam := ctx.QueryParam("from"); fromParam != "" {
		v, err := time.Parse(time.RFC3339, fromParam)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid from timestamp"})
		}
		filter.From = v
	}
	if toParam := ctx.QueryParam("to"); toParam != "" {
		v, err := time.Parse(time.RFC3339, toParam)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid to timestamp"})
		}
		filter.To = v
	}

	alerts, err := c.lifecycle.List(ctx.Request().Context(), teamID(ctx), filter)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to list alerts")
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// GetAlert returns a single alert.
func (c *Controller) GetAlert(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid alert ID"})
	}

	alert, err := c.lifecycle.Get(ctx.Request().Context(), teamID(ctx), id)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to get alert")
	}
	return ctx.JSON(http.StatusOK, alert)
}

// AcknowledgeAlert marks an active alert as acknowledged, halting further
// escalation.
func (c *Controller) AcknowledgeAlert(ctx echo.Context) error {
	return c.alertAction(ctx, c.lifecycle.Acknowledge, "Failed to acknowledge alert")
}

// ResolveAlert marks an alert as resolved.
func (c *Controller) ResolveAlert(ctx echo.Context) error {
	return c.alertAction(ctx, c.lifecycle.Resolve, "Failed to resolve alert")
}

// alertAction handles the shared shape of acknowledge and resolve: parse the
// alert ID, read the acting user, invoke the transition, render the result.
func (c *Controller) alertAction(ctx echo.Context, action alertActionFunc, internalMsg string) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid alert ID"})
	}

	var body struct {
		Actor string `json:"actor"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if body.Actor == "" {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Actor is required"})
	}

	alert, err := action(ctx.Request().Context(), teamID(ctx), id, body.Actor)
	if err != nil {
		return c.serviceError(ctx, err, internalMsg)
	}
	return ctx.JSON(http.StatusOK, alert)
}

// GetStatistics returns aggregate alert counts over a trailing window.
func (c *Controller) GetStatistics(ctx echo.Context) error {
	windowHours := 24
	if windowParam := ctx.QueryParam("window_hours"); windowParam != "" {
		v, err := strconv.Atoi(windowParam)
		if err != nil {
			return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid window_hours"})
		}
		windowHours = v
	}

	stats, err := c.lifecycle.Stats(ctx.Request().Context(), teamID(ctx), windowHours)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to compute alert statistics")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
