package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/alertwarden/alertwarden/internal/alerting"
	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/logger"
)

// ruleRequest shadows cooldown_minutes with a pointer so an explicit 0 is
// distinguishable from an omitted field. Zero is a valid cooldown; the
// default applies only when the body omits the field entirely.
type ruleRequest struct {
	entities.AlertRule
	CooldownMinutes *int `json:"cooldown_minutes"`
}

func (r *ruleRequest) rule() *entities.AlertRule {
	rule := r.AlertRule
	if r.CooldownMinutes != nil {
		rule.CooldownMin = *r.CooldownMinutes
	} else {
		rule.CooldownMin = alerting.DefaultCooldownMin
	}
	return &rule
}

// initRuleRoutes registers alert rule endpoints.
func (c *Controller) initRuleRoutes() {
	rules := c.Group.Group("/rules")

	rules.GET("", c.ListRules)
	rules.GET("/:id", c.GetRule)

	protected := rules.Group("", c.authMiddleware)
	protected.POST("", c.CreateRule)
	protected.PUT("/:id", c.UpdateRule)
	protected.PATCH("/:id/toggle", c.ToggleRule)
	protected.DELETE("/:id", c.DeleteRule)
}

// ListRules returns the team's alert rules, optionally filtered.
func (c *Controller) ListRules(ctx echo.Context) error {
	filter := repository.AlertRuleFilter{
		MetricName: ctx.QueryParam("metric_name"),
		Severity:   ctx.QueryParam("severity"),
	}
	if enabledParam := ctx.QueryParam("enabled"); enabledParam != "" {
		v := enabledParam == "true"
		filter.Enabled = &v
	}

	rules, err := c.rules.List(ctx.Request().Context(), teamID(ctx), filter)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to list alert rules")
	}

	return ctx.JSON(http.StatusOK, map[string]any{
		"rules": rules,
		"count": len(rules),
	})
}

// GetRule returns a single alert rule.
func (c *Controller) GetRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	rule, err := c.rules.Get(ctx.Request().Context(), teamID(ctx), id)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to get alert rule")
	}
	return ctx.JSON(http.StatusOK, rule)
}

// CreateRule validates and creates an alert rule.
func (c *Controller) CreateRule(ctx echo.Context) error {
	var req ruleRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	created, err := c.rules.Create(ctx.Request().Context(), teamID(ctx), req.rule())
	if err != nil {
		return c.serviceError(ctx, err, "Failed to create alert rule")
	}

	c.log.Info("alert rule created",
		logger.String("name", created.Name),
		logger.Uint64("id", uint64(created.ID)))
	return ctx.JSON(http.StatusCreated, created)
}

// UpdateRule replaces a rule's mutable fields.
func (c *Controller) UpdateRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	var req ruleRequest
	if err := ctx.Bind(&req); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	updated, err := c.rules.Update(ctx.Request().Context(), teamID(ctx), id, req.rule())
	if err != nil {
		return c.serviceError(ctx, err, "Failed to update alert rule")
	}
	return ctx.JSON(http.StatusOK, updated)
}

// ToggleRule enables or disables a rule.
func (c *Controller) ToggleRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	if err := c.rules.Toggle(ctx.Request().Context(), teamID(ctx), id, body.Enabled); err != nil {
		return c.serviceError(ctx, err, "Failed to toggle alert rule")
	}
	return ctx.JSON(http.StatusOK, map[string]any{"id": id, "enabled": body.Enabled})
}

// DeleteRule deletes a rule. Rules with unresolved alerts are rejected.
func (c *Controller) DeleteRule(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	if err := c.rules.Delete(ctx.Request().Context(), teamID(ctx), id); err != nil {
		return c.serviceError(ctx, err, "Failed to delete alert rule")
	}
	return ctx.NoContent(http.StatusNoContent)
}
