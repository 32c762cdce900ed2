package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/alertwarden/alertwarden/internal/alerting"
	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/errors"
	"github.com/alertwarden/alertwarden/internal/logger"
	"github.com/alertwarden/alertwarden/internal/notification"
)

// initChannelRoutes registers channel, escalation policy, and rule-channel
// link endpoints. All of them mutate delivery topology, so everything past
// the list and get endpoints sits behind the auth middleware.
func (c *Controller) initChannelRoutes() {
	channels := c.Group.Group("/channels")
	channels.GET("", c.ListChannels)
	channels.GET("/:id", c.GetChannel)

	protectedChannels := channels.Group("", c.authMiddleware)
	protectedChannels.POST("", c.CreateChannel)
	protectedChannels.PUT("/:id", c.UpdateChannel)
	protectedChannels.DELETE("/:id", c.DeleteChannel)

	policies := c.Group.Group("/policies")
	policies.GET("", c.ListPolicies)
	policies.GET("/:id", c.GetPolicy)

	protectedPolicies := policies.Group("", c.authMiddleware)
	protectedPolicies.POST("", c.CreatePolicy)
	protectedPolicies.PUT("/:id", c.UpdatePolicy)
	protectedPolicies.DELETE("/:id", c.DeletePolicy)

	links := c.Group.Group("/rules/:rule_id/channels")
	links.GET("", c.ListRuleChannels)

	protectedLinks := links.Group("", c.authMiddleware)
	protectedLinks.POST("", c.LinkRuleChannel)

	c.Group.DELETE("/links/:id", c.UnlinkRuleChannel, c.authMiddleware)
}

// ListChannels returns the team's notification channels.
func (c *Controller) ListChannels(ctx echo.Context) error {
	channels, err := c.channels.ListChannels(ctx.Request().Context(), teamID(ctx))
	if err != nil {
		return c.serviceError(ctx, err, "Failed to list channels")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"channels": channels,
		"count":    len(channels),
	})
}

// GetChannel returns a single channel.
func (c *Controller) GetChannel(ctx echo.Context) error {
	channel, err := c.teamChannel(ctx)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to get channel")
	}
	return ctx.JSON(http.StatusOK, channel)
}

// CreateChannel validates and creates a notification channel.
func (c *Controller) CreateChannel(ctx echo.Context) error {
	var channel entities.NotificationChannel
	if err := ctx.Bind(&channel); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	channel.ID = 0
	channel.TeamID = teamID(ctx)
	applyChannelDefaults(&channel)

	if err := notification.ValidateChannel(&channel); err != nil {
		return c.serviceError(ctx, err, "Failed to create channel")
	}
	if err := c.channels.CreateChannel(ctx.Request().Context(), &channel); err != nil {
		return c.serviceError(ctx, err, "Failed to create channel")
	}

	c.log.Info("notification channel created",
		logger.String("name", channel.Name),
		logger.String("type", channel.ChannelType),
		logger.Uint64("id", uint64(channel.ID)))
	return ctx.JSON(http.StatusCreated, channel)
}

// UpdateChannel replaces a channel's mutable fields.
func (c *Controller) UpdateChannel(ctx echo.Context) error {
	existing, err := c.teamChannel(ctx)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to update channel")
	}

	var channel entities.NotificationChannel
	if err := ctx.Bind(&channel); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	channel.ID = existing.ID
	channel.TeamID = existing.TeamID
	channel.CreatedAt = existing.CreatedAt
	applyChannelDefaults(&channel)

	if err := notification.ValidateChannel(&channel); err != nil {
		return c.serviceError(ctx, err, "Failed to update channel")
	}
	if err := c.channels.UpdateChannel(ctx.Request().Context(), &channel); err != nil {
		return c.serviceError(ctx, err, "Failed to update channel")
	}
	return ctx.JSON(http.StatusOK, channel)
}

// DeleteChannel deletes a channel.
func (c *Controller) DeleteChannel(ctx echo.Context) error {
	channel, err := c.teamChannel(ctx)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to delete channel")
	}
	if err := c.channels.DeleteChannel(ctx.Request().Context(), channel.ID); err != nil {
		return c.serviceError(ctx, err, "Failed to delete channel")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ListPolicies returns the team's escalation policies.
func (c *Controller) ListPolicies(ctx echo.Context) error {
	policies, err := c.channels.ListPolicies(ctx.Request().Context(), teamID(ctx))
	if err != nil {
		return c.serviceError(ctx, err, "Failed to list policies")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"policies": policies,
		"count":    len(policies),
	})
}

// GetPolicy returns a single escalation policy.
func (c *Controller) GetPolicy(ctx echo.Context) error {
	policy, err := c.teamPolicy(ctx)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to get policy")
	}
	return ctx.JSON(http.StatusOK, policy)
}

// CreatePolicy validates and creates an escalation policy.
func (c *Controller) CreatePolicy(ctx echo.Context) error {
	var policy entities.EscalationPolicy
	if err := ctx.Bind(&policy); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	policy.ID = 0
	policy.TeamID = teamID(ctx)

	if err := alerting.ValidatePolicy(&policy); err != nil {
		return c.serviceError(ctx, err, "Failed to create policy")
	}
	if err := c.channels.CreatePolicy(ctx.Request().Context(), &policy); err != nil {
		return c.serviceError(ctx, err, "Failed to create policy")
	}

	c.log.Info("escalation policy created",
		logger.String("name", policy.Name),
		logger.Int("levels", len(policy.Levels)),
		logger.Uint64("id", uint64(policy.ID)))
	return ctx.JSON(http.StatusCreated, policy)
}

// UpdatePolicy replaces a policy's levels and name. Active escalation walks
// keep the schedule they started with; the new levels apply to alerts opened
// afterwards.
func (c *Controller) UpdatePolicy(ctx echo.Context) error {
	existing, err := c.teamPolicy(ctx)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to update policy")
	}

	var policy entities.EscalationPolicy
	if err := ctx.Bind(&policy); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	policy.ID = existing.ID
	policy.TeamID = existing.TeamID
	policy.CreatedAt = existing.CreatedAt

	if err := alerting.ValidatePolicy(&policy); err != nil {
		return c.serviceError(ctx, err, "Failed to update policy")
	}
	if err := c.channels.UpdatePolicy(ctx.Request().Context(), &policy); err != nil {
		return c.serviceError(ctx, err, "Failed to update policy")
	}
	return ctx.JSON(http.StatusOK, policy)
}

// DeletePolicy deletes a policy.
func (c *Controller) DeletePolicy(ctx echo.Context) error {
	policy, err := c.teamPolicy(ctx)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to delete policy")
	}
	if err := c.channels.DeletePolicy(ctx.Request().Context(), policy.ID); err != nil {
		return c.serviceError(ctx, err, "Failed to delete policy")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// ListRuleChannels returns a rule's channel links.
func (c *Controller) ListRuleChannels(ctx echo.Context) error {
	ruleID, err := parseUintParam(ctx, "rule_id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}
	if _, err := c.rules.Get(ctx.Request().Context(), teamID(ctx), ruleID); err != nil {
		return c.serviceError(ctx, err, "Failed to list rule channels")
	}

	links, err := c.channels.ListLinksForRule(ctx.Request().Context(), ruleID)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to list rule channels")
	}
	return ctx.JSON(http.StatusOK, map[string]any{
		"links": links,
		"count": len(links),
	})
}

// LinkRuleChannel binds a channel, optionally through a policy, to a rule.
// Rule, channel, and policy must all belong to the requesting team.
func (c *Controller) LinkRuleChannel(ctx echo.Context) error {
	ruleID, err := parseUintParam(ctx, "rule_id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid rule ID"})
	}

	var body struct {
		ChannelID uint  `json:"channel_id"`
		PolicyID  *uint `json:"escalation_policy_id"`
	}
	if err := ctx.Bind(&body); err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	team := teamID(ctx)
	reqCtx := ctx.Request().Context()

	if _, err := c.rules.Get(reqCtx, team, ruleID); err != nil {
		return c.serviceError(ctx, err, "Failed to link channel")
	}
	channel, err := c.channels.GetChannel(reqCtx, body.ChannelID)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to link channel")
	}
	if channel.TeamID != team {
		return c.serviceError(ctx, errors.E(errors.KindForbidden, "channel belongs to another team"), "Failed to link channel")
	}
	if body.PolicyID != nil {
		policy, err := c.channels.GetPolicy(reqCtx, *body.PolicyID)
		if err != nil {
			return c.serviceError(ctx, err, "Failed to link channel")
		}
		if policy.TeamID != team {
			return c.serviceError(ctx, errors.E(errors.KindForbidden, "policy belongs to another team"), "Failed to link channel")
		}
	}

	link := entities.AlertRuleChannel{
		TeamID:      team,
		AlertRuleID: ruleID,
		ChannelID:   body.ChannelID,
		PolicyID:    body.PolicyID,
	}
	if err := c.channels.CreateLink(reqCtx, &link); err != nil {
		return c.serviceError(ctx, err, "Failed to link channel")
	}
	return ctx.JSON(http.StatusCreated, link)
}

// UnlinkRuleChannel removes a rule-channel link.
func (c *Controller) UnlinkRuleChannel(ctx echo.Context) error {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return ctx.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid link ID"})
	}

	link, err := c.channels.GetLink(ctx.Request().Context(), id)
	if err != nil {
		return c.serviceError(ctx, err, "Failed to unlink channel")
	}
	if link.TeamID != teamID(ctx) {
		return c.serviceError(ctx, errors.E(errors.KindForbidden, "link belongs to another team"), "Failed to unlink channel")
	}

	if err := c.channels.DeleteLink(ctx.Request().Context(), id); err != nil {
		return c.serviceError(ctx, err, "Failed to unlink channel")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// teamChannel fetches the channel addressed by the :id parameter and checks
// team ownership.
func (c *Controller) teamChannel(ctx echo.Context) (*entities.NotificationChannel, error) {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return nil, errors.E(errors.KindValidation, "invalid channel id")
	}
	channel, err := c.channels.GetChannel(ctx.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if channel.TeamID != teamID(ctx) {
		return nil, errors.E(errors.KindForbidden, "channel belongs to another team")
	}
	return channel, nil
}

// teamPolicy fetches the policy addressed by the :id parameter and checks
// team ownership.
func (c *Controller) teamPolicy(ctx echo.Context) (*entities.EscalationPolicy, error) {
	id, err := parseUintParam(ctx, "id")
	if err != nil {
		return nil, errors.E(errors.KindValidation, "invalid policy id")
	}
	policy, err := c.channels.GetPolicy(ctx.Request().Context(), id)
	if err != nil {
		return nil, err
	}
	if policy.TeamID != teamID(ctx) {
		return nil, errors.E(errors.KindForbidden, "policy belongs to another team")
	}
	return policy, nil
}

func applyChannelDefaults(ch *entities.NotificationChannel) {
	if ch.MaxPerHour == 0 {
		ch.MaxPerHour = 60
	}
	if ch.MaxPerDay == 0 {
		ch.MaxPerDay = 500
	}
}
