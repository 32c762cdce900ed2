package repository

import "github.com/alertwarden/alertwarden/internal/errors"

// Sentinel errors returned when a record id does not exist. All carry
// errors.KindNotFound so the API layer maps them uniformly.
var (
	ErrAlertRuleNotFound = errors.E(errors.KindNotFound, "alert rule not found")
	ErrAlertNotFound     = errors.E(errors.KindNotFound, "alert not found")
	ErrChannelNotFound   = errors.E(errors.KindNotFound, "notification channel not found")
	ErrPolicyNotFound    = errors.E(errors.KindNotFound, "escalation policy not found")
	ErrLinkNotFound      = errors.E(errors.KindNotFound, "rule-channel link not found")
)
