package alerting

import (
	"sort"

	"github.com/alertwarden/alertwarden/internal/datastore/entities"
	"github.com/alertwarden/alertwarden/internal/errors"
)

// ValidatePolicy checks an escalation policy before persistence. Levels must
// be contiguous starting at 1, level 1 fires immediately (delay 0), delays
// strictly increase as levels rise, and every level needs at least one
// target.
func ValidatePolicy(p *entities.EscalationPolicy) error {
	if p.Name == "" {
		return errors.E(errors.KindValidation, "policy name is required")
	}
	if len(p.Levels) == 0 {
		return errors.E(errors.KindValidation, "policy requires at least one escalation level")
	}

	levels := make([]entities.EscalationLevel, len(p.Levels))
	copy(levels, p.Levels)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	prevDelay := 0
	for i := range levels {
		l := &levels[i]
		if l.Level != i+1 {
			return errors.E(errors.KindValidation, "escalation levels must be contiguous starting at 1")
		}
		if l.DelayMin < 0 {
			return errors.Ef(errors.KindValidation, "escalation level %d has a negative delay", l.Level)
		}
		if i == 0 && l.DelayMin != 0 {
			return errors.E(errors.KindValidation, "escalation level 1 must have delay 0")
		}
		if i > 0 && l.DelayMin <= prevDelay {
			return errors.Ef(errors.KindValidation, "escalation level %d delay must exceed the previous level", l.Level)
		}
		prevDelay = l.DelayMin
		if len(l.ChannelIDs) == 0 && len(l.Contacts) == 0 {
			return errors.Ef(errors.KindValidation, "escalation level %d has no channels or contacts", l.Level)
		}
	}
	return nil
}
