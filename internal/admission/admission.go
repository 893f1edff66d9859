// Package admission decides whether a user may open another watch.
package admission

import (
	"fmt"

	"ticketwatch/internal/model"
)

const DefaultFreeMax = 1

// DeniedError reports the user's tier, how many watches are active and the ceiling for
// that tier.
type DeniedError struct {
	Tier   model.Tier
	Active int
	Limit  int
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s tier allows %d active watch(es), user has %d", e.Tier, e.Limit, e.Active)
}

// Policy holds the per-tier ceilings. Premium users are never limited.
type Policy struct {
	FreeMax int
}

func NewPolicy(freeMax int) Policy {
	if freeMax < 1 {
		freeMax = DefaultFreeMax
	}
	return Policy{FreeMax: freeMax}
}

// Limit returns the ceiling for tier and false when the tier is unbounded. Unknown tiers
// get the free ceiling.
func (p Policy) Limit(tier model.Tier) (int, bool) {
	if tier == model.TierPremium {
		return 0, false
	}
	return p.FreeMax, true
}

// Check returns nil when a user of tier holding active watches may open one more, and a
// *DeniedError otherwise.
func (p Policy) Check(tier model.Tier, active int) error {
	limit, bounded := p.Limit(tier)
	if !bounded || active < limit {
		return nil
	}
	if tier != model.TierPremium {
		tier = model.TierFree
	}
	return &DeniedError{Tier: tier, Active: active, Limit: limit}
}
