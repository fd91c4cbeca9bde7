package license

import "time"

// Temporal constants inherited from already-issued license files. These are
// wire contracts: changing them changes the dates stamped into licenses.
const (
	// SelfHostGracePeriodDays is the extra validity granted past the billing
	// period end so a self-hosted deployment survives a missed payment.
	SelfHostGracePeriodDays = 60

	// annualPeriodThreshold is the billing period length above which a
	// subscription is treated as annual.
	annualPeriodThreshold = 180 * 24 * time.Hour

	// refreshInterval is how often an annual (or long-expired) license asks
	// its consumer to re-sync.
	refreshInterval = 30 * 24 * time.Hour

	// noSubscriptionValidity is the validity window granted when the
	// subscriber has no subscription at all.
	noSubscriptionValidity = 7 * 24 * time.Hour
)

// Terms are the computed temporal fields of a license. Compute derives them
// in the mandated order: Expires, then ExpirationWithoutGracePeriod, then
// Refresh, then Trial.
type Terms struct {
	Expires                      time.Time
	ExpirationWithoutGracePeriod *time.Time
	Refresh                      time.Time
	Trial                        bool
}

// Compute derives the temporal fields for a subscriber with the given plan
// and recorded expiration date. sub may be nil (no subscription). The
// function is pure and total: a malformed snapshot (an annual period with no
// recorded period end) is a caller contract violation and falls through to
// the monthly rules rather than failing.
func Compute(sub *Subscription, plan PlanType, recordedExpiration *time.Time, now time.Time) Terms {
	expires := expiresAt(sub, plan, recordedExpiration, now)
	terms := Terms{
		Expires:                      expires,
		ExpirationWithoutGracePeriod: expirationWithoutGracePeriod(sub, recordedExpiration, now),
		Refresh:                      refreshAt(sub, recordedExpiration, expires, now),
		Trial:                        isTrialing(sub, plan, recordedExpiration, now),
	}
	return terms
}

func expiresAt(sub *Subscription, plan PlanType, recordedExpiration *time.Time, now time.Time) time.Time {
	if sub == nil {
		if plan == PlanCustom && recordedExpiration != nil {
			return *recordedExpiration
		}
		return now.Add(noSubscriptionValidity)
	}

	if trialing(sub, now) {
		return *sub.TrialEndDate
	}

	// Never extend a date that is already dead; a stale recomputation must
	// not revive an expired license.
	if recordedExpiration != nil && recordedExpiration.Before(now) {
		return *recordedExpiration
	}

	if annual(sub) {
		return sub.PeriodEndDate.AddDate(0, 0, SelfHostGracePeriodDays)
	}

	if recordedExpiration != nil {
		return recordedExpiration.AddDate(0, 11, 0)
	}
	return now.AddDate(1, 0, 0)
}

func expirationWithoutGracePeriod(sub *Subscription, recordedExpiration *time.Time, now time.Time) *time.Time {
	if sub == nil || trialing(sub, now) {
		return nil
	}
	if recordedExpiration != nil && recordedExpiration.Before(now) {
		return nil
	}
	if !annual(sub) {
		return nil
	}
	end := *sub.PeriodEndDate
	return &end
}

func refreshAt(sub *Subscription, recordedExpiration *time.Time, expires, now time.Time) time.Time {
	if sub == nil || trialing(sub, now) {
		return expires
	}
	if recordedExpiration != nil && recordedExpiration.Before(now) {
		return expires
	}
	if annual(sub) || now.Sub(expires) > refreshInterval {
		return now.Add(refreshInterval)
	}
	return expires
}

func isTrialing(sub *Subscription, plan PlanType, recordedExpiration *time.Time, now time.Time) bool {
	if sub == nil {
		return !(plan == PlanCustom && recordedExpiration != nil)
	}
	return trialing(sub, now)
}

func trialing(sub *Subscription, now time.Time) bool {
	return sub.TrialEndDate != nil && sub.TrialEndDate.After(now)
}

func annual(sub *Subscription) bool {
	if sub.PeriodStartDate == nil || sub.PeriodEndDate == nil {
		return false
	}
	return sub.PeriodEndDate.Sub(*sub.PeriodStartDate) > annualPeriodThreshold
}
