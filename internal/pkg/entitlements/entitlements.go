package entitlements

import (
	"math"
	"strings"
	"time"

	"github.com/ManuelReschke/ChatFox/app/models"
)

type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// Status is the user-facing summary of a subscription set.
type Status string

const (
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
	StatusNone     Status = "none"
)

// TrialInfo describes a running trial.
type TrialInfo struct {
	InTrial  bool `json:"in_trial"`
	DaysLeft int  `json:"days_left"`
}

// Decision is a derived entitlement answer. It is never persisted.
type Decision struct {
	IsEntitled bool       `json:"is_entitled"`
	Status     Status     `json:"status"`
	Trial      *TrialInfo `json:"trial,omitempty"`
}

// Plan maps the decision onto the product plans.
func (d Decision) Plan() Plan {
	if d.IsEntitled {
		return PlanPro
	}
	return PlanFree
}

// Entitles reports whether a single record grants pro access at now.
func Entitles(sub *models.Subscription, now time.Time) bool {
	switch strings.ToLower(sub.Status) {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing:
	default:
		return false
	}
	return sub.CurrentPeriodEnd != nil && sub.CurrentPeriodEnd.After(now)
}

// Evaluate derives the decision for a user's records at now.
func Evaluate(subs []models.Subscription, now time.Time) Decision {
	d, _ := evaluate(subs, now)
	return d
}

// evaluate also returns the instant until which an entitled answer holds:
// the latest period end among the entitling records.
func evaluate(subs []models.Subscription, now time.Time) (Decision, time.Time) {
	if len(subs) == 0 {
		return Decision{Status: StatusNone}, time.Time{}
	}

	var (
		best  *models.Subscription
		until time.Time
	)
	for i := range subs {
		sub := &subs[i]
		if !Entitles(sub, now) {
			continue
		}
		if sub.CurrentPeriodEnd.After(until) {
			until = *sub.CurrentPeriodEnd
		}
		// A paid record outranks a trial.
		if best == nil || (isTrial(best, now) && !isTrial(sub, now)) {
			best = sub
		}
	}

	if best != nil {
		d := Decision{IsEntitled: true, Status: StatusActive}
		if isTrial(best, now) {
			d.Trial = &TrialInfo{InTrial: true, DaysLeft: DaysLeft(*best.TrialEnd, now)}
		}
		return d, until
	}

	switch strings.ToLower(latest(subs).Status) {
	case models.SubscriptionStatusCanceled, models.SubscriptionStatusRevoked:
		return Decision{Status: StatusCanceled}, time.Time{}
	default:
		return Decision{Status: StatusExpired}, time.Time{}
	}
}

// DaysLeft is the number of started days until end, never negative.
func DaysLeft(end, now time.Time) int {
	remaining := end.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(math.Ceil(remaining.Hours() / 24))
}

func isTrial(sub *models.Subscription, now time.Time) bool {
	return strings.ToLower(sub.Status) == models.SubscriptionStatusTrialing &&
		sub.TrialEnd != nil && sub.TrialEnd.After(now)
}

// latest picks the record with the most recent period end, falling back to
// the most recently updated one.
func latest(subs []models.Subscription) *models.Subscription {
	best := &subs[0]
	for i := 1; i < len(subs); i++ {
		if newer(&subs[i], best) {
			best = &subs[i]
		}
	}
	return best
}

func newer(a, b *models.Subscription) bool {
	switch {
	case a.CurrentPeriodEnd != nil && b.CurrentPeriodEnd != nil && !a.CurrentPeriodEnd.Equal(*b.CurrentPeriodEnd):
		return a.CurrentPeriodEnd.After(*b.CurrentPeriodEnd)
	case a.CurrentPeriodEnd != nil && b.CurrentPeriodEnd == nil:
		return true
	case a.CurrentPeriodEnd == nil && b.CurrentPeriodEnd != nil:
		return false
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}
