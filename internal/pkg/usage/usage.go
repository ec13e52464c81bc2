package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/app/repository"
	"github.com/ManuelReschke/ChatFox/internal/pkg/cache"
	"github.com/ManuelReschke/ChatFox/internal/pkg/metrics"
)

// Unlimited disables a limit.
const Unlimited int64 = -1

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Limits caps usage per plan.
type Limits struct {
	FreeDailyMessages  int64
	FreeMonthlyExtreme int64
	ProMonthlyExtreme  int64
}

// DefaultLimits returns the production limits.
func DefaultLimits() Limits {
	return Limits{
		FreeDailyMessages:  20,
		FreeMonthlyExtreme: 5,
		ProMonthlyExtreme:  200,
	}
}

// Entitlements answers the pro question. *entitlements.Resolver implements it.
type Entitlements interface {
	IsEntitled(ctx context.Context, userID uint) bool
}

// Quota is one counter together with its limit.
type Quota struct {
	Used      int64  `json:"used"`
	Limit     int64  `json:"limit"`
	Remaining int64  `json:"remaining"`
	Period    string `json:"period"`
}

// Summary is a user's usage across all counters.
type Summary struct {
	IsPro          bool  `json:"is_pro"`
	DailyMessages  Quota `json:"daily_messages"`
	MonthlyExtreme Quota `json:"monthly_extreme_searches"`
}

// Service counts messages per day and extreme searches per month. Counts
// are read through the registry's usage cache and written through it after
// every increment.
type Service struct {
	repo         repository.UsageRepository
	caches       *cache.Registry
	entitlements Entitlements
	limits       Limits
	metrics      *metrics.Metrics
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a usage service. m may be nil.
func NewService(repo repository.UsageRepository, caches *cache.Registry, ent Entitlements, limits Limits, m *metrics.Metrics, opts ...Option) *Service {
	s := &Service{
		repo:         repo,
		caches:       caches,
		entitlements: ent,
		limits:       limits,
		metrics:      m,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Counts returns the current daily message and monthly extreme search
// counts.
func (s *Service) Counts(ctx context.Context, userID uint) (daily, monthly int64, err error) {
	now := s.now().UTC()
	daily, err = s.read(ctx, userID, models.UsageKindMessage, now)
	if err != nil {
		return 0, 0, err
	}
	monthly, err = s.read(ctx, userID, models.UsageKindExtremeSearch, now)
	if err != nil {
		return 0, 0, err
	}
	return daily, monthly, nil
}

// Record counts one use of kind and returns the new count.
func (s *Service) Record(ctx context.Context, userID uint, kind string) (int64, error) {
	key, period, err := counterFor(userID, kind, s.now().UTC())
	if err != nil {
		return 0, err
	}
	used, err := s.repo.Increment(ctx, userID, kind, period, 1)
	if err != nil {
		return 0, fmt.Errorf("record %s usage: %w", kind, err)
	}
	s.caches.UsageCounters.Set(key, cache.UsageCounter{Period: period, Used: used})
	s.metrics.RecordUsage(kind)
	return used, nil
}

// Allow reports whether the user may use kind once more.
func (s *Service) Allow(ctx context.Context, userID uint, kind string) (bool, error) {
	limit, err := s.limitFor(kind, s.entitlements.IsEntitled(ctx, userID))
	if err != nil {
		return false, err
	}
	if limit == Unlimited {
		return true, nil
	}
	used, err := s.read(ctx, userID, kind, s.now().UTC())
	if err != nil {
		return false, err
	}
	return used < limit, nil
}

// Summary returns counts, limits and remaining quota.
func (s *Service) Summary(ctx context.Context, userID uint) (*Summary, error) {
	now := s.now().UTC()
	pro := s.entitlements.IsEntitled(ctx, userID)

	daily, monthly, err := s.Counts(ctx, userID)
	if err != nil {
		return nil, err
	}
	dailyLimit, _ := s.limitFor(models.UsageKindMessage, pro)
	monthlyLimit, _ := s.limitFor(models.UsageKindExtremeSearch, pro)

	return &Summary{
		IsPro:          pro,
		DailyMessages:  newQuota(daily, dailyLimit, now.Format(dayLayout)),
		MonthlyExtreme: newQuota(monthly, monthlyLimit, now.Format(monthLayout)),
	}, nil
}

func (s *Service) read(ctx context.Context, userID uint, kind string, now time.Time) (int64, error) {
	key, period, err := counterFor(userID, kind, now)
	if err != nil {
		return 0, err
	}
	// A counter of an earlier period is as good as absent.
	if c, ok := s.caches.UsageCounters.Get(key); ok && c.Period == period {
		s.metrics.RecordCacheLookup("usage_counters", true)
		return c.Used, nil
	}
	s.metrics.RecordCacheLookup("usage_counters", false)

	used, err := s.repo.Get(ctx, userID, kind, period)
	if err != nil {
		return 0, fmt.Errorf("load %s usage: %w", kind, err)
	}
	s.caches.UsageCounters.Set(key, cache.UsageCounter{Period: period, Used: used})
	return used, nil
}

func (s *Service) limitFor(kind string, pro bool) (int64, error) {
	switch kind {
	case models.UsageKindMessage:
		if pro {
			return Unlimited, nil
		}
		return s.limits.FreeDailyMessages, nil
	case models.UsageKindExtremeSearch:
		if pro {
			return s.limits.ProMonthlyExtreme, nil
		}
		return s.limits.FreeMonthlyExtreme, nil
	}
	return 0, fmt.Errorf("unknown usage kind %q", kind)
}

func counterFor(userID uint, kind string, now time.Time) (key, period string, err error) {
	switch kind {
	case models.UsageKindMessage:
		return cache.DailyUsageKey(userID), now.Format(dayLayout), nil
	case models.UsageKindExtremeSearch:
		return cache.MonthlyUsageKey(userID), now.Format(monthLayout), nil
	}
	return "", "", fmt.Errorf("unknown usage kind %q", kind)
}

func newQuota(used, limit int64, period string) Quota {
	q := Quota{Used: used, Limit: limit, Remaining: Unlimited, Period: period}
	if limit != Unlimited {
		q.Remaining = limit - used
		if q.Remaining < 0 {
			q.Remaining = 0
		}
	}
	return q
}
