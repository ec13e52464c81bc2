package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/ManuelReschke/ChatFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ChatFox/internal/pkg/usage"
	"github.com/ManuelReschke/ChatFox/internal/pkg/usercontext"
)

// EntitlementResolver answers entitlement questions. *entitlements.Resolver
// implements it.
type EntitlementResolver interface {
	IsEntitled(ctx context.Context, userID uint) bool
	Classify(ctx context.Context, userID uint) entitlements.Decision
}

// UsageTracker reads and records usage. *usage.Service implements it.
type UsageTracker interface {
	Summary(ctx context.Context, userID uint) (*usage.Summary, error)
	Allow(ctx context.Context, userID uint, kind string) (bool, error)
	Record(ctx context.Context, userID uint, kind string) (int64, error)
}

// SubscriptionLister lists a user's subscriptions. *billing.Store implements it.
type SubscriptionLister interface {
	ListByOwner(ctx context.Context, userID uint) ([]models.Subscription, error)
}

// UserController serves the per-user API.
type UserController struct {
	resolver      EntitlementResolver
	usage         UsageTracker
	subscriptions SubscriptionLister
}

// NewUserController creates the user API controller.
func NewUserController(resolver EntitlementResolver, usage UsageTracker, subscriptions SubscriptionLister) *UserController {
	return &UserController{resolver: resolver, usage: usage, subscriptions: subscriptions}
}

// HandleGetUserAccount returns the account of the session user.
func (uc *UserController) HandleGetUserAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	return c.JSON(fiber.Map{
		"id":       userCtx.UserID,
		"username": userCtx.Username,
		"email":    userCtx.Email,
		"plan":     userCtx.Plan,
		"is_pro":   userCtx.IsPro,
	})
}

// HandleGetEntitlement reports pro status, subscription status and trial.
func (uc *UserController) HandleGetEntitlement(c *fiber.Ctx) error {
	userID := usercontext.GetUserID(c)
	ctx := c.UserContext()

	isPro := uc.resolver.IsEntitled(ctx, userID)
	decision := uc.resolver.Classify(ctx, userID)
	plan := entitlements.PlanFree
	if isPro {
		plan = entitlements.PlanPro
	}

	return c.JSON(fiber.Map{
		"user_id": userID,
		"is_pro":  isPro,
		"plan":    plan,
		"status":  decision.Status,
		"trial":   decision.Trial,
	})
}

// HandleGetUsage returns the usage counters and remaining quota.
func (uc *UserController) HandleGetUsage(c *fiber.Ctx) error {
	summary, err := uc.usage.Summary(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		log.Errorf("[UserAPI] Failed to load usage: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load usage"})
	}
	return c.JSON(summary)
}

// HandleRecordUsage counts one use of the kind in the path when the quota
// allows it.
func (uc *UserController) HandleRecordUsage(c *fiber.Ctx) error {
	kind := c.Params("kind")
	switch kind {
	case models.UsageKindMessage, models.UsageKindExtremeSearch:
	default:
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found", "message": "Unknown usage kind"})
	}

	userID := usercontext.GetUserID(c)
	ctx := c.UserContext()
	allowed, err := uc.usage.Allow(ctx, userID, kind)
	if err != nil {
		log.Errorf("[UserAPI] Failed to check %s quota: %v", kind, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to check quota"})
	}
	if !allowed {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "quota_exceeded", "kind": kind})
	}

	used, err := uc.usage.Record(ctx, userID, kind)
	if err != nil {
		log.Errorf("[UserAPI] Failed to record %s usage: %v", kind, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to record usage"})
	}
	return c.JSON(fiber.Map{"kind": kind, "used": used})
}

// HandleListSubscriptions lists the subscription records of a pro user.
func (uc *UserController) HandleListSubscriptions(c *fiber.Ctx) error {
	subs, err := uc.subscriptions.ListByOwner(c.UserContext(), usercontext.GetUserID(c))
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("[UserAPI] Failed to list subscriptions: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load subscriptions"})
	}

	out := make([]fiber.Map, 0, len(subs))
	for _, s := range subs {
		out = append(out, fiber.Map{
			"id":                   s.ID,
			"status":               s.Status,
			"amount":               s.Amount,
			"currency":             s.Currency,
			"recurring_interval":   s.RecurringInterval,
			"current_period_end":   formatTimePtr(s.CurrentPeriodEnd),
			"cancel_at_period_end": s.CancelAtPeriodEnd,
			"trial_end":            formatTimePtr(s.TrialEnd),
			"product_id":           s.ProductID,
		})
	}
	return c.JSON(fiber.Map{"subscriptions": out})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
