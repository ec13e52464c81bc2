package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/ManuelReschke/ChatFox/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultStoreTimeout bounds every durable-store call of the Store.
const DefaultStoreTimeout = 5 * time.Second

// Accounts looks up local accounts. Lookups of unknown accounts must return
// gorm.ErrRecordNotFound.
type Accounts interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}

// Invalidator drops every cached fact derived from a user's subscriptions.
// *cache.Registry implements it.
type Invalidator interface {
	InvalidateUser(ctx context.Context, userID uint)
}

// Store is the authoritative subscription store. Every successful write
// invalidates the caches of the affected owners.
type Store struct {
	repo        Repository
	accounts    Accounts
	invalidator Invalidator
	timeout     time.Duration
}

// NewStore creates a subscription store. invalidator may be nil in tools
// that run without caches.
func NewStore(repo Repository, accounts Accounts, invalidator Invalidator, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return &Store{repo: repo, accounts: accounts, invalidator: invalidator, timeout: timeout}
}

// ownerRule names the rule that resolved a subscription's owner.
type ownerRule string

const (
	ownerByExternalID ownerRule = "external_id"
	ownerByExisting   ownerRule = "existing"
	ownerByEmail      ownerRule = "email"
	ownerUnresolved   ownerRule = "unresolved"
)

// Upsert creates or updates the subscription named by ev.ID.
//
// The owner is resolved in order: the customer's external id naming an
// existing user, the owner already stored for this subscription, a user
// with the customer's email. An unresolved owner is not an error; the record
// is stored and any existing owner is kept.
func (s *Store) Upsert(ctx context.Context, ev *SubscriptionEvent) (*models.Subscription, error) {
	if ev == nil || strings.TrimSpace(ev.ID) == "" {
		return nil, ErrInvalidPayload
	}

	existing, err := s.find(ctx, ev.ID)
	if err != nil {
		return nil, err
	}

	owner, rule, err := s.resolveOwner(ctx, ev, existing)
	if err != nil {
		return nil, err
	}
	if rule == ownerUnresolved {
		log.Warnf("[Billing] Subscription %s: %v (external_id=%q email=%q)",
			ev.ID, ErrIdentityUnresolved, ev.Customer.ExternalID, ev.Customer.Email)
	}

	sub := subscriptionFromEvent(ev, owner)
	if err := s.withTimeout(ctx, func(ctx context.Context) error {
		return s.repo.UpsertSubscription(ctx, sub, owner != nil)
	}); err != nil {
		return nil, storeErr("upsert subscription", err)
	}

	s.invalidateOwners(ctx, existing, sub)
	log.Infof("[Billing] Upserted subscription %s status=%s owner=%s rule=%s",
		sub.ID, sub.Status, formatOwner(sub.UserID), rule)
	return sub, nil
}

// Get returns one subscription by provider id.
func (s *Store) Get(ctx context.Context, id string) (*models.Subscription, error) {
	var sub *models.Subscription
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.repo.FindSubscription(ctx, id)
		return err
	})
	if err != nil {
		return nil, storeErr("get subscription", err)
	}
	return sub, nil
}

// ListByOwner returns every subscription owned by userID.
func (s *Store) ListByOwner(ctx context.Context, userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		subs, err = s.repo.ListSubscriptionsByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, storeErr("list subscriptions", err)
	}
	return subs, nil
}

// RecordWebhookEvent persists webhook payloads idempotently.
func (s *Store) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.BillingWebhookEvent, error) {
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.BillingWebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		SubscriptionID:  strings.TrimSpace(in.SubscriptionID),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}

	var (
		created bool
		stored  *models.BillingWebhookEvent
	)
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		created, stored, err = s.repo.CreateWebhookEventIfNotExists(ctx, event)
		return err
	})
	if err != nil {
		return false, nil, storeErr("record webhook event", err)
	}
	return created, stored, nil
}

// MarkWebhookProcessed marks an event as processed with its outcome. A
// non-nil processingErr keeps the event pending for replay.
func (s *Store) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, outcome string, processingErr error) error {
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return storeErr("mark webhook processed", s.withTimeout(ctx, func(ctx context.Context) error {
		return s.repo.MarkWebhookProcessed(ctx, webhookEventID, outcome, errMsg)
	}))
}

// PendingWebhookEvents lists deliveries that were never processed or failed.
func (s *Store) PendingWebhookEvents(ctx context.Context, provider string, limit int) ([]models.BillingWebhookEvent, error) {
	var events []models.BillingWebhookEvent
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		events, err = s.repo.ListPendingWebhookEvents(ctx, strings.ToLower(strings.TrimSpace(provider)), limit)
		return err
	})
	if err != nil {
		return nil, storeErr("list pending webhook events", err)
	}
	return events, nil
}

// HasLaterAppliedWebhook reports whether a delivery received after
// webhookEventID was already applied to subscriptionID.
func (s *Store) HasLaterAppliedWebhook(ctx context.Context, provider, subscriptionID string, webhookEventID uint) (bool, error) {
	var later bool
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		later, err = s.repo.HasLaterAppliedWebhook(ctx, strings.ToLower(strings.TrimSpace(provider)), subscriptionID, webhookEventID)
		return err
	})
	if err != nil {
		return false, storeErr("find later webhook", err)
	}
	return later, nil
}

func (s *Store) find(ctx context.Context, id string) (*models.Subscription, error) {
	var sub *models.Subscription
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		sub, err = s.repo.FindSubscription(ctx, id)
		return err
	})
	if isNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("find subscription", err)
	}
	return sub, nil
}

func (s *Store) resolveOwner(ctx context.Context, ev *SubscriptionEvent, existing *models.Subscription) (*uint, ownerRule, error) {
	if id, ok := parseUserID(ev.Customer.ExternalID); ok {
		user, err := s.lookupAccount(ctx, func(ctx context.Context) (*models.User, error) {
			return s.accounts.GetByID(ctx, id)
		})
		if err != nil {
			return nil, "", storeErr("find user by id", err)
		}
		if user != nil {
			return &user.ID, ownerByExternalID, nil
		}
	}

	if existing != nil && existing.HasOwner() {
		owner := *existing.UserID
		return &owner, ownerByExisting, nil
	}

	if email := strings.TrimSpace(ev.Customer.Email); email != "" {
		user, err := s.lookupAccount(ctx, func(ctx context.Context) (*models.User, error) {
			return s.accounts.GetByEmail(ctx, email)
		})
		if err != nil {
			return nil, "", storeErr("find user by email", err)
		}
		if user != nil {
			return &user.ID, ownerByEmail, nil
		}
	}

	return nil, ownerUnresolved, nil
}

// lookupAccount treats a missing account as a nil user.
func (s *Store) lookupAccount(ctx context.Context, fn func(context.Context) (*models.User, error)) (*models.User, error) {
	if s.accounts == nil {
		return nil, nil
	}
	var user *models.User
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		user, err = fn(ctx)
		return err
	})
	if isNotFound(err) {
		return nil, nil
	}
	return user, err
}

func (s *Store) invalidateOwners(ctx context.Context, before, after *models.Subscription) {
	if s.invalidator == nil {
		return
	}
	if before != nil && before.HasOwner() {
		s.invalidator.InvalidateUser(ctx, *before.UserID)
	}
	if after.HasOwner() && (before == nil || !before.HasOwner() || *before.UserID != *after.UserID) {
		s.invalidator.InvalidateUser(ctx, *after.UserID)
	}
}

func (s *Store) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return fn(ctx)
}

func subscriptionFromEvent(ev *SubscriptionEvent, owner *uint) *models.Subscription {
	sub := &models.Subscription{
		ID:                 strings.TrimSpace(ev.ID),
		UserID:             owner,
		Status:             ev.Status,
		Amount:             ev.Amount,
		Currency:           ev.Currency,
		RecurringInterval:  ev.RecurringInterval,
		CurrentPeriodStart: ev.CurrentPeriodStart,
		CurrentPeriodEnd:   ev.CurrentPeriodEnd,
		CancelAtPeriodEnd:  ev.CancelAtPeriodEnd,
		CanceledAt:         ev.CanceledAt,
		StartedAt:          ev.StartedAt,
		EndsAt:             ev.EndsAt,
		EndedAt:            ev.EndedAt,
		TrialStart:         ev.TrialStart,
		TrialEnd:           ev.TrialEnd,
		CustomerID:         ev.CustomerID,
		ProductID:          ev.ProductID,
		CheckoutID:         ev.CheckoutID,
	}
	if len(ev.Metadata) > 0 {
		sub.Metadata = datatypes.JSON(ev.Metadata)
	}
	return sub
}

func parseUserID(externalID string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(externalID), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func formatOwner(userID *uint) string {
	if userID == nil {
		return "none"
	}
	return strconv.FormatUint(uint64(*userID), 10)
}

// NewStoreFromDB wires a store from a GORM handle, the account lookups and
// the cache registry.
func NewStoreFromDB(db *gorm.DB, queries QueryCache, accounts Accounts, invalidator Invalidator, timeout time.Duration) *Store {
	return NewStore(NewRepository(db, queries), accounts, invalidator, timeout)
}
