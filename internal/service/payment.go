package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/SpeakCoachBot/internal/models"
)

var (
	// ErrIntentNotFound means there is no pending intent for the invoice:
	// either it never existed or a previous confirm already consumed it.
	ErrIntentNotFound = errors.New("payment intent not found")
	// ErrUnknownTariff rejects purchase attempts for tariffs we do not sell.
	ErrUnknownTariff = errors.New("unknown tariff")
)

// IntentStore persists pending payment intents keyed by invoice id.
type IntentStore interface {
	Create(ctx context.Context, intent *models.PaymentIntent) error
	Find(ctx context.Context, invoiceID int64) (*models.PaymentIntent, error)
	Delete(ctx context.Context, invoiceID int64) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Gateway is the payment gateway surface the reconciliation loop needs.
type Gateway interface {
	PaymentLink(amount int, invoiceID int64, description string) string
	CheckPayment(ctx context.Context, invoiceID int64) (bool, error)
}

// Ledger is the slice of the entitlement service a confirmed payment credits.
type Ledger interface {
	CreditSubscription(ctx context.Context, userID int64, days int) error
	CreditSingleTasks(ctx context.Context, userID int64, count int) error
}

// PriceList resolves a tariff to its current amount.
type PriceList interface {
	Price(tariff models.Tariff) (int, bool)
}

// PaymentService owns the payment-intent lifecycle: create an intent, hand the
// user a signed link, reconcile against the gateway, convert settlement into
// entitlement, and sweep abandoned intents.
type PaymentService struct {
	intents IntentStore
	gateway Gateway
	ledger  Ledger
	prices  PriceList
	maxAge  time.Duration
	log     *slog.Logger
	now     func() time.Time
}

func NewPaymentService(intents IntentStore, gateway Gateway, ledger Ledger, prices PriceList, maxAge time.Duration, log *slog.Logger) *PaymentService {
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	return &PaymentService{
		intents: intents,
		gateway: gateway,
		ledger:  ledger,
		prices:  prices,
		maxAge:  maxAge,
		log:     log,
		now:     time.Now,
	}
}

// Invoice is what the purchase flow shows the user.
type Invoice struct {
	InvoiceID int64
	Tariff    models.Tariff
	Amount    int
	Link      string
}

// CreateIntent persists a pending intent for the tariff and returns the
// payment link. Invoice ids are random positive 31-bit integers (the gateway
// caps InvId at int32); a collision surfaces as a duplicate-key insert and is
// retried with a fresh id.
func (s *PaymentService) CreateIntent(ctx context.Context, userID int64, tariff models.Tariff) (*Invoice, error) {
	if !tariff.Valid() {
		return nil, ErrUnknownTariff
	}
	amount, ok := s.prices.Price(tariff)
	if !ok {
		return nil, ErrUnknownTariff
	}

	var lastErr error
	for attempt := 0; attempt < 5; attempt++ {
		invoiceID, err := randomInvoiceID()
		if err != nil {
			return nil, fmt.Errorf("generate invoice id: %w", err)
		}
		intent := &models.PaymentIntent{
			InvoiceID: invoiceID,
			UserID:    userID,
			Tariff:    tariff,
			Amount:    amount,
			CreatedAt: s.now(),
		}
		if err := s.intents.Create(ctx, intent); err != nil {
			lastErr = err
			continue
		}
		return &Invoice{
			InvoiceID: invoiceID,
			Tariff:    tariff,
			Amount:    amount,
			Link:      s.gateway.PaymentLink(amount, invoiceID, "Подписка на AI-репетитора"),
		}, nil
	}
	return nil, fmt.Errorf("create intent: %w", lastErr)
}

// ConfirmResult describes a settled payment.
type ConfirmResult struct {
	UserID int64
	Tariff models.Tariff
	Days   int // 0 for single-task tariffs
}

// Confirm reconciles one invoice against the gateway.
//
// A missing intent returns ErrIntentNotFound: the user is asked to restart the
// purchase, never assumed paid or failed. A settled invoice is deleted before
// crediting; the delete's rows-affected result guarantees a second concurrent
// confirm finds nothing and cannot double-credit. A (nil, nil) return means
// "not settled yet": the intent stays in place for a later retry.
func (s *PaymentService) Confirm(ctx context.Context, invoiceID int64) (*ConfirmResult, error) {
	intent, err := s.intents.Find(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("find intent: %w", err)
	}
	if intent == nil {
		return nil, ErrIntentNotFound
	}

	settled, err := s.gateway.CheckPayment(ctx, invoiceID)
	if err != nil {
		// Gateway trouble is indistinguishable from "not yet paid".
		s.log.Warn("payment check failed, treating as unconfirmed", "invoice_id", invoiceID, "err", err)
		return nil, nil
	}
	if !settled {
		return nil, nil
	}

	deleted, err := s.intents.Delete(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("consume intent: %w", err)
	}
	if !deleted {
		return nil, ErrIntentNotFound
	}

	result := &ConfirmResult{UserID: intent.UserID, Tariff: intent.Tariff, Days: intent.Tariff.SubscriptionDays()}
	if result.Days > 0 {
		if err := s.ledger.CreditSubscription(ctx, intent.UserID, result.Days); err != nil {
			return nil, fmt.Errorf("credit subscription: %w", err)
		}
	} else {
		if err := s.ledger.CreditSingleTasks(ctx, intent.UserID, 1); err != nil {
			return nil, fmt.Errorf("credit single task: %w", err)
		}
	}

	s.log.Info("payment confirmed", "invoice_id", invoiceID, "user_id", intent.UserID, "tariff", intent.Tariff, "amount", intent.Amount)
	return result, nil
}

// SweepExpired deletes intents older than the staleness window.
func (s *PaymentService) SweepExpired(ctx context.Context) (int64, error) {
	removed, err := s.intents.DeleteOlderThan(ctx, s.now().Add(-s.maxAge))
	if err != nil {
		return 0, fmt.Errorf("sweep expired intents: %w", err)
	}
	if removed > 0 {
		s.log.Info("swept expired payment intents", "count", removed)
	}
	return removed, nil
}

// RunSweeper sweeps on the given interval until the context is cancelled.
func (s *PaymentService) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.SweepExpired(ctx); err != nil {
				s.log.Error("intent sweep failed", "err", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

func randomInvoiceID() (int64, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	id := int64(binary.BigEndian.Uint32(buf[:]) & 0x7fffffff)
	if id == 0 {
		id = 1
	}
	return id, nil
}
