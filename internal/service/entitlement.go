package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/SpeakCoachBot/internal/models"
)

// UserStore is the persistence surface the entitlement ledger needs.
type UserStore interface {
	FindByID(ctx context.Context, userID int64) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Upsert(ctx context.Context, userID int64, username string) error
	SetSubscriptionEnd(ctx context.Context, userID int64, end time.Time) error
	ConsumeTrialTask(ctx context.Context, userID int64, allowance int) (bool, error)
	ConsumeSingleTask(ctx context.Context, userID int64) (bool, error)
	AddSingleTasks(ctx context.Context, userID int64, count int) error
	ListActiveSubscribers(ctx context.Context) ([]models.Subscriber, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

type AdminChecker interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
}

// EntitlementService is the source of truth for "may this user get a task
// right now": subscription, trial allowance and purchased singles.
type EntitlementService struct {
	users          UserStore
	admins         AdminChecker
	trialAllowance int
	log            *slog.Logger
	now            func() time.Time
}

func NewEntitlementService(users UserStore, admins AdminChecker, trialAllowance int, log *slog.Logger) *EntitlementService {
	if trialAllowance < 0 {
		trialAllowance = 0
	}
	return &EntitlementService{
		users:          users,
		admins:         admins,
		trialAllowance: trialAllowance,
		log:            log,
		now:            time.Now,
	}
}

// RegisterUser upserts the ledger row on first contact.
func (s *EntitlementService) RegisterUser(ctx context.Context, userID int64, username string) error {
	if err := s.users.Upsert(ctx, userID, username); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	return nil
}

// HasActiveSubscription reports whether the user holds a perpetual (admin) or
// time-limited subscription. The returned expiry is nil for admins.
func (s *EntitlementService) HasActiveSubscription(ctx context.Context, userID int64) (bool, *time.Time, error) {
	isAdmin, err := s.admins.IsAdmin(ctx, userID)
	if err != nil {
		return false, nil, fmt.Errorf("check admin: %w", err)
	}
	if isAdmin {
		return true, nil, nil
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return false, nil, fmt.Errorf("find user: %w", err)
	}
	if user == nil || user.SubscriptionEnd == nil {
		return false, nil, nil
	}
	if s.now().Before(*user.SubscriptionEnd) {
		return true, user.SubscriptionEnd, nil
	}
	return false, nil, nil
}

// AvailableTasks returns the user's current entitlement, auto-creating the
// ledger row when the user is unknown.
func (s *EntitlementService) AvailableTasks(ctx context.Context, userID int64) (models.Availability, error) {
	subscribed, _, err := s.HasActiveSubscription(ctx, userID)
	if err != nil {
		return models.Availability{}, err
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return models.Availability{}, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		if err := s.users.Upsert(ctx, userID, ""); err != nil {
			return models.Availability{}, fmt.Errorf("create user: %w", err)
		}
		return models.Availability{Subscribed: subscribed, TrialsLeft: s.trialAllowance}, nil
	}

	trialsLeft := s.trialAllowance - user.TrialTasksUsed
	if trialsLeft < 0 {
		trialsLeft = 0
	}
	return models.Availability{
		Subscribed: subscribed,
		TrialsLeft: trialsLeft,
		SingleLeft: user.SingleTasksPurchased,
	}, nil
}

// DebitTask consumes one task credit: subscribers are not charged, then trial
// credits burn before purchased singles. A user with nothing left is a no-op;
// the eligibility gate is AvailableTasks, not this call.
func (s *EntitlementService) DebitTask(ctx context.Context, userID int64) error {
	subscribed, _, err := s.HasActiveSubscription(ctx, userID)
	if err != nil {
		return err
	}
	if subscribed {
		return nil
	}

	consumed, err := s.users.ConsumeTrialTask(ctx, userID, s.trialAllowance)
	if err != nil {
		return fmt.Errorf("debit trial: %w", err)
	}
	if consumed {
		return nil
	}

	consumed, err = s.users.ConsumeSingleTask(ctx, userID)
	if err != nil {
		return fmt.Errorf("debit single: %w", err)
	}
	if !consumed {
		s.log.Warn("debit requested with no credits left", "user_id", userID)
	}
	return nil
}

// CreditSubscription sets the expiry to now+days. Repurchase resets from now
// rather than extending an unexpired one.
func (s *EntitlementService) CreditSubscription(ctx context.Context, userID int64, days int) error {
	end := s.now().Add(time.Duration(days) * 24 * time.Hour)
	if err := s.users.SetSubscriptionEnd(ctx, userID, end); err != nil {
		return fmt.Errorf("credit subscription: %w", err)
	}
	return nil
}

func (s *EntitlementService) CreditSingleTasks(ctx context.Context, userID int64, count int) error {
	if err := s.users.AddSingleTasks(ctx, userID, count); err != nil {
		return fmt.Errorf("credit single tasks: %w", err)
	}
	return nil
}

func (s *EntitlementService) ListActiveSubscribers(ctx context.Context) ([]models.Subscriber, error) {
	subs, err := s.users.ListActiveSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	return subs, nil
}

func (s *EntitlementService) ListUserIDs(ctx context.Context) ([]int64, error) {
	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

// FindUserByUsername resolves @username input in the admin panel.
func (s *EntitlementService) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("find by username: %w", err)
	}
	return user, nil
}
