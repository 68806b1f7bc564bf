package models

import "time"

// Tariff identifies a purchasable product.
type Tariff string

const (
	TariffWeek   Tariff = "week"
	TariffMonth  Tariff = "month"
	TariffSingle Tariff = "single"
)

// SubscriptionDays returns how many subscription days a tariff buys,
// or 0 for tariffs that grant single tasks instead.
func (t Tariff) SubscriptionDays() int {
	switch t {
	case TariffWeek:
		return 7
	case TariffMonth:
		return 30
	default:
		return 0
	}
}

// Valid reports whether the tariff is one of the known products.
func (t Tariff) Valid() bool {
	switch t {
	case TariffWeek, TariffMonth, TariffSingle:
		return true
	}
	return false
}

type User struct {
	ID                   int64
	Username             string
	SubscriptionEnd      *time.Time
	TrialTasksUsed       int
	SingleTasksPurchased int
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PaymentIntent is an unsettled purchase attempt awaiting gateway confirmation.
type PaymentIntent struct {
	InvoiceID int64
	UserID    int64
	Tariff    Tariff
	Amount    int
	CreatedAt time.Time
}

// Task is one speaking exercise fetched from the content provider.
type Task struct {
	ID        string
	Text      string
	TimeLimit int // seconds, 0 means unlimited
	Image1    string
	Image2    string
}

// Availability is the ledger's answer to "may this user get a task right now".
type Availability struct {
	Subscribed bool
	TrialsLeft int
	SingleLeft int
}

// Eligible reports whether any of the three entitlement sources permits a task.
func (a Availability) Eligible() bool {
	return a.Subscribed || a.TrialsLeft > 0 || a.SingleLeft > 0
}

type Subscriber struct {
	UserID          int64
	Username        string
	SubscriptionEnd time.Time
}
