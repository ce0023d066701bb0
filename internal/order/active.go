package order

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a working order.
type Status string

const (
	StatusPendingSubmit Status = "PendingSubmit"
	StatusPendingCancel Status = "PendingCancel"
	StatusPreSubmitted  Status = "PreSubmitted"
	StatusSubmitted     Status = "Submitted"
	StatusCancelled     Status = "Cancelled"
	StatusFilled        Status = "Filled"
	StatusInactive      Status = "Inactive"
)

// Terminal reports whether the order has left the working set.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled
}

// ActiveOrder is the broker-side view of a working order. Updates arrive
// incrementally; Apply merges the populated fields of an update into the
// tracked state.
type ActiveOrder struct {
	ID           string
	BrokerID     int64
	ParentID     string
	InstrumentID int
	Status       Status
	Action       Action
	Type         Type

	TotalQuantity     decimal.Decimal
	FilledQuantity    decimal.Decimal
	RemainingQuantity decimal.Decimal
	AvgFillPrice      decimal.Decimal
	LastFillPrice     decimal.Decimal
	LimitPrice        decimal.Decimal
	AuxPrice          decimal.Decimal

	UpdatedAt time.Time
}

// Apply merges upd into a, overwriting only fields upd populates.
func (a *ActiveOrder) Apply(upd ActiveOrder) {
	if upd.BrokerID != 0 {
		a.BrokerID = upd.BrokerID
	}
	if upd.ParentID != "" {
		a.ParentID = upd.ParentID
	}
	if upd.InstrumentID != 0 {
		a.InstrumentID = upd.InstrumentID
	}
	if upd.Status != "" {
		a.Status = upd.Status
	}
	if upd.Action != "" {
		a.Action = upd.Action
	}
	if upd.Type != "" {
		a.Type = upd.Type
	}
	if !upd.TotalQuantity.IsZero() {
		a.TotalQuantity = upd.TotalQuantity
	}
	if !upd.FilledQuantity.IsZero() {
		a.FilledQuantity = upd.FilledQuantity
	}
	if !upd.RemainingQuantity.IsZero() {
		a.RemainingQuantity = upd.RemainingQuantity
	}
	if !upd.AvgFillPrice.IsZero() {
		a.AvgFillPrice = upd.AvgFillPrice
	}
	if !upd.LastFillPrice.IsZero() {
		a.LastFillPrice = upd.LastFillPrice
	}
	if !upd.LimitPrice.IsZero() {
		a.LimitPrice = upd.LimitPrice
	}
	if !upd.AuxPrice.IsZero() {
		a.AuxPrice = upd.AuxPrice
	}
	if !upd.UpdatedAt.IsZero() {
		a.UpdatedAt = upd.UpdatedAt
	}
}
