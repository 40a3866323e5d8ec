package harvest

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a harvest. Transitions only move forward.
type Status string

const (
	StatusRegistered Status = "REGISTRADA"
	StatusInvoiced   Status = "FACTURADA"
)

var (
	ErrUnknownStatus     = errors.New("unknown status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

var statusRank = map[Status]int{
	StatusRegistered: 0,
	StatusInvoiced:   1,
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusRank[st]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownStatus, s)
	}
	return st, nil
}

// InvoiceRef identifies the invoice attached to a harvest once it is billed.
type InvoiceRef struct {
	ID   int64  `json:"factura_id"`
	UUID string `json:"factura_uuid"`
}

// Lifecycle is the mutable part of a harvest guarded by the state machine.
type Lifecycle struct {
	Status  Status
	Invoice *InvoiceRef
}

// Apply moves the lifecycle to next. It reports whether anything changed.
//
//	REGISTRADA -> REGISTRADA   no-op
//	REGISTRADA -> FACTURADA    applied, invoice attached when given
//	FACTURADA  -> FACTURADA    no-op for the same (or no) invoice, rejected for a different one
//	FACTURADA  -> REGISTRADA   rejected
func (l *Lifecycle) Apply(next Status, invoice *InvoiceRef) (bool, error) {
	curRank, ok := statusRank[l.Status]
	if !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownStatus, l.Status)
	}
	nextRank, ok := statusRank[next]
	if !ok {
		return false, fmt.Errorf("%w %q", ErrUnknownStatus, next)
	}

	switch {
	case nextRank < curRank:
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.Status, next)
	case nextRank == curRank:
		if invoice == nil || sameInvoice(l.Invoice, invoice) {
			return false, nil
		}
		if l.Invoice == nil && next == StatusRegistered {
			return false, fmt.Errorf("%w: invoice cannot be attached in %s", ErrInvalidTransition, next)
		}
		if l.Invoice != nil {
			return false, fmt.Errorf("%w: already invoiced by #%d", ErrInvalidTransition, l.Invoice.ID)
		}
	}

	l.Status = next
	if invoice != nil {
		inv := *invoice
		l.Invoice = &inv
	}
	return true, nil
}

func sameInvoice(a, b *InvoiceRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.ID == b.ID && a.UUID == b.UUID
}
