package usage

import (
	"context"
	"errors"
)

// ErrQuotaExceeded is returned when an account has used its whole allowance.
// Callers should offer an upgrade rather than a retry.
var ErrQuotaExceeded = errors.New("usage limit reached")

var ErrEmptyAccount = errors.New("empty account")

const (
	PlanFree = "free"
	PlanPro  = "pro"

	DefaultFreeLimit = 3
	DefaultProLimit  = 1000
)

// Record is an account's usage counter. The JSON shape matches the
// /api/usage responses the web client already consumes.
type Record struct {
	Count      int    `json:"usageCount"`
	Limit      int    `json:"usageLimit"`
	Plan       string `json:"plan"`
	CanProceed bool   `json:"canUpload"`
}

func newRecord(count, limit int, plan string) Record {
	return Record{Count: count, Limit: limit, Plan: plan, CanProceed: count < limit}
}

// Gate checks and consumes upload allowance. Check and Consume are separate
// round trips with no atomicity between them; Consume must re-validate.
type Gate interface {
	Check(ctx context.Context, account string) (Record, error)
	Consume(ctx context.Context, account string) (Record, error)
}

// PlanSetter moves an account between plans. Only gates that own their
// counters implement it.
type PlanSetter interface {
	SetPlan(ctx context.Context, account, plan string) (Record, error)
}

// Unlimited allows every upload. Used when gating is disabled.
type Unlimited struct{}

func (Unlimited) Check(context.Context, string) (Record, error) {
	return Record{Plan: PlanPro, Limit: -1, CanProceed: true}, nil
}

func (u Unlimited) Consume(ctx context.Context, account string) (Record, error) {
	return u.Check(ctx, account)
}
