// Package transfer is the boundary to the external token platform that
// actually moves funds out of custody.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/custody/account"
	"github.com/xraph/custody/id"
	"github.com/xraph/custody/types"
)

// Status is the outcome of an outbound transfer.
type Status int

const (
	// StatusNotReady means the outcome is not known yet and will be reported
	// later through the ledger's Reconcile entry point.
	StatusNotReady Status = iota
	StatusSuccessful
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNotReady:
		return "not_ready"
	case StatusSuccessful:
		return "successful"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ErrNoTransferer is reported by a zero Func.
var ErrNoTransferer = errors.New("transfer: no transfer function configured")

// Request asks the platform to move Amount of TokenID to Receiver.
// TransferID is stable for a settlement and may be used as an idempotency key.
type Request struct {
	SettlementID id.SettlementID   `json:"settlement_id"`
	TransferID   id.TransferID     `json:"transfer_id"`
	TokenID      string            `json:"token_id"`
	Receiver     account.Principal `json:"receiver"`
	Amount       types.Amount      `json:"amount"`
}

// Result is the outcome of one transfer.
type Result struct {
	Status Status
	// Reference is an optional platform receipt, such as a transaction hash.
	Reference string
	// Err describes a failure. It is informational only.
	Err error
}

// Succeeded returns a successful result.
func Succeeded(reference string) Result {
	return Result{Status: StatusSuccessful, Reference: reference}
}

// Failed returns a failed result.
func Failed(err error) Result {
	return Result{Status: StatusFailed, Err: err}
}

// NotReady returns a result whose outcome will arrive later.
func NotReady() Result {
	return Result{Status: StatusNotReady}
}

// IsSuccess reports whether the transfer went through.
func (r Result) IsSuccess() bool { return r.Status == StatusSuccessful }

// Reason returns a short description of a failure.
func (r Result) Reason() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.Status == StatusFailed {
		return "transfer failed"
	}
	return ""
}

// Transferer hands a request to the token platform. Transfer must not
// block for the full settlement time; slow platforms return NotReady and
// report the outcome later.
type Transferer interface {
	Transfer(ctx context.Context, req Request) Result
}

// Func adapts a callback to the Transferer interface.
type Func func(ctx context.Context, req Request) Result

// Transfer delegates to the callback.
func (f Func) Transfer(ctx context.Context, req Request) Result {
	if f == nil {
		return Failed(ErrNoTransferer)
	}
	return f(ctx, req)
}
