package transfer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

func TestResults(t *testing.T) {
	ok := transfer.Succeeded("0xabc")
	assert.True(t, ok.IsSuccess())
	assert.Equal(t, "0xabc", ok.Reference)
	assert.Empty(t, ok.Reason())

	failed := transfer.Failed(errors.New("receiver unknown"))
	assert.False(t, failed.IsSuccess())
	assert.Equal(t, "receiver unknown", failed.Reason())
	assert.Equal(t, "transfer failed", transfer.Result{Status: transfer.StatusFailed}.Reason())

	assert.Equal(t, transfer.StatusNotReady, transfer.NotReady().Status)
	assert.Equal(t, "not_ready", transfer.StatusNotReady.String())
	assert.Equal(t, "status(9)", transfer.Status(9).String())
}

func TestFunc(t *testing.T) {
	var got transfer.Request
	f := transfer.Func(func(_ context.Context, req transfer.Request) transfer.Result {
		got = req
		return transfer.Succeeded("")
	})

	res := f.Transfer(context.Background(), transfer.Request{Receiver: "bob", Amount: types.NewAmount(3)})
	assert.True(t, res.IsSuccess())
	assert.Equal(t, "bob", got.Receiver.String())

	var zero transfer.Func
	res = zero.Transfer(context.Background(), transfer.Request{})
	assert.ErrorIs(t, res.Err, transfer.ErrNoTransferer)
}
