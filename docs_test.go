package custody_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/custody"
	"github.com/xraph/custody/settlement"
	"github.com/xraph/custody/store/memory"
	"github.com/xraph/custody/transfer"
	"github.com/xraph/custody/types"
)

// TestDocumentationExamples verifies that all examples in the documentation compile
func TestDocumentationExamples(t *testing.T) {
	// Test Quick Start example from README
	t.Run("QuickStartExample", func(t *testing.T) {
		// Create store (memory for demo, use PostgreSQL in production)
		store := memory.New()

		// The token platform. Real transferers call out to a wallet service.
		wallet := transfer.Func(func(_ context.Context, req transfer.Request) transfer.Result {
			log.Printf("sending %s to %s\n", req.Amount, req.Receiver)
			return transfer.Succeeded("receipt-1")
		})

		// Initialize Custody
		l, err := custody.New(store,
			custody.WithLogger(slog.Default()),
			custody.WithOwner("treasury.example"),
			custody.WithTransferer(wallet),
			custody.WithStoragePricer(custody.FixedStoragePrice(types.NewAmount(10))),
			custody.WithDispatchConfig(64, 2, 50*time.Millisecond),
		)
		if err != nil {
			t.Fatal(err)
		}

		// Start the engine
		ctx := context.Background()
		if err := l.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer l.Stop()

		// Register with the minimum rent deposit
		bounds := l.StorageBalanceBounds(ctx)
		alice := custody.WithCaller(ctx, "alice.example")
		if _, _, err := l.StorageDeposit(custody.WithAttachedDeposit(alice, bounds.Min), "", true); err != nil {
			t.Fatal(err)
		}

		// Grant tokens, then make them claimable
		if _, err := l.Deposit(ctx, "alice.example", types.NewAmount(100)); err != nil {
			t.Fatal(err)
		}
		claimed, err := l.Claim(alice)
		if err != nil {
			t.Fatal(err)
		}

		// Withdraw with the 1 base unit authorization deposit
		st, err := l.Withdraw(custody.WithAttachedDeposit(alice, types.NewAmount(1)), claimed)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("settlement %s is %s\n", st.ID, st.Status)

		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			got, err := l.GetSettlement(ctx, st.ID)
			if err != nil {
				t.Fatal(err)
			}
			if got.Status == settlement.StatusCommitted {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
		t.Fatal("settlement was not committed")
	})

	// Test Amount type examples
	t.Run("AmountExamples", func(t *testing.T) {
		// Constructors
		_ = types.NewAmount(100)
		_ = types.MustParseAmount("1000000000000000000000000") // 1 token at 24 decimals
		_ = types.MaxAmount()                                  // 2^128-1

		// Checked arithmetic
		a := types.NewAmount(100)
		b := types.NewAmount(200)
		if _, err := a.Sub(b); err == nil {
			t.Fatal("expected underflow")
		}
		sum, err := a.Add(b)
		if err != nil || sum.String() != "300" {
			t.Fatalf("sum = %s, %v", sum, err)
		}

		// Comparison
		if !a.Lt(b) {
			t.Fatal("expected a < b")
		}
	})
}
