package quota

import (
	"context"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func newTestGate(t *testing.T, store Store) *Gate {
	t.Helper()
	gate, err := NewGate(store, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create gate: %v", err)
	}
	return gate
}

func TestMemoryStoreSeedsDefaultAllowance(t *testing.T) {
	store := NewMemoryStore(100)
	gate := newTestGate(t, store)

	approved, remaining, err := gate.CheckAndConsume(context.Background(), "tenant-a", 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !approved {
		t.Fatal("expected first request to be approved")
	}
	if remaining != 70 {
		t.Fatalf("expected 70 remaining, got %d", remaining)
	}
}

func TestGateDeniesExhaustedTenant(t *testing.T) {
	store := NewMemoryStore(5)
	gate := newTestGate(t, store)
	ctx := context.Background()

	// Scenario: 5 units, run a 3-node workflow, then try a 4-node one.
	approved, remaining, err := gate.CheckAndConsume(ctx, "tenant-a", 3)
	if err != nil || !approved || remaining != 2 {
		t.Fatalf("first request: approved=%v remaining=%d err=%v", approved, remaining, err)
	}

	approved, remaining, err = gate.CheckAndConsume(ctx, "tenant-a", 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if approved {
		t.Fatal("expected second request to be denied")
	}
	if remaining != 2 {
		t.Fatalf("expected denial to report remaining=2, got %d", remaining)
	}
}

func TestGateRejectsInvalidArguments(t *testing.T) {
	gate := newTestGate(t, NewMemoryStore(10))
	ctx := context.Background()

	if _, _, err := gate.CheckAndConsume(ctx, "tenant-a", 0); err == nil {
		t.Fatal("expected error for zero units")
	}
	if _, _, err := gate.CheckAndConsume(ctx, "", 1); err == nil {
		t.Fatal("expected error for empty tenant")
	}
}

func TestMemoryStoreConcurrentExhaustion(t *testing.T) {
	// With exactly N units remaining and two concurrent N-unit requests, at
	// most one may be approved.
	const attempts = 100
	for i := 0; i < attempts; i++ {
		store := NewMemoryStore(10)
		ctx := context.Background()

		var wg sync.WaitGroup
		results := make([]bool, 2)
		for j := 0; j < 2; j++ {
			wg.Add(1)
			go func(slot int) {
				defer wg.Done()
				approved, _, err := store.CheckAndConsume(ctx, "tenant-a", 10)
				if err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				results[slot] = approved
			}(j)
		}
		wg.Wait()

		if results[0] && results[1] {
			t.Fatal("both concurrent requests were approved")
		}
		if !results[0] && !results[1] {
			t.Fatal("neither concurrent request was approved")
		}
	}
}

func TestMemoryStoreSetBalanceAndBalance(t *testing.T) {
	store := NewMemoryStore(100)
	ctx := context.Background()

	if err := store.SetBalance(ctx, "tenant-a", 7); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	balance, err := store.Balance(ctx, "tenant-a")
	if err != nil || balance != 7 {
		t.Fatalf("expected balance 7, got %d (err %v)", balance, err)
	}

	// Unknown tenants report the default allowance without consuming.
	balance, err = store.Balance(ctx, "tenant-b")
	if err != nil || balance != 100 {
		t.Fatalf("expected default allowance 100, got %d (err %v)", balance, err)
	}
}

func TestMemoryStoreManyConcurrentSmallRequests(t *testing.T) {
	store := NewMemoryStore(50)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	approvedCount := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			approved, _, err := store.CheckAndConsume(ctx, "tenant-a", 1)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if approved {
				mu.Lock()
				approvedCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if approvedCount != 50 {
		t.Fatalf("expected exactly 50 approvals, got %d", approvedCount)
	}

	balance, _ := store.Balance(ctx, "tenant-a")
	if balance != 0 {
		t.Fatalf("expected balance 0, got %d", balance)
	}
}
