package store_test

import (
	"context"
	"errors"
	"testing"

	"StarLedger/internal/store"
)

// ============================================================================
// Test: Key builder
// ============================================================================

func TestNewKey_Composite(t *testing.T) {
	key := store.NewKey(store.KindBalance, "alice", "IRON")
	if key != "balance/alice/IRON" {
		t.Errorf("got %q, want %q", key, "balance/alice/IRON")
	}
}

func TestNewKey_WrongArity_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for wrong identifier count")
		}
	}()
	store.NewKey(store.KindBalance, "alice")
}

func TestNewKey_UnknownKind_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for unknown kind")
		}
	}()
	store.NewKey(store.Kind("bogus"), "x")
}

// ============================================================================
// Test: Memory store transactions
// ============================================================================

func TestMemory_ReadYourWrites(t *testing.T) {
	m := store.NewMemory()
	key := store.NewKey(store.KindPrice, "IRON")

	err := m.Update(context.Background(), func(tx store.Tx) error {
		if err := tx.Set(key, []byte("100")); err != nil {
			return err
		}
		v, ok, err := tx.Get(key)
		if err != nil {
			return err
		}
		if !ok || string(v) != "100" {
			t.Errorf("read-your-writes failed: ok=%v v=%q", ok, v)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
}

func TestMemory_FailedUpdate_NoPartialState(t *testing.T) {
	m := store.NewMemory()
	key := store.NewKey(store.KindPrice, "IRON")
	boom := errors.New("boom")

	err := m.Update(context.Background(), func(tx store.Tx) error {
		if err := tx.Set(key, []byte("100")); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_ = m.View(context.Background(), func(tx store.Tx) error {
		ok, _ := tx.Has(key)
		if ok {
			t.Error("write from failed transaction should not be visible")
		}
		return nil
	})
}

func TestMemory_Has(t *testing.T) {
	m := store.NewMemory()
	key := store.NewKey(store.KindPrice, "GOLD")

	_ = m.View(context.Background(), func(tx store.Tx) error {
		ok, _ := tx.Has(key)
		if ok {
			t.Error("absent key reported present")
		}
		return nil
	})

	_ = m.Update(context.Background(), func(tx store.Tx) error {
		return tx.Set(key, []byte("1"))
	})

	_ = m.View(context.Background(), func(tx store.Tx) error {
		ok, _ := tx.Has(key)
		if !ok {
			t.Error("present key reported absent")
		}
		return nil
	})
}

// ============================================================================
// Test: JSON helpers and counters
// ============================================================================

func TestGetJSON_Absent(t *testing.T) {
	m := store.NewMemory()

	_ = m.View(context.Background(), func(tx store.Tx) error {
		var v int64
		ok, err := store.GetJSON(tx, store.NewKey(store.KindPrice, "IRON"), &v)
		if err != nil {
			t.Fatalf("GetJSON: %v", err)
		}
		if ok {
			t.Error("absent key should report ok=false")
		}
		return nil
	})
}

func TestNextID_Monotonic(t *testing.T) {
	m := store.NewMemory()

	var ids []uint64
	for i := 0; i < 3; i++ {
		_ = m.Update(context.Background(), func(tx store.Tx) error {
			id, err := store.NextID(tx, "offer")
			if err != nil {
				return err
			}
			ids = append(ids, id)
			return nil
		})
	}

	for i, id := range ids {
		if id != uint64(i+1) {
			t.Errorf("id %d: got %d, want %d", i, id, i+1)
		}
	}
}

func TestNextID_RolledBackIncrementNotVisible(t *testing.T) {
	m := store.NewMemory()
	boom := errors.New("boom")

	_ = m.Update(context.Background(), func(tx store.Tx) error {
		if _, err := store.NextID(tx, "offer"); err != nil {
			return err
		}
		return boom
	})

	_ = m.Update(context.Background(), func(tx store.Tx) error {
		id, err := store.NextID(tx, "offer")
		if err != nil {
			return err
		}
		if id != 1 {
			t.Errorf("counter should restart at 1 after rollback, got %d", id)
		}
		return nil
	})
}
