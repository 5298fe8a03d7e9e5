package persistence

import (
	"testing"

	"github.com/quantagent/core/internal/domain/entity"
)

func TestMemoryRuleStore_SaveGetActive(t *testing.T) {
	store := NewMemoryRuleStore()

	running, _ := entity.NewRuleState("running-rule", entity.RuleRequirements{})
	running.Start()
	stopped, _ := entity.NewRuleState("stopped-rule", entity.RuleRequirements{})

	if err := store.Save(running); err != nil {
		t.Fatalf("Save running: %v", err)
	}
	if err := store.Save(stopped); err != nil {
		t.Fatalf("Save stopped: %v", err)
	}

	got, ok := store.Get("running-rule")
	if !ok || got.RuleID() != "running-rule" {
		t.Fatalf("expected to find running-rule, got %+v ok=%v", got, ok)
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("expected missing rule to not be found")
	}

	active := store.Active()
	if len(active) != 1 || active[0].RuleID() != "running-rule" {
		t.Errorf("expected only running-rule in Active(), got %v", active)
	}
}

func TestMemoryOrderStore_AppendAll(t *testing.T) {
	store := NewMemoryOrderStore()
	if len(store.All()) != 0 {
		t.Fatal("expected empty store")
	}

	o1 := entity.NewOrder("rule-1", "BTCUSDT", entity.SideBuy, 100, 1, 0)
	o2 := entity.NewOrder("rule-1", "BTCUSDT", entity.SideSell, 110, 1, 10)

	if err := store.Append(o1); err != nil {
		t.Fatalf("Append o1: %v", err)
	}
	if err := store.Append(o2); err != nil {
		t.Fatalf("Append o2: %v", err)
	}

	all := store.All()
	if len(all) != 2 {
		t.Fatalf("expected 2 orders, got %d", len(all))
	}
	if all[0].Side != entity.SideBuy || all[1].Side != entity.SideSell {
		t.Errorf("expected orders in append order, got %+v", all)
	}

	// mutating the returned slice must not affect the store's internal state.
	all[0].Symbol = "mutated"
	if store.All()[0].Symbol == "mutated" {
		t.Error("expected All() to return a defensive copy")
	}
}
