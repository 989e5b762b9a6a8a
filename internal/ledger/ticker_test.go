package ledger

import (
	"testing"
	"time"
)

func TestTickerBoundaries(t *testing.T) {
	genesis := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ticker := NewTicker(ChainConfig{GenesisUTCTime: genesis, TickDuration: time.Minute})

	now := genesis.Add(2*time.Minute + 15*time.Second)
	if got := ticker.Current(now); got != 2 {
		t.Fatalf("expected tick 2, got %d", got)
	}
	if got := ticker.UntilNextTick(now); got != 45*time.Second {
		t.Fatalf("expected 45s to next tick, got %s", got)
	}
	if got := ticker.UntilNextTick(genesis.Add(-time.Second)); got != time.Second {
		t.Fatalf("expected 1s before genesis, got %s", got)
	}
	if got := (Ticker{}).UntilNextTick(now); got != 0 {
		t.Fatalf("zero ticker should report 0, got %s", got)
	}
}
