package ledger

import "time"

// Ticker maps wall-clock time onto chain ticks.
type Ticker struct {
	Genesis               time.Time
	Duration              time.Duration
	EscrowExpirationTicks uint32
}

// NewTicker builds a ticker from a chain config.
func NewTicker(cfg ChainConfig) Ticker {
	return Ticker{
		Genesis:               cfg.GenesisUTCTime,
		Duration:              cfg.TickDuration,
		EscrowExpirationTicks: cfg.EscrowExpirationTicks,
	}
}

// Current returns the tick containing now.
func (t Ticker) Current(now time.Time) int64 {
	if t.Duration <= 0 || now.Before(t.Genesis) {
		return 0
	}
	return int64(now.Sub(t.Genesis) / t.Duration)
}

// UntilNextTick returns the time remaining until the next tick boundary.
func (t Ticker) UntilNextTick(now time.Time) time.Duration {
	if t.Duration <= 0 {
		return 0
	}
	if now.Before(t.Genesis) {
		return t.Genesis.Sub(now)
	}
	elapsed := now.Sub(t.Genesis) % t.Duration
	return t.Duration - elapsed
}
