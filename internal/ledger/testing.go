package ledger

import "encoding/json"

// SeedBalance is a test helper that overwrites the local balance of a goleveldb-backed localchain.
func SeedBalance(s Store, milligons int64) {
	if ls, ok := s.(*LevelStore); ok {
		ls.mu.Lock()
		defer ls.mu.Unlock()
		ls.state.Balance = milligons
		if raw, err := json.Marshal(ls.state); err == nil {
			_ = ls.db.Put(keyState, raw, nil)
		}
	}
}
