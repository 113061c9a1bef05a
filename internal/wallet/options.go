package wallet

import (
	"log/slog"
	"time"

	"walletlink/internal/journal"
	"walletlink/internal/network"
)

// Option customises a Manager.
type Option func(*Manager)

// WithLogger overrides the component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithRegistry sets the registry consulted for the add-chain fallback.
func WithRegistry(registry *network.Registry) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}

// WithJournal records every operation and provider event in store.
func WithJournal(store journal.Store) Option {
	return func(m *Manager) {
		m.journal = store
	}
}

// WithRequestTimeout bounds each provider request. Zero disables the bound,
// in which case a wallet that never answers keeps IsLoading set.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}
