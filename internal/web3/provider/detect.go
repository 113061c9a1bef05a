// Package provider decides which wallet provider walletd talks to.
package provider

import (
	"context"
	"log/slog"
	"time"

	"walletlink/internal/config"
	"walletlink/internal/web3"
	"walletlink/internal/web3/ethereum"
	"walletlink/internal/web3/simulated"
)

// Closer is implemented by providers that hold connections.
type Closer interface {
	Close()
}

// Detect returns the configured provider, or nil when no wallet is present:
// the driver is "none", no endpoint is configured, or the endpoint cannot be
// reached. Absence is not an error; the wallet manager handles a nil provider.
func Detect(ctx context.Context, cfg config.ProviderConfig, log *slog.Logger) web3.Provider {
	switch cfg.Driver {
	case "simulated":
		if !simulated.ValidAccounts(cfg.Simulated.Accounts) {
			log.Warn("simulated wallet has malformed accounts", slog.Any("accounts", cfg.Simulated.Accounts))
		}
		log.Info("using simulated wallet", slog.Int("accounts", len(cfg.Simulated.Accounts)), slog.Uint64("chain_id", cfg.Simulated.ChainID))
		return simulated.New(simulated.Config{
			Accounts:    cfg.Simulated.Accounts,
			ChainID:     cfg.Simulated.ChainID,
			KnownChains: cfg.Simulated.KnownChains,
			Authorized:  cfg.Simulated.Authorized,
		})
	case "rpc":
		if cfg.Endpoint == "" {
			log.Warn("no wallet endpoint configured")
			return nil
		}
		return dial(ctx, cfg, log)
	default:
		log.Info("wallet provider disabled", slog.String("driver", cfg.Driver))
		return nil
	}
}

func dial(ctx context.Context, cfg config.ProviderConfig, log *slog.Logger) web3.Provider {
	timeout := time.Duration(cfg.DialTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p, err := ethereum.Dial(dialCtx, ethereum.Config{
		Endpoint:     cfg.Endpoint,
		PollInterval: time.Duration(cfg.PollIntervalSeconds) * time.Second,
		Logger:       log,
	})
	if err != nil {
		log.Warn("wallet endpoint unreachable", slog.String("endpoint", cfg.Endpoint), slog.Any("error", err))
		return nil
	}

	// HTTP dials lazily, so confirm a wallet actually answers.
	var chain string
	if err := p.Request(dialCtx, web3.RequestArguments{Method: web3.MethodChainID}, &chain); err != nil {
		log.Warn("wallet endpoint did not answer", slog.String("endpoint", cfg.Endpoint), slog.Any("error", err))
		p.Close()
		return nil
	}
	log.Info("wallet endpoint detected", slog.String("endpoint", cfg.Endpoint), slog.String("chain_id", chain))
	return p
}

// Release closes p when it holds resources.
func Release(p web3.Provider) {
	if c, ok := p.(Closer); ok && c != nil {
		c.Close()
	}
}
