package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gethevent "github.com/ethereum/go-ethereum/event"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	xerrors "walletlink/internal/errors"
	"walletlink/internal/journal"
	"walletlink/internal/network"
	"walletlink/internal/web3"
	"walletlink/pkg/logger"
)

const eventBuffer = 16

// Manager owns the Session of one wallet provider.
//
// Every mutation is a read-modify-write of the fields it owns, so a provider
// event arriving while Connect or SwitchNetwork is in flight never clobbers
// fields it does not own. Concurrent Connect calls are not serialised: the
// response that arrives last wins.
type Manager struct {
	provider web3.Provider
	registry *network.Registry
	journal  journal.Store
	logger   *slog.Logger
	timeout  time.Duration

	mu      sync.RWMutex
	session Session

	publishMu sync.Mutex
	feed      gethevent.Feed
	scope     gethevent.SubscriptionScope

	accountsSub gethevent.Subscription
	chainSub    gethevent.Subscription

	cancel context.CancelFunc
	ready  chan struct{}
	quit   chan struct{}
	done   chan struct{}
	closed *atomic.Bool
}

// New creates a Manager for provider. A nil provider means no wallet was
// detected: the session stays empty and Connect and SwitchNetwork return
// ErrProviderUnavailable. Otherwise New subscribes to the provider events
// and probes the existing authorisation in the background; Ready is closed
// once that probe finishes.
func New(ctx context.Context, provider web3.Provider, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		registry: network.Default(),
		logger:   logger.Named("wallet"),
		ready:    make(chan struct{}),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		closed:   atomic.NewBool(false),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if provider == nil {
		m.logger.Warn("no wallet provider detected")
		close(m.ready)
		close(m.done)
		return m
	}

	probeCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	accounts := make(chan []string, eventBuffer)
	chains := make(chan string, eventBuffer)
	m.accountsSub = provider.SubscribeAccountsChanged(accounts)
	m.chainSub = provider.SubscribeChainChanged(chains)
	go m.loop(accounts, chains)

	go func() {
		defer close(m.ready)
		_ = m.Probe(probeCtx)
	}()
	return m
}

// Ready is closed once the initial probe has finished.
func (m *Manager) Ready() <-chan struct{} {
	return m.ready
}

// Available reports whether a wallet provider is present.
func (m *Manager) Available() bool {
	return m != nil && m.provider != nil
}

// Registry returns the registry used for the add-chain fallback.
func (m *Manager) Registry() *network.Registry {
	return m.registry
}

// Session returns the current snapshot.
func (m *Manager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.session
}

// SubscribeSession delivers every published snapshot to ch. Subscribers must
// keep draining ch; publishing waits for every subscriber to receive.
func (m *Manager) SubscribeSession(ch chan<- Session) gethevent.Subscription {
	if m.closed.Load() {
		return gethevent.NewSubscription(func(<-chan struct{}) error { return nil })
	}
	sub := m.scope.Track(m.feed.Subscribe(ch))
	if sub == nil {
		return gethevent.NewSubscription(func(<-chan struct{}) error { return nil })
	}
	return sub
}

// Close unsubscribes from the provider, stops the event loop and ends every
// session subscription. Later operations return ErrManagerClosed.
func (m *Manager) Close() {
	if !m.closed.CompareAndSwap(false, true) {
		return
	}
	if m.cancel != nil {
		m.cancel()
	}
	close(m.quit)
	// Ending subscriptions first releases an event loop blocked in feed.Send
	// on a subscriber that stopped draining.
	m.scope.Close()
	<-m.done
}

// Probe reads the authorisation the wallet already granted, without
// prompting the user, and publishes the merged result in one update.
// Failures are logged and only clear IsLoading.
func (m *Manager) Probe(ctx context.Context) error {
	if err := m.guard(); err != nil {
		return err
	}
	accounts, chainID, err := m.query(ctx, web3.MethodAccounts)
	if err != nil {
		m.update(func(s *Session) { s.IsLoading = false })
		m.logFailure("wallet probe failed", err)
		m.record(ctx, journal.KindProbe, journal.OutcomeFailed, Session{}, err)
		return nil
	}

	account, connected := selectAccount(accounts)
	snap, _ := m.update(func(s *Session) {
		*s = Session{Account: account, ChainID: chainID, IsConnected: connected}
	})
	m.logger.Debug("wallet probed", slog.Bool("connected", connected), slog.Uint64("chain_id", chainID))
	m.record(ctx, journal.KindProbe, journal.OutcomeOK, snap, nil)
	return nil
}

// Connect asks the wallet for account access. IsLoading is published before
// the wallet is contacted. A rejected or failed request only clears
// IsLoading and is not returned; the error is ErrProviderUnavailable or
// ErrManagerClosed only.
func (m *Manager) Connect(ctx context.Context) error {
	if err := m.guard(); err != nil {
		return err
	}
	m.update(func(s *Session) { s.IsLoading = true })

	accounts, chainID, err := m.query(ctx, web3.MethodRequestAccounts)
	account, connected := selectAccount(accounts)
	if err == nil && !connected {
		err = xerrors.New(CodeRequestFailed, "wallet returned no accounts",
			xerrors.WithMetadata("method", web3.MethodRequestAccounts))
	}
	if err != nil {
		m.update(func(s *Session) { s.IsLoading = false })
		m.logFailure("wallet connect failed", err)
		m.record(ctx, journal.KindConnect, journal.OutcomeFailed, Session{}, err)
		return nil
	}

	snap, _ := m.update(func(s *Session) {
		*s = Session{Account: account, ChainID: chainID, IsConnected: true}
	})
	m.logger.Info("wallet connected", slog.String("account", account), slog.Uint64("chain_id", chainID))
	m.record(ctx, journal.KindConnect, journal.OutcomeOK, snap, nil)
	return nil
}

// Disconnect clears the session locally. It does not revoke the site's
// authorisation in the wallet, so a later Probe or Connect finds the same
// accounts again without a prompt.
func (m *Manager) Disconnect() {
	prev := m.Session()
	if _, ok := m.update(func(s *Session) { *s = Session{} }); !ok {
		return
	}
	m.logger.Info("wallet disconnected", slog.String("account", prev.Account))
	m.record(context.Background(), journal.KindDisconnect, journal.OutcomeOK, prev, nil)
}

// SwitchNetwork asks the wallet to select chainID. The session is not
// touched here; the wallet's chainChanged event updates ChainID. When the
// wallet does not know the chain (4902) and chainID is registered, the chain
// is added with a single wallet_addEthereumChain request. Provider-side
// failures are logged and not returned.
func (m *Manager) SwitchNetwork(ctx context.Context, chainID uint64) error {
	if err := m.guard(); err != nil {
		return err
	}
	if chainID == 0 {
		return xerrors.New(xerrors.CodeInvalidArgument, "chain id must be positive")
	}

	current := Session{ChainID: chainID}
	param := web3.SwitchChainParameter{ChainID: web3.EncodeChainID(chainID)}
	err := m.request(ctx, web3.MethodSwitchChain, []any{param}, nil)
	switch {
	case err == nil:
		m.logger.Info("wallet switch requested", slog.Uint64("chain_id", chainID))
		m.record(ctx, journal.KindSwitchNetwork, journal.OutcomeOK, current, nil)
	case web3.IsUnrecognizedChain(err):
		m.logger.Info("wallet does not know chain, trying to add it", slog.Uint64("chain_id", chainID))
		m.record(ctx, journal.KindSwitchNetwork, journal.OutcomeFailed, current, err)
		m.addChain(ctx, chainID)
	default:
		m.logFailure("wallet switch failed", err, slog.Uint64("chain_id", chainID))
		m.record(ctx, journal.KindSwitchNetwork, journal.OutcomeFailed, current, err)
	}
	return nil
}

func (m *Manager) addChain(ctx context.Context, chainID uint64) {
	current := Session{ChainID: chainID}
	desc, ok := m.registry.Lookup(chainID)
	if !ok {
		err := xerrors.New(CodeChainNotRegistered, fmt.Sprintf("chain %d is not registered", chainID))
		m.logger.Warn("cannot add chain", slog.Any("error", err), slog.Uint64("chain_id", chainID))
		m.record(ctx, journal.KindAddChain, journal.OutcomeSkipped, current, err)
		return
	}
	if err := m.request(ctx, web3.MethodAddChain, []any{desc.AddChainParameter()}, nil); err != nil {
		m.logFailure("wallet add chain failed", err, slog.Uint64("chain_id", chainID))
		m.record(ctx, journal.KindAddChain, journal.OutcomeFailed, current, err)
		return
	}
	m.logger.Info("wallet add chain requested", slog.Uint64("chain_id", chainID), slog.String("chain_name", desc.ChainName))
	m.record(ctx, journal.KindAddChain, journal.OutcomeOK, current, nil)
}

func (m *Manager) loop(accounts <-chan []string, chains <-chan string) {
	defer close(m.done)
	defer m.unsubscribe()

	accountsErr := subscriptionErr(m.accountsSub)
	chainErr := subscriptionErr(m.chainSub)
	for {
		select {
		case list := <-accounts:
			m.onAccountsChanged(list)
		case raw := <-chains:
			m.onChainChanged(raw)
		case err := <-accountsErr:
			if err != nil {
				m.logger.Warn("accountsChanged subscription ended", slog.Any("error", err))
			}
			accountsErr = nil
		case err := <-chainErr:
			if err != nil {
				m.logger.Warn("chainChanged subscription ended", slog.Any("error", err))
			}
			chainErr = nil
		case <-m.quit:
			return
		}
	}
}

func (m *Manager) unsubscribe() {
	if m.accountsSub != nil {
		m.accountsSub.Unsubscribe()
	}
	if m.chainSub != nil {
		m.chainSub.Unsubscribe()
	}
}

func subscriptionErr(sub gethevent.Subscription) <-chan error {
	if sub == nil {
		return nil
	}
	return sub.Err()
}

func (m *Manager) onAccountsChanged(accounts []string) {
	account, connected := selectAccount(accounts)
	snap, ok := m.update(func(s *Session) {
		s.Account = account
		s.IsConnected = connected
	})
	if !ok {
		return
	}
	m.logger.Debug("accounts changed", slog.Int("accounts", len(accounts)))
	m.record(context.Background(), journal.KindAccountsChanged, journal.OutcomeOK, snap, nil)
}

func (m *Manager) onChainChanged(raw string) {
	chainID, err := web3.DecodeChainID(raw)
	if err != nil {
		m.logger.Warn("dropping chainChanged event", slog.String("payload", raw), slog.Any("error", err))
		return
	}
	snap, ok := m.update(func(s *Session) { s.ChainID = chainID })
	if !ok {
		return
	}
	m.logger.Debug("chain changed", slog.Uint64("chain_id", chainID))
	m.record(context.Background(), journal.KindChainChanged, journal.OutcomeOK, snap, nil)
}

// update applies fn under the state lock and publishes the result. The
// publish lock keeps subscribers seeing snapshots in mutation order.
func (m *Manager) update(fn func(*Session)) (Session, bool) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	if m.closed.Load() {
		return m.Session(), false
	}

	m.mu.Lock()
	fn(&m.session)
	snap := m.session
	m.mu.Unlock()

	m.feed.Send(snap)
	return snap, true
}

func (m *Manager) guard() error {
	if m.closed.Load() {
		return ErrManagerClosed
	}
	if m.provider == nil {
		return ErrProviderUnavailable
	}
	return nil
}

// query issues the accounts method and eth_chainId concurrently.
func (m *Manager) query(ctx context.Context, accountsMethod string) ([]string, uint64, error) {
	var (
		accounts []string
		rawChain string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return m.request(gctx, accountsMethod, nil, &accounts)
	})
	g.Go(func() error {
		return m.request(gctx, web3.MethodChainID, nil, &rawChain)
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	chainID, err := web3.DecodeChainID(rawChain)
	if err != nil {
		return nil, 0, xerrors.Wrap(CodeRequestFailed, err, "wallet returned an invalid chain id",
			xerrors.WithMetadata("method", web3.MethodChainID))
	}
	return accounts, chainID, nil
}

func (m *Manager) request(ctx context.Context, method string, params []any, result any) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	err := m.provider.Request(ctx, web3.RequestArguments{Method: method, Params: params}, result)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.CodeTimeout, err, "wallet request timed out", xerrors.WithMetadata("method", method))
	}
	return xerrors.Wrap(CodeRequestFailed, err, "wallet request failed", xerrors.WithMetadata("method", method))
}

func (m *Manager) logFailure(msg string, err error, attrs ...any) {
	args := []any{slog.Any("error", err), slog.String("code", string(xerrors.CodeOf(err)))}
	if code, ok := web3.ErrorCode(err); ok {
		args = append(args, slog.Int("provider_code", code))
	}
	if e, ok := xerrors.From(err); ok {
		if method := e.Metadata()["method"]; method != "" {
			args = append(args, slog.String("method", method))
		}
	}
	args = append(args, attrs...)
	m.logger.Warn(msg, args...)
}

func (m *Manager) record(ctx context.Context, kind journal.Kind, outcome journal.Outcome, snap Session, cause error) {
	if m.journal == nil {
		return
	}
	entry := &journal.Entry{
		Kind:    kind,
		Outcome: outcome,
		Account: snap.Account,
		ChainID: snap.ChainID,
	}
	if cause != nil {
		entry.Code = string(xerrors.CodeOf(cause))
		if code, ok := web3.ErrorCode(cause); ok {
			entry.Code = fmt.Sprintf("%s:%d", entry.Code, code)
		}
		entry.Message = cause.Error()
	}
	if err := m.journal.Append(context.WithoutCancel(ctx), entry); err != nil {
		m.logger.Error("append wallet journal failed", slog.Any("error", err), slog.String("kind", string(kind)))
	}
}
