package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	gethevent "github.com/ethereum/go-ethereum/event"

	"walletlink/internal/journal"
	"walletlink/internal/network"
	"walletlink/internal/observability/metrics"
	"walletlink/internal/wallet"
	"walletlink/pkg/logger"
)

// Wallet 为 API 依赖的钱包会话能力，由 *wallet.Manager 实现。
type Wallet interface {
	Available() bool
	Registry() *network.Registry
	Session() wallet.Session
	SubscribeSession(ch chan<- wallet.Session) gethevent.Subscription
	Connect(ctx context.Context) error
	Disconnect()
	SwitchNetwork(ctx context.Context, chainID uint64) error
}

// Config 描述 API 服务的可选参数。
type Config struct {
	Address string
	// Token 非空时要求 Bearer 认证。
	Token   string
	Logger  *slog.Logger
	Audit   *slog.Logger
	Metrics *metrics.Metrics
}

// Server 负责暴露钱包会话的 REST 与 websocket 接口。
type Server struct {
	addr    string
	token   string
	wallet  Wallet
	journal journal.Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	audit   *slog.Logger
}

// NewServer 构造 API 服务实例，store 可以为 nil。
func NewServer(cfg Config, w Wallet, store journal.Store) *Server {
	s := &Server{
		addr:    cfg.Address,
		token:   cfg.Token,
		wallet:  w,
		journal: store,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
		audit:   cfg.Audit,
	}
	if s.logger == nil {
		s.logger = logger.Named("api")
	}
	if s.audit == nil {
		s.audit = logger.Audit()
	}
	return s
}

// Handler 返回完整的路由，Start 与测试共用。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /api/v1/wallet", "wallet", s.handleSession)
	s.route(mux, "POST /api/v1/wallet/connect", "wallet_connect", s.handleConnect)
	s.route(mux, "POST /api/v1/wallet/disconnect", "wallet_disconnect", s.handleDisconnect)
	s.route(mux, "POST /api/v1/wallet/network", "wallet_network", s.handleSwitchNetwork)
	s.route(mux, "GET /api/v1/wallet/stream", "wallet_stream", s.handleStream)
	s.route(mux, "GET /api/v1/networks", "networks", s.handleNetworks)
	s.route(mux, "GET /api/v1/journal", "journal", s.handleJournal)

	api := s.authenticate(mux)
	root := http.NewServeMux()
	root.Handle("/api/", api)
	if s.metrics != nil {
		root.Handle("GET /metrics", s.metrics.Handler())
	}
	return root
}

func (s *Server) route(mux *http.ServeMux, pattern, name string, fn http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.Middleware(name, fn))
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
		// 请求上下文派生自 ctx，关闭时 websocket 连接随之结束。
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.logger.Info("api server listening", slog.String("address", s.addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
