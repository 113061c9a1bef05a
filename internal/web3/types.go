package web3

import (
	"context"
	"errors"
	"fmt"

	gethevent "github.com/ethereum/go-ethereum/event"
)

// Wallet JSON-RPC methods used by walletlink.
const (
	MethodAccounts         = "eth_accounts"
	MethodRequestAccounts  = "eth_requestAccounts"
	MethodChainID          = "eth_chainId"
	MethodSwitchChain      = "wallet_switchEthereumChain"
	MethodAddChain         = "wallet_addEthereumChain"
	EventAccountsChanged   = "accountsChanged"
	EventChainChanged      = "chainChanged"
	CodeUserRejected       = 4001
	CodeUnauthorized       = 4100
	CodeUnsupportedMethod  = 4200
	CodeDisconnected       = 4900
	CodeUnrecognizedChain  = 4902
	CodeInternalJSONRPC    = -32603
	CodeMethodNotFoundJSON = -32601
)

// RequestArguments mirrors the argument object of an EIP-1193 request.
type RequestArguments struct {
	Method string `json:"method"`
	Params []any  `json:"params,omitempty"`
}

// SwitchChainParameter is the single element of the
// wallet_switchEthereumChain params array.
type SwitchChainParameter struct {
	ChainID string `json:"chainId"`
}

// Provider is an EIP-1193 wallet provider. Request decodes the JSON result
// into result when it is non-nil. Subscriptions deliver the raw event
// payloads: the full account list for accountsChanged and the hex chain id
// for chainChanged.
type Provider interface {
	Request(ctx context.Context, args RequestArguments, result any) error
	SubscribeAccountsChanged(ch chan<- []string) gethevent.Subscription
	SubscribeChainChanged(ch chan<- string) gethevent.Subscription
}

// ProviderError is a provider RPC error carrying an EIP-1193 code.
// It satisfies go-ethereum's rpc.Error so the code survives a JSON-RPC hop.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("provider error %d", e.Code)
	}
	return e.Message
}

// ErrorCode returns the numeric provider code.
func (e *ProviderError) ErrorCode() int { return e.Code }

// ErrorData returns the optional error payload.
func (e *ProviderError) ErrorData() any { return e.Data }

// NewProviderError builds a ProviderError.
func NewProviderError(code int, message string) *ProviderError {
	return &ProviderError{Code: code, Message: message}
}

// ErrorCode extracts the provider error code from err, looking through
// wrapping layers for any error exposing ErrorCode() int.
func ErrorCode(err error) (int, bool) {
	var coded interface{ ErrorCode() int }
	if errors.As(err, &coded) {
		return coded.ErrorCode(), true
	}
	return 0, false
}

// IsUnrecognizedChain reports whether err signals that the wallet does not
// know the requested chain.
func IsUnrecognizedChain(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == CodeUnrecognizedChain
}

// IsUserRejected reports whether the user declined the request in the wallet.
func IsUserRejected(err error) bool {
	code, ok := ErrorCode(err)
	return ok && code == CodeUserRejected
}
