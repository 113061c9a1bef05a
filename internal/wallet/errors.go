package wallet

import (
	"net/http"

	xerrors "walletlink/internal/errors"
)

const (
	CodeProviderUnavailable xerrors.Code = "PROVIDER_UNAVAILABLE"
	CodeRequestFailed       xerrors.Code = "REQUEST_FAILED"
	CodeChainNotRegistered  xerrors.Code = "CHAIN_NOT_REGISTERED"
	CodeManagerClosed       xerrors.Code = "MANAGER_CLOSED"
)

var (
	// ErrProviderUnavailable is returned when no wallet provider was detected.
	ErrProviderUnavailable = xerrors.New(CodeProviderUnavailable, "no wallet provider detected")
	// ErrManagerClosed is returned by operations issued after Close.
	ErrManagerClosed = xerrors.New(CodeManagerClosed, "wallet manager closed")
)

func init() {
	xerrors.Register(CodeProviderUnavailable, xerrors.Attributes{
		Message:  "no wallet provider detected",
		Severity: xerrors.SeverityWarning,
		Status:   http.StatusServiceUnavailable,
	})
	xerrors.Register(CodeRequestFailed, xerrors.Attributes{
		Message:  "wallet request failed",
		Severity: xerrors.SeverityInfo,
		Status:   http.StatusBadGateway,
	})
	xerrors.Register(CodeChainNotRegistered, xerrors.Attributes{
		Message:  "chain is not registered",
		Severity: xerrors.SeverityInfo,
		Status:   http.StatusNotFound,
	})
	xerrors.Register(CodeManagerClosed, xerrors.Attributes{
		Message:  "wallet manager closed",
		Severity: xerrors.SeverityWarning,
		Status:   http.StatusServiceUnavailable,
	})
}
