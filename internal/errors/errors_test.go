package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewUsesRegisteredMessage(t *testing.T) {
	err := New(CodeInvalidArgument, "")
	require.Equal(t, "[INVALID_ARGUMENT] invalid argument", err.Error())
	require.Equal(t, http.StatusBadRequest, err.Status())
	require.Equal(t, SeverityInfo, err.Severity())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("dial tcp: refused")
	err := Wrap(CodeStorageFailure, cause, "写入失败", WithMetadata("table", "wallet_journal"))

	require.ErrorIs(t, err, cause)
	require.Equal(t, CodeStorageFailure, CodeOf(err))
	require.Equal(t, "wallet_journal", err.Metadata()["table"])
	require.Contains(t, err.Error(), "dial tcp: refused")
}

func TestIsComparesCodes(t *testing.T) {
	sentinel := New(CodeNotFound, "missing")
	wrapped := Wrap(CodeNotFound, stdErrors.New("x"), "other message")
	require.ErrorIs(t, wrapped, sentinel)
	require.NotErrorIs(t, New(CodeTimeout, ""), sentinel)
}

func TestRegisterCustomCode(t *testing.T) {
	const code Code = "TEST_CUSTOM"
	Register(code, Attributes{Message: "custom", Severity: SeverityWarning, Status: http.StatusConflict})

	err := New(code, "")
	require.Equal(t, "custom", err.Message())
	require.Equal(t, http.StatusConflict, StatusOf(err))
	require.Equal(t, SeverityCritical, New(code, "", WithSeverity(SeverityCritical)).Severity())
}

func TestUnknownFallbacks(t *testing.T) {
	plain := stdErrors.New("plain")
	require.Equal(t, CodeUnknown, CodeOf(plain))
	require.Equal(t, http.StatusInternalServerError, StatusOf(plain))
	require.Equal(t, SeverityCritical, SeverityOf(plain))
	require.Equal(t, AttributesOf(CodeUnknown), AttributesOf("NOPE"))

	_, ok := From(nil)
	require.False(t, ok)
}
