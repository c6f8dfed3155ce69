// Package errs holds the failure taxonomy shared by the session, reconciler
// and intent layers. Concrete failures are marked with one of the sentinels
// below so callers classify them with errors.Is regardless of wrapping.
package errs

import (
	"context"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNoProvider: no wallet is reachable. Needs user action before a retry.
	ErrNoProvider = errors.New("no wallet provider available")
	// ErrUserRejected: the user declined a permission or signature prompt.
	ErrUserRejected = errors.New("request rejected by user")
	// ErrNetworkMismatch: the wallet is on a different chain than the marketplace.
	ErrNetworkMismatch = errors.New("wallet is connected to the wrong network")
	// ErrTransactionReverted: the transaction was mined with a failed status.
	ErrTransactionReverted = errors.New("transaction reverted")
	// ErrFetchSkip: a single token or record could not be loaded.
	ErrFetchSkip = errors.New("record skipped")
	// ErrUpload: the content storage service refused or failed an upload.
	ErrUpload = errors.New("content upload failed")
	// ErrTimeout: a wallet request was left unanswered past its deadline.
	ErrTimeout = errors.New("wallet request timed out")
	// ErrNotConnected: an intent needs a connected session.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrInvalidInput: an intent was called with arguments that cannot succeed.
	ErrInvalidInput = errors.New("invalid input")
)

func NoProvider(err error) error {
	return mark(err, ErrNoProvider)
}

func UserRejected(err error) error {
	return mark(err, ErrUserRejected)
}

func Upload(err error) error {
	return mark(err, ErrUpload)
}

func FetchSkip(err error) error {
	return mark(err, ErrFetchSkip)
}

func Invalid(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrInvalidInput)
}

// NetworkMismatch builds an error carrying both chain ids.
func NetworkMismatch(want, got uint64) error {
	return errors.Mark(
		errors.Newf("wallet on chain %d, marketplace on chain %d", got, want),
		ErrNetworkMismatch,
	)
}

// Reverted builds an error for a mined transaction with status 0.
func Reverted(txHash string) error {
	return errors.Mark(errors.Newf("transaction %s reverted", txHash), ErrTransactionReverted)
}

// Timeout converts a context deadline into ErrTimeout; other errors pass through.
func Timeout(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Mark(err, ErrTimeout)
	}
	return err
}

func mark(err, ref error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ref) {
		return err
	}
	return errors.Mark(err, ref)
}

// Retryable reports whether repeating the same request can succeed without
// the user changing anything but their answer to a prompt.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUserRejected), errors.Is(err, ErrNetworkMismatch), errors.Is(err, ErrTimeout):
		return true
	case errors.Is(err, ErrNoProvider), errors.Is(err, ErrTransactionReverted), errors.Is(err, ErrInvalidInput):
		return false
	case errors.Is(err, ErrUpload):
		return true
	}
	return false
}

// Code returns the stable identifier used on the presentation API.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoProvider):
		return "no_provider"
	case errors.Is(err, ErrUserRejected):
		return "user_rejected"
	case errors.Is(err, ErrNetworkMismatch):
		return "network_mismatch"
	case errors.Is(err, ErrTransactionReverted):
		return "tx_reverted"
	case errors.Is(err, ErrUpload):
		return "upload_failed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrFetchSkip):
		return "fetch_skipped"
	}
	return "internal"
}
