package syncengine

import (
	"errors"

	"github.com/quasiyoke/rammingen/internal/cryptoengine"
	"github.com/quasiyoke/rammingen/internal/rpcclient"
)

// Kind is the core's error taxonomy, used by the CLI layer
// to pick an exit code without re-deriving classification from scratch.
type Kind int

const (
	KindUnknown Kind = iota
	KindUserInput
	KindRule
	KindIO
	KindNetwork
	KindProtocol
	KindIntegrity
	KindConcurrency
)

// CoreError wraps an error with its Kind.
type CoreError struct {
	Kind Kind
	Err  error
}

func (e *CoreError) Error() string { return e.Err.Error() }
func (e *CoreError) Unwrap() error { return e.Err }

// NewCoreError wraps err with the given Kind.
func NewCoreError(kind Kind, err error) *CoreError {
	return &CoreError{Kind: kind, Err: err}
}

// Classify inspects err and derives the most specific Kind it can,
// falling back to KindUnknown. It recognizes the crypto engine's
// integrity sentinel and the RPC client's classified CoreError.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}

	var ce *CoreError
	if errors.As(err, &ce) {
		return ce.Kind
	}

	var rpcErr *rpcclient.CoreError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Kind {
		case rpcclient.KindUserInput:
			return KindUserInput
		case rpcclient.KindNetwork:
			return KindNetwork
		case rpcclient.KindProtocol:
			return KindProtocol
		default:
			return KindUnknown
		}
	}

	if errors.Is(err, cryptoengine.ErrIntegrity) {
		return KindIntegrity
	}

	return KindUnknown
}

// ExitCode maps a Kind to the CLI exit code convention:
// 0 success, 1 user/usage error, 2 remote/network error, 3 integrity.
func (k Kind) ExitCode() int {
	switch k {
	case KindUserInput, KindRule:
		return 1
	case KindIO, KindNetwork, KindProtocol, KindConcurrency:
		return 2
	case KindIntegrity:
		return 3
	default:
		return 1
	}
}
