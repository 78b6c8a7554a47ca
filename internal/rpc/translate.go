package rpc

import (
	"errors"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider"
	"github.com/scryforge/hub/internal/registry"
)

// translateError maps a core-layer error onto an RPC error code.
// Network/RateLimited/AuthRequired surface as ResourceUnavailable with the
// message carrying retry hints; ItemNotFound/StreamNotFound surface as
// NotFound; NotSupported never auto-retries and surfaces as-is; anything
// else (including a bare store/context failure) is Internal.
func translateError(err error) *Error {
	if err == nil {
		return nil
	}

	var perr *provider.Error
	if errors.As(err, &perr) {
		switch perr.Kind {
		case provider.ErrKindNetwork, provider.ErrKindRateLimited, provider.ErrKindAuthRequired:
			return &Error{Code: CodeResourceUnavailable, Message: perr.Error()}
		case provider.ErrKindItemNotFound, provider.ErrKindStreamNotFound:
			return &Error{Code: CodeNotFound, Message: perr.Error()}
		case provider.ErrKindNotSupported:
			return &Error{Code: CodeNotSupported, Message: perr.Error()}
		default:
			return &Error{Code: CodeInternal, Message: perr.Error()}
		}
	}

	var idErr *model.OwnerMismatchError
	if errors.As(err, &idErr) {
		return &Error{Code: CodeInvalidID, Message: idErr.Error()}
	}
	if errors.Is(err, model.ErrInvalidID) {
		return &Error{Code: CodeInvalidID, Message: err.Error()}
	}
	if errors.Is(err, model.ErrNotFound) {
		return &Error{Code: CodeNotFound, Message: err.Error()}
	}

	if errors.Is(err, registry.ErrProviderNotFound) {
		return &Error{Code: CodeNotFound, Message: err.Error()}
	}

	if errors.Is(err, errNotFound) {
		return &Error{Code: CodeNotFound, Message: err.Error()}
	}
	if errors.Is(err, errNotImplemented) {
		return &Error{Code: CodeNotImplemented, Message: err.Error()}
	}

	return &Error{Code: CodeInternal, Message: err.Error()}
}

var (
	errNotFound       = errors.New("rpc: not found")
	errNotImplemented = errors.New("rpc: not implemented")
)
