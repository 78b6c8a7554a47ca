package provider

import (
	"fmt"

	"github.com/scryforge/hub/internal/model"
)

// ErrKind is the closed set of ways a provider call can fail. Each kind
// maps one-to-one onto an RPC error code in internal/rpc.
type ErrKind string

const (
	ErrKindNetwork        ErrKind = "network"
	ErrKindAuthRequired   ErrKind = "auth_required"
	ErrKindRateLimited    ErrKind = "rate_limited"
	ErrKindItemNotFound   ErrKind = "item_not_found"
	ErrKindStreamNotFound ErrKind = "stream_not_found"
	ErrKindProvider       ErrKind = "provider"
	ErrKindNotSupported   ErrKind = "not_supported"
)

// Error is the typed error every Provider method returns on failure. It
// carries structured fields rather than a formatted string, since
// RetryAfter/ID need to survive to the RPC layer.
type Error struct {
	Kind       ErrKind
	Message    string
	ID         string // item/stream id, for ItemNotFound/StreamNotFound
	Op         string // operation name, for NotSupported
	RetryAfter int    // seconds, for RateLimited
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrKindRateLimited:
		return fmt.Sprintf("provider: rate limited, retry after %ds", e.RetryAfter)
	case ErrKindItemNotFound:
		return fmt.Sprintf("provider: item not found: %s", e.ID)
	case ErrKindStreamNotFound:
		return fmt.Sprintf("provider: stream not found: %s", e.ID)
	case ErrKindNotSupported:
		return fmt.Sprintf("provider: not supported: %s", e.Op)
	default:
		return fmt.Sprintf("provider: %s: %s", e.Kind, e.Message)
	}
}

func Network(msg string) *Error      { return &Error{Kind: ErrKindNetwork, Message: msg} }
func AuthRequired(msg string) *Error { return &Error{Kind: ErrKindAuthRequired, Message: msg} }
func RateLimited(seconds int) *Error { return &Error{Kind: ErrKindRateLimited, RetryAfter: seconds} }
func ItemNotFound(id model.ItemID) *Error {
	return &Error{Kind: ErrKindItemNotFound, ID: string(id)}
}
func StreamNotFound(id model.StreamID) *Error {
	return &Error{Kind: ErrKindStreamNotFound, ID: string(id)}
}
func ProviderErr(msg string) *Error  { return &Error{Kind: ErrKindProvider, Message: msg} }
func NotSupported(op string) *Error  { return &Error{Kind: ErrKindNotSupported, Op: op} }
