package model

import "github.com/worldline-go/types"

// StreamKind discriminates the closed set of stream shapes a provider can
// expose. Custom(tag) covers provider-specific groupings that don't fit the
// other four (e.g. a "starred repos" stream from a code-forge provider).
type StreamKind string

const (
	StreamKindFeed       StreamKind = "feed"
	StreamKindCollection StreamKind = "collection"
	StreamKindSavedItems StreamKind = "saved_items"
	StreamKindCommunity  StreamKind = "community"
	StreamKindCustom     StreamKind = "custom"
)

// Stream is a logical feed or collection owned by exactly one provider.
//
// Invariants (the first two are checked by Validate, which internal/store
// calls on upsert; the third is kept by the store's upsert merge):
//   - Owner(ID) == ProviderID
//   - UnreadCount <= TotalCount when both are present
//   - LastUpdated is monotonically non-decreasing across successful syncs
type Stream struct {
	ID          StreamID               `json:"id"`
	Name        string                 `json:"name"`
	ProviderID  string                 `json:"provider_id"`
	Kind        StreamKind             `json:"kind"`
	CustomTag   string                 `json:"custom_tag,omitempty"` // set when Kind == StreamKindCustom
	Icon        string                 `json:"icon,omitempty"`
	UnreadCount *int                   `json:"unread_count,omitempty"`
	TotalCount  *int                   `json:"total_count,omitempty"`
	LastUpdated types.Null[types.Time] `json:"last_updated,omitempty"`
	Metadata    map[string]string      `json:"metadata,omitempty"`
	CreatedAt   types.Time             `json:"created_at"`
	UpdatedAt   types.Time             `json:"updated_at"`
}

// Validate checks the invariants that are cheap to verify without touching
// the store. Stream.ID's owner prefix must equal ProviderID.
func (s Stream) Validate() error {
	owner, err := s.ID.Owner()
	if err != nil {
		return err
	}
	if owner != s.ProviderID {
		return &OwnerMismatchError{ID: string(s.ID), Owner: owner, ProviderID: s.ProviderID}
	}
	if s.UnreadCount != nil && s.TotalCount != nil && *s.UnreadCount > *s.TotalCount {
		return ErrUnreadExceedsTotal
	}
	return nil
}

// OwnerMismatchError reports an entity whose id owner prefix does not match
// the provider_id recorded on the entity.
type OwnerMismatchError struct {
	ID         string
	Owner      string
	ProviderID string
}

func (e *OwnerMismatchError) Error() string {
	return "model: id " + e.ID + " owner " + e.Owner + " does not match provider_id " + e.ProviderID
}

// ErrUnreadExceedsTotal reports a stream whose unread count is larger than
// its total count.
var ErrUnreadExceedsTotal = stringError("model: unread_count exceeds total_count")

type stringError string

func (e stringError) Error() string { return string(e) }
