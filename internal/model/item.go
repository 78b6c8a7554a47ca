package model

import (
	"encoding/json"
	"fmt"

	"github.com/worldline-go/types"
)

// Author is the optional byline attached to an Item.
type Author struct {
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	URL    string `json:"url,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Item is a single entry inside exactly one Stream.
//
// Flags (IsRead/IsSaved/IsArchived) are local state: they are set only by
// RPC writes (internal/rpc) and survive re-ingestion of the same item id.
// Tags and Metadata are merged on re-ingest with incoming values
// overriding colliding keys.
type Item struct {
	ID        ItemID                 `json:"id"`
	StreamID  StreamID               `json:"stream_id"`
	Title     string                 `json:"title"`
	Content   Content                `json:"content"`
	Author    *Author                `json:"author,omitempty"`
	Published types.Null[types.Time] `json:"published,omitempty"`
	Updated   types.Null[types.Time] `json:"updated,omitempty"`
	URL       string                 `json:"url,omitempty"`
	Thumbnail string                 `json:"thumbnail_url,omitempty"`

	IsRead     bool `json:"is_read"`
	IsSaved    bool `json:"is_saved"`
	IsArchived bool `json:"is_archived"`

	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt types.Time `json:"created_at"`
	UpdatedAt types.Time `json:"updated_at"`
}

// itemWire mirrors Item's wire shape with Content flattened to a raw JSON
// object carrying its own "type" discriminator (MarshalContent/
// UnmarshalContent), since Content is a closed, non-empty interface that
// encoding/json cannot (de)serialize generically on its own.
type itemWire struct {
	ID        ItemID                 `json:"id"`
	StreamID  StreamID               `json:"stream_id"`
	Title     string                 `json:"title"`
	Content   json.RawMessage        `json:"content"`
	Author    *Author                `json:"author,omitempty"`
	Published types.Null[types.Time] `json:"published,omitempty"`
	Updated   types.Null[types.Time] `json:"updated,omitempty"`
	URL       string                 `json:"url,omitempty"`
	Thumbnail string                 `json:"thumbnail_url,omitempty"`

	IsRead     bool `json:"is_read"`
	IsSaved    bool `json:"is_saved"`
	IsArchived bool `json:"is_archived"`

	Tags     []string          `json:"tags,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt types.Time `json:"created_at"`
	UpdatedAt types.Time `json:"updated_at"`
}

// MarshalJSON flattens Content into its discriminated wire form.
func (it Item) MarshalJSON() ([]byte, error) {
	contentJSON, err := MarshalContent(it.Content)
	if err != nil {
		return nil, fmt.Errorf("model: marshal item %q content: %w", it.ID, err)
	}
	return json.Marshal(itemWire{
		ID: it.ID, StreamID: it.StreamID, Title: it.Title, Content: contentJSON,
		Author: it.Author, Published: it.Published, Updated: it.Updated,
		URL: it.URL, Thumbnail: it.Thumbnail,
		IsRead: it.IsRead, IsSaved: it.IsSaved, IsArchived: it.IsArchived,
		Tags: it.Tags, Metadata: it.Metadata,
		CreatedAt: it.CreatedAt, UpdatedAt: it.UpdatedAt,
	})
}

// UnmarshalJSON restores Content from its discriminated wire form.
func (it *Item) UnmarshalJSON(data []byte) error {
	var w itemWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	var content Content
	if len(w.Content) > 0 {
		c, err := UnmarshalContent(w.Content)
		if err != nil {
			return fmt.Errorf("model: unmarshal item %q content: %w", w.ID, err)
		}
		content = c
	}
	*it = Item{
		ID: w.ID, StreamID: w.StreamID, Title: w.Title, Content: content,
		Author: w.Author, Published: w.Published, Updated: w.Updated,
		URL: w.URL, Thumbnail: w.Thumbnail,
		IsRead: w.IsRead, IsSaved: w.IsSaved, IsArchived: w.IsArchived,
		Tags: w.Tags, Metadata: w.Metadata,
		CreatedAt: w.CreatedAt, UpdatedAt: w.UpdatedAt,
	}
	return nil
}

// Validate checks that an item's stream_id owner equals the item id's
// owner. Items reached through a local collection may reference a stream
// from any provider and are not validated here;
// that exemption is enforced by the caller (internal/store), which knows
// whether the read path is a direct stream listing or a collection walk.
func (it Item) Validate() error {
	itemOwner, err := it.ID.Owner()
	if err != nil {
		return err
	}
	streamOwner, err := it.StreamID.Owner()
	if err != nil {
		return err
	}
	if itemOwner != streamOwner {
		return &OwnerMismatchError{ID: string(it.ID), Owner: itemOwner, ProviderID: streamOwner}
	}
	return nil
}

// MergeTagsAndMetadata merges re-ingested tag/metadata values into the
// stored ones: incoming values win on key collision,
// but keys absent from incoming are preserved from existing.
func MergeTagsAndMetadata(existingTags, incomingTags []string, existingMeta, incomingMeta map[string]string) ([]string, map[string]string) {
	tagSet := make(map[string]struct{}, len(existingTags)+len(incomingTags))
	merged := make([]string, 0, len(existingTags)+len(incomingTags))
	for _, t := range existingTags {
		if _, ok := tagSet[t]; !ok {
			tagSet[t] = struct{}{}
			merged = append(merged, t)
		}
	}
	for _, t := range incomingTags {
		if _, ok := tagSet[t]; !ok {
			tagSet[t] = struct{}{}
			merged = append(merged, t)
		}
	}

	meta := make(map[string]string, len(existingMeta)+len(incomingMeta))
	for k, v := range existingMeta {
		meta[k] = v
	}
	for k, v := range incomingMeta {
		meta[k] = v
	}

	return merged, meta
}
