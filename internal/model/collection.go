package model

// Collection is a named, ordered container of item ids. Collections created
// by a provider mirror an upstream collection verbatim (order is part of
// the observable contract); collections created by the "local" owner
// are mutated directly through collections.create/add_item/remove_item.
type Collection struct {
	ID          CollectionID `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Icon        string       `json:"icon,omitempty"`
	ItemCount   int          `json:"item_count"`
	IsEditable  bool         `json:"is_editable"`
	Owner       string       `json:"owner,omitempty"`
}
