package domain

import (
	"fmt"
	"strings"
)

const (
	DefaultName         = "New Item"
	DefaultDescription  = "Description here."
	PastedDescription   = "New pasted item."
	PlaceholderImageURL = "https://placehold.co/800x800/png"
)

// Item is one entry of the showcase.
//
// The JSON shape is the persisted and exported document, so field names
// must stay stable across storage generations.
type Item struct {
	// ID is the creation timestamp in milliseconds. Unique, always > 0.
	ID int64 `json:"id" yaml:"id" jsonschema:"minimum=1"`

	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	// Image is either a URL or an embedded data URI.
	Image string `json:"image" yaml:"image"`

	Price         string `json:"price,omitempty" yaml:"price,omitempty"`
	SponsoredLink string `json:"sponsoredLink,omitempty" yaml:"sponsoredLink,omitempty"`

	// IsNew flags an item the owner just created. Never persisted.
	IsNew bool `json:"isNew,omitempty" yaml:"-" jsonschema:"-"`
}

// Persistable returns a copy safe to write to storage or export.
func (it Item) Persistable() Item {
	it.IsNew = false
	return it
}

// Validate reports whether the item can be stored.
func (it Item) Validate() error {
	if it.ID <= 0 {
		return fmt.Errorf("item id must be > 0, got %d", it.ID)
	}
	return nil
}

// Patch is a partial field edit. Nil fields are left untouched.
type Patch struct {
	Name          *string `json:"name,omitempty"`
	Description   *string `json:"description,omitempty"`
	Image         *string `json:"image,omitempty"`
	Price         *string `json:"price,omitempty"`
	SponsoredLink *string `json:"sponsoredLink,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Image == nil && p.Price == nil && p.SponsoredLink == nil
}

// Apply writes the non-nil fields onto it.
func (p Patch) Apply(it *Item) {
	if p.Name != nil {
		it.Name = *p.Name
	}
	if p.Description != nil {
		it.Description = *p.Description
	}
	if p.Image != nil {
		it.Image = *p.Image
	}
	if p.Price != nil {
		it.Price = strings.TrimSpace(*p.Price)
	}
	if p.SponsoredLink != nil {
		it.SponsoredLink = strings.TrimSpace(*p.SponsoredLink)
	}
}

// NewItem builds a fresh item with the placeholder fields.
func NewItem(id int64) Item {
	return Item{
		ID:          id,
		Name:        DefaultName,
		Description: DefaultDescription,
		Image:       PlaceholderImageURL,
		IsNew:       true,
	}
}

// Normalize drops items that cannot be stored, keeps the first of duplicated ids
// and strips the transient flag. The returned slice never aliases in.
func Normalize(in []Item) ([]Item, int) {
	out := make([]Item, 0, len(in))
	seen := make(map[int64]bool, len(in))
	dropped := 0
	for _, it := range in {
		if it.Validate() != nil || seen[it.ID] {
			dropped++
			continue
		}
		seen[it.ID] = true
		out = append(out, it.Persistable())
	}
	return out, dropped
}

// IDs returns the ids of items in order.
func IDs(items []Item) Order {
	ids := make(Order, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}
