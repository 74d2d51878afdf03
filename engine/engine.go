// Package engine implements the configurator logic on top of the store:
// option resolution, typecode checking and decoding, constraint
// validation, derived-group inference and bulk node filtering. Engines
// hold no state of their own; every call works against the shared store
// and honours its context.
package engine

import (
	"gorm.io/datatypes"

	"github.com/oxhq/varix/models"
	"github.com/oxhq/varix/store"
)

// PictureFilter post-processes picture lists before they leave the
// engine, typically dropping entries whose files no longer exist in the
// upload store.
type PictureFilter func([]models.Picture) []models.Picture

// Engine evaluates configurator queries against a backing store.
type Engine struct {
	store         *store.Store
	pictureFilter PictureFilter
}

// New wires an engine to its store. filter may be nil to keep every
// stored picture.
func New(st *store.Store, filter PictureFilter) *Engine {
	return &Engine{store: st, pictureFilter: filter}
}

// presentPictures decodes a node's pictures column and applies the
// configured filter.
func (e *Engine) presentPictures(raw datatypes.JSON) []models.Picture {
	pics := store.DecodePictures(raw)
	if e.pictureFilter == nil {
		return pics
	}
	return e.pictureFilter(pics)
}

// Selection is one prior pick of the configurator: the chosen code at a
// level plus the ids of every node carrying that code on a path that is
// still open. An absent id set marks the selection as unusable; the
// engine skips it rather than guessing ids from the code.
type Selection struct {
	Level int    `json:"level"`
	Code  string `json:"code"`
	ID    *uint  `json:"id,omitempty"`
	IDs   []uint `json:"ids,omitempty"`
}

// idSet resolves the ids a selection pins: the explicit set, the single
// id as a one-element set, or nil.
func (s Selection) idSet() []uint {
	if len(s.IDs) > 0 {
		return s.IDs
	}
	if s.ID != nil {
		return []uint{*s.ID}
	}
	return nil
}

// familyCode finds the level-0 selection naming the active family.
func familyCode(selections []Selection) (string, bool) {
	for _, sel := range selections {
		if sel.Level == 0 {
			return sel.Code, true
		}
	}
	return "", false
}

func ptr[T any](v T) *T {
	return &v
}

// optString maps "" to nil so empty DB strings surface as absent fields.
func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
