// Package ordering maintains the "order" sort key of sibling categories within a menu
// and sibling items within a category.
//
// Order is a flat mutable integer. Gaps are tolerated and nothing is renumbered; clients
// recompute the full sequence after a drag-and-drop and submit it in one batch.
// Concurrent batches on the same sibling set are last-write-wins.
package ordering

import (
	"context"

	"github.com/google/uuid"

	"github.com/menuqr/backend/internal/apperr"
)

// Kind tags which entity table an ordering operation targets.
type Kind string

const (
	KindCategory Kind = "category"
	KindItem     Kind = "item"
)

// SiblingSet is all categories under one menu or all items under one category.
type SiblingSet struct {
	Kind     Kind
	ParentID uuid.UUID
}

// Categories returns the sibling set of categories in a menu.
func Categories(menuID uuid.UUID) SiblingSet {
	return SiblingSet{Kind: KindCategory, ParentID: menuID}
}

// Items returns the sibling set of items in a category.
func Items(categoryID uuid.UUID) SiblingSet {
	return SiblingSet{Kind: KindItem, ParentID: categoryID}
}

// Entry assigns Order to the entity of the given Kind and ID. The parent is the
// SiblingSet the batch is applied to.
type Entry struct {
	Kind  Kind
	ID    uuid.UUID
	Order int
}

// Store persists ordering changes.
type Store interface {
	// MaxOrder returns the greatest order in the set; ok is false when the set is empty.
	MaxOrder(ctx context.Context, set SiblingSet) (max int, ok bool, err error)
	// ApplyOrder writes every entry in one transaction. For item sets it also sets
	// category_id to set.ParentID. Any id that cannot be updated aborts the batch with apperr.ErrNotFound.
	ApplyOrder(ctx context.Context, set SiblingSet, entries []Entry) error
	// MoveItem sets both the parent category and the order of an item in one statement.
	MoveItem(ctx context.Context, itemID, categoryID uuid.UUID, order int) error
}

// Engine computes and applies sibling orders.
type Engine struct {
	store Store
}

// NewEngine creates an ordering engine.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// NextOrder returns the append position for a new sibling: max existing order + 1, or 0 for an empty set.
func (e *Engine) NextOrder(ctx context.Context, set SiblingSet) (int, error) {
	top, ok, err := e.store.MaxOrder(ctx, set)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return top + 1, nil
}

// Resolve returns explicit verbatim when provided, otherwise the append position.
// Collisions with existing siblings are not checked.
func (e *Engine) Resolve(ctx context.Context, set SiblingSet, explicit *int) (int, error) {
	if explicit != nil {
		if *explicit < 0 {
			return 0, apperr.Validation("order must not be negative")
		}
		return *explicit, nil
	}
	return e.NextOrder(ctx, set)
}

// Apply reassigns orders in bulk. The caller must already have authorized set.ParentID
// and every entity the batch touches.
func (e *Engine) Apply(ctx context.Context, set SiblingSet, entries []Entry) error {
	if err := Validate(set, entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	return e.store.ApplyOrder(ctx, set, entries)
}

// Move puts an item under categoryID with an explicit order or the destination's append position.
// It does not check that the destination shares the item's menu.
func (e *Engine) Move(ctx context.Context, itemID, categoryID uuid.UUID, explicit *int) (int, error) {
	order, err := e.Resolve(ctx, Items(categoryID), explicit)
	if err != nil {
		return 0, err
	}
	if err := e.store.MoveItem(ctx, itemID, categoryID, order); err != nil {
		return 0, err
	}
	return order, nil
}

// Validate rejects batches with a foreign kind, a nil id, a negative order or a repeated id.
func Validate(set SiblingSet, entries []Entry) error {
	if set.Kind != KindCategory && set.Kind != KindItem {
		return apperr.Validation("unknown sibling kind %q", set.Kind)
	}
	seen := make(map[uuid.UUID]struct{}, len(entries))
	for _, en := range entries {
		if en.Kind != set.Kind {
			return apperr.Validation("%s %s cannot be ordered among %ss", en.Kind, en.ID, set.Kind)
		}
		if en.ID == uuid.Nil {
			return apperr.Validation("%s id is required", en.Kind)
		}
		if en.Order < 0 {
			return apperr.Validation("order must not be negative")
		}
		if _, dup := seen[en.ID]; dup {
			return apperr.Validation("%s %s listed more than once", en.Kind, en.ID)
		}
		seen[en.ID] = struct{}{}
	}
	return nil
}
