package entities

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

// Type is the level of an entity in the funnel hierarchy.
type Type string

const (
	Funnel   Type = "funnel"
	Campaign Type = "campaign"
	AdSet    Type = "ad_set"
	Creative Type = "creative"
)

// parentOf maps each level to the level it must be attached to.
var parentOf = map[Type]Type{
	Campaign: Funnel,
	AdSet:    Campaign,
	Creative: AdSet,
}

// ParseType accepts the canonical names plus a few url-friendly spellings.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "funnel", "funnels":
		return Funnel, nil
	case "campaign", "campaigns":
		return Campaign, nil
	case "ad_set", "ad-set", "adset", "ad_sets", "ad-sets", "adsets":
		return AdSet, nil
	case "creative", "creatives":
		return Creative, nil
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// ChildType returns the level directly below t, if any.
func (t Type) ChildType() (Type, bool) {
	for child, parent := range parentOf {
		if parent == t {
			return child, true
		}
	}
	return "", false
}

// ErrNotFound is matched by every *NotFoundError.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidParent is returned when an entity is attached to the wrong level.
var ErrInvalidParent = errors.New("invalid parent")

// ErrNotLeaf is returned when metrics are submitted to an entity with
// children. Only the lowest level of a branch holds records.
var ErrNotLeaf = errors.New("entity has children")

// NotFoundError represents an error when an entity is not found
type NotFoundError struct {
	Ref Ref
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Ref.Type, e.Ref.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Ref identifies an entity by level and id.
type Ref struct {
	Type Type `json:"type"`
	ID   uint `json:"id"`
}

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Type, r.ID)
}

// ParseRef parses the "type:id" form produced by String.
func ParseRef(s string) (Ref, error) {
	typ, rawID, ok := strings.Cut(s, ":")
	if !ok {
		return Ref{}, fmt.Errorf("entity %q must look like type:id", s)
	}
	t, err := ParseType(typ)
	if err != nil {
		return Ref{}, err
	}
	id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 64)
	if err != nil || id == 0 {
		return Ref{}, fmt.Errorf("invalid entity id %q", rawID)
	}
	return Ref{Type: t, ID: uint(id)}, nil
}

// Entity is a funnel, campaign, ad set or creative.
type Entity struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Type      Type      `gorm:"not null;index" json:"type"`
	ParentID  *uint     `gorm:"index" json:"parent_id,omitempty"`
	Name      string    `gorm:"not null" json:"name"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli" json:"created_at"`
}

// Ref returns the entity's reference.
func (e Entity) Ref() Ref {
	return Ref{Type: e.Type, ID: e.ID}
}

// Create inserts a new entity. Funnels take no parent; every other level
// must be attached to an existing entity of the level above.
func Create(db *gorm.DB, entityType Type, parentID *uint, name string) (*Entity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%s name is required", entityType)
	}

	wantParent, needsParent := parentOf[entityType]
	switch {
	case entityType == Funnel:
		if parentID != nil {
			return nil, fmt.Errorf("%w: funnels cannot have a parent", ErrInvalidParent)
		}
	case !needsParent:
		return nil, fmt.Errorf("unknown entity type %q", entityType)
	case parentID == nil:
		return nil, fmt.Errorf("%w: %s requires a %s parent", ErrInvalidParent, entityType, wantParent)
	}

	if needsParent {
		parent, err := Get(db, Ref{Type: wantParent, ID: *parentID})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidParent, err)
			}
			return nil, err
		}
		parentID = &parent.ID
	}

	entity := &Entity{Type: entityType, ParentID: parentID, Name: name}
	err := sqlite.PerformWrite(slog.Default(), db, func(tx *gorm.DB) error {
		return tx.Create(entity).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", entityType, err)
	}
	return entity, nil
}

// Get loads an entity, checking that its level matches ref.
func Get(db *gorm.DB, ref Ref) (*Entity, error) {
	var entity Entity
	err := db.Where("id = ? AND type = ?", ref.ID, ref.Type).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Ref: ref}
		}
		return nil, fmt.Errorf("unexpected error querying %s: %w", ref, err)
	}
	return &entity, nil
}

// ListFunnels returns every funnel in creation order.
func ListFunnels(db *gorm.DB) ([]Entity, error) {
	var funnels []Entity
	if err := db.Where("type = ?", Funnel).Order("id ASC").Find(&funnels).Error; err != nil {
		return nil, fmt.Errorf("failed to list funnels: %w", err)
	}
	return funnels, nil
}

// Children returns the direct children of ref in creation order.
func Children(db *gorm.DB, ref Ref) ([]Entity, error) {
	var children []Entity
	err := db.Where("parent_id = ?", ref.ID).Order("id ASC").Find(&children).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", ref, err)
	}
	return children, nil
}

// Directory reads the hierarchy for the rollup aggregator.
type Directory struct {
	DB *gorm.DB
}

// NewDirectory wraps db.
func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{DB: db}
}

// Entity loads a single entity.
func (d *Directory) Entity(ctx context.Context, ref Ref) (*Entity, error) {
	return Get(d.DB.WithContext(ctx), ref)
}

// ListChildren returns the direct children of ref in creation order.
func (d *Directory) ListChildren(ctx context.Context, ref Ref) ([]Entity, error) {
	return Children(d.DB.WithContext(ctx), ref)
}
