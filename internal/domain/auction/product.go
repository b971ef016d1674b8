package auction

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bidwire/auction-exchange-backend/internal/domain/errors"
)

// maxTitleLength matches the products.title column width.
const maxTitleLength = 255

// Category classifies a product for catalog filtering.
type Category string

const (
	CategoryElectronics  Category = "ELECTRONICS"
	CategoryFashion      Category = "FASHION"
	CategoryHome         Category = "HOME"
	CategorySports       Category = "SPORTS"
	CategoryCollectibles Category = "COLLECTIBLES"
	CategoryVehicles     Category = "VEHICLES"
	CategoryOther        Category = "OTHER"
)

// String returns the string representation of Category
func (c Category) String() string {
	return string(c)
}

// IsValid checks if the category is one of the supported values
func (c Category) IsValid() bool {
	switch c {
	case CategoryElectronics, CategoryFashion, CategoryHome, CategorySports,
		CategoryCollectibles, CategoryVehicles, CategoryOther:
		return true
	default:
		return false
	}
}

// Condition grades the physical state of a product.
type Condition string

const (
	ConditionNew     Condition = "NEW"
	ConditionLikeNew Condition = "LIKE_NEW"
	ConditionGood    Condition = "GOOD"
	ConditionFair    Condition = "FAIR"
	ConditionPoor    Condition = "POOR"
)

// String returns the string representation of Condition
func (c Condition) String() string {
	return string(c)
}

// IsValid checks if the condition is one of the supported values
func (c Condition) IsValid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	default:
		return false
	}
}

// Product is the good being auctioned. Image handling lives in an external
// media service; only descriptive fields are kept here.
type Product struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	Condition   Condition `json:"condition"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewProduct creates a product with validation.
func NewProduct(ownerID uuid.UUID, title, description string, category Category, condition Condition) (*Product, error) {
	if ownerID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_OWNER", "product owner is required")
	}
	if err := validateProductFields(title, category, condition); err != nil {
		return nil, err
	}

	return &Product{
		ID:          uuid.New(),
		OwnerID:     ownerID,
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		Category:    category,
		Condition:   condition,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Update edits the descriptive fields, keeping the same validation as
// NewProduct.
func (p *Product) Update(title, description string, category Category, condition Condition) error {
	if err := validateProductFields(title, category, condition); err != nil {
		return err
	}
	p.Title = strings.TrimSpace(title)
	p.Description = strings.TrimSpace(description)
	p.Category = category
	p.Condition = condition
	return nil
}

func validateProductFields(title string, category Category, condition Condition) error {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return errors.NewValidationError("INVALID_TITLE", "product title cannot be empty")
	}
	if utf8.RuneCountInString(trimmed) > maxTitleLength {
		return errors.NewValidationError("INVALID_TITLE", "product title is too long")
	}
	if !category.IsValid() {
		return errors.NewValidationError("INVALID_CATEGORY", "unknown product category")
	}
	if !condition.IsValid() {
		return errors.NewValidationError("INVALID_CONDITION", "unknown product condition")
	}
	return nil
}
