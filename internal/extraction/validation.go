package extraction

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dvloznov/finance-reconciler/internal/domain"
)

// CategoryValidator validates extracted categories against the ledger's
// categories. Reserved categories are never assignable by extraction.
type CategoryValidator struct {
	byKey map[string]string // normalized ID or name -> category ID
	names []string
}

// NewCategoryValidator creates a validator from the category list.
func NewCategoryValidator(categories []domain.Category) *CategoryValidator {
	v := &CategoryValidator{byKey: make(map[string]string)}
	for _, c := range categories {
		if c.Reserved || c.ID == domain.AdjustmentCategoryID {
			continue
		}
		v.byKey[normalizeCategory(c.ID)] = c.ID
		if c.Name != "" {
			v.byKey[normalizeCategory(c.Name)] = c.ID
			v.names = append(v.names, c.Name)
		}
	}
	sort.Strings(v.names)
	return v
}

// ValidateCategory checks if a category is known.
// Returns nil if valid, error if invalid.
func (v *CategoryValidator) ValidateCategory(category string) error {
	if _, ok := v.byKey[normalizeCategory(category)]; !ok {
		return fmt.Errorf("invalid category: %q (normalized: %q). Valid categories: %v",
			category, normalizeCategory(category), v.names)
	}
	return nil
}

// Normalize returns the ID of the matching category, or Uncategorized.
func (v *CategoryValidator) Normalize(category string) string {
	if id, ok := v.byKey[normalizeCategory(category)]; ok {
		return id
	}
	return domain.UncategorizedName
}

// Names lists the assignable category names.
func (v *CategoryValidator) Names() []string {
	return v.names
}

// normalizeCategory normalizes a category name for comparison.
// Converts to uppercase and trims whitespace for case-insensitive comparison.
func normalizeCategory(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
