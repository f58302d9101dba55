// Package integrations looks up the social channels connected by an organization.
package integrations

import (
	"context"
	"fmt"

	"github.com/jimdaga/reelsip/internal/models"
	"gorm.io/gorm"
)

// Registry reads integrations from the database.
type Registry struct {
	db *gorm.DB
}

// NewRegistry creates a new Registry.
func NewRegistry(db *gorm.DB) *Registry {
	return &Registry{db: db}
}

// List returns the organization's integrations that are not deleted, ordered by creation.
func (r *Registry) List(ctx context.Context, organizationID string) ([]models.Integration, error) {
	var list []models.Integration
	if err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at asc").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	return list, nil
}

// Select keeps the integrations whose ID is in ids, in the registry's order.
// Disabled integrations are never selected.
func Select(all []models.Integration, ids []string) []models.Integration {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var selected []models.Integration
	for _, integration := range all {
		if integration.Disabled {
			continue
		}
		if _, ok := wanted[integration.ID]; ok {
			selected = append(selected, integration)
		}
	}
	return selected
}
