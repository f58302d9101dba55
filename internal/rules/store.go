// Package rules stores recurring content rules and exposes them over HTTP.
package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jimdaga/reelsip/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a rule does not exist for the organization.
var ErrNotFound = errors.New("recurring rule not found")

// Store persists recurring rules.
type Store struct {
	db *gorm.DB
}

// NewStore creates a new Store.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// ListActive returns every active rule across organizations.
func (s *Store) ListActive(ctx context.Context) ([]models.RecurringRule, error) {
	var list []models.RecurringRule
	if err := s.db.WithContext(ctx).Where("active = ?", true).Order("created_at asc").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list active rules: %w", err)
	}
	return list, nil
}

// MarkFired sets the rule's last run time. Setting the same time twice is harmless.
func (s *Store) MarkFired(ctx context.Context, id string, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&models.RecurringRule{}).Where("id = ?", id).Update("last_run_at", at)
	if result.Error != nil {
		return fmt.Errorf("failed to update last run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Find loads a rule by ID regardless of organization.
func (s *Store) Find(ctx context.Context, id string) (*models.RecurringRule, error) {
	var rule models.RecurringRule
	if err := s.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch rule: %w", err)
	}
	return &rule, nil
}

// List returns an organization's rules, newest first.
func (s *Store) List(ctx context.Context, organizationID string) ([]models.RecurringRule, error) {
	var list []models.RecurringRule
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at desc").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return list, nil
}

// Get loads one of an organization's rules.
func (s *Store) Get(ctx context.Context, id, organizationID string) (*models.RecurringRule, error) {
	var rule models.RecurringRule
	err := s.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rule: %w", err)
	}
	return &rule, nil
}

// Create stores a new rule for the organization and assigns its ID.
func (s *Store) Create(ctx context.Context, organizationID string, rule *models.RecurringRule) error {
	rule.ID = uuid.New().String()
	rule.OrganizationID = organizationID
	rule.LastRunAt = nil
	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// Update replaces the editable fields of an organization's rule. LastRunAt
// is left alone.
func (s *Store) Update(ctx context.Context, id, organizationID string, rule *models.RecurringRule) (*models.RecurringRule, error) {
	existing, err := s.Get(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"name":              rule.Name,
		"active":            rule.Active,
		"topics":            rule.Topics,
		"integration_ids":   rule.IntegrationIDs,
		"style":             rule.Style,
		"video_orientation": rule.VideoOrientation,
		"ai_provider":       rule.AIProvider,
		"schedule":          rule.Schedule,
		"schedule_time":     rule.ScheduleTime,
	}
	if err := s.db.WithContext(ctx).Model(existing).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	return s.Get(ctx, id, organizationID)
}

// SetActive turns an organization's rule on or off without touching any
// other field.
func (s *Store) SetActive(ctx context.Context, id, organizationID string, active bool) (*models.RecurringRule, error) {
	existing, err := s.Get(ctx, id, organizationID)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(existing).Update("active", active).Error; err != nil {
		return nil, fmt.Errorf("failed to toggle rule: %w", err)
	}
	return s.Get(ctx, id, organizationID)
}

// Delete soft-deletes an organization's rule.
func (s *Store) Delete(ctx context.Context, id, organizationID string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).Delete(&models.RecurringRule{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
