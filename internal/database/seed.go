package database

import (
	"errors"
	"log/slog"

	"github.com/jimdaga/reelsip/internal/models"
	"gorm.io/gorm"
)

// Development fixture identifiers
const (
	DevOrganizationID = "dev-org"
	devIntegrationID  = "00000000-0000-0000-0000-000000000001"
	devRuleID         = "00000000-0000-0000-0000-000000000002"
)

// SeedDevData populates the database with one organization's integration and
// a recurring rule that fires every weekday morning.
// Idempotent: skips if data already exists.
func SeedDevData(db *gorm.DB) error {
	var existing models.RecurringRule
	err := db.Where("id = ?", devRuleID).First(&existing).Error
	if err == nil {
		slog.Info("Seed data already exists, skipping")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		integration := models.Integration{
			ID:                 devIntegrationID,
			OrganizationID:     DevOrganizationID,
			Name:               "Dev TikTok",
			ProviderIdentifier: "tiktok",
		}
		if err := tx.Create(&integration).Error; err != nil {
			return err
		}

		rule := models.RecurringRule{
			ID:               devRuleID,
			OrganizationID:   DevOrganizationID,
			Name:             "Weekday tech tips",
			Active:           true,
			Topics:           []string{"golang", "developer productivity", "open source"},
			IntegrationIDs:   []string{devIntegrationID},
			Style:            models.StyleEducational,
			VideoOrientation: models.OrientationVertical,
			AIProvider:       models.ProviderOpenAI,
			Schedule:         []string{"MON", "TUE", "WED", "THU", "FRI"},
			ScheduleTime:     "09:00",
		}
		if err := tx.Create(&rule).Error; err != nil {
			return err
		}

		slog.Info("Seeded dev data", "organization_id", DevOrganizationID, "integrations", 1, "rules", 1)
		return nil
	})
}
