package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Content styles
const (
	StyleEducational   = "educational"
	StyleEntertaining  = "entertaining"
	StyleInspirational = "inspirational"
	StyleNews          = "news"
	StyleViral         = "viral"
)

// Video orientations
const (
	OrientationVertical   = "vertical"
	OrientationHorizontal = "horizontal"
)

// AI providers
const (
	ProviderOpenAI   = "openai"
	ProviderGrok     = "grok"
	ProviderDeepSeek = "deepseek"
)

// RecurringRule is a persisted recurring content configuration. It fires on the
// weekdays listed in Schedule, near ScheduleTime, at most once per calendar day.
type RecurringRule struct {
	ID               string                      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID   string                      `gorm:"not null;index" json:"organizationId"`
	Name             string                      `gorm:"not null;default:''" json:"name"`
	Active           bool                        `gorm:"not null;default:true;index" json:"active"`
	Topics           datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"topics"`
	IntegrationIDs   datatypes.JSONSlice[string] `gorm:"column:integration_ids;type:jsonb" json:"integrationIds"`
	Style            string                      `gorm:"not null;default:'viral'" json:"style"`
	VideoOrientation string                      `gorm:"not null;default:'vertical'" json:"videoOrientation"`
	AIProvider       string                      `gorm:"column:ai_provider;not null;default:'openai'" json:"aiProvider"`
	Schedule         datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"schedule"`   // weekday codes, e.g. ["MON","WED"]
	ScheduleTime     string                      `gorm:"not null" json:"scheduleTime"` // "HH:MM", 24h
	LastRunAt        *time.Time                  `json:"lastRunAt"`
	CreatedAt        time.Time                   `json:"createdAt"`
	UpdatedAt        time.Time                   `json:"updatedAt"`
	DeletedAt        gorm.DeletedAt              `gorm:"index" json:"-"`
}

// Provider returns the configured AI provider, defaulting to openai.
func (r *RecurringRule) Provider() string {
	if r.AIProvider == "" {
		return ProviderOpenAI
	}
	return r.AIProvider
}
