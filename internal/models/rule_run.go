package models

import (
	"time"

	"gorm.io/gorm"
)

// RuleRun status constants
const (
	RuleRunStatusCompleted = "completed"
	RuleRunStatusFailed    = "failed"
	RuleRunStatusSkipped   = "skipped"
)

// RuleRun records one attempt to fire a recurring rule.
type RuleRun struct {
	gorm.Model
	RunID          string     `gorm:"uniqueIndex;not null"`
	RuleID         string     `gorm:"not null;index"`
	OrganizationID string     `gorm:"not null;index"`
	Status         string     `gorm:"not null;index"`
	Step           string     `gorm:"not null;default:''"`
	ErrorKind      string     `gorm:"column:error_kind;not null;default:''"`
	ErrorMessage   string     `gorm:"column:error_message;type:text"`
	PostGroup      string     `gorm:"column:post_group;not null;default:''"`
	StartedAt      *time.Time `gorm:"column:started_at"`
	CompletedAt    *time.Time `gorm:"column:completed_at"`
}
