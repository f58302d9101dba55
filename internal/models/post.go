package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Post states
const (
	PostStateQueue     = "QUEUE"
	PostStatePublished = "PUBLISHED"
	PostStateError     = "ERROR"
)

// Integration is a social channel connected by an organization.
type Integration struct {
	ID                 string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID     string         `gorm:"not null;index" json:"organizationId"`
	Name               string         `gorm:"not null;default:''" json:"name"`
	ProviderIdentifier string         `gorm:"column:provider_identifier;not null" json:"providerIdentifier"` // e.g. "tiktok", "youtube"
	Disabled           bool           `gorm:"not null;default:false" json:"disabled"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// Media is a stored asset owned by an organization.
type Media struct {
	ID             string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID string         `gorm:"not null;index" json:"organizationId"`
	Name           string         `gorm:"not null;default:''" json:"name"`
	Path           string         `gorm:"type:text;not null" json:"path"`
	Kind           string         `gorm:"not null;default:'video'" json:"kind"`
	CreatedAt      time.Time      `json:"createdAt"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName overrides the pluralized default.
func (Media) TableName() string { return "media" }

// MediaRef is the media reference embedded in a post.
type MediaRef struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Path           string `json:"path"`
	OrganizationID string `json:"organizationId"`
}

// Post is one scheduled post for a single integration. Posts created together
// share a Group.
type Post struct {
	ID             string                        `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OrganizationID string                        `gorm:"not null;index:idx_posts_org_publish" json:"organizationId"`
	IntegrationID  string                        `gorm:"not null;index" json:"integrationId"`
	Group          string                        `gorm:"column:group_id;not null;index" json:"group"`
	Content        string                        `gorm:"type:text;not null" json:"content"`
	Media          datatypes.JSONSlice[MediaRef] `gorm:"type:jsonb" json:"media"`
	Settings       datatypes.JSON                `gorm:"type:jsonb" json:"settings"`
	PublishDate    time.Time                     `gorm:"not null;index:idx_posts_org_publish" json:"publishDate"`
	State          string                        `gorm:"not null;default:'QUEUE'" json:"state"`
	SourceRuleID   *string                       `gorm:"column:source_rule_id;index" json:"sourceRuleId,omitempty"`
	CreatedAt      time.Time                     `json:"createdAt"`
	UpdatedAt      time.Time                     `json:"updatedAt"`
	DeletedAt      gorm.DeletedAt                `gorm:"index" json:"-"`
}
