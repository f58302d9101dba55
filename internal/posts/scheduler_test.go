package posts

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jimdaga/reelsip/internal/database/dbtest"
	"github.com/jimdaga/reelsip/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newScheduler(t *testing.T, db *gorm.DB, now time.Time) *Scheduler {
	t.Helper()
	s, err := NewScheduler(db, []string{"18:00", "09:00", "13:00", "09:00"})
	require.NoError(t, err)
	s.now = func() time.Time { return now }
	return s
}

func TestNewScheduler_InvalidSlot(t *testing.T) {
	_, err := NewScheduler(nil, []string{"25:00"})
	assert.Error(t, err)

	_, err = NewScheduler(nil, nil)
	assert.Error(t, err)
}

func TestNextFreeSlot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)

	t.Run("first slot after now", func(t *testing.T) {
		s := newScheduler(t, dbtest.New(t), now)
		slot, err := s.NextFreeSlot(ctx, "org-1")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC), slot)
	})

	t.Run("skips taken slots of the same organization", func(t *testing.T) {
		db := dbtest.New(t)
		require.NoError(t, db.Create(&[]models.Post{
			{ID: "p1", OrganizationID: "org-1", IntegrationID: "i", Group: "g", Content: "c", PublishDate: time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)},
			{ID: "p2", OrganizationID: "org-2", IntegrationID: "i", Group: "g", Content: "c", PublishDate: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)},
		}).Error)

		slot, err := newScheduler(t, db, now).NextFreeSlot(ctx, "org-1")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC), slot)
	})

	t.Run("rolls over to the next day", func(t *testing.T) {
		late := time.Date(2026, 3, 2, 19, 0, 0, 0, time.UTC)
		slot, err := newScheduler(t, dbtest.New(t), late).NextFreeSlot(ctx, "org-1")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, time.UTC), slot)
	})
}

func TestCreateScheduledPost(t *testing.T) {
	db := dbtest.New(t)
	s := newScheduler(t, db, time.Now())
	publishAt := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC)
	media := []models.MediaRef{{ID: "m1", Name: "m1", Path: "https://cdn/v.mp4", OrganizationID: "org-1"}}

	group, err := s.CreateScheduledPost(context.Background(), "org-1", publishAt, []SubPost{
		{IntegrationID: "i-1", ProviderIdentifier: "tiktok", Content: "hello", Media: media, SourceRuleID: "rule-1"},
		{IntegrationID: "i-2", ProviderIdentifier: "youtube", Content: "hello", Media: media, SourceRuleID: "rule-1"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, group)

	var rows []models.Post
	require.NoError(t, db.Where("group_id = ?", group).Order("integration_id").Find(&rows).Error)
	require.Len(t, rows, 2)
	for _, row := range rows {
		assert.Equal(t, "hello", row.Content)
		assert.Equal(t, models.PostStateQueue, row.State)
		assert.True(t, publishAt.Equal(row.PublishDate))
		require.NotNil(t, row.SourceRuleID)
		assert.Equal(t, "rule-1", *row.SourceRuleID)
		require.Len(t, row.Media, 1)
		assert.Equal(t, "m1", row.Media[0].ID)
	}

	var settings map[string]interface{}
	require.NoError(t, json.Unmarshal(rows[0].Settings, &settings))
	assert.Equal(t, "tiktok", settings["__type"])
}

func TestCreateScheduledPost_Empty(t *testing.T) {
	s := newScheduler(t, dbtest.New(t), time.Now())
	_, err := s.CreateScheduledPost(context.Background(), "org-1", time.Now(), nil)
	assert.ErrorIs(t, err, ErrNoSubPosts)
}
