// Package posts schedules social posts into an organization's publishing slots.
package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jimdaga/reelsip/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// searchDays bounds how far ahead NextFreeSlot looks for an empty slot.
const searchDays = 30

// ErrNoSubPosts is returned when a scheduled post has nothing to publish.
var ErrNoSubPosts = errors.New("scheduled post has no sub-posts")

// SubPost is the content published to one integration.
type SubPost struct {
	IntegrationID      string
	ProviderIdentifier string
	Content            string
	Media              []models.MediaRef
	SourceRuleID       string
}

// Scheduler finds free publishing slots and stores scheduled posts.
type Scheduler struct {
	db    *gorm.DB
	slots []int // minutes after midnight UTC, ascending
	now   func() time.Time
}

// NewScheduler creates a Scheduler with daily slots given as "HH:MM" (UTC).
func NewScheduler(db *gorm.DB, slots []string) (*Scheduler, error) {
	if len(slots) == 0 {
		return nil, fmt.Errorf("at least one posting slot is required")
	}
	minutes := make([]int, 0, len(slots))
	seen := make(map[int]bool, len(slots))
	for _, slot := range slots {
		t, err := time.Parse("15:04", slot)
		if err != nil {
			return nil, fmt.Errorf("invalid posting slot %q: %w", slot, err)
		}
		m := t.Hour()*60 + t.Minute()
		if !seen[m] {
			seen[m] = true
			minutes = append(minutes, m)
		}
	}
	sort.Ints(minutes)
	return &Scheduler{db: db, slots: minutes, now: time.Now}, nil
}

// WithClock replaces the scheduler's time source.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// NextFreeSlot returns the first slot after now that holds no post for the
// organization. If every slot in the search window is taken it returns one
// hour from now.
func (s *Scheduler) NextFreeSlot(ctx context.Context, organizationID string) (time.Time, error) {
	now := s.now().UTC()
	horizon := now.AddDate(0, 0, searchDays+1)

	var taken []time.Time
	if err := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("organization_id = ? AND publish_date > ? AND publish_date <= ?", organizationID, now, horizon).
		Pluck("publish_date", &taken).Error; err != nil {
		return time.Time{}, fmt.Errorf("failed to load scheduled posts: %w", err)
	}
	busy := make(map[int64]bool, len(taken))
	for _, t := range taken {
		busy[t.UTC().Unix()] = true
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for day := 0; day <= searchDays; day++ {
		date := midnight.AddDate(0, 0, day)
		for _, minute := range s.slots {
			candidate := date.Add(time.Duration(minute) * time.Minute)
			if !candidate.After(now) || busy[candidate.Unix()] {
				continue
			}
			return candidate, nil
		}
	}
	return now.Add(time.Hour).Truncate(time.Minute), nil
}

// CreateScheduledPost stores one post per sub-post, all sharing a group, in a
// single transaction. It returns the group ID.
func (s *Scheduler) CreateScheduledPost(ctx context.Context, organizationID string, publishAt time.Time, subPosts []SubPost) (string, error) {
	if len(subPosts) == 0 {
		return "", ErrNoSubPosts
	}

	group := uuid.New().String()
	rows := make([]models.Post, 0, len(subPosts))
	for _, sp := range subPosts {
		settings, err := json.Marshal(map[string]interface{}{
			"__type": sp.ProviderIdentifier,
			"title":  "",
			"tags":   []string{},
		})
		if err != nil {
			return "", fmt.Errorf("failed to marshal post settings: %w", err)
		}
		post := models.Post{
			ID:             uuid.New().String(),
			OrganizationID: organizationID,
			IntegrationID:  sp.IntegrationID,
			Group:          group,
			Content:        sp.Content,
			Media:          datatypes.NewJSONSlice(sp.Media),
			Settings:       datatypes.JSON(settings),
			PublishDate:    publishAt.UTC(),
			State:          models.PostStateQueue,
		}
		if sp.SourceRuleID != "" {
			ruleID := sp.SourceRuleID
			post.SourceRuleID = &ruleID
		}
		rows = append(rows, post)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&rows).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to create scheduled post: %w", err)
	}
	return group, nil
}
