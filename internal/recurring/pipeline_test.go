package recurring_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jimdaga/reelsip/internal/ai"
	"github.com/jimdaga/reelsip/internal/database/dbtest"
	"github.com/jimdaga/reelsip/internal/integrations"
	"github.com/jimdaga/reelsip/internal/models"
	"github.com/jimdaga/reelsip/internal/posts"
	"github.com/jimdaga/reelsip/internal/recurring"
	"github.com/jimdaga/reelsip/internal/rules"
	"github.com/jimdaga/reelsip/internal/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type cannedIdeas struct{}

func (cannedIdeas) GenerateIdea(ctx context.Context, prompt string, cfg ai.ProviderConfig) (*ai.ContentIdea, error) {
	return &ai.ContentIdea{
		Topic:       "cats",
		VideoPrompt: "a cat astronaut floating in space",
		PostCaption: "One small step for cat.",
		Hashtags:    []string{"cats", "#space", "viral"},
	}, nil
}

func setup(t *testing.T, now time.Time) (*gorm.DB, *recurring.Cycle) {
	t.Helper()
	db := dbtest.New(t)

	catalog, err := ai.LoadCatalog("")
	require.NoError(t, err)
	scheduler, err := posts.NewScheduler(db, []string{"09:00", "13:00", "18:00"})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orchestrator := recurring.NewOrchestrator(recurring.OrchestratorDeps{
		Resolver:     ai.NewResolver(catalog, map[string]string{"openai": "sk-test"}),
		Ideas:        cannedIdeas{},
		Videos:       video.NewClient("", "", 0, db, true),
		Integrations: integrations.NewRegistry(db),
		Posts:        scheduler.WithClock(func() time.Time { return now }),
		Logger:       logger,
	})
	cycle := recurring.NewCycle(recurring.CycleConfig{
		Store:     rules.NewStore(db),
		Processor: orchestrator,
		Logger:    logger,
		Location:  time.UTC,
		Clock:     func() time.Time { return now },
	})
	return db, cycle
}

func seedRule(t *testing.T, db *gorm.DB, id string, integrationIDs ...string) {
	t.Helper()
	require.NoError(t, db.Create(&models.RecurringRule{
		ID:               id,
		OrganizationID:   "org-1",
		Name:             id,
		Active:           true,
		Topics:           datatypes.NewJSONSlice([]string{"cats"}),
		IntegrationIDs:   datatypes.NewJSONSlice(integrationIDs),
		Style:            models.StyleViral,
		VideoOrientation: models.OrientationVertical,
		AIProvider:       models.ProviderOpenAI,
		Schedule:         datatypes.NewJSONSlice([]string{"MON"}),
		ScheduleTime:     "10:00",
	}).Error)
}

func TestCycle_EndToEnd(t *testing.T) {
	// Monday 10:15 UTC
	now := time.Date(2026, 3, 2, 10, 15, 0, 0, time.UTC)
	db, cycle := setup(t, now)

	require.NoError(t, db.Create(&models.Integration{ID: "int-1", OrganizationID: "org-1", ProviderIdentifier: "tiktok"}).Error)
	seedRule(t, db, "drifted", "int-removed")
	seedRule(t, db, "cats", "int-1")

	summary, err := cycle.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Due)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Failed)

	var created []models.Post
	require.NoError(t, db.Find(&created).Error)
	require.Len(t, created, 1)
	post := created[0]
	assert.Equal(t, "int-1", post.IntegrationID)
	assert.Equal(t, "One small step for cat.\n\n#cats #space #viral", post.Content)
	assert.True(t, time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC).Equal(post.PublishDate))
	require.Len(t, post.Media, 1)
	require.NotNil(t, post.SourceRuleID)
	assert.Equal(t, "cats", *post.SourceRuleID)

	var media models.Media
	require.NoError(t, db.First(&media, "id = ?", post.Media[0].ID).Error)
	assert.Equal(t, post.Media[0].Path, media.Path)

	var fired, drifted models.RecurringRule
	require.NoError(t, db.First(&fired, "id = ?", "cats").Error)
	require.NotNil(t, fired.LastRunAt)
	assert.True(t, now.Equal(*fired.LastRunAt))

	require.NoError(t, db.First(&drifted, "id = ?", "drifted").Error)
	assert.Nil(t, drifted.LastRunAt)
}
