package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jimdaga/reelsip/internal/ai"
	"github.com/jimdaga/reelsip/internal/integrations"
	"github.com/jimdaga/reelsip/internal/metrics"
	"github.com/jimdaga/reelsip/internal/models"
	"github.com/jimdaga/reelsip/internal/posts"
	"github.com/jimdaga/reelsip/internal/video"
)

// ProviderResolver maps an AI provider name to its call configuration.
type ProviderResolver interface {
	Resolve(provider string) (ai.ProviderConfig, error)
}

// IdeaGenerator produces a content idea from a prompt.
type IdeaGenerator interface {
	GenerateIdea(ctx context.Context, prompt string, cfg ai.ProviderConfig) (*ai.ContentIdea, error)
}

// VideoGenerator produces a video asset for an organization.
type VideoGenerator interface {
	Configured() bool
	Generate(ctx context.Context, organizationID, prompt, orientation string) (*video.Asset, error)
}

// IntegrationLister lists an organization's integrations.
type IntegrationLister interface {
	List(ctx context.Context, organizationID string) ([]models.Integration, error)
}

// PostScheduler finds a publishing slot and stores scheduled posts.
type PostScheduler interface {
	NextFreeSlot(ctx context.Context, organizationID string) (time.Time, error)
	CreateScheduledPost(ctx context.Context, organizationID string, publishAt time.Time, subPosts []posts.SubPost) (string, error)
}

// Result describes a successfully processed rule.
type Result struct {
	Topic     string
	VideoID   string
	PostGroup string
	PublishAt time.Time
	Channels  int
}

// OrchestratorDeps are the collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Resolver     ProviderResolver
	Ideas        IdeaGenerator
	Videos       VideoGenerator
	Integrations IntegrationLister
	Posts        PostScheduler
	Logger       *slog.Logger

	// StepTimeout bounds the idea and publish steps, VideoTimeout the video step.
	StepTimeout  time.Duration
	VideoTimeout time.Duration
}

// Orchestrator turns one due rule into a scheduled post: idea, video,
// caption, publish. Steps run strictly in order and are never retried.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.StepTimeout <= 0 {
		deps.StepTimeout = 2 * time.Minute
	}
	if deps.VideoTimeout <= 0 {
		deps.VideoTimeout = 15 * time.Minute
	}
	return &Orchestrator{deps: deps}
}

// Process runs the pipeline for rule. It returns ErrSkipped when the rule's
// preconditions are not met, and a *StepError when a step fails.
func (o *Orchestrator) Process(ctx context.Context, rule models.RecurringRule) (*Result, error) {
	logger := o.deps.Logger.With("rule_id", rule.ID, "organization_id", rule.OrganizationID)

	if !rule.Active {
		logger.Info("Skipping inactive rule")
		return nil, fmt.Errorf("%w: rule is not active", ErrSkipped)
	}
	if !o.deps.Videos.Configured() {
		logger.Warn("Skipping rule: video provider credentials are not configured")
		return nil, fmt.Errorf("%w: video provider not configured", ErrSkipped)
	}

	// Idea generation
	providerCfg, err := o.deps.Resolver.Resolve(rule.Provider())
	if err != nil {
		return nil, &StepError{RuleID: rule.ID, Step: StepIdea, Kind: KindConfiguration, Err: err}
	}
	var idea *ai.ContentIdea
	err = o.step(ctx, rule.ID, StepIdea, KindProvider, o.deps.StepTimeout, func(ctx context.Context) error {
		var err error
		idea, err = o.deps.Ideas.GenerateIdea(ctx, BuildIdeaPrompt(rule), providerCfg)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Generated content idea", "provider", providerCfg.Name, "topic", idea.Topic)

	// Video generation
	var asset *video.Asset
	err = o.step(ctx, rule.ID, StepVideo, KindProvider, o.deps.VideoTimeout, func(ctx context.Context) error {
		var err error
		asset, err = o.deps.Videos.Generate(ctx, rule.OrganizationID, idea.VideoPrompt, rule.VideoOrientation)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("Generated video", "media_id", asset.ID, "path", asset.Path)

	caption := FormatCaption(*idea)

	// Publish scheduling
	result := &Result{Topic: idea.Topic, VideoID: asset.ID}
	err = o.step(ctx, rule.ID, StepPublish, KindTransient, o.deps.StepTimeout, func(ctx context.Context) error {
		return o.publish(ctx, rule, caption, asset, result)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(
		"Scheduled recurring content post",
		"post_group", result.PostGroup,
		"publish_at", result.PublishAt,
		"channels", result.Channels,
	)
	return result, nil
}

func (o *Orchestrator) publish(ctx context.Context, rule models.RecurringRule, caption string, asset *video.Asset, result *Result) error {
	all, err := o.deps.Integrations.List(ctx, rule.OrganizationID)
	if err != nil {
		return err
	}
	selected := integrations.Select(all, rule.IntegrationIDs)
	if len(selected) == 0 {
		return &StepError{RuleID: rule.ID, Step: StepPublish, Kind: KindConfiguration, Err: ErrNoIntegrations}
	}

	slot, err := o.deps.Posts.NextFreeSlot(ctx, rule.OrganizationID)
	if err != nil {
		return err
	}

	media := []models.MediaRef{{
		ID:             asset.ID,
		Name:           asset.ID,
		Path:           asset.Path,
		OrganizationID: rule.OrganizationID,
	}}
	subPosts := make([]posts.SubPost, 0, len(selected))
	for _, integration := range selected {
		subPosts = append(subPosts, posts.SubPost{
			IntegrationID:      integration.ID,
			ProviderIdentifier: integration.ProviderIdentifier,
			Content:            caption,
			Media:              media,
			SourceRuleID:       rule.ID,
		})
	}

	group, err := o.deps.Posts.CreateScheduledPost(ctx, rule.OrganizationID, slot, subPosts)
	if err != nil {
		return err
	}

	result.PostGroup = group
	result.PublishAt = slot
	result.Channels = len(subPosts)
	return nil
}

// step runs fn under its own timeout and wraps any failure in a StepError.
func (o *Orchestrator) step(ctx context.Context, ruleID, name, defaultKind string, timeout time.Duration, fn func(context.Context) error) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(stepCtx)
	metrics.ObserveStep(name, err, time.Since(start))
	if err == nil {
		return nil
	}

	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return err
	}
	return &StepError{RuleID: ruleID, Step: name, Kind: classify(err, defaultKind), Err: err}
}
