package rules

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jimdaga/reelsip/internal/models"
	"github.com/jimdaga/reelsip/internal/recurring"
	"github.com/jimdaga/reelsip/internal/tenant"
	"gorm.io/datatypes"
)

// RunEnqueuer queues an immediate run of a rule.
type RunEnqueuer interface {
	EnqueueRunRule(ruleID string) error
}

type integrationRef struct {
	ID string `json:"id" binding:"required"`
}

// ruleRequest is the body of create and update requests.
type ruleRequest struct {
	Name             string           `json:"name" binding:"required"`
	Active           *bool            `json:"active" binding:"required"`
	Topics           []string         `json:"topics" binding:"required,min=1,dive,required"`
	Integrations     []integrationRef `json:"integrations" binding:"dive"`
	Style            string           `json:"style" binding:"required,oneof=educational entertaining inspirational news viral"`
	VideoOrientation string           `json:"videoOrientation" binding:"required,oneof=vertical horizontal"`
	AIProvider       string           `json:"aiProvider" binding:"omitempty,oneof=openai grok deepseek"`
	Schedule         string           `json:"schedule" binding:"required"` // e.g. "MON,WED,FRI"
	ScheduleTime     string           `json:"scheduleTime" binding:"required"`
}

type toggleRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// toRule converts the request into a rule, normalizing the schedule.
func (r ruleRequest) toRule() (*models.RecurringRule, error) {
	var days []string
	for _, code := range strings.Split(r.Schedule, ",") {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			days = append(days, code)
		}
	}
	if _, err := recurring.ParseSchedule(days); err != nil {
		return nil, err
	}
	if _, err := recurring.ParseScheduleTime(r.ScheduleTime); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(r.Integrations))
	for _, ref := range r.Integrations {
		ids = append(ids, ref.ID)
	}
	provider := r.AIProvider
	if provider == "" {
		provider = models.ProviderOpenAI
	}

	return &models.RecurringRule{
		Name:             r.Name,
		Active:           *r.Active,
		Topics:           datatypes.NewJSONSlice(r.Topics),
		IntegrationIDs:   datatypes.NewJSONSlice(ids),
		Style:            r.Style,
		VideoOrientation: r.VideoOrientation,
		AIProvider:       provider,
		Schedule:         datatypes.NewJSONSlice(days),
		ScheduleTime:     strings.TrimSpace(r.ScheduleTime),
	}, nil
}

// RegisterRoutes mounts the recurring content API on group.
func RegisterRoutes(group *gin.RouterGroup, store *Store, enqueuer RunEnqueuer, logger *slog.Logger) {
	group.Use(tenant.RequireOrganization())
	group.GET("", ListHandler(store))
	group.GET("/:id", GetHandler(store))
	group.POST("", CreateHandler(store))
	group.PUT("/:id", UpdateHandler(store))
	group.DELETE("/:id", DeleteHandler(store))
	group.POST("/:id/toggle", ToggleHandler(store))
	group.POST("/:id/run", RunHandler(store, enqueuer, logger))
}

// ListHandler returns the organization's rules
func ListHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := store.List(c.Request.Context(), tenant.OrganizationID(c))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rules"})
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

// GetHandler returns a single rule
func GetHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, err := store.Get(c.Request.Context(), c.Param("id"), tenant.OrganizationID(c))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

// CreateHandler creates a rule from the request body
func CreateHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, ok := bindRule(c)
		if !ok {
			return
		}
		if err := store.Create(c.Request.Context(), tenant.OrganizationID(c), rule); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create rule"})
			return
		}
		c.JSON(http.StatusCreated, rule)
	}
}

// UpdateHandler replaces a rule's configuration
func UpdateHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, ok := bindRule(c)
		if !ok {
			return
		}
		updated, err := store.Update(c.Request.Context(), c.Param("id"), tenant.OrganizationID(c), rule)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

// DeleteHandler removes a rule
func DeleteHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := store.Delete(c.Request.Context(), c.Param("id"), tenant.OrganizationID(c)); err != nil {
			writeStoreError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ToggleHandler sets a rule's active flag
func ToggleHandler(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req toggleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		rule, err := store.SetActive(c.Request.Context(), c.Param("id"), tenant.OrganizationID(c), *req.Active)
		if err != nil {
			writeStoreError(c, err)
			return
		}
		c.JSON(http.StatusOK, rule)
	}
}

// RunHandler queues an immediate run of a rule, ignoring its schedule
func RunHandler(store *Store, enqueuer RunEnqueuer, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, err := store.Get(c.Request.Context(), c.Param("id"), tenant.OrganizationID(c))
		if err != nil {
			writeStoreError(c, err)
			return
		}
		if enqueuer == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task queue not configured"})
			return
		}
		if err := enqueuer.EnqueueRunRule(rule.ID); err != nil {
			logger.Error("Failed to enqueue rule run", "rule_id", rule.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue run"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "id": rule.ID})
	}
}

func bindRule(c *gin.Context) (*models.RecurringRule, bool) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	rule, err := req.toRule()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return rule, true
}

func writeStoreError(c *gin.Context, err error) {
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "recurring rule not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
