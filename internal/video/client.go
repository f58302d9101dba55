// Package video generates short videos through the KIE Veo 3 API and stores
// them as organization media.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jimdaga/reelsip/internal/models"
	"gorm.io/gorm"
)

// Task states reported by record-info
const (
	flagGenerating = 0
	flagSuccess    = 1
)

// ErrGenerationFailed is returned when the provider reports a failed task.
var ErrGenerationFailed = errors.New("video generation failed")

// Asset is a generated video stored for an organization.
type Asset struct {
	ID             string
	Path           string
	OrganizationID string
}

// Client submits video generation tasks and waits for their result.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	pollInterval time.Duration
	httpClient   *http.Client
	db           *gorm.DB
	stubMode     bool
}

// NewClient creates a new video client. db receives one Media row per
// generated video.
func NewClient(baseURL, apiKey string, pollInterval time.Duration, db *gorm.DB, stubMode bool) *Client {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		model:        "veo3_fast",
		pollInterval: pollInterval,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		db:           db,
		stubMode:     stubMode,
	}
}

// Configured reports whether the client has the credentials it needs.
func (c *Client) Configured() bool {
	return c.stubMode || c.apiKey != ""
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type recordInfo struct {
	TaskID       string `json:"taskId"`
	SuccessFlag  int    `json:"successFlag"`
	ErrorMessage string `json:"errorMessage"`
	Response     struct {
		ResultURLs []string `json:"resultUrls"`
	} `json:"response"`
}

// Generate creates a video from prompt in the given orientation
// ("vertical" or "horizontal") and blocks until it is ready or ctx ends.
func (c *Client) Generate(ctx context.Context, organizationID, prompt, orientation string) (*Asset, error) {
	var videoURL string
	if c.stubMode {
		videoURL = "https://cdn.example.com/stub/" + uuid.New().String() + ".mp4"
	} else {
		taskID, err := c.submit(ctx, prompt, orientation)
		if err != nil {
			return nil, err
		}
		videoURL, err = c.wait(ctx, taskID)
		if err != nil {
			return nil, err
		}
	}

	media := models.Media{
		ID:             uuid.New().String(),
		OrganizationID: organizationID,
		Name:           "veo3-" + time.Now().UTC().Format("20060102-150405") + ".mp4",
		Path:           videoURL,
		Kind:           "video",
	}
	if err := c.db.WithContext(ctx).Create(&media).Error; err != nil {
		return nil, fmt.Errorf("failed to save media: %w", err)
	}

	return &Asset{ID: media.ID, Path: media.Path, OrganizationID: organizationID}, nil
}

// AspectRatio maps an orientation to the provider's aspect ratio.
func AspectRatio(orientation string) string {
	if orientation == models.OrientationHorizontal {
		return "16:9"
	}
	return "9:16"
}

func (c *Client) submit(ctx context.Context, prompt, orientation string) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"prompt":      prompt,
		"model":       c.model,
		"aspectRatio": AspectRatio(orientation),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/veo/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var data struct {
		TaskID string `json:"taskId"`
	}
	if err := c.do(req, &data); err != nil {
		return "", err
	}
	if data.TaskID == "" {
		return "", fmt.Errorf("%w: no task id returned", ErrGenerationFailed)
	}
	return data.TaskID, nil
}

func (c *Client) wait(ctx context.Context, taskID string) (string, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		info, err := c.status(ctx, taskID)
		if err != nil {
			return "", err
		}
		switch info.SuccessFlag {
		case flagSuccess:
			if len(info.Response.ResultURLs) == 0 {
				return "", fmt.Errorf("%w: task %s returned no video", ErrGenerationFailed, taskID)
			}
			return info.Response.ResultURLs[0], nil
		case flagGenerating:
		default:
			return "", fmt.Errorf("%w: task %s: %s", ErrGenerationFailed, taskID, info.ErrorMessage)
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for video task %s: %w", taskID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (c *Client) status(ctx context.Context, taskID string) (*recordInfo, error) {
	endpoint := c.baseURL + "/api/v1/veo/record-info?taskId=" + url.QueryEscape(taskID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	var info recordInfo
	if err := c.do(req, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("video provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if env.Code != http.StatusOK {
		return fmt.Errorf("%w: provider code %d: %s", ErrGenerationFailed, env.Code, env.Msg)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode response data: %w", err)
	}
	return nil
}
