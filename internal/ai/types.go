// Package ai generates content ideas through OpenAI-compatible chat completion
// providers.
package ai

import "errors"

// ContentIdea limits
const (
	MaxCaptionLength = 280
	MinHashtags      = 3
	MaxHashtags      = 5
)

// Response formats supported by providers
const (
	FormatJSONSchema = "json_schema"
	FormatJSONObject = "json_object"
)

var (
	// ErrUnknownProvider is returned when a rule names a provider missing from the catalog.
	ErrUnknownProvider = errors.New("unknown ai provider")
	// ErrMissingCredential is returned when a provider has no API key configured.
	ErrMissingCredential = errors.New("missing ai provider credential")
	// ErrSchemaMismatch is returned when the provider output does not match the ContentIdea schema.
	ErrSchemaMismatch = errors.New("response does not match content idea schema")
)

// ContentIdea is a generated content package for one post.
type ContentIdea struct {
	Topic       string   `json:"topic"`
	VideoPrompt string   `json:"videoPrompt"`
	PostCaption string   `json:"postCaption"`
	Hashtags    []string `json:"hashtags"`
}

// ProviderConfig is everything needed to call one AI provider.
type ProviderConfig struct {
	Name           string
	APIKey         string
	Model          string
	BaseURL        string
	Temperature    float64
	ResponseFormat string
}
