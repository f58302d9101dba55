package ai

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kaptinlin/jsonschema"
)

// wireSchema is sent to providers with structured output support. Length and
// count limits are left out because not every provider accepts them; they
// are enforced locally by ideaSchema.
var wireSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"topic":       map[string]interface{}{"type": "string", "description": "The main topic or theme for the content"},
		"videoPrompt": map[string]interface{}{"type": "string", "description": "Detailed prompt for video generation (describe visuals, mood, style)"},
		"postCaption": map[string]interface{}{"type": "string", "description": "Engaging social media caption (max 280 chars)"},
		"hashtags": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "3-5 relevant hashtags",
		},
	},
	"required":             []string{"topic", "videoPrompt", "postCaption", "hashtags"},
	"additionalProperties": false,
}

var ideaSchema = fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "topic":       {"type": "string", "minLength": 1},
    "videoPrompt": {"type": "string", "minLength": 1},
    "postCaption": {"type": "string", "minLength": 1, "maxLength": %d},
    "hashtags": {
      "type": "array",
      "items": {"type": "string", "minLength": 1},
      "minItems": %d,
      "maxItems": %d
    }
  },
  "required": ["topic", "videoPrompt", "postCaption", "hashtags"]
}`, MaxCaptionLength, MinHashtags, MaxHashtags)

var compileIdeaSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return jsonschema.NewCompiler().Compile([]byte(ideaSchema))
})

// ParseIdea decodes raw provider output into a ContentIdea, rejecting
// anything that does not satisfy the ContentIdea schema.
func ParseIdea(raw string) (*ContentIdea, error) {
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty response", ErrSchemaMismatch)
	}

	var instance map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	schema, err := compileIdeaSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile content idea schema: %w", err)
	}

	result := schema.Validate(instance)
	if !result.IsValid() {
		var messages []string
		for field, evalErr := range result.Errors {
			messages = append(messages, fmt.Sprintf("%s: %s", field, evalErr.Error()))
		}
		sort.Strings(messages)
		return nil, fmt.Errorf("%w: %s", ErrSchemaMismatch, strings.Join(messages, "; "))
	}

	var idea ContentIdea
	if err := json.Unmarshal([]byte(trimmed), &idea); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return &idea, nil
}
