package recurring

import (
	"fmt"
	"strings"

	"github.com/jimdaga/reelsip/internal/ai"
	"github.com/jimdaga/reelsip/internal/models"
)

var styleGuides = map[string]string{
	models.StyleEducational:   "Focus on teaching something valuable. Use clear explanations and actionable insights.",
	models.StyleEntertaining:  "Make it fun and engaging. Use humor, surprises, or interesting stories.",
	models.StyleInspirational: "Motivate and uplift. Share success stories, life lessons, or empowering messages.",
	models.StyleNews:          "Cover trending topics or recent events. Be informative and timely.",
	models.StyleViral:         "Create scroll-stopping, highly shareable content. Use trending formats, hooks, and emotional triggers.",
}

// StyleGuide returns the writing guidance for a content style. Unknown styles
// get the viral guidance.
func StyleGuide(style string) string {
	if guide, ok := styleGuides[style]; ok {
		return guide
	}
	return styleGuides[models.StyleViral]
}

// BuildIdeaPrompt renders the idea generation prompt for a rule.
func BuildIdeaPrompt(rule models.RecurringRule) string {
	style := rule.Style
	if _, ok := styleGuides[style]; !ok {
		style = models.StyleViral
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a viral content creator. Generate a %s content idea.\n\n", style)
	fmt.Fprintf(&b, "**Topics to explore**: %s\n\n", strings.Join(rule.Topics, ", "))
	fmt.Fprintf(&b, "**Style Guide**: %s\n\n", StyleGuide(style))
	b.WriteString("**Requirements**:\n")
	b.WriteString("- Create engaging, scroll-stopping content\n")
	b.WriteString("- Video prompt should be detailed and cinematic\n")
	b.WriteString("- Caption should hook viewers in the first line\n")
	b.WriteString("- Use trending formats and storytelling techniques\n\n")
	b.WriteString("Generate a complete content package with:\n")
	b.WriteString("1. A specific topic/angle\n")
	b.WriteString("2. Detailed video prompt (describe scenes, mood, camera angles, style)\n")
	fmt.Fprintf(&b, "3. Engaging social media caption (max %d characters)\n", ai.MaxCaptionLength)
	fmt.Fprintf(&b, "4. %d-%d relevant hashtags", ai.MinHashtags, ai.MaxHashtags)
	return b.String()
}

// FormatCaption joins the caption and the hashtags, separated by a blank
// line. Hashtags are prefixed with '#' when missing.
func FormatCaption(idea ai.ContentIdea) string {
	tags := make([]string, 0, len(idea.Hashtags))
	for _, tag := range idea.Hashtags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if !strings.HasPrefix(tag, "#") {
			tag = "#" + tag
		}
		tags = append(tags, tag)
	}
	return idea.PostCaption + "\n\n" + strings.Join(tags, " ")
}
