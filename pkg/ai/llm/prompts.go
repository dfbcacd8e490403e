package llm

import (
	"fmt"
	"strings"
)

// CaptionSystemPrompt instructs the model to answer with a JSON caption list
const CaptionSystemPrompt = `You write social media captions for small businesses.

Rules:
- Match the platform's conventions for length, tone and hashtags
- Never invent prices, discounts or claims that were not given
- Write in the requested language

Respond with JSON only, shaped exactly like:
{"captions": ["first caption", "second caption"]}`

// StrictJSONReminder is appended when a previous answer could not be parsed
const StrictJSONReminder = `Your previous answer was not valid JSON. Reply again with only the JSON object, no prose and no code fences.`

// CaptionPrompt holds the inputs of a caption prompt
type CaptionPrompt struct {
	Platform string
	Topic    string
	Tone     string
	Language string
	Count    int
	MediaURL string
	Keywords []string
}

// BuildCaptionPrompt renders the user prompt. Simplified prompts drop media and extras.
func BuildCaptionPrompt(p CaptionPrompt, simplified bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Write %d caption(s) for %s about: %s\n", p.Count, p.Platform, p.Topic)
	if p.Language != "" {
		fmt.Fprintf(&b, "Language: %s\n", p.Language)
	}
	if simplified {
		b.WriteString("Keep each caption under 150 characters.\n")
		return b.String()
	}

	if p.Tone != "" {
		fmt.Fprintf(&b, "Tone: %s\n", p.Tone)
	}
	if len(p.Keywords) > 0 {
		fmt.Fprintf(&b, "Work in these keywords: %s\n", strings.Join(p.Keywords, ", "))
	}
	if p.MediaURL != "" {
		fmt.Fprintf(&b, "Describe and reference the attached media: %s\n", p.MediaURL)
	}
	return b.String()
}
