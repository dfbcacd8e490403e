package generation

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/jordanlanch/contentforge/pkg/recovery"
)

var errNoCaptions = errors.New("no captions found in model output")

var listItem = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+(.+)$`)

// ParseCaptions extracts captions from model output.
// It tries JSON, then repaired JSON, then a numbered or bulleted list.
// Failure is tagged recovery.KindInvalidJSON.
func ParseCaptions(text string) ([]string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, recovery.Wrap(recovery.KindInvalidJSON, "parse captions", errNoCaptions)
	}

	if captions := decodeCaptions(text); len(captions) > 0 {
		return captions, nil
	}
	if repaired, ok := recovery.RepairJSON(text); ok {
		if captions := decodeCaptions(repaired); len(captions) > 0 {
			return captions, nil
		}
	}
	if captions := listCaptions(text); len(captions) > 0 {
		return captions, nil
	}
	return nil, recovery.Wrap(recovery.KindInvalidJSON, "parse captions", errNoCaptions)
}

func decodeCaptions(s string) []string {
	var items []json.RawMessage

	var wrapped struct {
		Captions []json.RawMessage `json:"captions"`
	}
	if err := json.Unmarshal([]byte(s), &wrapped); err == nil && len(wrapped.Captions) > 0 {
		items = wrapped.Captions
	} else if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil
	}

	out := make([]string, 0, len(items))
	for _, raw := range items {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			out = appendCaption(out, text)
			continue
		}
		var obj struct {
			Text    string `json:"text"`
			Caption string `json:"caption"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil {
			if obj.Caption != "" {
				out = appendCaption(out, obj.Caption)
			} else {
				out = appendCaption(out, obj.Text)
			}
		}
	}
	return out
}

func listCaptions(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if m := listItem.FindStringSubmatch(line); m != nil {
			out = appendCaption(out, m[1])
		}
	}
	return out
}

func appendCaption(out []string, caption string) []string {
	caption = strings.TrimSpace(caption)
	caption = strings.Trim(caption, `"“”`)
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return out
	}
	for _, existing := range out {
		if existing == caption {
			return out
		}
	}
	return append(out, caption)
}
