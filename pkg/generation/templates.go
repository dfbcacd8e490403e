package generation

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Platform is a social network captions are written for
type Platform string

const (
	PlatformInstagram Platform = "instagram"
	PlatformTikTok    Platform = "tiktok"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTwitter   Platform = "twitter"
	PlatformFacebook  Platform = "facebook"
)

// templates are used when the model cannot produce usable captions.
// Each entry takes the topic and a hashtag built from it.
var templates = map[Platform][]string{
	PlatformInstagram: {
		"%s ✨ Tap the link in bio to learn more. %s",
		"Say hello to %s. Save this post for later! %s",
		"Everything you need to know about %s, in one scroll. %s",
	},
	PlatformTikTok: {
		"POV: you just discovered %s %s",
		"Wait for it... %s 👀 %s",
		"%s in 15 seconds %s",
	},
	PlatformLinkedIn: {
		"%s: what it means for your business. Share your thoughts below. %s",
		"We have been working on %s. Here is what we learned. %s",
		"Three takeaways on %s worth your attention. %s",
	},
	PlatformTwitter: {
		"%s. Thoughts? %s",
		"Quick take on %s 🧵 %s",
		"%s is here. %s",
	},
	PlatformFacebook: {
		"We're excited to share %s with you! Tell us what you think in the comments. %s",
		"Have you heard about %s? Learn more on our page. %s",
		"%s is here for our community. %s",
	},
}

var spanishTemplates = []string{
	"Descubre %s. ¡Cuéntanos qué opinas! %s",
	"Todo lo que necesitas saber sobre %s. %s",
	"%s ya está aquí. %s",
}

// FallbackCaptions returns count template captions for platform and topic
func FallbackCaptions(platform Platform, topic string, lang language.Tag, count int) []string {
	set, ok := templates[platform]
	if !ok {
		set = templates[PlatformInstagram]
	}
	if base, _ := lang.Base(); base.String() == "es" {
		set = spanishTemplates
	}
	if count <= 0 {
		count = 1
	}
	if count > len(set) {
		count = len(set)
	}

	topic = strings.TrimSpace(topic)
	subject := topic
	if platform == PlatformLinkedIn {
		subject = cases.Title(lang).String(topic)
	}
	tag := hashtag(topic, lang)

	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		caption := fmt.Sprintf(set[i], subject, tag)
		out = append(out, strings.TrimSpace(caption))
	}
	return out
}

// hashtag turns "summer coffee menu" into "#SummerCoffeeMenu"
func hashtag(topic string, lang language.Tag) string {
	title := cases.Title(lang)
	var b strings.Builder
	for _, word := range strings.Fields(topic) {
		word = strings.Map(func(r rune) rune {
			if r == '#' || r == '.' || r == ',' || r == '!' || r == '?' || r == '\'' || r == '"' {
				return -1
			}
			return r
		}, word)
		b.WriteString(title.String(word))
		if b.Len() > 40 {
			break
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "#" + b.String()
}
