package generate

import "strings"

// emoji rune ranges counted by the scorer.
var emojiRanges = [][2]rune{
	{0x1F600, 0x1F64F},
	{0x1F300, 0x1F5FF},
	{0x1F680, 0x1F6FF},
	{0x1F1E0, 0x1F1FF},
}

func countEmoji(text string) int {
	count := 0
	for _, r := range text {
		for _, rng := range emojiRanges {
			if r >= rng[0] && r <= rng[1] {
				count++
				break
			}
		}
	}
	return count
}

// bareHook strips the emoji and colon from a hook, leaving the word
// the scorer searches for.
func bareHook(hook string) string {
	var b strings.Builder
	for _, r := range hook {
		if r == ':' || r > 0x2000 {
			continue
		}
		b.WriteRune(r)
	}
	return strings.ToLower(strings.TrimSpace(b.String()))
}

var urgencyWords = []string{"breaking", "huge", "massive", "incredible", "shocking", "urgent", "now", "today"}
var opinionIndicators = []string{"unpopular opinion", "hot take", "controversial", "disagree", "wrong"}
var ctaPhrases = []string{"?", "thoughts?", "what do you think", "change my mind"}

// EstimateEngagement predicts an engagement score in [0,1] from
// content characteristics: hook presence, emoji, call-to-action,
// urgency words, hashtag relevance, length band and opinion framing.
func EstimateEngagement(text string, hashtags []string, topics []string) float64 {
	score := 0.0
	lower := strings.ToLower(text)

	for _, hook := range engagementHooks {
		if bare := bareHook(hook); bare != "" && strings.Contains(lower, bare) {
			score += 0.2
			break
		}
	}

	emoji := float64(countEmoji(text)) * 0.05
	if emoji > 0.15 {
		emoji = 0.15
	}
	score += emoji

	for _, phrase := range ctaPhrases {
		if strings.Contains(lower, phrase) {
			score += 0.15
			break
		}
	}

	for _, word := range urgencyWords {
		if strings.Contains(lower, word) {
			score += 0.1
			break
		}
	}

	if len(hashtags) > 0 {
		relevant := 0
		for _, tag := range hashtags {
			tagLower := strings.ToLower(tag)
			for _, topic := range topics {
				if strings.Contains(tagLower, strings.ToLower(topic)) {
					relevant++
					break
				}
			}
		}
		tagScore := float64(relevant) * 0.1
		if tagScore > 0.2 {
			tagScore = 0.2
		}
		score += tagScore
	}

	length := len(text)
	switch {
	case length >= 100 && length <= 200:
		score += 0.1
	case length >= 80 && length <= 250:
		score += 0.05
	}

	for _, indicator := range opinionIndicators {
		if strings.Contains(lower, indicator) {
			score += 0.1
			break
		}
	}

	if score > 1.0 {
		score = 1.0
	}
	return score
}
