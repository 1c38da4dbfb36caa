package filter

import (
	"regexp"
	"unicode"
)

// Positive indicators reward substantive phrasing; negative indicators
// penalize hype slang. Each positive match is worth +0.1 (capped at
// +0.3), each negative match -0.15 (capped at -0.4).
var (
	positivePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(analysis|insight|research|data|trend)\b`),
		regexp.MustCompile(`(?i)\b(development|innovation|technology|adoption)\b`),
		regexp.MustCompile(`(?i)\b(community|ecosystem|partnership|collaboration)\b`),
	}

	negativePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(moon|lambo|diamond\s*hands|hodl)\b`),
		regexp.MustCompile(`(?i)\b(to\s*the\s*moon|when\s*moon)\b`),
		regexp.MustCompile(`!{3,}`),
		regexp.MustCompile(`(🚀){2,}`),
	}
)

// emojiRune reports whether r falls in the emoji blocks counted for
// the emoji-balance factor.
func emojiRune(r rune) bool {
	switch {
	case r >= 0x1F600 && r <= 0x1F64F: // emoticons
		return true
	case r >= 0x1F300 && r <= 0x1F5FF: // symbols & pictographs
		return true
	case r >= 0x1F680 && r <= 0x1F6FF: // transport & map
		return true
	case r >= 0x1F1E0 && r <= 0x1F1FF: // regional indicators
		return true
	}
	return false
}

// QualityScore computes the heuristic quality score for text, clamped
// to [0,1]. The factors and their weights follow the posting policy:
// a neutral post starts at 0.5 and earns or loses credit for length,
// indicator phrases, hashtag balance, emoji balance and shouting.
func QualityScore(text string) float64 {
	score := 0.5

	runes := []rune(text)
	length := len(runes)
	if length >= 80 && length <= 250 {
		score += 0.1
	} else if length < 50 || length > 280 {
		score -= 0.1
	}

	positive := 0
	for _, p := range positivePatterns {
		if p.MatchString(text) {
			positive++
		}
	}
	score += minFloat(float64(positive)*0.1, 0.3)

	negative := 0
	for _, p := range negativePatterns {
		if p.MatchString(text) {
			negative++
		}
	}
	score -= minFloat(float64(negative)*0.15, 0.4)

	hashtags := 0
	for _, r := range runes {
		if r == '#' {
			hashtags++
		}
	}
	if hashtags >= 2 && hashtags <= 4 {
		score += 0.1
	} else if hashtags > 6 {
		score -= 0.2
	}

	emojis := 0
	for _, r := range runes {
		if emojiRune(r) {
			emojis++
		}
	}
	if emojis >= 1 && emojis <= 3 {
		score += 0.05
	} else if emojis > 5 {
		score -= 0.1
	}

	if length > 0 {
		upper := 0
		for _, r := range runes {
			if unicode.IsUpper(r) {
				upper++
			}
		}
		if float64(upper)/float64(length) > 0.3 {
			score -= 0.2
		}
	}

	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0.0 {
		return 0.0
	}
	if v > 1.0 {
		return 1.0
	}
	return v
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
