package analysis

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"codetutor/internal/types"
)

const (
	maxSummaryRunes = 200
	maxKeyConcepts  = 5
)

var (
	reFence      = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\\n?(.*?)```")
	reInlineCode = regexp.MustCompile("`([^`]+)`")
	reHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	reBold       = regexp.MustCompile(`\*\*([^*]+)\*\*|__([^_]+)__`)
	reItalic     = regexp.MustCompile(`\*([^*]+)\*`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	reRule       = regexp.MustCompile(`(?m)^[-*]{3,}\s*$`)
	reBullet     = regexp.MustCompile(`(?m)^[-*]\s+`)
	reQuote      = regexp.MustCompile(`(?m)^>\s?`)
	reH2         = regexp.MustCompile(`(?m)^##\s+(.+)$`)
)

// Parsed is the structured form of a model response.
type Parsed struct {
	Content         string
	Summary         string
	KeyConcepts     []string
	ComplexityScore int
}

// StripMarkdown reduces Markdown to readable plain text. Fenced code keeps
// its body.
func StripMarkdown(s string) string {
	s = reFence.ReplaceAllString(s, "$1")
	s = reInlineCode.ReplaceAllString(s, "$1")
	s = reRule.ReplaceAllString(s, "")
	s = reHeading.ReplaceAllString(s, "")
	s = reBullet.ReplaceAllString(s, "")
	s = reBold.ReplaceAllString(s, "$1$2")
	s = reItalic.ReplaceAllString(s, "$1")
	s = reLink.ReplaceAllString(s, "$1")
	s = reQuote.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// ParseResponse extracts the summary, key concepts and a 1..10 complexity
// score from a model response.
func ParseResponse(response string, level types.ExplanationLevel) Parsed {
	plain := StripMarkdown(response)

	summary := "Code explanation"
	for _, line := range strings.Split(plain, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			summary = truncateRunes(line, maxSummaryRunes)
			break
		}
	}

	var concepts []string
	for _, m := range reH2.FindAllStringSubmatch(response, -1) {
		c := strings.TrimSpace(strings.Trim(m[1], "*_# "))
		if c == "" {
			continue
		}
		concepts = append(concepts, c)
		if len(concepts) == maxKeyConcepts {
			break
		}
	}

	score := min(10, max(1, utf8.RuneCountInString(plain)/1000+len(concepts)))

	if len(concepts) == 0 {
		concepts = []string{"Programming", fallbackConcept(level)}
	}

	return Parsed{
		Content:         plain,
		Summary:         summary,
		KeyConcepts:     concepts,
		ComplexityScore: score,
	}
}

func fallbackConcept(level types.ExplanationLevel) string {
	switch level {
	case types.LevelIntermediate:
		return "Applied techniques"
	case types.LevelAdvanced:
		return "Professional practice"
	default:
		return "Fundamentals"
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
