package analysis

import (
	"fmt"
	"regexp"
	"strings"

	"codetutor/internal/types"
)

var (
	reFunction = regexp.MustCompile(`function\s+\w+|func\s+\w+|def\s+\w+`)
	reClass    = regexp.MustCompile(`class\s+\w+|struct\s*\{`)
	reIf       = regexp.MustCompile(`\bif\s*\(?`)
	reLoop     = regexp.MustCompile(`\b(for|while)\s*\(?`)
)

// tokenTier maps a code size and structural complexity to a response budget.
type tokenTier struct {
	maxLines      int
	maxComplexity int
	tokens        int
}

var tokenTiers = []tokenTier{
	{5, 1, 1000},
	{15, 5, 2000},
	{40, 15, 4000},
	{80, 30, 8000},
	{150, 60, 16000},
	{300, 120, 24000},
}

const largestTier = 40000

// MaxTokensFor returns the completion budget for code, capped at limit when
// limit is positive.
func MaxTokensFor(code string, limit int) int {
	lines := 0
	for _, l := range strings.Split(code, "\n") {
		if strings.TrimSpace(l) != "" {
			lines++
		}
	}
	complexity := len(reFunction.FindAllStringIndex(code, -1))*3 +
		len(reClass.FindAllStringIndex(code, -1))*5 +
		len(reIf.FindAllStringIndex(code, -1)) +
		len(reLoop.FindAllStringIndex(code, -1))

	tokens := largestTier
	for _, tier := range tokenTiers {
		if lines <= tier.maxLines && complexity <= tier.maxComplexity {
			tokens = tier.tokens
			break
		}
	}
	if limit > 0 && tokens > limit {
		return limit
	}
	return tokens
}

const systemPrompt = "You are a patient programming teacher. Answer in plain Markdown without emoji. " +
	"Use second-level headings (##) for each major section."

var levelInstructions = map[types.ExplanationLevel]string{
	types.LevelBeginner: `Explain the following %s code to someone who has never programmed before.
Define every technical term in everyday words, walk through the code line by line,
show what happens when it runs with a concrete input and output, list common mistakes,
and end with what to learn next.`,
	types.LevelIntermediate: `Explain the following %s code to a learner who knows the basics.
Cover its purpose and overall structure, the main control flow, the patterns and
practices it uses, points to watch out for, and related advanced concepts.`,
	types.LevelAdvanced: `Analyze the following %s code for an experienced engineer.
Cover architecture and design patterns, performance and scalability, security concerns,
code quality and maintainability, and concrete improvement proposals with alternatives.`,
}

const testsInstruction = `Write unit tests for the following %s code at a %s level of detail.
Use the language's standard testing tools, cover the normal path, edge cases and error
handling, and explain under a ## heading what each group of tests verifies.`

// BuildPrompt renders the user message for a request.
func BuildPrompt(code, language string, level types.ExplanationLevel, mode types.AnalysisMode) string {
	var instruction string
	if mode == types.ModeTests {
		instruction = fmt.Sprintf(testsInstruction, language, level)
	} else {
		instruction = fmt.Sprintf(levelInstructions[level], language)
	}

	return fmt.Sprintf("%s\n\nCode:\n```%s\n%s\n```\n\nRespond with Markdown text, not JSON.", instruction, language, code)
}
