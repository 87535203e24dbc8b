package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ParameterType selects the SSM parameter type a step is written as.
type ParameterType int

const (
	ParamSecureString ParameterType = iota
	ParamString
)

// BootstrapStep is one parameter in the inventory.
type BootstrapStep struct {
	HumanLabel string

	// SSMCategoryKey is appended to /{env}/codetutor/.
	SSMCategoryKey string

	ParamType ParameterType
	Prompt    string

	// ValidateFn may be nil, in which case any non-empty input is accepted.
	ValidateFn func(ctx context.Context, input string) ValidationResult

	// IsSecret masks the input on a terminal.
	IsSecret bool

	// Optional steps are skipped on empty input, or always with SkipOptional.
	Optional bool

	Phase string
}

const maxRetries = 5

var errSkipped = errors.New("parameter skipped by operator")

// BuildInventory returns the parameters in the order they are collected.
func BuildInventory(v *Validator) []BootstrapStep {
	return []BootstrapStep{
		{
			HumanLabel:     "Supabase Project URL",
			SSMCategoryKey: "supabase/url",
			ParamType:      ParamString,
			Prompt: `1. Open the Supabase project dashboard.
   2. Go to Settings > API.
   3. Paste the Project URL (https://<ref>.supabase.co):`,
			ValidateFn: v.ValidateSupabaseURL,
			Phase:      "Supabase",
		},
		{
			HumanLabel:     "Supabase Anon Key",
			SSMCategoryKey: "supabase/anon_key",
			ParamType:      ParamSecureString,
			Prompt:         `Paste the anon public key from the same page:`,
			ValidateFn:     v.ValidateSupabaseKey,
			IsSecret:       true,
			Phase:          "Supabase",
		},
		{
			HumanLabel:     "Supabase JWT Secret",
			SSMCategoryKey: "supabase/jwt_secret",
			ParamType:      ParamSecureString,
			Prompt:         `Under JWT Settings, reveal and paste the JWT Secret:`,
			ValidateFn:     v.ValidateJWTSecret,
			IsSecret:       true,
			Phase:          "Supabase",
		},
		{
			HumanLabel:     "Database URL",
			SSMCategoryKey: "database/url",
			ParamType:      ParamSecureString,
			Prompt: `1. Go to Settings > Database.
   2. Copy the pooled connection string and fill in the password.
   3. Paste the full postgres://... string here:`,
			ValidateFn: v.ValidateDatabaseURL,
			IsSecret:   true,
			Phase:      "Supabase",
		},
		{
			HumanLabel:     "Anthropic API Key",
			SSMCategoryKey: "anthropic/api_key",
			ParamType:      ParamSecureString,
			Prompt: `1. Go to console.anthropic.com > API Keys.
   2. Create a key for this environment and paste it (sk-ant-...):`,
			ValidateFn: v.ValidateAnthropicKey,
			IsSecret:   true,
			Phase:      "Anthropic",
		},
		{
			HumanLabel:     "Redis URL (optional)",
			SSMCategoryKey: "redis/url",
			ParamType:      ParamSecureString,
			Prompt: `Without Redis, rate limits and usage counters are kept per instance.
   Paste the redis:// or rediss:// URL (or press Enter to skip):`,
			ValidateFn: v.ValidateRedisURL,
			IsSecret:   true,
			Optional:   true,
			Phase:      "Optional Services",
		},
		{
			HumanLabel:     "Plan Policies (optional)",
			SSMCategoryKey: "quota/plan_policies",
			ParamType:      ParamString,
			Prompt: `Paste a JSON array of plan policies to override the built-in limits
   (or press Enter to keep the defaults):`,
			ValidateFn: v.ValidatePlanPolicies,
			Optional:   true,
			Phase:      "Optional Services",
		},
	}
}

// BootstrapRunner walks the inventory: probe SSM, prompt, validate, write.
type BootstrapRunner struct {
	SSM       *SSMManager
	Validator *Validator
	Stdin     io.Reader
	Stderr    io.Writer

	// SkipOptional skips every Optional step without prompting.
	SkipOptional bool

	// scanner is shared so buffered read-ahead is not lost between prompts.
	scanner *bufio.Scanner

	// inventoryOverride replaces BuildInventory when set.
	inventoryOverride []BootstrapStep
}

// NewBootstrapRunner creates a BootstrapRunner with production dependencies.
func NewBootstrapRunner(bctx *BootstrapContext) *BootstrapRunner {
	return &BootstrapRunner{
		SSM:       NewSSMManager(bctx),
		Validator: NewValidator(),
		Stdin:     os.Stdin,
		Stderr:    os.Stderr,
	}
}

func (r *BootstrapRunner) inventory() []BootstrapStep {
	if r.inventoryOverride != nil {
		return r.inventoryOverride
	}
	return BuildInventory(r.Validator)
}

// Run processes every step in order and prints a summary. The first step
// error aborts the run; parameters already written stay written.
func (r *BootstrapRunner) Run(ctx context.Context) error {
	inventory := r.inventory()

	var currentPhase string
	results := make([]stepResult, 0, len(inventory))

	for i, step := range inventory {
		if step.Phase != currentPhase {
			currentPhase = step.Phase
			r.printPhaseHeader(currentPhase)
		}

		fmt.Fprintf(r.Stderr, "\n[%d/%d] %s\n", i+1, len(inventory), step.HumanLabel)

		result, err := r.processStep(ctx, step)
		if err != nil {
			return fmt.Errorf("step %q failed: %w", step.HumanLabel, err)
		}
		results = append(results, result)
	}

	r.printSummary(results)
	return nil
}

const (
	actionWritten     = "written"
	actionOverwritten = "overwritten"
	actionSkipped     = "skipped"
)

type stepResult struct {
	Label  string
	Action string
	Path   string
}

func (r *BootstrapRunner) processStep(ctx context.Context, step BootstrapStep) (stepResult, error) {
	path := r.SSM.SSMPath(step.SSMCategoryKey)
	result := stepResult{Label: step.HumanLabel, Path: path}

	if step.Optional && r.SkipOptional {
		fmt.Fprintf(r.Stderr, "  Skipped (--skip-optional)\n")
		result.Action = actionSkipped
		return result, nil
	}

	exists, err := r.SSM.ParameterExists(ctx, path)
	if err != nil {
		return result, fmt.Errorf("checking existence of %s: %w", path, err)
	}
	if exists {
		fmt.Fprintf(r.Stderr, "  Parameter already exists: %s\n", path)

		choice, err := r.promptSkipOrOverwrite()
		if err != nil {
			return result, fmt.Errorf("reading skip/overwrite choice: %w", err)
		}
		if choice == "skip" {
			fmt.Fprintf(r.Stderr, "  Skipped.\n")
			result.Action = actionSkipped
			return result, nil
		}
	}

	value, err := r.promptAndValidate(ctx, step)
	if errors.Is(err, errSkipped) {
		fmt.Fprintf(r.Stderr, "  Skipped.\n")
		result.Action = actionSkipped
		return result, nil
	}
	if err != nil {
		return result, err
	}

	if step.ParamType == ParamSecureString {
		err = r.SSM.PutSecret(ctx, path, value, exists)
	} else {
		err = r.SSM.PutString(ctx, path, value)
	}
	if err != nil {
		return result, fmt.Errorf("writing SSM parameter %s: %w", path, err)
	}

	result.Action = actionWritten
	if exists {
		result.Action = actionOverwritten
	}
	fmt.Fprintf(r.Stderr, "  Stored: %s\n", path)
	return result, nil
}

// promptAndValidate reads and validates input, allowing maxRetries failed
// validations. Empty input does not use up an attempt.
func (r *BootstrapRunner) promptAndValidate(ctx context.Context, step BootstrapStep) (string, error) {
	fmt.Fprintf(r.Stderr, "\n  %s\n\n", step.Prompt)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		var input string
		var err error

		if step.IsSecret {
			input, err = r.readSecretInput("  > ")
		} else {
			input, err = r.readInput("  > ")
		}
		if err != nil {
			return "", fmt.Errorf("reading input for %s: %w", step.HumanLabel, err)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			if step.Optional {
				return "", errSkipped
			}
			choice, choiceErr := r.promptSkipOrRetry()
			if choiceErr != nil {
				return "", fmt.Errorf("reading skip/retry choice for %s: %w", step.HumanLabel, choiceErr)
			}
			if choice == "skip" {
				return "", errSkipped
			}
			attempt--
			continue
		}

		if step.IsSecret {
			fmt.Fprintf(r.Stderr, "  Received %d chars.\n", len(input))
		}

		if step.ValidateFn != nil {
			vr := step.ValidateFn(ctx, input)
			if !vr.Valid {
				fmt.Fprintf(r.Stderr, "  Validation failed: %s\n", vr.Message)
				if attempt < maxRetries {
					fmt.Fprintf(r.Stderr, "  Try again (%d/%d).\n", attempt, maxRetries)
				}
				continue
			}
			fmt.Fprintf(r.Stderr, "  Validated: %s\n", vr.Message)
		}

		return input, nil
	}

	return "", fmt.Errorf("maximum retries (%d) exceeded for %s", maxRetries, step.HumanLabel)
}

func (r *BootstrapRunner) getScanner() *bufio.Scanner {
	if r.scanner == nil {
		r.scanner = bufio.NewScanner(r.Stdin)
	}
	return r.scanner
}

// scanLine returns io.EOF once input is exhausted.
func (r *BootstrapRunner) scanLine() (string, error) {
	s := r.getScanner()
	if !s.Scan() {
		if err := s.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return s.Text(), nil
}

func (r *BootstrapRunner) readInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)
	return r.scanLine()
}

// readSecretInput disables echo when stdin is a terminal and falls back to
// line reading for piped input.
func (r *BootstrapRunner) readSecretInput(prompt string) (string, error) {
	fmt.Fprint(r.Stderr, prompt)

	if f, ok := r.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(r.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		return string(password), nil
	}

	return r.scanLine()
}

// promptSkipOrOverwrite returns "skip" or "overwrite".
func (r *BootstrapRunner) promptSkipOrOverwrite() (string, error) {
	for {
		fmt.Fprint(r.Stderr, "  [S]kip or [O]verwrite? ")

		line, err := r.scanLine()
		if err != nil {
			return "", err
		}

		choice := strings.TrimSpace(strings.ToLower(line))
		switch choice {
		case "s", "skip":
			return "skip", nil
		case "o", "overwrite":
			return "overwrite", nil
		default:
			fmt.Fprintf(r.Stderr, "  Please enter 'S' to skip or 'O' to overwrite.\n")
		}
	}
}

// promptSkipOrRetry is asked after empty input on a required step. It
// returns "skip" or "retry".
func (r *BootstrapRunner) promptSkipOrRetry() (string, error) {
	for {
		fmt.Fprint(r.Stderr, "  No input received. [S]kip this parameter or [R]etry? ")

		line, err := r.scanLine()
		if err != nil {
			return "", err
		}

		choice := strings.TrimSpace(strings.ToLower(line))
		switch choice {
		case "s", "skip":
			return "skip", nil
		case "r", "retry":
			return "retry", nil
		default:
			fmt.Fprintf(r.Stderr, "  Please enter 'S' to skip or 'R' to retry.\n")
		}
	}
}

func (r *BootstrapRunner) printPhaseHeader(phase string) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Phase: %s\n", phase)
	fmt.Fprintf(r.Stderr, "============================================================\n")
}

func (r *BootstrapRunner) printSummary(results []stepResult) {
	fmt.Fprintf(r.Stderr, "\n============================================================\n")
	fmt.Fprintf(r.Stderr, "  Bootstrap Summary\n")
	fmt.Fprintf(r.Stderr, "============================================================\n")

	counts := make(map[string]int, 3)
	for _, res := range results {
		counts[res.Action]++
		fmt.Fprintf(r.Stderr, "  %-14s %s\n", "["+strings.ToUpper(res.Action)+"]", res.Label)
	}

	fmt.Fprintf(r.Stderr, "------------------------------------------------------------\n")
	fmt.Fprintf(r.Stderr, "  Total: %d parameters\n", len(results))
	fmt.Fprintf(r.Stderr, "  Written: %d | Overwritten: %d | Skipped: %d\n",
		counts[actionWritten], counts[actionOverwritten], counts[actionSkipped])
	fmt.Fprintf(r.Stderr, "============================================================\n\n")
	fmt.Fprintf(r.Stderr, "  Point the API at these parameters with *_SSM_PARAM variables,\n")
	fmt.Fprintf(r.Stderr, "  e.g. ANTHROPIC_API_KEY_SSM_PARAM=%s\n\n", r.SSM.SSMPath("anthropic/api_key"))
}
