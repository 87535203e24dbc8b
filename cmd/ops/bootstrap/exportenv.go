package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/joho/godotenv"
)

// ssmToEnvMapping maps inventory keys to the variables config.LoadConfig
// reads them from.
var ssmToEnvMapping = map[string]string{
	"supabase/url":        "SUPABASE_URL",
	"supabase/anon_key":   "SUPABASE_ANON_KEY",
	"supabase/jwt_secret": "SUPABASE_JWT_SECRET",
	"database/url":        "DATABASE_URL",
	"anthropic/api_key":   "ANTHROPIC_API_KEY",
	"redis/url":           "REDIS_URL",
	"quota/plan_policies": "PLAN_POLICIES_JSON",
}

// localDevDefaults fills the non-secret settings a local run needs.
var localDevDefaults = map[string]string{
	"APP_ENV":              "local",
	"PORT":                 "8080",
	"LOG_LEVEL":            "debug",
	"CORS_ALLOWED_ORIGINS": "http://localhost:3000",
	"METRICS_BACKEND":      "prometheus",
	"AWS_REGION":           "us-east-1",
}

// ExportEnvConfig configures ExportEnvFile.
type ExportEnvConfig struct {
	OutputPath  string
	Environment string
	SSM         *SSMManager
	Stderr      io.Writer

	// IncludeLocalDefaults appends localDevDefaults after the SSM values.
	IncludeLocalDefaults bool
}

// ExportEnvFile reads every inventory parameter back from SSM and writes
// them as a .env file with mode 0600. Missing parameters are left out; it
// fails only when none could be read.
func ExportEnvFile(ctx context.Context, cfg ExportEnvConfig) error {
	keys := make([]string, 0, len(ssmToEnvMapping))
	for k := range ssmToEnvMapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make(map[string]string, len(keys))
	for _, key := range keys {
		path := cfg.SSM.SSMPath(key)
		value, err := cfg.SSM.GetParameterValue(ctx, path, true)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("exporting .env: %w", ctxErr)
			}
			var notFound *ssmtypes.ParameterNotFound
			if errors.As(err, &notFound) {
				fmt.Fprintf(cfg.Stderr, "  Not in SSM, skipped: %s\n", path)
			} else {
				fmt.Fprintf(cfg.Stderr, "  Could not read %s: %v\n", path, err)
			}
			continue
		}
		values[ssmToEnvMapping[key]] = value
	}

	if len(values) == 0 {
		return fmt.Errorf("no parameters could be read from SSM for environment %q", cfg.Environment)
	}

	body, err := godotenv.Marshal(values)
	if err != nil {
		return fmt.Errorf("encoding .env values: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Auto-generated by bootstrap --export-env\n")
	fmt.Fprintf(&b, "# Environment: %s\n", cfg.Environment)
	fmt.Fprintf(&b, "# Generated: %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "#\n# SECURITY WARNING: this file contains decrypted secrets. Do not commit it.\n\n")
	b.WriteString(body)
	b.WriteString("\n")

	if cfg.IncludeLocalDefaults {
		defaults, err := godotenv.Marshal(localDevDefaults)
		if err != nil {
			return fmt.Errorf("encoding local defaults: %w", err)
		}
		b.WriteString("\n# Local Development Defaults\n")
		b.WriteString(defaults)
		b.WriteString("\n")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.OutputPath), 0o700); err != nil {
		return fmt.Errorf("creating directory for %s: %w", cfg.OutputPath, err)
	}
	if err := os.WriteFile(cfg.OutputPath, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", cfg.OutputPath, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(cfg.OutputPath, 0o600); err != nil {
		return fmt.Errorf("restricting permissions on %s: %w", cfg.OutputPath, err)
	}

	fmt.Fprintf(cfg.Stderr, "\n  Environment file exported: %s\n", cfg.OutputPath)
	fmt.Fprintf(cfg.Stderr, "  Parameters written: %d (mode 0600)\n", len(values))
	return nil
}
