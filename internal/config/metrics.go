package config

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	validationMetricsOnce sync.Once
	validationEvents      metric.Int64Counter
	validationIssues      metric.Int64Histogram
)

// recordValidation counts one Load outcome. Issues is the number of distinct
// problems reported by Validate (zero on success or parse failure).
func recordValidation(ctx context.Context, appEnv string, err error) {
	validationMetricsOnce.Do(func() {
		meter := otel.Meter("edu-session-service")
		if c, cerr := meter.Int64Counter("config.validation.events"); cerr == nil {
			validationEvents = c
		}
		if h, herr := meter.Int64Histogram("config.validation.issues"); herr == nil {
			validationIssues = h
		}
	})
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("app_env", normalizeAppEnv(appEnv)),
		attribute.String("outcome", outcome),
		attribute.String("error_class", classifyLoadError(err)),
	)
	if validationEvents != nil {
		validationEvents.Add(ctx, 1, attrs)
	}
	if validationIssues != nil && err != nil {
		validationIssues.Record(ctx, int64(countIssues(err)), attrs)
	}
}

func normalizeAppEnv(appEnv string) string {
	v := strings.TrimSpace(strings.ToLower(appEnv))
	if v == "" {
		return "development"
	}
	return v
}

// classifyLoadError separates production guard trips from ordinary validation
// so a misdeployed production build stands out on dashboards.
func classifyLoadError(err error) string {
	if err == nil {
		return "none"
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.HasPrefix(msg, "validate config:") && strings.Contains(msg, "in production"):
		return "production_guard"
	case strings.HasPrefix(msg, "validate config:"):
		return "validation"
	case strings.HasPrefix(msg, "parse "):
		return "parse"
	default:
		return "load"
	}
}

func countIssues(err error) int {
	if err == nil {
		return 0
	}
	type multi interface{ Unwrap() []error }
	for e := err; e != nil; {
		if m, ok := e.(multi); ok {
			return len(m.Unwrap())
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return 1
}
