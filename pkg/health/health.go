package health

import (
	"context"

	"github.com/quayside/cutover/pkg/types"
)

// CheckType represents the type of health check
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
	CheckTypeExec CheckType = "exec"
)

// Checker is the interface that all health checkers must implement.
// A single Check issues exactly one probe; retry policy lives in Prober.
type Checker interface {
	// Check performs one health check and returns the result
	Check(ctx context.Context) types.ProbeResult

	// Type returns the type of health check
	Type() CheckType
}
