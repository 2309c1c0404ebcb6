package types

import (
	"fmt"
	"time"
)

// Color identifies one of the two deployment slots.
type Color string

const (
	ColorBlue  Color = "blue"
	ColorGreen Color = "green"
)

// ParseColor converts a string into a Color, rejecting anything that is not
// exactly "blue" or "green".
func ParseColor(s string) (Color, error) {
	switch Color(s) {
	case ColorBlue:
		return ColorBlue, nil
	case ColorGreen:
		return ColorGreen, nil
	default:
		return "", fmt.Errorf("invalid color %q (must be %q or %q)", s, ColorBlue, ColorGreen)
	}
}

// Other returns the complementary color.
func (c Color) Other() Color {
	if c == ColorBlue {
		return ColorGreen
	}
	return ColorBlue
}

// Valid reports whether c is one of the two known colors.
func (c Color) Valid() bool {
	return c == ColorBlue || c == ColorGreen
}

func (c Color) String() string {
	return string(c)
}

// DeploymentState is the single durable record of which color is live.
// It is created on first use, mutated only by the orchestrator, and
// overwritten in place. ActiveColor must always match the color the
// traffic switch currently routes to.
type DeploymentState struct {
	ActiveColor        Color     `json:"active_color"`
	LastKnownGoodColor Color     `json:"last_known_good_color"`
	LastSwitchTime     time.Time `json:"last_switch_time"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// InactiveColor returns the standby slot, the target of the next deploy.
func (s *DeploymentState) InactiveColor() Color {
	return s.ActiveColor.Other()
}

// StackHandle is an opaque reference to one color's built stack.
type StackHandle struct {
	Color     Color     `json:"color"`
	Project   string    `json:"project"`
	BuildTag  string    `json:"build_tag"`
	CreatedAt time.Time `json:"created_at"`
}

// ProbeResult is the outcome of one readiness gate or single health check.
// Attempts counts every probe issued, including the successful one.
type ProbeResult struct {
	Healthy    bool          `json:"healthy"`
	StatusCode int           `json:"status_code,omitempty"`
	Latency    time.Duration `json:"latency"`
	Attempts   int           `json:"attempts"`
	Message    string        `json:"message,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
}

// Phase is the orchestrator's position in the deploy state machine.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseBuilding       Phase = "building"
	PhaseHealthChecking Phase = "health_checking"
	PhasePromoting      Phase = "promoting"
	PhaseAborting       Phase = "aborting"
)

// Operation names an orchestrator entry point for records and events.
type Operation string

const (
	OperationDeploy   Operation = "deploy"
	OperationSwitch   Operation = "switch"
	OperationRollback Operation = "rollback"
	OperationCleanup  Operation = "cleanup"
)

// Outcome is the terminal result of an operation attempt.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeAborted   Outcome = "aborted"
	OutcomeNoop      Outcome = "noop"
)

// DeploymentRecord is one row of the audit history: a single operation
// attempt, its target color, and how it ended.
type DeploymentRecord struct {
	ID         string    `json:"id"`
	Operation  Operation `json:"operation"`
	Color      Color     `json:"color"`
	BuildTag   string    `json:"build_tag,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration is the wall-clock time the recorded operation took.
func (r *DeploymentRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ColorStatus is one color's live view in a status report.
type ColorStatus struct {
	Color   Color        `json:"color"`
	Active  bool         `json:"active"`
	Running bool         `json:"running"`
	Probe   *ProbeResult `json:"probe,omitempty"`
}

// StatusReport is the read-only answer to the status query: durable state
// plus a live look at both stacks and the routed public endpoint.
type StatusReport struct {
	State       *DeploymentState `json:"state"`
	Colors      []ColorStatus    `json:"colors"`
	RoutedProbe *ProbeResult     `json:"routed_probe,omitempty"`
	GeneratedAt time.Time        `json:"generated_at"`
}

// Healthy reports whether the routed public endpoint answered.
func (r *StatusReport) Healthy() bool {
	return r.RoutedProbe != nil && r.RoutedProbe.Healthy
}
