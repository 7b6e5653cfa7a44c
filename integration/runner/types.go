package runner

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name  string     `json:"name"`
	Steps []TestStep `json:"steps,omitempty"` // Used for regular tests
	Cases []string   `json:"cases,omitempty"` // Used for suite tests (list of case files)
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep is one action against the session followed by expectations.
// Exactly one of Start, Abandon, Event or WaitSeconds should be set; a
// step with none only checks its expectations.
type TestStep struct {
	Name        string          `json:"name,omitempty"`
	Start       string          `json:"start,omitempty"`        // quest id
	Abandon     string          `json:"abandon,omitempty"`      // quest id
	Event       json.RawMessage `json:"event,omitempty"`        // event envelope
	WaitSeconds float64         `json:"wait_seconds,omitempty"` // let the worker's timers run
	Expect      Expectations    `json:"expect"`
}

// Expectations are polled for until they hold or the step times out
type Expectations struct {
	Location  *string         `json:"location,omitempty"`
	Inventory map[string]int  `json:"inventory,omitempty"` // listed items only
	Flags     map[string]bool `json:"flags,omitempty"`

	// Quest and objective statuses, e.g. "in_progress". Objectives are
	// keyed "quest_id/objective_id". A quest status of "absent" expects
	// no snapshot.
	Quests     map[string]string `json:"quests,omitempty"`
	Objectives map[string]string `json:"objectives,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	StepName  string
	Success   bool
	Error     error
	Duration  time.Duration
	RequestID string
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job       TestJob
	Results   []TestResult
	SessionID uuid.UUID
	Duration  time.Duration
	Error     error
}
