package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/quest-engine/internal/handlers"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// absent is the quest status expectation for "no snapshot stored"
const absent = "absent"

// SessionHook starts whatever serves a session's queue (normally a worker)
// and returns a func that stops it
type SessionHook func(ctx context.Context, sessionID uuid.UUID) (stop func(), err error)

// Runner executes integration tests against a running quest-engine API
type Runner struct {
	BaseURL           string
	Client            *http.Client
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
	OnSession         SessionHook
}

// NewRunner creates a new test runner
func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Client:            &http.Client{Timeout: 30 * time.Second},
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}
	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	return loadExpanded(filename, casesDir, map[string]bool{})
}

func loadExpanded(filename, casesDir string, visiting map[string]bool) ([]TestJob, error) {
	if visiting[filename] {
		return nil, fmt.Errorf("case %s references itself", filename)
	}
	visiting[filename] = true
	defer delete(visiting, filename)

	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}
	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		subJobs, err := loadExpanded(filepath.Join(casesDir, caseFile), casesDir, visiting)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}
		jobs = append(jobs, subJobs...)
	}
	return jobs, nil
}

// RunSuite executes a complete test suite on a fresh session
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results:   make([]TestResult, 0, len(suite.Steps)),
		SessionID: uuid.New(),
	}

	// The worker is stopped before its session is deleted.
	defer func() {
		if err := DeleteSession(context.Background(), r.Client, r.BaseURL, result.SessionID); err != nil {
			r.Logger("    Warning: failed to delete session %s: %v", result.SessionID, err)
		}
	}()
	if r.OnSession != nil {
		stop, err := r.OnSession(ctx, result.SessionID)
		if err != nil {
			result.Error = fmt.Errorf("failed to start session: %w", err)
			result.Duration = time.Since(start)
			return result, result.Error
		}
		defer stop()
	}

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)
		stepResult := r.runStep(ctx, result.SessionID, step)
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit {
				break
			}
			continue
		}
		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// runStep performs the step's action then waits for its expectations
func (r *Runner) runStep(ctx context.Context, sessionID uuid.UUID, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{StepName: step.Name}

	var err error
	switch {
	case step.Start != "":
		result.RequestID, err = StartQuest(ctx, r.Client, r.BaseURL, sessionID, step.Start)
	case step.Abandon != "":
		result.RequestID, err = AbandonQuest(ctx, r.Client, r.BaseURL, sessionID, step.Abandon)
	case len(step.Event) > 0:
		result.RequestID, err = PostEvent(ctx, r.Client, r.BaseURL, sessionID, step.Event)
	case step.WaitSeconds > 0:
		select {
		case <-ctx.Done():
			err = ctx.Err()
		case <-time.After(time.Duration(step.WaitSeconds * float64(time.Second))):
		}
	}
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	if err := PollForExpectations(ctx, r.Client, r.BaseURL, sessionID, step.Expect); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

// CheckExpectations validates exp against a session read from the API
func CheckExpectations(exp Expectations, session *handlers.SessionResponse) error {
	if exp.Location != nil {
		var location string
		if session.World != nil {
			location = session.World.Location
		}
		if location != *exp.Location {
			return fmt.Errorf("expected location %q, got %q", *exp.Location, location)
		}
	}

	for _, item := range slices.Sorted(maps.Keys(exp.Inventory)) {
		var got int
		if session.World != nil {
			got = session.World.Count(item)
		}
		if got != exp.Inventory[item] {
			return fmt.Errorf("expected %d %s in inventory, got %d", exp.Inventory[item], item, got)
		}
	}

	for _, flag := range slices.Sorted(maps.Keys(exp.Flags)) {
		var got bool
		if session.World != nil {
			got, _ = session.World.Flag(flag)
		}
		if got != exp.Flags[flag] {
			return fmt.Errorf("expected flag %s to be %t, got %t", flag, exp.Flags[flag], got)
		}
	}

	quests := make(map[string]handlers.QuestView, len(session.Quests))
	for _, q := range session.Quests {
		quests[q.QuestID] = q
	}

	for _, id := range slices.Sorted(maps.Keys(exp.Quests)) {
		want := exp.Quests[id]
		q, ok := quests[id]
		switch {
		case want == absent && ok:
			return fmt.Errorf("expected quest %s to be absent, got %s", id, q.Status)
		case want == absent:
		case !ok:
			return fmt.Errorf("expected quest %s to be %s, but it has no snapshot", id, want)
		case q.Status != want:
			return fmt.Errorf("expected quest %s to be %s, got %s", id, want, q.Status)
		}
	}

	for _, key := range slices.Sorted(maps.Keys(exp.Objectives)) {
		questID, objectiveID, ok := strings.Cut(key, "/")
		if !ok {
			return fmt.Errorf("objective expectation %q must be quest_id/objective_id", key)
		}
		got := ""
		for _, o := range quests[questID].Objectives {
			if o.ID == objectiveID {
				got = o.Status
			}
		}
		if got != exp.Objectives[key] {
			return fmt.Errorf("expected objective %s to be %s, got %q", key, exp.Objectives[key], got)
		}
	}

	return nil
}
