// Package status reduces a raw test outcome, the operator's check mode and
// baseline presence into the pipeline's final decision.
// No filesystem or process calls are made in this package.
package status

import (
	"fmt"
	"strings"

	"github.com/NielsdaWheelz/extpipe/internal/errors"
)

// CheckMode controls whether tests run and whether their failure counts.
type CheckMode string

const (
	CheckSkip    CheckMode = "skip"
	CheckWarn    CheckMode = "warn"
	CheckEnforce CheckMode = "enforce"
)

// ParseCheckMode parses the operator's selector. Empty means skip.
func ParseCheckMode(s string) (CheckMode, error) {
	switch CheckMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", CheckSkip:
		return CheckSkip, nil
	case CheckWarn:
		return CheckWarn, nil
	case CheckEnforce:
		return CheckEnforce, nil
	}
	return "", errors.New(errors.EInvalidConfig,
		fmt.Sprintf("invalid check mode %q: must be one of skip, warn, enforce", s))
}

// RunsTests reports whether the mode invokes the test executor.
func (m CheckMode) RunsTests() bool {
	return m == CheckWarn || m == CheckEnforce
}

// Outcome classifies the raw test result.
type Outcome string

const (
	OutcomePass   Outcome = "pass"
	OutcomeFail   Outcome = "fail"
	OutcomeNotRun Outcome = "not-run"
)

// OutcomeFromExitCode classifies an aggregate test exit code.
func OutcomeFromExitCode(code int) Outcome {
	if code == 0 {
		return OutcomePass
	}
	return OutcomeFail
}

// Decision messages (user-visible contract).
const (
	MsgPassedModuloBaseline = "passed (modulo baseline known-failures)"
	MsgPassed               = "passed"
	MsgFailuresIgnored      = "failures ignored (warn mode)"
	MsgNewFailures          = "new failures not in baseline"
	MsgFailuresTesting      = "failures testing package"
	MsgTestsNotRun          = "tests not run"
)

// Decision is the final pipeline status.
type Decision struct {
	OK       bool   `json:"ok"`
	Message  string `json:"message"`
	TestsRan bool   `json:"tests_ran"`
}

type key struct {
	outcome  Outcome
	mode     CheckMode
	baseline bool
}

// table is the complete reduction policy. Every reachable input has exactly
// one row; anything else is rejected by Reduce.
var table = map[key]Decision{
	{OutcomePass, CheckWarn, true}:     {OK: true, Message: MsgPassedModuloBaseline, TestsRan: true},
	{OutcomePass, CheckEnforce, true}:  {OK: true, Message: MsgPassedModuloBaseline, TestsRan: true},
	{OutcomePass, CheckWarn, false}:    {OK: true, Message: MsgPassed, TestsRan: true},
	{OutcomePass, CheckEnforce, false}: {OK: true, Message: MsgPassed, TestsRan: true},

	{OutcomeFail, CheckWarn, true}:  {OK: true, Message: MsgFailuresIgnored, TestsRan: true},
	{OutcomeFail, CheckWarn, false}: {OK: true, Message: MsgFailuresIgnored, TestsRan: true},

	{OutcomeFail, CheckEnforce, true}:  {OK: false, Message: MsgNewFailures, TestsRan: true},
	{OutcomeFail, CheckEnforce, false}: {OK: false, Message: MsgFailuresTesting, TestsRan: true},

	{OutcomeNotRun, CheckSkip, true}:  {OK: true, Message: MsgTestsNotRun},
	{OutcomeNotRun, CheckSkip, false}: {OK: true, Message: MsgTestsNotRun},
}

// Reduce looks up the decision for the given inputs. It is pure and total
// over the table; combinations outside it (tests that ran in skip mode, tests
// that did not run in warn/enforce mode, unknown values) return E_INTERNAL.
func Reduce(outcome Outcome, mode CheckMode, baselineExists bool) (Decision, error) {
	d, ok := table[key{outcome, mode, baselineExists}]
	if !ok {
		return Decision{}, errors.NewWithDetails(errors.EInternal,
			fmt.Sprintf("no status rule for outcome=%q check_mode=%q baseline=%t", outcome, mode, baselineExists),
			map[string]string{"check_mode": string(mode)})
	}
	return d, nil
}
