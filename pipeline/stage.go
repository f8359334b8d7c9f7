package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/hupe1980/medguard/core"
	"github.com/hupe1980/medguard/logging"
	"github.com/hupe1980/medguard/ratelimit"
)

// Stage is one state of the per-request state machine.
type Stage string

const (
	StagePending    Stage = "pending"
	StageCacheCheck Stage = "cache_check"
	StageGenerating Stage = "generating"
	StageValidating Stage = "validating"
	StageCorrecting Stage = "correcting"
	StageApproved   Stage = "approved"
	StageBlocked    Stage = "blocked"
	StageFailed     Stage = "failed"
	StageThrottled  Stage = "throttled"
)

// maxCorrections bounds the correction loop per request.
const maxCorrections = 1

// ErrIllegalTransition is returned for a move the state machine does not allow.
var ErrIllegalTransition = errors.New("illegal pipeline transition")

// transitions lists the allowed successors of every non-terminal stage.
// Failed is reachable from everywhere because deadline expiry and
// cancellation can interrupt any stage.
var transitions = map[Stage][]Stage{
	StagePending:    {StageCacheCheck, StageThrottled, StageBlocked, StageFailed},
	StageCacheCheck: {StageGenerating, StageApproved, StageFailed},
	StageGenerating: {StageValidating, StageFailed},
	StageValidating: {StageApproved, StageBlocked, StageCorrecting, StageFailed},
	StageCorrecting: {StageGenerating, StageBlocked, StageFailed},
}

// Terminal reports whether s ends the run.
func (s Stage) Terminal() bool {
	switch s {
	case StageApproved, StageBlocked, StageFailed, StageThrottled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to Stage) bool {
	return slices.Contains(transitions[from], to)
}

type stageLogger interface {
	LogStage(from, to string)
}

// run is the mutable state of one Submit call. It is owned by a single
// goroutine.
type run struct {
	req         core.Request
	fingerprint string
	stage       Stage
	outcome     core.Outcome

	// budget counts transport attempts across generation and correction;
	// corrections counts correction loops. They are never conflated.
	budget      *core.CallBudget
	corrections int
	attempts    []core.Attempt
	original    string

	permit *ratelimit.Permit
	log    logging.Logger
	start  time.Time
}

func newRun(req core.Request, maxCalls int, log logging.Logger, start time.Time) *run {
	return &run{
		req:    req,
		stage:  StagePending,
		budget: core.NewCallBudget(maxCalls),
		log:    log,
		start:  start,
	}
}

func (r *run) transition(to Stage) error {
	if r.stage.Terminal() || !CanTransition(r.stage, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, r.stage, to)
	}
	if sl, ok := r.log.(stageLogger); ok {
		sl.LogStage(string(r.stage), string(to))
	} else {
		r.log.Debug("Pipeline transition", "from", r.stage, "to", to)
	}
	r.stage = to
	return nil
}

// advance moves to a non-terminal stage. The orchestrator only requests
// legal moves, so a rejection is a programming error worth logging loudly.
func (r *run) advance(to Stage) {
	if err := r.transition(to); err != nil {
		r.log.Error("Rejected pipeline transition", "error", err)
	}
}

func (r *run) canCorrect() bool {
	return r.corrections < maxCorrections && r.budget.Remaining() != 0
}
