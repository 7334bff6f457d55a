// Package orchestrator drives one import from the client side: upload a
// workbook, review the preview, confirm, and poll the job to a final state.
//
// The flow is a state machine over a closed set of [State] types. Every
// move goes through a single transition table, so a confirm without a
// preview or a step back out of processing cannot be expressed.
//
//	upload --Upload--> preview --Confirm--> processing --Poll--> completed
//	                      |                      |
//	                      +--Back--> upload      +--Poll--> failed
//
// Reset returns to upload from any state.
package orchestrator

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/sheetimport/internal/core"
)

// Step names a state.
type Step string

const (
	StepUpload     Step = "upload"
	StepPreview    Step = "preview"
	StepProcessing Step = "processing"
	StepCompleted  Step = "completed"
	StepFailed     Step = "failed"
)

// State is one of Upload, Preview, Processing, Completed or Failed.
type State interface {
	Step() Step
	isState()
}

// Upload waits for a workbook.
type Upload struct{}

// Preview holds the server's validation of the uploaded workbook.
type Preview struct {
	ModuleKey string
	FileName  string
	Result    core.PreviewResult
}

// Processing tracks a confirmed job. Progress never decreases.
type Processing struct {
	ModuleKey string
	JobID     string
	Progress  int
	Status    core.JobStatus
}

// Completed is a job the server finished. Some rows may have failed.
type Completed struct {
	JobID  string
	Result core.JobResult
}

// Reason tells a server-reported failure from giving up locally.
type Reason string

const (
	// ReasonServer means the server marked the job failed.
	ReasonServer Reason = "server"

	// ReasonTimeout means polling ran out of attempts. The job may still
	// be running and can be queried by JobID.
	ReasonTimeout Reason = "timeout"
)

// Failed is a job that did not complete, or one the client stopped
// waiting for.
type Failed struct {
	JobID   string
	Reason  Reason
	Message string
}

func (Upload) Step() Step     { return StepUpload }
func (Preview) Step() Step    { return StepPreview }
func (Processing) Step() Step { return StepProcessing }
func (Completed) Step() Step  { return StepCompleted }
func (Failed) Step() Step     { return StepFailed }

func (Upload) isState()     {}
func (Preview) isState()    {}
func (Processing) isState() {}
func (Completed) isState()  {}
func (Failed) isState()     {}

// transitions lists the allowed moves. Reset is handled separately and
// is allowed from every state.
var transitions = map[Step][]Step{
	StepUpload:     {StepPreview},
	StepPreview:    {StepProcessing, StepUpload},
	StepProcessing: {StepProcessing, StepCompleted, StepFailed},
	StepCompleted:  {},
	StepFailed:     {},
}

// ErrIllegalTransition is returned for a move the table does not allow.
var ErrIllegalTransition = errors.New("illegal state transition")

func checkTransition(from, to Step) error {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to Step) bool {
	return checkTransition(from, to) == nil
}
