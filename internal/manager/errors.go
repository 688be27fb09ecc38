package manager

import (
	"errors"

	"forged/pkg/types"
)

// busyError signals that the execution gate was held by another operation.
// The caller should retry later; no state was changed.
type busyError struct{ op string }

func (e busyError) Error() string { return "another generation is in progress: " + e.op }

// ErrBusy constructs the backpressure error for op.
func ErrBusy(op string) error { return busyError{op: op} }

// IsBusy reports whether err indicates backpressure (return 429).
func IsBusy(err error) bool {
	var b busyError
	return errors.As(err, &b)
}

// admissionDeniedError signals insufficient free VRAM; the slot stays unloaded.
type admissionDeniedError struct {
	workload types.Workload
}

func (e admissionDeniedError) Error() string {
	return "insufficient vram to load " + string(e.workload)
}

// ErrAdmissionDenied constructs the denial error for workload.
func ErrAdmissionDenied(wl types.Workload) error { return admissionDeniedError{workload: wl} }

// IsAdmissionDenied reports whether err indicates a denied load (retryable).
func IsAdmissionDenied(err error) bool {
	var a admissionDeniedError
	return errors.As(err, &a)
}

// acquisitionFailedError wraps a backend acquire failure; the slot moved to error.
type acquisitionFailedError struct {
	workload types.Workload
	err      error
}

func (e acquisitionFailedError) Error() string {
	return "failed to load " + string(e.workload) + ": " + e.err.Error()
}
func (e acquisitionFailedError) Unwrap() error { return e.err }

// IsAcquisitionFailed reports whether err indicates a backend load failure.
func IsAcquisitionFailed(err error) bool {
	var a acquisitionFailedError
	return errors.As(err, &a)
}

// computeFailedError wraps a backend compute failure; the handle is assumed
// still valid and the slot returned to ready.
type computeFailedError struct {
	workload types.Workload
	err      error
}

func (e computeFailedError) Error() string {
	return string(e.workload) + " generation failed: " + e.err.Error()
}
func (e computeFailedError) Unwrap() error { return e.err }

// IsComputeFailed reports whether err indicates a failed compute call.
func IsComputeFailed(err error) bool {
	var c computeFailedError
	return errors.As(err, &c)
}

// releaseFailedError wraps a backend release failure during unload/eviction.
// The handle was cleared regardless; the slot moved to error.
type releaseFailedError struct {
	workload types.Workload
	err      error
}

func (e releaseFailedError) Error() string {
	return "failed to unload " + string(e.workload) + ": " + e.err.Error()
}
func (e releaseFailedError) Unwrap() error { return e.err }

// IsReleaseFailed reports whether err indicates a failed unload.
func IsReleaseFailed(err error) bool {
	var r releaseFailedError
	return errors.As(err, &r)
}

// unknownWorkloadError signals a workload with no configured runtime.
type unknownWorkloadError struct{ workload types.Workload }

func (e unknownWorkloadError) Error() string {
	return "no runtime configured for workload: " + string(e.workload)
}

// ErrUnknownWorkload constructs the missing-runtime error for workload.
func ErrUnknownWorkload(wl types.Workload) error { return unknownWorkloadError{workload: wl} }

// IsUnknownWorkload reports whether err indicates a missing runtime (return 404).
func IsUnknownWorkload(err error) bool {
	var u unknownWorkloadError
	return errors.As(err, &u)
}

// Pipeline stage names reported by PipelineStage.
const (
	StageImage = "image"
	StageMesh  = "mesh"
)

// pipelineStageError tags a stage failure with the stage that produced it.
type pipelineStageError struct {
	stage string
	err   error
}

func (e pipelineStageError) Error() string {
	return "pipeline stage " + e.stage + " failed: " + e.err.Error()
}

// ErrStage tags err with the pipeline stage that produced it.
func ErrStage(stage string, err error) error { return pipelineStageError{stage: stage, err: err} }
func (e pipelineStageError) Unwrap() error { return e.err }

// PipelineStage returns the failed stage name when err came from the
// pipeline orchestrator.
func PipelineStage(err error) (string, bool) {
	var p pipelineStageError
	if errors.As(err, &p) {
		return p.stage, true
	}
	return "", false
}
