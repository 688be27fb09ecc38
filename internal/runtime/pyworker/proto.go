package pyworker

// The worker protocol is JSON lines over stdin/stdout. The daemon writes one
// request per line; the worker answers with events. On startup the worker
// loads its model and emits {"event":"ready"} once the weights are resident.

// request is one command sent to the worker.
type request struct {
	Cmd        string  `json:"cmd"`
	JobID      string  `json:"job_id,omitempty"`
	Prompt     string  `json:"prompt,omitempty"`
	ImagePath  string  `json:"image_path,omitempty"`
	OutputPath string  `json:"output_path,omitempty"`
	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	Steps      int     `json:"steps,omitempty"`
	Guidance   float64 `json:"guidance,omitempty"`
}

const (
	cmdGenerate = "generate"
	cmdExit     = "exit"
)

// event is one message emitted by the worker. Events scoped to a generate
// command echo its job_id so the daemon can attribute them; a job abandoned
// by its caller may still flush events after the fact, and those must not be
// credited to the next job.
type event struct {
	Event     string `json:"event"`
	JobID     string `json:"job_id,omitempty"`
	Path      string `json:"path,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
}

const (
	evReady    = "ready"
	evProgress = "progress"
	evDone     = "done"
	evError    = "error"
)
