package types

// ReplyMode tells how a command answered.
type ReplyMode string

const (
	// ReplyValue: the command ran synchronously and produced a result.
	ReplyValue ReplyMode = "value"
	// ReplyNone: the command ran synchronously and has no result.
	ReplyNone ReplyMode = "none"
	// ReplyAsync: the command was queued; its result arrives as an event.
	ReplyAsync ReplyMode = "async"
)

// CompareRequest is the argument shape of compareFpFeature and getCompareValue.
type CompareRequest struct {
	// Base64 encoded probe template.
	// example: AwFbFQAA...
	Src string `json:"src" example:"AwFbFQAA..."`
	// Base64 encoded reference template.
	// example: AwFVGAAA...
	Dest string `json:"dest" example:"AwFVGAAA..."`
	// Optional match value applied before comparing (compareFpFeature only).
	// example: 50
	Threshold *int `json:"threshold,omitempty" example:"50"`
}

// CommandResponse is returned by POST /v1/commands/{name}.
type CommandResponse struct {
	// Command name as dispatched.
	// example: getFingerMatchValue
	Command string `json:"command" example:"getFingerMatchValue"`
	// How the command answered: value, none or async.
	// example: value
	Mode ReplyMode `json:"mode" example:"value"`
	// Result for synchronous commands that produce one.
	Result any `json:"result,omitempty"`
	// Identifier of the queued task for asynchronous commands. The matching
	// event carries the same task_id.
	// example: 7d0f9a43-3f0e-4c8f-9a55-2f7bb3c0a7d1
	TaskID string `json:"task_id,omitempty" example:"7d0f9a43-3f0e-4c8f-9a55-2f7bb3c0a7d1"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Overall bridge state: ready or closed.
	// example: ready
	State string `json:"state" example:"ready"`
	// Device driver name.
	// example: zfm
	Device string `json:"device" example:"zfm"`
	// Whether the device module has been opened successfully.
	// example: true
	DeviceOpen bool `json:"device_open" example:"true"`
	// Whether an event listener is currently registered.
	// example: true
	Listening bool `json:"listening" example:"true"`
	// Tasks waiting for the worker.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Maximum queued tasks before backpressure (-1 = unbounded).
	// example: 32
	MaxQueueDepth int `json:"max_queue_depth" example:"32"`
	// 1 while a hardware call holds the device, else 0.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Command name of the running task, if any.
	// example: getFpFeature
	Running string `json:"running,omitempty" example:"getFpFeature"`
	// Total tasks executed by the worker.
	// example: 12
	TasksTotal uint64 `json:"tasks_total" example:"12"`
	// Events handed to a listener.
	// example: 11
	EventsDelivered uint64 `json:"events_delivered" example:"11"`
	// Events dropped because no listener was registered.
	// example: 1
	EventsDropped uint64 `json:"events_dropped" example:"1"`
	// Queued tasks discarded by teardown.
	// example: 0
	TasksDiscarded uint64 `json:"tasks_discarded" example:"0"`
	// Last error observed by the bridge (if any).
	LastError string `json:"last_error,omitempty"`
	// Uptime of the bridge in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
}
