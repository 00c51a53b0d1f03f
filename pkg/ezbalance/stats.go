package ezbalance

// Stats is a point-in-time snapshot of a Pool. Fields are read independently
// and may not be mutually consistent under load.
type Stats struct {
	Workers          int           `json:"workers"`
	Threshold        int           `json:"threshold"`
	Pending          int           `json:"pending"`
	PermitsAvailable int64         `json:"permits_available"`
	Routed           uint64        `json:"routed"`
	Dropped          uint64        `json:"dropped"`
	Executed         uint64        `json:"executed"`
	Failed           uint64        `json:"failed"`
	Closed           bool          `json:"closed"`
	PerWorker        []WorkerStats `json:"per_worker"`
}

// WorkerStats describes one worker.
type WorkerStats struct {
	ID            int    `json:"id"`
	QueueDepth    int    `json:"queue_depth"`
	Executed      uint64 `json:"executed"`
	Failed        uint64 `json:"failed"`
	NoSpaceFired  uint64 `json:"no_space_fired"`
	HasSpaceFired uint64 `json:"has_space_fired"`
	Running       bool   `json:"running"`
}
