package jobmanager

// JobState is the lifecycle state reported for a job.
type JobState string

const (
	Created     JobState = "CREATED"
	Running     JobState = "RUNNING"
	Failing     JobState = "FAILING"
	Failed      JobState = "FAILED"
	Cancelling  JobState = "CANCELLING"
	Canceled    JobState = "CANCELED"
	Finished    JobState = "FINISHED"
	Restarting  JobState = "RESTARTING"
	Suspended   JobState = "SUSPENDED"
	Reconciling JobState = "RECONCILING"
)

// SavepointStatus is the status of an asynchronous savepoint request.
type SavepointStatus string

const (
	SavepointInProgress SavepointStatus = "IN_PROGRESS"
	SavepointCompleted  SavepointStatus = "COMPLETED"
	SavepointFailed     SavepointStatus = "FAILED"
)

// JarEntry is an entry class found in an uploaded jar.
type JarEntry struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// JarFile describes an uploaded jar.
type JarFile struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Uploaded int64      `json:"uploaded"`
	Entry    []JarEntry `json:"entry,omitempty"`
}

// JarList is the response of GET /jars.
type JarList struct {
	Address string    `json:"address"`
	Files   []JarFile `json:"files"`
}

type uploadResponse struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// RunParams are the optional run options of POST /jars/{jarId}/run.
// Nil fields are left out of the payload entirely.
type RunParams struct {
	AllowNonRestoredState *bool   `json:"allowNonRestoredState,omitempty"`
	ProgramArg            *string `json:"programArg,omitempty"`
	Parallelism           *int    `json:"parallelism,omitempty"`
	EntryClass            *string `json:"entryClass,omitempty"`
	SavepointPath         *string `json:"savepointPath,omitempty"`
}

// RunResponse is the response of a successful run request.
type RunResponse struct {
	JobID string `json:"jobid"`
}

// JobDetails is the subset of GET /jobs/{jobId} that flinkctl reads.
type JobDetails struct {
	ID        string   `json:"jid"`
	Name      string   `json:"name"`
	State     JobState `json:"state"`
	StartTime int64    `json:"start-time,omitempty"`
	EndTime   int64    `json:"end-time,omitempty"`
	Duration  int64    `json:"duration,omitempty"`
}

// JobSummary is one entry of GET /jobs.
type JobSummary struct {
	ID     string   `json:"id"`
	Status JobState `json:"status"`
}

// JobList is the response of GET /jobs.
type JobList struct {
	Jobs []JobSummary `json:"jobs"`
}

type savepointRequest struct {
	TargetDirectory string `json:"target-directory"`
	CancelJob       bool   `json:"cancel-job"`
}

type triggerResponse struct {
	RequestID string `json:"request-id"`
}

// FailureCause is the failure reported for a finished savepoint request.
type FailureCause struct {
	Class      string `json:"class,omitempty"`
	StackTrace string `json:"stack-trace"`
}

// SavepointInfo is the response of GET /jobs/{jobId}/savepoints/{requestId}.
// A finished request carries either a location or a failure cause.
type SavepointInfo struct {
	Status struct {
		ID SavepointStatus `json:"id"`
	} `json:"status"`
	Operation struct {
		Location     string        `json:"location,omitempty"`
		FailureCause *FailureCause `json:"failure-cause,omitempty"`
	} `json:"operation"`
}

// Overview is the response of GET /overview.
type Overview struct {
	TaskManagers   int    `json:"taskmanagers"`
	SlotsTotal     int    `json:"slots-total"`
	SlotsAvailable int    `json:"slots-available"`
	JobsRunning    int    `json:"jobs-running"`
	JobsFinished   int    `json:"jobs-finished"`
	JobsCancelled  int    `json:"jobs-cancelled"`
	JobsFailed     int    `json:"jobs-failed"`
	FlinkVersion   string `json:"flink-version"`
}
