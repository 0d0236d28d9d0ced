package main

// Mirror of the engine's init request wire format. Kept local so the helper
// binary has no dependency on the engine package.

type resourceLimit struct {
	WallTimeMs int64
	CPUQuota   int64
	CPUPeriod  int64
	MemoryMB   int64
	StackMB    int64
	OutputMB   int64
	PIDs       int64
}

type mountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

type runSpec struct {
	SubmissionID string
	TaskID       string
	WorkDir      string
	Cmd          []string
	Env          []string
	StdinPath    string
	StdoutPath   string
	StderrPath   string
	BindMounts   []mountSpec
	Limits       resourceLimit
}

type isolationProfile struct {
	RootFS string
}

type initRequest struct {
	RunSpec   runSpec
	Isolation isolationProfile
	EnableNs  bool
}
