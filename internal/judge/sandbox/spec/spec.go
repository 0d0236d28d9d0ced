// Package spec defines the execution specification and resource limits.
package spec

// ResourceLimit describes hard limits enforced by the sandbox.
type ResourceLimit struct {
	WallTimeMs int64
	CPUQuota   int64 // microseconds of CPU per CPUPeriod
	CPUPeriod  int64 // microseconds
	MemoryMB   int64
	StackMB    int64
	OutputMB   int64
	PIDs       int64
}

// Default limits per invocation: 5s wall clock, 128 MB memory, half a CPU.
const (
	DefaultWallTimeMs int64 = 5000
	DefaultMemoryMB   int64 = 128
	DefaultCPUQuota   int64 = 50000
	DefaultCPUPeriod  int64 = 100000
	DefaultOutputMB   int64 = 16
	DefaultPIDs       int64 = 16
)

// Defaults returns the standard per-invocation limits.
func Defaults() ResourceLimit {
	return ResourceLimit{
		WallTimeMs: DefaultWallTimeMs,
		CPUQuota:   DefaultCPUQuota,
		CPUPeriod:  DefaultCPUPeriod,
		MemoryMB:   DefaultMemoryMB,
		OutputMB:   DefaultOutputMB,
		PIDs:       DefaultPIDs,
	}
}

// Normalize fills in zero fields with the defaults.
func (l ResourceLimit) Normalize() ResourceLimit {
	d := Defaults()
	if l.WallTimeMs <= 0 {
		l.WallTimeMs = d.WallTimeMs
	}
	if l.CPUQuota <= 0 {
		l.CPUQuota = d.CPUQuota
	}
	if l.CPUPeriod <= 0 {
		l.CPUPeriod = d.CPUPeriod
	}
	if l.MemoryMB <= 0 {
		l.MemoryMB = d.MemoryMB
	}
	if l.OutputMB <= 0 {
		l.OutputMB = d.OutputMB
	}
	if l.PIDs <= 0 {
		l.PIDs = d.PIDs
	}
	return l
}

// MountSpec describes a bind mount inside the sandbox.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// RunSpec is the unified execution specification for one task.
type RunSpec struct {
	SubmissionID string
	TaskID       string
	WorkDir      string
	Cmd          []string
	Env          []string
	StdinPath    string
	StdoutPath   string
	StderrPath   string
	BindMounts   []MountSpec
	Limits       ResourceLimit
}
