package engine

import (
	"gavel/internal/judge/sandbox/profile"
	"gavel/internal/judge/sandbox/spec"
)

// initRequest is the wire format handed to the sandbox-init helper on stdin.
// cmd/sandbox-init keeps a mirror of this structure.
type initRequest struct {
	RunSpec   spec.RunSpec
	Isolation profile.IsolationProfile
	EnableNs  bool
}
