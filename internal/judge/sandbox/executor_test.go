package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gavel/internal/judge/sandbox/outcome"
	"gavel/internal/judge/sandbox/profile"
	"gavel/internal/judge/sandbox/spec"
	appErr "gavel/pkg/errors"
)

type fakeEngine struct {
	results []outcome.RunResult
	err     error
	specs   []spec.RunSpec
	killed  []string
}

func (f *fakeEngine) Run(_ context.Context, rs spec.RunSpec) (outcome.RunResult, error) {
	f.specs = append(f.specs, rs)
	if f.err != nil {
		return outcome.RunResult{}, f.err
	}
	if len(f.results) == 0 {
		return outcome.RunResult{}, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func (f *fakeEngine) KillSubmission(_ context.Context, submissionID string) error {
	f.killed = append(f.killed, submissionID)
	return nil
}

func newTestExecutor(t *testing.T, eng *fakeEngine) (Executor, string) {
	t.Helper()
	workRoot := t.TempDir()
	exec, err := NewExecutor(eng, profile.NewStaticRegistry(nil), workRoot)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return exec, workRoot
}

func pythonRequest() ExecRequest {
	return ExecRequest{
		SubmissionID: "s1",
		TaskID:       "case-0",
		Code:         "print(input())",
		Language:     "python",
		Input:        "hello\n",
	}
}

func TestExecuteSuccess(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{results: []outcome.RunResult{
		{ExitCode: 0, Stdout: "hello\n", TimeMs: 10, MemoryKB: 900},
	}}
	exec, workRoot := newTestExecutor(t, eng)

	out, err := exec.Execute(context.Background(), pythonRequest())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Kind != outcome.KindOutput || out.Stdout != "hello\n" {
		t.Fatalf("unexpected outcome: %+v", out)
	}

	if len(eng.specs) != 1 {
		t.Fatalf("expected one engine run, got %d", len(eng.specs))
	}
	rs := eng.specs[0]
	if rs.Cmd[0] != "python3" {
		t.Fatalf("unexpected command: %v", rs.Cmd)
	}
	if rs.StdinPath == "" || rs.StdoutPath == "" {
		t.Fatalf("expected IO paths to be set: %+v", rs)
	}

	if _, err := os.Stat(filepath.Join(workRoot, "s1")); !os.IsNotExist(err) {
		t.Fatal("expected workspace to be removed after execution")
	}
}

func TestExecuteClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		result outcome.RunResult
		kind   outcome.Kind
	}{
		{"timeout", outcome.RunResult{TimedOut: true, ExitCode: -1, WallTimeMs: 5100}, outcome.KindTimedOut},
		{"oom", outcome.RunResult{OomKilled: true, ExitCode: -1, MemoryKB: 131072}, outcome.KindResourceExceeded},
		{"crash", outcome.RunResult{ExitCode: 2, Stderr: "boom"}, outcome.KindRuntimeError},
		{"clean", outcome.RunResult{ExitCode: 0, Stdout: "ok"}, outcome.KindOutput},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			eng := &fakeEngine{results: []outcome.RunResult{tc.result}}
			exec, _ := newTestExecutor(t, eng)

			out, err := exec.Execute(context.Background(), pythonRequest())
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if out.Kind != tc.kind {
				t.Fatalf("expected kind %q, got %q", tc.kind, out.Kind)
			}
			if out.Stage != outcome.StageRun {
				t.Fatalf("expected run stage, got %q", out.Stage)
			}
		})
	}
}

func TestExecuteCompileFailure(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{results: []outcome.RunResult{
		{ExitCode: 1, Stderr: "main.cpp:1: error"},
	}}
	exec, _ := newTestExecutor(t, eng)

	req := pythonRequest()
	req.Language = "cpp"
	req.Code = "int main( {"

	out, err := exec.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Kind != outcome.KindRuntimeError || out.Stage != outcome.StageCompile {
		t.Fatalf("expected compile failure outcome, got %+v", out)
	}
	if len(eng.specs) != 1 {
		t.Fatalf("compile failure must not trigger a run, got %d engine calls", len(eng.specs))
	}
}

func TestExecuteCompileThenRun(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{results: []outcome.RunResult{
		{ExitCode: 0},
		{ExitCode: 0, Stdout: "42"},
	}}
	exec, _ := newTestExecutor(t, eng)

	req := pythonRequest()
	req.Language = "cpp"

	out, err := exec.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if out.Kind != outcome.KindOutput || out.Stdout != "42" {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if len(eng.specs) != 2 {
		t.Fatalf("expected compile and run, got %d engine calls", len(eng.specs))
	}
	if eng.specs[0].Cmd[0] != "g++" {
		t.Fatalf("expected compile command first, got %v", eng.specs[0].Cmd)
	}
}

func TestExecuteUnknownLanguage(t *testing.T) {
	t.Parallel()

	exec, _ := newTestExecutor(t, &fakeEngine{})

	req := pythonRequest()
	req.Language = "cobol"

	_, err := exec.Execute(context.Background(), req)
	if appErr.GetCode(err) != appErr.UnsupportedLanguage {
		t.Fatalf("expected unsupported language error, got %v", err)
	}
}

func TestExecuteEngineFaultIsInfraError(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{err: os.ErrPermission}
	exec, _ := newTestExecutor(t, eng)

	_, err := exec.Execute(context.Background(), pythonRequest())
	if appErr.GetCode(err) != appErr.SandboxUnavailable {
		t.Fatalf("expected sandbox unavailable, got %v", err)
	}
}

func TestKillDelegatesToEngine(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	exec, _ := newTestExecutor(t, eng)

	if err := exec.Kill(context.Background(), "s1"); err != nil {
		t.Fatalf("Kill: %v", err)
	}
	if len(eng.killed) != 1 || eng.killed[0] != "s1" {
		t.Fatalf("expected kill for s1, got %v", eng.killed)
	}
}
