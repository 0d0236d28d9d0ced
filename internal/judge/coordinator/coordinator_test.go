package coordinator

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"gavel/internal/common/cache"
	"gavel/internal/common/mq"
	"gavel/internal/judge/model"
	"gavel/internal/judge/sandbox"
	"gavel/internal/judge/sandbox/outcome"
	"gavel/internal/judge/scoring"
	appErr "gavel/pkg/errors"
)

type fakeSubmissionRepo struct {
	submissions map[string]*model.Submission
	finalized   map[string]model.Status
	finalizeErr error
	applied     bool
}

func (f *fakeSubmissionRepo) Create(context.Context, *model.Submission) error { return nil }

func (f *fakeSubmissionRepo) Get(_ context.Context, id string) (*model.Submission, error) {
	sub, ok := f.submissions[id]
	if !ok {
		return nil, appErr.Newf(appErr.SubmissionNotFound, "submission %s not found", id)
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubmissionRepo) GetStatus(_ context.Context, id string) (model.Status, error) {
	sub, ok := f.submissions[id]
	if !ok {
		return "", appErr.Newf(appErr.SubmissionNotFound, "submission %s not found", id)
	}
	return sub.Status, nil
}

func (f *fakeSubmissionRepo) FinalizeResult(_ context.Context, id string, status model.Status, results []model.TestResult) (bool, error) {
	if f.finalizeErr != nil {
		return false, f.finalizeErr
	}
	if !f.applied {
		return false, nil
	}
	if f.finalized == nil {
		f.finalized = make(map[string]model.Status)
	}
	f.finalized[id] = status
	f.submissions[id].Status = status
	f.submissions[id].Results = results
	return true, nil
}

type fakeProblemRepo struct {
	problems map[string]*model.Problem
	err      error
}

func (f *fakeProblemRepo) Get(_ context.Context, id string) (*model.Problem, error) {
	if f.err != nil {
		return nil, f.err
	}
	prob, ok := f.problems[id]
	if !ok {
		return nil, appErr.Newf(appErr.ProblemNotFound, "problem %s not found", id)
	}
	return prob, nil
}

type fakeHarness struct {
	verdict model.Verdict
	err     error
	calls   int
}

func (f *fakeHarness) Evaluate(context.Context, *model.Submission, *model.Problem) (model.Verdict, error) {
	f.calls++
	return f.verdict, f.err
}

type fakeExecutor struct {
	killed         []string
	killCtxBounded bool
}

func (f *fakeExecutor) Execute(context.Context, sandbox.ExecRequest) (outcome.Outcome, error) {
	return outcome.Outcome{}, nil
}

func (f *fakeExecutor) Kill(ctx context.Context, submissionID string) error {
	f.killed = append(f.killed, submissionID)
	_, f.killCtxBounded = ctx.Deadline()
	return nil
}

type fakeCreditStore struct {
	credited map[string]bool
	err      error
}

func (f *fakeCreditStore) CreditOnce(_ context.Context, submissionID, _ string, _ int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.credited == nil {
		f.credited = make(map[string]bool)
	}
	if f.credited[submissionID] {
		return false, nil
	}
	f.credited[submissionID] = true
	return true, nil
}

type fixture struct {
	coord       *Coordinator
	submissions *fakeSubmissionRepo
	problems    *fakeProblemRepo
	harness     *fakeHarness
	executor    *fakeExecutor
	store       *fakeCreditStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	if err != nil {
		t.Fatalf("create cache: %v", err)
	}

	store := &fakeCreditStore{}
	accrual, err := scoring.NewAccrual(store, c, 10, "rank:test")
	if err != nil {
		t.Fatalf("NewAccrual: %v", err)
	}

	submissions := &fakeSubmissionRepo{
		submissions: map[string]*model.Submission{
			"s1": {ID: "s1", ProblemID: "p1", UserID: "u1", Code: "print(1)", Language: "python", Status: model.StatusPending},
		},
		applied: true,
	}
	problems := &fakeProblemRepo{
		problems: map[string]*model.Problem{
			"p1": {ID: "p1", TestCases: []model.TestCase{{Input: "1", Output: "1"}}},
		},
	}
	h := &fakeHarness{verdict: model.Verdict{Passed: true, Results: []model.TestResult{{Passed: true}}}}
	executor := &fakeExecutor{}

	coord, err := New(submissions, problems, h, accrual, executor, Config{MaxConcurrent: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &fixture{coord: coord, submissions: submissions, problems: problems, harness: h, executor: executor, store: store}
}

func TestJudgeAcceptedCreditsScore(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if err := f.coord.Judge(context.Background(), "s1"); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if got := f.submissions.finalized["s1"]; got != model.StatusAccepted {
		t.Fatalf("expected accepted, got %q", got)
	}
	if !f.store.credited["s1"] {
		t.Fatal("expected the submission to be credited")
	}
}

func TestJudgeRejectedNoCredit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.harness.verdict = model.Verdict{Passed: false, Results: []model.TestResult{{Passed: false}}}

	if err := f.coord.Judge(context.Background(), "s1"); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if got := f.submissions.finalized["s1"]; got != model.StatusRejected {
		t.Fatalf("expected rejected, got %q", got)
	}
	if f.store.credited["s1"] {
		t.Fatal("rejected submission must not be credited")
	}
}

func TestJudgeTerminalSubmissionIsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.submissions.submissions["s1"].Status = model.StatusRejected

	if err := f.coord.Judge(context.Background(), "s1"); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if f.harness.calls != 0 {
		t.Fatal("terminal submission must not be re-evaluated")
	}
	if f.store.credited["s1"] {
		t.Fatal("terminal rejected submission must not be credited")
	}
}

func TestJudgeRepairsMissedCredit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.submissions.submissions["s1"].Status = model.StatusAccepted

	if err := f.coord.Judge(context.Background(), "s1"); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if f.harness.calls != 0 {
		t.Fatal("terminal submission must not be re-evaluated")
	}
	if !f.store.credited["s1"] {
		t.Fatal("accepted terminal submission must be credited")
	}
}

func TestJudgeInfraFaultLeavesPending(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.harness.err = appErr.New(appErr.SandboxUnavailable)

	err := f.coord.Judge(context.Background(), "s1")
	if appErr.GetCode(err) != appErr.SandboxUnavailable {
		t.Fatalf("expected sandbox error, got %v", err)
	}
	if len(f.submissions.finalized) != 0 {
		t.Fatal("infra fault must not finalize the submission")
	}
	if f.submissions.submissions["s1"].Status != model.StatusPending {
		t.Fatal("submission must stay pending after an infra fault")
	}
}

func TestJudgeInvalidProblemDataRejects(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.problems.err = appErr.New(appErr.TestCaseDataInvalid)

	if err := f.coord.Judge(context.Background(), "s1"); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if got := f.submissions.finalized["s1"]; got != model.StatusRejected {
		t.Fatalf("expected rejected, got %q", got)
	}
	results := f.submissions.submissions["s1"].Results
	if len(results) != 1 || results[0].Error != model.ErrTagInvalid {
		t.Fatalf("expected a single invalid-data diagnostic, got %+v", results)
	}
	if f.store.credited["s1"] {
		t.Fatal("invalid data must not be credited")
	}
}

func TestJudgeConcurrentFinalizeSkipsCredit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.submissions.applied = false

	if err := f.coord.Judge(context.Background(), "s1"); err != nil {
		t.Fatalf("Judge: %v", err)
	}
	if f.store.credited["s1"] {
		t.Fatal("a discarded verdict must not credit the score")
	}
}

func TestJudgeCancelledReclaimsSandbox(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.harness.err = appErr.New(appErr.JudgeCancelled)

	err := f.coord.Judge(context.Background(), "s1")
	if appErr.GetCode(err) != appErr.JudgeCancelled {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if len(f.executor.killed) != 1 || f.executor.killed[0] != "s1" {
		t.Fatalf("expected sandbox reclaim for s1, got %v", f.executor.killed)
	}
	if !f.executor.killCtxBounded {
		t.Fatal("reclaim must use a bounded context so shutdown cannot hang")
	}
}

func TestHandlerDropsBadPayloads(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	handler := f.coord.Handler()

	if err := handler(context.Background(), &mq.Message{ID: "m1", Body: []byte("not json")}); err != nil {
		t.Fatalf("undecodable payload must be dropped, got %v", err)
	}
	if err := handler(context.Background(), &mq.Message{ID: "m2", Body: []byte(`{"submission_id":"missing"}`)}); err != nil {
		t.Fatalf("unknown submission must be dropped, got %v", err)
	}
}

func TestHandlerPropagatesInfraFaults(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.harness.err = appErr.New(appErr.SandboxUnavailable)
	handler := f.coord.Handler()

	err := handler(context.Background(), &mq.Message{ID: "m1", Body: []byte(`{"submission_id":"s1"}`)})
	if err == nil {
		t.Fatal("infra fault must propagate for retry")
	}
	var judgeErr *appErr.Error
	if !errors.As(err, &judgeErr) || judgeErr.Code != appErr.SandboxUnavailable {
		t.Fatalf("expected sandbox error, got %v", err)
	}
}
