package model

import (
	"testing"

	appErr "gavel/pkg/errors"
)

func TestStatusTerminal(t *testing.T) {
	t.Parallel()

	if StatusPending.Terminal() {
		t.Fatal("pending must not be terminal")
	}
	if !StatusAccepted.Terminal() || !StatusRejected.Terminal() {
		t.Fatal("accepted and rejected must be terminal")
	}
}

func TestProblemValidate(t *testing.T) {
	t.Parallel()

	valid := &Problem{ID: "p1", TestCases: []TestCase{{Input: "1", Output: "1"}}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid problem rejected: %v", err)
	}

	empty := &Problem{ID: "p1"}
	if appErr.GetCode(empty.Validate()) != appErr.RequiredFieldEmpty {
		t.Fatal("problem without test cases must be rejected")
	}

	noID := &Problem{TestCases: []TestCase{{Input: "1", Output: "1"}}}
	if appErr.GetCode(noID.Validate()) != appErr.RequiredFieldEmpty {
		t.Fatal("problem without id must be rejected")
	}

	malformed := &Problem{ID: "p1", TestCases: []TestCase{
		{Input: "1", Output: "1"},
		{Input: "", Output: ""},
	}}
	err := malformed.Validate()
	if appErr.GetCode(err) != appErr.TestCaseDataInvalid {
		t.Fatalf("expected invalid test case error, got %v", err)
	}
}

func TestProblemValidateAllowsOneSidedCases(t *testing.T) {
	t.Parallel()

	// A case may have empty input (no stdin) or empty output, just not both.
	p := &Problem{ID: "p1", TestCases: []TestCase{
		{Input: "", Output: "hello"},
		{Input: "x", Output: ""},
	}}
	if err := p.Validate(); err != nil {
		t.Fatalf("one-sided cases rejected: %v", err)
	}
}
