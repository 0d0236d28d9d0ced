package model

// TestCase is one input/expected-output pair of a problem.
type TestCase struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Problem holds the statement and the ordered test cases used for judging.
// A problem is immutable once evaluation begins; the harness only reads it.
type Problem struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	InputFormat  string     `json:"input_format"`
	OutputFormat string     `json:"output_format"`
	TestCases    []TestCase `json:"test_cases"`
	OwnerID      string     `json:"owner_id"`
}

// Validate checks the problem data the judge depends on.
func (p *Problem) Validate() error {
	if p.ID == "" {
		return errRequired("problem id")
	}
	if len(p.TestCases) == 0 {
		return errRequired("test cases")
	}
	for i, tc := range p.TestCases {
		if tc.Input == "" && tc.Output == "" {
			return errMalformedCase(i)
		}
	}
	return nil
}
