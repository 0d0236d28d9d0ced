package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"gavel/internal/common/db"
	"gavel/internal/judge/model"
	appErr "gavel/pkg/errors"
)

// ProblemRepository loads problems for judging.
type ProblemRepository interface {
	Get(ctx context.Context, id string) (*model.Problem, error)
}

type problemRepo struct {
	db db.Database
}

// NewProblemRepository creates a MySQL-backed problem repository.
func NewProblemRepository(database db.Database) (ProblemRepository, error) {
	if database == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &problemRepo{db: database}, nil
}

func (r *problemRepo) Get(ctx context.Context, id string) (*model.Problem, error) {
	if id == "" {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("problem id is required")
	}

	var (
		prob     model.Problem
		casesRaw string
	)
	row := r.db.QueryRow(ctx,
		`SELECT id, title, description, input_format, output_format, test_cases, owner_id
		 FROM problems WHERE id = ?`, id)
	err := row.Scan(&prob.ID, &prob.Title, &prob.Description, &prob.InputFormat,
		&prob.OutputFormat, &casesRaw, &prob.OwnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.Newf(appErr.ProblemNotFound, "problem %s not found", id)
	}
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.DatabaseError, "query problem %s failed", id)
	}

	if err := json.Unmarshal([]byte(casesRaw), &prob.TestCases); err != nil {
		return nil, appErr.Wrapf(err, appErr.TestCaseDataInvalid, "decode test cases of problem %s failed", id)
	}
	return &prob, nil
}
