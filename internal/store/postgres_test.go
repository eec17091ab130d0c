package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yys/safewalk-cli/internal/riskclass"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_SaveAnalysis(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := sampleResult(t, "경주시", riskclass.MethodAdaptive)
	high, medium, low := tierCounts(r)

	mock.ExpectExec(`INSERT INTO safewalk.analysis_runs`).
		WithArgs(pgxmock.AnyArg(), "경주시", "adaptive", 4, high, medium, low, pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := s.SaveAnalysis(context.Background(), r)
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveAnalysis_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`INSERT INTO safewalk.analysis_runs`).WillReturnError(errors.New("relation does not exist"))

	_, err := s.SaveAnalysis(context.Background(), sampleResult(t, "경주시", riskclass.MethodAdaptive))
	assert.ErrorContains(t, err, "postgres: insert analysis")
}

func TestPostgresStore_GetAnalysis(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	r := sampleResult(t, "경주시", riskclass.MethodPercentile)
	body, err := json.Marshal(r)
	require.NoError(t, err)

	const id = "6f1c2b9e-7c55-4d8c-9d2c-1f8a4b3c2d10"
	mock.ExpectQuery(`SELECT result FROM safewalk.analysis_runs WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow(body))

	got, err := s.GetAnalysis(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, r.Criteria, got.Criteria)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalysis_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT result FROM safewalk.analysis_runs`).
		WithArgs("6f1c2b9e-7c55-4d8c-9d2c-1f8a4b3c2d10").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetAnalysis(context.Background(), "6f1c2b9e-7c55-4d8c-9d2c-1f8a4b3c2d10")
	assert.ErrorIs(t, err, ErrNotFound)

	// malformed ids never reach the database
	_, err = s.GetAnalysis(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAnalyses(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	at := time.Date(2025, 8, 17, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`FROM safewalk.analysis_runs`).
		WithArgs("adaptive", "", 100, 0).
		WillReturnRows(pgxmock.NewRows([]string{"id", "region_name", "method", "region_count", "high_count", "medium_count", "low_count", "created_at"}).
			AddRow("a", "경주시", "adaptive", 13, 3, 4, 6, at).
			AddRow("b", "강남구", "adaptive", 22, 5, 9, 8, at.Add(-time.Hour)))

	runs, err := s.ListAnalyses(context.Background(), RunFilter{Method: "adaptive"})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, RunSummary{ID: "a", RegionName: "경주시", Method: "adaptive", RegionCount: 13, High: 3, Medium: 4, Low: 6, CreatedAt: at}, runs[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	mock.ExpectExec(`SELECT 1`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}
