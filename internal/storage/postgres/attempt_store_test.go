package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/puzzle-proxy/internal/resolver"
)

func TestRecordAttemptInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewAttemptStoreWithPool(mock, "")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	attempt := resolver.Attempt{
		ID:          "0190-attempt",
		Date:        "2024-03-05",
		Candidate:   "nyt-mini-game",
		URL:         "https://www.nytimes.com/crosswords/game/mini/2024/3/5",
		StatusCode:  200,
		Outcome:     resolver.OutcomeExtractionError,
		BodyHash:    "abc123",
		SnapshotURI: "gs://bucket/snapshots/2024-03-05/nyt-mini-game-abc123.html",
		ErrorText:   "extract document: no extraction rule matched",
		Duration:    1500 * time.Millisecond,
		AttemptedAt: now,
	}

	mock.ExpectExec("INSERT INTO puzzle_attempts").
		WithArgs(
			attempt.ID,
			attempt.Date,
			attempt.Candidate,
			attempt.URL,
			attempt.StatusCode,
			"extraction_error",
			"",
			false,
			attempt.BodyHash,
			attempt.SnapshotURI,
			attempt.ErrorText,
			int64(1500),
			now,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordAttempt(context.Background(), attempt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAttemptExecError(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewAttemptStoreWithPool(mock, "ledger")
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO ledger").WillReturnError(errors.New("connection refused"))

	err = store.RecordAttempt(context.Background(), resolver.Attempt{ID: "x", Outcome: resolver.OutcomeSuccess})
	require.ErrorContains(t, err, "insert attempt")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordAttemptValidation(t *testing.T) {
	t.Parallel()

	var nilStore *AttemptStore
	require.Error(t, nilStore.RecordAttempt(context.Background(), resolver.Attempt{ID: "x"}))
	nilStore.Close()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewAttemptStoreWithPool(mock, "")
	require.NoError(t, err)
	require.Error(t, store.RecordAttempt(context.Background(), resolver.Attempt{}))
}

func TestConstructorsValidate(t *testing.T) {
	t.Parallel()

	_, err := NewAttemptStoreWithPool(nil, "")
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	_, err = NewAttemptStoreWithPool(mock, "bad-name;drop")
	require.Error(t, err)

	_, err = NewAttemptStore(context.Background(), AttemptStoreConfig{})
	require.ErrorContains(t, err, "ledger.dsn")

	_, err = NewAttemptStore(context.Background(), AttemptStoreConfig{DSN: "postgres://u:p@localhost/db", Table: "1bad"})
	require.ErrorContains(t, err, "invalid table name")
}

func TestPing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	store, err := NewAttemptStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectPing()
	require.NoError(t, store.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("down"))
	require.ErrorContains(t, store.Ping(context.Background()), "ping postgres")
	require.NoError(t, mock.ExpectationsWereMet())
}
