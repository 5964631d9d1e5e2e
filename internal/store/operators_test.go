package store

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRow is a minimal pgx.Row stand-in so scanOperator/scanOperatorSession's
// error-mapping can be exercised without a live Postgres connection.
type fakeRow struct {
	err error
}

func (r fakeRow) Scan(dest ...interface{}) error { return r.err }

func TestScanOperator_NoRowsMapsToErrNotFound(t *testing.T) {
	_, err := scanOperator(fakeRow{err: pgx.ErrNoRows})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanOperator_OtherErrorPassesThrough(t *testing.T) {
	boom := assert.AnError
	_, err := scanOperator(fakeRow{err: boom})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, err == ErrNotFound)
}

func TestScanOperatorSession_NoRowsMapsToErrNotFound(t *testing.T) {
	_, err := scanOperatorSession(fakeRow{err: pgx.ErrNoRows})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScanOperatorSession_OtherErrorPassesThrough(t *testing.T) {
	boom := assert.AnError
	_, err := scanOperatorSession(fakeRow{err: boom})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
