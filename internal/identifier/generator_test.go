package identifier

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medrex/hms-scheduling/pkg/config"
	"github.com/medrex/hms-scheduling/pkg/database"
	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/types"
)

var patientCodePattern = regexp.MustCompile(`^HMS\d{4}[A-Z0-9]{6}$`)

func fixedClock() time.Time {
	return time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)
}

func setupTestGenerator(t *testing.T, opts ...Option) (*Generator, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	log := logger.New("debug")
	db := database.NewFromSQL(sqlDB, &config.DatabaseConfig{TxTimeout: 5}, log)
	return New(db, 5, log, opts...), mock
}

func codeCollision() error {
	return &pq.Error{Code: "23505", Constraint: PatientCodeConstraint}
}

func TestNewPatientID_Format(t *testing.T) {
	gen, _ := setupTestGenerator(t, WithClock(fixedClock))

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		code, err := gen.NewPatientID()
		require.NoError(t, err)
		assert.Regexp(t, patientCodePattern, code)
		assert.Equal(t, "HMS2025", code[:7])
		seen[code] = true
	}
	assert.Greater(t, len(seen), 490)
}

func TestNewPatientID_RejectsBiasedBytes(t *testing.T) {
	random := bytes.NewReader([]byte{0, 1, 2, 255, 3, 4, 35, 0, 0, 0, 0, 0})
	gen, _ := setupTestGenerator(t, WithClock(fixedClock), WithRandom(random))

	code, err := gen.NewPatientID()
	require.NoError(t, err)
	assert.Equal(t, "HMS2025ABCDE9", code)
}

func TestNewPatientID_RandomFailure(t *testing.T) {
	gen, _ := setupTestGenerator(t, WithRandom(bytes.NewReader(nil)))

	_, err := gen.NewPatientID()
	assert.Error(t, err)
}

func TestRegisterWithRetry_RegeneratesOnCollision(t *testing.T) {
	gen, _ := setupTestGenerator(t, WithClock(fixedClock))

	var tried []string
	code, err := gen.RegisterWithRetry(context.Background(), func(code string) error {
		tried = append(tried, code)
		if len(tried) < 3 {
			return codeCollision()
		}
		return nil
	})

	require.NoError(t, err)
	assert.Len(t, tried, 3)
	assert.Equal(t, tried[2], code)
}

func TestRegisterWithRetry_Exhausted(t *testing.T) {
	gen, _ := setupTestGenerator(t)

	calls := 0
	_, err := gen.RegisterWithRetry(context.Background(), func(string) error {
		calls++
		return codeCollision()
	})

	assert.ErrorIs(t, err, types.ErrIdentifierExhausted)
	assert.Equal(t, 5, calls)
}

func TestRegisterWithRetry_OtherErrorsPropagate(t *testing.T) {
	gen, _ := setupTestGenerator(t)

	emailTaken := &pq.Error{Code: "23505", Constraint: "patients_email_key"}
	calls := 0
	_, err := gen.RegisterWithRetry(context.Background(), func(string) error {
		calls++
		return emailTaken
	})

	assert.ErrorIs(t, err, emailTaken)
	assert.Equal(t, 1, calls)
}

func TestRegisterWithRetry_CancelledContext(t *testing.T) {
	gen, _ := setupTestGenerator(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gen.RegisterWithRetry(ctx, func(string) error { return nil })
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestReserveAppointmentID(t *testing.T) {
	gen, mock := setupTestGenerator(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE id_counters").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow(int64(7)))
	mock.ExpectCommit()

	id, err := gen.ReserveAppointmentID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "APT00007", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveAppointmentID_MissingCounter(t *testing.T) {
	gen, mock := setupTestGenerator(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE id_counters").WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectRollback()

	_, err := gen.ReserveAppointmentID(context.Background())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFormatAppointmentID(t *testing.T) {
	assert.Equal(t, "APT00001", FormatAppointmentID(1))
	assert.Equal(t, "APT12345", FormatAppointmentID(12345))
	assert.Equal(t, "APT123456", FormatAppointmentID(123456))
}
