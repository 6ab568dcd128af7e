package identifier

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/medrex/hms-scheduling/pkg/database"
	"github.com/medrex/hms-scheduling/pkg/logger"
	"github.com/medrex/hms-scheduling/pkg/types"
)

const (
	patientPrefix     = "HMS"
	patientSuffixLen  = 6
	patientAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	appointmentPrefix = "APT"

	// PatientCodeConstraint is the unique constraint guarding patient codes
	PatientCodeConstraint = "patients_patient_code_key"

	nextAppointmentQuery = `
		UPDATE id_counters
		SET value = value + 1
		WHERE name = 'appointment'
		RETURNING value`
)

// largest multiple of len(patientAlphabet) that fits in a byte; bytes at or
// above it are rejected so every character is equally likely
const maxUnbiasedByte = 256 - 256%len(patientAlphabet)

// Generator issues patient and appointment identifiers
type Generator struct {
	db       *database.DB
	logger   *logger.Logger
	attempts int
	now      func() time.Time
	random   io.Reader
}

// Option customises a Generator
type Option func(*Generator)

// WithClock overrides the clock used for the patient code year
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithRandom overrides the randomness source for patient codes
func WithRandom(r io.Reader) Option {
	return func(g *Generator) { g.random = r }
}

// New creates a Generator. attempts bounds patient code regeneration.
func New(db *database.DB, attempts int, log *logger.Logger, opts ...Option) *Generator {
	if attempts < 1 {
		attempts = 1
	}
	g := &Generator{
		db:       db,
		logger:   log,
		attempts: attempts,
		now:      time.Now,
		random:   rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewPatientID returns "HMS" + current year + 6 random [A-Z0-9] characters
func (g *Generator) NewPatientID() (string, error) {
	suffix := make([]byte, 0, patientSuffixLen)
	buf := make([]byte, patientSuffixLen*2)

	for len(suffix) < patientSuffixLen {
		if _, err := io.ReadFull(g.random, buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			suffix = append(suffix, patientAlphabet[int(b)%len(patientAlphabet)])
			if len(suffix) == patientSuffixLen {
				break
			}
		}
	}

	return fmt.Sprintf("%s%d%s", patientPrefix, g.now().Year(), suffix), nil
}

// RegisterWithRetry calls insert with fresh patient codes until one is
// accepted. Only a unique violation on the patient code triggers another
// attempt; any other failure is returned as is.
func (g *Generator) RegisterWithRetry(ctx context.Context, insert func(code string) error) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= g.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		code, err := g.NewPatientID()
		if err != nil {
			return "", err
		}

		err = insert(code)
		if err == nil {
			return code, nil
		}
		if !database.IsUniqueViolation(err, PatientCodeConstraint) {
			return "", err
		}

		lastErr = err
		g.logger.WithContext(ctx).WithField("attempt", attempt).Warn("Patient code collision, regenerating")
	}

	return "", types.NewIdentifierExhaustedError(g.attempts, lastErr)
}

// NextAppointmentID advances the persisted appointment counter inside tx.
// The counter row stays locked until tx ends, so numbers are issued in
// commit order and a rolled back tx gives its number back.
func (g *Generator) NextAppointmentID(ctx context.Context, tx *sql.Tx) (string, error) {
	var value int64
	if err := tx.QueryRowContext(ctx, nextAppointmentQuery).Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", errors.New("appointment counter is not initialised")
		}
		return "", fmt.Errorf("failed to advance appointment counter: %w", err)
	}
	return FormatAppointmentID(value), nil
}

// ReserveAppointmentID issues an appointment identifier in its own transaction
func (g *Generator) ReserveAppointmentID(ctx context.Context) (string, error) {
	var id string
	err := g.db.WithTx(ctx, nil, func(txCtx context.Context, tx *sql.Tx) error {
		var err error
		id, err = g.NextAppointmentID(txCtx, tx)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// FormatAppointmentID renders a counter value as an appointment identifier
func FormatAppointmentID(value int64) string {
	return fmt.Sprintf("%s%05d", appointmentPrefix, value)
}
