package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uni-enroll-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestEnrollmentRepositoryCreateWithDetails(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_records")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_details")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "sec-a").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO enrollment_details")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "sec-b").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	record := &models.EnrollmentRecord{
		StudentID: "student-1",
		PeriodID:  "period-1",
		Online:    true,
	}
	require.NoError(t, repo.CreateWithDetails(context.Background(), record, []string{"sec-a", "sec-b"}))
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, models.EnrollmentStatusPending, record.Status)
	assert.False(t, record.RequestedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryConfirmApplied(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM enrollment_records WHERE id = $1 FOR UPDATE")).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT section_id FROM enrollment_details WHERE record_id = $1 ORDER BY section_id ASC")).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"section_id"}).AddRow("sec-a").AddRow("sec-b"))
	// expectations are ordered: sec-a must be locked before sec-b
	mock.ExpectQuery(regexp.QuoteMeta("FROM sections s WHERE s.id = $1 FOR UPDATE")).
		WithArgs("sec-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "seats_left", "course_code"}).AddRow("sec-a", "A", 2, "MATH-101"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM sections s WHERE s.id = $1 FOR UPDATE")).
		WithArgs("sec-b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "seats_left", "course_code"}).AddRow("sec-b", "B", 1, "PHYS-110"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET seats_left = seats_left - 1")).
		WithArgs("sec-a", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sections SET seats_left = seats_left - 1")).
		WithArgs("sec-b", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_records SET status = $2, processed_at = $3, rejection_reason = NULL")).
		WithArgs("rec-1", models.EnrollmentStatusConfirmed, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.Confirm(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, ConfirmApplied, result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryConfirmSeatsExhausted(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM enrollment_records WHERE id = $1 FOR UPDATE")).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("PENDING"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT section_id FROM enrollment_details")).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"section_id"}).AddRow("sec-a").AddRow("sec-b"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM sections s WHERE s.id = $1 FOR UPDATE")).
		WithArgs("sec-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "seats_left", "course_code"}).AddRow("sec-a", "A", 0, "MATH-101"))
	mock.ExpectQuery(regexp.QuoteMeta("FROM sections s WHERE s.id = $1 FOR UPDATE")).
		WithArgs("sec-b").
		WillReturnRows(sqlmock.NewRows([]string{"id", "label", "seats_left", "course_code"}).AddRow("sec-b", "B", 3, "PHYS-110"))
	mock.ExpectRollback()

	result, err := repo.Confirm(context.Background(), "rec-1")
	require.Error(t, err)
	assert.Equal(t, ConfirmFailed, result)

	var exhausted *SeatsExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, []string{"MATH-101 (A)"}, exhausted.Sections)
	assert.Equal(t, "no seats left in MATH-101 (A)", exhausted.Error())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryConfirmMissingRecord(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM enrollment_records WHERE id = $1 FOR UPDATE")).
		WithArgs("rec-missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	result, err := repo.Confirm(context.Background(), "rec-missing")
	require.NoError(t, err)
	assert.Equal(t, ConfirmRecordMissing, result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryConfirmTerminalRecord(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT status FROM enrollment_records WHERE id = $1 FOR UPDATE")).
		WithArgs("rec-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("CONFIRMED"))
	mock.ExpectRollback()

	result, err := repo.Confirm(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, ConfirmRecordTerminal, result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryReject(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_records SET status = $2, rejection_reason = $3, processed_at = $4 WHERE id = $1 AND status = $5")).
		WithArgs("rec-1", models.EnrollmentStatusRejected, "schedule conflict", sqlmock.AnyArg(), models.EnrollmentStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rejected, err := repo.Reject(context.Background(), "rec-1", "schedule conflict")
	require.NoError(t, err)
	assert.True(t, rejected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryRejectTerminalNoop(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE enrollment_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	rejected, err := repo.Reject(context.Background(), "rec-1", "late")
	require.NoError(t, err)
	assert.False(t, rejected)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindActiveByStudentAndPeriod(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "student_id", "period_id", "status", "online", "rejection_reason", "requested_at", "processed_at"}).
		AddRow("rec-1", "student-1", "period-1", "CONFIRMED", false, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("status IN ($3,$4)")).
		WithArgs("student-1", "period-1", models.EnrollmentStatusPending, models.EnrollmentStatusConfirmed).
		WillReturnRows(rows)

	record, err := repo.FindActiveByStudentAndPeriod(context.Background(), "student-1", "period-1", nil, "")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, models.EnrollmentStatusConfirmed, record.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryFindActiveExcludesCurrent(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("AND id <> $4")).
		WithArgs("student-1", "period-1", models.EnrollmentStatusConfirmed, "rec-self").
		WillReturnError(sql.ErrNoRows)

	record, err := repo.FindActiveByStudentAndPeriod(context.Background(), "student-1", "period-1", []models.EnrollmentStatus{models.EnrollmentStatusConfirmed}, "rec-self")
	require.NoError(t, err)
	assert.Nil(t, record)
	require.NoError(t, mock.ExpectationsWereMet())
}
