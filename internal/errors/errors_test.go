package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorFormatting(t *testing.T) {
	cause := fmt.Errorf("underlying")
	err := NewAppError(ErrorTypeSQL, "statement failed", cause)

	assert.Contains(t, err.Error(), "sql")
	assert.Contains(t, err.Error(), "statement failed")
	assert.Contains(t, err.Error(), "underlying")
	assert.Equal(t, cause, err.Unwrap())
}

func TestClassifySQLServerErrors(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		number   int32
		expected ErrorType
	}{
		{18456, ErrorTypePermission},
		{4060, ErrorTypeValidation},
		{208, ErrorTypeLoader},
		{207, ErrorTypeLoader},
		{102, ErrorTypeSQL},
		{547, ErrorTypeSQL},
		{2627, ErrorTypeValidation},
	}

	for _, tt := range tests {
		appErr := classifier.ClassifyError(mssql.Error{Number: tt.number, Message: "x"})
		require.NotNil(t, appErr, "number %d", tt.number)
		assert.Equal(t, tt.expected, appErr.Type, "number %d", tt.number)
	}

	// deadlocks are worth retrying
	deadlock := classifier.ClassifyError(mssql.Error{Number: 1205, Message: "deadlock victim"})
	assert.True(t, deadlock.IsRecoverable())
}

func TestClassifyContextErrors(t *testing.T) {
	classifier := NewErrorClassifier()

	canceled := classifier.ClassifyError(context.Canceled)
	assert.Equal(t, ErrorTypeInterruption, canceled.Type)

	deadline := classifier.ClassifyError(context.DeadlineExceeded)
	assert.Equal(t, ErrorTypeTimeout, deadline.Type)
	assert.True(t, deadline.IsRecoverable())
}

func TestNoChangesSignal(t *testing.T) {
	assert.True(t, IsNoChanges(ErrNoChangesToMigrate))
	assert.True(t, IsNoChanges(fmt.Errorf("wrapped: %w", ErrNoChangesToMigrate)))
	assert.False(t, IsNoChanges(fmt.Errorf("other")))
}

func TestIncoherentDiffAndUnsupported(t *testing.T) {
	incoherent := NewIncoherentDiff("users", "modified table is absent from the target schema")
	assert.Equal(t, ErrorTypeIncoherentDiff, incoherent.Type)
	assert.Contains(t, incoherent.Error(), "users")

	unsupported := NewUnsupported("users", "id", "identity reseed")
	assert.Equal(t, ErrorTypeUnsupported, unsupported.Type)
	assert.Contains(t, unsupported.Error(), "users.id")
}

func TestRetryStopsOnFatalError(t *testing.T) {
	handler := NewRetryHandler(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Multiplier:  1,
	})

	attempts := 0
	err := handler.Retry(context.Background(), func() error {
		attempts++
		return NewAppError(ErrorTypeValidation, "bad input", nil)
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "fatal errors must not be retried")
}

func TestRetryRecoverableUntilSuccess(t *testing.T) {
	handler := NewRetryHandler(RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Multiplier:  1,
	})

	attempts := 0
	err := handler.Retry(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return NewRecoverableError(ErrorTypeConnection, "flaky", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWrapErrorKeepsType(t *testing.T) {
	original := NewAppError(ErrorTypeIO, "write failed", nil)
	wrapped := WrapError(original, "while persisting scripts")

	assert.Equal(t, ErrorTypeIO, GetErrorType(wrapped))
	assert.Contains(t, wrapped.Error(), "while persisting scripts")
}
