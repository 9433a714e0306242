package linky

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"activation", endOfHistory("The requested period cannot be anterior to the meter's last activation date"), ErrorKindMeterActivation},
		{"deadline", endOfHistory("The start date must be greater than the history deadline."), ErrorKindHistoryDeadline},
		{"no measure", endOfHistory("no measure found for this usage point"), ErrorKindNoMeasure},
		{"wrapped", fmt.Errorf("daily: %w", endOfHistory("no measure found for this usage point")), ErrorKindNoMeasure},
		{"case differs", endOfHistory("No measure found for this usage point"), ErrorKindUnknown},
		{"other api error", endOfHistory("Internal server error"), ErrorKindUnknown},
		{"plain error", errors.New("no measure found for this usage point"), ErrorKindUnknown},
		{"nil", nil, ErrorKindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
			assert.Equal(t, tt.want != ErrorKindUnknown, IsEndOfHistory(tt.err))
		})
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := &APIError{StatusCode: 404, Endpoint: dailyResource, Code: "ADAM-DC-0008", Description: "no measure found for this usage point"}
	assert.Equal(t, "API error (404) at daily_consumption: no measure found for this usage point", err.Error())

	err = &APIError{StatusCode: 500, Endpoint: dailyResource, Code: "server_error"}
	assert.Equal(t, "API error (500) at daily_consumption: server_error", err.Error())
}

func TestAuthErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &AuthError{Message: "login request failed", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}
