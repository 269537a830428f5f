package ai

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }
func (timeoutErr) Timeout() bool { return true }

func TestIsTransient(t *testing.T) {
	plain := errors.New("boom")
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unmarked", plain, false},
		{"transient", Transient(plain), true},
		{"permanent", Permanent(plain), false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("calling model: %w", context.DeadlineExceeded), true},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), true},
		{"permanent timeout", Permanent(timeoutErr{}), false},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestMarkersKeepCause(t *testing.T) {
	cause := errors.New("rate limited")
	err := Transient(cause)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrTransient)
	assert.Nil(t, Transient(nil))
	assert.Nil(t, Permanent(nil))
}
