package stage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	cause := errors.New("connection reset")

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"timeout", Timeout("OCR service", cause), "OCR service timeout"},
		{"upstream", Upstream("OCR service", 503, cause), "OCR service error: 503"},
		{"malformed", Malformed("OpenAI API", cause), "OpenAI API returned malformed response: connection reset"},
		{"unexpected", Unexpected("OpenAI API", cause), "OpenAI API failed: connection reset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmt.Errorf("run pipeline: %w", Upstream("OCR service", 500, cause))

	var stageErr *Error
	require.True(t, errors.As(wrapped, &stageErr))
	require.Equal(t, ReasonUpstream, stageErr.Reason)
	require.Equal(t, 500, stageErr.Status)
	require.True(t, errors.Is(wrapped, cause))
}
