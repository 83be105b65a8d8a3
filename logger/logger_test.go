package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerUsableBeforeInitialize(t *testing.T) {
	require.NotNil(t, Logger)
	assert.NotPanics(t, func() {
		Infow("before init", FieldJobID, "j1")
		Debugw("before init")
	})
}

func TestInitializeConsoleAndJSON(t *testing.T) {
	require.NoError(t, Initialize(false, "info"))
	assert.False(t, JSONOutput)

	require.NoError(t, Initialize(true, "warn"))
	assert.True(t, JSONOutput)
	assert.Equal(t, "warn", Level())

	// restore defaults for other tests
	require.NoError(t, Initialize(false, ""))
	assert.Equal(t, "info", Level())
}

func TestSetLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "debug", want: "debug"},
		{in: "WARN", want: "warn"},
		{in: "", want: "info"},
		{in: "chatty", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			err := SetLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, Level())
		})
	}
	require.NoError(t, SetLevel("info"))
}

func TestFieldsFromContext(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, FieldsFromContext(ctx))

	ctx = WithJobID(ctx, "job-1")
	ctx = WithRequestID(ctx, "req-1")

	fields := FieldsFromContext(ctx)
	assert.Equal(t, []interface{}{FieldJobID, "job-1", FieldRequestID, "req-1"}, fields)
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.NotNil(t, FromContext(ctx, nil))
}
