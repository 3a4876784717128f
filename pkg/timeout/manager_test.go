package timeout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
)

func TestManager_GetTimeout(t *testing.T) {
	m := NewManager(10 * time.Second)

	assert.Equal(t, OperationTimeouts[OpLLM], m.GetTimeout(OpLLM))
	assert.Equal(t, 10*time.Second, m.GetTimeout("unknown"))

	m.SetOperationTimeout(OpLLM, time.Second)
	assert.Equal(t, time.Second, m.GetTimeout(OpLLM))
	assert.Equal(t, 90*time.Second, OperationTimeouts[OpLLM], "defaults must not be mutated")
}

func TestManager_RunReturnsTimeoutError(t *testing.T) {
	m := NewManager(time.Second)
	m.SetOperationTimeout(OpPlatform, 10*time.Millisecond)

	err := m.Run(context.Background(), OpPlatform, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, OpPlatform, te.Operation)
	assert.True(t, pipeerrors.IsRetryable(err))
}

func TestManager_RunPassesThroughErrors(t *testing.T) {
	m := NewManager(time.Second)
	boom := errors.New("boom")

	err := m.Run(context.Background(), OpSheets, func(ctx context.Context) error {
		return boom
	})

	assert.Same(t, boom, err)
	assert.False(t, IsTimeout(err))
}

func TestCall(t *testing.T) {
	m := NewManager(time.Second)

	got, err := Call(context.Background(), m, OpStorage, func(ctx context.Context) (string, error) {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		return "gs://bucket/x", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "gs://bucket/x", got)
}
