package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spawn-mcp/adshipper/pkg/jobs"
	"github.com/spawn-mcp/adshipper/pkg/logger"
)

func push(t *testing.T, h http.Handler, data []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"message":      map[string]any{"data": data, "messageId": "m-1"},
		"subscription": "projects/p/subscriptions/s",
	})
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/task", strings.NewReader(string(body))))
	return rec
}

func TestPushHandler(t *testing.T) {
	var got []jobs.Message
	h := NewPushHandler(func(ctx context.Context, msg jobs.Message) error {
		got = append(got, msg)
		if msg.JobID == "boom" {
			return errors.New("firestore unavailable")
		}
		return nil
	}, time.Minute, logger.NewNop())
	mux := h.Mux()

	ok, err := jobs.Encode(jobs.Message{JobID: "j-1", GroupID: "g"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, push(t, mux, ok).Code)

	failing, err := jobs.Encode(jobs.Message{JobID: "boom"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, push(t, mux, failing).Code)

	assert.Equal(t, http.StatusNoContent, push(t, mux, []byte("garbage")).Code)

	require.Len(t, got, 2)
	assert.Equal(t, "j-1", got[0].JobID)
	assert.Equal(t, "g", got[0].GroupID)
}

func TestPushHandlerRoutes(t *testing.T) {
	var handled int
	mux := NewPushHandler(func(context.Context, jobs.Message) error {
		handled++
		return nil
	}, 0, logger.NewNop()).Mux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/task", strings.NewReader("{")))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/task", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Zero(t, handled)
}
