// Package worker serves Pub/Sub push deliveries of job messages over HTTP.
package worker

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/spawn-mcp/adshipper/pkg/jobs"
	"github.com/spawn-mcp/adshipper/pkg/logger"
)

// MessageHandler runs one job message.
type MessageHandler func(ctx context.Context, msg jobs.Message) error

// pushEnvelope is the body Pub/Sub POSTs to a push endpoint. Data arrives
// base64 encoded, which encoding/json decodes into []byte.
type pushEnvelope struct {
	Message struct {
		Data        []byte            `json:"data"`
		MessageID   string            `json:"messageId"`
		Attributes  map[string]string `json:"attributes"`
		PublishTime time.Time         `json:"publishTime"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PushHandler acks a delivery with 2xx and asks for redelivery with 5xx.
// Undecodable deliveries are logged and acked.
type PushHandler struct {
	handle  MessageHandler
	timeout time.Duration
	log     logger.Logger
}

// NewPushHandler creates a handler that gives each job up to timeout.
func NewPushHandler(handle MessageHandler, timeout time.Duration, log logger.Logger) *PushHandler {
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return &PushHandler{handle: handle, timeout: timeout, log: log}
}

func (h *PushHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case http.MethodPost:
		if r.URL.Path != "/task" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.serveTask(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *PushHandler) serveTask(w http.ResponseWriter, r *http.Request) {
	var env pushEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		// Redelivery cannot fix a bad body, so ack it.
		h.log.Error("Dropping undecodable push envelope", logger.Error(err))
		w.WriteHeader(http.StatusNoContent)
		return
	}
	msg, err := jobs.Decode(env.Message.Data)
	if err != nil {
		h.log.Error("Dropping undecodable push message",
			logger.String("message_id", env.Message.MessageID),
			logger.Error(err),
		)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	if err := h.handle(ctx, msg); err != nil {
		h.log.Warn("Push job failed, requesting redelivery",
			logger.String("job_id", msg.JobID),
			logger.Error(err),
		)
		http.Error(w, "job handling failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Mux routes /health and /task to h.
func (h *PushHandler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/health", h)
	mux.Handle("/task", h)
	return mux
}
