package channel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"runtime/debug"

	"healthbot/internal/domain"
	"healthbot/internal/intent"
)

// ContinuationHandler fulfils an intent delivered by the engine's webhook.
type ContinuationHandler interface {
	HandleContinuation(ctx context.Context, res domain.IntentResult) (string, error)
}

// Callback serves the intent engine's fulfillment webhook.
type Callback struct {
	path    string
	handler ContinuationHandler
	logger  *slog.Logger
}

func NewCallback(path string, handler ContinuationHandler, logger *slog.Logger) *Callback {
	if path == "" {
		path = "/dialogflow"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Callback{path: path, handler: handler, logger: logger}
}

func (c *Callback) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST "+c.path, c.handle)
}

func (c *Callback) handle(rw http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("continuation webhook panicked", "stage", "continuation", "panic", rec, "stack", string(debug.Stack()))
			http.Error(rw, "Internal Server Error", http.StatusInternalServerError)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}
	res, err := intent.ParseWebhookRequest(body)
	if err != nil {
		c.logger.Warn("bad continuation request", "stage", "continuation", "error", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	c.logger.Debug("continuation received", "sender", res.SessionID, "turn", res.TurnID, "intent", res.Intent)
	reply, err := c.handler.HandleContinuation(r.Context(), res)
	if err != nil {
		c.logger.Error("continuation failed", "sender", res.SessionID, "stage", "continuation", "error", err)
	}

	rw.Header().Set("Content-Type", "application/json")
	json.NewEncoder(rw).Encode(intent.WebhookResponse{FulfillmentText: reply})
}
