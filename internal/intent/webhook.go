package intent

import (
	"errors"
	"strings"

	"github.com/tidwall/gjson"

	"healthbot/internal/domain"
)

var ErrMalformedWebhook = errors.New("malformed dialogflow webhook request")

// WebhookResponse is the fulfillment reply returned to the engine.
type WebhookResponse struct {
	FulfillmentText string `json:"fulfillmentText"`
}

// ParseWebhookRequest reads a Dialogflow ES fulfillment WebhookRequest.
func ParseWebhookRequest(body []byte) (domain.IntentResult, error) {
	if !gjson.ValidBytes(body) {
		return domain.IntentResult{}, ErrMalformedWebhook
	}
	doc := gjson.ParseBytes(body)
	qr := doc.Get("queryResult")
	if !qr.Exists() {
		return domain.IntentResult{}, ErrMalformedWebhook
	}
	session := SessionID(doc.Get("session").String())
	if session == "" {
		return domain.IntentResult{}, ErrMalformedWebhook
	}

	result := resultFrom(qr)
	result.SessionID = session
	result.TurnID = doc.Get("originalDetectIntentRequest.payload." + TurnIDKey).String()
	result.Raw = body
	return result, nil
}

// SessionID extracts the trailing session id from a session path such as
// "projects/p/agent/sessions/919800000000".
func SessionID(path string) string {
	path = strings.TrimRight(path, "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
