// Package intent talks to the Dialogflow ES intent engine: detectIntent calls
// for inbound turns and parsing of fulfillment webhook requests.
package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"healthbot/internal/domain"
)

const dialogflowScope = "https://www.googleapis.com/auth/dialogflow"

// TurnIDKey is the query-parameter payload key carrying the turn id to the
// fulfillment webhook.
const TurnIDKey = "turn_id"

type DialogflowConfig struct {
	ProjectID       string
	APIBase         string
	CredentialsFile string
	HTTPClient      *http.Client
	Logger          *slog.Logger
}

// Dialogflow implements domain.IntentClassifier over the v2 REST API.
type Dialogflow struct {
	projectID string
	apiBase   string
	client    *http.Client
	logger    *slog.Logger
}

func NewDialogflow(ctx context.Context, cfg DialogflowConfig) (*Dialogflow, error) {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://dialogflow.googleapis.com"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	client := cfg.HTTPClient
	if client == nil {
		var ts oauth2.TokenSource
		if cfg.CredentialsFile != "" {
			data, err := os.ReadFile(cfg.CredentialsFile)
			if err != nil {
				return nil, fmt.Errorf("read dialogflow credentials: %w", err)
			}
			creds, err := google.CredentialsFromJSON(ctx, data, dialogflowScope)
			if err != nil {
				return nil, fmt.Errorf("parse dialogflow credentials: %w", err)
			}
			ts = creds.TokenSource
		} else {
			creds, err := google.FindDefaultCredentials(ctx, dialogflowScope)
			if err != nil {
				return nil, fmt.Errorf("dialogflow credentials: %w", err)
			}
			ts = creds.TokenSource
		}
		client = oauth2.NewClient(ctx, ts)
		client.Timeout = 30 * time.Second
	}
	return &Dialogflow{
		projectID: cfg.ProjectID,
		apiBase:   strings.TrimRight(cfg.APIBase, "/"),
		client:    client,
		logger:    cfg.Logger,
	}, nil
}

type detectIntentRequest struct {
	QueryInput  queryInput   `json:"queryInput"`
	QueryParams *queryParams `json:"queryParams,omitempty"`
}

type queryInput struct {
	Text textInput `json:"text"`
}

type textInput struct {
	Text         string `json:"text"`
	LanguageCode string `json:"languageCode"`
}

type queryParams struct {
	Payload map[string]string `json:"payload,omitempty"`
}

// DetectIntent classifies q.Text within the session q.SessionID. The sender id
// is the session, which gives the engine per-user conversational memory.
func (d *Dialogflow) DetectIntent(ctx context.Context, q domain.IntentRequest) (domain.IntentResult, error) {
	lang := q.LanguageCode
	if lang == "" {
		lang = domain.DefaultLanguage
	}
	reqBody := detectIntentRequest{
		QueryInput: queryInput{Text: textInput{Text: q.Text, LanguageCode: lang}},
	}
	if q.TurnID != "" {
		reqBody.QueryParams = &queryParams{Payload: map[string]string{TurnIDKey: q.TurnID}}
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("%w: marshal: %w", domain.ErrClassification, err)
	}

	endpoint := fmt.Sprintf("%s/v2/projects/%s/agent/sessions/%s:detectIntent",
		d.apiBase, url.PathEscape(d.projectID), url.PathEscape(q.SessionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("%w: build request: %w", domain.ErrClassification, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("%w: %w", domain.ErrClassification, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.IntentResult{}, fmt.Errorf("%w: read response: %w", domain.ErrClassification, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.IntentResult{}, fmt.Errorf("%w: dialogflow %d: %s",
			domain.ErrClassification, resp.StatusCode, gjson.GetBytes(body, "error.message").String())
	}

	qr := gjson.GetBytes(body, "queryResult")
	result := resultFrom(qr)
	result.SessionID = q.SessionID
	result.TurnID = q.TurnID
	result.Raw = body

	d.logger.Debug("intent detected",
		"session", q.SessionID,
		"intent", result.Label,
		"fallback", result.IsFallback,
		"confidence", qr.Get("intentDetectionConfidence").Float(),
	)
	return result, nil
}

func resultFrom(qr gjson.Result) domain.IntentResult {
	label := qr.Get("intent.displayName").String()
	isFallback := qr.Get("intent.isFallback").Bool()
	return domain.IntentResult{
		Intent:          domain.ParseIntent(label, isFallback),
		Label:           label,
		IsFallback:      isFallback || label == "",
		FulfillmentText: qr.Get("fulfillmentText").String(),
		QueryText:       qr.Get("queryText").String(),
	}
}
