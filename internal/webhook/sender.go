package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notify-engine/internal/domain"
)

// responseBodyLimit caps how much of the endpoint response is persisted.
const responseBodyLimit = 1000

// Class buckets a webhook call outcome for the retry decision table.
type Class int

const (
	// ClassAcknowledged is a 2xx response; the delivery sequence ends.
	ClassAcknowledged Class = iota
	// ClassClientError is a 4xx response; terminal, never retried.
	ClassClientError
	// ClassServerError is a 5xx response, timeout, or network failure;
	// retried per the webhook backoff table.
	ClassServerError
)

// Outcome is the classified result of one webhook call.
type Outcome struct {
	Class      Class
	StatusCode int
	Body       string
	Error      string
}

// Sender performs a single webhook HTTP call per the wire contract.
type Sender struct {
	client *resty.Client
}

func NewSender() *Sender {
	client := resty.New()
	client.SetRetryCount(0)
	return &Sender{client: client}
}

func NewSenderWithClient(client *resty.Client) (*Sender, error) {
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	client.SetRetryCount(0)
	return &Sender{client: client}, nil
}

// Send posts the payload to the webhook endpoint with the required and
// custom headers. The webhook's configured timeout bounds the call.
func (s *Sender) Send(ctx context.Context, hook domain.Webhook, payload EventPayload, attemptNumber int) Outcome {
	if s == nil || s.client == nil {
		return Outcome{Class: ClassServerError, Error: "sender is not initialized"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload.WebhookAttempt = attemptNumber

	body, err := json.Marshal(payload)
	if err != nil {
		return Outcome{Class: ClassServerError, Error: fmt.Sprintf("failed to marshal payload: %v", err)}
	}

	callCtx, cancel := context.WithTimeout(ctx, hook.CallTimeout())
	defer cancel()

	req := s.client.R().
		SetContext(callCtx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)

	// Custom headers first so the required tracing headers always win.
	for _, header := range hook.Headers {
		if name := strings.TrimSpace(header.Name); name != "" {
			req.SetHeader(name, header.Value)
		}
	}
	req.SetHeader("X-Webhook-Event", fmt.Sprintf("notification.%s", payload.Event))
	req.SetHeader("X-Notification-Id", payload.NotificationID)
	req.SetHeader("X-Service-Id", payload.ServiceID)
	req.SetHeader("X-Webhook-Attempt", strconv.Itoa(attemptNumber))

	response, err := req.Post(hook.URL)
	if err != nil {
		return Outcome{
			Class: ClassServerError,
			Error: fmt.Sprintf("webhook request failed: %v", err),
		}
	}
	if response == nil {
		return Outcome{Class: ClassServerError, Error: "webhook returned empty response"}
	}

	statusCode := response.StatusCode()
	responseBody := truncate(strings.TrimSpace(response.String()), responseBodyLimit)

	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		return Outcome{Class: ClassAcknowledged, StatusCode: statusCode, Body: responseBody}
	case statusCode >= http.StatusBadRequest && statusCode < http.StatusInternalServerError:
		return Outcome{
			Class:      ClassClientError,
			StatusCode: statusCode,
			Body:       responseBody,
			Error:      fmt.Sprintf("client error: HTTP %d", statusCode),
		}
	default:
		return Outcome{
			Class:      ClassServerError,
			StatusCode: statusCode,
			Body:       responseBody,
			Error:      fmt.Sprintf("server error: HTTP %d", statusCode),
		}
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
