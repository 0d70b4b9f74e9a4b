package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"MediaRadar/internal/ports"
)

const (
	defaultAPIBase  = "https://api.telegram.org"
	defaultMaxTries = 3
)

// Notifier posts Markdown messages to one chat through the Bot API.
type Notifier struct {
	botToken string
	chatID   string
	apiBase  string
	client   *http.Client
	maxTries uint
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier targets chatID with the given bot token.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		apiBase:  defaultAPIBase,
		client:   &http.Client{Timeout: 5 * time.Second},
		maxTries: defaultMaxTries,
	}
}

// WithAPIBase points the notifier at another Bot API host.
func (n *Notifier) WithAPIBase(base string) *Notifier {
	n.apiBase = strings.TrimRight(base, "/")
	return n
}

type sendMessageRequest struct {
	ChatID    string `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Parameters  struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// PublishDigest sends one message. Flood-control replies honour retry_after;
// other client errors fail immediately.
func (n *Notifier) PublishDigest(ctx context.Context, digest string) error {
	if n.botToken == "" || n.chatID == "" {
		return errors.New("telegram notifier misconfigured")
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: n.chatID, Text: digest, ParseMode: "Markdown"})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 200 * time.Millisecond

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, n.send(ctx, body)
	},
		backoff.WithBackOff(exp),
		backoff.WithMaxTries(n.maxTries),
	)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}

func (n *Notifier) send(ctx context.Context, body []byte) error {
	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.apiBase, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("new request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var reply apiResponse
	_ = json.NewDecoder(resp.Body).Decode(&reply)
	failure := fmt.Errorf("telegram error: %s %s", resp.Status, reply.Description)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests && reply.Parameters.RetryAfter > 0:
		return backoff.RetryAfter(reply.Parameters.RetryAfter)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= http.StatusInternalServerError:
		return failure
	default:
		return backoff.Permanent(failure)
	}
}
