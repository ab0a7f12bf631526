package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eaziwage/ewa/internal/config"
)

// PlunkMailer sends mail through the Plunk transactional API.
type PlunkMailer struct {
	apiKey  string
	url     string
	from    string
	replyTo string
	client  *http.Client
}

type plunkSendBody struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from,omitempty"`
	Reply   string `json:"reply,omitempty"`
}

// NewPlunkMailer uses client, or a client with a 10s timeout when nil.
func NewPlunkMailer(cfg config.MailConfig, client *http.Client) *PlunkMailer {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &PlunkMailer{
		apiKey:  cfg.PlunkAPIKey,
		url:     cfg.PlunkURL,
		from:    cfg.From,
		replyTo: cfg.ReplyTo,
		client:  client,
	}
}

func (m *PlunkMailer) Send(ctx context.Context, to, subject, body string) error {
	b, err := json.Marshal(plunkSendBody{To: to, Subject: subject, Body: body, From: m.from, Reply: m.replyTo})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("plunk send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if len(msg) > 0 {
			return fmt.Errorf("plunk send failed: status=%d body=%s", resp.StatusCode, msg)
		}
		return fmt.Errorf("plunk send failed: status=%d", resp.StatusCode)
	}
	return nil
}
