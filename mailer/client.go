package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Sender is what the delivery worker and the subscription handlers depend on.
// Errors returned by implementations should be *SendError so callers can
// classify transient vs permanent failures.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

// Client talks to a Postmark-shaped transactional email API.
type Client struct {
	baseURL      string
	authToken    string
	authTokenHdr string
	sender       string
	http         *http.Client
}

func NewClient(baseURL, authToken, sender string, timeout time.Duration) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		authToken:    authToken,
		authTokenHdr: "X-Server-Token",
		sender:       sender,
		http:         &http.Client{Timeout: timeout},
	}
}

func NewClientFromEnv() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("EMAIL_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("EMAIL_BASE_URL is empty")
	}
	authToken := strings.TrimSpace(os.Getenv("EMAIL_AUTH_TOKEN"))
	if authToken == "" {
		return nil, errors.New("EMAIL_AUTH_TOKEN is empty")
	}
	sender := strings.TrimSpace(os.Getenv("EMAIL_SENDER"))
	if sender == "" {
		return nil, errors.New("EMAIL_SENDER is empty")
	}
	timeout := 10 * time.Second
	if v := strings.TrimSpace(os.Getenv("EMAIL_TIMEOUT_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}
	return NewClient(baseURL, authToken, sender, timeout), nil
}

type sendEmailRequest struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

func (c *Client) Send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	payload, err := json.Marshal(sendEmailRequest{
		From:     c.sender,
		To:       to,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set(c.authTokenHdr, c.authToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &SendError{StatusCode: 0, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &SendError{StatusCode: resp.StatusCode, Reason: strings.TrimSpace(string(body))}
	}
	return nil
}
