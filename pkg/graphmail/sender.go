// Package graphmail sends collection reminder emails through the
// Microsoft Graph sendMail endpoint, the transport the scheduler's
// MailSender interface is built against.
package graphmail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/novotechno/collections/pkg/ratelimiter"
	"github.com/novotechno/collections/pkg/token"
)

var baseURL = "https://graph.microsoft.com/v1.0"

const maxSendAttempts = 3

// Sender implements scheduler.MailSender against the Microsoft Graph API.
// A nil HTTPClient defaults to http.DefaultClient; DryRun short-circuits
// every send for --dry-run operation.
type Sender struct {
	Validator  *token.Validator
	HTTPClient *http.Client
	Provider   string
	Account    string
	DryRun     bool
}

type recipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type messageBody struct {
	Message struct {
		Subject      string      `json:"subject"`
		Body         messageText `json:"body"`
		ToRecipients []recipient `json:"toRecipients"`
	} `json:"message"`
	SaveToSentItems bool `json:"saveToSentItems"`
}

type messageText struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// SendCollectionReminder sends one reminder email, refreshing the cached
// Graph token first and retrying transient failures with backoff.
func (s *Sender) SendCollectionReminder(to, subject, body string) error {
	if s.DryRun {
		return nil
	}

	client := s.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	payload := messageBody{SaveToSentItems: true}
	payload.Message.Subject = subject
	payload.Message.Body = messageText{ContentType: "Text", Content: body}
	payload.Message.ToRecipients = []recipient{{}}
	payload.Message.ToRecipients[0].EmailAddress.Address = to

	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("graphmail: encoding message: %w", err)
	}

	backoff := ratelimiter.NewBackoff(time.Second, 8*time.Second)

	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		tok, err := s.Validator.Acquire(ctx, s.Provider, s.Account)
		if err != nil {
			cancel()
			return fmt.Errorf("graphmail: acquiring token: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/users/me/sendMail", bytes.NewReader(encoded))
		if err != nil {
			cancel()
			return fmt.Errorf("graphmail: building request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

		resp, err := client.Do(req)
		cancel()
		if err != nil {
			lastErr = fmt.Errorf("graphmail: sending to %s: %w", to, err)
		} else {
			resp.Body.Close()
			switch {
			case resp.StatusCode >= 200 && resp.StatusCode < 300:
				return nil
			case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
				lastErr = fmt.Errorf("graphmail: transient status %d sending to %s", resp.StatusCode, to)
			default:
				return fmt.Errorf("graphmail: status %d sending to %s", resp.StatusCode, to)
			}
		}

		if attempt < maxSendAttempts-1 {
			time.Sleep(backoff.NextDelay())
		}
	}
	return fmt.Errorf("graphmail: exhausted %d attempts: %w", maxSendAttempts, lastErr)
}
