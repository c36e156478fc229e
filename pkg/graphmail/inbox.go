package graphmail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/novotechno/collections/pkg/reply"
	"github.com/novotechno/collections/pkg/token"
)

// InboxReader implements reply.InboxReader against the Microsoft Graph
// mailFolders/inbox/messages endpoint.
type InboxReader struct {
	Validator  *token.Validator
	HTTPClient *http.Client
	Provider   string
	Account    string
}

type graphMessage struct {
	Subject string `json:"subject"`
	Body    struct {
		Content string `json:"content"`
	} `json:"body"`
	From struct {
		EmailAddress struct {
			Address string `json:"address"`
		} `json:"emailAddress"`
	} `json:"from"`
	ReceivedDateTime time.Time `json:"receivedDateTime"`
}

type listMessagesResponse struct {
	Value []graphMessage `json:"value"`
}

// Messages implements reply.InboxReader, returning every inbox message
// received after the given instant from one of fromAddresses. An empty
// fromAddresses returns messages from every sender.
func (r *InboxReader) Messages(after time.Time, fromAddresses []string) ([]reply.Message, error) {
	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tok, err := r.Validator.Acquire(ctx, r.Provider, r.Account)
	if err != nil {
		return nil, fmt.Errorf("graphmail: acquiring token: %w", err)
	}

	filter := fmt.Sprintf("receivedDateTime ge %s", after.UTC().Format(time.RFC3339))
	reqURL := baseURL + "/me/mailFolders/inbox/messages?$filter=" + url.QueryEscape(filter) + "&$top=50"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("graphmail: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graphmail: listing messages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("graphmail: listing messages: status %d", resp.StatusCode)
	}

	var parsed listMessagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("graphmail: decoding response: %w", err)
	}

	allowed := make(map[string]bool, len(fromAddresses))
	for _, a := range fromAddresses {
		allowed[a] = true
	}

	var out []reply.Message
	for _, m := range parsed.Value {
		if len(allowed) > 0 && !allowed[m.From.EmailAddress.Address] {
			continue
		}
		out = append(out, reply.Message{
			Subject:     m.Subject,
			Body:        m.Body.Content,
			FromAddress: m.From.EmailAddress.Address,
			ReceivedAt:  m.ReceivedDateTime,
		})
	}
	return out, nil
}
