// Package reply implements C11: scanning replies to reminder emails for an
// intent (opt out, claims payment, has a question) and dispatching the
// matching action against invoice state.
package reply

import (
	"fmt"
	"regexp"
	"time"
)

// Action is the disposition a reply triggers.
type Action string

const (
	ActionPause        Action = "pause"
	ActionMarkPaid     Action = "mark_paid"
	ActionManualReview Action = "manual_review"
)

type patternAction struct {
	re     *regexp.Regexp
	action Action
}

// orderedPatterns is evaluated top to bottom; the first match wins, so
// opt-out language takes precedence over a stray mention of "paid".
var orderedPatterns = []patternAction{
	{regexp.MustCompile(`(?i)stop|detener|unsubscribe`), ActionPause},
	{regexp.MustCompile(`(?i)pagado|pago|paid`), ActionMarkPaid},
	{regexp.MustCompile(`(?i)duda|dudas|pregunta|question|clarify`), ActionManualReview},
}

var invoiceNumberRe = []*regexp.Regexp{
	regexp.MustCompile(`(?i)factura\s*#?\s*:?\s*([A-Z0-9-]+)`),
	regexp.MustCompile(`(?i)invoice\s*#?\s*:?\s*([A-Z0-9-]+)`),
}

// Message is the minimal inbox message shape the monitor needs.
type Message struct {
	Subject     string
	Body        string
	FromAddress string
	ReceivedAt  time.Time
}

// InboxReader is the external collaborator that lists messages received
// after a given time from a set of sender addresses. A concrete
// implementation talks to whatever mail provider the deployment uses; the
// monitor itself is provider-agnostic.
type InboxReader interface {
	Messages(after time.Time, fromAddresses []string) ([]Message, error)
}

// ReplyAction is one decision derived from an inbox message.
type ReplyAction struct {
	Action  Action
	Client  string
	Invoice string
	Reason  string
}

// Monitor checks a set of collection-email sender addresses for replies
// and turns matches into ReplyActions.
type Monitor struct {
	reader        InboxReader
	fromAddresses []string
	lastCheck     time.Time
}

// NewMonitor builds a Monitor watching replies sent to fromAddresses.
// lastCheck starts at the current time rather than the zero value: on a
// fresh process the monitor accepts losing whatever gap built up while it
// was down rather than replaying the inbox's entire history as "new"
// replies.
func NewMonitor(reader InboxReader, fromAddresses []string) *Monitor {
	return &Monitor{reader: reader, fromAddresses: fromAddresses, lastCheck: time.Now().UTC()}
}

// CheckReplies fetches messages since the last check and parses each for
// an actionable intent, advancing the process-scoped last-check watermark.
func (m *Monitor) CheckReplies() ([]ReplyAction, error) {
	messages, err := m.reader.Messages(m.lastCheck, m.fromAddresses)
	if err != nil {
		return nil, fmt.Errorf("reply: fetching messages: %w", err)
	}

	var actions []ReplyAction
	for _, msg := range messages {
		if action, ok := parseReply(msg); ok {
			actions = append(actions, action)
		}
	}
	m.lastCheck = time.Now().UTC()
	return actions, nil
}

func parseReply(msg Message) (ReplyAction, bool) {
	content := msg.Subject + " " + msg.Body

	invoiceNumber := "unknown"
	for _, re := range invoiceNumberRe {
		if m := re.FindStringSubmatch(content); m != nil {
			invoiceNumber = m[1]
			break
		}
	}

	for _, p := range orderedPatterns {
		if p.re.MatchString(content) {
			return ReplyAction{
				Action:  p.action,
				Client:  msg.FromAddress,
				Invoice: invoiceNumber,
				Reason:  fmt.Sprintf("matched pattern: %s", p.re.String()),
			}, true
		}
	}
	return ReplyAction{}, false
}
