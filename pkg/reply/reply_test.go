package reply

import (
	"testing"
	"time"
)

type stubInbox struct {
	messages []Message
}

func (s stubInbox) Messages(after time.Time, from []string) ([]Message, error) {
	return s.messages, nil
}

func TestCheckRepliesDetectsPause(t *testing.T) {
	inbox := stubInbox{messages: []Message{
		{Subject: "Re: Invoice INV-100", Body: "Please unsubscribe me from these emails", FromAddress: "ap@client.example"},
	}}
	m := NewMonitor(inbox, []string{"billing@novotechno.example"})

	actions, err := m.CheckReplies()
	if err != nil {
		t.Fatalf("CheckReplies: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(actions))
	}
	if actions[0].Action != ActionPause {
		t.Fatalf("expected pause action, got %s", actions[0].Action)
	}
}

func TestCheckRepliesDetectsMarkPaidAndInvoiceNumber(t *testing.T) {
	inbox := stubInbox{messages: []Message{
		{Subject: "Factura FAC-2026-0001", Body: "Ya esta pagado, gracias", FromAddress: "ap@client.example"},
	}}
	m := NewMonitor(inbox, nil)

	actions, err := m.CheckReplies()
	if err != nil {
		t.Fatalf("CheckReplies: %v", err)
	}
	if len(actions) != 1 || actions[0].Action != ActionMarkPaid {
		t.Fatalf("expected mark_paid action, got %+v", actions)
	}
	if actions[0].Invoice != "FAC-2026-0001" {
		t.Fatalf("expected invoice number extracted, got %q", actions[0].Invoice)
	}
}

func TestCheckRepliesDetectsManualReview(t *testing.T) {
	inbox := stubInbox{messages: []Message{
		{Subject: "Question about invoice", Body: "I have a question about the amount", FromAddress: "ap@client.example"},
	}}
	m := NewMonitor(inbox, nil)

	actions, err := m.CheckReplies()
	if err != nil {
		t.Fatalf("CheckReplies: %v", err)
	}
	if len(actions) != 1 || actions[0].Action != ActionManualReview {
		t.Fatalf("expected manual_review action, got %+v", actions)
	}
}

func TestCheckRepliesIgnoresUnmatchedMessages(t *testing.T) {
	inbox := stubInbox{messages: []Message{
		{Subject: "Out of office", Body: "I am currently away", FromAddress: "ap@client.example"},
	}}
	m := NewMonitor(inbox, nil)

	actions, err := m.CheckReplies()
	if err != nil {
		t.Fatalf("CheckReplies: %v", err)
	}
	if len(actions) != 0 {
		t.Fatalf("expected no actions for an unrelated message, got %d", len(actions))
	}
}
