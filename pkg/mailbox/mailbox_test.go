package mailbox

import (
	"testing"
)

func TestSendAndReceive(t *testing.T) {
	box, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	sent, err := box.Send("ap@acme.example", "reminder_sent", "INV-1", "acme", "Invoice INV-1 due", "body")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !sent {
		t.Fatalf("expected first send to succeed")
	}

	received, err := box.Receive("ap@acme.example")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected 1 message, got %d", len(received))
	}

	again, err := box.Receive("ap@acme.example")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no unread messages on second receive, got %d", len(again))
	}
}

func TestSendDedupesWithin24Hours(t *testing.T) {
	box, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	first, err := box.Send("ap@acme.example", "reminder_sent", "INV-1", "acme", "s", "b")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !first {
		t.Fatalf("expected first send to succeed")
	}

	second, err := box.Send("ap@acme.example", "reminder_sent", "INV-1", "acme", "s", "b")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if second {
		t.Fatalf("expected duplicate send within 24h to be dropped")
	}

	third, err := box.Send("ap@acme.example", "reminder_sent", "INV-2", "acme", "s", "b")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !third {
		t.Fatalf("expected send for a different invoice to succeed")
	}
}

func TestSendDedupeSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	box, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, err := box.Send("ap@acme.example", "reminder_sent", "INV-1", "acme", "s", "b"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	restarted, err := Open(dir)
	if err != nil {
		t.Fatalf("Open (restart): %v", err)
	}
	second, err := restarted.Send("ap@acme.example", "reminder_sent", "INV-1", "acme", "s", "b")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if second {
		t.Fatalf("expected dedupe marker to persist across a fresh Box opened on the same directory")
	}
}

func TestPeekDoesNotMarkRead(t *testing.T) {
	box, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := box.Send("ap@acme.example", "reminder_sent", "INV-1", "acme", "s", "b"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	peeked, err := box.Peek("ap@acme.example")
	if err != nil {
		t.Fatalf("Peek: %v", err)
	}
	if len(peeked) != 1 {
		t.Fatalf("expected 1 peeked message, got %d", len(peeked))
	}

	received, err := box.Receive("ap@acme.example")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("expected message still unread and received, got %d", len(received))
	}
}
