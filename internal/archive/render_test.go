package archive

import (
	"strings"
	"testing"
	"time"

	"github.com/mistakeknot/courier/internal/core"
)

func TestRenderMessage(t *testing.T) {
	msg := core.Message{
		ID:          "11111111-2222-3333-4444-555555555555",
		ThreadID:    "th-9",
		Subject:     "rollout",
		Body:        "shipping now",
		Importance:  "high",
		AckRequired: true,
		CreatedAt:   time.Date(2026, 8, 23, 9, 30, 0, 0, time.UTC),
	}
	text := string(renderMessage(msg, "Sender", []string{"A", "B"}, []string{"C"}))

	for _, want := range []string{
		"id: 11111111-2222-3333-4444-555555555555",
		"thread: th-9",
		"from: Sender",
		"to: A, B",
		"cc: C",
		"importance: high",
		"ack_required: true",
		"sent: 2026-08-23T09:30:00Z",
		"# rollout",
		"shipping now",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("missing %q in:\n%s", want, text)
		}
	}
	if !strings.HasSuffix(text, "\n") {
		t.Fatal("artifact should end with a newline")
	}
}

func TestRenderMessageOmitsEmptySections(t *testing.T) {
	msg := core.Message{ID: "m", ThreadID: "t", Body: "hi", Importance: "normal", CreatedAt: time.Now().UTC()}
	text := string(renderMessage(msg, "S", []string{"R"}, nil))

	if strings.Contains(text, "cc:") {
		t.Fatal("empty cc must not render")
	}
	if strings.Contains(text, "ack_required") {
		t.Fatal("ack_required renders only when set")
	}
	if strings.Contains(text, "# ") {
		t.Fatal("empty subject must not render a heading")
	}
}

func TestMessageFileName(t *testing.T) {
	msg := core.Message{
		ID:        "abcdef12-3456-7890-abcd-ef1234567890",
		CreatedAt: time.Date(2026, 8, 23, 9, 30, 5, 0, time.UTC),
	}
	if got := messageFileName(msg); got != "20260823T093005Z-abcdef12.md" {
		t.Fatalf("unexpected file name %q", got)
	}

	short := core.Message{ID: "m1", CreatedAt: msg.CreatedAt}
	if got := messageFileName(short); got != "20260823T093005Z-m1.md" {
		t.Fatalf("unexpected file name %q", got)
	}
}

func TestProfileJSONOmitsEmptyFields(t *testing.T) {
	a := core.Agent{Name: "BlueLake", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	data, err := profileJSON(a)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	text := string(data)
	if strings.Contains(text, "program") || strings.Contains(text, "model") {
		t.Fatalf("empty profile fields should be omitted:\n%s", text)
	}
	if !strings.Contains(text, `"name": "BlueLake"`) {
		t.Fatalf("profile missing name:\n%s", text)
	}
}
