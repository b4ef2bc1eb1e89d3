package archive

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mistakeknot/courier/internal/core"
)

// renderMessage produces the markdown artifact mirrored into mailbox
// directories. Bcc recipients receive a copy but are never listed in it.
func renderMessage(m core.Message, from string, to, cc []string) []byte {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", m.ID)
	fmt.Fprintf(&b, "thread: %s\n", m.ThreadID)
	fmt.Fprintf(&b, "from: %s\n", from)
	fmt.Fprintf(&b, "to: %s\n", strings.Join(to, ", "))
	if len(cc) > 0 {
		fmt.Fprintf(&b, "cc: %s\n", strings.Join(cc, ", "))
	}
	fmt.Fprintf(&b, "importance: %s\n", m.Importance)
	if m.AckRequired {
		b.WriteString("ack_required: true\n")
	}
	fmt.Fprintf(&b, "sent: %s\n", m.CreatedAt.UTC().Format(time.RFC3339))
	b.WriteString("---\n\n")
	if m.Subject != "" {
		fmt.Fprintf(&b, "# %s\n\n", m.Subject)
	}
	b.WriteString(m.Body)
	if !strings.HasSuffix(m.Body, "\n") {
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// messageFileName builds a sortable artifact name from the creation time
// and a short id prefix.
func messageFileName(m core.Message) string {
	id := m.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return m.CreatedAt.UTC().Format("20060102T150405Z") + "-" + id + ".md"
}

type profileDoc struct {
	Name            string `json:"name"`
	Program         string `json:"program,omitempty"`
	Model           string `json:"model,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
	RegisteredAt    string `json:"registered_ts"`
	UpdatedAt       string `json:"updated_ts"`
}

// profileJSON renders the profile.json stored at the root of each agent
// directory.
func profileJSON(a core.Agent) ([]byte, error) {
	doc := profileDoc{
		Name:            a.Name,
		Program:         a.Program,
		Model:           a.Model,
		TaskDescription: a.TaskDescription,
		RegisteredAt:    a.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:       a.UpdatedAt.UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render profile: %w", err)
	}
	return append(data, '\n'), nil
}

// mailboxMonth returns the year and month path components for an inbox or
// outbox artifact.
func mailboxMonth(t time.Time) (string, string) {
	u := t.UTC()
	return u.Format("2006"), u.Format("01")
}
