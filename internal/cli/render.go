package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/mistakeknot/courier/client"
)

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	nameColor   = color.New(color.FgGreen)
	unreadColor = color.New(color.FgYellow, color.Bold)
	dimColor    = color.New(color.Faint)
	urgentColor = color.New(color.FgRed, color.Bold)
)

// RenderAgents writes a project's agent roster as an aligned table.
func RenderAgents(w io.Writer, project string, agents []client.Agent) {
	if len(agents) == 0 {
		fmt.Fprintf(w, "no agents registered in %s\n", project)
		return
	}
	headerColor.Fprintf(w, "agents in %s\n", project)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPROGRAM\tMODEL\tTASK\tREGISTERED")
	for _, a := range agents {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			nameColor.Sprint(a.Name),
			orDash(a.Program),
			orDash(a.Model),
			truncate(orDash(a.TaskDescription), 40),
			shortTime(a.RegisteredAt),
		)
	}
	tw.Flush()
}

// RenderInbox writes an agent's messages, newest first, with unread and
// ack-required markers.
func RenderInbox(w io.Writer, agent string, messages []client.Message) {
	if len(messages) == 0 {
		fmt.Fprintf(w, "inbox empty for %s\n", agent)
		return
	}
	headerColor.Fprintf(w, "inbox for %s (%d messages)\n", agent, len(messages))
	for _, m := range messages {
		marker := "  "
		if !m.Read {
			marker = unreadColor.Sprint("● ")
		}
		subject := m.Subject
		if subject == "" {
			subject = "(no subject)"
		}
		if m.Importance == "high" || m.Importance == "urgent" {
			subject = urgentColor.Sprint(subject)
		}
		fmt.Fprintf(w, "%s%s  %s  %s\n", marker, m.CreatedAt.Local().Format("Jan 02 15:04"),
			nameColor.Sprint(m.From), subject)
		if m.AckRequired && !m.Acked {
			fmt.Fprintf(w, "    %s\n", unreadColor.Sprint("ack required"))
		}
		fmt.Fprintf(w, "    %s\n", dimColor.Sprint(truncate(firstLine(m.Body), 76)))
	}
}

// RenderReservations writes a project's active path claims.
func RenderReservations(w io.Writer, project string, reservations []client.Reservation) {
	if len(reservations) == 0 {
		fmt.Fprintf(w, "no active reservations in %s\n", project)
		return
	}
	headerColor.Fprintf(w, "active reservations in %s\n", project)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tPATTERN\tMODE\tEXPIRES\tREASON")
	for _, r := range reservations {
		mode := "shared"
		if r.Exclusive {
			mode = "exclusive"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			nameColor.Sprint(r.Agent), r.PathPattern, mode,
			shortTime(r.ExpiresAt), orDash(r.Reason))
	}
	tw.Flush()
}

// RenderDelivery summarizes a send result, flagging skipped recipients.
func RenderDelivery(w io.Writer, result client.DeliveryResult) {
	nameColor.Fprintf(w, "delivered to %d recipient(s)\n", result.Count)
	for _, d := range result.Deliveries {
		fmt.Fprintf(w, "  %s: %d\n", d.Project, d.Count)
	}
	fmt.Fprintf(w, "message %s in thread %s\n", result.MessageID, result.ThreadID)
	if len(result.Unresolved) > 0 {
		unreadColor.Fprintf(w, "unresolved: %s\n", strings.Join(result.Unresolved, ", "))
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// shortTime compacts an RFC 3339 timestamp for table cells; malformed
// input passes through untouched.
func shortTime(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("Jan 02 15:04")
}
