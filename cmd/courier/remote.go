package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/courier/client"
	"github.com/mistakeknot/courier/internal/cli"
)

const defaultServerURL = "http://127.0.0.1:7437"

// remoteFlags are shared by every command that talks to a running
// server instead of being one.
type remoteFlags struct {
	server  string
	apiKey  string
	project string
}

func (f *remoteFlags) register(cmd *cobra.Command) {
	server := strings.TrimSpace(os.Getenv("COURIER_SERVER"))
	if server == "" {
		server = defaultServerURL
	}
	cmd.Flags().StringVar(&f.server, "server", server, "courier server base URL")
	cmd.Flags().StringVar(&f.apiKey, "key", os.Getenv("COURIER_API_KEY"), "bearer key for the server")
	cmd.Flags().StringVar(&f.project, "project", os.Getenv("COURIER_PROJECT"), "project to operate in")
}

func (f *remoteFlags) client() (*client.Client, error) {
	if strings.TrimSpace(f.project) == "" {
		return nil, fmt.Errorf("project required (--project or COURIER_PROJECT)")
	}
	return client.New(f.server, client.WithAPIKey(f.apiKey), client.WithProject(f.project)), nil
}

func agentsCmd() *cobra.Command {
	var flags remoteFlags
	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the agents registered in a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			agents, err := c.Agents(cmd.Context(), flags.project)
			if err != nil {
				return err
			}
			cli.RenderAgents(cmd.OutOrStdout(), flags.project, agents)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func inboxCmd() *cobra.Command {
	var (
		flags  remoteFlags
		limit  int
		unread bool
	)
	cmd := &cobra.Command{
		Use:   "inbox <agent>",
		Short: "Show an agent's inbox, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			messages, err := c.Inbox(cmd.Context(), flags.project, args[0], client.InboxOptions{Limit: limit, UnreadOnly: unread})
			if err != nil {
				return err
			}
			cli.RenderInbox(cmd.OutOrStdout(), args[0], messages)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "cap the number of messages (server default when 0)")
	cmd.Flags().BoolVar(&unread, "unread", false, "only unread messages")
	return cmd
}

func sendCmd() *cobra.Command {
	var (
		flags       remoteFlags
		from        string
		to          []string
		cc          []string
		bcc         []string
		subject     string
		importance  string
		ackRequired bool
		threadID    string
	)
	cmd := &cobra.Command{
		Use:   "send <body>",
		Short: "Send a message to one or more agents",
		Long: `Send a message to one or more agents.

Recipients are bare names within the project, or project:<key>#<name>
tokens for cross-project delivery.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			result, err := c.Send(cmd.Context(), client.SendInput{
				Project:     flags.project,
				From:        from,
				To:          to,
				Cc:          cc,
				Bcc:         bcc,
				Subject:     subject,
				Body:        args[0],
				Importance:  importance,
				AckRequired: ackRequired,
				ThreadID:    threadID,
			})
			if err != nil {
				return err
			}
			cli.RenderDelivery(cmd.OutOrStdout(), result)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&from, "from", "", "sending agent (required)")
	cmd.Flags().StringSliceVar(&to, "to", nil, "recipient agents (required)")
	cmd.Flags().StringSliceVar(&cc, "cc", nil, "cc recipients")
	cmd.Flags().StringSliceVar(&bcc, "bcc", nil, "bcc recipients, hidden from other views")
	cmd.Flags().StringVar(&subject, "subject", "", "message subject")
	cmd.Flags().StringVar(&importance, "importance", "", "low, normal, high or urgent")
	cmd.Flags().BoolVar(&ackRequired, "ack", false, "request an explicit acknowledgement")
	cmd.Flags().StringVar(&threadID, "thread", "", "attach to an existing thread")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

func reservationsCmd() *cobra.Command {
	var flags remoteFlags
	cmd := &cobra.Command{
		Use:   "reservations",
		Short: "List a project's active file reservations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := flags.client()
			if err != nil {
				return err
			}
			reservations, err := c.Reservations(cmd.Context(), flags.project)
			if err != nil {
				return err
			}
			cli.RenderReservations(cmd.OutOrStdout(), flags.project, reservations)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}
