package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ibrahim-sultan/examPro/internal/model"
)

func ongoingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ongoing",
		Short: "List in-progress sessions with their telemetry counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var examID *uuid.UUID
			if raw, _ := cmd.Flags().GetString("exam"); raw != "" {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid exam id %q: %w", raw, err)
				}
				examID = &id
			}

			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sessions, err := a.sessions.ListOngoing(cmd.Context(), examID)
			if err != nil {
				return err
			}
			if sessions == nil {
				sessions = []model.OngoingSession{}
			}
			return printJSON(cmd.OutOrStdout(), sessions)
		},
	}
	cmd.Flags().String("exam", "", "Restrict to one exam id")
	return cmd
}

// sessionCmd builds a command that acts on one session id.
func sessionCmd(use, short string, run func(a *app, cmd *cobra.Command, id uuid.UUID) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " SESSION_ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid session id %q: %w", args[0], err)
			}
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out, err := run(a, cmd, id)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
}

func resultCmd() *cobra.Command {
	return sessionCmd("result", "Show the summary of a session", func(a *app, cmd *cobra.Command, id uuid.UUID) (interface{}, error) {
		return a.sessions.GetResultForAdmin(cmd.Context(), id)
	})
}

func forceSubmitCmd() *cobra.Command {
	return sessionCmd("force-submit", "Complete an in-progress session on the student's behalf", func(a *app, cmd *cobra.Command, id uuid.UUID) (interface{}, error) {
		return a.sessions.ForceSubmit(cmd.Context(), id)
	})
}

func suspendCmd() *cobra.Command {
	return sessionCmd("suspend", "Suspend an in-progress session", func(a *app, cmd *cobra.Command, id uuid.UUID) (interface{}, error) {
		return a.sessions.Suspend(cmd.Context(), id)
	})
}
