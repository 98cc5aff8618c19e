package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rahul/stepwise/internal/intervention"
	"github.com/rahul/stepwise/internal/observability"
	"github.com/rahul/stepwise/internal/session"
	"github.com/rahul/stepwise/internal/store"
	"github.com/spf13/cobra"
)

func newChatCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive prompt loop (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.chat(cmd)
		},
	}
}

func (c *cli) chat(cmd *cobra.Command) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	in := intervention.NewLineReader(cmd.InOrStdin())

	a, err := c.buildApp(ctx, appOptions{intervention: true, in: in, out: out})
	if err != nil {
		return err
	}
	defer a.Close()

	if f, ok := out.(*os.File); ok {
		observability.PrintBanner(f)
	}

	for {
		fmt.Fprint(out, "\n> ")
		line, err := in.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		query := strings.TrimSpace(line)
		switch strings.ToLower(query) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		sess, err := a.controller.Run(ctx, query)
		for err == nil && sess.Status == session.StatusAwaitingClarification {
			var guidance string
			if !answered(sess) {
				fmt.Fprint(out, "Clarification needed. Your answer: ")
				line, rerr := in.ReadLine(ctx)
				if rerr != nil {
					break
				}
				guidance = strings.TrimSpace(line)
			}
			sess, err = a.controller.Resume(ctx, sess, guidance)
		}
		printOutcome(out, sess, err)
	}
}

// answered reports whether the pending clarification step already carries an operator answer.
func answered(sess *session.Session) bool {
	v := sess.LatestVersion()
	if v == nil || len(v.Steps) == 0 {
		return false
	}
	hi, ok := v.Steps[len(v.Steps)-1].LastIntervention()
	return ok && hi.WasSuccessful && hi.HumanInput != ""
}

func newRunCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run <query>",
		Short: "Run one session and print its outcome",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.buildApp(ctx, appOptions{
				intervention: true,
				in:           intervention.NewLineReader(cmd.InOrStdin()),
				out:          cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.controller.Run(ctx, strings.Join(args, " "))
			printOutcome(cmd.OutOrStdout(), sess, err)
			return err
		},
	}
}

func newResumeCmd(c *cli) *cobra.Command {
	var guidance string
	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Continue a session that is awaiting clarification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.buildApp(ctx, appOptions{
				intervention: true,
				in:           intervention.NewLineReader(cmd.InOrStdin()),
				out:          cmd.OutOrStdout(),
			})
			if err != nil {
				return err
			}
			defer a.Close()

			sess, err := a.store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			sess, err = a.controller.Resume(ctx, sess, guidance)
			printOutcome(cmd.OutOrStdout(), sess, err)
			return err
		},
	}
	cmd.Flags().StringVarP(&guidance, "guidance", "g", "", "clarification for the pending question (defaults to the last operator answer)")
	return cmd
}

func newShowCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sess, err := st.Load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				data, err := sess.Snapshot()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
				return err
			}
			return store.BuildReport(sess).Render(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full session snapshot")
	return cmd
}

func newSessionsCmd(c *cli) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := c.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			list, err := st.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), list)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of sessions to show")
	return cmd
}

func printSessions(w io.Writer, list []store.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tUPDATED\tQUERY")
	for _, s := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Status, s.UpdatedAt.Local().Format("2006-01-02 15:04"), truncate(s.Query, 60))
	}
	return tw.Flush()
}

func printOutcome(w io.Writer, sess *session.Session, err error) {
	if sess == nil {
		return
	}
	if err != nil {
		fmt.Fprintf(w, "\n[%s] session %s failed: %v\n", sess.Status, sess.ShortID(), err)
		return
	}
	fmt.Fprintf(w, "\n[%s] session %s\n", sess.Status, sess.ShortID())
	if summary := sess.SolutionSummary(); summary != "" {
		fmt.Fprintln(w, summary)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
