package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/promptsched/internal/cron"
	"github.com/nextlevelbuilder/promptsched/internal/notify"
	"github.com/nextlevelbuilder/promptsched/internal/store"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger scheduled prompts",
	}
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsShowCmd())
	cmd.AddCommand(jobsToggleCmd())
	cmd.AddCommand(jobsRunCmd())
	return cmd
}

func jobsListCmd() *cobra.Command {
	var userID string
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's scheduled prompts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := a.jobs.ListByUser(cmd.Context(), userID)
			if err != nil {
				return err
			}
			printJobs(jobs, jsonOutput)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owner user ID")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.MarkFlagRequired("user")
	return cmd
}

func jobsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [jobId]",
		Short: "Show one scheduled prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.jobs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, _ := json.MarshalIndent(job, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
}

func jobsToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle [jobId] [on|off]",
		Short: "Enable or disable a scheduled prompt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled := args[1] == "on" || args[1] == "true" || args[1] == "1"

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.jobs.SetEnabled(cmd.Context(), args[0], enabled); err != nil {
				return err
			}
			fmt.Printf("Job %s enabled=%v\n", args[0], enabled)
			return nil
		},
	}
}

func jobsRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [jobId]",
		Short: "Execute a scheduled prompt immediately",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.jobs.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			// Operator-triggered runs still push ntfy, but there is no
			// gateway here for in-app delivery.
			links := notify.NewLinks(a.cfg.WebUIURL, a.cfg.Port)
			notifier := notify.NewNotifier(nil, nil, links, notify.NewNtfyClient(nil), nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
			defer cancel()

			if err := a.newRunner(notifier).Execute(ctx, job); err != nil {
				return fmt.Errorf("run failed: %w", err)
			}

			updated, err := a.jobs.Get(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Run succeeded, chat_id=%s\n", updated.ChatID)
			return nil
		},
	}
}

func cronCheckCmd() *cobra.Command {
	var tz string
	cmd := &cobra.Command{
		Use:   "cron-check [expression]",
		Short: "Validate a cron expression and show its next fire times",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := args[0]
			if !cron.Validate(expr) {
				return fmt.Errorf("invalid cron expression %q", expr)
			}

			fmt.Printf("%s  (%s)\n", expr, cron.Describe(expr))

			from := time.Now()
			for i := 0; i < 3; i++ {
				next, err := cron.Next(expr, tz, from)
				if err != nil {
					return err
				}
				fmt.Printf("  %s\n", next.Format(time.RFC3339))
				from = next
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "UTC", "IANA timezone")
	return cmd
}

func printJobs(jobs []*store.ScheduledJob, jsonOutput bool) {
	if jsonOutput {
		out, _ := json.MarshalIndent(jobs, "", "  ")
		fmt.Println(string(out))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCRON\tTZ\tENABLED\tSTATUS\tRUNS\tNEXT RUN")
	for _, j := range jobs {
		next := "-"
		if j.NextRunAt != nil {
			next = time.Unix(*j.NextRunAt, 0).UTC().Format(time.RFC3339)
		}
		status := j.LastStatus
		if status == "" {
			status = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\t%d\t%s\n",
			j.ID, truncateName(j.Name), j.CronExpression, j.Timezone,
			j.Enabled, status, j.RunCount, next)
	}
	w.Flush()
}

func truncateName(s string) string {
	if len(s) <= 30 {
		return s
	}
	return strings.TrimRight(s[:30], " ") + "…"
}
