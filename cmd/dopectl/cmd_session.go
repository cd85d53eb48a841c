package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dopectx/core/internal/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "start, save, load, break, resume, or end the current session",
}

var sessionStartCmd = &cobra.Command{
	Use:   "start",
	Short: "start (or resume) a session for this workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ws, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, err := a.Session.Start(cmd.Context(), ws)
		if err != nil {
			return err
		}
		fmt.Printf("session started: mode=%v session_start=%v\n", ctx.Data["mode"], ctx.Data["session_start"])
		return nil
	},
}

var (
	saveFocus     string
	saveCompleted []string
	saveNext      []string
)

var sessionSaveCmd = &cobra.Command{
	Use:   "save",
	Short: "save progress notes into the active context",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ws, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		in := session.SaveInput{
			CurrentFocus:   saveFocus,
			CompletedTasks: saveCompleted,
			NextSteps:      saveNext,
		}
		if _, err := a.Session.Save(cmd.Context(), ws, in); err != nil {
			return err
		}
		fmt.Println("session saved")
		return nil
	},
}

var loadLimit int

var sessionLoadCmd = &cobra.Command{
	Use:   "load",
	Short: "show the active context and recent activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ws, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Session.Load(cmd.Context(), ws, loadLimit)
		if err != nil {
			return err
		}
		fmt.Println("Active context:")
		for k, v := range result.Context.Data {
			fmt.Printf("  %s: %v\n", k, v)
		}
		fmt.Println("Recent activity:")
		for _, entry := range result.RecentActivity {
			fmt.Printf("  [%s] %s (%s)\n", entry.Timestamp.Format("15:04"), entry.Summary, entry.Kind)
		}
		fmt.Println("Recent progress:")
		for _, p := range result.RecentProgress {
			fmt.Printf("  %s %s [%s]\n", p.ID, p.Title, p.Status)
		}
		return nil
	},
}

var sessionBreakCmd = &cobra.Command{
	Use:   "break",
	Short: "mark the workspace as on break",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ws, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Session.Break(cmd.Context(), ws); err != nil {
			return err
		}
		fmt.Println("break started")
		return nil
	},
}

var sessionResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "clear the break flag and resume the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ws, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Session.Resume(cmd.Context(), ws); err != nil {
			return err
		}
		fmt.Println("resumed")
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end",
	Short: "end the session and report any pending break urgency",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ws, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		urgency, err := a.Session.End(cmd.Context(), ws)
		if err != nil {
			return err
		}
		fmt.Printf("session ended, break_urgency=%s\n", urgency)
		return nil
	},
}

func init() {
	sessionSaveCmd.Flags().StringVar(&saveFocus, "focus", "", "what you're currently working on")
	sessionSaveCmd.Flags().StringSliceVar(&saveCompleted, "completed", nil, "tasks completed this session")
	sessionSaveCmd.Flags().StringSliceVar(&saveNext, "next", nil, "planned next steps")

	sessionLoadCmd.Flags().IntVar(&loadLimit, "limit", 10, "how many recent activity/progress entries to show")

	sessionCmd.AddCommand(
		sessionStartCmd,
		sessionSaveCmd,
		sessionLoadCmd,
		sessionBreakCmd,
		sessionResumeCmd,
		sessionEndCmd,
	)
}
