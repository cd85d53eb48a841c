package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "show attention state, break urgency, budgets, and backend health",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ws, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Session.Stats(cmd.Context(), ws)
		if err != nil {
			return err
		}

		fmt.Printf("attention_state: %s\n", s.AttentionState)
		fmt.Printf("break_urgency:   %s\n", s.BreakUrgency)
		fmt.Printf("completed_today: %d\n", s.CompletedToday)
		fmt.Println("role budgets:")
		for _, rb := range s.RoleBudgets {
			if rb.Unlimited {
				fmt.Printf("  %-15s unlimited\n", rb.Role)
				continue
			}
			fmt.Printf("  %-15s remaining=%d\n", rb.Role, rb.Remaining)
		}
		fmt.Printf("backends: up=%d degraded=%d down=%d unknown=%d\n",
			s.BackendHealth.Up, s.BackendHealth.Degraded, s.BackendHealth.Down, s.BackendHealth.Unknown)
		return nil
	},
}
