package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dopectx/core/internal/domain"
	"github.com/dopectx/core/internal/session"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "assess or implement a task against the current attention state",
}

var (
	assessComplexity float64
	assessMinutes    int
	assessTypeFactor float64
	assessEnergy     string
)

var taskAssessCmd = &cobra.Command{
	Use:   "assess",
	Short: "score a candidate task's suitability against the current attention state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ws, err := boot(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		result := a.Session.AssessTask(ws, session.TaskInput{
			ComplexityScore:  assessComplexity,
			EstimatedMinutes: assessMinutes,
			TaskTypeFactor:   assessTypeFactor,
			RequiredEnergy:   domain.EnergyLevel(assessEnergy),
		})
		fmt.Printf("suitability_score=%.2f cognitive_load=%.2f energy_match=%.2f recommendation=%s\n",
			result.SuitabilityScore, result.CognitiveLoad, result.EnergyMatch, result.Recommendation)
		return nil
	},
}

var implementTaskID string

var taskImplementCmd = &cobra.Command{
	Use:   "implement",
	Short: "start the 25-minute focus timer for a task",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, ws, err := boot(cmd.Context())
		if err != nil {
			return err
		}

		entry, handle, err := a.Session.ImplementTask(cmd.Context(), ws, implementTaskID)
		if err != nil {
			a.Close()
			return err
		}
		fmt.Printf("implementing %s: %s [%s]\n", entry.ID, entry.Title, entry.Status)
		fmt.Println("focus timer running — press Ctrl+C to stop")

		<-cmd.Context().Done()
		handle.Stop()
		a.Close()
		return nil
	},
}

func init() {
	taskAssessCmd.Flags().Float64Var(&assessComplexity, "complexity", 0.5, "complexity score in [0,1]")
	taskAssessCmd.Flags().IntVar(&assessMinutes, "minutes", 30, "estimated minutes to complete")
	taskAssessCmd.Flags().Float64Var(&assessTypeFactor, "type-factor", 0.2, "task type factor in [0.1,0.4]")
	taskAssessCmd.Flags().StringVar(&assessEnergy, "energy", string(domain.EnergyMedium), "required energy level")

	taskImplementCmd.Flags().StringVar(&implementTaskID, "id", "", "progress entry id (default: attention-aware pick among TODO entries)")

	taskCmd.AddCommand(taskAssessCmd, taskImplementCmd)
}
