package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	statusCmd = &cobra.Command{
		Use:   "status [team]",
		Short: "Show a team's active color, breaker, and recent switches",
		Args:  cobra.ExactArgs(1),
		RunE:  runStatus,
	}

	assessCmd = &cobra.Command{
		Use:   "assess [team]",
		Short: "Run a fresh health assessment (all teams when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runAssess,
	}

	decideCmd = &cobra.Command{
		Use:   "decide [team]",
		Short: "Assess a team and show the safety gate verdict without acting",
		Args:  cobra.ExactArgs(1),
		RunE:  runDecide,
	}

	teamsCmd = &cobra.Command{
		Use:   "teams",
		Short: "List configured teams",
		RunE:  runTeams,
	}
)

func init() {
	assessCmd.Flags().Bool("json", false, "emit JSON instead of a table")
	statusCmd.Flags().Bool("json", false, "emit JSON")
	decideCmd.Flags().Bool("json", false, "emit JSON")

	rootCmd.AddCommand(statusCmd, assessCmd, decideCmd, teamsCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	status, err := plane.Controller.GetStatus(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(status)
	}

	fmt.Printf("team:        %s\n", status.Team)
	fmt.Printf("active:      %s\n", status.ActiveColor)
	fmt.Printf("automation:  %s\n", status.AutomationLevel)
	fmt.Printf("maintenance: %v\n", status.Maintenance)
	fmt.Printf("breaker:     %s (failures=%d)\n", status.CircuitBreaker.Status, status.CircuitBreaker.ConsecutiveFailures)
	if status.LastAssessment != nil {
		fmt.Printf("last score:  %.1f (%s)\n", status.LastAssessment.TotalScore, status.LastAssessment.Status)
	}
	if len(status.RecentSwitches) > 0 {
		fmt.Println("recent switches:")
		for _, sw := range status.RecentSwitches {
			fmt.Printf("  %s  %s->%s  %s  %s\n",
				sw.Timestamp.Format("2006-01-02 15:04:05"), sw.From, sw.To, sw.Result, sw.Reason)
		}
	}
	return nil
}

func runAssess(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	teams := plane.Controller.Teams()
	if len(args) == 1 {
		teams = args[:1]
	}

	exitErr := false
	for _, name := range teams {
		assessment, err := plane.Controller.Assess(cmd.Context(), name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
			exitErr = true
			continue
		}
		if asJSON {
			if err := printJSON(assessment); err != nil {
				return err
			}
			continue
		}
		fmt.Printf("%-24s %6.1f  %s\n", name, assessment.TotalScore, assessment.Status)
	}
	if exitErr {
		return fmt.Errorf("one or more assessments failed")
	}
	return nil
}

func runDecide(cmd *cobra.Command, args []string) error {
	decision, err := plane.Controller.Decide(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		return printJSON(decision)
	}

	fmt.Printf("team:        %s\n", decision.Team)
	fmt.Printf("score:       %.1f (%s)\n", decision.Assessment.TotalScore, decision.Assessment.Status)
	fmt.Printf("indicators:  %d\n", len(decision.Indicators))
	for _, ind := range decision.Indicators {
		fmt.Printf("  - %s\n", ind)
	}
	if decision.ShouldSwitch {
		fmt.Println("verdict:     switch allowed")
	} else {
		fmt.Printf("verdict:     no switch (%s: %s)\n", decision.Verdict.Check, decision.Verdict.Reason)
	}
	return nil
}

func runTeams(cmd *cobra.Command, _ []string) error {
	for _, name := range plane.Controller.Teams() {
		profile, err := plane.Controller.Profile(name)
		if err != nil {
			continue
		}
		level := plane.Controller.AutomationLevel(cmd.Context(), name)
		fmt.Printf("%-24s %-12s %s\n", name, profile.Tier, level)
	}
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
