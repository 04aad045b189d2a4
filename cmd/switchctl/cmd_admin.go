package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/switchpilot/switchpilot/internal/auth"
	"github.com/switchpilot/switchpilot/internal/config"
	"github.com/switchpilot/switchpilot/internal/fleet"
	"github.com/switchpilot/switchpilot/internal/team"
)

var (
	switchCmd = &cobra.Command{
		Use:   "switch [team]",
		Short: "Switch a team to the standby color (or --target)",
		Args:  cobra.ExactArgs(1),
		RunE:  runSwitch,
	}

	automationCmd = &cobra.Command{
		Use:   "automation [team] [manual|assisted|automatic]",
		Short: "Set a team's automation level",
		Args:  cobra.ExactArgs(2),
		RunE:  runAutomation,
	}

	maintenanceCmd = &cobra.Command{
		Use:   "maintenance [team] [on|off]",
		Short: "Set or clear a team's maintenance window",
		Args:  cobra.ExactArgs(2),
		RunE:  runMaintenance,
	}

	resetBreakerCmd = &cobra.Command{
		Use:   "reset-breaker [team]",
		Short: "Force a team's switch circuit breaker closed",
		Args:  cobra.ExactArgs(1),
		RunE:  runResetBreaker,
	}

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Check the team profiles and topology file for problems",
		RunE:  runValidate,
	}

	tokenCmd = &cobra.Command{
		Use:   "token [operator]",
		Short: "Mint an API bearer token for an operator",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
)

func init() {
	switchCmd.Flags().String("target", "", "explicit target color (blue or green)")
	switchCmd.Flags().String("reason", "", "reason recorded in the switch history (required)")
	switchCmd.Flags().Bool("force", false, "bypass all safety checks except the circuit breaker")
	_ = switchCmd.MarkFlagRequired("reason")

	tokenCmd.Flags().String("role", string(auth.RoleOperator), "token role (viewer or operator)")

	rootCmd.AddCommand(switchCmd, automationCmd, maintenanceCmd, resetBreakerCmd, validateCmd, tokenCmd)
}

func runSwitch(cmd *cobra.Command, args []string) error {
	teamName := args[0]
	reason, _ := cmd.Flags().GetString("reason")
	force, _ := cmd.Flags().GetBool("force")

	var target fleet.Color
	if raw, _ := cmd.Flags().GetString("target"); raw != "" {
		parsed, err := fleet.ParseColor(raw)
		if err != nil {
			return err
		}
		target = parsed
	}

	result, err := plane.Controller.ExecuteSwitch(cmd.Context(), teamName, target, reason, force)
	if err != nil {
		return err
	}

	if result.NoOp {
		fmt.Printf("%s: already on %s, nothing to do\n", teamName, result.To)
		return nil
	}
	fmt.Printf("%s: %s -> %s  outcome=%s  duration=%s\n",
		teamName, result.From, result.To, result.Outcome, result.Duration.Round(time.Millisecond))
	if result.RequiresManualIntervention {
		fmt.Println("WARNING: rollback failed, manual intervention required")
	}
	if !result.Succeeded() {
		return fmt.Errorf("switch failed at stage %s: %s", result.Stage, result.Reason)
	}
	return nil
}

func runAutomation(cmd *cobra.Command, args []string) error {
	level, err := team.ParseAutomationLevel(args[1])
	if err != nil {
		return err
	}
	if err := plane.Controller.SetAutomationLevel(cmd.Context(), args[0], level); err != nil {
		return err
	}
	fmt.Printf("%s: automation set to %s\n", args[0], level)
	return nil
}

func runMaintenance(cmd *cobra.Command, args []string) error {
	var on bool
	switch args[1] {
	case "on":
		on = true
	case "off":
		on = false
	default:
		return fmt.Errorf("expected on or off, got %q", args[1])
	}
	if err := plane.Controller.SetMaintenance(cmd.Context(), args[0], on); err != nil {
		return err
	}
	fmt.Printf("%s: maintenance %s\n", args[0], args[1])
	return nil
}

func runResetBreaker(cmd *cobra.Command, args []string) error {
	if err := plane.Controller.ResetCircuitBreaker(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("%s: circuit breaker reset\n", args[0])
	return nil
}

func runValidate(cmd *cobra.Command, _ []string) error {
	problems, err := plane.Topology.Validate(cmd.Context())
	if err != nil {
		return err
	}

	// Every configured team must have a topology entry.
	topoTeams, err := plane.Topology.Teams(cmd.Context())
	if err != nil {
		return err
	}
	inTopology := make(map[string]bool, len(topoTeams))
	for _, name := range topoTeams {
		inTopology[name] = true
	}
	for _, name := range plane.Controller.Teams() {
		if !inTopology[name] {
			problems = append(problems, fmt.Sprintf("team %q has a profile but no topology entry", name))
		}
	}

	if len(problems) == 0 {
		fmt.Println("profiles and topology OK")
		return nil
	}
	for _, p := range problems {
		fmt.Printf("problem: %s\n", p)
	}
	return fmt.Errorf("%d problem(s) found", len(problems))
}

func runToken(cmd *cobra.Command, args []string) error {
	roleRaw, _ := cmd.Flags().GetString("role")
	role := auth.Role(roleRaw)

	apiCfg := config.APIFromEnv()
	if apiCfg.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY must be set to mint tokens")
	}

	svc, err := auth.NewService(auth.Config{SigningKey: apiCfg.JWTSigningKey})
	if err != nil {
		return err
	}
	token, err := svc.IssueToken(args[0], role)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
