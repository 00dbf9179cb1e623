package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/career-fit/internal/evaluation"
	"github.com/jonathan/career-fit/internal/observability"
	"github.com/jonathan/career-fit/internal/types"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Compare a computed distribution with a hand-labeled one",
	Long: "Compare two role-fit distribution JSON files by L1 distance. The run fails when the " +
		"primary cluster error exceeds the warn threshold or the overall error exceeds the fail threshold. " +
		"With --before, --role and --direction it also checks that adding materials moved a role's share " +
		"in the expected direction.",
	RunE: runEval,
}

var (
	evalExpectedFile string
	evalActualFile   string
	evalBeforeFile   string
	evalRole         string
	evalDirection    string
)

func init() {
	evalCmd.Flags().StringVar(&evalExpectedFile, "expected", "", "Path to the hand-labeled distribution JSON")
	evalCmd.Flags().StringVar(&evalActualFile, "actual", "", "Path to the computed distribution JSON (e.g. clusters --json output)")

	evalCmd.Flags().StringVar(&evalBeforeFile, "before", "", "Path to the distribution before materials were added")
	evalCmd.Flags().StringVar(&evalRole, "role", "", "Role whose share should move (with --before)")
	evalCmd.Flags().StringVar(&evalDirection, "direction", "", "Expected movement of the role's share: up, down or flat (with --before)")
	evalCmd.MarkFlagsRequiredTogether("before", "role", "direction")

	if err := evalCmd.MarkFlagRequired("expected"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}
	if err := evalCmd.MarkFlagRequired("actual"); err != nil {
		panic(fmt.Sprintf("failed to mark flag as required: %v", err))
	}

	rootCmd.AddCommand(evalCmd)
}

func runEval(_ *cobra.Command, _ []string) error {
	expected, err := evaluation.LoadDistribution(evalExpectedFile)
	if err != nil {
		return fmt.Errorf("failed to load expected distribution: %w", err)
	}
	actual, err := evaluation.LoadDistribution(evalActualFile)
	if err != nil {
		return fmt.Errorf("failed to load actual distribution: %w", err)
	}

	report := evaluation.Evaluate(expected, actual)
	printer := observability.NewPrinter(os.Stdout)
	printer.PrintEvaluation(report)
	if report.Grade == evaluation.GradeFail {
		return fmt.Errorf("distribution evaluation failed: primary L1 %.3f, overall L1 %.3f", report.PrimaryL1, report.L1)
	}

	if evalBeforeFile == "" {
		return nil
	}
	return checkDirection(printer, actual)
}

func checkDirection(printer *observability.Printer, after types.RoleFitDistribution) error {
	role, err := types.ParseRoleID(evalRole)
	if err != nil {
		return err
	}
	want, err := evaluation.ParseDirection(evalDirection)
	if err != nil {
		return err
	}
	before, err := evaluation.LoadDistribution(evalBeforeFile)
	if err != nil {
		return fmt.Errorf("failed to load before distribution: %w", err)
	}

	delta, got := evaluation.DeltaDirection(before, after, role, evaluation.DefaultDeadband)
	holds := evaluation.DirectionHolds(delta, want, evaluation.DefaultDeadband)
	printer.PrintDirection(role, delta, got, want, holds)
	if !holds {
		return fmt.Errorf("%s share moved %s (%+.3f), expected %s", role, got, delta, want)
	}
	return nil
}
