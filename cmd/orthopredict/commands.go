package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ortho-predict/internal/cleaner"
	"github.com/ortho-predict/internal/domain"
	"github.com/ortho-predict/internal/trainer"
)

func generateCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate the synthetic dataset",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			files, err := a.runner.Generate(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, f := range files {
				fmt.Fprintln(out, f)
			}
			fmt.Fprintln(out, "Synthetic data generated and saved to CSV files.")
			return nil
		}),
	}
}

func cleanCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Fill missing values and normalize the generated tables",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			result, err := a.runner.Clean(cmd.Context())
			if err != nil {
				return err
			}
			printCleaning(cmd.OutOrStdout(), result)
			return nil
		}),
	}
}

func trainCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Tune and fit the condition classifier",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			result, err := a.runner.Train(cmd.Context())
			if err != nil {
				return err
			}
			printTraining(cmd.OutOrStdout(), result)
			return nil
		}),
	}
}

func recommendCmd(flags *globalFlags) *cobra.Command {
	var (
		age      int
		gender   string
		severity string
	)
	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Predict a condition and recommend procedures and implants",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			rec, err := a.runner.RecommendFor(cmd.Context(), age, gender, severity)
			if err != nil {
				return err
			}
			printRecommendation(cmd.OutOrStdout(), rec)
			return nil
		}),
	}
	cmd.Flags().IntVar(&age, "age", 50, "patient age")
	cmd.Flags().StringVar(&gender, "gender", "1", "gender label (Male, Female) or code")
	cmd.Flags().StringVar(&severity, "severity", "2", "severity label (mild, moderate, severe) or code")
	return cmd
}

func runCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every stage and show the example recommendation",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			summary, err := a.runner.Run(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run %s\n", summary.RunID)
			printCleaning(out, summary.Cleaning)
			printTraining(out, summary.Training)
			printRecommendation(out, summary.Recommendation)
			return nil
		}),
	}
}

func runsCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run history",
	}

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			runs, err := a.runner.Store().ListRuns(cmd.Context(), limit, offset)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCOMMAND\tSTATUS\tSTARTED\tDURATION\tACCURACY\tERROR")
			for _, r := range runs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%dms\t%.3f\t%s\n",
					r.ID, r.Command, r.Status, r.StartedAt.Format("2006-01-02 15:04:05"),
					r.DurationMS, r.Accuracy, r.Error)
			}
			return w.Flush()
		}),
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs")
	listCmd.Flags().IntVar(&offset, "offset", 0, "number of runs to skip")

	var output string
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export the run history as JSON",
		Args:  cobra.NoArgs,
		RunE: withApp(flags, func(cmd *cobra.Command, a *app, _ []string) error {
			if output == "" || output == "-" {
				return a.runner.Store().ExportJSON(cmd.Context(), cmd.OutOrStdout())
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("failed to create export file: %w", err)
			}
			if err := a.runner.Store().ExportJSON(cmd.Context(), f); err != nil {
				f.Close()
				return err
			}
			return f.Close()
		}),
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")

	cmd.AddCommand(listCmd, exportCmd)
	return cmd
}

func printCleaning(out io.Writer, result *cleaner.Result) {
	for _, rep := range result.Report {
		missing := 0
		for _, c := range rep.Missing {
			missing += c.Count
		}
		fmt.Fprintf(out, "%-12s rows=%-5d missing=%-4d filled=%-4d -> %s\n",
			rep.Table, rep.Rows, missing, rep.Filled, rep.Path)
	}
	fmt.Fprintln(out, "Data loaded and preprocessed successfully.")
}

func printTraining(out io.Writer, result *trainer.Result) {
	fmt.Fprintf(out, "Best Parameters: %s\n", result.Search.BestParams)
	fmt.Fprintf(out, "Best CV Accuracy: %.4f\n", result.Search.BestScore)
	fmt.Fprintf(out, "Accuracy: %.4f\n", result.Report.Accuracy)
	fmt.Fprintf(out, "Classification Report:\n%s", result.Report)
	fmt.Fprintf(out, "Model saved to %s\n", result.ModelPath)
}

func printRecommendation(out io.Writer, rec *domain.Recommendation) {
	fmt.Fprintf(out, "Predicted Condition: %s\n", rec.Condition)
	fmt.Fprintf(out, "Recommended Procedures: %s\n", strings.Join(rec.Procedures, ", "))
	fmt.Fprintf(out, "Recommended Implants: %s\n", strings.Join(rec.Implants, ", "))
}
