package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"retail-analytics-copilot/internal/bootstrap"
	"retail-analytics-copilot/internal/config"
	"retail-analytics-copilot/internal/dto"
	"retail-analytics-copilot/internal/service"
)

var (
	batchFlag string
	outFlag   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Answer a batch of questions from a JSONL file",
	Long: `Read questions from a JSONL file (one {"id", "question", "format_hint"}
object per line) and write one result object per line to the output file,
in input order.

Examples:
  copilot run --batch sample_questions.jsonl --out outputs.jsonl`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&batchFlag, "batch", "", "Path to JSONL file with questions (required)")
	runCmd.Flags().StringVar(&outFlag, "out", "", "Output path for results JSONL (required)")
	_ = runCmd.MarkFlagRequired("batch")
	_ = runCmd.MarkFlagRequired("out")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	color.Cyan("Retail Analytics Copilot")
	fmt.Println("Initializing agent...")

	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		color.Red("Failed: %v", err)
		return err
	}
	defer container.Close()
	color.Green("✓ Agent initialized")

	in, err := os.Open(batchFlag)
	if err != nil {
		return fmt.Errorf("open batch file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(outFlag)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	// Ctrl-C drains gracefully: in-flight question finishes, the rest
	// emit degraded records so output line count still matches input.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress service.ProgressFunc = func(index, total int, result *dto.BatchResult) {
		line := fmt.Sprintf("[%d/%d] %s (confidence %.2f, %d citations)", index, total, result.ID, result.Confidence, len(result.Citations))
		if result.Confidence >= 0.5 {
			color.Green(line)
		} else {
			color.Yellow(line)
		}
	}

	if err := container.BatchService.RunBatch(ctx, in, out, progress); err != nil {
		color.Red("Batch failed: %v", err)
		return err
	}

	color.Green("✓ Results written to %s", outFlag)
	return nil
}
