package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"retail-analytics-copilot/internal/bootstrap"
	"retail-analytics-copilot/internal/config"
	"retail-analytics-copilot/internal/dto"
)

var (
	formatFlag string
	idFlag     string
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question",
	Long: `Run the pipeline on one question and print the result as JSON.

Examples:
  copilot ask "How many orders were placed in 1997?" --format int
  copilot ask "What is our return policy for unopened Beverages?"`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&formatFlag, "format", "string", "Answer format hint (int, float, string, object, list)")
	askCmd.Flags().StringVar(&idFlag, "id", "", "Question ID (generated when empty)")

	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		color.Red("Failed: %v", err)
		return err
	}
	defer container.Close()

	result := container.BatchService.Answer(context.Background(), &dto.BatchQuestion{
		ID:         idFlag,
		Question:   args[0],
		FormatHint: formatFlag,
	})

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	return nil
}
