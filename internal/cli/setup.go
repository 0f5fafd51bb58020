package cli

import (
	"database/sql"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"retail-analytics-copilot/internal/config"
)

// The generator emits lowercase table names; the Northwind dump ships
// capitalized ones (and "Order Details" with a space). The views bridge
// the two without touching the base tables.
var setupViews = []string{
	`CREATE VIEW IF NOT EXISTS orders AS SELECT * FROM Orders;`,
	`CREATE VIEW IF NOT EXISTS order_items AS SELECT * FROM "Order Details";`,
	`CREATE VIEW IF NOT EXISTS products AS SELECT * FROM Products;`,
	`CREATE VIEW IF NOT EXISTS customers AS SELECT * FROM Customers;`,
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the lowercase convenience views on the database",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	// The pipeline opens the database read-only; setup is the one place
	// that needs a writable handle.
	db, err := sql.Open("sqlite", cfg.Dataset.DBPath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Dataset.DBPath, err)
	}
	defer db.Close()

	for _, stmt := range setupViews {
		if _, err := db.Exec(stmt); err != nil {
			color.Red("Failed: %v", err)
			return fmt.Errorf("create view: %w", err)
		}
	}

	color.Green("✓ Views created on %s", cfg.Dataset.DBPath)
	return nil
}
