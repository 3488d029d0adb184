// ABOUTME: Visualization CLI commands
// ABOUTME: Handles funnel graph export and the terminal dashboard
package cli

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	"github.com/restriden/simpli-immo-sub001/viz"
)

// VizFunnelCommand exports the acquisition funnel as a DOT graph.
func VizFunnelCommand(database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("viz funnel", flag.ExitOnError)
	output := fs.String("output", "", "Output file (default: stdout)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	generator := viz.NewGraphGenerator(database)
	dot, err := generator.GenerateFunnelGraph()
	if err != nil {
		return err
	}

	if *output != "" {
		return os.WriteFile(*output, []byte(dot), 0644)
	}

	fmt.Println(dot)
	return nil
}

// VizDashboardCommand prints the terminal stats dashboard.
func VizDashboardCommand(database *sql.DB, args []string) error {
	stats, err := viz.GenerateDashboardStats(database)
	if err != nil {
		return fmt.Errorf("failed to generate dashboard stats: %w", err)
	}

	fmt.Print(viz.RenderDashboard(stats))
	return nil
}
