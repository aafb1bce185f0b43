// ABOUTME: Visualization CLI commands
// ABOUTME: Handles the dashboard, escalation ladder graph and dossier timeline graph
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harperreed/relance/relance"
	"github.com/harperreed/relance/viz"
)

// writeGraph prints DOT to stdout, writes it to a .dot file, or leaves the
// image already rendered by the generator for .svg and .png outputs.
func writeGraph(dot, output string) error {
	if output == "" {
		fmt.Println(dot)
		return nil
	}
	switch strings.ToLower(filepath.Ext(output)) {
	case ".svg", ".png":
		fmt.Printf("✓ Wrote %s\n", output)
		return nil
	}
	if err := os.WriteFile(output, []byte(dot), 0644); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	fmt.Printf("✓ Wrote %s\n", output)
	return nil
}

// LadderGraphCommand draws the escalation ladder and the rules moving dossiers along it.
func LadderGraphCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("ladder-graph", flag.ExitOnError)
	output := fs.String("output", "", "Output file, .dot, .svg or .png (default: stdout)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	generator := viz.NewGraphGenerator(svc.DB())
	dot, err := generator.GenerateLadderGraph(context.Background(), *output)
	if err != nil {
		return err
	}
	return writeGraph(dot, *output)
}

// DossierGraphCommand draws one dossier's relance timeline.
func DossierGraphCommand(svc *relance.Service, args []string) error {
	fs := flag.NewFlagSet("dossier-graph", flag.ExitOnError)
	output := fs.String("output", "", "Output file, .dot, .svg or .png (default: stdout)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() < 1 {
		return fmt.Errorf("dossier ID required")
	}

	ctx := context.Background()
	id, err := resolveDossierID(ctx, svc, fs.Arg(0))
	if err != nil {
		return err
	}

	generator := viz.NewGraphGenerator(svc.DB())
	dot, err := generator.GenerateDossierGraph(ctx, id, *output)
	if err != nil {
		return err
	}
	return writeGraph(dot, *output)
}

func DashboardCommand(svc *relance.Service, args []string) error {
	stats, err := viz.GenerateDashboardStats(context.Background(), svc.DB(), svc.Now())
	if err != nil {
		return fmt.Errorf("failed to generate dashboard stats: %w", err)
	}

	fmt.Print(viz.RenderDashboard(stats))
	return nil
}
