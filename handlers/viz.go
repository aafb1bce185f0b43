// ABOUTME: GraphViz visualization and dashboard MCP handlers
// ABOUTME: Provides generate_graph and dashboard tools for agents
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/harperreed/relance/relance"
	"github.com/harperreed/relance/viz"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type VizHandlers struct {
	svc *relance.Service
}

func NewVizHandlers(svc *relance.Service) *VizHandlers {
	return &VizHandlers{svc: svc}
}

type GenerateGraphInput struct {
	Type      string `json:"type" jsonschema:"Graph type: ladder or dossier"`
	DossierID string `json:"dossier_id,omitempty" jsonschema:"Dossier UUID (required for dossier graphs)"`
}

type GenerateGraphOutput struct {
	GraphType string `json:"graph_type"`
	DOTSource string `json:"dot_source"`
	NodeCount int    `json:"node_count"`
	EdgeCount int    `json:"edge_count"`
}

func (h *VizHandlers) GenerateGraph(ctx context.Context, request *mcp.CallToolRequest, input GenerateGraphInput) (*mcp.CallToolResult, GenerateGraphOutput, error) {
	if input.Type == "" {
		return nil, GenerateGraphOutput{}, fmt.Errorf("type is required")
	}

	generator := viz.NewGraphGenerator(h.svc.DB())
	var dot string
	var err error

	switch input.Type {
	case "ladder":
		dot, err = generator.GenerateLadderGraph(ctx, "")

	case "dossier":
		id, perr := parseID("dossier_id", input.DossierID)
		if perr != nil {
			return nil, GenerateGraphOutput{}, perr
		}
		dot, err = generator.GenerateDossierGraph(ctx, id, "")

	default:
		return nil, GenerateGraphOutput{}, fmt.Errorf("unknown graph type: %s (valid types: ladder, dossier)", input.Type)
	}

	if err != nil {
		return nil, GenerateGraphOutput{}, fmt.Errorf("failed to generate graph: %w", err)
	}

	return nil, GenerateGraphOutput{
		GraphType: input.Type,
		DOTSource: dot,
		NodeCount: strings.Count(dot, "label="),
		EdgeCount: strings.Count(dot, "->"),
	}, nil
}

type DashboardInput struct{}

type DashboardOutput struct {
	Text string `json:"text"`
}

func (h *VizHandlers) Dashboard(ctx context.Context, request *mcp.CallToolRequest, input DashboardInput) (*mcp.CallToolResult, DashboardOutput, error) {
	stats, err := viz.GenerateDashboardStats(ctx, h.svc.DB(), h.svc.Now())
	if err != nil {
		return nil, DashboardOutput{}, fmt.Errorf("failed to build dashboard: %w", err)
	}

	return nil, DashboardOutput{Text: viz.RenderDashboard(stats)}, nil
}
