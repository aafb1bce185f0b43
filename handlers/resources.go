// ABOUTME: MCP resource handlers for exposing relance data
// ABOUTME: Provides read-only access to dossiers, rules, today's calendar and the ladder via URI
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const resourceScheme = "relance://"

type ResourceHandlers struct {
	svc *relance.Service
}

func NewResourceHandlers(svc *relance.Service) *ResourceHandlers {
	return &ResourceHandlers{svc: svc}
}

// ReadResource handles resource read requests
func (h *ResourceHandlers) ReadResource(ctx context.Context, request *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	uri := request.Params.URI
	if !strings.HasPrefix(uri, resourceScheme) {
		return nil, fmt.Errorf("invalid URI scheme: expected %s", resourceScheme)
	}

	parts := strings.Split(strings.TrimPrefix(uri, resourceScheme), "/")

	switch parts[0] {
	case "dossiers":
		if len(parts) == 1 {
			return h.readAllDossiers(ctx, uri)
		}
		return h.readDossier(ctx, uri, parts[1])

	case "rules":
		return h.readRules(ctx, uri)

	case "calendar":
		return h.readToday(ctx, uri)

	case "ladder":
		return h.readLadder(ctx, uri)

	default:
		return nil, mcp.ResourceNotFoundError(uri)
	}
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", uri, err)
	}

	return &mcp.ReadResourceResult{Contents: []*mcp.ResourceContents{
		{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}}, nil
}

func (h *ResourceHandlers) readAllDossiers(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	dossiers, err := db.ListDossiers(ctx, h.svc.DB(), db.DossierFilter{Limit: 1000})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dossiers: %w", err)
	}
	return jsonResource(uri, dossiersToOutput(dossiers))
}

func (h *ResourceHandlers) readDossier(ctx context.Context, uri, idStr string) (*mcp.ReadResourceResult, error) {
	id, err := parseID("dossier ID", idStr)
	if err != nil {
		return nil, err
	}

	d, err := db.GetDossier(ctx, h.svc.DB(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dossier: %w", err)
	}
	invoices, err := db.ListInvoicesByDossier(ctx, h.svc.DB(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch invoices: %w", err)
	}
	events, err := h.svc.Scheduler().History(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}

	dossierData := struct {
		DossierOutput
		Invoices []InvoiceOutput `json:"invoices"`
		Events   []EventOutput   `json:"events"`
	}{
		DossierOutput: dossierToOutput(d),
		Invoices:      make([]InvoiceOutput, len(invoices)),
		Events:        eventsToOutput(events),
	}
	for i := range invoices {
		dossierData.Invoices[i] = invoiceToOutput(&invoices[i])
	}

	return jsonResource(uri, dossierData)
}

func (h *ResourceHandlers) readRules(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	rules, err := db.ListRules(ctx, h.svc.DB(), false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rules: %w", err)
	}

	out := make([]RuleOutput, len(rules))
	for i := range rules {
		out[i] = ruleToOutput(&rules[i])
	}
	return jsonResource(uri, out)
}

func (h *ResourceHandlers) readToday(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	events, err := h.svc.EventsOn(ctx, h.svc.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	return jsonResource(uri, eventsToOutput(events))
}

func (h *ResourceHandlers) readLadder(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	counts, err := db.CountDossiersByStatus(ctx, h.svc.DB())
	if err != nil {
		return nil, fmt.Errorf("failed to count dossiers: %w", err)
	}

	type step struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	ladder := make([]step, len(models.Ladder))
	for i, s := range models.Ladder {
		ladder[i] = step{Status: string(s), Count: counts[s]}
	}
	return jsonResource(uri, ladder)
}
