// ABOUTME: Dossier and invoice MCP tool handlers
// ABOUTME: Implements add_dossier, list_dossiers, add_invoice, record_payment, classify and status tools
package handlers

import (
	"context"
	"fmt"

	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/models"
	"github.com/harperreed/relance/relance"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type DossierHandlers struct {
	svc *relance.Service
}

func NewDossierHandlers(svc *relance.Service) *DossierHandlers {
	return &DossierHandlers{svc: svc}
}

type AddDossierInput struct {
	ClientName  string   `json:"client_name" jsonschema:"Debtor name (required)"`
	ClientEmail string   `json:"client_email,omitempty" jsonschema:"Email address used for email relances"`
	ClientPhone string   `json:"client_phone,omitempty" jsonschema:"Phone number used for SMS relances"`
	Reference   string   `json:"reference,omitempty" jsonschema:"Internal dossier reference"`
	Priority    string   `json:"priority,omitempty" jsonschema:"low, medium, high or urgent (default medium)"`
	Tags        []string `json:"tags,omitempty" jsonschema:"Tags matched by rule conditions"`
}

func (h *DossierHandlers) AddDossier(ctx context.Context, request *mcp.CallToolRequest, input AddDossierInput) (*mcp.CallToolResult, DossierOutput, error) {
	if input.ClientName == "" {
		return nil, DossierOutput{}, fmt.Errorf("client_name is required")
	}
	priority := models.Priority(input.Priority)
	if priority != "" && !priority.Valid() {
		return nil, DossierOutput{}, fmt.Errorf("invalid priority: %s", input.Priority)
	}

	d := &models.Dossier{
		ClientName:  input.ClientName,
		ClientEmail: input.ClientEmail,
		ClientPhone: input.ClientPhone,
		Reference:   input.Reference,
		Priority:    priority,
		Tags:        input.Tags,
	}
	if err := db.CreateDossier(ctx, h.svc.DB(), d); err != nil {
		return nil, DossierOutput{}, fmt.Errorf("failed to create dossier: %w", err)
	}

	return nil, dossierToOutput(d), nil
}

type ListDossiersInput struct {
	Status        string `json:"status,omitempty" jsonschema:"Filter by ladder step"`
	Priority      string `json:"priority,omitempty" jsonschema:"Filter by priority"`
	Tag           string `json:"tag,omitempty" jsonschema:"Filter by tag"`
	Query         string `json:"query,omitempty" jsonschema:"Search client name, reference or email"`
	IncludeClosed bool   `json:"include_closed,omitempty" jsonschema:"Include settled dossiers"`
	Limit         int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 50)"`
}

type DossierListOutput struct {
	Dossiers []DossierOutput `json:"dossiers"`
}

func (h *DossierHandlers) ListDossiers(ctx context.Context, request *mcp.CallToolRequest, input ListDossiersInput) (*mcp.CallToolResult, DossierListOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = 50
	}

	dossiers, err := db.ListDossiers(ctx, h.svc.DB(), db.DossierFilter{
		Status:        models.DossierStatus(input.Status),
		Priority:      models.Priority(input.Priority),
		Tag:           input.Tag,
		Query:         input.Query,
		IncludeClosed: input.IncludeClosed,
		Limit:         limit,
	})
	if err != nil {
		return nil, DossierListOutput{}, fmt.Errorf("failed to list dossiers: %w", err)
	}

	return nil, DossierListOutput{Dossiers: dossiersToOutput(dossiers)}, nil
}

func dossiersToOutput(dossiers []models.Dossier) []DossierOutput {
	out := make([]DossierOutput, len(dossiers))
	for i := range dossiers {
		out[i] = dossierToOutput(&dossiers[i])
	}
	return out
}

type AddInvoiceInput struct {
	DossierID string `json:"dossier_id" jsonschema:"Dossier UUID (required)"`
	Number    string `json:"number" jsonschema:"Invoice number (required)"`
	Amount    string `json:"amount" jsonschema:"Invoice amount as a decimal string, e.g. 1250.00 (required)"`
	DueDate   string `json:"due_date" jsonschema:"Due date YYYY-MM-DD (required)"`
}

type AddInvoiceOutput struct {
	Invoice InvoiceOutput `json:"invoice"`
	Dossier DossierOutput `json:"dossier"`
}

func (h *DossierHandlers) AddInvoice(ctx context.Context, request *mcp.CallToolRequest, input AddInvoiceInput) (*mcp.CallToolResult, AddInvoiceOutput, error) {
	dossierID, err := parseID("dossier_id", input.DossierID)
	if err != nil {
		return nil, AddInvoiceOutput{}, err
	}
	amount, err := models.ParseAmount("amount", input.Amount)
	if err != nil {
		return nil, AddInvoiceOutput{}, err
	}
	if amount == nil {
		return nil, AddInvoiceOutput{}, fmt.Errorf("amount is required")
	}
	if input.DueDate == "" {
		return nil, AddInvoiceOutput{}, fmt.Errorf("due_date is required")
	}
	due, err := models.ParseDate(input.DueDate)
	if err != nil {
		return nil, AddInvoiceOutput{}, fmt.Errorf("invalid due_date: %w", err)
	}

	inv := &models.Invoice{DossierID: dossierID, Number: input.Number, OriginalAmount: *amount, DueDate: due}
	if err := db.CreateInvoice(ctx, h.svc.DB(), inv); err != nil {
		return nil, AddInvoiceOutput{}, fmt.Errorf("failed to create invoice: %w", err)
	}

	d, err := db.GetDossier(ctx, h.svc.DB(), dossierID)
	if err != nil {
		return nil, AddInvoiceOutput{}, fmt.Errorf("failed to reload dossier: %w", err)
	}

	return nil, AddInvoiceOutput{Invoice: invoiceToOutput(inv), Dossier: dossierToOutput(d)}, nil
}

type RecordPaymentInput struct {
	InvoiceID string `json:"invoice_id" jsonschema:"Invoice UUID (required)"`
	Amount    string `json:"amount" jsonschema:"Amount paid as a decimal string (required)"`
}

type RecordPaymentOutput struct {
	Dossier DossierOutput `json:"dossier"`
	Settled bool          `json:"settled"`
}

func (h *DossierHandlers) RecordPayment(ctx context.Context, request *mcp.CallToolRequest, input RecordPaymentInput) (*mcp.CallToolResult, RecordPaymentOutput, error) {
	invoiceID, err := parseID("invoice_id", input.InvoiceID)
	if err != nil {
		return nil, RecordPaymentOutput{}, err
	}
	amount, err := models.ParseAmount("amount", input.Amount)
	if err != nil {
		return nil, RecordPaymentOutput{}, err
	}
	if amount == nil {
		return nil, RecordPaymentOutput{}, fmt.Errorf("amount is required")
	}

	d, err := h.svc.RecordPayment(ctx, invoiceID, *amount)
	if err != nil {
		return nil, RecordPaymentOutput{}, err
	}

	return nil, RecordPaymentOutput{Dossier: dossierToOutput(d), Settled: d.IsClosed()}, nil
}

type DossierIDInput struct {
	DossierID string `json:"dossier_id" jsonschema:"Dossier UUID (required)"`
}

type ClassifyOutput struct {
	DossierID   string `json:"dossier_id"`
	ClientName  string `json:"client_name"`
	Status      string `json:"status"`
	DaysOverdue int    `json:"days_overdue"`
	TotalAmount string `json:"total_amount"`
	Tier        string `json:"tier"`
}

func (h *DossierHandlers) ClassifyDossier(ctx context.Context, request *mcp.CallToolRequest, input DossierIDInput) (*mcp.CallToolResult, ClassifyOutput, error) {
	id, err := parseID("dossier_id", input.DossierID)
	if err != nil {
		return nil, ClassifyOutput{}, err
	}

	c, err := h.svc.Classify(ctx, id)
	if err != nil {
		return nil, ClassifyOutput{}, fmt.Errorf("failed to classify dossier: %w", err)
	}

	return nil, ClassifyOutput{
		DossierID:   c.DossierID.String(),
		ClientName:  c.ClientName,
		Status:      string(c.Status),
		DaysOverdue: c.DaysOverdue,
		TotalAmount: c.TotalAmount.StringFixed(2),
		Tier:        string(c.Tier),
	}, nil
}

type CriticalDossiersInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of results (default 20)"`
}

func (h *DossierHandlers) CriticalDossiers(ctx context.Context, request *mcp.CallToolRequest, input CriticalDossiersInput) (*mcp.CallToolResult, DossierListOutput, error) {
	limit := input.Limit
	if limit == 0 {
		limit = 20
	}

	dossiers, err := h.svc.CriticalDossiers(ctx, limit)
	if err != nil {
		return nil, DossierListOutput{}, err
	}

	return nil, DossierListOutput{Dossiers: dossiersToOutput(dossiers)}, nil
}

type OverrideStatusInput struct {
	DossierID string `json:"dossier_id" jsonschema:"Dossier UUID (required)"`
	Status    string `json:"status" jsonschema:"New status: initial, reminder_1, reminder_2 or critical (required)"`
}

func (h *DossierHandlers) OverrideStatus(ctx context.Context, request *mcp.CallToolRequest, input OverrideStatusInput) (*mcp.CallToolResult, DossierOutput, error) {
	id, err := parseID("dossier_id", input.DossierID)
	if err != nil {
		return nil, DossierOutput{}, err
	}

	if err := h.svc.OverrideStatus(ctx, id, models.DossierStatus(input.Status)); err != nil {
		return nil, DossierOutput{}, fmt.Errorf("failed to override status: %w", err)
	}

	d, err := db.GetDossier(ctx, h.svc.DB(), id)
	if err != nil {
		return nil, DossierOutput{}, err
	}
	return nil, dossierToOutput(d), nil
}
