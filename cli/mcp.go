// ABOUTME: MCP server subcommand
// ABOUTME: Starts the MCP server exposing the relance tools, resources and prompts on stdio
package cli

import (
	"context"

	"github.com/harperreed/relance/handlers"
	"github.com/harperreed/relance/relance"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Version is reported to MCP clients and by --version.
const Version = "0.2.0"

// NewMCPServer builds the MCP server with every tool, resource and prompt registered.
func NewMCPServer(svc *relance.Service) *mcp.Server {
	dossierHandlers := handlers.NewDossierHandlers(svc)
	eventHandlers := handlers.NewEventHandlers(svc)
	ruleHandlers := handlers.NewRuleHandlers(svc)
	engineHandlers := handlers.NewEngineHandlers(svc)
	vizHandlers := handlers.NewVizHandlers(svc)
	resourceHandlers := handlers.NewResourceHandlers(svc)
	promptHandlers := handlers.NewPromptHandlers(svc)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "relance",
		Version: Version,
	}, nil)

	// Dossiers
	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_dossier",
		Description: "Register a new debtor dossier",
	}, dossierHandlers.AddDossier)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_dossiers",
		Description: "List dossiers filtered by status, priority, tag or a search query",
	}, dossierHandlers.ListDossiers)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_invoice",
		Description: "Attach an unpaid invoice to a dossier",
	}, dossierHandlers.AddInvoice)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "record_payment",
		Description: "Record a payment on an invoice. A dossier whose balance reaches zero is closed and its scheduled relances cancelled",
	}, dossierHandlers.RecordPayment)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "classify_dossier",
		Description: "Compute the risk tier of a dossier from its days overdue and outstanding amount",
	}, dossierHandlers.ClassifyDossier)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "critical_dossiers",
		Description: "List the dossiers at the critical step or with high risk, most risky first",
	}, dossierHandlers.CriticalDossiers)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "override_status",
		Description: "Set a dossier's escalation step by hand, bypassing the ladder order",
	}, dossierHandlers.OverrideStatus)

	// Events
	mcp.AddTool(server, &mcp.Tool{
		Name:        "events_on",
		Description: "List the relance events of one day",
	}, eventHandlers.EventsOn)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "upcoming_events",
		Description: "List a dossier's scheduled relances",
	}, eventHandlers.UpcomingEvents)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "schedule_event",
		Description: "Schedule a manual relance for a dossier, optionally dispatching it right away",
	}, eventHandlers.ScheduleEvent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "cancel_event",
		Description: "Cancel a scheduled relance",
	}, eventHandlers.CancelEvent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "complete_event",
		Description: "Record the outcome of a relance, typically a call or a letter",
	}, eventHandlers.CompleteEvent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "retry_event",
		Description: "Schedule a new attempt of a failed relance",
	}, eventHandlers.RetryEvent)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "dossier_history",
		Description: "List every relance event of a dossier, whatever its status",
	}, eventHandlers.DossierHistory)

	// Engine
	mcp.AddTool(server, &mcp.Tool{
		Name:        "evaluate_now",
		Description: "Show what the rule engine would schedule right now, without writing anything",
	}, engineHandlers.EvaluateNow)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_tick",
		Description: "Run one evaluation and dispatch cycle, as of now or a given date",
	}, engineHandlers.RunTick)

	// Rules
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_rule",
		Description: "Define a relance rule: a days-overdue threshold, conditions, actions and an optional schedule",
	}, ruleHandlers.CreateRule)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_rules",
		Description: "List relance rules in evaluation order",
	}, ruleHandlers.ListRules)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_rule_active",
		Description: "Enable or disable a relance rule",
	}, ruleHandlers.SetRuleActive)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_rule",
		Description: "Delete a relance rule. Events it produced are kept",
	}, ruleHandlers.DeleteRule)

	// Visualization
	mcp.AddTool(server, &mcp.Tool{
		Name:        "generate_graph",
		Description: "Generate a Graphviz DOT graph of the escalation ladder or of one dossier's timeline",
	}, vizHandlers.GenerateGraph)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "dashboard",
		Description: "Render the collection dashboard: ladder occupancy, outstanding amounts and today's workload",
	}, vizHandlers.Dashboard)

	// Resources
	server.AddResource(&mcp.Resource{
		URI:         "relance://dossiers",
		Name:        "dossiers",
		Description: "All open dossiers",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "relance://dossiers/{id}",
		Name:        "dossier",
		Description: "One dossier with its invoices and relance events",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         "relance://rules",
		Name:        "rules",
		Description: "Relance rules in evaluation order",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         "relance://calendar",
		Name:        "calendar",
		Description: "Today's relance events",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         "relance://ladder",
		Name:        "ladder",
		Description: "Dossier counts and outstanding amounts per escalation step",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	// Prompts
	for _, p := range handlers.Prompts() {
		server.AddPrompt(p, promptHandlers.GetPrompt)
	}

	return server
}

// MCPCommand starts the MCP server on stdio
func MCPCommand(ctx context.Context, svc *relance.Service) error {
	return NewMCPServer(svc).Run(ctx, &mcp.StdioTransport{})
}
