// ABOUTME: Entry point for the relance engine MCP server, daemon, TUI and CLI
// ABOUTME: Routes to the MCP server or CLI commands based on arguments
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/relance/charm"
	"github.com/harperreed/relance/cli"
	"github.com/harperreed/relance/config"
	"github.com/harperreed/relance/db"
	"github.com/harperreed/relance/relance"
	"github.com/harperreed/relance/tui"
)

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/relance/relance.db)")
	configPath := flag.String("config", "", "Config file (default: ~/.config/relance/config.json)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	dryRun := flag.Bool("dry-run", false, "Evaluate and schedule without sending anything")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("relance version %s\n", cli.Version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	logger := cli.NewLogger(*debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", "err", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *dryRun {
		cfg.DryRun = true
	}

	command := args[0]
	commandArgs := args[1:]

	// auth only touches the token and config files
	if command == "auth" {
		if err := cli.AuthCommand(cfg, *configPath, commandArgs); err != nil {
			logger.Fatal("Authentication failed", "err", err)
		}
		return
	}

	database, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		logger.Fatal("Failed to open database", "path", cfg.DBPath, "err", err)
	}
	defer func() { _ = database.Close() }()
	logger.Debug("database opened", "path", cfg.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc := cli.NewService(ctx, database, cfg, logger)

	switch command {
	case "mcp":
		if err := cli.MCPCommand(ctx, svc); err != nil {
			logger.Fatal("MCP server failed", "err", err)
		}

	case "daemon":
		if err := cli.DaemonCommand(svc, time.Duration(cfg.TickInterval), commandArgs); err != nil {
			logger.Fatal("Daemon failed", "err", err)
		}

	case "tui":
		if err := tui.Run(svc); err != nil {
			logger.Fatal("TUI failed", "err", err)
		}

	case "sync":
		client, err := charm.NewClient(charm.FromAppConfig(cfg))
		if err != nil {
			logger.Fatal("Failed to open rule store", "err", err)
		}
		if err := charm.SyncCommand(ctx, client, database, commandArgs); err != nil {
			logger.Fatal("Sync failed", "err", err)
		}

	case "crm":
		if len(commandArgs) == 0 {
			fmt.Println("Error: crm requires a subcommand")
			printUsage()
			os.Exit(1)
		}
		runCRM(svc, logger, commandArgs[0], commandArgs[1:])

	case "viz":
		if len(commandArgs) == 0 {
			fmt.Println("Error: viz requires a subcommand")
			printUsage()
			os.Exit(1)
		}
		runViz(svc, logger, commandArgs[0], commandArgs[1:])

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runCRM(svc *relance.Service, logger *log.Logger, command string, args []string) {
	var err error

	switch command {
	// Dossier commands
	case "add-dossier":
		err = cli.AddDossierCommand(svc, args)
	case "list-dossiers":
		err = cli.ListDossiersCommand(svc, args)
	case "add-invoice":
		err = cli.AddInvoiceCommand(svc, args)
	case "pay":
		err = cli.PayCommand(svc, args)
	case "classify":
		err = cli.ClassifyCommand(svc, args)
	case "critical":
		err = cli.CriticalCommand(svc, args)
	case "set-status":
		err = cli.SetStatusCommand(svc, args)

	// Rule commands
	case "add-rule":
		err = cli.AddRuleCommand(svc, args)
	case "list-rules":
		err = cli.ListRulesCommand(svc, args)
	case "toggle-rule":
		err = cli.ToggleRuleCommand(svc, args)
	case "delete-rule":
		err = cli.DeleteRuleCommand(svc, args)
	case "templates":
		err = cli.TemplatesCommand(svc, args)

	// Event commands
	case "events-on":
		err = cli.EventsOnCommand(svc, args)
	case "upcoming":
		err = cli.UpcomingCommand(svc, args)
	case "schedule":
		err = cli.ScheduleCommand(svc, args)
	case "cancel-event":
		err = cli.CancelEventCommand(svc, args)
	case "complete-event":
		err = cli.CompleteEventCommand(svc, args)
	case "retry-event":
		err = cli.RetryEventCommand(svc, args)
	case "calendar":
		err = cli.CalendarCommand(svc, args)

	// Engine commands
	case "tick":
		err = cli.TickCommand(svc, args)
	case "evaluate":
		err = cli.EvaluateCommand(svc, args)
	case "runs":
		err = cli.RunsCommand(svc, args)

	default:
		fmt.Printf("Unknown crm command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Fatal("Error", "err", err)
	}
}

func runViz(svc *relance.Service, logger *log.Logger, command string, args []string) {
	var err error

	switch command {
	case "dashboard":
		err = cli.DashboardCommand(svc, args)
	case "graph":
		if len(args) == 0 {
			fmt.Println("Error: viz graph requires a type (ladder or dossier)")
			printUsage()
			os.Exit(1)
		}
		switch args[0] {
		case "ladder":
			err = cli.LadderGraphCommand(svc, args[1:])
		case "dossier":
			err = cli.DossierGraphCommand(svc, args[1:])
		default:
			fmt.Printf("Unknown graph type: %s\n\n", args[0])
			printUsage()
			os.Exit(1)
		}
	default:
		fmt.Printf("Unknown viz command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		logger.Fatal("Error", "err", err)
	}
}

func printUsage() {
	fmt.Printf(`relance v%s - Debt collection relance engine

USAGE:
  relance [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/relance/relance.db)
  --config <path>        Config file (default: ~/.config/relance/config.json)
  --debug                Enable debug logging
  --dry-run              Evaluate and schedule without sending anything

COMMANDS:
  mcp                    Start MCP server for Claude Desktop
  daemon                 Run ticks on an interval until interrupted
    --interval <dur>       Time between ticks (default from config, 15m)
  tui                    Interactive calendar and critical dossier view
  auth                   Authorize Gmail and Google Calendar
    --client-id <id>       Google OAuth client ID
  sync                   Share rules and templates through Charm
                         (status, link, push, pull, wipe)
  crm                    Dossier, rule and event commands
  viz                    Dashboard and graphs

DOSSIER COMMANDS:
  relance crm add-dossier     Register a debtor
    --client <name>             Debtor name (required)
    --email <email>             Email for email relances
    --phone <phone>             Phone for SMS relances
    --ref <ref>                 Internal reference
    --priority <p>              low, medium, high, urgent (default: medium)
    --tags <a,b>                Comma-separated tags

  relance crm list-dossiers   List dossiers
    --status <s>                initial, reminder_1, reminder_2, critical
    --priority <p>              Filter by priority
    --tag <tag>                 Filter by tag
    --query <text>              Search name, reference or email
    --all                       Include settled dossiers

  relance crm add-invoice     Attach an invoice
    --dossier <id>              Dossier ID or prefix (required)
    --number <n>                Invoice number (required)
    --amount <x.yy>             Amount (required)
    --due <YYYY-MM-DD>          Due date (required)

  relance crm pay             Record a payment
    --invoice <id>              Invoice ID (required)
    --amount <x.yy>             Amount paid (required)

  relance crm classify <id>   Show a dossier's risk tier
  relance crm critical        Dossiers needing attention, most risky first
  relance crm set-status --status <s> <id>  Override the escalation step

RULE COMMANDS:
  relance crm add-rule        Define a rule
    --name <name>               Rule name (required)
    --days <n>                  Days overdue threshold (required)
    --action <type[:arg]>       Repeatable: email:reminder-1, sms:sms-reminder,
                                status:reminder_1, call:alice, letter
    --priority <n>              Tie-break weight, higher wins
    --statuses, --priorities, --tags, --min, --max   Conditions
    --frequency <f>             once, daily or weekly
    --time <HH:MM>              Time of day for scheduled rules
    --weekdays <mon,thu>        Days for weekly rules

  relance crm list-rules [--active]
  relance crm toggle-rule [--off] <id>
  relance crm delete-rule <id>
  relance crm templates       List message templates

EVENT COMMANDS:
  relance crm events-on [YYYY-MM-DD]   Relances of one day
  relance crm upcoming [--history] <dossier-id>
  relance crm schedule        Schedule a manual relance
    --dossier <id> --type <t>   Required
    --date, --time, --template, --status, --assign, --message
    --now                       Dispatch right away when due
  relance crm cancel-event <id>
  relance crm complete-event [--result <text>] [--failed] <id>
  relance crm retry-event <id>
  relance crm calendar [--month YYYY-MM]

ENGINE COMMANDS:
  relance crm tick [--date YYYY-MM-DD]   Run one evaluation and dispatch cycle
  relance crm evaluate                   Show what would be scheduled now
  relance crm runs [--limit n]           Recent ticks

VIZ COMMANDS:
  relance viz dashboard
  relance viz graph ladder [--output file]        .dot, .svg or .png
  relance viz graph dossier [--output file] <id>

EXAMPLES:
  # Register a debtor and an overdue invoice
  relance crm add-dossier --client "Acme Corp" --email ap@acme.example
  relance crm add-invoice --dossier 3f2a --number F-2026-001 --amount 1250.00 --due 2026-02-28

  # Email after 7 days overdue and move to the first reminder step
  relance crm add-rule --name "First reminder" --days 7 --action email:reminder-1 --action status:reminder_1

  # Run the engine every 15 minutes
  relance daemon

`, cli.Version)
}
