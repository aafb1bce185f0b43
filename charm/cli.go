// ABOUTME: CLI commands for Charm KV rule sync
// ABOUTME: Status, link, push, pull and wipe of the shared rule documents

package charm

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
)

// SyncCommand routes "relance sync <sub>" commands.
func SyncCommand(ctx context.Context, c *Client, database *sql.DB, args []string) error {
	if len(args) == 0 {
		printSyncUsage()
		return nil
	}

	switch args[0] {
	case "status":
		return statusCommand(c, args[1:])
	case "link":
		return linkCommand(c, args[1:])
	case "push":
		return pushCommand(ctx, c, database, args[1:])
	case "pull":
		return pullCommand(ctx, c, database, args[1:])
	case "wipe":
		return wipeCommand(c, args[1:])
	default:
		printSyncUsage()
		return fmt.Errorf("unknown sync command: %s", args[0])
	}
}

func printSyncUsage() {
	fmt.Println("Usage: relance sync <status|link|push|pull|wipe>")
	fmt.Println()
	fmt.Println("Rules and templates are shared between devices through Charm KV.")
	fmt.Println("Charm uses SSH keys for authentication, no login required.")
}

func statusCommand(c *Client, args []string) error {
	fs := flag.NewFlagSet("sync status", flag.ExitOnError)
	_ = fs.Parse(args)

	cfg := c.Config()
	fmt.Println("Rule Sync Status")
	fmt.Println("────────────────")
	fmt.Printf("Server:    %s\n", cfg.Host)
	fmt.Printf("Auto-sync: %v\n", cfg.AutoSync)

	id, err := c.ID()
	if err != nil {
		fmt.Println("\nStatus: Not connected")
		return nil //nolint:nilerr // not being connected is a state, not a failure
	}
	fmt.Printf("\nStatus:    Connected\nID:        %s\n", id)

	rules, err := c.KeysWithPrefix([]byte(rulePrefix))
	if err == nil {
		fmt.Printf("Rules:     %d\n", len(rules))
	}
	templates, err := c.KeysWithPrefix([]byte(templatePrefix))
	if err == nil {
		fmt.Printf("Templates: %d\n", len(templates))
	}
	return nil
}

func linkCommand(c *Client, args []string) error {
	fs := flag.NewFlagSet("sync link", flag.ExitOnError)
	_ = fs.Parse(args)

	fmt.Printf("Linking to Charm Cloud (%s)...\n", c.Config().Host)
	if err := c.Sync(); err != nil {
		return fmt.Errorf("link failed: %w", err)
	}

	id, err := c.ID()
	if err != nil {
		fmt.Println("✓ Device linked (ID unavailable)")
	} else {
		fmt.Printf("✓ Linked to account: %s\n", id)
	}
	return nil
}

func pushCommand(ctx context.Context, c *Client, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync push", flag.ExitOnError)
	_ = fs.Parse(args)

	report, err := PushRules(ctx, c, database)
	if err != nil {
		return err
	}
	if err := c.Sync(); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}
	fmt.Printf("✓ Pushed %d rules and %d templates\n", report.Rules, report.Templates)
	return nil
}

func pullCommand(ctx context.Context, c *Client, database *sql.DB, args []string) error {
	fs := flag.NewFlagSet("sync pull", flag.ExitOnError)
	_ = fs.Parse(args)

	report, err := PullRules(ctx, c, database)
	if err != nil {
		return err
	}
	fmt.Printf("✓ Pulled %d rules and %d templates\n", report.Rules, report.Templates)
	return nil
}

func wipeCommand(c *Client, args []string) error {
	fs := flag.NewFlagSet("sync wipe", flag.ExitOnError)
	confirm := fs.Bool("confirm", false, "Confirm wiping shared rule documents")
	_ = fs.Parse(args)

	if !*confirm {
		fmt.Println("WARNING: This deletes every shared rule and template document.")
		fmt.Println("Local rules in the database are kept.")
		fmt.Println()
		fmt.Println("To confirm, run:")
		fmt.Println("  relance sync wipe --confirm")
		return nil
	}

	if err := c.Reset(); err != nil {
		return fmt.Errorf("failed to reset KV store: %w", err)
	}
	fmt.Println("✓ Shared rule documents wiped")
	return nil
}
