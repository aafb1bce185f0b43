// ABOUTME: Builds the relance service and its transports from configuration
// ABOUTME: Falls back to logging transports when a channel is not configured or dry-run is on
package cli

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harperreed/relance/config"
	"github.com/harperreed/relance/relance"
	"github.com/harperreed/relance/transport"
	"golang.org/x/term"
	"google.golang.org/api/option"
)

// NewLogger returns the process logger. Colors and timestamps are kept for
// interactive terminals only.
func NewLogger(debug bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: isTerminal(os.Stderr),
		TimeFormat:      time.Kitchen,
		Prefix:          "relance",
	})
	if debug {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewService wires the relance service to the transports the configuration
// enables. A channel whose transport cannot be built logs its messages instead.
func NewService(ctx context.Context, database *sql.DB, cfg *config.Config, logger *log.Logger) *relance.Service {
	opts := relance.Options{
		Mail:    transport.NewLogSender(logger, "email"),
		SMS:     transport.NewLogSender(logger, "sms"),
		Timeout: time.Duration(cfg.DispatchTimeout),
		Workers: cfg.Workers,
		DryRun:  cfg.DryRun,
		Logger:  logger,
	}

	if cfg.DryRun {
		return relance.New(database, opts)
	}

	if cfg.SMSConfigured() {
		opts.SMS = transport.NewSMSGateway(cfg.SMSGatewayURL, cfg.SMSToken, cfg.SMSSender, nil)
	}

	if cfg.MailConfigured() || cfg.CalendarConfigured() {
		client, err := googleClient(ctx, cfg)
		if err != nil {
			logger.Warn("google transports disabled", "err", err)
			return relance.New(database, opts)
		}

		if cfg.MailConfigured() {
			sender, err := transport.NewGmailSender(ctx, cfg.MailFrom, option.WithHTTPClient(client))
			if err != nil {
				logger.Warn("gmail transport disabled", "err", err)
			} else {
				opts.Mail = sender
			}
		}
		if cfg.CalendarConfigured() {
			publisher, err := transport.NewCalendarPublisher(ctx, cfg.CalendarID, option.WithHTTPClient(client))
			if err != nil {
				logger.Warn("calendar transport disabled", "err", err)
			} else {
				opts.Calendar = publisher
			}
		}
	}

	return relance.New(database, opts)
}

func googleClient(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	token, err := transport.LoadToken(transport.TokenPath())
	if err != nil {
		return nil, fmt.Errorf("no Google token, run 'relance auth' first: %w", err)
	}
	return transport.HTTPClient(ctx, transport.NewOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret), token)
}
