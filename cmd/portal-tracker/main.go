package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/nhle/portal-tracker/internal/credential"
	"github.com/nhle/portal-tracker/internal/logging"
	"github.com/nhle/portal-tracker/internal/mailbox"
	"github.com/nhle/portal-tracker/internal/model"
	"github.com/nhle/portal-tracker/internal/store"
	"github.com/nhle/portal-tracker/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "portal-tracker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	anySource := flag.Bool("any-source", false, "search mail from any sender, not just known notification addresses")
	folder := flag.String("folder", "", "mail folder to scan, overriding the remembered one")
	listOnly := flag.Bool("list-only", false, "print tracked submissions without syncing")
	watch := flag.Duration("watch", 0, "keep running and re-sync at this interval (e.g. 5m)")
	setPassword := flag.Bool("set-password", false, "prompt for the mail account password and store it in the keyring")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	if *setPassword {
		return storePassword(*configPath, cfg)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := context.Background()

	if *listOnly {
		return renderSubmissions(ctx, db)
	}

	runner, opts, err := buildRunner(cfg, db, logger, *anySource, *folder)
	if err != nil {
		return err
	}

	if *watch > 0 {
		return watchLoop(ctx, runner, opts, *watch, logger)
	}

	if err := syncOnce(ctx, cfg, runner, opts); err != nil {
		return err
	}
	return renderSubmissions(ctx, db)
}

// buildRunner assembles the sync runner from config, stored
// credentials, and flag overrides.
func buildRunner(
	cfg *model.AppConfig,
	db *store.SQLiteStore,
	logger *zap.Logger,
	anySource bool,
	folderOverride string,
) (*syncer.Runner, syncer.Options, error) {
	if cfg.Mailbox.Email == "" || cfg.Mailbox.Host == "" {
		return nil, syncer.Options{}, fmt.Errorf(
			"mailbox host and email must be set in %s", model.DefaultConfigPath())
	}

	vault, err := credential.Open()
	if err != nil {
		return nil, syncer.Options{}, err
	}
	password, err := vault.Password(cfg.Mailbox.Email)
	if err != nil {
		return nil, syncer.Options{}, fmt.Errorf(
			"no stored password for %s (store one with -set-password): %w",
			cfg.Mailbox.Email, err,
		)
	}

	open := func(ctx context.Context) (mailbox.Mailbox, error) {
		return mailbox.Dial(ctx, mailbox.IMAPConfig{
			Host:     cfg.Mailbox.Host,
			Port:     cfg.Mailbox.Port,
			Email:    cfg.Mailbox.Email,
			Password: password,
			TLS:      cfg.Mailbox.TLS,
		})
	}

	runner := syncer.New(open, db, folderPicker{}, logger, cfg.Workers)

	opts := syncer.Options{AnySource: anySource || cfg.Mailbox.AnySource}
	if folderOverride != "" {
		opts.Folder = folderOverride
	} else if cfg.Mailbox.Folder != "" {
		opts.Folder = cfg.Mailbox.Folder
	}
	return runner, opts, nil
}

// syncOnce runs a single incremental mailbox sync.
func syncOnce(
	ctx context.Context,
	cfg *model.AppConfig,
	runner *syncer.Runner,
	opts syncer.Options,
) error {
	result, err := runner.Run(ctx, opts)
	if err != nil {
		if mailbox.IsAuthError(err) {
			return fmt.Errorf(
				"the mail server rejected the credential for %s; update the stored password and retry: %w",
				cfg.Mailbox.Email, err,
			)
		}
		return err
	}

	fmt.Printf(
		"Synced %q: %d fetched, %d folded, %d skipped; parsed through %s\n",
		result.State.MailFolder,
		result.Fetched, result.Folded, result.Skipped,
		model.FormatStateDate(result.State.LastParseDate),
	)
	return nil
}

// watchLoop re-syncs on an interval until interrupted, printing each
// run's summary as it lands.
func watchLoop(
	ctx context.Context,
	runner *syncer.Runner,
	opts syncer.Options,
	interval time.Duration,
	logger *zap.Logger,
) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller := syncer.NewPoller(runner, opts, interval, logger)
	poller.Start()
	defer poller.Stop()

	fmt.Printf("Watching mailbox, re-syncing every %s (Ctrl-C to stop)\n", interval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case st := <-poller.Results():
			if st.Err != nil {
				fmt.Fprintf(os.Stderr, "sync failed: %v\n", st.Err)
				continue
			}
			if st.Result != nil {
				fmt.Printf(
					"Synced %q: %d fetched, %d folded, %d skipped; parsed through %s\n",
					st.Result.State.MailFolder,
					st.Result.Fetched, st.Result.Folded, st.Result.Skipped,
					model.FormatStateDate(st.Result.State.LastParseDate),
				)
			}
		}
	}
}

// storePassword prompts for the account email and password and stores
// the password in the keyring. A changed email is written back to the
// config file so the next sync uses it.
func storePassword(configPath string, cfg *model.AppConfig) error {
	email := cfg.Mailbox.Email
	var password string

	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Account email").
			Placeholder("user@example.com").
			Value(&email),
		huh.NewInput().
			Title("Password").
			Description("Mail account password or app password").
			EchoMode(huh.EchoModePassword).
			Value(&password),
	))
	if err := form.Run(); err != nil {
		return err
	}

	if email == "" || password == "" {
		return fmt.Errorf("email and password are required")
	}

	vault, err := credential.Open()
	if err != nil {
		return err
	}
	if err := vault.SetPassword(email, password); err != nil {
		return err
	}

	if email != cfg.Mailbox.Email {
		cfg.Mailbox.Email = email
		if err := model.SaveConfig(configPath, cfg); err != nil {
			return err
		}
	}

	fmt.Printf("Stored password for %s\n", email)
	return nil
}

// folderPicker prompts the user to pick a mail folder.
type folderPicker struct{}

func (folderPicker) Choose(candidates []string) (string, error) {
	var selected string

	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Select the mail folder containing portal emails").
			Options(huh.NewOptions(candidates...)...).
			Value(&selected),
	))

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

var (
	acceptedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	rejectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
)

// renderSubmissions prints the tracked submissions, newest first.
func renderSubmissions(ctx context.Context, db *store.SQLiteStore) error {
	subs, err := db.GetSubmissions(ctx, store.SubmissionFilter{
		SortBy:   "date_submitted",
		SortDesc: true,
	})
	if err != nil {
		return err
	}

	if len(subs) == 0 {
		fmt.Println("No tracked submissions yet.")
		return nil
	}

	now := time.Now()
	for _, sub := range subs {
		var marker, detail string
		switch sub.Status {
		case model.StatusAccepted:
			marker = acceptedStyle.Render("✓")
			detail = fmt.Sprintf("accepted %s (%d days ago)",
				model.FormatStateDate(sub.DateResponded),
				sub.DaysSinceResponse(now))
		case model.StatusRejected:
			marker = rejectedStyle.Render("✗")
			detail = fmt.Sprintf("rejected %s (%d days ago)",
				model.FormatStateDate(sub.DateResponded),
				sub.DaysSinceResponse(now))
		default:
			marker = pendingStyle.Render("…")
			detail = fmt.Sprintf("pending for %d days", sub.DaysSincePending(now))
		}

		fmt.Printf("%s %s  %s\n",
			marker,
			sub.Name,
			dimStyle.Render(fmt.Sprintf("submitted %s, %s",
				model.FormatStateDate(sub.DateSubmitted), detail)),
		)
	}
	return nil
}
