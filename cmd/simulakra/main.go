package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bughra383/simulakra/internal/api"
	"github.com/bughra383/simulakra/internal/campaign"
	"github.com/bughra383/simulakra/internal/config"
	"github.com/bughra383/simulakra/internal/extract"
	"github.com/bughra383/simulakra/internal/gophish"
	"github.com/bughra383/simulakra/internal/monitor"
	"github.com/bughra383/simulakra/internal/notify"
	"github.com/bughra383/simulakra/internal/pkg/distlock"
	"github.com/bughra383/simulakra/internal/pkg/logger"
	"github.com/bughra383/simulakra/internal/repository/postgres"
	"github.com/bughra383/simulakra/internal/results"
	"github.com/bughra383/simulakra/internal/targets"
)

const (
	exitOK           = 0
	exitConfig       = 1
	exitConnectivity = 2
	exitRun          = 3
)

const usage = `Usage: simulakra [-config path] <command>

Commands:
  run [-test]            launch and monitor this month's exercise
  complete <campaign-id> force-complete a running campaign and extract results
  campaigns              list campaigns with stats
  check                  verify config, connectivity, and campaign resources
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("simulakra", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "path to config file")
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitConfig
	}

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		return exitConfig
	}

	log := logger.New(logger.ParseLevel(cfg.Logging.Level), cfg.Logging.RedactEnabled())
	client := gophish.NewClient(cfg.GoPhish)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd := fs.Arg(0); cmd {
	case "run":
		return cmdRun(ctx, cfg, client, log, fs.Args()[1:])
	case "complete":
		return cmdComplete(ctx, cfg, client, log, fs.Args()[1:])
	case "campaigns":
		return cmdCampaigns(ctx, client)
	case "check":
		return cmdCheck(ctx, cfg, client, log)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		return exitConfig
	}
}

func cmdRun(ctx context.Context, cfg *config.Config, client *gophish.Client, log *logger.Logger, args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	testMode := fs.Bool("test", false, "short run: 30 minute monitoring deadline")
	if err := fs.Parse(args); err != nil {
		return exitConfig
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return exitConfig
	}
	if *testMode {
		cfg.Campaign.TimeoutHours = 0.5
		log.Info("test mode: monitoring deadline shortened", "timeout", "30m")
	}

	runner, cleanup, err := buildRunner(ctx, cfg, client, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		return exitConfig
	}
	defer cleanup()

	if cfg.Server.Enabled {
		var lister api.RunLister
		if runner.RunRepo != nil {
			lister = runner.RunRepo
		}
		srv := api.New(cfg.Server, runner.Runner.Status(), lister, log)
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("status API failed", "error", err.Error())
			}
		}()
		defer func() {
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutCtx)
		}()
	}

	outcome, err := runner.Runner.Run(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("run interrupted, exiting")
			return exitOK
		}
		log.Error("campaign run failed", "error", err.Error())
		return exitRun
	}

	fmt.Printf("Run %s finished: %d affected users, results in %s\n",
		outcome.RunID, len(outcome.Affected), outcome.ResultsPath)
	return exitOK
}

func cmdComplete(ctx context.Context, cfg *config.Config, client *gophish.Client, log *logger.Logger, args []string) int {
	if len(args) != 1 {
		fmt.Fprint(os.Stderr, "usage: simulakra complete <campaign-id>\n")
		return exitConfig
	}
	campaignID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid campaign id %q\n", args[0])
		return exitConfig
	}

	runner, cleanup, err := buildRunner(ctx, cfg, client, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		return exitConfig
	}
	defer cleanup()

	outcome, err := runner.Runner.CompleteNow(ctx, campaignID)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return exitOK
		}
		log.Error("manual completion failed", "campaign_id", campaignID, "error", err.Error())
		return exitRun
	}

	fmt.Printf("Campaign %d completed: %d affected users, results in %s\n",
		campaignID, len(outcome.Affected), outcome.ResultsPath)
	return exitOK
}

func cmdCampaigns(ctx context.Context, client *gophish.Client) int {
	campaigns, err := client.GetCampaigns(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "listing campaigns: %v\n", err)
		return exitConnectivity
	}

	if len(campaigns) == 0 {
		fmt.Println("No campaigns found.")
		return exitOK
	}

	fmt.Printf("%-6s %-40s %-14s %6s %6s %8s %10s\n",
		"ID", "NAME", "STATUS", "SENT", "TOTAL", "CLICKED", "SUBMITTED")
	for _, c := range campaigns {
		fmt.Printf("%-6d %-40s %-14s %6d %6d %8d %10d\n",
			c.ID, c.Name, c.Status,
			c.Stats.Sent, c.Stats.Total, c.Stats.Clicked, c.Stats.SubmittedData)
	}
	return exitOK
}

// cmdCheck is the preflight: config is valid, the service answers, the
// target list parses, and the named campaign resources exist.
func cmdCheck(ctx context.Context, cfg *config.Config, client *gophish.Client, log *logger.Logger) int {
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL config: %v\n", err)
		return exitConfig
	}
	fmt.Println("OK   config")

	if err := client.HealthCheck(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "FAIL connectivity: %v\n", err)
		return exitConnectivity
	}
	fmt.Println("OK   campaign service reachable")

	list, err := targets.ReadFile(cfg.Campaign.TargetsCSV, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL targets: %v\n", err)
		return exitConfig
	}
	fmt.Printf("OK   targets (%d valid entries)\n", len(list))

	if code := checkResource(ctx, "sending profile", cfg.Campaign.SMTPProfile, func() ([]string, error) {
		profiles, err := client.GetSMTPProfiles(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(profiles))
		for i, p := range profiles {
			names[i] = p.Name
		}
		return names, nil
	}); code != exitOK {
		return code
	}

	if code := checkResource(ctx, "email template", cfg.Campaign.Template, func() ([]string, error) {
		templates, err := client.GetTemplates(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(templates))
		for i, t := range templates {
			names[i] = t.Name
		}
		return names, nil
	}); code != exitOK {
		return code
	}

	if code := checkResource(ctx, "landing page", cfg.Campaign.LandingPage, func() ([]string, error) {
		pages, err := client.GetPages(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(pages))
		for i, p := range pages {
			names[i] = p.Name
		}
		return names, nil
	}); code != exitOK {
		return code
	}

	fmt.Println("All checks passed.")
	return exitOK
}

func checkResource(_ context.Context, kind, want string, list func() ([]string, error)) int {
	names, err := list()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL %s: %v\n", kind, err)
		return exitConnectivity
	}
	for _, name := range names {
		if name == want {
			fmt.Printf("OK   %s %q\n", kind, want)
			return exitOK
		}
	}
	fmt.Fprintf(os.Stderr, "FAIL %s %q not found (have %v)\n", kind, want, names)
	return exitConfig
}

// runnerBundle carries the runner plus the collaborators main needs to
// reach after construction.
type runnerBundle struct {
	Runner  *campaign.Runner
	RunRepo *postgres.RunRepo
}

// buildRunner wires the optional collaborators the config enables:
// warning notifier, run-history database, S3 archiver, and the
// distributed run lock.
func buildRunner(ctx context.Context, cfg *config.Config, client *gophish.Client, log *logger.Logger) (*runnerBundle, func(), error) {
	mon := monitor.New(client, log, cfg.Monitor)
	ex := extract.New(client, log, cfg.Extract)

	resultsDir := cfg.Results.Dir
	if resultsDir == "" {
		resultsDir = "results"
	}

	runner := campaign.New(client, mon, ex, cfg.Campaign, resultsDir, log)

	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Campaign.WarningsEnabled() {
		renderer, err := notify.LoadRenderer(cfg.Notify.TextTemplatePath, cfg.Notify.HTMLTemplatePath)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		var sender notify.Sender
		switch cfg.Notify.Transport {
		case "smtp":
			sender = notify.NewSMTPSender(cfg.Notify.SMTP, cfg.Notify)
		default:
			sender = notify.NewMailgunSender(cfg.Notify.Mailgun, cfg.Notify)
		}
		runner.SetNotifier(notify.New(sender, renderer, log, cfg.Notify))
	}

	bundle := &runnerBundle{Runner: runner}

	var db *sql.DB
	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.Open(cfg.Database.URL)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { db.Close() })

		repo := postgres.NewRunRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			cleanup()
			return nil, nil, err
		}
		runner.SetStore(repo)
		bundle.RunRepo = repo
	}

	if cfg.Results.S3.Enabled {
		archiver, err := results.NewArchiver(ctx, cfg.Results.S3)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		runner.SetArchiver(archiver)
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { redisClient.Close() })
	}
	if redisClient != nil || db != nil {
		runner.SetLockFactory(func(name string, ttl time.Duration) distlock.RunLock {
			return distlock.New(redisClient, db, name, ttl)
		})
	}

	return bundle, cleanup, nil
}
