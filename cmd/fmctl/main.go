// main.go - Admin control tool for the metrics engine
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"funnelmetrics/internal"
	"funnelmetrics/internal/dashboard"
	"funnelmetrics/internal/department"
	"funnelmetrics/internal/entities"
	"funnelmetrics/internal/metrics"
	"funnelmetrics/internal/period"
	"funnelmetrics/internal/records"
	"funnelmetrics/internal/rollup"
	"funnelmetrics/internal/seeder"
	"funnelmetrics/internal/settings"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// out is where commands print their results.
var out io.Writer = os.Stdout

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&SeedCommand{},
	&SubmitCommand{},
	&ReportCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs(os.Args[1:])

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	app, err := internal.NewApp()
	if err != nil {
		log.Printf("Warning: Failed to initialize app: %v", err)
		log.Println("Proceeding with limited functionality...")
	}

	defer func() {
		if app != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
			defer cancel()
			if err := app.Shutdown(shutdownCtx); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
			if err := app.Close(); err != nil {
				log.Printf("Warning: Cleanup error: %v", err)
			}
		}
	}()

	if err := cmd.Execute(ctx, app, args); err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("app initialization failed, cannot run migrations")
	}

	log.Println("Running database migrations...")
	if err := app.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	log.Println("Migrations completed successfully")
	return nil
}

// SeedCommand populates the DB from a YAML fixture or the built-in sample
type SeedCommand struct{}

func (c *SeedCommand) Name() string { return "seed" }
func (c *SeedCommand) Description() string {
	return "Seeds the database from a YAML fixture (-file) or sample data"
}

func (c *SeedCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	file := fs.String("file", "", "YAML fixture to load (uses sample data if empty)")
	seed := fs.Uint64("seed", 1, "random seed for the sample data")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	fixture := seeder.DefaultFixture(*seed)
	if *file != "" {
		loaded, err := seeder.LoadFixture(*file)
		if err != nil {
			return err
		}
		fixture = loaded
	}

	svc, _ := app.Service(period.SystemTimeProvider{})
	stats, err := seeder.NewSeeder(app.DBManager.GetConnection(), svc, app.Logger).Run(ctx, fixture)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Seeded %d entities, %d submissions (%d records created, %d updated)\n",
		stats.Entities, stats.Submissions, stats.Created, stats.Updated)
	return nil
}

// SubmitCommand spreads a period total over daily records
type SubmitCommand struct{}

func (c *SubmitCommand) Name() string { return "submit" }
func (c *SubmitCommand) Description() string {
	return "Submits period totals for an entity (-dry-run prints the daily split)"
}

func (c *SubmitCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	opts, err := parseSubmitFlags(args)
	if err != nil {
		return err
	}
	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	svc, _ := app.Service(period.SystemTimeProvider{})
	return runSubmit(ctx, svc, opts, out)
}

type submitOptions struct {
	Input  dashboard.SubmitInput
	DryRun bool
}

func parseSubmitFlags(args []string) (submitOptions, error) {
	var opts submitOptions

	fs := flag.NewFlagSet("submit", flag.ContinueOnError)
	entity := fs.String("entity", "", "entity as type:id, e.g. creative:12")
	mode := fs.String("mode", "day", "day, week or month")
	anchor := fs.String("anchor", "", "anchor date YYYY-MM-DD (defaults to today)")
	from := fs.String("from", "", "explicit start date for week or month")
	to := fs.String("to", "", "explicit end date for week or month")
	dept := fs.String("department", "", "department of the detail counters")
	detail := fs.String("detail", "", "department counters as JSON")
	dryRun := fs.Bool("dry-run", false, "compute the daily split without storing it")

	var c metrics.Counters
	fs.Int64Var(&c.Reach, "reach", 0, "reach")
	fs.Int64Var(&c.Impressions, "impressions", 0, "impressions")
	fs.Int64Var(&c.Clicks, "clicks", 0, "link clicks")
	fs.Int64Var(&c.PageViews, "page-views", 0, "page views")
	fs.Int64Var(&c.Leads, "leads", 0, "leads")
	fs.Int64Var(&c.Checkouts, "checkouts", 0, "checkouts started")
	fs.Int64Var(&c.Sales, "sales", 0, "sales")
	spend := fs.String("spend", "0", "ad spend")
	revenue := fs.String("revenue", "0", "revenue")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	ref, err := entities.ParseRef(*entity)
	if err != nil {
		return opts, err
	}
	req, err := period.ParseRequest(*mode, *anchor, *from, *to)
	if err != nil {
		return opts, err
	}
	if c.Spend, err = decimal.NewFromString(*spend); err != nil {
		return opts, fmt.Errorf("invalid spend %q", *spend)
	}
	if c.Revenue, err = decimal.NewFromString(*revenue); err != nil {
		return opts, fmt.Errorf("invalid revenue %q", *revenue)
	}

	d, err := department.Parse(*dept)
	if err != nil {
		return opts, err
	}
	if d == department.None && *detail != "" {
		return opts, fmt.Errorf("-detail requires -department")
	}
	var raw json.RawMessage
	if *detail != "" {
		raw = json.RawMessage(*detail)
	}
	det, err := department.Payload{Department: d, Detail: raw}.Decode()
	if err != nil {
		return opts, err
	}

	opts.Input = dashboard.SubmitInput{Entity: ref, Period: req, Counters: c, Detail: det}
	opts.DryRun = *dryRun
	return opts, nil
}

func runSubmit(ctx context.Context, svc *dashboard.Service, opts submitOptions, w io.Writer) error {
	if opts.DryRun {
		svc = dryRun(svc)
	}

	res, err := svc.Submit(ctx, opts.Input)
	if err != nil {
		return err
	}

	renderSubmit(w, res, opts.DryRun)
	return nil
}

// dryRun returns a copy of svc whose writes go to a throwaway memory store.
func dryRun(svc *dashboard.Service) *dashboard.Service {
	mem := records.NewMemoryStore()
	adapter := records.NewAdapter(mem, nil, svc.Logger)
	aggregator := rollup.NewAggregator(svc.Aggregator.Hierarchy, mem)
	return dashboard.NewService(svc.Resolver, adapter, aggregator, svc.Entities, svc.Floors, svc.Logger)
}

// ReportCommand prints a rollup tree compared with the previous period
type ReportCommand struct{}

func (c *ReportCommand) Name() string { return "report" }
func (c *ReportCommand) Description() string {
	return "Prints the rollup of an entity against the previous period"
}

func (c *ReportCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	in, err := parseReportFlags(args)
	if err != nil {
		return err
	}
	if app == nil {
		return fmt.Errorf("unable to initialise app")
	}

	svc, _ := app.Service(period.SystemTimeProvider{})
	report, err := svc.Hierarchy(ctx, in)
	if err != nil {
		return err
	}
	renderReport(out, report)
	return nil
}

func parseReportFlags(args []string) (dashboard.HierarchyInput, error) {
	var in dashboard.HierarchyInput

	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	entity := fs.String("entity", "", "root entity as type:id, e.g. funnel:1")
	mode := fs.String("mode", "week", "day, week or month")
	anchor := fs.String("anchor", "", "anchor date YYYY-MM-DD (defaults to today)")
	from := fs.String("from", "", "explicit start date for week or month")
	to := fs.String("to", "", "explicit end date for week or month")
	dept := fs.String("department", "", "only count records carrying this department")
	children := fs.String("children", "", "comma separated ids of root children to keep")
	if err := fs.Parse(args); err != nil {
		return in, err
	}
	if fs.NArg() > 0 {
		return in, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	ref, err := entities.ParseRef(*entity)
	if err != nil {
		return in, err
	}
	req, err := period.ParseRequest(*mode, *anchor, *from, *to)
	if err != nil {
		return in, err
	}
	d, err := department.Parse(*dept)
	if err != nil {
		return in, err
	}

	ids, err := parseIDs(*children)
	if err != nil {
		return in, err
	}

	return dashboard.HierarchyInput{Root: ref, Period: req, Department: d, ChildIDs: ids}, nil
}

func parseIDs(raw string) ([]uint, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []uint
	for _, part := range strings.Split(raw, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid child id %q", part)
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

// Name returns the command name
func (c *StatusCommand) Name() string {
	return "status"
}

// Description returns the command description
func (c *StatusCommand) Description() string {
	return "Shows the current system status"
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Execute implements the status command
func (c *StatusCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	if app == nil {
		return fmt.Errorf("cannot check status: app initialization failed")
	}

	db := app.DBManager.GetConnection()

	var entityCount int64
	if err := db.Model(&entities.Entity{}).Count(&entityCount).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	recordCount, err := records.NewGormStore(db, app.Logger).Count(ctx)
	if err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	lastSeeded, err := settings.GetSetting(db, settings.KeyLastSeededAt)
	if err != nil {
		lastSeeded = "never"
	}

	lockStatus := "local"
	if p, ok := app.Locker.(pinger); ok {
		lockStatus = "redis ok"
		if err := p.Ping(ctx); err != nil {
			lockStatus = "redis error"
			app.Logger.Error("Lock backend ping failed", slog.Any("error", err))
		}
	}

	log.Println("System Status:")
	log.Println("- Database: Connected")
	log.Printf("- Entities: %d", entityCount)
	log.Printf("- Metric records: %d", recordCount)
	log.Printf("- Last seeded: %s", lastSeeded)
	log.Printf("- Record locks: %s", lockStatus)

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}

	log.Printf("- Max Open Connections: %d", sqlDB.Stats().MaxOpenConnections)
	log.Printf("- Open Connections: %d", sqlDB.Stats().OpenConnections)
	log.Printf("- In Use: %d", sqlDB.Stats().InUse)
	log.Printf("- Idle: %d", sqlDB.Stats().Idle)

	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

// Name returns the command name
func (c *HelpCommand) Name() string {
	return "help"
}

// Description returns the command description
func (c *HelpCommand) Description() string {
	return "Shows usage information"
}

// Execute implements the help command
func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage(out)
	return nil
}

// Helper functions

// parseArgs splits the command name from its arguments
func parseArgs(args []string) (string, []string) {
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: fmctl [command] [args...]")
	fmt.Fprintln(w, "Available commands:")

	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage(os.Stdout)
	os.Exit(1)
}
