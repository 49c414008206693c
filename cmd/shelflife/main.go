package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shelflife/shelflife/internal/calendar"
	"github.com/shelflife/shelflife/internal/calendar/gcal"
	"github.com/shelflife/shelflife/internal/config"
	"github.com/shelflife/shelflife/internal/domain"
	"github.com/shelflife/shelflife/internal/identity"
	"github.com/shelflife/shelflife/internal/inventory"
	"github.com/shelflife/shelflife/internal/log"
	"github.com/shelflife/shelflife/internal/query"
	"github.com/shelflife/shelflife/internal/store"
	"golang.org/x/oauth2"
)

// Version is set at build time via -ldflags
var Version = "dev"

const usageText = `shelflife - perishable food tracker with remote calendar mirroring

Usage:
  shelflife list [-q text] [-category id]   list inventory (filtered)
  shelflife add -name N -category ID -expiry YYYY-MM-DD
  shelflife use -id ID -left PCT            update remaining percentage
  shelflife rm -id ID                       remove a food record
  shelflife categories                      list categories
  shelflife signin                          interactive account sign-in
  shelflife connect                         silent account connection check
  shelflife disconnect                      sign out and clear cached state
  shelflife month [-month YYYY-MM]          calendar grid with event markers

Flags:
  -v, -version   print version
`

func main() {
	var showVersion bool
	flag.BoolVar(&showVersion, "v", false, "print version")
	flag.BoolVar(&showVersion, "version", false, "print version")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()

	if showVersion {
		fmt.Printf("shelflife %s\n", Version)
		return
	}

	if err := run(flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired components. Exactly one record store handle is
// constructed here and injected into every consumer.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.RecordStore
	inventory *inventory.Repository
	broker    *identity.Broker
	sync      *calendar.SyncEngine
	loc       *time.Location
}

func run(args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := log.SetupLogger(&cfg.Logging)
	if err != nil {
		// Fall back to null logger if file logging fails
		logger = log.NullLogger()
	}
	slog.SetDefault(logger)
	logger.Info("starting shelflife", "version", Version)

	loc, err := time.LoadLocation(cfg.Calendar.TimeZone)
	if err != nil {
		logger.Warn("invalid timezone in config, using local", "timezone", cfg.Calendar.TimeZone)
		loc = time.Local
	}

	recordStore, err := store.NewRecordStore(cfg.Storage.Dir, logger)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer recordStore.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	repo := inventory.NewRepository(recordStore, logger)
	if err := repo.EnsureInitialCategories(ctx); err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}

	persist := func(tok *oauth2.Token, email string) error {
		if tok == nil {
			return config.ClearAccount()
		}
		scope, _ := tok.Extra("scope").(string)
		return config.SaveToken(tok.AccessToken, tok.RefreshToken, tok.Expiry.Format(time.RFC3339), scope, email)
	}
	broker := identity.NewBroker(
		cfg.Google.ClientID,
		cfg.Google.ClientSecret,
		identity.RestoreToken(cfg.Google.AccessToken, cfg.Google.RefreshToken, cfg.Google.TokenExpiry),
		cfg.Google.Scope,
		cfg.Google.AccountEmail,
		persist,
		logger,
	)
	provider := gcal.NewClient(gcal.DefaultBaseURL, broker, loc, logger)
	syncEngine := calendar.NewSyncEngine(broker, provider, cfg.Calendar.TimeZone, loc, logger)

	a := &app{
		cfg:       cfg,
		logger:    logger,
		store:     recordStore,
		inventory: repo,
		broker:    broker,
		sync:      syncEngine,
		loc:       loc,
	}

	cmd := "list"
	if len(args) > 0 {
		cmd = args[0]
		args = args[1:]
	}

	switch cmd {
	case "list":
		return a.cmdList(ctx, args)
	case "add":
		return a.cmdAdd(ctx, args)
	case "use":
		return a.cmdUse(ctx, args)
	case "rm":
		return a.cmdRemove(ctx, args)
	case "categories":
		return a.cmdCategories(ctx)
	case "signin":
		return a.cmdSignIn(ctx)
	case "connect":
		return a.cmdConnect(ctx)
	case "disconnect":
		return a.cmdDisconnect()
	case "month":
		return a.cmdMonth(ctx, args)
	default:
		flag.Usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (a *app) cmdList(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	q := fs.String("q", "", "search text (case-insensitive contains)")
	catID := fs.Int64("category", 0, "category id filter (0 = all)")
	fs.Parse(args)

	engine := query.NewEngine(a.store, a.logger)
	defer engine.Close()

	engine.SetQuery(*q)
	if *catID > 0 {
		engine.SetCategory(catID)
	}

	items := engine.Results()
	if len(items) == 0 {
		fmt.Println("No matching food records.")
		return nil
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tEXPIRES\tDAYS\tLEFT")
	for _, item := range items {
		f := item.Food
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d%%\n",
			f.ID, f.Name, item.Category.Name, f.FormattedExpiry(), f.DaysUntilExpiry(now), f.RemainingPercentage)
	}
	return w.Flush()
}

func (a *app) cmdAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "food name")
	catID := fs.Int64("category", 0, "category id")
	expiryStr := fs.String("expiry", "", "expiry date (YYYY-MM-DD)")
	fs.Parse(args)

	var expiry time.Time
	if *expiryStr != "" {
		t, err := time.ParseInLocation("2006-01-02", *expiryStr, a.loc)
		if err != nil {
			return &domain.ValidationError{Field: "expiry date", Reason: "must be YYYY-MM-DD"}
		}
		expiry = t
	}

	food, err := a.inventory.AddFood(ctx, *name, *catID, expiry)
	if err != nil {
		return err
	}
	fmt.Printf("Added %s\n", food)

	// Remote mirroring is independent of the local write: a failure here is
	// reported as a warning and the record stays.
	if a.sync.IsConnected() {
		if _, err := a.sync.AddExpiryEvent(ctx, food.Name, food.ExpiryDate); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not mirror expiry to calendar: %v\n", err)
		} else {
			fmt.Println("Expiry mirrored to calendar.")
		}
	}
	return nil
}

func (a *app) cmdUse(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("use", flag.ExitOnError)
	id := fs.Int64("id", 0, "food id")
	left := fs.Int("left", 0, "remaining percentage")
	fs.Parse(args)

	food, err := a.inventory.SetRemainingPercentage(ctx, *id, *left)
	if err != nil {
		return err
	}
	fmt.Printf("Updated %s\n", food)
	return nil
}

func (a *app) cmdRemove(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("rm", flag.ExitOnError)
	id := fs.Int64("id", 0, "food id")
	fs.Parse(args)

	if err := a.inventory.RemoveFood(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("Removed food %d\n", *id)
	return nil
}

func (a *app) cmdCategories(ctx context.Context) error {
	cats, err := a.inventory.Categories(ctx)
	if err != nil {
		return err
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i].ID < cats[j].ID })
	for _, c := range cats {
		fmt.Printf("%d\t%s\n", c.ID, c.Name)
	}
	return nil
}

func (a *app) cmdSignIn(ctx context.Context) error {
	if !a.cfg.IsConfigured() {
		return errors.New("no OAuth client configured; set google.client_id and google.client_secret in the config file")
	}

	account, err := a.broker.DeviceSignIn(ctx, func(userCode, verificationURL string) {
		fmt.Println()
		fmt.Printf("Visit %s\n", verificationURL)
		fmt.Printf("and enter the code: %s\n", userCode)
		fmt.Println()
		fmt.Println("Waiting for approval...")
	})
	if err != nil {
		return err
	}

	fmt.Printf("Signed in as %s\n", account)
	return nil
}

func (a *app) cmdConnect(ctx context.Context) error {
	err := a.sync.Connect(ctx)
	if errors.Is(err, domain.ErrInteractiveSignInRequired) {
		return errors.New("no cached sign-in available; run `shelflife signin` first")
	}
	if err != nil {
		return err
	}
	fmt.Printf("Connected as %s\n", a.broker.CurrentAccount())
	return nil
}

func (a *app) cmdDisconnect() error {
	a.sync.Disconnect()
	fmt.Println("Disconnected. The remote calendar and its events were left untouched.")
	return nil
}

func (a *app) cmdMonth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("month", flag.ExitOnError)
	monthStr := fs.String("month", "", "month to show (YYYY-MM, default current)")
	fs.Parse(args)

	now := time.Now().In(a.loc)
	year, month := now.Year(), now.Month()
	if *monthStr != "" {
		t, err := time.ParseInLocation("2006-01", *monthStr, a.loc)
		if err != nil {
			return fmt.Errorf("invalid month %q, want YYYY-MM", *monthStr)
		}
		year, month = t.Year(), t.Month()
	}
	a.sync.SetDisplayedMonth(year, month)

	// Markers are supplementary: connection or fetch failures leave the
	// grid intact with no markers.
	markers := map[time.Time]bool{}
	if err := a.sync.Connect(ctx); err == nil {
		for _, d := range a.sync.FetchEventDates(ctx, year, month) {
			markers[d] = true
		}
	}

	weekStart := calendar.ParseWeekStart(a.cfg.Calendar.WeekStart)
	cells := calendar.MonthGrid(year, month, weekStart, a.loc)

	fmt.Printf("%s %d\n", month, year)
	if weekStart == calendar.WeekStartSunday {
		fmt.Println("Sun  Mon  Tue  Wed  Thu  Fri  Sat")
	} else {
		fmt.Println("Mon  Tue  Wed  Thu  Fri  Sat  Sun")
	}
	var row strings.Builder
	for i, cell := range cells {
		day := fmt.Sprintf("%2d", cell.Date.Day())
		switch {
		case !cell.InMonth:
			day = " ."
		case markers[calendar.DayBucket(cell.Date, a.loc)]:
			day = day + "*"
		}
		fmt.Fprintf(&row, "%-5s", day)
		if (i+1)%7 == 0 {
			fmt.Println(strings.TrimRight(row.String(), " "))
			row.Reset()
		}
	}
	return nil
}
