// curator drives the Discord marketing curation pipeline: scraping a
// guild's text channels into an embedded store, running the LLM stage
// engine over the scraped messages, and exporting results.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/discord-curator/curator/pkg/config"
	"github.com/discord-curator/curator/pkg/discord"
	"github.com/discord-curator/curator/pkg/export"
	"github.com/discord-curator/curator/pkg/llm"
	"github.com/discord-curator/curator/pkg/prompt"
	"github.com/discord-curator/curator/pkg/stage"
	"github.com/discord-curator/curator/pkg/store"
	"github.com/discord-curator/curator/pkg/validator"
	"github.com/discord-curator/curator/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: curator <scrape|db|export|process> ...")
		return 1
	}

	envPath := getEnv("ENV_FILE", ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Debug("no .env file loaded", "path", envPath, "error", err)
	}

	configPath := getEnv("CONFIG_PATH", "./config.json")
	ctx := context.Background()

	cfg, err := config.Initialize(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "curator %s: configuration error: %v\n", version.Full(), err)
		return 1
	}
	logger := config.NewLogger(cfg.Logging)
	slog.SetDefault(logger)

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "scrape":
		return cmdScrape(ctx, cfg, logger, rest)
	case "db":
		return cmdDB(ctx, cfg, logger, rest)
	case "export":
		return cmdExport(ctx, cfg, rest)
	case "process":
		return cmdProcess(ctx, cfg, logger, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		return 1
	}
}

func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	return store.Open(ctx, cfg.Database.Path)
}

// --- scrape ---

func cmdScrape(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("scrape", flag.ExitOnError)
	full := fs.Bool("full", false, "ignore last_scraped_message_id and scrape from the beginning")
	var channels stringList
	fs.Var(&channels, "channel", "limit scrape to this channel name (repeatable)")
	limit := fs.Int("limit", 0, "max messages per channel (0 = unbounded)")
	delay := fs.Int("delay", 0, "override scraper.delayBetweenRequests, ms")
	dryRun := fs.Bool("dry-run", false, "connect and enumerate channels without persisting")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if cfg.Discord.Token == "" || cfg.Discord.GuildID == "" {
		fmt.Fprintln(os.Stderr, "scrape: discord.token and discord.guildId are required")
		return 1
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "scrape: %v\n", err)
		return 1
	}
	defer st.Close()

	delayMS := cfg.Scraper.DelayBetweenRequests
	if *delay > 0 {
		delayMS = *delay
	}

	scraper := discord.New(discord.NewGatewayService(), st, logger)
	result, err := scraper.Drive(ctx, discord.ScrapeOptions{
		GuildID:     cfg.Discord.GuildID,
		Token:       cfg.Discord.Token,
		Channels:    []string(channels),
		Incremental: !*full,
		Limit:       *limit,
		DelayMS:     delayMS,
		DryRun:      *dryRun,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "scrape: %v\n", err)
		return 1
	}

	logger.Info("scrape complete",
		"sync_state_id", result.SyncStateID,
		"messages_processed", result.MessagesProcessed,
		"channel_errors", len(result.ChannelErrors),
		"dry_run", *dryRun)
	for ch, cerr := range result.ChannelErrors {
		logger.Warn("channel scrape failed", "channel", ch, "error", cerr)
	}
	return 0
}

type stringList []string

func (s *stringList) String() string { return fmt.Sprintf("%v", []string(*s)) }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// --- db ---

func cmdDB(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: curator db <init|stats|path>")
		return 1
	}

	switch args[0] {
	case "init":
		st, err := openStore(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "db init: %v\n", err)
			return 1
		}
		defer st.Close()
		logger.Info("database initialized", "path", cfg.Database.Path)
		return 0

	case "stats":
		st, err := openStore(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "db stats: %v\n", err)
			return 1
		}
		defer st.Close()
		stats, err := st.Statistics(ctx, cfg.Database.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "db stats: %v\n", err)
			return 1
		}
		fmt.Printf("guilds=%d channels=%d users=%d messages=%d ai_processing=%d marketing_extracts=%d file_size_bytes=%d\n",
			stats.Guilds, stats.Channels, stats.Users, stats.Messages,
			stats.AIProcessingRows, stats.MarketingExtracts, stats.FileSizeBytes)
		return 0

	case "path":
		fmt.Println(cfg.Database.Path)
		return 0

	default:
		fmt.Fprintf(os.Stderr, "unknown db subcommand %q\n", args[0])
		return 1
	}
}

// --- export ---

func cmdExport(ctx context.Context, cfg *config.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: curator export <messages|channels|summary>")
		return 1
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("export "+sub, flag.ExitOnError)
	format := fs.String("format", "json", "output format: json|csv")
	channel := fs.String("channel", "", "restrict to this channel id")
	since := fs.String("since", "", "only rows at or after this date (2006-01-02 or RFC3339)")
	until := fs.String("until", "", "only rows before this date; summaries up to and including it (2006-01-02 or RFC3339)")
	includeEmbeds := fs.Bool("include-embeds", false, "include embeds in messages export")
	includeAttachments := fs.Bool("include-attachments", false, "include attachments in messages export")
	includeReactions := fs.Bool("include-reactions", false, "include reactions in messages export")
	pretty := fs.Bool("pretty", false, "pretty-print JSON output")
	if err := fs.Parse(rest); err != nil {
		return 1
	}

	sinceT, err := parseFlexibleTime(*since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: --since: %v\n", err)
		return 1
	}
	untilT, err := parseFlexibleTime(*until)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: --until: %v\n", err)
		return 1
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export: %v\n", err)
		return 1
	}
	defer st.Close()

	opts := export.Options{
		Format:             export.Format(*format),
		ChannelID:          *channel,
		Since:              sinceT,
		Until:              untilT,
		IncludeEmbeds:      *includeEmbeds,
		IncludeAttachments: *includeAttachments,
		IncludeReactions:   *includeReactions,
		Pretty:             *pretty,
	}

	var n int
	switch sub {
	case "messages":
		n, err = export.Messages(ctx, st, os.Stdout, opts)
	case "channels":
		n, err = export.Channels(ctx, st, os.Stdout, cfg.Discord.GuildID, opts)
	case "summary":
		n, err = export.Summary(ctx, st, os.Stdout, cfg.Discord.GuildID, opts)
	default:
		fmt.Fprintf(os.Stderr, "unknown export subcommand %q\n", sub)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "export %s: %v\n", sub, err)
		return 1
	}
	fmt.Fprintf(os.Stderr, "exported %d rows\n", n)
	return 0
}

func parseFlexibleTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t, nil
	}
	return nil, fmt.Errorf("invalid date %q (want 2006-01-02 or RFC3339)", s)
}

// --- process ---

func newEngine(cfg *config.Config, st *store.Store, logger *slog.Logger) (*stage.Engine, error) {
	v, err := validator.New()
	if err != nil {
		return nil, fmt.Errorf("process: build validator: %w", err)
	}

	builder := prompt.New()
	llmClient := llm.New(llm.Config{
		BaseURL:    getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
		APIKey:     cfg.AI.APIKey,
		Model:      cfg.AI.Model,
		MaxRetries: cfg.AI.RetryAttempts,
		Logger:     logger,
	})

	return stage.New(stage.Config{
		Store:               st,
		LLM:                 llmClient,
		Prompts:             builder,
		Validator:           v,
		Model:               cfg.AI.Model,
		AnonymizeInPrompts:  cfg.Privacy.AnonymizeInPrompts,
		MaxTokensPerBatch:   cfg.AI.MaxTokensPerBatch,
		MaxMessagesPerBatch: cfg.AI.BatchSize,
		Logger:              logger,
	}), nil
}

var stageOrder = []string{"filter", "categorize", "summarize", "extract", "format"}

func cmdProcess(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: curator process <run|status|reset>")
		return 1
	}
	sub, rest := args[0], args[1:]

	switch sub {
	case "run":
		return cmdProcessRun(ctx, cfg, logger, rest)
	case "status":
		return cmdProcessStatus(ctx, cfg, rest)
	case "reset":
		return cmdProcessReset(ctx, cfg, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown process subcommand %q\n", sub)
		return 1
	}
}

func cmdProcessRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("process run", flag.ExitOnError)
	stageName := fs.String("stage", "", "run a single stage: filter|categorize|summarize|extract|format")
	all := fs.Bool("all", false, "run every enabled stage in pipeline order")
	channel := fs.String("channel", "", "restrict to this channel id")
	since := fs.String("since", "", "restrict to rows at/after this date")
	until := fs.String("until", "", "restrict to rows before this date")
	limit := fs.Int("limit", 0, "max candidates to process (0 = unbounded)")
	force := fs.Bool("force", false, "reprocess even if a stage row already exists")
	dryRun := fs.Bool("dry-run", false, "select candidates and batch them without calling the LLM")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *stageName == "" && !*all {
		fmt.Fprintln(os.Stderr, "process run: one of --stage or --all is required")
		return 1
	}

	sinceT, err := parseFlexibleTime(*since)
	if err != nil {
		fmt.Fprintf(os.Stderr, "process run: --since: %v\n", err)
		return 1
	}
	untilT, err := parseFlexibleTime(*until)
	if err != nil {
		fmt.Fprintf(os.Stderr, "process run: --until: %v\n", err)
		return 1
	}
	opts := stage.RunOptions{ChannelID: *channel, Start: sinceT, End: untilT, Limit: *limit, Force: *force, DryRun: *dryRun}

	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "process run: %v\n", err)
		return 1
	}
	defer st.Close()

	engine, err := newEngine(cfg, st, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "process run: %v\n", err)
		return 1
	}

	stages := stageOrder
	if !*all {
		stages = []string{*stageName}
	}

	exitCode := 0
	for _, name := range stages {
		if *all && !cfg.StageEnabled(name) {
			logger.Info("skipping disabled stage", "stage", name)
			continue
		}
		result, err := runStage(ctx, engine, cfg, name, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "process run: stage %s: %v\n", name, err)
			return 1
		}
		logger.Info("stage complete",
			"stage", name, "candidates", result.CandidateCount,
			"processed", result.ProcessedCount, "errors", len(result.Errors), "dry_run", result.DryRun)
		if len(result.Errors) > 0 {
			exitCode = 1
		}
	}
	return exitCode
}

func runStage(ctx context.Context, engine *stage.Engine, cfg *config.Config, name string, opts stage.RunOptions) (stage.Result, error) {
	switch name {
	case "filter":
		return engine.RunFilter(ctx, opts)
	case "categorize":
		return engine.RunCategorize(ctx, opts)
	case "summarize":
		if opts.Start == nil {
			now := time.Now().UTC()
			opts.Start = &now
		}
		daily, err := engine.RunSummarizeDaily(ctx, cfg.Discord.GuildID, opts)
		if err != nil {
			return daily, err
		}
		weekly, err := engine.RunSummarizeWeekly(ctx, cfg.Discord.GuildID, opts)
		if err != nil {
			return daily, err
		}
		daily.ProcessedCount += weekly.ProcessedCount
		daily.Errors = append(daily.Errors, weekly.Errors...)
		return daily, nil
	case "extract":
		return engine.RunExtract(ctx, opts)
	case "format":
		return engine.RunFormat(ctx, opts)
	default:
		return stage.Result{}, fmt.Errorf("unknown stage %q", name)
	}
}

func cmdProcessStatus(ctx context.Context, cfg *config.Config, args []string) int {
	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "process status: %v\n", err)
		return 1
	}
	defer st.Close()

	counts, err := st.StageStatus(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "process status: %v\n", err)
		return 1
	}
	for _, c := range counts {
		fmt.Printf("%-12s %d\n", c.Stage, c.Count)
	}
	return 0
}

func cmdProcessReset(ctx context.Context, cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("process reset", flag.ExitOnError)
	confirm := fs.Bool("confirm", false, "required to actually delete rows")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: curator process reset <stage> --confirm")
		return 1
	}
	stageName := fs.Arg(0)
	if !*confirm {
		fmt.Fprintln(os.Stderr, "process reset: refusing to delete without --confirm")
		return 1
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "process reset: %v\n", err)
		return 1
	}
	defer st.Close()

	n, err := st.ResetStage(ctx, stageName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "process reset: %v\n", err)
		return 1
	}
	fmt.Printf("reset %d rows for stage %s\n", n, stageName)
	return 0
}
