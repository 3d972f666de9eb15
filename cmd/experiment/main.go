package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"escape_bench/internal/config"
	"escape_bench/internal/domain"
	"escape_bench/internal/events"
	"escape_bench/internal/journal"
	"escape_bench/internal/metrics"
	"escape_bench/internal/narrate"
	"escape_bench/internal/oracle"
	"escape_bench/internal/room"
	"escape_bench/internal/sim"
	sqlitestore "escape_bench/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml")
	roomFlag := flag.String("room", "", "path to room YAML or JSON file")
	personasFlag := flag.String("personas", "", "path to personas YAML or JSON file")
	adversary := flag.Bool("adversary", false, "include a malicious persona in the roster")
	adversaryStyle := flag.String("adversary-style", "", "malicious persona style: subtle or always-wrong")
	reputation := flag.Bool("reputation", false, "enable private reputation tracking")
	gossip := flag.Bool("gossip", false, "enable private messaging between agents")
	maxSteps := flag.Int("max-steps", 0, "maximum timesteps per episode (default 30)")
	seeds := flag.Int("seeds", 0, "number of independent episodes to run (default 5)")
	model := flag.String("model", "", "chat model name override")
	logDir := flag.String("log-dir", "", "directory for episode logs and metrics")
	dbFlag := flag.String("db", "", "sqlite database path override")
	compress := flag.Bool("compress", false, "zstd-compress episode log files")
	verbose := flag.Bool("verbose", false, "print detailed step-by-step output")
	detailed := flag.Bool("detailed-logs", false, "write one detailed log file per episode (requires -log-dir)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	cfg.Paths.Room = firstNonEmpty(*roomFlag, cfg.Paths.Room)
	cfg.Paths.Personas = firstNonEmpty(*personasFlag, cfg.Paths.Personas)
	cfg.Paths.LogDir = firstNonEmpty(*logDir, cfg.Paths.LogDir)
	cfg.Paths.DB = firstNonEmpty(*dbFlag, cfg.Paths.DB)
	cfg.Oracle.Model = firstNonEmpty(*model, cfg.Oracle.Model)
	cfg.Experiment.AdversaryStyle = firstNonEmpty(*adversaryStyle, cfg.Experiment.AdversaryStyle)

	// Switch flags can only turn features on; disabling is done by
	// omitting both the flag and the config entry.
	cfg.Experiment.Adversary = cfg.Experiment.Adversary || *adversary
	cfg.Experiment.Reputation = cfg.Experiment.Reputation || *reputation
	cfg.Experiment.Gossip = cfg.Experiment.Gossip || *gossip
	cfg.Journal.Compress = cfg.Journal.Compress || *compress
	cfg.Journal.Detailed = cfg.Journal.Detailed || *detailed
	if *maxSteps > 0 {
		cfg.Experiment.MaxSteps = *maxSteps
	}
	if *seeds > 0 {
		cfg.Experiment.Episodes = *seeds
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	fmt.Printf("Loading room from: %s\n", cfg.Paths.Room)
	baseRoom, err := room.Load(cfg.Paths.Room)
	if err != nil {
		log.Fatalf("load room: %v", err)
	}

	fmt.Printf("Loading personas from: %s\n", cfg.Paths.Personas)
	personas, err := config.LoadPersonas(cfg.Paths.Personas)
	if err != nil {
		log.Fatalf("load personas: %v", err)
	}

	settings := sim.Settings{
		AdversaryEnabled:  cfg.Experiment.Adversary,
		AdversaryStyle:    domain.MaliceStyle(cfg.Experiment.AdversaryStyle),
		ReputationEnabled: cfg.Experiment.Reputation,
		GossipEnabled:     cfg.Experiment.Gossip,
		MaxSteps:          cfg.Experiment.MaxSteps,
		Episodes:          cfg.Experiment.Episodes,
	}
	roster, err := sim.SelectRoster(personas, settings)
	if err != nil {
		log.Fatalf("select roster: %v", err)
	}

	printBanner(baseRoom, roster, settings, cfg.Oracle.Model)

	if *verbose && settings.Episodes > 1 {
		fmt.Println("⚠️  WARNING: verbose output across multiple episodes produces a lot of text.")
		fmt.Println("   Consider -seeds 1, or -detailed-logs to write per-episode files instead.")
		fmt.Println()
	}

	fmt.Println("Initializing chat client...")
	client, err := oracle.NewChatClient(oracle.ChatClientConfig{
		Model:          cfg.Oracle.Model,
		BaseURL:        cfg.Oracle.BaseURL,
		APIKeyEnv:      cfg.Oracle.APIKeyEnv,
		Retries:        cfg.Oracle.MaxRetries,
		RetryBackoff:   time.Duration(cfg.Oracle.RetryBackoffMS) * time.Millisecond,
		RequestTimeout: time.Duration(cfg.Oracle.RequestTimeoutMS) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("create chat client: %v", err)
	}

	dbPath := filepath.Clean(cfg.Paths.DB)
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("create db directory: %v", err)
		}
	}
	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		log.Fatalf("open sqlite store: %v", err)
	}
	defer func() {
		_ = store.Close()
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migrate sqlite: %v", err)
	}

	if cfg.Paths.LogDir != "" {
		if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
			log.Fatalf("create log directory: %v", err)
		}
	}

	stream := events.New(256)
	exp := sim.New(client, stream, settings, log.Default())

	if err := store.CreateRun(ctx, domain.RunRecord{
		ID:             exp.RunID(),
		RoomID:         baseRoom.RoomID,
		Model:          cfg.Oracle.Model,
		Adversary:      settings.AdversaryEnabled,
		AdversaryStyle: settings.AdversaryStyle,
		Reputation:     settings.ReputationEnabled,
		Gossip:         settings.GossipEnabled,
		MaxSteps:       settings.MaxSteps,
		Episodes:       settings.Episodes,
		StartedAt:      time.Now().UTC(),
	}); err != nil {
		log.Fatalf("record run: %v", err)
	}

	names := make(map[string]string, len(roster))
	team := make([]string, 0, len(roster))
	for _, p := range roster {
		names[p.ID] = p.Name
		team = append(team, p.Name)
	}

	detailDir := ""
	if cfg.Journal.Detailed {
		detailDir = cfg.Paths.LogDir
	}
	narrator := narrate.New(narrate.Options{
		Verbose:   *verbose,
		DetailDir: detailDir,
		Names:     names,
		Team:      team,
		RoomTitle: baseRoom.Title,
		RoomIntro: baseRoom.Intro,
	})

	var wg sync.WaitGroup

	narratorCh := stream.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range narratorCh {
			narrator.Observe(ev)
		}
	}()

	recorderCh := stream.Subscribe()
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range recorderCh {
			recordEvent(store, exp.RunID(), ev)
		}
	}()

	fmt.Printf("\nRunning %d episodes...\n", settings.Episodes)
	records, runErr := exp.Run(ctx, baseRoom, roster)
	if runErr != nil {
		log.Printf("experiment interrupted: %v", runErr)
	}

	stream.Close()
	wg.Wait()
	if err := narrator.Close(); err != nil {
		log.Printf("close narrator: %v", err)
	}

	summary := metrics.Summarize(records)
	if err := store.FinishRun(context.Background(), exp.RunID(), time.Now().UTC(), summary); err != nil {
		log.Printf("finish run: %v", err)
	}
	narrator.FinalSummary(summary)

	if cfg.Paths.LogDir != "" {
		saveLogs(cfg, records, summary)
	}

	fmt.Println("\nExperiment complete!")
	if runErr != nil {
		_ = store.Close()
		os.Exit(1)
	}
}

// recordEvent persists one progress event. The recorder keeps running
// after the run context is canceled so already-published events still
// land in the store.
func recordEvent(store *sqlitestore.Store, runID string, ev domain.ProgressEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch ev.Kind {
	case domain.ProgressRoomEvent:
		if ev.Room == nil {
			return
		}
		if err := store.InsertRoomEvent(ctx, runID, *ev.Room); err != nil {
			log.Printf("record room event: %v", err)
		}
	case domain.ProgressEpisodeEnd:
		if ev.Record == nil {
			return
		}
		if err := store.SaveEpisode(ctx, runID, *ev.Record); err != nil {
			log.Printf("record episode: %v", err)
		}
	}
}

func saveLogs(cfg config.Config, records []domain.EpisodeRecord, summary domain.ExperimentSummary) {
	j, err := journal.New(cfg.Paths.LogDir, cfg.Journal.Compress)
	if err != nil {
		log.Printf("open log directory: %v", err)
		return
	}
	fmt.Printf("\nSaving logs to: %s\n", j.Dir())
	if _, err := j.WriteEpisodes(records); err != nil {
		log.Printf("save episode logs: %v", err)
	}
	if cfg.Journal.Detailed {
		for _, rec := range records {
			if _, err := j.WriteTrajectory(rec); err != nil {
				log.Printf("save trajectory for episode %d: %v", rec.Episode, err)
			}
		}
	}
	if _, err := j.WriteSummary(summary); err != nil {
		log.Printf("save metrics summary: %v", err)
	}
}

func printBanner(r *room.Room, roster []domain.AgentConfig, settings sim.Settings, model string) {
	rule := strings.Repeat("=", 60)
	names := make([]string, 0, len(roster))
	for _, p := range roster {
		names = append(names, p.Name)
	}

	fmt.Println()
	fmt.Println(rule)
	fmt.Println("EXPERIMENT CONFIGURATION")
	fmt.Println(rule)
	fmt.Printf("Room: %s (%s)\n", r.Title, r.RoomID)
	fmt.Printf("Agents: %s\n", strings.Join(names, ", "))
	fmt.Printf("Adversary enabled: %t\n", settings.AdversaryEnabled)
	fmt.Printf("Reputation enabled: %t\n", settings.ReputationEnabled)
	fmt.Printf("Gossip enabled: %t\n", settings.GossipEnabled)
	fmt.Printf("Max steps: %d\n", settings.MaxSteps)
	fmt.Printf("Number of episodes: %d\n", settings.Episodes)
	fmt.Printf("Model: %s\n", model)
	fmt.Println(rule)
	fmt.Println()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
