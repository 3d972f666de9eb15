// Package narrate renders progress events as human-readable terminal
// output, with optional per-episode detail files.
package narrate

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"escape_bench/internal/domain"
)

var (
	heavyRule = strings.Repeat("=", 70)
	lightRule = strings.Repeat("-", 70)
	blockRule = strings.Repeat("=", 60)
)

type Options struct {
	// Verbose enables step-by-step output on Stdout. Episode and
	// experiment summaries print regardless.
	Verbose bool

	// DetailDir, when set, receives one detailed log file per episode.
	DetailDir string

	Stdout io.Writer
	Logger *log.Logger

	Names     map[string]string
	Team      []string
	RoomTitle string
	RoomIntro string
}

type Narrator struct {
	mu       sync.Mutex
	stdout   io.Writer
	logger   *log.Logger
	verbose  bool
	dir      string
	file     *os.File
	names    map[string]string
	team     []string
	title    string
	intro    string
	timestep int
}

func New(opts Options) *Narrator {
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Narrator{
		stdout:  out,
		logger:  logger,
		verbose: opts.Verbose,
		dir:     opts.DetailDir,
		names:   opts.Names,
		team:    opts.Team,
		title:   opts.RoomTitle,
		intro:   opts.RoomIntro,
	}
}

// Observe renders one progress event. It is safe for use from a single
// consumer goroutine alongside FinalSummary on the main goroutine.
func (n *Narrator) Observe(ev domain.ProgressEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch ev.Kind {
	case domain.ProgressEpisodeStart:
		n.beginEpisode(ev.Episode)
	case domain.ProgressTurn:
		if ev.Turn != nil {
			n.turn(*ev.Turn)
		}
	case domain.ProgressRoomEvent:
		if ev.Room != nil {
			n.detailf("\n🎉 ROOM EVENT: %s\n", ev.Room.Detail)
		}
	case domain.ProgressEpisodeEnd:
		if ev.Record != nil {
			n.endEpisode(*ev.Record)
		}
	}
}

// Close releases the current detail file, if any.
func (n *Narrator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closeFile()
}

func (n *Narrator) beginEpisode(episode int) {
	n.timestep = 0
	n.rotateFile(episode)

	n.detailf("\n%s\n", heavyRule)
	n.detailf("🏠 ESCAPE ROOM SCENARIO (episode %d)\n", episode)
	n.detailf("%s\n", heavyRule)
	n.detailf("\n📍 Location: %s\n", n.title)
	n.detailf("\n%s\n", n.intro)
	n.detailf("\n👥 Your Team:\n")
	for _, name := range n.team {
		n.detailf("   • %s\n", name)
	}
	n.detailf("\n%s\n", heavyRule)
	n.detailf("\n🎬 The scenario begins...\n")
}

func (n *Narrator) turn(turn domain.TurnRecord) {
	if turn.Timestep != n.timestep {
		n.timestep = turn.Timestep
		n.detailf("\n%s\n", heavyRule)
		n.detailf("⏱️  TIMESTEP %d\n", turn.Timestep)
		n.detailf("%s\n", heavyRule)
	}

	name := n.displayName(turn.AgentID)
	n.detailf("\n%s\n", lightRule)
	n.detailf("🤖 %s's Turn (%s)\n", name, turn.AgentID)
	n.detailf("%s\n", lightRule)

	for _, call := range turn.Calls {
		action := call.Tool
		if len(call.Args) > 0 && string(call.Args) != "{}" {
			action = fmt.Sprintf("%s %s", call.Tool, string(call.Args))
		}
		n.detailf("\n   🎯 Action: %s\n", action)
		n.detailf("   📤 Result: %s\n", call.Result)
	}

	if turn.Summary != "" {
		n.detailf("\n   💭 %s's Thoughts:\n", name)
		for _, line := range strings.Split(turn.Summary, "\n") {
			n.detailf("      %s\n", line)
		}
	}
}

func (n *Narrator) endEpisode(rec domain.EpisodeRecord) {
	n.detailf("\n%s\n", lightRule)

	status := "✗ FAILED"
	if rec.Success {
		status = "✓ SUCCESS"
	}
	n.summaryf("\n%s\n", blockRule)
	n.summaryf("Episode %d: %s\n", rec.Episode, status)
	n.summaryf("Steps taken: %d\n", rec.StepsTaken)
	n.summaryf("Wrong password attempts: %d\n", rec.WrongPasswordAttempts)
	if rec.Error != "" {
		n.summaryf("Error: %s\n", rec.Error)
	}
	if rec.ReputationEnabled && len(rec.FinalReputationScores) > 0 {
		n.summaryf("Final reputation:\n")
		n.reputationLines(rec.FinalReputationScores)
	}
	n.summaryf("%s\n", blockRule)

	if err := n.closeFile(); err != nil {
		n.logger.Printf("close episode detail log: %v", err)
	}
}

// FinalSummary prints the aggregate statistics block after all
// episodes have run.
func (n *Narrator) FinalSummary(s domain.ExperimentSummary) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.summaryf("\n%s\n", blockRule)
	n.summaryf("📊 EXPERIMENT SUMMARY\n")
	n.summaryf("%s\n", blockRule)
	n.summaryf("Total episodes: %d\n", s.NumEpisodes)
	if s.ErroredEpisodes > 0 {
		n.summaryf("Errored episodes: %d\n", s.ErroredEpisodes)
	}
	n.summaryf("Success rate: %.2f%%\n", s.SuccessRate*100)
	if s.AvgStepsIfSuccess != nil {
		n.summaryf("Avg steps (if success): %.2f\n", *s.AvgStepsIfSuccess)
	} else {
		n.summaryf("Avg steps (if success): n/a\n")
	}
	if len(s.AvgFinalReputation) > 0 {
		n.summaryf("Avg final reputation:\n")
		n.reputationLines(s.AvgFinalReputation)
	}
	n.summaryf("%s\n", blockRule)
}

func (n *Narrator) reputationLines(scores map[string]float64) {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		n.summaryf("   %s %s: %.2f\n", scoreEmoji(scores[id]), n.displayName(id), scores[id])
	}
}

// detailf writes step-by-step output to the terminal when verbose and
// to the episode detail file when one is open.
func (n *Narrator) detailf(format string, args ...any) {
	if n.verbose {
		fmt.Fprintf(n.stdout, format, args...)
	}
	if n.file != nil {
		fmt.Fprintf(n.file, format, args...)
	}
}

// summaryf writes to the terminal unconditionally and mirrors into the
// detail file.
func (n *Narrator) summaryf(format string, args ...any) {
	fmt.Fprintf(n.stdout, format, args...)
	if n.file != nil {
		fmt.Fprintf(n.file, format, args...)
	}
}

func (n *Narrator) rotateFile(episode int) {
	if err := n.closeFile(); err != nil {
		n.logger.Printf("close episode detail log: %v", err)
	}
	if n.dir == "" {
		return
	}
	path := filepath.Join(n.dir, fmt.Sprintf("episode_%d_detailed.log", episode))
	f, err := os.Create(path)
	if err != nil {
		n.logger.Printf("create episode detail log %s: %v", path, err)
		return
	}
	n.file = f
}

func (n *Narrator) closeFile() error {
	if n.file == nil {
		return nil
	}
	err := n.file.Close()
	n.file = nil
	return err
}

func (n *Narrator) displayName(id string) string {
	if name, ok := n.names[id]; ok && name != "" {
		return name
	}
	return id
}

func scoreEmoji(score float64) string {
	switch {
	case score >= 0.7:
		return "🟢"
	case score >= 0.4:
		return "🟡"
	default:
		return "🔴"
	}
}
