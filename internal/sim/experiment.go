package sim

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"escape_bench/internal/domain"
	"escape_bench/internal/room"
	"escape_bench/internal/tools"
)

// Settings is one experiment condition. The four flags select the
// roster, the tool set and the prompt instructions for every episode.
type Settings struct {
	AdversaryEnabled  bool
	AdversaryStyle    domain.MaliceStyle
	ReputationEnabled bool
	GossipEnabled     bool
	MaxSteps          int
	Episodes          int
}

func (s Settings) withDefaults() Settings {
	if s.MaxSteps <= 0 {
		s.MaxSteps = 30
	}
	if s.Episodes <= 0 {
		s.Episodes = 5
	}
	return s
}

// Experiment runs a fixed number of independent episodes against one
// room and roster, all under the same condition.
type Experiment struct {
	oracle    Oracle
	publisher Publisher
	settings  Settings
	runID     string
	logger    *log.Logger
}

func New(o Oracle, publisher Publisher, settings Settings, logger *log.Logger) *Experiment {
	settings = settings.withDefaults()
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Experiment{
		oracle:    o,
		publisher: publisher,
		settings:  settings,
		runID:     uuid.NewString(),
		logger:    logger,
	}
}

func (e *Experiment) RunID() string { return e.runID }

func (e *Experiment) Settings() Settings { return e.settings }

// Run plays the configured number of episodes sequentially. A canceled
// context stops the run between turns; records of finished episodes are
// returned alongside the cancellation error.
func (e *Experiment) Run(ctx context.Context, base *room.Room, roster []domain.AgentConfig) ([]domain.EpisodeRecord, error) {
	set, err := tools.NewSet(tools.Capabilities{
		Gossip:     e.settings.GossipEnabled,
		Reputation: e.settings.ReputationEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("compile tool schemas: %w", err)
	}
	runner := NewRunner(NewController(e.oracle, set), e.settings, e.publisher, e.runID, e.logger)

	records := make([]domain.EpisodeRecord, 0, e.settings.Episodes)
	for episode := 1; episode <= e.settings.Episodes; episode++ {
		if err := ctx.Err(); err != nil {
			return records, err
		}
		record := runner.RunEpisode(ctx, base, roster, episode)
		records = append(records, record)
		e.logger.Printf("episode %d finished status=%s steps=%d wrong_attempts=%d",
			record.Episode, record.Status, record.StepsTaken, record.WrongPasswordAttempts)
	}
	return records, nil
}
