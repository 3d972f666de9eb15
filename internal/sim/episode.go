package sim

import (
	"context"
	"fmt"
	"log"

	"escape_bench/internal/domain"
	"escape_bench/internal/room"
	"escape_bench/internal/state"
)

type Publisher interface {
	Publish(ev domain.ProgressEvent)
}

type noopPublisher struct{}

func (noopPublisher) Publish(domain.ProgressEvent) {}

// Runner plays one episode at a time. Timesteps count from 1, every
// roster agent acts exactly once per timestep in roster order, and the
// escape check happens only after the full roster acted.
type Runner struct {
	controller *Controller
	settings   Settings
	publisher  Publisher
	runID      string
	logger     *log.Logger
}

func NewRunner(controller *Controller, settings Settings, publisher Publisher, runID string, logger *log.Logger) *Runner {
	settings = settings.withDefaults()
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		controller: controller,
		settings:   settings,
		publisher:  publisher,
		runID:      runID,
		logger:     logger,
	}
}

// RunEpisode never returns a Go error: an oracle failure or context
// cancellation is recorded on the episode itself so the experiment can
// move on to the next seed.
func (r *Runner) RunEpisode(ctx context.Context, base *room.Room, roster []domain.AgentConfig, episode int) domain.EpisodeRecord {
	env := state.NewEpisode(base, roster, state.Options{
		GossipEnabled:     r.settings.GossipEnabled,
		ReputationEnabled: r.settings.ReputationEnabled,
		AdversaryHint:     r.settings.AdversaryEnabled,
	})
	record := domain.EpisodeRecord{
		Episode:           episode,
		Status:            domain.EpisodeStatusTimeout,
		ReputationEnabled: r.settings.ReputationEnabled,
	}
	r.publisher.Publish(domain.ProgressEvent{Kind: domain.ProgressEpisodeStart, RunID: r.runID, Episode: episode})

	for t := 1; t <= r.settings.MaxSteps; t++ {
		env.BeginTimestep(t)
		record.StepsTaken = t
		for _, agentID := range env.Roster {
			if err := ctx.Err(); err != nil {
				return r.finish(env, record, err)
			}
			turn, err := r.controller.RunTurn(ctx, env, agentID)
			if err != nil {
				r.logger.Printf("episode %d agent %s turn failed at t=%d: %v", episode, agentID, t, err)
				return r.finish(env, record, err)
			}
			record.Turns = append(record.Turns, turn)
			record.Summaries = append(record.Summaries, fmt.Sprintf("[t=%d] %s: %s", t, agentID, turn.Summary))
			r.publisher.Publish(domain.ProgressEvent{
				Kind:     domain.ProgressTurn,
				RunID:    r.runID,
				Episode:  episode,
				Timestep: t,
				Turn:     &turn,
			})
			r.publishRoomEvents(env, episode)
		}
		if env.Room.Escaped {
			record.Status = domain.EpisodeStatusSuccess
			record.Success = true
			break
		}
	}
	return r.finish(env, record, nil)
}

func (r *Runner) publishRoomEvents(env *state.EnvState, episode int) {
	for _, ev := range env.DrainEvents() {
		ev.Episode = episode
		r.publisher.Publish(domain.ProgressEvent{
			Kind:     domain.ProgressRoomEvent,
			RunID:    r.runID,
			Episode:  episode,
			Timestep: ev.Timestep,
			Room:     &ev,
		})
	}
}

func (r *Runner) finish(env *state.EnvState, record domain.EpisodeRecord, cause error) domain.EpisodeRecord {
	if cause != nil {
		record.Status = domain.EpisodeStatusErrored
		record.Error = cause.Error()
	}
	record.WrongPasswordAttempts = env.WrongPasswordAttempts
	if r.settings.ReputationEnabled {
		record.FinalReputationScores = env.FinalReputation()
	}
	r.publisher.Publish(domain.ProgressEvent{
		Kind:    domain.ProgressEpisodeEnd,
		RunID:   r.runID,
		Episode: record.Episode,
		Record:  &record,
	})
	return record
}
