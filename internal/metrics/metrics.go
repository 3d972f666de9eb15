package metrics

import (
	"escape_bench/internal/domain"
)

// Accumulator collects episode records across an experiment run.
type Accumulator struct {
	records []domain.EpisodeRecord
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

func (a *Accumulator) Add(record domain.EpisodeRecord) {
	a.records = append(a.records, record)
}

func (a *Accumulator) Records() []domain.EpisodeRecord {
	return a.records
}

func (a *Accumulator) Summary() domain.ExperimentSummary {
	return Summarize(a.records)
}

// Summarize aggregates episode records. Errored episodes are counted
// separately and excluded from every statistic; avg_steps_if_success is
// nil when no episode succeeded.
func Summarize(records []domain.EpisodeRecord) domain.ExperimentSummary {
	var summary domain.ExperimentSummary
	completed := make([]domain.EpisodeRecord, 0, len(records))
	for _, rec := range records {
		if rec.Status == domain.EpisodeStatusErrored {
			summary.ErroredEpisodes++
			continue
		}
		completed = append(completed, rec)
	}
	summary.NumEpisodes = len(completed)
	if len(completed) == 0 {
		return summary
	}

	var successes, successSteps int
	for _, rec := range completed {
		if rec.Success {
			successes++
			successSteps += rec.StepsTaken
		}
	}
	summary.SuccessRate = float64(successes) / float64(len(completed))
	if successes > 0 {
		avg := float64(successSteps) / float64(successes)
		summary.AvgStepsIfSuccess = &avg
	}

	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, rec := range completed {
		if !rec.ReputationEnabled {
			continue
		}
		for id, score := range rec.FinalReputationScores {
			sums[id] += score
			counts[id]++
		}
	}
	if len(sums) > 0 {
		summary.AvgFinalReputation = make(map[string]float64, len(sums))
		for id, sum := range sums {
			summary.AvgFinalReputation[id] = sum / float64(counts[id])
		}
	}
	return summary
}
