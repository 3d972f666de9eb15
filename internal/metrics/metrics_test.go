package metrics

import (
	"testing"

	"escape_bench/internal/domain"
)

func episode(n int, status domain.EpisodeStatus, steps int) domain.EpisodeRecord {
	return domain.EpisodeRecord{
		Episode:    n,
		Status:     status,
		Success:    status == domain.EpisodeStatusSuccess,
		StepsTaken: steps,
	}
}

func TestSummarizeExcludesErroredEpisodes(t *testing.T) {
	records := []domain.EpisodeRecord{
		episode(1, domain.EpisodeStatusSuccess, 4),
		episode(2, domain.EpisodeStatusErrored, 2),
		episode(3, domain.EpisodeStatusTimeout, 30),
		episode(4, domain.EpisodeStatusSuccess, 6),
	}

	summary := Summarize(records)
	if summary.NumEpisodes != 3 {
		t.Fatalf("num episodes=%d want=3", summary.NumEpisodes)
	}
	if summary.ErroredEpisodes != 1 {
		t.Fatalf("errored=%d want=1", summary.ErroredEpisodes)
	}
	if got := summary.SuccessRate; got != 2.0/3.0 {
		t.Fatalf("success rate=%v", got)
	}
	if summary.AvgStepsIfSuccess == nil || *summary.AvgStepsIfSuccess != 5.0 {
		t.Fatalf("avg steps=%v", summary.AvgStepsIfSuccess)
	}
}

func TestSummarizeNoSuccesses(t *testing.T) {
	summary := Summarize([]domain.EpisodeRecord{
		episode(1, domain.EpisodeStatusTimeout, 30),
		episode(2, domain.EpisodeStatusTimeout, 30),
	})
	if summary.SuccessRate != 0 {
		t.Fatalf("success rate=%v want=0", summary.SuccessRate)
	}
	if summary.AvgStepsIfSuccess != nil {
		t.Fatalf("avg steps must be nil without successes, got %v", *summary.AvgStepsIfSuccess)
	}
}

func TestSummarizeEmptyAndAllErrored(t *testing.T) {
	summary := Summarize(nil)
	if summary.NumEpisodes != 0 || summary.ErroredEpisodes != 0 {
		t.Fatalf("summary=%+v", summary)
	}

	summary = Summarize([]domain.EpisodeRecord{
		episode(1, domain.EpisodeStatusErrored, 0),
		episode(2, domain.EpisodeStatusErrored, 0),
	})
	if summary.NumEpisodes != 0 {
		t.Fatalf("num episodes=%d want=0", summary.NumEpisodes)
	}
	if summary.ErroredEpisodes != 2 {
		t.Fatalf("errored=%d want=2", summary.ErroredEpisodes)
	}
	if summary.SuccessRate != 0 || summary.AvgStepsIfSuccess != nil {
		t.Fatalf("statistics over zero completed episodes: %+v", summary)
	}
}

func TestSummarizeAveragesReputationPerAgent(t *testing.T) {
	withRep := episode(1, domain.EpisodeStatusSuccess, 3)
	withRep.ReputationEnabled = true
	withRep.FinalReputationScores = map[string]float64{"alice": 1.0, "bob": 0.25}

	alsoRep := episode(2, domain.EpisodeStatusTimeout, 30)
	alsoRep.ReputationEnabled = true
	alsoRep.FinalReputationScores = map[string]float64{"alice": 0.5, "bob": 0.75}

	noRep := episode(3, domain.EpisodeStatusSuccess, 2)

	erroredRep := episode(4, domain.EpisodeStatusErrored, 1)
	erroredRep.ReputationEnabled = true
	erroredRep.FinalReputationScores = map[string]float64{"alice": 0.0}

	summary := Summarize([]domain.EpisodeRecord{withRep, alsoRep, noRep, erroredRep})
	if got := summary.AvgFinalReputation["alice"]; got != 0.75 {
		t.Fatalf("alice=%v want=0.75", got)
	}
	if got := summary.AvgFinalReputation["bob"]; got != 0.5 {
		t.Fatalf("bob=%v want=0.5", got)
	}
}

func TestSummarizeOmitsReputationWhenDisabled(t *testing.T) {
	summary := Summarize([]domain.EpisodeRecord{
		episode(1, domain.EpisodeStatusSuccess, 3),
	})
	if summary.AvgFinalReputation != nil {
		t.Fatalf("reputation map should be nil: %v", summary.AvgFinalReputation)
	}
}

func TestAccumulator(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(episode(1, domain.EpisodeStatusSuccess, 2))
	acc.Add(episode(2, domain.EpisodeStatusErrored, 1))

	if got := len(acc.Records()); got != 2 {
		t.Fatalf("records=%d want=2", got)
	}
	summary := acc.Summary()
	if summary.NumEpisodes != 1 || summary.ErroredEpisodes != 1 {
		t.Fatalf("summary=%+v", summary)
	}
}
