package sim

import (
	"fmt"

	"escape_bench/internal/domain"
)

// SelectRoster picks the episode roster from the personas file. Without
// an adversary the roster is every cooperative persona. With one, the
// first malicious persona (preferring the requested style) joins the
// cooperative personas, and any persona marked bench_when_adversary sits
// out so the roster size stays constant across conditions.
func SelectRoster(personas []domain.AgentConfig, settings Settings) ([]domain.AgentConfig, error) {
	var cooperative, malicious []domain.AgentConfig
	for _, p := range personas {
		if p.IsMalicious {
			malicious = append(malicious, p)
		} else {
			cooperative = append(cooperative, p)
		}
	}
	if len(cooperative) == 0 {
		return nil, fmt.Errorf("personas file has no cooperative personas")
	}

	if !settings.AdversaryEnabled {
		return cooperative, nil
	}

	if len(malicious) == 0 {
		return nil, fmt.Errorf("adversary enabled but personas file has no malicious persona")
	}
	chosen := malicious[0]
	if settings.AdversaryStyle != "" {
		for _, p := range malicious {
			if styleOf(p) == settings.AdversaryStyle {
				chosen = p
				break
			}
		}
	}

	roster := make([]domain.AgentConfig, 0, len(cooperative)+1)
	for _, p := range cooperative {
		if p.BenchWhenAdversary {
			continue
		}
		roster = append(roster, p)
	}
	if len(roster) == 0 {
		return nil, fmt.Errorf("adversary roster has no cooperative personas left")
	}
	return append(roster, chosen), nil
}

func styleOf(p domain.AgentConfig) domain.MaliceStyle {
	if p.MaliceStyle == "" {
		return domain.MaliceStyleSubtle
	}
	return p.MaliceStyle
}
