package domain

import (
	"encoding/json"
	"time"
)

type EpisodeStatus string

const (
	EpisodeStatusSuccess EpisodeStatus = "success"
	EpisodeStatusTimeout EpisodeStatus = "timeout"
	EpisodeStatusErrored EpisodeStatus = "errored"
)

type MaliceStyle string

const (
	MaliceStyleSubtle      MaliceStyle = "subtle"
	MaliceStyleAlwaysWrong MaliceStyle = "always-wrong"
)

type RoomEventKind string

const (
	RoomEventWrongPassword RoomEventKind = "wrong_password"
	RoomEventLockOpened    RoomEventKind = "lock_opened"
	RoomEventEscape        RoomEventKind = "escape"
)

type ProgressKind string

const (
	ProgressEpisodeStart ProgressKind = "episode_start"
	ProgressTurn         ProgressKind = "turn"
	ProgressRoomEvent    ProgressKind = "room_event"
	ProgressEpisodeEnd   ProgressKind = "episode_end"
)

type AgentConfig struct {
	ID              string      `json:"id" yaml:"id"`
	Name            string      `json:"name" yaml:"name"`
	RoleDescription string      `json:"role_description" yaml:"role_description"`
	IsMalicious     bool        `json:"is_malicious,omitempty" yaml:"is_malicious"`
	MaliceStyle     MaliceStyle `json:"malice_style,omitempty" yaml:"malice_style"`

	// A cooperative persona marked bench_when_adversary sits out when an
	// adversary joins, keeping the roster size constant across conditions.
	BenchWhenAdversary bool `json:"bench_when_adversary,omitempty" yaml:"bench_when_adversary"`
}

type RoomEvent struct {
	Episode   int           `json:"episode"`
	Timestep  int           `json:"timestep"`
	AgentID   string        `json:"agent_id"`
	Kind      RoomEventKind `json:"kind"`
	ObjectID  string        `json:"object_id,omitempty"`
	Detail    string        `json:"detail"`
	CreatedAt time.Time     `json:"created_at"`
}

type ToolCallRecord struct {
	Tool    string          `json:"tool"`
	Args    json.RawMessage `json:"args,omitempty"`
	Code    string          `json:"code,omitempty"`
	Result  string          `json:"result"`
	IsError bool            `json:"is_error,omitempty"`
}

type TurnRecord struct {
	AgentID  string           `json:"agent_id"`
	Timestep int              `json:"timestep"`
	Calls    []ToolCallRecord `json:"calls,omitempty"`
	Summary  string           `json:"summary"`
}

type EpisodeRecord struct {
	Episode               int                `json:"episode"`
	Status                EpisodeStatus      `json:"status"`
	Success               bool               `json:"success"`
	StepsTaken            int                `json:"steps_taken"`
	WrongPasswordAttempts int                `json:"wrong_password_attempts"`
	Summaries             []string           `json:"summaries"`
	FinalReputationScores map[string]float64 `json:"final_reputation_scores,omitempty"`
	ReputationEnabled     bool               `json:"reputation_enabled"`
	Error                 string             `json:"error,omitempty"`
	Turns                 []TurnRecord       `json:"-"`
}

type RunRecord struct {
	ID             string             `json:"id"`
	RoomID         string             `json:"room_id"`
	Model          string             `json:"model"`
	Adversary      bool               `json:"adversary"`
	AdversaryStyle MaliceStyle        `json:"adversary_style,omitempty"`
	Reputation     bool               `json:"reputation"`
	Gossip         bool               `json:"gossip"`
	MaxSteps       int                `json:"max_steps"`
	Episodes       int                `json:"episodes"`
	StartedAt      time.Time          `json:"started_at"`
	FinishedAt     *time.Time         `json:"finished_at,omitempty"`
	SuccessRate    *float64           `json:"success_rate,omitempty"`
	Summary        *ExperimentSummary `json:"summary,omitempty"`
}

type ExperimentSummary struct {
	NumEpisodes        int                `json:"num_episodes"`
	ErroredEpisodes    int                `json:"errored_episodes"`
	SuccessRate        float64            `json:"success_rate"`
	AvgStepsIfSuccess  *float64           `json:"avg_steps_if_success"`
	AvgFinalReputation map[string]float64 `json:"avg_final_reputation,omitempty"`
}

type ProgressEvent struct {
	Kind     ProgressKind   `json:"kind"`
	RunID    string         `json:"run_id,omitempty"`
	Episode  int            `json:"episode"`
	Timestep int            `json:"timestep,omitempty"`
	Room     *RoomEvent     `json:"room,omitempty"`
	Turn     *TurnRecord    `json:"turn,omitempty"`
	Record   *EpisodeRecord `json:"record,omitempty"`
}
