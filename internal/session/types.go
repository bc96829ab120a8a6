package session

import (
	"errors"
	"time"
)

var (
	ErrGameOver          = errors.New("session is over")
	ErrInvalidTransition = errors.New("invalid state transition")
)

type State int

const (
	StateActive State = iota
	StatePaused
	StateResumeCountdown
	StateGameOver
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StatePaused:
		return "paused"
	case StateResumeCountdown:
		return "resume_countdown"
	case StateGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

// transitions lists the allowed next states. GameOver is terminal; a restart
// builds a fresh Session instead of transitioning out of it.
var transitions = map[State][]State{
	StateActive:          {StatePaused, StateGameOver},
	StatePaused:          {StateResumeCountdown},
	StateResumeCountdown: {StateActive},
	StateGameOver:        nil,
}

// CanTransition reports whether from→to is an edge of the session state machine.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Context is the per-session mutable bag owned by the session controller.
type Context struct {
	Score     int64 `json:"score"`
	Lives     int   `json:"lives"`
	Level     int   `json:"level"`
	HighScore int64 `json:"high_score"`
}

const (
	InitialLives = 3

	CountdownSteps = 3
	CountdownStep  = time.Second

	BaseMoveSpeed  = 300
	BoostMoveSpeed = 500

	EnemySpawnDelay   = 2000 * time.Millisecond
	PowerupSpawnDelay = 5000 * time.Millisecond
	BaseFireRate      = 500 * time.Millisecond
)

// Config tunes a session. Zero fields fall back to the defaults above.
type Config struct {
	Lives     int
	HighScore int64
	Roller    Roller
}

// Roller is the random source used for spawn decisions. *rand.Rand satisfies it.
type Roller interface {
	Float64() float64
	Intn(n int) int
}
