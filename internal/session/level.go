package session

import (
	"fmt"
	"strings"
	"time"
)

const (
	LevelScoreStep = 1000

	minSpawnDelay  = 500 * time.Millisecond
	spawnDelayStep = 200 * time.Millisecond
	baseEnemySpeed = 200
	maxEnemySpeed  = 400
	enemySpeedStep = 30
)

// SpawnDelayFor returns the enemy spawn period at a level, floored at 500ms.
func SpawnDelayFor(level int) time.Duration {
	d := EnemySpawnDelay - time.Duration(level-1)*spawnDelayStep
	if d < minSpawnDelay {
		return minSpawnDelay
	}
	return d
}

// EnemySpeedFor returns the base enemy speed at a level, capped at 400.
func EnemySpeedFor(level int) int {
	s := baseEnemySpeed + (level-1)*enemySpeedStep
	if s > maxEnemySpeed {
		return maxEnemySpeed
	}
	return s
}

// Progressor tracks the monotonic level ladder.
type Progressor struct {
	Level      int
	Threshold  int64
	SpawnDelay time.Duration
	EnemySpeed int
}

func NewProgressor() *Progressor {
	return &Progressor{
		Level:      1,
		Threshold:  LevelScoreStep,
		SpawnDelay: SpawnDelayFor(1),
		EnemySpeed: EnemySpeedFor(1),
	}
}

// Check advances one level for every threshold the score has crossed and
// returns how many levels were gained. Once score < Threshold it is a no-op.
func (p *Progressor) Check(score int64) int {
	gained := 0
	for score >= p.Threshold {
		p.Level++
		p.Threshold += LevelScoreStep
		gained++
	}
	if gained > 0 {
		p.SpawnDelay = SpawnDelayFor(p.Level)
		p.EnemySpeed = EnemySpeedFor(p.Level)
	}
	return gained
}

type EnemyType int

const (
	EnemyBasic EnemyType = iota
	EnemyFast
	EnemyTough
	EnemyBoss
)

func (e EnemyType) String() string {
	switch e {
	case EnemyBasic:
		return "basic"
	case EnemyFast:
		return "fast"
	case EnemyTough:
		return "tough"
	case EnemyBoss:
		return "boss"
	default:
		return "unknown"
	}
}

func (e EnemyType) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *EnemyType) UnmarshalText(b []byte) error {
	parsed, err := ParseEnemyType(string(b))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func ParseEnemyType(s string) (EnemyType, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "enemy-")
	for _, e := range []EnemyType{EnemyBasic, EnemyFast, EnemyTough, EnemyBoss} {
		if e.String() == s {
			return e, nil
		}
	}
	return 0, fmt.Errorf("unknown enemy type %q", s)
}

func (e EnemyType) Points() int64 {
	switch e {
	case EnemyFast:
		return 200
	case EnemyTough:
		return 300
	case EnemyBoss:
		return 500
	default:
		return 100
	}
}

func (e EnemyType) Health() int {
	switch e {
	case EnemyTough:
		return 3
	case EnemyBoss:
		return 5
	default:
		return 1
	}
}

// SpeedFactor scales the level's base enemy speed.
func (e EnemyType) SpeedFactor() float64 {
	switch e {
	case EnemyFast:
		return 1.5
	case EnemyTough:
		return 0.8
	case EnemyBoss:
		return 0.7
	default:
		return 1
	}
}

// RollEnemy picks an enemy type. Each gate rolls independently in fixed order
// boss, tough, fast; the first passing roll wins. A failed boss roll still
// falls through to the tough and fast rolls.
func RollEnemy(level int, r Roller) EnemyType {
	if level >= 5 && r.Float64() < 0.1 {
		return EnemyBoss
	}
	if level >= 3 && r.Float64() < 0.3 {
		return EnemyTough
	}
	if level >= 2 && r.Float64() < 0.4 {
		return EnemyFast
	}
	return EnemyBasic
}
