package session

import (
	"errors"
	"math/rand"
	"time"
)

var ErrNotActive = errors.New("session is not active")

type EventType string

const (
	EventSpawnEnemy   EventType = "spawn_enemy"
	EventSpawnPowerup EventType = "spawn_powerup"
	EventFire         EventType = "fire"
	EventLevelUp      EventType = "level_up"
	EventPowerupOn    EventType = "powerup_on"
	EventPowerupOff   EventType = "powerup_off"
	EventShieldBroken EventType = "shield_broken"
	EventLifeLost     EventType = "life_lost"
	EventPaused       EventType = "paused"
	EventCountdown    EventType = "countdown"
	EventResumed      EventType = "resumed"
	EventStopAudio    EventType = "stop_audio"
	EventGameOver     EventType = "game_over"
)

// EnemySpawn describes an enemy the client should create.
type EnemySpawn struct {
	Type   EnemyType `json:"type"`
	Speed  float64   `json:"speed"`
	Health int       `json:"health"`
}

// Event is a side effect for the client. Events are queued in emission order
// and collected with Drain.
type Event struct {
	Type    EventType   `json:"type"`
	Enemy   *EnemySpawn `json:"enemy,omitempty"`
	Pickup  string      `json:"pickup,omitempty"`
	Kind    string      `json:"kind,omitempty"`
	Double  bool        `json:"double,omitempty"`
	Level   int         `json:"level,omitempty"`
	Count   int         `json:"count,omitempty"`
	Context *Context    `json:"context,omitempty"`
}

type HitResult int

const (
	HitAbsorbed HitResult = iota
	HitLifeLost
	HitFatal
)

// Session is one play-through. It is not safe for concurrent use; the owner
// drives every method from a single goroutine.
type Session struct {
	ctx      Context
	state    State
	bank     Bank
	tracker  *Tracker
	progress *Progressor
	roller   Roller

	moveSpeed int
	fireRate  time.Duration

	countdown        int
	countdownElapsed time.Duration

	newHigh bool
	events  []Event
}

func New(cfg Config) *Session {
	lives := cfg.Lives
	if lives <= 0 {
		lives = InitialLives
	}
	roller := cfg.Roller
	if roller == nil {
		roller = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	s := &Session{
		ctx:       Context{Lives: lives, Level: 1, HighScore: cfg.HighScore},
		state:     StateActive,
		tracker:   NewTracker(),
		progress:  NewProgressor(),
		roller:    roller,
		moveSpeed: BaseMoveSpeed,
		fireRate:  BaseFireRate,
	}
	s.bank = Bank{
		EnemySpawn:   newTrigger("enemy_spawn", s.progress.SpawnDelay, s.spawnEnemy),
		PowerupSpawn: newTrigger("powerup_spawn", PowerupSpawnDelay, s.spawnPowerup),
		AutoFire:     newTrigger("auto_fire", s.fireRate, s.fire),
	}
	return s
}

func (s *Session) State() State            { return s.state }
func (s *Session) Context() Context        { return s.ctx }
func (s *Session) Bank() *Bank             { return &s.bank }
func (s *Session) Tracker() *Tracker       { return s.tracker }
func (s *Session) Progress() Progressor    { return *s.progress }
func (s *Session) MoveSpeed() int          { return s.moveSpeed }
func (s *Session) FireRate() time.Duration { return s.fireRate }
func (s *Session) Countdown() int          { return s.countdown }
func (s *Session) NewHighScore() bool      { return s.newHigh }

// Pause halts timers and the simulation clock. It is a no-op unless Active.
func (s *Session) Pause() bool {
	if s.state != StateActive {
		return false
	}
	s.state = StatePaused
	s.bank.SuspendAll()
	s.emit(Event{Type: EventPaused})
	return true
}

// Resume starts the wall-clock countdown back to Active. It is a no-op unless Paused.
func (s *Session) Resume() bool {
	if s.state != StatePaused {
		return false
	}
	s.state = StateResumeCountdown
	s.countdown = CountdownSteps
	s.countdownElapsed = 0
	s.emit(Event{Type: EventCountdown, Count: s.countdown})
	return true
}

// TogglePause pauses an active session or resumes a paused one.
func (s *Session) TogglePause() bool {
	switch s.state {
	case StateActive:
		return s.Pause()
	case StatePaused:
		return s.Resume()
	default:
		return false
	}
}

// AdvanceCountdown feeds real elapsed time into the resume countdown. It runs
// independently of the paused simulation clock.
func (s *Session) AdvanceCountdown(wall time.Duration) {
	if s.state != StateResumeCountdown {
		return
	}
	s.countdownElapsed += wall
	for s.countdown > 0 && s.countdownElapsed >= CountdownStep {
		s.countdownElapsed -= CountdownStep
		s.countdown--
		if s.countdown > 0 {
			s.emit(Event{Type: EventCountdown, Count: s.countdown})
		}
	}
	if s.countdown == 0 {
		s.countdownElapsed = 0
		s.state = StateActive
		s.bank.ResumeAll()
		s.emit(Event{Type: EventResumed})
	}
}

// Frame advances the simulation clock by one host frame.
func (s *Session) Frame(elapsed time.Duration) {
	if s.state != StateActive || elapsed <= 0 {
		return
	}
	s.bank.Advance(elapsed)
	for _, k := range s.tracker.Tick(elapsed) {
		s.expire(k)
	}
}

// Collect applies a pickup the client reports as collected.
func (s *Session) Collect(p Pickup) error {
	if err := s.requireActive(); err != nil {
		return err
	}
	for _, k := range s.tracker.Collect(p) {
		if k == SpeedBoost {
			s.moveSpeed = BoostMoveSpeed
			s.setFireRate(BaseFireRate / 2)
		}
		s.emit(Event{Type: EventPowerupOn, Kind: k.String(), Pickup: p.String()})
	}
	return nil
}

// EnemyDestroyed credits the kill and runs level progression.
func (s *Session) EnemyDestroyed(t EnemyType) (int, error) {
	if err := s.requireActive(); err != nil {
		return 0, err
	}
	s.ctx.Score += t.Points()
	gained := s.progress.Check(s.ctx.Score)
	if gained > 0 {
		s.ctx.Level = s.progress.Level
		s.bank.EnemySpawn.Reschedule(s.progress.SpawnDelay)
		s.emit(Event{Type: EventLevelUp, Level: s.ctx.Level})
	}
	return gained, nil
}

// PlayerHit handles an enemy colliding with the player. An active shield
// absorbs exactly one hit without costing a life.
func (s *Session) PlayerHit() (HitResult, error) {
	if err := s.requireActive(); err != nil {
		return 0, err
	}
	if s.tracker.AbsorbHit() {
		s.emit(Event{Type: EventShieldBroken, Kind: Shield.String()})
		return HitAbsorbed, nil
	}
	s.ctx.Lives--
	s.emit(Event{Type: EventLifeLost})
	if s.ctx.Lives <= 0 {
		if err := s.EndGame(); err != nil {
			return 0, err
		}
		return HitFatal, nil
	}
	return HitLifeLost, nil
}

// EndGame moves an Active session with no lives left to GameOver. All triggers
// are destroyed and cannot be resumed.
func (s *Session) EndGame() error {
	if s.state == StateGameOver {
		return ErrGameOver
	}
	if s.state != StateActive || s.ctx.Lives > 0 {
		return ErrInvalidTransition
	}
	s.state = StateGameOver
	s.bank.DestroyAll()
	s.emit(Event{Type: EventStopAudio})
	if s.ctx.Score > s.ctx.HighScore {
		s.ctx.HighScore = s.ctx.Score
		s.newHigh = true
	}
	ctx := s.ctx
	s.emit(Event{Type: EventGameOver, Level: ctx.Level, Context: &ctx})
	return nil
}

// Drain returns queued events and clears the queue.
func (s *Session) Drain() []Event {
	out := s.events
	s.events = nil
	return out
}

func (s *Session) requireActive() error {
	switch s.state {
	case StateActive:
		return nil
	case StateGameOver:
		return ErrGameOver
	default:
		return ErrNotActive
	}
}

func (s *Session) emit(e Event) {
	s.events = append(s.events, e)
}

func (s *Session) setFireRate(rate time.Duration) {
	s.fireRate = rate
	s.bank.AutoFire.Reschedule(rate)
}

func (s *Session) expire(k Kind) {
	if k == SpeedBoost {
		s.moveSpeed = BaseMoveSpeed
		s.setFireRate(BaseFireRate)
	}
	s.emit(Event{Type: EventPowerupOff, Kind: k.String()})
}

func (s *Session) spawnEnemy() {
	t := RollEnemy(s.ctx.Level, s.roller)
	s.emit(Event{Type: EventSpawnEnemy, Enemy: &EnemySpawn{
		Type:   t,
		Speed:  float64(s.progress.EnemySpeed) * t.SpeedFactor(),
		Health: t.Health(),
	}})
}

func (s *Session) spawnPowerup() {
	p := Pickups[s.roller.Intn(len(Pickups))]
	s.emit(Event{Type: EventSpawnPowerup, Pickup: p.String()})
}

func (s *Session) fire() {
	s.emit(Event{Type: EventFire, Double: s.tracker.Active(DoubleShot)})
}
