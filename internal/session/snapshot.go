package session

// PowerupView is the client-facing view of one effect.
type PowerupView struct {
	Kind        Kind  `json:"kind"`
	Active      bool  `json:"active"`
	RemainingMs int64 `json:"remaining_ms"`
	MaxMs       int64 `json:"max_ms"`
}

// TimerView reports progress toward a trigger's next firing.
type TimerView struct {
	Name      string `json:"name"`
	PeriodMs  int64  `json:"period_ms"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// Snapshot is a point-in-time copy of the session for broadcasting.
type Snapshot struct {
	State        string        `json:"state"`
	Context      Context       `json:"context"`
	Powerups     []PowerupView `json:"powerups"`
	AllPowerups  bool          `json:"all_powerups"`
	Countdown    int           `json:"countdown,omitempty"`
	MoveSpeed    int           `json:"move_speed"`
	FireRateMs   int64         `json:"fire_rate_ms"`
	SpawnDelayMs int64         `json:"spawn_delay_ms"`
	EnemySpeed   int           `json:"enemy_speed"`
	NextLevelAt  int64         `json:"next_level_at"`
	Timers       []TimerView   `json:"timers,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	views := make([]PowerupView, 0, numKinds)
	for _, e := range s.tracker.Effects() {
		views = append(views, PowerupView{
			Kind:        e.Kind,
			Active:      e.Active,
			RemainingMs: e.Remaining.Milliseconds(),
			MaxMs:       e.Max.Milliseconds(),
		})
	}
	snap := Snapshot{
		State:        s.state.String(),
		Context:      s.ctx,
		Powerups:     views,
		AllPowerups:  s.tracker.ActiveCount() == int(numKinds),
		MoveSpeed:    s.moveSpeed,
		FireRateMs:   s.fireRate.Milliseconds(),
		SpawnDelayMs: s.progress.SpawnDelay.Milliseconds(),
		EnemySpeed:   s.progress.EnemySpeed,
		NextLevelAt:  s.progress.Threshold,
	}
	if s.state != StateGameOver {
		for _, t := range s.bank.all() {
			snap.Timers = append(snap.Timers, TimerView{
				Name:      t.Name(),
				PeriodMs:  t.Period().Milliseconds(),
				ElapsedMs: t.Elapsed().Milliseconds(),
			})
		}
	}
	if s.state == StateResumeCountdown {
		snap.Countdown = s.countdown
	}
	return snap
}
