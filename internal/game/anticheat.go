package game

import "github.com/spacedog/spacedog/internal/session"

// SpawnLedger bounds client reports by what the server has spawned. A kill of
// a given type, a collision, or a pickup is only credited while a matching
// spawn is outstanding. Enemies that fly off screen are never reported, so
// outstanding counts are an upper bound, not an exact census.
type SpawnLedger struct {
	enemies  map[session.EnemyType]int
	powerups map[session.Pickup]int
}

func NewSpawnLedger() *SpawnLedger {
	return &SpawnLedger{
		enemies:  make(map[session.EnemyType]int),
		powerups: make(map[session.Pickup]int),
	}
}

// Observe records spawn events.
func (l *SpawnLedger) Observe(e session.Event) {
	switch e.Type {
	case session.EventSpawnEnemy:
		if e.Enemy != nil {
			l.enemies[e.Enemy.Type]++
		}
	case session.EventSpawnPowerup:
		if p, err := session.ParsePickup(e.Pickup); err == nil {
			l.powerups[p]++
		}
	}
}

// AllowKill consumes one outstanding enemy of type t.
func (l *SpawnLedger) AllowKill(t session.EnemyType) bool {
	if l.enemies[t] <= 0 {
		return false
	}
	l.enemies[t]--
	return true
}

// AllowHit consumes one outstanding enemy of any type, cheapest first.
func (l *SpawnLedger) AllowHit() bool {
	for _, t := range []session.EnemyType{session.EnemyBasic, session.EnemyFast, session.EnemyTough, session.EnemyBoss} {
		if l.enemies[t] > 0 {
			l.enemies[t]--
			return true
		}
	}
	return false
}

// AllowPickup consumes one outstanding powerup of kind p.
func (l *SpawnLedger) AllowPickup(p session.Pickup) bool {
	if l.powerups[p] <= 0 {
		return false
	}
	l.powerups[p]--
	return true
}

func (l *SpawnLedger) Outstanding() (enemies, powerups int) {
	for _, n := range l.enemies {
		enemies += n
	}
	for _, n := range l.powerups {
		powerups += n
	}
	return enemies, powerups
}
