package session

import "time"

// Trigger is a repeating callback on the simulation clock. It only advances
// when its Bank is advanced, so callbacks always run between frames.
type Trigger struct {
	name      string
	period    time.Duration
	elapsed   time.Duration
	fn        func()
	suspended bool
	destroyed bool
}

func newTrigger(name string, period time.Duration, fn func()) *Trigger {
	return &Trigger{name: name, period: period, fn: fn}
}

func (t *Trigger) Name() string           { return t.name }
func (t *Trigger) Period() time.Duration  { return t.period }
func (t *Trigger) Destroyed() bool        { return t.destroyed }
func (t *Trigger) Suspended() bool        { return t.suspended }
func (t *Trigger) Elapsed() time.Duration { return t.elapsed }
func (t *Trigger) Suspend()               { t.suspended = true }
func (t *Trigger) Resume()                { t.suspended = false }
func (t *Trigger) Destroy()               { t.destroyed = true }

// Reschedule cancels the pending interval and restarts the trigger with a new
// period. Progress toward the old period is discarded.
func (t *Trigger) Reschedule(period time.Duration) {
	if t.destroyed || period <= 0 {
		return
	}
	t.period = period
	t.elapsed = 0
}

// advance adds elapsed simulation time and fires once per completed period.
func (t *Trigger) advance(d time.Duration) {
	if t.destroyed || t.suspended || t.period <= 0 {
		return
	}
	t.elapsed += d
	for t.elapsed >= t.period && !t.destroyed && !t.suspended {
		t.elapsed -= t.period
		t.fn()
	}
}

// Bank owns the three session triggers.
type Bank struct {
	EnemySpawn   *Trigger
	PowerupSpawn *Trigger
	AutoFire     *Trigger
}

func (b *Bank) all() []*Trigger {
	return []*Trigger{b.EnemySpawn, b.PowerupSpawn, b.AutoFire}
}

// Advance steps every live trigger in fixed order: spawn, powerup, fire.
func (b *Bank) Advance(d time.Duration) {
	for _, t := range b.all() {
		t.advance(d)
	}
}

func (b *Bank) SuspendAll() {
	for _, t := range b.all() {
		t.Suspend()
	}
}

func (b *Bank) ResumeAll() {
	for _, t := range b.all() {
		t.Resume()
	}
}

func (b *Bank) DestroyAll() {
	for _, t := range b.all() {
		t.Destroy()
	}
}
