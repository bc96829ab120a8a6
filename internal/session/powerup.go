package session

import (
	"fmt"
	"strings"
	"time"
)

type Kind int

const (
	SpeedBoost Kind = iota
	DoubleShot
	Shield
	numKinds
)

func (k Kind) String() string {
	switch k {
	case SpeedBoost:
		return "speed_boost"
	case DoubleShot:
		return "double_shot"
	case Shield:
		return "shield"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	for c := Kind(0); c < numKinds; c++ {
		if c.String() == string(b) {
			*k = c
			return nil
		}
	}
	return fmt.Errorf("unknown powerup %q", b)
}

// MaxDuration is the full duration of each effect.
func (k Kind) MaxDuration() time.Duration {
	switch k {
	case SpeedBoost:
		return 10 * time.Second
	case DoubleShot:
		return 15 * time.Second
	case Shield:
		return 8 * time.Second
	default:
		return 0
	}
}

// Pickup is a collectible treat. Combo grants every effect at once.
type Pickup int

const (
	PickupSpeed Pickup = iota
	PickupDoubleShot
	PickupShield
	PickupCombo
)

var Pickups = []Pickup{PickupSpeed, PickupDoubleShot, PickupShield, PickupCombo}

func (p Pickup) String() string {
	switch p {
	case PickupSpeed:
		return "speed"
	case PickupDoubleShot:
		return "double_shot"
	case PickupShield:
		return "shield"
	case PickupCombo:
		return "combo"
	default:
		return "unknown"
	}
}

func (p Pickup) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Pickup) UnmarshalText(b []byte) error {
	parsed, err := ParsePickup(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Kinds returns the effects a pickup activates.
func (p Pickup) Kinds() []Kind {
	switch p {
	case PickupSpeed:
		return []Kind{SpeedBoost}
	case PickupDoubleShot:
		return []Kind{DoubleShot}
	case PickupShield:
		return []Kind{Shield}
	case PickupCombo:
		return []Kind{SpeedBoost, DoubleShot, Shield}
	default:
		return nil
	}
}

// ParsePickup accepts both pickup names and the client's treat texture keys.
func ParsePickup(s string) (Pickup, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "speed", "treat-red":
		return PickupSpeed, nil
	case "double_shot", "doubleshot", "treat-blue":
		return PickupDoubleShot, nil
	case "shield", "treat-green":
		return PickupShield, nil
	case "combo", "treat-gold":
		return PickupCombo, nil
	}
	return 0, fmt.Errorf("unknown pickup %q", s)
}

// Effect is one timed powerup. Active is true exactly when Remaining > 0.
type Effect struct {
	Kind      Kind          `json:"kind"`
	Active    bool          `json:"active"`
	Remaining time.Duration `json:"-"`
	Max       time.Duration `json:"-"`
}

// Tracker holds the three powerup effects of a session.
type Tracker struct {
	effects [numKinds]Effect
}

func NewTracker() *Tracker {
	t := &Tracker{}
	for k := Kind(0); k < numKinds; k++ {
		t.effects[k] = Effect{Kind: k, Max: k.MaxDuration()}
	}
	return t
}

// Activate (re)starts an effect at full duration. Durations never stack.
func (t *Tracker) Activate(k Kind) {
	e := &t.effects[k]
	e.Active = true
	e.Remaining = e.Max
}

// Collect activates every effect granted by the pickup and returns them.
func (t *Tracker) Collect(p Pickup) []Kind {
	kinds := p.Kinds()
	for _, k := range kinds {
		t.Activate(k)
	}
	return kinds
}

// Tick decrements active effects and returns the ones that expired.
func (t *Tracker) Tick(elapsed time.Duration) []Kind {
	var expired []Kind
	for k := Kind(0); k < numKinds; k++ {
		e := &t.effects[k]
		if !e.Active {
			continue
		}
		e.Remaining -= elapsed
		if e.Remaining <= 0 {
			e.Remaining = 0
			e.Active = false
			expired = append(expired, k)
		}
	}
	return expired
}

// AbsorbHit consumes an active shield. It reports whether a hit was absorbed.
func (t *Tracker) AbsorbHit() bool {
	if !t.effects[Shield].Active {
		return false
	}
	t.Clear(Shield)
	return true
}

func (t *Tracker) Clear(k Kind) {
	t.effects[k].Active = false
	t.effects[k].Remaining = 0
}

func (t *Tracker) Effect(k Kind) Effect { return t.effects[k] }

func (t *Tracker) Active(k Kind) bool { return t.effects[k].Active }

func (t *Tracker) ActiveCount() int {
	n := 0
	for _, e := range t.effects {
		if e.Active {
			n++
		}
	}
	return n
}

// Effects returns a copy of all effects in kind order.
func (t *Tracker) Effects() []Effect {
	out := make([]Effect, numKinds)
	copy(out, t.effects[:])
	return out
}
