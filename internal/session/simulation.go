package session

import (
	"fmt"
	"time"
)

const simFrame = 16 * time.Millisecond

type ActionType string

const (
	ActKill   ActionType = "kill"
	ActHit    ActionType = "hit"
	ActPickup ActionType = "pickup"
	ActPause  ActionType = "pause"
	ActResume ActionType = "resume"
)

// Action is a client-reported input applied at the start of a frame.
type Action struct {
	Type   ActionType
	Enemy  EnemyType
	Pickup Pickup
}

// SimConfig fully describes a deterministic session run.
type SimConfig struct {
	Roller Roller
	Lives  int

	// Script maps frame number → actions applied before that frame advances.
	Script map[int][]Action

	// React, when set, turns emitted events into actions for the next frame.
	React func(e Event) []Action

	FrameDelta time.Duration // 0 defaults to 16ms
	MaxFrames  int           // safety cap; 0 defaults to 60 minutes of frames
	SilentMode bool          // skip event recording for bulk runs
}

type SimEvent struct {
	Frame int
	Event Event
}

type SimResult struct {
	Events       []SimEvent
	FinishReason string // "game_over", "max_frames"
	TotalFrames  int
	Final        Snapshot
	Spawned      map[EnemyType]int
	Powerups     int
	Shots        int
	LevelUps     []int // frame of each level-up event
}

// RunSimulation drives a Session frame by frame. No goroutines, no channels,
// no time.Now(). Wall-clock countdown time advances at the frame rate.
//
// Processing order per frame:
//  1. Apply scripted and reactive actions
//  2. Advance resume countdown
//  3. Advance the simulation frame
//  4. Collect events, check end condition
func RunSimulation(cfg SimConfig) SimResult {
	delta := cfg.FrameDelta
	if delta <= 0 {
		delta = simFrame
	}
	maxFrames := cfg.MaxFrames
	if maxFrames <= 0 {
		maxFrames = int(time.Hour / delta)
	}

	s := New(Config{Lives: cfg.Lives, Roller: cfg.Roller})
	result := SimResult{Spawned: make(map[EnemyType]int), FinishReason: "max_frames"}
	var pending []Action

	for frame := 1; frame <= maxFrames; frame++ {
		actions := append(pending, cfg.Script[frame]...)
		pending = nil
		for _, a := range actions {
			if err := apply(s, a); err != nil && s.State() == StateGameOver {
				break
			}
		}

		s.AdvanceCountdown(delta)
		s.Frame(delta)

		for _, e := range s.Drain() {
			switch e.Type {
			case EventSpawnEnemy:
				result.Spawned[e.Enemy.Type]++
			case EventSpawnPowerup:
				result.Powerups++
			case EventFire:
				result.Shots++
			case EventLevelUp:
				result.LevelUps = append(result.LevelUps, frame)
			}
			if !cfg.SilentMode {
				result.Events = append(result.Events, SimEvent{Frame: frame, Event: e})
			}
			if cfg.React != nil {
				pending = append(pending, cfg.React(e)...)
			}
		}

		result.TotalFrames = frame
		if s.State() == StateGameOver {
			result.FinishReason = "game_over"
			break
		}
	}

	result.Final = s.Snapshot()
	return result
}

func apply(s *Session, a Action) error {
	switch a.Type {
	case ActKill:
		_, err := s.EnemyDestroyed(a.Enemy)
		return err
	case ActHit:
		_, err := s.PlayerHit()
		return err
	case ActPickup:
		return s.Collect(a.Pickup)
	case ActPause:
		s.Pause()
		return nil
	case ActResume:
		s.Resume()
		return nil
	default:
		return fmt.Errorf("unknown action %q", a.Type)
	}
}
