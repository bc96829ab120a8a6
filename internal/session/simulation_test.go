package session

import (
	"testing"
	"time"
)

func TestSimulationKillsDriveLevels(t *testing.T) {
	script := map[int][]Action{}
	for f := 1; f <= 10; f++ {
		script[f] = []Action{{Type: ActKill, Enemy: EnemyBoss}}
	}
	res := RunSimulation(SimConfig{
		Roller:    &scriptRoller{},
		Script:    script,
		MaxFrames: 20,
	})
	if res.Final.Context.Score != 5000 {
		t.Fatalf("expected 5000, got %d", res.Final.Context.Score)
	}
	if res.Final.Context.Level != 6 || len(res.LevelUps) != 5 {
		t.Fatalf("expected level 6 with 5 level-ups, got %d/%v", res.Final.Context.Level, res.LevelUps)
	}
	if res.FinishReason != "max_frames" {
		t.Fatalf("unexpected finish %q", res.FinishReason)
	}
}

func TestSimulationGameOver(t *testing.T) {
	res := RunSimulation(SimConfig{
		Roller: &scriptRoller{},
		Script: map[int][]Action{
			5:  {{Type: ActHit}},
			10: {{Type: ActHit}},
			15: {{Type: ActHit}, {Type: ActHit}},
		},
	})
	if res.FinishReason != "game_over" || res.TotalFrames != 15 {
		t.Fatalf("expected game over at frame 15, got %q at %d", res.FinishReason, res.TotalFrames)
	}
	if res.Final.State != "game_over" || res.Final.Context.Lives != 0 {
		t.Fatalf("unexpected final snapshot %+v", res.Final)
	}
}

func TestSimulationPauseFreezesClock(t *testing.T) {
	// One second of play, a pause, then the 3s countdown. Shots only accrue
	// while active: 1s before the pause, nothing during pause or countdown.
	frame := 100 * time.Millisecond
	res := RunSimulation(SimConfig{
		Roller:     &scriptRoller{},
		FrameDelta: frame,
		Script: map[int][]Action{
			11: {{Type: ActPause}},
			20: {{Type: ActResume}},
		},
		MaxFrames: 49,
	})
	if res.Shots != 2 {
		t.Fatalf("expected 2 shots before the pause, got %d", res.Shots)
	}
	if res.Final.State != "active" {
		t.Fatalf("expected active after countdown, got %s", res.Final.State)
	}
}

func TestSimulationReactiveShield(t *testing.T) {
	// Every spawned powerup is collected and every spawned enemy hits the
	// player. Combo treats keep the shield up, so some hits are absorbed.
	res := RunSimulation(SimConfig{
		Roller: &scriptRoller{ints: []int{3}},
		React: func(e Event) []Action {
			switch e.Type {
			case EventSpawnPowerup:
				p, _ := ParsePickup(e.Pickup)
				return []Action{{Type: ActPickup, Pickup: p}}
			case EventSpawnEnemy:
				return []Action{{Type: ActHit}}
			}
			return nil
		},
		SilentMode: true,
		MaxFrames:  60 * 60,
	})
	if res.FinishReason != "game_over" {
		t.Fatalf("expected the player to die, got %q", res.FinishReason)
	}
	if len(res.Events) != 0 {
		t.Fatal("silent mode should not record events")
	}
	if res.Powerups == 0 {
		t.Fatal("expected powerups to spawn")
	}
}
