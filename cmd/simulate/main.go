package main

import (
	"flag"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spacedog/spacedog/internal/session"
)

const frameDelta = 100 * time.Millisecond

// Archetype is a simulated pilot's skill profile. Each spawned enemy is
// either shot down, collides with the pilot, or escapes off screen.
type Archetype struct {
	Name       string
	KillRate   float64
	HitRate    float64 // of enemies not killed
	PickupRate float64
}

var archetypes = []Archetype{
	{Name: "Rookie", KillRate: 0.60, HitRate: 0.30, PickupRate: 0.40},
	{Name: "Regular", KillRate: 0.80, HitRate: 0.15, PickupRate: 0.60},
	{Name: "Veteran", KillRate: 0.92, HitRate: 0.08, PickupRate: 0.75},
	{Name: "Ace", KillRate: 0.98, HitRate: 0.03, PickupRate: 0.90},
}

type runResult struct {
	arch     int
	score    int64
	level    int
	seconds  float64
	finish   string
	spawned  map[session.EnemyType]int
	powerups int
}

func main() {
	runs := flag.Int("runs", 4000, "sessions to simulate")
	maxMinutes := flag.Int("max-minutes", 30, "session length cap in simulated minutes")
	seed := flag.Int64("seed", 42, "base random seed")
	flag.Parse()

	start := time.Now()
	maxFrames := int(time.Duration(*maxMinutes) * time.Minute / frameDelta)

	workers := runtime.GOMAXPROCS(0)
	results := make([]runResult, *runs)
	var progress atomic.Int64
	var wg sync.WaitGroup

	chunk := (*runs + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, *runs)
		if lo >= hi {
			break
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				rng := rand.New(rand.NewSource(*seed + int64(i)*7919))
				results[i] = runSession(rng, i%len(archetypes), maxFrames)
				if n := progress.Add(1); *runs >= 10 && n%int64(*runs/10) == 0 {
					fmt.Printf("  ... %d/%d sessions (%.0f%%)\n", n, *runs, float64(n)/float64(*runs)*100)
				}
			}
		}(lo, hi)
	}
	wg.Wait()

	printReport(results, *runs, time.Since(start))
}

// runSession plays one session where the pilot reacts to every spawn on the
// frame after it appears.
func runSession(rng *rand.Rand, arch, maxFrames int) runResult {
	a := archetypes[arch]
	react := func(e session.Event) []session.Action {
		switch e.Type {
		case session.EventSpawnEnemy:
			if rng.Float64() < a.KillRate {
				return []session.Action{{Type: session.ActKill, Enemy: e.Enemy.Type}}
			}
			if rng.Float64() < a.HitRate {
				return []session.Action{{Type: session.ActHit}}
			}
		case session.EventSpawnPowerup:
			if rng.Float64() < a.PickupRate {
				p, err := session.ParsePickup(e.Pickup)
				if err == nil {
					return []session.Action{{Type: session.ActPickup, Pickup: p}}
				}
			}
		}
		return nil
	}

	res := session.RunSimulation(session.SimConfig{
		Roller:     rand.New(rand.NewSource(rng.Int63())),
		React:      react,
		FrameDelta: frameDelta,
		MaxFrames:  maxFrames,
		SilentMode: true,
	})
	return runResult{
		arch:     arch,
		score:    res.Final.Context.Score,
		level:    res.Final.Context.Level,
		seconds:  float64(res.TotalFrames) * frameDelta.Seconds(),
		finish:   res.FinishReason,
		spawned:  res.Spawned,
		powerups: res.Powerups,
	}
}

func printReport(results []runResult, runs int, elapsed time.Duration) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                SPACE DOG BALANCE SIMULATION                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Sessions: %d  |  Frame: %v  |  Elapsed: %v  |  Workers: %d\n",
		runs, frameDelta, elapsed.Round(time.Millisecond), runtime.GOMAXPROCS(0))

	finishes := make(map[string]int)
	spawned := make(map[session.EnemyType]int)
	for _, r := range results {
		finishes[r.finish]++
		for t, n := range r.spawned {
			spawned[t] += n
		}
	}

	for i, a := range archetypes {
		var scores, levels, secs []float64
		for _, r := range results {
			if r.arch != i {
				continue
			}
			scores = append(scores, float64(r.score))
			levels = append(levels, float64(r.level))
			secs = append(secs, r.seconds)
		}
		sort.Float64s(scores)
		sort.Float64s(levels)
		sort.Float64s(secs)

		fmt.Println()
		fmt.Printf("─── %-10s (kill %.0f%%, hit %.0f%%, pickup %.0f%%) ───────────────\n",
			a.Name, a.KillRate*100, a.HitRate*100, a.PickupRate*100)
		fmt.Printf("  Mean score:                    %10.0f\n", mean(scores))
		fmt.Printf("  Median score:                  %10.0f\n", percentile(scores, 50))
		fmt.Printf("  90th pctl score:               %10.0f\n", percentile(scores, 90))
		fmt.Printf("  Median level reached:          %10.0f\n", percentile(levels, 50))
		fmt.Printf("  Max level reached:             %10.0f\n", percentile(levels, 100))
		fmt.Printf("  Median session length:         %9.1fs\n", percentile(secs, 50))
	}

	fmt.Println()
	fmt.Println("─── FINISH REASONS ────────────────────────────────────────────")
	for reason, count := range finishes {
		fmt.Printf("  %-20s %8d  (%5.1f%%)\n", reason, count, float64(count)/float64(runs)*100)
	}

	fmt.Println()
	fmt.Println("─── ENEMY MIX ─────────────────────────────────────────────────")
	total := 0
	for _, n := range spawned {
		total += n
	}
	for _, t := range []session.EnemyType{session.EnemyBasic, session.EnemyFast, session.EnemyTough, session.EnemyBoss} {
		pct := 0.0
		if total > 0 {
			pct = float64(spawned[t]) / float64(total) * 100
		}
		fmt.Printf("  %-10s %10d  (%5.1f%%)\n", t, spawned[t], pct)
	}
	fmt.Println()
}

func mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	t := 0.0
	for _, v := range s {
		t += v
	}
	return t / float64(len(s))
}

func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * pct / 100)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
