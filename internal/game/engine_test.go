package game

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/spacedog/spacedog/internal/scene"
	"github.com/spacedog/spacedog/internal/score"
	"github.com/spacedog/spacedog/internal/server"
	"github.com/spacedog/spacedog/internal/session"
)

// recorder is a Broadcaster that keeps every message sent.
type recorder struct {
	mu   sync.Mutex
	msgs []server.WSMessage
}

func (r *recorder) SendTo(_ string, msg server.WSMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.Type == typ {
			n++
		}
	}
	return n
}

// last decodes the payload of the most recent message of typ into v.
func (r *recorder) last(t *testing.T, typ string, v any) bool {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Type != typ {
			continue
		}
		if v != nil {
			if err := json.Unmarshal(r.msgs[i].Payload, v); err != nil {
				t.Fatalf("decode %s: %v", typ, err)
			}
		}
		return true
	}
	return false
}

// eventTypes lists the session events broadcast so far.
func (r *recorder) eventTypes() []session.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []session.EventType
	for _, m := range r.msgs {
		if m.Type != "event" {
			continue
		}
		var ev session.Event
		_ = json.Unmarshal(m.Payload, &ev)
		out = append(out, ev.Type)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}

// basicRoller always rolls basic enemies and speed pickups.
type basicRoller struct{}

func (basicRoller) Float64() float64 { return 0.99 }
func (basicRoller) Intn(int) int     { return 0 }

// stubGlobal is an in-memory GlobalStore. A non-zero delay makes every save
// take that long unless its context ends first.
type stubGlobal struct {
	mu      sync.Mutex
	entries []score.Entry
	err     error
	delay   time.Duration
}

func (g *stubGlobal) Save(ctx context.Context, e score.Entry) error {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.entries = append(g.entries, e)
	return nil
}

func (g *stubGlobal) Top(context.Context, int) ([]score.Entry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	return append([]score.Entry(nil), g.entries...), nil
}

func (g *stubGlobal) Ping(context.Context) error { return g.err }

func (g *stubGlobal) saved() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.entries)
}

type harness struct {
	e       *Engine
	p       *play
	rec     *recorder
	scores  *score.Service
	metrics *server.Metrics
	ctx     context.Context
}

func newHarness(t *testing.T, global score.GlobalStore) *harness {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	scores := score.NewService(score.NewMemoryKV(), global, logger, score.Options{ReadTimeout: 100 * time.Millisecond})
	rec := &recorder{}
	metrics := server.NewMetrics()
	e := NewEngine(scores, rec, metrics, logger, Options{
		NewRoller: func() session.Roller { return basicRoller{} },
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := &runner{
		clientID: "c1",
		profile:  "p1",
		cancel:   cancel,
		cmds:     make(chan server.WSMessage, 64),
		results:  make(chan outcome, 8),
	}
	if !e.sessions.Add(r) {
		t.Fatal("add runner")
	}
	p, err := e.open(ctx, r)
	if err != nil {
		t.Fatal(err)
	}
	return &harness{e: e, p: p, rec: rec, scores: scores, metrics: metrics, ctx: ctx}
}

func (h *harness) send(typ string, payload any) bool {
	return h.e.handle(h.ctx, h.p, server.NewMessage(typ, payload))
}

func (h *harness) navigate(name string) {
	h.send("navigate", map[string]string{"scene": name})
}

func (h *harness) tick(d time.Duration) {
	h.e.tick(h.ctx, h.p, d)
}

// await applies the next background outcome, as the run loop would.
func (h *harness) await(t *testing.T) {
	t.Helper()
	select {
	case out := <-h.p.r.results:
		out(h.p)
	case <-time.After(2 * time.Second):
		t.Fatal("no background result")
	}
}

// playToGameOver starts a game, scores one basic kill and loses all lives.
func (h *harness) playToGameOver(t *testing.T) {
	t.Helper()
	h.navigate("menu")
	h.navigate("game")
	for i := 0; i < 4; i++ {
		h.tick(2 * time.Second)
	}
	h.send("enemy_destroyed", map[string]string{"type": "basic"})
	for i := 0; i < 3; i++ {
		h.send("player_hit", nil)
	}
	if h.p.sess.State() != session.StateGameOver {
		t.Fatalf("expected game over, got %s", h.p.sess.State())
	}
}

// ---------------------------------------------------------------------------
// Scenes
// ---------------------------------------------------------------------------

func TestOpenStartsWithTutorial(t *testing.T) {
	h := newHarness(t, nil)
	var started struct {
		Scene string `json:"scene"`
	}
	if !h.rec.last(t, "session_started", &started) || started.Scene != "how_to_play" {
		t.Fatalf("fresh profile should start on how_to_play, got %q", started.Scene)
	}

	h.navigate("menu")
	seen, _ := h.scores.Local("p1").TutorialSeen(context.Background())
	if !seen {
		t.Fatal("finishing the tutorial should mark it seen")
	}
	if h.p.sess != nil {
		t.Fatal("no game should run on the menu")
	}

	h.navigate("game")
	if h.p.sess == nil || h.p.nav.Current() != scene.Game {
		t.Fatal("entering game should start a session")
	}
}

func TestNavigateDisallowedKeepsScene(t *testing.T) {
	h := newHarness(t, nil)
	h.navigate("leaderboard")
	if h.p.nav.Current() != scene.HowToPlay {
		t.Fatalf("scene changed to %s", h.p.nav.Current())
	}
	if h.rec.count("error") != 1 {
		t.Fatal("expected an error message")
	}
}

func TestUnknownSceneRestartsGame(t *testing.T) {
	h := newHarness(t, nil)
	h.navigate("menu")
	h.navigate("WarpZoneScene")
	if h.p.nav.Current() != scene.Game || h.p.sess == nil {
		t.Fatal("unknown scene should fall back to a fresh game")
	}
}

func TestRestartBuildsFreshSession(t *testing.T) {
	h := newHarness(t, nil)
	h.playToGameOver(t)
	old := h.p.sess

	h.send("restart", nil)
	if h.p.sess == old || h.p.sess.State() != session.StateActive {
		t.Fatal("restart should build a new active session")
	}
	if h.p.sess.Context().HighScore != 100 {
		t.Fatalf("new session should carry the stored high score, got %d", h.p.sess.Context().HighScore)
	}
}

// ---------------------------------------------------------------------------
// In-game input
// ---------------------------------------------------------------------------

func TestKillRequiresSpawn(t *testing.T) {
	h := newHarness(t, nil)
	h.navigate("menu")
	h.navigate("game")

	h.send("enemy_destroyed", map[string]string{"type": "basic"})
	if h.p.sess.Context().Score != 0 {
		t.Fatal("kill without a spawned enemy must not score")
	}

	h.tick(2 * time.Second)
	h.send("enemy_destroyed", map[string]string{"type": "enemy-basic"})
	if h.p.sess.Context().Score != 100 {
		t.Fatalf("score = %d, want 100", h.p.sess.Context().Score)
	}

	h.send("enemy_destroyed", map[string]string{"type": "basic"})
	if h.p.sess.Context().Score != 100 {
		t.Fatal("one spawn credits one kill")
	}
}

func TestPickupRequiresSpawn(t *testing.T) {
	h := newHarness(t, nil)
	h.navigate("menu")
	h.navigate("game")

	h.send("pickup", map[string]string{"kind": "treat-red"})
	if h.p.sess.Tracker().Active(session.SpeedBoost) {
		t.Fatal("pickup without a spawned treat must be rejected")
	}

	h.tick(5 * time.Second)
	h.send("pickup", map[string]string{"kind": "treat-red"})
	if !h.p.sess.Tracker().Active(session.SpeedBoost) {
		t.Fatal("speed boost should be active")
	}
}

func TestGameOverRecordsHighScore(t *testing.T) {
	h := newHarness(t, nil)
	h.playToGameOver(t)

	var over struct {
		Score   int64 `json:"score"`
		NewHigh bool  `json:"new_high_score"`
	}
	if !h.rec.last(t, "game_over", &over) || over.Score != 100 || !over.NewHigh {
		t.Fatalf("unexpected game_over %+v", over)
	}
	hs, _ := h.scores.Local("p1").HighScore(context.Background())
	if hs != 100 {
		t.Fatalf("stored high score = %d, want 100", hs)
	}
	if h.metrics.Snapshot()["sessions_played"] != 1 {
		t.Fatal("sessions_played not counted")
	}

	types := h.rec.eventTypes()
	if len(types) < 2 || types[len(types)-2] != session.EventStopAudio || types[len(types)-1] != session.EventGameOver {
		t.Fatalf("game over should end with stop_audio, game_over: %v", types)
	}
}

func TestPauseCountdownRunsOnWallClock(t *testing.T) {
	h := newHarness(t, nil)
	h.navigate("menu")
	h.navigate("game")
	h.tick(100 * time.Millisecond)

	h.send("toggle_pause", nil)
	before := h.p.sess.Snapshot()
	h.rec.reset()

	h.tick(10 * time.Second)
	if got := h.p.sess.Snapshot(); got.State != "paused" || got.Context != before.Context {
		t.Fatal("paused session must not advance")
	}

	h.send("toggle_pause", nil)
	for i := 0; i < 3; i++ {
		h.tick(time.Second)
	}
	want := []session.EventType{
		session.EventCountdown, session.EventCountdown, session.EventCountdown, session.EventResumed,
	}
	got := h.rec.eventTypes()
	if len(got) < len(want) {
		t.Fatalf("events = %v", got)
	}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("event %d = %s, want %s (all %v)", i, got[i], w, got)
		}
	}
	if h.p.sess.State() != session.StateActive {
		t.Fatalf("state = %s, want active", h.p.sess.State())
	}
}

func TestSnapshotEverySixFrames(t *testing.T) {
	h := newHarness(t, nil)
	h.navigate("menu")
	h.navigate("game")
	h.rec.reset()

	for i := 0; i < 12; i++ {
		h.tick(16 * time.Millisecond)
	}
	if n := h.rec.count("state"); n != 2 {
		t.Fatalf("expected 2 snapshots in 12 frames, got %d", n)
	}
}

func TestInputOutsideGame(t *testing.T) {
	h := newHarness(t, nil)
	h.send("pause", nil)
	var msg struct {
		Message string `json:"message"`
	}
	if !h.rec.last(t, "error", &msg) || msg.Message != errNoGame.Error() {
		t.Fatalf("expected not-in-game error, got %q", msg.Message)
	}
}

func TestUnknownMessage(t *testing.T) {
	h := newHarness(t, nil)
	h.navigate("menu")
	h.navigate("game")
	h.send("warp_drive", nil)
	if h.rec.count("error") != 1 {
		t.Fatal("unknown message should report an error")
	}
}

// ---------------------------------------------------------------------------
// Score submission
// ---------------------------------------------------------------------------

func TestSubmitScoreLocalThenGlobal(t *testing.T) {
	global := &stubGlobal{}
	h := newHarness(t, global)
	h.playToGameOver(t)

	h.send("submit_score", map[string]string{"name": "Ace"})
	var saved struct {
		Entry score.Entry   `json:"entry"`
		Local []score.Entry `json:"local"`
	}
	if !h.rec.last(t, "score_saved", &saved) || saved.Entry.Name != "Ace" || saved.Entry.Score != 100 {
		t.Fatalf("unexpected score_saved %+v", saved)
	}

	h.await(t)
	var res struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if !h.rec.last(t, "score_global", &res) || !res.OK || res.Message != "Score saved" {
		t.Fatalf("unexpected score_global %+v", res)
	}
	if len(global.entries) != 1 {
		t.Fatalf("global entries = %d", len(global.entries))
	}

	h.send("submit_score", map[string]string{"name": "Ace"})
	if h.rec.count("score_saved") != 1 {
		t.Fatal("a game can only be submitted once")
	}
}

func TestSubmitScoreGlobalFailure(t *testing.T) {
	h := newHarness(t, &stubGlobal{err: errors.New("offline")})
	h.playToGameOver(t)

	h.send("submit_score", map[string]string{"name": "Ace"})
	h.await(t)
	var res struct {
		OK      bool   `json:"ok"`
		Message string `json:"message"`
	}
	if !h.rec.last(t, "score_global", &res) || res.OK || res.Message != "Could not save score" {
		t.Fatalf("unexpected score_global %+v", res)
	}
	local, _ := h.scores.Local("p1").Scores(context.Background())
	if len(local) != 1 {
		t.Fatal("local write must survive a global failure")
	}
	if h.metrics.Snapshot()["global_failures"] != 1 {
		t.Fatal("global failure not counted")
	}
}

func TestSubmitScoreValidationRetainsGame(t *testing.T) {
	h := newHarness(t, nil)
	h.playToGameOver(t)

	h.send("submit_score", map[string]string{"name": "   "})
	var verr struct {
		Field string `json:"field"`
	}
	if !h.rec.last(t, "score_error", &verr) || verr.Field != "name" {
		t.Fatalf("expected name validation error, got %+v", verr)
	}
	if h.p.submitted {
		t.Fatal("failed validation must allow a retry")
	}

	h.send("submit_score", map[string]string{"name": "Ace"})
	if h.rec.count("score_saved") != 1 {
		t.Fatal("retry should succeed")
	}
}

func TestSubmitBeforeGameOver(t *testing.T) {
	h := newHarness(t, nil)
	h.navigate("menu")
	h.navigate("game")
	h.send("submit_score", map[string]string{"name": "Ace"})
	if h.rec.count("score_saved") != 0 || h.rec.count("error") != 1 {
		t.Fatal("submission requires a finished game")
	}
}

func TestLeaderboardFallsBackToLocal(t *testing.T) {
	h := newHarness(t, &stubGlobal{err: errors.New("offline")})
	h.playToGameOver(t)
	h.send("submit_score", map[string]string{"name": "Ace"})
	h.await(t)

	h.navigate("menu")
	h.navigate("leaderboard")
	h.await(t)

	var st struct {
		Entries []score.Entry `json:"entries"`
		Source  string        `json:"source"`
		Global  bool          `json:"global_available"`
		Error   string        `json:"error"`
	}
	if !h.rec.last(t, "standings", &st) {
		t.Fatal("no standings sent")
	}
	if st.Source != score.SourceLocal || st.Global || st.Error == "" {
		t.Fatalf("expected local fallback, got %+v", st)
	}
	if len(st.Entries) != 1 || st.Entries[0].Name != "Ace" {
		t.Fatalf("unexpected entries %+v", st.Entries)
	}
}

func TestSubmitScoreSurvivesLeave(t *testing.T) {
	global := &stubGlobal{delay: 50 * time.Millisecond}
	h := newHarness(t, global)
	h.playToGameOver(t)

	h.send("submit_score", map[string]string{"name": "Ace"})
	h.p.r.cancel()

	waitFor(t, func() bool { return global.saved() == 1 })
	if !h.scores.GlobalAvailable() {
		t.Fatal("leaving must not disable the global store")
	}
}

func TestLeaderboardLeaveKeepsGlobalAvailable(t *testing.T) {
	global := &stubGlobal{}
	h := newHarness(t, global)
	h.p.r.cancel()

	h.navigate("menu")
	h.navigate("leaderboard")
	time.Sleep(20 * time.Millisecond)

	if !h.scores.GlobalAvailable() {
		t.Fatal("a departed client must not disable global reads")
	}
	st, err := h.scores.Standings(context.Background(), "p2")
	if err != nil || st.Source != score.SourceGlobal {
		t.Fatalf("next reader should use global, got %+v, %v", st, err)
	}
}

// ---------------------------------------------------------------------------
// Run loop
// ---------------------------------------------------------------------------

func TestLeaveStopsHandling(t *testing.T) {
	h := newHarness(t, nil)
	if h.send("leave", nil) {
		t.Fatal("leave should stop the runner")
	}
}

func TestRunLoopLifecycle(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	scores := score.NewService(score.NewMemoryKV(), nil, logger, score.Options{})
	rec := &recorder{}
	metrics := server.NewMetrics()
	e := NewEngine(scores, rec, metrics, logger, Options{FrameInterval: time.Millisecond})

	client := &server.Client{ID: "c1", Profile: "p1"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e.HandleMessage(ctx, client, server.WSMessage{Type: "start"})
	if e.Sessions().Count() != 1 {
		t.Fatal("start should open a runner")
	}
	e.HandleMessage(ctx, client, server.WSMessage{Type: "start"})
	if e.Sessions().Count() != 1 {
		t.Fatal("a client gets one runner")
	}

	e.HandleMessage(ctx, client, server.NewMessage("navigate", map[string]string{"scene": "menu"}))
	e.HandleMessage(ctx, client, server.NewMessage("navigate", map[string]string{"scene": "game"}))
	waitFor(t, func() bool { return rec.count("state") >= 2 })

	e.HandleDisconnect(client)
	waitFor(t, func() bool { return e.Sessions().Count() == 0 })
	if metrics.Snapshot()["active_sessions"] != 0 {
		t.Fatal("active_sessions should return to 0")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met")
}
