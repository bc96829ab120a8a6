package scene

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseAcceptsClientNames(t *testing.T) {
	cases := map[string]Scene{
		"MenuScene":      Menu,
		"menu":           Menu,
		"HowToPlayScene": HowToPlay,
		"how_to_play":    HowToPlay,
		"GameScene":      Game,
		"Leaderboard":    Leaderboard,
		"boot":           Boot,
	}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil || got != want {
			t.Errorf("Parse(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
}

func TestInitialScene(t *testing.T) {
	if Initial(false) != HowToPlay {
		t.Fatal("first visit should show the tutorial")
	}
	if Initial(true) != Menu {
		t.Fatal("returning players land on the menu")
	}
}

func TestNavigatorFollowsTable(t *testing.T) {
	n := NewNavigator(Menu, quietLogger())
	for _, step := range []string{"GameScene", "GameScene", "MenuScene", "LeaderboardScene", "MenuScene"} {
		if _, err := n.Go(step); err != nil {
			t.Fatalf("step %s: %v", step, err)
		}
	}
	if n.Current() != Menu {
		t.Fatalf("expected menu, got %s", n.Current())
	}
}

func TestNavigatorRejectsDisallowed(t *testing.T) {
	n := NewNavigator(Leaderboard, quietLogger())
	got, err := n.Go("GameScene")
	if !errors.Is(err, ErrTransitionNotAllowed) {
		t.Fatalf("expected ErrTransitionNotAllowed, got %v", err)
	}
	if got != Leaderboard || n.Current() != Leaderboard {
		t.Fatal("navigator should stay put")
	}
}

func TestNavigatorUnknownFallsBackToGame(t *testing.T) {
	n := NewNavigator(Game, quietLogger())
	got, err := n.Go("CreditsScene")
	var unknown *UnknownSceneError
	if !errors.As(err, &unknown) || unknown.Name != "CreditsScene" {
		t.Fatalf("expected UnknownSceneError, got %v", err)
	}
	if got != Game || n.Current() != Game {
		t.Fatalf("expected fallback to game, got %s", got)
	}
}
