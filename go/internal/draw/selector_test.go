package draw

import (
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/luckydraw/go/internal/roster"
)

func defaultMapping() roster.Mapping {
	return roster.Mapping{IDKey: "id", NameKey: "name"}
}

func TestSelectorExcludeMode(t *testing.T) {
	sel := Selector{}

	t.Run("only eligible candidate wins", func(t *testing.T) {
		participants := []roster.Row{
			{"id": "1", "name": "Ann"},
			{"id": "2", "name": "Bo"},
		}
		winnersLog := []roster.Row{{"participant_id": "1"}}

		w, err := sel.Select(participants, winnersLog, ModeExclude, defaultMapping())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w == nil {
			t.Fatal("expected a winner")
		}
		if w.ParticipantID != "2" || w.Name != "Bo" {
			t.Errorf("expected Bo (id 2), got %+v", w)
		}
	})

	t.Run("no participant wins twice across consecutive draws", func(t *testing.T) {
		participants := []roster.Row{
			{"id": "a", "name": "A"},
			{"id": "b", "name": "B"},
			{"id": "c", "name": "C"},
			{"id": "d", "name": "D"},
		}
		var winnersLog []roster.Row
		seen := map[string]bool{}
		for i := 0; i < 4; i++ {
			w, err := sel.Select(participants, winnersLog, ModeExclude, defaultMapping())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if w == nil {
				t.Fatalf("draw %d: expected a winner", i)
			}
			if seen[w.ParticipantID] {
				t.Fatalf("participant %s selected twice", w.ParticipantID)
			}
			seen[w.ParticipantID] = true
			winnersLog = append(winnersLog, roster.Row{"participant_id": w.ParticipantID})
		}
	})

	t.Run("exhausted pool returns nil without error", func(t *testing.T) {
		participants := []roster.Row{{"id": "1", "name": "Ann"}}
		winnersLog := []roster.Row{{"participant_id": "1"}}
		w, err := sel.Select(participants, winnersLog, ModeExclude, defaultMapping())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w != nil {
			t.Errorf("expected nil winner on exhaustion, got %+v", w)
		}
	})

	t.Run("winners log keys are matched case-insensitively", func(t *testing.T) {
		participants := []roster.Row{
			{"id": "A01", "name": "Ann"},
			{"id": "B02", "name": "Bo"},
		}
		winnersLog := []roster.Row{{"participantId": " a01 "}}
		w, err := sel.Select(participants, winnersLog, ModeExclude, defaultMapping())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w == nil || w.ParticipantID != "B02" {
			t.Errorf("expected B02, got %+v", w)
		}
	})
}

func TestSelectorRepeatMode(t *testing.T) {
	sel := Selector{}
	participants := []roster.Row{{"id": "1", "name": "Ann"}}
	winnersLog := []roster.Row{{"participant_id": "1"}}

	w, err := sel.Select(participants, winnersLog, ModeRepeat, defaultMapping())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil || w.ParticipantID != "1" {
		t.Errorf("repeat mode should allow a past winner, got %+v", w)
	}
}

func TestSelectorEligibilityColumn(t *testing.T) {
	sel := Selector{}
	m := roster.Mapping{IDKey: "id", NameKey: "name", EligibleKey: "eligible"}

	t.Run("falsy value excludes even in repeat mode", func(t *testing.T) {
		participants := []roster.Row{
			{"id": "1", "name": "Ann", "eligible": "no"},
			{"id": "2", "name": "Bo", "eligible": ""},
		}
		w, err := sel.Select(participants, nil, ModeRepeat, m)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w == nil || w.ParticipantID != "2" {
			t.Errorf("expected only Bo eligible, got %+v", w)
		}
	})

	t.Run("truthy value overrides exclusion by history", func(t *testing.T) {
		participants := []roster.Row{{"id": "1", "name": "Ann", "eligible": "yes"}}
		winnersLog := []roster.Row{{"participant_id": "1"}}
		w, err := sel.Select(participants, winnersLog, ModeExclude, m)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w == nil || w.ParticipantID != "1" {
			t.Errorf("expected truthy override to include Ann, got %+v", w)
		}
	})

	t.Run("unrecognized value falls through to mode filtering", func(t *testing.T) {
		participants := []roster.Row{{"id": "1", "name": "Ann", "eligible": "maybe"}}
		winnersLog := []roster.Row{{"participant_id": "1"}}
		w, err := sel.Select(participants, winnersLog, ModeExclude, m)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if w != nil {
			t.Errorf("expected mode-based exclusion to apply, got %+v", w)
		}
	})
}

func TestSelectorFallbackIdentifier(t *testing.T) {
	sel := Selector{}
	participants := []roster.Row{{"id": "", "name": "Ann"}}
	w, err := sel.Select(participants, nil, ModeExclude, defaultMapping())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil {
		t.Fatal("expected a winner")
	}
	if w.ParticipantID != w.Name || w.ParticipantID != "Ann" {
		t.Errorf("expected id to fall back to name, got %+v", w)
	}
}

func TestSelectorSkipsKeylessRows(t *testing.T) {
	sel := Selector{}
	participants := []roster.Row{
		{"id": "", "name": ""},
		{"id": "1", "name": "Ann"},
	}
	w, err := sel.Select(participants, nil, ModeExclude, defaultMapping())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w == nil || w.ParticipantID != "1" {
		t.Errorf("expected keyless row skipped, got %+v", w)
	}
}

func TestSelectorSaltedModeIsDeterministic(t *testing.T) {
	clock := clockwork.NewFakeClock()
	sel := Selector{Salt: "pepper", Clock: clock}
	participants := []roster.Row{
		{"id": "1", "name": "Ann"},
		{"id": "2", "name": "Bo"},
		{"id": "3", "name": "Cyd"},
	}

	first, err := sel.Select(participants, nil, ModeRepeat, defaultMapping())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := sel.Select(participants, nil, ModeRepeat, defaultMapping())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.ParticipantID != second.ParticipantID {
		t.Errorf("salted draws with frozen clock should agree: %s vs %s",
			first.ParticipantID, second.ParticipantID)
	}
}

func TestUniformIndexBounds(t *testing.T) {
	for _, n := range []int{1, 2, 3, 7, 100} {
		for i := 0; i < 50; i++ {
			idx, err := uniformIndex(n)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if idx < 0 || idx >= n {
				t.Fatalf("index %d out of range [0,%d)", idx, n)
			}
		}
	}
	if _, err := uniformIndex(0); err == nil {
		t.Error("expected error for n=0")
	}
}
