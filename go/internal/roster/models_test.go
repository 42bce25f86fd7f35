package roster

import "testing"

func TestRowStr(t *testing.T) {
	r := Row{
		"id":    float64(42),
		"name":  "  Ann  ",
		"score": 1.5,
		"blank": nil,
	}

	t.Run("integral number renders without decimals", func(t *testing.T) {
		if got := r.Str("id"); got != "42" {
			t.Errorf("expected 42, got %q", got)
		}
	})

	t.Run("string is trimmed", func(t *testing.T) {
		if got := r.Str("name"); got != "Ann" {
			t.Errorf("expected Ann, got %q", got)
		}
	})

	t.Run("nil and missing cells are empty", func(t *testing.T) {
		if got := r.Str("blank"); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
		if got := r.Str("nope"); got != "" {
			t.Errorf("expected empty, got %q", got)
		}
		if got := r.Str(""); got != "" {
			t.Errorf("expected empty for empty key, got %q", got)
		}
	})
}

func TestRowFirst(t *testing.T) {
	r := Row{"participant_id": "", "participantId": "p7", "id": "x"}
	if got := r.First("participant_id", "participantId", "id"); got != "p7" {
		t.Errorf("expected first non-empty alias p7, got %q", got)
	}
	if got := r.First("a", "b"); got != "" {
		t.Errorf("expected empty when no alias present, got %q", got)
	}
}

func TestGuessMapping(t *testing.T) {
	t.Run("keeps previous keys still in schema", func(t *testing.T) {
		prev := Mapping{IDKey: "emp_no", NameKey: "fullname"}
		cols := []string{"emp_no", "fullname", "team"}
		got := GuessMapping(prev, cols)
		if got.IDKey != "emp_no" || got.NameKey != "fullname" {
			t.Errorf("expected previous keys kept, got %+v", got)
		}
		if got.TeamKey != "team" {
			t.Errorf("expected team column guessed, got %q", got.TeamKey)
		}
	})

	t.Run("guesses by alias when previous key is gone", func(t *testing.T) {
		prev := Mapping{IDKey: "old_id", NameKey: "old_name"}
		cols := []string{"Participant No", "ชื่อ-สกุล", "ฝ่าย", "มีสิทธิ์จับรางวัล"}
		got := GuessMapping(prev, cols)
		if got.IDKey != "Participant No" {
			t.Errorf("expected participant alias match, got %q", got.IDKey)
		}
		if got.NameKey != "ชื่อ-สกุล" {
			t.Errorf("expected Thai name alias match, got %q", got.NameKey)
		}
		if got.DeptKey != "ฝ่าย" {
			t.Errorf("expected Thai department alias match, got %q", got.DeptKey)
		}
		if got.EligibleKey != "มีสิทธิ์จับรางวัล" {
			t.Errorf("expected eligibility alias match, got %q", got.EligibleKey)
		}
	})

	t.Run("falls back to previous value when nothing matches", func(t *testing.T) {
		prev := Mapping{IDKey: "old_id", NameKey: "old_name"}
		got := GuessMapping(prev, []string{"colA", "colB"})
		if got.IDKey != "old_id" || got.NameKey != "old_name" {
			t.Errorf("expected previous values retained, got %+v", got)
		}
	})
}

func TestParseEligibility(t *testing.T) {
	cases := []struct {
		in   string
		want Eligibility
	}{
		{"yes", EligibilityAllowed},
		{"OK", EligibilityAllowed},
		{"ผ่าน", EligibilityAllowed},
		{"1", EligibilityAllowed},
		{"no", EligibilityDenied},
		{"X", EligibilityDenied},
		{"ไม่ผ่าน", EligibilityDenied},
		{"0", EligibilityDenied},
		{"", EligibilityUnknown},
		{"maybe", EligibilityUnknown},
		{"  Yes  ", EligibilityAllowed},
	}
	for _, c := range cases {
		if got := ParseEligibility(c.in); got != c.want {
			t.Errorf("ParseEligibility(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}
