package draw

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/luckydraw/go/internal/roster"
)

// Selector draws a single winner from a participant roster. The zero value
// selects uniformly with a cryptographically strong source; configuring a
// salt switches to the deterministic debug mode.
type Selector struct {
	// Salt, when non-empty, derives the winning index from a SHA-256
	// digest of the eligible list, the salt and the current timestamp
	// instead of the crypto random source. The digest is reduced mod N,
	// which carries a slight modulo bias for non-power-of-two list
	// lengths; this mode is a reproducibility aid, not the fairness path.
	Salt string

	// Clock feeds the timestamp of the salted mode. Nil uses the real
	// clock.
	Clock clockwork.Clock
}

// winnersLogAliases are tried in order when reading a winners-log row's
// participant key; logs written by different operators name the column
// inconsistently.
func winnersLogAliases(m roster.Mapping) []string {
	return []string{"participant_id", "participantId", m.IDKey, m.NameKey}
}

// Select returns the winning row among eligible participants, or nil when
// no participant is eligible (draw exhausted — not an error).
func (s Selector) Select(participants, winnersLog []roster.Row, mode Mode, m roster.Mapping) (*Winner, error) {
	wonKeys := make(map[string]bool, len(winnersLog))
	for _, r := range winnersLog {
		if k := roster.NormalizeKey(r.First(winnersLogAliases(m)...)); k != "" {
			wonKeys[k] = true
		}
	}

	var eligible []roster.Row
	for _, r := range participants {
		idv := roster.NormalizeKey(r.Str(m.IDKey))
		namev := roster.NormalizeKey(r.Str(m.NameKey))
		key := idv
		if key == "" {
			key = namev
		}
		if key == "" {
			continue
		}

		switch roster.ParseEligibility(r.Str(m.EligibleKey)) {
		case roster.EligibilityDenied:
			continue
		case roster.EligibilityAllowed:
			eligible = append(eligible, r)
			continue
		}

		if mode == ModeExclude && wonKeys[key] {
			continue
		}
		eligible = append(eligible, r)
	}

	if len(eligible) == 0 {
		return nil, nil
	}

	var idx int
	var err error
	if s.Salt != "" {
		idx, err = s.saltedIndex(eligible)
	} else {
		idx, err = uniformIndex(len(eligible))
	}
	if err != nil {
		return nil, err
	}

	return winnerFromRow(eligible[idx], m), nil
}

func winnerFromRow(r roster.Row, m roster.Mapping) *Winner {
	w := &Winner{
		ParticipantID: r.Str(m.IDKey),
		Name:          r.Str(m.NameKey),
		Team:          r.Str(m.TeamKey),
		Department:    r.Str(m.DeptKey),
		Raw:           r,
	}
	if w.ParticipantID == "" {
		w.ParticipantID = w.Name
	}
	return w
}

// uniformIndex draws a uniform index in [0, n) from crypto/rand using
// rejection sampling, so there is no modulo bias.
func uniformIndex(n int) (int, error) {
	if n <= 0 {
		return 0, fmt.Errorf("uniformIndex: n must be positive, got %d", n)
	}
	max := uint32(n)
	// Largest multiple of max representable in 32 bits; values at or
	// above it are rejected and redrawn.
	limit := (^uint32(0) / max) * max
	var buf [4]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("failed to read random bytes: %w", err)
		}
		v := binary.BigEndian.Uint32(buf[:])
		if v < limit {
			return int(v % max), nil
		}
	}
}

// saltedIndex derives the index from a digest of the eligible list, salt
// and current time. Deliberately digest-mod-N; see Selector.Salt.
func (s Selector) saltedIndex(eligible []roster.Row) (int, error) {
	clock := s.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	input := struct {
		Eligible []roster.Row `json:"eligible"`
		Salt     string       `json:"salt"`
		T        int64        `json:"t"`
	}{eligible, s.Salt, clock.Now().UnixMilli()}

	data, err := json.Marshal(input)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal salted draw input: %w", err)
	}
	sum := sha256.Sum256(data)
	hexDigest := fmt.Sprintf("%x", sum)
	n, err := strconv.ParseUint(hexDigest[:8], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse digest prefix: %w", err)
	}
	return int(n % uint64(len(eligible))), nil
}
