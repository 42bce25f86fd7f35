package roster

import (
	"fmt"
	"regexp"
	"strings"
)

// Collection identifies one of the external spreadsheet tabs.
type Collection string

const (
	CollectionParticipants Collection = "participants"
	CollectionPrizes       Collection = "prizes"
	CollectionWinners      Collection = "winners"
)

// Row is a single spreadsheet row. The schema is not fixed; columns are
// whatever the sheet declares, so values stay untyped (string, float64,
// bool or nil as decoded from the GViz feed).
type Row map[string]any

// Str returns the trimmed string form of the cell under key, or "" when
// the cell is absent or nil.
func (r Row) Str(key string) string {
	if key == "" {
		return ""
	}
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		// GViz serves numeric cells as numbers; integral values are the
		// common case for id columns.
		if s == float64(int64(s)) {
			return fmt.Sprintf("%d", int64(s))
		}
		return strings.TrimSpace(fmt.Sprintf("%v", s))
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// First returns the row's first non-empty value among keys. Winners logs
// in the wild name their id column inconsistently, so lookups try several
// aliases in order.
func (r Row) First(keys ...string) string {
	for _, k := range keys {
		if v := r.Str(k); v != "" {
			return v
		}
	}
	return ""
}

// Table is the decoded form of one sheet: ordered column labels plus rows.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// HasColumn reports whether name is one of the table's columns.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// NormalizeKey folds a participant key for set membership: trimmed and
// lowercased, so "A01 " and "a01" count as the same person.
func NormalizeKey(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Mapping names which participant columns carry the fields the draw needs.
// It is chosen by the operator, persisted client-side, and re-guessed when
// it no longer matches the live schema.
type Mapping struct {
	IDKey       string `json:"idKey"`
	NameKey     string `json:"nameKey"`
	TeamKey     string `json:"teamKey"`
	DeptKey     string `json:"deptKey"`
	EligibleKey string `json:"eligibleKey"`
}

// DefaultMapping returns the mapping assumed before any schema is known.
func DefaultMapping() Mapping {
	return Mapping{IDKey: "id", NameKey: "name"}
}

var (
	nameAlias     = regexp.MustCompile(`(?i)name|ชื่อ`)
	idAlias       = regexp.MustCompile(`(?i)^id$|participant`)
	teamAlias     = regexp.MustCompile(`(?i)team|ทีม`)
	deptAlias     = regexp.MustCompile(`(?i)dept|department|ฝ่าย|แผนก`)
	eligibleAlias = regexp.MustCompile(`(?i)eligible|สิทธิ|allow`)
)

// GuessMapping reconciles a previously chosen mapping against the columns
// of the current participant schema. Keys still present in the schema are
// kept; otherwise the first column matching the field's alias pattern is
// picked, falling back to the previous value when nothing matches.
func GuessMapping(prev Mapping, columns []string) Mapping {
	has := make(map[string]bool, len(columns))
	for _, c := range columns {
		has[c] = true
	}

	pick := func(prevKey string, alias *regexp.Regexp) string {
		if prevKey != "" && has[prevKey] {
			return prevKey
		}
		for _, c := range columns {
			if alias.MatchString(c) {
				return c
			}
		}
		return prevKey
	}

	return Mapping{
		IDKey:       pick(prev.IDKey, idAlias),
		NameKey:     pick(prev.NameKey, nameAlias),
		TeamKey:     pick(prev.TeamKey, teamAlias),
		DeptKey:     pick(prev.DeptKey, deptAlias),
		EligibleKey: pick(prev.EligibleKey, eligibleAlias),
	}
}

// Eligibility is the interpretation of a row's eligibility-column value.
type Eligibility int

const (
	// EligibilityUnknown means the value was empty or unrecognized; the
	// row falls through to mode-based filtering.
	EligibilityUnknown Eligibility = iota
	// EligibilityAllowed force-includes the row even under exclude mode.
	EligibilityAllowed
	// EligibilityDenied force-excludes the row even under repeat mode.
	EligibilityDenied
)

var truthyValues = map[string]bool{
	"true": true, "1": true, "yes": true, "y": true, "ok": true,
	"ผ่าน": true, "มีสิทธิ์": true, "eligible": true,
}

var falsyValues = map[string]bool{
	"false": true, "0": true, "no": true, "n": true, "x": true,
	"ไม่ผ่าน": true, "ไม่มีสิทธิ์": true, "ineligible": true,
}

// ParseEligibility classifies an eligibility-column value. Only explicitly
// recognized values decide anything; everything else is Unknown.
func ParseEligibility(v string) Eligibility {
	ev := NormalizeKey(v)
	if ev == "" {
		return EligibilityUnknown
	}
	if falsyValues[ev] {
		return EligibilityDenied
	}
	if truthyValues[ev] {
		return EligibilityAllowed
	}
	return EligibilityUnknown
}
