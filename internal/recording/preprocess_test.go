package recording

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inputAt(id string, ts int64, fieldID, value string) Action {
	return Action{
		ID:        id,
		Timestamp: ts,
		URL:       "https://example.com/form",
		Kind:      KindInput,
		Strategy:  &Strategy{ID: fieldID, Priority: []StrategyKind{ByID}},
		Input:     &InputParams{Value: value},
	}
}

func TestPreprocessNormalizesTimestamps(t *testing.T) {
	rec := &Recording{
		Name:     "r",
		StartURL: "https://example.com/",
		Actions: []Action{
			{ID: "a", Timestamp: 1_700_000_000_000, Kind: KindScroll, Scroll: &ScrollParams{Y: 100}},
			{ID: "b", Timestamp: 1_700_000_001_500, Kind: KindScroll, Scroll: &ScrollParams{Y: 400}},
		},
	}

	out, _ := Preprocess(rec)

	assert.Equal(t, int64(0), out.Actions[0].Timestamp)
	assert.Equal(t, int64(1500), out.Actions[1].Timestamp)
	// The input recording is untouched.
	assert.Equal(t, int64(1_700_000_000_000), rec.Actions[0].Timestamp)
}

func TestPreprocessSortsOutOfOrderActions(t *testing.T) {
	rec := &Recording{
		Name:     "r",
		StartURL: "https://example.com/",
		Actions: []Action{
			{ID: "late", Timestamp: 2000, Kind: KindScroll, Scroll: &ScrollParams{}},
			{ID: "early", Timestamp: 1000, Kind: KindScroll, Scroll: &ScrollParams{}},
		},
	}

	out, warnings := Preprocess(rec)

	require.Len(t, out.Actions, 2)
	assert.Equal(t, "early", out.Actions[0].ID)
	assert.Equal(t, "late", out.Actions[1].ID)

	var codes []string
	for _, w := range warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, WarnOutOfOrder)
}

func TestPreprocessDropsSupersededInputs(t *testing.T) {
	rec := &Recording{
		Name:     "r",
		StartURL: "https://example.com/",
		Actions: []Action{
			inputAt("i1", 1000, "email", "j"),
			inputAt("i2", 1400, "email", "jane"),
			inputAt("i3", 2000, "email", "jane@example.com"),
			inputAt("i4", 2500, "password", "hunter2"),
		},
	}

	out, warnings := Preprocess(rec)

	require.Len(t, out.Actions, 2)
	assert.Equal(t, "i3", out.Actions[0].ID)
	assert.Equal(t, "jane@example.com", out.Actions[0].Input.Value)
	assert.Equal(t, "i4", out.Actions[1].ID)

	dropped := 0
	for _, w := range warnings {
		if w.Code == WarnDuplicateInput {
			dropped++
		}
	}
	assert.Equal(t, 2, dropped)
}

func TestPreprocessDedupKeepsLaterOnTimestampTie(t *testing.T) {
	rec := &Recording{
		Name:     "r",
		StartURL: "https://example.com/",
		Actions: []Action{
			inputAt("first", 1000, "q", "a"),
			inputAt("second", 1000, "q", "b"),
		},
	}

	out, _ := Preprocess(rec)

	require.Len(t, out.Actions, 1)
	assert.Equal(t, "second", out.Actions[0].ID)
}

func TestPreprocessIsDeterministic(t *testing.T) {
	rec := &Recording{
		Name:     "r",
		StartURL: "https://example.com/",
		Actions: []Action{
			{ID: "c", Timestamp: 3000, Kind: KindClick, Strategy: &Strategy{ID: "x", Priority: []StrategyKind{ByID}}},
			inputAt("b", 2000, "f", "v1"),
			inputAt("a", 1000, "f", "v0"),
		},
	}

	first, firstWarnings := Preprocess(rec)
	second, secondWarnings := Preprocess(rec)

	assert.Equal(t, first, second)
	assert.Equal(t, firstWarnings, secondWarnings)
}

func TestAnalyzeStructureWarnings(t *testing.T) {
	rec := &Recording{
		Name:     "r",
		StartURL: "https://example.com/",
		Actions: []Action{
			{ID: "noStrategy", Timestamp: 0, Kind: KindClick},
			{ID: "badSelect", Timestamp: 100, Kind: KindSelect,
				Strategy: &Strategy{ID: "s", Priority: []StrategyKind{ByID}},
				Select:   &SelectParams{}},
		},
	}

	_, warnings := Preprocess(rec)

	var codes []string
	for _, w := range warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, WarnMissingStrategy)
	assert.Contains(t, codes, WarnSelectNoCriteria)
}

func TestDetectMissingPrerequisites(t *testing.T) {
	rec := &Recording{
		Name:     "r",
		StartURL: "https://example.com/",
		Actions: []Action{
			{ID: "h1", Timestamp: 0, URL: "https://example.com/a", Kind: KindHover,
				Strategy: &Strategy{ID: "m", Priority: []StrategyKind{ByID}}},
			{ID: "h2", Timestamp: 500, URL: "https://example.com/b", Kind: KindHover,
				Strategy: &Strategy{ID: "m", Priority: []StrategyKind{ByID}}},
		},
	}

	out, warnings := Preprocess(rec)

	// Diagnostic only: no action is inserted or removed.
	assert.Len(t, out.Actions, 2)

	var found bool
	for _, w := range warnings {
		if w.Code == WarnMissingPrerequisite {
			found = true
			assert.Equal(t, "h2", w.ActionID)
		}
	}
	assert.True(t, found)
}

func TestLoadRejectsMissingStartURL(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/rec.json"
	require.NoError(t, writeFile(path, `{"name":"x","actions":[]}`))

	_, err := Load(path)
	assert.Error(t, err)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}
