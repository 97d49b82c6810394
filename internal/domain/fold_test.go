package domain_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ozalerts/exposure-sites-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fragment(title, addr, date string) domain.Site {
	return domain.Site{
		Hash:          domain.IdentityHash(title, addr),
		Title:         title,
		StreetAddress: addr,
		Exposures:     []domain.Exposure{{Date: date, Tier: 1}},
	}
}

func TestFoldSites_Empty(t *testing.T) {
	assert.Empty(t, domain.FoldSites(nil, domain.SamePlace))
	assert.Empty(t, domain.FoldSites([]domain.Site{}, domain.SamePlace))
}

func TestFoldSites_SingleFragmentUnchanged(t *testing.T) {
	in := []domain.Site{fragment("Cafe X", "1 Main St", "2021-07-01")}

	out := domain.FoldSites(in, domain.SamePlace)

	require.Len(t, out, 1)
	assert.True(t, in[0].Equal(out[0]))
	assert.Len(t, out[0].Exposures, 1)
}

func TestFoldSites_ExactDuplicateElision(t *testing.T) {
	a := fragment("Cafe X", "1 Main St", "2021-07-01")

	out := domain.FoldSites([]domain.Site{a, a}, domain.SamePlace)

	require.Len(t, out, 1)
	assert.Len(t, out[0].Exposures, 1, "exact duplicate must not add a second exposure")
}

func TestFoldSites_SamePlaceMergesExposures(t *testing.T) {
	// Two exact duplicates plus a same-place fragment with a different date:
	// one site, exactly two exposures.
	a := fragment("Cafe X", "1 Main St", "2021-07-01")
	dup := fragment("Cafe X", "1 Main St", "2021-07-01")
	later := fragment("Cafe X", "1 Main St", "2021-07-02")

	out := domain.FoldSites([]domain.Site{a, dup, later}, domain.SamePlace)

	require.Len(t, out, 1)
	require.Len(t, out[0].Exposures, 2)
	assert.Equal(t, "2021-07-01", out[0].Exposures[0].Date)
	assert.Equal(t, "2021-07-02", out[0].Exposures[1].Date)
}

func TestFoldSites_FirstMatchWins(t *testing.T) {
	// A' merges into A regardless of where B sits between them.
	a := fragment("Cafe X", "1 Main St", "2021-07-01")
	b := fragment("Gym Y", "9 High St", "2021-07-01")
	aPrime := fragment("Cafe X", "1 Main St", "2021-07-03")

	for name, in := range map[string][]domain.Site{
		"b between": {a, b, aPrime},
		"b first":   {b, a, aPrime},
		"b last":    {a, aPrime, b},
	} {
		out := domain.FoldSites(in, domain.SamePlace)
		require.Len(t, out, 2, name)

		var cafe domain.Site
		for _, s := range out {
			if s.Title == "Cafe X" {
				cafe = s
			}
		}
		assert.Len(t, cafe.Exposures, 2, name)
	}
}

func TestFoldSites_PunctuationNoise(t *testing.T) {
	// Unclean upstream data: same place with stray punctuation still folds.
	a := fragment("Cafe X", "1 Main St", "2021-07-01")
	noisy := fragment("Cafe X", "1 Main St.", "2021-07-02")

	out := domain.FoldSites([]domain.Site{a, noisy}, domain.SamePlace)

	require.Len(t, out, 1)
	assert.Len(t, out[0].Exposures, 2)
}

func TestFoldSites_MissingAddressMatchesOnTitleAlone(t *testing.T) {
	a := fragment("Regional Market", "", "2021-07-01")
	b := fragment("Regional Market", "", "2021-07-02")
	withAddr := fragment("Regional Market", "2 Side St", "2021-07-03")

	out := domain.FoldSites([]domain.Site{a, b, withAddr}, domain.SamePlace)

	// Title-only sites fold together; the addressed site stays separate.
	require.Len(t, out, 2)
	assert.Len(t, out[0].Exposures, 2)
	assert.Len(t, out[1].Exposures, 1)
}

func TestFoldSites_Idempotent(t *testing.T) {
	in := []domain.Site{
		fragment("Cafe X", "1 Main St", "2021-07-01"),
		fragment("Cafe X", "1 Main St", "2021-07-02"),
		fragment("Gym Y", "9 High St", "2021-07-01"),
	}

	once := domain.FoldSites(in, domain.SamePlace)
	twice := domain.FoldSites(once, domain.SamePlace)

	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("refolding changed the result (-once +twice):\n%s", diff)
	}
}

func TestFoldSites_DoesNotAliasInput(t *testing.T) {
	a := fragment("Cafe X", "1 Main St", "2021-07-01")
	b := fragment("Cafe X", "1 Main St", "2021-07-02")
	in := []domain.Site{a, b}

	out := domain.FoldSites(in, domain.SamePlace)

	require.Len(t, out, 1)
	out[0].Exposures[0].Notes = "mutated"
	assert.Empty(t, in[0].Exposures[0].Notes, "fold output must not share exposure storage with its input")
}
