package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankOrdering(t *testing.T) {
	ordered := All()
	for i := 1; i < len(ordered); i++ {
		assert.Greater(t, ordered[i].Rank(), ordered[i-1].Rank(),
			"rank must strictly increase from %s to %s", ordered[i-1], ordered[i])
	}
}

func TestHasMinimum_AllPairs(t *testing.T) {
	for _, userTier := range All() {
		for _, required := range All() {
			ok, err := HasMinimum(userTier, required)
			require.NoError(t, err)
			assert.Equal(t, userTier.Rank() >= required.Rank(), ok,
				"HasMinimum(%s, %s)", userTier, required)
		}
	}
}

func TestHasMinimum_NoRequirement(t *testing.T) {
	ok, err := HasMinimum(Public, "")
	require.NoError(t, err)
	assert.True(t, ok, "absent required tier means no restriction")
}

func TestHasMinimum_InvalidUserTier(t *testing.T) {
	ok, err := HasMinimum(Tier("superuser"), User)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParse(t *testing.T) {
	got, err := Parse("tenant")
	require.NoError(t, err)
	assert.Equal(t, Tenant, got)

	_, err = Parse("root")
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse("")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRank_Unknown(t *testing.T) {
	assert.Equal(t, -1, Tier("nope").Rank())
}

func TestFromPath(t *testing.T) {
	cases := map[string]string{
		"/platform/tenants":    "platform",
		"/tenant/users/42":     "tenant",
		"/account/talent":      "account",
		"/user/profile":        "user",
		"/public/listings":     "public",
		"/internal/debug":      "unknown",
		"/":                    "unknown",
		"/platformish/x":       "unknown",
		"/tenant":              "tenant",
	}
	for path, want := range cases {
		assert.Equal(t, want, FromPath(path), "path %q", path)
	}
}
