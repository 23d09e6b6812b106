package partners

import (
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/prebid/prebid-headertag/config"
	"github.com/prebid/prebid-headertag/util/uuidutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGenerator struct {
	next int
	err  error
}

func (g *fakeGenerator) Generate() (string, error) {
	if g.err != nil {
		return "", g.err
	}
	g.next++
	return "id-" + strconv.Itoa(g.next), nil
}

func TestNewCallbackID(t *testing.T) {
	id, err := NewCallbackID(&fakeGenerator{})
	require.NoError(t, err)
	assert.Equal(t, "_id-1", id)

	_, err = NewCallbackID(&fakeGenerator{err: errors.New("no entropy")})
	assert.EqualError(t, err, "failed to generate callback id: no entropy")
}

func TestNewCallbackIDIsNeverReused(t *testing.T) {
	gen := uuidutil.RandomGenerator{}
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := NewCallbackID(gen)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(id, "_"))
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestParseVersion(t *testing.T) {
	version, err := ParseVersion(config.Partner{PartnerID: "p", Version: "2.1.3"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), version.Major)
	assert.Equal(t, uint64(1), version.Minor)
	assert.Equal(t, uint64(3), version.Patch)

	_, err = ParseVersion(config.Partner{PartnerID: "p"})
	assert.EqualError(t, err, "partner p has no version")

	_, err = ParseVersion(config.Partner{PartnerID: "p", Version: "two"})
	assert.Error(t, err)
}
