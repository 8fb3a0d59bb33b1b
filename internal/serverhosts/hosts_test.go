package serverhosts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet(t *testing.T) {
	url, err := Get(EnvironmentProduction, HostTypeStatic)
	require.NoError(t, err)
	assert.Equal(t, "https://static.ads.openadtrack.com", url)

	url, err = Get(EnvironmentStaging, HostTypeAnonymous)
	require.NoError(t, err)
	assert.Equal(t, "https://anonymous.ads.openadtrack.dev", url)
}

func TestGetUnknownCombinations(t *testing.T) {
	_, err := Get("local", HostTypeStatic)
	assert.Error(t, err)

	_, err = Get(EnvironmentProduction, "metrics")
	assert.Error(t, err)
}
