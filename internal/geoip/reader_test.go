package geoip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/otus/internal/log"
)

func init() {
	log.Init(log.DefaultConfig())
}

func TestReader_GivesUpOnEmptyPath(t *testing.T) {
	r := NewReader("")
	assert.True(t, r.GivenUp())

	region, ok := r.Lookup("8.8.8.8")
	assert.Equal(t, "", region)
	assert.False(t, ok)
}

func TestReader_GivesUpOnPlaceholderPath(t *testing.T) {
	r := NewReader("YOUR_ABSOLUTE_PATH_TO_GEOIP_DB_FILE_OR_TARGET_DOWNLOAD_PATH")
	assert.True(t, r.GivenUp())
}

func TestReader_GivesUpOnMissingFile(t *testing.T) {
	r := NewReader("/nonexistent/path/to/GeoLite2-Country.mmdb")
	assert.True(t, r.GivenUp())
	_, ok := r.Lookup("1.1.1.1")
	assert.False(t, ok)
}

func TestReader_CloseIsSafeWhenNeverOpened(t *testing.T) {
	r := NewReader("")
	require.NoError(t, r.Close())
}
