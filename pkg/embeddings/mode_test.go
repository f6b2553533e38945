package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_ParseMode_RoundTripsWithString(t *testing.T) {
	t.Parallel()

	modes := []Mode{ModeRead, ModeAppend, ModeAppendOrCreate, ModeCreateAlways}

	for _, m := range modes {
		parsed, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, parsed)
	}
}

func Test_ParseMode_RejectsUnknownToken(t *testing.T) {
	t.Parallel()

	_, err := ParseMode("w")
	require.ErrorIs(t, err, ErrBadArg)
}
