package main

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_generate(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		s, err := generate(32)

		require.NoError(t, err)
		require.Len(t, s, 64)
		_, err = hex.DecodeString(s)
		require.NoError(t, err)
	})

	t.Run("random", func(t *testing.T) {
		s1, err := generate(32)
		require.NoError(t, err)
		s2, err := generate(32)
		require.NoError(t, err)

		require.NotEqual(t, s1, s2)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := generate(8)

		require.Error(t, err)
	})
}
