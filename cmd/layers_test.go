package main

import (
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/models"
	"github.com/stretchr/testify/require"
)

func TestParseLayer(t *testing.T) {
	defaults := models.LayerOptions{
		SSEThreshold: 16,
		PointBudget:  1000,
	}

	t.Run("kind and url", func(t *testing.T) {
		opts, err := parseLayer("tiles3d=https://example.com/tileset.json", defaults)
		require.NoError(t, err)
		require.Equal(t, "tiles3d", opts.Kind)
		require.Equal(t, "https://example.com/tileset.json", opts.URL)
		require.Equal(t, 16.0, opts.SSEThreshold)
		require.Equal(t, 1000, opts.PointBudget)
	})

	t.Run("url with query", func(t *testing.T) {
		opts, err := parseLayer("planar=https://example.com/{z}/{x}/{y}.png?key=abc", defaults)
		require.NoError(t, err)
		require.Equal(t, "https://example.com/{z}/{x}/{y}.png?key=abc", opts.URL)
	})

	t.Run("options", func(t *testing.T) {
		opts, err := parseLayer("globe=https://example.com/{z}/{x}/{y}.png;name=earth;min_level=1;max_level=18;sse=8;overlay=https://example.com/dem/{z}/{x}/{y}.png", defaults)
		require.NoError(t, err)
		require.Equal(t, "earth", opts.Name)
		require.Equal(t, uint(1), opts.MinLevel)
		require.Equal(t, uint(18), opts.MaxLevel)
		require.Equal(t, 8.0, opts.SSEThreshold)
		require.Len(t, opts.Overlays, 1)
		require.Equal(t, "overlay-0", opts.Overlays[0].Name())
	})

	t.Run("invalid definitions", func(t *testing.T) {
		for _, def := range []string{
			"globe",
			"=https://example.com",
			"globe=https://example.com;max_level=abc",
			"globe=https://example.com;color=red",
			"globe=https://example.com;name",
		} {
			_, err := parseLayer(def, defaults)
			require.Error(t, err, def)
			require.True(t, errors.IsType(err, models.ErrTypeConfiguration), def)
		}
	})
}
