package featureflag

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeatureFlag(t *testing.T) {
	f := New([]string{"disable_horizon_culling", " ", "FREEZE_UPDATE "})

	t.Run("normalizes flags", func(t *testing.T) {
		require.Len(t, f, 2)
		require.True(t, f.IsSet(FlagDisableHorizonCulling))
		require.True(t, f.IsSet(FlagFreezeUpdate))
		require.ElementsMatch(t, []string{"DISABLE_HORIZON_CULLING", "FREEZE_UPDATE"}, f.Strings())
	})

	t.Run("run if enabled", func(t *testing.T) {
		var runHorizon bool
		f.IfSet(FlagDisableHorizonCulling, func() {
			runHorizon = true
		})
		require.True(t, runHorizon)

		var runBudget bool
		f.IfSet(FlagDisablePointBudget, func() {
			runBudget = true
		})
		require.False(t, runBudget)
	})

	t.Run("run if disabled", func(t *testing.T) {
		var runHorizon bool
		f.IfNotSet(FlagDisableHorizonCulling, func() {
			runHorizon = true
		})
		require.False(t, runHorizon)

		var runBudget bool
		f.IfNotSet(FlagDisablePointBudget, func() {
			runBudget = true
		})
		require.True(t, runBudget)
	})

	t.Run("nil flags", func(t *testing.T) {
		var empty FeatureFlag
		require.False(t, empty.IsSet(FlagFreezeUpdate))
	})
}
