package feature_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/launchkit/pkg/feature"
)

type ctxKey string

const userIDKey ctxKey = "user_id"

func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func withUserID(id string) context.Context {
	return context.WithValue(context.Background(), userIDKey, id)
}

func intPtr(v int) *int { return &v }

func TestMemoryProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("plain enabled flag", func(t *testing.T) {
		t.Parallel()

		p, err := feature.NewMemoryProvider(&feature.Flag{Name: "billing-v2", Enabled: true})
		require.NoError(t, err)

		on, err := p.IsEnabled(ctx, "billing-v2")
		require.NoError(t, err)
		assert.True(t, on)
	})

	t.Run("disabled flag ignores strategy", func(t *testing.T) {
		t.Parallel()

		p, err := feature.NewMemoryProvider(&feature.Flag{
			Name:     "dark-launch",
			Enabled:  false,
			Strategy: &feature.AlwaysStrategy{Value: true},
		})
		require.NoError(t, err)

		on, err := p.IsEnabled(ctx, "dark-launch")
		require.NoError(t, err)
		assert.False(t, on)
	})

	t.Run("unknown flag", func(t *testing.T) {
		t.Parallel()

		p, err := feature.NewMemoryProvider()
		require.NoError(t, err)

		_, err = p.IsEnabled(ctx, "nope")
		require.ErrorIs(t, err, feature.ErrFlagNotFound)
	})

	t.Run("set and delete", func(t *testing.T) {
		t.Parallel()

		p, err := feature.NewMemoryProvider()
		require.NoError(t, err)

		require.NoError(t, p.SetFlag(ctx, &feature.Flag{Name: "beta", Enabled: true}))
		on, err := p.IsEnabled(ctx, "beta")
		require.NoError(t, err)
		assert.True(t, on)

		require.NoError(t, p.DeleteFlag(ctx, "beta"))
		_, err = p.IsEnabled(ctx, "beta")
		require.ErrorIs(t, err, feature.ErrFlagNotFound)
	})
}

func TestTargetedStrategy(t *testing.T) {
	t.Parallel()

	t.Run("deny list wins over allow list", func(t *testing.T) {
		t.Parallel()

		s := feature.NewTargetedStrategy(feature.TargetCriteria{
			AllowList: []string{"u1"},
			DenyList:  []string{"u1"},
		}, userIDFromContext)

		on, err := s.Evaluate(withUserID("u1"))
		require.NoError(t, err)
		assert.False(t, on)
	})

	t.Run("allow list admits the user", func(t *testing.T) {
		t.Parallel()

		s := feature.NewTargetedStrategy(feature.TargetCriteria{
			AllowList:  []string{"u1"},
			Percentage: intPtr(0),
		}, userIDFromContext)

		on, err := s.Evaluate(withUserID("u1"))
		require.NoError(t, err)
		assert.True(t, on)
	})

	t.Run("percentage buckets are stable", func(t *testing.T) {
		t.Parallel()

		s := feature.NewTargetedStrategy(feature.TargetCriteria{
			Percentage: intPtr(50),
		}, userIDFromContext)

		first, err := s.Evaluate(withUserID("user-42"))
		require.NoError(t, err)
		for range 10 {
			again, err := s.Evaluate(withUserID("user-42"))
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("percentage extremes", func(t *testing.T) {
		t.Parallel()

		all := feature.NewTargetedStrategy(feature.TargetCriteria{Percentage: intPtr(100)}, userIDFromContext)
		on, err := all.Evaluate(withUserID("anyone"))
		require.NoError(t, err)
		assert.True(t, on)

		none := feature.NewTargetedStrategy(feature.TargetCriteria{Percentage: intPtr(0)}, userIDFromContext)
		on, err = none.Evaluate(withUserID("anyone"))
		require.NoError(t, err)
		assert.False(t, on)
	})

	t.Run("empty criteria invalid", func(t *testing.T) {
		t.Parallel()

		s := feature.NewTargetedStrategy(feature.TargetCriteria{}, userIDFromContext)
		_, err := s.Evaluate(context.Background())
		require.ErrorIs(t, err, feature.ErrInvalidStrategy)
	})
}

func TestEnvironmentStrategy(t *testing.T) {
	t.Parallel()

	env := func(v string) feature.EnvironmentExtractor {
		return func(context.Context) string { return v }
	}

	t.Run("listed environment enabled", func(t *testing.T) {
		t.Parallel()

		s := feature.NewEnvironmentStrategy([]string{"production", "staging"}, env("staging"))
		on, err := s.Evaluate(context.Background())
		require.NoError(t, err)
		assert.True(t, on)
	})

	t.Run("unlisted environment disabled", func(t *testing.T) {
		t.Parallel()

		s := feature.NewEnvironmentStrategy([]string{"production"}, env("development"))
		on, err := s.Evaluate(context.Background())
		require.NoError(t, err)
		assert.False(t, on)
	})
}

func TestParseFlags(t *testing.T) {
	t.Parallel()

	t.Run("parses strategies", func(t *testing.T) {
		t.Parallel()

		data := []byte(`
flags:
  - name: guest-checkout-linking
    enabled: true
  - name: new-dashboard
    enabled: true
    strategy: targeted
    criteria:
      percentage: 25
  - name: prod-only
    enabled: true
    strategy: environment
    environments: [production]
`)
		flags, err := feature.ParseFlags(data, userIDFromContext, func(context.Context) string { return "production" })
		require.NoError(t, err)
		require.Len(t, flags, 3)

		assert.Nil(t, flags[0].Strategy)
		assert.NotNil(t, flags[1].Strategy)
		assert.NotNil(t, flags[2].Strategy)
	})

	t.Run("rejects unknown strategy", func(t *testing.T) {
		t.Parallel()

		data := []byte("flags:\n  - name: x\n    strategy: dice-roll\n")
		_, err := feature.ParseFlags(data, nil, nil)
		require.ErrorIs(t, err, feature.ErrInvalidFlagFile)
	})

	t.Run("rejects missing name", func(t *testing.T) {
		t.Parallel()

		data := []byte("flags:\n  - enabled: true\n")
		_, err := feature.ParseFlags(data, nil, nil)
		require.ErrorIs(t, err, feature.ErrInvalidFlagFile)
	})

	t.Run("rejects invalid yaml", func(t *testing.T) {
		t.Parallel()

		_, err := feature.ParseFlags([]byte("flags: ["), nil, nil)
		require.ErrorIs(t, err, feature.ErrInvalidFlagFile)
	})
}
