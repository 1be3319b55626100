package prefs_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaurav-prasanna/easyread/core"
	"github.com/gaurav-prasanna/easyread/prefs"
)

func openStore(t *testing.T) *prefs.Store {
	t.Helper()
	s, err := prefs.Open(context.Background(), filepath.Join(t.TempDir(), "prefs", "easyread.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	_, ok, err := s.Get(ctx, prefs.KeyMode)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, prefs.KeyMode, "techExplainer"))
	require.NoError(t, s.Set(ctx, prefs.KeyMode, "visualClarity"))
	require.NoError(t, s.Set(ctx, prefs.KeyLanguage, "es"))

	v, ok, err := s.Get(ctx, prefs.KeyMode)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "visualClarity", v)

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{prefs.KeyMode: "visualClarity", prefs.KeyLanguage: "es"}, all)

	require.NoError(t, s.Delete(ctx, prefs.KeyMode))
	require.NoError(t, s.Delete(ctx, prefs.KeyMode))
	_, ok, err = s.Get(ctx, prefs.KeyMode)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreRejectsUnknownKey(t *testing.T) {
	err := openStore(t).Set(context.Background(), "selectedFont", "OpenDyslexic")
	require.ErrorIs(t, err, prefs.ErrUnknownKey)
}

func TestTransform(t *testing.T) {
	tests := []struct {
		name string
		set  map[string]string
		want core.Transform
	}{
		{
			name: "defaults",
			want: core.DefaultTransform(),
		},
		{
			name: "all_set",
			set: map[string]string{
				prefs.KeyMode:         "customPrompt",
				prefs.KeyLevel:        "5",
				prefs.KeyLanguage:     "fr",
				prefs.KeyCustomPrompt: "Use bullet points",
			},
			want: core.Transform{Mode: core.ModeCustom, Intensity: 5, TargetLanguage: "fr", CustomInstructions: "Use bullet points"},
		},
		{
			name: "bad_level_ignored",
			set:  map[string]string{prefs.KeyLevel: "high"},
			want: core.DefaultTransform(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := openStore(t)
			for k, v := range tt.set {
				require.NoError(t, s.Set(ctx, k, v))
			}
			got, err := prefs.Transform(ctx, s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPIKeyPrecedence(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	key, err := prefs.APIKey(ctx, s, "from-env")
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)

	require.NoError(t, s.Set(ctx, prefs.KeyAPIKey, "  stored  "))
	key, err = prefs.APIKey(ctx, s, "from-env")
	require.NoError(t, err)
	assert.Equal(t, "stored", key)
}
