package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/features"
)

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	t.Setenv("NOURISH_TEST_DIR", "/srv/nourish")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "tilde", in: "~", want: home},
		{name: "tilde prefix", in: "~/model", want: filepath.Join(home, "model")},
		{name: "env var", in: "$NOURISH_TEST_DIR/db", want: "/srv/nourish/db"},
		{name: "absolute", in: "/tmp/x", want: "/tmp/x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandPath(tt.in))
		})
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	return v
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")

	s, err := Load(newViper())
	require.NoError(t, err)

	assert.Equal(t, DefaultAddr, s.Server.Addr)
	assert.Equal(t, []string{"*"}, s.Server.CORSOrigins)
	assert.Equal(t, 10*time.Second, s.Server.ReadTimeout)
	assert.True(t, s.Database.Enabled)
	assert.Equal(t, DefaultDatabasePath(), s.Database.Path)
	assert.Equal(t, DefaultArtifactsDir(), s.Artifacts)
	assert.Equal(t, features.Feet, s.HeightUnit)
	assert.Equal(t, 100, s.Training.Trees)
	assert.InDelta(t, 0.2, s.Training.TestSplit, 1e-12)
	assert.Equal(t, int64(42), s.Training.Seed)
}

func TestLoad_PortEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")

	s, err := Load(newViper())
	require.NoError(t, err)
	assert.Equal(t, ":9090", s.Server.Addr)

	v := newViper()
	v.Set("server.addr", "127.0.0.1:7000")
	s, err = Load(v)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:7000", s.Server.Addr, "explicit address wins over PORT")
}

func TestLoad_Overrides(t *testing.T) {
	v := newViper()
	v.Set("server.cors_origins", []string{"https://a.example.com, https://b.example.com"})
	v.Set("features.height_unit", "centimeters")
	v.Set("training.one_hot", []string{"preferred_cuisine", "Gender"})
	v.Set("database.enabled", false)
	v.Set("artifacts.dir", "/opt/model")

	s, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, s.Server.CORSOrigins)
	assert.Equal(t, features.Centimeters, s.HeightUnit)
	assert.Equal(t, features.Centimeters, s.Training.HeightUnit, "training assumes the serving unit")
	assert.Equal(t, []string{features.PreferredCuisine, features.Gender}, s.Training.OneHot)
	assert.False(t, s.Database.Enabled)
	assert.Equal(t, "/opt/model", s.Artifacts)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
	}{
		{name: "height unit", key: "features.height_unit", value: "furlong"},
		{name: "trees", key: "training.trees", value: 0},
		{name: "test split", key: "training.test_split", value: 1.0},
		{name: "min samples leaf", key: "training.min_samples_leaf", value: 0},
		{name: "negative depth", key: "training.max_depth", value: -2},
		{name: "one-hot numeric column", key: "training.one_hot", value: []string{"Age"}},
		{name: "one-hot unknown column", key: "training.one_hot", value: []string{"Favourite_Colour"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper()
			v.Set(tt.key, tt.value)
			_, err := Load(v)
			assert.ErrorIs(t, err, common.ErrInvalidConfig)
		})
	}
}
