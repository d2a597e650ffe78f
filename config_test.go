package ccac

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name  string
		field string
		edit  func(c *ModelConfig)
	}{
		{"horizon within rtt", "T", func(c *ModelConfig) { c.T, c.R = 3, 3 }},
		{"zero rtt", "ModelConfig.R", func(c *ModelConfig) { c.R = 0 }},
		{"negative capacity", "ModelConfig.C", func(c *ModelConfig) { c.C = -1 }},
		{"buffer bounds inverted", "BufMin", func(c *ModelConfig) { c.BufMin, c.BufMax = F(2), F(1) }},
		{"unknown cca", "CCA", func(c *ModelConfig) { c.CCA = "reno" }},
		{"unknown app", "App", func(c *ModelConfig) { c.App = "netflix" }},
		{"unknown epsilon", "Epsilon", func(c *ModelConfig) { c.Epsilon = "some" }},
		{"flows without qdel", "CalculateQdel", func(c *ModelConfig) { c.N = 2 }},
		{"copa without qdel", "CalculateQdel", func(c *ModelConfig) { c.CCA = CCACopa }},
		{"conv weights", "Conv", func(c *ModelConfig) { c.Conv = &ConvConfig{Increase: 0.5, Hold: 0.2} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.edit(c)
			err := c.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
			var ce *ConfigError
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := DefaultConfig()
	c.BufMin = F(1)
	c.BBR = DefaultBBRConfig()
	cp := c.Clone()

	*cp.BufMin = 5
	cp.BBR.Gains[0] = 9
	assert.Equal(t, 1.0, *c.BufMin)
	assert.Equal(t, 1.25, c.BBR.Gains[0])
}

func TestCanonicalDistinguishes(t *testing.T) {
	a, b := DefaultConfig(), DefaultConfig()
	assert.Equal(t, a.Canonical(), b.Canonical())
	b.BufMin = F(0)
	assert.NotEqual(t, a.Canonical(), b.Canonical())
}

func TestConfigFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := DefaultConfig()
	c.N = 2
	c.CalculateQdel = true
	c.BufMax = F(3)
	c.App = AppBBABR
	c.ABR = DefaultABRConfig()

	for _, name := range []string{"model.yaml", "model.json"} {
		t.Run(name, func(t *testing.T) {
			file := filepath.Join(dir, name)
			require.NoError(t, c.WriteToFile(file))
			got, err := ReadModelConfig(file, IsYAML(file), nil)
			require.NoError(t, err)
			assert.Equal(t, c, got)
		})
	}
	assert.Error(t, c.WriteToFile(filepath.Join(dir, "model.txt")))
}

func TestReadModelConfigDefaultsAndValidates(t *testing.T) {
	got, err := ReadModelConfig("", true, []byte("t: 6\ncca: const\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, got.T)
	assert.Equal(t, CCAConst, got.CCA)
	assert.Equal(t, AppBulk, got.App)

	_, err = ReadModelConfig("", true, []byte("t: 1\n"))
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestSetParam(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.SetParam("T", "12"))
	require.NoError(t, c.SetParam("buf_min", "0.5"))
	require.NoError(t, c.SetParam("pacing", "true"))
	require.NoError(t, c.SetParam("cca", "bbr"))
	require.NoError(t, c.SetParam("C", "2"))
	assert.Equal(t, 12, c.T)
	assert.Equal(t, 0.5, *c.BufMin)
	assert.True(t, c.Pacing)
	assert.Equal(t, CCABBR, c.CCA)
	assert.Equal(t, 2.0, c.C)

	require.NoError(t, c.SetParam("buf_min", "none"))
	assert.Nil(t, c.BufMin)

	assert.ErrorIs(t, c.SetParam("T", "1.5"), ErrConfiguration)
	assert.ErrorIs(t, c.SetParam("alpha", "big"), ErrConfiguration)
	assert.ErrorIs(t, c.SetParam("pacing", "sometimes"), ErrConfiguration)
	assert.ErrorIs(t, c.SetParam("color", "red"), ErrConfiguration)
}
