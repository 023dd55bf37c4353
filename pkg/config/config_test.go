package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDivisionBands(t *testing.T) {
	bands, err := ParseDivisionBands("1:80-100, 2:60-79.99 ,3:0-59.99")
	require.NoError(t, err)
	require.Len(t, bands, 3)
	assert.Equal(t, DivisionBand{Division: 2, MinScore: 60, MaxScore: 79.99}, bands[1])
}

func TestParseDivisionBandsRejectsMalformed(t *testing.T) {
	cases := []string{"1-80-100", "x:1-2", "1:90-80", "1:80", "1:50-100,2:0-50", "1:60-100,1:0-59", "2:0-40,1:30-100"}
	for _, raw := range cases {
		_, err := ParseDivisionBands(raw)
		assert.Error(t, err, raw)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DIVISION_AGGREGATE", "sum")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, AggregateSum, cfg.Division.Aggregate)
	assert.Equal(t, 3, cfg.Division.PassMax)
	assert.Len(t, cfg.Division.Bands, 4)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
}

func TestParseDivisionBandsAcceptsUnorderedDisjointBands(t *testing.T) {
	bands, err := ParseDivisionBands("4:0-39.99,1:80-100,3:40-59.99,2:60-79.99")
	require.NoError(t, err)
	assert.Equal(t, 4, bands[0].Division)
}

func TestPercentBandsWithSum(t *testing.T) {
	percent := []DivisionBand{{Division: 1, MinScore: 80, MaxScore: 100}, {Division: 2, MinScore: 0, MaxScore: 79.99}}
	summed := []DivisionBand{{Division: 1, MinScore: 640, MaxScore: 800}, {Division: 2, MinScore: 0, MaxScore: 639.99}}

	assert.True(t, DivisionConfig{Aggregate: AggregateSum, Bands: percent}.PercentBandsWithSum())
	assert.False(t, DivisionConfig{Aggregate: AggregateSum, Bands: summed}.PercentBandsWithSum())
	assert.False(t, DivisionConfig{Aggregate: AggregateAverage, Bands: percent}.PercentBandsWithSum())
}
