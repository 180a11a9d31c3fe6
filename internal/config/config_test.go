package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"country", "store", "product"}, cfg.Pipeline.GroupCols)
	assert.Equal(t, "num_sold", cfg.Pipeline.TargetCol)
	assert.Equal(t, []int{1, 7, 14}, cfg.Pipeline.Features.Lags.Lags)
	assert.Equal(t, []float64{0.8, 0.1, 0.1}, cfg.Pipeline.Split.Ratios)
	assert.Equal(t, 28, cfg.Pipeline.Dataset.MaxEncoderLength)
	assert.Equal(t, 7, cfg.Pipeline.Dataset.MaxPredictionLength)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := writeConfig(t, `
pipeline:
  target_col: sales
  features:
    lags:
      lags: [2, 3]
  split:
    val_start: "2021-01-01"
    test_start: "2021-06-01"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sales", cfg.Pipeline.TargetCol)
	assert.Equal(t, []int{2, 3}, cfg.Pipeline.Features.Lags.Lags)
	assert.Equal(t, "lag_", cfg.Pipeline.Features.Lags.Prefix, "unset keys keep defaults")
	assert.Equal(t, "2021-01-01", cfg.Pipeline.Split.ValStart)
}

func TestLoadEnvironmentWinsOverFile(t *testing.T) {
	path := writeConfig(t, "pipeline:\n  target_col: sales\n")
	t.Setenv("TFT_PIPELINE_TARGET_COL", "units")
	t.Setenv("TFT_PIPELINE_SPLIT_RATIOS", "0.6,0.2,0.2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "units", cfg.Pipeline.TargetCol)
	assert.Equal(t, []float64{0.6, 0.2, 0.2}, cfg.Pipeline.Split.Ratios)
}

func TestValidateRejectsBadPipelines(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "ratios not summing to one",
			mutate: func(c *Config) { c.Pipeline.Split.Ratios = []float64{0.8, 0.1, 0.2} },
			want:   "sum to 1",
		},
		{
			name:   "ratio triple of wrong size",
			mutate: func(c *Config) { c.Pipeline.Split.Ratios = []float64{0.5, 0.5} },
			want:   "exactly 3",
		},
		{
			name: "boundaries out of order",
			mutate: func(c *Config) {
				c.Pipeline.Split.ValStart = "2021-06-01"
				c.Pipeline.Split.TestStart = "2021-01-01"
			},
			want: "must be before",
		},
		{
			name:   "only one boundary",
			mutate: func(c *Config) { c.Pipeline.Split.ValStart = "2021-06-01" },
			want:   "set together",
		},
		{
			name: "period of one",
			mutate: func(c *Config) {
				c.Pipeline.Features.Cyclical.Periodicities[0].Period = 1
			},
			want: "period must be > 1",
		},
		{
			name:   "unknown roll stat",
			mutate: func(c *Config) { c.Pipeline.Features.Lags.RollStats = []string{"mode"} },
			want:   "must be one of",
		},
		{
			name:   "unknown timezone",
			mutate: func(c *Config) { c.Pipeline.Features.Cyclical.Timezone = "Mars/Olympus" },
			want:   "unknown timezone",
		},
		{
			name:   "no group columns",
			mutate: func(c *Config) { c.Pipeline.GroupCols = nil },
			want:   "GroupCols",
		},
		{
			name:   "regime months reversed",
			mutate: func(c *Config) { c.Pipeline.Cleaning.Regimes[0].EndMonth = 2 },
			want:   "EndMonth",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "pipeline: [not, a, map")

	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeConfig))
}

func TestResolvePaths(t *testing.T) {
	cfg := Default()
	cfg.Paths.DataDir = t.TempDir()

	paths := cfg.ResolvePaths()
	assert.Equal(t, filepath.Join(cfg.Paths.DataDir, "datasets", "tft", "dataset_spec.json"), paths.SpecFile)
	assert.Equal(t, filepath.Join(cfg.Paths.DataDir, "raw", "train.csv"), paths.RawFile)
	assert.Equal(t, filepath.Join(cfg.Paths.DataDir, "processed", "cleaned.parquet"), paths.Artifact(CleanedTable, "parquet"))
	assert.Equal(t, filepath.Join(paths.DatasetDir, "val.csv"), paths.SplitFile(SplitVal, "csv"))

	require.NoError(t, paths.EnsureDirectories())
	for _, dir := range []string{paths.ProcessedDir, paths.DatasetDir, paths.ReportsDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.example.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Pipeline.GroupCols, cfg.Pipeline.GroupCols)
	assert.Equal(t, def.Pipeline.Cleaning.Regimes, cfg.Pipeline.Cleaning.Regimes)
	assert.Equal(t, def.Pipeline.Features.Cyclical.Periodicities, cfg.Pipeline.Features.Cyclical.Periodicities)
	assert.Equal(t, def.Pipeline.Split.Ratios, cfg.Pipeline.Split.Ratios)
	assert.Equal(t, def.Pipeline.Dataset, cfg.Pipeline.Dataset)
}
