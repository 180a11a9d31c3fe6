package validation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
	"github.com/Ul012/FOM.tft-timeseries/pkg/contracts/domain"
)

func TestArtifactValidator_RequireInputs(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "cleaned.parquet")
	require.NoError(t, os.WriteFile(present, []byte("data"), 0644))

	tests := []struct {
		name     string
		inputs   []Input
		wantErr  bool
		upstream string
	}{
		{
			name:   "all present",
			inputs: []Input{{Name: "cleaned", Path: present, Upstream: "clean"}},
		},
		{
			name: "second input missing",
			inputs: []Input{
				{Name: "cleaned", Path: present, Upstream: "clean"},
				{Name: "features", Path: filepath.Join(dir, "features.parquet"), Upstream: "features"},
			},
			wantErr:  true,
			upstream: "features",
		},
		{
			name:     "path is a directory",
			inputs:   []Input{{Name: "train", Path: dir, Upstream: "dataset"}},
			wantErr:  true,
			upstream: "dataset",
		},
	}

	v := NewArtifactValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.RequireInputs(tt.inputs...)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrTypeInputMissing))
			assert.Contains(t, err.Error(), tt.upstream)
		})
	}
}

func TestArtifactValidator_ValidateOutputDirectory(t *testing.T) {
	v := NewArtifactValidator(nil)
	dir := filepath.Join(t.TempDir(), "datasets", "tft")

	require.NoError(t, v.ValidateOutputDirectory(dir))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	_, err = os.Stat(filepath.Join(dir, ".write_test"))
	assert.True(t, os.IsNotExist(err), "probe file removed")
}

func TestArtifactValidator_ValidateContract(t *testing.T) {
	v := NewArtifactValidator(nil)
	spec := &domain.DatasetSpec{
		SchemaVersion: domain.DatasetSpecVersion,
		TimeCol:       "date",
		IDCols:        []string{"store"},
		TargetCol:     "num_sold",
		Paths:         domain.SplitPaths{Train: "train.parquet", Val: "val.parquet", Test: "test.parquet"},
		Lengths:       domain.SequenceLengths{MaxEncoderLength: 28, MaxPredictionLength: 7},
	}
	assert.NoError(t, v.ValidateContract("dataset spec", spec))

	spec.Lengths.MaxPredictionLength = 0
	spec.IDCols = nil
	err := v.ValidateContract("dataset spec", spec)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
	assert.Contains(t, err.Error(), "MaxPredictionLength")
	assert.Contains(t, err.Error(), "IDCols")
}
