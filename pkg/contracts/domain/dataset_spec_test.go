package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDatasetSpec_IgnoresUnknownKeys(t *testing.T) {
	doc := `{
  "schema_version": "1.0",
  "time_col": "date",
  "id_cols": ["country", "store", "product"],
  "target_col": "num_sold",
  "paths": {"train": "train.parquet", "val": "val.parquet", "test": "test.parquet"},
  "feature_lists": {
    "static_categoricals": ["country", "store", "product"],
    "time_varying_known_reals": ["cyc_dow_sin", "cyc_dow_cos", "time_idx"],
    "time_varying_unknown_reals": ["num_sold", "lag_num_sold_7"]
  },
  "lengths": {"max_encoder_length": 28, "max_prediction_length": 7},
  "trainer_hints": {"batch_size": 64}
}`

	spec, err := DecodeDatasetSpec([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "date", spec.TimeCol)
	assert.Equal(t, []string{"country", "store", "product"}, spec.IDCols)
	assert.Equal(t, "val.parquet", spec.Paths.Val)
	assert.Equal(t, []string{"num_sold", "lag_num_sold_7"}, spec.FeatureLists.TimeVaryingUnknownReals)
	assert.Equal(t, 7, spec.Lengths.MaxPredictionLength)
	assert.Nil(t, spec.FeatureLists.TimeVaryingKnownCategoricals)
}

func TestDecodeDatasetSpec_Invalid(t *testing.T) {
	_, err := DecodeDatasetSpec([]byte(`{"time_col": 3}`))
	assert.Error(t, err)
}

func TestDatasetSpec_JSONKeys(t *testing.T) {
	spec := DatasetSpec{
		SchemaVersion: DatasetSpecVersion,
		FeatureLists:  FeatureLists{TimeVaryingKnownCategoricals: []string{}},
		Notes:         SpecNotes{CalendarAsKnown: true},
	}
	data, err := json.Marshal(spec)
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"schema_version", "time_col", "id_cols", "target_col", "paths", "feature_lists", "lengths", "notes"} {
		assert.Contains(t, raw, key)
	}

	var lists map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw["feature_lists"], &lists))
	assert.JSONEq(t, `[]`, string(lists["time_varying_known_categoricals"]))
}
