// Package config provides centralized configuration management for the
// dataset preparation pipeline. It loads configuration from multiple sources,
// validates it and resolves every artifact path of a run.
//
// # Configuration Sources
//
// Configuration is layered in the following order, later sources winning:
//
//	1. Default values (Default)
//	2. YAML file (config.yaml or configs/config.yaml, or an explicit path)
//	3. Environment variables
//
// # Environment Variables
//
// All environment variables follow the pattern TFT_<SECTION>_<FIELD>:
//
//	TFT_PIPELINE_TARGET_COL=num_sold
//	TFT_PIPELINE_SPLIT_RATIOS=0.7,0.15,0.15
//	TFT_LOGGING_LEVEL=debug
//
// Lists of structs (outliers, regimes, periodicities) can only be set in YAML.
//
// # Validation
//
// Struct tags are checked with go-playground/validator, then the cross-field
// rules (ratio sum, boundary order, periodicity > 1, timezone) are applied.
// Every failure is returned as a CONFIG error before any file is touched.
package config
