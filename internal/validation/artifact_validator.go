// Package validation checks pipeline artifacts before a step touches them:
// upstream inputs must exist, output directories must be writable and
// contracts written for other tools must satisfy their struct tags.
package validation

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"

	apperrors "github.com/Ul012/FOM.tft-timeseries/internal/errors"
)

// Input is an artifact a step reads, and the step that writes it
type Input struct {
	Name     string
	Path     string
	Upstream string
}

// ArtifactValidator provides the file and contract checks shared by all steps
type ArtifactValidator struct {
	logger   *slog.Logger
	validate *validator.Validate
}

// NewArtifactValidator creates a new artifact validator
func NewArtifactValidator(logger *slog.Logger) *ArtifactValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactValidator{
		logger:   logger,
		validate: validator.New(),
	}
}

// RequireInputs fails with an INPUT_MISSING error naming the upstream step
// for the first input that is not a readable file.
func (v *ArtifactValidator) RequireInputs(inputs ...Input) error {
	for _, in := range inputs {
		if err := v.ValidateFile(in.Path); err != nil {
			v.logger.Error("Required input missing",
				slog.String("artifact", in.Name),
				slog.String("path", in.Path),
				slog.String("upstream_step", in.Upstream))
			return apperrors.NewInputMissingError(in.Path, in.Upstream).WithContext("name", in.Name)
		}
	}
	return nil
}

// ValidateFile checks if a specific file exists and is readable
func (v *ArtifactValidator) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("File validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateOutputDirectory ensures output directory exists or can be created
func (v *ArtifactValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError(fmt.Sprintf("failed to create output directory %s", dir), err)
	}

	// Verify it's writable by creating a test file
	testFile := filepath.Join(dir, ".write_test")
	file, err := os.Create(testFile)
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return apperrors.NewStorageError(fmt.Sprintf("output directory %s is not writable", dir), err)
	}
	file.Close()
	os.Remove(testFile)

	v.logger.Debug("Output directory validated",
		slog.String("directory", dir))
	return nil
}

// ValidateContract checks the validate tags of a document before it is
// published. Failures are VALIDATION errors listing every broken field.
func (v *ArtifactValidator) ValidateContract(name string, doc interface{}) error {
	err := v.validate.Struct(doc)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apperrors.NewAppError(apperrors.ErrTypeValidation, fmt.Sprintf("%s cannot be validated", name), err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	v.logger.Error("Contract validation failed",
		slog.String("contract", name),
		slog.Any("fields", msgs))
	return apperrors.NewAppError(apperrors.ErrTypeValidation, fmt.Sprintf("invalid %s: %s", name, strings.Join(msgs, "; ")), err)
}
