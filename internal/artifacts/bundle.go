// Package artifacts reads and writes the model bundle: the directory that
// carries everything inference needs from a training run.
//
//	manifest.yaml   format version, provenance, checksums, evaluation metrics
//	model.json      tree ensemble
//	schema.json     ordered feature columns and targets
//	encoders.json   categorical encoders for input fields
//	meal_plan.json  encoder for the meal-plan target
package artifacts

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/encoding"
	"github.com/Veraticus/nourish/internal/features"
	"github.com/Veraticus/nourish/internal/forest"
)

// FormatVersion is the bundle layout version written to the manifest.
const FormatVersion = 1

// Bundle file names.
const (
	ManifestFile = "manifest.yaml"
	ModelFile    = "model.json"
	SchemaFile   = "schema.json"
	EncodersFile = "encoders.json"
	MealPlanFile = "meal_plan.json"
)

// ErrChecksum reports a bundle file that does not match its manifest entry.
var ErrChecksum = errors.New("checksum mismatch")

// Metric is the held-out evaluation of one model output.
type Metric struct {
	MAE float64 `yaml:"mae"`
	R2  float64 `yaml:"r2"`
}

// TrainingInfo records how the model was fit.
type TrainingInfo struct {
	Dataset        string   `yaml:"dataset,omitempty"`
	OneHot         []string `yaml:"one_hot,omitempty"`
	Rows           int      `yaml:"rows"`
	TestRows       int      `yaml:"test_rows"`
	Trees          int      `yaml:"trees"`
	MaxDepth       int      `yaml:"max_depth"`
	MinSamplesLeaf int      `yaml:"min_samples_leaf"`
	TestSplit      float64  `yaml:"test_split"`
	Seed           int64    `yaml:"seed"`
}

// Manifest describes a bundle.
type Manifest struct {
	CreatedAt    time.Time         `yaml:"created_at"`
	Checksums    map[string]string `yaml:"checksums"`
	Metrics      map[string]Metric `yaml:"metrics,omitempty"`
	Outputs      []string          `yaml:"outputs"`
	Training     TrainingInfo      `yaml:"training"`
	Version      int               `yaml:"version"`
	FeatureCount int               `yaml:"feature_count"`
}

// Bundle is a loaded or freshly trained model bundle.
type Bundle struct {
	Encoders *encoding.Registry
	MealPlan *encoding.CategoricalEncoder
	Schema   *features.Schema
	Model    *forest.Ensemble
	Manifest Manifest
}

// Registry returns the input encoders together with the meal-plan encoder.
func (b *Bundle) Registry() (*encoding.Registry, error) {
	target, err := encoding.NewRegistry(b.MealPlan)
	if err != nil {
		return nil, err
	}
	return b.Encoders.Merge(target)
}

// Validate checks the parts of the bundle agree with each other.
func (b *Bundle) Validate() error {
	switch {
	case b.Encoders == nil:
		return errors.New("bundle has no encoders")
	case b.MealPlan == nil:
		return errors.New("bundle has no meal plan encoder")
	case b.Schema == nil:
		return errors.New("bundle has no schema")
	case b.Model == nil:
		return errors.New("bundle has no model")
	}
	if b.MealPlan.Field() != encoding.MealPlanField {
		return fmt.Errorf("meal plan encoder is for %q, want %q", b.MealPlan.Field(), encoding.MealPlanField)
	}
	if b.Model.FeatureCount != b.Schema.Len() {
		return fmt.Errorf("%w: model expects %d features, schema has %d",
			common.ErrSchemaMismatch, b.Model.FeatureCount, b.Schema.Len())
	}
	if !slices.Equal(b.Model.Outputs(), b.Schema.Targets()) {
		return fmt.Errorf("%w: model outputs %v, schema targets %v",
			common.ErrSchemaMismatch, b.Model.Outputs(), b.Schema.Targets())
	}
	for _, f := range b.Schema.OneHot() {
		if !b.Encoders.Has(f) {
			return fmt.Errorf("%w: %s", features.ErrOneHotEncoder, f)
		}
	}
	return nil
}

// Save writes the bundle to dir, creating it if needed, and fills in the
// manifest's version, feature count, outputs and checksums.
func Save(dir string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return fmt.Errorf("invalid bundle: %w", err)
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create bundle directory: %w", err)
	}

	files := []struct {
		name  string
		value any
	}{
		{ModelFile, b.Model},
		{SchemaFile, b.Schema},
		{EncodersFile, b.Encoders},
		{MealPlanFile, b.MealPlan},
	}

	m := b.Manifest
	m.Version = FormatVersion
	m.FeatureCount = b.Schema.Len()
	m.Outputs = b.Model.Outputs()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Checksums = make(map[string]string, len(files))

	for _, f := range files {
		data, err := json.MarshalIndent(f.value, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, f.name), data, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
		m.Checksums[f.name] = checksum(data)
	}

	data, err := yaml.Marshal(&m)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	b.Manifest = m
	return nil
}

// Load reads and validates the bundle in dir. Every failure wraps
// common.ErrModelUnavailable.
func Load(dir string) (*Bundle, error) {
	b, err := load(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", common.ErrModelUnavailable, dir, err)
	}
	return b, nil
}

// ReadManifest reads only the manifest of the bundle in dir.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported bundle version %d (want %d)", m.Version, FormatVersion)
	}
	return &m, nil
}

func load(dir string) (*Bundle, error) {
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	read := func(name string) ([]byte, error) {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		want, ok := m.Checksums[name]
		if !ok {
			return nil, fmt.Errorf("%s: no manifest entry: %w", name, ErrChecksum)
		}
		if want != checksum(data) {
			return nil, fmt.Errorf("%s: %w", name, ErrChecksum)
		}
		return data, nil
	}

	b := &Bundle{Manifest: *m}

	data, err := read(ModelFile)
	if err != nil {
		return nil, err
	}
	if b.Model, err = forest.Read(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	b.Schema = &features.Schema{}
	if err := decodeFile(read, SchemaFile, b.Schema); err != nil {
		return nil, err
	}
	b.Encoders = &encoding.Registry{}
	if err := decodeFile(read, EncodersFile, b.Encoders); err != nil {
		return nil, err
	}
	b.MealPlan = &encoding.CategoricalEncoder{}
	if err := decodeFile(read, MealPlanFile, b.MealPlan); err != nil {
		return nil, err
	}

	if m.FeatureCount != 0 && m.FeatureCount != b.Schema.Len() {
		return nil, fmt.Errorf("%w: manifest lists %d features, schema has %d",
			common.ErrSchemaMismatch, m.FeatureCount, b.Schema.Len())
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeFile(read func(string) ([]byte, error), name string, v any) error {
	data, err := read(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
