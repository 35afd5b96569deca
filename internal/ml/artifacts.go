package ml

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"trustnet/internal/pipeline"
)

// ArtifactSchemaVersion is bumped whenever the feature schema or artifact
// layout changes incompatibly; a mismatched artifact set fails at load
// instead of producing silently wrong predictions.
const ArtifactSchemaVersion = 1

// Artifact file names. The three files are a matched set: loading a subset
// is invalid.
const (
	ManifestFile = "manifest.json"
	ModelFile    = "model.json"
	PipelineFile = "pipeline.json"
)

// Manifest is the self-describing header persisted alongside the model and
// pipeline artifacts.
type Manifest struct {
	SchemaVersion int       `json:"schema_version"`
	CreatedAt     time.Time `json:"created_at"`
	FeatureNames  []string  `json:"feature_names"`
	Threshold     float64   `json:"threshold"`
	Metrics       Metrics   `json:"metrics"`
	TrainingRows  int       `json:"training_rows"`
	Tier          string    `json:"tier"`
}

// SaveArtifacts writes the matched artifact set into dir.
func SaveArtifacts(dir string, model *GBDT, pipe *pipeline.Fitted, manifest Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	manifest.SchemaVersion = ArtifactSchemaVersion
	if manifest.CreatedAt.IsZero() {
		manifest.CreatedAt = time.Now().UTC()
	}
	manifest.FeatureNames = pipe.OutputNames()

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o600); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := model.Save(filepath.Join(dir, ModelFile)); err != nil {
		return err
	}
	return pipe.Save(filepath.Join(dir, PipelineFile))
}

// LoadArtifacts reads and cross-checks the matched set. Any missing file,
// version mismatch, or feature-name disagreement between manifest and
// pipeline is an error.
func LoadArtifacts(dir string) (*GBDT, *pipeline.Fitted, Manifest, error) {
	var manifest Manifest

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, nil, manifest, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, nil, manifest, fmt.Errorf("parse manifest: %w", err)
	}
	if manifest.SchemaVersion != ArtifactSchemaVersion {
		return nil, nil, manifest, fmt.Errorf("artifact schema version %d, want %d", manifest.SchemaVersion, ArtifactSchemaVersion)
	}

	model, err := LoadGBDT(filepath.Join(dir, ModelFile))
	if err != nil {
		return nil, nil, manifest, err
	}
	pipe, err := pipeline.Load(filepath.Join(dir, PipelineFile))
	if err != nil {
		return nil, nil, manifest, err
	}

	names := pipe.OutputNames()
	if len(names) != len(manifest.FeatureNames) {
		return nil, nil, manifest, fmt.Errorf("manifest lists %d features, pipeline produces %d", len(manifest.FeatureNames), len(names))
	}
	for i := range names {
		if names[i] != manifest.FeatureNames[i] {
			return nil, nil, manifest, fmt.Errorf("feature %d mismatch: manifest %q, pipeline %q", i, manifest.FeatureNames[i], names[i])
		}
	}
	if model.NumFeatures != len(names) {
		return nil, nil, manifest, fmt.Errorf("model expects %d features, pipeline produces %d", model.NumFeatures, len(names))
	}
	return model, pipe, manifest, nil
}
