package orchestrator

import "time"

// Config holds the pipeline-level flags and knobs that gate and tune each
// orchestrator stage.
type Config struct {
	EnableGrouping      bool
	EnableConcepts      bool
	EnableRelationships bool

	SkipExisting          bool
	OverwriteRelationships bool

	MinRelationshipConfidence float64
	ConceptDelay              time.Duration

	RelationshipBatchSize int

	// ArtifactsDir is where groups_<video_id>.json and
	// relationships_<video_id>.json are written and read.
	ArtifactsDir string
}

func DefaultConfig() Config {
	return Config{
		EnableGrouping:            true,
		EnableConcepts:            true,
		EnableRelationships:       true,
		SkipExisting:              false,
		OverwriteRelationships:    false,
		MinRelationshipConfidence: 0.6,
		ConceptDelay:              500 * time.Millisecond,
		RelationshipBatchSize:     200,
		ArtifactsDir:              "./artifacts",
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinRelationshipConfidence <= 0 {
		c.MinRelationshipConfidence = d.MinRelationshipConfidence
	}
	if c.ConceptDelay <= 0 {
		c.ConceptDelay = d.ConceptDelay
	}
	if c.RelationshipBatchSize <= 0 {
		c.RelationshipBatchSize = d.RelationshipBatchSize
	}
	if c.ArtifactsDir == "" {
		c.ArtifactsDir = d.ArtifactsDir
	}
	return c
}
