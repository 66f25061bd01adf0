// Command analyze runs the full transcript-to-knowledge-graph pipeline
// (C1-C9) for a single video per invocation, per this repo's one-shot CLI
// scope: no batch driver, no interactive query layer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/lumenreach/transcriptgraph/internal/pipeline/concepts"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/grouping"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/orchestrator"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/relationships"
	"github.com/lumenreach/transcriptgraph/internal/pipeline/segment"
	"github.com/lumenreach/transcriptgraph/internal/platform/envutil"
	"github.com/lumenreach/transcriptgraph/internal/platform/graphstore"
	"github.com/lumenreach/transcriptgraph/internal/platform/llm"
	"github.com/lumenreach/transcriptgraph/internal/platform/logger"
	"github.com/lumenreach/transcriptgraph/internal/platform/neo4jdb"
	"github.com/lumenreach/transcriptgraph/internal/platform/shutdown"
	"github.com/lumenreach/transcriptgraph/internal/platform/tracing"
	"github.com/lumenreach/transcriptgraph/internal/platform/vectorstore"
)

// transcriptWord is one entry of the upstream transcript provider's
// word-level timeline, with its punctuated surface form.
type transcriptWord struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type transcriptFile struct {
	VideoID string            `json:"video_id"`
	Words   []transcriptWord  `json:"words"`
}

func main() {
	var (
		transcriptPath         string
		videoIDOverride        string
		artifactsDir           string
		enableGrouping         bool
		enableConcepts         bool
		enableRelationships    bool
		skipExisting           bool
		overwriteRelationships bool
		minConfidence          float64
		logMode                string
	)
	flag.StringVar(&transcriptPath, "transcript", "", "path to a JSON transcript file ({video_id, words:[{start,end,text}]})")
	flag.StringVar(&videoIDOverride, "video-id", "", "override the video id from the transcript file")
	flag.StringVar(&artifactsDir, "artifacts-dir", "./artifacts", "directory for groups_<id>.json / relationships_<id>.json")
	flag.BoolVar(&enableGrouping, "enable-grouping", true, "run the grouping engine (C4)")
	flag.BoolVar(&enableConcepts, "enable-concepts", true, "run concept extraction + consolidation (C5/C6)")
	flag.BoolVar(&enableRelationships, "enable-relationships", true, "run relationship detection (C7/C8)")
	flag.BoolVar(&skipExisting, "skip-existing", false, "reuse persisted concepts instead of re-running Pass 1 when they already exist")
	flag.BoolVar(&overwriteRelationships, "overwrite-relationships", false, "delete this video's relationships before re-detecting")
	flag.Float64Var(&minConfidence, "min-relationship-confidence", 0.6, "minimum confidence for a relationship to be persisted")
	flag.StringVar(&logMode, "log-mode", "production", "logger mode: production or development")
	flag.Parse()

	if transcriptPath == "" {
		fmt.Println("missing required -transcript flag")
		os.Exit(2)
	}

	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := shutdown.NotifyContext(context.Background())
	defer stop()

	otelShutdown := tracing.Init(ctx, log, tracing.Config{ServiceName: "transcriptgraph-analyze"})
	defer otelShutdown(context.Background())

	tf, err := loadTranscript(transcriptPath)
	if err != nil {
		log.Fatal("load transcript failed", "path", transcriptPath, "error", err.Error())
	}
	videoID := tf.VideoID
	if videoIDOverride != "" {
		videoID = videoIDOverride
	}
	if videoID == "" {
		log.Fatal("transcript file has no video_id and -video-id was not given")
	}

	timeline := make([]segment.WordTiming, len(tf.Words))
	punctuated := make([]string, len(tf.Words))
	for i, w := range tf.Words {
		timeline[i] = segment.WordTiming{Start: w.Start, End: w.End}
		punctuated[i] = w.Text
	}

	llmCfg, err := llm.ResolveConfigFromEnv()
	if err != nil {
		log.Fatal("resolve llm config", "error", err.Error())
	}
	llmClient, err := llm.NewClient(log, llmCfg)
	if err != nil {
		log.Fatal("build llm client", "error", err.Error())
	}

	vsCfg, err := vectorstore.ResolveConfigFromEnv()
	if err != nil {
		log.Fatal("resolve vector store config", "error", err.Error())
	}
	vStore, err := vectorstore.New(log, vsCfg, llmClient)
	if err != nil {
		log.Fatal("build vector store", "error", err.Error())
	}

	neo4jClient, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Fatal("connect neo4j", "error", err.Error())
	}
	if neo4jClient == nil {
		log.Fatal("NEO4J_URI is required")
	}
	defer neo4jClient.Close(context.Background())

	gStore, err := graphstore.New(neo4jClient, log)
	if err != nil {
		log.Fatal("build graph store", "error", err.Error())
	}
	if err := gStore.Bootstrap(ctx); err != nil {
		log.Fatal("bootstrap graph store", "error", err.Error())
	}

	assembler := segment.New(segment.DefaultConfig())

	groupingCfg := grouping.DefaultConfig()
	groupingCfg.Concurrency = envutil.Int("GROUPING_CONCURRENCY", groupingCfg.Concurrency)
	grouper, err := grouping.New(vStore, log, groupingCfg)
	if err != nil {
		log.Fatal("build grouping engine", "error", err.Error())
	}

	extractor, err := concepts.NewExtractor(llmClient, log, llmCfg.Model)
	if err != nil {
		log.Fatal("build concept extractor", "error", err.Error())
	}
	consolidator, err := concepts.NewConsolidator(llmClient, log)
	if err != nil {
		log.Fatal("build concept consolidator", "error", err.Error())
	}

	relCfg := relationships.DefaultConfig()
	relCfg.MinConfidence = minConfidence
	intra, err := relationships.NewIntraDetector(log, relCfg, llmClient)
	if err != nil {
		log.Fatal("build intra-group detector", "error", err.Error())
	}
	inter, err := relationships.NewInterDetector(log, relCfg, llmClient)
	if err != nil {
		log.Fatal("build inter-group detector", "error", err.Error())
	}

	pipelineCfg := orchestrator.DefaultConfig()
	pipelineCfg.ArtifactsDir = artifactsDir
	pipelineCfg.EnableGrouping = enableGrouping
	pipelineCfg.EnableConcepts = enableConcepts
	pipelineCfg.EnableRelationships = enableRelationships
	pipelineCfg.SkipExisting = skipExisting
	pipelineCfg.OverwriteRelationships = overwriteRelationships
	pipelineCfg.MinRelationshipConfidence = minConfidence
	pipelineCfg.ConceptDelay = time.Duration(envutil.Int("CONCEPT_DELAY_MS", 500)) * time.Millisecond

	pipeline, err := orchestrator.New(log, pipelineCfg, assembler, vStore, gStore, grouper, extractor, consolidator, intra, inter)
	if err != nil {
		log.Fatal("build pipeline", "error", err.Error())
	}

	result := pipeline.Run(ctx, videoID, timeline, punctuated)
	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
	if !result.Success {
		os.Exit(1)
	}
}

func loadTranscript(path string) (transcriptFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return transcriptFile{}, err
	}
	var tf transcriptFile
	if err := json.Unmarshal(raw, &tf); err != nil {
		return transcriptFile{}, err
	}
	return tf, nil
}
