package analysis

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/shareandimprove/archivist/internal/embedder"
	"github.com/shareandimprove/archivist/internal/llm"
)

// maxVisionBytes caps the size of an image sent for transcription.
const maxVisionBytes = 20 << 20

// imageTypes maps the image type tags sent to the vision model to their MIME type.
var imageTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"bmp":  "image/bmp",
	"webp": "image/webp",
}

// IsImage reports whether typeTag is eligible for vision transcription.
func IsImage(typeTag string) bool {
	_, ok := imageTypes[typeTag]
	return ok
}

// Completer is a chat completion endpoint.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, jsonMode bool) (string, error)
}

// State is a step of the analysis of a single file.
type State int

const (
	StateContentAcquired State = iota
	StateTextAnalyzed
	StateEmbeddingObtained
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateContentAcquired:
		return "content_acquired"
	case StateTextAnalyzed:
		return "text_analyzed"
	case StateEmbeddingObtained:
		return "embedding_obtained"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source tells where the analysed content came from.
type Source string

const (
	SourceText        Source = "text"
	SourceVision      Source = "vision"
	SourcePlaceholder Source = "placeholder"
)

// Input describes one file to analyse.
type Input struct {
	Path          string
	Name          string
	SizeBytes     int64
	TypeTag       string
	Neighbors     []string
	ExtractedText string
}

// Result is the outcome of Analyze. Only a complete result may be persisted.
type Result struct {
	State     State
	Source    Source
	Metadata  Metadata
	Embedding []float32
}

// Complete reports whether metadata and embedding were both obtained.
func (r Result) Complete() bool {
	return r.State == StateComplete && !r.Metadata.Failed() && len(r.Embedding) > 0
}

// Config holds orchestrator options.
type Config struct {
	// Language of the generated free-text fields.
	Language string
}

// Orchestrator runs content acquisition, metadata generation and embedding
// for a single file.
type Orchestrator struct {
	text     Completer
	vision   Completer
	embedder embedder.Embedder
	language string
	logger   *zap.Logger
}

// New creates an orchestrator. vision may be nil, which disables
// transcription of images.
func New(text, vision Completer, emb embedder.Embedder, cfg Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		text:     text,
		vision:   vision,
		embedder: emb,
		language: cfg.Language,
		logger:   logger.Named("analysis"),
	}
}

// Analyze never returns an error: every failure yields a result in
// StateFailed whose metadata is the failure sentinel.
func (o *Orchestrator) Analyze(ctx context.Context, in Input) Result {
	log := o.logger.With(zap.String("path", in.Path))

	content, source := o.acquireContent(ctx, in, log)
	res := Result{State: StateContentAcquired, Source: source}

	raw, err := o.text.Complete(ctx, metadataMessages(o.language, in, content), true)
	if err != nil {
		log.Warn("metadata request failed", zap.Error(err))
		return res.fail()
	}
	md, err := ParseMetadata(raw)
	if err != nil {
		log.Warn("unusable metadata response", zap.Error(err))
		return res.fail()
	}
	res.State = StateTextAnalyzed
	res.Metadata = md

	emb, err := o.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: md.EmbeddingInput()})
	if err != nil || emb == nil || len(emb.Vector) == 0 {
		log.Warn("no embedding for file", zap.Error(err))
		return res.fail()
	}
	res.State = StateEmbeddingObtained
	res.Embedding = emb.Vector

	res.State = StateComplete
	log.Debug("analysis complete",
		zap.String("source", string(source)),
		zap.String("subject", md.Subject),
		zap.Int("dimension", len(emb.Vector)))
	return res
}

func (r Result) fail() Result {
	return Result{State: StateFailed, Source: r.Source, Metadata: failedMetadata()}
}

func (o *Orchestrator) acquireContent(ctx context.Context, in Input, log *zap.Logger) (string, Source) {
	if strings.TrimSpace(in.ExtractedText) != "" {
		return in.ExtractedText, SourceText
	}

	mimeType, ok := imageTypes[in.TypeTag]
	if !ok || o.vision == nil {
		return Placeholder, SourcePlaceholder
	}

	text, err := o.transcribe(ctx, in.Path, mimeType)
	if err != nil {
		log.Info("vision transcription unavailable", zap.Error(err))
		return Placeholder, SourcePlaceholder
	}
	return text, SourceVision
}

func (o *Orchestrator) transcribe(ctx context.Context, path, mimeType string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.Size() > maxVisionBytes {
		return "", fmt.Errorf("image is %d bytes, limit is %d", info.Size(), maxVisionBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	text, err := o.vision.Complete(ctx, visionMessages(mimeType, data), false)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", llm.ErrEmptyResponse
	}
	return text, nil
}
