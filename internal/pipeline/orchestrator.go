package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"pdf-rag/internal/history"
	"pdf-rag/internal/index"
	"pdf-rag/internal/models"
	"pdf-rag/internal/processor"
	"pdf-rag/internal/prompt"

	"github.com/phuslu/log"
)

// NoContextAnswer is returned when nothing relevant is indexed
const NoContextAnswer = "I couldn't find any relevant information in the documents to answer your question."

// Initialization stages
const (
	StageTemplate = "template"
	StageLoad     = "load"
	StageChunk    = "chunk"
	StageIndex    = "index"
)

// State of an Orchestrator
type State int32

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// InitError reports the stage at which initialisation failed
type InitError struct {
	Stage string
	Err   error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("%v at stage %s: %v", models.ErrInitialization, e.Stage, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

func (e *InitError) Is(target error) bool { return target == models.ErrInitialization }

// DocumentLoader reads the corpus
type DocumentLoader interface {
	Load(ctx context.Context, dir string) (*processor.LoadResult, error)
}

// Chunker splits documents into chunks
type Chunker interface {
	Split(documents []models.Document) ([]models.Chunk, error)
}

// IndexBuilder embeds chunks into a searchable index
type IndexBuilder interface {
	Build(ctx context.Context, chunks []models.Chunk) (*index.Index, *index.BuildStats, error)
}

// Retriever finds the chunks most relevant to a question
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]models.ScoredChunk, error)
}

// Generator produces an answer from a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Components are the collaborators used to build and query the pipeline
type Components struct {
	CorpusDir string
	Loader    DocumentLoader
	Chunker   Chunker
	Builder   IndexBuilder
	Templates prompt.Source
	Generator Generator

	TopK            int
	MaxPromptTokens int
	Deduplicate     bool
}

// Stats describes the corpus behind a ready pipeline
type Stats struct {
	Documents int               `json:"documents"`
	Failures  int               `json:"failures"`
	Chunks    int               `json:"chunks"`
	Template  string            `json:"template"`
	Index     *index.BuildStats `json:"index,omitempty"`
	ReadyAt   time.Time         `json:"ready_at"`

	// Corpus and LoadFailures back per-document reports
	Corpus       []models.Chunk        `json:"-"`
	LoadFailures []processor.FileError `json:"-"`
}

// Orchestrator builds the pipeline once and then answers questions against it
type Orchestrator struct {
	components Components

	buildMu sync.Mutex
	state   atomic.Int32
	handle  atomic.Pointer[Handle]
}

// New creates an uninitialised orchestrator
func New(components Components) *Orchestrator {
	return &Orchestrator{components: components}
}

// State returns the current lifecycle state
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// Handle returns the ready pipeline, or nil before initialisation completes
func (o *Orchestrator) Handle() *Handle {
	return o.handle.Load()
}

// Initialize fetches the template, loads and chunks the corpus and builds the index.
// It is a no-op once the pipeline is ready; on failure the pipeline stays uninitialised.
func (o *Orchestrator) Initialize(ctx context.Context) error {
	o.buildMu.Lock()
	defer o.buildMu.Unlock()

	if o.State() == StateReady {
		return nil
	}
	o.state.Store(int32(StateInitializing))

	h, err := o.build(ctx)
	if err != nil {
		o.state.Store(int32(StateUninitialized))
		log.Error().Err(err).Msg("pipeline initialization failed")
		return err
	}

	o.handle.Store(h)
	o.state.Store(int32(StateReady))
	log.Info().
		Int("documents", h.Stats.Documents).
		Int("chunks", h.Stats.Chunks).
		Str("template", h.Stats.Template).
		Msg("pipeline ready")
	return nil
}

func (o *Orchestrator) build(ctx context.Context) (*Handle, error) {
	c := o.components
	stats := Stats{}

	tpl, err := c.Templates.Fetch(ctx)
	if err != nil {
		return nil, &InitError{Stage: StageTemplate, Err: err}
	}
	stats.Template = tpl.Name

	loaded, err := c.Loader.Load(ctx, c.CorpusDir)
	if err != nil {
		return nil, &InitError{Stage: StageLoad, Err: err}
	}
	stats.Documents = len(loaded.Documents)
	stats.Failures = len(loaded.Failures)
	stats.LoadFailures = loaded.Failures
	if len(loaded.Documents) == 0 {
		return nil, &InitError{Stage: StageLoad, Err: fmt.Errorf("no readable documents in %s", c.CorpusDir)}
	}
	log.Info().Int("documents", stats.Documents).Int("failures", stats.Failures).Msg("corpus loaded")

	chunks, err := c.Chunker.Split(loaded.Documents)
	if err != nil {
		return nil, &InitError{Stage: StageChunk, Err: err}
	}
	stats.Chunks = len(chunks)
	stats.Corpus = chunks
	if len(chunks) == 0 {
		return nil, &InitError{Stage: StageChunk, Err: errors.New("documents contain no text")}
	}

	ix, buildStats, err := c.Builder.Build(ctx, chunks)
	if err != nil {
		return nil, &InitError{Stage: StageIndex, Err: err}
	}
	stats.Index = buildStats
	stats.ReadyAt = time.Now()

	assembler := prompt.NewAssembler(tpl, c.MaxPromptTokens)
	assembler.Deduplicate = c.Deduplicate

	return &Handle{
		retriever: ix,
		assembler: assembler,
		generator: c.Generator,
		topK:      c.TopK,
		Stats:     stats,
	}, nil
}

// Ask answers question within conv, failing fast with ErrNotReady before initialisation
func (o *Orchestrator) Ask(ctx context.Context, conv *history.Conversation, question string) (*models.Response, []history.Turn, error) {
	h := o.handle.Load()
	if h == nil {
		return nil, nil, models.ErrNotReady
	}
	return h.Ask(ctx, conv, question)
}

// Handle is an immutable, ready pipeline shared by concurrent askers
type Handle struct {
	retriever Retriever
	assembler *prompt.Assembler
	generator Generator
	topK      int

	Stats Stats
}

// Ask runs retrieve, assemble and generate, recording the turn in conv on success.
// It returns the response and the conversation's turns after the exchange.
func (h *Handle) Ask(ctx context.Context, conv *history.Conversation, question string) (*models.Response, []history.Turn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, nil, models.ErrEmptyQuestion
	}

	var response *models.Response
	_, err := conv.Exchange(question, func() (history.Turn, error) {
		start := time.Now()
		r, err := h.answer(ctx, question)
		if err != nil {
			return history.Turn{}, err
		}
		response = r
		log.Info().
			Str("conversation", conv.ID.String()).
			Int("sources", len(r.Sources)).
			Dur("elapsed", time.Since(start)).
			Msg("question answered")
		return history.Turn{Answer: r.Answer, Sources: r.Sources}, nil
	})
	if err != nil {
		log.Warn().Str("conversation", conv.ID.String()).Err(err).Msg("question failed")
		return nil, nil, err
	}

	return response, conv.Turns(), nil
}

func (h *Handle) answer(ctx context.Context, question string) (*models.Response, error) {
	chunks, err := h.retriever.Retrieve(ctx, question, h.topK)
	if errors.Is(err, models.ErrEmptyIndex) || (err == nil && len(chunks) == 0) {
		return &models.Response{
			Answer:    NoContextAnswer,
			Sources:   []models.ScoredChunk{},
			Timestamp: time.Now().Format(time.RFC3339),
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	p, err := h.assembler.Assemble(chunks, question)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble prompt: %w", err)
	}
	if p.Dropped > 0 {
		log.Debug().Int("dropped", p.Dropped).Int("tokens", p.Tokens).Msg("context trimmed")
	}

	answer, err := h.generator.Generate(ctx, p.Text)
	if err != nil {
		return nil, err
	}

	return &models.Response{
		Answer:    answer,
		Sources:   p.Chunks,
		Timestamp: time.Now().Format(time.RFC3339),
	}, nil
}
