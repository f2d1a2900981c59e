package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf-rag/internal/config"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/history"
	"pdf-rag/internal/index"
	"pdf-rag/internal/llm"
	"pdf-rag/internal/models"
	"pdf-rag/internal/processor"
	"pdf-rag/internal/prompt"
)

type fakeLoader struct {
	docs  []models.Document
	err   error
	calls atomic.Int32
}

func (l *fakeLoader) Load(_ context.Context, _ string) (*processor.LoadResult, error) {
	l.calls.Add(1)
	if l.err != nil {
		return nil, l.err
	}
	return &processor.LoadResult{Documents: l.docs}, nil
}

type failingSource struct{}

func (failingSource) Fetch(context.Context) (prompt.Template, error) {
	return prompt.Template{}, errors.New("prompt hub unreachable")
}

type failingBuilder struct {
	fails atomic.Int32
	next  IndexBuilder
}

func (b *failingBuilder) Build(ctx context.Context, chunks []models.Chunk) (*index.Index, *index.BuildStats, error) {
	if b.fails.Add(-1) >= 0 {
		return nil, nil, fmt.Errorf("%w: embedding service down", models.ErrEmbedding)
	}
	return b.next.Build(ctx, chunks)
}

// recordingCompleter answers every prompt and remembers the last one
type recordingCompleter struct {
	mu     sync.Mutex
	prompt string
	answer string
}

func (c *recordingCompleter) Complete(_ context.Context, p string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompt = p
	return c.answer, nil
}

func (c *recordingCompleter) lastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// gatedBuilder signals when a build starts and waits for release before delegating
type gatedBuilder struct {
	started chan struct{}
	release chan struct{}
	next    IndexBuilder
}

func (b *gatedBuilder) Build(ctx context.Context, chunks []models.Chunk) (*index.Index, *index.BuildStats, error) {
	close(b.started)
	<-b.release
	return b.next.Build(ctx, chunks)
}

type blockingCompleter struct{ release chan struct{} }

func (c blockingCompleter) Complete(context.Context, string) (string, error) {
	<-c.release
	return "late", nil
}

// corpusDocument is a 1200 character single page document of twelve sentences
func corpusDocument() models.Document {
	topics := []string{
		"alpha", "bravo", "charlie", "delta", "echo", "foxtrot",
		"golf", "hotel", "india", "juliet", "kilo", "lima",
	}
	sentences := make([]string, len(topics))
	for i, topic := range topics {
		s := fmt.Sprintf("The %s section explains the %s procedure", topic, topic)
		s += strings.Repeat(" and more", (98-len(s))/9)
		s += strings.Repeat(" ", 98-len(s))
		sentences[i] = s[:98] + "."
	}
	text := strings.Join(sentences, " ") + "\n"
	return models.Document{ID: "doc/manual.pdf", Path: "doc/manual.pdf", Pages: []string{text}}
}

func testComponents(t *testing.T, loader DocumentLoader, gen Generator) Components {
	t.Helper()
	splitter, err := processor.NewSplitter(500, 0)
	require.NoError(t, err)
	return Components{
		CorpusDir:       "doc",
		Loader:          loader,
		Chunker:         splitter,
		Builder:         index.NewBuilder(embedding.NewTFIDFEmbedder(), index.NewMemoryStore()),
		Templates:       prompt.StaticSource{Template: prompt.DefaultTemplate},
		Generator:       gen,
		TopK:            4,
		MaxPromptTokens: 4096 - 512,
		Deduplicate:     true,
	}
}

func TestCorpusDocument(t *testing.T) {
	doc := corpusDocument()
	assert.Len(t, doc.Pages[0], 1200)
}

func TestInitialize_EmptyCorpus(t *testing.T) {
	o := New(testComponents(t, &fakeLoader{}, llm.NewGenerator(&recordingCompleter{answer: "x"}, time.Second)))

	err := o.Initialize(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInitialization)

	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, StageLoad, initErr.Stage)
	assert.Equal(t, StateUninitialized, o.State())

	_, _, err = o.Ask(context.Background(), history.NewConversation(), "anything?")
	assert.ErrorIs(t, err, models.ErrNotReady)
}

func TestInitialize_EmptyCorpusDirectory(t *testing.T) {
	c := testComponents(t, processor.NewLoader(), nil)
	c.CorpusDir = t.TempDir()

	err := New(c).Initialize(context.Background())
	assert.ErrorIs(t, err, models.ErrInitialization)
}

func TestInitialize_MissingCorpusDirectory(t *testing.T) {
	c := testComponents(t, processor.NewLoader(), nil)
	c.CorpusDir = t.TempDir() + "/missing"

	err := New(c).Initialize(context.Background())
	assert.ErrorIs(t, err, models.ErrInitialization)
	assert.ErrorIs(t, err, models.ErrIO)
}

func TestInitialize_Stages(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Components)
		stage  string
	}{
		{
			name:   "template",
			mutate: func(c *Components) { c.Templates = failingSource{} },
			stage:  StageTemplate,
		},
		{
			name:   "load",
			mutate: func(c *Components) { c.Loader = &fakeLoader{err: models.ErrIO} },
			stage:  StageLoad,
		},
		{
			name: "chunk",
			mutate: func(c *Components) {
				c.Loader = &fakeLoader{docs: []models.Document{{ID: "blank.pdf", Pages: []string{"", "  "}}}}
			},
			stage: StageChunk,
		},
		{
			name: "index",
			mutate: func(c *Components) {
				b := &failingBuilder{next: c.Builder}
				b.fails.Store(1)
				c.Builder = b
			},
			stage: StageIndex,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := testComponents(t, &fakeLoader{docs: []models.Document{corpusDocument()}}, nil)
			tc.mutate(&c)

			err := New(c).Initialize(context.Background())
			var initErr *InitError
			require.ErrorAs(t, err, &initErr)
			assert.Equal(t, tc.stage, initErr.Stage)
			assert.ErrorIs(t, err, models.ErrInitialization)
		})
	}
}

func TestInitialize_RetryAfterFailure(t *testing.T) {
	c := testComponents(t, &fakeLoader{docs: []models.Document{corpusDocument()}}, nil)
	b := &failingBuilder{next: c.Builder}
	b.fails.Store(1)
	c.Builder = b
	o := New(c)

	require.Error(t, o.Initialize(context.Background()))
	assert.Equal(t, StateUninitialized, o.State())
	assert.Nil(t, o.Handle())

	require.NoError(t, o.Initialize(context.Background()))
	assert.Equal(t, StateReady, o.State())
}

func TestInitialize_ReadyIsTerminal(t *testing.T) {
	loader := &fakeLoader{docs: []models.Document{corpusDocument()}}
	o := New(testComponents(t, loader, nil))

	require.NoError(t, o.Initialize(context.Background()))
	require.NoError(t, o.Initialize(context.Background()))
	assert.Equal(t, int32(1), loader.calls.Load())
	assert.Equal(t, StateReady, o.State())
	assert.Equal(t, "ready", o.State().String())
}

func TestInitialize_ConcurrentCallsBuildOnce(t *testing.T) {
	loader := &fakeLoader{docs: []models.Document{corpusDocument()}}
	o := New(testComponents(t, loader, nil))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.Initialize(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), loader.calls.Load())
}

func TestAsk_DuringInitializeFailsFast(t *testing.T) {
	c := testComponents(t, &fakeLoader{docs: []models.Document{corpusDocument()}}, llm.NewGenerator(&recordingCompleter{answer: "x"}, time.Second))
	gate := &gatedBuilder{started: make(chan struct{}), release: make(chan struct{}), next: c.Builder}
	c.Builder = gate
	o := New(c)

	done := make(chan error, 1)
	go func() { done <- o.Initialize(context.Background()) }()
	<-gate.started

	assert.Equal(t, StateInitializing, o.State())
	assert.Nil(t, o.Handle())

	conv := history.NewConversation()
	_, _, err := o.Ask(context.Background(), conv, "What does the kilo section explain?")
	assert.ErrorIs(t, err, models.ErrNotReady)
	assert.Zero(t, conv.Len())

	close(gate.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, o.State())

	_, _, err = o.Ask(context.Background(), conv, "What does the kilo section explain?")
	assert.NoError(t, err)
	assert.Equal(t, 1, conv.Len())
}

func TestInitialize_ReportsProgressAndCorpus(t *testing.T) {
	c := testComponents(t, &fakeLoader{docs: []models.Document{corpusDocument()}}, nil)
	builder := index.NewBuilder(embedding.NewTFIDFEmbedder(), index.NewMemoryStore())
	builder.MaxConcurrent = 1

	var mu sync.Mutex
	var seen []int
	WithProgress(func(processed, total int) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, processed)
		assert.Equal(t, 3, total)
	})(builder)
	c.Builder = builder

	o := New(c)
	require.NoError(t, o.Initialize(context.Background()))

	assert.Equal(t, []int{1, 2, 3}, seen)
	stats := o.Handle().Stats
	require.Len(t, stats.Corpus, 3)
	assert.Equal(t, "doc/manual.pdf", stats.Corpus[0].DocumentID)
	assert.Empty(t, stats.LoadFailures)
}

func TestAsk_EndToEnd(t *testing.T) {
	completer := &recordingCompleter{answer: " The kilo procedure is explained in the manual. "}
	c := testComponents(t, &fakeLoader{docs: []models.Document{corpusDocument()}}, llm.NewGenerator(completer, time.Second))
	c.TopK = 2
	o := New(c)
	require.NoError(t, o.Initialize(context.Background()))

	h := o.Handle()
	require.NotNil(t, h)
	assert.Equal(t, 1, h.Stats.Documents)
	assert.Equal(t, 3, h.Stats.Chunks)
	assert.Equal(t, 3, h.Stats.Index.Indexed)
	assert.Equal(t, prompt.DefaultTemplate.Name, h.Stats.Template)

	conv := history.NewConversation()
	resp, turns, err := o.Ask(context.Background(), conv, "What does the kilo section explain?")
	require.NoError(t, err)

	assert.Equal(t, "The kilo procedure is explained in the manual.", resp.Answer)
	require.Len(t, resp.Sources, 2)
	assert.GreaterOrEqual(t, resp.Sources[0].Score, resp.Sources[1].Score)
	assert.Contains(t, resp.Sources[0].Chunk.Content, "kilo")
	assert.NotEmpty(t, resp.Timestamp)

	require.Len(t, turns, 1)
	assert.Equal(t, "What does the kilo section explain?", turns[0].Question)
	assert.Equal(t, resp.Answer, turns[0].Answer)
	assert.Equal(t, 1, conv.Len())

	p := completer.lastPrompt()
	assert.Contains(t, p, "Question: What does the kilo section explain?")
	assert.Contains(t, p, "[manual.pdf, page 1]")
}

func TestAsk_GenerationTimeoutLeavesHistoryUnchanged(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	gen := llm.NewGenerator(blockingCompleter{release: release}, time.Millisecond)
	o := New(testComponents(t, &fakeLoader{docs: []models.Document{corpusDocument()}}, gen))
	require.NoError(t, o.Initialize(context.Background()))

	conv := history.FromPairs([][2]string{{"earlier question", "earlier answer"}})
	before := conv.Turns()

	_, _, err := o.Ask(context.Background(), conv, "What does the golf section explain?")
	assert.ErrorIs(t, err, models.ErrGenerationTimeout)
	assert.Equal(t, before, conv.Turns())
}

func TestAsk_EmptyQuestion(t *testing.T) {
	o := New(testComponents(t, &fakeLoader{docs: []models.Document{corpusDocument()}}, llm.NewGenerator(&recordingCompleter{answer: "x"}, time.Second)))
	require.NoError(t, o.Initialize(context.Background()))

	conv := history.NewConversation()
	_, _, err := o.Ask(context.Background(), conv, "   ")
	assert.ErrorIs(t, err, models.ErrEmptyQuestion)
	assert.Zero(t, conv.Len())
}

type emptyRetriever struct{}

func (emptyRetriever) Retrieve(context.Context, string, int) ([]models.ScoredChunk, error) {
	return nil, models.ErrEmptyIndex
}

func TestHandleAsk_EmptyIndexDegrades(t *testing.T) {
	completer := &recordingCompleter{answer: "unused"}
	h := &Handle{
		retriever: emptyRetriever{},
		assembler: prompt.NewAssembler(prompt.DefaultTemplate, 0),
		generator: llm.NewGenerator(completer, time.Second),
		topK:      4,
	}

	conv := history.NewConversation()
	resp, turns, err := h.Ask(context.Background(), conv, "anything?")
	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Len(t, turns, 1)
	assert.Empty(t, completer.lastPrompt())
}

func TestAsk_ConcurrentConversations(t *testing.T) {
	completer := &recordingCompleter{answer: "answer"}
	o := New(testComponents(t, &fakeLoader{docs: []models.Document{corpusDocument()}}, llm.NewGenerator(completer, time.Second)))
	require.NoError(t, o.Initialize(context.Background()))

	convs := []*history.Conversation{history.NewConversation(), history.NewConversation()}
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := o.Ask(context.Background(), convs[i%2], fmt.Sprintf("question %d about echo", i))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, convs[0].Len())
	assert.Equal(t, 5, convs[1].Len())
}

func TestFromConfig_OfflineComponents(t *testing.T) {
	cfg := config.Default()
	cfg.Embedder.Type = config.EmbedderTFIDF
	cfg.Corpus.Dir = t.TempDir()

	o, cleanup, err := FromConfig(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, StateUninitialized, o.State())
	err = o.Initialize(context.Background())
	assert.ErrorIs(t, err, models.ErrInitialization)
}

func TestNewStore_UnknownType(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Type = "qdrant"
	_, cleanup, err := NewStore(context.Background(), cfg)
	assert.Error(t, err)
	assert.NotNil(t, cleanup)
}
