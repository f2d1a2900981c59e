package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"pdf-rag/internal/models"
)

// Turn is one answered question
type Turn struct {
	Question string               `json:"question"`
	Answer   string               `json:"answer"`
	Sources  []models.ScoredChunk `json:"sources,omitempty"`
	AskedAt  time.Time            `json:"asked_at"`
}

// Conversation is an append-only sequence of turns.
// Turns on the same conversation are serialised by Exchange.
type Conversation struct {
	ID        uuid.UUID
	CreatedAt time.Time

	turn  sync.Mutex
	mu    sync.RWMutex
	turns []Turn
}

// NewConversation creates an empty conversation
func NewConversation() *Conversation {
	return &Conversation{ID: uuid.New(), CreatedAt: time.Now()}
}

// FromPairs rebuilds a conversation from a [question, answer] transcript
func FromPairs(pairs [][2]string) *Conversation {
	c := NewConversation()
	for _, p := range pairs {
		c.turns = append(c.turns, Turn{Question: p[0], Answer: p[1]})
	}
	return c
}

// Exchange runs fn while holding the conversation's turn lock and records
// the turn only when fn succeeds.
func (c *Conversation) Exchange(question string, fn func() (Turn, error)) (Turn, error) {
	c.turn.Lock()
	defer c.turn.Unlock()

	t, err := fn()
	if err != nil {
		return Turn{}, err
	}
	t.Question = question
	if t.AskedAt.IsZero() {
		t.AskedAt = time.Now()
	}
	c.Append(t)
	return t, nil
}

// Append adds a completed turn
func (c *Conversation) Append(t Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, t)
}

// Turns returns a copy of the recorded turns, oldest first
func (c *Conversation) Turns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Turn, len(c.turns))
	copy(out, c.turns)
	return out
}

// Pairs returns the transcript as [question, answer] pairs
func (c *Conversation) Pairs() [][2]string {
	turns := c.Turns()
	out := make([][2]string, len(turns))
	for i, t := range turns {
		out[i] = [2]string{t.Question, t.Answer}
	}
	return out
}

// Len returns the number of recorded turns
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.turns)
}
