package server

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"

	"pdf-rag/internal/history"
	"pdf-rag/internal/models"
	"pdf-rag/internal/pipeline"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/phuslu/log"
)

// Pipeline is the question answering service behind the HTTP API
type Pipeline interface {
	State() pipeline.State
	Ask(ctx context.Context, conv *history.Conversation, question string) (*models.Response, []history.Turn, error)
}

// Config configures the HTTP adapter
type Config struct {
	AppName      string
	AllowOrigins []string
	AccessLog    bool
}

// Server exposes the pipeline over HTTP
type Server struct {
	app           *fiber.App
	pipeline      Pipeline
	conversations *history.Store
}

type askRequest struct {
	Question string      `json:"question"`
	History  [][2]string `json:"history"`
}

type source struct {
	Document string  `json:"document"`
	Page     int     `json:"page"`
	Score    float64 `json:"score"`
	Content  string  `json:"content"`
}

// New creates the fiber app and registers the routes
func New(p Pipeline, conversations *history.Store, cfg Config) *Server {
	if cfg.AppName == "" {
		cfg.AppName = "pdfqa"
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowOrigins = []string{"*"}
	}

	s := &Server{
		app: fiber.New(fiber.Config{
			AppName: cfg.AppName,
		}),
		pipeline:      p,
		conversations: conversations,
	}

	s.app.Use(recover.New())
	if cfg.AccessLog {
		s.app.Use(fiberlogger.New())
	}
	s.app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
	}))

	s.app.Post("/ask", s.ask)

	api := s.app.Group("/api/v1")
	api.Get("/health", s.health)
	api.Post("/conversations", s.createConversation)
	api.Get("/conversations/:id", s.getConversation)
	api.Delete("/conversations/:id", s.deleteConversation)
	api.Post("/conversations/:id/ask", s.askInConversation)

	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves HTTP on addr until Shutdown is called
func (s *Server) Listen(addr string) error {
	log.Info().Str("addr", addr).Msg("http server listening")
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

// Shutdown stops accepting connections and waits for in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) health(c fiber.Ctx) error {
	state := s.pipeline.State()
	status := fiber.StatusOK
	if state != pipeline.StateReady {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(fiber.Map{
		"status": state.String(),
	})
}

// ask is the stateless endpoint: the client sends the transcript and gets it back extended
func (s *Server) ask(c fiber.Ctx) error {
	var body askRequest
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	conv := history.FromPairs(body.History)
	resp, _, err := s.pipeline.Ask(c.Context(), conv, body.Question)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"history": conv.Pairs(),
		"answer":  resp.Answer,
		"sources": sources(resp.Sources),
	})
}

func (s *Server) createConversation(c fiber.Ctx) error {
	conv := s.conversations.Create()
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":         conv.ID.String(),
		"created_at": conv.CreatedAt,
	})
}

func (s *Server) getConversation(c fiber.Ctx) error {
	conv, ok := s.conversations.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
	}
	return c.JSON(fiber.Map{
		"id":    conv.ID.String(),
		"turns": conv.Turns(),
	})
}

func (s *Server) deleteConversation(c fiber.Ctx) error {
	if !s.conversations.Delete(c.Params("id")) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) askInConversation(c fiber.Ctx) error {
	conv, ok := s.conversations.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "conversation not found"})
	}

	var body struct {
		Question string `json:"question"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	resp, turns, err := s.pipeline.Ask(c.Context(), conv, body.Question)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"id":        conv.ID.String(),
		"answer":    resp.Answer,
		"sources":   sources(resp.Sources),
		"turns":     turns,
		"timestamp": resp.Timestamp,
	})
}

func sources(chunks []models.ScoredChunk) []source {
	out := make([]source, len(chunks))
	for i, sc := range chunks {
		out[i] = source{
			Document: filepath.Base(sc.Chunk.DocumentID),
			Page:     sc.Chunk.PageNumber,
			Score:    sc.Score,
			Content:  sc.Chunk.Content,
		}
	}
	return out
}

func errorResponse(c fiber.Ctx, err error) error {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotReady):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, models.ErrGenerationTimeout):
		return fiber.StatusGatewayTimeout
	case errors.Is(err, models.ErrGeneration), errors.Is(err, models.ErrEmbedding):
		return fiber.StatusBadGateway
	case errors.Is(err, models.ErrEmptyQuestion), errors.Is(err, models.ErrPromptTooLarge):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
