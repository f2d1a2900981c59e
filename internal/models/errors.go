package models

import "errors"

// Sentinel errors shared by the pipeline stages.
var (
	ErrIO                = errors.New("corpus unreadable")
	ErrParse             = errors.New("document unreadable")
	ErrEmbedding         = errors.New("embedding failed")
	ErrEmptyIndex        = errors.New("index is empty")
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrGeneration        = errors.New("generation failed")
	ErrInitialization    = errors.New("pipeline initialization failed")
	ErrNotReady          = errors.New("pipeline not ready")

	ErrInvalidChunking = errors.New("invalid chunking parameters")
	ErrInvalidK        = errors.New("k must be at least 1")
	ErrPromptTooLarge  = errors.New("prompt exceeds the model context window")
	ErrEmptyQuestion   = errors.New("question is empty")
)
