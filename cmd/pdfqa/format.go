package main

import (
	"fmt"
	"strings"

	"pdf-rag/internal/models"
	"pdf-rag/internal/prompt"
)

func formatAnswer(response *models.Response) string {
	var sb strings.Builder

	sb.WriteString(response.Answer)
	sb.WriteString("\n")

	if len(response.Sources) > 0 {
		sb.WriteString("\nSources:\n")
		for i, source := range response.Sources {
			sb.WriteString(fmt.Sprintf("  %d. %s (score %.2f)\n",
				i+1, prompt.SourceLabel(source.Chunk), source.Score))
		}
	}

	return sb.String()
}
