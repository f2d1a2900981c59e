package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"pdf-rag/internal/history"
	"pdf-rag/internal/models"
	"pdf-rag/internal/pipeline"
)

// asker answers a question within a conversation
type asker interface {
	Ask(ctx context.Context, conv *history.Conversation, question string) (*models.Response, []history.Turn, error)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive question session",
	Long: `Indexes the corpus and then reads questions from standard input until
"exit" or "quit". Type /history to review the conversation and /reset to clear it.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	o, cleanup, err := pipeline.FromConfig(ctx, appConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	cmd.Printf("Indexing documents in %s...\n", appConfig.Corpus.Dir)
	if err := o.Initialize(ctx); err != nil {
		return err
	}

	return runInteractiveMode(ctx, o, cmd.InOrStdin(), cmd.OutOrStdout())
}

func runInteractiveMode(ctx context.Context, a asker, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	conv := history.NewConversation()

	fmt.Fprintln(out, "PDF Assistant - Ask questions about your documents (type 'exit' to quit)")

	for {
		fmt.Fprint(out, "\n> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(input) {
		case "exit", "quit":
			return nil
		case "":
			continue
		case "/history":
			printHistory(out, conv.Turns())
			continue
		case "/reset":
			conv = history.NewConversation()
			fmt.Fprintln(out, "Started a new conversation")
			continue
		}

		// Show "thinking" indicator
		fmt.Fprint(out, "Searching documents... ")

		response, _, err := a.Ask(ctx, conv, input)
		if err != nil {
			fmt.Fprintf(out, "\rError: %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}

		fmt.Fprint(out, "\r"+formatAnswer(response))
	}

	return scanner.Err()
}

func printHistory(out io.Writer, turns []history.Turn) {
	if len(turns) == 0 {
		fmt.Fprintln(out, "No questions asked yet")
		return
	}
	for i, t := range turns {
		fmt.Fprintf(out, "%d. Q: %s\n   A: %s\n", i+1, t.Question, t.Answer)
	}
}
