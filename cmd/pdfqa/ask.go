package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"pdf-rag/internal/history"
	"pdf-rag/internal/pipeline"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question and exit",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "output the response as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.Join(args, " ")

	o, cleanup, err := pipeline.FromConfig(ctx, appConfig)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := o.Initialize(ctx); err != nil {
		return err
	}

	response, _, err := o.Ask(ctx, history.NewConversation(), question)
	if err != nil {
		return fmt.Errorf("failed to process query: %w", err)
	}

	if askJSON {
		data, err := json.MarshalIndent(response, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal response: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Print(formatAnswer(response))
	return nil
}
