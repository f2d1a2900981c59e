package prompt

import (
	"errors"
	"fmt"
	"strings"
)

const (
	ContextPlaceholder  = "{context}"
	QuestionPlaceholder = "{question}"
)

// DefaultTemplate is the llama RAG prompt used when no other template is configured
var DefaultTemplate = Template{
	Name: "rag-prompt-llama",
	Text: "[INST]<<SYS>> You are an assistant for question-answering tasks. " +
		"Use the following pieces of retrieved context to answer the question. " +
		"If you don't know the answer, just say that you don't know. " +
		"Use three sentences maximum and keep the answer concise.<</SYS>> \n" +
		"Question: {question} \nContext: {context} \nAnswer: [/INST]",
}

// Template is a prompt with {context} and {question} placeholders
type Template struct {
	Name string `json:"name"`
	Text string `json:"template"`
}

// Validate checks that both placeholders are present
func (t Template) Validate() error {
	if strings.TrimSpace(t.Text) == "" {
		return errors.New("prompt template is empty")
	}
	for _, p := range []string{ContextPlaceholder, QuestionPlaceholder} {
		if !strings.Contains(t.Text, p) {
			return fmt.Errorf("prompt template %q is missing placeholder %s", t.Name, p)
		}
	}
	return nil
}

// Render substitutes the placeholders in a single pass, so placeholder text
// inside the context or question is left untouched.
func (t Template) Render(context, question string) string {
	return strings.NewReplacer(
		ContextPlaceholder, context,
		QuestionPlaceholder, question,
	).Replace(t.Text)
}
