package llm

import "fmt"

type unsupportedProviderError string

func (e unsupportedProviderError) Error() string {
	return fmt.Sprintf("llm: unsupported provider type %q (supported: anthropic, openai, ollama, gemini)", string(e))
}
