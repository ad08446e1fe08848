package generation

import (
	"context"
	"fmt"
	"strings"

	"reading-leveler/internal/llm"
)

var versionOrder = []string{"basic", "standard", "advanced", "extension"}

const systemPrompt = `You write leveled reading materials for school teachers.
Rewrite the source text into %d versions for readers at %s, using the keys %s.
Reply with a single JSON object and nothing else, shaped like:
{
  "leveled_texts": {"<version>": {"title": "", "content": "", "word_count": 0, "reading_level": ""}},
  "comprehension_questions": {"<version>_questions": [{"question": "", "type": "choice|short_answer|open_ended", "options": [], "answer": "", "explanation": ""}]},
  "support_materials": {"<version>_materials": {"vocabulary_list": [{"word": "", "pinyin": "", "definition": "", "example": ""}]}},
  "core_theme": ""
}
Write in the language of the source text.`

// LLMGenerator asks a chat model for the materials directly.
type LLMGenerator struct {
	client llm.Client
}

func NewLLMGenerator(client llm.Client) *LLMGenerator {
	return &LLMGenerator{client: client}
}

// VersionKeys returns the version keys used for n versions.
func VersionKeys(n int) []string {
	if n < 1 {
		n = 1
	}
	if n > len(versionOrder) {
		n = len(versionOrder)
	}
	return append([]string(nil), versionOrder[:n]...)
}

func (g *LLMGenerator) Generate(ctx context.Context, req Request) (Materials, error) {
	keys := VersionKeys(req.VersionCount)
	msgs := []llm.Message{
		{Role: llm.RoleSystem, Content: fmt.Sprintf(systemPrompt, len(keys), req.TargetGrade, strings.Join(keys, ", "))},
		{Role: llm.RoleUser, Content: req.OriginalText},
	}
	resp, err := g.client.Generate(ctx, msgs)
	if err != nil {
		return Materials{}, fmt.Errorf("llm generate: %w", err)
	}

	raw := stripCodeFence(resp.Content)
	m, err := NewMaterials([]byte(raw))
	if err != nil {
		return Materials{}, fmt.Errorf("llm reply (%s): %w", resp.Model, err)
	}
	return m, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
