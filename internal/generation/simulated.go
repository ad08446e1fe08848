package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Simulated produces placeholder materials without calling any service.
// It is meant for local runs and demos.
type Simulated struct{}

func (Simulated) Generate(ctx context.Context, req Request) (Materials, error) {
	if err := ctx.Err(); err != nil {
		return Materials{}, err
	}
	keys := VersionKeys(req.VersionCount)
	c := Content{
		LeveledTexts:           map[string]LeveledText{},
		ComprehensionQuestions: map[string][]Question{},
		SupportMaterials:       map[string]SupportMaterial{},
		CoreTheme:              runePrefix(req.OriginalText, 50),
	}
	title := fmt.Sprintf("%s - %s...", req.TargetGrade, runePrefix(req.OriginalText, 20))
	n := utf8.RuneCountInString(req.OriginalText)
	for i, k := range keys {
		var body string
		switch i {
		case 0:
			body = runePrefix(req.OriginalText, 200) + " [simplified]"
		case 1:
			body = runePrefix(req.OriginalText, 400)
		default:
			body = req.OriginalText + " [extended with further discussion]"
		}
		c.LeveledTexts[k] = LeveledText{
			Title:        title,
			Content:      body,
			WordCount:    n * (7 + 3*i) / 10,
			ReadingLevel: k,
		}
		c.ComprehensionQuestions[k+"_questions"] = []Question{{
			Question:    "What is the text mainly about?",
			Type:        "short_answer",
			Answer:      c.CoreTheme,
			Explanation: "Look at the first paragraph.",
		}}
	}
	c.SupportMaterials[keys[0]+"_materials"] = SupportMaterial{VocabularyList: []Vocabulary{{
		Word:       "keyword",
		Definition: "the most important word in a passage",
		Example:    "The keyword of this sentence is...",
	}}}

	b, err := json.Marshal(c)
	if err != nil {
		return Materials{}, err
	}
	return NewMaterials(b)
}

func runePrefix(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
