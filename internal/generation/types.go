package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Request is the payload sent to a generator.
type Request struct {
	OriginalText string `json:"original_text"`
	TargetGrade  string `json:"target_grade"`
	VersionCount int    `json:"version_count"`
}

// Generator turns a source text into leveled materials.
type Generator interface {
	Generate(ctx context.Context, req Request) (Materials, error)
}

// Materials is the generator output. It is kept as raw JSON so fields the
// packager knows about but this service does not survive the round trip.
type Materials struct {
	raw json.RawMessage
}

var _ json.Marshaler = Materials{}

var ErrNotObject = errors.New("materials must be a JSON object")

// NewMaterials validates that raw is a JSON object.
func NewMaterials(raw []byte) (Materials, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return Materials{}, ErrNotObject
	}
	cp := make(json.RawMessage, len(raw))
	copy(cp, raw)
	return Materials{raw: cp}, nil
}

func (m Materials) IsZero() bool { return len(m.raw) == 0 }

func (m Materials) Bytes() []byte { return m.raw }

func (m Materials) MarshalJSON() ([]byte, error) {
	if len(m.raw) == 0 {
		return []byte("{}"), nil
	}
	return m.raw, nil
}

func (m *Materials) UnmarshalJSON(b []byte) error {
	v, err := NewMaterials(b)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Decode returns the typed view of the materials.
func (m Materials) Decode() (*Content, error) {
	var c Content
	if len(m.raw) == 0 {
		return &c, nil
	}
	if err := json.Unmarshal(m.raw, &c); err != nil {
		return nil, fmt.Errorf("decode materials: %w", err)
	}
	return &c, nil
}

// Content mirrors the document shape produced by the workflow.
type Content struct {
	LeveledTexts           map[string]LeveledText     `json:"leveled_texts"`
	ComprehensionQuestions map[string][]Question      `json:"comprehension_questions"`
	SupportMaterials       map[string]SupportMaterial `json:"support_materials"`
	CoreTheme              string                     `json:"core_theme,omitempty"`
}

type LeveledText struct {
	Title        string `json:"title"`
	Content      string `json:"content"`
	WordCount    int    `json:"word_count,omitempty"`
	ReadingLevel string `json:"reading_level,omitempty"`
}

type Question struct {
	Question    string   `json:"question"`
	Type        string   `json:"type,omitempty"`
	Options     []string `json:"options,omitempty"`
	Answer      string   `json:"answer,omitempty"`
	Explanation string   `json:"explanation,omitempty"`
}

type SupportMaterial struct {
	VocabularyList []Vocabulary `json:"vocabulary_list"`
}

type Vocabulary struct {
	Word       string `json:"word"`
	Pinyin     string `json:"pinyin,omitempty"`
	Definition string `json:"definition,omitempty"`
	Example    string `json:"example,omitempty"`
}
