package packaging

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"reading-leveler/internal/generation"
)

const (
	MaxFileSize  = 10 * 1024 * 1024
	MaxTotalSize = 50 * 1024 * 1024
	MaxFiles     = 1000
)

var ErrFileTooLarge = errors.New("file exceeds size limit")

var versionNames = map[string]string{
	"basic":     "Basic",
	"standard":  "Standard",
	"advanced":  "Challenge",
	"extension": "Extension",
}

var versionRank = map[string]int{"basic": 0, "standard": 1, "advanced": 2, "extension": 3}

// VersionName returns the display name for a version key. Unknown keys are
// returned unchanged.
func VersionName(key string) string {
	if n, ok := versionNames[key]; ok {
		return n
	}
	return key
}

// Builder lays out generated materials as a ZIP archive.
type Builder struct {
	now func() time.Time
	loc *time.Location
}

type BuilderOption func(*Builder)

func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

func WithLocation(loc *time.Location) BuilderOption {
	return func(b *Builder) {
		if loc != nil {
			b.loc = loc
		}
	}
}

func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{now: time.Now, loc: time.Local}
	for _, o := range opts {
		o(b)
	}
	return b
}

func (b *Builder) Build(m generation.Materials) ([]byte, error) {
	c, err := m.Decode()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, body string) error {
		if len(body) > MaxFileSize {
			return fmt.Errorf("%s: %w", name, ErrFileTooLarge)
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: b.now()})
		if err != nil {
			return err
		}
		_, err = w.Write([]byte(body))
		return err
	}

	for _, key := range sortedVersions(c.LeveledTexts) {
		text := c.LeveledTexts[key]
		name := VersionName(key)
		title := text.Title
		if title == "" {
			title = "Article"
		}
		if err := write(fmt.Sprintf("reading_%s_%s.md", name, safeName(title)), articleMarkdown(name, text)); err != nil {
			return nil, err
		}
		if err := write(fmt.Sprintf("reading_%s_plain.txt", name), text.Title+"\n\n"+text.Content); err != nil {
			return nil, err
		}
	}

	files := []struct{ name, body string }{
		{"comprehension_questions.md", questionsMarkdown(c.ComprehensionQuestions)},
		{"vocabulary.md", vocabularyMarkdown(c.SupportMaterials)},
		{"teacher_guide.md", b.teacherGuide(c)},
		{"README.txt", readme},
	}
	for _, f := range files {
		if err := write(f.name, f.body); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	return buf.Bytes(), nil
}

func articleMarkdown(version string, t generation.LeveledText) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", t.Title)
	fmt.Fprintf(&sb, "**Version:** %s\n\n", version)
	level := t.ReadingLevel
	if level == "" {
		level = "standard"
	}
	fmt.Fprintf(&sb, "Words: %d | Reading level: %s\n\n---\n\n", t.WordCount, level)
	for _, p := range strings.Split(t.Content, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			sb.WriteString(p)
			sb.WriteString("\n\n")
		}
	}
	return sb.String()
}

func questionsMarkdown(qs map[string][]generation.Question) string {
	var sb strings.Builder
	sb.WriteString("# Comprehension Questions\n")
	for _, key := range sortedGroups(qs, "_questions") {
		list := qs[key]
		if len(list) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n## %s\n\n", VersionName(strings.TrimSuffix(key, "_questions")))
		for i, q := range list {
			fmt.Fprintf(&sb, "%d. **%s**\n", i+1, q.Question)
			if q.Type == "choice" {
				for j, opt := range q.Options {
					fmt.Fprintf(&sb, "   - %c. %s\n", 'A'+j, opt)
				}
			}
			if q.Answer != "" {
				fmt.Fprintf(&sb, "   - Answer: %s\n", q.Answer)
			}
			if q.Explanation != "" {
				fmt.Fprintf(&sb, "   - Explanation: %s\n", q.Explanation)
			}
		}
	}
	return sb.String()
}

func vocabularyMarkdown(sm map[string]generation.SupportMaterial) string {
	var sb strings.Builder
	sb.WriteString("# Vocabulary\n")
	for _, key := range sortedGroups(sm, "_materials") {
		list := sm[key].VocabularyList
		fmt.Fprintf(&sb, "\n## %s\n\n", VersionName(strings.TrimSuffix(key, "_materials")))
		if len(list) == 0 {
			continue
		}
		sb.WriteString("| Word | Pronunciation | Definition | Example |\n|---|---|---|---|\n")
		for _, v := range list {
			fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n", cell(v.Word), cell(v.Pinyin), cell(v.Definition), cell(v.Example))
		}
	}
	return sb.String()
}

func (b *Builder) teacherGuide(c *generation.Content) string {
	theme := c.CoreTheme
	if theme == "" {
		theme = "Custom theme"
	}
	return fmt.Sprintf(teacherGuide, b.now().In(b.loc).Format("2006-01-02 15:04"), theme)
}

const teacherGuide = `# Teacher Guide

## Lesson
- Generated: %s
- Theme: %s

## Suggested use

### Grouping
- Basic: for students who find reading difficult
- Standard: for most students
- Challenge: for confident readers

### Flow
1. Before class, hand out the version that fits each student.
2. In class, run small group discussions and let students share.
3. After class, use the comprehension questions to check understanding.

### Differentiation
- Let students move between versions at their own pace.
- Encourage students who finish the basic version to try the challenge version.
- Mix versions within discussion groups.

## Notes
Read every version before class and adjust to how students respond.
`

const readme = `Leveled reading materials

Files
1. reading_<version>_*.md     leveled articles
2. reading_<version>_plain.txt plain text copies
3. comprehension_questions.md  questions with answers
4. vocabulary.md               key vocabulary
5. teacher_guide.md            teaching suggestions

Assign each student the version that matches their reading level and
encourage them to try a harder one.
`

func sortedVersions[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(keys, func(k string) string { return k })
	return keys
}

func sortedGroups[V any](m map[string]V, suffix string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(keys, func(k string) string { return strings.TrimSuffix(k, suffix) })
	return keys
}

// sortKeys orders known versions first, then the rest alphabetically.
func sortKeys(keys []string, version func(string) string) {
	rank := func(k string) int {
		if r, ok := versionRank[version(k)]; ok {
			return r
		}
		return len(versionRank)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := rank(keys[i]), rank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})
}

func safeName(s string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "\n", " ")
	return strings.TrimSpace(r.Replace(s))
}

func cell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", "\\|"), "\n", " ")
}
