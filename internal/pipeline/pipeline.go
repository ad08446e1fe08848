package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"reading-leveler/internal/generation"
	"reading-leveler/internal/history"
	"reading-leveler/internal/logger"
	"reading-leveler/internal/packaging"
	"reading-leveler/internal/usage"
)

const (
	DefaultVersions = 3
	MaxVersions     = 4

	themeTitleRunes = 50
)

var (
	ErrEmptyText       = errors.New("original text is empty")
	ErrInvalidVersions = fmt.Errorf("version count must be between 1 and %d", MaxVersions)
)

// QuotaError reports a request refused by the usage limits.
type QuotaError struct {
	Reason string
}

func (e *QuotaError) Error() string { return e.Reason }

// StageError wraps a failure of an external step (generation or packaging).
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string { return e.Stage + ": " + e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

const (
	StageGenerate = "generate materials"
	StagePackage  = "package materials"
)

// Quota hands out usage slots. An allowed Reserve is always followed by
// exactly one Commit or Release.
type Quota interface {
	Reserve(ctx context.Context) (usage.Decision, error)
	Release()
	Commit(ctx context.Context) (usage.Snapshot, error)
}

type ThemeSaver interface {
	Save(ctx context.Context, title, content, grade string) (history.Theme, error)
}

// Pipeline runs one generation request end to end.
type Pipeline struct {
	gen  generation.Generator
	pack packaging.Packager
	now  func() time.Time
}

func New(gen generation.Generator, pack packaging.Packager) *Pipeline {
	return &Pipeline{gen: gen, pack: pack, now: time.Now}
}

func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

type Result struct {
	ArchiveName string
	Archive     []byte
	Theme       history.Theme
	Usage       usage.Snapshot
}

// Run validates req, reserves a usage slot, saves the submission as a theme,
// generates and packages the materials and finally records one use.
// Nothing is recorded when any step fails. The theme keeps the text exactly
// as submitted.
func (p *Pipeline) Run(ctx context.Context, quota Quota, themes ThemeSaver, req generation.Request) (*Result, error) {
	submitted := req.OriginalText
	req, err := Normalize(req)
	if err != nil {
		return nil, err
	}

	d, err := quota.Reserve(ctx)
	if err != nil {
		return nil, fmt.Errorf("check usage: %w", err)
	}
	if !d.Allowed {
		return nil, &QuotaError{Reason: d.Reason}
	}
	reserved := true
	defer func() {
		if reserved {
			quota.Release()
		}
	}()

	theme, err := themes.Save(ctx, history.Truncate(req.OriginalText, themeTitleRunes), submitted, req.TargetGrade)
	if err != nil {
		return nil, fmt.Errorf("save theme: %w", err)
	}

	start := p.now()
	materials, err := p.gen.Generate(ctx, req)
	if err != nil {
		return nil, &StageError{Stage: StageGenerate, Err: err}
	}
	archive, err := p.pack.Package(ctx, materials)
	if err != nil {
		return nil, &StageError{Stage: StagePackage, Err: err}
	}

	reserved = false
	snap, err := quota.Commit(ctx)
	if err != nil {
		return nil, fmt.Errorf("record usage: %w", err)
	}

	done := p.now()
	logger.LogEvent(logrus.InfoLevel, "materials generated", logrus.Fields{
		"grade":       req.TargetGrade,
		"versions":    req.VersionCount,
		"text_runes":  utf8.RuneCountInString(req.OriginalText),
		"archive_len": len(archive),
		"duration_ms": done.Sub(start).Milliseconds(),
		"usage":       snap.String(),
	})

	return &Result{
		ArchiveName: ArchiveName(done),
		Archive:     archive,
		Theme:       theme,
		Usage:       snap,
	}, nil
}

// Normalize trims the text and applies the version count defaults.
func Normalize(req generation.Request) (generation.Request, error) {
	if strings.TrimSpace(req.OriginalText) == "" {
		return req, ErrEmptyText
	}
	req.OriginalText = strings.TrimSpace(req.OriginalText)
	req.TargetGrade = strings.TrimSpace(req.TargetGrade)
	if req.VersionCount <= 0 {
		req.VersionCount = DefaultVersions
	}
	if req.VersionCount > MaxVersions {
		return req, ErrInvalidVersions
	}
	return req, nil
}

func ArchiveName(t time.Time) string {
	return fmt.Sprintf("leveled-reading-%d.zip", t.UnixMilli())
}
