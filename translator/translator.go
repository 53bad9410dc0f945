package translator

import (
	"context"
	"errors"
	"fmt"

	"github.com/gigapi/gigapi-chat/config"
	"github.com/gigapi/gigapi-chat/core"
	"github.com/gigapi/gigapi-chat/metrics"
)

const (
	SourcePrimary  = "primary"
	SourceFallback = "fallback"
)

// Completer sends a prompt to a natural-language completion service
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Result is a translated statement together with the path that produced it
type Result struct {
	SQL    string `json:"sql"`
	Source string `json:"source"`
}

// Translator turns questions into SQL. It never fails: any error of the
// completion service falls through to the keyword rules.
type Translator struct {
	completer Completer
	metrics   *metrics.Metrics
}

// New returns a Translator. A nil completer means fallback only.
func New(c Completer, m *metrics.Metrics) *Translator {
	return &Translator{completer: c, metrics: m}
}

// Translate returns the SQL for question against table
func (t *Translator) Translate(ctx context.Context, question, table string, schema core.Schema) string {
	return t.TranslateWithSource(ctx, question, table, schema).SQL
}

func (t *Translator) TranslateWithSource(ctx context.Context, question, table string, schema core.Schema) Result {
	sql, err := t.primary(ctx, question, table, schema)
	if err == nil {
		t.count(SourcePrimary)
		return Result{SQL: sql, Source: SourcePrimary}
	}
	if !errors.Is(err, errNoCompleter) {
		core.Debugf(ctx, "completion failed for table %s, using fallback rules: %v", table, err)
	}
	t.count(SourceFallback)
	return Result{SQL: Fallback(question, table, schema), Source: SourceFallback}
}

var errNoCompleter = fmt.Errorf("%w: no completion service configured", core.ErrTranslationUnavailable)

func (t *Translator) primary(ctx context.Context, question, table string, schema core.Schema) (string, error) {
	if t.completer == nil {
		return "", errNoCompleter
	}
	text, err := t.completer.Complete(ctx, BuildPrompt(question, table, schema))
	if err != nil {
		return "", fmt.Errorf("%w: %v", core.ErrTranslationUnavailable, err)
	}
	sql := CleanSQL(text)
	if sql == "" {
		return "", fmt.Errorf("%w: empty completion", core.ErrTranslationUnavailable)
	}
	return sql, nil
}

func (t *Translator) count(source string) {
	if t.metrics != nil {
		t.metrics.Translations.WithLabelValues(source).Inc()
	}
}

// NewFromConfig wires the OpenAI completer when an API key is configured
func NewFromConfig(cfg config.CompletionConfiguration, m *metrics.Metrics) *Translator {
	if c := NewOpenAI(cfg); c != nil {
		return New(c, m)
	}
	return New(nil, m)
}
