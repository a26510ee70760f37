package translator

import (
	"context"
	"strings"
	"time"

	"github.com/lingobridge/backend/internal/model/translation"
)

const (
	defaultPerRuneDelay = 500 * time.Microsecond
	defaultMaxDelay     = 250 * time.Millisecond
)

// EdgeTranslator is the on-device path: dictionary-driven, no network, crude
// but predictable. All tables are immutable so concurrent calls are safe.
type EdgeTranslator struct {
	perRuneDelay time.Duration
	maxDelay     time.Duration
}

// NewEdgeTranslator builds the fallback path with its default latency model:
// processing time grows with input length up to a soft cap, so callers can
// apply timeouts.
func NewEdgeTranslator() *EdgeTranslator {
	return &EdgeTranslator{perRuneDelay: defaultPerRuneDelay, maxDelay: defaultMaxDelay}
}

// NewEdgeTranslatorWithDelay overrides the latency model, mainly for tests.
func NewEdgeTranslatorWithDelay(perRune, max time.Duration) *EdgeTranslator {
	return &EdgeTranslator{perRuneDelay: perRune, maxDelay: max}
}

func (e *EdgeTranslator) Name() string { return "edge" }

func (e *EdgeTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	if err := e.simulateInference(ctx, req.Text); err != nil {
		return Result{}, err
	}

	pair := req.SourceLanguage + "-" + req.TargetLanguage
	textLower := strings.ToLower(strings.TrimSpace(req.Text))

	var translated string
	confidence := translation.ConfidenceLow

	if table, ok := phrases[pair]; ok {
		if hit, ok := table[textLower]; ok {
			translated = hit
			confidence = translation.ConfidenceMedium
		} else {
			var matched int
			translated, matched = translateWordByWord(table, req.Text)
			if matched > 0 {
				confidence = translation.ConfidenceMedium
			}
		}
	} else {
		// Unknown pair: pass the text through rather than fail; the relay
		// surfaces the low confidence to the receiving side.
		translated = req.Text
	}

	translated = applyMedicalTerms(req.Text, translated, req.MedicalContext, req.TargetLanguage)

	return Result{
		TranslatedText: translated,
		Confidence:     confidence,
		Latency:        time.Since(start),
	}, nil
}

// simulateInference holds the call for a duration proportional to input size,
// honoring cancellation. Mirrors the real on-device model cost profile.
func (e *EdgeTranslator) simulateInference(ctx context.Context, text string) error {
	if e.perRuneDelay <= 0 {
		return nil
	}

	delay := time.Duration(len([]rune(text))) * e.perRuneDelay
	if delay > e.maxDelay {
		delay = e.maxDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// translateWordByWord swaps individual words found in the table and keeps the
// rest, returning how many words matched.
func translateWordByWord(table map[string]string, text string) (string, int) {
	words := strings.Fields(text)
	out := make([]string, 0, len(words))
	matched := 0

	for _, word := range words {
		trimmed := strings.ToLower(strings.Trim(word, ".,!?¿¡;:"))
		if hit, ok := table[trimmed]; ok {
			out = append(out, hit)
			matched++
			continue
		}
		out = append(out, word)
	}

	return strings.Join(out, " "), matched
}

// applyMedicalTerms replaces specialty terms spotted in the source text with
// their curated translations in the output.
func applyMedicalTerms(sourceText, translated, medicalContext, targetLanguage string) string {
	terms, ok := medicalTerms[medicalContext]
	if !ok {
		return translated
	}

	sourceLower := strings.ToLower(sourceText)
	for term, byLanguage := range terms {
		target, ok := byLanguage[targetLanguage]
		if !ok || !strings.Contains(sourceLower, term) {
			continue
		}
		translated = strings.ReplaceAll(translated, term, target)
	}
	return translated
}
