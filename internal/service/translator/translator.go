package translator

import (
	"context"
	"errors"
	"log"
	"time"

	connectivityModel "github.com/lingobridge/backend/internal/model/connectivity"
	"github.com/lingobridge/backend/internal/model/translation"
)

// ErrTranslationFailed is returned when every configured path errored.
var ErrTranslationFailed = errors.New("translation failed")

// Request carries one utterance into a translation path.
type Request struct {
	Text           string
	SourceLanguage string
	TargetLanguage string
	MedicalContext string
}

// Result is the uniform contract every path resolves to.
type Result struct {
	TranslatedText string
	Confidence     translation.Confidence
	Latency        time.Duration
}

// Translator is the single polymorphic capability behind both the remote
// service and the on-device fallback.
type Translator interface {
	Name() string
	Translate(ctx context.Context, req Request) (Result, error)
}

// SelectPath applies the connection-quality policy: anything short of offline
// prefers the remote path, offline (or a missing remote) uses the edge path.
func SelectPath(remote, edge Translator, state connectivityModel.State) Translator {
	if remote == nil || state.Offline() {
		return edge
	}
	return remote
}

type fallbackTranslator struct {
	primary   Translator
	secondary Translator
}

// WithFallback wraps the remote path so a single failure retries once on the
// edge path before surfacing to the sender.
func WithFallback(primary, secondary Translator) Translator {
	if primary == nil {
		return secondary
	}
	return &fallbackTranslator{primary: primary, secondary: secondary}
}

func (f *fallbackTranslator) Name() string { return f.primary.Name() }

func (f *fallbackTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	result, err := f.primary.Translate(ctx, req)
	if err == nil {
		return result, nil
	}
	if f.secondary == nil {
		return Result{}, err
	}

	log.Printf("[translator] %s failed, retrying on %s: %v", f.primary.Name(), f.secondary.Name(), err)
	return f.secondary.Translate(ctx, req)
}
