package translator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/lingobridge/backend/internal/model/translation"
)

const defaultRemoteTimeout = 20 * time.Second

const remoteSystemPrompt = "You are a professional medical interpreter. " +
	"Translate the user's message from {source} to {target} for a clinical " +
	"conversation in the {context} specialty. Preserve medical terminology " +
	"precisely, keep the register appropriate for a provider-patient exchange, " +
	"and output only the translated text with no commentary."

// RemoteTranslator runs translations through the configured chat model. It is
// the primary path whenever the device is not offline.
type RemoteTranslator struct {
	chain   compose.Runnable[map[string]any, *schema.Message]
	timeout time.Duration
}

// NewRemoteTranslator compiles the prompt/model chain once; individual calls
// only invoke it.
func NewRemoteTranslator(ctx context.Context, chatModel model.ChatModel, timeout time.Duration) (*RemoteTranslator, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(remoteSystemPrompt),
		schema.UserMessage("{text}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile translation chain: %w", err)
	}

	if timeout <= 0 {
		timeout = defaultRemoteTimeout
	}

	return &RemoteTranslator{chain: runnable, timeout: timeout}, nil
}

func (r *RemoteTranslator) Name() string { return "remote" }

func (r *RemoteTranslator) Translate(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	medicalContext := req.MedicalContext
	if medicalContext == "" {
		medicalContext = "general"
	}

	start := time.Now()
	response, err := r.chain.Invoke(ctx, map[string]any{
		"source":  req.SourceLanguage,
		"target":  req.TargetLanguage,
		"context": medicalContext,
		"text":    req.Text,
	})
	if err != nil {
		return Result{}, fmt.Errorf("remote translation: %w", err)
	}

	translated := strings.TrimSpace(response.Content)
	if translated == "" {
		return Result{}, fmt.Errorf("remote translation: %w: empty response", ErrTranslationFailed)
	}

	latency := time.Since(start)
	log.Printf("[translator] remote ok %s->%s latency=%s length=%d", req.SourceLanguage, req.TargetLanguage, latency, len(translated))

	return Result{
		TranslatedText: translated,
		Confidence:     translation.ConfidenceHigh,
		Latency:        latency,
	}, nil
}
