package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

var (
	// ErrOverloaded means every credential in the pool failed; the user gets
	// the fixed "try again later" message, never a raw error.
	ErrOverloaded = errors.New("critique service overloaded")
	// ErrTranscription means the audio could not be understood; the critique
	// engine is never called with a failure sentinel in place of real speech.
	ErrTranscription = errors.New("audio transcription failed")
)

const audioAttachedMarker = "[АУДИООТВЕТ УЧЕНИКА ПРИКРЕПЛЕН К ЗАПРОСУ]"

// CritiqueEngine is the generative service behind the review pipeline. The
// API key is an argument so the pipeline can rotate credentials per attempt.
type CritiqueEngine interface {
	Review(ctx context.Context, apiKey, prompt, audioURL string) (string, error)
	Transcribe(ctx context.Context, apiKey, audioURL string) (string, error)
}

// MediaStore stages the voice recording where the engine can fetch it.
type MediaStore interface {
	Upload(ctx context.Context, data []byte, contentType string) (key, url string, err error)
	Delete(ctx context.Context, key string) error
}

// ReviewService turns a task, its prompt template and the student's voice
// answer into critique text, rotating through the credential pool on failure.
type ReviewService struct {
	engine         CritiqueEngine
	media          MediaStore
	apiKeys        []string
	transcribeMode bool
	log            *slog.Logger
}

func NewReviewService(engine CritiqueEngine, media MediaStore, apiKeys []string, transcribeMode bool, log *slog.Logger) *ReviewService {
	return &ReviewService{
		engine:         engine,
		media:          media,
		apiKeys:        apiKeys,
		transcribeMode: transcribeMode,
		log:            log,
	}
}

// Review runs the full pipeline for one voice answer. The uploaded media
// object is removed on every exit path.
func (s *ReviewService) Review(ctx context.Context, promptTemplate, taskText string, audio []byte, contentType string) (string, error) {
	key, audioURL, err := s.media.Upload(ctx, audio, contentType)
	if err != nil {
		return "", fmt.Errorf("stage audio: %w", err)
	}
	defer func() {
		if err := s.media.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.log.Warn("cleanup staged audio failed", "key", key, "err", err)
		}
	}()

	if s.transcribeMode {
		text, err := s.transcribe(ctx, audioURL)
		if err != nil {
			return "", err
		}
		prompt := formatPrompt(promptTemplate, taskText, text)
		return s.generate(ctx, prompt, "")
	}

	prompt := formatPrompt(promptTemplate, taskText, audioAttachedMarker)
	return s.generate(ctx, prompt, audioURL)
}

// generate tries each credential in order and stops at the first success.
// Any engine error, whatever its kind, advances to the next key.
func (s *ReviewService) generate(ctx context.Context, prompt, audioURL string) (string, error) {
	for _, key := range s.apiKeys {
		text, err := s.engine.Review(ctx, key, prompt, audioURL)
		if err != nil {
			s.log.Warn("critique attempt failed, rotating credential", "key_suffix", keySuffix(key), "err", err)
			continue
		}
		return text, nil
	}
	s.log.Error("all critique credentials exhausted")
	return "", ErrOverloaded
}

func (s *ReviewService) transcribe(ctx context.Context, audioURL string) (string, error) {
	for _, key := range s.apiKeys {
		text, err := s.engine.Transcribe(ctx, key, audioURL)
		if err != nil {
			s.log.Warn("transcription attempt failed, rotating credential", "key_suffix", keySuffix(key), "err", err)
			continue
		}
		if strings.TrimSpace(text) == "" {
			return "", ErrTranscription
		}
		return text, nil
	}
	return "", ErrTranscription
}

func formatPrompt(template, taskText, userText string) string {
	prompt := strings.ReplaceAll(template, "{task_text}", taskText)
	return strings.ReplaceAll(prompt, "{user_text}", userText)
}

func keySuffix(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[len(key)-4:]
}
