package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/MrWong99/voxctl/pkg/provider/stt"
)

// Compile-time assertion that ServerLoader satisfies stt.Loader.
var _ stt.Loader = (*ServerLoader)(nil)

// ServerLoader connects streams to a running whisper-server.
type ServerLoader struct {
	serverURL string
	cfg       stt.Config
	opts      options
}

// NewServerLoader returns a loader for the whisper-server at serverURL
// (e.g. "http://localhost:8080"). cfg.Model, when set, is forwarded as the
// model hint; otherwise the server uses whichever model it was started with.
func NewServerLoader(serverURL string, cfg stt.Config, opts ...Option) *ServerLoader {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &ServerLoader{serverURL: serverURL, cfg: cfg, opts: o}
}

// Load validates the configuration. No connection is made until the first
// segment is transcribed.
func (l *ServerLoader) Load(ctx context.Context) (stt.Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if l.serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	lang := l.cfg.Language
	if lang == "" {
		lang = defaultLanguage
	}
	tr := &serverTranscriber{
		serverURL:  l.serverURL,
		model:      l.cfg.Model,
		language:   lang,
		sampleRate: l.cfg.WithDefaults().SampleRate,
		client:     l.opts.httpClient,
	}
	return newEngine(tr, l.cfg, l.opts, nil), nil
}

// serverTranscriber posts segments as WAV uploads.
type serverTranscriber struct {
	serverURL  string
	model      string
	language   string
	sampleRate int
	client     *http.Client
}

func (s *serverTranscriber) transcribe(ctx context.Context, samples []float32) (string, error) {
	wav := encodeWAV(pcm16ToBytes(floatToPCM16(samples)), s.sampleRate, 1)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}
	if s.language != "" {
		if err := mw.WriteField("language", s.language); err != nil {
			return "", fmt.Errorf("whisper: write language field: %w", err)
		}
	}
	if s.model != "" {
		if err := mw.WriteField("model", s.model); err != nil {
			return "", fmt.Errorf("whisper: write model field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+"/inference", &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whisper: server returned HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("whisper: read response body: %w", err)
	}
	var result struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("whisper: parse JSON response: %w", err)
	}
	return result.Text, nil
}
