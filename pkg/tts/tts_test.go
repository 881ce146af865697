package tts_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/teslashibe/go-autocar/pkg/tts"
)

func TestMockProvider(t *testing.T) {
	mock := tts.NewMock()
	ctx := context.Background()

	t.Run("Synthesize returns audio", func(t *testing.T) {
		result, err := mock.Synthesize(ctx, "小心行人")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) == 0 {
			t.Error("expected audio data")
		}
		if result.CharCount != 4 {
			t.Errorf("expected 4 chars, got %d", result.CharCount)
		}
		if result.Format.Encoding != tts.EncodingMP3 {
			t.Errorf("expected mp3, got %s", result.Format.Encoding)
		}
	})

	t.Run("Health returns nil", func(t *testing.T) {
		if err := mock.Health(ctx); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("Calls are tracked", func(t *testing.T) {
		if len(mock.Calls()) != 2 {
			t.Errorf("expected 2 calls, got %d", len(mock.Calls()))
		}
		if mock.CallCount("Synthesize") != 1 {
			t.Errorf("expected 1 Synthesize call, got %d", mock.CallCount("Synthesize"))
		}
	})

	t.Run("Reset clears calls", func(t *testing.T) {
		mock.Reset()
		if len(mock.Calls()) != 0 {
			t.Error("expected calls to be cleared")
		}
	})
}

func TestMockWithError(t *testing.T) {
	testErr := errors.New("test error")
	mock := tts.WithError(testErr)
	ctx := context.Background()

	if _, err := mock.Synthesize(ctx, "Hello"); !errors.Is(err, testErr) {
		t.Errorf("expected test error, got %v", err)
	}
	if err := mock.Health(ctx); err == nil {
		t.Error("expected error")
	}
}

func TestMockWithLatency(t *testing.T) {
	mock := tts.WithLatency(tts.NewMock(), 50*time.Millisecond)

	t.Run("Synthesize has latency", func(t *testing.T) {
		start := time.Now()
		if _, err := mock.Synthesize(context.Background(), "Hello"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
			t.Errorf("expected at least 50ms latency, got %v", elapsed)
		}
	})

	t.Run("Context cancellation works", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		if _, err := mock.Synthesize(ctx, "Hello"); err == nil {
			t.Error("expected context deadline error")
		}
	})
}

func TestFunctionalOptions(t *testing.T) {
	cfg := tts.DefaultConfig()
	cfg.Apply(
		tts.WithAPIKey("key"),
		tts.WithVoice("cmn-TW-Wavenet-A"),
		tts.WithLanguage("zh-TW"),
		tts.WithSpeakingRate(1.2),
		tts.WithOutputFormat(tts.EncodingLinear16),
		tts.WithRetry(5, time.Second),
	)

	if cfg.APIKey != "key" || cfg.VoiceID != "cmn-TW-Wavenet-A" || cfg.LanguageCode != "zh-TW" {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.SpeakingRate != 1.2 || cfg.OutputFormat != tts.EncodingLinear16 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.MaxRetries != 5 || cfg.RetryDelay != time.Second {
		t.Errorf("unexpected retry %d/%v", cfg.MaxRetries, cfg.RetryDelay)
	}
}

func TestConfigValidation(t *testing.T) {
	cfg := tts.DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
	if _, err := tts.NewOpenAI(); !errors.Is(err, tts.ErrNoAPIKey) {
		t.Errorf("NewOpenAI without key: %v", err)
	}
}

func TestEncodingFileExt(t *testing.T) {
	tests := map[tts.Encoding]string{
		tts.EncodingMP3:      ".mp3",
		tts.EncodingLinear16: ".wav",
		tts.EncodingOggOpus:  ".ogg",
	}
	for enc, want := range tests {
		if got := enc.FileExt(); got != want {
			t.Errorf("%s.FileExt() = %s, want %s", enc, got, want)
		}
	}
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
		unauth    bool
	}{
		{429, true, false},
		{503, true, false},
		{401, false, true},
		{403, false, true},
		{400, false, false},
	}
	for _, tc := range tests {
		e := &tts.APIError{StatusCode: tc.status, Message: "m", Provider: "p"}
		if e.IsRetryable() != tc.retryable {
			t.Errorf("%d: IsRetryable = %v", tc.status, e.IsRetryable())
		}
		if e.IsUnauthorized() != tc.unauth {
			t.Errorf("%d: IsUnauthorized = %v", tc.status, e.IsUnauthorized())
		}
	}

	e := &tts.APIError{StatusCode: 400, Code: "bad_voice", Message: "unknown voice", Provider: "openai"}
	if !strings.Contains(e.Error(), "bad_voice") {
		t.Errorf("error string missing code: %s", e.Error())
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("empty chain", func(t *testing.T) {
		if _, err := tts.NewChain(); !errors.Is(err, tts.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("falls back", func(t *testing.T) {
		primary := tts.WithError(errors.New("primary down"))
		fallback := tts.NewMock()
		chain, err := tts.NewChain(primary, fallback)
		if err != nil {
			t.Fatal(err)
		}

		result, err := chain.Synthesize(ctx, "hi")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(result.Audio) == 0 {
			t.Error("expected audio from fallback")
		}
		if fallback.CallCount("Synthesize") != 1 {
			t.Error("fallback not called")
		}
		if err := chain.Health(ctx); err != nil {
			t.Errorf("one healthy provider is enough: %v", err)
		}
	})

	t.Run("all fail", func(t *testing.T) {
		first := errors.New("first")
		second := errors.New("second")
		chain, _ := tts.NewChain(tts.WithError(first), tts.WithError(second))

		_, err := chain.Synthesize(ctx, "hi")
		var chainErr *tts.ChainError
		if !errors.As(err, &chainErr) {
			t.Fatalf("expected ChainError, got %T", err)
		}
		if len(chainErr.Errors) != 2 {
			t.Errorf("expected 2 errors, got %d", len(chainErr.Errors))
		}
		if !errors.Is(err, first) || !errors.Is(err, second) {
			t.Error("chain error should expose every provider error")
		}
		if err := chain.Health(ctx); err == nil {
			t.Error("expected unhealthy chain")
		}
	})

	t.Run("close closes all", func(t *testing.T) {
		a, b := tts.NewMock(), tts.NewMock()
		chain, _ := tts.NewChain(a, b)
		_ = chain.Close()
		if a.CallCount("Close") != 1 || b.CallCount("Close") != 1 {
			t.Error("expected both providers closed")
		}
	})
}

func TestProviderError(t *testing.T) {
	inner := errors.New("boom")
	err := tts.WrapError("google", inner)
	if !errors.Is(err, inner) {
		t.Error("wrapped error lost")
	}
	if tts.WrapError("google", nil) != nil {
		t.Error("wrapping nil should stay nil")
	}
}

func TestOpenAISynthesize(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
			return
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["response_format"] != "mp3" || body["input"] != "小心行人" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte("ID3-audio"))
	}))
	defer srv.Close()

	p, err := tts.NewOpenAI(
		tts.WithAPIKey("sk-test"),
		tts.WithBaseURL(srv.URL),
		tts.WithRetry(2, time.Millisecond),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	result, err := p.Synthesize(context.Background(), "小心行人")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(result.Audio) != "ID3-audio" {
		t.Errorf("audio = %q", result.Audio)
	}
	if attempts.Load() != 2 {
		t.Errorf("expected one retry, got %d attempts", attempts.Load())
	}
}

func TestOpenAIDoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad voice","code":"invalid_voice"}}`))
	}))
	defer srv.Close()

	p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL(srv.URL), tts.WithRetry(3, time.Millisecond))
	_, err := p.Synthesize(context.Background(), "hi")

	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "invalid_voice" {
		t.Fatalf("expected APIError with code, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("client error retried: %d attempts", attempts.Load())
	}
}

func TestOpenAIEmptyText(t *testing.T) {
	p, _ := tts.NewOpenAI(tts.WithAPIKey("k"), tts.WithBaseURL("http://127.0.0.1:1"))
	if _, err := p.Synthesize(context.Background(), "  "); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestGoogleSynthesize(t *testing.T) {
	audio := []byte("ID3-google")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/text:synthesize"):
			var req struct {
				Input struct {
					Text string `json:"text"`
				} `json:"input"`
				Voice struct {
					LanguageCode string `json:"languageCode"`
				} `json:"voice"`
				AudioConfig struct {
					AudioEncoding string `json:"audioEncoding"`
				} `json:"audioConfig"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			if req.Input.Text != "啟動車輛" || req.Voice.LanguageCode != "zh-TW" || req.AudioConfig.AudioEncoding != "MP3" {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":{"code":400,"message":"unexpected request"}}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"audioContent": base64.StdEncoding.EncodeToString(audio),
			})
		case strings.HasSuffix(r.URL.Path, "/voices"):
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"voices":[]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	p, err := tts.NewGoogle(ctx,
		tts.WithAPIKey("test-key"),
		tts.WithBaseURL(srv.URL+"/"),
	)
	if err != nil {
		t.Fatalf("NewGoogle: %v", err)
	}
	defer p.Close()

	result, err := p.Synthesize(ctx, "啟動車輛")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(result.Audio) != string(audio) {
		t.Errorf("audio = %q", result.Audio)
	}
	if result.CharCount != 4 {
		t.Errorf("CharCount = %d", result.CharCount)
	}
	if err := p.Health(ctx); err != nil {
		t.Errorf("Health: %v", err)
	}
}

func TestGoogleAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	p, err := tts.NewGoogle(ctx, tts.WithAPIKey("bad"), tts.WithBaseURL(srv.URL+"/"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = p.Synthesize(ctx, "hi")
	var apiErr *tts.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T %v", err, err)
	}
	if !apiErr.IsUnauthorized() {
		t.Errorf("expected unauthorized, got %d", apiErr.StatusCode)
	}
}
