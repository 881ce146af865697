// Package tts synthesizes the vehicle's spoken announcements.
//
// Announcements are short fixed phrases ("watch out, pedestrian", "starting
// up"), so providers return a complete buffer rather than a stream. Google
// Cloud Text-to-Speech is the primary backend because it covers zh-TW; OpenAI
// is the usual fallback through a Chain.
//
// Example usage:
//
//	provider, _ := tts.NewGoogle(ctx,
//	    tts.WithAPIKey(os.Getenv("GOOGLE_API_KEY")),
//	    tts.WithLanguage("zh-TW"),
//	)
//	defer provider.Close()
//
//	result, _ := provider.Synthesize(ctx, "小心行人")
//	// result.Audio contains MP3 bytes
package tts

import (
	"context"
	"time"
)

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete audio buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health checks provider connectivity and credentials.
	Health(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the encoded audio data.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated playback duration, zero if unknown.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// LatencyMs is the request round trip in milliseconds.
	LatencyMs int64
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	Encoding   Encoding
	SampleRate int // Hz
	Channels   int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	EncodingMP3      Encoding = "mp3"
	EncodingLinear16 Encoding = "linear16" // WAV container, PCM16
	EncodingOggOpus  Encoding = "ogg_opus"
)

// FileExt returns the file extension players expect for the encoding.
func (e Encoding) FileExt() string {
	switch e {
	case EncodingLinear16:
		return ".wav"
	case EncodingOggOpus:
		return ".ogg"
	default:
		return ".mp3"
	}
}
