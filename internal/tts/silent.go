package tts

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"time"
)

// SilentProvider is the free last rung of the chain: it always succeeds and
// emits a valid silent WAV sized to the text, so downstream delivery keeps
// working even when every paid provider is down.
type SilentProvider struct {
	SampleRate int
}

func (p SilentProvider) Name() string {
	return "silent"
}

func (p SilentProvider) Synthesize(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rate := p.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	duration := speechDuration(req.Text)
	return &Result{
		Audio:       silentWAV(duration, rate),
		ContentType: "audio/wav",
		Duration:    duration,
	}, nil
}

// speechDuration approximates how long the text would take to speak, at a
// reading pace of roughly 12 characters per second, floored at 2 seconds.
func speechDuration(text string) time.Duration {
	seconds := float64(len([]rune(text))) / 12.0
	if seconds < 2 {
		seconds = 2
	}
	return time.Duration(seconds * float64(time.Second))
}

// silentWAV builds a 16-bit mono PCM WAV of zeroed samples.
func silentWAV(duration time.Duration, sampleRate int) []byte {
	samples := int(math.Ceil(duration.Seconds() * float64(sampleRate)))
	if samples < sampleRate {
		samples = sampleRate
	}
	dataSize := samples * 2

	buf := bytes.NewBuffer(make([]byte, 0, 44+dataSize))
	buf.WriteString("RIFF")
	_ = binary.Write(buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	_ = binary.Write(buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(buf, binary.LittleEndian, uint16(1)) // mono
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(buf, binary.LittleEndian, uint32(dataSize))
	buf.Write(make([]byte, dataSize))
	return buf.Bytes()
}
