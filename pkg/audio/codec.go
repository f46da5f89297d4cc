// Package audio provides the pure audio codec utilities used on both sides of
// a live session: conversion between raw PCM bytes and the transport's
// base64 text encoding, and conversion between 16-bit signed PCM and
// normalized float32 samples.
//
// All functions are stateless and safe for concurrent use. The PCM layout is
// always interleaved little-endian signed 16-bit, the format spoken by the
// Gemini Live wire protocol.
package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"time"
)

// DecodeError reports that a transport payload was not valid base64.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("audio: decode payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// MalformedAudioError reports PCM data whose byte length is inconsistent with
// the channel count (not a whole number of interleaved 16-bit frames).
type MalformedAudioError struct {
	Bytes    int
	Channels int
}

func (e *MalformedAudioError) Error() string {
	return fmt.Sprintf("audio: %d bytes is not a whole number of 16-bit frames for %d channel(s)", e.Bytes, e.Channels)
}

// Encode converts raw bytes to the transport-safe base64 text encoding.
// It is total: every byte slice has a valid encoding.
func Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Decode is the inverse of [Encode]. It returns a *DecodeError if s is not
// valid standard base64.
func Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return b, nil
}

// PCM16ToFloat interprets b as interleaved little-endian signed 16-bit PCM,
// de-interleaves it per channel, and normalizes each sample to [-1, 1] by
// dividing by 32768. The frame count is len(b) / 2 / channels.
//
// Returns a *MalformedAudioError if channels < 1 or len(b) is not a multiple
// of 2×channels.
func PCM16ToFloat(b []byte, channels int) ([][]float32, error) {
	if channels < 1 || len(b)%(2*channels) != 0 {
		return nil, &MalformedAudioError{Bytes: len(b), Channels: channels}
	}
	frames := len(b) / 2 / channels
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, frames)
	}
	for i := range frames {
		for c := range channels {
			s := int16(binary.LittleEndian.Uint16(b[(i*channels+c)*2:]))
			out[c][i] = float32(s) / 32768
		}
	}
	return out, nil
}

// FloatToPCM16 converts normalized float32 samples to little-endian signed
// 16-bit PCM. Samples are scaled by 32768 and clamped to the int16 range, so
// slightly out-of-range input degrades to full-scale rather than wrapping.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		s := int32(v * 32768)
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s)))
	}
	return out
}

// Duration returns the playback duration of byteLen bytes of interleaved
// 16-bit PCM at the given sample rate and channel count. Returns 0 for
// non-positive rates or channel counts.
func Duration(byteLen, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels < 1 {
		return 0
	}
	frames := byteLen / 2 / channels
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}
