package vad

import (
	"errors"
	"slices"

	"github.com/skypro1111/voicegate/internal/audio"
)

// Analysis is a per-file RMS report: the scan, the spread of chunk RMS values
// and the voice decision on the extracted audio.
type Analysis struct {
	ChunkSize        int            `json:"chunk_size"`
	TotalChunks      int            `json:"total_chunks"`
	KeptChunks       int            `json:"kept_chunks"`
	DroppedSamples   int            `json:"dropped_samples"`
	RMS              []float64      `json:"rms"`
	MinRMS           float64        `json:"min_rms"`
	MaxRMS           float64        `json:"max_rms"`
	ExtractedSamples int            `json:"extracted_samples"`
	ExtractedSeconds float64        `json:"extracted_seconds"`
	OverallRMS       float64        `json:"overall_rms"`
	IsVoice          bool           `json:"is_voice"`
	Extracted        audio.Waveform `json:"-"`
}

// Analyze scans signal like Scan and then classifies the extracted audio
// against threshold. Min and max are zero when no chunk was kept, and an
// empty extraction is never voice.
func (g *EnergyGate) Analyze(signal audio.Waveform, step float64, rng Range, filter bool, threshold float64) (*Analysis, error) {
	result, err := g.Scan(signal, step, rng, filter)
	if err != nil {
		return nil, err
	}

	a := &Analysis{
		ChunkSize:        result.ChunkSize,
		TotalChunks:      result.TotalChunks,
		KeptChunks:       result.Kept(),
		DroppedSamples:   result.Dropped,
		RMS:              result.RMS,
		ExtractedSamples: len(result.Extracted),
		ExtractedSeconds: result.Extracted.Seconds(g.sampleRate),
		Extracted:        result.Extracted,
	}

	if len(result.RMS) > 0 {
		a.MinRMS = slices.Min(result.RMS)
		a.MaxRMS = slices.Max(result.RMS)
	}

	a.OverallRMS, a.IsVoice, err = g.Classify(result.Extracted, threshold)
	if errors.Is(err, ErrEmptyInput) {
		return a, nil
	}
	if err != nil {
		return nil, err
	}

	return a, nil
}
