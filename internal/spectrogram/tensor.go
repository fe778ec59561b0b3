package spectrogram

import "math"

// Tensor is a float32 tensor with shape (batch, time, frequency, channel).
// Data is stored row-major; for the builder's output batch and channel are 1.
type Tensor struct {
	Shape [4]int    `json:"shape" msgpack:"shape"`
	Data  []float32 `json:"data" msgpack:"data"`
}

// Frames returns the time dimension
func (t *Tensor) Frames() int {
	return t.Shape[1]
}

// Bins returns the frequency dimension
func (t *Tensor) Bins() int {
	return t.Shape[2]
}

// At returns the magnitude at time frame and frequency bin
func (t *Tensor) At(frame, bin int) float32 {
	return t.Data[frame*t.Shape[2]+bin]
}

// Row returns the magnitudes of one time frame. It shares memory with the tensor.
func (t *Tensor) Row(frame int) []float32 {
	bins := t.Shape[2]
	return t.Data[frame*bins : (frame+1)*bins : (frame+1)*bins]
}

// Size returns the product of the shape dimensions
func (t *Tensor) Size() int {
	return t.Shape[0] * t.Shape[1] * t.Shape[2] * t.Shape[3]
}

// Summary describes the value range of a tensor
type Summary struct {
	Shape [4]int  `json:"shape"`
	Min   float32 `json:"min"`
	Max   float32 `json:"max"`
	Mean  float64 `json:"mean"`
	// PeakBin is the frequency bin with the largest total magnitude over time.
	PeakBin int `json:"peak_bin"`
}

// Summarize computes value statistics over the whole tensor
func (t *Tensor) Summarize() Summary {
	s := Summary{Shape: t.Shape}
	if len(t.Data) == 0 {
		return s
	}

	s.Min = float32(math.Inf(1))
	s.Max = float32(math.Inf(-1))
	var sum float64
	for _, v := range t.Data {
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
		sum += float64(v)
	}
	s.Mean = sum / float64(len(t.Data))

	bins := t.Bins()
	if bins == 0 {
		return s
	}
	totals := make([]float64, bins)
	for i, v := range t.Data {
		totals[i%bins] += float64(v)
	}
	for k, v := range totals {
		if v > totals[s.PeakBin] {
			s.PeakBin = k
		}
	}

	return s
}
