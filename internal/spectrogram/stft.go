package spectrogram

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// FrameLength is the STFT window size in samples
	FrameLength = 255
	// FrameStep is the hop between consecutive windows
	FrameStep = 128
	// FFTLength is the smallest power of two holding one frame
	FFTLength = 256
	// Bins is the number of frequency bins per frame, FFTLength/2 + 1
	Bins = FFTLength/2 + 1
)

var window = hannWindow(FrameLength)

// hannWindow returns the periodic Hann window of length n
func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// FrameCount returns the number of full STFT frames in n samples
func FrameCount(n int) int {
	if n < FrameLength {
		return 0
	}
	return 1 + (n-FrameLength)/FrameStep
}

// magnitudeSTFT returns |STFT(signal)| laid out frame-major, Bins values per frame.
// Frames that would run past the end of signal are not computed.
func magnitudeSTFT(signal []float64) []float32 {
	frames := FrameCount(len(signal))
	out := make([]float32, frames*Bins)

	fft := fourier.NewFFT(FFTLength)
	frame := make([]float64, FFTLength)
	coeffs := make([]complex128, Bins)

	for t := 0; t < frames; t++ {
		start := t * FrameStep
		for n := 0; n < FrameLength; n++ {
			frame[n] = signal[start+n] * window[n]
		}
		// frame[FrameLength:] stays zero: the FFT input is the frame zero-padded to FFTLength

		coeffs = fft.Coefficients(coeffs, frame)
		row := out[t*Bins : (t+1)*Bins]
		for k, c := range coeffs {
			row[k] = float32(cmplx.Abs(c))
		}
	}

	return out
}
