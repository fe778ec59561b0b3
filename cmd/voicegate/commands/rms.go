package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/skypro1111/voicegate/internal/audio"
	"github.com/skypro1111/voicegate/internal/vad"
)

var rmsFlags struct {
	step      float64
	low       float64
	high      float64
	threshold float64
	noFilter  bool
	noPCM16   bool
	out       string
	jsonOut   bool
}

var rmsCmd = &cobra.Command{
	Use:   "rms <file.wav>",
	Short: "Chunked RMS analysis of a WAV file",
	Long: `Split a WAV file into chunks of --step seconds and print the RMS of every
chunk that falls strictly inside (--low, --high), the extracted length, the
RMS of the extracted audio and the voice decision against --threshold.

Samples are scaled to the 16-bit integer range first unless --no-pcm16 is set.
Range, step and threshold default to the gate section of the configuration.`,
	Args: cobra.ExactArgs(1),
	RunE: runRMS,
}

func init() {
	f := rmsCmd.Flags()
	f.Float64Var(&rmsFlags.step, "step", 0, "chunk length in seconds")
	f.Float64Var(&rmsFlags.low, "low", 0, "exclusive lower RMS bound")
	f.Float64Var(&rmsFlags.high, "high", 0, "exclusive upper RMS bound")
	f.Float64Var(&rmsFlags.threshold, "threshold", 0, "voice threshold for the extracted audio")
	f.BoolVar(&rmsFlags.noFilter, "no-filter", false, "keep every chunk")
	f.BoolVar(&rmsFlags.noPCM16, "no-pcm16", false, "analyze float samples instead of the 16-bit scale")
	f.StringVarP(&rmsFlags.out, "out", "o", "", "write the extracted audio to this WAV file")
	f.BoolVar(&rmsFlags.jsonOut, "json", false, "print the analysis as JSON")

	rootCmd.AddCommand(rmsCmd)
}

func runRMS(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f := cmd.Flags()
	step := cfg.Gate.Step
	if f.Changed("step") {
		step = rmsFlags.step
	}
	rng := vad.Range{Low: cfg.Gate.Range.Low, High: cfg.Gate.Range.High}
	if f.Changed("low") {
		rng.Low = rmsFlags.low
	}
	if f.Changed("high") {
		rng.High = rmsFlags.high
	}
	threshold := cfg.Gate.VoiceThreshold
	if f.Changed("threshold") {
		threshold = rmsFlags.threshold
	}

	path := args[0]
	decoded, err := audio.ReadWAVFile(path)
	if err != nil {
		return err
	}
	waveform, err := decoded.Frames.Squeeze()
	if err != nil {
		return err
	}

	pcm16 := !rmsFlags.noPCM16
	if pcm16 {
		waveform = waveform.ToPCM16Scale()
	}

	// the file is analyzed at its own rate
	gate, err := vad.NewEnergyGate(decoded.SampleRate)
	if err != nil {
		return err
	}

	analysis, err := gate.Analyze(waveform, step, rng, !rmsFlags.noFilter, threshold)
	if err != nil {
		return err
	}

	if rmsFlags.out != "" {
		if err := audio.WriteWAVFile(rmsFlags.out, analysis.Extracted, decoded.SampleRate, pcm16); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if rmsFlags.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(analysis)
	}

	fmt.Fprintf(out, "File: %s\n", path)
	fmt.Fprintf(out, "%v\n", analysis.RMS)
	fmt.Fprintf(out, "min RMS: %g\n", analysis.MinRMS)
	fmt.Fprintf(out, "max RMS: %g\n", analysis.MaxRMS)
	fmt.Fprintf(out, "Extracted %g seconds of audio.\n", analysis.ExtractedSeconds)
	fmt.Fprintf(out, "RMS: %g\n", analysis.OverallRMS)
	fmt.Fprintf(out, "is voice: %t (threshold %g)\n", analysis.IsVoice, threshold)
	if rmsFlags.out != "" {
		fmt.Fprintf(out, "Wrote %s\n", rmsFlags.out)
	}

	return nil
}
