package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/skypro1111/voicegate/internal/audio"
	"github.com/skypro1111/voicegate/internal/spectrogram"
)

var spectrogramFlags struct {
	out     string
	pcm16   bool
	jsonOut bool
}

var spectrogramCmd = &cobra.Command{
	Use:   "spectrogram <file.wav>",
	Short: "Build the classifier input tensor of a WAV file",
	Long: `Decode a WAV file at the configured sample rate, fit it to one second and
print the shape and value range of its magnitude spectrogram.

--out writes the full tensor as msgpack ({shape, data}).`,
	Args: cobra.ExactArgs(1),
	RunE: runSpectrogram,
}

func init() {
	f := spectrogramCmd.Flags()
	f.StringVarP(&spectrogramFlags.out, "out", "o", "", "write the tensor as msgpack to this file")
	f.BoolVar(&spectrogramFlags.pcm16, "pcm16", false, "scale samples to the 16-bit integer range first, as the listen loop does")
	f.BoolVar(&spectrogramFlags.jsonOut, "json", false, "print the summary as JSON")

	rootCmd.AddCommand(spectrogramCmd)
}

func runSpectrogram(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	decoder := audio.WAVDecoder{SampleRate: cfg.Audio.SampleRate, Resample: cfg.Audio.Resample}
	builder, err := spectrogram.NewBuilder(cfg.Audio.SampleRate, decoder)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	var tensor *spectrogram.Tensor
	if spectrogramFlags.pcm16 {
		waveform, err := decoder.Decode(data)
		if err != nil {
			return err
		}
		tensor = builder.Build(waveform.ToPCM16Scale())
	} else {
		tensor, err = builder.BuildFromEncoded(data)
		if err != nil {
			return err
		}
	}

	if spectrogramFlags.out != "" {
		encoded, err := msgpack.Marshal(tensor)
		if err != nil {
			return fmt.Errorf("failed to encode tensor: %w", err)
		}
		if err := os.WriteFile(spectrogramFlags.out, encoded, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", spectrogramFlags.out, err)
		}
	}

	summary := tensor.Summarize()
	out := cmd.OutOrStdout()
	if spectrogramFlags.jsonOut {
		return json.NewEncoder(out).Encode(summary)
	}

	fmt.Fprintf(out, "shape: %v\n", summary.Shape)
	fmt.Fprintf(out, "min: %g max: %g mean: %g\n", summary.Min, summary.Max, summary.Mean)
	fmt.Fprintf(out, "peak bin: %d\n", summary.PeakBin)
	return nil
}
