// Command voicegate separates spoken commands from silence and classifies them.
//
// Usage:
//
//	voicegate [flags] <command> [args]
//
// Commands:
//
//	rms          - Chunked RMS analysis of a WAV file
//	spectrogram  - Build the classifier input tensor of a WAV file
//	listen       - Run the capture, voice check and classify loop
//	stream       - Send a WAV file to a listener as UDP microphone packets
//	serve        - Run the HTTP API
//	version      - Show version information
package main

import (
	"fmt"
	"os"

	"github.com/skypro1111/voicegate/cmd/voicegate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
