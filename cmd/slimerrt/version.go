package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/dbechrd/slimerrt/pkg/protocol"
	"github.com/spf13/cobra"
)

// buildInfo is what version reports.
type buildInfo struct {
	Version   string   `json:"version"`
	Commit    string   `json:"commit"`
	Built     string   `json:"built"`
	GoVersion string   `json:"go"`
	Platform  string   `json:"platform"`
	KindBits  int      `json:"kind_bits"`
	Kinds     []string `json:"kinds"`
	MaxPacket int      `json:"max_packet"`
	MaxChat   int      `json:"max_chat"`
	MaxName   int      `json:"max_username"`
}

func currentBuild() buildInfo {
	kinds := make([]string, len(protocol.Kinds))
	for i, k := range protocol.Kinds {
		kinds[i] = k.String()
	}
	return buildInfo{
		Version:   version,
		Commit:    commit,
		Built:     date,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		KindBits:  protocol.KindBits,
		Kinds:     kinds,
		MaxPacket: protocol.MaxPacketSize,
		MaxChat:   protocol.MaxChatLength,
		MaxName:   protocol.MaxUsernameLength,
	}
}

func versionCmd() *cobra.Command {
	var (
		short  bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and wire protocol information",
		Long: `Print the build version together with the wire protocol limits.

Two builds can talk to each other when their message kinds and
limits match; the commit alone does not say that.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch {
			case short:
				fmt.Fprintln(out, version)
				return nil
			case asJSON:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(currentBuild())
			}
			printBanner()
			writeBuild(out, currentBuild())
			return nil
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only version number")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print build and protocol information as JSON")

	return cmd
}

func writeBuild(w io.Writer, b buildInfo) {
	fmt.Fprintf(w, "\n  slimerrt %s (%s, built %s)\n", b.Version, b.Commit, b.Built)
	fmt.Fprintf(w, "  %s on %s\n\n", b.GoVersion, b.Platform)
	fmt.Fprintf(w, "  Wire protocol\n")
	fmt.Fprintf(w, "    kinds:     %d-bit tag, %s\n", b.KindBits, strings.Join(b.Kinds, " "))
	fmt.Fprintf(w, "    packet:    %d bytes max\n", b.MaxPacket)
	fmt.Fprintf(w, "    chat:      %d bytes max\n", b.MaxChat)
	fmt.Fprintf(w, "    username:  %d bytes max\n\n", b.MaxName)
}
