package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/ivlev/scene2video/internal/timeline"
)

func (a *app) srtCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "srt <video-config>",
		Short: "Write the subtitles of a video config as an SRT file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vc, err := timeline.ReadConfig(args[0])
			if err != nil {
				return err
			}
			out, _ := cmd.Flags().GetString("out")
			return writeOut(cmd, out, func(w io.Writer) error {
				return timeline.WriteSRT(w, *vc)
			})
		},
	}
	cmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")
	return cmd
}
