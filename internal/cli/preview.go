package cli

import (
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/spf13/cobra"

	"github.com/ivlev/scene2video/internal/renderer"
	"github.com/ivlev/scene2video/internal/source"
	"github.com/ivlev/scene2video/internal/timeline"
)

func (a *app) previewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <video-config>",
		Short: "Print the frame descriptor at a play-head, optionally as a PNG still",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.preview(cmd, args[0])
		},
	}
	cmd.Flags().IntP("frame", "f", 0, "Play-head in frames")
	cmd.Flags().String("png", "", "Also rasterize the frame into this PNG file")
	return cmd
}

func (a *app) preview(cmd *cobra.Command, path string) error {
	vc, err := timeline.ReadConfig(path)
	if err != nil {
		return err
	}
	for _, w := range vc.Warnings() {
		a.log.Warn("[!] " + w)
	}
	comp, err := timeline.New(*vc)
	if err != nil {
		return err
	}

	playHead, _ := cmd.Flags().GetInt("frame")
	frame := comp.Frame(playHead)
	if !frame.Active() {
		a.log.Warn("[!] Кадр за пределами таймлайна", "frame", playHead, "total", comp.TotalFrames())
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(frame); err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("png")
	if out == "" {
		return nil
	}

	width, height := comp.Size()
	lib := source.NewLibrary(width, height, source.WithPrepare(renderer.Grade))
	var refs []string
	if frame.Base != nil {
		refs = append(refs, frame.Base.ImagePath)
	}
	if err := lib.Preload(background(cmd), refs, 1); err != nil {
		return err
	}

	var opts []renderer.Option
	if ec := a.cfg.EndCard; ec.URL != "" {
		opts = append(opts, renderer.WithEndCard(renderer.EndCard{URL: ec.URL, Seconds: ec.Seconds}))
	}
	rast, err := renderer.NewRasterizer(comp, lib, opts...)
	if err != nil {
		return err
	}
	img := image.NewRGBA(rast.Bounds())
	if err := rast.Render(frame, img); err != nil {
		return err
	}
	if err := writeOut(cmd, out, func(w io.Writer) error { return png.Encode(w, img) }); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "[+] Кадр сохранен: %s\n", out)
	return nil
}
