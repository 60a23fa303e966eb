package thumbnail

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os/exec"
	"strconv"

	"github.com/avpd/avpd/filesystem"
)

const (
	placeholderWidth  = 320
	placeholderHeight = 180
)

// ffmpegExtract grabs one scaled frame from the video with ffmpeg.
func ffmpegExtract(videoPath, thumbPath string, offset int) error {
	cmd := exec.Command("ffmpeg",
		"-nostdin",
		"-loglevel", "error",
		"-ss", strconv.Itoa(offset),
		"-i", videoPath,
		"-frames:v", "1",
		"-vf", fmt.Sprintf("scale=%d:-2", placeholderWidth),
		"-q:v", "5",
		"-y",
		thumbPath,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, output)
	}
	return nil
}

// writePlaceholder renders a flat dark JPEG for unreadable videos.
func writePlaceholder(thumbPath string) error {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	fill := color.RGBA{R: 0x2b, G: 0x2b, B: 0x2b, A: 0xff}
	for y := 0; y < placeholderHeight; y++ {
		for x := 0; x < placeholderWidth; x++ {
			img.Set(x, y, fill)
		}
	}

	file, err := filesystem.API().Create(thumbPath)
	if err != nil {
		return err
	}
	defer file.Close()

	return jpeg.Encode(file, img, &jpeg.Options{Quality: 70})
}
