package preview

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
)

// Frame offsets for poster extraction. The first frame of generated video
// tends to fade in from black, so a dark frame at the primary offset gets
// a second chance further in.
const (
	primaryFrameOffset  = 1.0
	fallbackFrameOffset = 2.5
	darkLumaThreshold   = 40.0 / 255.0
)

// FrameSource extracts stills and short clips from video bytes.
type FrameSource interface {
	BestFrame(ctx context.Context, video []byte) ([]byte, error)
	Clip(ctx context.Context, video []byte, duration time.Duration) ([]byte, error)
}

// FFmpeg shells out to an ffmpeg binary for frame and clip extraction.
type FFmpeg struct {
	Path string
}

func (f *FFmpeg) binary() string {
	if f.Path != "" {
		return f.Path
	}
	return "ffmpeg"
}

// BestFrame grabs a poster frame. It tries the primary offset first and
// falls back to a later one when the frame is too dark, keeping whichever
// frame is brighter.
func (f *FFmpeg) BestFrame(ctx context.Context, video []byte) ([]byte, error) {
	input, cleanup, err := writeTemp(video, "*.mp4")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	frame, err := f.extractFrame(ctx, input, primaryFrameOffset)
	if err != nil {
		return nil, err
	}
	luma, err := frameLuma(frame)
	if err != nil || luma >= darkLumaThreshold {
		return frame, nil
	}

	retry, retryErr := f.extractFrame(ctx, input, fallbackFrameOffset)
	if retryErr != nil {
		return frame, nil
	}
	retryLuma, err := frameLuma(retry)
	if err == nil && retryLuma > luma {
		return retry, nil
	}
	return frame, nil
}

// Clip renders a short muted excerpt from the start of the video.
func (f *FFmpeg) Clip(ctx context.Context, video []byte, duration time.Duration) ([]byte, error) {
	input, cleanup, err := writeTemp(video, "*.mp4")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	outDir, err := os.MkdirTemp("", "clip")
	if err != nil {
		return nil, fmt.Errorf("clip temp dir: %w", err)
	}
	defer os.RemoveAll(outDir)
	output := filepath.Join(outDir, "clip.mp4")

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", input,
		"-t", strconv.FormatFloat(duration.Seconds(), 'f', 1, 64),
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-movflags", "+faststart",
		"-y", output,
	}
	cmd := exec.CommandContext(ctx, f.binary(), args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg clip: %w: %s", err, stderr.String())
	}
	data, err := os.ReadFile(output)
	if err != nil {
		return nil, fmt.Errorf("read clip: %w", err)
	}
	return data, nil
}

func (f *FFmpeg) extractFrame(ctx context.Context, input string, offset float64) ([]byte, error) {
	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 1, 64),
		"-i", input,
		"-frames:v", "1",
		"-c:v", "mjpeg",
		"-f", "image2",
		"pipe:1",
	}
	cmd := exec.CommandContext(ctx, f.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame at %.1fs: %w: %s", offset, err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg frame at %.1fs: empty output", offset)
	}
	return stdout.Bytes(), nil
}

func frameLuma(frame []byte) (float64, error) {
	img, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		return 0, err
	}
	return averageLuma(img), nil
}

func writeTemp(data []byte, pattern string) (string, func(), error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", nil, fmt.Errorf("video temp file: %w", err)
	}
	name := f.Name()
	cleanup := func() { os.Remove(name) }
	if _, err := f.Write(data); err != nil {
		f.Close()
		cleanup()
		return "", nil, fmt.Errorf("write video temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("close video temp file: %w", err)
	}
	return name, cleanup, nil
}

var _ FrameSource = (*FFmpeg)(nil)
