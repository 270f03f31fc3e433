package camera

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// FFmpegCapturer grabs MJPEG frames from the v4l2 device through ffmpeg
type FFmpegCapturer struct {
	Device string
}

func (f FFmpegCapturer) args(p Params) []string {
	args := []string{
		"-loglevel", "error",
		"-f", "v4l2",
		"-input_format", "mjpeg",
		"-video_size", fmt.Sprintf("%dx%d", p.Width, p.Height),
		"-framerate", strconv.Itoa(p.FPS),
		"-i", f.Device,
	}
	if p.Delay > 0 {
		// Let exposure settle before keeping frames
		args = append(args, "-ss", strconv.FormatFloat(p.Delay.Seconds(), 'f', 3, 64))
	}
	return append(args,
		"-frames:v", strconv.Itoa(p.Count),
		"-c:v", "copy",
		"-f", "mjpeg",
		"pipe:1",
	)
}

func (f FFmpegCapturer) Capture(ctx context.Context, p Params, dir string) error {
	if p.Count <= 0 {
		log.Println("Capture count is 0, nothing to do")
		return nil
	}

	start := time.Now().UTC()

	cmd := exec.CommandContext(ctx, "ffmpeg", f.args(p)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w (%s)", err, bytes.TrimSpace(stderr.Bytes()))
	}

	frames := splitFrames(output)
	if len(frames) == 0 {
		return fmt.Errorf("camera returned no frames")
	}

	interval := frameInterval(p.FPS)
	for i, frame := range frames {
		ts := start.Add(p.Delay + time.Duration(i)*interval)
		path, err := saveFrame(dir, frame, ts, p.Tar)
		if err != nil {
			return err
		}
		log.Printf("Captured image %d of %d: %s", i+1, p.Count, filepath.Base(path))
	}

	if len(frames) < p.Count {
		return fmt.Errorf("camera returned %d of %d frames", len(frames), p.Count)
	}
	return nil
}

// splitFrames cuts a concatenated MJPEG stream into individual JPEGs
func splitFrames(stream []byte) [][]byte {
	var frames [][]byte
	for {
		start := bytes.Index(stream, jpegSOI)
		if start < 0 {
			return frames
		}
		end := bytes.Index(stream[start+2:], jpegEOI)
		if end < 0 {
			return frames
		}
		end += start + 2 + len(jpegEOI)
		frames = append(frames, stream[start:end])
		stream = stream[end:]
	}
}

// coerceJPEG trims anything before the SOI marker and after the EOI marker
func coerceJPEG(data []byte) []byte {
	if start := bytes.Index(data, jpegSOI); start >= 0 {
		data = data[start:]
	}
	if end := bytes.Index(data, jpegEOI); end >= 0 {
		data = data[:end+len(jpegEOI)]
	}
	return data
}

// frameInterval spaces frame timestamps. Names resolve to the microsecond,
// so the interval never drops below that or frames would overwrite each other.
func frameInterval(fps int) time.Duration {
	if fps <= 0 {
		return time.Second
	}
	interval := time.Second / time.Duration(fps)
	if interval < time.Microsecond {
		return time.Microsecond
	}
	return interval
}

func frameName(ts time.Time) string {
	return "camera-" + ts.UTC().Format("2006-01-02T15:04:05.000000")
}

// saveFrame writes data as camera-<ts>.jpeg, or wraps it in camera-<ts>.tar
// (gzip) and removes the jpeg when tarFile is set
func saveFrame(dir string, data []byte, ts time.Time, tarFile bool) (string, error) {
	name := frameName(ts)
	jpegPath := filepath.Join(dir, name+".jpeg")

	if err := os.WriteFile(jpegPath, coerceJPEG(data), 0644); err != nil {
		return "", fmt.Errorf("failed to save frame: %w", err)
	}
	if !tarFile {
		return jpegPath, nil
	}

	tarPath := filepath.Join(dir, name+".tar")
	if err := tarAndRemove(tarPath, jpegPath, name+".jpeg"); err != nil {
		return "", err
	}
	return tarPath, nil
}

func tarAndRemove(tarPath, file, name string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	out, err := os.Create(tarPath)
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	if err := writeArchive(out, name, data); err != nil {
		out.Close()
		os.Remove(tarPath)
		return err
	}
	// The jpeg is the only other copy; keep it unless the archive is on disk
	if err := out.Close(); err != nil {
		os.Remove(tarPath)
		return fmt.Errorf("failed to close archive: %w", err)
	}

	return os.Remove(file)
}

func writeArchive(w io.Writer, name string, data []byte) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	hdr := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: time.Now(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	return nil
}
