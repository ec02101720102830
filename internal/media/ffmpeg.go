package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"promoforge/internal/infra"
)

const (
	audioBitrate = "192k"
	// Volume applied to the music bed when narration is mixed on top.
	duckedMusicVolume = 0.25
)

// buildXfadeArgs assembles the ffmpeg invocation that joins per-scene clips
// in index order with fixed-duration crossfade transitions. The k-th fade
// starts at sum(durations[0..k-1]) - k*fade, so the output length is
// sum(durations) - (n-1)*fade.
func buildXfadeArgs(inputs []string, durations []float64, fade float64, outPath string) []string {
	args := []string{"-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}

	var filter strings.Builder
	prev := "[0:v]"
	offset := 0.0
	for i := 1; i < len(inputs); i++ {
		offset += durations[i-1] - fade
		label := fmt.Sprintf("[x%d]", i)
		fmt.Fprintf(&filter, "%s[%d:v]xfade=transition=fade:duration=%s:offset=%s%s",
			prev, i, formatSeconds(fade), formatSeconds(offset), label)
		if i < len(inputs)-1 {
			filter.WriteString(";")
		}
		prev = label
	}

	args = append(args,
		"-filter_complex", filter.String(),
		"-map", prev,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "20",
		"-pix_fmt", "yuv420p",
		"-an",
		outPath,
	)
	return args
}

// buildCopyArgs passes a single clip through without transition logic.
func buildCopyArgs(input, outPath string) []string {
	return []string{"-y", "-i", input, "-c", "copy", "-an", outPath}
}

// buildMuxArgs combines the concatenated video with zero, one, or two audio
// tracks. The video stream is copied; audio is encoded to a fixed bitrate.
// When both narration and music are present the music is attenuated and
// mixed underneath.
func buildMuxArgs(videoPath, narrationPath, musicPath, outPath string) []string {
	args := []string{"-y", "-i", videoPath}
	audioInputs := 0
	if narrationPath != "" {
		args = append(args, "-i", narrationPath)
		audioInputs++
	}
	if musicPath != "" {
		args = append(args, "-i", musicPath)
		audioInputs++
	}

	switch {
	case narrationPath != "" && musicPath != "":
		filter := fmt.Sprintf(
			"[1:a]volume=1.0[na];[2:a]volume=%s[ma];[na][ma]amix=inputs=2:duration=first:dropout_transition=2[aout]",
			formatSeconds(duckedMusicVolume))
		args = append(args, "-filter_complex", filter, "-map", "0:v", "-map", "[aout]")
	case audioInputs == 1:
		args = append(args, "-map", "0:v", "-map", "1:a")
	default:
		args = append(args, "-map", "0:v")
	}

	args = append(args,
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-shortest",
		outPath,
	)
	return args
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// runFFmpeg executes ffmpeg with the given arguments, capturing combined
// output for the error message on failure.
func runFFmpeg(ctx context.Context, logger infra.Logger, args []string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	logger.Debug().Str("cmd", cmd.String()).Msg("compositor: running ffmpeg")
	output, err := cmd.CombinedOutput()
	if err != nil {
		tail := string(output)
		if len(tail) > 2000 {
			tail = tail[len(tail)-2000:]
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail)
	}
	return nil
}
