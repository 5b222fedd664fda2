package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const probeTimeout = 10 * time.Second

// CheckFFmpeg resolves the configured ffmpeg binary, records its version line,
// and confirms the requested video codec is compiled in.
func CheckFFmpeg(ctx context.Context, binary, codec string) Status {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	result := Status{Requirement: Requirement{
		Name:        "FFmpeg",
		Command:     binary,
		Description: "Encodes assembled frames into the timelapse video",
	}}

	resolved, err := exec.LookPath(binary)
	if err != nil {
		result.Detail = fmt.Sprintf("binary %q not found", binary)
		return result
	}
	result.Command = resolved

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	version, err := exec.CommandContext(ctx, resolved, "-hide_banner", "-version").Output()
	if err != nil {
		result.Detail = fmt.Sprintf("version probe failed: %v", err)
		return result
	}
	result.Available = true
	result.Detail = firstLine(version)

	codec = strings.TrimSpace(codec)
	if codec == "" {
		return result
	}
	encoders, err := exec.CommandContext(ctx, resolved, "-hide_banner", "-encoders").Output()
	if err != nil {
		result.Available = false
		result.Detail = fmt.Sprintf("encoder probe failed: %v", err)
		return result
	}
	if !hasEncoder(encoders, codec) {
		result.Available = false
		result.Detail = fmt.Sprintf("encoder %q not available in %s", codec, result.Detail)
	}
	return result
}

func firstLine(out []byte) string {
	line, _, _ := bytes.Cut(bytes.TrimSpace(out), []byte("\n"))
	return strings.TrimSpace(string(line))
}

func hasEncoder(listing []byte, codec string) bool {
	scanner := bufio.NewScanner(bytes.NewReader(listing))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) >= 2 && fields[1] == codec {
			return true
		}
	}
	return false
}
