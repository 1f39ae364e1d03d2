package imagespec

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// CommandBuilder returns a BuildFunc that runs an external image builder
// (docker, podman, buildah bud) with the Dockerfile on stdin:
//
//	<name> <args...> build -t <tag> -f - <contextDir>
//
// The tag is "<repository>:<first 12 hex chars of the digest>".
func CommandBuilder(name string, args []string, repository, contextDir string) BuildFunc {
	return func(ctx context.Context, r Recipe, dockerfile string) (string, error) {
		digest, err := r.Digest()
		if err != nil {
			return "", err
		}
		hex, err := digestHex(digest)
		if err != nil {
			return "", err
		}
		tag := repository + ":" + hex[:12]
		argv := append(append([]string{}, args...), "build", "-t", tag, "-f", "-", contextDir)
		cmd := exec.CommandContext(ctx, name, argv...)
		cmd.Stdin = strings.NewReader(dockerfile)
		cmd.Stdout = os.Stderr
		var stderr bytes.Buffer
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return "", fmt.Errorf("%s build: %w: %s", name, err, strings.TrimSpace(lastLines(stderr.String(), 20)))
		}
		return tag, nil
	}
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
