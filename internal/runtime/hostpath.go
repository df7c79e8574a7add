package runtime

import (
	"context"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// mountPair maps a path inside this service's own container to its source
// on the Docker host.
type mountPair struct {
	Destination string
	Source      string
}

// PathTranslator rewrites container-local workspace paths to host paths.
//
// When the service itself runs inside a container, the daemon interprets
// bind sources relative to the host, not to this container. The translator
// inspects the service's own container (hostname = container id) and uses
// its mount table to rewrite path prefixes. Translation is best-effort: on
// any failure it becomes the identity function and the untranslated path is
// handed to create, which then fails with a clear daemon error if the path
// was wrong.
type PathTranslator struct {
	mounts []mountPair
}

// NewPathTranslator builds a translator for the current process. Outside a
// container it is always the identity.
func NewPathTranslator(ctx context.Context, api dockerAPI, log *zap.Logger) *PathTranslator {
	t := &PathTranslator{}

	if !insideContainer() {
		return t
	}

	hostname, err := os.Hostname()
	if err != nil {
		log.Warn("host path translation disabled: no hostname", zap.Error(err))
		return t
	}

	info, err := api.ContainerInspect(ctx, hostname)
	if err != nil {
		log.Warn("host path translation disabled: cannot inspect own container",
			zap.String("container_id", hostname), zap.Error(err))
		return t
	}

	for _, m := range info.Mounts {
		if m.Destination == "" || m.Source == "" {
			continue
		}
		t.mounts = append(t.mounts, mountPair{Destination: m.Destination, Source: m.Source})
	}
	// Longest destination first so nested mounts win.
	sort.Slice(t.mounts, func(i, j int) bool {
		return len(t.mounts[i].Destination) > len(t.mounts[j].Destination)
	})

	log.Info("host path translation enabled", zap.Int("mounts", len(t.mounts)))
	return t
}

// ToHostPath rewrites path using the service container's mount table.
// Paths under no known mount come back unchanged.
func (t *PathTranslator) ToHostPath(path string) string {
	if t == nil {
		return path
	}
	return translate(t.mounts, path)
}

func translate(mounts []mountPair, path string) string {
	for _, m := range mounts {
		if path == m.Destination {
			return m.Source
		}
		prefix := strings.TrimSuffix(m.Destination, "/") + "/"
		if strings.HasPrefix(path, prefix) {
			return strings.TrimSuffix(m.Source, "/") + "/" + strings.TrimPrefix(path, prefix)
		}
	}
	return path
}

// insideContainer reports whether this process appears to run inside a
// Docker container.
func insideContainer() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	data, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "docker")
}
