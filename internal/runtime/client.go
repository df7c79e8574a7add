// Package runtime wraps the Docker engine API with the handful of
// operations the execution engine needs: create, attach, start, wait,
// kill, remove and reload. Every call is a blocking round trip to the
// daemon and must run on a goroutine the caller is willing to park.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"go.uber.org/zap"
)

// ErrEngineUnavailable is returned when the container daemon cannot be
// reached. At startup this disables job submission entirely.
var ErrEngineUnavailable = errors.New("container engine unavailable")

// dockerAPI is the slice of the Docker SDK surface the client uses.
// Tests substitute a fake.
type dockerAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageInspectWithRaw(ctx context.Context, image string) (types.ImageInspect, []byte, error)
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerAttach(ctx context.Context, containerID string, options container.AttachOptions) (types.HijackedResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerKill(ctx context.Context, containerID, signal string) error
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
	ContainerInspect(ctx context.Context, containerID string) (types.ContainerJSON, error)
	Close() error
}

// CreateSpec describes the container for one job.
type CreateSpec struct {
	Image        string
	Command      []string
	WorkspaceDir string // container-local path of the job workspace on this host
	MountTarget  string // where the workspace appears inside the sandbox
	WorkingDir   string
	MemoryMB     int
	Network      bool // pip-style pre-install steps need egress; everything else runs offline
	Labels       map[string]string
	Name         string
}

// Status is a point-in-time view of a container.
type Status struct {
	Running  bool
	ExitCode int
}

// AttachStream is the duplex byte channel of an attached container.
type AttachStream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	CloseWrite() error
	Close() error
}

// Client is a thin, stateless wrapper over the Docker daemon API. It is
// safe to share across jobs.
type Client struct {
	api        dockerAPI
	translator *PathTranslator
	log        *zap.Logger
}

// New connects to the Docker daemon and verifies it is reachable. A failed
// ping is fatal for the whole engine, not for individual jobs.
func New(ctx context.Context, dockerHost string, log *zap.Logger) (*Client, error) {
	opts := []client.Opt{
		client.FromEnv,
		client.WithAPIVersionNegotiation(),
	}
	if dockerHost != "" {
		opts = append(opts, client.WithHost(dockerHost))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(pingCtx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}

	c := &Client{api: cli, log: log}
	c.translator = NewPathTranslator(ctx, cli, log)
	return c, nil
}

// Create provisions a container with the job's image, command and resource
// limits. The workspace is bind-mounted read-write; everything else runs
// with no network and a hard memory cap.
func (c *Client) Create(ctx context.Context, spec CreateSpec) (string, error) {
	if err := c.ensureImage(ctx, spec.Image); err != nil {
		return "", err
	}

	hostDir := c.translator.ToHostPath(spec.WorkspaceDir)

	target := spec.MountTarget
	if target == "" {
		target = "/workspace"
	}
	workingDir := spec.WorkingDir
	if workingDir == "" {
		workingDir = target
	}

	cfg := &container.Config{
		Image:        spec.Image,
		Cmd:          spec.Command,
		WorkingDir:   workingDir,
		Labels:       spec.Labels,
		OpenStdin:    true,
		StdinOnce:    false,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	}

	networkMode := "none"
	if spec.Network {
		networkMode = "bridge"
	}
	hostCfg := &container.HostConfig{
		Binds:       []string{fmt.Sprintf("%s:%s", hostDir, target)},
		NetworkMode: container.NetworkMode(networkMode),
	}
	if spec.MemoryMB > 0 {
		hostCfg.Resources = container.Resources{
			Memory: int64(spec.MemoryMB) * 1024 * 1024,
		}
	}

	resp, err := c.api.ContainerCreate(ctx, cfg, hostCfg, nil, nil, spec.Name)
	if err != nil {
		return "", classify(err, "creating container")
	}
	return resp.ID, nil
}

// ensureImage pulls the image when it is not present locally.
func (c *Client) ensureImage(ctx context.Context, ref string) error {
	_, _, err := c.api.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return nil
	}
	if !errdefs.IsNotFound(err) {
		return classify(err, "inspecting image")
	}

	reader, err := c.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return classify(err, "pulling image")
	}
	defer reader.Close()
	// Drain so the pull actually completes.
	_, _ = io.Copy(io.Discard, reader)
	return nil
}

// Attach opens the container's duplex stdio socket. Attach before start so
// no early output is lost.
func (c *Client) Attach(ctx context.Context, containerID string) (AttachStream, error) {
	resp, err := c.api.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, classify(err, "attaching to container")
	}
	return &hijackStream{resp: resp}, nil
}

// Start begins execution of a created container.
func (c *Client) Start(ctx context.Context, containerID string) error {
	if err := c.api.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return classify(err, "starting container")
	}
	return nil
}

// Wait blocks until the container stops or the timeout elapses, returning
// its exit code.
func (c *Client) Wait(ctx context.Context, containerID string, timeout time.Duration) (int, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	statusCh, errCh := c.api.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return -1, classify(err, "waiting for container")
	case status := <-statusCh:
		if status.Error != nil {
			return int(status.StatusCode), fmt.Errorf("container wait: %s", status.Error.Message)
		}
		return int(status.StatusCode), nil
	case <-waitCtx.Done():
		return -1, waitCtx.Err()
	}
}

// Kill sends SIGKILL. A container that is already gone counts as success.
func (c *Client) Kill(ctx context.Context, containerID string) error {
	if err := c.api.ContainerKill(ctx, containerID, "SIGKILL"); err != nil && !teardownBenign(err) {
		return classify(err, "killing container")
	}
	return nil
}

// Remove force-removes the container. Already-removed is success.
func (c *Client) Remove(ctx context.Context, containerID string) error {
	err := c.api.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if err != nil && !teardownBenign(err) {
		return classify(err, "removing container")
	}
	return nil
}

// Reload fetches the container's current state.
func (c *Client) Reload(ctx context.Context, containerID string) (Status, error) {
	info, err := c.api.ContainerInspect(ctx, containerID)
	if err != nil {
		return Status{}, classify(err, "inspecting container")
	}
	if info.State == nil {
		return Status{}, nil
	}
	return Status{Running: info.State.Running, ExitCode: info.State.ExitCode}, nil
}

// Close releases the daemon connection.
func (c *Client) Close() error {
	return c.api.Close()
}

// teardownBenign reports errors that mean the work is already done:
// the container no longer exists, or it is not running.
func teardownBenign(err error) bool {
	if errdefs.IsNotFound(err) {
		return true
	}
	return errdefs.IsConflict(err)
}

// classify maps daemon connection failures onto ErrEngineUnavailable and
// wraps everything else with context.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if client.IsErrConnectionFailed(err) {
		return fmt.Errorf("%w: %s: %v", ErrEngineUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// hijackStream adapts the SDK's hijacked connection to AttachStream.
type hijackStream struct {
	resp types.HijackedResponse
}

func (h *hijackStream) Read(p []byte) (int, error)  { return h.resp.Reader.Read(p) }
func (h *hijackStream) Write(p []byte) (int, error) { return h.resp.Conn.Write(p) }
func (h *hijackStream) CloseWrite() error           { return h.resp.CloseWrite() }

func (h *hijackStream) Close() error {
	h.resp.Close()
	return nil
}
