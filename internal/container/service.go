package container

import (
	"context"
	"fmt"
	"strings"
	"time"

	harnesserrors "minifitest/internal/errors"
	"minifitest/internal/logger"
	"minifitest/internal/poll"
)

// DefaultReadyTimeout bounds the wait for a readiness log marker.
const DefaultReadyTimeout = 60 * time.Second

// Service is a container that counts as deployed only once its logs show
// ReadyLog.
type Service struct {
	Container
	ReadyLog     string
	ReadyTimeout time.Duration
}

func NewService(c Container, readyLog string, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	return &Service{Container: c, ReadyLog: readyLog, ReadyTimeout: timeout}
}

func (s *Service) Deploy(ctx context.Context) error {
	if err := s.Container.Deploy(ctx); err != nil {
		return err
	}
	if s.ReadyLog == "" {
		return nil
	}

	if !WaitForLog(ctx, s.Container, s.ReadyLog, s.ReadyTimeout) {
		s.Container.LogAppOutput(ctx)
		return harnesserrors.NewNotReadyError(
			fmt.Sprintf("Container '%s' did not log %q within %s", s.Name(), s.ReadyLog, s.ReadyTimeout),
			"readiness marker not found in container logs",
			"Inspect the container output in the harness log",
			fmt.Errorf("%w: %s", harnesserrors.ErrAssertionTimeout, s.Name()),
		)
	}
	logger.Info().Str("container", s.Name()).Msg("container ready")
	return nil
}

// WaitForLog waits until the logs of c contain marker, giving up early when
// the container exits.
func WaitForLog(ctx context.Context, c Container, marker string, timeout time.Duration) bool {
	return poll.WaitForCondition(
		func() bool { return strings.Contains(c.GetLogs(ctx), marker) },
		timeout,
		func() bool { return c.Exited(ctx) },
	)
}
