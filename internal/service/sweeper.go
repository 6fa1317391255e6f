package service

import (
	"context"
	"sync"
	"time"

	"lab-registration/pkg/logger"
)

// ExpiredSessionCloser is the part of the session service the sweeper drives
type ExpiredSessionCloser interface {
	CloseExpired(ctx context.Context) (int, error)
}

// SessionSweeper periodically closes OPEN sessions whose end date has passed.
// Running it more than once, or on several instances, is harmless.
type SessionSweeper struct {
	closer   ExpiredSessionCloser
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

func NewSessionSweeper(closer ExpiredSessionCloser, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionSweeper{closer: closer, interval: interval}
}

// RunOnce performs a single sweep
func (s *SessionSweeper) RunOnce(ctx context.Context) (int, error) {
	closed, err := s.closer.CloseExpired(ctx)
	if err != nil {
		logger.Error("Session sweep failed: %v", err)
		return closed, err
	}
	if closed > 0 {
		logger.Info("Session sweep closed %d expired sessions", closed)
	} else {
		logger.Debug("Session sweep found no expired sessions")
	}
	return closed, nil
}

func (s *SessionSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.started = true

	s.wg.Add(1)
	go s.loop()
	logger.Info("Session sweeper started with interval %s", s.interval)
}

func (s *SessionSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.started = false
	logger.Info("Session sweeper stopped")
}

func (s *SessionSweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.RunOnce(s.ctx)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(s.ctx)
		}
	}
}
