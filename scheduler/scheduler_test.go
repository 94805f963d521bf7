package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tessera/cache"
	"github.com/aukilabs/tessera/models"
	"github.com/stretchr/testify/require"
)

const testProtocol = "test"

type testProvider struct {
	mutex   sync.Mutex
	calls   []string
	err     error
	release chan struct{}
}

func (p *testProvider) PreprocessLayer(ctx context.Context, l *models.Layer) error {
	return p.err
}

func (p *testProvider) ExecuteCommand(ctx context.Context, cmd *models.Command) (models.Resource, error) {
	p.mutex.Lock()
	p.calls = append(p.calls, cmd.URL)
	release := p.release
	p.mutex.Unlock()

	if release != nil {
		ticker := time.NewTicker(time.Millisecond)
		defer ticker.Stop()

	wait:
		for {
			select {
			case <-release:
				break wait

			case <-ctx.Done():
				return nil, ctx.Err()

			case <-ticker.C:
				if cmd.Cancelled() {
					return nil, models.ErrCancelled(cmd)
				}
			}
		}
	}

	if p.err != nil {
		return nil, p.err
	}
	return "res:" + cmd.URL, nil
}

func (p *testProvider) Calls() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return append([]string(nil), p.calls...)
}

func newTestScheduler(t *testing.T, workers int, p Provider) (*Scheduler, *cache.Cache) {
	c, err := cache.New(100, 10)
	require.NoError(t, err)

	s := New(c, Options{Workers: workers})
	s.Register(testProtocol, p)
	t.Cleanup(s.Close)
	return s, c
}

func newTestCommand(t *testing.T, l *models.Layer, name string, priority float64) *models.Command {
	return &models.Command{
		Layer:    l,
		Node:     l.NewNode(nil, name, uint(len(name)), nil, 1),
		Protocol: testProtocol,
		URL:      "http://localhost/" + name,
		Priority: priority,
	}
}

func newTestLayer(t *testing.T) *models.Layer {
	l, err := models.NewLayer(1, models.LayerOptions{
		Kind: "test",
		URL:  "http://localhost",
	})
	require.NoError(t, err)
	return l
}

// runFrames drains and dispatches like the frame loop until done returns true.
func runFrames(t *testing.T, s *Scheduler, done func() bool) {
	deadline := time.Now().Add(5 * time.Second)
	for frame := uint64(1); !done(); frame++ {
		require.True(t, time.Now().Before(deadline), "frames timed out")
		s.Drain(frame)
		s.Dispatch()
		time.Sleep(time.Millisecond)
	}
}

func TestSchedulerPriorityOrder(t *testing.T) {
	p := &testProvider{}
	s, _ := newTestScheduler(t, 1, p)
	l := newTestLayer(t)

	a := s.Execute(newTestCommand(t, l, "a", 1))
	b := s.Execute(newTestCommand(t, l, "b", 5))
	c := s.Execute(newTestCommand(t, l, "c", 5))
	require.Equal(t, 3, s.CommandsWaitingExecutionCount())

	s.Start(context.Background())
	runFrames(t, s, func() bool {
		return a.Done() && b.Done() && c.Done()
	})

	require.Equal(t, []string{
		"http://localhost/b",
		"http://localhost/c",
		"http://localhost/a",
	}, p.Calls())
	require.Zero(t, s.CommandsWaitingExecutionCount())

	res, err := a.Result()
	require.NoError(t, err)
	require.Equal(t, "res:http://localhost/a", res)
}

func TestSchedulerDeduplicates(t *testing.T) {
	p := &testProvider{release: make(chan struct{})}
	s, c := newTestScheduler(t, 2, p)
	l := newTestLayer(t)
	s.Start(context.Background())

	cmd := newTestCommand(t, l, "a", 1)
	f1 := s.Execute(cmd)
	f2 := s.Execute(&models.Command{
		Layer:    l,
		Node:     cmd.Node,
		Protocol: testProtocol,
		URL:      cmd.URL,
		Priority: 10,
	})
	require.Same(t, f1, f2)
	require.Equal(t, 1, s.CommandsWaitingExecutionCount())
	require.Equal(t, 10.0, cmd.Priority)

	s.Dispatch()
	require.Eventually(t, func() bool {
		return len(p.Calls()) == 1
	}, time.Second, time.Millisecond)

	t.Run("in flight key returns the same future", func(t *testing.T) {
		f3 := s.Execute(&models.Command{
			Layer:    l,
			Node:     cmd.Node,
			Protocol: testProtocol,
			URL:      cmd.URL,
		})
		require.Same(t, f1, f3)
	})

	close(p.release)
	runFrames(t, s, f1.Done)
	require.Len(t, p.Calls(), 1)
	require.Equal(t, 1, c.Len())

	t.Run("cached results resolve immediately", func(t *testing.T) {
		f4 := s.Execute(&models.Command{
			Layer:    l,
			Node:     cmd.Node,
			Protocol: testProtocol,
			URL:      cmd.URL,
		})
		require.True(t, f4.Done())
		res, err := f4.Result()
		require.NoError(t, err)
		require.Equal(t, "res:http://localhost/a", res)
		require.Len(t, p.Calls(), 1)
	})
}

func TestSchedulerEarlyDrop(t *testing.T) {
	t.Run("queued command", func(t *testing.T) {
		p := &testProvider{}
		s, c := newTestScheduler(t, 1, p)
		l := newTestLayer(t)

		cmd := newTestCommand(t, l, "a", 1)
		cmd.EarlyDrop = func(*models.Command) bool {
			return true
		}

		f := s.Execute(cmd)
		s.Dispatch()
		require.True(t, f.Done())

		_, err := f.Result()
		require.True(t, models.IsCancelled(err))
		require.Empty(t, p.Calls())
		require.Zero(t, c.Len())
		require.Zero(t, s.CommandsWaitingExecutionCount())
	})

	t.Run("in flight command", func(t *testing.T) {
		p := &testProvider{release: make(chan struct{})}
		s, c := newTestScheduler(t, 1, p)
		l := newTestLayer(t)
		s.Start(context.Background())

		var drop bool
		cmd := newTestCommand(t, l, "a", 1)
		cmd.EarlyDrop = func(*models.Command) bool {
			return drop
		}

		f := s.Execute(cmd)
		s.Dispatch()
		require.Eventually(t, func() bool {
			return len(p.Calls()) == 1
		}, time.Second, time.Millisecond)

		drop = true
		runFrames(t, s, f.Done)
		require.True(t, cmd.Cancelled())

		_, err := f.Result()
		require.True(t, models.IsCancelled(err))
		require.Zero(t, c.Len())
	})

	t.Run("stale result is not committed", func(t *testing.T) {
		p := &testProvider{}
		s, c := newTestScheduler(t, 1, p)
		l := newTestLayer(t)
		s.Start(context.Background())

		var drop bool
		cmd := newTestCommand(t, l, "a", 1)
		cmd.EarlyDrop = func(*models.Command) bool {
			return drop
		}

		f := s.Execute(cmd)
		s.Dispatch()
		require.Eventually(t, func() bool {
			return len(s.completions) == 1
		}, time.Second, time.Millisecond)

		drop = true
		s.Drain(1)
		require.True(t, f.Done())

		_, err := f.Result()
		require.True(t, models.IsCancelled(err))
		require.Zero(t, c.Len())
	})
}

func TestSchedulerFailures(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		p := &testProvider{err: errors.New("not found")}
		s, c := newTestScheduler(t, 1, p)
		l := newTestLayer(t)
		s.Start(context.Background())

		f := s.Execute(newTestCommand(t, l, "a", 1))
		runFrames(t, s, f.Done)

		_, err := f.Result()
		require.True(t, errors.IsType(err, models.ErrTypeLoadFailed))
		require.Zero(t, c.Len())
	})

	t.Run("unknown protocol", func(t *testing.T) {
		s, _ := newTestScheduler(t, 1, &testProvider{})
		l := newTestLayer(t)

		cmd := newTestCommand(t, l, "a", 1)
		cmd.Protocol = "unknown"

		f := s.Execute(cmd)
		require.True(t, f.Done())

		_, err := f.Result()
		require.True(t, errors.IsType(err, models.ErrTypeProviderNotFound))
	})

	t.Run("preprocess", func(t *testing.T) {
		s, _ := newTestScheduler(t, 1, &testProvider{err: errors.New("bad tileset")})
		l := newTestLayer(t)

		err := s.PreprocessLayer(context.Background(), testProtocol, l)
		require.True(t, errors.IsType(err, models.ErrTypeConfiguration))

		err = s.PreprocessLayer(context.Background(), "unknown", l)
		require.True(t, errors.IsType(err, models.ErrTypeProviderNotFound))
	})
}

func TestSchedulerRateLimit(t *testing.T) {
	c, err := cache.New(100, 10)
	require.NoError(t, err)

	s := New(c, Options{Workers: 4, Rate: 0.001, Burst: 1})
	s.Register(testProtocol, &testProvider{})
	defer s.Close()

	l := newTestLayer(t)
	s.Execute(newTestCommand(t, l, "a", 1))
	s.Execute(newTestCommand(t, l, "b", 1))

	s.Dispatch()
	require.Len(t, s.inFlight, 1)
	require.Equal(t, 1, s.queue.Len())
}

func TestSchedulerClose(t *testing.T) {
	s, _ := newTestScheduler(t, 1, &testProvider{})
	l := newTestLayer(t)

	f := s.Execute(newTestCommand(t, l, "a", 1))
	s.Close()

	require.True(t, f.Done())
	_, err := f.Result()
	require.True(t, models.IsCancelled(err))
}
