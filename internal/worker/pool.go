package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/andresmejia3/proctor/internal/types"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Engine is a single detection backend that can be checked out of a Pool.
type Engine interface {
	Detect(ctx context.Context, frame []byte) ([]types.Detection, error)
	Healthy() bool
	Close() error
}

// Factory starts engine number id.
type Factory func(ctx context.Context, id int) (Engine, error)

// ErrPoolClosed is returned by Detect after Close.
var ErrPoolClosed = errors.New("worker pool closed")

type slot struct {
	id     int
	engine Engine
}

// Pool shares a fixed number of engines between concurrent analysis runs.
// Each Detect call holds one engine exclusively. Broken engines are restarted
// on their next checkout.
type Pool struct {
	ctx     context.Context
	cancel  context.CancelFunc
	factory Factory
	logger  *zap.Logger
	slots   chan *slot
	size    int
}

// NewPool starts n engines up front so startup failures surface immediately.
func NewPool(ctx context.Context, n int, factory Factory, logger *zap.Logger) (*Pool, error) {
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Pool{
		ctx:     ctx,
		cancel:  cancel,
		factory: factory,
		logger:  logger,
		slots:   make(chan *slot, n),
		size:    n,
	}

	for i := 0; i < n; i++ {
		e, err := factory(ctx, i)
		if err != nil {
			// Put back what we have so Close can reap it
			for j := len(p.slots); j < n; j++ {
				p.slots <- &slot{id: j}
			}
			err = multierr.Append(fmt.Errorf("start engine %d: %w", i, err), p.Close())
			return nil, err
		}
		p.slots <- &slot{id: i, engine: e}
	}
	logger.Info("detector pool ready", zap.Int("engines", n))
	return p, nil
}

// Detect checks out an engine, restarting it first if it is unhealthy.
func (p *Pool) Detect(ctx context.Context, frame []byte) ([]types.Detection, error) {
	var s *slot
	var ok bool
	select {
	case s, ok = <-p.slots:
		if !ok {
			return nil, ErrPoolClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, ErrPoolClosed
	}
	defer func() { p.slots <- s }()

	if s.engine == nil || !s.engine.Healthy() {
		if s.engine != nil {
			if err := s.engine.Close(); err != nil {
				p.logger.Warn("closing broken engine", zap.Int("engine", s.id), zap.Error(err))
			}
			s.engine = nil
		}
		if p.ctx.Err() != nil {
			return nil, ErrPoolClosed
		}
		p.logger.Warn("restarting detector engine", zap.Int("engine", s.id))
		e, err := p.factory(p.ctx, s.id)
		if err != nil {
			return nil, fmt.Errorf("restart engine %d: %w", s.id, err)
		}
		s.engine = e
	}
	return s.engine.Detect(ctx, frame)
}

// Close waits for every engine to be returned and shuts them down.
func (p *Pool) Close() error {
	p.cancel()
	var err error
	for i := 0; i < p.size; i++ {
		s := <-p.slots
		if s.engine != nil {
			err = multierr.Append(err, s.engine.Close())
		}
	}
	close(p.slots)
	return err
}
