// File: server/service.go
// Package server implements the shmipc facade: owns the control-socket
// listener, the handler registry, the dispatch executor, and the
// metrics/control surface, grounded on the teacher's HioloadWS facade
// (New/Start/Stop/Shutdown, RegisterHandler, GetControl) retargeted
// from a WebSocket reactor onto the shared-memory handshake/stream
// pair.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/momentics/shmipc/adapters"
	"github.com/momentics/shmipc/api"
	"github.com/momentics/shmipc/codec"
	"github.com/momentics/shmipc/control"
	"github.com/momentics/shmipc/handshake"
	"github.com/momentics/shmipc/internal/concurrency"
	"github.com/momentics/shmipc/internal/session"
	"github.com/momentics/shmipc/metrics"
	"github.com/momentics/shmipc/pool"
	"github.com/momentics/shmipc/stream"
)

// ErrAlreadyStarted is returned by Start if called more than once.
var ErrAlreadyStarted = errors.New("server: already started")

// Service is the top-level facade a binary embeds to run a shmipc
// endpoint: bind the control socket, accept handshakes, dispatch
// decoded messages to registered handlers, and export metrics/control
// probes.
type Service struct {
	cfg Config
	log *zap.Logger

	listener   *handshake.Listener
	registry   *registry
	executor   *concurrency.Executor
	scheduler  *concurrency.Scheduler
	control    api.Control
	bufMgr     *pool.BufferPoolManager
	affinity   api.Affinity
	sessions   session.SessionManager
	ctxFactory api.ContextFactory

	counters *metrics.Counters
	hist     *metrics.Histogram
	exporter *metrics.Exporter

	startedAt time.Time

	mu         sync.Mutex
	started    bool
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// Version identifies the shmipc transport implementation reported via Info.
const Version = "0.1.0"

// New builds a Service bound to cfg.SocketPath but does not yet accept
// connections; call Start for that. A nil logger defaults to a no-op
// logger.
func New(cfg *Config, log *zap.Logger) (*Service, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if log == nil {
		log = zap.NewNop()
	}

	ln, err := handshake.Listen(handshake.Config{
		SocketPath: cfg.SocketPath,
		MaxSlots:   cfg.MaxSlots,
		TXCapacity: cfg.TXCapacity,
		RXCapacity: cfg.RXCapacity,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	workers := cfg.NumWorkers
	if workers <= 0 {
		workers = runtime.NumCPU() / 4
		if workers < 1 {
			workers = 1
		}
	}

	svc := &Service{
		cfg:        *cfg,
		log:        log,
		listener:   ln,
		registry:   newRegistry(),
		executor:   concurrency.NewExecutor(workers, cfg.NUMANode),
		scheduler:  concurrency.NewScheduler(),
		control:    adapters.NewControlAdapter(),
		bufMgr:     pool.NewBufferPoolManager(concurrency.NUMANodes()),
		affinity:   adapters.NewAffinityAdapter(),
		sessions:   session.NewSessionManager(workers),
		ctxFactory: adapters.NewContextAdapter(),
		counters:   &metrics.Counters{},
		hist:       metrics.NewHistogram(cfg.HistogramSampleEvery, cfg.HistogramReservoir),
		shutdownCh: make(chan struct{}),
		startedAt:  time.Now(),
	}
	registryGetter, ok := svc.control.(interface {
		GetMetricsRegistry() *control.MetricsRegistry
	})
	if !ok {
		ln.Close()
		return nil, fmt.Errorf("server: control adapter missing metrics registry accessor")
	}
	svc.exporter = metrics.NewExporter(svc.counters, svc.hist, registryGetter.GetMetricsRegistry(), cfg.MetricsInterval)

	svc.control.SetConfig(map[string]any{
		"socket_path": cfg.SocketPath,
		"max_slots":   cfg.MaxSlots,
		"tx_capacity": cfg.TXCapacity,
		"rx_capacity": cfg.RXCapacity,
		"num_workers": workers,
	})
	svc.control.RegisterDebugProbe("active_streams", func() any {
		return len(svc.listener.Slots())
	})
	svc.control.RegisterDebugProbe("active_sessions", func() any {
		n := 0
		svc.sessions.Range(func(session.Session) { n++ })
		return n
	})

	return svc, nil
}

// RegisterHandler binds fn to msgType; messages of that type arriving on
// any stream are dispatched to fn on the executor pool. Safe to call
// before or after Start. Returns an error if msgType is
// codec.ErrorFrameType, reserved for error-typed replies.
func (s *Service) RegisterHandler(msgType uint16, fn HandlerFunc) error {
	return s.registry.register(msgType, fn)
}

// Start binds the accept loop onto its own goroutine and returns
// immediately; Shutdown (or ctx's cancellation) stops it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.started = true
	s.mu.Unlock()

	go s.exporter.Run()

	s.wg.Add(1)
	go s.acceptLoop()

	if ctx != nil {
		go func() {
			<-ctx.Done()
			_ = s.Shutdown(context.Background())
		}()
	}
	return nil
}

func (s *Service) acceptLoop() {
	defer s.wg.Done()
	if s.cfg.NUMANode >= 0 {
		if err := s.affinity.Pin(-1, s.cfg.NUMANode); err != nil {
			s.log.Warn("accept loop affinity pin failed", zap.Error(err))
		}
	}
	for {
		st, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdownCh:
				return
			default:
				s.log.Error("accept failed", zap.Error(err))
				return
			}
		}
		s.wg.Add(1)
		go s.serveStream(st)
	}
}

// serveStream owns one connection end-to-end: it reads frames until the
// stream closes or a fatal error occurs, dispatching each to its
// registered handler on the executor pool. A per-connection idle timer
// (rearmed on every successful read) enforces cfg.IdleTimeout.
func (s *Service) serveStream(st *stream.Stream) {
	defer s.wg.Done()
	defer st.Close()

	sessID := fmt.Sprintf("slot-%d", st.SlotID())
	sess, _ := s.sessions.Create(sessID)
	sess.Context().Set("slot_id", st.SlotID(), false)
	defer s.sessions.Delete(sessID)

	var idleMu sync.Mutex
	var idle api.Cancelable
	rearm := func() {
		if s.cfg.IdleTimeout <= 0 {
			return
		}
		idleMu.Lock()
		defer idleMu.Unlock()
		if idle != nil {
			s.scheduler.Cancel(idle)
		}
		idle, _ = s.scheduler.Schedule(int64(s.cfg.IdleTimeout), func() {
			s.log.Info("closing idle connection", zap.Uint32("slot", st.SlotID()))
			sess.Cancel()
			st.Close()
		})
	}
	rearm()
	defer func() {
		idleMu.Lock()
		if idle != nil {
			s.scheduler.Cancel(idle)
		}
		idleMu.Unlock()
	}()

	for {
		h, buf, err := s.readFrame(st)
		if err != nil {
			if !errors.Is(err, stream.ErrClosed) {
				// Bad magic/version/CRC: protocol errors are fatal to the
				// connection, so the read loop exits (and st.Close runs
				// via defer) without ever framing a reply.
				s.counters.RecordReadError()
				s.log.Warn("frame decode failed, closing connection",
					zap.Uint32("slot", st.SlotID()), zap.Error(err))
			}
			return
		}
		rearm()
		s.counters.RecordRead(len(buf.Data))
		s.dispatch(st, h.Type, h.CorrelationID, buf)
	}
}

// ringReleaser adapts a stream.ReadFrameBorrowed release closure to the
// api.Releaser interface so a borrowed payload can be handed to dispatch
// as an ordinary api.Buffer and released the same way as a pooled one.
type ringReleaser func()

func (r ringReleaser) Put(api.Buffer) { r() }

// readFrame reads the next frame per cfg.ZeroCopyReads: either borrowed
// directly from the RX ring, or copied into a pooled buffer.
func (s *Service) readFrame(st *stream.Stream) (codec.Header, api.Buffer, error) {
	if s.cfg.ZeroCopyReads {
		h, payload, release, err := st.ReadFrameBorrowed(0)
		if err != nil {
			return codec.Header{}, api.Buffer{}, err
		}
		return h, api.Buffer{Data: payload, Pool: ringReleaser(release)}, nil
	}
	return st.ReadFrameInto(s.bufMgr, s.cfg.NUMANode, 0)
}

// writeErrorReply frames errObj as an ErrorFrameType reply carrying
// correlationID, per the "Handler" error-taxonomy class: the failure is
// reported to the peer but the connection continues.
func (s *Service) writeErrorReply(st *stream.Stream, correlationID uint64, errObj *api.Error) {
	if werr := st.WriteFrame(codec.ErrorFrameType, correlationID, api.EncodeError(errObj), s.cfg.WriteTimeout); werr != nil {
		s.counters.RecordWriteError()
		if errors.Is(werr, stream.ErrBackpressure) {
			s.counters.RecordBackpressure()
		}
		s.log.Warn("failed to write error reply", zap.Error(werr), zap.Any("cause", errObj))
	}
}

func (s *Service) dispatch(st *stream.Stream, msgType uint16, correlationID uint64, payload api.Buffer) {
	start := time.Now()
	reqCtx := s.ctxFactory.NewContext()
	reqCtx.Set("msg_type", msgType, false)
	reqCtx.Set("correlation_id", correlationID, false)

	err := s.executor.Submit(func() {
		defer payload.Release()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("handler panic recovered",
					zap.Any("panic", r), zap.Uint16("type", msgType))
				s.counters.RecordWriteError()
				s.writeErrorReply(st, correlationID,
					api.NewError(api.ErrCodeHandler, fmt.Sprintf("handler panic: %v", r)))
			}
			s.hist.Observe(int64(time.Since(start)))
		}()

		fn, ok := s.registry.lookup(msgType)
		if !ok {
			s.log.Warn("unregistered message type", zap.Uint16("type", msgType))
			s.counters.RecordWriteError()
			s.writeErrorReply(st, correlationID,
				api.NewError(api.ErrCodeHandler, fmt.Sprintf("no handler registered for type %d", msgType)))
			return
		}
		resp, herr := fn(st.SlotID(), correlationID, payload.Data)
		if herr != nil {
			mt, _ := reqCtx.Get("msg_type")
			s.log.Warn("handler error", zap.Error(herr), zap.Any("type", mt))
			s.counters.RecordWriteError()
			s.writeErrorReply(st, correlationID, api.NewError(api.ErrCodeHandler, herr.Error()))
			return
		}
		if resp == nil {
			return
		}
		if werr := st.WriteFrame(msgType, correlationID, resp, s.cfg.WriteTimeout); werr != nil {
			s.counters.RecordWriteError()
			if errors.Is(werr, stream.ErrBackpressure) {
				s.counters.RecordBackpressure()
			}
			return
		}
		s.counters.RecordWrite(len(resp))
	})
	if err != nil {
		payload.Release()
		s.log.Error("dispatch failed", zap.Error(err))
		s.counters.RecordReadError()
	}
}

// Shutdown stops accepting new connections, closes every active stream,
// and waits for in-flight dispatch to drain or ctx/ShutdownTimeout to
// elapse, whichever comes first.
func (s *Service) Shutdown(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	close(s.shutdownCh)
	s.listener.Close()
	for _, st := range s.listener.Slots() {
		st.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		s.log.Warn("shutdown timeout elapsed with handlers still draining")
	case <-ctx.Done():
	}

	s.exporter.Stop()
	s.executor.Close()
	return nil
}

// Stats returns the merged config/metrics/debug snapshot exposed by the
// control adapter.
func (s *Service) Stats() map[string]any {
	return s.control.Stats()
}

// Control exposes the underlying control surface directly, e.g. for an
// operator CLI to call SetConfig/OnReload.
func (s *Service) Control() api.Control {
	return s.control
}

// Info describes this running Service for an operator tool or health
// endpoint.
func (s *Service) Info() api.ServiceInfo {
	return api.ServiceInfo{
		Name:      "shmipc",
		Version:   Version,
		StartedAt: s.startedAt,
	}
}

// Metrics snapshots traffic and session counters alongside Info's
// StartedAt, for callers that want the numeric summary rather than the
// full Stats() map.
func (s *Service) Metrics() api.APIMetrics {
	sessions := 0
	s.sessions.Range(func(session.Session) { sessions++ })
	return api.APIMetrics{
		NumSessions:     sessions,
		NumMessages:     int(s.counters.ReadCount.Load() + s.counters.WriteCount.Load()),
		InboundTraffic:  s.counters.ReadBytes.Load(),
		OutboundTraffic: s.counters.WriteBytes.Load(),
		StartedAt:       s.startedAt,
	}
}
