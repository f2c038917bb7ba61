// Package server wires the reactor, client registry, keyspace,
// pub/sub hub, and background job pool together behind a single
// command dispatcher, the way a transport and session layer wire a
// listener to a hub.
package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/adred-codev/kvstore-core/internal/bgjobs"
	"github.com/adred-codev/kvstore-core/internal/client"
	"github.com/adred-codev/kvstore-core/internal/config"
	"github.com/adred-codev/kvstore-core/internal/keyspace"
	"github.com/adred-codev/kvstore-core/internal/metrics"
	"github.com/adred-codev/kvstore-core/internal/pubsub"
	"github.com/adred-codev/kvstore-core/internal/reactor"
)

// lruClockTickMillis matches the coarse 1Hz resolution OBJECT IDLETIME
// needs; a dedicated reactor timer advances the clock instead of
// calling time.Now() on every access.
const lruClockTickMillis = 1000

// Server owns every long-lived subsystem and implements
// client.Dispatcher.
type Server struct {
	cfg    config.Config
	logger *zap.Logger
	reg    *metrics.Registry

	loop    *reactor.Loop
	limits  client.Limits
	keys    *keyspace.Store
	persist keyspace.Persistence
	hub     *pubsub.Hub
	jobs    *bgjobs.Pool

	lruClock uint32

	mu      sync.Mutex
	clients map[uint64]*client.Client

	// asyncCloseLog throttles the "client scheduled for async close"
	// diagnostic line so a burst of soft/hard-limit evictions can't
	// flood the log the way an unbounded per-client log call would.
	asyncCloseLog rate.Sometimes

	natsSource *bgjobs.NATSSource

	listenFD int
}

// New constructs a Server with all subsystems initialized but not yet
// accepting connections.
func New(cfg config.Config, logger *zap.Logger, reg *metrics.Registry) (*Server, error) {
	loop, err := reactor.Create(cfg.Server.SetSize)
	if err != nil {
		return nil, errors.Wrap(err, "server: create reactor")
	}

	handlers := map[bgjobs.Type]bgjobs.Handler{
		bgjobs.CloseFile: func(j bgjobs.Job) {
			_ = unix.Close(int(j.Arg1))
		},
		bgjobs.AOFFsync: func(j bgjobs.Job) {},
	}

	s := &Server{
		cfg:           cfg,
		logger:        logger,
		reg:           reg,
		loop:          loop,
		limits:        client.NewLimits(cfg.Client),
		keys:          keyspace.NewStore(),
		persist:       keyspace.DefaultPersistence{},
		hub:           pubsub.NewHub(),
		jobs:          bgjobs.NewPool(handlers),
		clients:       make(map[uint64]*client.Client),
		asyncCloseLog: rate.Sometimes{Interval: time.Second},
		listenFD:      -1,
	}

	loop.SetOnIteration(func(fired int) {
		reg.ReactorIterations.Inc()
		reg.ReactorFired.Add(float64(fired))
	})
	s.hub.SetOnGaugeChange(func(channels, patterns int) {
		reg.PubSubChannels.Set(float64(channels))
		reg.PubSubPatterns.Set(float64(patterns))
	})
	s.jobs.SetGaugeHooks(
		func(t bgjobs.Type, pending int) {
			reg.BgJobsPending.WithLabelValues(t.String()).Set(float64(pending))
		},
		func(t bgjobs.Type) {
			reg.BgJobsProcessed.WithLabelValues(t.String()).Inc()
		},
	)

	loop.CreateTimer(lruClockTickMillis, s.tickLRUClock, nil, nil)
	loop.CreateTimer(lruClockTickMillis, s.sweepAsyncCloses, nil, nil)

	if cfg.BgJobs.NATSURL != "" {
		types := make([]bgjobs.Type, 0, len(handlers))
		for t := range handlers {
			types = append(types, t)
		}
		src, err := bgjobs.NewNATSSource(cfg.BgJobs.NATSURL, s.jobs, types, logger)
		if err != nil {
			return nil, errors.Wrap(err, "server: nats bgjobs source")
		}
		s.natsSource = src
	}

	return s, nil
}

// Close tears down the NATS bgjobs source and background workers, if any.
func (s *Server) Close() {
	if s.natsSource != nil {
		s.natsSource.Close()
	}
	s.jobs.KillAll()
}

func (s *Server) tickLRUClock(loop *reactor.Loop, id int64, data any) int64 {
	atomic.AddUint32(&s.lruClock, 1)
	return lruClockTickMillis
}

// sweepAsyncCloses runs once a second, freeing any client flagged for
// deferred teardown (FlagCloseASAP: an output-buffer limit, a read or
// write failure, or CLIENT KILL). Clients closed after a protocol error
// are freed by the writer once their reply is sent, not here.
func (s *Server) sweepAsyncCloses(loop *reactor.Loop, id int64, data any) int64 {
	s.mu.Lock()
	pending := make([]*client.Client, 0)
	for _, c := range s.clients {
		if c.PendingAsyncClose() {
			pending = append(pending, c)
		}
	}
	s.mu.Unlock()

	if len(pending) > 0 {
		s.asyncCloseLog.Do(func() {
			s.logger.Info("closing clients past output-buffer limits", zap.Int("count", len(pending)))
		})
	}
	if len(pending) > 0 {
		s.reg.ClientsClosedAsync.Add(float64(len(pending)))
	}
	for _, c := range pending {
		c.Free()
	}
	return lruClockTickMillis
}

// Listen creates, binds, and registers a non-blocking TCP listener on
// the reactor loop.
func (s *Server) Listen() error {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return fmt.Errorf("server: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: setsockopt reuseaddr: %w", err)
	}

	addr, err := parseIPv4(s.cfg.Server.Host)
	if err != nil {
		unix.Close(fd)
		return err
	}
	sa := &unix.SockaddrInet4{Port: s.cfg.Server.Port, Addr: addr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: bind: %w", err)
	}
	if err := unix.Listen(fd, 511); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: listen: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: set nonblocking: %w", err)
	}

	if err := s.loop.RegisterFile(fd, reactor.Readable, s.onAcceptable, nil, nil); err != nil {
		unix.Close(fd)
		return fmt.Errorf("server: register listener: %w", err)
	}
	s.listenFD = fd
	s.logger.Info("listening", zap.String("host", s.cfg.Server.Host), zap.Int("port", s.cfg.Server.Port))
	return nil
}

func (s *Server) onAcceptable(loop *reactor.Loop, fd int, data any, mask reactor.EventMask) {
	for {
		connFD, _, err := unix.Accept(fd)
		if err != nil {
			return
		}
		s.acceptConn(connFD)
	}
}

func (s *Server) acceptConn(fd int) {
	c, err := client.Create(client.Options{
		FD:              fd,
		Loop:            s.loop,
		Dispatcher:      s,
		Limits:          s.limits,
		Class:           client.ClassNormal,
		OnFree:          s.removeClient,
		OnProtocolError: s.reg.ProtocolErrors.Inc,
	})
	if err != nil {
		s.logger.Warn("accept client", zap.Error(err))
		unix.Close(fd)
		return
	}

	s.mu.Lock()
	s.clients[c.ID()] = c
	s.mu.Unlock()
	s.reg.ActiveClients.Inc()
}

func (s *Server) removeClient(c *client.Client) {
	s.mu.Lock()
	delete(s.clients, c.ID())
	s.mu.Unlock()
	s.hub.UnsubscribeAllChannels(c, false)
	s.hub.UnsubscribeAllPatterns(c, false)
	s.reg.ActiveClients.Dec()
}

// NewFakeClient returns an internal client with no socket, suitable
// for synchronous command execution (e.g. tests).
func (s *Server) NewFakeClient() *client.Client {
	c, _ := client.Create(client.Options{
		FD:              -1,
		Dispatcher:      s,
		Limits:          s.limits,
		Class:           client.ClassNormal,
		OnProtocolError: s.reg.ProtocolErrors.Inc,
	})
	return c
}

// Stop asks the event loop started by Run to return.
func (s *Server) Stop() { s.loop.Stop() }

// Run starts the single-threaded event loop. It blocks until Stop is called.
func (s *Server) Run() { s.loop.Run() }

func parseIPv4(host string) (addr [4]byte, err error) {
	if host == "" || host == "0.0.0.0" {
		return addr, nil
	}
	var a, b, c, d int
	n, scanErr := fmt.Sscanf(host, "%d.%d.%d.%d", &a, &b, &c, &d)
	if scanErr != nil || n != 4 {
		return addr, fmt.Errorf("server: invalid bind host %q", host)
	}
	addr[0], addr[1], addr[2], addr[3] = byte(a), byte(b), byte(c), byte(d)
	return addr, nil
}
