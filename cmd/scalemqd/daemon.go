package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/oriys/scalemq/internal/circuitbreaker"
	"github.com/oriys/scalemq/internal/config"
	"github.com/oriys/scalemq/internal/controlapi"
	"github.com/oriys/scalemq/internal/eventbus"
	"github.com/oriys/scalemq/internal/eventlog"
	"github.com/oriys/scalemq/internal/logging"
	"github.com/oriys/scalemq/internal/metrics"
	"github.com/oriys/scalemq/internal/observability"
	"github.com/oriys/scalemq/internal/platform"
	"github.com/oriys/scalemq/internal/ratelimit"
	"github.com/oriys/scalemq/internal/socket"
	"github.com/oriys/scalemq/internal/spec"
	"github.com/oriys/scalemq/internal/transport"
)

// desiredNoFiles is the soft RLIMIT_NOFILE scalemqd asks for when
// raise_nofiles is set — enough headroom for a busy fan-in of TCP/vsock
// pipes without chasing a dynamic estimate.
const desiredNoFiles = 65536

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the scalemqd daemon against a socket topology",
		RunE:  runDaemon,
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)

	if topologyFile == "" {
		return fmt.Errorf("--topology is required")
	}
	topo, err := spec.ParseFile(topologyFile)
	if err != nil {
		return fmt.Errorf("load topology: %w", err)
	}
	topo.ApplyDefaults(cfg.Queue.DefaultCapacity)
	if err := topo.Validate(); err != nil {
		return fmt.Errorf("invalid topology: %w", err)
	}

	logging.SetLevelFromString(cfg.Observability.Logging.Level)
	logging.InitStructured(cfg.Observability.Logging.Format, cfg.Observability.Logging.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
	}); err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := observability.Shutdown(shutdownCtx); err != nil {
			logging.Op().Warn("observability shutdown error", "err", err)
		}
	}()

	if cfg.Observability.Metrics.Enabled {
		metrics.Init(cfg.Observability.Metrics.Namespace, nil)
	}

	if cfg.Daemon.RaiseNoFiles {
		got, err := platform.RaiseNoFileLimit(desiredNoFiles)
		if err != nil {
			logging.Op().Warn("raise nofile limit failed", "err", err)
		} else {
			logging.Op().Info("raised nofile limit", "limit", got)
		}
	}

	var cbRegistry *circuitbreaker.Registry
	var cbConfig circuitbreaker.Config
	if cfg.CircuitBreaker.Enabled {
		cbRegistry = circuitbreaker.NewRegistry()
		cbConfig = circuitbreaker.Config{
			ErrorPct:       cfg.CircuitBreaker.ErrorPct,
			WindowDuration: cfg.CircuitBreaker.WindowDuration,
			OpenDuration:   cfg.CircuitBreaker.OpenDuration,
			HalfOpenProbes: cfg.CircuitBreaker.HalfOpenProbes,
		}
	}

	var redisClient *redis.Client
	if cfg.Transport.RedisStream.Enabled || cfg.RateLimit.Redis.Enabled {
		addr := cfg.Transport.RedisStream.Addr
		if cfg.RateLimit.Redis.Enabled && cfg.RateLimit.Redis.Addr != "" {
			addr = cfg.RateLimit.Redis.Addr
		}
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
	}

	var gate *ratelimit.Gate
	if cfg.RateLimit.Enabled {
		var backend ratelimit.Backend
		if cfg.RateLimit.Redis.Enabled && redisClient != nil {
			backend = ratelimit.NewFallbackBackend(ratelimit.NewRedisBackend(redisClient))
		} else {
			backend = ratelimit.NewLocalTokenBucketBackend()
		}
		defaultTier := ratelimit.Tier{
			MaxTokens:  cfg.RateLimit.Default.BurstSize,
			RefillRate: cfg.RateLimit.Default.RequestsPerSecond,
		}
		gate = ratelimit.NewGate(backend, nil, defaultTier)
	}

	var eventStore *eventlog.Store
	var eventSink *eventlog.Sink
	if cfg.EventLog.Enabled {
		store, err := eventlog.New(ctx, cfg.EventLog.DSN)
		if err != nil {
			return fmt.Errorf("init event log: %w", err)
		}
		eventStore = store
		eventSink = eventlog.NewSink(store)
		eventSink.Start()
	}

	registry := controlapi.NewRegistry()
	inprocRegistry := transport.NewInprocRegistry()

	sockets, closers, err := wireTopology(ctx, cfg, topo, registry, cbRegistry, cbConfig, gate, inprocRegistry, redisClient, eventSink)
	if err != nil {
		return fmt.Errorf("wire topology: %w", err)
	}

	var metricsServer *http.Server
	if cfg.Observability.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Daemon.MetricsAddr, Handler: observability.HTTPMiddleware(mux)}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logging.Op().Warn("metrics server stopped", "err", err)
			}
		}()
		logging.Op().Info("metrics endpoint listening", "addr", cfg.Daemon.MetricsAddr)
	}

	grpcServer := grpc.NewServer()
	controlapi.Register(grpcServer, controlapi.NewServer(registry))
	controlLn, err := net.Listen("tcp", cfg.Daemon.ControlAddr)
	if err != nil {
		return fmt.Errorf("listen control api: %w", err)
	}
	go func() {
		if err := grpcServer.Serve(controlLn); err != nil {
			logging.Op().Warn("control api server stopped", "err", err)
		}
	}()
	logging.Op().Info("control api listening", "addr", cfg.Daemon.ControlAddr)
	logging.Op().Info("scalemqd started", "sockets", len(sockets))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			logging.Op().Info("received shutdown signal", "signal", sig.String())
			return shutdownDaemon(grpcServer, metricsServer, closers, sockets, eventSink, eventStore, cfg)
		case <-ticker.C:
			for _, sock := range sockets {
				metrics.SetQueueDepth(string(sock.ID), "send", sock.Send.Len())
				metrics.SetQueueCapacity(string(sock.ID), "send", sock.Send.Cap())
				metrics.SetQueueDepth(string(sock.ID), "recv", sock.Recv.Len())
				metrics.SetQueueCapacity(string(sock.ID), "recv", sock.Recv.Cap())
			}
		}
	}
}

// shutdownDaemon tears down every running component in dependency order:
// stop accepting new work (gRPC, metrics HTTP), close transports so pump
// goroutines exit, close sockets, then flush and close the event log.
func shutdownDaemon(grpcServer *grpc.Server, metricsServer *http.Server, closers []io.Closer, sockets []*socket.Socket, sink *eventlog.Sink, store *eventlog.Store, cfg *config.Config) error {
	grpcServer.GracefulStop()

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.DrainTimeout)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}

	for _, c := range closers {
		if err := c.Close(); err != nil {
			logging.Op().Warn("closing transport", "err", err)
		}
	}
	for _, sock := range sockets {
		sock.Close()
	}
	if sink != nil {
		sink.Stop()
	}
	if store != nil {
		store.Close()
	}

	logging.Op().Info("scalemqd shut down cleanly")
	return nil
}

// wireTopology builds one socket per spec.SocketSpec and attaches every
// endpoint it declares to the transport the spec names.
func wireTopology(
	ctx context.Context,
	cfg *config.Config,
	topo *spec.Topology,
	registry *controlapi.Registry,
	cb *circuitbreaker.Registry,
	cbConfig circuitbreaker.Config,
	gate *ratelimit.Gate,
	inprocRegistry *transport.InprocRegistry,
	redisClient *redis.Client,
	sink *eventlog.Sink,
) ([]*socket.Socket, []io.Closer, error) {
	var sockets []*socket.Socket
	var closers []io.Closer

	for i := range topo.Sockets {
		s := &topo.Sockets[i]
		sock, err := socket.New(s.SendCapacity, s.RecvCapacity)
		if err != nil {
			return nil, nil, fmt.Errorf("create socket %q: %w", s.Name, err)
		}
		registry.Register(sock)
		sockets = append(sockets, sock)

		if sink != nil {
			observeLifecycle(sock, sink)
		}

		for _, ep := range s.Endpoints {
			closer, err := wireEndpoint(ctx, cfg, s.Name, ep, sock, cb, cbConfig, gate, inprocRegistry, redisClient)
			if err != nil {
				return nil, nil, fmt.Errorf("socket %q endpoint %s %s: %w", s.Name, ep.Transport, ep.Address, err)
			}
			if closer != nil {
				closers = append(closers, closer)
			}
		}
	}

	return sockets, closers, nil
}

func wireEndpoint(
	ctx context.Context,
	cfg *config.Config,
	socketName string,
	ep spec.EndpointSpec,
	sock *socket.Socket,
	cb *circuitbreaker.Registry,
	cbConfig circuitbreaker.Config,
	gate *ratelimit.Gate,
	inprocRegistry *transport.InprocRegistry,
	redisClient *redis.Client,
) (io.Closer, error) {
	switch ep.Transport {
	case "tcp":
		if ep.Listen {
			return transport.ListenTCP(ep.Address, sock)
		}
		return transport.DialTCP(ctx, ep.Address, sock, cb, cbConfig, cfg.Transport.TCP.DialTimeout)

	case "vsock":
		if ep.Listen {
			port, err := parseVsockPort(ep.Address)
			if err != nil {
				return nil, err
			}
			return transport.ListenVsock(port, sock)
		}
		cid, port, err := parseVsockPeer(ep.Address)
		if err != nil {
			return nil, err
		}
		return transport.DialVsock(cid, port, sock)

	case "redisstream":
		if redisClient == nil {
			return nil, fmt.Errorf("redisstream endpoint requires transport.redis_stream.enabled or rate_limit.redis.enabled")
		}
		streamName := ep.Address
		if streamName == "" {
			streamName = cfg.Transport.RedisStream.Stream
		}
		consumer := fmt.Sprintf("%s-%s", socketName, sock.ID)
		return transport.StartRedisStream(ctx, redisClient, streamName, cfg.Transport.RedisStream.Group, consumer, sock)

	case "inproc":
		if ep.Listen {
			return listenInproc(inprocRegistry, ep.Address, sock, gate)
		}
		return dialInproc(inprocRegistry, ep.Address, sock, gate)

	default:
		return nil, fmt.Errorf("unknown transport %q", ep.Transport)
	}
}

func parseVsockPort(addr string) (uint32, error) {
	port, err := strconv.ParseUint(addr, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid vsock listen port %q: %w", addr, err)
	}
	return uint32(port), nil
}

func parseVsockPeer(addr string) (cid, port uint32, err error) {
	parts := strings.SplitN(addr, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("vsock dial address must be cid:port, got %q", addr)
	}
	c, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vsock cid %q: %w", parts[0], err)
	}
	p, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid vsock port %q: %w", parts[1], err)
	}
	return uint32(c), uint32(p), nil
}

// inprocListener is the io.Closer wiring hands back for a listening
// inproc endpoint — InprocRegistry has no listener type of its own the
// way TCPListener/VsockListener do, so this fills that role.
type inprocListener struct {
	reg     *transport.InprocRegistry
	address string
	sock    *socket.Socket
	epID    socket.ID
}

func (l *inprocListener) Close() error {
	l.reg.CloseListener(l.address)
	e := l.sock.RemoveEndpoint(socket.Endpoint{ID: l.epID})
	l.sock.Bus.Wait(e)
	return nil
}

func listenInproc(reg *transport.InprocRegistry, address string, sock *socket.Socket, gate *ratelimit.Gate) (io.Closer, error) {
	epID := socket.NewID()
	e := sock.AddEndpoint(socket.Endpoint{ID: epID, Address: address})
	sock.Bus.Wait(e)

	ch, err := reg.Listen(address)
	if err != nil {
		return nil, err
	}
	go func() {
		for conn := range ch {
			if gate != nil {
				transport.NewGatedPipe(conn, sock, epID, "inproc", gate)
			} else {
				transport.NewPipe(conn, sock, epID, "inproc")
			}
		}
	}()
	return &inprocListener{reg: reg, address: address, sock: sock, epID: epID}, nil
}

func dialInproc(reg *transport.InprocRegistry, address string, sock *socket.Socket, gate *ratelimit.Gate) (io.Closer, error) {
	conn, err := reg.Dial(address)
	if err != nil {
		return nil, err
	}
	epID := socket.NewID()
	e := sock.AddEndpoint(socket.Endpoint{ID: epID, Address: address})
	sock.Bus.Wait(e)

	if gate != nil {
		return transport.NewGatedPipe(conn, sock, epID, "inproc", gate), nil
	}
	return transport.NewPipe(conn, sock, epID, "inproc"), nil
}

// lifecycleMask is every event type fed to the event log: the full
// lifecycle taxonomy, not just the error/teardown subset controlapi's
// WatchEvents tails.
const lifecycleMask = eventbus.CanSend | eventbus.CanRecv | eventbus.PipeAdd | eventbus.PipeRem | eventbus.EndpointAdd | eventbus.EndpointRem | eventbus.SocketError

// observeLifecycle feeds every event a socket's bus delivers into sink
// for durable auditing.
func observeLifecycle(sock *socket.Socket, sink *eventlog.Sink) {
	sock.Bus.AddListener(lifecycleMask, func(e *eventbus.Event) {
		sink.Enqueue(&logging.EventLogEntry{
			Timestamp:  time.Now(),
			SocketID:   e.SocketID,
			EventType:  eventTypeName(e.Type),
			EndpointID: e.EndpointID,
			PipeID:     e.PipeID,
		})
	})
}

func eventTypeName(t eventbus.EventType) string {
	switch t {
	case eventbus.CanSend:
		return "CAN_SEND"
	case eventbus.CanRecv:
		return "CAN_RECV"
	case eventbus.PipeAdd:
		return "PIPE_ADD"
	case eventbus.PipeRem:
		return "PIPE_REM"
	case eventbus.EndpointAdd:
		return "ENDPOINT_ADD"
	case eventbus.EndpointRem:
		return "ENDPOINT_REM"
	case eventbus.SocketError:
		return "SOCKET_ERROR"
	default:
		return "UNKNOWN"
	}
}
