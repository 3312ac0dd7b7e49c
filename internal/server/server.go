package server

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/obstools/camd/internal/acquire"
	"github.com/obstools/camd/internal/device"
	"github.com/obstools/camd/internal/paths"
	"github.com/obstools/camd/internal/registry"
)

const (

	// Default TCP port for client connections.
	DefaultPort = 9160

	// Idle poll interval for connection reads; shutdown is serviced
	// between iterations.
	idlePollInterval = time.Second
)

// Runs one exposure cycle. Satisfied by acquire.Controller; narrowed to
// an interface so dispatch tests can script acquisition outcomes.
type acquirer interface {
	Acquire() ([]byte, error)
}

// Holds server configuration.
type Config struct {
	Port     int                // TCP port. Zero uses DefaultPort.
	Device   device.Capability  // The camera behind the capability boundary.
	Registry *registry.Registry // Site registry; may be nil on the bench.
	Spool    string             // FITS spool file path. Empty uses the default.
}

// Listens for client connections and dispatches acquisition commands.
type Server struct {
	port     int
	dev      device.Capability
	reg      *registry.Registry
	session  *acquire.Session
	ctrl     acquirer
	listener net.Listener
	done     chan struct{}

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// Creates a new server instance. The port is not bound until Start.
func New(cfg Config) (*Server, error) {
	if cfg.Device == nil {
		return nil, fmt.Errorf("%w: no device", ErrServer)
	}

	port := cfg.Port
	if port == 0 {
		port = DefaultPort
	}

	spool := cfg.Spool
	if spool == "" {
		spool = paths.SpoolFile()
	}

	session := acquire.NewSession(cfg.Device.Info())

	return &Server{
		port:    port,
		dev:     cfg.Device,
		reg:     cfg.Registry,
		session: session,
		ctrl:    acquire.New(cfg.Device, session, cfg.Registry, spool),
		done:    make(chan struct{}),
		conns:   make(map[*conn]struct{}),
	}, nil
}

// Binds the listening port, announces the server in the registry, and
// begins accepting connections.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("%w: listen on port %d: %v", ErrServer, s.port, err)
	}
	s.listener = listener

	if err := s.announce(); err != nil {
		listener.Close()
		return err
	}

	if err := writePID(); err != nil {
		slog.Warn("failed to write PID file", "error", err)
	}

	slog.Info("camd is ready to answer requests", "port", s.port)

	go s.accept()
	return nil
}

// Publishes the server's identity and running flag to the registry, and
// touches every parameter this process maintains.
func (s *Server) announce() error {
	if s.reg == nil {
		return nil
	}

	touches := []struct {
		path        string
		description string
	}{
		{registry.PathEtime, "Exposure Time"},
		{registry.PathGain, "Gain Value"},
		{registry.PathHostname, "Server Host Name"},
		{registry.PathIPAddress, "Server IP Address"},
		{registry.PathPort, "Command Server Port Number"},
		{registry.PathServerRunning, "Command Server Running Flag"},
	}
	for _, tc := range touches {
		if err := s.reg.Touch(tc.path, tc.description); err != nil {
			return fmt.Errorf("%w: touch %s: %v", ErrServer, tc.path, err)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("%w: hostname: %v", ErrServer, err)
	}

	puts := []struct {
		path  string
		value string
	}{
		{registry.PathHostname, hostname},
		{registry.PathIPAddress, localIPAddress()},
		{registry.PathPort, strconv.Itoa(s.port)},
		{registry.PathEtime, fmt.Sprintf("%.4f", s.session.Etime())},
	}
	for _, p := range puts {
		if err := s.reg.PutString(p.path, p.value); err != nil {
			return fmt.Errorf("%w: %v", ErrServer, err)
		}
	}

	return s.reg.PutBool(registry.PathServerRunning, true)
}

// Returns the first non-loopback IPv4 address, or the empty string.
func localIPAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		slog.Warn("unable to enumerate interface addresses", "error", err)
		return ""
	}

	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || ipnet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}

func writePID() error {
	if err := os.MkdirAll(paths.Runtime(), paths.DefaultDirMode); err != nil {
		return err
	}
	pid := strconv.Itoa(os.Getpid())
	return os.WriteFile(paths.PIDFile(), []byte(pid+"\n"), paths.DefaultFileMode)
}

// Shuts down the server: clears the registry running flag, stops the
// listener, and closes every live connection.
func (s *Server) Stop() error {
	if s.reg != nil {
		if err := s.reg.PutBool(registry.PathServerRunning, false); err != nil {
			slog.Error("failed to clear running flag", "error", err)
		}
	}

	close(s.done)

	if s.listener != nil {
		s.listener.Close()
	}

	s.mu.Lock()
	for c := range s.conns {
		c.nc.Close()
	}
	s.mu.Unlock()

	os.Remove(paths.PIDFile())
	return nil
}

// Blocks until the server stops.
func (s *Server) Wait() {
	<-s.done
}

// Accepts connections in a loop until the server shuts down.
func (s *Server) accept() {
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				slog.Error("accept error", "error", err)
				continue
			}
		}

		go s.handle(newConn(nc))
	}
}

// Services one client for the life of its connection.
//
// Reads a command line, dispatches it, and writes the response. An
// empty response is the disconnect signal. After a successful image
// response the connection streams the armed payload before reading the
// next command. Reads poll at a bounded interval so shutdown is never
// blocked on an idle client.
func (s *Server) handle(c *conn) {
	defer c.nc.Close()

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	slog.Info("client connected",
		"id", c.id,
		"host", c.hostname,
		"addr", c.nc.RemoteAddr().String(),
	)

	defer func() {
		s.mu.Lock()
		delete(s.conns, c)
		s.mu.Unlock()

		c.release()
		slog.Info("client disconnected", "id", c.id, "host", c.hostname)
	}()

	reader := bufio.NewReader(c.nc)

	for {
		line, err := s.readLine(c, reader)
		if err != nil {
			return
		}

		slog.Debug("recv", "id", c.id, "line", line)

		response := s.dispatch(c, line)
		if response == "" {
			return
		}

		slog.Debug("send", "id", c.id, "response", response)

		if _, err := c.nc.Write([]byte(response + "\n")); err != nil {
			slog.Error("write failed", "id", c.id, "error", err)
			return
		}

		if c.mode == modeBinaryStreaming {
			if err := s.stream(c); err != nil {
				slog.Error("binary stream failed", "id", c.id, "error", err)
				return
			}
		}
	}
}

// Reads one command line, polling so shutdown can interrupt an idle
// connection.
func (s *Server) readLine(c *conn, reader *bufio.Reader) (string, error) {
	for {
		select {
		case <-s.done:
			return "", net.ErrClosed
		default:
		}

		if err := c.nc.SetReadDeadline(time.Now().Add(idlePollInterval)); err != nil {
			return "", err
		}

		line, err := reader.ReadString('\n')
		if err == nil {
			c.nc.SetReadDeadline(time.Time{})
			return line, nil
		}

		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			continue
		}
		return "", err
	}
}

// Writes the armed payload in bounded chunks until the zero-length
// end-of-stream chunk reverts the connection to text framing.
func (s *Server) stream(c *conn) error {
	sent := 0
	for {
		chunk := c.nextChunk()
		if len(chunk) == 0 {
			slog.Info("image streamed", "id", c.id, "bytes", sent)
			return nil
		}

		if _, err := c.nc.Write(chunk); err != nil {
			c.release()
			return err
		}
		sent += len(chunk)
	}
}
