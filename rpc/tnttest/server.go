package tnttest

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/lwtnt/rpc/common"
	"github.com/ValentinKolb/lwtnt/rpc/serializer"
	"github.com/ValentinKolb/lwtnt/rpc/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/valyala/bytebufferpool"
	"github.com/vmihailenco/msgpack/v5"
)

var Logger = logger.GetLogger(common.LoggerTestSrv)

// Version is the server version announced in the greeting
const Version = "Tarantool 2.11.0 (Binary) 7d8a5a5e-0c3a-4b52-9a3c-6f0d2b1e9c01"

const (
	errCodeUnknownRequestType uint32 = 48
	defaultMaxWorkersPerConn         = 64
)

// Func is a function callable through the server. It returns the values
// sent back as result array. ctx is canceled when the connection closes.
type Func func(ctx context.Context, args []interface{}) ([]interface{}, error)

// -----------------------------------------------------------
// Options
// -----------------------------------------------------------

// Option configures a Server
type Option func(*Server)

// WithAddress sets the listen address, e.g. to restart a server on the port
// of a closed one. Defaults to 127.0.0.1:0.
func WithAddress(network, address string) Option {
	return func(s *Server) {
		s.network, s.address = network, address
	}
}

// WithUser adds a user that may authenticate with chap-sha1
func WithUser(name, password string) Option {
	return func(s *Server) {
		s.users[name] = password
	}
}

// WithFunc registers a function
func WithFunc(name string, fn Func) Option {
	return func(s *Server) {
		s.funcs.Store(name, fn)
	}
}

// WithMaxWorkersPerConn limits the number of calls processed concurrently
// per connection
func WithMaxWorkersPerConn(n int) Option {
	return func(s *Server) {
		s.maxWorkersPerConn = max(n, 1)
	}
}

// WithoutGreeting makes the server accept connections without ever sending
// the greeting
func WithoutGreeting() Option {
	return func(s *Server) {
		s.silent = true
	}
}

// -----------------------------------------------------------
// Server
// -----------------------------------------------------------

// Server is an in-process IPROTO server. It speaks just enough of the
// protocol for the client: greeting, chap-sha1 auth and CALL.
type Server struct {
	network           string
	address           string
	users             map[string]string
	funcs             *xsync.MapOf[string, Func]
	maxWorkersPerConn int
	silent            bool

	listener   net.Listener
	serializer serializer.IProtoSerializer

	mu     sync.Mutex
	conns  map[net.Conn]context.CancelFunc
	closed bool
	wg     sync.WaitGroup

	calls    atomic.Int64
	accepted atomic.Int64
}

// NewServer starts a server with the built-in functions test1, test2,
// test3 and fiber.sleep registered
func NewServer(opts ...Option) (*Server, error) {
	s := &Server{
		network:           "tcp",
		address:           "127.0.0.1:0",
		users:             map[string]string{"guest": ""},
		funcs:             xsync.NewMapOf[string, Func](),
		maxWorkersPerConn: defaultMaxWorkersPerConn,
		serializer:        serializer.NewMsgpackSerializer(),
		conns:             make(map[net.Conn]context.CancelFunc),
	}
	registerBuiltins(s)
	for _, opt := range opts {
		opt(s)
	}

	if s.network == "unix" {
		// Remove existing socket file if it exists
		if err := os.RemoveAll(s.address); err != nil {
			return nil, fmt.Errorf("failed to remove existing socket: %v", err)
		}
	}

	listener, err := net.Listen(s.network, s.address)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %v", err)
	}
	s.listener = listener

	Logger.Infof("Starting %s server on %s with %d workers per connection",
		s.network, listener.Addr(), s.maxWorkersPerConn)

	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// Addr returns the address the server listens on
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// URL returns a url the client can connect to
func (s *Server) URL() string {
	if s.network == "unix" {
		return "unix/:" + s.Addr()
	}
	return s.Addr()
}

// Register adds or replaces a function
func (s *Server) Register(name string, fn Func) {
	s.funcs.Store(name, fn)
}

// Calls returns the number of call requests received
func (s *Server) Calls() int64 {
	return s.calls.Load()
}

// Accepted returns the number of accepted connections
func (s *Server) Accepted() int64 {
	return s.accepted.Load()
}

// CloseConnections closes all open connections, the server keeps accepting
// new ones
func (s *Server) CloseConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, cancel := range s.conns {
		conn.Close()
		cancel()
	}
}

// Close stops the listener, closes all connections and waits until all
// goroutines of the server returned
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	err := s.listener.Close()
	for conn, cancel := range s.conns {
		conn.Close()
		cancel()
	}
	s.mu.Unlock()

	s.wg.Wait()
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// serve accepts connections until the listener is closed
func (s *Server) serve() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		// canceled when the connection is done, unblocks slow functions
		ctx, cancel := context.WithCancel(context.Background())
		s.conns[conn] = cancel
		s.wg.Add(1)
		s.mu.Unlock()

		s.accepted.Add(1)

		// Handle the connection in a goroutine
		go s.handleConnection(ctx, cancel, conn)
	}
}

// handleConnection handles incoming requests for one connection
func (s *Server) handleConnection(ctx context.Context, cancel context.CancelFunc, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	defer cancel()

	if s.silent {
		// hold the connection open until the client gives up
		_, _ = io.Copy(io.Discard, conn)
		return
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		Logger.Errorf("Failed to create salt: %v", err)
		return
	}
	if _, err := conn.Write(common.FormatGreeting(Version, salt)); err != nil {
		Logger.Errorf("Failed to write greeting: %v", err)
		return
	}

	// Create a semaphore to limit concurrent workers for this connection
	// The buffered channel acts as a counting semaphore
	workerSemaphore := make(chan struct{}, s.maxWorkersPerConn)

	// Create a wait group to wait for all workers to finish
	var wg sync.WaitGroup

	// Create a mutex to protect writes to the connection
	var connMutex sync.Mutex

	respond := func(resp *common.Response) {
		buf := bytebufferpool.Get()
		defer bytebufferpool.Put(buf)

		if err := s.serializer.WriteResponse(buf, resp); err != nil {
			Logger.Errorf("Failed to encode response: %v", err)
			return
		}

		// Protect writes to the connection with a mutex
		connMutex.Lock()
		defer connMutex.Unlock()
		if err := base.WriteFrame(conn, buf.B); err != nil {
			Logger.Debugf("Failed to write response: %v", err)
		}
	}

	reader := bufio.NewReader(conn)
loop:
	for {
		frame, err := base.ReadFrame(reader)
		if err != nil {
			if err == io.EOF || errors.Is(err, net.ErrClosed) {
				Logger.Debugf("Connection closed")
			} else {
				Logger.Debugf("Error reading request: %v", err)
			}
			break loop
		}

		req, err := s.serializer.ReadRequest(frame)
		if err != nil {
			Logger.Errorf("Error decoding request: %v", err)
			break loop
		}

		switch req.Type {
		case common.RequestTypeAuth:
			respond(s.authenticate(req, salt))

		case common.RequestTypeCall:
			s.calls.Add(1)

			// Acquire a slot in the semaphore (blocks if maxWorkersPerConn is reached)
			select {
			case workerSemaphore <- struct{}{}:
			case <-ctx.Done():
				break loop
			}
			wg.Add(1)

			// Process in a goroutine, slow calls may be answered out of order
			go func() {
				defer func() {
					<-workerSemaphore // Release semaphore slot
					wg.Done()         // Mark worker as done
				}()

				start := time.Now()
				resp := s.call(ctx, req)
				Logger.Debugf("Processed call of %s with sync %d took %s", req.FunctionName, req.Sync, time.Since(start))
				respond(resp)
			}()

		default:
			respond(errorResponse(req.Sync, errCodeUnknownRequestType,
				fmt.Sprintf("Unknown request type %d", uint32(req.Type))))
		}
	}

	// Unblock running functions and wait for them before closing the connection
	cancel()
	wg.Wait()
}

// authenticate checks the chap-sha1 scramble of an auth request
func (s *Server) authenticate(req *common.Request, salt []byte) *common.Response {
	password, ok := s.users[req.UserName]
	if !ok {
		return errorResponse(req.Sync, common.ErrCodeNoSuchUser,
			fmt.Sprintf("User '%s' is not found", req.UserName))
	}
	if len(req.Args) != 2 || req.Args[0] != common.AuthMechanism ||
		string(req.Scramble) != string(common.Scramble(salt, password)) {
		return errorResponse(req.Sync, common.ErrCodePasswordMismatch,
			fmt.Sprintf("Incorrect password supplied for user '%s'", req.UserName))
	}
	return &common.Response{Sync: req.Sync}
}

// call runs the function of a call request
func (s *Server) call(ctx context.Context, req *common.Request) *common.Response {
	fn, ok := s.funcs.Load(req.FunctionName)
	if !ok {
		return errorResponse(req.Sync, common.ErrCodeNoSuchProc,
			fmt.Sprintf("Procedure '%s' is not defined", req.FunctionName))
	}

	result, err := fn(ctx, req.Args)
	if err != nil {
		return errorResponse(req.Sync, common.ErrCodeProcLua, err.Error())
	}
	if result == nil {
		result = []interface{}{}
	}

	data, err := msgpack.Marshal(result)
	if err != nil {
		return errorResponse(req.Sync, common.ErrCodeProcLua, fmt.Sprintf("failed to encode result: %v", err))
	}
	return &common.Response{Sync: req.Sync, Data: data}
}

func errorResponse(sync uint64, code uint32, msg string) *common.Response {
	return &common.Response{Sync: sync, Code: common.ErrorTypeFlag | code, Error: msg}
}
