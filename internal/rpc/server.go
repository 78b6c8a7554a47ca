package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/scryforge/hub/internal/model"
	"github.com/scryforge/hub/internal/provider"
)

// Store is the subset of internal/store.Store the RPC layer reads and
// writes directly. Kept narrow so this package doesn't import the
// backend-dispatch internal/store package (and so tests can satisfy it
// with internal/store/memory or a hand-rolled fake).
type Store interface {
	GetStreams(ctx context.Context) ([]model.Stream, error)
	GetStream(ctx context.Context, id model.StreamID) (*model.Stream, error)
	GetItems(ctx context.Context, streamID model.StreamID, opts model.ListOptions) ([]model.Item, error)
	GetItem(ctx context.Context, id model.ItemID) (*model.Item, error)
	Search(ctx context.Context, query string, filter model.SearchFilter) ([]model.Item, error)

	MarkRead(ctx context.Context, id model.ItemID) error
	MarkUnread(ctx context.Context, id model.ItemID) error
	MarkSaved(ctx context.Context, id model.ItemID) error
	MarkUnsaved(ctx context.Context, id model.ItemID) error
	MarkArchived(ctx context.Context, id model.ItemID) error

	ListCollections(ctx context.Context) ([]model.Collection, error)
	GetCollection(ctx context.Context, id model.CollectionID) (*model.Collection, error)
	GetCollectionItems(ctx context.Context, id model.CollectionID) ([]model.Item, error)
	CreateCollection(ctx context.Context, name string) (model.Collection, error)
	AddToCollection(ctx context.Context, id model.CollectionID, itemID model.ItemID) error
	RemoveFromCollection(ctx context.Context, id model.CollectionID, itemID model.ItemID) error
}

// Scheduler is the subset of internal/sync.Scheduler the RPC layer needs
// for sync.status/sync.trigger.
type Scheduler interface {
	Status() map[string]model.ProviderSyncState
	Trigger(providerID string) error
}

// Registry is the subset of internal/registry.Registry the RPC layer
// needs to reach a provider (for best-effort action propagation and
// collection delegation).
type Registry interface {
	Get(id string) (provider.Provider, bool)
	Collections(id string) (provider.HasCollections, error)
}

// Server dispatches Scryforge's JSON-RPC 2.0 method table over
// newline-delimited connections.
type Server struct {
	store     Store
	scheduler Scheduler
	registry  Registry

	listener net.Listener
	wg       sync.WaitGroup
}

// New constructs a Server. Call Serve to accept connections.
func New(store Store, scheduler Scheduler, reg Registry) *Server {
	return &Server{store: store, scheduler: scheduler, registry: reg}
}

// Listen opens the configured transport: network is "unix" or "tcp",
// address is the socket path or host:port.
func Listen(network, address string) (net.Listener, error) {
	if network == "unix" {
		_ = removeStaleSocket(address)
	}
	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("rpc: listen %s %s: %w", network, address, err)
	}
	return ln, nil
}

// ParseBindAddress splits a "unix://<path>" or "tcp://<host:port>" bind
// address into the (network, address) pair net.Listen expects.
func ParseBindAddress(bind string) (network, address string, err error) {
	switch {
	case strings.HasPrefix(bind, "unix://"):
		return "unix", strings.TrimPrefix(bind, "unix://"), nil
	case strings.HasPrefix(bind, "tcp://"):
		return "tcp", strings.TrimPrefix(bind, "tcp://"), nil
	default:
		return "", "", fmt.Errorf("rpc: bind address %q must start with unix:// or tcp://", bind)
	}
}

// Serve accepts connections on ln until ctx is cancelled or Accept fails.
// Each connection is handled on its own goroutine with its own
// newline-delimited read loop.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.listener = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.wg.Wait()
				return nil
			default:
				return fmt.Errorf("rpc: accept: %w", err)
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// Wait blocks until every in-flight connection handler has returned,
// used by internal/hub during the shutdown grace window.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		resp := s.handleLine(ctx, line)
		if resp == nil {
			continue // pure notification batch, or all-notification line
		}
		if err := enc.Encode(resp); err != nil {
			slog.Warn("rpc: write response failed", "error", err)
			return
		}
	}
}

// handleLine decodes one newline-delimited unit, which per JSON-RPC 2.0
// is either a single request object or a batch array, and dispatches it.
// Returns nil when nothing should be written back (a lone
// notification, or a batch entirely of notifications).
func (s *Server) handleLine(ctx context.Context, line []byte) any {
	trimmed := strings.TrimSpace(string(line))
	if len(trimmed) == 0 {
		return nil
	}

	if trimmed[0] == '[' {
		var batch []json.RawMessage
		if err := json.Unmarshal(line, &batch); err != nil {
			return errResponse(nil, CodeParse, "parse error: "+err.Error())
		}
		if len(batch) == 0 {
			return errResponse(nil, CodeInvalidRequest, "empty batch")
		}

		var responses []Response
		for _, raw := range batch {
			resp, ok := s.handleSingle(ctx, raw)
			if ok {
				responses = append(responses, resp)
			}
		}
		if len(responses) == 0 {
			return nil
		}
		return responses
	}

	resp, ok := s.handleSingle(ctx, line)
	if !ok {
		return nil
	}
	return resp
}

// handleSingle decodes and dispatches one request object, returning
// (response, false) when req was a notification (no response expected).
func (s *Server) handleSingle(ctx context.Context, raw json.RawMessage) (Response, bool) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return errResponse(nil, CodeParse, "parse error: "+err.Error()), true
	}
	if req.JSONRPC != "2.0" {
		return errResponse(req.ID, CodeInvalidRequest, "jsonrpc must be \"2.0\""), true
	}
	if req.Method == "" {
		return errResponse(req.ID, CodeInvalidRequest, "method is required"), true
	}

	resp := s.dispatch(ctx, req)
	if isNotification(req) {
		return Response{}, false
	}
	return resp, true
}

// removeStaleSocket clears a leftover socket file from an unclean
// shutdown. If something is actually listening on it, it's left alone
// and net.Listen below will fail with "address already in use" instead
// of silently stealing the socket.
func removeStaleSocket(path string) error {
	if path == "" {
		return nil
	}
	conn, err := net.Dial("unix", path)
	if err == nil {
		conn.Close()
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
