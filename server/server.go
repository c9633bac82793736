// Package server exposes a cache to local clients over a UNIX domain
// socket.  Requests and responses are msgpack frames; each connection
// is served by its own goroutine and may carry any number of calls.
package server

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	. "github.com/stevegt/goadapt"
	"github.com/t7a/pitcache"
	"github.com/vmihailenco/msgpack"
)

type Server struct {
	Cache *pitcache.Cache
	Log   logrus.FieldLogger
	// Events receives a copy of each filesystem event seen under the
	// cache root, if non-nil.  Sends never block.
	Events chan fsnotify.Event

	dp       *Dispatcher
	watcher  *fsnotify.Watcher
	listener net.Listener
	done     chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
	conns    map[net.Conn]string
}

// New returns a Server for c.  The server watches c.Dir from the
// start; call Close to release the watcher.
func New(c *pitcache.Cache) (s *Server, err error) {
	defer Return(&err)

	s = &Server{
		Cache: c,
		Log:   c.Log,
		dp:    NewDispatcher(),
		done:  make(chan struct{}),
		conns: make(map[net.Conn]string),
	}
	s.register()

	s.watcher, err = fsnotify.NewWatcher()
	Ck(err)
	err = s.watcher.Add(c.Dir)
	if err != nil {
		s.watcher.Close()
		return nil, err
	}
	s.wg.Add(1)
	go s.watch()
	return
}

// Listen on a new UNIX domain socket at sock.  A stale socket file
// left by an earlier server is replaced.
// https://eli.thegreenplace.net/2019/unix-domain-sockets-in-go/
func (s *Server) Listen(sock string) (err error) {
	defer Return(&err)
	info, err := os.Lstat(sock)
	if err == nil && info.Mode()&os.ModeSocket != 0 {
		err = os.Remove(sock)
		Ck(err)
	}
	s.listener, err = net.Listen("unix", sock)
	Ck(err)
	return
}

// Serve accepts connections until ctx is done or Close is called.
func (s *Server) Serve(ctx context.Context) (err error) {
	Assert(s.listener != nil)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return nil
			default:
			}
			return err
		}
		id := uuid.New().String()
		s.mu.Lock()
		select {
		case <-s.done:
			s.mu.Unlock()
			conn.Close()
			return nil
		default:
		}
		s.conns[conn] = id
		s.wg.Add(1)
		s.mu.Unlock()
		go s.handle(conn, id)
	}
}

// Close stops the listener, drops open connections, and waits for
// their goroutines to finish.
func (s *Server) Close() (err error) {
	s.once.Do(func() {
		close(s.done)
		if s.listener != nil {
			err = s.listener.Close()
		}
		s.mu.Lock()
		for conn := range s.conns {
			conn.Close()
		}
		s.mu.Unlock()
		s.watcher.Close()
		s.wg.Wait()
	})
	return
}

// handle a single connection from a client
func (s *Server) handle(conn net.Conn, id string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	log := s.Log.WithField("conn", id)
	log.Debug("connected")

	dec := msgpack.NewDecoder(conn)
	enc := msgpack.NewEncoder(conn)
	for {
		var req Request
		err := dec.Decode(&req)
		if err == io.EOF {
			log.Debug("disconnected")
			return
		}
		if err != nil {
			log.Debugf("decode: %v", err)
			return
		}
		res := s.dp.Dispatch(&req)
		log.WithField("op", req.Op).WithField("key", req.Key).Debugf("code %q", res.Code)
		err = enc.Encode(res)
		if err != nil {
			log.Debugf("encode: %v", err)
			return
		}
	}
}

// watch clears the memo store whenever a content or index tree under
// the cache root is removed or renamed by anyone.
func (s *Server) watch() {
	defer s.wg.Done()
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 && isTree(event.Name) {
				s.Log.WithField("path", event.Name).Debug("cache tree gone, clearing memo")
				s.Cache.Memo.Clear()
			}
			if s.Events != nil {
				select {
				case s.Events <- event:
				default:
				}
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.Log.Warnf("watch %s: %v", s.Cache.Dir, err)
		}
	}
}

func isTree(path string) bool {
	name := filepath.Base(path)
	return strings.HasPrefix(name, "content-") || strings.HasPrefix(name, "index-")
}
