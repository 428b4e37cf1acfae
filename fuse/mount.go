package fuse

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	gofuse "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/pbofuse/archivefs"
	"github.com/rs/zerolog/log"
)

// Options configures a mount.
type Options struct {
	// ArchivePath is the container file to serve.
	ArchivePath string

	// Mountpoint is the directory where the filesystem is mounted. It
	// must exist.
	Mountpoint string

	// Open configures how the archive is loaded.
	Open archivefs.OpenOptions

	// AllowOther permits other users (including root) to access
	// the mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Debug logs every FUSE request and reply.
	Debug bool
}

// cacheTimeout is how long the kernel may cache entries and attributes.
// The tree never changes while mounted.
const cacheTimeout = time.Minute

// Server drives one archive through the mount lifecycle:
// Unmounted, Loading, Mounted, Unmounting, and back to Unmounted.
// Its methods are safe for concurrent use.
type Server struct {
	options Options
	state   atomic.Int32

	mu      sync.Mutex
	current *mount
}

// mount is what a successful Mount holds until it is released.
type mount struct {
	fsys    *archivefs.Filesystem
	server  *fuse.Server
	release sync.Once
}

// NewServer returns an Unmounted server for options.
func NewServer(options Options) *Server {
	return &Server{options: options}
}

// State returns the current lifecycle state.
func (s *Server) State() State { return State(s.state.Load()) }

// Filesystem returns the loaded archive while mounted, or nil.
func (s *Server) Filesystem() *archivefs.Filesystem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	return s.current.fsys
}

// Mount loads the archive and mounts it. The tree is built completely
// before the kernel sees the filesystem; if loading or mounting fails the
// server goes back to Unmounted and nothing stays open.
func (s *Server) Mount(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(Unmounted), int32(Loading)) {
		return ErrBusy
	}
	if s.options.Mountpoint == "" {
		s.state.Store(int32(Unmounted))
		return fmt.Errorf("mountpoint is required")
	}

	fsys, err := archivefs.Open(ctx, s.options.ArchivePath, s.options.Open)
	if err != nil {
		s.state.Store(int32(Unmounted))
		return err
	}

	root := &dirNode{node: node{
		d:     fsys.Dispatcher,
		owner: fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())},
	}}

	entryTimeout := cacheTimeout
	attrTimeout := cacheTimeout
	server, err := gofuse.Mount(s.options.Mountpoint, root, &gofuse.Options{
		EntryTimeout: &entryTimeout,
		AttrTimeout:  &attrTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     s.options.ArchivePath,
			Name:       "archivefs",
			AllowOther: s.options.AllowOther,
			Debug:      s.options.Debug,
			Options:    []string{"ro"},
		},
	})
	if err != nil {
		fsys.Close()
		s.state.Store(int32(Unmounted))
		return fmt.Errorf("mounting FUSE filesystem at %s: %w", s.options.Mountpoint, err)
	}

	s.mu.Lock()
	s.current = &mount{fsys: fsys, server: server}
	s.mu.Unlock()
	s.state.Store(int32(Mounted))

	log.Info().
		Str("archive", s.options.ArchivePath).
		Str("mountpoint", s.options.Mountpoint).
		Msg("mount: archive mounted")

	return nil
}

// Wait blocks until the filesystem is unmounted, by Unmount or from
// outside (fusermount -u), and the archive has been released. It returns
// at once when nothing is mounted.
func (s *Server) Wait() {
	s.mu.Lock()
	m := s.current
	s.mu.Unlock()
	if m == nil {
		return
	}
	m.server.Wait()
	s.release(m)
}

// Unmount tears down the kernel mount and releases the archive.
func (s *Server) Unmount() error {
	if !s.state.CompareAndSwap(int32(Mounted), int32(Unmounting)) {
		return ErrNotMounted
	}
	s.mu.Lock()
	m := s.current
	s.mu.Unlock()

	if err := m.server.Unmount(); err != nil {
		s.state.Store(int32(Mounted))
		return fmt.Errorf("unmounting %s: %w", s.options.Mountpoint, err)
	}
	m.server.Wait()
	s.release(m)
	return nil
}

func (s *Server) release(m *mount) {
	m.release.Do(func() {
		s.state.Store(int32(Unmounting))
		if err := m.fsys.Close(); err != nil {
			log.Warn().Err(err).Msg("mount: closing archive")
		}

		s.mu.Lock()
		if s.current == m {
			s.current = nil
		}
		s.mu.Unlock()
		s.state.Store(int32(Unmounted))

		log.Info().
			Str("mountpoint", s.options.Mountpoint).
			Msg("mount: unmounted")
	})
}
