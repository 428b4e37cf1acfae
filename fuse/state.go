package fuse

import "errors"

// State is a point in the life of a mount.
type State int32

const (
	// Unmounted is the state before the first mount and after every
	// unmount or failed load.
	Unmounted State = iota
	// Loading means the archive is being opened and its tree built.
	Loading
	// Mounted means the filesystem is serving requests.
	Mounted
	// Unmounting means the kernel mount is being torn down.
	Unmounting
)

func (s State) String() string {
	switch s {
	case Unmounted:
		return "unmounted"
	case Loading:
		return "loading"
	case Mounted:
		return "mounted"
	case Unmounting:
		return "unmounting"
	default:
		return "unknown"
	}
}

var (
	// ErrBusy is returned by Mount when the server is not Unmounted.
	ErrBusy = errors.New("fuse: server is already loading or mounted")

	// ErrNotMounted is returned by Unmount when the server is not Mounted.
	ErrNotMounted = errors.New("fuse: server is not mounted")
)
