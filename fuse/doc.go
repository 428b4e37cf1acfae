// Package fuse mounts a loaded archive as a read-only FUSE filesystem.
//
// Every node holds the path it was looked up by and answers kernel
// requests through the archive's Dispatcher; inode numbers are the ones
// the tree assigned, so the root is inode 1. Requests that would change
// the filesystem fail with EROFS.
package fuse
