// Command archivefs mounts an archive as a read-only filesystem.
//
// Usage:
//
//	archivefs [options] <archive> <mountpoint>
//
// The archive may be a PBO, zip, tar (optionally compressed), 7z or rar
// file, or any single compressed file. The command stays in the foreground
// until the filesystem is unmounted or it receives SIGINT or SIGTERM.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pbofuse/archivefs"
	"github.com/pbofuse/archivefs/fuse"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

const usage = "usage: archivefs [options] <archive> <mountpoint>"

var errUsage = errors.New(usage)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes the command line in args and returns the exit status.
func run(args []string, stdout, stderr io.Writer) int {
	app := &cli.App{
		Name:      "archivefs",
		Usage:     "mount an archive as a read-only filesystem",
		ArgsUsage: "<archive> <mountpoint>",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "log debug messages and every FUSE request",
			},
			&cli.BoolFlag{
				Name:  "allow-other",
				Usage: "let other users access the mount (needs user_allow_other in /etc/fuse.conf)",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "also write logs to this file, rotating it as it grows",
			},
			&cli.BoolFlag{
				Name:  "verify",
				Usage: "check the SHA-1 trailer of PBO files before mounting",
			},
			&cli.StringFlag{
				Name:  "password",
				Usage: "password of an encrypted 7z or rar archive",
			},
			&cli.StringFlag{
				Name:  "zip-encoding",
				Usage: "character set of zip entry names not marked as UTF-8, such as cp437 or shift_jis",
			},
			&cli.BoolFlag{
				Name:  "multithreaded",
				Usage: "decompress gzip and zstd streams in parallel",
			},
			&cli.BoolFlag{
				Name:  "allow-errors",
				Usage: "mount the members of a tar or rar archive that come before a corrupt header",
			},
		},
		HideHelpCommand: true,
		ExitErrHandler:  func(*cli.Context, error) {},
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return errUsage
			}
			return mount(c, stderr)
		},
	}

	if err := app.Run(args); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, usage)
			return 1
		}
		fmt.Fprintf(stderr, "archivefs: %v\n", err)
		return 1
	}
	return 0
}

func mount(c *cli.Context, stderr io.Writer) error {
	logCloser := setupLogging(stderr, c.Bool("debug"), c.String("log-file"))
	defer logCloser.Close()

	opts := archivefs.OpenOptions{
		Password:        c.String("password"),
		VerifyChecksum:  c.Bool("verify"),
		Multithreaded:   c.Bool("multithreaded"),
		ContinueOnError: c.Bool("allow-errors"),
	}
	if name := c.String("zip-encoding"); name != "" {
		enc, err := archivefs.LookupEncoding(name)
		if err != nil {
			return err
		}
		opts.TextEncoding = enc
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := fuse.NewServer(fuse.Options{
		ArchivePath: c.Args().Get(0),
		Mountpoint:  c.Args().Get(1),
		Open:        opts,
		AllowOther:  c.Bool("allow-other"),
		Debug:       c.Bool("debug"),
	})
	if err := server.Mount(ctx); err != nil {
		return err
	}
	logProperties(server.Filesystem())

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			log.Info().Msg("mount: signal received, unmounting")
			if err := server.Unmount(); err != nil && !errors.Is(err, fuse.ErrNotMounted) {
				log.Error().Err(err).Msg("mount: unmount failed")
			}
		case <-done:
		}
	}()

	server.Wait()
	close(done)
	return nil
}

// logProperties reports the product record of PBO archives, whose prefix
// tells where the game expects the contents.
func logProperties(fsys *archivefs.Filesystem) {
	if fsys == nil {
		return
	}
	pr, ok := fsys.Archive.(archivefs.PropertyReader)
	if !ok {
		return
	}
	for _, prop := range pr.Properties() {
		log.Info().
			Str("key", prop.Key).
			Str("value", prop.Value).
			Msg("pbo: product property")
	}
}
