// Command familytree maintains a family forest in a record store and serves
// it over HTTP.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"familytree/internal/adapters/httpapi"
	"familytree/internal/blob"
	"familytree/internal/core"
	"familytree/pkg/domain"
)

// Environment variables controlling log output.
const (
	envLogFormat = "FAMILYTREE_LOG_FORMAT"
	envLogLevel  = "FAMILYTREE_LOG_LEVEL"
)

var (
	exitFunc  = os.Exit
	openStore = func(ctx context.Context, logger *slog.Logger) (core.PersistentStore, error) {
		return core.OpenPersistentStore(ctx, nil, core.WithRuleLogging(logger))
	}
	openBlob     = blob.Open
	readyTimeout = 10 * time.Second
)

const usage = `usage: familytree <command> [flags] [args]

commands:
  tree                      print the forest
  show <id>                 print one person
  add-root                  add a person without a parent
  add-child -parent <id>    add a child after the existing children
  add-parent -child <id>    add a parent above a root person
  edit -id <id>             change name, surname, dates or description
  move-left <id>            swap a person with its left sibling
  move-right <id>           swap a person with its right sibling
  respread <parent-id|->    renumber the children of a parent, or the roots
  archive                   store a snapshot of every person
  archives                  list stored snapshots
  restore <key>             write a stored snapshot back
  serve [-addr host:port]   serve the forest over HTTP
`

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

func cli(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(stderr, usage)
		if len(args) == 0 {
			return 2
		}
		return 0
	}
	logger, err := newLogger(stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	cmd, rest := args[0], args[1:]
	handler, ok := commands[cmd]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", cmd, usage)
		return 2
	}
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	env := &environment{stdout: stdout, stderr: stderr, logger: logger, flags: fs}
	run, err := handler(env)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	if err := fs.Parse(rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		logger.Error("command failed", "command", cmd, "error", err)
		fmt.Fprintf(stderr, "%s: %v\n", cmd, err)
		return 1
	}
	return 0
}

// newLogger builds a slog logger from FAMILYTREE_LOG_FORMAT (text|json) and
// FAMILYTREE_LOG_LEVEL (debug|info|warn|error).
func newLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if raw := strings.TrimSpace(os.Getenv(envLogLevel)); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("%s: %w", envLogLevel, err)
		}
	} else {
		level = slog.LevelWarn
	}
	opts := &slog.HandlerOptions{Level: level}
	switch format := strings.ToLower(strings.TrimSpace(os.Getenv(envLogFormat))); format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%s: unknown format %q", envLogFormat, format)
	}
}

// environment carries what a command needs once its flags are parsed.
type environment struct {
	stdout io.Writer
	stderr io.Writer
	logger *slog.Logger
	flags  *flag.FlagSet
}

// command registers its flags and returns the function to run after parsing.
type command func(env *environment) (func(ctx context.Context) error, error)

var commands = map[string]command{
	"tree":       treeCommand,
	"show":       showCommand,
	"add-root":   addRootCommand,
	"add-child":  addChildCommand,
	"add-parent": addParentCommand,
	"edit":       editCommand,
	"move-left":  moveCommand(domain.MoveLeft),
	"move-right": moveCommand(domain.MoveRight),
	"respread":   respreadCommand,
	"archive":    archiveCommand,
	"archives":   archivesCommand,
	"restore":    restoreCommand,
	"serve":      serveCommand,
}

// session is a running service over an opened store.
type session struct {
	svc   *core.Service
	store core.PersistentStore
	stop  context.CancelFunc
	done  chan struct{}
}

func (env *environment) open(ctx context.Context, opts ...core.Option) (*session, error) {
	store, err := openStore(ctx, env.logger)
	if err != nil {
		return nil, err
	}
	opts = append([]core.Option{core.WithLogger(env.logger)}, opts...)
	svc := core.NewService(store, opts...)
	runCtx, stop := context.WithCancel(ctx)
	s := &session{svc: svc, store: store, stop: stop, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		if err := svc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			env.logger.Error("record store subscription failed", "error", err)
		}
	}()
	waitCtx, cancel := context.WithTimeout(ctx, readyTimeout)
	defer cancel()
	if err := svc.WaitReady(waitCtx); err != nil {
		s.close()
		return nil, fmt.Errorf("load people: %w", err)
	}
	return s, nil
}

func (s *session) close() {
	s.stop()
	<-s.done
	_ = s.store.Close()
}

// withService opens a session, runs fn and closes the session.
func (env *environment) withService(ctx context.Context, fn func(*core.Service) error) error {
	s, err := env.open(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(s.svc)
}

func (env *environment) printJSON(v any) error {
	enc := json.NewEncoder(env.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// arg returns the single positional argument.
func (env *environment) arg(name string) (string, error) {
	if env.flags.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one %s argument", name)
	}
	return env.flags.Arg(0), nil
}

// personFlags binds the editable person fields to flags.
type personFlags struct {
	name, surname, born, died, description string
}

func bindPersonFlags(fs *flag.FlagSet) *personFlags {
	p := &personFlags{}
	fs.StringVar(&p.name, "name", "", "given name")
	fs.StringVar(&p.surname, "surname", "", "surname")
	fs.StringVar(&p.born, "born", "", "date of birth")
	fs.StringVar(&p.died, "died", "", "date of death")
	fs.StringVar(&p.description, "description", "", "free text")
	return p
}

func (p *personFlags) fields() domain.PersonFields {
	return domain.PersonFields{
		Name:        p.name,
		Surname:     p.surname,
		DateStart:   p.born,
		DateEnd:     p.died,
		Description: p.description,
	}
}

// overlay applies only the flags that were set on the command line.
func (p *personFlags) overlay(fs *flag.FlagSet, base domain.PersonFields) domain.PersonFields {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			base.Name = p.name
		case "surname":
			base.Surname = p.surname
		case "born":
			base.DateStart = p.born
		case "died":
			base.DateEnd = p.died
		case "description":
			base.Description = p.description
		}
	})
	return base
}

func treeCommand(env *environment) (func(context.Context) error, error) {
	format := env.flags.String("format", "json", "output format: json or text")
	return func(ctx context.Context) error {
		return env.withService(ctx, func(svc *core.Service) error {
			switch *format {
			case "json":
				return env.printJSON(svc.TreeView())
			case "text":
				f := svc.Forest()
				svc.TreeView().Walk(func(node domain.TreeNode, depth int) {
					p, _ := f.Person(node.ID)
					fmt.Fprintf(env.stdout, "%s%s %s (%s)\n", strings.Repeat("  ", depth), p.Name, p.Surname, p.ID)
				})
				return nil
			default:
				return fmt.Errorf("unknown format %q", *format)
			}
		})
	}, nil
}

func showCommand(env *environment) (func(context.Context) error, error) {
	return func(ctx context.Context) error {
		id, err := env.arg("person id")
		if err != nil {
			return err
		}
		return env.withService(ctx, func(svc *core.Service) error {
			p, ok := svc.Person(id)
			if !ok {
				return fmt.Errorf("%s: %w", id, domain.ErrUnknownPerson)
			}
			return env.printJSON(p)
		})
	}, nil
}

func addRootCommand(env *environment) (func(context.Context) error, error) {
	fields := bindPersonFlags(env.flags)
	return func(ctx context.Context) error {
		return env.withService(ctx, func(svc *core.Service) error {
			id, err := svc.AddRoot(ctx, fields.fields())
			if err != nil {
				return err
			}
			fmt.Fprintln(env.stdout, id)
			return nil
		})
	}, nil
}

func addChildCommand(env *environment) (func(context.Context) error, error) {
	fields := bindPersonFlags(env.flags)
	parent := env.flags.String("parent", "", "parent person id")
	return func(ctx context.Context) error {
		if *parent == "" {
			return errors.New("-parent is required")
		}
		return env.withService(ctx, func(svc *core.Service) error {
			id, err := svc.AddChild(ctx, *parent, fields.fields())
			if err != nil {
				return err
			}
			fmt.Fprintln(env.stdout, id)
			return nil
		})
	}, nil
}

func addParentCommand(env *environment) (func(context.Context) error, error) {
	fields := bindPersonFlags(env.flags)
	child := env.flags.String("child", "", "root person that gets the new parent")
	return func(ctx context.Context) error {
		if *child == "" {
			return errors.New("-child is required")
		}
		return env.withService(ctx, func(svc *core.Service) error {
			id, err := svc.AddParent(ctx, *child, fields.fields())
			if err != nil {
				return err
			}
			fmt.Fprintln(env.stdout, id)
			return nil
		})
	}, nil
}

func editCommand(env *environment) (func(context.Context) error, error) {
	fields := bindPersonFlags(env.flags)
	id := env.flags.String("id", "", "person to edit")
	return func(ctx context.Context) error {
		if *id == "" {
			return errors.New("-id is required")
		}
		return env.withService(ctx, func(svc *core.Service) error {
			p, ok := svc.Person(*id)
			if !ok {
				return fmt.Errorf("edit %s: %w", *id, domain.ErrUnknownPerson)
			}
			return svc.EditPerson(ctx, *id, fields.overlay(env.flags, domain.FieldsOf(p)))
		})
	}, nil
}

func moveCommand(dir domain.Direction) command {
	return func(env *environment) (func(context.Context) error, error) {
		return func(ctx context.Context) error {
			id, err := env.arg("person id")
			if err != nil {
				return err
			}
			return env.withService(ctx, func(svc *core.Service) error {
				return svc.Move(ctx, id, dir)
			})
		}, nil
	}
}

func respreadCommand(env *environment) (func(context.Context) error, error) {
	return func(ctx context.Context) error {
		parent, err := env.arg("parent id (or - for roots)")
		if err != nil {
			return err
		}
		if parent == "-" {
			parent = ""
		}
		return env.withService(ctx, func(svc *core.Service) error {
			return svc.Respread(ctx, parent)
		})
	}, nil
}

func archiveCommand(env *environment) (func(context.Context) error, error) {
	return func(ctx context.Context) error {
		store, err := openBlob(ctx)
		if err != nil {
			return err
		}
		return env.withService(ctx, func(svc *core.Service) error {
			info, err := svc.Archive(ctx, store)
			if err != nil {
				return err
			}
			fmt.Fprintln(env.stdout, info.Key)
			return nil
		})
	}, nil
}

func archivesCommand(env *environment) (func(context.Context) error, error) {
	return func(ctx context.Context) error {
		store, err := openBlob(ctx)
		if err != nil {
			return err
		}
		infos, err := store.List(ctx, core.ArchivePrefix)
		if err != nil {
			return err
		}
		for _, info := range infos {
			fmt.Fprintf(env.stdout, "%s\t%d\t%s\n", info.Key, info.Size, info.LastModified.UTC().Format(time.RFC3339))
		}
		return nil
	}, nil
}

func restoreCommand(env *environment) (func(context.Context) error, error) {
	return func(ctx context.Context) error {
		key, err := env.arg("archive key")
		if err != nil {
			return err
		}
		store, err := openBlob(ctx)
		if err != nil {
			return err
		}
		return env.withService(ctx, func(svc *core.Service) error {
			n, err := svc.Restore(ctx, store, key)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.stdout, "restored %d people\n", n)
			return nil
		})
	}, nil
}

func serveCommand(env *environment) (func(context.Context) error, error) {
	addr := env.flags.String("addr", "127.0.0.1:8080", "listen address")
	return func(ctx context.Context) error {
		metrics := core.NewPrometheusMetrics()
		s, err := env.open(ctx, core.WithMetricsRecorder(metrics), core.WithForestObserver(metrics))
		if err != nil {
			return err
		}
		defer s.close()
		ln, err := net.Listen("tcp", *addr)
		if err != nil {
			return err
		}
		return serve(ctx, ln, httpapi.NewHandler(s.svc, metrics.Handler()), env.logger)
	}, nil
}

// serve runs an HTTP server on ln until ctx is done.
func serve(ctx context.Context, ln net.Listener, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	logger.Info("serving", "addr", ln.Addr().String())
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
