package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/hupe1980/kvdir"
	"github.com/hupe1980/kvdir/backup"
	"github.com/hupe1980/kvdir/blobstore"
	"github.com/hupe1980/kvdir/format"
	"github.com/hupe1980/kvdir/segment"
	"github.com/kballard/go-shellquote"
)

var errUsage = errors.New("usage")

type command struct {
	usage string
	help  string
	run   func(s *shell, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"ls":      {"ls", "list files with their lengths", (*shell).ls},
		"put":     {"put NAME TEXT...", "create NAME holding TEXT", (*shell).put},
		"load":    {"load NAME PATH", "create NAME from a local file", (*shell).load},
		"cat":     {"cat NAME", "print a file", (*shell).cat},
		"stat":    {"stat NAME", "print a file's length", (*shell).stat},
		"rm":      {"rm NAME...", "delete files", (*shell).rm},
		"si":      {"si SEGMENT", "print stored segment metadata", (*shell).si},
		"check":   {"check [fix]", "check catalog/data consistency, optionally clearing orphans", (*shell).check},
		"export":  {"export TARGET [none|zstd|lz4]", "back up all files", (*shell).export},
		"import":  {"import SOURCE", "restore a backup into the directory", (*shell).importBackup},
		"verify":  {"verify SOURCE", "verify a backup's checksums", (*shell).verify},
		"formats": {"formats [SELECTION]", "show which formats are stored in the kv store", (*shell).formats},
		"stats":   {"stats", "print operation metrics", (*shell).stats},
		"help":    {"help", "show this help", (*shell).help},
	}
}

// shell executes commands against one directory.
type shell struct {
	dir     *kvdir.Directory
	metrics *kvdir.BasicMetricsCollector
	mem     *blobstore.MemoryStore
	out     io.Writer
}

func newShell(dir *kvdir.Directory, metrics *kvdir.BasicMetricsCollector, out io.Writer) *shell {
	return &shell{
		dir:     dir,
		metrics: metrics,
		mem:     blobstore.NewMemoryStore(),
		out:     out,
	}
}

// exec splits line with shell quoting rules and runs it.
func (s *shell) exec(ctx context.Context, line string) (bool, error) {
	args, err := shellquote.Split(line)
	if err != nil {
		return false, fmt.Errorf("parse: %w", err)
	}
	return s.run(ctx, args)
}

// run executes one command. It reports true for exit.
func (s *shell) run(ctx context.Context, args []string) (bool, error) {
	if len(args) == 0 {
		return false, nil
	}
	if args[0] == "exit" || args[0] == "quit" {
		return true, nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return false, fmt.Errorf("unknown command %q (try 'help')", args[0])
	}
	if err := cmd.run(s, ctx, args[1:]); err != nil {
		if errors.Is(err, errUsage) {
			return false, fmt.Errorf("usage: %s", cmd.usage)
		}
		return false, err
	}
	return false, nil
}

func (s *shell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func (s *shell) ls(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	names, err := s.dir.ListAll(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, name := range names {
		n, err := s.dir.FileLength(ctx, name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%d\n", name, n)
	}
	return tw.Flush()
}

func (s *shell) create(ctx context.Context, name string, content []byte) error {
	out, err := s.dir.CreateOutput(ctx, name)
	if err != nil {
		return err
	}
	if _, err := out.Write(content); err != nil {
		return err
	}
	return out.Close()
}

func (s *shell) put(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errUsage
	}
	return s.create(ctx, args[0], []byte(strings.Join(args[1:], " ")))
}

func (s *shell) load(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	if err := s.create(ctx, args[0], data); err != nil {
		return err
	}
	s.printf("%s: %d bytes\n", args[0], len(data))
	return nil
}

func (s *shell) cat(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	in, err := s.dir.OpenInput(ctx, args[0])
	if err != nil {
		return err
	}
	defer in.Close()
	if _, err := io.Copy(s.out, in); err != nil {
		return err
	}
	s.printf("\n")
	return nil
}

func (s *shell) stat(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	n, err := s.dir.FileLength(ctx, args[0])
	if err != nil {
		return err
	}
	s.printf("%s: %d bytes, %d chunks\n", args[0], n, max(1, (n+kvdir.ChunkSize-1)/kvdir.ChunkSize))
	return nil
}

func (s *shell) rm(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	for _, name := range args {
		if err := s.dir.DeleteFile(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func (s *shell) si(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	info, err := segment.Read(ctx, s.dir, args[0])
	if err != nil {
		return err
	}
	s.printf("segment %s: version %s, %d docs, compound %t\n", info.Name, info.Version, info.DocCount, info.IsCompoundFile)
	for _, k := range slices.Sorted(maps.Keys(info.Diagnostics)) {
		s.printf("  diagnostic %s=%s\n", k, info.Diagnostics[k])
	}
	for _, k := range slices.Sorted(maps.Keys(info.Attributes)) {
		s.printf("  attribute %s=%s\n", k, info.Attributes[k])
	}
	for _, f := range info.Files {
		s.printf("  file %s\n", f)
	}
	return nil
}

func (s *shell) check(ctx context.Context, args []string) error {
	switch {
	case len(args) == 0:
		report, err := s.dir.Check(ctx)
		if err != nil {
			return err
		}
		s.printf("%d files, orphan data %v, dangling entries %v\n", report.Files, report.OrphanData, report.DanglingEntries)
		if report.OK() {
			s.printf("ok\n")
		}
		return nil
	case len(args) == 1 && args[0] == "fix":
		cleared, err := s.dir.ClearOrphans(ctx)
		if err != nil {
			return err
		}
		s.printf("cleared %d orphan file ids\n", len(cleared))
		return nil
	default:
		return errUsage
	}
}

func (s *shell) export(ctx context.Context, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errUsage
	}
	compression := backup.CompressionNone
	if len(args) == 2 {
		var err error
		if compression, err = backup.ParseCompression(args[1]); err != nil {
			return err
		}
	}
	store, prefix, err := s.openTarget(ctx, args[0])
	if err != nil {
		return err
	}
	m, err := backup.Export(ctx, s.dir, store, func(o *backup.Options) {
		o.Prefix = prefix
		o.Compression = compression
	})
	if err != nil {
		return err
	}
	s.printManifest("exported", m)
	return nil
}

func (s *shell) importBackup(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	store, prefix, err := s.openTarget(ctx, args[0])
	if err != nil {
		return err
	}
	m, err := backup.Import(ctx, s.dir, store, func(o *backup.Options) { o.Prefix = prefix })
	if err != nil {
		return err
	}
	s.printManifest("imported", m)
	return nil
}

func (s *shell) verify(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	store, prefix, err := s.openTarget(ctx, args[0])
	if err != nil {
		return err
	}
	m, err := backup.Verify(ctx, store, func(o *backup.Options) { o.Prefix = prefix })
	if err != nil {
		return err
	}
	s.printManifest("verified", m)
	return nil
}

func (s *shell) printManifest(verb string, m *backup.Manifest) {
	s.printf("%s %d files, %d bytes (%s)\n", verb, len(m.Files), m.TotalLength(), m.Compression)
}

func (s *shell) formats(_ context.Context, args []string) error {
	var (
		set format.Set
		err error
	)
	switch len(args) {
	case 0:
		set, err = format.FromEnv()
	case 1:
		set, err = format.Parse(args[0])
	default:
		return errUsage
	}
	if err != nil {
		return err
	}

	sel := format.Selector[string]{
		Enabled:  set,
		KV:       func(format.Format) string { return "kv" },
		Fallback: func(format.Format) string { return "default" },
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, f := range format.All() {
		fmt.Fprintf(tw, "%s\t%s\n", f, sel.Resolve(f))
	}
	return tw.Flush()
}

func (s *shell) stats(_ context.Context, args []string) error {
	if len(args) != 0 {
		return errUsage
	}
	st := s.metrics.GetStats()
	s.printf("create %d (%d errors)\n", st.CreateCount, st.CreateErrors)
	s.printf("flush  %d (%d errors), %d bytes in %d chunks\n", st.FlushCount, st.FlushErrors, st.FlushBytes, st.FlushChunks)
	s.printf("open   %d (%d errors), %d bytes\n", st.OpenCount, st.OpenErrors, st.OpenBytes)
	s.printf("delete %d (%d errors)\n", st.DeleteCount, st.DeleteErrors)
	return nil
}

func (s *shell) help(context.Context, []string) error {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	for _, name := range slices.Sorted(maps.Keys(commands)) {
		fmt.Fprintf(tw, "%s\t%s\n", commands[name].usage, commands[name].help)
	}
	fmt.Fprintf(tw, "exit\tleave the shell\n")
	return tw.Flush()
}
