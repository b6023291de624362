// Command kvdir is an interactive shell over a kvdir directory.
//
// Usage:
//
//	kvdir [flags] [command [args...]]
//
// Without a command it reads commands from stdin. Type "help" for the list.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/hupe1980/kvdir"
	"github.com/hupe1980/kvdir/kv"
	"github.com/hupe1980/kvdir/kv/dynamokv"
	"github.com/hupe1980/kvdir/kv/memkv"
)

func main() {
	backend := flag.String("backend", "mem", "key-value backend: mem or dynamodb")
	table := flag.String("table", "kvdir", "DynamoDB table name")
	partition := flag.String("partition", dynamokv.DefaultPartition, "DynamoDB partition key value")
	path := flag.String("path", "default", "directory path below the kvdir root")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := openDatabase(ctx, *backend, *table, *partition)
	if err != nil {
		log.Fatal(err)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	metrics := &kvdir.BasicMetricsCollector{}
	dir := kvdir.NewWithPath(db, *path,
		kvdir.WithLogLevel(level),
		kvdir.WithMetricsCollector(metrics),
	)
	sh := newShell(dir, metrics, os.Stdout)

	if flag.NArg() > 0 {
		if _, err := sh.run(ctx, flag.Args()); err != nil {
			log.Fatal(err)
		}
		return
	}

	fmt.Printf("kvdir %s on %s\n", dir.Subspace(), *backend)
	fmt.Println("Type commands. 'help' for information or 'exit' to quit.")

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")

		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) {
				fmt.Println("input error:", err)
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		quit, err := sh.exec(ctx, line)
		if err != nil {
			fmt.Println("error:", err)
		}
		if quit {
			return
		}
	}
}

func openDatabase(ctx context.Context, backend, table, partition string) (kv.Database, error) {
	switch backend {
	case "mem":
		return memkv.New(), nil
	case "dynamodb":
		db, err := dynamokv.NewFromConfig(ctx, table, func(o *dynamokv.Options) {
			o.Partition = partition
		})
		if err != nil {
			return nil, err
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}
