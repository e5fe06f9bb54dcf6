package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eringen/blogconsole"
	"github.com/eringen/blogconsole/markdown"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe()
	case "seed":
		err = runSeed()
	case "render":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: blogconsole render <file|->")
			os.Exit(1)
		}
		err = runRender(os.Args[2], os.Stdout)
	case "version":
		fmt.Printf("blogconsole %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe() error {
	cfg, err := blogconsole.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	app := blogconsole.New(cfg, blogconsole.ViewFuncs{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- app.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		app.Log.Error("shutdown failed", slog.Any("err", err))
		return err
	}
	return <-errCh
}

func runSeed() error {
	cfg, err := blogconsole.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}
	store, err := blogconsole.NewStore(cfg.MockDatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.SeedDemo(context.Background(), cfg.DefaultProducerID)
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d posts for %s in %s\n", n, cfg.DefaultProducerID, cfg.MockDatabasePath)
	return nil
}

// runRender prints the HTML for a markdown file, or stdin when name is "-".
func runRender(name string, out io.Writer) error {
	var in io.Reader = os.Stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	src, err := io.ReadAll(in)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, markdown.Render(string(src)))
	return err
}

func printUsage() {
	fmt.Println(`blogconsole - producer blog console and storefront

Usage:
  blogconsole <command> [arguments]

Commands:
  serve           Start the console server
  seed            Write demo posts into the mock database
  render <file>   Render a markdown file to HTML ("-" reads stdin)
  version         Print the blogconsole version
  help            Show this help message

Configuration is read from the environment, or from the YAML file named
by CONFIG_PATH.`)
}
