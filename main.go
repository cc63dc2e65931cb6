package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briangreenhill/mikud/internal/config"
	"github.com/briangreenhill/mikud/internal/logging"
	"github.com/briangreenhill/mikud/internal/setup"
	"github.com/briangreenhill/mikud/israelpost"
)

const version = "0.1.0"

func main() {
	if err := runCLI(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCLI(args []string, out io.Writer) error {
	if len(args) == 0 {
		printUsage(out)
		return errors.New("no command given")
	}

	switch args[0] {
	case "help", "--help", "-h":
		printUsage(out)
		return nil
	case "version", "--version", "-v":
		fmt.Fprintf(out, "mikud v%s\n", version)
		return nil
	case "lookup":
		return runLookup(args[1:], out)
	case "bench":
		return runBench(args[1:], out)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: mikud <command> [options]")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  lookup -city C -street S [-house N] [-entrance E]   Print the zipcode for an address")
	fmt.Fprintln(out, "  bench [-n 10] -city C -street S ...                  Repeat a lookup and report timings")
	fmt.Fprintln(out, "  version                                              Print version")
	fmt.Fprintln(out, "Environment:")
	fmt.Fprintln(out, "  ISRAELPOST_ENDPOINT  SearchZip agent URL")
	fmt.Fprintln(out, "  ISRAELPOST_TIMEOUT   Per-request timeout (default 15s)")
	fmt.Fprintln(out, "  CACHE_BACKEND        memory or redis (default memory)")
	fmt.Fprintln(out, "  LOG_LEVEL            zerolog level (default info)")
}

// addressFlags registers the address fields on fs
func addressFlags(fs *flag.FlagSet) *israelpost.Address {
	addr := &israelpost.Address{}
	fs.StringVar(&addr.City, "city", "", "city (Location)")
	fs.StringVar(&addr.Street, "street", "", "street name")
	fs.Func("house", "house number", func(s string) error {
		addr.HouseNumber = israelpost.FlexString(s)
		return nil
	})
	fs.Func("entrance", "entrance", func(s string) error {
		addr.Entrance = israelpost.FlexString(s)
		return nil
	})
	return addr
}

// newClient builds the lookup service from the environment; CLI logs go to stderr
func newClient(ctx context.Context) (*setup.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(os.Stderr, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return setup.New(ctx, cfg, logger)
}

func runLookup(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(out)
	addr := addressFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	svc, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	zip, err := svc.Client.Lookup(ctx, addr)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, zip)
	return nil
}

// benchStats summarizes repeated lookups of one address
type benchStats struct {
	First    time.Duration
	Cached   []time.Duration
	Errors   int
	Zipcodes map[string]int
}

func (b *benchStats) record(i int, d time.Duration, zip string, err error) {
	if err != nil {
		b.Errors++
		return
	}
	b.Zipcodes[zip]++
	if i == 0 {
		b.First = d
		return
	}
	b.Cached = append(b.Cached, d)
}

func (b *benchStats) minAvgMax() (lo, avg, hi time.Duration) {
	if len(b.Cached) == 0 {
		return 0, 0, 0
	}
	lo = b.Cached[0]
	var total time.Duration
	for _, d := range b.Cached {
		total += d
		lo = min(lo, d)
		hi = max(hi, d)
	}
	return lo, total / time.Duration(len(b.Cached)), hi
}

func runBench(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("bench", flag.ContinueOnError)
	fs.SetOutput(out)
	n := fs.Int("n", 10, "iterations")
	addr := addressFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n <= 0 {
		return fmt.Errorf("-n must be positive, got %d", *n)
	}

	ctx := context.Background()
	svc, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	stats := &benchStats{Zipcodes: make(map[string]int)}
	for i := 0; i < *n; i++ {
		start := time.Now()
		zip, err := svc.Client.Lookup(ctx, addr)
		d := time.Since(start)
		stats.record(i, d, zip, err)
		if err != nil {
			fmt.Fprintf(out, "request %d: error (%s): %v\n", i+1, israelpost.KindOf(err), err)
			continue
		}
		fmt.Fprintf(out, "request %d: %s in %v\n", i+1, zip, d)
	}

	lo, avg, hi := stats.minAvgMax()
	fmt.Fprintf(out, "\nrequests: %d, errors: %d\n", *n, stats.Errors)
	fmt.Fprintf(out, "first request: %v\n", stats.First)
	fmt.Fprintf(out, "cached: min %v, avg %v, max %v\n", lo, avg, hi)
	if avg > 0 && stats.First > 0 {
		fmt.Fprintf(out, "cache speedup: %.1fx\n", float64(stats.First)/float64(avg))
	}
	return nil
}
