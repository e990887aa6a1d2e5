// Command riakcache reads and maintains a riakcache bucket.
//
//	riakcache [-config file] get KEY
//	riakcache [-config file] set [-ttl 10m] KEY VALUE   (VALUE "-" reads stdin)
//	riakcache [-config file] del KEY
//	riakcache [-config file] exists KEY
//	riakcache [-config file] purge (-glob P | -regexp RE | -prefix P)
//
// Exit status: 0 success, 1 miss, 2 usage or configuration error,
// 3 backend unavailable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/unkn0wn-root/riakcache"
	"github.com/unkn0wn-root/riakcache/internal/config"
)

const (
	exitOK          = 0
	exitMiss        = 1
	exitUsage       = 2
	exitUnavailable = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("riakcache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfgPath := fs.String("config", os.Getenv("RIAKCACHE_CONFIG"), "YAML config file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: riakcache [-config file] get|set|del|exists|purge ...")
		return exitUsage
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	s, err := open(ctx, cfg, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		var ce *riakcache.ConfigurationError
		if errors.As(err, &ce) {
			return exitUnavailable
		}
		return exitUsage
	}
	defer func() {
		// let in-flight lazy deletes finish even if we were interrupted
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.Close(cctx); err != nil {
			fmt.Fprintln(stderr, "close:", err)
		}
	}()

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	switch cmd {
	case "get":
		return get(ctx, s.store, rest, stdout, stderr)
	case "set":
		return set(ctx, s.store, rest, stdin, stderr)
	case "del":
		return del(ctx, s.store, rest, stderr)
	case "exists":
		return exists(ctx, s.store, rest, stdout, stderr)
	case "purge":
		return purge(ctx, s.store, rest, stdout, stderr)
	}
	fmt.Fprintf(stderr, "unknown command %q\n", cmd)
	return exitUsage
}

func oneKey(name string, args []string, stderr io.Writer) (string, bool) {
	if len(args) != 1 {
		fmt.Fprintf(stderr, "usage: riakcache %s KEY\n", name)
		return "", false
	}
	return args[0], true
}

func get(ctx context.Context, st riakcache.Store[string], args []string, stdout, stderr io.Writer) int {
	key, ok := oneKey("get", args, stderr)
	if !ok {
		return exitUsage
	}
	res := st.Fetch(ctx, key)
	switch res.Status {
	case riakcache.StatusHit:
		fmt.Fprintln(stdout, res.Value)
		return exitOK
	case riakcache.StatusUnavailable:
		return exitUnavailable
	}
	return exitMiss
}

func set(ctx context.Context, st riakcache.Store[string], args []string, stdin io.Reader, stderr io.Writer) int {
	fs := flag.NewFlagSet("set", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ttl := fs.Duration("ttl", 0, "expire the entry after this long; 0 uses default_ttl")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "usage: riakcache set [-ttl d] KEY VALUE")
		return exitUsage
	}
	key, value := fs.Arg(0), fs.Arg(1)
	if value == "-" {
		b, err := io.ReadAll(stdin)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return exitUsage
		}
		value = string(b)
	}
	var opts []riakcache.Option
	if *ttl > 0 {
		opts = append(opts, riakcache.ExpiresIn(*ttl))
	}
	if err := st.Put(ctx, key, value, opts...); err != nil {
		return exitUnavailable
	}
	return exitOK
}

func del(ctx context.Context, st riakcache.Store[string], args []string, stderr io.Writer) int {
	key, ok := oneKey("del", args, stderr)
	if !ok {
		return exitUsage
	}
	if err := st.Remove(ctx, key); err != nil {
		return exitUnavailable
	}
	return exitOK
}

func exists(ctx context.Context, st riakcache.Store[string], args []string, stdout, stderr io.Writer) int {
	key, ok := oneKey("exists", args, stderr)
	if !ok {
		return exitUsage
	}
	switch st.Probe(ctx, key) {
	case riakcache.StatusHit:
		fmt.Fprintln(stdout, "true")
		return exitOK
	case riakcache.StatusUnavailable:
		return exitUnavailable
	}
	fmt.Fprintln(stdout, "false")
	return exitMiss
}

func purge(ctx context.Context, st riakcache.Store[string], args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	globP := fs.String("glob", "", "glob over unescaped keys; '/' does not match '*'")
	reP := fs.String("regexp", "", "regular expression over unescaped keys")
	prefix := fs.String("prefix", "", "key prefix")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	var (
		m   riakcache.Matcher
		err error
		n   int
	)
	if *globP != "" {
		m, err = riakcache.Glob(*globP, '/')
		n++
	}
	if *reP != "" {
		m, err = riakcache.Regexp(*reP)
		n++
	}
	if *prefix != "" {
		m = riakcache.Prefix(*prefix)
		n++
	}
	if n != 1 || fs.NArg() != 0 {
		fmt.Fprintln(stderr, "usage: riakcache purge (-glob P | -regexp RE | -prefix P)")
		return exitUsage
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	fmt.Fprintln(stdout, st.DeleteMatched(ctx, m))
	return exitOK
}
