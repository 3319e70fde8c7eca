// Command chromecache lists and extracts the contents of a Chromium
// blockfile disk cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opencontainers/go-digest"
	"github.com/spf13/pflag"

	"github.com/meigma/chromecache"
	"github.com/meigma/chromecache/internal/extract"
	"github.com/meigma/chromecache/snapshot"
)

const usage = `usage: chromecache [flags] <command> [args]

commands:
  scan                       print every entry
  lookup KEY...              print the entries for KEYs
  extract OUTDIR [KEY...]    write decoded bodies into OUTDIR
  snapshot FILE [KEY...]     write a snapshot of the cache to FILE
  inspect FILE               print the records of a snapshot
  info                       print the index header and block file usage

flags:
`

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string) int {
	cfg, rest, err := loadConfig(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printUsage()
			return 0
		}
		fmt.Fprintln(stdErr, err)
		return 2
	}
	if len(rest) == 0 {
		printUsage()
		return 2
	}

	logger, closer, err := newLogger(cfg, stdErr)
	if err != nil {
		fmt.Fprintf(stdErr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = closer.Close() }()

	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	cmd, cmdArgs := rest[0], rest[1:]
	if cmd == "inspect" {
		err = runInspect(cmdArgs)
	} else {
		err = runCache(ctx, cfg, logger, cmd, cmdArgs)
	}
	if err != nil {
		var ue usageError
		if errors.As(err, &ue) {
			fmt.Fprintln(stdErr, err)
			printUsage()
			return 2
		}
		logger.Error("command failed", "command", cmd, "error", err)
		fmt.Fprintf(stdErr, "chromecache %s: %v\n", cmd, err)
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func printUsage() {
	fmt.Fprint(stdErr, usage)
	fmt.Fprint(stdErr, newFlagSet().FlagUsages())
}

func cacheOptions(cfg *config, logger *slog.Logger) []chromecache.Option {
	opts := []chromecache.Option{
		chromecache.WithLogger(logger),
		chromecache.WithWorkers(cfg.Workers),
		chromecache.WithMaxChainLength(cfg.MaxChainLength),
		chromecache.WithTickResolution(cfg.TickResolution),
	}
	if cfg.MaxEntries != 0 {
		opts = append(opts, chromecache.WithMaxEntries(cfg.MaxEntries))
	}
	if cfg.MaxDataSize != 0 {
		opts = append(opts, chromecache.WithMaxDataSize(cfg.MaxDataSize))
	}
	return opts
}

func runCache(ctx context.Context, cfg *config, logger *slog.Logger, cmd string, args []string) (err error) {
	switch cmd {
	case "scan", "lookup", "extract", "snapshot", "info":
	default:
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}
	if cfg.Dir == "" {
		return usageError("--dir is required")
	}

	c, err := chromecache.Open(cfg.Dir, cacheOptions(cfg, logger)...)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	switch cmd {
	case "scan":
		return runScan(ctx, c)
	case "info":
		return runInfo(c)
	case "lookup":
		if len(args) == 0 {
			return usageError("lookup needs at least one key")
		}
		return runLookup(ctx, c, args)
	case "extract":
		if len(args) == 0 {
			return usageError("extract needs an output directory")
		}
		return runExtract(ctx, cfg, c, args[0], args[1:])
	default:
		if len(args) == 0 {
			return usageError("snapshot needs an output file")
		}
		return runSnapshot(ctx, c, args[0], args[1:])
	}
}

func runScan(ctx context.Context, c *chromecache.Cache) error {
	res, err := c.Collect(ctx)
	if err != nil {
		return err
	}
	out := newLineWriter(stdOut)
	for _, r := range res.Records {
		if err := out.write(recordFromParse(r)); err != nil {
			return err
		}
	}
	printSummary(len(res.Records), len(res.Diagnostics), res.Truncated)
	return nil
}

func runLookup(ctx context.Context, c *chromecache.Cache, keys []string) error {
	res, err := c.Collect(ctx, keys...)
	if err != nil {
		return err
	}
	out := newLineWriter(stdOut)
	found := true
	for _, r := range res.Records {
		line := recordFromParse(r)
		line.Found = &found
		if err := out.write(line); err != nil {
			return err
		}
	}
	missing := false
	for _, key := range res.NotFound {
		if err := out.write(recordLine{Key: key, Found: &missing}); err != nil {
			return err
		}
	}
	printSummary(len(res.Records), len(res.Diagnostics), false)
	return nil
}

func runInfo(c *chromecache.Cache) error {
	h := c.Header()
	out := newLineWriter(stdOut)
	if err := out.write(indexLine{
		Version:    fmt.Sprintf("%#x", h.Version),
		NumEntries: h.NumEntries,
		NumBytes:   h.NumBytes,
		TableSize:  c.TableSize(),
		Created:    timePtr(h.CreateTime),
	}); err != nil {
		return err
	}
	files, err := c.BlockFiles()
	for _, f := range files {
		if werr := out.write(blockFileLine{
			Name:       f.Name,
			EntrySize:  f.EntrySize,
			NumEntries: f.NumEntries,
			MaxEntries: f.MaxEntries,
			UsedBlocks: f.UsedBlocks,
			NextFile:   f.NextFile,
		}); werr != nil {
			return werr
		}
	}
	return err
}

func runExtract(ctx context.Context, cfg *config, c *chromecache.Cache, outDir string, keys []string) error {
	store, err := extract.New(outDir,
		extract.WithMaxBytes(cfg.ExtractMaxBytes),
		extract.WithShardPrefixLen(cfg.ExtractShardLen),
	)
	if err != nil {
		return err
	}
	res, err := c.Collect(ctx, keys...)
	if err != nil {
		return err
	}

	logger := c.Logger()
	out := newLineWriter(stdOut)
	var stored int
	for _, r := range res.Records {
		line := extractLine{Key: r.Entry.KeyString()}
		body := r.Streams[chromecache.BodyStream]
		if body.Data == nil {
			line.Reason = "no body"
			if err := out.write(line); err != nil {
				return err
			}
			continue
		}

		content := body.Data.Raw
		if !cfg.ExtractRaw {
			var header *chromecache.HTTPHeader
			if h := r.Streams[chromecache.HeaderStream].Data; h != nil {
				header = h.Header
			}
			line.Encoding = chromecache.ContentEncoding(header)
			if !chromecache.EncodingSupported(line.Encoding) {
				logger.Warn("keeping encoded body", "key", line.Key, "encoding", line.Encoding)
				line.Reason = "unsupported encoding kept raw"
			} else if decoded, decErr := chromecache.DecodeBody(content, header); decErr != nil {
				logger.Warn("keeping encoded body", "key", line.Key, "error", decErr)
				line.Reason = "decode failed kept raw"
			} else {
				content = decoded
			}
		}

		d := digest.FromBytes(content)
		path, ok, err := store.Put(d, content)
		if err != nil {
			return fmt.Errorf("store %q: %w", line.Key, err)
		}
		line.Digest = d.String()
		line.Path = path
		line.Size = len(content)
		line.Stored = ok
		if path == "" {
			line.Reason = "over extract-max-bytes"
		}
		if ok {
			stored++
		}
		if err := out.write(line); err != nil {
			return err
		}
	}
	logger.Info("extract complete",
		"dir", outDir,
		"records", len(res.Records),
		"stored", stored,
		"bytes", store.SizeBytes(),
	)
	printSummary(len(res.Records), len(res.Diagnostics), res.Truncated)
	return nil
}

func runSnapshot(ctx context.Context, c *chromecache.Cache, file string, keys []string) error {
	buf, err := snapshot.Build(ctx, c, keys...)
	if err != nil {
		return err
	}
	if err := os.WriteFile(file, buf, 0o644); err != nil { //nolint:gosec // snapshots are not secret
		return err
	}
	s, err := snapshot.Load(buf)
	if err != nil {
		return err
	}
	printSummary(s.Len(), len(s.Diagnostics()), s.Truncated())
	return nil
}

func runInspect(args []string) error {
	if len(args) != 1 {
		return usageError("inspect needs exactly one snapshot file")
	}
	buf, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	s, err := snapshot.Load(buf)
	if err != nil {
		return err
	}
	out := newLineWriter(stdOut)
	for r := range s.Records() {
		if err := out.write(recordFromSnapshot(r)); err != nil {
			return err
		}
	}
	for _, d := range s.Diagnostics() {
		fmt.Fprintln(stdErr, d)
	}
	printSummary(s.Len(), len(s.Diagnostics()), s.Truncated())
	return nil
}

func printSummary(records, diagnostics int, truncated bool) {
	msg := fmt.Sprintf("%d entries, %d diagnostics", records, diagnostics)
	if truncated {
		msg += " (truncated)"
	}
	fmt.Fprintln(stdErr, msg)
}
