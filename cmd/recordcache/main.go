// recordcache is an interactive shell around a record cache group.
//
// Usage:
//
//	recordcache [flags]
//
// Flags:
//
//	--config            JSONC config file (flags override its values)
//	--capacity          Arena capacity per cluster in bytes
//	--min-chunk         Smallest arena block in bytes
//	--eviction-size     Refuse new records at this many entries (-1 = off)
//	--eviction-percent  Share of entries removed per eviction pass
//	--compression       Payload compression: none, lz4, zstd
//	--heap              Back arenas with Go memory instead of mmap
//	--journal           Flush journal path
//	--s3-bucket         Also flush records to this S3 bucket
//	--s3-prefix         Key prefix inside the S3 bucket
//	--minio-endpoint    Also flush records to this MinIO endpoint
//	--minio-bucket      MinIO bucket name
//	--minio-secure      Use TLS for MinIO
//	--verbose           Log evictions and flushes
//
// Run 'help' in the shell for commands.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	flag "github.com/spf13/pflag"

	"github.com/hupe1980/recordcache"
	minioblob "github.com/hupe1980/recordcache/blobstore/minio"
	"github.com/hupe1980/recordcache/blobstore/s3"
	"github.com/hupe1980/recordcache/flush"
	"github.com/hupe1980/recordcache/journal"
)

// options holds parsed command line flags that are not part of
// recordcache.Config.
type options struct {
	configPath    string
	journalPath   string
	s3Bucket      string
	s3Prefix      string
	minioEndpoint string
	minioBucket   string
	minioSecure   bool
	verbose       bool
}

func main() {
	err := run(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, errOut io.Writer) error {
	cfg, opts, err := parseFlags(args, errOut)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	ctx := context.Background()

	env, err := setup(ctx, cfg, opts)
	if err != nil {
		return err
	}

	repl := &REPL{env: env, out: os.Stdout}
	runErr := repl.Run()

	return errors.Join(runErr, env.Close(ctx))
}

// parseFlags builds the effective config: defaults, then the config file,
// then flags that were set explicitly.
func parseFlags(args []string, errOut io.Writer) (recordcache.Config, options, error) {
	flagSet := flag.NewFlagSet("recordcache", flag.ContinueOnError)
	flagSet.SetOutput(errOut)

	var opts options
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "JSONC config file")
	capacity := flagSet.Int("capacity", 0, "arena capacity per cluster in bytes")
	minChunk := flagSet.Int("min-chunk", 0, "smallest arena block in bytes")
	evictionSize := flagSet.Int("eviction-size", 0, "refuse new records at this many entries (-1 = off)")
	evictionPercent := flagSet.Int("eviction-percent", 0, "share of entries removed per eviction pass")
	compression := flagSet.String("compression", "", "payload compression: none, lz4, zstd")
	heap := flagSet.Bool("heap", false, "back arenas with Go memory instead of mmap")
	flagSet.StringVarP(&opts.journalPath, "journal", "j", "", "flush journal path")
	flagSet.StringVar(&opts.s3Bucket, "s3-bucket", "", "also flush records to this S3 bucket")
	flagSet.StringVar(&opts.s3Prefix, "s3-prefix", "recordcache/", "key prefix inside the S3 bucket")
	flagSet.StringVar(&opts.minioEndpoint, "minio-endpoint", "", "also flush records to this MinIO endpoint")
	flagSet.StringVar(&opts.minioBucket, "minio-bucket", "recordcache", "MinIO bucket name")
	flagSet.BoolVar(&opts.minioSecure, "minio-secure", false, "use TLS for MinIO")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log evictions and flushes")

	if err := flagSet.Parse(args); err != nil {
		return recordcache.Config{}, options{}, err
	}

	cfg := recordcache.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := recordcache.LoadConfig(opts.configPath)
		if err != nil {
			return recordcache.Config{}, options{}, err
		}
		cfg = loaded
	}

	if flagSet.Changed("capacity") {
		cfg.ArenaCapacity = *capacity
	}
	if flagSet.Changed("min-chunk") {
		cfg.MinChunkSize = *minChunk
	}
	if flagSet.Changed("eviction-size") {
		cfg.EvictionSize = *evictionSize
	}
	if flagSet.Changed("eviction-percent") {
		cfg.EvictionPercent = *evictionPercent
	}
	if flagSet.Changed("compression") {
		cfg.Compression = *compression
	}
	if flagSet.Changed("heap") {
		cfg.HeapBuffer = *heap
	}

	if err := cfg.Validate(); err != nil {
		return recordcache.Config{}, options{}, err
	}
	return cfg, opts, nil
}

// env is everything a shell session operates on.
type env struct {
	cfg     recordcache.Config
	group   *recordcache.Group
	journal *journal.Journal
	flusher recordcache.Flusher
	metrics *recordcache.BasicMetricsCollector
}

func setup(ctx context.Context, cfg recordcache.Config, opts options) (*env, error) {
	e := &env{
		cfg:     cfg,
		metrics: &recordcache.BasicMetricsCollector{},
	}

	var flushers []recordcache.Flusher

	if opts.journalPath != "" {
		j, err := journal.Open(nil, opts.journalPath, journal.DefaultOptions())
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		e.journal = j
		flushers = append(flushers, flush.Journal(j))
	}

	if opts.s3Bucket != "" {
		awsCfg, err := config.LoadDefaultConfig(ctx)
		if err != nil {
			e.closeJournal()
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		store := s3.NewStore(awss3.NewFromConfig(awsCfg), opts.s3Bucket, opts.s3Prefix)
		flushers = append(flushers, flush.Blob(store))
	}

	if opts.minioEndpoint != "" {
		client, err := minio.New(opts.minioEndpoint, &minio.Options{
			Creds:  credentials.NewEnvMinio(),
			Secure: opts.minioSecure,
		})
		if err != nil {
			e.closeJournal()
			return nil, fmt.Errorf("minio client: %w", err)
		}
		flushers = append(flushers, flush.Blob(minioblob.NewStore(client, opts.minioBucket, "")))
	}

	rc := cfg.ResourceController()
	if len(flushers) > 0 {
		e.flusher = flush.RateLimited(flush.Multi(flushers...), rc)
	}

	level := slog.LevelWarn
	if opts.verbose {
		level = slog.LevelDebug
	}

	cacheOpts := []recordcache.Option{
		recordcache.WithLogger(recordcache.NewTextLogger(level)),
		recordcache.WithMetricsCollector(e.metrics),
	}
	if e.flusher != nil {
		cacheOpts = append(cacheOpts, recordcache.WithFlusher(e.flusher))
	}

	g, err := recordcache.NewGroup(cfg.GroupConfig(rc), cfg.CacheOptions(cacheOpts...)...)
	if err != nil {
		e.closeJournal()
		return nil, err
	}
	e.group = g
	return e, nil
}

func (e *env) closeJournal() {
	if e.journal != nil {
		_ = e.journal.Close()
	}
}

// Close drains every cluster through the configured flusher and closes the
// journal. Without a flush target dirty records are dropped.
func (e *env) Close(ctx context.Context) error {
	f := e.flusher
	if f == nil {
		f = recordcache.FlusherFunc(func(context.Context, recordcache.Record) error { return nil })
	}
	err := e.group.Close(ctx, f)
	if e.journal != nil {
		err = errors.Join(err, e.journal.Close())
	}
	return err
}
