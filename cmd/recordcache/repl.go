package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/peterh/liner"

	"github.com/hupe1980/recordcache"
	"github.com/hupe1980/recordcache/flush"
)

var commands = []string{
	"put", "get", "del", "delete", "keys",
	"cluster", "evict", "evict-shared", "flush",
	"bulk", "stats", "verify", "replay",
	"help", "exit", "quit", "q",
}

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// REPL is the interactive command loop.
type REPL struct {
	env     *env
	out     io.Writer
	cluster int32
	liner   *liner.State
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".recordcache_history")
}

// Run starts the REPL loop.
func (r *REPL) Run() error {
	r.cluster = r.env.cfg.ClusterID

	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		_ = f.Close()
	}
	defer r.saveHistory()

	fmt.Fprintf(r.out, "recordcache - arena %s per cluster, min chunk %d, compression %s\n",
		humanize.IBytes(uint64(r.env.cfg.ArenaCapacity)), r.env.cfg.MinChunkSize, compressionName(r.env.cfg.Compression))
	fmt.Fprintln(r.out, "Type 'help' for available commands.")
	fmt.Fprintln(r.out)

	for {
		line, err := r.liner.Prompt(fmt.Sprintf("cluster %d> ", r.cluster))
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nBye!")
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.liner.AppendHistory(line)

		if err := r.Execute(context.Background(), line); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(r.out, "Bye!")
				return nil
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
	}
}

// saveHistory persists command history to disk.
func (r *REPL) saveHistory() {
	if path := historyFile(); path != "" {
		if f, err := os.Create(path); err == nil {
			_, _ = r.liner.WriteHistory(f)
			_ = f.Close()
		}
	}
}

// completer provides tab completion for commands.
func completer(line string) []string {
	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}

// Execute runs a single command line.
func (r *REPL) Execute(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "exit", "quit", "q":
		return errQuit
	case "help", "?":
		r.printHelp()
		return nil
	case "cluster":
		return r.cmdCluster(args)
	case "stats":
		return r.cmdStats()
	case "replay":
		return r.cmdReplay(ctx)
	}

	c, err := r.env.group.Cluster(r.cluster)
	if err != nil {
		return err
	}

	switch cmd {
	case "put":
		return r.cmdPut(ctx, c, args)
	case "get":
		return r.cmdGet(c, args)
	case "del", "delete":
		return r.cmdDelete(c, args)
	case "keys":
		return r.cmdKeys(c, args)
	case "evict":
		return r.cmdEvict(ctx, c, args)
	case "evict-shared":
		evicted := c.EvictSharedRecordsOnly()
		fmt.Fprintf(r.out, "evicted: %v, retry needed: %v, records: %d\n", evicted, c.EvictionRetryNeeded(), c.Len())
		return nil
	case "flush":
		n, err := c.Flush(ctx, r.env.flusher)
		fmt.Fprintf(r.out, "flushed %d records\n", n)
		return err
	case "bulk":
		return r.cmdBulk(ctx, c, args)
	case "verify":
		if err := c.Verify(); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "OK")
		return nil
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  put <pos> <content> [state] [segment]   Cache a record (state: new, modified, shared)")
	fmt.Fprintln(r.out, "  get <pos>                               Show a record and make it most recent")
	fmt.Fprintln(r.out, "  del <pos>                               Remove a record without flushing")
	fmt.Fprintln(r.out, "  keys [limit]                            List positions, most recent first")
	fmt.Fprintln(r.out, "  cluster <id>                            Switch to another cluster")
	fmt.Fprintln(r.out, "  evict [percent]                         Evict least recently used records")
	fmt.Fprintln(r.out, "  evict-shared                            Evict only records that need no flush")
	fmt.Fprintln(r.out, "  flush                                   Flush dirty records and mark them shared")
	fmt.Fprintln(r.out, "  bulk <count> [size] [state]             Put <count> random records")
	fmt.Fprintln(r.out, "  stats                                   Show per-cluster statistics")
	fmt.Fprintln(r.out, "  verify                                  Check cache, index and arena structure")
	fmt.Fprintln(r.out, "  replay                                  Load the journal into the caches")
	fmt.Fprintln(r.out, "  help                                    Show this help")
	fmt.Fprintln(r.out, "  exit / quit / q                         Exit (drains dirty records)")
}

func parsePosition(s string) (int64, error) {
	p, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid position %q", s)
	}
	return p, nil
}

func (r *REPL) cmdCluster(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: cluster <id>")
	}
	id, err := strconv.ParseInt(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid cluster id %q", args[0])
	}
	r.cluster = int32(id)
	return nil
}

func (r *REPL) cmdPut(ctx context.Context, c *recordcache.Cache, args []string) error {
	if len(args) < 2 || len(args) > 4 {
		return errors.New("usage: put <pos> <content> [state] [segment]")
	}
	pos, err := parsePosition(args[0])
	if err != nil {
		return err
	}
	state := recordcache.StateNew
	if len(args) > 2 {
		if state, err = recordcache.ParseRecordState(args[2]); err != nil {
			return err
		}
	}
	segment := int64(1)
	if len(args) > 3 {
		if segment, err = strconv.ParseInt(args[3], 10, 32); err != nil {
			return fmt.Errorf("invalid segment %q", args[3])
		}
	}

	ok, err := c.PutOrEvict(ctx, r.env.flusher, int32(segment), pos, []byte(args[1]), state)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("no space for record")
	}
	fmt.Fprintln(r.out, "OK")
	return nil
}

func (r *REPL) cmdGet(c *recordcache.Cache, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: get <pos>")
	}
	pos, err := parsePosition(args[0])
	if err != nil {
		return err
	}
	content, ok := c.Get(pos)
	if !ok {
		fmt.Fprintln(r.out, "(not found)")
		return nil
	}
	state, _ := c.State(pos)
	fmt.Fprintf(r.out, "%q [%s, %s]\n", content, state, humanize.IBytes(uint64(len(content))))
	return nil
}

func (r *REPL) cmdDelete(c *recordcache.Cache, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: del <pos>")
	}
	pos, err := parsePosition(args[0])
	if err != nil {
		return err
	}
	if c.Remove(pos) {
		fmt.Fprintln(r.out, "OK")
	} else {
		fmt.Fprintln(r.out, "(not found)")
	}
	return nil
}

func (r *REPL) cmdKeys(c *recordcache.Cache, args []string) error {
	limit := 50
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid limit %q", args[0])
		}
		limit = n
	}

	keys := c.Keys()
	for i, k := range keys {
		if i == limit {
			fmt.Fprintf(r.out, "... %d more\n", len(keys)-limit)
			break
		}
		state, _ := c.State(k)
		fmt.Fprintf(r.out, "%d\t%s\n", k, state)
	}
	fmt.Fprintf(r.out, "(%d records)\n", len(keys))
	return nil
}

func (r *REPL) cmdEvict(ctx context.Context, c *recordcache.Cache, args []string) error {
	percent := r.env.cfg.EvictionPercent
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid percent %q", args[0])
		}
		percent = n
	}

	before := c.Len()
	_, err := c.EvictPercent(ctx, r.env.flusher, percent)
	fmt.Fprintf(r.out, "evicted %d records, %d left\n", before-c.Len(), c.Len())
	return err
}

func (r *REPL) cmdBulk(ctx context.Context, c *recordcache.Cache, args []string) error {
	if len(args) < 1 || len(args) > 3 {
		return errors.New("usage: bulk <count> [size] [state]")
	}
	count, err := strconv.Atoi(args[0])
	if err != nil || count <= 0 {
		return fmt.Errorf("invalid count %q", args[0])
	}
	size := 64
	if len(args) > 1 {
		if size, err = strconv.Atoi(args[1]); err != nil || size < 0 {
			return fmt.Errorf("invalid size %q", args[1])
		}
	}
	state := recordcache.StateNew
	if len(args) > 2 {
		if state, err = recordcache.ParseRecordState(args[2]); err != nil {
			return err
		}
	}

	var next int64
	for _, k := range c.Keys() {
		next = max(next, k+1)
	}

	start := time.Now()
	stored := 0
	content := make([]byte, size)
	for i := range count {
		_, _ = rand.Read(content)
		ok, err := c.PutOrEvict(ctx, r.env.flusher, 1, next+int64(i), content, state)
		if err != nil {
			return fmt.Errorf("after %d records: %w", stored, err)
		}
		if ok {
			stored++
		}
	}
	elapsed := time.Since(start)

	fmt.Fprintf(r.out, "stored %d/%d records in %v (%s/op), %d cached\n",
		stored, count, elapsed.Round(time.Millisecond), time.Duration(int64(elapsed)/int64(count)), c.Len())
	return nil
}

func (r *REPL) cmdStats() error {
	for _, s := range r.env.group.Stats() {
		fmt.Fprintln(r.out, s)
	}

	m := r.env.metrics.GetStats()
	fmt.Fprintf(r.out, "puts: %s (rejected %s), gets: %s hits / %s misses (%.1f%%)\n",
		humanize.Comma(m.PutCount), humanize.Comma(m.PutRejected),
		humanize.Comma(m.GetHits), humanize.Comma(m.GetMisses), 100*m.HitRatio())
	fmt.Fprintf(r.out, "evicted: %s records in %s passes, flushed: %s records (%s), flush errors: %s\n",
		humanize.Comma(m.EvictedRecords), humanize.Comma(m.EvictionPasses),
		humanize.Comma(m.FlushedRecords), humanize.IBytes(uint64(m.FlushedBytes)), humanize.Comma(m.FlushErrors))

	if r.env.journal != nil {
		fmt.Fprintf(r.out, "journal: %s, %s, next lsn %d\n",
			r.env.journal.Path(), humanize.IBytes(uint64(r.env.journal.Size())), r.env.journal.NextLSN())
	}
	return nil
}

func (r *REPL) cmdReplay(ctx context.Context) error {
	if r.env.journal == nil {
		return errors.New("no journal configured (use --journal)")
	}
	n, err := flush.Restore(ctx, r.env.journal, r.env.group)
	fmt.Fprintf(r.out, "restored %d records\n", n)
	return err
}

func compressionName(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
