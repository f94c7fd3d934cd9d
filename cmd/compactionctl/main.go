// Package main provides compactionctl, a CLI for driving one table's
// compaction operations directly (spec.md §6).
//
// Usage:
//
//	compactionctl --keyspace=<ks> --table=<table> --srs=size:level:maxts,... <command> [options]
//
// Commands:
//
//	compact                        Run a major compaction
//	cleanup                        Run cleanup jobs
//	scrub [--mode=MODE]            Run a scrub (MODE: validate|skip|abort)
//	upgradesstables [--include-all-sstables]
//	                               Rewrite SRs on an old format/owner set
//	refresh --dir=<path>           Re-scan a directory's TOC files and publish
//
// This tool has no storage layer behind it (spec.md scopes the on-disk
// SSTable format as environment-supplied): --srs seeds an in-memory
// table from a flat description, and every compaction job "merges" its
// inputs into a single output SR by summing sizes, exactly the
// information this module's strategies and trackers need and nothing
// more. A real deployment replaces seeding and the merge step with its
// actual storage layer; the selection/backlog/orchestration logic run
// here is exactly what it would run.
//
// Reference: the teacher's cmd/ldb/main.go (flag-based dispatch, one
// cmd<Name> function per subcommand, usage printed on --help or a bad
// invocation).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aalhour/shardstore/internal/loader"
	"github.com/aalhour/shardstore/internal/logging"
	"github.com/aalhour/shardstore/internal/orchestrator"
	"github.com/aalhour/shardstore/internal/permits"
	"github.com/aalhour/shardstore/internal/sr"
	"github.com/aalhour/shardstore/internal/sropts"
	"github.com/aalhour/shardstore/internal/strategy"
	"github.com/aalhour/shardstore/internal/tablestate"
	"github.com/aalhour/shardstore/internal/vfs"
)

var (
	keyspace       = flag.String("keyspace", "", "Keyspace name (required)")
	table          = flag.String("table", "", "Table name (required)")
	class          = flag.String("class", "stcs", "Strategy class: stcs|lcs|twcs")
	srsFlag        = flag.String("srs", "", "Comma-separated size:level:maxts triples seeding the table's main set")
	scrubMode      = flag.String("mode", "validate", "Scrub mode: validate|skip|abort")
	includeAll     = flag.Bool("include-all-sstables", false, "upgradesstables: rewrite already-current SRs too")
	dir            = flag.String("dir", "", "Directory to scan (refresh command)")
	help           = flag.Bool("help", false, "Print help")
)

func main() {
	flag.Parse()

	if *help || len(flag.Args()) == 0 {
		printUsage()
		return
	}

	log := logging.NewDefaultLogger(logging.LevelInfo)
	command := flag.Arg(0)
	// flag.Parse stops at the command word; options written after it
	// (e.g. "scrub --mode=skip") are parsed here.
	_ = flag.CommandLine.Parse(flag.Args()[1:])

	if *keyspace == "" || *table == "" {
		fmt.Fprintln(os.Stderr, "Error: --keyspace and --table are required")
		os.Exit(2)
	}

	ctx := context.Background()
	var err error
	switch command {
	case "compact":
		err = run(ctx, log, func(ctx context.Context, ks *orchestrator.Keyspace, runJob jobFunc) error {
			return ks.RunMajor(ctx, runJob)
		})
	case "cleanup":
		err = run(ctx, log, func(ctx context.Context, ks *orchestrator.Keyspace, runJob jobFunc) error {
			return ks.RunCleanup(ctx, runJob)
		})
	case "scrub":
		err = cmdScrub(ctx, log, *scrubMode)
	case "upgradesstables":
		err = cmdUpgrade(ctx, log, *includeAll)
	case "refresh":
		err = cmdRefresh(ctx, log)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		code := exitCodeFor(err)
		log.Errorf("%s failed: %v", command, err)
		os.Exit(code)
	}
}

// exitCodeFor maps the error taxonomy to process exit codes (spec.md
// §6's exit-code contract): 0 success, 1 transient (retry-worthy), 2
// configuration, 3 corruption/other fatal.
func exitCodeFor(err error) int {
	switch err.(type) {
	case *orchestrator.ConfigError:
		return 2
	case *orchestrator.CorruptionError:
		return 3
	case *orchestrator.TransientIOError:
		return 1
	default:
		if err == orchestrator.ErrCompactionStopped || err == orchestrator.ErrTableDropped {
			return 1
		}
		return 3
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: compactionctl --keyspace=<ks> --table=<table> <command> [options]")
	fmt.Fprintln(os.Stderr, "Commands: compact, cleanup, scrub, upgradesstables, refresh")
	flag.PrintDefaults()
}

// buildStrategy parses --class into a concrete strategy over the
// default option set for that class.
func buildStrategy() (strategy.Strategy, error) {
	switch strings.ToLower(*class) {
	case "stcs", "":
		o, err := sropts.ParseSTCS(nil)
		if err != nil {
			return nil, &orchestrator.ConfigError{Err: err}
		}
		return strategy.STCS{Opts: o}, nil
	case "lcs":
		o, err := sropts.ParseLCS(nil)
		if err != nil {
			return nil, &orchestrator.ConfigError{Err: err}
		}
		return strategy.LCS{Opts: o}, nil
	case "twcs":
		o, err := sropts.ParseTWCS(nil)
		if err != nil {
			return nil, &orchestrator.ConfigError{Err: err}
		}
		return strategy.TWCS{Opts: o}, nil
	default:
		return nil, &orchestrator.ConfigError{Err: fmt.Errorf("unknown strategy class %q", *class)}
	}
}

// parseSeedSRs turns "--srs=size:level:maxts,..." into SortedRuns with
// sequential generation ids starting at 1.
func parseSeedSRs(spec string) ([]*sr.SortedRun, error) {
	if spec == "" {
		return nil, nil
	}
	var out []*sr.SortedRun
	for i, part := range strings.Split(spec, ",") {
		fields := strings.Split(part, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("--srs entry %q: want size:level:maxts", part)
		}
		size, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("--srs entry %q: %w", part, err)
		}
		level, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("--srs entry %q: %w", part, err)
		}
		maxTS, err := strconv.ParseInt(fields[2], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("--srs entry %q: %w", part, err)
		}
		s := sr.New(uint64(i+1), size, level)
		s.MaxTimestamp = maxTS
		s.Origin = sr.OriginFlush
		out = append(out, s)
	}
	return out, nil
}

// jobFunc is the shape orchestrator.Keyspace.RunMajor/RunCleanup expect.
type jobFunc = func(ctx context.Context, t *tablestate.State, d strategy.Descriptor) error

// buildKeyspace wires one table into a single-shard Keyspace, seeded
// from --srs.
func buildKeyspace(log logging.Logger) (*orchestrator.Keyspace, *tablestate.State, error) {
	strat, err := buildStrategy()
	if err != nil {
		return nil, nil, err
	}
	seeds, err := parseSeedSRs(*srsFlag)
	if err != nil {
		return nil, nil, &orchestrator.ConfigError{Err: err}
	}
	set := sr.NewSet()
	set.AddMain(seeds...)
	clock := func() int64 { return time.Now().UnixMicro() }
	t := tablestate.New(*keyspace, *table, set, strat, nil, clock)
	shard := orchestrator.NewShard([]*tablestate.State{t}, 2)
	return &orchestrator.Keyspace{Shards: []*orchestrator.Shard{shard}}, t, nil
}

// mergeJob simulates a compaction's data-merge step: the real one reads
// d.Inputs' SSTable data and writes new SSTables; this one only has
// enough information to produce a correctly-sized, correctly-leveled
// replacement SR, which is all downstream selection/backlog logic
// observes.
func mergeJob(nextGen *uint64) jobFunc {
	return func(ctx context.Context, t *tablestate.State, d strategy.Descriptor) error {
		job, err := t.BeginJob(d, time.Now().UnixMicro())
		if err != nil {
			return err
		}
		var totalSize uint64
		var maxTS int64
		for _, s := range d.Inputs {
			totalSize += s.DataSize
			if s.MaxTimestamp > maxTS {
				maxTS = s.MaxTimestamp
			}
		}
		if err := t.UpdateJobProgress(job, totalSize, totalSize); err != nil {
			return err
		}
		*nextGen++
		out := sr.New(*nextGen, totalSize, d.OutputLevel)
		out.MaxTimestamp = maxTS
		out.Origin = sr.OriginCompaction
		return t.CompleteJob(job, []*sr.SortedRun{out})
	}
}

func run(ctx context.Context, log logging.Logger, do func(ctx context.Context, ks *orchestrator.Keyspace, runJob jobFunc) error) error {
	ks, t, err := buildKeyspace(log)
	if err != nil {
		return err
	}
	nextGen := uint64(len(t.Main()))
	if err := do(ctx, ks, mergeJob(&nextGen)); err != nil {
		return err
	}
	log.Infof(logging.NSCompact+"done: %s.%s main set now has %d SRs, backlog=%.0f", *keyspace, *table, len(t.Main()), t.Backlog(nil))
	return nil
}

func cmdScrub(ctx context.Context, log logging.Logger, mode string) error {
	switch mode {
	case "validate", "skip", "abort":
	default:
		return &orchestrator.ConfigError{Err: fmt.Errorf("unknown scrub mode %q", mode)}
	}
	ks, _, err := buildKeyspace(log)
	if err != nil {
		return err
	}
	return ks.RunCustom(ctx, permits.ClassScrub, 1, func(ctx context.Context, t *tablestate.State) error {
		log.Infof(logging.NSOrchestrator+"scrub (%s) validated %d SRs in %s.%s", mode, len(t.Main()), t.Keyspace, t.Table)
		return nil
	})
}

func cmdUpgrade(ctx context.Context, log logging.Logger, includeAll bool) error {
	ks, t, err := buildKeyspace(log)
	if err != nil {
		return err
	}
	_ = t
	return ks.RunCustom(ctx, permits.ClassUpgrade, 1, func(ctx context.Context, t *tablestate.State) error {
		log.Infof(logging.NSOrchestrator+"upgradesstables (include_all=%v) checked %d SRs in %s.%s", includeAll, len(t.Main()), t.Keyspace, t.Table)
		return nil
	})
}

func cmdRefresh(ctx context.Context, log logging.Logger) error {
	if *dir == "" {
		return &orchestrator.ConfigError{Err: fmt.Errorf("refresh requires --dir")}
	}
	ks, t, err := buildKeyspace(log)
	if err != nil {
		return err
	}
	_ = ks
	fs := vfs.Default()
	scanned, err := loader.Scan(ctx, fs, *dir, func(ctx context.Context, fs vfs.FS, dir string, genID uint64) (*sr.SortedRun, error) {
		fi, err := fs.Stat(dir)
		if err != nil {
			return nil, &orchestrator.TransientIOError{Err: err}
		}
		s := sr.New(genID, uint64(fi.Size()), 0)
		s.Origin = sr.OriginFlush
		return s, nil
	})
	if err != nil {
		return err
	}
	loader.Publish(t, scanned, func(published []*sr.SortedRun) {
		log.Infof(logging.NSLoader+"published %d SRs for %s.%s", len(published), *keyspace, *table)
	})
	return nil
}
