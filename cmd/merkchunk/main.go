// merkchunk loads, inspects, exports and restores merk stores from the
// command line.
//
// Usage:
//
//	merkchunk load       --db DIR [--count N]        < key<TAB>value lines
//	merkchunk info       --db DIR | --checkpoint FILE
//	merkchunk checkpoint --db DIR --out FILE
//	merkchunk export     --db DIR | --checkpoint FILE --out DIR [--index N]
//	merkchunk restore    --db DIR --in DIR --root HASH
package main

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bsm/merk"
	"github.com/bsm/merk/proofs"
	"github.com/spf13/pflag"
)

type command struct {
	summary string
	run     func(args []string, logger *slog.Logger) error
}

var commands = map[string]command{
	"load":       {"apply key/value pairs to a store", runLoad},
	"info":       {"print root hash, height and chunk count", runInfo},
	"checkpoint": {"write a checkpoint file", runCheckpoint},
	"export":     {"write chunks to a directory", runExport},
	"restore":    {"restore a store from exported chunks", runRestore},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		printHelp()
		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		printHelp()
		return fmt.Errorf("unknown command %q", args[0])
	}

	level := slog.LevelInfo
	if os.Getenv("MERKCHUNK_DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	return cmd.run(args[1:], logger.With("command", args[0]))
}

func printHelp() {
	fmt.Fprintf(os.Stderr, "Usage:\n  merkchunk <command> [flags]\n\nCommands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-12s %s\n", name, commands[name].summary)
	}
}

// parseFlags parses args and rejects positional arguments.
func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	return nil
}

// --------------------------------------------------------------------

func runLoad(args []string, logger *slog.Logger) error {
	var dbPath string
	var count, batchSize int

	fs := pflag.NewFlagSet("load", pflag.ContinueOnError)
	fs.StringVar(&dbPath, "db", "", "store directory")
	fs.IntVar(&count, "count", 0, "generate sequential keys instead of reading stdin")
	fs.IntVar(&batchSize, "batch-size", 10000, "number of entries per batch (stdin only)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if dbPath == "" {
		return errors.New("--db is required")
	}

	db, err := merk.Open(dbPath, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	var batch []merk.BatchEntry
	if count > 0 {
		value := bytes.Repeat([]byte{123}, 60)
		for i := 0; i < count; i++ {
			key := make([]byte, 8)
			binary.BigEndian.PutUint64(key, uint64(i))
			batch = append(batch, merk.Put(key, value))
		}
	} else if batch, err = readBatch(os.Stdin); err != nil {
		return err
	}

	start := time.Now()
	if count > 0 {
		batchSize = len(batch)
	}
	for len(batch) != 0 {
		n := batchSize
		if n < 1 || n > len(batch) {
			n = len(batch)
		}
		if err := db.Apply(batch[:n]); err != nil {
			return err
		}
		logger.Debug("applied batch", "entries", n)
		batch = batch[n:]
	}

	logger.Info("loaded", "root", db.RootHash(), "height", db.Height(), "elapsed", time.Since(start))
	return nil
}

// readBatch reads tab separated key/value lines. Later lines overwrite
// earlier ones.
func readBatch(f *os.File) ([]merk.BatchEntry, error) {
	entries := make(map[string][]byte)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		key, value, _ := bytes.Cut(line, []byte{'\t'})
		if len(key) == 0 {
			return nil, errors.New("empty key")
		}
		entries[string(key)] = bytes.Clone(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	batch := make([]merk.BatchEntry, 0, len(keys))
	for _, key := range keys {
		batch = append(batch, merk.Put([]byte(key), entries[key]))
	}
	return batch, nil
}

// --------------------------------------------------------------------

// producerSource opens either a store or a checkpoint.
type producerSource struct {
	dbPath, checkpointPath string
}

func (s *producerSource) addFlags(fs *pflag.FlagSet) {
	fs.StringVar(&s.dbPath, "db", "", "store directory")
	fs.StringVar(&s.checkpointPath, "checkpoint", "", "checkpoint file")
}

// open returns the root hash, a chunk producer and a cleanup func.
func (s *producerSource) open() (proofs.Hash, *merk.ChunkProducer, func(), error) {
	switch {
	case s.dbPath != "" && s.checkpointPath != "":
		return proofs.NullHash, nil, nil, errors.New("--db and --checkpoint are mutually exclusive")
	case s.checkpointPath != "":
		cp, err := merk.OpenCheckpoint(s.checkpointPath)
		if err != nil {
			return proofs.NullHash, nil, nil, err
		}
		p, err := cp.Chunks()
		if err != nil {
			_ = cp.Close()
			return proofs.NullHash, nil, nil, err
		}
		return cp.RootHash(), p, func() { p.Release(); _ = cp.Close() }, nil
	case s.dbPath != "":
		db, err := merk.Open(s.dbPath, nil)
		if err != nil {
			return proofs.NullHash, nil, nil, err
		}
		p, err := db.Chunks()
		if err != nil {
			_ = db.Close()
			return proofs.NullHash, nil, nil, err
		}
		return db.RootHash(), p, func() { p.Release(); _ = db.Close() }, nil
	}
	return proofs.NullHash, nil, nil, errors.New("--db or --checkpoint is required")
}

func runInfo(args []string, logger *slog.Logger) error {
	var src producerSource

	fs := pflag.NewFlagSet("info", pflag.ContinueOnError)
	src.addFlags(fs)
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	root, p, cleanup, err := src.open()
	if err != nil {
		return err
	}
	defer cleanup()

	trunk, err := p.Chunk(0)
	if err != nil {
		return err
	}
	ops, err := proofs.Decode(trunk)
	if err != nil {
		return err
	}
	_, height, err := proofs.VerifyTrunk(ops)
	if err != nil {
		return err
	}

	logger.Debug("verified trunk", "bytes", len(trunk), "ops", len(ops))
	fmt.Printf("root:   %s\nheight: %d\nchunks: %d\n", root, height, p.Len())
	return nil
}

func runCheckpoint(args []string, logger *slog.Logger) error {
	var dbPath, out string

	fs := pflag.NewFlagSet("checkpoint", pflag.ContinueOnError)
	fs.StringVar(&dbPath, "db", "", "store directory")
	fs.StringVarP(&out, "out", "o", "", "checkpoint file")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if dbPath == "" || out == "" {
		return errors.New("--db and --out are required")
	}

	db, err := merk.Open(dbPath, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	start := time.Now()
	if err := db.Checkpoint(out); err != nil {
		return err
	}

	logger.Info("checkpoint written", "file", out, "root", db.RootHash(), "elapsed", time.Since(start))
	return nil
}

func chunkFile(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("chunk-%05d", index))
}

func runExport(args []string, logger *slog.Logger) error {
	var src producerSource
	var out string
	var index int

	fs := pflag.NewFlagSet("export", pflag.ContinueOnError)
	src.addFlags(fs)
	fs.StringVarP(&out, "out", "o", "", "output directory")
	fs.IntVar(&index, "index", -1, "export a single chunk")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if out == "" {
		return errors.New("--out is required")
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return err
	}

	root, p, cleanup, err := src.open()
	if err != nil {
		return err
	}
	defer cleanup()

	if index > -1 {
		chunk, err := p.Chunk(index)
		if err != nil {
			return err
		}
		if err := os.WriteFile(chunkFile(out, index), chunk, 0o644); err != nil {
			return err
		}
		logger.Info("exported chunk", "index", index, "bytes", len(chunk))
		return nil
	}

	var size int
	iter := p.Iter()
	for n := 0; iter.Next(); n++ {
		chunk := iter.Chunk()
		if err := os.WriteFile(chunkFile(out, n), chunk, 0o644); err != nil {
			return err
		}
		size += len(chunk)
		logger.Debug("exported chunk", "index", n, "bytes", len(chunk))
	}
	if err := iter.Err(); err != nil {
		return err
	}

	logger.Info("exported", "root", root, "chunks", iter.Len(), "bytes", size)
	return nil
}

func runRestore(args []string, logger *slog.Logger) error {
	var dbPath, in, rootHex string

	fs := pflag.NewFlagSet("restore", pflag.ContinueOnError)
	fs.StringVar(&dbPath, "db", "", "target store directory, must be empty")
	fs.StringVarP(&in, "in", "i", "", "directory with exported chunks")
	fs.StringVar(&rootHex, "root", "", "expected root hash (hex)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if dbPath == "" || in == "" || rootHex == "" {
		return errors.New("--db, --in and --root are required")
	}

	root, err := proofs.ParseHash(rootHex)
	if err != nil {
		return err
	}

	r, err := merk.NewRestorer(dbPath, root, nil)
	if err != nil {
		return err
	}

	start := time.Now()
	for remaining := r.Remaining(); len(remaining) != 0; remaining = r.Remaining() {
		index := remaining[0]
		chunk, err := os.ReadFile(chunkFile(in, index))
		if err != nil {
			_ = r.Close()
			return err
		}
		if err := r.ProcessChunk(index, chunk); err != nil {
			_ = r.Close()
			return err
		}
		logger.Debug("restored chunk", "index", index, "bytes", len(chunk))
	}

	db, err := r.Finalize()
	if err != nil {
		_ = r.Close()
		return err
	}
	defer db.Close()

	logger.Info("restored", "root", db.RootHash(), "chunks", r.Len(), "elapsed", time.Since(start))
	return nil
}
