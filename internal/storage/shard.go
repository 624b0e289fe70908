package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tcfw/authchain/internal/utils/logging"
	"github.com/tcfw/authchain/pkg/block"
	"github.com/tcfw/authchain/pkg/storage"
)

var (
	_ storage.Store      = (*ShardStore)(nil)
	_ storage.HashLookup = (*ShardStore)(nil)

	shardFilePattern = regexp.MustCompile(`^ledger-([0-9]+)\.db$`)
)

const (
	metadataFile    = "config.json"
	metadataTmpFile = "config.json.tmp"

	// IndexDir is the directory under the ledger root holding the hash index
	IndexDir = "index"

	shardFileMode = 0644
	scanBufSize   = block.RecordSize * 64
)

type Option func(*ShardStore) error

// WithHashIndex keeps idx up to date with every stored record
func WithHashIndex(idx storage.HashIndex) Option {
	return func(s *ShardStore) error {
		s.index = idx
		return nil
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(s *ShardStore) error {
		s.logger = l
		return nil
	}
}

// ShardStore persists fixed width records across numbered shard files, each
// holding at most breakpiece records. Only the last shard is ever written.
type ShardStore struct {
	dir        string
	breakpiece int
	genesis    string

	//serialises AddBlock
	writeMu sync.Mutex

	mu     sync.RWMutex
	shards int
	length uint64
	last   []byte

	index  storage.HashIndex
	logger *logrus.Entry
}

// NewShardStore opens the ledger held in dir, creating the first shard and the
// metadata file when the directory holds no shards yet. dir must already exist.
func NewShardStore(ctx context.Context, dir string, opts storage.Options, sopts ...Option) (*ShardStore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	fi, err := os.Stat(dir)
	if err != nil || !fi.IsDir() {
		return nil, errors.Wrap(storage.ErrInvalidLedgerDir, dir)
	}

	s := &ShardStore{
		dir:        dir,
		breakpiece: opts.Breakpiece,
		genesis:    opts.GenesisHash,
		logger:     logging.Entry(),
	}

	for _, opt := range sopts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.logger = s.logger.WithField("ledger", dir)

	if err := s.bootstrap(); err != nil {
		return nil, errors.Wrap(err, "bootstrapping ledger")
	}

	if s.index != nil {
		if err := s.reindex(ctx); err != nil {
			return nil, errors.Wrap(err, "rebuilding hash index")
		}
	}

	s.logger.
		WithField("length", s.length).
		WithField("shards", s.shards).
		WithField("breakpiece", s.breakpiece).
		Debug("ledger opened")

	return s, nil
}

// Breakpiece is the maximum number of records per shard
func (s *ShardStore) Breakpiece() int {
	return s.breakpiece
}

// Shards is the number of shard files currently in use
func (s *ShardStore) Shards() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.shards
}

func (s *ShardStore) shardPath(n int) string {
	return filepath.Join(s.dir, fmt.Sprintf("ledger-%d.db", n))
}

func (s *ShardStore) bootstrap() error {
	shards, err := s.listShards()
	if err != nil {
		return err
	}

	meta, err := s.readMetadata()
	if err != nil {
		return err
	}

	if len(shards) == 0 {
		if err := createShard(s.shardPath(1), nil); err != nil {
			return errors.Wrap(err, "creating first shard")
		}

		s.shards = 1
		return s.writeMetadata(nil, 0)
	}

	s.shards = len(shards)

	switch {
	case meta != nil && meta.Breakpiece > 0:
		s.breakpiece = meta.Breakpiece
	case s.shards > 1:
		//without metadata the first shard is full and tells us the breakpiece
		bp, err := s.recordsIn(1)
		if err != nil {
			return err
		}
		if bp != uint64(s.breakpiece) {
			s.logger.
				WithField("configured", s.breakpiece).
				WithField("found", bp).
				Warn("breakpiece derived from existing shards")
		}
		s.breakpiece = int(bp)
	}

	if s.breakpiece <= 0 {
		return storage.ErrInvalidBreakpiece
	}

	for n := 1; n < s.shards; n++ {
		count, err := s.recordsIn(n)
		if err != nil {
			return err
		}
		if count != uint64(s.breakpiece) {
			return errors.Wrapf(storage.ErrCorruptLedger, "shard %d holds %d records, expected %d", n, count, s.breakpiece)
		}
	}

	active, err := s.repairActiveShard()
	if err != nil {
		return err
	}

	if active > uint64(s.breakpiece) {
		return errors.Wrapf(storage.ErrCorruptLedger, "shard %d exceeds breakpiece", s.shards)
	}

	s.length = uint64(s.shards-1)*uint64(s.breakpiece) + active

	if s.length > 0 {
		if err := s.checkAnchor(); err != nil {
			return err
		}

		last, err := s.readRecord(s.length)
		if err != nil {
			return errors.Wrap(err, "reading tip")
		}
		s.last = last
	}

	if meta != nil && meta.Length == s.length && meta.Breakpiece == s.breakpiece && sameTip(meta.LastBlock, s.last) {
		return nil
	}

	if meta != nil {
		s.logger.
			WithField("metadata_length", meta.Length).
			WithField("length", s.length).
			Warn("metadata out of date with shards, rebuilding")
	}

	return s.writeMetadata(s.last, s.length)
}

// checkAnchor confirms the first stored record links to the configured genesis
func (s *ShardStore) checkAnchor() error {
	first, err := s.readRecord(1)
	if err != nil {
		return errors.Wrap(err, "reading first record")
	}

	b, err := block.Unpack(first)
	if err != nil {
		return errors.Wrap(storage.ErrCorruptLedger, err.Error())
	}

	if b.PreviousHash != s.genesis {
		return errors.Wrapf(storage.ErrInvalidGenesis, "ledger is anchored to %s", b.PreviousHash)
	}

	return nil
}

// listShards returns the shard numbers in order, requiring them to run 1..n
func (s *ShardStore) listShards() ([]int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, errors.Wrap(err, "listing ledger directory")
	}

	var shards []int
	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		m := shardFilePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}

		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		shards = append(shards, n)
	}

	sort.Ints(shards)

	for i, n := range shards {
		if n != i+1 {
			return nil, errors.Wrapf(storage.ErrCorruptLedger, "missing shard %d", i+1)
		}
	}

	return shards, nil
}

func (s *ShardStore) recordsIn(n int) (uint64, error) {
	fi, err := os.Stat(s.shardPath(n))
	if err != nil {
		return 0, errors.Wrapf(err, "reading shard %d", n)
	}

	if fi.Size()%block.RecordSize != 0 {
		return 0, errors.Wrapf(storage.ErrCorruptLedger, "shard %d has a partial record", n)
	}

	return uint64(fi.Size() / block.RecordSize), nil
}

// repairActiveShard drops a trailing partial record left by an interrupted
// append and returns the number of whole records in the active shard
func (s *ShardStore) repairActiveShard() (uint64, error) {
	path := s.shardPath(s.shards)

	fi, err := os.Stat(path)
	if err != nil {
		return 0, errors.Wrap(err, "reading active shard")
	}

	size := fi.Size()
	if extra := size % block.RecordSize; extra != 0 {
		s.logger.
			WithField("shard", s.shards).
			WithField("bytes", extra).
			Warn("truncating partial record from interrupted append")

		size -= extra
		if err := os.Truncate(path, size); err != nil {
			return 0, errors.Wrap(err, "truncating partial record")
		}
	}

	return uint64(size / block.RecordSize), nil
}

func (s *ShardStore) readMetadata() (*storage.Metadata, error) {
	d, err := os.ReadFile(filepath.Join(s.dir, metadataFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "reading metadata")
	}

	meta := &storage.Metadata{}
	if err := json.Unmarshal(d, meta); err != nil {
		s.logger.WithError(err).Warn("unreadable metadata, deriving from shards")
		return nil, nil
	}

	return meta, nil
}

// writeMetadata replaces the metadata file atomically
func (s *ShardStore) writeMetadata(last []byte, length uint64) error {
	meta := storage.Metadata{
		Breakpiece: s.breakpiece,
		Length:     length,
	}
	if last != nil {
		l := string(last)
		meta.LastBlock = &l
	}

	d, err := json.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "marshalling metadata")
	}

	tmp := filepath.Join(s.dir, metadataTmpFile)

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, shardFileMode)
	if err != nil {
		return errors.Wrap(err, "opening metadata for write")
	}

	if _, err := f.Write(d); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "writing metadata")
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.Wrap(err, "syncing metadata")
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "closing metadata")
	}

	if err := os.Rename(tmp, filepath.Join(s.dir, metadataFile)); err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "replacing metadata")
	}

	//the new metadata is already in place
	if err := syncDir(s.dir); err != nil {
		s.logger.WithError(err).Warn("syncing ledger directory")
	}

	return nil
}

func (s *ShardStore) AddBlock(ctx context.Context, raw []byte) error {
	index, err := block.IndexOf(raw)
	if err != nil {
		return errors.Wrap(err, "reading record index")
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	length, shards := s.length, s.shards
	s.mu.RUnlock()

	if index != length+1 {
		return errors.Wrapf(storage.ErrOutOfSequence, "got %d, tip is %d", index, length)
	}

	active := length - uint64(shards-1)*uint64(s.breakpiece)

	var rollback func() error

	if active+1 > uint64(s.breakpiece) {
		path := s.shardPath(shards + 1)
		if err := createShard(path, raw); err != nil {
			return errors.Wrap(err, "creating shard")
		}
		rollback = func() error { return os.Remove(path) }
		shards++

		s.logger.WithField("shard", shards).Info("rolled over to new shard")
	} else {
		path := s.shardPath(shards)
		prevSize := int64(active) * block.RecordSize
		if err := appendRecord(path, raw, prevSize); err != nil {
			return errors.Wrap(err, "appending to shard")
		}
		rollback = func() error { return os.Truncate(path, prevSize) }
	}

	last := make([]byte, len(raw))
	copy(last, raw)

	if err := s.writeMetadata(last, index); err != nil {
		if rerr := rollback(); rerr != nil {
			s.logger.WithError(rerr).Error("rolling back shard after failed metadata write")
		}
		return err
	}

	s.mu.Lock()
	s.length = index
	s.shards = shards
	s.last = last
	s.mu.Unlock()

	if s.index != nil {
		hash, _ := block.HashOf(raw)
		if err := s.index.Put(ctx, hash, index); err != nil {
			//the index catches up on next open
			s.logger.WithError(err).WithField("index", index).Warn("indexing block hash")
		}
	}

	s.logger.WithField("index", index).Debug("stored block")

	return nil
}

func (s *ShardStore) GetBlock(ctx context.Context, index uint64) ([]byte, error) {
	s.mu.RLock()
	length := s.length
	s.mu.RUnlock()

	if index == 0 || index > length {
		return nil, storage.ErrNotFound
	}

	return s.readRecord(index)
}

// readRecord reads the record at index from the shard that holds it
func (s *ShardStore) readRecord(index uint64) ([]byte, error) {
	bp := uint64(s.breakpiece)
	shard := int((index-1)/bp) + 1
	offset := int64((index-1)%bp) * block.RecordSize

	f, err := os.Open(s.shardPath(shard))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, storage.ErrNotFound
		}
		return nil, errors.Wrap(err, "opening shard")
	}
	defer f.Close()

	buf := make([]byte, block.RecordSize)
	n, err := f.ReadAt(buf, offset)
	if n < block.RecordSize {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrap(err, "reading shard")
		}
		return nil, storage.ErrNotFound
	}

	got, err := block.IndexOf(buf)
	if err != nil || got != index {
		return nil, errors.Wrapf(storage.ErrCorruptRecord, "shard %d offset %d", shard, offset)
	}

	return buf, nil
}

func (s *ShardStore) LastBlock() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.last == nil {
		return nil
	}

	d := make([]byte, len(s.last))
	copy(d, s.last)
	return d
}

func (s *ShardStore) Length() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.length
}

func (s *ShardStore) Chain(ctx context.Context, w io.Writer) error {
	return s.scan(ctx, 1, s.Length(), func(_ uint64, raw []byte) error {
		if _, err := w.Write(raw); err != nil {
			return errors.Wrap(err, "writing record")
		}
		return nil
	})
}

// scan reads records from..to in order, one shard at a time
func (s *ShardStore) scan(ctx context.Context, from, to uint64, fn func(uint64, []byte) error) error {
	bp := uint64(s.breakpiece)
	index := from

	for index <= to {
		shard := int((index-1)/bp) + 1
		offset := int64((index-1)%bp) * block.RecordSize

		f, err := os.Open(s.shardPath(shard))
		if err != nil {
			return errors.Wrapf(err, "opening shard %d", shard)
		}

		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			f.Close()
			return errors.Wrapf(err, "seeking shard %d", shard)
		}

		r := bufio.NewReaderSize(f, scanBufSize)
		end := uint64(shard) * bp
		if end > to {
			end = to
		}

		for ; index <= end; index++ {
			if err := ctx.Err(); err != nil {
				f.Close()
				return err
			}

			buf := make([]byte, block.RecordSize)
			if _, err := io.ReadFull(r, buf); err != nil {
				f.Close()
				return errors.Wrapf(storage.ErrCorruptLedger, "shard %d ended before record %d", shard, index)
			}

			if err := fn(index, buf); err != nil {
				f.Close()
				return err
			}
		}

		f.Close()
	}

	return nil
}

// LookupHash resolves a block hash through the hash index
func (s *ShardStore) LookupHash(ctx context.Context, hash string) (uint64, error) {
	if s.index == nil {
		return 0, storage.ErrOpNotSupported
	}

	index, err := s.index.Lookup(ctx, hash)
	if err != nil {
		return 0, err
	}

	raw, err := s.GetBlock(ctx, index)
	if err != nil {
		return 0, err
	}

	if h, _ := block.HashOf(raw); h != hash {
		return 0, storage.ErrNotFound
	}

	return index, nil
}

// reindex applies every record the hash index has not yet seen
func (s *ShardStore) reindex(ctx context.Context) error {
	from := s.index.Indexed() + 1
	if from > s.length {
		return nil
	}

	s.logger.WithField("from", from).WithField("to", s.length).Info("indexing block hashes")

	return s.scan(ctx, from, s.length, func(index uint64, raw []byte) error {
		hash, _ := block.HashOf(raw)
		return s.index.Put(ctx, hash, index)
	})
}

func (s *ShardStore) Close() error {
	if s.index != nil {
		return s.index.Close()
	}

	return nil
}

func createShard(path string, raw []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, shardFileMode)
	if err != nil {
		return err
	}

	if len(raw) > 0 {
		if _, err := f.Write(raw); err != nil {
			f.Close()
			os.Remove(path)
			return err
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return err
	}

	return syncDir(filepath.Dir(path))
}

// appendRecord appends raw to the shard, cutting it back to prevSize on failure
func appendRecord(path string, raw []byte, prevSize int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, shardFileMode)
	if err != nil {
		return err
	}

	if _, err := f.Write(raw); err != nil {
		f.Close()
		os.Truncate(path, prevSize)
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		os.Truncate(path, prevSize)
		return err
	}

	return f.Close()
}

var syncDir = func(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return errors.Wrap(err, "opening ledger directory")
	}
	defer d.Close()

	//not every platform supports syncing a directory
	d.Sync()

	return nil
}

func sameTip(meta *string, last []byte) bool {
	if meta == nil {
		return last == nil
	}

	return *meta == string(last)
}
