package txn

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/hupe1980/docgo/codec"
	"github.com/hupe1980/docgo/internal/fs"
)

const (
	journalMagic   = "DGTX"
	journalVersion = 1
	journalExt     = ".txj"
)

// Compression selects the journal payload compression.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// Options configures a Journal.
type Options struct {
	// Codec serializes records. Defaults to codec.Default. Files are
	// self-describing: the codec used at write time is named in the header,
	// so reads do not depend on this setting.
	Codec codec.Codec

	// Compression applied to new journal files. Defaults to zstd.
	Compression Compression

	// FS abstracts file operations, for fault injection in tests.
	FS fs.FileSystem
}

// Journal persists transaction records, one file per transaction. A record
// file exists from Begin until the transaction outcome is final; recovery
// treats every surviving file as evidence of an interrupted transaction.
type Journal struct {
	dir   string
	fsys  fs.FileSystem
	codec codec.Codec
	comp  Compression

	zenc *zstd.Encoder
	zdec *zstd.Decoder
}

// Open creates a journal rooted at dir, creating the directory if needed.
func Open(dir string, optFns ...func(*Options)) (*Journal, error) {
	opts := Options{Compression: CompressionZstd}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Codec == nil {
		opts.Codec = codec.Default
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}

	if err := opts.FS.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	zenc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	zdec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}

	return &Journal{
		dir:   dir,
		fsys:  opts.FS,
		codec: opts.Codec,
		comp:  opts.Compression,
		zenc:  zenc,
		zdec:  zdec,
	}, nil
}

func (j *Journal) path(id string) string {
	return filepath.Join(j.dir, id+journalExt)
}

// Begin journals a new transaction record. The file must be durable before
// any document is touched.
func (j *Journal) Begin(rec *Record) error {
	return j.write(rec)
}

// Update rewrites the record in place, atomically.
func (j *Journal) Update(rec *Record) error {
	return j.write(rec)
}

// Remove deletes a transaction's journal file. Called after commit or after a
// completed rollback.
func (j *Journal) Remove(id string) error {
	if err := j.fsys.Remove(j.path(id)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Records reads every journal file, sorted by transaction id. On a clean
// database the result is empty.
func (j *Journal) Records() ([]*Record, error) {
	entries, err := j.fsys.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var out []*Record
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), journalExt) {
			continue
		}
		rec, err := j.read(filepath.Join(j.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read journal file %s: %w", e.Name(), err)
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (j *Journal) write(rec *Record) error {
	payload, err := j.codec.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode transaction %s: %w", rec.ID, err)
	}
	payload, err = j.compress(payload)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(journalMagic)
	buf.WriteByte(journalVersion)
	name := j.codec.Name()
	buf.WriteByte(byte(len(name)))
	buf.WriteString(name)
	buf.WriteByte(byte(j.comp))
	buf.Write(payload)

	return fs.WriteAtomic(j.fsys, j.path(rec.ID), buf.Bytes(), 0o640)
}

func (j *Journal) read(path string) (*Record, error) {
	data, err := fs.ReadFile(j.fsys, path)
	if err != nil {
		return nil, err
	}
	if len(data) < len(journalMagic)+3 || string(data[:len(journalMagic)]) != journalMagic {
		return nil, fmt.Errorf("bad journal magic")
	}
	data = data[len(journalMagic):]
	if data[0] != journalVersion {
		return nil, fmt.Errorf("unsupported journal version %d", data[0])
	}
	nameLen := int(data[1])
	if len(data) < 2+nameLen+1 {
		return nil, fmt.Errorf("truncated journal header")
	}
	codecName := string(data[2 : 2+nameLen])
	comp := Compression(data[2+nameLen])
	payload := data[2+nameLen+1:]

	c, ok := codec.ByName(codecName)
	if !ok {
		return nil, fmt.Errorf("unknown journal codec %q", codecName)
	}
	payload, err = j.decompress(comp, payload)
	if err != nil {
		return nil, err
	}

	rec := &Record{}
	if err := c.Unmarshal(payload, rec); err != nil {
		return nil, fmt.Errorf("failed to decode transaction record: %w", err)
	}
	return rec, nil
}

func (j *Journal) compress(data []byte) ([]byte, error) {
	switch j.comp {
	case CompressionZstd:
		return j.zenc.EncodeAll(data, nil), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return data, nil
	}
}

func (j *Journal) decompress(comp Compression, data []byte) ([]byte, error) {
	switch comp {
	case CompressionZstd:
		return j.zdec.DecodeAll(data, nil)
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	default:
		return data, nil
	}
}

// Close releases the compressor state.
func (j *Journal) Close() error {
	j.zenc.Close()
	j.zdec.Close()
	return nil
}
