package ingest

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var (
	// ErrEmptyInput is returned when an input has no bytes at all.
	ErrEmptyInput = errors.New("empty file")
	// ErrNotRegularFile is returned for directories and devices.
	ErrNotRegularFile = errors.New("not a regular file")
)

// Source is an immutable input that can be read from the start any number
// of times. Both passes of a pipeline open it independently.
type Source interface {
	Name() string
	// Size is the stored (possibly compressed) size in bytes.
	Size() int64
	Open() (io.ReadCloser, error)
}

type fileSource struct {
	path string
	size int64
}

// FileSource returns a Source reading the file at path.
func FileSource(path string) (Source, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegularFile)
	}
	return &fileSource{path: path, size: fi.Size()}, nil
}

func (f *fileSource) Name() string { return filepath.Base(f.path) }

func (f *fileSource) Size() int64 { return f.size }

func (f *fileSource) Open() (io.ReadCloser, error) { return os.Open(f.path) }

// Path returns the file's location on disk.
func (f *fileSource) Path() string { return f.path }

type bytesSource struct {
	name string
	data []byte
}

// BytesSource returns a Source over data. data must not be modified
// afterwards.
func BytesSource(name string, data []byte) Source {
	return &bytesSource{name: name, data: data}
}

func (b *bytesSource) Name() string { return b.name }

func (b *bytesSource) Size() int64 { return int64(len(b.data)) }

func (b *bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

// SourcePath returns the on-disk path of a file source.
func SourcePath(src Source) (string, bool) {
	if f, ok := src.(*fileSource); ok {
		return f.path, true
	}
	return "", false
}

// Stream is an opened Source: decompressed, BOM-stripped and UTF-8
// sanitised, with a count of the raw bytes consumed.
type Stream struct {
	io.Reader
	codec   string
	raw     *CountingReader
	closers []io.Closer
}

// OpenStream opens src and detects its compression from the leading bytes.
func OpenStream(src Source) (*Stream, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, err
	}
	st := &Stream{
		raw:     NewCountingReader(rc, src.Size()),
		closers: []io.Closer{rc},
	}

	br := bufio.NewReaderSize(st.raw, 64*1024)
	head, err := br.Peek(maxMagic)
	if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
		st.Close()
		return nil, err
	}
	if len(head) == 0 {
		st.Close()
		return nil, ErrEmptyInput
	}

	var r io.Reader = br
	if c, ok := detectCodec(head); ok {
		dr, err := c.NewReader(br)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("open %s input: %w", c.Name, err)
		}
		st.codec = c.Name
		st.closers = append(st.closers, dr)
		r = &codecReader{r: dr, codec: c.Name}
	} else if c, ok := CodecForExtension(src.Name()); ok {
		st.Close()
		return nil, fmt.Errorf("%s: content is not %s: %w", src.Name(), c.Name, ErrUnsupportedCodec)
	}

	st.Reader = newUTF8Sanitizer(newBOMReader(r))
	return st, nil
}

// Codec returns the detected compression, or "" for plain input.
func (s *Stream) Codec() string { return s.codec }

// BytesRead returns the raw bytes consumed from the source so far.
func (s *Stream) BytesRead() int64 { return s.raw.BytesRead() }

// Percent returns raw read progress in the range 0-100.
func (s *Stream) Percent() int { return s.raw.Percent() }

func (s *Stream) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// codecError is a failure inside a decompressor, as opposed to a syntax
// error in the decompressed document.
type codecError struct {
	codec string
	err   error
}

func (e *codecError) Error() string { return "decompress " + e.codec + " input: " + e.err.Error() }

func (e *codecError) Unwrap() error { return e.err }

type codecReader struct {
	r     io.Reader
	codec string
}

func (c *codecReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF {
		err = &codecError{codec: c.codec, err: err}
	}
	return n, err
}
