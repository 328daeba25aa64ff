package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// ErrUnsupportedCodec is returned for a compressed input with no registered
// decoder.
var ErrUnsupportedCodec = errors.New("unsupported compression codec")

// Codec decompresses one input format. Magic is matched against the first
// bytes of the stream; Extensions are only used for naming and lookups.
type Codec struct {
	Name       string
	Magic      [][]byte
	Extensions []string
	NewReader  func(io.Reader) (io.ReadCloser, error)
}

var (
	codecs   = make(map[string]Codec)
	codecsMu sync.RWMutex
)

// RegisterCodec adds a codec. Panics if the name is already registered.
func RegisterCodec(c Codec) {
	codecsMu.Lock()
	defer codecsMu.Unlock()

	if _, exists := codecs[c.Name]; exists {
		panic(fmt.Sprintf("codec already registered: %s", c.Name))
	}
	codecs[c.Name] = c
}

// LookupCodec returns a codec by name.
func LookupCodec(name string) (Codec, bool) {
	codecsMu.RLock()
	defer codecsMu.RUnlock()

	c, ok := codecs[name]
	return c, ok
}

// Codecs returns all registered codecs sorted by name.
func Codecs() []Codec {
	codecsMu.RLock()
	defer codecsMu.RUnlock()

	out := make([]Codec, 0, len(codecs))
	for _, c := range codecs {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CodecForExtension returns the codec registered for a file name's
// extension.
func CodecForExtension(name string) (Codec, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return Codec{}, false
	}
	for _, c := range Codecs() {
		for _, e := range c.Extensions {
			if e == ext {
				return c, true
			}
		}
	}
	return Codec{}, false
}

// maxMagic is the number of leading bytes detection needs.
const maxMagic = 10

func detectCodec(head []byte) (Codec, bool) {
	for _, c := range Codecs() {
		for _, m := range c.Magic {
			if bytes.HasPrefix(head, m) {
				return c, true
			}
		}
	}
	return Codec{}, false
}

var zstdDecoderPool = sync.Pool{
	New: func() any {
		d, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
		if err != nil {
			panic(fmt.Sprintf("create zstd decoder: %v", err))
		}
		return d
	},
}

// pooledZstd returns its decoder to the pool on Close.
type pooledZstd struct {
	*zstd.Decoder
}

func (p pooledZstd) Close() error {
	if p.Decoder == nil {
		return nil
	}
	_ = p.Decoder.Reset(nil)
	zstdDecoderPool.Put(p.Decoder)
	return nil
}

func init() {
	RegisterCodec(Codec{
		Name:       "gzip",
		Magic:      [][]byte{{0x1f, 0x8b}},
		Extensions: []string{".gz", ".gzip"},
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			return gzip.NewReader(r)
		},
	})
	RegisterCodec(Codec{
		Name:       "zstd",
		Magic:      [][]byte{{0x28, 0xb5, 0x2f, 0xfd}},
		Extensions: []string{".zst", ".zstd"},
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			d := zstdDecoderPool.Get().(*zstd.Decoder)
			if err := d.Reset(r); err != nil {
				zstdDecoderPool.Put(d)
				return nil, err
			}
			return pooledZstd{d}, nil
		},
	})
	RegisterCodec(Codec{
		Name:       "lz4",
		Magic:      [][]byte{{0x04, 0x22, 0x4d, 0x18}},
		Extensions: []string{".lz4"},
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(lz4.NewReader(r)), nil
		},
	})
	RegisterCodec(Codec{
		Name: "s2",
		Magic: [][]byte{
			[]byte("\xff\x06\x00\x00S2sTwO"),
			[]byte("\xff\x06\x00\x00sNaPpY"),
		},
		Extensions: []string{".s2", ".sz"},
		NewReader: func(r io.Reader) (io.ReadCloser, error) {
			return io.NopCloser(s2.NewReader(r)), nil
		},
	})
}
