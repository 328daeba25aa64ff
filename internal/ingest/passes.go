package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/JonMunkholm/jsonview/internal/flatten"
	"github.com/JonMunkholm/jsonview/internal/jsonparse"
	"github.com/JonMunkholm/jsonview/internal/rowstore"
)

// ErrPreview marks a preview fragment that could not be parsed at all.
var ErrPreview = errors.New("preview failed")

// DefaultPreviewBytes is the size of the leading fragment the preview
// pass parses.
const DefaultPreviewBytes = 1000

// Preview parses the first fragmentBytes bytes of src with the tolerant
// parser and flattens them in one go. The fragment is cut back to a rune
// boundary first.
func Preview(ctx context.Context, src Source, fragmentBytes int) ([]rowstore.Row, error) {
	if fragmentBytes <= 0 {
		fragmentBytes = DefaultPreviewBytes
	}

	st, err := OpenStream(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreview, err)
	}
	defer st.Close()

	buf := make([]byte, fragmentBytes)
	n, err := io.ReadFull(st, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("%w: %w", ErrPreview, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err := jsonparse.Parse(string(cutToRune(buf[:n])))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPreview, err)
	}
	return flatten.Rows(v), nil
}

// FullOptions configures the full pass.
type FullOptions struct {
	Turbo bool
	// FlushEvery and Pause apply in normal mode; turbo mode flushes every
	// TurboFlushEvery keys and never pauses.
	FlushEvery      int
	TurboFlushEvery int
	Pause           time.Duration
	// TolerantMaxBytes bounds the input size for which a failed strict
	// pass is retried with the tolerant parser. Zero disables the retry.
	// The retry only keeps rows the strict pass already produced, so it
	// gives the same result in normal and turbo mode.
	TolerantMaxBytes int64
	// OnFlush is called after every append with the running row total.
	OnFlush func(total int, bytesRead int64)
}

// FullResult describes a completed full pass.
type FullResult struct {
	Rows     int
	Bytes    int64
	Codec    string
	Checksum uint64
	Tolerant bool
	Duration time.Duration
}

// Full flattens the whole of src into w. The store is finished on success
// and failed with the returned error otherwise.
func Full(ctx context.Context, src Source, w *rowstore.Writer, opts FullOptions) (FullResult, error) {
	start := time.Now()
	res, err := full(ctx, src, w, opts)
	res.Duration = time.Since(start)
	if err != nil {
		w.Fail(err)
		return res, err
	}
	w.Finish()
	return res, nil
}

func full(ctx context.Context, src Source, w *rowstore.Writer, opts FullOptions) (FullResult, error) {
	st, err := OpenStream(src)
	if err != nil {
		return FullResult{}, err
	}
	defer st.Close()

	var res FullResult
	res.Codec = st.Codec()
	sink := func(rows []rowstore.Row) error {
		if err := w.Append(rows...); err != nil {
			return err
		}
		res.Rows += len(rows)
		if opts.OnFlush != nil {
			opts.OnFlush(res.Rows, st.BytesRead())
		}
		return nil
	}

	fo := flatten.Options{FlushEvery: opts.FlushEvery, Pause: opts.Pause}
	if opts.Turbo {
		fo = flatten.Options{FlushEvery: opts.TurboFlushEvery}
	}
	f := flatten.New(sink, fo)

	digest := xxhash.New()
	err = f.Stream(ctx, io.TeeReader(st, digest))
	res.Bytes = st.BytesRead()
	res.Checksum = digest.Sum64()
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, ctxErr
	}
	err = documentError(err)
	if opts.TolerantMaxBytes <= 0 || src.Size() > opts.TolerantMaxBytes {
		return res, err
	}

	// The retry must extend everything the strict pass produced, flushed
	// or still pending.
	produced := f.Pending()
	v, n, sum, terr := readTolerant(src, opts.TolerantMaxBytes)
	if errors.Is(terr, errTooLarge) {
		return res, err
	}
	if terr != nil {
		return res, terr
	}
	rows := flatten.Rows(v)
	if !extendsPrefix(rows, w.Store(), res.Rows, produced) {
		return res, err
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	if rest := rows[res.Rows:]; len(rest) > 0 {
		if err := sink(rest); err != nil {
			return res, err
		}
	}
	res.Bytes, res.Checksum, res.Tolerant = n, sum, true
	return res, nil
}

// extendsPrefix reports whether rows begins with the first n rows of the
// store followed by pending. A tolerant result that rewrote rows already
// produced by the strict pass (repeated keys) does not.
func extendsPrefix(rows []rowstore.Row, store *rowstore.Store, n int, pending []rowstore.Row) bool {
	if len(rows) < n+len(pending) {
		return false
	}
	same := true
	store.Scan(0, func(i int, r rowstore.Row) bool {
		if i >= n {
			return false
		}
		same = rows[i] == r
		return same
	})
	if !same {
		return false
	}
	for i, r := range pending {
		if rows[n+i] != r {
			return false
		}
	}
	return true
}

var errTooLarge = errors.New("input too large for tolerant parsing")

// documentError marks a strict decoding failure as an invalid document.
// Store and decompression errors are returned unchanged.
func documentError(err error) error {
	var ce *codecError
	if errors.As(err, &ce) || errors.Is(err, rowstore.ErrClosed) || errors.Is(err, jsonparse.ErrInvalidDocument) {
		return err
	}
	return fmt.Errorf("%w: %w", jsonparse.ErrInvalidDocument, err)
}

// readTolerant re-reads a small input that failed strict decoding and
// parses it with the tolerant parser.
func readTolerant(src Source, limit int64) (jsonparse.Value, int64, uint64, error) {
	st, err := OpenStream(src)
	if err != nil {
		return jsonparse.Value{}, 0, 0, err
	}
	defer st.Close()

	digest := xxhash.New()
	data, err := io.ReadAll(io.LimitReader(io.TeeReader(st, digest), limit+1))
	if err != nil {
		return jsonparse.Value{}, 0, 0, err
	}
	if int64(len(data)) > limit {
		return jsonparse.Value{}, 0, 0, errTooLarge
	}

	v, err := jsonparse.Parse(string(data))
	if err != nil {
		return jsonparse.Value{}, 0, 0, err
	}
	return v, st.BytesRead(), digest.Sum64(), nil
}

// Checksum returns the xxhash64 of the decoded contents of src.
func Checksum(src Source) (uint64, error) {
	st, err := OpenStream(src)
	if err != nil {
		return 0, err
	}
	defer st.Close()

	digest := xxhash.New()
	if _, err := io.Copy(digest, st); err != nil {
		return 0, err
	}
	return digest.Sum64(), nil
}
