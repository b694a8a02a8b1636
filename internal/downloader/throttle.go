package downloader

import (
	"context"
	"io"
	"time"
)

// ChunkSize is how much of a download is read before the rate is checked.
const ChunkSize = 1 << 20

// ThrottledCopy copies src to dst in ChunkSize pieces. After each piece the
// instantaneous rate since the previous piece is compared with limit (bytes
// per second) and the copy sleeps off any excess. limit <= 0 disables it.
func ThrottledCopy(ctx context.Context, dst io.Writer, src io.Reader, limit int64) (int64, error) {
	return throttledCopy(ctx, dst, src, limit, ChunkSize)
}

func throttledCopy(ctx context.Context, dst io.Writer, src io.Reader, limit int64, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	last := time.Now()
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, rerr := fill(src, buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)

			if limit > 0 {
				want := time.Duration(float64(n) / float64(limit) * float64(time.Second))
				if elapsed := time.Since(last); want > elapsed {
					if err := sleep(ctx, want-elapsed); err != nil {
						return written, err
					}
				}
			}
			last = time.Now()
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// fill reads until buf is full or r fails. Unlike io.ReadFull it passes a
// truncated body's io.ErrUnexpectedEOF through untouched.
func fill(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
