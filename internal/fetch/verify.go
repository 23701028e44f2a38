package fetch

import (
	"errors"
	"io"

	"github.com/klauspost/compress/gzip"
)

var errAborted = errors.New("transfer aborted")

// gzipCheck decompresses a stream as it is written and reports whether it
// was a complete, valid gzip file. Writes never fail; the verdict comes
// from Close.
type gzipCheck struct {
	pw     *io.PipeWriter
	done   chan error
	failed bool
}

func newGzipCheck() *gzipCheck {
	pr, pw := io.Pipe()
	c := &gzipCheck{pw: pw, done: make(chan error, 1)}
	go func() {
		zr, err := gzip.NewReader(pr)
		if err == nil {
			_, err = io.Copy(io.Discard, zr)
			if cerr := zr.Close(); err == nil {
				err = cerr
			}
		}
		pr.CloseWithError(err)
		c.done <- err
	}()
	return c
}

func (c *gzipCheck) Write(p []byte) (int, error) {
	if !c.failed {
		if _, err := c.pw.Write(p); err != nil {
			c.failed = true
		}
	}
	return len(p), nil
}

// Close ends the stream and returns the decoder's verdict.
func (c *gzipCheck) Close() error {
	c.pw.Close()
	return <-c.done
}

// Abort stops the decoder without a verdict.
func (c *gzipCheck) Abort() {
	c.pw.CloseWithError(errAborted)
	<-c.done
}
