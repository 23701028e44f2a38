// Package fetch downloads single files idempotently: a file already at its
// destination is never requested again, and a failed transfer never leaves
// a partial file behind.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/storage"
)

const (
	DefaultTimeout   = 540 * time.Second
	DefaultChunkSize = 8192
)

// Credentials for HTTP Basic auth. The zero value sends no auth header.
type Credentials struct {
	Username string
	Password string
}

func (c *Credentials) empty() bool {
	return c == nil || (c.Username == "" && c.Password == "")
}

// Task is one remote file and where it lands.
type Task struct {
	URL     string
	Key     string
	Kind    string // resource kind, e.g. lotss-dr3-mosaic
	Release string
	Auth    *Credentials // overrides Options.Credentials when set
}

type Options struct {
	Credentials *Credentials
	Timeout     time.Duration
	ChunkSize   int
	UserAgent   string
	RateLimit   float64 // requests per second, 0 = unlimited
	VerifyGzip  bool    // verify .gz bodies decompress cleanly

	// Transport replaces http.DefaultTransport, mainly for tests.
	Transport http.RoundTripper
}

// Fetcher runs tasks one at a time against a destination store.
type Fetcher struct {
	store   storage.Store
	client  *http.Client
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

func New(store storage.Store, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	f := &Fetcher{
		store: store,
		client: &http.Client{
			Timeout:   opts.Timeout,
			Transport: opts.Transport,
		},
		opts:   opts,
		logger: slog.With("component", "fetch"),
	}
	if opts.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return f
}

// Fetch runs the gates in order: parent directory, existing file, HEAD,
// then a streamed GET. It never returns an error; the outcome says what
// happened.
func (f *Fetcher) Fetch(ctx context.Context, task Task) Outcome {
	start := time.Now()
	out := f.fetch(ctx, task)
	out.Task = task
	out.Duration = time.Since(start)

	f.logger.Debug("fetch finished",
		"key", task.Key,
		"url", task.URL,
		"outcome", out.Kind,
		"status", out.StatusCode,
		"bytes", out.Bytes,
	)
	return out
}

func (f *Fetcher) fetch(ctx context.Context, task Task) Outcome {
	ok, err := f.store.ParentExists(ctx, task.Key)
	if err != nil {
		return Outcome{Kind: LocalIOError, Err: fmt.Errorf("check parent of %s: %w", task.Key, err)}
	}
	if !ok {
		return Outcome{Kind: SkippedNoParentDir}
	}

	exists, err := f.store.Exists(ctx, task.Key)
	if err != nil {
		return Outcome{Kind: LocalIOError, Err: fmt.Errorf("check %s: %w", task.Key, err)}
	}
	if exists {
		return Outcome{Kind: AlreadyPresent}
	}

	resp, err := f.do(ctx, http.MethodHead, task)
	if err != nil {
		return Outcome{Kind: NetworkError, Err: err}
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Outcome{Kind: HTTPError, StatusCode: resp.StatusCode}
	}

	resp, err = f.do(ctx, http.MethodGet, task)
	if err != nil {
		return Outcome{Kind: NetworkError, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Outcome{Kind: HTTPError, StatusCode: resp.StatusCode}
	}

	return f.stream(ctx, task, resp)
}

func (f *Fetcher) do(ctx context.Context, method string, task Task) (*http.Response, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, task.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if f.opts.UserAgent != "" {
		req.Header.Set("User-Agent", f.opts.UserAgent)
	}
	creds := task.Auth
	if creds == nil {
		creds = f.opts.Credentials
	}
	if !creds.empty() {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, task.URL, err)
	}
	return resp, nil
}

// stream copies the body into a pending object in fixed-size chunks,
// hashing as it goes, and commits only a complete transfer.
func (f *Fetcher) stream(ctx context.Context, task Task, resp *http.Response) Outcome {
	pending, err := f.store.Create(ctx, task.Key)
	if err != nil {
		return Outcome{Kind: LocalIOError, StatusCode: resp.StatusCode, Err: err}
	}

	var check *gzipCheck
	if f.opts.VerifyGzip && strings.HasSuffix(strings.ToLower(task.Key), ".gz") {
		check = newGzipCheck()
	}

	hasher := sha256.New()
	fail := func(kind Kind, err error) Outcome {
		if check != nil {
			check.Abort()
		}
		if aerr := pending.Abort(); aerr != nil {
			f.logger.Warn("abort pending object failed", "key", task.Key, "error", aerr)
		}
		return Outcome{Kind: kind, StatusCode: resp.StatusCode, Err: err}
	}

	written, err := copyChunks(pending, hasher, check, resp.Body, f.opts.ChunkSize)
	if err != nil {
		var werr *writeError
		if errors.As(err, &werr) {
			return fail(LocalIOError, werr.err)
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			err = fmt.Errorf("%w: %v", ErrIncompleteTransfer, err)
		}
		return fail(NetworkError, err)
	}

	if resp.ContentLength >= 0 && written != resp.ContentLength {
		return fail(NetworkError, fmt.Errorf("%w: got %d of %d bytes", ErrIncompleteTransfer, written, resp.ContentLength))
	}

	if check != nil {
		verr := check.Close()
		check = nil
		if verr != nil {
			return fail(NetworkError, fmt.Errorf("%w: gzip verification: %v", ErrIncompleteTransfer, verr))
		}
	}

	if err := pending.Commit(); err != nil {
		return Outcome{Kind: LocalIOError, StatusCode: resp.StatusCode, Err: err}
	}

	return Outcome{
		Kind:       Downloaded,
		StatusCode: resp.StatusCode,
		Bytes:      written,
		Checksum:   "sha256:" + hex.EncodeToString(hasher.Sum(nil)),
	}
}

type writeError struct{ err error }

func (e *writeError) Error() string { return e.err.Error() }
func (e *writeError) Unwrap() error { return e.err }

func copyChunks(dst io.Writer, h hash.Hash, check *gzipCheck, src io.Reader, chunkSize int) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, &writeError{err: err}
			}
			h.Write(buf[:n])
			if check != nil {
				check.Write(buf[:n])
			}
			written += int64(n)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// FetchChain tries tasks in order, typically one release and its
// fallbacks writing the same key. It stops at the first outcome that
// leaves the file present or that skipped for a missing directory, and
// returns that outcome with the index of the task that produced it.
func (f *Fetcher) FetchChain(ctx context.Context, tasks []Task) (Outcome, int) {
	var out Outcome
	for i, task := range tasks {
		out = f.Fetch(ctx, task)
		if out.Present() || out.Kind == SkippedNoParentDir {
			return out, i
		}
		if ctx.Err() != nil {
			return out, i
		}
		if i+1 < len(tasks) {
			f.logger.Info("falling back",
				"key", task.Key,
				"from", task.Release,
				"to", tasks[i+1].Release,
				"outcome", out.String(),
			)
		}
	}
	return out, len(tasks) - 1
}
