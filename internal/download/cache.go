// Package download implements a URL-keyed, single-flight download cache:
// the first caller to request a URL fetches it with bounded retries;
// late arrivals wait for that fetch instead of racing it, then hardlink (or
// copy) the cached file into their own destination.
package download

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/opencontainers/go-digest"
	"github.com/pdidev/pkgforge/internal/cancel"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Schedule is the fixed retry backoff for downloads: a permanent failure
// is only raised once every one of these waits has been spent.
var Schedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	3 * time.Second,
	5 * time.Second,
	7 * time.Second,
}

// fixedSchedule implements backoff.BackOff over a fixed list of waits
// rather than the library's usual exponential curve.
type fixedSchedule struct {
	waits []time.Duration
	pos   int
}

func newFixedSchedule(waits []time.Duration) *fixedSchedule {
	return &fixedSchedule{waits: waits}
}

func (f *fixedSchedule) NextBackOff() time.Duration {
	if f.pos >= len(f.waits) {
		return backoff.Stop
	}
	d := f.waits[f.pos]
	f.pos++
	return d
}

func (f *fixedSchedule) Reset() { f.pos = 0 }

// FailedError is returned once the retry schedule is exhausted.
type FailedError struct {
	URL string
	Err error
}

func (e *FailedError) Error() string {
	return "download failed for " + e.URL + ": " + e.Err.Error()
}

func (e *FailedError) Unwrap() error { return e.Err }

type call struct {
	done chan struct{}
	path string
	err  error
}

// Cache is a process-wide URL download cache.
type Cache struct {
	Bus    *cancel.Bus
	Log    logrus.FieldLogger
	Client *http.Client

	dir string

	mu    sync.Mutex
	calls map[string]*call
}

// New returns a Cache that stores fetched files under cacheDir.
func New(bus *cancel.Bus, log logrus.FieldLogger, cacheDir string) *Cache {
	if log == nil {
		log = logrus.New()
	}
	return &Cache{
		Bus:    bus,
		Log:    log,
		Client: http.DefaultClient,
		dir:    cacheDir,
		calls:  make(map[string]*call),
	}
}

// Get returns the path to a local copy of url inside destDir, downloading
// it (with retries) if this is the first request for that URL, or waiting
// for an in-flight download and then hardlinking from the cache otherwise.
func (c *Cache) Get(ctx context.Context, url, destDir, filename string) (string, error) {
	cl, first := c.claim(url)
	if first {
		cl.path, cl.err = c.fetch(ctx, url)
		close(cl.done)
	} else {
		select {
		case <-cl.done:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if cl.err != nil {
		return "", cl.err
	}

	dest := filepath.Join(destDir, filename)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating download destination")
	}
	if err := linkOrCopy(cl.path, dest); err != nil {
		return "", errors.Wrapf(err, "placing cached download %q", url)
	}
	return dest, nil
}

func (c *Cache) claim(url string) (*call, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cl, ok := c.calls[url]; ok {
		return cl, false
	}
	cl := &call{done: make(chan struct{})}
	c.calls[url] = cl
	return cl, true
}

func (c *Cache) fetch(ctx context.Context, url string) (string, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return "", errors.Wrap(err, "creating download cache dir")
	}

	cachePath := filepath.Join(c.dir, cacheKey(url))

	var lastErr error
	attempt := 0
	op := func() error {
		if err := c.Bus.Check(ctx); err != nil {
			return backoff.Permanent(err)
		}
		if attempt > 0 {
			c.Log.WithField("url", url).WithField("attempt", attempt).Warn("retrying download")
		}
		attempt++

		if err := c.download(ctx, url, cachePath); err != nil {
			lastErr = err
			return err
		}
		return nil
	}

	bo := backoff.WithContext(newFixedSchedule(Schedule), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		if errors.Is(err, cancel.ErrCancelled) {
			return "", err
		}
		return "", &FailedError{URL: url, Err: lastErr}
	}
	return cachePath, nil
}

func (c *Cache) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return errors.Errorf("unexpected status %d fetching %s", resp.StatusCode, url)
	}

	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}

// linkOrCopy hardlinks src to dest, falling back to a plain copy only
// when the two paths live on different filesystems (EXDEV). Any other
// link failure is returned.
func linkOrCopy(src, dest string) error {
	err := os.Link(src, dest)
	if err == nil {
		return nil
	}
	if !errors.Is(err, syscall.EXDEV) {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// cacheKey derives a filesystem-safe cache filename from a URL using its
// content digest algorithm (sha256) over the URL string itself, giving a
// fixed-width name without leaking the URL's path separators on disk.
func cacheKey(url string) string {
	return digest.FromString(url).Encoded()
}
