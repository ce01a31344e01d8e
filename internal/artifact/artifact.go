// Package artifact resolves artifact directories that may live on the local
// filesystem or in an S3 bucket.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/advocadabra/scr/internal/corpus"
)

// ErrUnsupportedLocation is returned for locations that are neither a local
// path nor an s3:// URL.
var ErrUnsupportedLocation = errors.New("unsupported artifact location")

// Location is a parsed artifact source or destination.
type Location struct {
	// Bucket and Prefix are set for s3:// locations; Dir otherwise.
	Bucket string
	Prefix string
	Dir    string
}

// Remote reports whether the location is in object storage.
func (l Location) Remote() bool { return l.Bucket != "" }

func (l Location) String() string {
	if l.Remote() {
		return "s3://" + path.Join(l.Bucket, l.Prefix)
	}
	return l.Dir
}

// ParseLocation accepts a directory path or s3://bucket[/prefix].
func ParseLocation(s string) (Location, error) {
	if s == "" {
		return Location{}, fmt.Errorf("%w: empty location", ErrUnsupportedLocation)
	}
	if rest, ok := strings.CutPrefix(s, "s3://"); ok {
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return Location{}, fmt.Errorf("%w: %q has no bucket", ErrUnsupportedLocation, s)
		}
		return Location{Bucket: bucket, Prefix: strings.Trim(prefix, "/")}, nil
	}
	if i := strings.Index(s, "://"); i > 0 {
		return Location{}, fmt.Errorf("%w: scheme %q", ErrUnsupportedLocation, s[:i])
	}
	return Location{Dir: s}, nil
}

// Fetcher materializes artifacts locally.
type Fetcher struct {
	S3       S3Config
	CacheDir string

	// newStore is replaced in tests.
	newStore func(ctx context.Context, cfg S3Config, bucket string) (ObjectStore, error)
}

// NewFetcher creates a Fetcher that caches remote artifacts under cacheDir.
func NewFetcher(cfg S3Config, cacheDir string) *Fetcher {
	return &Fetcher{S3: cfg, CacheDir: cacheDir, newStore: openS3}
}

func openS3(ctx context.Context, cfg S3Config, bucket string) (ObjectStore, error) {
	return NewS3Store(ctx, cfg, bucket)
}

// Fetch returns local paths for the artifacts named by names at src. Local
// sources are checked in place; remote ones are downloaded into the cache
// directory, replacing earlier copies.
func (f *Fetcher) Fetch(ctx context.Context, src string, names corpus.Paths) (corpus.Paths, error) {
	loc, err := ParseLocation(src)
	if err != nil {
		return corpus.Paths{}, err
	}
	if !loc.Remote() {
		p := names.In(loc.Dir)
		if missing := p.Missing(); len(missing) > 0 {
			return corpus.Paths{}, fmt.Errorf("%w: %v", corpus.ErrMissingArtifact, missing)
		}
		return p, nil
	}

	store, err := f.newStore(ctx, f.S3, loc.Bucket)
	if err != nil {
		return corpus.Paths{}, err
	}
	dir := filepath.Join(f.CacheDir, loc.Bucket, filepath.FromSlash(loc.Prefix))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return corpus.Paths{}, fmt.Errorf("creating cache directory: %w", err)
	}

	local := baseNames(names).In(dir)
	remote := baseNames(names).All()
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, dst := range local.All() {
		key := path.Join(loc.Prefix, remote[i])
		g.Go(func() error {
			return download(gCtx, store, key, dst)
		})
	}
	if err := g.Wait(); err != nil {
		return corpus.Paths{}, fmt.Errorf("%w: %w", corpus.ErrMissingArtifact, err)
	}

	slog.Info("artifacts fetched", "source", loc.String(), "cache", dir)
	return local, nil
}

// Publish uploads the artifacts at p to dst, which must be an s3:// URL.
func (f *Fetcher) Publish(ctx context.Context, dst string, p corpus.Paths) error {
	loc, err := ParseLocation(dst)
	if err != nil {
		return err
	}
	if !loc.Remote() {
		return fmt.Errorf("%w: publish needs an s3:// destination, got %q", ErrUnsupportedLocation, dst)
	}
	store, err := f.newStore(ctx, f.S3, loc.Bucket)
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, src := range p.All() {
		key := path.Join(loc.Prefix, filepath.Base(src))
		g.Go(func() error {
			return upload(gCtx, store, src, key)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("artifacts published", "destination", loc.String())
	return nil
}

func baseNames(p corpus.Paths) corpus.Paths {
	return corpus.Paths{
		Embeddings: filepath.Base(p.Embeddings),
		Metadata:   filepath.Base(p.Metadata),
		Index:      filepath.Base(p.Index),
		Dataset:    filepath.Base(p.Dataset),
	}
}

// download writes key to dst through a temporary file so a failed transfer
// never leaves a truncated artifact behind.
func download(ctx context.Context, store ObjectStore, key, dst string) error {
	body, err := store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".fetch-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("downloading %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func upload(ctx context.Context, store ObjectStore, src, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return store.Put(ctx, key, f)
}
