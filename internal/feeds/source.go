// Package feeds loads the semicolon-delimited tracking-rule and
// offer-defaults feeds from HTTP(S), S3 or local files and keeps the last
// good copy in memory.
package feeds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/ignite/checkout-router/internal/pkg/httpretry"
	"github.com/ignite/checkout-router/internal/pkg/logger"
)

// DefaultRefreshInterval is the minimum time between remote fetches.
const DefaultRefreshInterval = 600000 * time.Millisecond

// DefaultFetchTimeout bounds one shared refresh.
const DefaultFetchTimeout = 30 * time.Second

// maxFeedBytes caps a single feed download (8MB).
const maxFeedBytes = 8 << 20

// ObjectGetter is the subset of the S3 client used for s3:// locators.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures a Source.
type Options struct {
	// Name labels log lines ("tracking_rules", "offer_defaults").
	Name string
	// IDColumns are tried in order to find the row key column.
	IDColumns []string
	// RefreshInterval defaults to DefaultRefreshInterval.
	RefreshInterval time.Duration
	// HTTPClient defaults to a plain client with a 30s timeout. No retries:
	// a failed fetch falls back to the cached table immediately.
	HTTPClient httpretry.HTTPDoer
	// S3 is required only for s3:// locators.
	S3 ObjectGetter
	// FetchTimeout defaults to DefaultFetchTimeout.
	FetchTimeout time.Duration
	// Now is overridable for tests.
	Now func() time.Time
}

// Source owns one in-memory cache of a feed. Readers get the current
// snapshot's table; refreshes build a new snapshot and swap it in.
type Source struct {
	name      string
	idColumns []string
	interval  time.Duration
	timeout   time.Duration
	client    httpretry.HTTPDoer
	s3        ObjectGetter
	now       func() time.Time

	current atomic.Pointer[CachedResource[*Table]]
	group   singleflight.Group
}

// NewSource creates a Source.
func NewSource(opts Options) *Source {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if len(opts.IDColumns) == 0 {
		opts.IDColumns = []string{"id"}
	}
	return &Source{
		name:      opts.Name,
		idColumns: opts.IDColumns,
		interval:  opts.RefreshInterval,
		timeout:   opts.FetchTimeout,
		client:    opts.HTTPClient,
		s3:        opts.S3,
		now:       opts.Now,
	}
}

type locatorKind int

const (
	kindFile locatorKind = iota
	kindHTTP
	kindS3
)

func classify(locator string) locatorKind {
	l := strings.ToLower(locator)
	switch {
	case strings.HasPrefix(l, "http://"), strings.HasPrefix(l, "https://"):
		return kindHTTP
	case strings.HasPrefix(l, "s3://"):
		return kindS3
	default:
		return kindFile
	}
}

// Load returns the table for locator. It never fails: an unreachable or
// malformed feed yields the previous table, or an empty one on first load.
// The first caller waits for the real fetch; concurrent callers for the
// same locator share it. The fetch is detached from ctx's cancellation so
// a caller giving up does not cache an empty table.
func (s *Source) Load(ctx context.Context, locator string) *Table {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return EmptyTable()
	}

	snap := s.current.Load()
	if snap != nil && snap.Locator == locator && classify(locator) != kindFile && !snap.ShouldRefresh(s.now(), s.interval) {
		return snap.Value
	}

	v, _, _ := s.group.Do(locator, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.refresh(fctx, locator), nil
	})
	return v.(*Table)
}

// Snapshot exposes the current cache entry, nil before the first load.
func (s *Source) Snapshot() *CachedResource[*Table] {
	return s.current.Load()
}

func (s *Source) refresh(ctx context.Context, locator string) *Table {
	prev := s.current.Load()
	if prev != nil && prev.Locator != locator {
		prev = nil
	}
	now := s.now()

	var (
		next *CachedResource[*Table]
		err  error
	)
	switch classify(locator) {
	case kindHTTP:
		next, err = s.fetchHTTP(ctx, locator, prev, now)
	case kindS3:
		next, err = s.fetchS3(ctx, locator, prev, now)
	default:
		next, err = s.fetchFile(locator, prev, now)
	}

	if err != nil {
		if prev != nil {
			logger.Warn("feed refresh failed, keeping cached table",
				"feed", s.name, "locator", locator, "rows", prev.Value.Len(), "error", err)
			next = prev.Checked(now)
		} else {
			logger.Warn("feed load failed, using empty table",
				"feed", s.name, "locator", locator, "error", err)
			next = NewCachedResource(locator, EmptyTable(), Validators{}, now)
		}
	}

	s.current.Store(next)
	return next.Value
}

func (s *Source) fetchHTTP(ctx context.Context, locator string, prev *CachedResource[*Table], now time.Time) (*CachedResource[*Table], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if prev != nil {
		if prev.ETag != "" {
			req.Header.Set("If-None-Match", prev.ETag)
		}
		if prev.LastModified != "" {
			req.Header.Set("If-Modified-Since", prev.LastModified)
		}
	}
	req.Header.Set("Accept", "text/csv, text/plain, */*")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		if prev == nil {
			return nil, errors.New("304 without a cached table")
		}
		logger.Debug("feed not modified", "feed", s.name, "locator", locator)
		return prev.Checked(now), nil
	case http.StatusOK:
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	table, err := ParseTable(io.LimitReader(resp.Body, maxFeedBytes), s.idColumns...)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	logger.Info("feed loaded", "feed", s.name, "locator", locator, "rows", table.Len())

	return NewCachedResource(locator, table, Validators{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, now), nil
}

func (s *Source) fetchFile(path string, prev *CachedResource[*Table], now time.Time) (*CachedResource[*Table], error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat feed: %w", err)
	}
	if prev != nil && prev.ModTime.Equal(info.ModTime()) {
		return prev, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed: %w", err)
	}
	table, err := ParseTable(bytes.NewReader(data), s.idColumns...)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	logger.Info("feed loaded", "feed", s.name, "locator", path, "rows", table.Len())

	return NewCachedResource(path, table, Validators{ModTime: info.ModTime()}, now), nil
}

func (s *Source) fetchS3(ctx context.Context, locator string, prev *CachedResource[*Table], now time.Time) (*CachedResource[*Table], error) {
	if s.s3 == nil {
		return nil, errors.New("s3 locator configured without an S3 client")
	}
	bucket, key, err := parseS3Locator(locator)
	if err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if prev != nil && prev.ETag != "" {
		input.IfNoneMatch = aws.String(prev.ETag)
	}

	out, err := s.s3.GetObject(ctx, input)
	if err != nil {
		var respErr *awshttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotModified && prev != nil {
			return prev.Checked(now), nil
		}
		return nil, fmt.Errorf("getting object from S3: %w", err)
	}
	defer out.Body.Close()

	table, err := ParseTable(io.LimitReader(out.Body, maxFeedBytes), s.idColumns...)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	logger.Info("feed loaded", "feed", s.name, "locator", locator, "rows", table.Len())

	v := Validators{ETag: aws.ToString(out.ETag)}
	if out.LastModified != nil {
		v.LastModified = out.LastModified.UTC().Format(http.TimeFormat)
	}
	return NewCachedResource(locator, table, v, now), nil
}

func parseS3Locator(locator string) (bucket, key string, err error) {
	u, err := url.Parse(locator)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 locator: %w", err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 locator %q: need s3://bucket/key", locator)
	}
	return bucket, key, nil
}
