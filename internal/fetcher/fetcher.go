package fetcher

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"time"

	"github.com/The-Juice-Real/redgenv2/internal/domain"
	"github.com/The-Juice-Real/redgenv2/internal/ports"
	"github.com/The-Juice-Real/redgenv2/internal/ratelimit"
)

// Config controls paging, retries and comment harvesting.
type Config struct {
	PageSize       int
	MaxAttempts    int
	BaseBackoff    time.Duration
	RequestTimeout time.Duration
	Comments       ports.CommentLimits
}

// DefaultConfig returns the harvesting defaults.
func DefaultConfig() Config {
	return Config{
		PageSize:       25,
		MaxAttempts:    3,
		BaseBackoff:    500 * time.Millisecond,
		RequestTimeout: 15 * time.Second,
		Comments:       ports.DefaultCommentLimits(),
	}
}

// Option customises a Fetcher.
type Option func(*Fetcher)

// WithFallback enables degraded mode: when the first page of a partition
// cannot be fetched, items come from fallback instead.
func WithFallback(fallback ports.SourceClient) Option {
	return func(f *Fetcher) {
		f.fallback = fallback
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}

// Fetcher pulls partition windows from a source through a shared limiter.
type Fetcher struct {
	source   ports.SourceClient
	fallback ports.SourceClient
	limiter  *ratelimit.Limiter
	cfg      Config
	logger   *slog.Logger
}

// New wires a fetcher. Zero config fields fall back to DefaultConfig values.
func New(source ports.SourceClient, limiter *ratelimit.Limiter, cfg Config, opts ...Option) *Fetcher {
	def := DefaultConfig()
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultInterval)
	}
	f := &Fetcher{source: source, limiter: limiter, cfg: cfg}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns a lazy window over at most maxItems items of a partition.
// No request is made until the window is iterated.
func (f *Fetcher) Fetch(ctx context.Context, partition string, terms []string, maxItems int) *Window {
	return &Window{
		fetcher:   f,
		ctx:       ctx,
		partition: partition,
		terms:     append([]string(nil), terms...),
		maxItems:  maxItems,
	}
}

// Window is a restartable, finite sequence of items from one partition.
// Each call to Items starts again from the first page. The status accessors
// describe the most recent iteration; a Window must not be iterated from
// several goroutines at once.
type Window struct {
	fetcher   *Fetcher
	ctx       context.Context
	partition string
	terms     []string
	maxItems  int

	err      error
	partial  bool
	degraded bool
	pages    int
}

// Partition returns the partition this window reads.
func (w *Window) Partition() string { return w.partition }

// Err reports why the last iteration could not start, or the context error
// that interrupted it. It is nil for complete and partial windows.
func (w *Window) Err() error { return w.err }

// Partial is true when retries were exhausted after at least one page.
func (w *Window) Partial() bool { return w.partial }

// Degraded is true when items came from the fallback source.
func (w *Window) Degraded() bool { return w.degraded }

// Pages reports how many pages the last iteration fetched.
func (w *Window) Pages() int { return w.pages }

// Items iterates the window.
func (w *Window) Items() iter.Seq[domain.RawItem] {
	return func(yield func(domain.RawItem) bool) {
		w.err, w.partial, w.degraded, w.pages = nil, false, false, 0
		if w.maxItems <= 0 {
			return
		}

		f := w.fetcher
		src := f.source
		cursor := ""
		emitted := 0

		for emitted < w.maxItems {
			limit := min(f.cfg.PageSize, w.maxItems-emitted)
			req := ports.SearchRequest{Partition: w.partition, Terms: w.terms, Limit: limit, Cursor: cursor}

			var page ports.SearchPage
			err := f.withRetry(w.ctx, func(ctx context.Context) error {
				var searchErr error
				page, searchErr = src.Search(ctx, req)
				return searchErr
			})
			if err != nil {
				if ctxErr := w.ctx.Err(); ctxErr != nil {
					w.err = ctxErr
					return
				}
				if w.pages == 0 {
					if f.fallback != nil && !w.degraded && !errors.Is(err, domain.ErrNotFound) {
						f.warn("source unavailable, using fallback", "partition", w.partition, "error", err)
						w.degraded = true
						src = f.fallback
						cursor = ""
						continue
					}
					w.err = fmt.Errorf("partition %s: %w: %w", w.partition, domain.ErrSourceUnavailable, err)
					return
				}
				f.warn("partition window truncated", "partition", w.partition, "pages", w.pages, "error", err)
				w.partial = true
				return
			}
			w.pages++

			for _, item := range page.Items {
				if emitted >= w.maxItems {
					return
				}
				item = w.attachComments(src, item)
				if w.ctx.Err() != nil {
					w.err = w.ctx.Err()
					return
				}
				if !yield(item) {
					return
				}
				emitted++
			}

			if page.Next == "" || len(page.Items) == 0 {
				return
			}
			cursor = page.Next
		}
	}
}

func (w *Window) attachComments(src ports.SourceClient, item domain.RawItem) domain.RawItem {
	f := w.fetcher
	limits := f.cfg.Comments
	if limits.MaxDepth <= 0 || limits.MaxTop <= 0 || item.ID == "" || item.Engagement.NumComments == 0 {
		return item
	}

	var comments []domain.RawComment
	err := f.withRetry(w.ctx, func(ctx context.Context) error {
		var fetchErr error
		comments, fetchErr = src.FetchComments(ctx, item.ID, limits)
		return fetchErr
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) || w.ctx.Err() != nil {
			return item
		}
		f.warn("comments unavailable", "partition", w.partition, "item", item.ID, "error", err)
		w.partial = true
		return item
	}
	item.Comments = PruneComments(item.ID, comments, limits)
	return item
}

// withRetry acquires a permit before every attempt and retries transient
// failures with exponential backoff.
func (f *Fetcher) withRetry(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < f.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := f.cfg.BaseBackoff << (attempt - 1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if err := f.limiter.Acquire(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, f.cfg.RequestTimeout)
		err := op(callCtx)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if timedOut {
			err = fmt.Errorf("%w: request timed out: %w", domain.ErrUnavailable, err)
		}
		if !domain.IsTransient(err) {
			return err
		}
		lastErr = err
		f.debug("transient source error", "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("%w: %d attempts: %w", domain.ErrTransientSource, f.cfg.MaxAttempts, lastErr)
}

func (f *Fetcher) debug(msg string, args ...any) {
	if f.logger == nil {
		return
	}
	f.logger.Debug(msg, args...)
}

func (f *Fetcher) warn(msg string, args ...any) {
	if f.logger == nil {
		return
	}
	f.logger.Warn(msg, args...)
}
