package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"grandgold-errcache/internal/binding"
	"grandgold-errcache/internal/errorcache"
)

// prober polls one URL and renders its failures through a Binding the way a
// front end would: a banner that appears once per distinct failure.
type prober struct {
	url      string
	interval time.Duration
	cache    *errorcache.Cache
	binding  *binding.Binding
	http     *http.Client
	out      io.Writer
	maxPolls int // 0 polls until ctx is done
}

func newProber(url string, interval time.Duration, vars map[string]any, enabled bool, out io.Writer, opts ...errorcache.Option) *prober {
	p := &prober{
		url:      url,
		interval: interval,
		cache:    errorcache.New(errorcache.NewMemoryStore(), opts...),
		http:     &http.Client{Timeout: interval},
		out:      out,
	}
	p.binding = binding.New(p.cache, "GET "+url, vars,
		binding.WithEnabled(enabled),
		binding.WithOnChange(p.render),
		binding.WithLogger(slog.Default()),
	)
	return p
}

func (p *prober) render(s binding.State) {
	ts := time.Now().Format(time.TimeOnly)
	if s.Visible {
		fmt.Fprintf(p.out, "%s SHOW  %v (%s)\n", ts, s.Err, s.Reason)
		return
	}
	fmt.Fprintf(p.out, "%s HIDE  (%s)\n", ts, s.Reason)
}

// fetch performs one GET. Any non-2xx status is a failure.
func (p *prober) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %s", resp.Status)
	}
	return nil
}

// nextWait returns how long to wait before the next attempt. After a failure
// the backoff applies while the retry budget lasts.
func (p *prober) nextWait(ctx context.Context, failed bool) time.Duration {
	if !failed {
		return p.interval
	}

	key := p.binding.Key()
	entry, err := p.cache.Lookup(ctx, key)
	if err != nil || entry.RetryCount >= p.cache.MaxRetries() {
		return p.interval
	}
	return p.cache.RetryDelay(ctx, key)
}

func (p *prober) run(ctx context.Context) error {
	defer p.binding.Dispose()

	for polls := 1; ; polls++ {
		err := p.fetch(ctx)
		if ctx.Err() != nil {
			return nil
		}
		p.binding.Observe(ctx, err)

		if p.maxPolls > 0 && polls >= p.maxPolls {
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(p.nextWait(ctx, err != nil)):
		}

		if err != nil {
			key := p.binding.Key()
			if p.cache.ShouldRetry(ctx, key) && p.cache.RecordRetry(ctx, key) {
				entry, _ := p.cache.Lookup(ctx, key)
				fmt.Fprintf(p.out, "%s RETRY #%d\n", time.Now().Format(time.TimeOnly), entry.RetryCount)
			}
		}
	}
}

func newProbeCmd() *cobra.Command {
	var (
		interval   time.Duration
		ttl        time.Duration
		maxRetries int
		baseDelay  time.Duration
		vars       string
		disabled   bool
	)

	cmd := &cobra.Command{
		Use:     "probe URL",
		Short:   "Poll a URL and show failures as the front end would",
		GroupID: GroupLocal,
		Args:    cobra.ExactArgs(1),
		Long: `Poll a URL on an interval and print banner transitions.

Each outcome goes through a local error cache. A failure is shown once,
repeats are suppressed until the TTL passes or the message changes, and
retries follow the exponential backoff. Ctrl-C stops the probe.`,
		Example: `  errcachectl probe http://localhost:8080/api/v1/ready
  errcachectl probe https://shop.example.com/api/orders --ttl 1m --interval 10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			variables, err := parseVariables(vars)
			if err != nil {
				return err
			}

			p := newProber(args[0], interval, variables, !disabled, os.Stdout,
				errorcache.WithTTL(ttl),
				errorcache.WithMaxRetries(maxRetries),
				errorcache.WithBaseRetryDelay(baseDelay),
			)
			return p.run(cmd.Context())
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 5*time.Second, "poll interval")
	cmd.Flags().DurationVar(&ttl, "ttl", errorcache.DefaultTTL, "suppression window")
	cmd.Flags().IntVar(&maxRetries, "max-retries", errorcache.DefaultMaxRetries, "retries per distinct failure")
	cmd.Flags().DurationVar(&baseDelay, "base-delay", errorcache.DefaultBaseRetryDelay, "first retry delay")
	cmd.Flags().StringVar(&vars, "vars", "", "variables that identify this probe, as a JSON object")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "never show banners, only track state")
	return cmd
}
