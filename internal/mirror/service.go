package mirror

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/NamanBalaji/updater/internal/logger"
	"github.com/NamanBalaji/updater/internal/metrics"
	"github.com/NamanBalaji/updater/internal/update"
	httpPkg "github.com/NamanBalaji/updater/pkg/http"
)

const (
	// FallbackLabel names the feed URL when no mirror could be listed.
	FallbackLabel = "default"

	probeShutdownGrace = 2 * time.Second
)

var ErrNoMirrors = errors.New("no mirrors found")

// Mirror is one candidate source for an update payload.
type Mirror struct {
	Label   string        `json:"label"`
	URL     string        `json:"url"`
	Host    string        `json:"host,omitempty"`
	Latency time.Duration `json:"latency,omitempty"`
}

// Set is the result of one Resolve call, in display order.
type Set struct {
	Mirrors  []Mirror `json:"mirrors"`
	Ranked   bool     `json:"ranked"`
	Fallback bool     `json:"fallback"`
}

// Lookup finds a mirror by label.
func (s Set) Lookup(label string) (Mirror, bool) {
	for _, m := range s.Mirrors {
		if m.Label == label {
			return m, true
		}
	}

	return Mirror{}, false
}

// Labels returns the labels in order.
func (s Set) Labels() []string {
	labels := make([]string, 0, len(s.Mirrors))
	for _, m := range s.Mirrors {
		labels = append(labels, m.Label)
	}

	return labels
}

// Config locates the listing endpoint and the file layout on mirrors.
type Config struct {
	ListingURL       string
	HostSuffix       string
	Project          string
	RootPath         string
	Device           string
	ProbeConcurrency int
	ProbeTimeout     time.Duration
}

// Service resolves and ranks mirrors. Every call owns its own state.
type Service struct {
	cfg     Config
	client  *httpPkg.Client
	prober  Prober
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithProber(p Prober) Option {
	return func(s *Service) {
		s.prober = p
	}
}

func WithHTTPClient(c *httpPkg.Client) Option {
	return func(s *Service) {
		s.client = c
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(cfg Config, opts ...Option) *Service {
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = 8
	}

	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}

	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		s.client = httpPkg.NewClient()
	}

	if s.prober == nil {
		s.prober = NewTCPProber(443, 5)
	}

	return s
}

// Resolve lists the mirrors serving info's file. With rank set the mirrors are
// probed and ordered by latency, lowest first. When the listing fails or is
// empty the returned set holds only the feed URL and the error wraps
// ErrNoMirrors.
func (s *Service) Resolve(ctx context.Context, info update.Info, rank bool) (Set, error) {
	candidates, err := s.list(ctx, info.Name)
	if err != nil || len(candidates) == 0 {
		if err != nil {
			logger.Warnf("Failed to fetch mirrors for %s: %v", info.Name, err)
			err = fmt.Errorf("%w: %w", ErrNoMirrors, err)
		} else {
			err = ErrNoMirrors
		}

		return Set{
			Mirrors:  []Mirror{{Label: FallbackLabel, URL: info.DownloadURL}},
			Fallback: true,
		}, err
	}

	if !rank {
		return Set{Mirrors: candidates}, nil
	}

	ranked := s.rank(ctx, candidates)
	if len(ranked) == 0 {
		logger.Warnf("No mirror answered a probe for %s, keeping listing order", info.Name)
		return Set{Mirrors: candidates}, nil
	}

	return Set{Mirrors: ranked, Ranked: true}, nil
}

// FilePath returns the path of name below the project root on every mirror.
func (s *Service) FilePath(name string) string {
	return path.Join("/", s.cfg.Device, s.cfg.RootPath, name)
}

func (s *Service) list(ctx context.Context, name string) ([]Mirror, error) {
	filePath := s.FilePath(name)

	q := url.Values{}
	q.Set("projectname", s.cfg.Project)
	q.Set("filename", filePath)

	listingURL := s.cfg.ListingURL + "?" + q.Encode()
	logger.Debugf("Fetching mirror listing %s", listingURL)

	resp, err := s.client.Get(ctx, listingURL, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	entries, err := parseListing(resp.Body)
	if err != nil {
		return nil, err
	}

	var mirrors []Mirror

	index := make(map[string]int, len(entries))

	for _, e := range entries {
		host := e.id + "." + s.cfg.HostSuffix
		m := Mirror{
			Label: e.label,
			URL:   "https://" + host + "/project/" + s.cfg.Project + filePath,
			Host:  host,
		}

		if i, ok := index[m.Label]; ok {
			mirrors[i] = m
			continue
		}

		index[m.Label] = len(mirrors)
		mirrors = append(mirrors, m)
	}

	return mirrors, nil
}

type probeResult struct {
	idx     int
	latency time.Duration
}

// rank probes every candidate within the probe timeout and returns the ones
// that answered, fastest first. Probes still running when the deadline and
// the shutdown grace have passed are abandoned; their results are dropped.
func (s *Service) rank(ctx context.Context, candidates []Mirror) []Mirror {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	results := make(chan probeResult, len(candidates))
	done := make(chan struct{})

	go func() {
		defer close(done)

		var g errgroup.Group
		g.SetLimit(s.cfg.ProbeConcurrency)

		for i, m := range candidates {
			if probeCtx.Err() != nil {
				break
			}

			g.Go(func() error {
				latency, err := s.prober.Probe(probeCtx, m.Host)
				if err != nil || latency <= 0 {
					logger.Debugf("Probe of %s discarded: latency=%s err=%v", m.Host, latency, err)
					s.metrics.ProbeFailed()

					return nil
				}

				if probeCtx.Err() != nil {
					return nil
				}

				s.metrics.ObserveProbe(latency)
				results <- probeResult{idx: i, latency: latency}

				return nil
			})
		}

		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-probeCtx.Done():
		select {
		case <-done:
		case <-time.After(probeShutdownGrace):
			logger.Warnf("Abandoning mirror probes still running after %s", s.cfg.ProbeTimeout)
		}
	}

	latencies := make(map[int]time.Duration, len(candidates))

drain:
	for {
		select {
		case r := <-results:
			latencies[r.idx] = r.latency
		default:
			break drain
		}
	}

	ranked := make([]Mirror, 0, len(latencies))

	for i, m := range candidates {
		if latency, ok := latencies[i]; ok {
			m.Latency = latency
			ranked = append(ranked, m)
		}
	}

	slices.SortStableFunc(ranked, func(a, b Mirror) int {
		return cmp.Compare(a.Latency, b.Latency)
	})

	return ranked
}
