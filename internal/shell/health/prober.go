// Package health polls the deployed application's HTTP health endpoint and
// reports the verdict. The number of polls is fixed up front by the plan;
// the prober never stops early on errors, because a refused connection
// right after startup usually resolves a few polls later.
package health

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	corehealth "github.com/caravel-sh/caravel/internal/core/health"
)

// Report is the outcome of one polling session.
type Report struct {
	Healthy    bool
	Attempts   int
	LastStatus int
	LastErr    error
}

// Prober performs HTTP GET probes on a fixed cadence.
type Prober struct {
	client *http.Client
	logger *slog.Logger
}

// NewProber creates a prober. A nil client gets a plain http.Client; every
// probe is bounded by the plan interval regardless.
func NewProber(client *http.Client, logger *slog.Logger) *Prober {
	if client == nil {
		client = &http.Client{}
	}
	return &Prober{
		client: client,
		logger: logger.With("component", "health"),
	}
}

// Await polls url until a probe passes or the plan's attempts run out. The
// first probe fires after one interval, giving the stack that long to bind
// its ports. Context cancellation ends the session with the last observed
// result.
func (p *Prober) Await(ctx context.Context, url string, plan corehealth.Plan) Report {
	attempts := plan.Attempts()
	p.logger.Info("waiting for application to become healthy",
		"url", url,
		"attempts", attempts,
		"interval", plan.Interval,
	)

	ticker := time.NewTicker(plan.Interval)
	defer ticker.Stop()

	var report Report
	for report.Attempts < attempts {
		select {
		case <-ctx.Done():
			report.LastErr = ctx.Err()
			return report
		case <-ticker.C:
			report.Attempts++
			status, err := p.probe(ctx, url, plan.Interval)
			report.LastStatus = status
			report.LastErr = err

			if err == nil && corehealth.Accept(status) {
				report.Healthy = true
				p.logger.Info("application healthy",
					"status", status,
					"attempts", report.Attempts,
				)
				return report
			}

			p.logger.Debug("application not yet healthy",
				"attempt", report.Attempts,
				"status", status,
				"error", err,
			)
		}
	}

	return report
}

// Check sends a single probe and returns the status code observed. Status
// reporting uses it for a point-in-time answer without a polling session.
func (p *Prober) Check(ctx context.Context, url string, timeout time.Duration) (int, error) {
	return p.probe(ctx, url, timeout)
}

// probe sends one GET, bounded to the polling interval so a hanging server
// cannot eat more than its slot.
func (p *Prober) probe(ctx context.Context, url string, timeout time.Duration) (int, error) {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
