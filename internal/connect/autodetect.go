package connect

import (
	"context"
	"time"

	"github.com/ohmvision/ov-fleet/internal/profiles"
)

// DetectOutcome is everything an auto-detection run learned: the best usable
// candidate (nil when nothing answered) and every attempt in order.
type DetectOutcome struct {
	Vendor   string   `json:"vendor"`
	Best     *Result  `json:"best,omitempty"`
	Attempts []Result `json:"attempts"`
}

// FullyUsable reports whether the best candidate carries a real stream. A
// snapshot-only device is reachable but not stream-capable.
func (o DetectOutcome) FullyUsable() bool {
	return o.Best != nil && o.Best.Kind != profiles.KindSnapshot
}

// AutoDetectBestConnection walks the vendor's candidate URLs in priority order
// (stream, then http image, then snapshot) and returns on the first usable
// stream or http-image hit. Snapshot hits end the run too since nothing better
// follows them, but callers see the snapshot kind and treat it as a fallback.
// A 401 on one candidate skips the remaining candidates of the same kind: the
// device wants different credentials, not a different path.
func (t *Tester) AutoDetectBestConnection(ctx context.Context, ip, username, password, vendorHint string) DetectOutcome {
	vendor := vendorHint
	if vendor == "" {
		vendor = "generic"
	}
	out := DetectOutcome{Vendor: vendor}

	urls := t.catalog.Expand(vendor, ip, username, password, 1, 0)
	order := t.catalog.PriorityOrder(vendor)

	log := t.log.With().Str("ip", ip).Str("vendor", vendor).Logger()

	first := true
	for _, kind := range order {
		var candidates []string
		var probe func(context.Context, string) Result
		switch kind {
		case profiles.KindStream:
			candidates, probe = urls.Streaming, t.streamFn
		case profiles.KindHTTPImage:
			candidates, probe = urls.HTTPImage, t.httpImageFn
		case profiles.KindSnapshot:
			candidates, probe = urls.Snapshot, t.snapshotFn
		default:
			// ONVIF is negotiated by the discovery probe, not by URL guessing.
			continue
		}

		for _, cand := range candidates {
			if !first {
				if err := sleepCtx(ctx, t.pause); err != nil {
					return out
				}
			}
			first = false

			r := probe(ctx, cand)
			out.Attempts = append(out.Attempts, r)

			if r.OK {
				log.Info().Str("kind", string(kind)).Str("url", r.URL).
					Dur("rtt", r.ResponseTime).Msg("connection candidate accepted")
				best := r
				out.Best = &best
				return out
			}
			if r.AuthRequired {
				log.Debug().Str("kind", string(kind)).Str("url", cand).
					Msg("credentials rejected, skipping remaining candidates of this kind")
				break
			}
		}
	}

	log.Info().Int("attempts", len(out.Attempts)).Msg("no usable connection found")
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
