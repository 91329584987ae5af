package provider

import (
	"context"
	"net/http"
	"time"

	"github.com/kalambet/askmux/internal/config"
	"golang.org/x/sync/errgroup"
)

// Hosted API bases used for reachability checks when an entry has no
// explicit endpoint.
const (
	openaiProbeURL    = "https://api.openai.com/v1"
	anthropicProbeURL = "https://api.anthropic.com"
	geminiProbeURL    = "https://generativelanguage.googleapis.com"
)

const probeTimeout = 5 * time.Second

// ProbeResult is the reachability outcome for one provider.
type ProbeResult struct {
	Name      string
	Kind      string
	Target    string
	Reachable bool
	Latency   time.Duration
	Err       error
}

// Probe checks endpoint reachability for every enabled provider,
// concurrently with bounded parallelism. It never requests a generation, so
// no quota is consumed: any HTTP response, including 401 or 404, proves the
// host is reachable.
func Probe(ctx context.Context, instances []*Instance) []ProbeResult {
	results := make([]ProbeResult, len(instances))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, in := range instances {
		i, in := i, in
		g.Go(func() error {
			results[i] = probeOne(gCtx, in)
			return nil
		})
	}
	g.Wait()
	return results
}

func probeOne(ctx context.Context, in *Instance) ProbeResult {
	res := ProbeResult{Name: in.Name, Kind: in.Kind, Target: probeTarget(in)}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, res.Target, nil)
	if err != nil {
		res.Err = err
		return res
	}

	start := time.Now()
	resp, err := http.DefaultClient.Do(req)
	res.Latency = time.Since(start)
	if err != nil {
		res.Err = err
		return res
	}
	resp.Body.Close()
	res.Reachable = true
	return res
}

func probeTarget(in *Instance) string {
	if in.Endpoint != "" {
		if in.Kind == config.KindLocal {
			// Ollama answers GET /api/tags when it is up.
			return in.Endpoint + "/api/tags"
		}
		return in.Endpoint
	}
	switch in.Kind {
	case config.KindOpenAI:
		return openaiProbeURL
	case config.KindAnthropic:
		return anthropicProbeURL
	case config.KindGemini:
		return geminiProbeURL
	default:
		return in.Endpoint
	}
}
