// Package health reports the reachability of the generator's backing
// services.
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const probeTimeout = 3 * time.Second

// Probe checks one dependency.
type Probe struct {
	Name string
	// Required probes fail the whole check; the others only degrade it.
	Required bool
	Check    func(ctx context.Context) error
}

type result struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type report struct {
	Status       string            `json:"status"`
	Dependencies map[string]result `json:"dependencies"`
}

// RegisterRoutes mounts GET /health.
func RegisterRoutes(rg *gin.RouterGroup, probes ...Probe) {
	rg.GET("/health", func(c *gin.Context) {
		code, body := run(c.Request.Context(), probes)
		c.JSON(code, body)
	})
}

func run(ctx context.Context, probes []Probe) (int, report) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	results := make([]result, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			if err := p.Check(ctx); err != nil {
				results[i] = result{Error: err.Error()}
				return
			}
			results[i] = result{OK: true}
		}(i, p)
	}
	wg.Wait()

	out := report{Status: "ok", Dependencies: make(map[string]result, len(probes))}
	code := http.StatusOK
	for i, p := range probes {
		out.Dependencies[p.Name] = results[i]
		if results[i].OK {
			continue
		}
		if p.Required {
			out.Status = "down"
			code = http.StatusServiceUnavailable
		} else if out.Status == "ok" {
			out.Status = "degraded"
		}
	}
	return code, out
}
