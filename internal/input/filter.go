package input

import (
	"net/url"
	"strings"

	"github.com/kx0101/perfgate/internal/models"
)

// Filter narrows recorded calls before synthesis. The zero value keeps
// everything.
type Filter struct {
	Method string
	Path   string
	// SameHost keeps only calls to the host of the first call.
	SameHost bool
	Limit    int
}

func (f Filter) Apply(calls []models.RecordedCall) []models.RecordedCall {
	if f.Method == "" && f.Path == "" && !f.SameHost && f.Limit <= 0 {
		return calls
	}

	host := ""
	if f.SameHost {
		host = firstHost(calls)
	}

	filtered := make([]models.RecordedCall, 0)

	for _, call := range calls {
		if f.Limit > 0 && len(filtered) >= f.Limit {
			break
		}

		if f.Method != "" {
			if !strings.EqualFold(call.Method, f.Method) {
				continue
			}
		}

		if f.Path != "" {
			if !strings.Contains(callPath(call.URL), f.Path) {
				continue
			}
		}

		if f.SameHost {
			if hostOf(call.URL) != host {
				continue
			}
		}

		filtered = append(filtered, call)
	}

	return filtered
}

func firstHost(calls []models.RecordedCall) string {
	for _, call := range calls {
		if h := hostOf(call.URL); h != "" {
			return h
		}
	}
	return ""
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Host)
}

func callPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
