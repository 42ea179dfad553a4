package cache

import (
	"sort"
	"strings"

	"github.com/scholarsource/scholarsource/pkg/models"
)

// NormalizedInputs is the canonical subset of discovery inputs that cache
// identity is derived from. Fields that do not affect pipeline output (display
// names, excluded sites, email) are deliberately absent.
type NormalizedInputs struct {
	CourseURL     string
	BookURL       string
	BookTitle     string
	BookAuthor    string
	ISBN          string
	Topics        []string
	ResourceTypes []string
}

// NormalizeInputs extracts the cache-relevant fields from a discovery request.
// URL-like fields are trimmed, lowercased, and stripped of trailing slashes;
// list-valued fields are trimmed and sorted so that ordering differences do
// not produce distinct cache keys. Pure function, no I/O.
func NormalizeInputs(in models.DiscoveryInputs) NormalizedInputs {
	return NormalizedInputs{
		CourseURL:     normalizeURL(in.CourseURL),
		BookURL:       normalizeURL(in.BookURL),
		BookTitle:     strings.TrimSpace(in.BookTitle),
		BookAuthor:    strings.TrimSpace(in.BookAuthor),
		ISBN:          strings.TrimSpace(in.ISBN),
		Topics:        normalizeList(in.TrimmedTopics()),
		ResourceTypes: normalizeList(in.DesiredResourceTypes),
	}
}

func normalizeURL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	return strings.TrimRight(u, "/")
}

func normalizeList(items []string) []string {
	var out []string
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	sort.Strings(out)
	return out
}
