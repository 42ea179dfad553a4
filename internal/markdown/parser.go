// Package markdown turns the pipeline's raw markdown report into structured
// resources and textbook metadata. Pipeline output is loosely formatted, so
// parsing tries a sequence of strategies from most to least structured.
package markdown

import (
	"regexp"
	"strings"

	"github.com/scholarsource/scholarsource/pkg/models"
)

// ParseResult holds everything extracted from one report.
type ParseResult struct {
	Resources    []models.Resource
	TextbookInfo *TextbookInfo
}

// TextbookInfo is the identified course textbook, the core of the cacheable
// analysis sub-result.
type TextbookInfo struct {
	Title  string `json:"title"`
	Author string `json:"author"`
	Source string `json:"source,omitempty"`
}

var (
	numberedRe = regexp.MustCompile(`\*\*(?:\d+\.?|Resource \d+:?)\s+([^*]+?)\*\*(?:\s+\((?:Type:\s*)?([^)]+)\))?`)
	nextItemRe = regexp.MustCompile(`\*\*(?:\d+\.?|Resource \d+)`)
	mdLinkRe   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	plainURLRe = regexp.MustCompile(`https?://[^\s)\],>]+`)

	linkPrefixRe = regexp.MustCompile(`(?i)(?:Link|URL|Website):\s*(https?://\S+)`)
	sourceRe     = regexp.MustCompile(`(?i)(?:Source|Provider|From):\s*([^\n*-]+)`)
	descRe       = regexp.MustCompile(`(?i)(?:What it covers|Description|Best for):\s*([^\n]+)`)
	typeCtxRe    = regexp.MustCompile(`(?i)(?:Type|Format):\s*([^\n)\-]+)`)

	textbookSectionRe = regexp.MustCompile(`(?is)#+ (?:Textbook Information|Course Textbook|Official Textbook)[:\n]+(.*?)(?:\n#|\z)`)
	textbookLineRe    = regexp.MustCompile(`(?i)\*?\*?(?:Textbook|Text):\*?\*?\s*([^\n]+)`)
	titleFieldRe      = regexp.MustCompile(`(?i)(?:\*\*)?(?:Title|Book)[:\s]+\*?\*?([^\n*]+)`)
	authorFieldRe     = regexp.MustCompile(`(?i)(?:\*\*)?Authors?[:\s]+\*?\*?([^\n*]+)`)
	byAuthorRe        = regexp.MustCompile(`(?i)\bby\s+([^.\n]+)`)
)

// errorIndicators mark fields that carry scrape failures rather than real
// resources.
var errorIndicators = []string{"error:", "could not fetch", "failed to", "http error", "timed out"}

// Parse extracts resources and textbook info from a raw markdown report.
// excludedSites is a comma-separated domain list; any resource whose URL
// contains one of the domains is dropped.
func Parse(content, excludedSites string) *ParseResult {
	resources := parseNumbered(content)
	if len(resources) == 0 {
		resources = parseLinks(content)
	}
	if len(resources) == 0 {
		resources = parseBareURLs(content)
	}
	resources = filterExcluded(resources, excludedSites)

	return &ParseResult{
		Resources:    resources,
		TextbookInfo: extractTextbookInfo(content),
	}
}

// parseNumbered handles the crew's primary format:
//
//	**1. Resource Title** (Type: Open Textbook)
//	- **Link:** https://example.com
//	- **What it covers:** Description
func parseNumbered(content string) []models.Resource {
	var resources []models.Resource

	matches := numberedRe.FindAllStringSubmatchIndex(content, -1)
	for _, m := range matches {
		title := strings.TrimSpace(content[m[2]:m[3]])
		resourceType := "Resource"
		if m[4] >= 0 {
			resourceType = strings.TrimSpace(content[m[4]:m[5]])
		}

		// The block for this resource runs until the next numbered item.
		block := content[m[1]:]
		if next := nextItemRe.FindStringIndex(block); next != nil {
			block = block[:next[0]]
		}

		url := extractURL(block)
		if url == "" || containsError(url, title, extractDescription(block)) {
			continue
		}

		source := extractSource(block)
		if source == "" {
			source = "Unknown"
		}
		resources = append(resources, models.Resource{
			Type:        normalizeType(resourceType),
			Title:       title,
			Source:      source,
			URL:         url,
			Description: extractDescription(block),
		})
	}
	return resources
}

// parseLinks extracts every markdown link as a resource, using surrounding
// context for source, description, and type.
func parseLinks(content string) []models.Resource {
	var resources []models.Resource

	for _, m := range mdLinkRe.FindAllStringSubmatchIndex(content, -1) {
		title := strings.TrimSpace(content[m[2]:m[3]])
		url := strings.TrimSpace(content[m[4]:m[5]])

		if strings.HasPrefix(url, "#") {
			continue
		}
		switch strings.ToLower(title) {
		case "back to top", "top", "home":
			continue
		}

		start := max(0, m[0]-200)
		end := min(len(content), m[1]+200)
		context := content[start:end]

		description := extractDescription(context)
		if containsError(url, title, description) {
			continue
		}

		resourceType := inferTypeFromURL(url)
		if tm := typeCtxRe.FindStringSubmatch(context); tm != nil {
			resourceType = normalizeType(strings.TrimSpace(tm[1]))
		}

		source := extractSource(context)
		if source == "" {
			source = "Unknown"
		}
		resources = append(resources, models.Resource{
			Type:        resourceType,
			Title:       title,
			Source:      source,
			URL:         url,
			Description: description,
		})
	}
	return resources
}

// parseBareURLs is the last-resort strategy: every distinct URL becomes a
// minimal resource.
func parseBareURLs(content string) []models.Resource {
	var resources []models.Resource
	seen := make(map[string]bool)

	for _, url := range plainURLRe.FindAllString(content, -1) {
		if seen[url] {
			continue
		}
		seen[url] = true

		if containsError(url, "", "") {
			continue
		}
		resources = append(resources, models.Resource{
			Type:   inferTypeFromURL(url),
			Title:  url,
			Source: domainOf(url),
			URL:    url,
		})
	}
	return resources
}

func filterExcluded(resources []models.Resource, excludedSites string) []models.Resource {
	var domains []string
	for _, d := range strings.Split(excludedSites, ",") {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	if len(domains) == 0 {
		return resources
	}

	filtered := resources[:0]
	for _, r := range resources {
		url := strings.ToLower(r.URL)
		excluded := false
		for _, d := range domains {
			if strings.Contains(url, d) {
				excluded = true
				break
			}
		}
		if !excluded {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

func containsError(fields ...string) bool {
	for _, f := range fields {
		lower := strings.ToLower(f)
		for _, indicator := range errorIndicators {
			if strings.Contains(lower, indicator) {
				return true
			}
		}
	}
	return false
}

func extractURL(text string) string {
	if m := mdLinkRe.FindStringSubmatch(text); m != nil && strings.HasPrefix(m[2], "http") {
		return strings.TrimSpace(m[2])
	}
	if m := linkPrefixRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := plainURLRe.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

func extractSource(text string) string {
	if m := sourceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func extractDescription(text string) string {
	if m := descRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func inferTypeFromURL(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "youtube.com"), strings.Contains(lower, "youtu.be"):
		return "Video"
	case strings.Contains(lower, "pdf"):
		return "PDF"
	case strings.Contains(lower, "openstax"), strings.Contains(lower, "textbook"), strings.Contains(lower, "book"):
		return "Textbook"
	case strings.Contains(lower, "course"), strings.Contains(lower, "lecture"),
		strings.Contains(lower, "ocw"), strings.Contains(lower, "coursera"), strings.Contains(lower, "edx"):
		return "Course"
	case strings.Contains(lower, "notes"), strings.Contains(lower, "tutorial"), strings.Contains(lower, "guide"):
		return "Tutorial"
	}
	return "Website"
}

var typeMap = []struct{ key, value string }{
	{"open textbook", "Textbook"},
	{"textbook", "Textbook"},
	{"video lecture", "Video"},
	{"lecture series", "Video"},
	{"video", "Video"},
	{"youtube", "Video"},
	{"course notes", "Course"},
	{"lecture notes", "Notes"},
	{"notes", "Notes"},
	{"tutorial", "Tutorial"},
	{"course", "Course"},
	{"pdf", "PDF"},
	{"website", "Website"},
	{"web page", "Website"},
}

func normalizeType(raw string) string {
	lower := strings.ToLower(raw)
	for _, entry := range typeMap {
		if strings.Contains(lower, entry.key) {
			return entry.value
		}
	}
	return titleCase(raw)
}

// titleCase capitalizes the first letter of each word, a fallback for type
// strings outside the known map.
func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func domainOf(url string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(url, "https://"), "http://")
	if i := strings.IndexAny(trimmed, "/?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}

// extractTextbookInfo looks for a textbook section or a "Textbook:" line and
// pulls out title and author.
func extractTextbookInfo(content string) *TextbookInfo {
	if m := textbookSectionRe.FindStringSubmatch(content); m != nil {
		section := strings.TrimSpace(m[1])

		var info TextbookInfo
		if tm := titleFieldRe.FindStringSubmatch(section); tm != nil {
			info.Title = strings.TrimSpace(tm[1])
		}
		if am := authorFieldRe.FindStringSubmatch(section); am != nil {
			info.Author = strings.TrimSpace(am[1])
		}
		if info.Title != "" || info.Author != "" {
			return &info
		}
		return parseTextbookLine(section)
	}

	if m := textbookLineRe.FindStringSubmatch(content); m != nil {
		return parseTextbookLine(strings.TrimSpace(m[1]))
	}
	return nil
}

// parseTextbookLine handles free-form lines like "Intro to Algorithms by
// Cormen" or "Engineering Mechanics: Statics, Bedford, Fowler".
func parseTextbookLine(line string) *TextbookInfo {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}

	if m := byAuthorRe.FindStringSubmatchIndex(line); m != nil {
		title := strings.Trim(strings.TrimSpace(line[:m[0]]), ",.")
		author := strings.TrimSpace(line[m[2]:m[3]])
		return &TextbookInfo{Title: title, Author: author}
	}

	parts := strings.Split(line, ",")
	if len(parts) >= 2 {
		first := strings.TrimSpace(parts[0])
		rest := strings.TrimSuffix(strings.TrimSpace(strings.Join(parts[1:], ",")), ".")
		// A colon or unusual length suggests the first part is the title,
		// otherwise assume "Author, Title".
		if strings.Contains(first, ":") || len(first) > 30 {
			return &TextbookInfo{Title: first, Author: rest}
		}
		return &TextbookInfo{Title: rest, Author: first}
	}
	return &TextbookInfo{Title: strings.TrimSuffix(line, ".")}
}
