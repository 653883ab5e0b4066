// Package parse turns raw chat text into batch specs, vote submissions,
// finish commands, and participant name lists.
package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	issueURLRe  = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/issues/(\d+)$`)
	estimateRe  = regexp.MustCompile(`#(\d+):\s*(\d+|abstain)`)
	voteRe      = regexp.MustCompile(`#\d+:\s*\d+`)
	proxyRe     = regexp.MustCompile(`(?i)vote\s+for\s+`)
	proxyPartRe = regexp.MustCompile("(?i)^vote\\s+for\\s+(.+?)\\s+`?(#\\d+:.*?)`?$")
	finishRe    = regexp.MustCompile(`#(\d+):\s*(\d+)`)
	andRe       = regexp.MustCompile(`(?i)\s+and\s+`)
)

// Parser validates and extracts structured input per the configured policy.
type Parser struct {
	MaxItems int
	Scale    []int // valid story point values
}

// New creates a Parser.
func New(maxItems int, scale []int) *Parser {
	return &Parser{MaxItems: maxItems, Scale: scale}
}

// Item is one work item parsed from a batch spec.
type Item struct {
	Key string // issue number
	URL string
}

// Submission is a parsed vote message: point estimates and abstentions keyed
// by item, plus any per-line validation errors.
type Submission struct {
	Estimates   map[string]int
	Abstentions []string
	Errors      []string
}

// Final is one facilitator-supplied final estimate from a finish command.
type Final struct {
	Points    int
	Rationale string
}

// ParseBatchSpec parses the body of a "start" command: one GitHub issue URL
// per line. Duplicate issue numbers and overlong batches are rejected.
func (p *Parser) ParseBatchSpec(content string) ([]Item, error) {
	var items []Item
	seen := make(map[string]bool)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "start") {
			continue
		}
		m := issueURLRe.FindStringSubmatch(line)
		if m == nil {
			return nil, fmt.Errorf("parse: invalid format %q, expected a GitHub issue URL like https://github.com/owner/repo/issues/1234", line)
		}
		key := m[3]
		if seen[key] {
			return nil, fmt.Errorf("parse: duplicate issue #%s", key)
		}
		seen[key] = true
		items = append(items, Item{Key: key, URL: line})
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("parse: no GitHub issue URLs provided")
	}
	if len(items) > p.MaxItems {
		return nil, fmt.Errorf("parse: maximum %d issues per batch (you provided %d)", p.MaxItems, len(items))
	}
	return items, nil
}

// ParseEstimates parses a vote message like "#1234: 5, #1235: abstain".
// Off-scale point values land in Errors rather than failing the whole
// submission.
func (p *Parser) ParseEstimates(content string) Submission {
	sub := Submission{Estimates: make(map[string]int)}

	for _, m := range estimateRe.FindAllStringSubmatch(stripBackticks(content), -1) {
		key, value := m[1], m[2]
		if strings.EqualFold(value, "abstain") {
			sub.Abstentions = append(sub.Abstentions, key)
			continue
		}
		points, err := strconv.Atoi(value)
		if err != nil || !p.onScale(points) {
			sub.Errors = append(sub.Errors,
				fmt.Sprintf("#%s: %s (must be one of: %s)", key, value, p.scaleString()))
			continue
		}
		sub.Estimates[key] = points
	}
	return sub
}

// ParseFinish parses a finish command like
// "finish #1234: 5 agreed medium, #1235: 3 simple fix" into finals keyed by
// item. Off-scale points are skipped. The rationale is the free text between
// one estimate and the next.
func (p *Parser) ParseFinish(content string) map[string]Final {
	content = strings.TrimSpace(strings.Replace(content, "finish", "", 1))

	finals := make(map[string]Final)
	locs := finishRe.FindAllStringSubmatchIndex(content, -1)
	for i, loc := range locs {
		key := content[loc[2]:loc[3]]
		points, err := strconv.Atoi(content[loc[4]:loc[5]])
		if err != nil || !p.onScale(points) {
			continue
		}
		end := len(content)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		rationale := strings.TrimSpace(content[loc[1]:end])
		rationale = strings.TrimSpace(strings.TrimSuffix(rationale, ","))
		finals[key] = Final{Points: points, Rationale: rationale}
	}
	return finals
}

// ParseNames splits a participant list like "Alice, @**bob** and Carol" into
// clean names. Mention markup is stripped and duplicates dropped.
func ParseNames(text string) []string {
	text = andRe.ReplaceAllString(text, ", ")
	var names []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(text, ",") {
		name := CleanName(part)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// CleanName strips whitespace and mention markup from a single name.
func CleanName(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "@**") && strings.HasSuffix(text, "**") && len(text) > 5 {
		return text[3 : len(text)-2]
	}
	return strings.TrimPrefix(text, "@")
}

// ValidateName rejects names containing characters that would collide with
// the vote syntax.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("parse: participant name cannot be empty")
	}
	if strings.ContainsAny(name, "#:`") {
		return fmt.Errorf("parse: invalid participant name %q", name)
	}
	return nil
}

// IsVoteFormat reports whether content looks like a vote submission.
// Unpaired backticks disqualify; proxy votes are classified separately.
func (p *Parser) IsVoteFormat(content string) bool {
	if p.IsProxyVote(content) {
		return false
	}
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "`") && strings.HasSuffix(trimmed, "`") && len(trimmed) > 1 {
		trimmed = strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	} else if strings.Contains(trimmed, "`") {
		return false
	}
	return voteRe.MatchString(trimmed)
}

// IsProxyVote reports whether content looks like a proxy vote ("vote for ...").
func (p *Parser) IsProxyVote(content string) bool {
	return proxyRe.MatchString(content)
}

// ParseProxy splits a proxy vote like "vote for Alice #1234: 5, #1235: 8"
// into the target participant name and the vote text.
func (p *Parser) ParseProxy(content string) (name, votes string, err error) {
	m := proxyPartRe.FindStringSubmatch(strings.TrimSpace(content))
	if m == nil {
		return "", "", fmt.Errorf("parse: invalid proxy vote, expected: vote for NAME #1234: 5, #1235: 8")
	}
	return CleanName(m[1]), m[2], nil
}

func (p *Parser) onScale(points int) bool {
	for _, v := range p.Scale {
		if v == points {
			return true
		}
	}
	return false
}

func (p *Parser) scaleString() string {
	parts := make([]string, len(p.Scale))
	for i, v := range p.Scale {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

// stripBackticks removes one pair of wrapping backticks, if present.
func stripBackticks(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "`") && strings.HasSuffix(trimmed, "`") && len(trimmed) > 1 {
		return strings.TrimSpace(trimmed[1 : len(trimmed)-1])
	}
	return trimmed
}
