// Package tracker resolves work item titles from the issue tracker. Lookups
// are lazy and best-effort: a failure yields "title unknown", never an error
// that blocks vote handling.
package tracker

import (
	"context"
	"log"
	"regexp"
	"strconv"
	"sync"

	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"
)

var issueURLRe = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/issues/(\d+)$`)

// issuesService abstracts the go-github Issues API, enabling test mocks.
type issuesService interface {
	Get(ctx context.Context, owner, repo string, number int) (*github.Issue, *github.Response, error)
}

// GitHub resolves issue titles through the GitHub API, caching successes.
type GitHub struct {
	issues issuesService

	mu    sync.Mutex
	cache map[string]string // url -> title
}

// Opts holds parameters for creating a GitHub resolver.
type Opts struct {
	Token string // personal access token; empty means unauthenticated
	// For testing: inject a mock issues service.
	Issues issuesService
}

// New creates a GitHub resolver.
func New(opts Opts) *GitHub {
	g := &GitHub{cache: make(map[string]string)}
	if opts.Issues != nil {
		g.issues = opts.Issues
		return g
	}

	var client *github.Client
	if opts.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token})
		client = github.NewClient(oauth2.NewClient(context.Background(), ts))
	} else {
		client = github.NewClient(nil)
	}
	g.issues = client.Issues
	return g
}

// ResolveTitle returns the issue title for a GitHub issue URL. Results are
// cached on success; any failure reports not-ok and is retried on the next
// call.
func (g *GitHub) ResolveTitle(ctx context.Context, url string) (string, bool) {
	g.mu.Lock()
	if title, ok := g.cache[url]; ok {
		g.mu.Unlock()
		return title, true
	}
	g.mu.Unlock()

	m := issueURLRe.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	number, err := strconv.Atoi(m[3])
	if err != nil {
		return "", false
	}

	issue, _, err := g.issues.Get(ctx, m[1], m[2], number)
	if err != nil {
		log.Printf("tracker: fetch title for %s: %v", url, err)
		return "", false
	}
	title := issue.GetTitle()
	if title == "" {
		return "", false
	}

	g.mu.Lock()
	g.cache[url] = title
	g.mu.Unlock()
	return title, true
}
