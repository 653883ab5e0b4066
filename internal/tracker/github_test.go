package tracker

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-github/v68/github"
)

type mockIssues struct {
	mu     sync.Mutex
	titles map[string]string // "owner/repo#n" -> title
	err    error
	calls  int
}

func (m *mockIssues) Get(ctx context.Context, owner, repo string, number int) (*github.Issue, *github.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, nil, m.err
	}
	key := fmt.Sprintf("%s/%s#%d", owner, repo, number)
	title, ok := m.titles[key]
	if !ok {
		return nil, nil, fmt.Errorf("not found: %s", key)
	}
	return &github.Issue{Title: github.Ptr(title)}, nil, nil
}

func TestResolveTitle(t *testing.T) {
	issues := &mockIssues{titles: map[string]string{"conda/conda#15169": "Fix env solver hang"}}
	g := New(Opts{Issues: issues})

	title, ok := g.ResolveTitle(context.Background(), "https://github.com/conda/conda/issues/15169")
	if !ok || title != "Fix env solver hang" {
		t.Fatalf("ResolveTitle = %q, %v", title, ok)
	}
}

func TestResolveTitleCaches(t *testing.T) {
	issues := &mockIssues{titles: map[string]string{"a/b#1": "One"}}
	g := New(Opts{Issues: issues})

	url := "https://github.com/a/b/issues/1"
	for i := 0; i < 3; i++ {
		if _, ok := g.ResolveTitle(context.Background(), url); !ok {
			t.Fatalf("ResolveTitle call %d failed", i)
		}
	}
	if issues.calls != 1 {
		t.Errorf("API calls = %d, want 1 (cached)", issues.calls)
	}
}

func TestResolveTitleFailureNotCached(t *testing.T) {
	issues := &mockIssues{err: fmt.Errorf("rate limited")}
	g := New(Opts{Issues: issues})

	url := "https://github.com/a/b/issues/1"
	if _, ok := g.ResolveTitle(context.Background(), url); ok {
		t.Fatal("expected failure")
	}

	// Clear the error; the next call should retry and succeed.
	issues.mu.Lock()
	issues.err = nil
	issues.titles = map[string]string{"a/b#1": "One"}
	issues.mu.Unlock()

	title, ok := g.ResolveTitle(context.Background(), url)
	if !ok || title != "One" {
		t.Fatalf("ResolveTitle after recovery = %q, %v", title, ok)
	}
}

func TestResolveTitleBadURL(t *testing.T) {
	g := New(Opts{Issues: &mockIssues{}})
	if _, ok := g.ResolveTitle(context.Background(), "https://example.com/ticket/9"); ok {
		t.Fatal("expected not-ok for non-GitHub URL")
	}
}
