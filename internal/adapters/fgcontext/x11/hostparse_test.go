package x11

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flowtonehq/flowtone/internal/domain/focus"
)

func TestHostFromTitle(t *testing.T) {
	tests := []struct {
		name    string
		appName string
		title   string
		want    string
	}{
		{
			"bare host segment",
			"firefox",
			"old.reddit.com - the front page of the internet - Mozilla Firefox",
			"old.reddit.com",
		},
		{
			"full url in title",
			"google-chrome",
			"https://news.ycombinator.com/item?id=1 - Google Chrome",
			"news.ycombinator.com",
		},
		{
			"plain page title yields nothing",
			"firefox",
			"Inbox (42) - Mozilla Firefox",
			"",
		},
		{
			"non-browser app yields nothing",
			"Steam",
			"store.steampowered.com",
			"",
		},
		{
			"case normalized",
			"Firefox",
			"Docs.Example.COM - Documentation - Mozilla Firefox",
			"docs.example.com",
		},
		{
			"version number not mistaken for host",
			"chromium",
			"Release 1.2.3 notes - Chromium",
			"",
		},
		{
			"parenthesized host",
			"firefox",
			"Dashboard (grafana.internal.example) - Mozilla Firefox",
			"grafana.internal.example",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HostFromTitle(tt.appName, tt.title); got != tt.want {
				t.Errorf("HostFromTitle(%q, %q) = %q, expected %q",
					tt.appName, tt.title, got, tt.want)
			}
		})
	}
}

func TestLooksLikeHost(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"reddit.com", true},
		{"old.reddit.com", true},
		{"a.co", true},
		{"1.2.3", false},
		{"v1.2", false},
		{"no-dot", false},
		{"-bad.com", false},
		{"bad-.com", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := looksLikeHost(tt.in); got != tt.want {
			t.Errorf("looksLikeHost(%q) = %v, expected %v", tt.in, got, tt.want)
		}
	}
}

type scriptedProbe struct {
	mu   sync.Mutex
	next focus.Context
}

func (p *scriptedProbe) set(ctx focus.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next = ctx
}

func (p *scriptedProbe) probe() (focus.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next, nil
}

func TestSource_PublishesOnChangeOnly(t *testing.T) {
	probe := &scriptedProbe{}
	probe.set(focus.Context{AppName: "Editor"})
	src := newSource(nil, probe.probe)

	ctx := context.Background()

	// Drive polls directly rather than waiting on the real ticker.
	src.poll(ctx)
	src.poll(ctx)
	src.poll(ctx)

	select {
	case got := <-src.Contexts():
		if got.AppName != "Editor" {
			t.Errorf("snapshot = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot published")
	}

	select {
	case got := <-src.Contexts():
		t.Fatalf("duplicate snapshot published: %+v", got)
	default:
	}

	probe.set(focus.Context{AppName: "firefox", ActiveHost: "reddit.com"})
	src.poll(ctx)

	select {
	case got := <-src.Contexts():
		if got.ActiveHost != "reddit.com" {
			t.Errorf("snapshot = %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("changed snapshot not published")
	}

	cur, err := src.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.AppName != "firefox" {
		t.Errorf("current = %+v", cur)
	}
}

func TestSource_CurrentBeforeFirstPoll(t *testing.T) {
	src := newSource(nil, func() (focus.Context, error) {
		return focus.Context{}, nil
	})

	if _, err := src.Current(); err == nil {
		t.Error("expected error before first snapshot")
	}
}
