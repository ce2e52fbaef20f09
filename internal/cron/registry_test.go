package cron

import (
	"context"
	"strings"
	"testing"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsOrderAndSkipsNil(t *testing.T) {
	registry, err := NewRegistry(namedJob("tracking-poll"), nil, namedJob("stale-payouts"))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	jobs := registry.Jobs()
	if len(jobs) != 2 || jobs[0].Name() != "tracking-poll" || jobs[1].Name() != "stale-payouts" {
		t.Fatalf("unexpected jobs %v", jobs)
	}

	jobs[0] = nil
	if registry.Jobs()[0] == nil {
		t.Fatalf("internal slice leaked")
	}
}

func TestRegistryRejectsDuplicateAndUnnamedJobs(t *testing.T) {
	if _, err := NewRegistry(namedJob("sweep"), namedJob("sweep")); err == nil || !strings.Contains(err.Error(), "registered twice") {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	var registry Registry
	if err := registry.Register(namedJob("")); err == nil {
		t.Fatalf("expected unnamed job to be rejected")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil job to be rejected")
	}
	if err := registry.Register(namedJob("ok")); err != nil {
		t.Fatalf("zero registry should accept jobs: %v", err)
	}
}
