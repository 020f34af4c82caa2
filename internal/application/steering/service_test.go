package steering

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/flowtonehq/flowtone/internal/application/ports"
	flowerrors "github.com/flowtonehq/flowtone/internal/domain/errors"
	"github.com/flowtonehq/flowtone/internal/infrastructure/tracing"
)

type fakeClassifier struct {
	intent   ports.Intent
	err      error
	blockCtx ports.BlockContext
}

func (f *fakeClassifier) Classify(_ context.Context, _ string, blockCtx ports.BlockContext) (ports.Intent, error) {
	f.blockCtx = blockCtx
	return f.intent, f.err
}

func TestService_SteerMusic(t *testing.T) {
	var steered string
	svc := NewService(
		&fakeClassifier{intent: ports.Intent{Kind: ports.IntentSteerMusic, Prompt: "heavy rain on a tin roof"}},
		Actions{SteerMusic: func(_ context.Context, prompt string) error {
			steered = prompt
			return nil
		}},
		nil, nil, nil,
	)

	intent, err := svc.Handle(context.Background(), "something rainy please")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if intent.Kind != ports.IntentSteerMusic {
		t.Errorf("kind = %q", intent.Kind)
	}
	if steered != "heavy rain on a tin roof" {
		t.Errorf("steered prompt = %q", steered)
	}
}

func TestService_BlockDispatch(t *testing.T) {
	var blocked []string
	svc := NewService(
		&fakeClassifier{intent: ports.Intent{Kind: ports.IntentBlock, Targets: []string{"reddit.com", "Steam"}}},
		Actions{Block: func(_ context.Context, targets []string) error {
			blocked = targets
			return nil
		}},
		nil, nil, nil,
	)

	if _, err := svc.Handle(context.Background(), "block reddit and steam"); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(blocked) != 2 {
		t.Errorf("blocked = %v", blocked)
	}
}

func TestService_ClassifierSeesBlockContext(t *testing.T) {
	classifier := &fakeClassifier{
		intent: ports.Intent{Kind: ports.IntentUnblock, Targets: []string{"reddit.com"}},
	}
	svc := NewService(
		classifier,
		Actions{Unblock: func(_ context.Context, _ []string) error { return nil }},
		func() ports.BlockContext {
			return ports.BlockContext{
				BlockedApps:    []string{"Steam"},
				BlockedDomains: []string{"reddit.com"},
			}
		},
		nil, nil,
	)

	if _, err := svc.Handle(context.Background(), "unblock that site again"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	// The current blocked lists must ride along on the classify request.
	if len(classifier.blockCtx.BlockedApps) != 1 || classifier.blockCtx.BlockedApps[0] != "Steam" {
		t.Errorf("blocked apps sent = %v", classifier.blockCtx.BlockedApps)
	}
	if len(classifier.blockCtx.BlockedDomains) != 1 || classifier.blockCtx.BlockedDomains[0] != "reddit.com" {
		t.Errorf("blocked domains sent = %v", classifier.blockCtx.BlockedDomains)
	}
}

func TestService_ClassificationFailure(t *testing.T) {
	svc := NewService(
		&fakeClassifier{err: errors.New("upstream timeout")},
		Actions{},
		nil, nil, nil,
	)

	_, err := svc.Handle(context.Background(), "anything")
	if err == nil {
		t.Fatal("expected error")
	}
	if flowerrors.CodeOf(err) != flowerrors.CodeClassification {
		t.Errorf("code = %q, expected classification", flowerrors.CodeOf(err))
	}
}

func TestService_EmptyInputRejected(t *testing.T) {
	svc := NewService(&fakeClassifier{}, Actions{}, nil, nil, nil)

	_, err := svc.Handle(context.Background(), "   ")
	if err == nil {
		t.Fatal("expected error for empty input")
	}
	if flowerrors.CodeOf(err) != flowerrors.CodeValidation {
		t.Errorf("code = %q, expected validation", flowerrors.CodeOf(err))
	}
}

func TestService_SteerWithoutPromptRejected(t *testing.T) {
	svc := NewService(
		&fakeClassifier{intent: ports.Intent{Kind: ports.IntentSteerMusic}},
		Actions{},
		nil, nil, nil,
	)

	_, err := svc.Handle(context.Background(), "vague request")
	if err == nil {
		t.Fatal("expected error for promptless steer intent")
	}
}

func TestService_ActionErrorPropagates(t *testing.T) {
	wantErr := errors.New("stream send failed")
	svc := NewService(
		&fakeClassifier{intent: ports.Intent{Kind: ports.IntentSteerMusic, Prompt: "calm"}},
		Actions{SteerMusic: func(_ context.Context, _ string) error { return wantErr }},
		nil, nil, nil,
	)

	_, err := svc.Handle(context.Background(), "calm down")
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, expected propagated action error", err)
	}
}

func TestService_HandleExportsSpan(t *testing.T) {
	var buf bytes.Buffer
	tracer, err := tracing.New(context.Background(), tracing.Config{
		Enabled:      true,
		ExporterType: tracing.ExporterStdout,
		ServiceName:  "steering-test",
		SampleRate:   1.0,
		Output:       &buf,
	})
	if err != nil {
		t.Fatalf("tracing.New: %v", err)
	}

	svc := NewService(
		&fakeClassifier{intent: ports.Intent{Kind: ports.IntentSteerMusic, Prompt: "calm"}},
		Actions{},
		nil, tracer, nil,
	)
	if _, err := svc.Handle(context.Background(), "calm please"); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "steer.classify") {
		t.Error("no steer.classify span exported")
	}
}
