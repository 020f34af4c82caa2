// Package steering turns free-form user utterances into actions: musical
// direction changes, or focus-policy edits. Classification is delegated to
// a language-model backend; this package only dispatches the result.
package steering

import (
	"context"
	"strings"

	"github.com/flowtonehq/flowtone/internal/application/ports"
	flowerrors "github.com/flowtonehq/flowtone/internal/domain/errors"
	"github.com/flowtonehq/flowtone/internal/infrastructure/logging"
	"github.com/flowtonehq/flowtone/internal/infrastructure/tracing"
)

// Actions are the side effects a classified intent can trigger. All fields
// are optional; a nil action makes the corresponding intent a no-op.
type Actions struct {
	// SteerMusic applies a musical direction override.
	SteerMusic func(ctx context.Context, prompt string) error

	// Block adds apps or domains to the active policy's blocked lists.
	Block func(ctx context.Context, targets []string) error

	// Unblock removes apps or domains from the active policy's blocked
	// lists.
	Unblock func(ctx context.Context, targets []string) error
}

// BlockContextFunc snapshots the current blocked lists. The snapshot is
// attached to every classification request so the backend can resolve
// references to already-blocked targets.
type BlockContextFunc func() ports.BlockContext

// Service classifies steering input and dispatches the resulting intent.
type Service struct {
	classifier   ports.ClassifierPort
	actions      Actions
	blockContext BlockContextFunc
	tracer       *tracing.Tracer
	logger       *logging.Logger
}

// NewService creates a steering service. blockContext and tracer may be
// nil; requests then carry an empty block context and tracing falls back to
// the default tracer.
func NewService(classifier ports.ClassifierPort, actions Actions, blockContext BlockContextFunc, tracer *tracing.Tracer, logger *logging.Logger) *Service {
	if tracer == nil {
		tracer = tracing.Default()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		classifier:   classifier,
		actions:      actions,
		blockContext: blockContext,
		tracer:       tracer,
		logger:       logger,
	}
}

// Handle classifies the input and executes the matching action. It returns
// the classified intent so callers can report what happened. Classification
// failures are transient: they are surfaced as a coded error and leave all
// engine state untouched.
func (s *Service) Handle(ctx context.Context, input string) (ports.Intent, error) {
	ctx, span := s.tracer.StartSteerSpan(ctx)

	intent, err := s.handle(ctx, input)
	if err != nil {
		span.EndWithError(err)
		return intent, err
	}
	span.SetIntent(string(intent.Kind))
	span.End()
	return intent, nil
}

func (s *Service) handle(ctx context.Context, input string) (ports.Intent, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return ports.Intent{Kind: ports.IntentUnknown}, flowerrors.NewError(
			flowerrors.CodeValidation, "steering input is empty", nil)
	}

	if s.classifier == nil {
		return ports.Intent{Kind: ports.IntentUnknown}, flowerrors.ErrClassifierUnavailable
	}

	var blockCtx ports.BlockContext
	if s.blockContext != nil {
		blockCtx = s.blockContext()
	}

	intent, err := s.classifier.Classify(ctx, input, blockCtx)
	if err != nil {
		return ports.Intent{Kind: ports.IntentUnknown}, flowerrors.NewError(
			flowerrors.CodeClassification, "intent classification failed", err)
	}

	switch intent.Kind {
	case ports.IntentSteerMusic:
		if intent.Prompt == "" {
			return intent, flowerrors.NewError(
				flowerrors.CodeClassification, "steer intent carries no prompt", nil)
		}
		if s.actions.SteerMusic != nil {
			if err := s.actions.SteerMusic(ctx, intent.Prompt); err != nil {
				return intent, err
			}
		}
		s.logger.InfoContext(ctx, "music steered", "prompt", intent.Prompt)

	case ports.IntentBlock:
		if len(intent.Targets) == 0 {
			return intent, flowerrors.NewError(
				flowerrors.CodeClassification, "block intent carries no targets", nil)
		}
		if s.actions.Block != nil {
			if err := s.actions.Block(ctx, intent.Targets); err != nil {
				return intent, err
			}
		}
		s.logger.InfoContext(ctx, "targets blocked", "targets", strings.Join(intent.Targets, ","))

	case ports.IntentUnblock:
		if len(intent.Targets) == 0 {
			return intent, flowerrors.NewError(
				flowerrors.CodeClassification, "unblock intent carries no targets", nil)
		}
		if s.actions.Unblock != nil {
			if err := s.actions.Unblock(ctx, intent.Targets); err != nil {
				return intent, err
			}
		}
		s.logger.InfoContext(ctx, "targets unblocked", "targets", strings.Join(intent.Targets, ","))

	default:
		s.logger.WarnContext(ctx, "unrecognized steering intent", "input", input)
	}

	return intent, nil
}
