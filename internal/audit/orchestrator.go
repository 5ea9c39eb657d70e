package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/veracity/internal/model"
	"github.com/ppiankov/veracity/internal/vectorstore"
)

// StoreFactory builds the evidence store for one job. The default indexes
// the job's own context docs in memory; deployments with a shared knowledge
// base can return a persistent store instead.
type StoreFactory func(job *model.AuditJob) vectorstore.Store

// Orchestrator runs the fixed decompose → retrieve → verify → score
// pipeline over a single audit record. It is the sole mutator of the record
// while the audit is in flight.
type Orchestrator struct {
	decomposer *Decomposer
	retriever  *Retriever
	verifier   *Verifier
	scorer     *Scorer
	stores     StoreFactory

	claimFanout        int
	degradedUnknownMin int
	degradedTotalMax   int

	logger *slog.Logger
}

// NewOrchestrator wires the four stages together
func NewOrchestrator(cfg model.AuditConfig, decomposer *Decomposer, verifier *Verifier, stores StoreFactory, logger *slog.Logger) *Orchestrator {
	if stores == nil {
		stores = func(job *model.AuditJob) vectorstore.Store {
			return vectorstore.NewMemoryStore(job.ContextDocs)
		}
	}
	fanout := cfg.ClaimFanout
	if fanout <= 0 {
		fanout = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		decomposer:         decomposer,
		retriever:          NewRetriever(cfg.TopK, cfg.RelevanceThreshold),
		verifier:           verifier,
		scorer:             NewScorer(),
		stores:             stores,
		claimFanout:        fanout,
		degradedUnknownMin: cfg.DegradedUnknownMin,
		degradedTotalMax:   cfg.DegradedTotalMax,
		logger:             logger,
	}
}

// Run executes the pipeline for one job and returns the finished record in
// state SCORED or FAILED. Cancellation is cooperative: the running stage
// finishes, then the next stage is skipped and the record fails with the
// context error.
func (o *Orchestrator) Run(ctx context.Context, job *model.AuditJob) *model.AuditRecord {
	record := model.NewAuditRecord(job)
	logger := o.logger.With("job_id", job.JobID)

	// Stage 1: decompose
	claims, err := o.decomposer.Decompose(ctx, job.Response)
	if err != nil {
		logger.Error("decomposition failed", "error", err)
		record.Fail("decompose", err)
		return record
	}
	record.Claims = claims
	if err := record.Transition(model.StateDecomposed); err != nil {
		record.Fail("decompose", err)
		return record
	}
	logger.Debug("decomposed response", "claims", len(claims))

	if len(claims) == 0 {
		// Nothing to dispute: walk the remaining states and score the
		// empty verification set
		return o.finish(record, nil, 0, logger)
	}

	if err := ctx.Err(); err != nil {
		record.Verifications = padVerifications(claims, nil)
		record.Fail("retrieve", err)
		return record
	}

	// Stages 2+3: per-claim retrieval and verification. Claims are mutually
	// independent, so they fan out across a bounded task group; results land
	// in index-aligned slices and the group join is the barrier before
	// scoring.
	store := o.stores(job)
	verifications := make([]model.ClaimVerification, len(claims))
	claimErrs := make([]error, len(claims))

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.claimFanout)

	for i, claim := range claims {
		i, claim := i, claim
		g.Go(func() error {
			verifications[i], claimErrs[i] = o.processClaim(groupCtx, store, claim)
			// Per-claim failures are absorbed; only cancellation stops the group
			return groupCtx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		record.Verifications = padVerifications(claims, verifications)
		record.Fail("verify", err)
		return record
	}

	// All backends failing on every claim is an infrastructure outage, not
	// a property of the response under audit
	failed := 0
	for _, cerr := range claimErrs {
		if cerr != nil {
			failed++
			logger.Warn("claim degraded", "error", cerr)
		}
	}
	if failed == len(claims) {
		record.Verifications = padVerifications(claims, verifications)
		record.Fail("verify", fmt.Errorf("all %d claim verifications failed: %w", failed, errors.Join(claimErrs...)))
		return record
	}

	if err := record.Transition(model.StateRetrieved); err != nil {
		record.Fail("retrieve", err)
		return record
	}

	if err := ctx.Err(); err != nil {
		record.Verifications = padVerifications(claims, verifications)
		record.Fail("verify", err)
		return record
	}

	return o.finish(record, verifications, len(claims), logger)
}

// padVerifications index-aligns the verification slice with the claims,
// filling any unverified slot with an UNKNOWN verdict, so every published
// record keeps the claim/verification pairing even when it failed mid-flight
func padVerifications(claims []model.Claim, verifications []model.ClaimVerification) []model.ClaimVerification {
	if verifications == nil {
		verifications = make([]model.ClaimVerification, len(claims))
	}
	for i := range verifications {
		if verifications[i].Status == "" {
			verifications[i] = unknownVerdict(claims[i], nil)
		}
	}
	return verifications
}

// processClaim runs retrieval then verification for one claim, degrading on
// stage-local failures per the error taxonomy
func (o *Orchestrator) processClaim(ctx context.Context, store vectorstore.Store, claim model.Claim) (model.ClaimVerification, error) {
	evidence, err := o.retriever.Retrieve(ctx, store, claim)
	if err != nil {
		// Retrieval failure degrades to empty evidence; the verifier then
		// reports UNKNOWN without a backend call
		verification, _ := o.verifier.Verify(ctx, claim, nil)
		return verification, err
	}
	return o.verifier.Verify(ctx, claim, evidence)
}

// finish walks the record through VERIFIED and SCORED and aggregates
func (o *Orchestrator) finish(record *model.AuditRecord, verifications []model.ClaimVerification, totalClaims int, logger *slog.Logger) *model.AuditRecord {
	if verifications == nil {
		verifications = []model.ClaimVerification{}
	}
	if record.State == model.StateDecomposed {
		if err := record.Transition(model.StateRetrieved); err != nil {
			record.Fail("retrieve", err)
			return record
		}
	}
	record.Verifications = verifications
	if err := record.Transition(model.StateVerified); err != nil {
		record.Fail("verify", err)
		return record
	}

	unknown := 0
	for _, v := range verifications {
		if v.Status == model.StatusUnknown {
			unknown++
		}
	}
	if totalClaims > 0 && totalClaims < o.degradedTotalMax && unknown >= o.degradedUnknownMin {
		record.DegradedQuality = true
	}

	result := o.scorer.Score(verifications)
	record.FaithfulnessScore = result.FaithfulnessScore
	record.Hallucination = result.Hallucination
	record.ReasoningTrace = result.ReasoningTrace

	if err := record.Transition(model.StateScored); err != nil {
		record.Fail("score", err)
		return record
	}

	logger.Info("audit complete",
		"score", record.FaithfulnessScore,
		"hallucination", record.Hallucination,
		"claims", totalClaims,
		"unknown", unknown)
	return record
}
