// Command trustnet runs the protocol's demo flows end to end against a
// configured ledger backend.
//
//	trustnet happy-path    create → accept → submit → approve → rate
//	trustnet dispute-path  create → accept → dispute → commit-reveal → resolve
package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	trustnet "github.com/whoknowsmann/trust-net"
	"github.com/whoknowsmann/trust-net/internal/config"
	"github.com/whoknowsmann/trust-net/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("TRUSTNET_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: trustnet <happy-path|dispute-path>")
		return 2
	}

	if err := run(ctx, logger, os.Args[1]); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger, flow string) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("trustnet starting", "version", version, "ledger", cfg.LedgerBackend, "flow", flow)

	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, true)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	transitions, err := telemetry.NewTransitions(cfg.LedgerBackend)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	params := cfg.Params()
	if flow == "dispute-path" && cfg.CommitWindow == 0 {
		// Keep the demo interactive; real deployments set
		// TRUSTNET_COMMIT_WINDOW instead.
		params.CommitWindow = 2 * time.Second
	}

	opts := []trustnet.Option{
		trustnet.WithLogger(logger),
		trustnet.WithParams(params),
	}
	switch cfg.LedgerBackend {
	case config.BackendSQLite:
		opts = append(opts, trustnet.WithSQLiteLedger(cfg.SQLitePath))
	case config.BackendPostgres:
		opts = append(opts, trustnet.WithPostgresLedger(cfg.DatabaseURL))
	default:
		opts = append(opts, trustnet.WithMemoryLedger())
	}
	tn, err := trustnet.New(opts...)
	if err != nil {
		return err
	}
	defer func() { _ = tn.Close() }()

	d := &demo{tn: tn, transitions: transitions, logger: logger}
	ctx, span := telemetry.Tracer().Start(ctx, flow)
	defer span.End()
	switch flow {
	case "happy-path":
		return d.happyPath(ctx)
	case "dispute-path":
		return d.disputePath(ctx)
	default:
		return fmt.Errorf("unknown flow %q", flow)
	}
}

type demo struct {
	tn          *trustnet.Client
	transitions *telemetry.Transitions
	logger      *slog.Logger
}

// randomAddress draws a throwaway wallet identity for the demo run, so
// repeated runs against a persistent backend never collide.
func randomAddress() (trustnet.Address, error) {
	var a trustnet.Address
	if _, err := rand.Read(a[:]); err != nil {
		return trustnet.Address{}, fmt.Errorf("draw address: %w", err)
	}
	return a, nil
}

func randomJobID() (trustnet.JobID, error) {
	var id trustnet.JobID
	if _, err := rand.Read(id[:]); err != nil {
		return trustnet.JobID{}, fmt.Errorf("draw job id: %w", err)
	}
	return id, nil
}

// happyPath walks a job from creation through client approval and a rating.
func (d *demo) happyPath(ctx context.Context) error {
	client, err := randomAddress()
	if err != nil {
		return err
	}
	provider, err := randomAddress()
	if err != nil {
		return err
	}
	jobID, err := randomJobID()
	if err != nil {
		return err
	}

	if err := d.tn.Fund(ctx, client, 1_000_000_000); err != nil {
		return fmt.Errorf("fund client: %w", err)
	}
	if err := d.tn.Fund(ctx, provider, 1_000_000_000); err != nil {
		return fmt.Errorf("fund provider: %w", err)
	}

	terms := sha256.Sum256([]byte("translate 10 pages by tomorrow"))
	jobAddr, receipt, err := d.tn.CreateJob(ctx, client, provider, jobID,
		500_000_000, time.Now().Add(time.Hour), trustnet.VerifyClientApproval, [64]byte{}, terms)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	d.record(ctx, "create_job", receipt)

	if receipt, err = d.tn.AcceptJob(ctx, provider, jobAddr, 100_000_000); err != nil {
		return fmt.Errorf("accept job: %w", err)
	}
	d.record(ctx, "accept_job", receipt)

	submission := sha256.Sum256([]byte("deliverable v1"))
	if receipt, err = d.tn.SubmitCompletion(ctx, provider, jobAddr, submission); err != nil {
		return fmt.Errorf("submit completion: %w", err)
	}
	d.record(ctx, "submit_completion", receipt)

	if receipt, err = d.tn.ApproveCompletion(ctx, client, jobAddr); err != nil {
		return fmt.Errorf("approve completion: %w", err)
	}
	d.record(ctx, "approve_completion", receipt)

	if _, receipt, err = d.tn.RateJob(ctx, client, jobAddr, 5, nil, trustnet.Hash{}); err != nil {
		return fmt.Errorf("rate job: %w", err)
	}
	d.record(ctx, "rate_job", receipt)

	return d.report(ctx, jobAddr, provider)
}

// disputePath walks a contested job through commit-reveal arbitration with
// three arbiters voting concurrently.
func (d *demo) disputePath(ctx context.Context) error {
	client, err := randomAddress()
	if err != nil {
		return err
	}
	provider, err := randomAddress()
	if err != nil {
		return err
	}
	jobID, err := randomJobID()
	if err != nil {
		return err
	}

	if err := d.tn.Fund(ctx, client, 1_000_000_000); err != nil {
		return fmt.Errorf("fund client: %w", err)
	}
	if err := d.tn.Fund(ctx, provider, 1_000_000_000); err != nil {
		return fmt.Errorf("fund provider: %w", err)
	}

	arbiters := make([]trustnet.Address, 3)
	for i := range arbiters {
		if arbiters[i], err = randomAddress(); err != nil {
			return err
		}
		if err := d.tn.Fund(ctx, arbiters[i], 2_000_000_000); err != nil {
			return fmt.Errorf("fund arbiter: %w", err)
		}
		if _, _, err := d.tn.RegisterArbiter(ctx, arbiters[i], 1_000_000_000, []byte("general")); err != nil {
			return fmt.Errorf("register arbiter: %w", err)
		}
	}

	terms := sha256.Sum256([]byte("ship feature by friday"))
	jobAddr, receipt, err := d.tn.CreateJob(ctx, client, provider, jobID,
		500_000_000, time.Now().Add(24*time.Hour), trustnet.VerifyClientApproval, [64]byte{}, terms)
	if err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	d.record(ctx, "create_job", receipt)

	if receipt, err = d.tn.AcceptJob(ctx, provider, jobAddr, 100_000_000); err != nil {
		return fmt.Errorf("accept job: %w", err)
	}
	d.record(ctx, "accept_job", receipt)

	submission := sha256.Sum256([]byte("deliverable v1"))
	if receipt, err = d.tn.SubmitCompletion(ctx, provider, jobAddr, submission); err != nil {
		return fmt.Errorf("submit completion: %w", err)
	}
	d.record(ctx, "submit_completion", receipt)

	disputeAddr, receipt, err := d.tn.RaiseDispute(ctx, client, jobAddr,
		[]byte("deliverable does not match terms"), sha256.Sum256([]byte("evidence bundle")))
	if err != nil {
		return fmt.Errorf("raise dispute: %w", err)
	}
	d.record(ctx, "raise_dispute", receipt)

	// Two arbiters side with the provider, one with the client.
	votes := []bool{true, true, false}
	salts := make([][]byte, len(arbiters))
	g, commitCtx := errgroup.WithContext(ctx)
	for i := range arbiters {
		salts[i] = make([]byte, 16)
		if _, err := rand.Read(salts[i]); err != nil {
			return fmt.Errorf("draw salt: %w", err)
		}
		g.Go(func() error {
			commitment := trustnet.HashVote(arbiters[i], disputeAddr, votes[i], salts[i])
			r, err := d.tn.CommitVote(commitCtx, arbiters[i], disputeAddr, commitment)
			if err != nil {
				return fmt.Errorf("commit vote: %w", err)
			}
			d.record(commitCtx, "commit_vote", r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	dispute, err := d.tn.GetDispute(ctx, disputeAddr)
	if err != nil {
		return err
	}
	wait := time.Until(dispute.CommitDeadline) + time.Second
	d.logger.Info("waiting for commit window to close", "wait", wait)
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return ctx.Err()
	}

	g, revealCtx := errgroup.WithContext(ctx)
	for i := range arbiters {
		g.Go(func() error {
			r, err := d.tn.RevealVote(revealCtx, arbiters[i], disputeAddr, votes[i], salts[i])
			if err != nil {
				return fmt.Errorf("reveal vote: %w", err)
			}
			d.record(revealCtx, "reveal_vote", r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if receipt, err = d.tn.ResolveDispute(ctx, disputeAddr); err != nil {
		return fmt.Errorf("resolve dispute: %w", err)
	}
	d.record(ctx, "resolve_dispute", receipt)

	return d.report(ctx, jobAddr, provider)
}

func (d *demo) record(ctx context.Context, operation string, r trustnet.Receipt) {
	d.transitions.Record(ctx, operation)
	d.logger.Info("transition applied", "operation", operation, "receipt", r.ID)
}

// report prints the final job, reputation, and treasury state.
func (d *demo) report(ctx context.Context, jobAddr, provider trustnet.Address) error {
	job, err := d.tn.GetJob(ctx, jobAddr)
	if err != nil {
		return err
	}
	rep, err := d.tn.GetReputation(ctx, provider)
	if err != nil {
		return err
	}
	treasury, err := d.tn.Balance(ctx, d.tn.Treasury())
	if err != nil {
		return err
	}
	d.logger.Info("flow complete",
		"job", jobAddr,
		"status", job.Status,
		"provider_trust_score", rep.TrustScore,
		"provider_completed", rep.TotalJobsCompleted,
		"provider_disputes_won", rep.TotalDisputesWon,
		"treasury", treasury,
	)
	return nil
}
