package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kx0101/perfgate/internal/aggregate"
	"github.com/kx0101/perfgate/internal/artifact"
	"github.com/kx0101/perfgate/internal/cli"
	"github.com/kx0101/perfgate/internal/config"
	"github.com/kx0101/perfgate/internal/gate"
	"github.com/kx0101/perfgate/internal/input"
	"github.com/kx0101/perfgate/internal/metrics"
	"github.com/kx0101/perfgate/internal/models"
	"github.com/kx0101/perfgate/internal/proxy"
	"github.com/kx0101/perfgate/internal/publish"
	"github.com/kx0101/perfgate/internal/report"
	"github.com/kx0101/perfgate/internal/scenario"
	"github.com/kx0101/perfgate/internal/scoring"
)

func newRecordCmd(a *app) *cobra.Command {
	var opts cli.RecordOptions

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record calls to the application through a capture proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}

			return startReverseProxyFn(cmd.Context(), &proxy.CaptureConfig{
				ListenAddr: opts.ListenAddr,
				Upstream:   opts.Upstream,
				OutputFile: opts.Output,
				Stream:     opts.Stream,
				TLSCert:    opts.TLSCert,
				TLSKey:     opts.TLSKey,
				Logger:     a.logger,
			})
		},
	}

	opts.Bind(cmd.Flags(), a.cfg)
	return cmd
}

func newSynthesizeCmd(a *app) *cobra.Command {
	var opts cli.SynthesizeOptions

	cmd := &cobra.Command{
		Use:   "synthesize",
		Short: "Turn recorded calls into a load-test scenario",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return a.runSynthesize(&opts)
		},
	}

	opts.Bind(cmd.Flags(), a.cfg)
	return cmd
}

func (a *app) runSynthesize(opts *cli.SynthesizeOptions) error {
	calls, err := readCallsFn(opts.Input, a.logger)
	if err != nil {
		return fmt.Errorf("failed to read recorded calls: %w", err)
	}

	filter := input.Filter{
		Method:   opts.FilterMethod,
		Path:     opts.FilterPath,
		SameHost: opts.SameHost,
		Limit:    opts.Limit,
	}
	calls = filter.Apply(calls)

	if opts.DryRun {
		return dryRunFn(stdout, calls)
	}

	synthOpts := scenario.Options{
		Target:          opts.Target,
		DurationSeconds: opts.Duration,
		ArrivalRate:     opts.ArrivalRate,
	}

	if opts.Credentials {
		if a.cfg.Site.Username == "" || a.cfg.Site.Password == "" {
			a.logger.Warn("credential substitution requested but USERNAME or PASSWORD is empty")
		}

		synthOpts.Credentials = &scenario.Credentials{
			UsernameField: opts.UsernameField,
			PasswordField: opts.PasswordField,
			Username:      a.cfg.Site.Username,
			Password:      a.cfg.Site.Password,
		}
	}

	sc, err := synthesizeFn(calls, synthOpts)
	if err != nil {
		return fmt.Errorf("failed to synthesize scenario: %w", err)
	}

	if err := writeScenarioFn(opts.Output, sc); err != nil {
		return fmt.Errorf("failed to write scenario: %w", err)
	}

	a.logger.Info("scenario written", "output", opts.Output, "target", sc.TargetBaseURL, "steps", len(sc.Steps))
	return nil
}

func newAggregateCmd(a *app) *cobra.Command {
	var opts cli.AggregateOptions

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Build a latency aggregate report from recorded calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			calls, err := readCallsFn(opts.Input, a.logger)
			if err != nil {
				return fmt.Errorf("failed to read recorded calls: %w", err)
			}

			rep, err := buildAggregateFn(calls, opts.KeyPrefix)
			if err != nil {
				return fmt.Errorf("failed to build aggregate: %w", err)
			}

			if err := writeAggregateFn(opts.Output, rep); err != nil {
				return fmt.Errorf("failed to write aggregate: %w", err)
			}

			a.logger.Info("aggregate written", "output", opts.Output, "summaries", len(rep.Aggregate.Summaries))
			return nil
		},
	}

	opts.Bind(cmd.Flags(), a.cfg)
	return cmd
}

func newScoreCmd(a *app) *cobra.Command {
	var opts cli.ScoreOptions

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a candidate aggregate against the baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}

			policy, err := a.resolvePolicy(&opts, cmd.Flags().Changed)
			if err != nil {
				return err
			}

			return a.runScore(cmd, &opts, policy)
		},
	}

	opts.Bind(cmd.Flags(), a.cfg)
	return cmd
}

// resolvePolicy layers the policy: environment, then the policy file, then
// flags given explicitly on the command line.
func (a *app) resolvePolicy(opts *cli.ScoreOptions, changed func(string) bool) (scoring.Policy, error) {
	policy := a.cfg.Policy()

	if opts.Policy != "" {
		var err error
		policy, err = config.LoadPolicy(opts.Policy, policy)
		if err != nil {
			return scoring.Policy{}, err
		}
	}

	if opts.Policy == "" || changed("mode") {
		policy.Mode = scoring.Mode(opts.Mode)
	}

	if opts.Policy == "" || changed("penalty-factor") {
		policy.PenaltyFactor = opts.PenaltyFactor
	}

	if opts.Policy == "" || changed("threshold") {
		policy.Threshold = opts.Threshold
	}

	return policy, nil
}

func (a *app) runScore(cmd *cobra.Command, opts *cli.ScoreOptions, policy scoring.Policy) error {
	scorer, err := scoring.New(policy)
	if err != nil {
		return err
	}

	res, err := scorer.Score(aggregate.File("baseline", opts.Baseline), aggregate.File("candidate", opts.Candidate))
	if err != nil {
		return fmt.Errorf("scoring failed: %w", err)
	}

	if res.Fallback {
		a.logger.Warn("scoring fell back to zero", "mode", res.Mode, "error", res.Err)
	}

	now := nowFn()
	art := artifact.FromResult(res, now)
	outcome := gate.Decide(res.Score, policy.Threshold)

	var page []byte
	if opts.HTMLReport != "" {
		page, err = generateHTMLFn(report.BuildReportData(res, outcome, now), opts.HTMLReport)
		if err != nil {
			return fmt.Errorf("failed to generate HTML report: %w", err)
		}
		a.logger.Info("HTML report written", "output", opts.HTMLReport)
	}

	if opts.MetricsFile != "" {
		rec := metrics.NewRecorder()
		rec.ObserveResult(res)
		rec.ObserveGate(outcome)

		if err := rec.WriteTextfile(opts.MetricsFile); err != nil {
			return err
		}
	}

	// The artifact goes last so a failed run never leaves a score for the gate.
	if err := writeArtifactFn(opts.Output, art); err != nil {
		return fmt.Errorf("failed to write score artifact: %w", err)
	}
	a.logger.Info("score artifact written", "output", opts.Output, "run_id", art.RunID, "score", res.Score)

	bundle := &publish.Bundle{
		Artifact:   art,
		Result:     res,
		Outcome:    outcome,
		HTMLReport: page,
		Labels:     opts.Labels,
	}

	for _, target := range opts.Publish {
		if err := a.publish(cmd, target, bundle); err != nil {
			a.logger.Warn("publish failed", "target", target, "error", err)
		}
	}

	if opts.JSON {
		return printJSON(res, art, outcome)
	}

	fmt.Fprint(stdout, report.FormatText(res, !a.global.NoColor))
	return nil
}

func (a *app) publish(cmd *cobra.Command, target string, b *publish.Bundle) error {
	p, err := newPublisherFn(cmd.Context(), target, a.cfg)
	if err != nil {
		return err
	}

	location, err := p.Publish(cmd.Context(), b)
	if err != nil {
		return err
	}

	a.logger.Info("run published", "target", target, "location", location)
	return nil
}

func printJSON(res *scoring.Result, art *artifact.Artifact, outcome models.GateOutcome) error {
	out := map[string]any{
		"result":   res,
		"artifact": art,
		"gate":     outcome,
	}

	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return fmt.Errorf("encoding JSON: %w", err)
	}

	return nil
}

func newGateCmd(a *app) *cobra.Command {
	var opts cli.GateOptions

	cmd := &cobra.Command{
		Use:   "gate",
		Short: "Allow or block the change based on the stored score",
		RunE: func(cmd *cobra.Command, args []string) error {
			art, err := readArtifactFn(opts.Score)
			if err != nil {
				return fmt.Errorf("failed to read score: %w", err)
			}

			if art.Error != "" {
				a.logger.Warn("score came from a failed scoring run", "error", art.Error)
			}

			threshold := opts.Threshold
			if art.Threshold != nil && !cmd.Flags().Changed("threshold") {
				threshold = *art.Threshold
			}

			score, _ := art.Score()
			outcome := gate.Decide(score, threshold)
			fmt.Fprint(stdout, report.FormatGate(outcome, !a.global.NoColor))

			if !outcome.Allowed {
				return errBlocked
			}
			return nil
		},
	}

	opts.Bind(cmd.Flags(), a.cfg)
	return cmd
}
