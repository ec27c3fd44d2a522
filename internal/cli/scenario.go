package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/CedrosPay/paysim/internal/callbacks"
	"github.com/CedrosPay/paysim/internal/config"
	"github.com/CedrosPay/paysim/internal/logger"
	"github.com/CedrosPay/paysim/internal/random"
	"github.com/CedrosPay/paysim/internal/simulator"
	"github.com/CedrosPay/paysim/pkg/paysim"
)

type scenarioOptions struct {
	id          string
	amount      string
	currency    string
	description string
	email       string
	outcome     string
	successRate float64
	successURL  string
	cancelURL   string
	webhookURL  string
	seed        uint64
}

// scenarioReport is the JSON document printed by the scenario command.
type scenarioReport struct {
	Initiation simulator.InitiationResult `json:"initiation"`
	Resolution simulator.Transaction      `json:"resolution"`
	Status     simulator.StatusResult     `json:"status"`
	Webhooks   []json.RawMessage          `json:"webhooks"`
}

func newScenarioCommand(root *rootOptions) *cobra.Command {
	opts := &scenarioOptions{}

	cmd := &cobra.Command{
		Use:   "scenario",
		Short: "Initiate, resolve and query one transaction",
		Long: `Runs a single payment through the simulator: initiate, then resolve with the
chosen outcome (approve, reject, rate or cancel), then query its status.
Any webhook produced by the resolution is drained from the outbox and
included in the report.`,
		Example: `  paysim scenario --id TXN-1 --amount 10000 --currency XOF --outcome approve
  paysim scenario --id TXN-2 --amount 250.50 --outcome rate --success-rate 0.3 --seed 42`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return runScenario(cmd, cfg, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.id, "id", "", "Transaction reference")
	f.StringVar(&opts.amount, "amount", "", "Payment amount, must be positive")
	f.StringVar(&opts.currency, "currency", "", "Currency code (config default when empty)")
	f.StringVar(&opts.description, "description", "", "Payment description")
	f.StringVar(&opts.email, "email", "", "Customer email")
	f.StringVar(&opts.outcome, "outcome", "rate", "approve, reject, rate or cancel")
	f.Float64Var(&opts.successRate, "success-rate", -1, "Override the configured success rate (0..1)")
	f.StringVar(&opts.successURL, "success-url", "", "Redirect after a successful payment")
	f.StringVar(&opts.cancelURL, "cancel-url", "", "Redirect after an abandoned payment")
	f.StringVar(&opts.webhookURL, "webhook-url", "", "Webhook destination for the resolution event")
	f.Uint64Var(&opts.seed, "seed", 0, "Seed for reproducible draws (0 uses crypto randomness)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func runScenario(cmd *cobra.Command, cfg *config.Config, opts *scenarioOptions) error {
	ctx := cmd.Context()

	cancel := strings.EqualFold(strings.TrimSpace(opts.outcome), "cancel")
	var outcome simulator.Outcome
	if !cancel {
		var ok bool
		outcome, ok = simulator.ParseOutcome(strings.ToLower(strings.TrimSpace(opts.outcome)))
		if !ok {
			return fmt.Errorf("unknown outcome %q (want approve, reject, rate or cancel)", opts.outcome)
		}
	}

	amount, err := decimal.NewFromString(opts.amount)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", opts.amount, err)
	}

	appOpts := []paysim.Option{
		// Log lines go to stderr so stdout stays a single JSON document.
		paysim.WithLogger(logger.New(logger.Config{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			Service:     "paysim",
			Version:     paysim.Version,
			Environment: cfg.Logging.Environment,
			Output:      cmd.ErrOrStderr(),
		})),
	}
	if opts.seed != 0 {
		appOpts = append(appOpts, paysim.WithRandom(random.Seeded(opts.seed)))
	}

	app, err := paysim.New(cfg, appOpts...)
	if err != nil {
		return err
	}
	defer app.Close()

	if opts.successRate >= 0 {
		app.Simulator.SetSuccessRate(opts.successRate)
	}

	report := scenarioReport{Webhooks: []json.RawMessage{}}

	report.Initiation, err = app.Simulator.Initiate(ctx, simulator.PaymentData{
		ID:          opts.id,
		Amount:      amount,
		Currency:    opts.currency,
		Description: opts.description,
		Customer:    simulator.Customer{Email: opts.email},
	}, opts.successURL, opts.cancelURL, opts.webhookURL)
	if err != nil {
		return fmt.Errorf("initiate: %w", err)
	}

	reference := report.Initiation.Reference
	if cancel {
		report.Resolution, err = app.Simulator.Cancel(ctx, reference)
	} else {
		report.Resolution, err = app.Simulator.Resolve(ctx, reference, outcome)
	}
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	report.Status, err = app.Simulator.GetStatus(ctx, reference)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	var deliveries bytes.Buffer
	if _, err := app.NewDispatcher(callbacks.WriterDeliverer(&deliveries)).Drain(ctx); err != nil {
		return fmt.Errorf("drain webhooks: %w", err)
	}
	scanner := bufio.NewScanner(&deliveries)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		report.Webhooks = append(report.Webhooks, json.RawMessage(line))
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read webhooks: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
