package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ledgerline/ledgerline/internal/app"
	"github.com/ledgerline/ledgerline/internal/banking"
	"github.com/ledgerline/ledgerline/internal/importer"
	"github.com/ledgerline/ledgerline/internal/ledger"
	"github.com/ledgerline/ledgerline/internal/platform/db"
)

// StatementImporter stores parsed bank statement lines.
type StatementImporter interface {
	ImportStatement(ctx context.Context, bankAccountID int64, lines []ledger.BankTransaction, closing *decimal.Decimal, actor string) (banking.ImportResult, error)
}

func openImporter(ctx context.Context, cfg *app.Config) (StatementImporter, func(), error) {
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	logger := app.NewLogger(cfg)
	// No Redis: imports skip the cache bump and rely on row locks.
	services, err := app.BuildServices(cfg, logger, pool, nil, nil)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return services.Banking, pool.Close, nil
}

func newImportCommand(env Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load external data into the book",
	}
	cmd.AddCommand(newImportStatementCommand(env))
	return cmd
}

func newImportStatementCommand(env Env) *cobra.Command {
	var (
		accountID int64
		format    string
		closing   string
		actor     string
		dryRun    bool
	)

	cmd := &cobra.Command{
		Use:   "statement <file.csv>",
		Short: "Import a bank statement CSV for a bank account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parser := importer.DefaultRegistry().Get(format)
			if parser == nil {
				return fmt.Errorf("unknown statement format %q", format)
			}
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening statement: %w", err)
			}
			defer f.Close()

			lines, err := parser.Parse(f)
			if err != nil {
				return fmt.Errorf("parsing %s statement: %w", parser.Format(), err)
			}
			out := cmd.OutOrStdout()
			if dryRun {
				for _, l := range lines {
					fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", l.Date.Format("2006-01-02"), l.Amount.StringFixed(2), l.Reference, l.Description)
				}
				fmt.Fprintf(out, "%d lines parsed (dry run)\n", len(lines))
				return nil
			}

			var closingBalance *decimal.Decimal
			if strings.TrimSpace(closing) != "" {
				v, err := decimal.NewFromString(closing)
				if err != nil {
					return fmt.Errorf("--closing %q: %w", closing, err)
				}
				closingBalance = &v
			}

			cfg, err := env.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			svc, release, err := env.OpenImporter(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("connecting: %w", err)
			}
			defer release()

			res, err := svc.ImportStatement(cmd.Context(), accountID, lines, closingBalance, actor)
			if err != nil {
				return err
			}
			slog.Default().Debug("statement imported", slog.Int64("bank_account_id", accountID), slog.Int("inserted", res.Inserted))
			fmt.Fprintf(out, "bank account %d: %d inserted, %d skipped\n", res.BankAccountID, res.Inserted, res.Skipped)
			return nil
		},
	}

	cmd.Flags().Int64Var(&accountID, "account", 0, "bank account id (required)")
	_ = cmd.MarkFlagRequired("account")
	cmd.Flags().StringVar(&format, "format", "generic", "statement format: "+strings.Join(importer.DefaultRegistry().Formats(), ", "))
	cmd.Flags().StringVar(&closing, "closing", "", "closing balance to record on the bank account")
	cmd.Flags().StringVar(&actor, "actor", "ledgerctl", "actor recorded in the audit log")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and print without writing")

	return cmd
}
