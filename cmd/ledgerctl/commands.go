package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"modelshoot/internal/adapter/repo"
	"modelshoot/internal/app"
	"modelshoot/internal/domain"
	"modelshoot/internal/ledger"
)

type servicesFactory func(ctx context.Context) (*app.Services, error)

// operatorActor is recorded on entries written from the CLI unless --actor
// names a person.
const operatorActor = "ledgerctl"

func newRootCmd(build servicesFactory, out io.Writer) *cobra.Command {
	var configFile string
	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tools for the credit ledger and job queue",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("CONFIG_FILE", configFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")
	root.SetOut(out)

	run := func(fn func(ctx context.Context, s *app.Services) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			s, err := build(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			v, err := fn(cmd.Context(), s)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		}
	}

	root.AddCommand(
		adjustCmd(run),
		reconcileCmd(run),
		recountCmd(run),
		requeueCmd(run),
		openAccountCmd(run),
		purchaseCmd(run),
		migrateCmd(run),
	)
	return root
}

type runner func(fn func(ctx context.Context, s *app.Services) (any, error)) func(*cobra.Command, []string) error

func adjustCmd(run runner) *cobra.Command {
	var (
		amount   int64
		reason   string
		actor    string
		key      string
		overdraw bool
	)
	cmd := &cobra.Command{
		Use:   "adjust <account-id>",
		Short: "Credit or debit an account with an audited reason",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return run(func(ctx context.Context, s *app.Services) (any, error) {
			return s.Ledger.AdminAdjust(ctx, ledger.AdjustRequest{
				AccountID:      args[0],
				Amount:         amount,
				Reason:         reason,
				ActorID:        actor,
				AllowOverdraw:  overdraw,
				IdempotencyKey: key,
			})
		})(c, args)
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "signed amount in minor units")
	cmd.Flags().StringVar(&reason, "reason", "", "audit reason (required)")
	cmd.Flags().StringVar(&actor, "actor", operatorActor, "operator recorded on the entry")
	cmd.Flags().StringVar(&key, "key", "", "optional idempotency key; a replay returns the original entry")
	cmd.Flags().BoolVar(&overdraw, "allow-overdraw", false, "permit a debit below zero")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func reconcileCmd(run runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile <account-id>",
		Short: "Compare an account balance with the sum of its entries",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return run(func(ctx context.Context, s *app.Services) (any, error) {
			report, err := s.Ledger.Reconcile(ctx, args[0])
			if err != nil {
				return nil, err
			}
			if !report.Consistent {
				fmt.Fprintf(c.ErrOrStderr(), "account %s is inconsistent\n", args[0])
			}
			return report, nil
		})(c, args)
	}
	return cmd
}

func recountCmd(run runner) *cobra.Command {
	var repair bool
	cmd := &cobra.Command{
		Use:   "recount <batch-id>",
		Short: "Recount batch counters from member jobs",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return run(func(ctx context.Context, s *app.Services) (any, error) {
			return s.Scheduler.ReconcileBatch(ctx, args[0], repair)
		})(c, args)
	}
	cmd.Flags().BoolVar(&repair, "repair", false, "overwrite counters with the recount")
	return cmd
}

func requeueCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue-expired",
		Short: "Return jobs with expired leases to the queue",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, s *app.Services) (any, error) {
			n, err := s.Scheduler.RequeueExpired(ctx)
			if err != nil {
				return nil, err
			}
			return map[string]int{"requeued": n}, nil
		}),
	}
}

func openAccountCmd(run runner) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "open-account <user-id>",
		Short: "Create a zero-balance account",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return run(func(ctx context.Context, s *app.Services) (any, error) {
			return s.Ledger.OpenAccount(ctx, args[0], domain.AccountRole(role))
		})(c, args)
	}
	cmd.Flags().StringVar(&role, "role", string(domain.AccountRolePayer), "payer or payee")
	return cmd
}

func purchaseCmd(run runner) *cobra.Command {
	var (
		amount int64
		ref    string
		actor  string
	)
	cmd := &cobra.Command{
		Use:   "purchase <account-id>",
		Short: "Record a credit purchase confirmed by the payment provider",
		Args:  cobra.ExactArgs(1),
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return run(func(ctx context.Context, s *app.Services) (any, error) {
			return s.Ledger.RecordPurchase(ctx, args[0], amount, ref, actor)
		})(c, args)
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "credits purchased")
	cmd.Flags().StringVar(&ref, "ref", "", "payment reference")
	cmd.Flags().StringVar(&actor, "actor", operatorActor, "operator recorded on the entry")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func migrateCmd(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the Postgres schema",
		Args:  cobra.NoArgs,
		RunE: run(func(ctx context.Context, s *app.Services) (any, error) {
			sql := s.SQL()
			if sql == nil {
				return nil, errors.New("migrate requires STORE_DRIVER=postgres")
			}
			if err := repo.Migrate(ctx, sql); err != nil {
				return nil, err
			}
			return map[string]string{"status": "migrated"}, nil
		}),
	}
}
