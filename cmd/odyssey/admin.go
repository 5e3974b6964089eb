package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-ledger/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-ledger/internal/app"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		pool, err := db.New(cmd.Context(), cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.Migrate(cmd.Context(), pool); err != nil {
			return err
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
		return nil
	},
}

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:     "create",
	Short:   "Create a tenant owned by a user",
	Example: `  odyssey tenant create --name "Harbour Hotel" --type hotel --owner 12`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("name")
		typ, _ := cmd.Flags().GetString("type")
		owner, _ := cmd.Flags().GetInt64("owner")

		c, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()
		acc, err := cli.CreateTenant(cmd.Context(), c.Tenants, cli.TenantOptions{Name: name, Type: typ, OwnerID: owner})
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "tenant %d created (%s, owner %d)\n", acc.ID, acc.Type, acc.OwnerID)
		return nil
	},
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and trigger background jobs",
}

var jobsTriggerCmd = &cobra.Command{
	Use:   "trigger <task>",
	Short: "Enqueue a background task now",
	Example: `  odyssey jobs trigger ledger:sync --tenant 3 --since 2025-06-01
  odyssey jobs trigger idempotency:cleanup --retention 24h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.TriggerOptions{Name: args[0]}
		opts.TenantID, _ = cmd.Flags().GetInt64("tenant")
		opts.Retention, _ = cmd.Flags().GetDuration("retention")
		if raw, _ := cmd.Flags().GetString("since"); raw != "" {
			since, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return fmt.Errorf("invalid --since: %w", err)
			}
			opts.Since = &since
		}

		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		jc, err := cli.NewJobsCLI(cfg.RedisOptions().AsynqOpts())
		if err != nil {
			return err
		}
		defer func() { _ = jc.Close() }()
		info, err := jc.Trigger(cmd.Context(), opts)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return nil
	},
}

var jobsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print queue statistics as JSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := app.LoadConfig()
		if err != nil {
			return err
		}
		jc, err := cli.NewJobsCLI(cfg.RedisOptions().AsynqOpts())
		if err != nil {
			return err
		}
		defer func() { _ = jc.Close() }()
		stats, err := jc.InspectQueues(cmd.Context())
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check ledger and stock integrity",
	Long: `Verify checks that each tenant's trial balance nets to zero and that
every item's stock ledger chain is consistent. Exit status is 0 when clean,
10 when violations were found and 1 on operational errors.`,
	Example: `  odyssey verify --tenant 1 --tenant 2 --json`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		tenants, _ := cmd.Flags().GetInt64Slice("tenant")
		asJSON, _ := cmd.Flags().GetBool("json")

		c, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		if len(tenants) == 0 {
			tenants = c.Config.WorkerTenants
		}
		code := cli.NewVerifyCLI(c.Processor(nil)).VerifyCommand(cmd.Context(), cli.VerifyOptions{
			TenantIDs:  tenants,
			JSONOutput: asJSON,
			Stdout:     cmd.OutOrStdout(),
			Stderr:     cmd.ErrOrStderr(),
		})
		c.Close()
		if code != 0 {
			os.Exit(code)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, tenantCmd, jobsCmd, verifyCmd)
	tenantCmd.AddCommand(tenantCreateCmd)
	jobsCmd.AddCommand(jobsTriggerCmd, jobsStatsCmd)

	tenantCreateCmd.Flags().String("name", "", "Tenant display name")
	tenantCreateCmd.Flags().String("type", "business", "Tenant type (personal, family, business, group, hotel)")
	tenantCreateCmd.Flags().Int64("owner", 0, "Owning user id")

	jobsTriggerCmd.Flags().Int64("tenant", 0, "Tenant id (required except for idempotency:cleanup)")
	jobsTriggerCmd.Flags().String("since", "", "Lower bound for ledger:sync (YYYY-MM-DD)")
	jobsTriggerCmd.Flags().Duration("retention", 0, "Retention for idempotency:cleanup, default from config")

	verifyCmd.Flags().Int64Slice("tenant", nil, "Tenant id to verify, repeatable (default WORKER_TENANTS)")
	verifyCmd.Flags().Bool("json", false, "Emit JSON summary")
}
