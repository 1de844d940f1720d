// Command jobboardctl runs operator tasks against the job board database.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/justsurfingit/campus-job-board/internal/auth"
	"github.com/justsurfingit/campus-job-board/internal/config"
	"github.com/justsurfingit/campus-job-board/internal/database"
	"github.com/justsurfingit/campus-job-board/internal/logger"
	"github.com/justsurfingit/campus-job-board/internal/quota"
	"github.com/justsurfingit/campus-job-board/internal/rematch"
	"github.com/justsurfingit/campus-job-board/internal/services"
)

type env struct {
	cfg *config.Config
	log *zap.SugaredLogger
	db  *gorm.DB
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	e := &env{}
	root := &cobra.Command{
		Use:           "jobboardctl",
		Short:         "Operator tools for the campus job board",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			e.cfg = cfg
			e.log, err = logger.New(cfg.Log.Level, cfg.Log.Development)
			return err
		},
	}

	root.AddCommand(migrateCmd(e), rematchCmd(e), quotaCmd(e), gmailLoginCmd(e))
	return root
}

func (e *env) connect() error {
	if e.db != nil {
		return nil
	}
	db, err := database.Connect(e.cfg.Database.DSN, e.cfg.Database.LogLevel, e.log)
	if err != nil {
		return err
	}
	e.db = db
	return nil
}

func migrateCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Connect migrates
			if err := e.connect(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Schema is up to date")
			return nil
		},
	}
}

func rematchCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rematch",
		Short: "Recompute match records synchronously",
	}

	trigger := func() (*rematch.Trigger, error) {
		if err := e.connect(); err != nil {
			return nil, err
		}
		matches := services.NewMatchService(e.db, e.cfg.Matching.MinScore, e.log)
		return rematch.New(matches, rematch.Options{Workers: 1, QueueSize: 1}, e.log), nil
	}
	report := func(cmd *cobra.Command, res rematch.Result) {
		fmt.Fprintf(cmd.OutOrStdout(), "scored=%d skipped=%d failed=%d\n", res.Scored, res.Skipped, res.Failed)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "student <id>",
		Short: "Rescore one student against every open job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			t, err := trigger()
			if err != nil {
				return err
			}
			res, err := t.RecalculateForStudent(cmd.Context(), id)
			if err != nil {
				return err
			}
			report(cmd, res)
			return nil
		},
	}, &cobra.Command{
		Use:   "job <id>",
		Short: "Rescore every candidate against one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			t, err := trigger()
			if err != nil {
				return err
			}
			res, err := t.RecalculateForJob(cmd.Context(), id)
			if err != nil {
				return err
			}
			report(cmd, res)
			return nil
		},
	}, &cobra.Command{
		Use:   "all",
		Short: "Rescore every open job",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := trigger()
			if err != nil {
				return err
			}
			res, err := t.RecalculateAll(cmd.Context())
			if err != nil {
				return err
			}
			report(cmd, res)
			return nil
		},
	})
	return cmd
}

func quotaCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "quota <studentID>",
		Short: "Show today's application email count for a student",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := e.connect(); err != nil {
				return err
			}
			loc, err := e.cfg.Quota.Location()
			if err != nil {
				return err
			}
			res, err := quota.NewTracker(e.db, e.cfg.Quota.DailyLimit, loc).Status(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "student %d on %s: %d of %d sent, %d remaining\n",
				id, res.Day, res.CurrentCount, res.Limit, res.Remaining())
			return nil
		},
	}
}

func gmailLoginCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "gmail-login",
		Short: "Authorize the Gmail account application emails are sent from",
		RunE: func(cmd *cobra.Command, args []string) error {
			return auth.Login(cmd.Context(), e.cfg.Gmail.CredentialsFile, e.cfg.Gmail.TokenFile, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func parseID(s string) (uint, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return uint(v), nil
}
