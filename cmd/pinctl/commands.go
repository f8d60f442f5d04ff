// cmd/pinctl/commands.go
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Corphon/DragonSwordMap/internal/auth"
	"github.com/Corphon/DragonSwordMap/internal/config"
	apperrors "github.com/Corphon/DragonSwordMap/internal/errors"
	"github.com/Corphon/DragonSwordMap/internal/models"
	"github.com/Corphon/DragonSwordMap/internal/pincsv"
	"github.com/Corphon/DragonSwordMap/internal/services"
	"github.com/Corphon/DragonSwordMap/internal/storage"
	"github.com/Corphon/DragonSwordMap/internal/utils"
)

// options 全局参数，未指定时使用环境变量中的配置
type options struct {
	dataDir  string
	backend  string
	profile  string
	seedURL  string
	now      func() time.Time
	logLevel string
}

// env 一次命令执行期间打开的存储和服务
type env struct {
	cfg   *config.Config
	store storage.KeyValueStore
	pins  *services.PinService
}

func (o *options) open() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.backend != "" {
		cfg.StorageBackend = o.backend
	}
	if o.profile != "" {
		cfg.Profile = o.profile
	}
	if o.seedURL != "" {
		cfg.SeedURL = o.seedURL
	}
	utils.GetLogger().SetLogLevel(utils.ParseLogLevel(o.logLevel))

	store, err := storage.Open(storage.Backend(cfg.StorageBackend), cfg.DataDir, cfg.Profile)
	if err != nil {
		return nil, err
	}
	pins := services.NewPinService(store, services.WithPinClock(o.now))
	if err := pins.Hydrate(); err != nil {
		store.Close()
		return nil, err
	}
	return &env{cfg: cfg, store: store, pins: pins}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

// RootCommand creates the pinctl command tree
func RootCommand() *cobra.Command {
	opts := &options{now: time.Now}
	return newRootCommand(opts)
}

func newRootCommand(opts *options) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pinctl",
		Short:         "Dragon Sword map pin maintenance",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.dataDir, "data-dir", "", "data directory (default: $DATA_DIR)")
	flags.StringVar(&opts.backend, "backend", "", "storage backend: file, sqlite or memory (default: $STORAGE_BACKEND)")
	flags.StringVar(&opts.profile, "profile", "", "storage profile (default: $PROFILE)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")

	rootCmd.AddCommand(
		listCommand(opts),
		exportCommand(opts),
		importCommand(opts),
		syncCommand(opts),
		resetCommand(opts),
		hashPasswordCommand(),
	)
	return rootCmd
}

func listCommand(opts *options) *cobra.Command {
	var (
		types []string
		admin bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored pins",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseTypes(types)
			if err != nil {
				return err
			}
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			view := models.ModeUser
			if admin {
				view = models.ModeAdmin
			}
			pins := e.pins.Query(filter, view)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTYPE\tX\tY\tEXPLORED\tCOMMENT")
			for _, p := range pins {
				fmt.Fprintf(w, "%s\t%s\t%.2f\t%.2f\t%t\t%s\n", p.ID, p.Type, p.X, p.Y, p.Explored, p.Comment)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d pins\n", len(pins))
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "category codes to include")
	cmd.Flags().BoolVar(&admin, "admin", false, "show pins as the admin view does (explored state masked)")
	return cmd
}

func exportCommand(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export pins with explored state as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			pins := e.pins.Snapshot()
			if len(pins) == 0 {
				return fmt.Errorf("%s", services.MsgExportEmpty)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" {
				if output == "auto" {
					output = pincsv.ExportFilename(opts.now())
				}
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			if err := pincsv.Encode(w, pins); err != nil {
				return err
			}
			if output != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d pins written to %s\n", len(pins), output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", `output file, "auto" for a timestamped name (default: stdout)`)
	return cmd
}

func importCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Append pins from a CSV file, skipping duplicates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			records, rowErrs, err := pincsv.Decode(f)
			if err != nil {
				return err
			}
			for _, re := range rowErrs {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped %s\n", re.Error())
			}

			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			res, err := e.pins.Import(records)
			if apperrors.IsNothingToImportError(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "nothing to import (%d duplicates)\n", res.Duplicates)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d pins, %d duplicates, %d bad rows\n",
				res.Imported, res.Duplicates, len(rowErrs))
			return nil
		},
	}
}

func syncCommand(opts *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Merge the published seed pins into the local store",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			seed := services.NewSeedService(services.SeedConfig{
				URL:     e.cfg.SeedURL,
				Timeout: timeout,
			}, nil)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			res, err := seed.Fetch(ctx)
			if err != nil {
				return err
			}
			stats, err := e.pins.MergeRemote(services.SeedPins(res.Records, opts.now()))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "remote %d, added %d, shadowed %d, kept %d\n",
				stats.Remote, stats.Added, stats.Shadowed, stats.Kept)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.seedURL, "url", "", "seed CSV URL (default: $SEED_URL)")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "request timeout")
	return cmd
}

func resetCommand(opts *options) *cobra.Command {
	var (
		force bool
		types []string
	)
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Apply the weekly explored reset",
		Long: `Apply the weekly explored reset. Without --force the reset only runs
when the last recorded reset is older than the most recent Monday 09:00.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.open()
			if err != nil {
				return err
			}
			defer e.Close()

			if force {
				filter, err := parseTypes(types)
				if err != nil {
					return err
				}
				if len(filter) == 0 {
					filter = models.WeeklyResetTypes
				}
				n, err := e.pins.ResetExplored(filter)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared %d pins\n", n)
				return nil
			}

			res, err := services.NewResetService(e.store, e.pins, e.cfg.Location, nil).Apply(opts.now())
			if err != nil {
				return err
			}
			if !res.Applied {
				fmt.Fprintf(cmd.OutOrStdout(), "already reset since %s\n", res.Boundary.Format(time.RFC3339))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cleared %d pins (boundary %s)\n", res.Cleared, res.Boundary.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "clear explored state regardless of the last reset")
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "categories to clear with --force (default: weekly categories)")
	return cmd
}

func hashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash usable as ADMIN_HASH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

func parseTypes(raw []string) ([]models.PinType, error) {
	var out []models.PinType
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		t, ok := models.ParsePinType(s)
		if !ok {
			return nil, fmt.Errorf("unknown category %q", s)
		}
		out = append(out, t)
	}
	return out, nil
}
