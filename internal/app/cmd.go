package app

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hitoshi/memberhub/internal/worker/reconcile"
)

// Run はコマンドライン引数を解釈して該当するサブコマンドを実行する。
// 引数が空の場合は serve として起動する。ログは w に出力する。
func Run(w io.Writer, args []string) error {
	root := NewRootCommand(w)
	root.SetArgs(args)
	return root.Execute()
}

// NewRootCommand は memberhub のコマンドツリーを生成する。
func NewRootCommand(w io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "memberhub",
		Short:         "Member directory API with subscriptions, profiles and posts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), w)
		},
	}
	root.SetOut(w)
	root.SetErr(w)

	root.AddCommand(
		newServeCommand(w),
		newReconcileCommand(w),
		newMigrateCommand(w),
		newHealthcheckCommand(),
	)
	return root
}

func newServeCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), w)
		},
	}
}

func newReconcileCommand(w io.Writer) *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Remove dangling and duplicate subscriptions",
		Long: "Remove dangling and duplicate subscriptions once and exit.\n" +
			"With --interval the job repeats until SIGINT/SIGTERM.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := Init(w)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			rt, err := Build(ctx, cfg, l)
			if err != nil {
				return err
			}
			defer rt.Close()

			if interval > 0 {
				reconcile.Loop(ctx, rt.NewReconcileJob(), interval, rt.Logger)
				return nil
			}
			return runReconcile(ctx, rt, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 0, "repeat every interval instead of running once")
	return cmd
}

func newMigrateCommand(w io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations (postgres only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := Init(w)
			if err != nil {
				return err
			}
			return runMigrate(cfg, l)
		},
	}
}

func newHealthcheckCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check the local /health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = os.Getenv("SERVER_PORT")
			}
			if port == "" {
				port = "8080"
			}
			return runHealthcheck(cmd.Context(), port)
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "server port (default $SERVER_PORT or 8080)")
	return cmd
}

func serve(ctx context.Context, w io.Writer) error {
	cfg, l, err := Init(w)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(ctx)
	defer stop()

	rt, err := Build(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer rt.Close()
	return runServe(ctx, rt)
}

// signalContext は SIGINT/SIGTERM でキャンセルされるコンテキストを返す。
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
