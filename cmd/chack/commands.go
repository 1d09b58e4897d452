package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/MaanVader/Chack/config"
	"github.com/MaanVader/Chack/domain/entity/assessment"
	"github.com/MaanVader/Chack/handler"
	"github.com/MaanVader/Chack/handler/platforms"
	"github.com/MaanVader/Chack/infrastructure/database"
	"github.com/MaanVader/Chack/internal/client"
	"github.com/MaanVader/Chack/internal/scan"
	"github.com/MaanVader/Chack/observability"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assessments API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := startApplication(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if addr == "" {
				addr = app.cfg.HTTP.Addr
			}

			adapter := platforms.NewHTTPAdapter(app.factory.CreateHTTP())

			extra := map[string]http.Handler{}
			if app.cfg.Adapters.Metrics == config.MetricsPrometheus {
				extra["/metrics"] = promhttp.Handler()
			}

			return adapter.Serve(ctx, addr, extra)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to HTTP_ADDR)")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume scan requests from RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := startApplication(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.cfg.Adapters.Queue != config.QueueRabbitMQ {
				return fmt.Errorf("worker requires ADAPTER_QUEUE=%s, got %q", config.QueueRabbitMQ, app.cfg.Adapters.Queue)
			}

			consumer := platforms.NewRabbitMQConsumer(app.factory.CreateRabbitMQ(), &app.cfg.Queue.RabbitMQ, app.cfg.Queue.ScanQueue)
			return consumer.Run(ctx)
		},
	}
}

func newLambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Run as an AWS Lambda function fed by SQS",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := startApplication(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if handler.DetectPlatform() != handler.PlatformLambda {
				app.logger.Warn(cmd.Context(), "Lambda runtime not detected", observability.Fields{"platform": handler.DetectPlatform()})
			}

			platforms.NewLambdaAdapter(app.factory.CreateLambda(), &app.cfg.Lambda).Start()
			return nil
		},
	}
}

type watchOptions struct {
	apiURL string
	userID string
}

func (o *watchOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.apiURL, "api", "", "observe through the HTTP API at this base URL instead of the store")
	cmd.Flags().StringVar(&o.userID, "user", "", "user id recorded on the scan findings")
}

func newWatchCmd() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch <assessment-id>",
		Short: "Observe an assessment and trigger its scan once the delay has passed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			app, err := startApplication(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			return watch(ctx, cmd.OutOrStdout(), app, opts, args[0])
		},
	}

	opts.bind(cmd)
	return cmd
}

func watch(ctx context.Context, out io.Writer, app *Application, opts watchOptions, assessmentID string) error {
	observer := scan.NewObserver(app.store, app.dispatcher, app.schedulerOptions())
	if opts.apiURL != "" {
		c := client.New(opts.apiURL, app.cfg.HTTP, app.cfg.Scan.PollInterval, app.obs.Logger("client"))
		observer = scan.NewObserver(c, c, app.schedulerOptions())
	}

	userID := opts.userID
	if userID == "" {
		userID = "cli"
	}

	final, err := observer.Watch(ctx, assessmentID, userID, func(snap assessment.Assessment) {
		fmt.Fprintf(out, "%s  %s  %s\n", snap.UpdatedAt.Format("15:04:05"), snap.ID, snap.Status)
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(final)
}

func newCreateCmd() *cobra.Command {
	var (
		params      assessment.CreateParams
		targetType  string
		kind        string
		targetURL   string
		description string
		follow      bool
		opts        watchOptions
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a running assessment",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			params.Type = assessment.Type(kind)
			params.TargetType = assessment.TargetType(targetType)
			if targetURL != "" {
				params.TargetURL = &targetURL
			}
			if description != "" {
				params.Description = &description
			}
			if params.CreatedByUserID == "" {
				params.CreatedByUserID = opts.userID
			}

			app, err := startApplication(ctx)
			if err != nil {
				return err
			}
			defer app.Close()

			id, err := createAssessment(ctx, app, opts, params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)

			if !follow {
				return nil
			}
			return watch(ctx, cmd.OutOrStdout(), app, opts, id)
		},
	}

	cmd.Flags().StringVar(&params.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&params.Name, "name", "", "assessment name")
	cmd.Flags().StringVar(&description, "description", "", "assessment description")
	cmd.Flags().StringVar(&kind, "type", string(assessment.TypeBlackbox), "blackbox or whitebox")
	cmd.Flags().StringVar(&targetType, "target-type", string(assessment.TargetWebApp), "web_app, api, mobile or network")
	cmd.Flags().StringVar(&targetURL, "target-url", "", "target url")
	cmd.Flags().BoolVar(&follow, "watch", false, "watch the assessment after creating it")
	opts.bind(cmd)
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func createAssessment(ctx context.Context, app *Application, opts watchOptions, params assessment.CreateParams) (string, error) {
	if opts.apiURL != "" {
		return client.New(opts.apiURL, app.cfg.HTTP, app.cfg.Scan.PollInterval, app.obs.Logger("client")).Create(ctx, params)
	}

	a, err := assessment.New(params, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if err := app.store.Create(ctx, a); err != nil {
		return "", err
	}
	return a.ID, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the postgres schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfiguration()
			if err != nil {
				return err
			}
			if cfg.Adapters.Store != config.StorePostgres {
				return errors.New("migrate requires ADAPTER_STORE=postgres")
			}

			obs, err := initializeObservability(ctx, cfg)
			if err != nil {
				return err
			}
			defer obs.Close()

			db, err := openDatabase(ctx, cfg, obs)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := database.Migrate(ctx, db); err != nil {
				return err
			}

			obs.Logger("main").Info(ctx, "Schema applied", observability.Fields{"database": cfg.Database.Database})
			return nil
		},
	}
}
