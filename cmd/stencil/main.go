package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/neurodesk/stencil/pkg/config"
	"github.com/neurodesk/stencil/pkg/engine"
	"github.com/neurodesk/stencil/pkg/fiberview"
	"github.com/neurodesk/stencil/pkg/template"
	"github.com/spf13/cobra"
)

var rootConfig string
var rootPath string
var verbose bool

var rootCmd = cobra.Command{
	Use:           "stencil",
	Short:         "Compile and render stencil templates",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			os.Setenv("STENCIL_VERBOSE", "1")
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}
	},
}

// loadConfig reads the configuration file and applies flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootConfig)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if rootPath != "" {
		cfg.Path = rootPath
	}
	return cfg, nil
}

func newEngine() (*config.Config, *engine.Engine, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	e, err := cfg.NewEngine()
	if err != nil {
		return nil, nil, err
	}
	return cfg, e, nil
}

var renderCmd = cobra.Command{
	Use:   "render [template]",
	Short: "Render a template to standard output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, e, err := newEngine()
		if err != nil {
			return err
		}
		data, err := renderData(cmd)
		if err != nil {
			return err
		}
		return e.RenderTo(cmd.Context(), cmd.OutOrStdout(), args[0], data)
	},
}

var compileCmd = cobra.Command{
	Use:   "compile [template]",
	Short: "Print the program generated for a template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, e, err := newEngine()
		if err != nil {
			return err
		}
		data, err := renderData(cmd)
		if err != nil {
			return err
		}
		if tree, _ := cmd.Flags().GetBool("tree"); tree {
			prog, err := e.CompileTree(args[0], data)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), template.Pretty(prog.Tree))
			return nil
		}
		prog, err := e.Compile(args[0], data)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), prog.Source)
		return nil
	},
}

var checkCmd = cobra.Command{
	Use:   "check [dir]",
	Short: "Compile every template and report errors",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			cfg.Path = args[0]
		}
		e, err := cfg.NewEngine()
		if err != nil {
			return err
		}
		failed, err := check(e, cfg.Templates, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d templates failed to compile", failed)
		}
		return nil
	},
}

var serveCmd = cobra.Command{
	Use:   "serve",
	Short: "Serve templates over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, e, err := newEngine()
		if err != nil {
			return err
		}
		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			cfg.Listen = addr
		}
		if watch, _ := cmd.Flags().GetBool("watch"); watch {
			cfg.Watch = true
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ext := ""
		if len(cfg.Templates) > 0 {
			ext = cfg.Templates[0]
		}
		views := fiberview.New(e, ext)
		if err := views.Load(); err != nil {
			slog.Warn("some templates do not compile", "error", err)
		}
		app := fiber.New(fiber.Config{Views: views, DisableStartupMessage: true})
		app.Get("/*", views.Handler())

		if cfg.Watch {
			go func() {
				if err := e.Watch(ctx, cfg.Templates...); err != nil {
					slog.Error("watching templates", "error", err)
				}
			}()
		}
		go func() {
			<-ctx.Done()
			if err := app.Shutdown(); err != nil {
				slog.Warn("shutting down", "error", err)
			}
		}()

		slog.Info("serving templates", "path", cfg.Path, "listen", cfg.Listen)
		return app.Listen(cfg.Listen)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfig, "config", config.DefaultFile, "Path to stencil configuration file")
	rootCmd.PersistentFlags().StringVar(&rootPath, "path", "", "Template root, overriding the configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	for _, c := range []*cobra.Command{&renderCmd, &compileCmd} {
		c.Flags().String("data", "", "Render data as a YAML or JSON file")
		c.Flags().StringArray("set", []string{}, "Set a data value as KEY=VALUE (repeatable)")
		rootCmd.AddCommand(c)
	}
	compileCmd.Flags().Bool("tree", false, "Print the content tree instead of the program")

	rootCmd.AddCommand(&checkCmd)

	serveCmd.Flags().String("listen", "", "Address to listen on")
	serveCmd.Flags().Bool("watch", false, "Invalidate templates when they change on disk")
	rootCmd.AddCommand(&serveCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var located template.Located
		if errors.As(err, &located) {
			file, line := located.Location()
			slog.Error("fatal", "file", file, "line", line, "error", err)
		} else {
			slog.Error("fatal", "error", err)
		}
		os.Exit(1)
	}
}
