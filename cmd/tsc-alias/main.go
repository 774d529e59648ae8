package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	tscalias "github.com/ThomasWhyne/tsc-alias"
)

// envProject supplies the default --project when the flag is not given.
const envProject = "TSC_ALIAS_PROJECT"

var (
	flagProject              string
	flagDir                  string
	flagDeclarationDir       string
	flagWatch                bool
	flagVerbose              bool
	flagResolveFullPaths     bool
	flagResolveFullExtension string
	flagInputGlob            string
	flagState                string
	flagForce                bool
	flagSerial               bool
	flagWorkers              int
	flagFormat               string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

var (
	logger *zap.Logger
	// logLevel is raised to debug by --verbose or the config's verbose
	// setting.
	logLevel = zap.NewAtomicLevel()
)

func main() {
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tsc-alias",
	Short: "Replace path aliases in compiled output with relative paths",
	Long: `tsc-alias rewrites the alias specifiers (as declared in compilerOptions.paths)
in the JavaScript and declaration files a compiler emitted, so the output runs
without a path-mapping loader.`,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		if err := validateExtension(flagResolveFullExtension); err != nil {
			return err
		}
		var err error
		logger, err = newLogger(flagVerbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runRewrite,
}

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&flagProject, "project", "p", "tsconfig.json", "path to the project config (env "+envProject+")")
	f.StringVar(&flagDir, "dir", "", "output directory (overrides compilerOptions.outDir)")
	f.StringVar(&flagDeclarationDir, "declaration-dir", "", "declaration output directory (overrides compilerOptions.declarationDir)")
	f.BoolVarP(&flagWatch, "watch", "w", false, "keep rewriting as the compiler emits files")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "log every rewritten specifier")
	f.BoolVarP(&flagResolveFullPaths, "resolve-full-paths", "f", false, "append the real file extension to rewritten specifiers")
	f.StringVar(&flagResolveFullExtension, "resolve-full-extension", "", "extension to append when no file is found: .js|.mjs|.cjs")
	f.StringVar(&flagInputGlob, "input-glob", "", "extensions of the files to rewrite, e.g. {js,mjs,d.ts}")
	f.StringVar(&flagState, "state", "", "rewrite-state database; unchanged files are skipped on later runs")
	f.BoolVar(&flagForce, "force", false, "ignore recorded state and rewrite every file")
	f.BoolVar(&flagSerial, "serial", false, "rewrite files one at a time")
	f.IntVar(&flagWorkers, "workers", runtime.NumCPU(), "number of parallel workers")
	f.StringVar(&flagFormat, "format", "text", "summary format: json|text")
}

// newLogger builds the console logger diagnostics are written to.
func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.DisableStacktrace = true
	config.Level = logLevel
	logLevel.SetLevel(zapcore.InfoLevel)
	if verbose {
		logLevel.SetLevel(zapcore.DebugLevel)
	}
	return config.Build()
}

func runRewrite(cmd *cobra.Command, args []string) error {
	project := resolveProject(cmd.Flags().Changed("project"))

	// The JSON summary lists warnings; watch mode would keep them forever.
	var problems tscalias.Recorder
	sink := tscalias.NewZapSink(logger)
	if !flagWatch && flagFormat == "json" {
		sink = tscalias.Tee(sink, &problems)
	}

	engine, err := tscalias.New(project, buildOptions(cmd, sink)...)
	if err != nil {
		return outputError(err)
	}
	defer engine.Close()

	if engine.Config().Verbose {
		logLevel.SetLevel(zapcore.DebugLevel)
	}

	if flagForce {
		if err := engine.ResetState(); err != nil {
			return outputError(fmt.Errorf("resetting state: %w", err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flagWatch {
		logger.Info("watching for changes", zap.String("project", engine.Config().ConfigFile))
		return engine.Watch(ctx)
	}

	rep, err := engine.Run(ctx)
	if ferr := writeReport(cmd.OutOrStdout(), flagFormat, engine.Config().ConfigFile, rep, problems.Diagnostics(), err); ferr != nil {
		return ferr
	}
	if err != nil {
		errorHandled = flagFormat == "json"
		return err
	}
	return nil
}

// resolveProject returns the config path: the flag when given, else
// $TSC_ALIAS_PROJECT, else the flag default.
func resolveProject(flagChanged bool) string {
	if !flagChanged {
		if v := strings.TrimSpace(os.Getenv(envProject)); v != "" {
			return v
		}
	}
	return flagProject
}

// buildOptions turns the flags the user set into engine options. Flags left
// at their defaults do not override the config file.
func buildOptions(cmd *cobra.Command, sink tscalias.Sink) []tscalias.Option {
	changed := cmd.Flags().Changed

	var cfgOpts []tscalias.ConfigOption
	if changed("dir") {
		cfgOpts = append(cfgOpts, tscalias.WithOutDir(flagDir))
	}
	if changed("declaration-dir") {
		cfgOpts = append(cfgOpts, tscalias.WithDeclarationDir(flagDeclarationDir))
	}
	if changed("resolve-full-paths") {
		cfgOpts = append(cfgOpts, tscalias.WithResolveFullPaths(flagResolveFullPaths))
	}
	if changed("resolve-full-extension") {
		cfgOpts = append(cfgOpts, tscalias.WithResolveFullExtension(flagResolveFullExtension))
	}
	if changed("input-glob") {
		cfgOpts = append(cfgOpts, tscalias.WithInputGlob(flagInputGlob))
	}
	if changed("verbose") {
		cfgOpts = append(cfgOpts, tscalias.WithVerbose(flagVerbose))
	}

	opts := []tscalias.Option{
		tscalias.WithConfigOptions(cfgOpts...),
		tscalias.WithSink(sink),
		tscalias.WithParallel(!flagSerial),
		tscalias.WithWorkers(flagWorkers),
	}
	if flagState != "" {
		opts = append(opts, tscalias.WithStatePath(flagState))
	}
	return opts
}

var validExtensions = []string{".js", ".mjs", ".cjs"}

func validateExtension(ext string) error {
	if ext == "" {
		return nil
	}
	for _, e := range validExtensions {
		if ext == e {
			return nil
		}
	}
	return fmt.Errorf("invalid --resolve-full-extension %q: must be one of %s", ext, strings.Join(validExtensions, ", "))
}

// outputError adds a hint to the configuration errors a user can fix from
// the command line.
func outputError(err error) error {
	switch {
	case errors.Is(err, tscalias.ErrConfigNotFound):
		return fmt.Errorf("%w (use --project to point at your tsconfig)", err)
	case errors.Is(err, tscalias.ErrMissingOutDir):
		return fmt.Errorf("%w (set compilerOptions.outDir or pass --dir)", err)
	}
	return err
}
