package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"webreplay/internal/config"
	"webreplay/internal/recording"
	"webreplay/internal/replay"
	"webreplay/pkg/browser"
	"webreplay/pkg/progress"
)

// Exit codes: 0 full success, 1 partial, 2 failed, 3 usage or setup error,
// 130 cancelled by signal.
const (
	exitOK        = 0
	exitPartial   = 1
	exitFailed    = 2
	exitSetup     = 3
	exitCancelled = 130
)

var (
	flagConfig     string
	flagHeaded     bool
	flagMode       string
	flagSpeed      float64
	flagOut        string
	flagShotDir    string
	flagVideo      bool
	flagWS         string
	flagBrowserBin string
	flagDevice     string
)

func main() {
	root := &cobra.Command{
		Use:           "webreplay",
		Short:         "Replay captured browser interaction recordings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	runCmd := &cobra.Command{
		Use:   "run <recording.json>",
		Short: "Replay a recording and print the run result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(runReplay(args[0]))
			return nil
		},
	}
	runCmd.Flags().StringVarP(&flagConfig, "config", "c", "", "config file (YAML)")
	runCmd.Flags().BoolVar(&flagHeaded, "headed", false, "run with a visible browser window")
	runCmd.Flags().StringVar(&flagMode, "mode", "", "timing mode: instant, fast, realistic")
	runCmd.Flags().Float64Var(&flagSpeed, "speed", 0, "timing multiplier, overrides --mode when > 0")
	runCmd.Flags().StringVarP(&flagOut, "out", "o", "", "write the run result to this file instead of stdout")
	runCmd.Flags().StringVar(&flagShotDir, "screenshot-dir", "", "directory for failure screenshots")
	runCmd.Flags().BoolVar(&flagVideo, "video", false, "record a video of the run when supported")
	runCmd.Flags().StringVar(&flagWS, "progress-ws", "", "WebSocket URL to stream progress events to")
	runCmd.Flags().StringVar(&flagBrowserBin, "browser-path", "", "explicit browser binary path")
	runCmd.Flags().StringVar(&flagDevice, "device", "",
		fmt.Sprintf("device emulation preset, one of %v", browser.DeviceNames()))

	checkCmd := &cobra.Command{
		Use:   "check <recording.json>",
		Short: "Preprocess a recording and report warnings without replaying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			os.Exit(runCheck(args[0]))
			return nil
		},
	}

	root.AddCommand(runCmd, checkCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitSetup)
	}
}

func runReplay(recordingPath string) int {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitSetup
	}
	applyFlags(cfg)

	logger, err := buildLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitSetup
	}
	defer logger.Sync()

	rec, err := recording.Load(recordingPath)
	if err != nil {
		logger.Error("cannot load recording", zap.Error(err))
		return exitSetup
	}

	reporters := []replay.Reporter{progress.NewLogReporter(logger)}
	if cfg.Progress.WebSocketURL != "" {
		ws, werr := progress.DialWS(cfg.Progress.WebSocketURL, logger)
		if werr != nil {
			logger.Warn("progress endpoint unreachable, continuing without it",
				zap.String("url", cfg.Progress.WebSocketURL), zap.Error(werr))
		} else {
			defer ws.Close()
			reporters = append(reporters, ws)
		}
	}

	runner := replay.NewRunner(
		browser.NewChromeLauncher(logger),
		logger,
		replay.MultiReporter(reporters...),
		replay.Options{
			BrowserKind:       cfg.Browser.Kind,
			Headless:          cfg.Browser.Headless,
			ExecPath:          cfg.Browser.ExecPath,
			Device:            cfg.Browser.Device,
			RecordVideo:       cfg.Output.RecordVideo,
			Mode:              replay.Mode(cfg.Replay.Mode),
			SpeedOverride:     cfg.Replay.Speed,
			MaxDelay:          time.Duration(cfg.Replay.MaxDelayMs) * time.Millisecond,
			ElementTimeout:    time.Duration(cfg.Replay.ElementTimeoutSec) * time.Second,
			RetryCeiling:      cfg.Replay.RetryCeiling,
			BackoffBase:       time.Duration(cfg.Replay.BackoffBaseMs) * time.Millisecond,
			NavigationTimeout: time.Duration(cfg.Replay.NavigationTimeoutSec) * time.Second,
			ModalSettleDelay:  time.Duration(cfg.Replay.ModalSettleMs) * time.Millisecond,
			ScreenshotDir:     cfg.Output.ScreenshotDir,
			CaptureOnError:    cfg.Output.CaptureOnError,
		},
	)

	// Ctrl-C requests a cooperative stop; the run finishes its current
	// action, tears the browser down, and still emits its result.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result := runner.Run(ctx, rec)

	if err := writeResult(result, cfg.Output.ResultPath); err != nil {
		logger.Error("cannot write run result", zap.Error(err))
		return exitSetup
	}

	switch result.Status {
	case replay.StatusSuccess:
		return exitOK
	case replay.StatusPartial:
		return exitPartial
	case replay.StatusCancelled:
		return exitCancelled
	default:
		return exitFailed
	}
}

func runCheck(recordingPath string) int {
	rec, err := recording.Load(recordingPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return exitSetup
	}
	pre, warnings := recording.Preprocess(rec)
	out := struct {
		Name     string              `json:"name"`
		StartURL string              `json:"startUrl"`
		Actions  int                 `json:"actions"`
		Warnings []recording.Warning `json:"warnings,omitempty"`
	}{pre.Name, pre.StartURL, len(pre.Actions), warnings}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
	if len(warnings) > 0 {
		return exitPartial
	}
	return exitOK
}

// applyFlags layers explicit command-line flags over the loaded config.
func applyFlags(cfg *config.Config) {
	if flagHeaded {
		cfg.Browser.Headless = false
	}
	if flagMode != "" {
		cfg.Replay.Mode = flagMode
	}
	if flagSpeed > 0 {
		cfg.Replay.Speed = flagSpeed
	}
	if flagShotDir != "" {
		cfg.Output.ScreenshotDir = flagShotDir
	}
	if flagVideo {
		cfg.Output.RecordVideo = true
	}
	if flagWS != "" {
		cfg.Progress.WebSocketURL = flagWS
	}
	if flagBrowserBin != "" {
		cfg.Browser.ExecPath = flagBrowserBin
	}
	if flagDevice != "" {
		cfg.Browser.Device = flagDevice
	}
	if flagOut != "" {
		cfg.Output.ResultPath = flagOut
	}
}

func buildLogger(lc config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(lc.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	var zc zap.Config
	if lc.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	// The run result goes to stdout; logs stay on stderr.
	zc.OutputPaths = []string{"stderr"}
	return zc.Build()
}

func writeResult(result *replay.RunResult, path string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if path == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
