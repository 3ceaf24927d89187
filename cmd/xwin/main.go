package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xwin-go/xwin/internal/buildinfo"
	"github.com/xwin-go/xwin/internal/log"
)

var (
	quietFlag   bool
	verboseFlag bool
	debugFlag   bool
)

// globalCtx is canceled on SIGINT/SIGTERM; long-running commands thread
// it through to the pipeline so a download or extract in flight stops
// promptly instead of leaving a half-written cache entry.
var globalCtx context.Context
var globalCancel context.CancelFunc

var rootCmd = &cobra.Command{
	Use:   "xwin",
	Short: "Acquire the MSVC CRT and Windows SDK without the Visual Studio installer",
	Long: `xwin downloads and assembles the Microsoft Visual C++ build toolchain
(CRT, optional ATL, Windows SDK headers and libraries) from Microsoft's
own distribution channels, without running the Visual Studio Installer,
and reduces the result into a flat cross-compilation sysroot.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Show errors only")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "V", false, "Show verbose output (INFO level)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Show debug output (includes timestamps and source locations)")

	rootCmd.PersistentPreRun = initLogger
	rootCmd.Version = buildinfo.Version()

	wincrtCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(wincrtCmd)
	rootCmd.AddCommand(cleanCacheCmd)
}

func main() {
	globalCtx, globalCancel = context.WithCancel(context.Background())
	defer globalCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived %s, canceling operation...\n", sig)
		globalCancel()

		<-sigChan
		fmt.Fprintln(os.Stderr, "Forced exit")
		exitWithCode(ExitGeneral)
	}()

	if err := rootCmd.Execute(); err != nil {
		if globalCtx.Err() == context.Canceled {
			exitWithCode(ExitGeneral)
		}
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(exitCodeFor(err))
	}
}

func initLogger(cmd *cobra.Command, args []string) {
	level := determineLogLevel()
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug})
	logger := log.New(handler)
	log.SetDefault(logger)

	if level == slog.LevelDebug {
		fmt.Fprintln(os.Stderr, "[DEBUG MODE] Output may contain file paths and URLs. Do not share publicly.")
	}
}

func determineLogLevel() slog.Level {
	if debugFlag {
		return slog.LevelDebug
	}
	if verboseFlag {
		return slog.LevelInfo
	}
	if quietFlag {
		return slog.LevelError
	}

	if isTruthy(os.Getenv("XWIN_DEBUG")) {
		return slog.LevelDebug
	}
	if isTruthy(os.Getenv("XWIN_VERBOSE")) {
		return slog.LevelInfo
	}
	if isTruthy(os.Getenv("XWIN_QUIET")) {
		return slog.LevelError
	}

	return slog.LevelWarn
}

func isTruthy(s string) bool {
	s = strings.ToLower(s)
	return s == "1" || s == "true" || s == "yes" || s == "on"
}
