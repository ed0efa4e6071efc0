// Command kernelctl boots a kernel core instance and keeps it running
// until interrupted. Grounded on the teacher's cmd/ublk-mem/main.go:
// flag parsing for instance sizing, a deferred teardown call, SIGUSR1
// goroutine-stack dumping, and timeout-bounded SIGINT/SIGTERM shutdown
// all carry over, retargeted from one RAM-disk backend to N harts.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/gofrs/flock"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/rvkern/kernel"
	"github.com/rvkern/kernel/internal/logging"
)

func main() {
	var (
		boardProfile = flag.String("board-profile", "", "path to a YAML board profile (overrides -board)")
		boardName    = flag.String("board", "qemu", "built-in board profile: qemu or lrv")
		harts        = flag.Int("harts", 0, "override the board's hart count (0 keeps the profile's default)")
		lockPath     = flag.String("lock", "/tmp/kernelctl.lock", "single-instance lock file path")
		verbose      = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	lock := flock.New(*lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernelctl: acquiring lock %s: %v\n", *lockPath, err)
		os.Exit(1)
	}
	if !locked {
		fmt.Fprintf(os.Stderr, "kernelctl: another instance already holds %s\n", *lockPath)
		os.Exit(1)
	}
	defer lock.Unlock()

	level := logging.LevelInfo
	if *verbose {
		level = logging.LevelDebug
	}
	logCfg := logging.DefaultConfig()
	logCfg.Level = level
	log := logging.NewLogger(logCfg)
	logging.SetDefault(log)

	board, err := kernel.LoadBoard(*boardProfile, *boardName)
	if err != nil {
		log.Errorf("loading board profile: %v", err)
		os.Exit(1)
	}
	if *harts > 0 {
		board.HartCount = *harts
	}

	log.Info("boot session", "session", log.Session(), "board", board.Name, "harts", board.HartCount)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	k, err := bootWithProgress(ctx, board, log)
	if err != nil {
		log.Errorf("boot failed: %v", err)
		os.Exit(1)
	}

	// board.Name may originate from an externally loaded YAML profile;
	// strip any embedded escape sequences before it reaches the terminal.
	fmt.Printf("kernel up: board=%s hart(s)=%d init tid=%d\n", ansi.Strip(board.Name), k.HartCount(), k.InitTID())
	fmt.Println("send SIGUSR1 to dump goroutine stacks, SIGINT/SIGTERM to shut down")

	sigUsr1 := make(chan os.Signal, 1)
	signal.Notify(sigUsr1, syscall.SIGUSR1)
	go func() {
		for range sigUsr1 {
			dumpStacks()
		}
	}()

	sigTerm := make(chan os.Signal, 1)
	signal.Notify(sigTerm, os.Interrupt, syscall.SIGTERM)
	<-sigTerm

	log.Info("shutdown requested")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	cleanupDone := make(chan error, 1)
	go func() { cleanupDone <- kernel.Shutdown(shutdownCtx, k) }()

	select {
	case err := <-cleanupDone:
		if err != nil {
			log.Errorf("shutdown: %v", err)
			os.Exit(1)
		}
	case <-time.After(5 * time.Second):
		log.Error("shutdown timed out, exiting anyway")
	}
}

// bootWithProgress renders a hart-by-hart progress bar while Boot brings
// the scheduling and trap infrastructure up, falling back to a plain log
// line when stdout isn't a terminal (e.g. under a test harness or CI).
func bootWithProgress(ctx context.Context, board kernel.Board, log *logging.Logger) (*kernel.Kernel, error) {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return kernel.Boot(ctx, kernel.Config{Board: board, Logger: log})
	}

	bar := progressbar.Default(int64(board.HartCount), "starting harts")
	defer bar.Close()

	k, err := kernel.Boot(ctx, kernel.Config{Board: board, Logger: log})
	if err != nil {
		return nil, err
	}
	for i := 0; i < board.HartCount; i++ {
		bar.Add(1)
	}
	return k, nil
}

// dumpStacks writes every goroutine's stack to stderr and to a
// timestamped file in the working directory, mirroring the teacher's
// SIGUSR1 handler used to debug a wedged queue runner.
func dumpStacks() {
	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	fmt.Fprintf(os.Stderr, "=== goroutine stacks ===\n%s\n", buf[:n])

	path := fmt.Sprintf("kernelctl-stacks-%d.txt", time.Now().UnixNano())
	f, err := os.Create(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "kernelctl: creating stack dump file: %v\n", err)
		return
	}
	defer f.Close()
	pprof.Lookup("goroutine").WriteTo(f, 2)
}
