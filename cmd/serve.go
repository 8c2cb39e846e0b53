package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"hitomidl/internal/engine"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine as a line-delimited JSON command/event bridge over stdio",
	Run: func(cmd *cobra.Command, _ []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		dir := appDataDir
		if dir == "" {
			dir = defaultAppDataDir()
		}

		e, err := engine.New(dir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "could not start engine:", err)
			os.Exit(1)
		}
		defer e.Close()

		var writeMu sync.Mutex
		enc := json.NewEncoder(os.Stdout)
		writeLine := func(v any) {
			writeMu.Lock()
			defer writeMu.Unlock()
			_ = enc.Encode(v)
		}

		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-e.Events():
					if !ok {
						return
					}
					writeLine(ev)
				}
			}
		}()

		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			if ctx.Err() != nil {
				return
			}

			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var c engine.Command
			if err := json.Unmarshal(line, &c); err != nil {
				writeLine(struct {
					Status string `json:"status"`
					Error  string `json:"error"`
				}{Status: "error", Error: "malformed command line: " + err.Error()})
				continue
			}

			writeLine(e.Dispatch(ctx, c))
		}
	},
}

func defaultAppDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "hitomidl")
}
