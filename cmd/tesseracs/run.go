package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chzyer/readline"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/config"
	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/engine"
	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/logger"
	"github.com/svenviktorjonsson/tesseracs-chat-sub000/internal/runtime"
)

var languageFlag string

var runCmd = &cobra.Command{
	Use:   "run <file>",
	Short: "Execute a local source file in a sandbox",
	Long: `Execute one local source file inside a disposable sandbox and stream
its output to the terminal. When the program reads from stdin, type the
input at the prompt.

Examples:
  tesseracs run main.py
  tesseracs run script.txt --language python`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&languageFlag, "language", "", "Language (default: inferred from extension)")
	rootCmd.AddCommand(runCmd)
}

// extLanguages maps file extensions to language profile names.
var extLanguages = map[string]string{
	".py": "python",
	".js": "javascript",
	".sh": "bash",
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.Logging.Mode, "warn")
	if err != nil {
		return err
	}
	defer log.Sync()

	language := languageFlag
	if language == "" {
		language = extLanguages[filepath.Ext(args[0])]
	}
	lang, err := cfg.Language(language)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	rt, err := runtime.New(cmd.Context(), cfg.Engine.DockerHost, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	eng := engine.New(rt, cfg, log)
	defer eng.Shutdown()

	rl, err := readline.New("input> ")
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	jobID := uuid.NewString()
	sink := &cliSink{done: make(chan int, 1)}

	job := engine.Job{
		ID:           jobID,
		ClientID:     "cli",
		Language:     language,
		Files:        map[string]string{lang.Workfile: string(source)},
		EntryCommand: lang.RunCommand,
	}
	if err := eng.Submit(cmd.Context(), job, sink); err != nil {
		return err
	}

	// Feed typed lines into the job until it finishes; closing the
	// readline instance unblocks the loop.
	go func() {
		for {
			line, err := rl.Readline()
			if err != nil {
				eng.Stop(jobID)
				return
			}
			eng.SendInput(jobID, line)
		}
	}()

	code := <-sink.done
	rl.Close()
	if code != 0 {
		if code < 0 || code > 255 {
			code = 1
		}
		os.Exit(code)
	}
	return nil
}

// cliSink renders engine events on the terminal.
type cliSink struct {
	done chan int
}

func (s *cliSink) Output(stream runtime.Stream, text string) {
	if stream == runtime.Stderr {
		fmt.Fprint(os.Stderr, text)
		return
	}
	fmt.Print(text)
}

func (s *cliSink) AwaitingInput() {
	fmt.Fprintln(os.Stderr, "(program is waiting for input)")
}

func (s *cliSink) Finished(exitCode int, errMessage string, artifact []byte) {
	if errMessage != "" {
		fmt.Fprintln(os.Stderr, errMessage)
	}
	if len(artifact) > 0 {
		fmt.Fprintln(os.Stderr, "(job produced an artifact file)")
	}
	s.done <- exitCode
}
