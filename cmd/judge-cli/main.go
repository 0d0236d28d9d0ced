// judge-cli evaluates local source files against problem fixtures through
// the same sandbox and harness the service uses. Useful for authoring
// problems and debugging limit settings without the full stack.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"
	"github.com/google/uuid"

	"gavel/internal/judge/harness"
	"gavel/internal/judge/model"
	"gavel/internal/judge/sandbox"
	"gavel/internal/judge/sandbox/engine"
	"gavel/internal/judge/sandbox/outcome"
	"gavel/internal/judge/sandbox/profile"
	"gavel/internal/judge/sandbox/spec"
	"gavel/pkg/utils/logger"
)

type cli struct {
	executor sandbox.Executor
	harness  harness.Harness
	language string
}

func main() {
	workRoot := flag.String("work-root", filepath.Join(os.TempDir(), "gavel-cli"), "sandbox workspace root")
	helperPath := flag.String("helper", "/usr/local/bin/sandbox-init", "path to the sandbox-init helper")
	cgroupRoot := flag.String("cgroup-root", "/sys/fs/cgroup/gavel", "cgroup v2 root for sandbox tasks")
	noIsolation := flag.Bool("no-isolation", false, "run without namespaces and cgroups (trusted code only)")
	flag.Parse()

	if err := logger.Init(logger.Config{Level: "warn", Format: "console", OutputPath: "stderr"}); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	eng, err := engine.NewEngine(engine.Config{
		CgroupRoot:       *cgroupRoot,
		HelperPath:       *helperPath,
		EnableCgroup:     !*noIsolation,
		EnableNamespaces: !*noIsolation,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	executor, err := sandbox.NewExecutor(eng, profile.NewStaticRegistry(nil), *workRoot)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	h, err := harness.New(executor, spec.Defaults(), harness.Config{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	app := &cli{executor: executor, harness: h, language: "python"}
	if err := app.repl(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func (a *cli) repl() error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "judge> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".gavel_cli_history"),
		InterruptPrompt: "^C",
	})
	if err != nil {
		return err
	}
	defer func() { _ = rl.Close() }()

	fmt.Println("gavel judge cli, type 'help' for commands")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		args, err := shlex.Split(strings.TrimSpace(line))
		if err != nil {
			fmt.Printf("parse error: %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "help":
			printHelp()
		case "lang":
			a.setLanguage(args[1:])
		case "run":
			a.runOnce(args[1:])
		case "judge":
			a.judge(args[1:])
		case "exit", "quit":
			return nil
		default:
			fmt.Printf("unknown command %q, type 'help'\n", args[0])
		}
	}
}

func printHelp() {
	fmt.Print(`commands:
  lang <id>                      select language (python, cpp, java)
  run <source> [input-file]      run once, print the raw outcome
  judge <source> <problem.json>  evaluate against a problem fixture
  exit
`)
}

func (a *cli) setLanguage(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: lang <id>")
		return
	}
	a.language = args[0]
	fmt.Printf("language set to %s\n", a.language)
}

func (a *cli) runOnce(args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Println("usage: run <source> [input-file]")
		return
	}
	code, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("read source: %v\n", err)
		return
	}
	var input string
	if len(args) == 2 {
		raw, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Printf("read input: %v\n", err)
			return
		}
		input = string(raw)
	}

	out, err := a.executor.Execute(context.Background(), sandbox.ExecRequest{
		SubmissionID: "cli-" + uuid.NewString(),
		TaskID:       "adhoc",
		Code:         string(code),
		Language:     a.language,
		Input:        input,
	})
	if err != nil {
		fmt.Printf("execution failed: %v\n", err)
		return
	}
	printOutcome(out)
}

func (a *cli) judge(args []string) {
	if len(args) != 2 {
		fmt.Println("usage: judge <source> <problem.json>")
		return
	}
	code, err := os.ReadFile(args[0])
	if err != nil {
		fmt.Printf("read source: %v\n", err)
		return
	}
	raw, err := os.ReadFile(args[1])
	if err != nil {
		fmt.Printf("read problem: %v\n", err)
		return
	}
	var prob model.Problem
	if err := json.Unmarshal(raw, &prob); err != nil {
		fmt.Printf("parse problem: %v\n", err)
		return
	}
	if prob.ID == "" {
		prob.ID = "cli-problem"
	}

	sub := &model.Submission{
		ID:       "cli-" + uuid.NewString(),
		Code:     string(code),
		Language: a.language,
		Status:   model.StatusPending,
	}
	verdict, err := a.harness.Evaluate(context.Background(), sub, &prob)
	if err != nil {
		fmt.Printf("evaluation failed: %v\n", err)
		return
	}

	if verdict.Passed {
		fmt.Println("verdict: ACCEPTED")
	} else {
		fmt.Println("verdict: REJECTED")
	}
	for i, r := range verdict.Results {
		mark := "PASS"
		if !r.Passed {
			mark = "FAIL"
		}
		detail := ""
		if r.Error != model.ErrTagNone {
			detail = fmt.Sprintf(" [%s]", r.Error)
		}
		fmt.Printf("  case %d: %s%s (%dms, %dKB)\n", i, mark, detail, r.TimeMs, r.MemoryKB)
	}
}

func printOutcome(out outcome.Outcome) {
	fmt.Printf("kind: %s", out.Kind)
	if out.Stage == outcome.StageCompile {
		fmt.Print(" (compile stage)")
	}
	fmt.Println()
	if out.Message != "" {
		fmt.Printf("message: %s\n", out.Message)
	}
	fmt.Printf("time: %dms  memory: %dKB  exit: %d\n", out.TimeMs, out.MemoryKB, out.ExitCode)
	if out.Stdout != "" {
		fmt.Printf("--- stdout ---\n%s\n", out.Stdout)
	}
	if out.Stderr != "" {
		fmt.Printf("--- stderr ---\n%s\n", out.Stderr)
	}
}
