// Command demo wires a minimal agentkit runtime from a YAML config file and
// runs one task through it. It exists to exercise the public API end to
// end, not as a production entry point — a real deployment constructs
// these pieces from its own service wiring.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agentkit-go/agentkit/agentstate"
	"github.com/agentkit-go/agentkit/event"
	"github.com/agentkit-go/agentkit/llmclient"
	"github.com/agentkit-go/agentkit/llmclient/anthropic"
	"github.com/agentkit-go/agentkit/ralph"
	"github.com/agentkit-go/agentkit/session"
	"github.com/agentkit-go/agentkit/step"
	"github.com/agentkit-go/agentkit/tool"
)

// Options is the demo's YAML-loaded configuration. Core packages never read
// config directly — only this binary does, per the ambient-stack contract.
type Options struct {
	Model         string `yaml:"model"`
	MaxSteps      int    `yaml:"max_steps"`
	Task          string `yaml:"task"`
	Ralph         bool   `yaml:"ralph"`
	MaxIterations int    `yaml:"max_iterations"`
}

func defaultOptions() Options {
	return Options{Model: "claude-sonnet-4-5", MaxSteps: 15, Task: "Say hello.", MaxIterations: 5}
}

func loadOptions(path string) (Options, error) {
	opts := defaultOptions()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("parse config: %w", err)
	}
	return opts, nil
}

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	_ = godotenv.Load()

	opts, err := loadOptions(*configPath)
	if err != nil {
		log.Fatalf("demo: %v", err)
	}

	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		log.Fatal("demo: ANTHROPIC_API_KEY is not set")
	}

	client, err := anthropic.NewFromAPIKey(apiKey, opts.Model)
	if err != nil {
		log.Fatalf("demo: construct llm client: %v", err)
	}

	registry, err := tool.NewRegistry()
	if err != nil {
		log.Fatalf("demo: construct tool registry: %v", err)
	}

	bus := event.NewBus()
	logUnsub, err := bus.Subscribe(event.TypeAll, event.HandlerFunc(func(ctx context.Context, evt event.Event) error {
		log.Printf("event: %s step=%d payload=%v", evt.Type, evt.Step, evt.Payload)
		return nil
	}))
	if err != nil {
		log.Fatalf("demo: subscribe logger: %v", err)
	}
	defer logUnsub.Close()

	store := session.NewMemoryStore()
	ctx := context.Background()

	loop := step.New(client, registry, bus, opts.Model)

	var finalContent string
	if opts.Ralph {
		cfg := ralph.DefaultConfig()
		cfg.MaxIterations = opts.MaxIterations
		cfg.MaxStepsPerIteration = opts.MaxSteps
		rl := ralph.New(loop, bus, cfg)
		finalContent, err = rl.Run(ctx, opts.Task)
	} else {
		state := agentstate.New(opts.MaxSteps)
		state.AppendMessage(llmclient.User(opts.Task))
		finalContent, err = loop.Run(ctx, state)
	}
	if err != nil {
		log.Fatalf("demo: run failed: %v", err)
	}

	if err := store.AddRun(ctx, "demo-session", session.RunRecord{
		RunID: "demo-run-1", Task: opts.Task, Response: finalContent, Success: true,
	}); err != nil {
		log.Fatalf("demo: record session run: %v", err)
	}

	fmt.Println("Assistant:", finalContent)
}
