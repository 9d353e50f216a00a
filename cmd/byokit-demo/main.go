// Command byokit-demo shows the library used directly, in-process,
// the way a desktop or CLI client would: load a config, set a key from
// the environment, run one chat completion, print the result, and tear
// everything down. It never starts a server — byokit has no gateway
// mode, only a library surface the host process calls into.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/byokit/byokit"
	"github.com/byokit/byokit/config"
	"github.com/byokit/byokit/validate"
)

func main() {
	var (
		configPath   = flag.String("config", "", "path to a byokit config YAML file (optional)")
		providerFlag = flag.String("provider", "openai", "provider name to dispatch to")
		modelFlag    = flag.String("model", "gpt-4o-mini", "model id to request")
		promptFlag   = flag.String("prompt", "Say hello in one short sentence.", "user message content")
		streamFlag   = flag.Bool("stream", false, "use ChatStream instead of Chat")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	orch, err := byokit.New(byokit.FromConfig(*cfg), byokit.WithLogger(logger))
	if err != nil {
		log.Fatalf("constructing orchestrator: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := orch.Destroy(ctx); err != nil {
			log.Printf("destroy: %v", err)
		}
	}()

	if key := os.Getenv(apiKeyEnvVar(*providerFlag)); key != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := orch.SetKey(ctx, *providerFlag, key); err != nil {
			log.Fatalf("setting key: %v", err)
		}
	}

	req := &validate.Request{
		Provider: *providerFlag,
		Model:    *modelFlag,
		Messages: []validate.Message{
			{Role: "user", Content: *promptFlag},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if *streamFlag {
		runStream(ctx, orch, req)
		return
	}
	runChat(ctx, orch, req)
}

func runChat(ctx context.Context, orch *byokit.Orchestrator, req *validate.Request) {
	resp, err := orch.Chat(ctx, req)
	if err != nil {
		log.Fatalf("chat: %v", err)
	}
	for _, choice := range resp.Choices {
		fmt.Println(choice.Message.Content)
	}
	if resp.Usage != nil {
		fmt.Printf("tokens: %d prompt + %d completion\n", resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	}
}

func runStream(ctx context.Context, orch *byokit.Orchestrator, req *validate.Request) {
	events, err := orch.ChatStream(ctx, req)
	if err != nil {
		log.Fatalf("chat stream: %v", err)
	}
	for ev := range events {
		if ev.Err != nil {
			log.Fatalf("stream: %v", ev.Err)
		}
		for _, choice := range ev.Delta.Choices {
			fmt.Print(choice.DeltaContent)
		}
	}
	fmt.Println()
}

// apiKeyEnvVar maps a provider name to the environment variable a user
// would conventionally set it under, e.g. "openai" -> "OPENAI_API_KEY".
func apiKeyEnvVar(provider string) string {
	switch provider {
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "google":
		return "GOOGLE_API_KEY"
	case "ollama":
		return "OLLAMA_API_KEY"
	default:
		return "OPENAI_API_KEY"
	}
}
