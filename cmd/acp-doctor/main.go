// Command acp-doctor runs a single one-shot prompt through the configured
// CLI assistant and reports whether it answered, without starting the
// Command Surface or any session state. It exists so an operator can check
// that claude_executable is reachable and authenticated before pointing
// acpd at it.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shaharia-lab/acp-runtime/internal/claude"
	"github.com/shaharia-lab/acp-runtime/internal/config"
)

func main() {
	prompt := "Reply with exactly the word OK."
	if len(os.Args) > 1 {
		prompt = os.Args[1]
	}

	loader, err := config.NewLoader(os.Getenv("ACP_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "acp-doctor: failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := loader.Current()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := claude.Run(ctx, prompt, claude.WithClaudeExecutable(cfg.ClaudeExecutable))
	if err != nil {
		fmt.Fprintf(os.Stderr, "acp-doctor: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(result.Result)
	fmt.Fprintf(os.Stderr, "session: %s\n", result.SessionID)
	fmt.Fprintf(os.Stderr, "cost:    $%.6f\n", result.TotalCostUSD)
	fmt.Fprintf(os.Stderr, "tokens:  in=%d out=%d\n", result.Usage.InputTokens, result.Usage.OutputTokens)
}
