package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ppiankov/veracity/internal/audit"
	"github.com/ppiankov/veracity/internal/cache"
	"github.com/ppiankov/veracity/internal/llm"
	"github.com/ppiankov/veracity/internal/model"
)

var (
	auditQuery       string
	auditResponse    string
	auditContext     []string
	auditContextFile string
	auditTimeout     time.Duration
	auditJSON        bool
)

// auditCmd represents the audit command
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Run a single audit without the server",
	Long: `Audit runs one response through the full pipeline and prints the
reasoning trace and score.

Example:
  veracity audit --query "What is the capital of France?" \
    --response "Paris is the capital of France and was founded by Romans" \
    --context "France's capital is Paris, founded in 3rd century BC."
  veracity audit --query "..." --response "..." --context-file docs.txt --json`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)

	auditCmd.Flags().StringVar(&auditQuery, "query", "", "the user query (required)")
	auditCmd.Flags().StringVar(&auditResponse, "response", "", "the LLM response to audit (required)")
	auditCmd.Flags().StringArrayVar(&auditContext, "context", nil, "context document (repeatable)")
	auditCmd.Flags().StringVar(&auditContextFile, "context-file", "", "file with one context document per line")
	auditCmd.Flags().DurationVar(&auditTimeout, "timeout", 2*time.Minute, "overall audit timeout")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "print the full record as JSON")

	_ = auditCmd.MarkFlagRequired("query")
	_ = auditCmd.MarkFlagRequired("response")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg := buildConfig()

	docs := append([]string{}, auditContext...)
	if auditContextFile != "" {
		fileDocs, err := readContextFile(auditContextFile)
		if err != nil {
			return err
		}
		docs = append(docs, fileDocs...)
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM))
	if err != nil {
		return fmt.Errorf("initialize LLM provider: %w", err)
	}

	var opts []audit.Option
	if cfg.Cache.Enabled {
		opts = append(opts, audit.WithCache(cache.NewMemoryCache(cfg.Cache.TTL, 2*cfg.Cache.TTL), cfg.Cache.TTL))
	}
	orchestrator := audit.NewOrchestrator(
		cfg.Audit,
		audit.NewDecomposer(provider, opts...),
		audit.NewVerifier(provider),
		nil,
		logger,
	)

	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	job := &model.AuditJob{
		JobID:       uuid.NewString(),
		Query:       auditQuery,
		Response:    auditResponse,
		ContextDocs: docs,
		SubmittedAt: time.Now().UTC(),
	}
	if err := job.Validate(); err != nil {
		return err
	}

	record := orchestrator.Run(ctx, job)

	if auditJSON {
		data, err := json.MarshalIndent(record, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		fmt.Println(string(data))
		return nil
	}

	if record.State == model.StateFailed {
		return fmt.Errorf("audit failed at stage %s: %s", record.FailedStage, record.Error)
	}

	fmt.Println(record.ReasoningTrace)
	fmt.Println()
	fmt.Printf("Hallucination detected: %v\n", record.Hallucination)
	if record.DegradedQuality {
		fmt.Println("Warning: result quality degraded (too many unverifiable claims)")
	}
	return nil
}

// readContextFile reads one context document per non-empty line, skipping
// comments
func readContextFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context file: %w", err)
	}

	var docs []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		docs = append(docs, line)
	}
	return docs, nil
}
