package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"recordchat-agent/handler"
	"recordchat-agent/internal/integrations/openai"
	"recordchat-agent/internal/integrations/paramstore"
	"recordchat-agent/internal/integrations/platform"
	"recordchat-agent/internal/repository"
	"recordchat-agent/internal/session"
	"recordchat-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// Local development convenience; Lambda supplies real env vars.
	_ = godotenv.Load()

	// ---- Configuration (read only here) ----
	platformURL := mustEnv("PLATFORM_API_URL")
	paramPrefix := mustEnv("PARAM_PREFIX")
	defaultObject := envStr("DEFAULT_OBJECT", "Account")
	knownObjects := envList("KNOWN_OBJECTS", []string{"Account", "Contact", "Opportunity", "Lead", "Case"})
	storeBackend := envStr("CHAT_STORE_BACKEND", "memory")
	turnTable := os.Getenv("TURN_TABLE")
	maxTurns := envInt("MAX_CONVERSATION_TURNS", 20)
	maxUtteranceLen := envInt("MAX_UTTERANCE_LENGTH", 500)
	maxQueryLimit := envInt("MAX_QUERY_LIMIT", 50)
	defaultQueryLimit := envInt("DEFAULT_QUERY_LIMIT", 5)
	capabilityTimeout := envDuration("CAPABILITY_TIMEOUT", 8*time.Second)
	schemaCacheTTL := envDuration("SCHEMA_CACHE_TTL", 5*time.Minute)
	classifierModel := envStr("CLASSIFIER_MODEL", "gpt-4o-mini")

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}

	platformClient, err := platform.NewClient(platformURL, ssmClient, paramPrefix)
	if err != nil {
		slog.Error("failed to create platform client", "err", err)
		os.Exit(1)
	}

	classifier, err := buildClassifier(ctx, ssmClient, paramPrefix, classifierModel)
	if err != nil {
		slog.Warn("classifier disabled, intent resolution runs on rules only", "err", err)
		classifier = nil
	}

	store, err := buildStore(cfg, storeBackend, turnTable, maxTurns)
	if err != nil {
		slog.Error("failed to create conversation store", "err", err)
		os.Exit(1)
	}

	// ---- Agent ----
	agent, err := usecase.NewChatService(platformClient, classifier, store, usecase.Config{
		DefaultObject:     defaultObject,
		KnownObjects:      knownObjects,
		MaxUtteranceLen:   maxUtteranceLen,
		MaxQueryLimit:     maxQueryLimit,
		DefaultQueryLimit: defaultQueryLimit,
		CapabilityTimeout: capabilityTimeout,
		SchemaCacheTTL:    schemaCacheTTL,
	})
	if err != nil {
		slog.Error("failed to create chat service", "err", err)
		os.Exit(1)
	}

	logPlatformStatus(ctx, platformClient)

	h, err := handler.NewHandler(agent)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

// buildClassifier resolves the model API key from Parameter Store. A missing
// key is not fatal; the agent falls back to rule-based resolution.
func buildClassifier(ctx context.Context, ps paramstore.Getter, paramPrefix, model string) (usecase.Classifier, error) {
	apiKey, err := ps.GetParameter(ctx, paramPrefix+"/openai-api-key")
	if err != nil {
		return nil, err
	}
	return openai.NewClassifier(apiKey, model)
}

func buildStore(cfg aws.Config, backend, turnTable string, maxTurns int) (usecase.ConversationStore, error) {
	switch backend {
	case "dynamodb":
		return repository.New(awsdynamodb.NewFromConfig(cfg), turnTable, maxTurns)
	default:
		return session.NewMemoryStore(maxTurns), nil
	}
}

// logPlatformStatus surfaces connectivity problems at startup instead of on
// the first user turn.
func logPlatformStatus(ctx context.Context, client *platform.Client) {
	health, err := client.Health(ctx)
	if err != nil {
		slog.Warn("platform health check failed", "err", err)
		return
	}
	slog.Info("platform reachable", "status", health.Status)

	org, err := client.OrgInfo(ctx)
	if err != nil {
		slog.Warn("platform org info unavailable", "err", err)
		return
	}
	slog.Info("connected to org", "name", org.OrgName, "orgId", org.OrgID)
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envStr(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
