package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"chat-notifier/handler"
	"chat-notifier/internal/integrations/fcm"
	"chat-notifier/internal/integrations/paramstore"
	"chat-notifier/internal/platform/logger"
	"chat-notifier/internal/repository"
	"chat-notifier/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	log := logger.New(envStr("LOG_LEVEL", "info"))
	slog.SetDefault(log)

	usersTable := mustEnv("USERS_TABLE")
	messagesTable := mustEnv("MESSAGES_TABLE")
	receiptsTable := mustEnv("RECEIPTS_TABLE")
	paramPrefix := mustEnv("PARAM_PREFIX")
	phoneIndex := envStr("USERS_PHONE_INDEX", "phone_number-index")
	fcmBaseURL := envStr("FCM_BASE_URL", "https://fcm.googleapis.com")
	pushgatewayURL := os.Getenv("PUSHGATEWAY_URL")

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
	store, err := repository.New(awsdynamodb.NewFromConfig(cfg), repository.Tables{
		Users:      usersTable,
		PhoneIndex: phoneIndex,
		Receipts:   receiptsTable,
	})
	if err != nil {
		slog.Error("failed to create repository", "err", err)
		os.Exit(1)
	}
	fcmClient, err := fcm.NewClient(ssmClient, paramPrefix, fcm.WithBaseURL(fcmBaseURL))
	if err != nil {
		slog.Error("failed to create FCM client", "err", err)
		os.Exit(1)
	}

	// ---- Metrics ----
	registry := prometheus.NewRegistry()
	opts := []handler.Option{
		handler.WithLogger(log),
		handler.WithMetrics(handler.NewMetrics(registry)),
	}
	if pushgatewayURL != "" {
		opts = append(opts, handler.WithPusher(newPusher(pushgatewayURL, registry)))
	}

	// ---- Handler ----
	notifier, err := usecase.NewService(store, store, fcmClient, usecase.NewMetrics(registry), log)
	if err != nil {
		slog.Error("failed to create notifier", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(notifier, handler.Tables{Messages: messagesTable, Receipts: receiptsTable}, opts...)
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}

// newPusher groups pushed series by function name so every container of the
// function writes to the same group.
func newPusher(url string, g prometheus.Gatherer) *push.Pusher {
	return push.New(url, "chat_notifier").
		Gatherer(g).
		Grouping("function", envStr("AWS_LAMBDA_FUNCTION_NAME", "chat-notifier"))
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
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
