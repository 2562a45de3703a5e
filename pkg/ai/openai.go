package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
	providerOpenAI       = "openai"
)

var (
	gradeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "grading_request_duration_seconds",
		Help:      "Duration of AI grading requests",
		Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 80, 160},
	}, []string{"model"})

	gradeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "grading_request_failures_total",
		Help:      "Number of AI grading requests that failed or returned unusable output",
	}, []string{"model", "reason"})
)

// OpenAIConfig defines configuration options for the OpenAI grader.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	Logger      zerolog.Logger
}

// OpenAIGrader sends the homework PDF to the chat completions API as a file part.
type OpenAIGrader struct {
	http   *resty.Client
	files  FileReader
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGrader builds a grader reading documents from files.
func NewOpenAIGrader(cfg OpenAIConfig, files FileReader) (*OpenAIGrader, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	if files == nil {
		return nil, fmt.Errorf("file reader is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBaseURL
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetAuthToken(cfg.APIKey).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")

	return &OpenAIGrader{
		http:   client,
		files:  files,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/gema-classroom-api/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_grader").Logger(),
	}, nil
}

type chatFile struct {
	FileName string `json:"filename"`
	FileData string `json:"file_data"`
}

type chatContentPart struct {
	Type string    `json:"type"`
	Text string    `json:"text,omitempty"`
	File *chatFile `json:"file,omitempty"`
}

type chatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

// Grade uploads the document inline and parses the returned task list.
func (g *OpenAIGrader) Grade(parent context.Context, input GradeInput) (GradeResult, error) {
	ctx, span := g.tracer.Start(parent, "openai.grade", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.Int64("submission_id", int64(input.SubmissionID)),
	))
	defer span.End()

	fail := func(reason string, err error) (GradeResult, error) {
		gradeFailures.WithLabelValues(g.cfg.Model, reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, reason)
		return GradeResult{}, err
	}

	document, err := g.files.Read(ctx, input.FilePath)
	if err != nil {
		return fail("file_read", fmt.Errorf("read submission file: %w", err))
	}

	request := chatRequest{
		Model:       g.cfg.Model,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
		Messages: []chatMessage{
			{Role: openai.ChatMessageRoleSystem, Content: graderSystemPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: []chatContentPart{
				{Type: "text", Text: input.Prompt},
				{Type: "file", File: &chatFile{
					FileName: filepath.Base(input.FilePath),
					FileData: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(document),
				}},
			}},
		},
	}

	var (
		completion openai.ChatCompletionResponse
		apiErr     openai.ErrorResponse
	)

	start := time.Now()
	resp, err := g.http.R().
		SetContext(ctx).
		SetBody(request).
		SetResult(&completion).
		SetError(&apiErr).
		Post("/chat/completions")
	gradeDuration.WithLabelValues(g.cfg.Model).Observe(time.Since(start).Seconds())
	if err != nil {
		return fail("transport", fmt.Errorf("openai grade: %w", err))
	}
	if resp.IsError() {
		message := resp.Status()
		if apiErr.Error != nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		return fail("api_error", fmt.Errorf("openai grade: status %d: %s", resp.StatusCode(), message))
	}
	if len(completion.Choices) == 0 {
		return fail("empty", fmt.Errorf("no choices returned from openai"))
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	tasks, err := ParseGradingResponse(content)
	if err != nil {
		return fail("malformed", err)
	}

	g.logger.Debug().
		Uint("submission_id", input.SubmissionID).
		Int("tasks", len(tasks)).
		Int("total_tokens", completion.Usage.TotalTokens).
		Msg("grading response parsed")

	return GradeResult{
		Tasks:       tasks,
		RawResponse: content,
		Provider:    providerOpenAI,
	}, nil
}

func graderSystemPrompt() string {
	return "You grade handwritten or typed homework delivered as a PDF. Identify every exercise and respond with a JSON " +
		"array only. Each element must be an object with task_number (integer starting at 1), points_earned (number), " +
		"max_points (number) and comment (string explaining the grade). Do not wrap the array in another object."
}
