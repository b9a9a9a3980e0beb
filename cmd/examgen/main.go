package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/examgen/internal/cache"
	cacheredis "github.com/pavelanni/examgen/internal/cache/redis"
	"github.com/pavelanni/examgen/internal/generator"
	"github.com/pavelanni/examgen/internal/handler"
	"github.com/pavelanni/examgen/internal/llm"
	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/notify"
	"github.com/pavelanni/examgen/internal/quiz"
	"github.com/pavelanni/examgen/internal/scorecard"
	"github.com/pavelanni/examgen/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "examgen",
		Short: "Exam generator and assessment service powered by LLMs",
	}

	serve := serveCmd()
	root.AddCommand(serve, takeCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `examgen --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the exam generation and retrieval server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "examgen.db", "SQLite database path")
	f.StringP("bucket", "b", "exam-bucket", "Logical bucket for documents and exam artifacts")
	f.String("llm-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL")
	f.String("llm-key", "ollama", "API key for LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("amqp-url", "", "RabbitMQ URL for notifications (empty logs notifications instead)")
	f.String("amqp-exchange", "examgen", "RabbitMQ exchange for notifications")
	f.String("redis-addr", "", "Redis address for the exam cache (empty uses an in-process cache)")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("cache-ttl", time.Hour, "TTL for cached exam artifacts")
	f.Duration("generation-timeout", 15*time.Minute, "Timeout for one whole generation pipeline run")
	f.Duration("model-call-timeout", 5*time.Minute, "Timeout for a single model call")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func takeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "take",
		Short: "Take an exam interactively against a running server",
		RunE:  runTake,
	}
	f := cmd.Flags()
	f.StringP("server", "s", "http://localhost:8080", "Exam server base URL")
	f.StringP("exam", "e", "", "Exam artifact name (e.g. biology.json); prompts when empty")
	f.String("email", "", "Email address to record the attempt under")
	f.String("log-level", "warn", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("EXAMGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("examgen")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/examgen")
	v.AddConfigPath("/etc/examgen")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	// Open database.
	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	// Notification publisher. Without a broker, score cards and generation
	// notices go to the log.
	var publisher notify.Publisher
	if amqpURL := v.GetString("amqp-url"); amqpURL != "" {
		amqpPub, err := notify.NewAMQPPublisher(amqpURL, v.GetString("amqp-exchange"))
		if err != nil {
			return fmt.Errorf("connect to broker: %w", err)
		}
		defer amqpPub.Close()
		publisher = amqpPub
		slog.Info("notifications via RabbitMQ", "exchange", v.GetString("amqp-exchange"))
	} else {
		publisher = notify.LogPublisher{}
		slog.Info("no broker configured, notifications go to the log")
	}

	// Exam artifact cache.
	var examCache cache.Cache
	if redisAddr := v.GetString("redis-addr"); redisAddr != "" {
		rc := cacheredis.NewClient(redisAddr, v.GetString("redis-password"), v.GetInt("redis-db"))
		if err := rc.Ping(context.Background()); err != nil {
			return fmt.Errorf("redis health check: %w", err)
		}
		defer rc.Close()
		examCache = rc
		slog.Info("exam cache via Redis", "addr", redisAddr)
	} else {
		examCache = cache.NewMemory()
	}

	// Create LLM client and fail fast if the endpoint is unreachable.
	llmClient := llm.New(
		v.GetString("llm-url"),
		v.GetString("llm-key"),
		v.GetString("llm-model"),
	)
	if err := llmClient.Ping(context.Background()); err != nil {
		return fmt.Errorf("LLM health check: %w", err)
	}
	slog.Info("LLM endpoint OK", "url", v.GetString("llm-url"), "model", v.GetString("llm-model"))

	gen := generator.New(db, llmClient, publisher,
		generator.WithCache(examCache),
		generator.WithModelCallTimeout(v.GetDuration("model-call-timeout")),
	)

	// Score cards go out whenever an attempt record changes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	consumer := scorecard.NewConsumer(publisher)
	go consumer.Run(ctx, db.Changes())

	h := handler.New(db, gen, examCache, handler.Config{
		Bucket:            v.GetString("bucket"),
		GenerationTimeout: v.GetDuration("generation-timeout"),
		CacheTTL:          v.GetDuration("cache-ttl"),
	})

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"bucket", v.GetString("bucket"),
		"model", v.GetString("llm-model"),
		"llm_url", v.GetString("llm-url"),
	)
	return http.ListenAndServe(addr, r)
}

func runTake(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	client := &examClient{
		baseURL: strings.TrimRight(v.GetString("server"), "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}

	in := bufio.NewReader(os.Stdin)
	out := os.Stdout

	name := v.GetString("exam")
	if name == "" {
		var err error
		name, err = chooseExam(client, in, out)
		if err != nil {
			return err
		}
	}

	exam, err := client.fetchExam(name)
	if err != nil {
		return fmt.Errorf("fetch exam %s: %w", name, err)
	}

	email := v.GetString("email")
	for email == "" {
		fmt.Fprint(out, "Email address: ")
		line, err := in.ReadString('\n')
		if err != nil {
			return fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
	}

	sess := quiz.New().Load(name, exam)
	attempt, err := runQuiz(sess, email, in, out)
	if err != nil {
		return err
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, scorecard.Format(*attempt))

	if err := client.postAttempt(*attempt); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	fmt.Fprintln(out, "Attempt recorded.")
	return nil
}

// runQuiz walks the session through the questions, allowing P to step back
// to an earlier question, and submits after the last one is answered.
func runQuiz(sess quiz.Session, email string, in *bufio.Reader, out io.Writer) (*model.AttemptResult, error) {
	total := len(sess.Questions)
	for sess.State() == quiz.StateAnswering {
		q, ok := sess.CurrentQuestion()
		if !ok {
			return nil, fmt.Errorf("no question at position %d", sess.Current)
		}
		recorded, answered := sess.RecordedAnswer(sess.Current)
		printQuestion(out, sess.Current+1, total, q, recorded, answered)

		choice, back, err := readChoice(in, out, len(q.Options), sess.Current > 0)
		if err != nil {
			return nil, err
		}
		if back {
			sess = sess.Back()
			continue
		}
		sess = sess.Answer(choice)

		if sess.Current == total-1 {
			next, attempt := sess.Submit(email)
			if attempt == nil {
				return nil, fmt.Errorf("submission rejected at question %d", sess.Current+1)
			}
			sess = next
			return attempt, nil
		}
		sess = sess.Next()
	}
	return nil, fmt.Errorf("exam has no questions")
}

// printQuestion renders one question; a previously recorded answer is shown
// pre-selected so stepping back re-displays the earlier choice.
func printQuestion(out io.Writer, number, total int, q model.Question, recorded int, answered bool) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Question %d of %d: %s\n\n", number, total, q.Question)
	for i, opt := range q.Options {
		marker := " "
		if answered && i == recorded {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %c. %s\n", marker, 'A'+i, opt)
	}
	fmt.Fprintln(out)
}

// readChoice reads one answer letter. "P" steps back to the previous
// question when allowBack is set; "B" stays an ordinary option letter.
func readChoice(in *bufio.Reader, out io.Writer, optionCount int, allowBack bool) (choice int, back bool, err error) {
	maxLetter := byte('A' + optionCount - 1)
	prompt := fmt.Sprintf("Answer (A-%c): ", maxLetter)
	if allowBack {
		prompt = fmt.Sprintf("Answer (A-%c, P for previous): ", maxLetter)
	}
	for {
		fmt.Fprint(out, prompt)
		line, err := in.ReadString('\n')
		if err != nil {
			return -1, false, fmt.Errorf("read answer: %w", err)
		}
		line = strings.ToUpper(strings.TrimSpace(line))
		if allowBack && line == "P" {
			return -1, true, nil
		}
		if len(line) == 1 && line[0] >= 'A' && line[0] <= maxLetter {
			return int(line[0] - 'A'), false, nil
		}
		fmt.Fprintf(out, "Invalid input. Enter a letter A-%c.\n", maxLetter)
	}
}

func chooseExam(client *examClient, in *bufio.Reader, out io.Writer) (string, error) {
	names, err := client.listExams()
	if err != nil {
		return "", fmt.Errorf("list exams: %w", err)
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no exams available yet")
	}

	fmt.Fprintln(out, "Available exams:")
	for i, name := range names {
		fmt.Fprintf(out, "%d. %s\n", i+1, name)
	}
	for {
		fmt.Fprintf(out, "Choose an exam (1-%d): ", len(names))
		line, err := in.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("read choice: %w", err)
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && n >= 1 && n <= len(names) {
			return names[n-1], nil
		}
		fmt.Fprintf(out, "Invalid input. Enter a number 1-%d.\n", len(names))
	}
}

// examClient is a thin client for the retrieval API.
type examClient struct {
	baseURL string
	http    *http.Client
}

func (c *examClient) get(path string, query url.Values, v any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	resp, err := c.http.Get(u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func (c *examClient) listExams() ([]string, error) {
	var names []string
	if err := c.get("/exam", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *examClient) fetchExam(name string) (model.Exam, error) {
	var exam model.Exam
	if err := c.get("/exam", url.Values{"object_name": {name}}, &exam); err != nil {
		return nil, err
	}
	if len(exam) == 0 {
		return nil, fmt.Errorf("exam %s is empty", name)
	}
	return exam, nil
}

func (c *examClient) postAttempt(a model.AttemptResult) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	resp, err := c.http.Post(c.baseURL+"/attempt", "application/json", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return apiError(resp)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, body.Error)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}
