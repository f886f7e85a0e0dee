package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	vegeta "github.com/tsenart/vegeta/v12/lib"
	"go.uber.org/zap"

	"github.com/iliyamo/hello-counter/internal/log"
	"github.com/iliyamo/hello-counter/internal/model"
)

var (
	myName = filepath.Base(os.Args[0])
	logger *zap.SugaredLogger
)

type urlsFlag []string

func (u *urlsFlag) String() string     { return strings.Join(*u, ",") }
func (u *urlsFlag) Set(v string) error { *u = append(*u, v); return nil }

var (
	optURLs     urlsFlag
	optRequests = flag.Uint64("requests", 100, "Number of POST requests to fire")
	optWorkers  = flag.Uint64("workers", vegeta.DefaultWorkers, "Number of workers")
	optTimeout  = flag.Duration("timeout", 30*time.Second, "Per request timeout")
	optLogLevel = flag.String("log-level", "info", "info|warn|error")
)

func init() {
	godotenv.Load()

	flag.Var(&optURLs, "url", "Base URL of a replica, repeatable (default http://localhost:5000/)")
	flag.Parse()

	logger = log.Must(log.NewLogger(log.WithLogLevel(*optLogLevel))).Sugar().With(zap.String("app", myName))
}

// readCount fetches GET / and returns post_request_count.
func readCount(ctx context.Context, client *http.Client, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	var body model.CounterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("GET %s: decode: %w", url, err)
	}
	return body.PostRequestCount, nil
}

func main() {
	if len(optURLs) == 0 {
		optURLs = urlsFlag{"http://localhost:5000/"}
	}
	if *optRequests == 0 {
		logger.Fatalf("*** --requests must be positive.")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *optTimeout)
	defer cancel()
	client := &http.Client{Timeout: *optTimeout}

	before, err := readCount(ctx, client, optURLs[0])
	if err != nil {
		logger.Fatalf("*** read before: %v", err)
	}

	targets := make([]vegeta.Target, 0, len(optURLs))
	for _, u := range optURLs {
		targets = append(targets, vegeta.Target{Method: http.MethodPost, URL: u})
	}
	atk := vegeta.NewAttacker(vegeta.Workers(*optWorkers), vegeta.Timeout(*optTimeout))
	rate := vegeta.Rate{Freq: int(*optRequests), Per: time.Second}

	var metrics vegeta.Metrics
	for res := range atk.Attack(vegeta.NewStaticTargeter(targets...), rate, time.Second, "loadcheck") {
		metrics.Add(res)
	}
	metrics.Close()

	ok := int64(metrics.StatusCodes["200"])

	ctx2, cancel2 := context.WithTimeout(context.Background(), *optTimeout)
	defer cancel2()
	after, err := readCount(ctx2, client, optURLs[0])
	if err != nil {
		logger.Fatalf("*** read after: %v", err)
	}

	logger.Infof("requests=%s ok=%s before=%s after=%s p99=%s",
		humanize.Comma(int64(metrics.Requests)), humanize.Comma(ok),
		humanize.Comma(before), humanize.Comma(after), metrics.Latencies.P99)

	// other clients may also be posting; a smaller delta is a lost update
	if after-before < ok {
		logger.Errorf("*** lost updates: counter grew by %d, %d POSTs succeeded", after-before, ok)
		os.Exit(1)
	}
	if after-before > ok {
		logger.Warnf("counter grew by %d but only %d POSTs succeeded here; another writer is active", after-before, ok)
	}
}
