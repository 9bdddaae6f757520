// Command pester polls a review system for open pull requests and relays
// their review status to a Slack channel, one thread per pull request.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bobg/mid"
	"github.com/bobg/subcmd/v2"
	"github.com/lmittmann/tint"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"pester"
	"pester/bitbucket"
	"pester/filestore"
	"pester/ghreader"
	"pester/slackgw"
	"pester/sqlite"
)

func main() {
	var c maincmd
	err := subcmd.Run(context.Background(), c, os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
}

type maincmd struct{}

func (maincmd) Subcmds() subcmd.Map {
	return subcmd.Commands(
		"serve", doServe, "run the pester notifier", subcmd.Params(
			"-config", subcmd.String, "config.yml", "path to config file",
		),
		"admin", doAdmin, "send an admin command to a running pester server", subcmd.Params(
			"-url", subcmd.String, "", "base URL of pester server",
			"-key", subcmd.String, "", "admin key",
		),
	)
}

type config struct {
	AdminKey             string            `yaml:"admin_key"`
	BitbucketURL         string            `yaml:"bitbucket_url"`
	BitbucketUsername    string            `yaml:"bitbucket_username"`
	BitbucketAppPassword string            `yaml:"bitbucket_app_password"`
	BitbucketToken       string            `yaml:"bitbucket_token"`
	DrainInterval        duration          `yaml:"drain_interval"`
	GithubAPIURL         string            `yaml:"github_api_url"` // "https://api.github.com/" or "https://HOST/api/v3/"
	GithubUploadURL      string            `yaml:"github_upload_url"`
	GithubToken          string            `yaml:"github_token"`
	Listen               string            `yaml:"listen"`
	LogLevel             string            `yaml:"log_level"`
	Mentions             map[string]string `yaml:"mentions"`
	PollInterval         duration          `yaml:"poll_interval"`
	Reader               string            `yaml:"reader"` // "bitbucket" or "github"
	RequestTimeout       duration          `yaml:"request_timeout"`
	Schedule             pester.Schedule   `yaml:"schedule"`
	SlackChannel         string            `yaml:"slack_channel"`
	SlackToken           string            `yaml:"slack_token"`
	Store                string            `yaml:"store"` // "file:PATH" or "sqlite3:PATH"
	Targets              []pester.Target   `yaml:"targets"`
}

var defaultConfig = config{
	BitbucketURL:    bitbucket.DefaultBaseURL,
	DrainInterval:   duration(5 * time.Second),
	GithubAPIURL:    "https://api.github.com/",
	GithubUploadURL: "https://uploads.github.com/",
	Listen:          ":3853",
	LogLevel:        "info",
	PollInterval:    duration(5 * time.Minute),
	Reader:          "bitbucket",
	RequestTimeout:  duration(30 * time.Second),
	Store:           "file:threads.json",
}

func doServe(ctx context.Context, configPath string, _ []string) error {
	f, err := os.Open(configPath)
	if err != nil {
		return errors.Wrap(err, "opening config file")
	}
	defer f.Close()

	c := defaultConfig
	err = yaml.NewDecoder(f).Decode(&c)
	if err != nil {
		return errors.Wrap(err, "parsing config file")
	}
	if err = c.Schedule.Validate(); err != nil {
		return errors.Wrap(err, "validating schedule")
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: parseLevel(c.LogLevel)}))

	threads, closeStore, err := openStore(ctx, c.Store)
	if err != nil {
		return errors.Wrap(err, "opening thread store")
	}
	defer closeStore()

	reader, err := newReader(ctx, &c)
	if err != nil {
		return errors.Wrap(err, "creating reader")
	}

	gateway := slackgw.New(c.SlackToken, c.SlackChannel)
	queue := pester.NewDeliveryQueue(gateway, threads, logger)

	s := &pester.Service{
		AdminKey: c.AdminKey,
		Logger:   logger,
		Mentions: pester.Mentions(c.Mentions),
		Queue:    queue,
		Reader:   reader,
		Targets:  c.Targets,
		Threads:  threads,
	}

	for _, target := range c.Targets {
		if err = reader.ValidateAccess(ctx, target.Workspace); err != nil {
			return errors.Wrapf(err, "validating access to workspace %s", target.Workspace)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go pollLoop(ctx, s, c.Schedule, time.Duration(c.PollInterval), logger)
	go drainLoop(ctx, queue, time.Duration(c.DrainInterval))

	mux := http.NewServeMux()
	httpServer := &http.Server{
		Addr:    c.Listen,
		Handler: mux,
	}
	ch := make(chan struct{})
	mux.Handle("/admin", mid.JSON(s.OnAdmin(httpServer, ch)))

	logger.Info("listening", "addr", httpServer.Addr)

	err = httpServer.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-ch
	return nil
}

// pollLoop runs a reconciliation cycle on each tick, skipping ticks that
// fall outside working hours and ticks that arrive while the previous cycle
// is still running.
func pollLoop(ctx context.Context, s *pester.Service, sched pester.Schedule, every time.Duration, logger *slog.Logger) {
	var running atomic.Bool

	cycle := func() {
		if !sched.Active(time.Now()) {
			return
		}
		if !running.CompareAndSwap(false, true) {
			logger.Warn("previous poll cycle still running, skipping this tick")
			return
		}
		defer running.Store(false)
		s.PollAll(ctx)
	}

	cycle()

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cycle()
		}
	}
}

// drainLoop triggers a delivery attempt on each tick. Drain itself refuses
// to overlap with an in-flight attempt.
func drainLoop(ctx context.Context, queue *pester.DeliveryQueue, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			queue.Drain(ctx)
		}
	}
}

func openStore(ctx context.Context, dsn string) (pester.ThreadStore, func() error, error) {
	parts := strings.SplitN(dsn, ":", 2)
	if len(parts) < 2 {
		return nil, nil, errors.Errorf("bad store config string %s", dsn)
	}
	switch parts[0] {
	case "file":
		store, err := filestore.Open(parts[1])
		return store, func() error { return nil }, err

	case "sqlite3":
		store, err := sqlite.Open(ctx, parts[1])
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return nil, nil, errors.Errorf("unknown store type %s", parts[0])
}

func newReader(ctx context.Context, c *config) (pester.Reader, error) {
	switch c.Reader {
	case "bitbucket":
		return &bitbucket.Client{
			BaseURL:  c.BitbucketURL,
			Username: c.BitbucketUsername,
			Password: c.BitbucketAppPassword,
			Token:    c.BitbucketToken,
			HTTP:     &http.Client{Timeout: time.Duration(c.RequestTimeout)},
		}, nil

	case "github":
		return ghreader.New(ctx, c.GithubAPIURL, c.GithubUploadURL, c.GithubToken)
	}
	return nil, errors.Errorf("unknown reader type %s", c.Reader)
}

func doAdmin(ctx context.Context, url, key string, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: pester admin -url URL -key KEY COMMAND")
	}
	cmd := pester.AdminCmd{
		Key:  key,
		Name: args[0],
	}
	enc, err := json.Marshal(cmd)
	if err != nil {
		return errors.Wrap(err, "marshaling command")
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url+"/admin", bytes.NewReader(enc))
	if err != nil {
		return errors.Wrap(err, "preparing request")
	}
	req.Header.Set("Content-Type", "application/json")
	var cl http.Client
	resp, err := cl.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending command to pester server")
	}
	defer resp.Body.Close()
	log.Printf("Response: %s", resp.Status)
	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		io.Copy(os.Stdout, resp.Body)
	}
	return nil
}

func parseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// duration wraps time.Duration with YAML decoding of strings like "5m".
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "parsing duration %q", s)
	}
	*d = duration(parsed)
	return nil
}

var _ fmt.Stringer = duration(0)

func (d duration) String() string { return time.Duration(d).String() }
