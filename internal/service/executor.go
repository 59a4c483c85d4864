package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/vidfetch/vidfetch/internal/log"
	"github.com/vidfetch/vidfetch/internal/model"
	"github.com/vidfetch/vidfetch/internal/ytdlp"
)

const defaultTailSize = 4000

// Classifier interprets the tool's standard error. It is the only place
// which depends on the tool's wording.
type Classifier interface {
	Subtitles(stderr string) model.SubtitleStatus
	PostProcess(stderr string) ytdlp.PostProcessIssue
}

// Executor runs one job through the acquisition tool and turns the outcome
// into an item result.
type Executor struct {
	tool       string
	defaults   ytdlp.Defaults
	runner     Runner
	classifier Classifier
	timeout    time.Duration
	tailSize   int
}

func NewExecutor(cfg model.Tool) Executor {
	return Executor{
		tool:       cfg.Path,
		defaults:   ytdlp.DefaultsFromConfig(cfg),
		runner:     NewRunner(),
		classifier: ytdlp.StderrClassifier{},
		timeout:    cfg.TimeoutDuration(),
		tailSize:   cfg.TailSize,
	}
}

// WithTimeout returns an executor whose commands use timeout, <= 0 disables it.
func (e Executor) WithTimeout(timeout time.Duration) Executor {
	e.timeout = timeout
	return e
}

// WithClassifier swaps the stderr classifier.
func (e Executor) WithClassifier(c Classifier) Executor {
	e.classifier = c
	return e
}

// Execute never fails: every problem ends up in the returned result.
func (e Executor) Execute(ctx context.Context, job model.Job) model.ItemResult {
	res := model.ItemResult{
		Index:          job.Index,
		URL:            job.URL,
		ExitCode:       -1,
		Files:          []model.File{},
		SubtitleStatus: model.SubtitleNone,
	}

	if job.Err != nil {
		res.Error = job.Err.Error()
		res.ErrorTag = "INVALID_ITEM"
		return res
	}

	if path, ok, err := localFile(job.URL); ok {
		if err != nil {
			res.Error = err.Error()
			res.ErrorTag = "LOCAL_FILE"
			return res
		}
		res.ExitCode = 0
		res.Success = true
		res.Files = []model.File{describe(path)}
		slog.DebugContext(ctx, "using local file", "path", path)
		return res
	}

	args := ytdlp.Args(job, e.defaults)
	res.Command = append([]string{e.tool}, args...)

	runner := e.runner.WithStderr(func(ctx context.Context, line string) {
		slog.DebugContext(ctx, "tool stderr", "line", line)
	})
	started := time.Now()
	out, err := runner.Run(ctx, Command{Path: e.tool, Args: args, Timeout: e.timeout})
	res.DurationMs = time.Since(started).Milliseconds()
	res.StdoutTail = tail(out.Stdout, e.tail())
	res.StderrTail = tail(out.Stderr, e.tail())

	if err != nil {
		var runErr *RunError
		if errors.As(err, &runErr) {
			res.ErrorTag = string(runErr.Tag)
		}
		res.Error = err.Error()
		slog.WarnContext(ctx, "tool did not finish", "error", err)
		return res
	}

	res.ExitCode = out.ExitCode
	res.Success = out.ExitCode == 0
	res.Files = artifacts(out.Stdout)

	if job.WantsSubtitles() {
		res.SubtitleStatus = e.classifier.Subtitles(out.Stderr)
	}
	if note, issue := e.audioNote(job, res.Files, out.Stderr); note != "" {
		res.DiagnosticNotes = append(res.DiagnosticNotes, note)
		res.Degraded = issue == ytdlp.PostProcessToolMissing || issue == ytdlp.PostProcessFailed
	}

	slog.DebugContext(log.ContextAttrs(ctx, slog.Int("exit_code", res.ExitCode)), "tool finished",
		"files", len(res.Files),
		"subtitles", res.SubtitleStatus,
		"elapsed", out.Elapsed().String(),
	)
	return res
}

func (e Executor) tail() int {
	if e.tailSize > 0 {
		return e.tailSize
	}
	return defaultTailSize
}

// audioNote explains why an audio only job produced a different container
// than the requested one.
func (e Executor) audioNote(job model.Job, files []model.File, stderr string) (string, ytdlp.PostProcessIssue) {
	want := strings.ToLower(strings.TrimPrefix(job.AudioFormat, "."))
	if !job.AudioOnly || want == "" || want == "best" || len(files) == 0 {
		return "", ytdlp.PostProcessUnknown
	}
	got := strings.ToLower(strings.TrimPrefix(filepath.Ext(files[0].Path), "."))
	if got == want {
		return "", ytdlp.PostProcessUnknown
	}
	issue := e.classifier.PostProcess(stderr)
	return fmt.Sprintf("requested %s audio but got %q: %s", want, got, issue), issue
}

// artifacts reads the paths printed by the tool, one per non blank line.
func artifacts(stdout string) []model.File {
	files := []model.File{}
	for line := range strings.Lines(stdout) {
		path := strings.TrimSpace(line)
		if path == "" {
			continue
		}
		files = append(files, describe(path))
	}
	return files
}

func describe(path string) model.File {
	f := model.File{
		Path:              path,
		NormalizedLocator: fileURI(path),
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return f
	}
	f.SizeBytes = info.Size()
	if mt, err := mimetype.DetectFile(path); err == nil {
		f.MimeType = mt.String()
	}
	return f
}

func fileURI(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return u.String()
}

// localFile recognises locators which point at a file on this machine. ok is
// false when the locator must be handed to the tool.
func localFile(locator string) (path string, ok bool, err error) {
	if strings.HasPrefix(locator, "file://") {
		u, perr := url.Parse(locator)
		if perr != nil {
			return "", true, fmt.Errorf("parsing local locator: %w", perr)
		}
		path = filepath.FromSlash(u.Path)
		info, serr := os.Stat(path)
		if serr != nil {
			return path, true, fmt.Errorf("local file: %w", serr)
		}
		if !info.Mode().IsRegular() {
			return path, true, fmt.Errorf("local file %s is not a regular file", path)
		}
		return path, true, nil
	}
	if strings.Contains(locator, "://") {
		return "", false, nil
	}
	info, serr := os.Stat(locator)
	if serr != nil || !info.Mode().IsRegular() {
		return "", false, nil
	}
	return locator, true, nil
}

// tail keeps the last n characters of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
