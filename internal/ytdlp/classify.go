package ytdlp

import (
	"regexp"

	"github.com/vidfetch/vidfetch/internal/model"
)

// PostProcessIssue tells why the requested audio container was not produced.
type PostProcessIssue int

const (
	PostProcessUnknown PostProcessIssue = iota
	PostProcessToolMissing
	PostProcessFailed
)

func (p PostProcessIssue) String() string {
	switch p {
	case PostProcessToolMissing:
		return "post-processing tool unavailable"
	case PostProcessFailed:
		return "post-processing conversion failed"
	default:
		return "post-processing outcome unknown"
	}
}

var (
	rxRateLimited = regexp.MustCompile(`(?i)HTTP Error 429|too many requests|rate[- ]?limit`)
	rxNoSubs      = regexp.MustCompile(`(?i)there are no (automatic )?(subtitles|captions)|no subtitles (are available|for the requested)|(subtitles|captions) (are )?not available|has no (automatic )?(subtitles|captions)`)
	rxSubsFailed  = regexp.MustCompile(`(?i)unable to download (video )?(subtitles|captions)|(subtitles?|captions?)[^\n]*(error|failed)`)

	rxToolMissing = regexp.MustCompile(`(?i)ffmpeg( and ffprobe)? not found|ffprobe( and ffmpeg)? not found|ffprobe/avprobe and ffmpeg/avconv not found|ffmpeg is not installed`)
	rxConvFailed  = regexp.MustCompile(`(?i)postprocessing:|conversion failed|error[^\n]*(ffmpeg|extractaudio|audio conversion)`)
)

// StderrClassifier reads yt-dlp's human readable stderr. The wording is
// not a stable interface, anything unrecognised falls back to the neutral
// outcome.
type StderrClassifier struct{}

func (StderrClassifier) Subtitles(stderr string) model.SubtitleStatus {
	switch {
	case rxRateLimited.MatchString(stderr):
		return model.SubtitleRateLimited
	case rxNoSubs.MatchString(stderr):
		return model.SubtitleNotAvailable
	case rxSubsFailed.MatchString(stderr):
		return model.SubtitleFailed
	default:
		return model.SubtitleOK
	}
}

func (StderrClassifier) PostProcess(stderr string) PostProcessIssue {
	switch {
	case rxToolMissing.MatchString(stderr):
		return PostProcessToolMissing
	case rxConvFailed.MatchString(stderr):
		return PostProcessFailed
	default:
		return PostProcessUnknown
	}
}
