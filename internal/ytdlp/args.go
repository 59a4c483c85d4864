// Package ytdlp knows how to drive yt-dlp: it builds the argument vector for
// a job and interprets the wording yt-dlp uses on standard error.
package ytdlp

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/vidfetch/vidfetch/internal/model"
)

const (
	// PrintFilepath makes yt-dlp print every final artifact path on stdout,
	// after all post processors ran.
	PrintFilepath = "after_move:filepath"

	audioOnlyFormat = "bestaudio/best"
	defaultSubFmt   = "srt/vtt/best"

	// conservative throttling used whenever subtitles are requested
	subsSleepRequests    = 1.5
	subsSleepSubtitles   = 3
	subsExtractorRetries = 5
	youtubeClientArgs    = "youtube:player_client=default,mweb"
)

// Defaults are the environment level settings every job inherits.
type Defaults struct {
	FFmpegLocation     string
	Cookies            string
	CookiesFromBrowser string
	Proxy              string
	DownloadDir        string
	TempDir            string
	SubtitleDir        string
	OutputTemplate     string
	Format             string
}

func DefaultsFromConfig(cfg model.Tool) Defaults {
	return Defaults{
		FFmpegLocation:     cfg.FFmpegLocation,
		Cookies:            cfg.Cookies,
		CookiesFromBrowser: cfg.CookiesFromBrowser,
		Proxy:              cfg.Proxy,
		DownloadDir:        cfg.DownloadDir,
		TempDir:            cfg.TempDir,
		SubtitleDir:        cfg.SubtitleDir,
		OutputTemplate:     cfg.OutputTemplate,
		Format:             cfg.Format,
	}
}

// Args translates job into the yt-dlp argument vector. The order is stable:
//
//  1. safety flags
//  2. tool locations
//  3. cookies and proxy
//  4. paths (home, temp, subtitle)
//  5. output template
//  6. format selection
//  7. subtitles
//  8. throttling and retries
//  9. audio extraction, remux, recode
//  10. throughput
//  11. sections and playlist selection
//  12. final path printing
//  13. the locator, after "--"
//
// Absent optional fields produce no flags.
func Args(job model.Job, d Defaults) []string {
	args := []string{
		"--ignore-config",
		"--no-progress",
		"--color", "never",
		"--newline",
	}

	if d.FFmpegLocation != "" {
		args = append(args, "--ffmpeg-location", d.FFmpegLocation)
	}

	if v := pick(job.Cookies, d.Cookies); v != "" {
		args = append(args, "--cookies", v)
	}
	if v := pick(job.CookiesFromBrowser, d.CookiesFromBrowser); v != "" {
		args = append(args, "--cookies-from-browser", v)
	}
	if v := pick(job.Proxy, d.Proxy); v != "" {
		args = append(args, "--proxy", v)
	}

	if v := pick(job.DownloadDir, d.DownloadDir); v != "" {
		args = append(args, "-P", "home:"+v)
	}
	if d.TempDir != "" {
		args = append(args, "-P", "temp:"+d.TempDir)
	}
	if v := pick(job.SubtitleDir, d.SubtitleDir); v != "" {
		args = append(args, "-P", "subtitle:"+v)
	}

	if v := pick(job.OutputTmpl, d.OutputTemplate); v != "" {
		args = append(args, "-o", v)
	}

	switch {
	case job.Format != "":
		args = append(args, "-f", job.Format)
	case job.AudioOnly:
		args = append(args, "-f", audioOnlyFormat)
	case d.Format != "":
		args = append(args, "-f", d.Format)
	}
	if job.MergeFormat != "" {
		args = append(args, "--merge-output-format", job.MergeFormat)
	}

	wantsSubs := job.WantsSubtitles()
	if wantsSubs {
		if job.Subtitles || job.EmbedSubs {
			args = append(args, "--write-subs")
		}
		if job.AutoSubs {
			args = append(args, "--write-auto-subs")
		}
		if job.SubLangs != "" {
			args = append(args, "--sub-langs", job.SubLangs)
		}
		args = append(args, "--sub-format", pick(job.SubFormat, defaultSubFmt))
		if job.ConvertSubs != "" {
			args = append(args, "--convert-subs", job.ConvertSubs)
		}
		if job.EmbedSubs {
			args = append(args, "--embed-subs")
		}
	}

	sleepRequests := job.SleepRequests
	sleepSubtitles := job.SleepSubtitles
	extractorRetries := job.ExtractorRetries
	extractorArgs := job.ExtractorArgs
	if wantsSubs {
		if sleepRequests <= 0 {
			sleepRequests = subsSleepRequests
		}
		if sleepSubtitles <= 0 {
			sleepSubtitles = subsSleepSubtitles
		}
		if extractorRetries <= 0 {
			extractorRetries = subsExtractorRetries
		}
		if extractorArgs == "" && IsYouTube(job.URL) {
			extractorArgs = youtubeClientArgs
		}
	}
	if sleepRequests > 0 {
		args = append(args, "--sleep-requests", formatFloat(sleepRequests))
	}
	if sleepSubtitles > 0 {
		args = append(args, "--sleep-subtitles", formatFloat(sleepSubtitles))
	}
	if job.SleepInterval > 0 {
		args = append(args, "--sleep-interval", formatFloat(job.SleepInterval))
	}
	if extractorRetries > 0 {
		args = append(args, "--extractor-retries", strconv.Itoa(extractorRetries))
	}
	if job.Retries > 0 {
		args = append(args, "--retries", strconv.Itoa(job.Retries))
	}
	if extractorArgs != "" {
		args = append(args, "--extractor-args", extractorArgs)
	}

	if job.AudioOnly {
		args = append(args, "-x")
		if job.AudioFormat != "" {
			args = append(args, "--audio-format", job.AudioFormat)
		}
		if job.AudioQuality != "" {
			args = append(args, "--audio-quality", job.AudioQuality)
		}
	}
	if job.RemuxVideo != "" {
		args = append(args, "--remux-video", job.RemuxVideo)
	}
	if job.RecodeVideo != "" {
		args = append(args, "--recode-video", job.RecodeVideo)
	}

	if job.Concurrent > 0 {
		args = append(args, "-N", strconv.Itoa(job.Concurrent))
	}
	if job.LimitRate != "" {
		args = append(args, "--limit-rate", job.LimitRate)
	}

	if job.Sections != "" {
		args = append(args, "--download-sections", job.Sections)
	}
	if job.Playlist || job.PlaylistItems != "" {
		args = append(args, "--yes-playlist")
		if job.PlaylistItems != "" {
			args = append(args, "--playlist-items", job.PlaylistItems)
		}
	} else {
		args = append(args, "--no-playlist")
	}
	if job.SkipDownload {
		args = append(args, "--skip-download")
	}

	// --print implies --simulate, which would skip the download
	args = append(args, "--no-simulate", "--print", PrintFilepath)

	args = append(args, "--", job.URL)
	return args
}

// IsYouTube reports whether locator points to a YouTube host.
func IsYouTube(locator string) bool {
	u, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")
	host = strings.TrimPrefix(host, "music.")
	return host == "youtube.com" || host == "youtu.be" || host == "youtube-nocookie.com"
}

func pick(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
