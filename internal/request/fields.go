package request

import (
	"strings"

	"github.com/vidfetch/vidfetch/internal/model"
)

// get returns the first non blank value among the given spellings.
func (f Fields) get(names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(f[n]); v != "" {
			return v
		}
	}
	return ""
}

func (f Fields) truthy(names ...string) bool {
	return ParseTruthy(f.get(names...))
}

// JobFromFields maps the loosely typed request fields onto a Job. Unknown
// fields are ignored.
func JobFromFields(f Fields) model.Job {
	return model.Job{
		URL: f.get("url", "link", "source"),

		Format:        f.get("format", "ytdlpFormat"),
		AudioOnly:     f.truthy("audioOnly", "audio_only", "extractAudio"),
		AudioFormat:   f.get("audioFormat", "audio_format"),
		AudioQuality:  f.get("audioQuality", "audio_quality"),
		RemuxVideo:    f.get("remuxVideo", "remux_video", "remux"),
		RecodeVideo:   f.get("recodeVideo", "recode_video", "recode"),
		MergeFormat:   f.get("mergeOutputFormat", "merge_output_format"),
		OutputTmpl:    f.get("output", "outputTemplate", "output_template"),
		DownloadDir:   f.get("downloadDir", "download_dir"),
		SkipDownload:  f.truthy("skipDownload", "skip_download"),
		Playlist:      f.truthy("playlist", "yesPlaylist"),
		PlaylistItems: f.get("playlistItems", "playlist_items"),
		Sections:      f.get("downloadSections", "download_sections", "sections"),

		Subtitles:   f.truthy("writeSubs", "write_subs", "subtitles"),
		AutoSubs:    f.truthy("writeAutoSubs", "write_auto_subs", "autoSubs"),
		EmbedSubs:   f.truthy("embedSubs", "embed_subs"),
		SubLangs:    f.get("subLangs", "sub_langs", "subtitleLanguages"),
		SubFormat:   f.get("subFormat", "sub_format"),
		ConvertSubs: f.get("convertSubs", "convert_subs"),
		SubtitleDir: f.get("subtitleDir", "subtitle_dir"),

		Cookies:            f.get("cookies"),
		CookiesFromBrowser: f.get("cookiesFromBrowser", "cookies_from_browser"),
		Proxy:              f.get("proxy"),

		SleepRequests:    ParseFloat(f.get("sleepRequests", "sleep_requests"), 0),
		SleepSubtitles:   ParseFloat(f.get("sleepSubtitles", "sleep_subtitles"), 0),
		SleepInterval:    ParseFloat(f.get("sleepInterval", "sleep_interval"), 0),
		ExtractorRetries: ParseInt(f.get("extractorRetries", "extractor_retries"), 0),
		Retries:          ParseInt(f.get("retries"), 0),
		ExtractorArgs:    f.get("extractorArgs", "extractor_args"),
		Concurrent:       ParseInt(f.get("concurrentFragments", "concurrent_fragments", "concurrent"), 0),
		LimitRate:        f.get("limitRate", "limit_rate"),
	}
}
