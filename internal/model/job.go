package model

// Job is one fully resolved unit of work derived from a request.
type Job struct {
	// Index is the batch ordinal, nil in single mode.
	Index   *int
	Command string
	URL     string

	Format        string
	AudioOnly     bool
	AudioFormat   string
	AudioQuality  string
	RemuxVideo    string
	RecodeVideo   string
	MergeFormat   string
	OutputTmpl    string
	DownloadDir   string
	SkipDownload  bool
	Playlist      bool
	PlaylistItems string
	Sections      string

	Subtitles   bool
	AutoSubs    bool
	EmbedSubs   bool
	SubLangs    string
	SubFormat   string
	ConvertSubs string
	SubtitleDir string

	Cookies            string
	CookiesFromBrowser string
	Proxy              string

	SleepRequests    float64
	SleepSubtitles   float64
	SleepInterval    float64
	ExtractorRetries int
	Retries          int
	ExtractorArgs    string
	Concurrent       int
	LimitRate        string

	// Err is set when the item could not be decoded into a runnable job,
	// it is reported as a failed item without running the tool.
	Err error
}

// WantsSubtitles reports whether any subtitle extraction was requested.
func (j Job) WantsSubtitles() bool {
	return j.Subtitles || j.AutoSubs || j.EmbedSubs
}
