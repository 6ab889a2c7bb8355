package config

const (
	defaultContentRoot = "~/.local/share/factreel/episodes"
	defaultLogDir      = "~/.local/share/factreel/logs"
	defaultLogFormat   = "console"
	defaultLogLevel    = "info"

	defaultTargetCount          = 20
	defaultMinCount             = 8
	defaultMaxCount             = 12
	defaultQualityThreshold     = 6.5
	defaultFallbackThreshold    = 6.0
	defaultAutoIncludeThreshold = 8.5
	defaultMaxCategoryFraction  = 0.5
	defaultSimilarityThreshold  = 0.7
	defaultAnalysisMaxAttempts  = 3

	defaultRetryMaxAttempts  = 3
	defaultRetryBaseDelay    = 2
	defaultPerCallTimeout    = 300
	defaultTTSWorkers        = 2
	defaultClipWorkers       = 2
	defaultLLMBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMFilesURL       = "https://openrouter.ai/api/v1/files"
	defaultLLMModel          = "google/gemini-3-flash-preview"
	defaultLLMReferer        = "https://github.com/factreel/factreel"
	defaultLLMTitle          = "Factreel Analysis"
	defaultLLMTimeoutSecs    = 120
	defaultTTSBaseURL        = "https://api.openai.com/v1/audio/speech"
	defaultTTSModel          = "gpt-4o-mini-tts"
	defaultTTSVoice          = "onyx"
	defaultTTSTimeoutSecs    = 120
	defaultDownloaderBinary  = "yt-dlp"
	defaultDownloaderTimeout = 1800
	defaultDiarizerBinary    = "whisperx"
	defaultDiarizerModel     = "large-v3-turbo"
	defaultDiarizerLanguage  = "en"
	defaultDiarizerTimeout   = 3600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ContentRoot: defaultContentRoot,
			LogDir:      defaultLogDir,
		},
		Analysis: Analysis{
			TargetCount:          defaultTargetCount,
			MinCount:             defaultMinCount,
			MaxCount:             defaultMaxCount,
			QualityThreshold:     defaultQualityThreshold,
			FallbackThreshold:    defaultFallbackThreshold,
			AutoIncludeThreshold: defaultAutoIncludeThreshold,
			MaxCategoryFraction:  defaultMaxCategoryFraction,
			SimilarityThreshold:  defaultSimilarityThreshold,
			MaxAttempts:          defaultAnalysisMaxAttempts,
		},
		Retry: Retry{
			MaxAttempts:           defaultRetryMaxAttempts,
			BaseDelaySeconds:      defaultRetryBaseDelay,
			PerCallTimeoutSeconds: defaultPerCallTimeout,
		},
		Concurrency: Concurrency{
			TTSWorkers:  defaultTTSWorkers,
			ClipWorkers: defaultClipWorkers,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			FilesURL:       defaultLLMFilesURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSecs,
		},
		TTS: TTS{
			BaseURL:        defaultTTSBaseURL,
			Model:          defaultTTSModel,
			Voice:          defaultTTSVoice,
			TimeoutSeconds: defaultTTSTimeoutSecs,
		},
		Downloader: Downloader{
			Binary:         defaultDownloaderBinary,
			TimeoutSeconds: defaultDownloaderTimeout,
		},
		Diarizer: Diarizer{
			Binary:         defaultDiarizerBinary,
			Model:          defaultDiarizerModel,
			Language:       defaultDiarizerLanguage,
			TimeoutSeconds: defaultDiarizerTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
