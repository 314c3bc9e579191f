package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all server configuration
type Config struct {
	Port           int
	LogLevel       string
	AllowedOrigins []string

	// Voice-live upstream
	VoiceLiveEndpoint   string // wss://... realtime endpoint
	VoiceLiveAPIKey     string
	VoiceLiveAPIVersion string
	VoiceLiveModel      string

	// Session registry
	RedisURL       string
	RedisPassword  string
	MaxSessions    int
	SessionTimeout time.Duration

	// Upstream connection behaviour
	DialAttempts  int
	DialBackoff   time.Duration // initial backoff, doubled per attempt
	KeepAlive     time.Duration // websocket ping period
	MaxMessageLen int64         // upstream read limit in bytes

	// Interruption tuning. Both are empirical values; keep them
	// configurable rather than baked into the controller.
	BargeInGrace time.Duration // ignore speech-started this long after session start
	MinStreaming time.Duration // ignore speech-started this soon after first audio

	// Session-configuration handshake
	TurnDetectionType      string
	TurnDetectionThreshold float64
	SilenceDurationMs      int
	PrefixPaddingMs        int
	VoiceName              string
	VoiceType              string
	VoiceTemperature       float64
	Greeting               string
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:                   8080,
		LogLevel:               "info",
		AllowedOrigins:         []string{"*"},
		VoiceLiveAPIVersion:    "2025-05-01-preview",
		VoiceLiveModel:         "gpt-4o",
		RedisURL:               "localhost:6379",
		RedisPassword:          "",
		MaxSessions:            100,
		SessionTimeout:         30 * time.Minute,
		DialAttempts:           3,
		DialBackoff:            time.Second,
		KeepAlive:              20 * time.Second,
		MaxMessageLen:          1024 * 1024,
		BargeInGrace:           10 * time.Second,
		MinStreaming:           200 * time.Millisecond,
		TurnDetectionType:      "azure_semantic_vad",
		TurnDetectionThreshold: 0.3,
		SilenceDurationMs:      200,
		PrefixPaddingMs:        200,
		VoiceName:              "en-US-Ava:DragonHDLatestNeural",
		VoiceType:              "azure-standard",
		VoiceTemperature:       0.8,
		Greeting:               "Hello",
	}

	// Required: VOICE_LIVE_ENDPOINT
	config.VoiceLiveEndpoint = os.Getenv("VOICE_LIVE_ENDPOINT")
	if config.VoiceLiveEndpoint == "" {
		return nil, fmt.Errorf("VOICE_LIVE_ENDPOINT environment variable is required")
	}

	// Required: VOICE_LIVE_API_KEY
	config.VoiceLiveAPIKey = os.Getenv("VOICE_LIVE_API_KEY")
	if config.VoiceLiveAPIKey == "" {
		return nil, fmt.Errorf("VOICE_LIVE_API_KEY environment variable is required")
	}

	if v := os.Getenv("VOICE_LIVE_API_VERSION"); v != "" {
		config.VoiceLiveAPIVersion = v
	}
	if v := os.Getenv("VOICE_LIVE_MODEL"); v != "" {
		config.VoiceLiveModel = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}

	// Optional: PORT
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT: %w", err)
		}
		config.Port = p
	}

	// Optional: ALLOWED_ORIGINS (comma-separated)
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	// Optional: REDIS_URL
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		config.RedisURL = redisURL
	}

	// Optional: REDIS_PASSWORD
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.RedisPassword = redisPassword
	}

	// Optional: MAX_SESSIONS
	if maxSessions := os.Getenv("MAX_SESSIONS"); maxSessions != "" {
		m, err := strconv.Atoi(maxSessions)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_SESSIONS: %w", err)
		}
		config.MaxSessions = m
	}

	// Optional: SESSION_TIMEOUT (in minutes)
	if timeout := os.Getenv("SESSION_TIMEOUT"); timeout != "" {
		t, err := strconv.Atoi(timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_TIMEOUT: %w", err)
		}
		config.SessionTimeout = time.Duration(t) * time.Minute
	}

	// Optional: DIAL_ATTEMPTS
	if attempts := os.Getenv("DIAL_ATTEMPTS"); attempts != "" {
		a, err := strconv.Atoi(attempts)
		if err != nil || a < 1 {
			return nil, fmt.Errorf("invalid DIAL_ATTEMPTS: %q", attempts)
		}
		config.DialAttempts = a
	}

	// Optional: DIAL_BACKOFF_MS
	if backoff := os.Getenv("DIAL_BACKOFF_MS"); backoff != "" {
		b, err := strconv.Atoi(backoff)
		if err != nil {
			return nil, fmt.Errorf("invalid DIAL_BACKOFF_MS: %w", err)
		}
		config.DialBackoff = time.Duration(b) * time.Millisecond
	}

	// Optional: KEEPALIVE_PERIOD (in seconds)
	if keepalive := os.Getenv("KEEPALIVE_PERIOD"); keepalive != "" {
		k, err := strconv.Atoi(keepalive)
		if err != nil {
			return nil, fmt.Errorf("invalid KEEPALIVE_PERIOD: %w", err)
		}
		config.KeepAlive = time.Duration(k) * time.Second
	}

	// Optional: MAX_MESSAGE_LEN (in bytes)
	if maxLen := os.Getenv("MAX_MESSAGE_LEN"); maxLen != "" {
		l, err := strconv.ParseInt(maxLen, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MAX_MESSAGE_LEN: %w", err)
		}
		config.MaxMessageLen = l
	}

	// Optional: BARGE_IN_GRACE_MS
	if grace := os.Getenv("BARGE_IN_GRACE_MS"); grace != "" {
		g, err := strconv.Atoi(grace)
		if err != nil {
			return nil, fmt.Errorf("invalid BARGE_IN_GRACE_MS: %w", err)
		}
		config.BargeInGrace = time.Duration(g) * time.Millisecond
	}

	// Optional: MIN_STREAMING_MS
	if minStreaming := os.Getenv("MIN_STREAMING_MS"); minStreaming != "" {
		m, err := strconv.Atoi(minStreaming)
		if err != nil {
			return nil, fmt.Errorf("invalid MIN_STREAMING_MS: %w", err)
		}
		config.MinStreaming = time.Duration(m) * time.Millisecond
	}

	// Optional: turn-detection overrides
	if v := os.Getenv("TURN_DETECTION_TYPE"); v != "" {
		config.TurnDetectionType = v
	}
	if v := os.Getenv("TURN_DETECTION_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TURN_DETECTION_THRESHOLD: %w", err)
		}
		config.TurnDetectionThreshold = f
	}
	if v := os.Getenv("SILENCE_DURATION_MS"); v != "" {
		s, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SILENCE_DURATION_MS: %w", err)
		}
		config.SilenceDurationMs = s
	}
	if v := os.Getenv("PREFIX_PADDING_MS"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PREFIX_PADDING_MS: %w", err)
		}
		config.PrefixPaddingMs = p
	}

	// Optional: voice overrides
	if v := os.Getenv("SESSION_VOICE_NAME"); v != "" {
		config.VoiceName = v
	}
	if v := os.Getenv("SESSION_VOICE_TYPE"); v != "" {
		config.VoiceType = v
	}
	if v := os.Getenv("SESSION_VOICE_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SESSION_VOICE_TEMPERATURE: %w", err)
		}
		config.VoiceTemperature = f
	}
	if v := os.Getenv("GREETING_TEXT"); v != "" {
		config.Greeting = v
	}

	return config, nil
}
