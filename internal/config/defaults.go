package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:               "~/.healthbot",
			LogLevel:              "info",
			LogFormat:             "text",
			Timezone:              "Asia/Kolkata",
			MaxConcurrentMessages: 8,
			TurnTTLSeconds:        600,
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          5000,
			PublicBaseURL: "http://localhost:5000",
			CallbackPath:  "/dialogflow",
		},
		Channels: ChannelsConfig{
			WhatsApp: WhatsAppConfig{
				Enabled:     true,
				APIBase:     "https://graph.facebook.com/v17.0",
				WebhookPath: "/webhook",
			},
			SMS: SMSConfig{
				Enabled:     false,
				APIBase:     "https://api.twilio.com",
				WebhookPath: "/sms",
			},
			Telegram: TelegramConfig{
				Enabled: false,
			},
		},
		Dialogflow: DialogflowConfig{
			APIBase:      "https://dialogflow.googleapis.com",
			LanguageCode: "en",
		},
		Translate: TranslateConfig{
			Enabled: true,
			APIBase: "https://translation.googleapis.com",
		},
		Generator: GeneratorConfig{
			APIBase:           "https://generativelanguage.googleapis.com/v1beta/openai/",
			Model:             "gemini-2.0-flash",
			Temperature:       0.4,
			MaxTokens:         1024,
			TimeoutS:          60,
			RequestsPerMinute: 60,
			Burst:             5,
		},
		Knowledge: KnowledgeConfig{
			QdrantURL:        "http://localhost:6333",
			Collection:       "health_kb",
			SearchTopK:       4,
			EmbeddingAPIBase: "http://localhost:8081/v1",
			EmbeddingModel:   "paraphrase-multilingual-MiniLM-L12-v2",
			ChunkSize:        400,
			ChunkOverlap:     50,
		},
		Speech: SpeechConfig{
			APIBase:              "https://api.openai.com/v1",
			STTModel:             "whisper-1",
			TTSModel:             "tts-1",
			Voice:                "alloy",
			CandidateLanguages:   []string{"en", "hi", "mr", "ta", "te", "bn"},
			AlternativeLanguages: []string{"en", "hi", "mr", "gu", "kn", "ml", "pa"},
			AudioDir:             "~/.healthbot/audio",
		},
		Reminders: RemindersConfig{
			Store:          "sqlite",
			DBPath:         "~/.healthbot/reminders.db",
			RetentionDays:  30,
			NotifyEnabled:  true,
			NotifySchedule: "@every 1m",
		},
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
