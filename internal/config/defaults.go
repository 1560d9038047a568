package config

const (
	defaultDataDir                  = "~/.local/share/elicit"
	defaultAudioDir                 = "~/.local/share/elicit/audio"
	defaultLogDir                   = "~/.local/share/elicit/logs"
	defaultAPIBind                  = "127.0.0.1:8000"
	defaultStorageDriver            = "sqlite"
	defaultTranscriptionBaseURL     = "https://audio-turbo.us-virginia-1.direct.fireworks.ai/v1"
	defaultTranscriptionModel       = "whisper-v3-turbo"
	defaultTranscriptionLanguage    = "fr"
	defaultTranscriptionTimeout     = 120
	defaultEnhancementBaseURL       = "https://api.fireworks.ai/inference/v1"
	defaultEnhancementModel         = "accounts/fireworks/models/llama-v3p3-70b-instruct"
	defaultEnhancementMaxTokens     = 360
	defaultEnhancementTemperature   = 0.9
	defaultEnhancementTopP          = 0.9
	defaultEnhancementFreqPenalty   = 0.5
	defaultEnhancementPresPenalty   = 0.3
	defaultEnhancementTimeout       = 60
	defaultMaxAudioMiB              = 25
	defaultShutdownGraceSeconds     = 10
	defaultChunkSizeKiB             = 8
	defaultEventSendBuffer          = 64
	defaultEventWriteTimeoutSeconds = 10
	defaultEventPingIntervalSeconds = 30
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 30
)

// DefaultSystemPrompt frames enhancement requests for glassblowing demonstrations.
const DefaultSystemPrompt = `Vous êtes un expert en analyse des techniques de soufflage de verre. Votre tâche consiste à enrichir les transcriptions de démonstrations de soufflage de verre avec des informations contextuelles pertinentes.
Vous répondez formellement.
Basé sur la transcription fournie, ajoutez :
1. Informations sur les gestes pertinents (positions des mains, mouvements du corps)
2. Erreurs courantes lors de l'exécution de l'action décrite
3. Conseils d'experts pour une technique appropriée

Directives :
- Gardez la version étendue conversationnelle et fluide
- Restez étroitement aligné avec le contexte de la transcription
- N'ajoutez pas d'informations excessives ou non pertinentes
- Soyez spécifique concernant les outils, mouvements et techniques
- Mentionnez la position du corps, l'application de la force et la précision quand c'est pertinent
- Gardez la forme du texte concise et ciblée
- Évitez les répétitions inutiles
- Le texte doit être en français
- Utiliser que du texte brut, sans markdown ni balises HTML
- S'il n'y a pas assez d'informations dans la transcription pour ajouter des détails pertinents, répondre de manière très concise.

Le domaine de la tâche est : Soufflage de verre`

func defaultStopSequences() []string {
	return []string{"\n\nOriginal Transcript:", "\n\n---"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			AudioDir: defaultAudioDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Storage: Storage{
			Driver: defaultStorageDriver,
		},
		Transcription: Transcription{
			BaseURL:        defaultTranscriptionBaseURL,
			Model:          defaultTranscriptionModel,
			Language:       defaultTranscriptionLanguage,
			TimeoutSeconds: defaultTranscriptionTimeout,
		},
		Enhancement: Enhancement{
			BaseURL:          defaultEnhancementBaseURL,
			Model:            defaultEnhancementModel,
			MaxTokens:        defaultEnhancementMaxTokens,
			Temperature:      defaultEnhancementTemperature,
			TopP:             defaultEnhancementTopP,
			FrequencyPenalty: defaultEnhancementFreqPenalty,
			PresencePenalty:  defaultEnhancementPresPenalty,
			Stop:             defaultStopSequences(),
			SystemPrompt:     DefaultSystemPrompt,
			TimeoutSeconds:   defaultEnhancementTimeout,
		},
		Pipeline: Pipeline{
			MaxAudioMiB:       defaultMaxAudioMiB,
			ShutdownGraceSecs: defaultShutdownGraceSeconds,
		},
		Streaming: Streaming{
			ChunkSizeKiB: defaultChunkSizeKiB,
		},
		Events: Events{
			SendBuffer:          defaultEventSendBuffer,
			WriteTimeoutSeconds: defaultEventWriteTimeoutSeconds,
			PingIntervalSeconds: defaultEventPingIntervalSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
