package models

type ConfigFile struct {
	Address              string
	Port                 string
	BehindNginx          bool
	TlsCert              string
	TlsKey               string
	Cors                 bool
	PrintHttpRequests    bool
	LogToFile            bool
	LogLevel             string
	JwtSecret            string
	EncryptionKey        string
	SnowflakeWorkerID    int64
	SelfContained        bool
	DbUser               string
	DbPassword           string
	DbAddress            string
	DbPort               string
	DbDatabase           string
	RedisAddress         string
	RedisPassword        string
	MediaUrl             string
	VoiceWebhookSecret   string
	PresenceGraceSeconds int
}
