package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"guildgate-backend/internal/crypto"
	"guildgate-backend/internal/database"
	"guildgate-backend/internal/ephemeral"
	"guildgate-backend/internal/handlers"
	"guildgate-backend/internal/hub"
	"guildgate-backend/internal/jwt"
	"guildgate-backend/internal/migrate"
	"guildgate-backend/internal/models"
	"guildgate-backend/internal/observability"
	"guildgate-backend/internal/permissions"
	"guildgate-backend/internal/pipeline"
	"guildgate-backend/internal/snowflake"
	"guildgate-backend/internal/store"
	"guildgate-backend/internal/voice"
)

func setupLogger(cfg *models.ConfigFile) (*zap.SugaredLogger, error) {
	config := zap.NewProductionConfig()
	if cfg.LogToFile {
		config.OutputPaths = []string{"app.log", "stdout"}
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	config.Level = level

	logger, err := config.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func readConfigFile() (*models.ConfigFile, error) {
	configFile, err := os.Open("config.json")
	if err != nil {
		return nil, err
	}
	defer configFile.Close()

	bytes, err := io.ReadAll(configFile)
	if err != nil {
		return nil, err
	}

	var cfg models.ConfigFile
	if err := json.Unmarshal(bytes, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setupRedis(cfg *models.ConfigFile) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

func main() {
	migrateEncryption := flag.Bool("migrate-encryption", false, "encrypt legacy plaintext message rows and exit")
	flag.Parse()

	fmt.Println("Reading config file...")
	cfg, err := readConfigFile()
	if err != nil {
		fmt.Println(err)
		return
	}

	sugar, err := setupLogger(cfg)
	if err != nil {
		fmt.Println(err)
		return
	}

	fmt.Println("Connecting to database...")
	db, err := database.Setup(cfg)
	if err != nil {
		sugar.Fatal(err)
	}

	codec, err := crypto.NewCodec(cfg.EncryptionKey)
	if err != nil {
		sugar.Fatal(err)
	}

	st := store.New(sugar, db)

	if *migrateEncryption {
		migrated, err := migrate.New(sugar, st, codec).Run(context.Background())
		if err != nil {
			sugar.Fatal(err)
		}
		sugar.Infof("Encryption migration finished, %d rows rewritten", migrated)
		return
	}

	generator, err := snowflake.NewGenerator(cfg.SnowflakeWorkerID)
	if err != nil {
		sugar.Fatal(err)
	}

	var bus hub.Bus
	var eph *ephemeral.Store
	if cfg.SelfContained {
		bus = hub.NewLocalBus(sugar)
		eph = ephemeral.NewLocal(sugar)
	} else {
		fmt.Println("Connecting to redis...")
		redisClient, err := setupRedis(cfg)
		if err != nil {
			sugar.Fatal(err)
		}
		bus = hub.NewRedisBus(sugar, redisClient)
		eph = ephemeral.NewRedis(sugar, redisClient)
	}

	isHttps := cfg.TlsCert != "" && cfg.TlsKey != ""
	signer := jwt.NewSigner(cfg.JwtSecret, isHttps)
	perms := permissions.NewEngine(st)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	broadcaster := hub.NewBroadcaster(sugar, bus, metrics)

	pipe := pipeline.New(sugar, st, codec, perms, broadcaster, eph,
		&pipeline.LogNotifier{Sugar: sugar}, generator, metrics)
	bridge := voice.New(sugar, st, perms, signer, broadcaster, cfg.MediaUrl, cfg.VoiceWebhookSecret)

	gatewayHub := hub.NewHub(sugar, st, bus, pipe, bridge, eph, signer, broadcaster, metrics,
		time.Duration(cfg.PresenceGraceSeconds)*time.Second)

	router := handlers.New(sugar, cfg, st, codec, perms, signer, eph, gatewayHub, bridge,
		broadcaster, generator, metrics, registry).Router()

	address := fmt.Sprintf("%s:%s", cfg.Address, cfg.Port)
	fmt.Printf("Server is running on %s\n", address)

	if isHttps {
		err = http.ListenAndServeTLS(address, cfg.TlsCert, cfg.TlsKey, router)
	} else {
		err = http.ListenAndServe(address, router)
	}
	sugar.Fatal(err)
}
