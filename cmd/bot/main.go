package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/KickerMix/KotobulkaGPT-Bot/internal/auth"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/config"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/history"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/llm"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/ratelimit"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/roles"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/scheduler"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/session"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/storage"
	"github.com/KickerMix/KotobulkaGPT-Bot/internal/telegram"
)

func main() {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	cfg := config.New()

	var authRepo auth.Repository
	if cfg.AuthorizedFilePath != "" {
		repo, err := auth.NewFileRepository(cfg.AuthorizedFilePath)
		if err != nil {
			log.Printf("failed to init authorized users repo: %v", err)
		} else {
			authRepo = repo
		}
	}
	authSvc, err := auth.NewWithRepo(authRepo, cfg.SecretWord)
	if err != nil {
		log.Fatalf("failed to init auth: %v", err)
	}

	rolesSvc := roles.NewWithRepos(
		newRolesRepo(cfg.RolesFilePath),
		newRolesRepo(cfg.DefaultRolesFilePath),
		cfg.DefaultRole,
	)

	var rec storage.Recorder
	if cfg.HistoryFilePath != "" {
		fr, err := storage.NewFileRecorder(cfg.HistoryFilePath)
		if err != nil {
			log.Printf("failed to init file recorder: %v", err)
		} else {
			rec = fr
		}
	}

	var images *storage.ImageArchive
	if cfg.ImagesDirPath != "" {
		ia, err := storage.NewImageArchive(cfg.ImagesDirPath)
		if err != nil {
			log.Printf("failed to init image archive: %v", err)
		} else {
			images = ia
		}
	}

	llmClient, err := llm.NewFactory(cfg).CreateClient(string(cfg.LLMProvider), cfg.OpenAIModel)
	if err != nil {
		log.Fatalf("failed to create llm client: %v", err)
	}

	orch := session.New(
		authSvc,
		rolesSvc,
		history.NewManager(cfg.HistoryLimit),
		ratelimit.New(cfg.ImageRequestsPerHour, time.Hour),
		llmClient,
		rec,
		images,
		cfg.MaxImageDimension,
	)

	sched := scheduler.New()
	sched.SetMaintenanceFunc(func(ctx context.Context) error {
		orch.CompactRateWindows()
		return nil
	})
	if err := sched.Start(); err != nil {
		log.Printf("failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	bot, err := telegram.New(cfg.TelegramBotToken, orch, cfg.MessageParseMode, cfg.ImageRequestsPerHour)
	if err != nil {
		log.Fatalf("failed to create bot: %v", err)
	}

	bot.Start(context.Background())
}

func newRolesRepo(path string) roles.Repository {
	if path == "" {
		return nil
	}
	repo, err := roles.NewFileRepository(path)
	if err != nil {
		log.Printf("failed to init roles repo at %s: %v", path, err)
		return nil
	}
	return repo
}
