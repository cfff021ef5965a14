package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"proofmeet/internal/config"
	"proofmeet/internal/courtcard"
	"proofmeet/internal/qrcode"
	"proofmeet/internal/queue"
	"proofmeet/internal/store"
)

// Worker consumes queue messages and renders QR court cards as PNG files.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "proofmeet:cards")
	}

	cardRepo := courtcard.NewRepository(db.Client)
	gen, err := qrcode.NewGenerator(cfg.QRCodeDir)
	if err != nil {
		log.Fatalf("qrcode dir: %v", err)
	}

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for messages...")
	for msg := range messages {
		switch msg.Type {
		case queue.TypeCardIssued:
			id := string(msg.Body)
			if err := renderCard(ctx, cardRepo, gen, id); err != nil {
				log.Printf("render card %s failed: %v", id, err)
			}
		case queue.TypeBulkReissue:
			ids, err := cardRepo.ListIDs(ctx)
			if err != nil {
				log.Printf("list cards failed: %v", err)
				continue
			}
			rendered, failed := 0, 0
			for _, id := range ids {
				if err := renderCard(ctx, cardRepo, gen, id); err != nil {
					log.Printf("render card %s failed: %v", id, err)
					failed++
					continue
				}
				rendered++
			}
			log.Printf("bulk re-render done: %d rendered, %d failed", rendered, failed)
		}
	}

	log.Println("worker stopped")
}

func renderCard(ctx context.Context, repo *courtcard.Repository, gen *qrcode.Generator, id string) error {
	card, err := repo.Get(ctx, id)
	if err != nil {
		return err
	}
	path, err := gen.Write(card.VerifyURL, card.ID)
	if err != nil {
		return err
	}
	log.Printf("card %s rendered to %s", card.ID, path)
	return nil
}
