package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"eunify/feed/internal/assets"
	"eunify/feed/internal/config"
	"eunify/feed/internal/docstore"
	"eunify/feed/internal/feed"
	"eunify/feed/internal/identity"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var docs docstore.Store
	if cfg.DocstoreBackend() == "postgres" {
		log.Printf("Using postgres document store")
		pgStore, err := docstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("database connection failed: %v", err)
		}
		docs = pgStore
	} else {
		log.Printf("Using redis document store")
		redisStore, err := docstore.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		docs = redisStore
	}
	defer docs.Close()

	blobs, err := assets.NewMinio(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
		cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioPublicURL, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("asset store connection failed: %v", err)
	}

	who := identity.NewStatic(cfg.UserEmail, cfg.UserName)

	coordinator := feed.NewCoordinator(docs, blobs, who)
	if err := coordinator.Start(ctx); err != nil {
		log.Fatalf("feed start failed: %v", err)
	}
	defer coordinator.Close()

	cancel := coordinator.Posts.Subscribe(func(posts []feed.Post) {
		now := time.Now()
		log.Printf("feed: %d posts", len(posts))
		for _, category := range feed.Categories {
			for _, post := range feed.Project(posts, category) {
				log.Printf("  [%s] %s %s: %s", category, post.AuthorHandle,
					feed.TimeAgo(post.CreatedAt, now), post.Content)
			}
		}
	})
	defer cancel()

	log.Printf("feedd watching posts as %s", who.Current().Handle())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
