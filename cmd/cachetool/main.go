package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"fleet-route-planner/internal/adapters/cache"
	"fleet-route-planner/internal/config"
)

// cachetool inspects and maintains the matrix cache.
//
//	cachetool ls           list disk cache entries
//	cachetool purge        remove expired or corrupt disk entries
//	cachetool init-db      create the postgres cache schema
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found (using environment variables)")
	}

	dir := flag.String("dir", config.Get("CACHE_DIR", "cache"), "disk cache directory")
	ttl := flag.Duration("ttl", 24*time.Hour, "entry time-to-live")
	flag.Parse()

	cmd := flag.Arg(0)
	switch cmd {
	case "ls":
		listEntries(*dir, *ttl)
	case "purge":
		purgeEntries(*dir, *ttl)
	case "init-db":
		initDB()
	default:
		fmt.Fprintln(os.Stderr, "usage: cachetool [-dir DIR] [-ttl TTL] {ls|purge|init-db}")
		os.Exit(2)
	}
}

func listEntries(dir string, ttl time.Duration) {
	c := cache.NewDiskMatrixCache(dir, ttl)
	entries, err := c.List(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	if len(entries) == 0 {
		fmt.Println("cache is empty")
		return
	}
	for _, e := range entries {
		if e.Corrupt {
			fmt.Printf("%s  CORRUPT\n", e.Key)
			continue
		}
		status := "ok"
		if e.Expired {
			status = "expired"
		}
		fmt.Printf("%s  provider=%s n=%d age=%s %s\n",
			e.Key, e.Provider, e.Size, time.Since(e.CreatedAt).Round(time.Minute), status)
	}
}

func purgeEntries(dir string, ttl time.Duration) {
	c := cache.NewDiskMatrixCache(dir, ttl)
	removed, err := c.Purge(context.Background())
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("removed %d stale entries\n", removed)
}

func initDB() {
	dsn := os.Getenv("DATABASE_URL")
	if strings.TrimSpace(dsn) == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	log.Println("Initializing matrix cache schema...")
	if err := cache.InitSQLSchema(context.Background(), db); err != nil {
		log.Fatalf("schema initialization failed: %v", err)
	}
	log.Println("Schema ready.")
}
