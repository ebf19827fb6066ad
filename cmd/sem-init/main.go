// sem-init creates a fresh expense database and seeds the category
// registry file. It refuses to touch an existing database.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"sem/internal/cli"
	"sem/internal/config"
	"sem/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	cli.SetupLogger()

	cfg := config.Load()
	dbPath := flag.String("db", cfg.DBPath, "path of the database file to create")
	categoriesPath := flag.String("categories", cfg.CategoriesFile, "path of the category registry file")
	flag.Parse()

	store, err := storage.Initialize(*dbPath)
	if err != nil {
		slog.Error("Failed to create database", "error", err, "path", *dbPath)
		os.Exit(1)
	}
	defer store.Close()

	cats, err := config.LoadOrCreateCategories(*categoriesPath)
	if err != nil {
		slog.Error("Failed to seed category registry", "error", err, "path", *categoriesPath)
		os.Exit(1)
	}

	fmt.Printf("Created %s\n", *dbPath)
	fmt.Printf("Categories (%s): %s\n", *categoriesPath, cats.Letters())
}
