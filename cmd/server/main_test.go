package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hozanderik1987-afk/myamara/internal/config"
)

func TestOpenRepositoryMemoryWritesDataFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "db.json")

	repo, closeFn, err := openRepository(context.Background(), config.Config{StoreDriver: config.DriverMemory, DataFile: path})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if closeFn != nil {
		t.Fatalf("expected no close func for memory store")
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected data file to be created: %v", err)
	}

	employees, err := repo.ListEmployees(context.Background())
	if err != nil {
		t.Fatalf("list employees: %v", err)
	}
	if len(employees) != 1 {
		t.Fatalf("expected seeded employee, got %d", len(employees))
	}
}

func TestOpenRepositorySQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "myamara.db")

	repo, closeFn, err := openRepository(context.Background(), config.Config{SQLitePath: path})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() {
		_ = closeFn()
	})

	employees, err := repo.ListEmployees(context.Background())
	if err != nil {
		t.Fatalf("list employees: %v", err)
	}
	if len(employees) != 1 || employees[0].ID != 1 {
		t.Fatalf("expected seeded employee, got %+v", employees)
	}
}
