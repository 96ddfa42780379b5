package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"healthbot/internal/config"
	"healthbot/internal/memory"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the configuration and its dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("healthbot doctor v%s\n\n", version)

			passed, warned, failed := 0, 0, 0

			cfg, err := loadConfig()
			if err != nil {
				printFail("Config", err.Error())
				return fmt.Errorf("config invalid")
			}
			printPass("Config", cfgPath)
			passed++

			if missing := cfg.Missing(); len(missing) > 0 {
				printWarn("Settings", "missing "+strings.Join(missing, ", "))
				warned++
			} else {
				printPass("Settings", "all required settings present")
				passed++
			}

			if cfg.Reminders.Store == "sqlite" {
				if err := checkDatabase(cfg.Reminders.DBPath); err != nil {
					printFail("Reminder DB", err.Error())
					failed++
				} else {
					printPass("Reminder DB", cfg.Reminders.DBPath)
					passed++
				}
			}

			if err := checkHTTP(cfg.Knowledge.QdrantURL + "/collections/" + cfg.Knowledge.Collection); err != nil {
				printWarn("Qdrant", err.Error())
				warned++
			} else {
				printPass("Qdrant", cfg.Knowledge.QdrantURL)
				passed++
			}

			if err := checkPort(cfg.Server.Port); err != nil {
				printWarn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
				warned++
			} else {
				printPass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
				passed++
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	store, err := memory.NewSQLiteStore(config.ExpandPath(dbPath), logger)
	if err != nil {
		return err
	}
	defer store.Close()
	v, err := store.SchemaVersion(context.Background())
	if err != nil {
		return err
	}
	if v != memory.SchemaVersion {
		return fmt.Errorf("schema version %d, want %d", v, memory.SchemaVersion)
	}
	return nil
}

func checkHTTP(url string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("collection not found; run 'healthbot ingest'")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Fprintf(os.Stdout, "  [PASS] %-14s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Fprintf(os.Stdout, "  [FAIL] %-14s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Fprintf(os.Stdout, "  [WARN] %-14s %s\n", check, detail)
}
