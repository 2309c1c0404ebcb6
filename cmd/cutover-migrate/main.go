package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	bolt "go.etcd.io/bbolt"
)

var (
	dataDir    = flag.String("data-dir", "/var/lib/cutover", "Cutover data directory")
	envFile    = flag.String("env-file", ".deploy.env", "Legacy .env file holding ACTIVE_COLOR")
	dryRun     = flag.Bool("dry-run", false, "Show what would be migrated without making changes")
	backupPath = flag.String("backup", "", "Path to backup the database before migration (default: <data-dir>/cutover.db.backup)")
	force      = flag.Bool("force", false, "Overwrite an existing state record")
)

var (
	bucketState = []byte("deployment_state")
	stateKey    = []byte("current")
)

// deploymentState mirrors the store's persisted record so the tool has no
// dependency on internal packages.
type deploymentState struct {
	ActiveColor        string    `json:"active_color"`
	LastKnownGoodColor string    `json:"last_known_good_color"`
	LastSwitchTime     time.Time `json:"last_switch_time"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Cutover State Migration Tool - .env → database")
	log.Println("==============================================")

	if _, err := os.Stat(*envFile); os.IsNotExist(err) {
		log.Fatalf("Legacy env file not found at %s", *envFile)
	}

	values, err := godotenv.Read(*envFile)
	if err != nil {
		log.Fatalf("Failed to parse %s: %v", *envFile, err)
	}

	color := strings.ToLower(strings.TrimSpace(values["ACTIVE_COLOR"]))
	if color == "" {
		log.Fatalf("No ACTIVE_COLOR entry in %s", *envFile)
	}
	if color != "blue" && color != "green" {
		log.Fatalf("ACTIVE_COLOR is %q; expected blue or green", color)
	}

	log.Printf("Legacy file: %s", *envFile)
	log.Printf("Active color: %s", color)
	log.Printf("Dry run: %v", *dryRun)

	dbPath := filepath.Join(*dataDir, "cutover.db")

	// Back up an existing database unless in dry-run mode.
	if !*dryRun {
		if _, err := os.Stat(dbPath); err == nil {
			backupFile := *backupPath
			if backupFile == "" {
				backupFile = dbPath + ".backup"
			}
			log.Printf("Creating backup: %s", backupFile)
			if err := copyFile(dbPath, backupFile); err != nil {
				log.Fatalf("Failed to create backup: %v", err)
			}
			log.Println("✓ Backup created successfully")
		} else if err := os.MkdirAll(*dataDir, 0o755); err != nil {
			log.Fatalf("Failed to create data directory: %v", err)
		}
	}

	if *dryRun {
		log.Println("\n[DRY RUN] Would perform the following operations:")
		log.Printf("1. Open (or create) %s", dbPath)
		log.Printf("2. Write state record: active=%s, known-good=%s", color, color)
		log.Println("3. Leave the legacy env file untouched")
		log.Println("\nDry run completed. No changes made.")
		log.Println("Run without --dry-run to perform the migration.")
		return
	}

	db, err := bolt.Open(dbPath, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := migrate(db, color, *force); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("\n✓ Migration completed successfully!")
	log.Printf("The legacy file %s is no longer consulted once a state record exists.", *envFile)
	log.Println("Verify with:")
	log.Println("  cutover status")
}

func migrate(db *bolt.DB, color string, force bool) error {
	return db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketState)
		if err != nil {
			return fmt.Errorf("failed to create state bucket: %w", err)
		}

		if existing := b.Get(stateKey); existing != nil && !force {
			var st deploymentState
			if err := json.Unmarshal(existing, &st); err == nil && st.ActiveColor != "" {
				log.Printf("⚠ State record already exists (active=%s)", st.ActiveColor)
				log.Println("Use --force to overwrite it.")
				return nil
			}
			log.Println("⚠ Existing state record is unreadable; overwriting")
		}

		now := time.Now().UTC()
		data, err := json.Marshal(deploymentState{
			ActiveColor:        color,
			LastKnownGoodColor: color,
			UpdatedAt:          now,
		})
		if err != nil {
			return fmt.Errorf("failed to encode state: %w", err)
		}
		if err := b.Put(stateKey, data); err != nil {
			return fmt.Errorf("failed to write state: %w", err)
		}

		log.Printf("✓ Wrote state record: active=%s, known-good=%s", color, color)
		return nil
	})
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, input, 0o600)
}
