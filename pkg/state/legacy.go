package state

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/quayside/cutover/pkg/types"
	bolt "go.etcd.io/bbolt"
)

// legacyColorKey is the variable the shell-script era kept the live color
// in, sed-edited in place inside the stack's .env file.
const legacyColorKey = "ACTIVE_COLOR"

// importLegacy seeds the state bucket from the legacy .env file, once. The
// import only runs when the database has no state yet; an already-seeded
// database always wins over the .env file.
func (s *BoltStore) importLegacy(envFile string) error {
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}

	vars, err := godotenv.Read(envFile)
	if err != nil {
		return fmt.Errorf("failed to read legacy env file: %w", err)
	}
	raw, ok := vars[legacyColorKey]
	if !ok {
		return nil
	}
	color, err := types.ParseColor(raw)
	if err != nil {
		return fmt.Errorf("legacy %s: %w", legacyColorKey, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		if b.Get(stateKey) != nil {
			return nil
		}

		state := defaultState()
		state.ActiveColor = color
		state.LastKnownGoodColor = color
		state.UpdatedAt = s.now()

		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		if err := b.Put(stateKey, data); err != nil {
			return err
		}
		s.logger.Info().
			Str("env_file", envFile).
			Str("active_color", color.String()).
			Msg("imported active color from legacy env file")
		return nil
	})
}
