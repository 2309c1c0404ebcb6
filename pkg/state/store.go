package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quayside/cutover/pkg/log"
	"github.com/quayside/cutover/pkg/types"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketState   = []byte("deployment_state")
	bucketHistory = []byte("deployment_history")

	// stateKey is the single fixed key under bucketState; the deployment
	// state is one record, overwritten in place.
	stateKey = []byte("current")
)

const (
	// DBFileName is the BoltDB file created under the data directory
	DBFileName = "cutover.db"

	// DefaultLockTimeout bounds the wait for the exclusive file lock; a
	// second cutover process fails fast instead of queueing behind the
	// first.
	DefaultLockTimeout = 1 * time.Second
)

// Store persists which color is live plus the audit history of deployment
// attempts. Exactly one open Store exists per in-flight operation; the
// backing database file carries an exclusive lock.
type Store interface {
	// Get returns the current deployment state. A missing or corrupt record
	// yields the documented bootstrap default (blue) with a logged warning,
	// never a nil state on nil error.
	Get(ctx context.Context) (*types.DeploymentState, error)

	// SetActive durably records color as the live slot and stamps the
	// switch time. The rollback target (LastKnownGoodColor) is untouched;
	// restoring it is exactly what rollback does.
	SetActive(ctx context.Context, color types.Color) error

	// CommitSwitch durably records a verified cutover: color becomes the
	// live slot and the previously live slot becomes the rollback target.
	// The update is a single atomic transaction.
	CommitSwitch(ctx context.Context, color types.Color) error

	// Record appends one deployment attempt to the history.
	Record(ctx context.Context, rec *types.DeploymentRecord) error

	// History returns the most recent records, newest first.
	History(ctx context.Context, limit int) ([]*types.DeploymentRecord, error)

	Close() error
}

// Options configures Open.
type Options struct {
	// DataDir holds the database file; created if absent.
	DataDir string

	// LegacyEnvFile, when set, names the .env file the shell-script era
	// kept ACTIVE_COLOR in. Imported once if the database has no state.
	LegacyEnvFile string

	// LockTimeout bounds the wait for the exclusive file lock
	// (default 1s).
	LockTimeout time.Duration
}

// BoltStore implements Store using BoltDB. Every update is an fsynced
// transaction, and the open database file holds an exclusive flock, which
// doubles as the single-flight guard for deploy/switch/rollback.
type BoltStore struct {
	db     *bolt.DB
	logger zerolog.Logger
	now    func() time.Time
}

// Open opens (creating if needed) the state database under opts.DataDir.
// A concurrent cutover process holding the lock surfaces as
// types.ErrLockBusy.
func Open(opts Options) (*BoltStore, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("state: data directory is required")
	}
	if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lockTimeout := opts.LockTimeout
	if lockTimeout == 0 {
		lockTimeout = DefaultLockTimeout
	}

	dbPath := filepath.Join(opts.DataDir, DBFileName)
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: lockTimeout})
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, fmt.Errorf("acquiring state lock on %s: %w", dbPath, types.ErrLockBusy)
		}
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketState, bucketHistory} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{
		db:     db,
		logger: log.WithComponent("state"),
		now:    time.Now,
	}

	if opts.LegacyEnvFile != "" {
		if err := s.importLegacy(opts.LegacyEnvFile); err != nil {
			s.logger.Warn().Err(err).Str("env_file", opts.LegacyEnvFile).
				Msg("legacy state import failed, continuing with defaults")
		}
	}

	return s, nil
}

// Close closes the database and releases the single-flight lock.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// defaultState is the documented bootstrap default: blue is live and is its
// own rollback target.
func defaultState() *types.DeploymentState {
	return &types.DeploymentState{
		ActiveColor:        types.ColorBlue,
		LastKnownGoodColor: types.ColorBlue,
	}
}

func (s *BoltStore) Get(ctx context.Context) (*types.DeploymentState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var state *types.DeploymentState
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketState).Get(stateKey)
		if data == nil {
			return nil
		}
		decoded := &types.DeploymentState{}
		if err := json.Unmarshal(data, decoded); err != nil {
			return fmt.Errorf("%w: %v", types.ErrStateCorrupt, err)
		}
		if !decoded.ActiveColor.Valid() || !decoded.LastKnownGoodColor.Valid() {
			return fmt.Errorf("%w: invalid color %q", types.ErrStateCorrupt, decoded.ActiveColor)
		}
		state = decoded
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrStateCorrupt) {
			// Recoverable: fall back to the documented default, loudly.
			s.logger.Error().Err(err).
				Str("default", defaultState().ActiveColor.String()).
				Msg("persisted deployment state is corrupt, using default")
			return defaultState(), nil
		}
		return nil, err
	}
	if state == nil {
		s.logger.Warn().
			Str("default", defaultState().ActiveColor.String()).
			Msg("no deployment state recorded yet, using default")
		return defaultState(), nil
	}
	return state, nil
}

func (s *BoltStore) SetActive(ctx context.Context, color types.Color) error {
	return s.update(ctx, color, func(state *types.DeploymentState) {
		state.ActiveColor = color
		state.LastSwitchTime = s.now()
	})
}

func (s *BoltStore) CommitSwitch(ctx context.Context, color types.Color) error {
	return s.update(ctx, color, func(state *types.DeploymentState) {
		if state.ActiveColor != color {
			state.LastKnownGoodColor = state.ActiveColor
		}
		state.ActiveColor = color
		state.LastSwitchTime = s.now()
	})
}

// update applies mutate to the current (or default) state in one
// transaction.
func (s *BoltStore) update(ctx context.Context, color types.Color, mutate func(*types.DeploymentState)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !color.Valid() {
		return fmt.Errorf("invalid color %q", color)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)

		state := defaultState()
		if data := b.Get(stateKey); data != nil {
			if err := json.Unmarshal(data, state); err != nil {
				// Overwriting corrupt state with a valid record is the
				// recovery path; start from the default.
				s.logger.Error().Err(err).Msg("overwriting corrupt deployment state")
				state = defaultState()
			}
		}

		mutate(state)
		state.UpdatedAt = s.now()

		data, err := json.Marshal(state)
		if err != nil {
			return err
		}
		return b.Put(stateKey, data)
	})
}

func (s *BoltStore) Record(ctx context.Context, rec *types.DeploymentRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketHistory)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		// Zero-padded sequence keys keep bucket order == insertion order.
		return b.Put([]byte(fmt.Sprintf("%020d", seq)), data)
	})
}

func (s *BoltStore) History(ctx context.Context, limit int) ([]*types.DeploymentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []*types.DeploymentRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketHistory).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				return nil
			}
			var rec types.DeploymentRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				s.logger.Warn().Err(err).Str("key", string(k)).Msg("skipping unreadable history record")
				continue
			}
			records = append(records, &rec)
		}
		return nil
	})
	return records, err
}
