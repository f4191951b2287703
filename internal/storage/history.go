// Package storage keeps a history of finished runs in a bbolt database.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/therenotomorrow/ex"
	"go.etcd.io/bbolt"

	"github.com/wesleyorama2/swarmer/internal/swarm/engine"
)

const (
	BucketRuns = "runs"

	// keyTimeLayout is fixed width so that keys sort by start time.
	keyTimeLayout = "20060102T150405.000000000Z"

	openTimeout = 2 * time.Second
)

const (
	ErrNotFound  = ex.Error("run not found")
	ErrAmbiguous = ex.Error("run id prefix matches several runs")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RunRecord is the summary of one run kept in the history.
type RunRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Executor  string    `json:"executor"`
	StartTime time.Time `json:"startTime"`

	Duration    time.Duration `json:"duration"`
	Users       int           `json:"users"`
	SpawnRate   float64       `json:"spawnRate"`
	Spawned     int           `json:"spawned"`
	Interrupted bool          `json:"interrupted"`

	TotalRequests  int64         `json:"totalRequests"`
	FailedRequests int64         `json:"failedRequests"`
	RPS            float64       `json:"rps"`
	LatencyAvg     time.Duration `json:"latencyAvg"`
	LatencyP95     time.Duration `json:"latencyP95"`
	LatencyP99     time.Duration `json:"latencyP99"`

	Passed bool `json:"passed"`
}

// NewRunRecord summarizes a run result for the history.
func NewRunRecord(result *engine.TestResult) RunRecord {
	rec := RunRecord{
		ID:          result.RunID,
		Name:        result.Name,
		Host:        result.Host,
		Executor:    result.Executor,
		StartTime:   result.StartTime,
		Duration:    result.Duration,
		Users:       result.Users,
		SpawnRate:   result.SpawnRate,
		Spawned:     result.Spawned,
		Interrupted: result.Interrupted,
		Passed:      result.Passed,
	}
	if m := result.Metrics; m != nil {
		rec.TotalRequests = m.TotalRequests
		rec.FailedRequests = m.FailedRequests
		rec.RPS = m.RPS
		rec.LatencyAvg = m.Latency.Mean
		rec.LatencyP95 = m.Latency.P95
		rec.LatencyP99 = m.Latency.P99
	}
	return rec
}

func (r RunRecord) key() []byte {
	return []byte(r.StartTime.UTC().Format(keyTimeLayout) + "/" + r.ID)
}

// History is the run history database.
type History struct {
	db   *bbolt.DB
	path string
}

// DefaultPath returns ~/.swarmer/history.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".swarmer", "history.db"), nil
}

// Open opens or creates the history database at path.
func Open(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(BucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history: %w", err)
	}

	return &History{db: db, path: path}, nil
}

// Path returns the database file path.
func (h *History) Path() string {
	return h.path
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

// Save stores rec.
func (h *History) Save(rec RunRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("run record has no id")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode run record: %w", err)
	}

	return h.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketRuns)).Put(rec.key(), data)
	})
}

// List returns up to limit records, newest first. A limit of zero or less
// returns every record.
func (h *History) List(limit int) ([]RunRecord, error) {
	var records []RunRecord

	err := h.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(BucketRuns)).Cursor()

		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}

			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Get returns the record whose id is or starts with id.
func (h *History) Get(id string) (*RunRecord, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	var found *RunRecord
	err := h.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketRuns)).ForEach(func(k, v []byte) error {
			_, runID, _ := strings.Cut(string(k), "/")
			if !strings.HasPrefix(runID, id) {
				return nil
			}
			if found != nil {
				return fmt.Errorf("%w: %s", ErrAmbiguous, id)
			}

			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("corrupt record %s: %w", k, err)
			}
			found = &rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

// Delete removes the record whose id is or starts with id.
func (h *History) Delete(id string) error {
	rec, err := h.Get(id)
	if err != nil {
		return err
	}

	return h.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(BucketRuns)).Delete(rec.key())
	})
}
