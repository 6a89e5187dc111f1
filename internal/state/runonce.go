package state

import (
	"database/sql"
	"log/slog"
	"sync"
)

// Runner gates daily jobs to at most one execution per calendar day.
// It checks an in-process marker first and the durable job_runs table
// second, so a restart on the same day does not re-run a job while the
// common path stays off disk.
type Runner struct {
	mu    sync.Mutex
	store *Store
	memo  map[string]string // job name → last run day, process lifetime
	log   *slog.Logger
}

// NewRunner creates a Runner backed by the given store.
func NewRunner(store *Store, log *slog.Logger) *Runner {
	return &Runner{
		store: store,
		memo:  make(map[string]string),
		log:   log,
	}
}

// RunOnce executes fn if job has not yet run on day. A failure to
// persist the durable marker is logged and swallowed: the in-memory
// marker still prevents re-execution for the rest of the process
// lifetime, and the job will run at most once more after a restart.
func (r *Runner) RunOnce(job, day string, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.memo[job] == day {
		return
	}
	if last, err := r.lastRun(job); err != nil {
		r.log.Error("reading job marker", "job", job, "err", err)
	} else if last == day {
		r.memo[job] = day
		return
	}

	fn()

	r.memo[job] = day
	if err := r.record(job, day); err != nil {
		r.log.Error("persisting job marker", "job", job, "day", day, "err", err)
	}
}

func (r *Runner) lastRun(job string) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var day string
	err := r.store.db.QueryRow(`SELECT day FROM job_runs WHERE job = ?`, job).Scan(&day)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return day, err
}

func (r *Runner) record(job, day string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	_, err := r.store.db.Exec(
		`INSERT INTO job_runs (job, day) VALUES (?, ?)
		 ON CONFLICT(job) DO UPDATE SET day = excluded.day`, job, day)
	return err
}
