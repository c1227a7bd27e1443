package bisync

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/cjnaz/rclonesync-go/bisync/bilib"
)

// MaxLockPolls and LockPollInterval bound lock acquisition: up to five
// polls, one second apart.
const (
	MaxLockPolls     = 5
	LockPollInterval = time.Second
)

// Lock is the advisory single-writer lock keyed by the path pair.
type Lock struct {
	Path string
}

// NewLock derives the lock file path for a (path1, path2) pair, in the
// OS temp directory.
func NewLock(path1, path2 string) *Lock {
	name := "rclonesync_LOCK_" + bilib.SanitizePair(path1, path2)
	return &Lock{Path: filepath.Join(os.TempDir(), name)}
}

// CallerIdentity returns a fresh, collision-free identity token for the
// lock file's content: hostname, pid, and a random UUID, so two
// processes racing with a reused PID are still distinguishable.
func CallerIdentity() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s pid=%d token=%s", host, os.Getpid(), uuid.NewString())
}

// Acquire polls up to MaxLockPolls times at LockPollInterval, creating
// the lock file atomically (O_EXCL) the first time it is absent. It
// fails if the file is still present after the final poll.
func (l *Lock) Acquire(ctx context.Context) error {
	identity := CallerIdentity()
	for attempt := 1; attempt <= MaxLockPolls; attempt++ {
		f, err := os.OpenFile(l.Path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			content := fmt.Sprintf("%s\n%s\n", identity, time.Now().Format(time.RFC3339Nano))
			_, writeErr := f.WriteString(content)
			closeErr := f.Close()
			if writeErr != nil {
				return fmt.Errorf("writing lock file: %w", writeErr)
			}
			if closeErr != nil {
				return fmt.Errorf("closing lock file: %w", closeErr)
			}
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("creating lock file %s: %w", l.Path, err)
		}
		if attempt == MaxLockPolls {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(LockPollInterval):
		}
	}
	return fmt.Errorf("could not acquire lock %s: held by another run", l.Path)
}

// Release deletes the lock file; a missing file is not an error.
func (l *Lock) Release() error {
	return bilib.RemoveIfExists(l.Path)
}
