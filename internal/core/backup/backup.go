// Package backup contains the pure functions that name, parse, and order
// manifest backups. The orchestrator supplies clock readings and remote
// directory listings; nothing here touches the network or filesystem.
package backup

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the second-granularity timestamp embedded in backup
// file names.
const TimestampLayout = "20060102-150405"

var ErrNoBackups = errors.New("no backups found")

// =============================================================================
// Record
// =============================================================================

// Record is one backup of the deployment manifest, identified by its file
// name. Seq disambiguates backups taken within the same second; ordering is
// (Timestamp, Seq), newest first.
type Record struct {
	Name      string
	Timestamp time.Time
	Seq       int
}

// FileName builds the backup file name for a manifest copied at t:
// {base}-{timestamp}-{seq}.
func FileName(base string, t time.Time, seq int) string {
	return fmt.Sprintf("%s-%s-%d", base, t.UTC().Format(TimestampLayout), seq)
}

// Parse extracts the record encoded in a backup file name. The second return
// is false for names that do not follow the backup pattern for base, such as
// stray files in the backup directory.
func Parse(base, name string) (Record, bool) {
	prefix := base + "-"
	if !strings.HasPrefix(name, prefix) {
		return Record{}, false
	}
	rest := name[len(prefix):]

	sep := strings.LastIndex(rest, "-")
	if sep <= 0 {
		return Record{}, false
	}
	stamp, seqPart := rest[:sep], rest[sep+1:]

	ts, err := time.Parse(TimestampLayout, stamp)
	if err != nil {
		return Record{}, false
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil || seq < 0 {
		return Record{}, false
	}

	return Record{Name: name, Timestamp: ts, Seq: seq}, true
}

// =============================================================================
// Ordering
// =============================================================================

// FromListing parses a raw directory listing into records, newest first.
// Entries that are not backups of base are ignored.
func FromListing(base string, names []string) []Record {
	var records []Record
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if r, ok := Parse(base, name); ok {
			records = append(records, r)
		}
	}
	Sort(records)
	return records
}

// Sort orders records newest first: timestamp descending, then seq
// descending. Ordering is computed here rather than delegated to a remote
// listing tool so the rollback target never depends on shell sort behavior.
func Sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].Timestamp.Equal(records[j].Timestamp) {
			return records[i].Timestamp.After(records[j].Timestamp)
		}
		return records[i].Seq > records[j].Seq
	})
}

// MostRecent returns the rollback target from a directory listing.
func MostRecent(base string, names []string) (Record, error) {
	records := FromListing(base, names)
	if len(records) == 0 {
		return Record{}, ErrNoBackups
	}
	return records[0], nil
}

// NextSeq returns the seq for a new backup taken at t: one more than the
// highest seq among existing records in the same second, zero otherwise.
func NextSeq(records []Record, t time.Time) int {
	next := 0
	sec := t.UTC().Truncate(time.Second)
	for _, r := range records {
		if r.Timestamp.Equal(sec) && r.Seq >= next {
			next = r.Seq + 1
		}
	}
	return next
}
