package gather

import (
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/cockroachdb/errors"
)

const lastCompletedFile = ".last-completed"

// Progress keeps the .last-completed marker recording the last day a daily
// sync finished without failed chunks.
type Progress struct {
	dir string
}

// NewProgress creates a Progress rooted at dir, creating the directory if
// needed.
func NewProgress(dir string) (*Progress, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating state dir %s", dir)
	}
	return &Progress{dir: dir}, nil
}

// MarkCompleted writes d to .last-completed.
func (p *Progress) MarkCompleted(d civil.Date) error {
	path := filepath.Join(p.dir, lastCompletedFile)
	if err := os.WriteFile(path, []byte(d.String()+"\n"), 0o644); err != nil {
		return errors.Wrap(err, "writing .last-completed")
	}
	return nil
}

// LastCompleted returns the date in .last-completed; ok is false when the
// marker is missing or unreadable.
func (p *Progress) LastCompleted() (d civil.Date, ok bool) {
	data, err := os.ReadFile(filepath.Join(p.dir, lastCompletedFile))
	if err != nil {
		return civil.Date{}, false
	}
	d, err = civil.ParseDate(strings.TrimSpace(string(data)))
	if err != nil {
		return civil.Date{}, false
	}
	return d, true
}
