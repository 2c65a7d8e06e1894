// Package permission reports whether the recording storage can be read.
package permission

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"CallBox/core/recording"
	"CallBox/logger"
)

// Status of storage access.
type Status string

const (
	Granted     Status = "granted"
	Denied      Status = "denied"
	Unavailable Status = "unavailable"
)

// probeCount 只检查前三个候选目录
const probeCount = 3

// Result is returned by Check and served by the permissions endpoint.
type Result struct {
	Status     Status   `json:"status"`
	Reason     string   `json:"reason,omitempty"`
	Root       string   `json:"root"`
	Checked    []string `json:"checked"`
	Accessible string   `json:"accessible,omitempty"`
}

// Checker probes the storage root through a scanner's candidate list.
type Checker struct {
	scanner *recording.Scanner
}

// NewChecker returns a Checker using s for root and candidate resolution.
func NewChecker(s *recording.Scanner) *Checker {
	return &Checker{scanner: s}
}

// Check lists up to three candidate folders. The first readable one grants
// access; a permission error on the root or a candidate denies it.
func (c *Checker) Check(ctx context.Context) Result {
	res := Result{Root: c.scanner.Root}

	info, err := os.Stat(c.scanner.Root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		res.Status, res.Reason = Unavailable, "storage root does not exist"
		return res
	case errors.Is(err, fs.ErrPermission):
		res.Status, res.Reason = Denied, err.Error()
		return res
	case err != nil:
		res.Status, res.Reason = Unavailable, err.Error()
		return res
	case !info.IsDir():
		res.Status, res.Reason = Unavailable, "storage root is not a directory"
		return res
	}

	candidates := c.scanner.Candidates
	if len(candidates) > probeCount {
		candidates = candidates[:probeCount]
	}
	denied := ""
	for _, cand := range candidates {
		if ctx.Err() != nil {
			res.Status, res.Reason = Unavailable, ctx.Err().Error()
			return res
		}
		dir := c.scanner.Resolve(cand.Path)
		res.Checked = append(res.Checked, dir)
		if _, err := os.ReadDir(dir); err != nil {
			if errors.Is(err, fs.ErrPermission) {
				denied = err.Error()
			}
			logger.Debug("permission probe failed", logger.String("path", dir), logger.ErrorField(err))
			continue
		}
		res.Status = Granted
		res.Accessible = dir
		return res
	}

	if denied != "" {
		res.Status, res.Reason = Denied, denied
		return res
	}
	res.Status, res.Reason = Unavailable, "no call recording folder found"
	return res
}
