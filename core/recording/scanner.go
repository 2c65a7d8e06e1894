package recording

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"CallBox/core/audio"
	"CallBox/logger"
	"CallBox/model"
)

// Candidate is a directory where a phone's call recorder may store files.
type Candidate struct {
	Path string // relative to the storage root unless absolute
	// RequireCallHint restricts general voice-recorder folders to names containing "call".
	RequireCallHint bool
}

// DefaultCandidates lists known call-recorder folders across Android vendors.
// Samsung locations come first; access checks only probe the first three.
func DefaultCandidates() []Candidate {
	return []Candidate{
		{Path: "Recordings/Call"},
		{Path: "Call"},
		{Path: "Recordings/Call recordings"},
		{Path: "Sounds/Call"},
		{Path: "Music/Call"},
		{Path: "Android/media/com.samsung.android.app.callrecorder"},
		{Path: "Record/Call"},
		{Path: "Recorder/Call"},
		{Path: "MIUI/sound_recorder/call_rec"},
		{Path: "Sounds/CallRecord"},
		{Path: "CallRecordings"},
		{Path: "PhoneRecord"},
		{Path: "Recordings", RequireCallHint: true},
		{Path: "Recorder", RequireCallHint: true},
		{Path: "Sounds", RequireCallHint: true},
		{Path: "Music", RequireCallHint: true},
	}
}

var audioExtensions = map[string]bool{
	".m4a":  true,
	".mp3":  true,
	".amr":  true,
	".3gp":  true,
	".wav":  true,
	".aac":  true,
	".ogg":  true,
	".opus": true,
}

// IsAudioFile reports whether name has a supported recording extension.
func IsAudioFile(name string) bool {
	return audioExtensions[strings.ToLower(filepath.Ext(name))]
}

// ScanReport summarizes a scan for logs and the permissions endpoint.
type ScanReport struct {
	Root       string        `json:"root"`
	Tried      []string      `json:"tried"`
	Accessible []string      `json:"accessible"`
	Matched    int           `json:"matched"`
	Unparsed   int           `json:"unparsed"`
	Errors     []string      `json:"errors,omitempty"`
	Took       time.Duration `json:"took"`
}

// Scanner finds recordings under a storage root.
type Scanner struct {
	Root       string
	Candidates []Candidate
	Extra      []string // absolute or root-relative directories, no call-name filter
	Location   *time.Location
	Prober     audio.DurationProber // optional
}

// NewScanner returns a scanner over the default candidates plus extra directories.
func NewScanner(root string, extra []string, loc *time.Location, prober audio.DurationProber) *Scanner {
	return &Scanner{
		Root:       root,
		Candidates: DefaultCandidates(),
		Extra:      extra,
		Location:   loc,
		Prober:     prober,
	}
}

// Resolve turns a candidate path into an absolute directory under Root.
func (s *Scanner) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(s.Root, filepath.FromSlash(p))
}

func (s *Scanner) allCandidates() []Candidate {
	all := make([]Candidate, 0, len(s.Candidates)+len(s.Extra))
	all = append(all, s.Candidates...)
	for _, e := range s.Extra {
		all = append(all, Candidate{Path: e})
	}
	return all
}

// Scan lists every candidate directory, skipping the ones that fail, and
// returns the recordings found, newest first. Errors on individual paths or
// files are recorded in the report, never returned; the only error is ctx's.
func (s *Scanner) Scan(ctx context.Context) ([]*model.Recording, ScanReport, error) {
	start := time.Now()
	report := ScanReport{Root: s.Root}
	seen := make(map[string]bool)
	var out []*model.Recording

	for _, c := range s.allCandidates() {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		dir := s.Resolve(c.Path)
		report.Tried = append(report.Tried, dir)

		entries, err := os.ReadDir(dir)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", dir, err))
				logger.Debug("skipping recording path", logger.String("path", dir), logger.ErrorField(err))
			}
			continue
		}
		report.Accessible = append(report.Accessible, dir)

		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return nil, report, err
			}
			if e.IsDir() || !IsAudioFile(e.Name()) {
				continue
			}
			if c.RequireCallHint && !strings.Contains(strings.ToLower(e.Name()), "call") {
				continue
			}
			full := filepath.Join(dir, e.Name())
			key := full
			if resolved, err := filepath.EvalSymlinks(full); err == nil {
				key = resolved
			}
			if seen[key] {
				continue
			}
			seen[key] = true

			info, err := e.Info()
			if err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", full, err))
				continue
			}
			rec, parsed := s.buildRecording(ctx, full, info)
			if parsed {
				report.Matched++
			} else {
				report.Unparsed++
			}
			out = append(out, rec)
		}
	}

	sortNewestFirst(out)
	report.Took = time.Since(start)
	return out, report, nil
}

func (s *Scanner) buildRecording(ctx context.Context, path string, info fs.FileInfo) (*model.Recording, bool) {
	p, ok := ParseFilename(info.Name(), s.Location)
	rec := &model.Recording{
		ID:          path,
		FilePath:    path,
		Size:        info.Size(),
		PhoneNumber: p.PhoneNumber,
		Direction:   p.Direction,
	}
	if rec.PhoneNumber == "" {
		rec.PhoneNumber = model.UnknownPhone
	}
	if rec.Direction == "" {
		rec.Direction = model.DirectionUnknown
	}
	if p.Time.IsZero() {
		rec.Timestamp = info.ModTime().UnixMilli()
	} else {
		rec.Timestamp = p.Time.UnixMilli()
	}
	rec.ContactID = GroupKey(rec.PhoneNumber)

	if s.Prober != nil {
		if d, err := s.Prober.Duration(ctx, path); err == nil {
			rec.Duration = int(math.Round(d))
		} else {
			logger.Debug("duration probe failed", logger.String("path", path), logger.ErrorField(err))
		}
	}
	return rec, ok
}

// AccessiblePaths returns the candidate directories that currently exist.
func (s *Scanner) AccessiblePaths() []string {
	var out []string
	for _, c := range s.allCandidates() {
		dir := s.Resolve(c.Path)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			out = append(out, dir)
		}
	}
	sort.Strings(out)
	return out
}
