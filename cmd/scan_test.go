package cmd

import (
	"bytes"
	"testing"
	"time"

	"CallBox/core/permission"
	"CallBox/core/recording"
	"CallBox/model"

	"github.com/stretchr/testify/assert"
)

func TestWriteScan(t *testing.T) {
	name := "John Smith"
	recs := []*model.Recording{
		{
			PhoneNumber: "+15551234567",
			ContactName: &name,
			Duration:    75,
			Size:        2048,
			Timestamp:   time.Date(2024, 1, 15, 14, 30, 0, 0, time.UTC).UnixMilli(),
			FilePath:    "/sdcard/Call/a.m4a",
			Direction:   model.DirectionIncoming,
		},
		{
			PhoneNumber: "5551234567",
			Duration:    5,
			Size:        10,
			Timestamp:   time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC).UnixMilli(),
			FilePath:    "/sdcard/Call/b.m4a",
			Direction:   model.DirectionOutgoing,
		},
	}
	report := recording.ScanReport{
		Root:       "/sdcard",
		Tried:      []string{"/sdcard/Call", "/sdcard/Recordings/Call"},
		Accessible: []string{"/sdcard/Call"},
		Errors:     []string{"/sdcard/Recordings/Call: permission denied"},
	}
	access := permission.Result{Status: permission.Granted}

	var buf bytes.Buffer
	writeScan(&buf, access, report, recs, nil, time.UTC, false)
	out := buf.String()
	assert.Contains(t, out, "访问状态: granted")
	assert.Contains(t, out, "  + /sdcard/Call\n")
	assert.Contains(t, out, "  ! /sdcard/Recordings/Call: permission denied")
	assert.Contains(t, out, "Jan 15, 2024, 2:30 PM")
	assert.Contains(t, out, "01:15")
	assert.Contains(t, out, "2.0 KB")

	buf.Reset()
	writeScan(&buf, access, report, recs, nil, time.UTC, true)
	assert.Contains(t, buf.String(), "John Smith (2)\n")
}
