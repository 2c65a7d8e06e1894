package recording

import (
	"math/rand"
	"sort"
	"time"

	"CallBox/model"

	"github.com/google/uuid"
)

// MockRecording builds one development recording for contact.
// Duration is 30s-10min and size 100KB-10MB.
func MockRecording(contact model.Contact, rng *rand.Rand, now time.Time) *model.Recording {
	id := uuid.New().String()[:8]
	// Spread timestamps over the last 30 days so folder ordering is meaningful.
	ts := now.Add(-time.Duration(rng.Int63n(int64(30 * 24 * time.Hour))))
	return &model.Recording{
		ID:          "/recordings/" + id + ".m4a",
		ContactID:   contact.ID,
		PhoneNumber: contact.PhoneNumber,
		ContactName: contact.Name,
		Duration:    rng.Intn(600) + 30,
		Timestamp:   ts.UnixMilli(),
		FilePath:    "/recordings/" + id + ".m4a",
		Size:        rng.Int63n(10*1024*1024) + 100*1024,
		Direction:   model.DirectionUnknown,
		Mock:        true,
	}
}

// MockRecordings creates 1-5 recordings per contact, newest first.
func MockRecordings(contacts []model.Contact, rng *rand.Rand, now time.Time) []*model.Recording {
	if rng == nil {
		rng = rand.New(rand.NewSource(now.UnixNano()))
	}
	var out []*model.Recording
	for _, c := range contacts {
		n := rng.Intn(5) + 1
		for i := 0; i < n; i++ {
			out = append(out, MockRecording(c, rng, now))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out
}
