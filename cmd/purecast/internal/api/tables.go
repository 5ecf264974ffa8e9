package api

import (
	"strconv"
	"time"

	"github.com/purecast-io/purecast/pkg/cli"
	"github.com/purecast-io/purecast/pkg/recordings"
	"github.com/purecast-io/purecast/pkg/stream"
)

// StreamTable renders stream infos as table rows.
type StreamTable []stream.Info

func (s StreamTable) TableHeader() []string {
	return []string{"OWNER", "STATE", "TITLE", "LISTENERS", "DENOISE", "UPTIME"}
}

func (s StreamTable) TableRows() [][]string {
	rows := make([][]string, 0, len(s))
	for _, info := range s {
		denoise := "off"
		if info.Denoise {
			denoise = "on"
		}
		rows = append(rows, []string{
			info.Owner,
			info.State,
			info.Title,
			strconv.Itoa(info.Listeners),
			denoise,
			cli.FormatDuration(time.Since(info.StartedAt).Seconds()),
		})
	}
	return rows
}

// RecordingTable renders recording metadata as table rows.
type RecordingTable []recordings.Recording

func (r RecordingTable) TableHeader() []string {
	return []string{"ID", "OWNER", "TITLE", "DURATION", "SIZE", "CREATED"}
}

func (r RecordingTable) TableRows() [][]string {
	rows := make([][]string, 0, len(r))
	for _, rec := range r {
		rows = append(rows, []string{
			rec.ID,
			rec.Owner,
			rec.Title,
			cli.FormatDuration(rec.Duration.Seconds()),
			cli.FormatBytes(rec.Size),
			rec.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	return rows
}
