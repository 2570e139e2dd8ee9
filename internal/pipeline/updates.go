package pipeline

import (
	"fmt"

	"github.com/desertthunder/stemx/internal/progress"
)

// Progress percent milestones. The channel phase interpolates between
// percentChannels and 100 as channels complete; failures leave the
// percent wherever it was, with Done unset.
const (
	percentSeparating  = 12
	percentSeparated   = 45
	percentChannels    = 46
	percentChannelSpan = 54
	percentDone        = 100
)

func downloadingRecord(trackID string) progress.Record {
	return progress.Record{
		Message: "Downloading track audio",
		Percent: 5,
		Meta:    map[string]any{"track_id": trackID},
	}
}

func separatingRecord(model string, attempt int) progress.Record {
	return progress.Record{
		Message: fmt.Sprintf("Separating with %s (attempt %d)", model, attempt),
		Percent: percentSeparating,
		Meta:    map[string]any{"model": model},
	}
}

func cachedStemsRecord(model string) progress.Record {
	return progress.Record{
		Message: fmt.Sprintf("Using cached stems (%s)", model),
		Percent: percentSeparated,
		Meta:    map[string]any{"model": model},
	}
}

func separatedRecord(model string) progress.Record {
	return progress.Record{
		Message: fmt.Sprintf("Separation complete with %s", model),
		Percent: percentSeparated,
		Meta:    map[string]any{"model": model},
	}
}

func channelsStartRecord(total int) progress.Record {
	return progress.Record{
		Message: "Processing channels",
		Percent: percentChannels,
		Meta:    map[string]any{"completed": 0, "total": total},
	}
}

func channelDoneRecord(channelKey string, completed, total int) progress.Record {
	percent := percentChannels
	if total > 0 {
		percent += percentChannelSpan * completed / total
	}
	return progress.Record{
		Message: fmt.Sprintf("%s done", channelKey),
		Percent: percent,
		Meta:    map[string]any{"completed": completed, "total": total, "channel": channelKey},
	}
}

func channelFailedRecord(prev progress.Record, channelKey string) progress.Record {
	prev.Message = fmt.Sprintf("Error processing %s, continuing", channelKey)
	prev.Done = false
	return prev
}

// failureRecord keeps the last percent so operators can see how far the
// track got before it failed. Failed marks the session terminal so
// monitors do not wait on it forever.
func failureRecord(prev progress.Record, message string) progress.Record {
	prev.Message = message
	prev.Done = false
	prev.Failed = true
	return prev
}

func doneRecord(prev progress.Record) progress.Record {
	prev.Message = "All processing complete"
	prev.Percent = percentDone
	prev.Done = true
	return prev
}
