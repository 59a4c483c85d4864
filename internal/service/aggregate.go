package service

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/vidfetch/vidfetch/internal/model"
)

// Aggregate combines item results into the payload delivered to the caller.
func Aggregate(requestID, plugin string, started, finished time.Time, items []model.ItemResult) model.Payload {
	ordered := ordered(items)
	return model.Payload{
		RequestID:   requestID,
		Plugin:      plugin,
		Status:      model.DeriveStatus(ordered),
		StartedAt:   started.UTC(),
		FinishedAt:  finished.UTC(),
		Items:       ordered,
		SummaryText: Summary(ordered),
	}
}

// Summary renders a stable, human oriented report: a count line followed by
// one line per item.
func Summary(items []model.ItemResult) string {
	ordered := ordered(items)
	succeeded := 0
	for _, it := range ordered {
		if it.Success {
			succeeded++
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Processed %d item(s): %d succeeded, %d failed.", len(ordered), succeeded, len(ordered)-succeeded)
	for pos, it := range ordered {
		label := pos
		if it.Index != nil {
			label = *it.Index
		}
		sb.WriteByte('\n')
		if it.Success {
			fmt.Fprintf(&sb, "[%d] OK   %s", label, it.URL)
			if len(it.Files) > 0 {
				fmt.Fprintf(&sb, " -> %s", it.Files[0].Path)
			}
			if it.SubtitleStatus.Degraded() {
				fmt.Fprintf(&sb, " (subtitles: %s)", it.SubtitleStatus)
			}
			if it.Degraded {
				sb.WriteString(" (post-processing degraded)")
			}
			continue
		}
		fmt.Fprintf(&sb, "[%d] FAIL %s (%s)", label, it.URL, failureReason(it))
	}
	return sb.String()
}

func failureReason(it model.ItemResult) string {
	if it.Error != "" {
		return it.Error
	}
	return fmt.Sprintf("exit code %d", it.ExitCode)
}

// ordered sorts by batch index, items without index keep their position.
func ordered(items []model.ItemResult) []model.ItemResult {
	out := slices.Clone(items)
	slices.SortStableFunc(out, func(a, b model.ItemResult) int {
		if a.Index == nil || b.Index == nil {
			return 0
		}
		return cmp.Compare(*a.Index, *b.Index)
	})
	return out
}
