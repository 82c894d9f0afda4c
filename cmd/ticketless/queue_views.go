package main

import (
	"fmt"
	"strconv"
	"strings"

	"ticketless/internal/api"
	"ticketless/internal/queue"
)

const maxErrorColumn = 48

func buildJobRows(jobs []api.JobView, colorize bool) [][]string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			strconv.FormatInt(job.ID, 10),
			jobStatusLabel(job.Status, colorize),
			job.UserID,
			job.ContestID,
			strconv.Itoa(job.RetryCount),
			job.CreatedAt,
			truncate(job.ErrorMessage, maxErrorColumn),
		})
	}
	return rows
}

func buildStatsRows(stats map[string]int, colorize bool) [][]string {
	rows := make([][]string, 0, len(stats)+1)
	total := 0
	for _, status := range queue.AllStatuses() {
		count := stats[string(status)]
		total += count
		rows = append(rows, []string{jobStatusLabel(string(status), colorize), strconv.Itoa(count)})
	}
	rows = append(rows, []string{"Total", strconv.Itoa(total)})
	return rows
}

func jobDetails(job *api.JobView, colorize bool) [][2]string {
	pairs := [][2]string{
		{"ID", strconv.FormatInt(job.ID, 10)},
		{"Status", jobStatusLabel(job.Status, colorize)},
		{"Retries", strconv.Itoa(job.RetryCount)},
		{"User", job.UserID},
		{"Contest", job.ContestID},
		{"Source", job.Source},
		{"Quality", job.Quality},
		{"Auto slice", yesNo(job.AutoSlice)},
		{"Ticket time", job.TicketTimestamp},
		{"Description", job.Description},
		{"Original", job.OriginalVideoRef},
		{"Processed", job.ProcessedVideoRef},
		{"Video URL", job.ProcessedVideoURL},
		{"Thumbnail", job.ThumbnailRef},
		{"Thumbnail URL", job.ThumbnailURL},
		{"Claimed by", job.ClaimedBy},
		{"Claimed at", job.ClaimedAt},
		{"Created", job.CreatedAt},
		{"Updated", job.UpdatedAt},
		{"Completed", job.CompletedAt},
		{"Error kind", job.ErrorKind},
		{"Error", job.ErrorMessage},
	}
	if len(job.Metadata) > 0 {
		pairs = append(pairs, [2]string{"Metadata", string(job.Metadata)})
	}
	return pairs
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if limit <= 3 || len(value) <= limit {
		return value
	}
	return fmt.Sprintf("%s...", value[:limit-3])
}
