package scheduler

import (
	"sort"
	"time"

	"github.com/sitewatch/sitewatch/internal/domain"
)

// dueJobs filters to jobs due at now and orders them most-overdue first, so
// long-neglected jobs get worker slots before recently served ones when the
// pool is saturated. Ties keep a stable order by job id.
func dueJobs(jobs []*domain.CrawlJob, now time.Time) []*domain.CrawlJob {
	due := make([]*domain.CrawlJob, 0, len(jobs))
	for _, job := range jobs {
		if job.Due(now) {
			due = append(due, job)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		oi, oj := due[i].Overdue(now), due[j].Overdue(now)
		if oi != oj {
			return oi > oj
		}
		return due[i].ID < due[j].ID
	})

	return due
}
