package service

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

func NewScheduler() gocron.Scheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatal(err)
	}
	return scheduler
}

// ScheduleOrphanCheck polls a build restored from a previous daemon until
// its process exits.
func (j *Joe) ScheduleOrphanCheck(s gocron.Scheduler, interval time.Duration) error {
	_, err := s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(j.CheckOrphan),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return err
}

// ScheduleBuilds requests a build of the default branch on a cron schedule.
// A blank schedule registers nothing.
func (j *Joe) ScheduleBuilds(s gocron.Scheduler, schedule string) error {
	if schedule == "" {
		return nil
	}
	_, err := s.NewJob(
		gocron.CronJob(schedule, false),
		gocron.NewTask(func() {
			log.Println("scheduled build of", j.DefaultBranch())
			j.RequestBuild("")
		}),
	)
	return err
}
