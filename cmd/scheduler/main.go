package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/lendfast/origination-engine/internal/config"
	"github.com/lendfast/origination-engine/internal/logging"
	"github.com/lendfast/origination-engine/internal/repository"
)

const jobTimeout = 5 * time.Minute

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Info("starting servicing scheduler")

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	loanRepo := repository.NewLoanRepository(db)

	location, err := time.LoadLocation(cfg.Scheduler.Timezone)
	if err != nil {
		log.Fatalf("Invalid scheduler timezone: %v", err)
	}

	c := cron.New(cron.WithSeconds(), cron.WithLocation(location))
	setupCronJobs(c, loanRepo, log)

	c.Start()
	log.Info("scheduler started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down scheduler")
	<-c.Stop().Done()
	log.Info("scheduler stopped")
}

func setupCronJobs(c *cron.Cron, loanRepo repository.LoanRepository, log *logrus.Logger) {
	// Daily at midnight: flip pending schedule entries past their due date
	// to overdue.
	_, err := c.AddFunc("0 0 0 * * *", func() {
		markOverduePayments(loanRepo, log)
	})
	if err != nil {
		log.WithError(err).Error("scheduling overdue update job")
	}

	// Sundays at 9 AM: log upcoming payments due in the next week so the
	// notification pipeline can pick them up.
	_, err = c.AddFunc("0 0 9 * * SUN", func() {
		logUpcomingPayments(loanRepo, log)
	})
	if err != nil {
		log.WithError(err).Error("scheduling payment reminder job")
	}
}

func markOverduePayments(loanRepo repository.LoanRepository, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	marked, err := loanRepo.MarkOverdueSchedules(ctx, time.Now())
	if err != nil {
		log.WithError(err).Error("overdue update job failed")
		return
	}

	log.WithField("marked", marked).Info("overdue update job finished")
}

func logUpcomingPayments(loanRepo repository.LoanRepository, log *logrus.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	now := time.Now()
	upcoming, err := loanRepo.GetUpcomingSchedules(ctx, now, now.AddDate(0, 0, 7))
	if err != nil {
		log.WithError(err).Error("payment reminder job failed")
		return
	}

	for _, schedule := range upcoming {
		log.WithFields(logrus.Fields{
			"loan_id":    schedule.LoanID,
			"week":       schedule.WeekNumber,
			"due_date":   schedule.DueDate.Format("2006-01-02"),
			"due_amount": schedule.DueAmount.StringFixed(2),
		}).Info("payment reminder")
	}

	log.WithField("count", len(upcoming)).Info("payment reminder job finished")
}
