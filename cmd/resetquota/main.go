package main

import (
	"context"
	"log"
	"time"

	"github.com/facemojo/facemojo/internal/pkg/cache"
	"github.com/facemojo/facemojo/internal/pkg/database"
	"github.com/facemojo/facemojo/internal/pkg/env"
	"github.com/facemojo/facemojo/internal/pkg/quota"
)

// resetLockKey matches the lock used by the admin endpoint so a scheduled
// run and a manual trigger cannot overlap.
const resetLockKey = "facemojo:quota:monthly_reset"

// Scheduled entrypoint (cron, first of the month). Safe to run more than
// once: users already reset in the current calendar month are skipped.
func main() {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	acquired, err := cache.AcquireLock(resetLockKey, 10*time.Minute)
	if err != nil {
		log.Fatalf("Failed to acquire the reset lock: %v", err)
	}
	if !acquired {
		log.Println("A quota reset is already running, exiting")
		return
	}
	defer func() {
		if err := cache.ReleaseLock(resetLockKey); err != nil {
			log.Printf("Failed to release the reset lock: %v", err)
		}
	}()

	service := quota.NewServiceFromDB(database.GetDB())
	count, err := service.ResetMonthlyQuota(context.Background())
	if err != nil {
		log.Fatalf("Monthly quota reset failed: %v", err)
	}

	log.Printf("Monthly quota reset completed: %d users refilled", count)
}
