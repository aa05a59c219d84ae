package checks

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/quotesync/internal/monitoring"
)

const defaultDatabaseTimeout = 2 * time.Second

// LocalStore returns a probe that pings the durable local database.
// A nil handle means the process runs remote-only, which is reported as degraded.
func LocalStore(db *gorm.DB, timeout time.Duration) monitoring.Check {
	return monitoring.NewCheck("local_store", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if db == nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDegraded,
				Details:  "local storage unavailable",
				Duration: time.Since(start),
			}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return monitoring.ResultFromError("local_store", err, time.Since(start))
		}

		probeCtx, cancel := context.WithTimeout(ctx, chooseTimeout(timeout, defaultDatabaseTimeout))
		defer cancel()

		return monitoring.ResultFromError("local_store", sqlDB.PingContext(probeCtx), time.Since(start))
	})
}

func chooseTimeout(provided, fallback time.Duration) time.Duration {
	if provided <= 0 {
		return fallback
	}
	return provided
}
