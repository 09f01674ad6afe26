package obs

import (
	"context"
	"log"
	"time"
)

type ctxKey string

const RunIDKey ctxKey = "run_id"

// Time wraps an operation with duration logging. Usage:
//
//	defer obs.Time(ctx, "matrix.Build")(&err)
func Time(ctx context.Context, name string) func(errp *error) {
	start := time.Now()

	runID, _ := ctx.Value(RunIDKey).(string)

	return func(errp *error) {
		dur := time.Since(start)

		if errp != nil && *errp != nil {
			log.Printf("run_id=%s op=%s dur=%dms err=%v", runID, name, dur.Milliseconds(), *errp)
			return
		}
		log.Printf("run_id=%s op=%s dur=%dms", runID, name, dur.Milliseconds())
	}
}
