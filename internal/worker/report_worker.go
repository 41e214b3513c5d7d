package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provex/proctor-backend/internal/config"
	"github.com/provex/proctor-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	ReportBatchSize    = 50
	ReportBatchTimeout = 2 * time.Second
	ReportPollTimeout  = 1 * time.Second
)

// ReportWorker drains graded reports from the persistence queue into the
// attempts table. The session controller already delivered the verdict to
// the candidate; this path only makes it durable.
type ReportWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewReportWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *ReportWorker {
	return &ReportWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "report_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *ReportWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ReportWorker started")

	batch := make([]*model.Report, 0, ReportBatchSize)
	lastFlush := time.Now()

	for {
		// Should flush?
		if len(batch) > 0 &&
			(len(batch) >= ReportBatchSize || time.Since(lastFlush) >= ReportBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			w.flushSafe(context.Background(), batch)
			return

		default:
			item, err := w.rdb.BLPop(ctx, ReportPollTimeout, config.WorkerKey.PersistReportsQueue).Result()
			if err != nil {
				if err != redis.Nil && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var r model.Report
			if err := json.Unmarshal([]byte(item[1]), &r); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &r)
		}
	}
}

func (w *ReportWorker) flushSafe(ctx context.Context, batch []*model.Report) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkComplete(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk attempt completion failed, using fallback")

		for _, r := range batch {
			if err := w.persistSingle(ctx, r); err != nil {
				w.log.Error().Err(err).Msg("persistSingle failed, requeueing")
				raw, _ := json.Marshal(r)
				w.rdb.RPush(ctx, config.WorkerKey.PersistReportsQueue, raw)
			}
		}
		return
	}

	// After the attempts are durable, the autosave buffers are dead weight.
	w.bulkClearAutosavedAnswers(ctx, batch)
}

// ----------------------------------------------------------------
// BULK PostgreSQL UPDATE using UNNEST + alias
// ----------------------------------------------------------------

func (w *ReportWorker) bulkComplete(ctx context.Context, batch []*model.Report) error {
	n := len(batch)

	examIDs := make([]string, 0, n)
	students := make([]int, 0, n)
	corrects := make([]int, 0, n)
	verdicts := make([]string, 0, n)
	triggers := make([]string, 0, n)
	finishedAts := make([]time.Time, 0, n)

	for _, r := range batch {
		examIDs = append(examIDs, r.ExamID.String())
		students = append(students, r.StudentID)
		corrects = append(corrects, r.CorrectCount())
		verdicts = append(verdicts, string(r.Verdict))
		triggers = append(triggers, string(r.Trigger))
		finishedAts = append(finishedAts, r.ComputedAt)
	}

	query := `
		UPDATE attempts AS a
		SET phase = 'COMPLETED',
		    correct_count = t.correct_count,
		    verdict = t.verdict,
		    end_trigger = t.end_trigger,
		    finished_at = t.finished_at
		FROM (
			SELECT
				u.exam_id,
				u.student_id,
				u.correct_count,
				u.verdict,
				u.end_trigger,
				u.finished_at
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::int[],
				$4::text[],
				$5::text[],
				$6::timestamptz[]
			) AS u (exam_id, student_id, correct_count, verdict, end_trigger, finished_at)
		) AS t
		WHERE a.exam_id = t.exam_id
		  AND a.student_id = t.student_id
	`

	_, err := w.pool.Exec(ctx, query, examIDs, students, corrects, verdicts, triggers, finishedAts)
	return err
}

// ----------------------------------------------------------------
// BULK Redis DEL for clearing autosaved answers
// ----------------------------------------------------------------

func (w *ReportWorker) bulkClearAutosavedAnswers(ctx context.Context, batch []*model.Report) {
	pipe := w.rdb.Pipeline()

	for _, r := range batch {
		pipe.Del(ctx, config.CacheKey.StudentAnswersKey(r.ExamID.String(), r.StudentID))
		pipe.Del(ctx, config.CacheKey.PendingReportKey(r.ExamID.String(), r.StudentID))
	}

	_, _ = pipe.Exec(ctx)
}

// ----------------------------------------------------------------
// FALLBACK single update
// ----------------------------------------------------------------

func (w *ReportWorker) persistSingle(ctx context.Context, r *model.Report) error {
	_, err := w.pool.Exec(ctx,
		`UPDATE attempts
		 SET phase = 'COMPLETED',
		     correct_count = $1,
		     verdict = $2,
		     end_trigger = $3,
		     finished_at = $4
		 WHERE exam_id = $5 AND student_id = $6`,
		r.CorrectCount(), r.Verdict, r.Trigger, r.ComputedAt, r.ExamID, r.StudentID,
	)
	return err
}
