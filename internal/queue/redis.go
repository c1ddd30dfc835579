// Package queue is a durable job queue on Redis lists and hashes.
//
// Keys, for a queue named q:
//
//	q:pending      list of job ids waiting to run (LPUSH in, BLMOVE out from the right)
//	q:active       list of job ids a worker has claimed
//	q:job:{id}     hash holding the job record
//	q:events       pub/sub channel of models.JobEvent JSON
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"content-server/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

const (
	fieldType       = "type"
	fieldPayload    = "payload"
	fieldState      = "state"
	fieldAttempts   = "attempts"
	fieldError      = "error"
	fieldResult     = "result"
	fieldCreatedAt  = "createdAt"
	fieldUpdatedAt  = "updatedAt"
	fieldFinishedAt = "finishedAt"
)

// enqueueScript writes each job record and pushes its id unless a job with
// the same id is still waiting or active. KEYS[1] is the pending list and
// KEYS[2..] the job hashes. ARGV holds, per job, the field-value count, the
// job id and the field-value pairs. Returns one flag per job, 1 when enqueued.
var enqueueScript = redis.NewScript(`
local created = {}
local pos = 1
for i = 2, #KEYS do
  local n = tonumber(ARGV[pos])
  local id = ARGV[pos + 1]
  local state = redis.call('HGET', KEYS[i], 'state')
  if state == 'waiting' or state == 'active' then
    created[#created + 1] = 0
  else
    redis.call('DEL', KEYS[i])
    redis.call('HSET', KEYS[i], unpack(ARGV, pos + 2, pos + 1 + n))
    redis.call('LPUSH', KEYS[1], id)
    created[#created + 1] = 1
  end
  pos = pos + 2 + n
end
return created
`)

type Options struct {
	// Name prefixes every key.
	Name string
	// Attempts is how many times a job runs before it is marked failed.
	Attempts int
	// Retention is the TTL of finished job records. Zero keeps them forever.
	Retention time.Duration
}

// RedisQueue is safe for concurrent use.
type RedisQueue struct {
	client redis.UniversalClient
	opts   Options
	now    func() time.Time
}

// NewRedisClient parses a redis:// or rediss:// URL and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info().Str("addr", opt.Addr).Msg("✓ Redis connection established")
	return client, nil
}

func NewRedisQueue(client redis.UniversalClient, opts Options) *RedisQueue {
	if opts.Name == "" {
		opts.Name = "creators"
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	return &RedisQueue{client: client, opts: opts, now: time.Now}
}

func (q *RedisQueue) pendingKey() string { return q.opts.Name + ":pending" }
func (q *RedisQueue) activeKey() string  { return q.opts.Name + ":active" }
func (q *RedisQueue) eventsKey() string  { return q.opts.Name + ":events" }
func (q *RedisQueue) jobKey(id string) string {
	return q.opts.Name + ":job:" + id
}

// Enqueue stores the payload as a waiting job. Submitting the same work while
// its job is still waiting or active returns the existing id without
// queueing it twice.
func (q *RedisQueue) Enqueue(ctx context.Context, p models.Payload) (string, error) {
	ids, err := q.EnqueueAll(ctx, []models.Payload{p})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

// EnqueueAll stores every payload in one script run, so related jobs (the
// public and private halves of a note) are queued together or not at all.
// Ids are returned in payload order.
func (q *RedisQueue) EnqueueAll(ctx context.Context, payloads []models.Payload) ([]string, error) {
	if len(payloads) == 0 {
		return nil, nil
	}

	now := q.now().UTC()
	jobs := make([]*models.Job, len(payloads))
	keys := make([]string, 0, len(payloads)+1)
	args := make([]any, 0, len(payloads)*14)
	keys = append(keys, q.pendingKey())
	for i, p := range payloads {
		job, err := models.NewJob(p, now)
		if err != nil {
			return nil, err
		}
		jobs[i] = job

		fields := []any{
			fieldType, string(job.Type),
			fieldPayload, string(job.Payload),
			fieldState, string(job.State),
			fieldAttempts, 0,
			fieldCreatedAt, formatTime(job.CreatedAt),
			fieldUpdatedAt, formatTime(job.UpdatedAt),
		}
		keys = append(keys, q.jobKey(job.ID))
		args = append(args, len(fields), job.ID)
		args = append(args, fields...)
	}

	created, err := enqueueScript.Run(ctx, q.client, keys, args...).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue %s job: %w", jobs[0].Type, err)
	}
	if len(created) != len(jobs) {
		return nil, fmt.Errorf("enqueue script returned %d flags for %d jobs", len(created), len(jobs))
	}

	ids := make([]string, len(jobs))
	for i, job := range jobs {
		ids[i] = job.ID
		if created[i] == 0 {
			log.Debug().Ctx(ctx).Str("job_id", job.ID).Str("type", string(job.Type)).Msg("job already queued")
			continue
		}
		q.publish(ctx, job)
	}
	return ids, nil
}

// Get returns the job record or ErrJobNotFound.
func (q *RedisQueue) Get(ctx context.Context, id string) (*models.Job, error) {
	fields, err := q.client.HGetAll(ctx, q.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}
	return decodeJob(id, fields)
}

// Dequeue blocks up to timeout for the next job and marks it active. It
// returns nil, nil when the timeout passes without a job.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*models.Job, error) {
	id, err := q.client.BLMove(ctx, q.pendingKey(), q.activeKey(), "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	key := q.jobKey(id)
	if n, err := q.client.Exists(ctx, key).Result(); err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", id, err)
	} else if n == 0 {
		// Record expired or was removed while the id sat in the list.
		q.client.LRem(ctx, q.activeKey(), 1, id)
		log.Warn().Ctx(ctx).Str("job_id", id).Msg("dropping queued id without a job record")
		return nil, nil
	}

	now := q.now().UTC()
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fieldState, string(models.StateActive), fieldUpdatedAt, formatTime(now))
		pipe.HIncrBy(ctx, key, fieldAttempts, 1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark job %s active: %w", id, err)
	}

	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	q.publish(ctx, job)
	return job, nil
}

// Complete records the result and releases the job.
func (q *RedisQueue) Complete(ctx context.Context, job *models.Job, result *models.JobResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal job result: %w", err)
	}

	now := q.now().UTC()
	job.State = models.StateCompleted
	job.Result = result
	job.Error = ""
	job.UpdatedAt = now
	job.FinishedAt = &now

	err = q.finish(ctx, job.ID,
		fieldState, string(job.State),
		fieldResult, string(raw),
		fieldError, "",
		fieldUpdatedAt, formatTime(now),
		fieldFinishedAt, formatTime(now),
	)
	if err != nil {
		return err
	}
	q.publish(ctx, job)
	return nil
}

// Fail records jobErr. The job goes back to pending until it has used all
// its attempts, then it is marked failed.
func (q *RedisQueue) Fail(ctx context.Context, job *models.Job, jobErr error) error {
	now := q.now().UTC()
	job.Error = jobErr.Error()
	job.UpdatedAt = now

	key := q.jobKey(job.ID)
	if job.Attempts < q.opts.Attempts {
		job.State = models.StateWaiting
		_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldState, string(job.State), fieldError, job.Error, fieldUpdatedAt, formatTime(now))
			pipe.LRem(ctx, q.activeKey(), 1, job.ID)
			pipe.LPush(ctx, q.pendingKey(), job.ID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
		}
		q.publish(ctx, job)
		return nil
	}

	job.State = models.StateFailed
	job.FinishedAt = &now
	err := q.finish(ctx, job.ID,
		fieldState, string(job.State),
		fieldError, job.Error,
		fieldUpdatedAt, formatTime(now),
		fieldFinishedAt, formatTime(now),
	)
	if err != nil {
		return err
	}
	q.publish(ctx, job)
	return nil
}

func (q *RedisQueue) finish(ctx context.Context, id string, values ...any) error {
	key := q.jobKey(id)
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, values...)
		if q.opts.Retention > 0 {
			pipe.Expire(ctx, key, q.opts.Retention)
		}
		pipe.LRem(ctx, q.activeKey(), 1, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", id, err)
	}
	return nil
}

// RecoverStalled moves every active id back to pending, oldest first. Only
// call it when no other worker process is consuming the queue.
func (q *RedisQueue) RecoverStalled(ctx context.Context) (int, error) {
	recovered := 0
	for {
		id, err := q.client.LMove(ctx, q.activeKey(), q.pendingKey(), "LEFT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return recovered, fmt.Errorf("failed to recover stalled jobs: %w", err)
		}
		q.client.HSet(ctx, q.jobKey(id), fieldState, string(models.StateWaiting))
		recovered++
	}
	if recovered > 0 {
		log.Warn().Ctx(ctx).Int("jobs", recovered).Msg("Re-queued stalled jobs")
	}
	return recovered, nil
}

// Subscribe calls handle for every job event until ctx is cancelled.
func (q *RedisQueue) Subscribe(ctx context.Context, handle func(models.JobEvent)) error {
	sub := q.client.Subscribe(ctx, q.eventsKey())
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to job events: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event models.JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.Warn().Err(err).Msg("ignoring malformed job event")
				continue
			}
			handle(event)
		}
	}
}

// publish is best effort; the job record stays authoritative.
func (q *RedisQueue) publish(ctx context.Context, job *models.Job) {
	raw, err := json.Marshal(models.JobEvent{
		JobID:  job.ID,
		Type:   job.Type,
		State:  job.State,
		Error:  job.Error,
		Result: job.Result,
		At:     job.UpdatedAt,
	})
	if err != nil {
		return
	}
	if err := q.client.Publish(ctx, q.eventsKey(), raw).Err(); err != nil {
		log.Warn().Ctx(ctx).Err(err).Str("job_id", job.ID).Msg("failed to publish job event")
	}
}

func decodeJob(id string, fields map[string]string) (*models.Job, error) {
	job := &models.Job{
		ID:      id,
		Type:    models.JobType(fields[fieldType]),
		Payload: json.RawMessage(fields[fieldPayload]),
		State:   models.JobState(fields[fieldState]),
		Error:   fields[fieldError],
	}

	var err error
	if v := fields[fieldAttempts]; v != "" {
		if job.Attempts, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("job %s: bad attempts %q", id, v)
		}
	}
	if v := fields[fieldResult]; v != "" {
		job.Result = &models.JobResult{}
		if err := json.Unmarshal([]byte(v), job.Result); err != nil {
			return nil, fmt.Errorf("job %s: bad result: %w", id, err)
		}
	}
	if job.CreatedAt, err = parseTime(fields[fieldCreatedAt]); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	if job.UpdatedAt, err = parseTime(fields[fieldUpdatedAt]); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	if v := fields[fieldFinishedAt]; v != "" {
		t, err := parseTime(v)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", id, err)
		}
		job.FinishedAt = &t
	}
	return job, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", v, err)
	}
	return t, nil
}
