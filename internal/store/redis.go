// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/docqueue/internal/jobs"
)

// Hash field names. Times are RFC 3339 with nanoseconds; "" means unset.
const (
	fieldID          = "id"
	fieldType        = "type"
	fieldPayload     = "payload"
	fieldStatus      = "status"
	fieldProgress    = "progress"
	fieldResult      = "result"
	fieldError       = "error"
	fieldAttempts    = "attempts"
	fieldMaxAttempts = "max_attempts"
	fieldCreatedAt   = "created_at"
	fieldUpdatedAt   = "updated_at"
	fieldStartedAt   = "started_at"
	fieldClaimedAt   = "claimed_at"
	fieldFinishedAt  = "finished_at"
	fieldRunAt       = "run_at"
)

// sweepBatch bounds how many finished IDs one sweep round trip reads.
const sweepBatch = 500

// RedisConfig holds connection settings for RedisStore.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// NewRedisClient builds a go-redis client from cfg.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	})
}

// RedisStore keeps each job in a hash with per-type, per-status index sets
// and a sorted set of finish times for the retention sweep.
//
// Key layout under prefix P:
//
//	P job:<id>              hash of job fields
//	P idx:<type>:<status>   set of job IDs
//	P types                 set of known job types
//	P finished              zset of terminal job IDs scored by finish time (ms)
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore wraps an existing client. The store does not own the client
// unless Close is called.
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix, now: time.Now}
}

func (s *RedisStore) jobKey(id string) string { return s.prefix + "job:" + id }

func (s *RedisStore) indexKey(t jobs.Type, st jobs.Status) string {
	return s.prefix + "idx:" + string(t) + ":" + string(st)
}

func (s *RedisStore) typesKey() string { return s.prefix + "types" }

func (s *RedisStore) finishedKey() string { return s.prefix + "finished" }

func (s *RedisStore) Put(ctx context.Context, job *jobs.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}
	args := []interface{}{s.prefix, job.ID, string(job.Type), string(job.Status), finishedScore(job.Status, job.FinishedAt)}
	args = append(args, encodeJob(job)...)
	if err := putScript.Run(ctx, s.rdb, []string{s.jobKey(job.ID)}, args...).Err(); err != nil {
		return classify("put", err)
	}
	return nil
}

func (s *RedisStore) Create(ctx context.Context, job *jobs.Job) error {
	if err := validateNew(job); err != nil {
		return err
	}
	args := []interface{}{s.prefix, job.ID, string(job.Type), string(job.Status), finishedScore(job.Status, job.FinishedAt)}
	args = append(args, encodeJob(job)...)
	n, err := createScript.Run(ctx, s.rdb, []string{s.jobKey(job.ID)}, args...).Int()
	if err != nil {
		return classify("create", err)
	}
	if n == 0 {
		return fmt.Errorf("create %s: %w", job.ID, jobs.ErrExists)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*jobs.Job, error) {
	fields, err := s.rdb.HGetAll(ctx, s.jobKey(id)).Result()
	if err != nil {
		return nil, classify("get", err)
	}
	if len(fields) == 0 {
		return nil, jobs.ErrNotFound
	}
	return decodeJob(fields)
}

func (s *RedisStore) UpdateStatus(ctx context.Context, id string, from, to jobs.Status, patch jobs.Patch) (*jobs.Job, error) {
	now := s.now().UTC()
	incr := "0"
	switch {
	case patch.IncrementAttempts:
		incr = "1"
	case patch.RefundAttempt:
		incr = "-1"
	}
	score := ""
	if to.Terminal() {
		score = finishedScore(to, patch.FinishedAt)
	}
	args := []interface{}{s.prefix, id, string(from), string(to), patch.ExpectAttempts, incr, score}
	args = append(args, encodePatch(patch, now)...)

	res, err := updateScript.Run(ctx, s.rdb, []string{s.jobKey(id)}, args...).Result()
	if err != nil {
		return nil, classify("update status", err)
	}
	switch v := res.(type) {
	case int64:
		if v < 0 {
			return nil, jobs.ErrNotFound
		}
		return nil, s.conflict(ctx, id, from)
	case []interface{}:
		fields, err := pairsToMap(v)
		if err != nil {
			return nil, fmt.Errorf("update status %s: %w", id, err)
		}
		return decodeJob(fields)
	default:
		return nil, fmt.Errorf("update status %s: unexpected script reply %T", id, res)
	}
}

// conflict builds a descriptive ErrConflict. The extra read is best effort.
func (s *RedisStore) conflict(ctx context.Context, id string, from jobs.Status) error {
	cur, err := s.rdb.HGet(ctx, s.jobKey(id), fieldStatus).Result()
	if err != nil {
		return fmt.Errorf("%w: job %s, expected %s", jobs.ErrConflict, id, from)
	}
	return fmt.Errorf("%w: job %s is %s, expected %s", jobs.ErrConflict, id, cur, from)
}

func (s *RedisStore) SetProgress(ctx context.Context, id string, attempt, percent int) error {
	res, err := progressScript.Run(ctx, s.rdb, []string{s.jobKey(id)},
		attempt, jobs.ClampProgress(percent), formatTime(s.now().UTC())).Int64()
	if err != nil {
		return classify("set progress", err)
	}
	switch res {
	case -1:
		return jobs.ErrNotFound
	case 0:
		return fmt.Errorf("%w: job %s is not active on attempt %d", jobs.ErrConflict, id, attempt)
	}
	return nil
}

func (s *RedisStore) types(ctx context.Context, jobType jobs.Type) ([]jobs.Type, error) {
	if jobType != "" {
		return []jobs.Type{jobType}, nil
	}
	names, err := s.rdb.SMembers(ctx, s.typesKey()).Result()
	if err != nil {
		return nil, classify("list types", err)
	}
	out := make([]jobs.Type, len(names))
	for i, n := range names {
		out[i] = jobs.Type(n)
	}
	return out, nil
}

func (s *RedisStore) CountByStatus(ctx context.Context, jobType jobs.Type) (jobs.Counts, error) {
	var c jobs.Counts
	types, err := s.types(ctx, jobType)
	if err != nil {
		return c, err
	}
	if len(types) == 0 {
		return c, nil
	}

	type pending struct {
		status jobs.Status
		cmd    *redis.IntCmd
	}
	var cmds []pending
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for _, t := range types {
			for _, st := range jobs.AllStatuses {
				cmds = append(cmds, pending{status: st, cmd: p.SCard(ctx, s.indexKey(t, st))})
			}
		}
		return nil
	})
	if err != nil {
		return c, classify("count", err)
	}
	for _, pc := range cmds {
		c.Add(pc.status, pc.cmd.Val())
	}
	return c, nil
}

func (s *RedisStore) ListByStatus(ctx context.Context, status jobs.Status, jobType jobs.Type, limit int) ([]*jobs.Job, error) {
	types, err := s.types(ctx, jobType)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, t := range types {
		members, err := s.rdb.SMembers(ctx, s.indexKey(t, status)).Result()
		if err != nil {
			return nil, classify("list", err)
		}
		ids = append(ids, members...)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, classify("list", err)
	}

	out := make([]*jobs.Job, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		j, err := decodeJob(fields)
		if err != nil {
			return nil, err
		}
		// The index may lag a concurrent transition by one round trip.
		if j.Status != status {
			continue
		}
		out = append(out, j)
	}
	sortOldestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *RedisStore) SweepExpired(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := s.now().Add(-retention).UnixMilli()
	removed := 0
	for {
		ids, err := s.rdb.ZRangeByScore(ctx, s.finishedKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   "(" + strconv.FormatInt(cutoff, 10),
			Count: sweepBatch,
		}).Result()
		if err != nil {
			return removed, classify("sweep", err)
		}
		for _, id := range ids {
			n, err := deleteScript.Run(ctx, s.rdb, []string{s.jobKey(id)}, s.prefix, id).Int64()
			if err != nil {
				return removed, classify("sweep", err)
			}
			removed += int(n)
		}
		if len(ids) < sweepBatch {
			return removed, nil
		}
	}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return classify("ping", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// classify wraps backend failures as ErrStoreUnavailable. Cancellation by the
// caller is passed through unchanged.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return jobs.Unavailable(op, err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func parseTimePtr(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func finishedScore(st jobs.Status, finished *time.Time) string {
	if !st.Terminal() || finished == nil {
		return ""
	}
	return strconv.FormatInt(finished.UnixMilli(), 10)
}

func encodeJob(j *jobs.Job) []interface{} {
	return []interface{}{
		fieldID, j.ID,
		fieldType, string(j.Type),
		fieldPayload, string(j.Payload),
		fieldStatus, string(j.Status),
		fieldProgress, j.Progress,
		fieldResult, string(j.Result),
		fieldError, j.Error,
		fieldAttempts, j.Attempts,
		fieldMaxAttempts, j.MaxAttempts,
		fieldCreatedAt, formatTime(j.CreatedAt),
		fieldUpdatedAt, formatTime(j.UpdatedAt),
		fieldStartedAt, formatTimePtr(j.StartedAt),
		fieldClaimedAt, formatTimePtr(j.ClaimedAt),
		fieldFinishedAt, formatTimePtr(j.FinishedAt),
		fieldRunAt, formatTimePtr(j.RunAt),
	}
}

// encodePatch mirrors jobs.Patch.Apply as field/value pairs. Attempts,
// status and the set-once timestamps are handled inside updateScript.
func encodePatch(p jobs.Patch, now time.Time) []interface{} {
	out := []interface{}{fieldUpdatedAt, formatTime(now)}
	if p.Progress != nil {
		out = append(out, fieldProgress, jobs.ClampProgress(*p.Progress))
	}
	if p.Result != nil {
		out = append(out, fieldResult, string(p.Result))
	}
	switch {
	case p.Error != nil:
		out = append(out, fieldError, *p.Error)
	case p.ClearError:
		out = append(out, fieldError, "")
	}
	if p.ClaimedAt != nil {
		out = append(out, fieldClaimedAt, formatTime(*p.ClaimedAt))
	}
	if p.FinishedAt != nil {
		out = append(out, fieldFinishedAt, formatTime(*p.FinishedAt))
	}
	switch {
	case p.RunAt != nil:
		out = append(out, fieldRunAt, formatTime(*p.RunAt))
	case p.ClearRunAt:
		out = append(out, fieldRunAt, "")
	}
	return out
}

func decodeJob(f map[string]string) (*jobs.Job, error) {
	j := &jobs.Job{
		ID:     f[fieldID],
		Type:   jobs.Type(f[fieldType]),
		Status: jobs.Status(f[fieldStatus]),
		Error:  f[fieldError],
	}
	if v := f[fieldPayload]; v != "" {
		j.Payload = []byte(v)
	}
	if v := f[fieldResult]; v != "" {
		j.Result = []byte(v)
	}

	var err error
	if j.Progress, err = atoi(f[fieldProgress]); err != nil {
		return nil, fmt.Errorf("decode job %s progress: %w", j.ID, err)
	}
	if j.Attempts, err = atoi(f[fieldAttempts]); err != nil {
		return nil, fmt.Errorf("decode job %s attempts: %w", j.ID, err)
	}
	if j.MaxAttempts, err = atoi(f[fieldMaxAttempts]); err != nil {
		return nil, fmt.Errorf("decode job %s max_attempts: %w", j.ID, err)
	}

	created, err := parseTimePtr(f[fieldCreatedAt])
	if err != nil {
		return nil, fmt.Errorf("decode job %s created_at: %w", j.ID, err)
	}
	if created != nil {
		j.CreatedAt = *created
	}
	updated, err := parseTimePtr(f[fieldUpdatedAt])
	if err != nil {
		return nil, fmt.Errorf("decode job %s updated_at: %w", j.ID, err)
	}
	if updated != nil {
		j.UpdatedAt = *updated
	}
	for name, dst := range map[string]**time.Time{
		fieldStartedAt:  &j.StartedAt,
		fieldClaimedAt:  &j.ClaimedAt,
		fieldFinishedAt: &j.FinishedAt,
		fieldRunAt:      &j.RunAt,
	} {
		if *dst, err = parseTimePtr(f[name]); err != nil {
			return nil, fmt.Errorf("decode job %s %s: %w", j.ID, name, err)
		}
	}
	return j, nil
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

func pairsToMap(reply []interface{}) (map[string]string, error) {
	if len(reply)%2 != 0 {
		return nil, fmt.Errorf("odd hash reply length %d", len(reply))
	}
	out := make(map[string]string, len(reply)/2)
	for i := 0; i < len(reply); i += 2 {
		k, ok1 := reply[i].(string)
		v, ok2 := reply[i+1].(string)
		if !ok1 || !ok2 {
			return nil, fmt.Errorf("non-string hash reply at %d", i)
		}
		out[k] = v
	}
	return out, nil
}
