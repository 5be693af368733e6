// docqueue - Background Job Queue for Classroom Document and Podcast Processing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/docqueue

package store

import "github.com/redis/go-redis/v9"

// Index keys are derived inside the scripts from the prefix, so the store
// assumes a single Redis node or a Sentinel-managed primary, not Cluster.

// putScript overwrites a job hash and moves it between index sets.
//
// KEYS[1] job hash
// ARGV[1] key prefix, ARGV[2] id, ARGV[3] type, ARGV[4] status,
// ARGV[5] finished score or "", ARGV[6..] field/value pairs
var putScript = redis.NewScript(`
local old = redis.call('HMGET', KEYS[1], 'type', 'status')
if old[1] and old[2] then
  redis.call('SREM', ARGV[1] .. 'idx:' .. old[1] .. ':' .. old[2], ARGV[2])
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1], unpack(ARGV, 6))
redis.call('SADD', ARGV[1] .. 'idx:' .. ARGV[3] .. ':' .. ARGV[4], ARGV[2])
redis.call('SADD', ARGV[1] .. 'types', ARGV[3])
if ARGV[5] ~= '' then
  redis.call('ZADD', ARGV[1] .. 'finished', ARGV[5], ARGV[2])
else
  redis.call('ZREM', ARGV[1] .. 'finished', ARGV[2])
end
return 1
`)

// createScript writes a job hash only when the key is absent.
// Returns 0 when the job exists, 1 when written. Arguments match putScript.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('HSET', KEYS[1], unpack(ARGV, 6))
redis.call('SADD', ARGV[1] .. 'idx:' .. ARGV[3] .. ':' .. ARGV[4], ARGV[2])
redis.call('SADD', ARGV[1] .. 'types', ARGV[3])
if ARGV[5] ~= '' then
  redis.call('ZADD', ARGV[1] .. 'finished', ARGV[5], ARGV[2])
end
return 1
`)

// updateScript is the compare-and-swap behind UpdateStatus.
// Returns -1 when missing, 0 on conflict, the updated hash otherwise.
//
// KEYS[1] job hash
// ARGV[1] key prefix, ARGV[2] id, ARGV[3] from, ARGV[4] to,
// ARGV[5] expected attempts (0 = any), ARGV[6] "1" to increment attempts
// or "-1" to refund one,
// ARGV[7] finished score or "", ARGV[8..] field/value pairs
var updateScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'status', 'type', 'attempts', 'max_attempts', 'started_at', 'finished_at')
if not cur[1] then return -1 end
if cur[1] ~= ARGV[3] then return 0 end
if cur[1] == 'completed' or cur[1] == 'failed' then return 0 end
local attempts = tonumber(cur[3]) or 0
local expect = tonumber(ARGV[5]) or 0
if expect > 0 and attempts ~= expect then return 0 end
if ARGV[6] == '1' then
  if attempts >= (tonumber(cur[4]) or 0) then return 0 end
  redis.call('HSET', KEYS[1], 'attempts', attempts + 1)
elseif ARGV[6] == '-1' and attempts > 0 then
  redis.call('HSET', KEYS[1], 'attempts', attempts - 1)
end
local started = cur[5] and cur[5] ~= ''
local finished = cur[6] and cur[6] ~= ''
for i = 8, #ARGV, 2 do
  local f, v = ARGV[i], ARGV[i + 1]
  if f == 'finished_at' then
    if not finished then redis.call('HSET', KEYS[1], f, v) end
  else
    redis.call('HSET', KEYS[1], f, v)
    if f == 'claimed_at' and not started then
      redis.call('HSET', KEYS[1], 'started_at', v)
    end
  end
end
redis.call('HSET', KEYS[1], 'status', ARGV[4])
redis.call('SREM', ARGV[1] .. 'idx:' .. cur[2] .. ':' .. cur[1], ARGV[2])
redis.call('SADD', ARGV[1] .. 'idx:' .. cur[2] .. ':' .. ARGV[4], ARGV[2])
if ARGV[7] ~= '' then
  redis.call('ZADD', ARGV[1] .. 'finished', ARGV[7], ARGV[2])
end
return redis.call('HGETALL', KEYS[1])
`)

// progressScript raises the progress of the current attempt only.
// Returns -1 when missing, 0 on conflict, 1 otherwise.
//
// KEYS[1] job hash
// ARGV[1] attempt, ARGV[2] progress, ARGV[3] updated_at
var progressScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'status', 'attempts', 'progress')
if not cur[1] then return -1 end
if cur[1] ~= 'active' or tonumber(cur[2]) ~= tonumber(ARGV[1]) then return 0 end
if tonumber(ARGV[2]) > (tonumber(cur[3]) or 0) then
  redis.call('HSET', KEYS[1], 'progress', ARGV[2], 'updated_at', ARGV[3])
end
return 1
`)

// deleteScript removes one terminal job and its index entries.
//
// KEYS[1] job hash
// ARGV[1] key prefix, ARGV[2] id
var deleteScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'type', 'status')
redis.call('ZREM', ARGV[1] .. 'finished', ARGV[2])
if not cur[1] then return 0 end
if cur[2] ~= 'completed' and cur[2] ~= 'failed' then return 0 end
redis.call('DEL', KEYS[1])
redis.call('SREM', ARGV[1] .. 'idx:' .. cur[1] .. ':' .. cur[2], ARGV[2])
return 1
`)
