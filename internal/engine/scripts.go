package engine

// All timestamps are read from the store's own clock with Redis TIME
// inside the script, never passed in by the caller, so concurrent
// callers on different machines can never race on clock skew
// (spec.md §9 Design Notes). Every script is O(batch size) except
// cleanup/status which scan the showtime's full seat hash.

const batchReserveScript = `
local seats_key = KEYS[1]
local avail_key = KEYS[2]
local booking_id = ARGV[1]
local hold_duration = tonumber(ARGV[2])
local seats = cjson.decode(ARGV[3])

if #seats == 0 then
  return cjson.encode({error = "INVALID_INPUT", message = "seat list is empty"})
end
if hold_duration == nil or hold_duration <= 0 then
  return cjson.encode({error = "INVALID_INPUT", message = "hold duration must be positive"})
end

local now = tonumber(redis.call('TIME')[1])
local hold_until = now + hold_duration

local unavailable = {}
local records = {}

for i, s in ipairs(seats) do
  local raw = redis.call('HGET', seats_key, s.seat_id)
  if raw == false then
    table.insert(unavailable, {seat_id = s.seat_id, reason = "NOT_FOUND"})
  else
    local rec = cjson.decode(raw)
    if rec.status == "booked" then
      table.insert(unavailable, {seat_id = s.seat_id, reason = "BOOKED"})
    elseif rec.status == "held" and rec.booking_id ~= booking_id and tonumber(rec.held_until or 0) > now then
      table.insert(unavailable, {seat_id = s.seat_id, reason = "HELD"})
    else
      records[i] = rec
    end
  end
end

if #unavailable > 0 then
  return cjson.encode({success = false, unavailable = unavailable})
end

local decremented = 0
for i, s in ipairs(seats) do
  local rec = records[i]
  if rec.status == "available" then
    decremented = decremented + 1
  end
  rec.status = "held"
  rec.booking_id = booking_id
  rec.held_until = hold_until
  rec.seat_type = s.seat_type
  rec.reserved_at = now
  redis.call('HSET', seats_key, s.seat_id, cjson.encode(rec))
end

if decremented > 0 then
  redis.call('DECRBY', avail_key, decremented)
end

return cjson.encode({success = true, reserved = #seats, expires_at = hold_until})
`

const confirmSeatsScript = `
local seats_key = KEYS[1]
local booking_id = ARGV[1]
local seat_ids = cjson.decode(ARGV[2])

local now = tonumber(redis.call('TIME')[1])

local confirmed = {}
local failed = {}

for _, seat_id in ipairs(seat_ids) do
  local raw = redis.call('HGET', seats_key, seat_id)
  if raw == false then
    table.insert(failed, {seat_id = seat_id, reason = "NOT_FOUND"})
  else
    local rec = cjson.decode(raw)
    if rec.status ~= "held" then
      table.insert(failed, {seat_id = seat_id, reason = "NOT_HELD"})
    elseif rec.booking_id ~= booking_id then
      table.insert(failed, {seat_id = seat_id, reason = "WRONG_BOOKING"})
    elseif tonumber(rec.held_until or 0) <= now then
      table.insert(failed, {seat_id = seat_id, reason = "HOLD_EXPIRED"})
    else
      rec.status = "booked"
      rec.confirmed_at = now
      rec.held_until = nil
      redis.call('HSET', seats_key, seat_id, cjson.encode(rec))
      table.insert(confirmed, seat_id)
    end
  end
end

return cjson.encode({confirmed = confirmed, failed = failed})
`

const releaseSeatsScript = `
local seats_key = KEYS[1]
local avail_key = KEYS[2]
local booking_id = ARGV[1]
local seat_ids = cjson.decode(ARGV[2])
local reason = ARGV[3]

local now = tonumber(redis.call('TIME')[1])

local released = {}
local failed = {}
local count = 0

for _, seat_id in ipairs(seat_ids) do
  local raw = redis.call('HGET', seats_key, seat_id)
  if raw == false then
    table.insert(failed, {seat_id = seat_id, reason = "NOT_FOUND"})
  else
    local rec = cjson.decode(raw)
    if rec.booking_id ~= booking_id then
      table.insert(failed, {seat_id = seat_id, reason = "WRONG_BOOKING"})
    else
      redis.call('HSET', seats_key, seat_id, cjson.encode({
        status = "available",
        seat_type = rec.seat_type,
        released_at = now,
        released_reason = reason,
        previous_booking = booking_id,
      }))
      table.insert(released, seat_id)
      count = count + 1
    end
  end
end

if count > 0 then
  redis.call('INCRBY', avail_key, count)
end

return cjson.encode({released = released, failed = failed})
`

const cleanupExpiredHoldsScript = `
local seats_key = KEYS[1]
local avail_key = KEYS[2]

local now = tonumber(redis.call('TIME')[1])
local all = redis.call('HGETALL', seats_key)

local released = {}
local count = 0

for i = 1, #all, 2 do
  local seat_id = all[i]
  local rec = cjson.decode(all[i + 1])
  if rec.status == "held" and tonumber(rec.held_until or 0) < now then
    redis.call('HSET', seats_key, seat_id, cjson.encode({
      status = "available",
      seat_type = rec.seat_type,
      released_at = now,
      released_reason = "HOLD_EXPIRED",
      previous_booking = rec.booking_id,
    }))
    table.insert(released, seat_id)
    count = count + 1
  end
end

if count > 0 then
  redis.call('INCRBY', avail_key, count)
end

return cjson.encode({released = released, count = count})
`

const getSeatsStatusScript = `
local seats_key = KEYS[1]
local avail_key = KEYS[2]
local filter = cjson.decode(ARGV[1])

local now = tonumber(redis.call('TIME')[1])
local all = redis.call('HGETALL', seats_key)

local wanted = nil
if #filter > 0 then
  wanted = {}
  for _, id in ipairs(filter) do wanted[id] = true end
end

local out = {}
local reaped = 0

for i = 1, #all, 2 do
  local seat_id = all[i]
  local rec = cjson.decode(all[i + 1])
  if rec.status == "held" and tonumber(rec.held_until or 0) < now then
    local seat_type = rec.seat_type
    local previous = rec.booking_id
    rec = {status = "available", seat_type = seat_type, released_at = now, released_reason = "HOLD_EXPIRED", previous_booking = previous}
    redis.call('HSET', seats_key, seat_id, cjson.encode(rec))
    reaped = reaped + 1
  end
  if wanted == nil or wanted[seat_id] then
    local entry = {seat_id = seat_id, status = rec.status, seat_type = rec.seat_type}
    if rec.status == "held" then
      entry.booking_id = rec.booking_id
      entry.remaining_seconds = tonumber(rec.held_until) - now
    elseif rec.status == "booked" then
      entry.booking_id = rec.booking_id
    end
    table.insert(out, entry)
  end
end

if reaped > 0 then
  redis.call('INCRBY', avail_key, reaped)
end

local available = tonumber(redis.call('GET', avail_key) or "0")

return cjson.encode({seats = out, available = available})
`

const extendHoldScript = `
local seats_key = KEYS[1]
local booking_id = ARGV[1]
local seat_ids = cjson.decode(ARGV[2])
local additional = tonumber(ARGV[3])

local now = tonumber(redis.call('TIME')[1])

local extended = {}
local failed = {}

for _, seat_id in ipairs(seat_ids) do
  local raw = redis.call('HGET', seats_key, seat_id)
  if raw == false then
    table.insert(failed, {seat_id = seat_id, reason = "NOT_FOUND"})
  else
    local rec = cjson.decode(raw)
    if rec.status ~= "held" then
      table.insert(failed, {seat_id = seat_id, reason = "NOT_HELD"})
    elseif rec.booking_id ~= booking_id then
      table.insert(failed, {seat_id = seat_id, reason = "WRONG_BOOKING"})
    elseif tonumber(rec.held_until or 0) <= now then
      table.insert(failed, {seat_id = seat_id, reason = "HOLD_EXPIRED"})
    else
      rec.held_until = tonumber(rec.held_until) + additional
      redis.call('HSET', seats_key, seat_id, cjson.encode(rec))
      table.insert(extended, seat_id)
    end
  end
end

return cjson.encode({extended = extended, failed = failed})
`
