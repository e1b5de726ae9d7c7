package redis

const (
	// upsertSubscriptionScript writes a subscription and its index entry atomically
	upsertSubscriptionScript = `
local sub_key = KEYS[1]     -- talkgate:subscription:{userID}
local index_key = KEYS[2]   -- talkgate:subscriptions

local user_id = ARGV[1]
local plan_id = ARGV[2]
local updated_at = ARGV[3]

redis.call('HSET', sub_key,
  'user_id', user_id,
  'plan_id', plan_id,
  'updated_at', updated_at
)
redis.call('SADD', index_key, user_id)

return 'OK'
`

	// deleteSubscriptionScript removes a subscription and its index entry.
	// Returns the number of hashes deleted (0 or 1).
	deleteSubscriptionScript = `
local sub_key = KEYS[1]
local index_key = KEYS[2]

local user_id = ARGV[1]

local deleted = redis.call('DEL', sub_key)
redis.call('SREM', index_key, user_id)

return deleted
`
)
