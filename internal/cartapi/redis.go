package cartapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// addLineScript adds quantity to the user's line for a product, or creates
// the line when the product is not in the cart yet.
// KEYS[1] = lines hash (lineID -> line JSON)
// KEYS[2] = order list of line ids
// KEYS[3] = owner key of the candidate line id
// ARGV[1] = product id
// ARGV[2] = candidate line id
// ARGV[3] = quantity to add
// ARGV[4] = candidate line JSON
// ARGV[5] = user id
var addLineScript = redis.NewScript(`
local lines = redis.call("HGETALL", KEYS[1])
for i = 1, #lines, 2 do
    local line = cjson.decode(lines[i + 1])
    if line["productId"] == ARGV[1] then
        line["displayQuantity"] = line["displayQuantity"] + tonumber(ARGV[3])
        local out = cjson.encode(line)
        redis.call("HSET", KEYS[1], lines[i], out)
        return out
    end
end
redis.call("HSET", KEYS[1], ARGV[2], ARGV[4])
redis.call("RPUSH", KEYS[2], ARGV[2])
redis.call("SET", KEYS[3], ARGV[5])
return ARGV[4]
`)

// updateLineScript sets the quantity of an existing line.
// KEYS[1] = lines hash
// ARGV[1] = line id
// ARGV[2] = quantity
var updateLineScript = redis.NewScript(`
local raw = redis.call("HGET", KEYS[1], ARGV[1])
if not raw then
    return false
end
local line = cjson.decode(raw)
line["displayQuantity"] = tonumber(ARGV[2])
local out = cjson.encode(line)
redis.call("HSET", KEYS[1], ARGV[1], out)
return out
`)

// RedisLines keeps carts in Redis.
type RedisLines struct {
	client redis.UniversalClient
	prefix string
	newID  func() string
}

var _ Lines = (*RedisLines)(nil)

// NewRedisLines uses client with keys under prefix.
func NewRedisLines(client redis.UniversalClient, prefix string) *RedisLines {
	if prefix == "" {
		prefix = "cartapi"
	}
	return &RedisLines{client: client, prefix: prefix, newID: uuid.NewString}
}

func (r *RedisLines) linesKey(userID string) string { return r.prefix + ":cart:" + userID + ":lines" }
func (r *RedisLines) orderKey(userID string) string { return r.prefix + ":cart:" + userID + ":order" }
func (r *RedisLines) ownerKey(lineID string) string { return r.prefix + ":line:" + lineID }

func (r *RedisLines) List(ctx context.Context, userID string) ([]Line, error) {
	ids, err := r.client.LRange(ctx, r.orderKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list order: %w", err)
	}
	if len(ids) == 0 {
		return []Line{}, nil
	}
	vals, err := r.client.HMGet(ctx, r.linesKey(userID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	lines := make([]Line, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var l Line
		if err := json.Unmarshal([]byte(s), &l); err != nil {
			return nil, fmt.Errorf("decode line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, nil
}

func (r *RedisLines) Add(ctx context.Context, userID string, req AddRequest) (Line, error) {
	if err := req.Validate(); err != nil {
		return Line{}, err
	}
	candidate := Line{
		ID:        r.newID(),
		UserID:    userID,
		ProductID: req.ProductID,
		Name:      req.Name,
		Price:     req.Price,
		Quantity:  req.Quantity,
		Image:     req.Image,
	}
	data, err := json.Marshal(candidate)
	if err != nil {
		return Line{}, fmt.Errorf("encode line: %w", err)
	}

	keys := []string{r.linesKey(userID), r.orderKey(userID), r.ownerKey(candidate.ID)}
	out, err := addLineScript.Run(ctx, r.client, keys,
		req.ProductID, candidate.ID, req.Quantity, string(data), userID).Text()
	if err != nil {
		return Line{}, fmt.Errorf("add line: %w", err)
	}
	return decodeLine(out)
}

func (r *RedisLines) Update(ctx context.Context, lineID string, qty int) (Line, error) {
	if err := validateQuantity(qty); err != nil {
		return Line{}, err
	}
	userID, err := r.owner(ctx, lineID)
	if err != nil {
		return Line{}, err
	}
	out, err := updateLineScript.Run(ctx, r.client, []string{r.linesKey(userID)}, lineID, qty).Text()
	if errors.Is(err, redis.Nil) {
		return Line{}, ErrNotFound
	}
	if err != nil {
		return Line{}, fmt.Errorf("update line: %w", err)
	}
	return decodeLine(out)
}

func (r *RedisLines) Remove(ctx context.Context, lineID string) error {
	userID, err := r.owner(ctx, lineID)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HDel(ctx, r.linesKey(userID), lineID)
		p.LRem(ctx, r.orderKey(userID), 0, lineID)
		p.Del(ctx, r.ownerKey(lineID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove line: %w", err)
	}
	return nil
}

func (r *RedisLines) Clear(ctx context.Context, userID string) error {
	ids, err := r.client.LRange(ctx, r.orderKey(userID), 0, -1).Result()
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	keys := []string{r.linesKey(userID), r.orderKey(userID)}
	for _, id := range ids {
		keys = append(keys, r.ownerKey(id))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	return nil
}

func (r *RedisLines) owner(ctx context.Context, lineID string) (string, error) {
	userID, err := r.client.Get(ctx, r.ownerKey(lineID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("line owner: %w", err)
	}
	return userID, nil
}

func decodeLine(s string) (Line, error) {
	var l Line
	if err := json.Unmarshal([]byte(s), &l); err != nil {
		return Line{}, fmt.Errorf("decode line: %w", err)
	}
	return l, nil
}
