package geo

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands plus a per-captain meta
// hash for duty status, vehicle class and rating.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(addr, password, key string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisGeo{client: c, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, c models.Captain) error {
	if _, err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: c.Loc.Lon, Latitude: c.Loc.Lat, Name: c.ID}).Result(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(c.ID), map[string]interface{}{
		"duty":    string(c.Duty),
		"class":   string(c.VehicleClass),
		"rating":  strconv.FormatFloat(c.Rating, 'f', -1, 64),
		"name":    c.Name,
		"updated": time.Now().Format(time.RFC3339),
	}).Err()
}

func (r *RedisGeo) SetDuty(ctx context.Context, captainID string, duty models.DutyStatus) error {
	return r.client.HSet(ctx, metaKey(captainID), "duty", string(duty)).Err()
}

func (r *RedisGeo) Nearby(ctx context.Context, origin models.Coord, radiusM float64, class models.VehicleClass, limit int) ([]models.Captain, error) {
	res, err := r.client.GeoRadius(ctx, r.key, origin.Lon, origin.Lat, &redis.GeoRadiusQuery{
		Radius: radiusM, Unit: "m", WithCoord: true, WithDist: true, Count: limit * 4, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.Captain, 0, len(res))
	for _, g := range res {
		if len(out) >= limit {
			break
		}
		c := models.Captain{ID: g.Name, Loc: models.Coord{Lat: g.Latitude, Lon: g.Longitude}}
		m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result()
		if err != nil {
			continue
		}
		c.Duty = models.DutyStatus(m["duty"])
		c.VehicleClass = models.VehicleClass(m["class"])
		c.Name = m["name"]
		if v, ok := m["rating"]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				c.Rating = f
			}
		}
		// the index may be stale; filter on current meta
		if c.Duty != models.DutyActive || c.VehicleClass != class {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *RedisGeo) Ping(ctx context.Context) error { return r.client.Ping(ctx).Err() }

func metaKey(id string) string { return "captain:meta:" + id }
