// Package kvstore builds the process-wide Redis handle. It is constructed
// once at start-up and injected into every component that needs it.
package kvstore

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// PingTimeout bounds the start-up and health-check PING.
const PingTimeout = 5 * time.Second

// Options selects the Redis server. URL wins over Host/Port when set.
type Options struct {
	URL      string
	Host     string
	Port     int
	Password string
	DB       int

	PoolSize        int
	MinIdleConns    int
	DialTimeout     time.Duration
	ConnMaxIdleTime time.Duration
}

// RedisOptions resolves Options into go-redis options with pool tuning
// applied.
func RedisOptions(o Options) (*redis.Options, error) {
	var opt *redis.Options
	if o.URL != "" {
		parsed, err := redis.ParseURL(o.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	} else {
		host := o.Host
		if host == "" {
			host = "localhost"
		}
		port := o.Port
		if port == 0 {
			port = 6379
		}
		opt = &redis.Options{
			Addr:     net.JoinHostPort(host, strconv.Itoa(port)),
			Password: o.Password,
			DB:       o.DB,
		}
	}

	opt.PoolSize = 100
	opt.MinIdleConns = 2
	opt.DialTimeout = 5 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	if o.PoolSize > 0 {
		opt.PoolSize = o.PoolSize
	}
	if o.MinIdleConns > 0 {
		opt.MinIdleConns = o.MinIdleConns
	}
	if o.DialTimeout > 0 {
		opt.DialTimeout = o.DialTimeout
	}
	if o.ConnMaxIdleTime > 0 {
		opt.ConnMaxIdleTime = o.ConnMaxIdleTime
	}
	return opt, nil
}

// Connect opens the client and verifies it with a PING. The client is closed
// again when the PING fails.
func Connect(ctx context.Context, o Options) (*redis.Client, error) {
	opt, err := RedisOptions(o)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opt)
	if err := Ping(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Ping checks reachability within PingTimeout.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}
