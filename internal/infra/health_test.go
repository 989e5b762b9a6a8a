package infra

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestRunChecks(t *testing.T) {
	statuses, healthy := RunChecks(context.Background(), map[string]Check{
		"redis":     func(context.Context) error { return nil },
		"mainchain": func(context.Context) error { return errors.New("not connected") },
	})
	if healthy {
		t.Fatal("a failing check must make the result unhealthy")
	}
	if statuses["redis"] != StatusOK || statuses["mainchain"] != "not connected" {
		t.Fatalf("unexpected statuses %v", statuses)
	}

	if _, healthy := RunChecks(context.Background(), nil); !healthy {
		t.Fatal("no checks should be healthy")
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()

	check := RedisCheck(client)
	if err := check(context.Background()); err != nil {
		t.Fatalf("check against a live server: %v", err)
	}
	mr.Close()
	if err := check(context.Background()); err == nil {
		t.Fatal("check should fail once the server is gone")
	}
	if _, err := NewRedisClient(context.Background(), "redis://"+mr.Addr()); err == nil {
		t.Fatal("expected ping error for a stopped server")
	}
}

func TestRedisOptions(t *testing.T) {
	if _, err := RedisOptions(""); !errors.Is(err, ErrRedisNotConfigured) {
		t.Fatalf("expected ErrRedisNotConfigured, got %v", err)
	}
	if _, err := RedisOptions("http://localhost:6379"); err == nil {
		t.Fatal("expected error for a non-redis scheme")
	}

	opt, err := RedisOptions("redis://localhost:6379/2")
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opt.DB != 2 || opt.PoolSize != redisPoolSize || opt.ReadTimeout != redisIOTimeout || opt.DialTimeout != redisDialTimeout {
		t.Fatalf("unexpected defaults %+v", opt)
	}

	opt, err = RedisOptions("redis://localhost:6379?pool_size=3")
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opt.PoolSize != 3 {
		t.Fatalf("explicit pool size should be kept, got %d", opt.PoolSize)
	}
}
