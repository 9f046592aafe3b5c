package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type registryFactory func(t *testing.T) domrepo.JobRegistry

func newTestRedisRegistry(t *testing.T) (*RedisRegistry, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRegistry(client, "export:job:", time.Hour), mr
}

var registries = map[string]registryFactory{
	"memory": func(*testing.T) domrepo.JobRegistry { return NewMemoryRegistry() },
	"redis": func(t *testing.T) domrepo.JobRegistry {
		r, _ := newTestRedisRegistry(t)
		return r
	},
}

func eachRegistry(t *testing.T, fn func(t *testing.T, r domrepo.JobRegistry)) {
	for name, factory := range registries {
		t.Run(name, func(t *testing.T) {
			fn(t, factory(t))
		})
	}
}

func TestRegistry_CreateAndGet(t *testing.T) {
	eachRegistry(t, func(t *testing.T, r domrepo.JobRegistry) {
		ctx := context.Background()
		from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		job := &models.ExportJob{
			ID:     "a",
			Kind:   models.ExportTick,
			State:  models.JobCompleted,
			Params: models.ExportParams{InstrumentID: 3, From: &from},
		}
		if err := r.Create(ctx, job); err != nil {
			t.Fatalf("create: %v", err)
		}
		if job.State != models.JobPending || job.CreatedAt.IsZero() {
			t.Fatalf("created job = %+v", job)
		}

		got, err := r.Get(ctx, "a")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.State != models.JobPending || got.Kind != models.ExportTick || got.Params.InstrumentID != 3 {
			t.Fatalf("unexpected job %+v", got)
		}
		if got.Params.From == nil || !got.Params.From.Equal(from) {
			t.Fatalf("params not preserved: %+v", got.Params)
		}

		got.State = models.JobFailed
		again, _ := r.Get(ctx, "a")
		if again.State != models.JobPending {
			t.Fatal("Get must return a copy")
		}
	})
}

func TestRegistry_DuplicateCreate(t *testing.T) {
	eachRegistry(t, func(t *testing.T, r domrepo.JobRegistry) {
		ctx := context.Background()
		if err := r.Create(ctx, &models.ExportJob{ID: "dup"}); err != nil {
			t.Fatal(err)
		}
		err := r.Create(ctx, &models.ExportJob{ID: "dup"})
		if !errors.Is(err, domrepo.ErrJobExists) {
			t.Fatalf("err = %v, want ErrJobExists", err)
		}
	})
}

func TestRegistry_UnknownID(t *testing.T) {
	eachRegistry(t, func(t *testing.T, r domrepo.JobRegistry) {
		ctx := context.Background()
		if _, err := r.Get(ctx, "missing"); !errors.Is(err, domrepo.ErrNotFound) {
			t.Fatalf("get err = %v", err)
		}
		if _, err := r.Transition(ctx, "missing", models.JobProcessing, models.JobPayload{}); !errors.Is(err, domrepo.ErrNotFound) {
			t.Fatalf("transition err = %v", err)
		}
	})
}

func TestRegistry_Transitions(t *testing.T) {
	eachRegistry(t, func(t *testing.T, r domrepo.JobRegistry) {
		ctx := context.Background()
		if err := r.Create(ctx, &models.ExportJob{ID: "j"}); err != nil {
			t.Fatal(err)
		}

		if _, err := r.Transition(ctx, "j", models.JobPending, models.JobPayload{}); !errors.Is(err, domrepo.ErrInvalidTransition) {
			t.Fatalf("pending -> pending err = %v", err)
		}
		if _, err := r.Transition(ctx, "j", models.JobCompleted, models.JobPayload{}); !errors.Is(err, domrepo.ErrInvalidTransition) {
			t.Fatalf("pending -> completed err = %v", err)
		}
		if _, err := r.Transition(ctx, "j", models.JobProcessing, models.JobPayload{}); err != nil {
			t.Fatalf("pending -> processing: %v", err)
		}
		job, err := r.Transition(ctx, "j", models.JobCompleted, models.JobPayload{FilePath: "/tmp/j.csv", Error: "ignored", Rows: 7})
		if err != nil {
			t.Fatalf("processing -> completed: %v", err)
		}
		if job.FilePath != "/tmp/j.csv" || job.Rows != 7 || job.Error != "" {
			t.Fatalf("unexpected payload %+v", job)
		}

		for _, next := range []models.JobState{models.JobPending, models.JobProcessing, models.JobFailed, models.JobCompleted} {
			if _, err := r.Transition(ctx, "j", next, models.JobPayload{}); !errors.Is(err, domrepo.ErrInvalidTransition) {
				t.Fatalf("completed -> %s err = %v", next, err)
			}
		}
		final, _ := r.Get(ctx, "j")
		if final.State != models.JobCompleted || final.FilePath != "/tmp/j.csv" {
			t.Fatalf("terminal job mutated: %+v", final)
		}
	})
}

func TestRegistry_FailedKeepsOnlyError(t *testing.T) {
	eachRegistry(t, func(t *testing.T, r domrepo.JobRegistry) {
		ctx := context.Background()
		_ = r.Create(ctx, &models.ExportJob{ID: "f"})
		job, err := r.Transition(ctx, "f", models.JobFailed, models.JobPayload{FilePath: "x", Error: "boom"})
		if err != nil {
			t.Fatal(err)
		}
		if job.Error != "boom" || job.FilePath != "" {
			t.Fatalf("unexpected payload %+v", job)
		}
		stored, _ := r.Get(ctx, "f")
		if stored.State != models.JobFailed || stored.Error != "boom" {
			t.Fatalf("stored job = %+v", stored)
		}
	})
}

func TestRegistry_ConcurrentTerminalRace(t *testing.T) {
	eachRegistry(t, func(t *testing.T, r domrepo.JobRegistry) {
		ctx := context.Background()

		const jobs = 20
		for i := 0; i < jobs; i++ {
			id := fmt.Sprintf("job-%d", i)
			if err := r.Create(ctx, &models.ExportJob{ID: id}); err != nil {
				t.Fatal(err)
			}
			if _, err := r.Transition(ctx, id, models.JobProcessing, models.JobPayload{}); err != nil {
				t.Fatal(err)
			}
		}

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins = make(map[string]int)
		)
		for i := 0; i < jobs; i++ {
			id := fmt.Sprintf("job-%d", i)
			for _, st := range []models.JobState{models.JobCompleted, models.JobFailed, models.JobCompleted, models.JobFailed} {
				wg.Add(1)
				go func(id string, st models.JobState) {
					defer wg.Done()
					if _, err := r.Transition(ctx, id, st, models.JobPayload{}); err == nil {
						mu.Lock()
						wins[id]++
						mu.Unlock()
					}
				}(id, st)
			}
		}
		wg.Wait()

		for i := 0; i < jobs; i++ {
			id := fmt.Sprintf("job-%d", i)
			if wins[id] != 1 {
				t.Fatalf("%s: %d terminal transitions succeeded, want 1", id, wins[id])
			}
		}
	})
}

func TestRedisRegistry_KeyAndTTL(t *testing.T) {
	r, mr := newTestRedisRegistry(t)
	ctx := context.Background()

	if err := r.Create(ctx, &models.ExportJob{ID: "ttl"}); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("export:job:ttl") {
		t.Fatalf("keys = %v", mr.Keys())
	}
	if ttl := mr.TTL("export:job:ttl"); ttl != time.Hour {
		t.Fatalf("ttl after create = %v", ttl)
	}

	mr.FastForward(10 * time.Minute)
	if _, err := r.Transition(ctx, "ttl", models.JobProcessing, models.JobPayload{}); err != nil {
		t.Fatal(err)
	}
	if ttl := mr.TTL("export:job:ttl"); ttl != 50*time.Minute {
		t.Fatalf("ttl after transition = %v, want the remaining 50m", ttl)
	}

	mr.FastForward(time.Hour)
	if _, err := r.Get(ctx, "ttl"); !errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("expired job err = %v", err)
	}
}

func TestRedisRegistry_CorruptValue(t *testing.T) {
	r, mr := newTestRedisRegistry(t)
	if err := mr.Set("export:job:bad", "{not json"); err != nil {
		t.Fatal(err)
	}
	_, err := r.Get(context.Background(), "bad")
	if err == nil || errors.Is(err, domrepo.ErrNotFound) {
		t.Fatalf("err = %v, want a decode error", err)
	}
}
