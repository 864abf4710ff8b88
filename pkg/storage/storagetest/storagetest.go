// Package storagetest holds the behaviour every storage.RunStore backend
// must share. Backend tests call Run with a constructor for a fresh store.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rhuss/codinit/pkg/api"
	"github.com/rhuss/codinit/pkg/storage"
)

// MakeRun returns a run with a fixed ID and timestamp offset by minutes.
func MakeRun(id string, minutes int) *api.Run {
	return &api.Run{
		Timestamp:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(minutes) * time.Minute),
		RunID:         id,
		GitSHA:        "3f2a9c1",
		CommitMessage: "tune lint threshold",
		Tasks:         []api.TaskLog{},
	}
}

// MakeTask returns a task log with one generation attempt.
func MakeTask(id, metric int) *api.TaskLog {
	return &api.TaskLog{
		TaskID:    id,
		Task:      fmt.Sprintf("task %d", id),
		Metric:    metric,
		Time:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Succeeded: metric == 0,
		Config:    api.DefaultExecutorConfig(),
		InitialCode: api.InitialCode{
			GeneratedPlan: api.GeneratedPlan{Plan: []string{"print it"}},
			CodingAgent:   api.CodeGeneration{GeneratedCode: "print('hi')"},
		},
		GenerationAttempts: []api.GenerationAttempt{{
			GenerationID: 0,
			Metric:       metric,
			LintingLoop: []api.LintingAttempt{{
				Code:       "print('hi')",
				LintResult: []string{},
			}},
		}},
		FinalCode: "print('hi')",
	}
}

// Run exercises newStore against the RunStore contract.
func Run(t *testing.T, newStore func(t *testing.T) storage.RunStore) {
	t.Helper()

	t.Run("SaveAndGet", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.SaveRun(ctx, MakeRun("run-1", 0)); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		got, err := s.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if got.RunID != "run-1" {
			t.Errorf("RunID = %q, want %q", got.RunID, "run-1")
		}
		if got.GitSHA != "3f2a9c1" {
			t.Errorf("GitSHA = %q, want %q", got.GitSHA, "3f2a9c1")
		}
		if !got.Timestamp.Equal(MakeRun("run-1", 0).Timestamp) {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, MakeRun("run-1", 0).Timestamp)
		}
		if len(got.Tasks) != 0 {
			t.Errorf("len(Tasks) = %d, want 0", len(got.Tasks))
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetRun(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("SaveConflict", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.SaveRun(ctx, MakeRun("run-1", 0)); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		if err := s.SaveRun(ctx, MakeRun("run-1", 1)); !errors.Is(err, storage.ErrConflict) {
			t.Errorf("got %v, want ErrConflict", err)
		}
	})

	t.Run("AppendTask", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.SaveRun(ctx, MakeRun("run-1", 0)); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		for i, metric := range []int{0, 3} {
			if err := s.AppendTask(ctx, "run-1", MakeTask(i, metric)); err != nil {
				t.Fatalf("AppendTask %d: %v", i, err)
			}
		}

		got, err := s.GetRun(ctx, "run-1")
		if err != nil {
			t.Fatalf("GetRun: %v", err)
		}
		if len(got.Tasks) != 2 {
			t.Fatalf("len(Tasks) = %d, want 2", len(got.Tasks))
		}
		if got.Tasks[0].TaskID != 0 || got.Tasks[1].TaskID != 1 {
			t.Errorf("tasks out of order: %d, %d", got.Tasks[0].TaskID, got.Tasks[1].TaskID)
		}
		if got.Metric() != 3 {
			t.Errorf("Metric() = %d, want 3", got.Metric())
		}
		if got.Tasks[1].Succeeded {
			t.Error("task 1 should not be marked succeeded")
		}
		if len(got.Tasks[0].GenerationAttempts) != 1 {
			t.Errorf("len(GenerationAttempts) = %d, want 1", len(got.Tasks[0].GenerationAttempts))
		}
		if got.Tasks[0].FinalCode != "print('hi')" {
			t.Errorf("FinalCode = %q, want %q", got.Tasks[0].FinalCode, "print('hi')")
		}
	})

	t.Run("AppendTaskNotFound", func(t *testing.T) {
		s := newStore(t)
		if err := s.AppendTask(context.Background(), "missing", MakeTask(0, 0)); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("got %v, want ErrNotFound", err)
		}
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.SaveRun(ctx, MakeRun("run-1", 0)); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		got, _ := s.GetRun(ctx, "run-1")
		got.Tasks = append(got.Tasks, *MakeTask(9, 9))
		got.GitSHA = "changed"

		again, _ := s.GetRun(ctx, "run-1")
		if len(again.Tasks) != 0 || again.GitSHA != "3f2a9c1" {
			t.Errorf("stored run was mutated through a returned copy: %+v", again)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.SaveRun(ctx, MakeRun("run-1", 0)); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		if err := s.AppendTask(ctx, "run-1", MakeTask(0, 0)); err != nil {
			t.Fatalf("AppendTask: %v", err)
		}
		if err := s.DeleteRun(ctx, "run-1"); err != nil {
			t.Fatalf("DeleteRun: %v", err)
		}
		if _, err := s.GetRun(ctx, "run-1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("after delete got %v, want ErrNotFound", err)
		}
		if err := s.DeleteRun(ctx, "run-1"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("second delete got %v, want ErrNotFound", err)
		}
	})

	t.Run("ListOrderAndCursor", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for i, id := range []string{"run-a", "run-b", "run-c", "run-d", "run-e"} {
			if err := s.SaveRun(ctx, MakeRun(id, i)); err != nil {
				t.Fatalf("SaveRun %s: %v", id, err)
			}
		}

		page, err := s.ListRuns(ctx, storage.ListOptions{Limit: 2})
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if got := runIDs(page); got != "run-e,run-d" {
			t.Errorf("first page = %s, want run-e,run-d", got)
		}
		if !page.HasMore {
			t.Error("HasMore = false, want true")
		}
		if page.FirstID != "run-e" || page.LastID != "run-d" {
			t.Errorf("FirstID/LastID = %s/%s, want run-e/run-d", page.FirstID, page.LastID)
		}

		page, err = s.ListRuns(ctx, storage.ListOptions{Limit: 2, After: page.LastID})
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if got := runIDs(page); got != "run-c,run-b" {
			t.Errorf("second page = %s, want run-c,run-b", got)
		}

		page, err = s.ListRuns(ctx, storage.ListOptions{Limit: 10, Order: "asc", After: "run-c"})
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if got := runIDs(page); got != "run-d,run-e" {
			t.Errorf("asc page = %s, want run-d,run-e", got)
		}
		if page.HasMore {
			t.Error("HasMore = true, want false")
		}
		if page.Object != "list" {
			t.Errorf("Object = %q, want list", page.Object)
		}
	})

	t.Run("ListEmpty", func(t *testing.T) {
		s := newStore(t)
		page, err := s.ListRuns(context.Background(), storage.ListOptions{})
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(page.Data) != 0 || page.HasMore {
			t.Errorf("got %d runs (has_more=%v), want empty page", len(page.Data), page.HasMore)
		}
	})

	t.Run("ListIncludesTasks", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		if err := s.SaveRun(ctx, MakeRun("run-1", 0)); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		if err := s.AppendTask(ctx, "run-1", MakeTask(0, 2)); err != nil {
			t.Fatalf("AppendTask: %v", err)
		}
		page, err := s.ListRuns(ctx, storage.ListOptions{})
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(page.Data) != 1 || len(page.Data[0].Tasks) != 1 {
			t.Fatalf("got %+v, want one run with one task", page.Data)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		s := newStore(t)
		acme := storage.SetTenant(context.Background(), "acme")
		globex := storage.SetTenant(context.Background(), "globex")

		if err := s.SaveRun(acme, MakeRun("run-acme", 0)); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
		if err := s.SaveRun(globex, MakeRun("run-globex", 1)); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}

		if _, err := s.GetRun(globex, "run-acme"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("cross-tenant get: got %v, want ErrNotFound", err)
		}
		if err := s.AppendTask(globex, "run-acme", MakeTask(0, 0)); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("cross-tenant append: got %v, want ErrNotFound", err)
		}
		if err := s.DeleteRun(globex, "run-acme"); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("cross-tenant delete: got %v, want ErrNotFound", err)
		}

		page, err := s.ListRuns(acme, storage.ListOptions{})
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if got := runIDs(page); got != "run-acme" {
			t.Errorf("acme sees %s, want run-acme", got)
		}

		// No tenant in context sees every run.
		page, err = s.ListRuns(context.Background(), storage.ListOptions{})
		if err != nil {
			t.Fatalf("ListRuns: %v", err)
		}
		if len(page.Data) != 2 {
			t.Errorf("unscoped list has %d runs, want 2", len(page.Data))
		}
	})

	t.Run("HealthCheck", func(t *testing.T) {
		s := newStore(t)
		if err := s.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck: %v", err)
		}
	})
}

func runIDs(l *storage.RunList) string {
	s := ""
	for i, r := range l.Data {
		if i > 0 {
			s += ","
		}
		s += r.RunID
	}
	return s
}
