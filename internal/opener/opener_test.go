package opener

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/NahomAnteneh/metarepo/internal/objectstore"
)

type stubStore struct{ objectstore.Store }

func TestOpenMemoizesPerName(t *testing.T) {
	var calls int32
	o := New(func(_ context.Context, name, root string) (objectstore.Store, error) {
		atomic.AddInt32(&calls, 1)
		return stubStore{}, nil
	})

	h1, err := o.Open(context.Background(), "libA", "/repo/libA")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	h2, err := o.Open(context.Background(), "libA", "/repo/libA")
	if err != nil {
		t.Fatalf("Open second call: %v", err)
	}
	if h1 != h2 {
		t.Errorf("expected the same handle instance on repeated Open")
	}
	if calls != 1 {
		t.Errorf("expected factory to be called once, got %d", calls)
	}
}

func TestOpenConcurrentSameNameSingleConstruction(t *testing.T) {
	var calls int32
	o := New(func(_ context.Context, name, root string) (objectstore.Store, error) {
		atomic.AddInt32(&calls, 1)
		return stubStore{}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.Open(context.Background(), "libA", "/repo/libA")
		}()
	}
	wg.Wait()
	if calls != 1 {
		t.Errorf("expected exactly one construction under concurrent Open, got %d", calls)
	}
}

func TestOpenDifferentNamesIndependent(t *testing.T) {
	var calls int32
	o := New(func(_ context.Context, name, root string) (objectstore.Store, error) {
		atomic.AddInt32(&calls, 1)
		return stubStore{}, nil
	})
	if _, err := o.Open(context.Background(), "libA", "/repo/libA"); err != nil {
		t.Fatalf("Open libA: %v", err)
	}
	if _, err := o.Open(context.Background(), "libB", "/repo/libB"); err != nil {
		t.Fatalf("Open libB: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 distinct constructions, got %d", calls)
	}
}

func TestOpenFactoryErrorIsMemoized(t *testing.T) {
	wantErr := errors.New("boom")
	var calls int32
	o := New(func(_ context.Context, name, root string) (objectstore.Store, error) {
		atomic.AddInt32(&calls, 1)
		return nil, wantErr
	})
	_, err1 := o.Open(context.Background(), "libA", "/repo/libA")
	_, err2 := o.Open(context.Background(), "libA", "/repo/libA")
	if err1 == nil || err2 == nil {
		t.Fatalf("expected both calls to fail, got err1=%v err2=%v", err1, err2)
	}
	if !errors.Is(err1, wantErr) || !errors.Is(err2, wantErr) {
		t.Errorf("expected wrapped errors to unwrap to the factory error")
	}
	if calls != 1 {
		t.Errorf("expected a failed construction to still only be attempted once, got %d", calls)
	}
}

func TestIsOpenAndNames(t *testing.T) {
	o := New(func(_ context.Context, name, root string) (objectstore.Store, error) {
		return stubStore{}, nil
	})
	if o.IsOpen("libA") {
		t.Errorf("expected libA to not be open yet")
	}
	if _, err := o.Open(context.Background(), "libA", "/repo/libA"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !o.IsOpen("libA") {
		t.Errorf("expected libA to be open after Open")
	}
	names := o.Names()
	if len(names) != 1 || names[0] != "libA" {
		t.Errorf("unexpected Names() result: %v", names)
	}
}

func TestReleaseClearsState(t *testing.T) {
	var calls int32
	o := New(func(_ context.Context, name, root string) (objectstore.Store, error) {
		atomic.AddInt32(&calls, 1)
		return stubStore{}, nil
	})
	if _, err := o.Open(context.Background(), "libA", "/repo/libA"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	o.Release()
	if o.IsOpen("libA") {
		t.Errorf("expected Release to clear open handles")
	}
	if _, err := o.Open(context.Background(), "libA", "/repo/libA"); err != nil {
		t.Fatalf("Open after Release: %v", err)
	}
	if calls != 2 {
		t.Errorf("expected a fresh construction after Release, got %d total calls", calls)
	}
}

func TestNewStampsOperationID(t *testing.T) {
	o1 := New(func(_ context.Context, name, root string) (objectstore.Store, error) { return stubStore{}, nil })
	o2 := New(func(_ context.Context, name, root string) (objectstore.Store, error) { return stubStore{}, nil })
	if o1.OperationID == "" {
		t.Errorf("expected a non-empty OperationID")
	}
	if o1.OperationID == o2.OperationID {
		t.Errorf("expected distinct OperationIDs across Opener instances")
	}
}
