package client

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamSource_Subscribe(t *testing.T) {
	src := NewParamSource(Params{"id": "1"})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := src.Subscribe(ctx)
	src.Navigate(Params{"id": "2"})
	src.Navigate(Params{"id": "3"})

	for _, want := range []string{"1", "2", "3"} {
		select {
		case p := <-ch:
			assert.Equal(t, want, p["id"])
		case <-time.After(time.Second):
			t.Fatalf("no snapshot %s", want)
		}
	}

	// a later subscriber starts from the current snapshot
	p := <-src.Subscribe(ctx)
	assert.Equal(t, "3", p["id"])

	cancel()
	require.Eventually(t, func() bool {
		_, open := <-ch
		return !open
	}, time.Second, time.Millisecond)
}

func TestParamSource_Subscribe_noInitialSnapshot(t *testing.T) {
	src := NewParamSource(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := src.Subscribe(ctx)
	select {
	case p := <-ch:
		t.Fatalf("unexpected snapshot %v", p)
	case <-time.After(20 * time.Millisecond):
	}
	src.Navigate(Params{"id": "7"})
	assert.Equal(t, "7", (<-ch)["id"])
}

func TestListen(t *testing.T) {
	var (
		mu  sync.Mutex
		ids []string
	)
	load := func(_ context.Context, id string) error {
		mu.Lock()
		defer mu.Unlock()
		ids = append(ids, id)
		if id == "bad" {
			return errors.New("boom")
		}
		return nil
	}
	loaded := func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), ids...)
	}

	src := NewParamSource(Params{"id": "1"})
	sub := Listen(context.Background(), src, "", load)
	require.Eventually(t, func() bool { return len(loaded()) == 1 }, time.Second, time.Millisecond)

	src.Navigate(Params{"other": "x"})
	src.Navigate(Params{"id": "bad"})
	require.Eventually(t, func() bool { return len(loaded()) == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return sub.Err() != nil }, time.Second, time.Millisecond)
	assert.EqualError(t, sub.Err(), "boom")

	sub.Close()
	src.Navigate(Params{"id": "3"})
	time.Sleep(20 * time.Millisecond)
	assert.ElementsMatch(t, []string{"1", "bad"}, loaded())
}

func TestListen_Close_cancelsInFlightLoads(t *testing.T) {
	started := make(chan struct{})
	returned := make(chan error, 1)
	load := func(ctx context.Context, _ string) error {
		close(started)
		<-ctx.Done()
		returned <- ctx.Err()
		return ctx.Err()
	}

	sub := Listen(context.Background(), NewParamSource(Params{"id": "1"}), DefaultParamKey, load)
	<-started
	sub.Close()

	select {
	case err := <-returned:
		assert.Equal(t, context.Canceled, err)
	default:
		t.Fatal("Close returned before the load did")
	}
}

func TestCourseView_Listen(t *testing.T) {
	g := &gatedGetter{
		payloads: map[string]string{
			"1": `{"name":"One","modules":[{"question":[{"id":1}]}],"solved":[1]}`,
			"2": `{"name":"Two","modules":[{"question":[{"id":2}]}],"solved":[]}`,
		},
		gates: map[string]chan struct{}{"1": make(chan struct{}), "2": make(chan struct{})},
	}
	close(g.gates["1"])
	close(g.gates["2"])

	view := NewCourseView(g, nil)
	src := NewParamSource(Params{"id": "1"})
	sub := view.Listen(context.Background(), src)
	defer sub.Close()

	require.Eventually(t, func() bool {
		st := view.State()
		return st.Course != nil && st.Course.Name == "One" && !st.Loading
	}, time.Second, time.Millisecond)
	assert.Equal(t, Completed, view.State().Completion)

	src.Navigate(Params{"id": "2"})
	require.Eventually(t, func() bool {
		st := view.State()
		return st.Course != nil && st.Course.Name == "Two" && !st.Loading
	}, time.Second, time.Millisecond)
	assert.Equal(t, Incomplete, view.State().Completion)
	assert.NoError(t, sub.Err())
}

func TestParamSource_zeroValue(t *testing.T) {
	var src ParamSource
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := src.Subscribe(ctx)
	src.Navigate(Params{"id": "5"})
	select {
	case p := <-ch:
		assert.Equal(t, "5", p["id"])
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
	}
}

func TestListen_Drain(t *testing.T) {
	var (
		mu     sync.Mutex
		loaded []string
	)
	load := func(ctx context.Context, id string) error {
		select {
		case <-time.After(20 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
		mu.Lock()
		defer mu.Unlock()
		loaded = append(loaded, id)
		if id == "missing" {
			return errors.New("course not found")
		}
		return nil
	}

	src := NewParamSource(Params{"id": "1"})
	sub := Listen(context.Background(), src, DefaultParamKey, load)
	src.Navigate(Params{"id": "2"})
	src.Navigate(Params{"id": "missing"})
	sub.Drain()

	mu.Lock()
	assert.ElementsMatch(t, []string{"1", "2", "missing"}, loaded)
	mu.Unlock()
	assert.EqualError(t, sub.Err(), "course not found")

	// later navigations are not picked up
	src.Navigate(Params{"id": "3"})
	time.Sleep(40 * time.Millisecond)
	mu.Lock()
	assert.Len(t, loaded, 3)
	mu.Unlock()

	sub.Close()
}
