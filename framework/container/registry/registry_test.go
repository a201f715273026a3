package registry_test

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"testing"

	"github.com/km-arc/go-container/framework/container/registry"
)

// ── fixtures ─────────────────────────────────────────────────────────────────

type config struct{ url string }
type logger struct{ name string }
type metrics struct{}

// ── Keys ─────────────────────────────────────────────────────────────────────

func TestKey_StableAndDistinct(t *testing.T) {
	a := registry.KeyFor[*config]()
	b := registry.KeyFor[*config]()
	c := registry.KeyFor[*logger]()

	if a != b {
		t.Errorf("same type produced different keys: %v vs %v", a.ID(), b.ID())
	}
	if a == c {
		t.Error("distinct types produced the same key")
	}
	if a.Type() != reflect.TypeFor[*config]() {
		t.Errorf("Type(): got %v", a.Type())
	}
	if registry.KeyOf(reflect.TypeFor[*config]()) != a {
		t.Error("KeyOf and KeyFor disagree")
	}
}

func TestKey_ConcurrentInterning(t *testing.T) {
	type interned struct{}

	var wg sync.WaitGroup
	keys := make([]registry.Key, 64)
	for i := range keys {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			keys[i] = registry.KeyFor[interned]()
		}(i)
	}
	wg.Wait()

	for i := range keys {
		if keys[i] != keys[0] {
			t.Fatalf("key %d differs: %d vs %d", i, keys[i].ID(), keys[0].ID())
		}
	}
}

// ── Local operations ─────────────────────────────────────────────────────────

func TestRegistry_InsertAndResolve(t *testing.T) {
	r := registry.New()
	cfg := &config{url: "a"}
	r.Insert(registry.NewSingleton(cfg))

	key := registry.KeyFor[*config]()
	if !r.Contains(key) {
		t.Fatal("Contains: want true after Insert")
	}
	v, ok, err := r.Resolve(key)
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if v.(*config) != cfg {
		t.Error("Resolve returned a different instance")
	}
	if r.Len() != 1 || r.IsEmpty() {
		t.Errorf("Len: got %d", r.Len())
	}
}

func TestRegistry_InsertOverwrites(t *testing.T) {
	r := registry.New()
	r.Insert(registry.NewSingleton(&config{url: "a"}))
	r.Insert(registry.NewSingleton(&config{url: "b"}))

	v, _, _ := r.Resolve(registry.KeyFor[*config]())
	if got := v.(*config).url; got != "b" {
		t.Errorf("url: got %q want b", got)
	}
	if r.Len() != 1 {
		t.Errorf("Len after overwrite: got %d want 1", r.Len())
	}
}

func TestRegistry_InsertKeyMismatchPanics(t *testing.T) {
	r := registry.New()
	defer func() {
		if recover() == nil {
			t.Error("expected panic for mismatched key")
		}
	}()
	r.InsertKey(registry.KeyFor[*logger](), registry.NewSingleton(&config{}))
}

func TestRegistry_MissingKey(t *testing.T) {
	r := registry.New()
	v, ok, err := r.Resolve(registry.KeyFor[*config]())
	if v != nil || ok || err != nil {
		t.Errorf("Resolve on empty registry: v=%v ok=%v err=%v", v, ok, err)
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := registry.New()
	key := registry.KeyFor[*config]()
	r.Insert(registry.NewSingleton(&config{}))

	if !r.Remove(key) {
		t.Fatal("Remove: want true for existing key")
	}
	if r.Contains(key) {
		t.Error("key still present after Remove")
	}
	if r.Remove(key) {
		t.Error("second Remove: want false")
	}
	if r.Len() != 0 {
		t.Errorf("Len: got %d want 0", r.Len())
	}
}

func TestRegistry_ClearKeepsParent(t *testing.T) {
	parent := registry.New()
	parent.Insert(registry.NewSingleton(&config{url: "root"}))

	child := parent.Child()
	child.Insert(registry.NewSingleton(&logger{}))
	child.Clear()

	if !child.IsEmpty() {
		t.Errorf("child Len after Clear: %d", child.Len())
	}
	if !child.HasParent() {
		t.Fatal("Clear dropped the parent link")
	}
	ok, err := child.ContainsInChain(registry.KeyFor[*config]())
	if err != nil || !ok {
		t.Errorf("parent entry not visible after child Clear: ok=%v err=%v", ok, err)
	}
	if parent.Len() != 1 {
		t.Errorf("parent Len: got %d want 1", parent.Len())
	}
}

func TestRegistry_KeysSnapshot(t *testing.T) {
	r := registry.New()
	r.Insert(registry.NewSingleton(&config{}))
	r.Insert(registry.NewSingleton(&logger{}))

	keys := r.Keys()
	if len(keys) != 2 {
		t.Fatalf("Keys: got %d want 2", len(keys))
	}
	seen := map[registry.Key]bool{}
	for _, k := range keys {
		seen[k] = true
	}
	if !seen[registry.KeyFor[*config]()] || !seen[registry.KeyFor[*logger]()] {
		t.Errorf("Keys missing entries: %v", keys)
	}
}

func TestRegistry_ShardSizing(t *testing.T) {
	tests := []struct {
		name string
		opts []registry.Option
		want int
	}{
		{"default", nil, registry.DefaultShards},
		{"capacity 10", []registry.Option{registry.WithCapacity(10)}, 8},
		{"capacity 40", []registry.Option{registry.WithCapacity(40)}, 16},
		{"capacity 500", []registry.Option{registry.WithCapacity(500)}, 32},
		{"shards 5 rounds up", []registry.Option{registry.WithShards(5)}, 8},
		{"shards 0", []registry.Option{registry.WithShards(0)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := registry.New(tt.opts...).Shards(); got != tt.want {
				t.Errorf("Shards: got %d want %d", got, tt.want)
			}
		})
	}
}

func TestRegistry_GenerationChangesOnMutation(t *testing.T) {
	r := registry.New()
	key := registry.KeyFor[*config]()

	g0 := r.Generation()
	r.Insert(registry.NewSingleton(&config{}))
	g1 := r.Generation()
	r.Remove(key)
	g2 := r.Generation()
	r.Clear()
	g3 := r.Generation()

	if !(g0 < g1 && g1 < g2 && g2 < g3) {
		t.Errorf("generation not increasing: %d %d %d %d", g0, g1, g2, g3)
	}
}

func TestRegistry_EpochOnlyForRegistriesWithDescendants(t *testing.T) {
	leaf := registry.New()
	e0 := registry.Epoch()
	leaf.Insert(registry.NewSingleton(&config{}))
	if registry.Epoch() != e0 {
		t.Error("mutating a leaf registry must not bump the epoch")
	}

	parent := registry.New()
	_ = parent.Child()
	e1 := registry.Epoch()
	parent.Insert(registry.NewSingleton(&config{}))
	if registry.Epoch() == e1 {
		t.Error("mutating a registry with descendants must bump the epoch")
	}
}

// ── Parent chain ─────────────────────────────────────────────────────────────

func TestRegistry_ChainShadowing(t *testing.T) {
	root := registry.New()
	root.Insert(registry.NewSingleton(&config{url: "a"}))

	child := root.Child()
	child.Insert(registry.NewSingleton(&config{url: "b"}))

	key := registry.KeyFor[*config]()
	v, _, _ := child.ResolveFromChain(key)
	if got := v.(*config).url; got != "b" {
		t.Errorf("child: got %q want b", got)
	}
	v, _, _ = root.ResolveFromChain(key)
	if got := v.(*config).url; got != "a" {
		t.Errorf("root: got %q want a", got)
	}

	f, owner, err := child.LookupInChain(key)
	if err != nil || f == nil || owner != child {
		t.Errorf("LookupInChain owner: got %p want child %p", owner, child)
	}
}

func TestRegistry_DeepChain(t *testing.T) {
	root := registry.New()
	root.Insert(registry.NewSingleton(&config{url: "deep"}))

	leaf := root.Child().Child().Child().Child()
	v, ok, err := leaf.ResolveFromChain(registry.KeyFor[*config]())
	if err != nil || !ok {
		t.Fatalf("ResolveFromChain: ok=%v err=%v", ok, err)
	}
	if v.(*config).url != "deep" {
		t.Errorf("url: got %q", v.(*config).url)
	}

	_, owner, _ := leaf.LookupInChain(registry.KeyFor[*config]())
	if owner != root {
		t.Error("LookupInChain should report the root as owner")
	}
}

func TestRegistry_ChildInvisibleToParent(t *testing.T) {
	root := registry.New()
	child := root.Child()
	child.Insert(registry.NewSingleton(&logger{}))

	ok, err := root.ContainsInChain(registry.KeyFor[*logger]())
	if err != nil || ok {
		t.Errorf("parent sees child entry: ok=%v err=%v", ok, err)
	}
}

func TestRegistry_ChainMiss(t *testing.T) {
	leaf := registry.New().Child().Child()
	v, ok, err := leaf.ResolveFromChain(registry.KeyFor[*metrics]())
	if v != nil || ok || err != nil {
		t.Errorf("miss: v=%v ok=%v err=%v", v, ok, err)
	}
}

func TestRegistry_WeakParentDropped(t *testing.T) {
	child := func() *registry.Registry {
		root := registry.New()
		root.Insert(registry.NewSingleton(&config{url: "gone"}))
		return root.WeakChild()
	}()

	if !child.IsWeak() {
		t.Fatal("IsWeak: want true")
	}

	if !child.HasWeakLink() || !child.ChainAlive() {
		t.Fatal("weak link should be reported alive before collection")
	}

	var err error
	for i := 0; i < 20 && err == nil; i++ {
		runtime.GC()
		_, err = child.Parent()
	}
	if !errors.Is(err, registry.ErrParentDropped) {
		t.Fatalf("Parent after collection: got %v, want ErrParentDropped", err)
	}
	if child.ChainAlive() {
		t.Error("ChainAlive: want false once the parent is collected")
	}
	if grand := child.Child(); !grand.HasWeakLink() || grand.ChainAlive() {
		t.Error("strong child of a dropped weak link should inherit the dead chain")
	}

	_, _, err = child.ResolveFromChain(registry.KeyFor[*config]())
	if !registry.IsParentDropped(err) {
		t.Errorf("ResolveFromChain: got %v want ErrParentDropped", err)
	}
	if _, err := child.ContainsInChain(registry.KeyFor[*config]()); !errors.Is(err, registry.ErrParentDropped) {
		t.Errorf("ContainsInChain: got %v want ErrParentDropped", err)
	}
}

func TestRegistry_WeakParentAlive(t *testing.T) {
	root := registry.New()
	root.Insert(registry.NewSingleton(&config{url: "alive"}))
	child := root.WeakChild()

	runtime.GC()
	v, ok, err := child.ResolveFromChain(registry.KeyFor[*config]())
	if err != nil || !ok || v.(*config).url != "alive" {
		t.Errorf("weak parent alive: v=%v ok=%v err=%v", v, ok, err)
	}
	if !child.ChainAlive() {
		t.Error("ChainAlive: want true while the parent is reachable")
	}
	if strong := root.Child(); strong.HasWeakLink() {
		t.Error("strong child of a root should not report a weak link")
	}
	runtime.KeepAlive(root)
}

// ── Concurrency ──────────────────────────────────────────────────────────────

type svc0 struct{}
type svc1 struct{}
type svc2 struct{}
type svc3 struct{}
type svc4 struct{}
type svc5 struct{}
type svc6 struct{}
type svc7 struct{}

func concurrencyFactories() []*registry.Factory {
	return []*registry.Factory{
		registry.NewSingleton(&svc0{}), registry.NewSingleton(&svc1{}),
		registry.NewSingleton(&svc2{}), registry.NewSingleton(&svc3{}),
		registry.NewSingleton(&svc4{}), registry.NewSingleton(&svc5{}),
		registry.NewSingleton(&svc6{}), registry.NewSingleton(&svc7{}),
	}
}

// TestRegistry_ConcurrentInsertAndResolve hammers every operation from many
// goroutines; run with -race.
func TestRegistry_ConcurrentInsertAndResolve(t *testing.T) {
	r := registry.New()
	workers := runtime.GOMAXPROCS(0) * 4

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			fs := concurrencyFactories()
			for i := 0; i < 500; i++ {
				f := fs[i%len(fs)]
				r.Insert(f)
				v, ok, err := r.Resolve(f.Key())
				if err != nil || !ok || v == nil {
					t.Errorf("resolve %v: ok=%v err=%v", f.Key(), ok, err)
					return
				}
				_ = r.Len()
				_ = r.Keys()
			}
		}()
	}
	wg.Wait()

	if r.Len() != 8 {
		t.Errorf("Len: got %d want 8", r.Len())
	}
}

func TestRegistry_SameKeyLastWriteWins(t *testing.T) {
	r := registry.New()
	key := registry.KeyFor[*config]()
	workers := 16

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			r.Insert(registry.NewSingleton(&config{url: fmt.Sprint(w)}))
		}(w)
	}
	wg.Wait()

	v, ok, err := r.Resolve(key)
	if err != nil || !ok {
		t.Fatalf("Resolve: ok=%v err=%v", ok, err)
	}
	if v.(*config).url == "" {
		t.Error("winner is not a well-formed entry")
	}
	if r.Len() != 1 {
		t.Errorf("Len: got %d want 1", r.Len())
	}
}
