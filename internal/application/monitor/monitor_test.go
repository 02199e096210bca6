package monitor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/penwyp/podscope/internal/config"
	"github.com/penwyp/podscope/internal/data/aggregator"
	"github.com/penwyp/podscope/internal/data/normalizer"
	"github.com/penwyp/podscope/internal/data/parser"
	"github.com/penwyp/podscope/internal/feed"
	"github.com/penwyp/podscope/internal/feed/localfs"
	"github.com/penwyp/podscope/internal/util"
)

var fixedNow = time.Date(2024, 3, 10, 15, 4, 5, 0, time.UTC)

func registerRecord(id, value, register int, accessed int64) string {
	return fmt.Sprintf("<https://pod.example/data#r%d> ns1:value %d ; ns1:register %d ; ns1:function \"F1\" ; ns1:accessed %d .\n",
		id, value, register, accessed)
}

func testTimeProvider(t *testing.T) *util.TimeProvider {
	t.Helper()
	tp, err := util.NewTimeProvider("UTC")
	require.NoError(t, err)
	tp.SetNowFunc(func() time.Time { return fixedNow })
	return tp
}

type controllerFixture struct {
	pod   *localfs.Store
	store *aggregator.Store
	state *StateManager
	ctrl  *RefreshController
}

func newControllerFixture(t *testing.T, resources []config.Resource) *controllerFixture {
	t.Helper()
	tp := testTimeProvider(t)
	pod, err := localfs.New(t.TempDir())
	require.NoError(t, err)

	p := parser.NewParser(parser.Options{TimeProvider: tp})
	rp := NewResourceParser(p, normalizer.ForPod(tp), resources)
	store := aggregator.NewStore(aggregator.StoreOptions{TimeProvider: tp})
	state := NewStateManager(resources, fixedNow)
	ctrl := NewRefreshController(feed.NewAdapter(pod, pod, rp.Parse), store, state, resources, tp)
	t.Cleanup(ctrl.Close)

	return &controllerFixture{pod: pod, store: store, state: state, ctrl: ctrl}
}

func statusOf(t *testing.T, state *StateManager, url string) ResourceStatus {
	t.Helper()
	for _, rs := range state.Snapshot().Resources {
		if rs.URL == url {
			return rs
		}
	}
	t.Fatalf("no status for %s", url)
	return ResourceStatus{}
}
