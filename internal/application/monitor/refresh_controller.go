package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/penwyp/podscope/internal/config"
	"github.com/penwyp/podscope/internal/core/constants"
	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/data/aggregator"
	"github.com/penwyp/podscope/internal/feed"
	"github.com/penwyp/podscope/internal/util"
)

// RefreshController loads the configured resources into the store and keeps a
// subscription open on each of them.
type RefreshController struct {
	adapter      *feed.Adapter
	store        *aggregator.Store
	state        *StateManager
	resources    []config.Resource
	timeProvider *util.TimeProvider

	mu           sync.Mutex
	subs         map[string]*feed.Subscription
	wg           sync.WaitGroup
	refreshMutex sync.Mutex // Prevent concurrent refreshes
}

// NewRefreshController creates a new RefreshController instance
func NewRefreshController(adapter *feed.Adapter, store *aggregator.Store, state *StateManager, resources []config.Resource, tp *util.TimeProvider) *RefreshController {
	if tp == nil {
		tp = util.GetTimeProvider()
	}
	return &RefreshController{
		adapter:      adapter,
		store:        store,
		state:        state,
		resources:    resources,
		timeProvider: tp,
		subs:         make(map[string]*feed.Subscription),
	}
}

// RefreshAll pulls every resource once and merges the results. A failing
// resource does not stop the others; all failures are returned joined.
func (rc *RefreshController) RefreshAll(ctx context.Context) error {
	rc.refreshMutex.Lock()
	defer rc.refreshMutex.Unlock()

	var errs []error
	for _, r := range rc.resources {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := rc.load(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	rc.state.SetRefreshed(rc.timeProvider.Now())
	return errors.Join(errs...)
}

func (rc *RefreshController) load(ctx context.Context, r config.Resource) error {
	loadCtx, cancel := context.WithTimeout(ctx, constants.FetchTimeout)
	defer cancel()

	points, err := rc.adapter.Load(loadCtx, r.URL)
	if err != nil {
		rc.state.RecordPull(r.URL, 0, err, rc.timeProvider.Now())
		util.LogWarn("Resource load failed", util.F("resource", r.Name), util.F("error", err))
		return fmt.Errorf("load %s: %w", r.Name, err)
	}
	rc.apply(r.URL, points)
	return nil
}

// apply is the change callback shared by loads and subscriptions.
func (rc *RefreshController) apply(resource string, points []model.Point) {
	result := rc.store.Merge(points)
	rc.state.RecordPull(resource, len(points), nil, rc.timeProvider.Now())
	util.LogDebug("Merged resource points",
		util.F("resource", resource),
		util.F("parsed", len(points)),
		util.F("added", len(result.Added)),
		util.F("evicted", result.Evicted))
}

// EnsureSubscriptions subscribes every resource that has no live subscription,
// including ones whose channel has failed since the last call.
func (rc *RefreshController) EnsureSubscriptions(ctx context.Context) error {
	var errs []error
	for _, r := range rc.resources {
		if rc.subscribed(r.URL) {
			continue
		}
		sub, err := rc.adapter.Subscribe(ctx, r.URL, rc.apply)
		if err != nil {
			rc.state.SetSubscription(r.URL, "error")
			util.LogWarn("Subscribe failed", util.F("resource", r.Name), util.F("error", err))
			errs = append(errs, err)
			continue
		}

		rc.mu.Lock()
		rc.subs[r.URL] = sub
		rc.mu.Unlock()
		rc.state.SetSubscription(r.URL, sub.State().String())

		rc.wg.Add(1)
		go rc.watch(sub)
	}
	return errors.Join(errs...)
}

func (rc *RefreshController) subscribed(url string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	sub, ok := rc.subs[url]
	if !ok {
		return false
	}
	select {
	case <-sub.Done():
		return false
	default:
		return true
	}
}

// watch records how a subscription ended.
func (rc *RefreshController) watch(sub *feed.Subscription) {
	defer rc.wg.Done()
	<-sub.Done()

	rc.mu.Lock()
	if rc.subs[sub.Resource()] == sub {
		delete(rc.subs, sub.Resource())
	}
	rc.mu.Unlock()

	rc.state.SetSubscription(sub.Resource(), sub.State().String())
	if err := sub.Err(); err != nil && !errors.Is(err, feed.ErrUnsubscribed) {
		util.LogWarn("Subscription ended", util.F("resource", sub.Resource()), util.F("error", err))
	}
}

// Close cancels every subscription and waits for their watchers.
func (rc *RefreshController) Close() {
	rc.adapter.Close()
	rc.wg.Wait()
}
