// Package viewmodel keeps one viewer's notification feed consistent with the
// backend: initial load, live reconciliation, admin intake fan-in, and the
// viewer's own actions.
package viewmodel

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/travel-notifications/internal/model"
	"github.com/jwalitptl/travel-notifications/internal/presenter"
	"github.com/jwalitptl/travel-notifications/internal/repository"
	"github.com/jwalitptl/travel-notifications/pkg/changefeed"
	"github.com/jwalitptl/travel-notifications/pkg/logger"
	"github.com/jwalitptl/travel-notifications/pkg/metrics"
	"github.com/jwalitptl/travel-notifications/pkg/validator"
)

const DefaultHistoryLimit = 300

var (
	ErrNotFound             = errors.New("notification not found")
	ErrDisabled             = errors.New("notifications are disabled for this session")
	ErrConfirmationRequired = errors.New("clearing notifications requires confirmation")
	ErrNoIdentity           = errors.New("no signed-in viewer")
)

// IdentityProvider resolves the current viewer.
type IdentityProvider interface {
	Viewer(ctx context.Context) (*model.Viewer, error)
}

// StaticIdentity always resolves to the same viewer; a nil viewer means
// nobody is signed in.
type StaticIdentity struct {
	Current *model.Viewer
}

func (s StaticIdentity) Viewer(ctx context.Context) (*model.Viewer, error) {
	if s.Current == nil || s.Current.ID == uuid.Nil {
		return nil, ErrNoIdentity
	}
	v := *s.Current
	return &v, nil
}

// Renderer receives the full feed after every change.
type Renderer interface {
	Render(Snapshot)
}

// Toaster surfaces a transient message for a record that arrived while the
// panel was closed.
type Toaster interface {
	Toast(message string)
}

// Snapshot is everything the widget draws.
type Snapshot struct {
	Enabled    bool             `json:"enabled"`
	Viewer     *model.Viewer    `json:"viewer,omitempty"`
	Privileged bool             `json:"privileged"`
	PanelOpen  bool             `json:"panel_open"`
	Unread     int              `json:"unread"`
	Items      []presenter.View `json:"items"`
}

type Deps struct {
	Identity      IdentityProvider
	Users         repository.UserRepository
	Notifications repository.NotificationRepository
	Feed          changefeed.Source
	Renderer      Renderer
	Toaster       Toaster
	Logger        *logger.Logger
	Metrics       *metrics.Metrics
	Clock         func() time.Time
}

type Options struct {
	HistoryLimit int
	AdminRoles   model.RoleSet
	TimeFormat   string
}

// ViewModel is one viewer's notification session. Store mutation and
// rendering happen under mu one event at a time; remote calls never hold it.
type ViewModel struct {
	deps      Deps
	opts      Options
	log       *logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	presenter *presenter.Presenter
	validate  validator.Validator

	// ctx bounds every subscription; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	// initMu serializes Start and Close.
	initMu sync.Mutex
	wg     sync.WaitGroup

	mu         sync.Mutex
	store      *Store
	viewer     *model.Viewer
	privileged bool
	enabled    bool
	panelOpen  bool
	closed     bool
	feedSub    changefeed.Subscription
	intakeSubs []changefeed.Subscription
}

func New(deps Deps, opts Options) *ViewModel {
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New("notifications")
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.AdminRoles == nil {
		opts.AdminRoles = model.DefaultAdminRoles()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ViewModel{
		deps:      deps,
		opts:      opts,
		log:       deps.Logger.WithFields(map[string]interface{}{"component": "notifications"}),
		metrics:   deps.Metrics,
		now:       deps.Clock,
		presenter: presenter.New(opts.TimeFormat),
		validate:  validator.New(),
		ctx:       ctx,
		cancel:    cancel,
		store:     NewStore(),
	}
}

// Start resolves the viewer and (re)initializes the feed. Any previous
// subscriptions are torn down first. An unresolvable viewer disables
// notifications and is not an error.
func (vm *ViewModel) Start(ctx context.Context) error {
	vm.initMu.Lock()
	defer vm.initMu.Unlock()

	vm.mu.Lock()
	closed := vm.closed
	vm.mu.Unlock()
	if closed {
		return errors.New("view model is closed")
	}

	vm.teardown()

	viewer, err := vm.deps.Identity.Viewer(ctx)
	if err != nil || viewer == nil || viewer.ID == uuid.Nil {
		vm.log.Warn("notifications disabled: no viewer", "error", errString(err))
		vm.mu.Lock()
		vm.viewer = nil
		vm.enabled = false
		vm.privileged = false
		vm.store.Clear()
		vm.renderLocked()
		vm.mu.Unlock()
		return nil
	}

	viewer.Role = vm.resolveRole(ctx, viewer)
	privileged := vm.opts.AdminRoles.Contains(viewer.Role)

	vm.mu.Lock()
	vm.viewer = viewer
	vm.enabled = true
	vm.privileged = privileged
	vm.store.Clear()
	vm.mu.Unlock()

	vm.load(ctx, viewer)
	if err := vm.subscribeViewer(viewer); err != nil {
		vm.log.Error(err, "failed to subscribe to viewer feed", "viewer_id", viewer.ID.String())
	}
	if privileged {
		vm.subscribeIntake(viewer)
	}
	return nil
}

// Close cancels every subscription and waits for their consumers.
func (vm *ViewModel) Close() {
	vm.initMu.Lock()
	defer vm.initMu.Unlock()

	vm.mu.Lock()
	if vm.closed {
		vm.mu.Unlock()
		return
	}
	vm.closed = true
	vm.mu.Unlock()

	vm.teardown()
	vm.cancel()
}

// teardown must be called with initMu held.
func (vm *ViewModel) teardown() {
	vm.mu.Lock()
	subs := vm.intakeSubs
	if vm.feedSub != nil {
		subs = append(subs, vm.feedSub)
	}
	vm.feedSub = nil
	vm.intakeSubs = nil
	vm.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	vm.wg.Wait()
}

func (vm *ViewModel) resolveRole(ctx context.Context, viewer *model.Viewer) string {
	if vm.deps.Users != nil {
		role, err := vm.deps.Users.GetRole(ctx, viewer.ID)
		if err == nil && role != "" {
			return role
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			vm.log.Error(err, "failed to look up role", "viewer_id", viewer.ID.String())
		}
	}
	if viewer.Role != "" {
		return viewer.Role
	}
	return model.RoleUser
}

// consume drains sub until it is cancelled.
func (vm *ViewModel) consume(sub changefeed.Subscription, handle func(changefeed.Subscription, changefeed.Event)) {
	defer vm.wg.Done()
	for {
		select {
		case <-sub.Done():
			return
		default:
		}

		select {
		case <-sub.Done():
			return
		case e, ok := <-sub.Events():
			if !ok {
				return
			}
			handle(sub, e)
		}
	}
}

// owns reports whether sub is still one of the live subscriptions. Callers
// hold mu.
func (vm *ViewModel) owns(sub changefeed.Subscription) bool {
	if sub == vm.feedSub {
		return true
	}
	for _, s := range vm.intakeSubs {
		if s == sub {
			return true
		}
	}
	return false
}

// current returns the active viewer or ErrDisabled.
func (vm *ViewModel) current() (model.Viewer, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if !vm.enabled || vm.viewer == nil {
		return model.Viewer{}, ErrDisabled
	}
	return *vm.viewer, nil
}

// sameViewer reports whether id is still the active viewer. Callers hold mu.
func (vm *ViewModel) sameViewer(id uuid.UUID) bool {
	return vm.enabled && vm.viewer != nil && vm.viewer.ID == id
}

func (vm *ViewModel) Enabled() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.enabled
}

func (vm *ViewModel) Privileged() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.privileged
}

// Unread is derived from the store on every call.
func (vm *ViewModel) Unread() int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.store.Unread()
}

// Records returns the held records newest first.
func (vm *ViewModel) Records() []*model.Notification {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.store.Sorted()
}

func (vm *ViewModel) Snapshot() Snapshot {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.snapshotLocked()
}

func (vm *ViewModel) snapshotLocked() Snapshot {
	snap := Snapshot{
		Enabled:    vm.enabled,
		Privileged: vm.privileged,
		PanelOpen:  vm.panelOpen,
		Unread:     vm.store.Unread(),
		Items:      vm.presenter.PresentAll(vm.store.Sorted(), vm.privileged, vm.now()),
	}
	if vm.viewer != nil {
		v := *vm.viewer
		snap.Viewer = &v
	}
	return snap
}

func (vm *ViewModel) renderLocked() {
	if vm.deps.Renderer != nil {
		vm.deps.Renderer.Render(vm.snapshotLocked())
	}
}

func (vm *ViewModel) toastLocked(n *model.Notification) {
	if vm.panelOpen || vm.deps.Toaster == nil {
		return
	}
	msg := n.Title
	if msg == "" {
		msg = "New notification"
	}
	vm.deps.Toaster.Toast(msg)
}

// OpenPanel, ClosePanel and TogglePanel drive the drawer. Records arriving
// while it is open do not toast.
func (vm *ViewModel) OpenPanel() {
	vm.setPanel(func(bool) bool { return true })
}

func (vm *ViewModel) ClosePanel() {
	vm.setPanel(func(bool) bool { return false })
}

func (vm *ViewModel) TogglePanel() {
	vm.setPanel(func(open bool) bool { return !open })
}

func (vm *ViewModel) PanelOpen() bool {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.panelOpen
}

func (vm *ViewModel) setPanel(next func(bool) bool) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.panelOpen = next(vm.panelOpen)
	vm.renderLocked()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
