// Package central discovers the two peripherals, keeps a link to each and
// drives their command cadences. Each peer runs its own state machine;
// losing one never disturbs the other.
package central

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"
	"github.com/temoto/alive/v2"

	"github.com/chaz8081/blegate/internal/ble"
	"github.com/chaz8081/blegate/internal/protocol"
	"github.com/chaz8081/blegate/internal/tele"
)

var (
	// ErrServiceResolution is returned when a connected device lacks the
	// expected service or characteristics.
	ErrServiceResolution = errors.New("central: service resolution failed")

	// ErrStopped is returned by Run after Stop.
	ErrStopped = errors.New("central: stopped")
)

const (
	DefaultScanWindow  = 5 * time.Second
	DefaultRescanDelay = time.Second
	DefaultAuthDelay   = 500 * time.Millisecond
	DefaultP1Interval  = 3 * time.Second
	DefaultP2Interval  = 4 * time.Second
	DefaultUserID      = 1

	connectTimeout = 10 * time.Second
	maxRetryDelay  = 30 * time.Second
)

// Options configure an Orchestrator. Zero durations pick the defaults.
type Options struct {
	PIN    string
	UserID uint16

	ScanWindow  time.Duration
	RescanDelay time.Duration
	AuthDelay   time.Duration
	P1Interval  time.Duration
	P2Interval  time.Duration

	// Identities overrides the GATT layout expected per role.
	Identities map[ble.Role]ble.Identity
	// Roles restricts which peers are sought. Default: both.
	Roles []ble.Role

	Sink   tele.Sink
	Logger *slog.Logger
	// Ready, if set, is called once the adapter is enabled.
	Ready func()
}

func (o Options) withDefaults() Options {
	if o.UserID == 0 {
		o.UserID = DefaultUserID
	}
	if o.ScanWindow <= 0 {
		o.ScanWindow = DefaultScanWindow
	}
	if o.RescanDelay <= 0 {
		o.RescanDelay = DefaultRescanDelay
	}
	if o.AuthDelay <= 0 {
		o.AuthDelay = DefaultAuthDelay
	}
	if o.P1Interval <= 0 {
		o.P1Interval = DefaultP1Interval
	}
	if o.P2Interval <= 0 {
		o.P2Interval = DefaultP2Interval
	}
	if len(o.Roles) == 0 {
		o.Roles = ble.Roles
	}
	if o.Sink == nil {
		o.Sink = tele.Nop{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Orchestrator owns one peer state machine per role.
type Orchestrator struct {
	adapter    ble.Adapter
	opts       Options
	log        *slog.Logger
	credential [protocol.CredentialSize]byte
	epoch      time.Time

	peers map[ble.Role]*peer
	// missing holds the roles without a link; the scan loop seeks them.
	missing mapset.Set
	wake    chan struct{}
	alive   *alive.Alive
}

// New validates the PIN and returns an idle orchestrator.
func New(adapter ble.Adapter, opts Options) (*Orchestrator, error) {
	opts = opts.withDefaults()
	cred, err := protocol.PackPIN(opts.PIN)
	if err != nil {
		return nil, fmt.Errorf("central: %w", err)
	}
	o := &Orchestrator{
		adapter:    adapter,
		opts:       opts,
		log:        opts.Logger.With("device", "CENTRAL"),
		credential: cred,
		peers:      make(map[ble.Role]*peer, len(opts.Roles)),
		missing:    mapset.NewSet(),
		wake:       make(chan struct{}, 1),
		alive:      alive.NewAlive(),
	}
	for _, role := range opts.Roles {
		id, ok := opts.Identities[role]
		if !ok {
			id = role.Identity()
		}
		interval := opts.P1Interval
		if role == ble.RoleP2 {
			interval = opts.P2Interval
		}
		o.peers[role] = &peer{
			role:     role,
			id:       id,
			interval: interval,
			rotation: Rotation(role),
			log:      opts.Logger.With("device", role.String()),
		}
		o.missing.Add(role)
	}
	return o, nil
}

// State returns the current state of role's peer.
func (o *Orchestrator) State(role ble.Role) PeerState {
	p, ok := o.peers[role]
	if !ok {
		return StateScanning
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Authenticated reports whether the last PIN attempt on role's current
// link was accepted.
func (o *Orchestrator) Authenticated(role ble.Role) bool {
	p, ok := o.peers[role]
	if !ok {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authenticated
}

// Stop makes Run return, disconnects every peer and waits for the
// command cadences to finish.
func (o *Orchestrator) Stop() {
	o.alive.Stop()
	o.alive.Wait()
}

// Run scans for missing peers until ctx is done or Stop is called.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.alive.Add(1) {
		return ErrStopped
	}
	defer o.alive.Done()

	if err := o.adapter.Enable(); err != nil {
		return fmt.Errorf("central: enable adapter: %w", err)
	}
	o.epoch = time.Now()
	if o.opts.Ready != nil {
		o.opts.Ready()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-o.alive.StopChan():
			cancel()
		case <-ctx.Done():
		}
	}()
	defer o.disconnectAll()

	for _, p := range o.peers {
		o.publish(p)
	}
	o.log.Info("[SCAN] central started", "roles", len(o.peers))

	for ctx.Err() == nil {
		if o.missing.Cardinality() == 0 {
			select {
			case <-ctx.Done():
			case <-o.wake:
			}
			continue
		}
		o.scanOnce(ctx)
	}
	o.log.Info("[SCAN] central stopped")
	return nil
}

// scanOnce runs one scan window and connects to the first wanted peer.
func (o *Orchestrator) scanOnce(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, o.opts.ScanWindow)
	dev, err := o.adapter.Scan(sctx, o.wanted)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ble.ErrNoMatch) {
			o.log.Debug("[SCAN] no peripheral found", "waiting", o.missing.Cardinality())
		} else {
			o.log.Warn("[SCAN] scan failed", "error", err)
		}
		o.sleep(ctx, o.opts.RescanDelay)
		return
	}
	p := o.peerFor(dev)
	if p == nil {
		return
	}
	o.attach(ctx, p, dev)
}

// wanted accepts advertisements of roles that are neither linked nor
// backing off.
func (o *Orchestrator) wanted(d ble.Device) bool {
	p := o.peerFor(d)
	if p == nil || !o.missing.Contains(p.role) {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return time.Now().After(p.retryAt)
}

func (o *Orchestrator) peerFor(d ble.Device) *peer {
	for _, p := range o.peers {
		if p.id.Name == d.Name {
			return p
		}
	}
	return nil
}

// attach connects, resolves the GATT layout and starts the cadence. The
// link is owned by p from the moment Connect returns, so a drop during
// discovery sends p back to scanning.
func (o *Orchestrator) attach(ctx context.Context, p *peer, dev ble.Device) {
	p.log.Info("[SCAN] found peripheral", "name", dev.Name, "mac", dev.MAC, "rssi", dev.RSSI)
	o.setState(p, StateConnecting)

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	conn, err := o.adapter.Connect(cctx, dev)
	cancel()
	if err != nil {
		p.log.Warn("[BLE] connect failed", "mac", dev.MAC, "error", err)
		o.failed(p)
		return
	}

	stop := make(chan struct{})
	p.mu.Lock()
	p.conn = conn
	p.stop = stop
	p.authenticated = false
	p.state = StateConnected
	o.missing.Remove(p.role)
	p.mu.Unlock()
	o.publish(p)
	conn.OnDisconnect(func() { o.onDisconnect(p, conn) })

	cmd, state, err := resolve(conn, p.id)
	if err != nil {
		p.log.Error("[BLE] "+err.Error(), "mac", dev.MAC)
		o.abandon(p, conn)
		return
	}
	if err := state.Subscribe(func(b []byte) { o.onNotify(p, b) }); err != nil {
		p.log.Error("[BLE] subscribe failed", "error", err)
		o.abandon(p, conn)
		return
	}

	next := StateReady
	if p.role == ble.RoleP2 {
		next = StateAuthenticating
	}
	p.mu.Lock()
	current := p.conn == conn
	if current {
		p.state = next
		p.failures = 0
	}
	p.mu.Unlock()
	if !current {
		p.log.Warn("[BLE] link lost during discovery", "mac", dev.MAC)
		return
	}
	o.publish(p)
	p.log.Info("[BLE] connected", "mac", dev.MAC)

	if !o.alive.Add(1) {
		return
	}
	go o.cadence(ctx, p, conn, cmd, stop)
}

func resolve(conn ble.Connection, id ble.Identity) (cmd, state ble.Characteristic, err error) {
	cmd, err = conn.DiscoverCharacteristic(id.ServiceUUID, id.CommandCharUUID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: command characteristic: %w", ErrServiceResolution, err)
	}
	state, err = conn.DiscoverCharacteristic(id.ServiceUUID, id.StateCharUUID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: state characteristic: %w", ErrServiceResolution, err)
	}
	return cmd, state, nil
}

// abandon drops a link that never became usable and backs off.
func (o *Orchestrator) abandon(p *peer, conn ble.Connection) {
	o.release(p, conn)
	_ = conn.Disconnect()
	o.failed(p)
}

// failed returns p to scanning after an unsuccessful attempt.
func (o *Orchestrator) failed(p *peer) {
	p.mu.Lock()
	delay := backoffDelay(p.failures, o.opts.RescanDelay, maxRetryDelay)
	p.failures++
	p.retryAt = time.Now().Add(delay)
	p.mu.Unlock()
	p.log.Info("[BLE] retry backoff", "delay", delay)
	o.setState(p, StateScanning)
}

// release detaches conn from p if it is still the current link. It
// reports whether it did.
func (o *Orchestrator) release(p *peer, conn ble.Connection) bool {
	p.mu.Lock()
	if p.conn != conn {
		p.mu.Unlock()
		return false
	}
	p.conn = nil
	p.authenticated = false
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
	p.state = StateScanning
	o.missing.Add(p.role)
	p.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
	o.publish(p)
	return true
}

func (o *Orchestrator) onDisconnect(p *peer, conn ble.Connection) {
	if o.release(p, conn) {
		p.log.Warn("[BLE] disconnected, rescanning")
	}
}

func (o *Orchestrator) disconnectAll() {
	for _, p := range o.peers {
		p.mu.Lock()
		conn := p.conn
		p.mu.Unlock()
		if conn == nil {
			continue
		}
		o.release(p, conn)
		if err := conn.Disconnect(); err != nil {
			p.log.Warn("[BLE] disconnect", "error", err)
		}
	}
}

// cadence authenticates P2 once, then writes the next rotation command
// every interval until the link goes away.
func (o *Orchestrator) cadence(ctx context.Context, p *peer, conn ble.Connection, cmd ble.Characteristic, stop <-chan struct{}) {
	defer o.alive.Done()
	if p.role == ble.RoleP2 {
		if !o.wait(ctx, stop, o.opts.AuthDelay) {
			return
		}
		frame, err := protocol.EncodeVariable(protocol.CmdAuthPIN, protocol.AuthPayload(o.opts.UserID, o.credential))
		if err != nil {
			p.log.Error("[AUTH] encode", "error", err)
			return
		}
		p.log.Info("[AUTH] sending PIN", "user", o.opts.UserID)
		if err := cmd.Write(frame); err != nil {
			p.log.Warn("[AUTH] write failed", "error", err)
			if o.lost(p, conn, err) {
				return
			}
		}
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := o.issue(p, cmd); o.lost(p, conn, err) {
				return
			}
		}
	}
}

// lost releases p when err shows the link is gone.
func (o *Orchestrator) lost(p *peer, conn ble.Connection, err error) bool {
	if !errors.Is(err, ble.ErrNotConnected) {
		return false
	}
	if o.release(p, conn) {
		p.log.Warn("[BLE] link lost on write, rescanning")
	}
	return true
}

func (o *Orchestrator) issue(p *peer, cmd ble.Characteristic) error {
	p.mu.Lock()
	c := p.rotation[p.seq%len(p.rotation)]
	p.seq++
	p.mu.Unlock()

	frame, err := c.Frame(time.Since(o.epoch))
	if err != nil {
		p.log.Error("[TX] encode", "command", c.Name, "error", err)
		return nil
	}
	if err := cmd.Write(frame); err != nil {
		p.log.Warn("[TX] write failed", "command", c.Name, "error", err)
		return err
	}
	p.log.Info("[TX] "+c.Name, "hex", protocol.Hex(frame))
	return nil
}

func (o *Orchestrator) onNotify(p *peer, b []byte) {
	if len(b) == 0 {
		return
	}
	if p.role == ble.RoleP2 && b[0] == protocol.CmdAuthPIN {
		o.onAuth(p, b)
		return
	}
	if r, err := protocol.DecodeTelemetry(b); err == nil {
		p.log.Info("[TELEM] "+r.String(), "category", "telemetry")
		o.opts.Sink.Telemetry(p.role, r)
		return
	}

	framing := protocol.FramingFixed
	if p.role == ble.RoleP2 {
		framing = protocol.FramingState
	}
	desc, err := protocol.Describe(b, framing)
	if err != nil {
		desc = protocol.Hex(b)
	}
	if b[0] == protocol.TypeError {
		p.log.Warn("[RX] "+desc, "category", "error")
		return
	}
	p.log.Info("[RX] "+desc, "category", "ack")
}

// onAuth handles the AUTH_PIN acknowledgement. A success carries the
// two-byte user id; a failure carries only the status byte.
func (o *Orchestrator) onAuth(p *peer, b []byte) {
	ok := len(b) >= 3
	p.mu.Lock()
	p.authenticated = ok
	if p.state == StateAuthenticating {
		p.state = StateReady
	}
	p.mu.Unlock()
	if ok {
		p.log.Info("[AUTH] authenticated", "user", protocol.Uint16(b[1], b[2]), "category", "auth")
	} else {
		p.log.Warn("[AUTH] PIN rejected", "category", "auth")
	}
	o.publish(p)
}

func (o *Orchestrator) setState(p *peer, s PeerState) {
	p.mu.Lock()
	changed := p.state != s
	p.state = s
	p.mu.Unlock()
	if changed {
		p.log.Debug("[BLE] state", "state", s.String())
		o.publish(p)
	}
}

func (o *Orchestrator) publish(p *peer) {
	p.mu.Lock()
	state, authed := p.state, p.authenticated
	p.mu.Unlock()
	o.opts.Sink.PeerState(p.role, state.String(), authed)
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// wait sleeps d and reports whether the link is still up afterwards.
func (o *Orchestrator) wait(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// peer is one role's state machine.
type peer struct {
	role     ble.Role
	id       ble.Identity
	interval time.Duration
	rotation []Command
	log      *slog.Logger

	mu            sync.Mutex
	state         PeerState
	authenticated bool
	conn          ble.Connection
	stop          chan struct{}
	seq           int
	failures      int
	retryAt       time.Time
}
