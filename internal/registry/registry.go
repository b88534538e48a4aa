// Package registry holds the device-presence table and short-ID allocator
// described in spec §4.3. It follows the teacher's pairedDevices map +
// mutex pattern (transport.Receiver in the reference radio library),
// generalized from "one receiver's paired peers" to the master's full
// slave population, with an ordered config list for TDMA slot assignment.
package registry

import (
	"sync"
	"time"

	"github.com/tdma-harness/mastercoord/protocol"
)

// Version is a slave firmware version triple.
type Version struct {
	Major byte
	Minor byte
	Patch uint16
}

// SlaveConfig is the per-slave configuration most recently announced by
// the backend.
type SlaveConfig struct {
	ConductionNum byte
	ResistanceNum byte
	ClipMode      byte
	ClipStatus    uint16
}

// DeviceRecord is one slave's state in the registry, keyed by DeviceID.
type DeviceRecord struct {
	DeviceID uint32

	ShortID     byte
	HasShortID  bool
	Online      bool
	Version     Version
	LastSeenMs  int64
	BatteryLvl  byte
	ResetPend   bool
	Config      SlaveConfig
	HasConfig   bool

	joinRequestTime  int64
	joinRequestCount int
}

// Registry is the device presence table, short-ID allocator, and config
// ordering described in §3 and §4.3. Access is serialised by a single
// mutex, per §5's "single registry mutex" guidance for implementations
// where Rx runs parallel with Tick.
type Registry struct {
	mu sync.Mutex

	devices map[uint32]*DeviceRecord
	pool    map[byte]bool // true = available

	configOrder []uint32 // device_ids, in the order the backend announced them
}

// New returns an empty Registry with the full short-ID pool available.
func New() *Registry {
	r := &Registry{
		devices: make(map[uint32]*DeviceRecord),
		pool:    make(map[byte]bool, protocol.ShortIDMax-protocol.ShortIDStart+1),
	}
	for id := protocol.ShortIDStart; id <= protocol.ShortIDMax; id++ {
		r.pool[byte(id)] = true
	}
	return r
}

// Touch records an Announce from deviceID: creates the record if new,
// refreshes LastSeenMs and Version, and increments the join-request
// counter used by the announce-count limit on allocation. It never resets
// an already-assigned ShortID or Online flag (§ SPEC_FULL supplemented
// features: re-announce refreshes presence without undoing enrollment).
func (r *Registry) Touch(deviceID uint32, version Version, nowMs int64) *DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		d = &DeviceRecord{DeviceID: deviceID}
		r.devices[deviceID] = d
	}
	d.Version = version
	d.LastSeenMs = nowMs
	d.joinRequestCount++
	if d.joinRequestCount == 1 {
		d.joinRequestTime = nowMs
	}
	return d
}

// Assign allocates a short_id for deviceID, per §4.3's Allocator rules.
func (r *Registry) Assign(deviceID uint32) (byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return 0, protocol.ErrDeviceUnknown
	}
	if d.HasShortID {
		return d.ShortID, nil
	}
	if d.joinRequestCount > protocol.AnnounceCountLimit {
		return 0, protocol.ErrTooManyAnnounces
	}

	id, err := r.popSmallestLocked()
	if err != nil {
		return 0, err
	}
	d.ShortID = id
	d.HasShortID = true
	return id, nil
}

func (r *Registry) popSmallestLocked() (byte, error) {
	for id := protocol.ShortIDStart; id <= protocol.ShortIDMax; id++ {
		b := byte(id)
		if r.pool[b] {
			r.pool[b] = false
			return b, nil
		}
	}
	return 0, protocol.ErrPoolExhausted
}

// Confirm marks deviceID online and ensures shortID is bound, per a
// successful ShortIdConfirm reply.
func (r *Registry) Confirm(deviceID uint32, shortID byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		return protocol.ErrDeviceUnknown
	}
	if d.HasShortID && d.ShortID != shortID {
		r.pool[d.ShortID] = true
	}
	if !d.HasShortID || d.ShortID != shortID {
		r.pool[shortID] = false
		d.ShortID = shortID
		d.HasShortID = true
	}
	d.Online = true
	return nil
}

// Remove deletes deviceID from the registry, returning its short_id (if
// any) to the pool, and drops it from configOrder.
func (r *Registry) Remove(deviceID uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(deviceID)
}

func (r *Registry) removeLocked(deviceID uint32) {
	if d, ok := r.devices[deviceID]; ok {
		if d.HasShortID {
			r.pool[d.ShortID] = true
		}
		delete(r.devices, deviceID)
	}
	for i, id := range r.configOrder {
		if id == deviceID {
			r.configOrder = append(r.configOrder[:i], r.configOrder[i+1:]...)
			break
		}
	}
}

// Clear removes every device, returning all short_ids to the pool.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices = make(map[uint32]*DeviceRecord)
	r.configOrder = nil
	for id := protocol.ShortIDStart; id <= protocol.ShortIDMax; id++ {
		r.pool[byte(id)] = true
	}
}

// Get returns a copy of deviceID's record, if present.
func (r *Registry) Get(deviceID uint32) (DeviceRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return DeviceRecord{}, false
	}
	return *d, true
}

// All returns a copy of every device record, regardless of online status,
// for the backend's DeviceListReq query.
func (r *Registry) All() []DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DeviceRecord, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d)
	}
	return out
}

// SetBattery records a slave's last-reported battery level.
func (r *Registry) SetBattery(deviceID uint32, level byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[deviceID]; ok {
		d.BatteryLvl = level
	}
}

// TouchPresence refreshes deviceID's last-seen timestamp and online flag
// from an inbound slave reply that isn't an Announce (ping/reset
// responses, short_id confirmation), mirroring updateDeviceLastSeen's
// effect on an already-enrolled device. No-op for an unknown device.
func (r *Registry) TouchPresence(deviceID uint32, nowMs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[deviceID]; ok {
		d.LastSeenMs = nowMs
		d.Online = true
	}
}

// SetResetPending flags deviceID for reset on the next Sync broadcast.
func (r *Registry) SetResetPending(deviceID uint32, pending bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.devices[deviceID]; ok {
		d.ResetPend = pending
	}
}

// SetSlaveConfig records cfg for deviceID and appends deviceID to
// configOrder if this is the first config seen for it, preserving the
// order the backend announced slaves in (§4.3, "config order stability").
func (r *Registry) SetSlaveConfig(deviceID uint32, cfg SlaveConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[deviceID]
	if !ok {
		d = &DeviceRecord{DeviceID: deviceID}
		r.devices[deviceID] = d
	}
	if !d.HasConfig {
		r.configOrder = append(r.configOrder, deviceID)
	}
	d.Config = cfg
	d.HasConfig = true
}

// ClearSlaveConfigs drops configOrder and every record's stored config,
// without otherwise touching presence/enrollment state. Called at the top
// of a new SlaveConfig message's handling so config_order always reflects
// only the most recently announced slave set (§3), never a union of this
// and a prior announcement.
func (r *Registry) ClearSlaveConfigs() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configOrder = nil
	for _, d := range r.devices {
		d.Config = SlaveConfig{}
		d.HasConfig = false
	}
}

// ConnectedSlavesInConfigOrder returns every configured, online slave in
// the order the backend announced them (§4.3, drives TDMA slot indices).
func (r *Registry) ConnectedSlavesInConfigOrder() []DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]DeviceRecord, 0, len(r.configOrder))
	for _, id := range r.configOrder {
		d, ok := r.devices[id]
		if !ok || !d.Online {
			continue
		}
		out = append(out, *d)
	}
	return out
}

// CleanupExpired removes every device whose LastSeenMs is older than
// timeoutMs relative to nowMs, per §4.3's aging rule.
func (r *Registry) CleanupExpired(nowMs int64, timeoutMs int64) []uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []uint32
	for id, d := range r.devices {
		if nowMs-d.LastSeenMs > timeoutMs {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		r.removeLocked(id)
	}
	return expired
}

// AvailablePoolSize reports how many short_ids remain unassigned, mostly
// useful for tests asserting the pool/assigned invariant in §8.
func (r *Registry) AvailablePoolSize() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, free := range r.pool {
		if free {
			n++
		}
	}
	return n
}

// NowMs returns the current wall-clock time in Unix milliseconds. Nothing in
// this module calls it; the coordinator stamps LastSeenMs from its own Clock.
func NowMs() int64 {
	return time.Now().UnixMilli()
}
