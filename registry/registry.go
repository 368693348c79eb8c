package registry

import (
	"sync"

	"bike-arcade-controller/metrics"
	"bike-arcade-controller/types"

	"github.com/sirupsen/logrus"
)

// Device is the part of a connection the registry needs.
type Device interface {
	ID() string
	PortName() string
	Alive() bool
	Send(command string) error
	SetRole(role types.Role)
}

// ClaimResult describes the outcome of a role claim.
type ClaimResult struct {
	Claimed  bool
	Previous types.Role // role the claiming device held before, if it changed roles
	Orphaned Device     // live device that lost the role to this claim
}

// Registry maps roles to live devices. Claims and releases are serialized under one
// lock, so a role is never handed to a device that is being torn down at the same time.
type Registry struct {
	mu     sync.Mutex
	byRole map[types.Role]Device
	byID   map[string]types.Role

	log     *logrus.Entry
	metrics *metrics.Metrics
}

func New(log *logrus.Entry, m *metrics.Metrics) *Registry {
	return &Registry{
		byRole:  make(map[types.Role]Device),
		byID:    make(map[string]types.Role),
		log:     log,
		metrics: m,
	}
}

// Claim assigns role to dev. If another live device holds the role, the last
// identification wins and the other device is left open without a role.
func (r *Registry) Claim(dev Device, role types.Role) ClaimResult {
	entry := r.log.WithField("port", dev.PortName()).WithField("role", role.String())

	if role == types.RoleUnassigned {
		entry.Warn("ignoring claim without a role")
		return ClaimResult{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// the Closed state is set before the release runs, so checking it here under the
	// lock is enough to never map a dead device
	if !dev.Alive() {
		entry.Warn("claim from a closed connection ignored")
		return ClaimResult{}
	}

	var res ClaimResult

	if current, ok := r.byID[dev.ID()]; ok {
		if current == role {
			entry.Debug("role already held by this device")
			res.Claimed = true
			return res
		}
		delete(r.byRole, current)
		res.Previous = current
		entry.WithField("previous", current.String()).Info("device switched roles")
	}

	if holder, ok := r.byRole[role]; ok && holder.ID() != dev.ID() {
		delete(r.byID, holder.ID())
		if holder.Alive() {
			holder.SetRole(types.RoleUnassigned)
			res.Orphaned = holder
			r.metrics.RoleConflict()
			entry.WithField("orphaned_port", holder.PortName()).Warn("role conflict, last identification wins")
		}
	}

	r.byRole[role] = dev
	r.byID[dev.ID()] = role
	dev.SetRole(role)
	res.Claimed = true
	entry.Info("role assigned")
	return res
}

// Release frees whatever role dev holds. It returns the freed role, or RoleUnassigned.
func (r *Registry) Release(dev Device) types.Role {
	r.mu.Lock()
	defer r.mu.Unlock()

	role, ok := r.byID[dev.ID()]
	if !ok {
		return types.RoleUnassigned
	}
	delete(r.byID, dev.ID())
	if holder, ok := r.byRole[role]; ok && holder.ID() == dev.ID() {
		delete(r.byRole, role)
	}
	r.log.WithField("port", dev.PortName()).WithField("role", role.String()).Info("role released")
	return role
}

// Lookup returns the live device holding role.
func (r *Registry) Lookup(role types.Role) (Device, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.byRole[role]
	if !ok || !dev.Alive() {
		return nil, false
	}
	return dev, true
}

// RoleOf returns the role dev holds.
func (r *Registry) RoleOf(dev Device) (types.Role, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.byID[dev.ID()]
	return role, ok
}

// Assignments returns a snapshot of role -> port name.
func (r *Registry) Assignments() map[types.Role]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[types.Role]string, len(r.byRole))
	for role, dev := range r.byRole {
		out[role] = dev.PortName()
	}
	return out
}
