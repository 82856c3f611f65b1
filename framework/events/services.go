package events

import (
	"slices"

	"go.uber.org/zap"
)

// RegisterService stores instance under name, records its initial status,
// indexes its tags and publishes EventServiceRegistered.
//
// It returns false, without touching the existing entry, when name is empty
// or already registered and Overwrite was not given.
func (b *Bus) RegisterService(name string, instance any, opts ...RegisterOption) bool {
	o := registerOptions{initialStatus: StatusRegistered}
	for _, opt := range opts {
		opt(&o)
	}
	if name == "" {
		b.logger.Warn("refusing to register service with empty name")
		return false
	}

	b.mu.Lock()
	if _, exists := b.services[name]; exists {
		if !o.overwrite {
			b.mu.Unlock()
			b.logger.Warn("service already registered", zap.String("service", name))
			return false
		}
		b.untagLocked(name)
	} else {
		b.names = append(b.names, name)
	}

	b.services[name] = instance
	b.status[name] = ServiceStatus{
		Status:    o.initialStatus,
		Timestamp: b.clock.Now(),
		Metadata:  copyMetadata(o.metadata),
	}
	for _, tag := range o.tags {
		if !slices.Contains(b.tags[tag], name) {
			b.tags[tag] = append(b.tags[tag], name)
		}
	}
	b.mu.Unlock()

	b.logger.Debug("service registered",
		zap.String("service", name),
		zap.String("status", string(o.initialStatus)),
		zap.Strings("tags", o.tags),
	)

	b.Publish(EventServiceRegistered, ServiceRegistered{
		Name:     name,
		Instance: instance,
		Status:   o.initialStatus,
		Tags:     slices.Clone(o.tags),
		Metadata: copyMetadata(o.metadata),
	})
	return true
}

// UnregisterService removes a service, its status and its tag entries.
// Pending EnsureService calls for the name keep waiting.
func (b *Bus) UnregisterService(name string) bool {
	b.mu.Lock()
	if _, ok := b.services[name]; !ok {
		b.mu.Unlock()
		return false
	}
	delete(b.services, name)
	delete(b.status, name)
	b.names = slices.DeleteFunc(b.names, func(n string) bool { return n == name })
	b.untagLocked(name)
	b.mu.Unlock()

	b.Publish(EventServiceUnregistered, name)
	return true
}

func (b *Bus) untagLocked(name string) {
	for tag, names := range b.tags {
		names = slices.DeleteFunc(names, func(n string) bool { return n == name })
		if len(names) == 0 {
			delete(b.tags, tag)
		} else {
			b.tags[tag] = names
		}
	}
}

// GetService returns the instance registered under name, or nil.
func (b *Bus) GetService(name string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.services[name]
}

// GetServiceStatus returns a copy of the status record of name.
func (b *Bus) GetServiceStatus(name string) (ServiceStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.status[name]
	if !ok {
		return ServiceStatus{}, false
	}
	s.Metadata = copyMetadata(s.Metadata)
	return s, true
}

// UpdateServiceStatus sets a new status on a registered service, merging
// metadata into the existing metadata, and publishes EventServiceStatusChanged.
func (b *Bus) UpdateServiceStatus(name string, status Status, metadata map[string]any) bool {
	b.mu.Lock()
	prev, ok := b.status[name]
	if _, registered := b.services[name]; !registered || !ok {
		b.mu.Unlock()
		b.logger.Warn("cannot update status of unregistered service", zap.String("service", name))
		return false
	}

	merged := copyMetadata(prev.Metadata)
	for k, v := range metadata {
		merged[k] = v
	}
	next := ServiceStatus{
		Status:    status,
		Timestamp: b.clock.Now(),
		Metadata:  merged,
	}
	b.status[name] = next
	b.mu.Unlock()

	b.Publish(EventServiceStatusChanged, StatusChanged{
		Name:           name,
		Status:         status,
		PreviousStatus: prev.Status,
		Timestamp:      next.Timestamp,
		Metadata:       copyMetadata(merged),
	})
	return true
}

// FindServicesByTag returns the instances tagged with tag, in the order
// they were tagged.
func (b *Bus) FindServicesByTag(tag string) []any {
	b.mu.Lock()
	defer b.mu.Unlock()

	names := b.tags[tag]
	out := make([]any, 0, len(names))
	for _, name := range names {
		if inst, ok := b.services[name]; ok && inst != nil {
			out = append(out, inst)
		}
	}
	return out
}

// ListServices returns the registered service names in registration order.
func (b *Bus) ListServices() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.names)
}
