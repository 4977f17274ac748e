package registry

import (
	"context"
	"fmt"
)

// RegisterEntity registers a government entity. The central authority
// registers any address directly as active; an address registering itself
// starts pending and must be approved before it can act.
func (r *Registry) RegisterEntity(ctx context.Context, caller, address, name string) (Entity, error) {
	const op = "registry.RegisterEntity"

	caller, err := normalizeAddress(caller)
	if err != nil {
		return Entity{}, fmt.Errorf("%s: caller: %w", op, err)
	}
	address, err = normalizeAddress(address)
	if err != nil {
		return Entity{}, fmt.Errorf("%s: %w", op, err)
	}
	if name == "" {
		return Entity{}, fmt.Errorf("%s: name is required: %w", op, ErrInvalidInput)
	}

	if caller != r.central && caller != address {
		return Entity{}, fmt.Errorf("%s: only the central authority may register other addresses: %w", op, ErrNotAuthorized)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entity(address); ok {
		return Entity{}, fmt.Errorf("%s: entity %s already registered: %w", op, address, ErrAlreadyDone)
	}

	e := Entity{
		Address:      address,
		Name:         name,
		IsActive:     caller == r.central,
		IsPending:    caller != r.central,
		RegisteredAt: r.now().Unix(),
	}
	if err := r.persist(func(s Store) error { return s.SaveEntity(ctx, e) }); err != nil {
		return Entity{}, fmt.Errorf("%s: %w", op, err)
	}

	r.entities[address] = &e
	r.entityOrder = append(r.entityOrder, address)
	r.log.Info("entity registered", "address", address, "name", name, "active", e.IsActive)
	return e, nil
}

// ApproveEntity activates a pending or deactivated entity.
// Central authority only.
func (r *Registry) ApproveEntity(ctx context.Context, caller, address string) error {
	const op = "registry.ApproveEntity"

	address, err := r.centralTarget(caller, address)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entity(address)
	if !ok {
		return fmt.Errorf("%s: entity %s: %w", op, address, ErrNotFound)
	}
	if e.IsActive {
		return fmt.Errorf("%s: entity %s is already active: %w", op, address, ErrAlreadyDone)
	}

	next := *e
	next.IsActive = true
	next.IsPending = false
	if err := r.persist(func(s Store) error { return s.SaveEntity(ctx, next) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	*e = next
	r.log.Info("entity approved", "address", address)
	return nil
}

// RejectEntity removes a pending registration. Central authority only.
func (r *Registry) RejectEntity(ctx context.Context, caller, address string) error {
	const op = "registry.RejectEntity"

	address, err := r.centralTarget(caller, address)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entity(address)
	if !ok {
		return fmt.Errorf("%s: entity %s: %w", op, address, ErrNotFound)
	}
	if !e.IsPending {
		return fmt.Errorf("%s: entity %s is not pending approval: %w", op, address, ErrInvalidState)
	}

	if err := r.persist(func(s Store) error { return s.DeleteEntity(ctx, address) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	delete(r.entities, address)
	for i, a := range r.entityOrder {
		if a == address {
			r.entityOrder = append(r.entityOrder[:i], r.entityOrder[i+1:]...)
			break
		}
	}
	r.log.Info("entity rejected", "address", address)
	return nil
}

// DeactivateEntity disables an active entity. A deactivated entity keeps
// its balance and history but cannot spend, request funds, vote, issue
// tenders or bid. Central authority only.
func (r *Registry) DeactivateEntity(ctx context.Context, caller, address string) error {
	const op = "registry.DeactivateEntity"

	address, err := r.centralTarget(caller, address)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entity(address)
	if !ok {
		return fmt.Errorf("%s: entity %s: %w", op, address, ErrNotFound)
	}
	if !e.IsActive {
		return fmt.Errorf("%s: entity %s is already inactive: %w", op, address, ErrAlreadyDone)
	}

	next := *e
	next.IsActive = false
	next.IsPending = false
	if err := r.persist(func(s Store) error { return s.SaveEntity(ctx, next) }); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	*e = next
	r.log.Info("entity deactivated", "address", address)
	return nil
}

// GetEntityDetails returns the entity record for an address.
func (r *Registry) GetEntityDetails(address string) (Entity, error) {
	const op = "registry.GetEntityDetails"

	address, err := normalizeAddress(address)
	if err != nil {
		return Entity{}, fmt.Errorf("%s: %w", op, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entity(address)
	if !ok {
		return Entity{}, fmt.Errorf("%s: entity %s: %w", op, address, ErrNotFound)
	}
	return *e, nil
}

// GetAllEntityAddresses lists every registered address in insertion order.
func (r *Registry) GetAllEntityAddresses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, len(r.entityOrder))
	copy(out, r.entityOrder)
	return out
}

// centralTarget validates a central-authority-only call against a target
// entity address.
func (r *Registry) centralTarget(caller, address string) (string, error) {
	caller, err := normalizeAddress(caller)
	if err != nil {
		return "", fmt.Errorf("caller: %w", err)
	}
	if caller != r.central {
		return "", fmt.Errorf("caller %s is not the central authority: %w", caller, ErrNotAuthorized)
	}
	return normalizeAddress(address)
}
