package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"lockbox/internal/license"
	"lockbox/pkg/contracts/domain"
)

// InstallationStore looks up registered self-hosted installations.
type InstallationStore interface {
	Installation(ctx context.Context, id uuid.UUID) (*domain.Installation, error)
}

// OrganizationStore looks up subscriber organizations and their billing
// state.
type OrganizationStore interface {
	Organization(ctx context.Context, id uuid.UUID) (*OrganizationRecord, error)
}

// OrganizationRecord is what the cloud registry knows about a subscriber
// organization: the snapshot licenses are issued from, the billing
// subscription, and the sync credential the self-hosted side must present.
type OrganizationRecord struct {
	Organization   license.Organization  `json:"organization"`
	Subscription   *license.Subscription `json:"subscription,omitempty"`
	BillingSyncKey string                `json:"billing_sync_key"`
}

// Registry is a file-backed installation and organization registry. Records
// are loaded once at startup and served from memory.
type Registry struct {
	mu            sync.RWMutex
	installations map[uuid.UUID]domain.Installation
	organizations map[uuid.UUID]OrganizationRecord
	logger        *slog.Logger
}

var (
	_ InstallationStore = (*Registry)(nil)
	_ OrganizationStore = (*Registry)(nil)
)

// NewRegistry loads the registry from the given JSON files. A missing file
// yields an empty registry for that record type.
func NewRegistry(installationsFile, organizationsFile string, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		installations: make(map[uuid.UUID]domain.Installation),
		organizations: make(map[uuid.UUID]OrganizationRecord),
		logger:        logger.With(slog.String("component", "registry")),
	}

	var installations []domain.Installation
	if err := loadJSONFile(installationsFile, &installations); err != nil {
		return nil, fmt.Errorf("load installations: %w", err)
	}
	for _, inst := range installations {
		r.installations[inst.ID] = inst
	}

	var organizations []OrganizationRecord
	if err := loadJSONFile(organizationsFile, &organizations); err != nil {
		return nil, fmt.Errorf("load organizations: %w", err)
	}
	for _, org := range organizations {
		r.organizations[org.Organization.ID] = org
	}

	r.logger.Info("registry loaded",
		slog.Int("installations", len(r.installations)),
		slog.Int("organizations", len(r.organizations)))
	return r, nil
}

func loadJSONFile(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Installation returns the installation record for id, or nil when unknown.
func (r *Registry) Installation(ctx context.Context, id uuid.UUID) (*domain.Installation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.installations[id]
	if !ok {
		return nil, nil
	}
	out := inst
	return &out, nil
}

// Organization returns the organization record for id, or nil when unknown.
// The returned record is a copy so callers cannot mutate registry state.
func (r *Registry) Organization(ctx context.Context, id uuid.UUID) (*OrganizationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.organizations[id]
	if !ok {
		return nil, nil
	}
	out := rec
	if rec.Subscription != nil {
		sub := *rec.Subscription
		out.Subscription = &sub
	}
	return &out, nil
}

// AddInstallation registers an installation. Used by tests and seeding.
func (r *Registry) AddInstallation(inst domain.Installation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installations[inst.ID] = inst
}

// AddOrganization registers an organization record. Used by tests and
// seeding.
func (r *Registry) AddOrganization(rec OrganizationRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.organizations[rec.Organization.ID] = rec
}
