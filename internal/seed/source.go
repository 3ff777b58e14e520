// Package seed installs reference and demonstration data. The critical set
// is mandatory for every deployment; the debug set exists for development
// databases only.
package seed

import (
	"bytes"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"fleetline/internal/domain"
)

//go:embed data/*.yaml
var defaultData embed.FS

// Source loads module data descriptions. Files in DataDir shadow the
// embedded defaults by name.
type Source struct {
	DataDir string
}

type CoreData struct {
	Actors     []domain.Actor     `yaml:"actors"`
	AssetTypes []domain.AssetType `yaml:"asset_types"`
}

type AssetsData struct {
	Assets []domain.Asset `yaml:"assets"`
}

type DispatchingData struct {
	DispatchRequests []DispatchSpec `yaml:"dispatch_requests"`
}

type DispatchSpec struct {
	ID          int64  `yaml:"id"`
	AssetID     int64  `yaml:"asset_id"`
	Destination string `yaml:"destination"`
	Status      string `yaml:"status"`
	RequestedBy int64  `yaml:"requested_by"`
}

type MaintenanceData struct {
	ProtoActions    []domain.ProtoAction    `yaml:"proto_actions"`
	TemplateActions []domain.TemplateAction `yaml:"template_actions"`
	Events          []EventSpec             `yaml:"events"`
}

type EventSpec struct {
	ID             int64         `yaml:"id"`
	AssetID        int64         `yaml:"asset_id"`
	ScheduledStart string        `yaml:"scheduled_start"`
	ScheduledEnd   string        `yaml:"scheduled_end"`
	Actions        []ActionSpec  `yaml:"actions"`
	Blockers       []BlockerSpec `yaml:"blockers"`
}

type ActionSpec struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	ActorID     int64  `yaml:"actor_id"`
}

type BlockerSpec struct {
	StatusCode string `yaml:"status_code"`
	Reason     string `yaml:"reason"`
	Priority   string `yaml:"priority"`
	ActorID    int64  `yaml:"actor_id"`
}

type InventoryData struct {
	Parts      []domain.Part      `yaml:"parts"`
	Tools      []domain.Tool      `yaml:"tools"`
	Storerooms []domain.Storeroom `yaml:"storerooms"`
	Stock      []StockSpec        `yaml:"stock"`
	Demands    []DemandSpec       `yaml:"demands"`
}

type StockSpec struct {
	PartID      int64   `yaml:"part_id"`
	StoreroomID int64   `yaml:"storeroom_id"`
	Quantity    float64 `yaml:"quantity"`
}

type DemandSpec struct {
	EventID   int64   `yaml:"event_id"`
	ActionSeq int     `yaml:"action_seq"`
	PartID    int64   `yaml:"part_id"`
	Quantity  float64 `yaml:"quantity"`
	ActorID   int64   `yaml:"actor_id"`
}

// load decodes one module file into out, rejecting unknown keys so typos in
// data files fail loudly instead of silently seeding nothing.
func (s Source) load(name string, out any) error {
	data, err := s.read(name)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func (s Source) read(name string) ([]byte, error) {
	if s.DataDir != "" {
		p := filepath.Join(s.DataDir, name)
		if data, err := os.ReadFile(p); err == nil {
			return data, nil
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
	}
	data, err := defaultData.ReadFile("data/" + name)
	if err != nil {
		return nil, fmt.Errorf("embedded data %s: %w", name, err)
	}
	return data, nil
}

func (s Source) Core() (CoreData, error) {
	var d CoreData
	err := s.load("core.yaml", &d)
	return d, err
}

func (s Source) Assets() (AssetsData, error) {
	var d AssetsData
	err := s.load("assets.yaml", &d)
	return d, err
}

func (s Source) Dispatching() (DispatchingData, error) {
	var d DispatchingData
	err := s.load("dispatching.yaml", &d)
	return d, err
}

func (s Source) Maintenance() (MaintenanceData, error) {
	var d MaintenanceData
	err := s.load("maintenance.yaml", &d)
	return d, err
}

func (s Source) Inventory() (InventoryData, error) {
	var d InventoryData
	err := s.load("inventory.yaml", &d)
	return d, err
}
