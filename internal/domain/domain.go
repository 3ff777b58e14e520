package domain

// Catalog entities double as seed-file records, so they carry yaml tags next
// to the json ones.

type Actor struct {
	ID          int64  `json:"id" yaml:"id"`
	Username    string `json:"username" yaml:"username"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Role        string `json:"role" yaml:"role"`
	CreatedAt   string `json:"created_at" yaml:"created_at" format:"date-time"`
}

type AssetType struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

type Asset struct {
	ID          int64  `json:"id" yaml:"id"`
	AssetTypeID int64  `json:"asset_type_id" yaml:"asset_type_id"`
	Name        string `json:"name" yaml:"name"`
	Identifier  string `json:"identifier,omitempty" yaml:"identifier"`
	CreatedAt   string `json:"created_at" yaml:"created_at" format:"date-time"`
}

type Part struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Unit string `json:"unit,omitempty" yaml:"unit"`
}

type Tool struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// MaintenanceEvent is the root aggregate. Every action set, blocker, demand
// and narration entry hangs off one event by foreign key.
type MaintenanceEvent struct {
	ID               int64    `json:"id"`
	AssetID          int64    `json:"asset_id"`
	Status           string   `json:"status" enum:"Open,Completed"`
	CapabilityStatus string   `json:"capability_status"`
	ScheduledStart   *string  `json:"scheduled_start,omitempty" format:"date-time"`
	ScheduledEnd     *string  `json:"scheduled_end,omitempty" format:"date-time"`
	StartDate        *string  `json:"start_date,omitempty" format:"date-time"`
	EndDate          *string  `json:"end_date,omitempty" format:"date-time"`
	BillableHours    *float64 `json:"billable_hours,omitempty"`
	Meter1           *float64 `json:"meter1,omitempty"`
	Meter2           *float64 `json:"meter2,omitempty"`
	Meter3           *float64 `json:"meter3,omitempty"`
	Meter4           *float64 `json:"meter4,omitempty"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
	UpdatedAt        string   `json:"updated_at" format:"date-time"`
}

const (
	EventStatusOpen      = "Open"
	EventStatusCompleted = "Completed"
)

type ActionSet struct {
	ID      int64 `json:"id"`
	EventID int64 `json:"event_id"`
}

// Action sources record where an action's fields came from.
const (
	ActionSourceBlank     = "blank"
	ActionSourceProto     = "proto"
	ActionSourceTemplate  = "template"
	ActionSourceDuplicate = "duplicate"
)

type Action struct {
	ID          int64  `json:"id"`
	ActionSetID int64  `json:"action_set_id"`
	Seq         int    `json:"seq"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source" enum:"blank,proto,template,duplicate"`
	Completed   bool   `json:"completed"`
	CreatedBy   int64  `json:"created_by"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// ProtoAction is a reusable action prototype maintained outside any event.
type ProtoAction struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// TemplateAction belongs to the template library.
type TemplateAction struct {
	ID          int64  `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description"`
}

// Blocker is a time-bounded record reducing an asset's mission capability.
// A blocker with no end time is active.
type Blocker struct {
	ID         int64   `json:"id"`
	EventID    int64   `json:"event_id"`
	StatusCode string  `json:"status_code"`
	Reason     string  `json:"reason"`
	Priority   *string `json:"priority,omitempty"`
	StartTime  string  `json:"start_time" format:"date-time"`
	EndTime    *string `json:"end_time,omitempty" format:"date-time"`
	Notes      string  `json:"notes,omitempty"`
	CreatedBy  int64   `json:"created_by"`
}

const (
	DemandStatusRequested = "Requested"
	DemandStatusApproved  = "Approved"
	DemandStatusIssued    = "Issued"
	DemandStatusCancelled = "Cancelled"
)

type PartDemand struct {
	ID               int64   `json:"id"`
	ActionID         int64   `json:"action_id"`
	PartID           int64   `json:"part_id"`
	QuantityRequired float64 `json:"quantity_required"`
	QuantityIssued   float64 `json:"quantity_issued"`
	Status           string  `json:"status" enum:"Requested,Approved,Issued,Cancelled"`
}

type ActionTool struct {
	ID       int64    `json:"id"`
	ActionID int64    `json:"action_id"`
	ToolID   int64    `json:"tool_id"`
	Quantity *float64 `json:"quantity,omitempty"`
}

// NarrationEntry is one row of the append-only audit log attached to an event.
type NarrationEntry struct {
	ID         int64  `json:"id"`
	EventID    int64  `json:"event_id"`
	TS         string `json:"ts" format:"date-time"`
	ActorID    int64  `json:"actor_id"`
	Provenance string `json:"provenance" enum:"machine,human"`
	Body       string `json:"body"`
}

type DispatchRequest struct {
	ID          int64  `json:"id"`
	AssetID     int64  `json:"asset_id"`
	Destination string `json:"destination"`
	Status      string `json:"status"`
	RequestedBy int64  `json:"requested_by"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Storeroom struct {
	ID   int64  `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

type StockLevel struct {
	PartID      int64   `json:"part_id"`
	StoreroomID int64   `json:"storeroom_id"`
	Quantity    float64 `json:"quantity"`
}

// SystemMarker rows record one-time system facts, e.g. that the critical
// data set was installed.
type SystemMarker struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}
