package server

// Request payloads

type CreateActionRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Position    int     `json:"position,omitempty" minimum:"0"`
}

type CreateActionFromSourceRequest struct {
	SourceID int64 `json:"source_id"`
	Position int   `json:"position,omitempty" minimum:"0"`
}

type DuplicateActionRequest struct {
	Position    int  `json:"position,omitempty" minimum:"0"`
	CopyDemands bool `json:"copy_demands,omitempty"`
	CopyTools   bool `json:"copy_tools,omitempty"`
}

type OpenBlockerRequest struct {
	StatusCode string  `json:"status_code"`
	Reason     string  `json:"reason"`
	Priority   *string `json:"priority,omitempty"`
	StartTime  *string `json:"start_time,omitempty" format:"date-time"`
	Comment    *string `json:"comment,omitempty"`
}

type CloseBlockerRequest struct {
	EndTime *string `json:"end_time,omitempty" format:"date-time"`
	Notes   *string `json:"notes,omitempty"`
	Comment *string `json:"comment,omitempty"`
}

type UpdateBlockerRequest struct {
	StatusCode *string `json:"status_code,omitempty"`
	Reason     *string `json:"reason,omitempty"`
	Priority   *string `json:"priority,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type CreateDemandRequest struct {
	ActionID int64   `json:"action_id"`
	PartID   int64   `json:"part_id"`
	Quantity float64 `json:"quantity"`
}

type DemandQuantityRequest struct {
	Quantity float64 `json:"quantity"`
}

type AddToolRequest struct {
	ActionID int64    `json:"action_id"`
	ToolID   int64    `json:"tool_id"`
	Quantity *float64 `json:"quantity,omitempty"`
}

type StartEventRequest struct {
	StartDate *string `json:"start_date,omitempty" format:"date-time"`
}

type CompleteEventRequest struct {
	StartDate     string   `json:"start_date" format:"date-time"`
	EndDate       string   `json:"end_date" format:"date-time"`
	BillableHours float64  `json:"billable_hours" minimum:"0"`
	Meter1        *float64 `json:"meter1,omitempty"`
	Meter2        *float64 `json:"meter2,omitempty"`
	Meter3        *float64 `json:"meter3,omitempty"`
	Meter4        *float64 `json:"meter4,omitempty"`
	Comment       string   `json:"comment,omitempty"`
}
