package domain

type Facility struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Game struct {
	ID         string `json:"id"`
	FacilityID string `json:"facility_id"`
	Name       string `json:"name"`
	Status     string `json:"status" enum:"Up,Down"`
	DownReason string `json:"down_reason,omitempty"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type Issue struct {
	ID                string  `json:"id"`
	FacilityID        string  `json:"facility_id"`
	Type              string  `json:"type"`
	Area              string  `json:"area,omitempty"`
	GameID            *string `json:"game_id,omitempty"`
	EquipmentName     string  `json:"equipment_name,omitempty"`
	EquipmentLocation string  `json:"equipment_location,omitempty"`
	Category          string  `json:"category,omitempty"`
	Priority          string  `json:"priority"`
	Description       string  `json:"description"`
	Notes             string  `json:"notes,omitempty"`
	Status            string  `json:"status"`
	TargetDate        *string `json:"target_date,omitempty"`
	AssignedTo        *string `json:"assigned_to,omitempty"`
	CreatedBy         string  `json:"created_by"`
	DateLogged        string  `json:"date_logged" format:"date-time"`
	LastUpdated       string  `json:"last_updated" format:"date-time"`
}

type IssueCounts struct {
	Open   int `json:"open"`
	Urgent int `json:"urgent"`
}

type ChecklistRun struct {
	ID          string              `json:"id"`
	FacilityID  string              `json:"facility_id"`
	StartedAt   string              `json:"started_at" format:"date-time"`
	FinishedAt  string              `json:"finished_at" format:"date-time"`
	TotalSteps  int                 `json:"total_steps"`
	Completed   int                 `json:"completed"`
	Answered    int                 `json:"answered"`
	IssueCount  int                 `json:"issue_count"`
	CompletedBy string              `json:"completed_by"`
	Entries     []ChecklistRunEntry `json:"entries"`
}

// ChecklistRunEntry is one persisted answer; Response is "yes", "no" or "action taken".
type ChecklistRunEntry struct {
	StepID   string              `json:"step_id"`
	Title    string              `json:"title"`
	Response string              `json:"response"`
	Notes    string              `json:"notes,omitempty"`
	Items    []ChecklistItemNote `json:"items,omitempty"`
	Figures  map[string]string   `json:"figures,omitempty"`
}

// ChecklistItemNote is the result of one sub-list item; Status is "OK" or "Issue Found".
type ChecklistItemNote struct {
	Item   string `json:"item"`
	Status string `json:"status" enum:"OK,Issue Found"`
	Notes  string `json:"notes,omitempty"`
}

type PMLog struct {
	ID          int64  `json:"id"`
	FacilityID  string `json:"facility_id"`
	GameName    string `json:"game_name"`
	PMDate      string `json:"pm_date" format:"date"`
	Notes       string `json:"notes,omitempty"`
	CompletedBy string `json:"completed_by"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

// TPTSettings are the tickets-per-token targets shown on the TPT sheet.
type TPTSettings struct {
	LowestDesired        float64 `json:"lowest_desired_tpt"`
	HighestDesired       float64 `json:"highest_desired_tpt"`
	Target               float64 `json:"target_tpt"`
	IncludeBirthdayBlast bool    `json:"include_birthday_blaster"`
	UpdatedAt            string  `json:"updated_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	FacilityID string `json:"facility_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
