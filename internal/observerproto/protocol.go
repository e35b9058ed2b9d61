package observerproto

// Version is the observer protocol version.
const Version = "1.0"

// Client -> Server. Must be the first message on the observer WS connection.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Deliver at most one frame every N ticks (1 = every tick).
	EveryTicks int `json:"every_ticks,omitempty"`
}

// HTTP response for GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string     `json:"protocol_version"`
	RunID           string     `json:"run_id"`
	Tick            uint64     `json:"tick"`
	Generation      int        `json:"generation"`
	GridParams      GridParams `json:"grid_params"`
	Actions         []string   `json:"actions"`
}

type GridParams struct {
	Width            int `json:"width"`
	Height           int `json:"height"`
	CellPx           int `json:"cell_px"`
	StepsPerTick     int `json:"steps_per_tick"`
	TickRateHz       int `json:"tick_rate_hz"`
	GenerationBudget int `json:"generation_budget"`
}

// Server -> Client. Published after every tick.
type FrameMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	RunID           string `json:"run_id"`
	Tick            uint64 `json:"tick"`
	Generation      int    `json:"generation"`
	Step            int    `json:"step"`
	Status          string `json:"status"`

	Epsilon    float64 `json:"epsilon"`
	State      [8]int  `json:"state"`
	LastAction string  `json:"last_action,omitempty"`
	LastReward int     `json:"last_reward"`

	Width    int           `json:"width"`
	Height   int           `json:"height"`
	Entities []EntityState `json:"entities"`
}

type EntityState struct {
	ID     int    `json:"id"`
	Kind   string `json:"kind"`
	Pos    [2]int `json:"pos"`
	Stage  string `json:"stage,omitempty"`
	Held   bool   `json:"held,omitempty"`
	Visual string `json:"visual"`
}
