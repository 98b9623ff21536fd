package models

// BulkMode - операция, применяемая массовым запуском к каждому элементу.
type BulkMode string

const (
	BulkOptimize BulkMode = "optimize"
	BulkRestore  BulkMode = "restore"
)

// Valid сообщает, известен ли режим.
func (m BulkMode) Valid() bool {
	return m == BulkOptimize || m == BulkRestore
}

// BulkState - состояние исполнителя массовых запусков.
type BulkState string

const (
	BulkIdle      BulkState = "idle"
	BulkRunning   BulkState = "running"
	BulkStopping  BulkState = "stopping"
	BulkCompleted BulkState = "completed"
)

// BulkEventKind различает промежуточный прогресс и итоговую сводку.
type BulkEventKind string

const (
	BulkEventProgress BulkEventKind = "progress"
	BulkEventSummary  BulkEventKind = "summary"
)

// BulkItemResult - исход обработки одного элемента.
type BulkItemResult struct {
	AssetID   string     `json:"asset_id"`
	Candidate *Candidate `json:"candidate,omitempty"` // Обновленный элемент при успехе
	Error     string     `json:"error,omitempty"`
}

// BulkEvent - событие массового запуска: прогресс после каждого элемента или итог.
type BulkEvent struct {
	RunID     string          `json:"run_id"`
	Token     uint64          `json:"token"`
	Shop      string          `json:"shop"`
	Kind      BulkEventKind   `json:"kind"`
	Mode      BulkMode        `json:"mode"`
	Done      int             `json:"done"` // processed + errors
	Total     int             `json:"total"`
	Processed int             `json:"processed"`
	Errors    int             `json:"errors"`
	Item      *BulkItemResult `json:"item,omitempty"`
	Stopped   bool            `json:"stopped,omitempty"`
}

// BulkSummary - итог массового запуска.
type BulkSummary struct {
	RunID      string `json:"run_id"`
	Token      uint64 `json:"token"`
	Processed  int    `json:"processed"`
	Errors     int    `json:"errors"`
	Total      int    `json:"total"`
	Stopped    bool   `json:"stopped"`
	Superseded bool   `json:"superseded"`
}

// BulkStatus - снимок состояния исполнителя для опроса вызывающей стороной.
type BulkStatus struct {
	State     BulkState   `json:"state"`
	RunID     string      `json:"run_id,omitempty"`
	Token     uint64      `json:"token"`
	Mode      BulkMode    `json:"mode,omitempty"`
	Processed int         `json:"processed"`
	Errors    int         `json:"errors"`
	Total     int         `json:"total"`
	Items     []Candidate `json:"items"`
}

// BulkRequest представляет тело запроса на запуск массовой операции.
type BulkRequest struct {
	Mode  BulkMode    `json:"mode"`
	Items []Candidate `json:"items"`
}

// BulkStartResponse представляет тело ответа на запуск массовой операции.
type BulkStartResponse struct {
	RunID string `json:"run_id"`
	Token uint64 `json:"token"`
	Total int    `json:"total"`
}
